package middleware

import (
	"log"

	"upilink/internal/config"
	domainErrors "upilink/internal/errors"
	"upilink/internal/metrics"
	"upilink/internal/models"
	"upilink/internal/services/audit"
	"upilink/internal/services/ratelimit"
	"upilink/internal/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
)

// Rate limit response headers, as set by fiber's limiter.
const (
	HeaderRateLimitLimit     = "X-RateLimit-Limit"
	HeaderRateLimitRemaining = "X-RateLimit-Remaining"
	HeaderRateLimitReset     = "X-RateLimit-Reset"
)

// RateLimiter holds one fixed-window limiter per configured name.
type RateLimiter struct {
	handlers map[string]fiber.Handler
	audit    audit.Service
	metrics  metrics.Collector
}

// NewRateLimiter builds the named limiters. A nil storage keeps counters in
// process memory; pass a shared storage to enforce limits across instances.
func NewRateLimiter(rules map[string]config.LimitRule, storage fiber.Storage, auditSvc audit.Service, collector metrics.Collector) *RateLimiter {
	if auditSvc == nil {
		panic("audit service is required")
	}
	if collector == nil {
		collector = metrics.Noop{}
	}
	r := &RateLimiter{
		handlers: make(map[string]fiber.Handler, len(rules)),
		audit:    auditSvc,
		metrics:  collector,
	}
	for name, rule := range rules {
		r.handlers[name] = limiter.New(limiter.Config{
			Max:        rule.MaxRequests,
			Expiration: rule.Window,
			KeyGenerator: func(c *fiber.Ctx) string {
				return ratelimit.Key(name, ratelimit.ClientKey(c.IP(), c.Get(fiber.HeaderUserAgent)))
			},
			LimitReached:      r.limitReached(name, rule),
			LimiterMiddleware: limiter.FixedWindow{},
			Storage:           storage,
		})
	}
	return r
}

// Limit returns the handler of the named limiter. An unknown name lets every
// request through.
func (r *RateLimiter) Limit(name string) fiber.Handler {
	if h, ok := r.handlers[name]; ok {
		return h
	}
	log.Printf("Rate limiter %s is not configured, requests pass unlimited", name)
	return func(c *fiber.Ctx) error {
		return c.Next()
	}
}

// limitReached runs after fiber's limiter has set Retry-After.
func (r *RateLimiter) limitReached(name string, rule config.LimitRule) fiber.Handler {
	return func(c *fiber.Ctx) error {
		r.metrics.RateLimitDenied(name)

		meta := utils.RequestMeta(c)
		performedBy := models.SystemActor
		if identity, err := utils.GetIdentity(c); err == nil {
			performedBy = identity.UserID
		}
		r.audit.RecordAsync(audit.Entry{
			Action:      models.AuditRateLimitExceeded,
			TargetID:    name,
			PerformedBy: performedBy,
			Details: map[string]interface{}{
				"limiter": name,
				"method":  c.Method(),
				"path":    c.Path(),
				"limit":   rule.MaxRequests,
			},
			Meta: meta,
		})

		return domainErrors.ErrRateLimited.WithMessage("too many requests, retry in %s seconds", c.GetRespHeader(fiber.HeaderRetryAfter))
	}
}
