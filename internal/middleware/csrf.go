package middleware

import (
	"crypto/subtle"
	"log"
	"strings"
	"time"

	domainErrors "upilink/internal/errors"
	"upilink/internal/metrics"
	"upilink/internal/models"
	"upilink/internal/services/audit"
	"upilink/internal/utils"

	"github.com/gofiber/fiber/v2"
)

const (
	CSRFCookieName = "csrf-token"
	CSRFHeaderName = "x-csrf-token"

	// LocalsCSRFToken holds the token valid for the current request.
	LocalsCSRFToken = "csrf_token"

	csrfCookieTTL = 24 * time.Hour
)

type CSRFConfig struct {
	// Exempt lists paths that skip the check, such as signed webhooks. Matching
	// ignores case and trailing slashes, as fiber's default router does.
	Exempt []string
	// Secure marks the cookie Secure. Enable behind HTTPS.
	Secure bool
}

// CSRFGuard implements the double-submit cookie check. The token is not bound
// to the session.
type CSRFGuard struct {
	cfg     CSRFConfig
	exempt  map[string]struct{}
	audit   audit.Service
	metrics metrics.Collector
}

func NewCSRFGuard(cfg CSRFConfig, auditSvc audit.Service, collector metrics.Collector) *CSRFGuard {
	if auditSvc == nil {
		panic("audit service is required")
	}
	if collector == nil {
		collector = metrics.Noop{}
	}
	exempt := make(map[string]struct{}, len(cfg.Exempt))
	for _, p := range cfg.Exempt {
		exempt[routePath(p)] = struct{}{}
	}
	return &CSRFGuard{cfg: cfg, exempt: exempt, audit: auditSvc, metrics: collector}
}

// Handler issues a token on safe requests and verifies it on mutating ones.
func (g *CSRFGuard) Handler(c *fiber.Ctx) error {
	if _, ok := g.exempt[routePath(c.Path())]; ok {
		return c.Next()
	}

	cookie := c.Cookies(CSRFCookieName)

	if isSafeMethod(c.Method()) {
		if cookie == "" {
			token, err := utils.GenerateSecureCode()
			if err != nil {
				log.Printf("Failed to generate CSRF token: %v", err)
				return domainErrors.ErrInternal.Wrap(err)
			}
			g.setCookie(c, token)
			cookie = token
		}
		c.Locals(LocalsCSRFToken, cookie)
		return c.Next()
	}

	header := c.Get(CSRFHeaderName)
	if cookie == "" || header == "" || subtle.ConstantTimeCompare([]byte(cookie), []byte(header)) != 1 {
		g.reject(c, cookie == "", header == "")
		return domainErrors.ErrCSRFTokenInvalid
	}
	c.Locals(LocalsCSRFToken, cookie)
	return c.Next()
}

func (g *CSRFGuard) reject(c *fiber.Ctx, missingCookie, missingHeader bool) {
	g.metrics.CSRFRejected()
	meta := utils.RequestMeta(c)
	log.Printf("CSRF check failed for %s %s from %s", c.Method(), c.Path(), meta.IPAddress)

	reason := "mismatch"
	switch {
	case missingCookie && missingHeader:
		reason = "missing"
	case missingCookie:
		reason = "missing_cookie"
	case missingHeader:
		reason = "missing_header"
	}
	g.audit.RecordAsync(audit.Entry{
		Action:      models.AuditCSRFRejected,
		TargetID:    c.Path(),
		PerformedBy: models.SystemActor,
		Details: map[string]interface{}{
			"method": c.Method(),
			"reason": reason,
		},
		Meta: meta,
	})
}

func (g *CSRFGuard) setCookie(c *fiber.Ctx, token string) {
	c.Cookie(&fiber.Cookie{
		Name:     CSRFCookieName,
		Value:    token,
		Path:     "/",
		Expires:  time.Now().Add(csrfCookieTTL),
		Secure:   g.cfg.Secure,
		HTTPOnly: false,
		SameSite: fiber.CookieSameSiteStrictMode,
	})
}

func routePath(p string) string {
	p = strings.ToLower(p)
	if trimmed := strings.TrimRight(p, "/"); trimmed != "" {
		return trimmed
	}
	return "/"
}

func isSafeMethod(method string) bool {
	switch method {
	case fiber.MethodGet, fiber.MethodHead, fiber.MethodOptions:
		return true
	}
	return false
}
