// Package middleware provides HTTP middleware components for the application.
// It includes authentication, session tracking, rate limiting and CSRF
// protection for the fiber web framework.
package middleware

import (
	"log"
	"strings"

	domainErrors "upilink/internal/errors"
	"upilink/internal/models"
	"upilink/internal/services/audit"
	"upilink/internal/services/auth"
	"upilink/internal/services/session"
	"upilink/internal/utils"

	"github.com/gofiber/fiber/v2"
)

// AccessTokenCookie carries the access token for browser clients that do not
// send an Authorization header.
const AccessTokenCookie = "access_token"

// AuthMiddleware resolves the caller's identity and validates the tracked
// session behind it.
type AuthMiddleware struct {
	authService auth.Service
	tracker     *session.Tracker
	audit       audit.Service
}

func NewAuthMiddleware(authService auth.Service, tracker *session.Tracker, auditSvc audit.Service) *AuthMiddleware {
	if authService == nil {
		panic("auth service is required")
	}
	if tracker == nil {
		panic("session tracker is required")
	}
	if auditSvc == nil {
		panic("audit service is required")
	}
	return &AuthMiddleware{
		authService: authService,
		tracker:     tracker,
		audit:       auditSvc,
	}
}

// Handler authenticates the request and stores the identity in the context.
// It checks for:
// - a Bearer token, or the access token cookie
// - a valid token for an active account at the current token version
// - a live session, whose activity time is refreshed
func (m *AuthMiddleware) Handler(c *fiber.Ctx) error {
	token := bearerToken(c)
	if token == "" {
		return domainErrors.ErrUnauthenticated
	}

	identity, err := m.authService.Authenticate(c.UserContext(), token)
	if err != nil {
		return err
	}

	meta := utils.RequestMeta(c)
	res, err := m.tracker.Validate(c.UserContext(), identity.SessionID, meta)
	if err != nil {
		return err
	}
	if res.IPChanged {
		m.audit.RecordAsync(audit.Entry{
			Action:      models.AuditSessionIPChanged,
			TargetID:    identity.SessionID,
			PerformedBy: identity.UserID,
			Details: map[string]interface{}{
				"previous_ip": res.PreviousIP,
				"current_ip":  meta.IPAddress,
			},
			Meta: meta,
		})
	}

	c.Locals(utils.LocalsIdentity, identity)
	return c.Next()
}

// Require returns a middleware that checks for a capability on the
// authenticated identity.
func Require(capability models.Capability) fiber.Handler {
	return func(c *fiber.Ctx) error {
		identity, err := utils.GetIdentity(c)
		if err != nil {
			return domainErrors.ErrUnauthenticated
		}
		if !identity.Can(capability) {
			log.Printf("Access denied: user %s (%s) lacks %s", identity.UserID, identity.Role, capability)
			return domainErrors.ErrForbidden
		}
		return c.Next()
	}
}

func bearerToken(c *fiber.Ctx) string {
	authHeader := c.Get(fiber.HeaderAuthorization)
	if authHeader != "" {
		if !strings.HasPrefix(authHeader, "Bearer ") {
			return ""
		}
		return strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
	}
	return c.Cookies(AccessTokenCookie)
}
