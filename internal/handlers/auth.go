package handlers

import (
	"time"

	domainErrors "upilink/internal/errors"
	"upilink/internal/middleware"
	"upilink/internal/models"
	"upilink/internal/services/auth"
	"upilink/internal/utils"
	"upilink/internal/utils/response"

	"github.com/gofiber/fiber/v2"
)

const clearSiteData = `"cookies", "storage"`

type AuthHandler struct {
	authService   auth.Service
	secureCookies bool
}

func NewAuthHandler(authService auth.Service, secureCookies bool) *AuthHandler {
	return &AuthHandler{
		authService:   authService,
		secureCookies: secureCookies,
	}
}

// LoginUser handles user authentication and returns an access token bound to
// a new session.
func (h *AuthHandler) LoginUser(c *fiber.Ctx) error {
	var input struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := c.BodyParser(&input); err != nil {
		return domainErrors.ErrInvalidRequest
	}
	if input.Email == "" || input.Password == "" {
		return response.BadRequest(c, "Email and password are required")
	}

	res, err := h.authService.Login(c.UserContext(), input.Email, input.Password, utils.RequestMeta(c))
	if err != nil {
		return err
	}

	h.setAuthCookie(c, res.AccessToken, res.ExpiresAt)

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"access_token": res.AccessToken,
		"expires_at":   res.ExpiresAt,
		"session_id":   res.SessionID,
		"user": fiber.Map{
			"id":           res.User.ID,
			"email":        res.User.Email,
			"name":         res.User.Name,
			"role":         res.User.Role,
			"capabilities": models.CapabilitiesFor(res.User.Role).List(),
		},
	})
}

// Me returns the caller's identity.
func (h *AuthHandler) Me(c *fiber.Ctx) error {
	identity, err := utils.GetIdentity(c)
	if err != nil {
		return domainErrors.ErrUnauthenticated
	}
	sessions, err := h.authService.Sessions(c.UserContext(), identity)
	if err != nil {
		return err
	}
	active := make([]fiber.Map, 0, len(sessions))
	for _, s := range sessions {
		active = append(active, fiber.Map{
			"session_id":    s.SessionID,
			"ip_address":    s.IPAddress,
			"user_agent":    s.UserAgent,
			"created_at":    s.CreatedAt,
			"last_activity": s.LastActivity,
			"current":       s.SessionID == identity.SessionID,
		})
	}

	return c.JSON(fiber.Map{
		"id":           identity.UserID,
		"email":        identity.Email,
		"role":         identity.Role,
		"session_id":   identity.SessionID,
		"capabilities": identity.Capabilities.List(),
		"sessions":     active,
	})
}

// LogoutUser ends the current session.
func (h *AuthHandler) LogoutUser(c *fiber.Ctx) error {
	identity, err := utils.GetIdentity(c)
	if err != nil {
		return domainErrors.ErrUnauthenticated
	}

	if err := h.authService.Logout(c.UserContext(), identity, utils.RequestMeta(c)); err != nil {
		return err
	}

	h.clearAuthCookies(c)
	return c.JSON(fiber.Map{"message": "Successfully logged out"})
}

// LogoutAllDevices ends every session of the caller.
func (h *AuthHandler) LogoutAllDevices(c *fiber.Ctx) error {
	identity, err := utils.GetIdentity(c)
	if err != nil {
		return domainErrors.ErrUnauthenticated
	}

	n, err := h.authService.LogoutAll(c.UserContext(), identity, utils.RequestMeta(c))
	if err != nil {
		return err
	}

	h.clearAuthCookies(c)
	return c.JSON(fiber.Map{
		"message":          "Successfully logged out from all devices",
		"sessions_revoked": n,
	})
}

// CSRFToken returns the token the CSRF guard issued or accepted for this
// request.
func (h *AuthHandler) CSRFToken(c *fiber.Ctx) error {
	token, _ := c.Locals(middleware.LocalsCSRFToken).(string)
	if token == "" {
		return domainErrors.ErrInternal.WithMessage("CSRF token unavailable")
	}
	c.Set(fiber.HeaderCacheControl, "no-store")
	return c.JSON(fiber.Map{"csrf_token": token})
}

func (h *AuthHandler) setAuthCookie(c *fiber.Ctx, token string, expiresAt time.Time) {
	c.Cookie(&fiber.Cookie{
		Name:     middleware.AccessTokenCookie,
		Value:    token,
		Path:     "/",
		Expires:  expiresAt,
		HTTPOnly: true,
		Secure:   h.secureCookies,
		SameSite: fiber.CookieSameSiteStrictMode,
	})
}

func (h *AuthHandler) clearAuthCookies(c *fiber.Ctx) {
	for _, name := range []string{middleware.AccessTokenCookie, middleware.CSRFCookieName} {
		c.Cookie(&fiber.Cookie{
			Name:     name,
			Value:    "",
			Path:     "/",
			Expires:  time.Unix(0, 0),
			MaxAge:   -1,
			HTTPOnly: name == middleware.AccessTokenCookie,
			Secure:   h.secureCookies,
			SameSite: fiber.CookieSameSiteStrictMode,
		})
	}
	c.Set("Clear-Site-Data", clearSiteData)
}
