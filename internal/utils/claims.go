package utils

import (
	"errors"

	"upilink/internal/models"

	"github.com/gofiber/fiber/v2"
)

// LocalsIdentity is the Locals key set by the auth middleware.
const LocalsIdentity = "identity"

// GetIdentity extracts the authenticated identity from the Fiber context.
// It returns an error if the identity is missing or of an invalid type.
func GetIdentity(c *fiber.Ctx) (*models.Identity, error) {
	v := c.Locals(LocalsIdentity)
	if v == nil {
		return nil, errors.New("identity not found in context")
	}

	identity, ok := v.(*models.Identity)
	if !ok {
		return nil, errors.New("invalid identity type")
	}
	return identity, nil
}

// RequestMeta is the caller provenance recorded with mutations.
func RequestMeta(c *fiber.Ctx) models.RequestMeta {
	return models.RequestMeta{
		IPAddress: c.IP(),
		UserAgent: c.Get(fiber.HeaderUserAgent),
	}
}
