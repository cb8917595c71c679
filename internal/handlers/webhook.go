package handlers

import (
	"encoding/json"
	"log"

	domainErrors "upilink/internal/errors"
	"upilink/internal/services/user"
	"upilink/internal/utils"

	"github.com/gofiber/fiber/v2"
)

const (
	HeaderSignature = "X-Signature"

	EventUserRoleChanged = "user.role_changed"
)

type webhookEvent struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// WebhookHandler receives identity-provider events signed with HMAC-SHA256.
type WebhookHandler struct {
	userService user.Service
	secret      string
}

func NewWebhookHandler(userService user.Service, secret string) *WebhookHandler {
	if secret == "" {
		log.Println("IDENTITY_WEBHOOK_SECRET is not set; identity webhooks will be rejected")
	}
	return &WebhookHandler{userService: userService, secret: secret}
}

// IdentityEvent verifies the signature over the raw body and acknowledges
// every authentic event, including ones it does not act on.
func (h *WebhookHandler) IdentityEvent(c *fiber.Ctx) error {
	body := c.Body()
	if !utils.VerifySignature(h.secret, body, c.Get(HeaderSignature)) {
		log.Printf("Rejected identity webhook from %s: bad signature", c.IP())
		return domainErrors.ErrInvalidSignature
	}

	var event webhookEvent
	if err := json.Unmarshal(body, &event); err != nil {
		log.Printf("Ignoring malformed identity webhook: %v", err)
		return c.JSON(fiber.Map{"received": true, "processed": false})
	}

	switch event.Type {
	case EventUserRoleChanged:
		var change user.RoleChangedEvent
		if err := json.Unmarshal(event.Data, &change); err != nil || change.UserID == "" {
			log.Printf("Ignoring %s webhook without a user id", event.Type)
			return c.JSON(fiber.Map{"received": true, "processed": false})
		}
		h.userService.RecordRoleChanged(change, utils.RequestMeta(c))
		log.Printf("Identity webhook: role of %s changed from %q to %q", change.UserID, change.OldRole, change.NewRole)
		return c.JSON(fiber.Map{"received": true, "processed": true})
	default:
		log.Printf("Ignoring identity webhook of type %q", event.Type)
		return c.JSON(fiber.Map{"received": true, "processed": false})
	}
}
