package handlers

import (
	domainErrors "upilink/internal/errors"
	"upilink/internal/models"
	"upilink/internal/services/settings"
	"upilink/internal/utils"
	"upilink/internal/utils/pagination"
	"upilink/internal/utils/response"

	"github.com/gofiber/fiber/v2"
)

type SettingsHandler struct {
	settingsService settings.Service
}

func NewSettingsHandler(settingsService settings.Service) *SettingsHandler {
	return &SettingsHandler{settingsService: settingsService}
}

func (h *SettingsHandler) GetSettings(c *fiber.Ctx) error {
	s, err := h.settingsService.Get(c.UserContext())
	if err != nil {
		return err
	}
	return response.Success(c, "Settings retrieved", settingsBody(s))
}

// UpdateSettings applies a partial update. Absent fields are unchanged and an
// empty static_upi_id clears the override.
func (h *SettingsHandler) UpdateSettings(c *fiber.Ctx) error {
	identity, err := utils.GetIdentity(c)
	if err != nil {
		return domainErrors.ErrUnauthenticated
	}

	var patch models.SettingsPatch
	if err := c.BodyParser(&patch); err != nil {
		return domainErrors.ErrInvalidRequest
	}

	s, err := h.settingsService.Update(c.UserContext(), identity, patch, utils.RequestMeta(c))
	if err != nil {
		return err
	}
	return response.Success(c, "Settings updated", settingsBody(s))
}

func (h *SettingsHandler) ResetSettings(c *fiber.Ctx) error {
	identity, err := utils.GetIdentity(c)
	if err != nil {
		return domainErrors.ErrUnauthenticated
	}

	s, err := h.settingsService.ResetToDefaults(c.UserContext(), identity, utils.RequestMeta(c))
	if err != nil {
		return err
	}
	return response.Success(c, "Settings reset to defaults", settingsBody(s))
}

func (h *SettingsHandler) SettingsHistory(c *fiber.Ctx) error {
	identity, err := utils.GetIdentity(c)
	if err != nil {
		return domainErrors.ErrUnauthenticated
	}

	p := pagination.ParseFromRequest(c)
	history, total, err := h.settingsService.History(c.UserContext(), identity, p.Limit, p.Offset)
	if err != nil {
		return err
	}

	p.Total = total
	return c.JSON(pagination.Response(p, history))
}

func settingsBody(s *models.SystemSettings) fiber.Map {
	return fiber.Map{
		"timer_duration":   s.TimerDuration,
		"static_upi_id":    s.StaticUPIID,
		"enabled_upi_apps": s.Apps(),
		"updated_by":       s.UpdatedBy,
		"updated_at":       s.UpdatedAt,
	}
}
