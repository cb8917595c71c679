package handlers

import (
	domainErrors "upilink/internal/errors"
	"upilink/internal/services/analytics"
	"upilink/internal/utils"
	"upilink/internal/utils/response"

	"github.com/gofiber/fiber/v2"
)

type AnalyticsHandler struct {
	analyticsService analytics.Service
}

func NewAnalyticsHandler(analyticsService analytics.Service) *AnalyticsHandler {
	return &AnalyticsHandler{analyticsService: analyticsService}
}

// GetAnalytics handles GET /api/admin/analytics?startDate=&endDate=.
func (h *AnalyticsHandler) GetAnalytics(c *fiber.Ctx) error {
	identity, err := utils.GetIdentity(c)
	if err != nil {
		return domainErrors.ErrUnauthenticated
	}

	report, err := h.analyticsService.Report(c.UserContext(), identity, c.Query("startDate"), c.Query("endDate"))
	if err != nil {
		return err
	}
	return response.Success(c, "Analytics retrieved", report)
}
