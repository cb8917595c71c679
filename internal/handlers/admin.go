package handlers

import (
	domainErrors "upilink/internal/errors"
	"upilink/internal/models"
	"upilink/internal/services/audit"
	"upilink/internal/services/user"
	"upilink/internal/utils"
	"upilink/internal/utils/pagination"
	"upilink/internal/utils/response"

	"github.com/gofiber/fiber/v2"
)

type AdminHandler struct {
	userService  user.Service
	auditService audit.Service
}

func NewAdminHandler(userService user.Service, auditService audit.Service) *AdminHandler {
	return &AdminHandler{
		userService:  userService,
		auditService: auditService,
	}
}

func (h *AdminHandler) ListUsers(c *fiber.Ctx) error {
	identity, err := utils.GetIdentity(c)
	if err != nil {
		return domainErrors.ErrUnauthenticated
	}

	p := pagination.ParseFromRequest(c)
	users, total, err := h.userService.List(c.UserContext(), identity, p.Limit, p.Offset)
	if err != nil {
		return err
	}

	p.Total = total
	return c.JSON(pagination.Response(p, users))
}

// UpdateUserRole changes a role and forces the user to sign in again.
func (h *AdminHandler) UpdateUserRole(c *fiber.Ctx) error {
	identity, err := utils.GetIdentity(c)
	if err != nil {
		return domainErrors.ErrUnauthenticated
	}

	var input struct {
		Role string `json:"role"`
	}
	if err := c.BodyParser(&input); err != nil {
		return domainErrors.ErrInvalidRequest
	}

	updated, err := h.userService.UpdateRole(c.UserContext(), identity, c.Params("id"), input.Role, utils.RequestMeta(c))
	if err != nil {
		return err
	}
	return response.Success(c, "User role updated", updated)
}

// ListAuditLogs handles GET /api/admin/audit-logs?action=&performedBy=&targetId=.
func (h *AdminHandler) ListAuditLogs(c *fiber.Ctx) error {
	p := pagination.ParseFromRequest(c)
	logs, total, err := h.auditService.List(c.UserContext(), models.AuditFilter{
		Action:      c.Query("action"),
		PerformedBy: c.Query("performedBy"),
		TargetID:    c.Query("targetId"),
		Limit:       p.Limit,
		Offset:      p.Offset,
	})
	if err != nil {
		return err
	}

	p.Total = total
	return c.JSON(pagination.Response(p, logs))
}
