package handlers

import (
	"encoding/json"
	"strconv"
	"strings"

	domainErrors "upilink/internal/errors"
	"upilink/internal/services/order"
	"upilink/internal/utils"
	"upilink/internal/utils/pagination"
	"upilink/internal/utils/response"
	"upilink/internal/validation"

	"github.com/gofiber/fiber/v2"
)

const maxQRSize = 1024

type OrderHandler struct {
	orderService order.Service
}

func NewOrderHandler(orderService order.Service) *OrderHandler {
	return &OrderHandler{orderService: orderService}
}

// CreateOrder handles POST /api/orders. The amount may be sent as a JSON
// number or string.
func (h *OrderHandler) CreateOrder(c *fiber.Ctx) error {
	identity, err := utils.GetIdentity(c)
	if err != nil {
		return domainErrors.ErrUnauthenticated
	}

	var input struct {
		Amount       json.RawMessage `json:"amount"`
		MerchantName string          `json:"merchantName"`
		VPA          string          `json:"vpa"`
	}
	if err := c.BodyParser(&input); err != nil {
		return domainErrors.ErrInvalidRequest
	}

	amount, err := validation.ParseAmount(strings.Trim(string(input.Amount), `"`))
	if err != nil {
		return err
	}

	created, err := h.orderService.Create(c.UserContext(), identity, order.CreateInput{
		Amount:       amount,
		MerchantName: input.MerchantName,
		VPA:          input.VPA,
	}, utils.RequestMeta(c))
	if err != nil {
		return err
	}

	view, err := h.orderService.View(c.UserContext(), created)
	if err != nil {
		return err
	}
	return response.Created(c, "Order created", view)
}

// ListOrders handles GET /api/orders?status=&page=&limit=.
func (h *OrderHandler) ListOrders(c *fiber.Ctx) error {
	identity, err := utils.GetIdentity(c)
	if err != nil {
		return domainErrors.ErrUnauthenticated
	}

	p := pagination.ParseFromRequest(c)
	orders, total, err := h.orderService.List(c.UserContext(), identity, order.ListInput{
		Status: c.Query("status"),
		Limit:  p.Limit,
		Offset: p.Offset,
	})
	if err != nil {
		return err
	}

	p.Total = total
	return c.JSON(pagination.Response(p, orders))
}

// GetOrder handles the public GET /api/orders/:orderId. Reading an overdue
// order expires it.
func (h *OrderHandler) GetOrder(c *fiber.Ctx) error {
	o, err := h.orderService.Get(c.UserContext(), c.Params("orderId"))
	if err != nil {
		return err
	}
	view, err := h.orderService.View(c.UserContext(), o)
	if err != nil {
		return err
	}
	return response.Success(c, "Order retrieved", view)
}

// SubmitUTR handles the public POST /api/orders/:orderId/utr.
func (h *OrderHandler) SubmitUTR(c *fiber.Ctx) error {
	var input struct {
		UTR string `json:"utr"`
	}
	if err := c.BodyParser(&input); err != nil {
		return domainErrors.ErrInvalidRequest
	}

	o, err := h.orderService.SubmitUTR(c.UserContext(), c.Params("orderId"), input.UTR, utils.RequestMeta(c))
	if err != nil {
		return err
	}
	view, err := h.orderService.View(c.UserContext(), o)
	if err != nil {
		return err
	}
	return response.Success(c, "UTR submitted, awaiting verification", view)
}

// DecideOrder handles POST /api/orders/:orderId/decision.
func (h *OrderHandler) DecideOrder(c *fiber.Ctx) error {
	identity, err := utils.GetIdentity(c)
	if err != nil {
		return domainErrors.ErrUnauthenticated
	}

	var input struct {
		Outcome string `json:"outcome"`
		Note    string `json:"note"`
	}
	if err := c.BodyParser(&input); err != nil {
		return domainErrors.ErrInvalidRequest
	}

	o, err := h.orderService.Decide(c.UserContext(), identity, c.Params("orderId"), input.Outcome, input.Note, utils.RequestMeta(c))
	if err != nil {
		return err
	}
	return response.Success(c, "Order "+string(o.Status), o)
}

// OrderQRCode handles GET /api/orders/:orderId/qr and returns a PNG.
func (h *OrderHandler) OrderQRCode(c *fiber.Ctx) error {
	size, err := strconv.Atoi(c.Query("size", "0"))
	if err != nil || size < 0 || size > maxQRSize {
		return domainErrors.ErrInvalidRequest.WithMessage("size must be between 0 and %d", maxQRSize)
	}

	png, err := h.orderService.QRCode(c.UserContext(), c.Params("orderId"), size)
	if err != nil {
		return err
	}
	c.Set(fiber.HeaderContentType, "image/png")
	c.Set(fiber.HeaderCacheControl, "no-store")
	return c.Send(png)
}
