// Package order implements the order lifecycle: creation, lazy expiry, UTR
// submission and the verification decision.
//
// Every status change is a conditional update on the previous status, so at
// most one of several concurrent transitions on the same order wins. Reads
// may expire an order as a side effect.
package order

import (
	"context"
	"errors"
	"log"
	"time"

	"upilink/internal/domain/upi"
	domainErrors "upilink/internal/errors"
	"upilink/internal/metrics"
	"upilink/internal/models"
	"upilink/internal/repositories"
	"upilink/internal/services/audit"
	"upilink/internal/services/settings"
	"upilink/internal/utils"
	"upilink/internal/validation"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

const createAttempts = 2

// CreateInput is the caller-supplied part of a new order.
type CreateInput struct {
	Amount       decimal.Decimal
	MerchantName string
	VPA          string
}

// ListInput narrows List. Status is optional.
type ListInput struct {
	Status string
	Limit  int
	Offset int
}

type Service interface {
	Create(ctx context.Context, actor *models.Identity, in CreateInput, meta models.RequestMeta) (*models.Order, error)
	// Get reads an order, expiring it first when it is pending and overdue.
	Get(ctx context.Context, orderID string) (*models.Order, error)
	List(ctx context.Context, actor *models.Identity, in ListInput) ([]models.Order, int64, error)
	SubmitUTR(ctx context.Context, orderID, utr string, meta models.RequestMeta) (*models.Order, error)
	Decide(ctx context.Context, actor *models.Identity, orderID, outcome, note string, meta models.RequestMeta) (*models.Order, error)
	// ExpireOverdue expires up to limit overdue pending orders and reports how many it won.
	ExpireOverdue(ctx context.Context, limit int) (int, error)

	View(ctx context.Context, order *models.Order) (*View, error)
	QRCode(ctx context.Context, orderID string, size int) ([]byte, error)
}

type service struct {
	orders   repositories.OrderRepository
	settings settings.Service
	audit    audit.Service
	tx       repositories.Transactor
	metrics  metrics.Collector
	baseURL  string
	now      func() time.Time
	newID    func() string
}

// Option customizes the service.
type Option func(*service)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *service) { s.now = now }
}

// WithIDGenerator replaces utils.GenerateOrderID.
func WithIDGenerator(gen func() string) Option {
	return func(s *service) { s.newID = gen }
}

func NewService(
	orders repositories.OrderRepository,
	settingsSvc settings.Service,
	auditSvc audit.Service,
	tx repositories.Transactor,
	collector metrics.Collector,
	baseURL string,
	opts ...Option,
) Service {
	if orders == nil {
		panic("order repository is required")
	}
	if settingsSvc == nil {
		panic("settings service is required")
	}
	if auditSvc == nil {
		panic("audit service is required")
	}
	if tx == nil {
		panic("transactor is required")
	}
	if collector == nil {
		collector = metrics.Noop{}
	}
	s := &service{
		orders:   orders,
		settings: settingsSvc,
		audit:    auditSvc,
		tx:       tx,
		metrics:  collector,
		baseURL:  baseURL,
		now:      time.Now,
		newID:    utils.GenerateOrderID,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *service) Create(ctx context.Context, actor *models.Identity, in CreateInput, meta models.RequestMeta) (*models.Order, error) {
	if actor == nil {
		return nil, domainErrors.ErrUnauthenticated
	}
	if !actor.Can(models.CapCreateOrder) {
		return nil, domainErrors.ErrForbidden
	}

	if err := validation.ValidateAmount(in.Amount); err != nil {
		return nil, err
	}
	merchantName, err := validation.ValidateMerchantName(in.MerchantName)
	if err != nil {
		return nil, err
	}

	cfg, err := s.settings.Get(ctx)
	if err != nil {
		return nil, err
	}

	vpa := validation.NormalizeVPA(in.VPA)
	if static := cfg.EffectiveStaticUPIID(); static != "" {
		if vpa != "" {
			if err := validation.ValidateVPA(vpa); err != nil {
				return nil, err
			}
		}
		vpa = static
	} else if err := validation.ValidateVPA(vpa); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	var order *models.Order
	for attempt := 1; attempt <= createAttempts; attempt++ {
		candidate := s.buildOrder(s.newID(), in.Amount, merchantName, vpa, actor.UserID, now, now.Add(cfg.TimerDurationValue()), meta)

		err = s.tx.WithinTransaction(ctx, func(ctx context.Context) error {
			if err := s.orders.Create(ctx, candidate); err != nil {
				return err
			}
			return s.audit.Record(ctx, audit.Entry{
				Action:      models.AuditOrderCreated,
				TargetID:    candidate.OrderID,
				PerformedBy: actor.UserID,
				Details: map[string]interface{}{
					"amount":        candidate.Amount.StringFixed(2),
					"merchant_name": candidate.MerchantName,
					"vpa":           candidate.VPA,
					"expires_at":    candidate.ExpiresAt,
				},
				Meta: meta,
			})
		})
		if err == nil {
			order = candidate
			break
		}
		if !errors.Is(err, repositories.ErrDuplicateKey) {
			return nil, domainErrors.FromStore(err)
		}
		log.Printf("Order id collision on %s, attempt %d", candidate.OrderID, attempt)
	}
	if order == nil {
		return nil, domainErrors.ErrOrderIDCollision
	}

	log.Printf("Order %s created by %s, amount %s, expires %s", order.OrderID, actor.UserID, order.Amount.StringFixed(2), order.ExpiresAt.Format(time.RFC3339))
	return order, nil
}

func (s *service) buildOrder(orderID string, amount decimal.Decimal, merchantName, vpa, createdBy string, now, expiresAt time.Time, meta models.RequestMeta) *models.Order {
	params := upi.PaymentParams{
		VPA:          vpa,
		MerchantName: merchantName,
		Amount:       amount,
		Note:         upi.NoteFor(merchantName, orderID),
		OrderID:      orderID,
	}
	return &models.Order{
		OrderID:        orderID,
		Amount:         amount.Round(2),
		MerchantName:   merchantName,
		VPA:            vpa,
		Status:         models.OrderStatusPending,
		CreatedBy:      createdBy,
		ExpiresAt:      expiresAt,
		PaymentPageURL: upi.PaymentPageURL(s.baseURL, orderID),
		UPIDeepLink:    upi.DeepLink(params),
		Metadata: datatypes.JSONMap{
			models.MetaIPAddress: meta.IPAddress,
			models.MetaUserAgent: meta.UserAgent,
		},
		CreatedAt: now,
	}
}

func (s *service) Get(ctx context.Context, orderID string) (*models.Order, error) {
	order, err := s.load(ctx, orderID)
	if err != nil {
		return nil, err
	}
	return s.expireIfOverdue(ctx, order)
}

func (s *service) load(ctx context.Context, orderID string) (*models.Order, error) {
	order, err := s.orders.GetByOrderID(ctx, orderID)
	if errors.Is(err, repositories.ErrRecordNotFound) {
		return nil, domainErrors.ErrOrderNotFound
	}
	if err != nil {
		return nil, domainErrors.FromStore(err)
	}
	return order, nil
}

// expireIfOverdue moves a pending, overdue order to expired. A lost race is
// not an error: the re-read shows whatever the winner wrote.
func (s *service) expireIfOverdue(ctx context.Context, order *models.Order) (*models.Order, error) {
	now := s.now()
	if order.Status != models.OrderStatusPending || !order.IsExpired(now) {
		return order, nil
	}

	won, err := s.expire(ctx, order, now)
	if err != nil {
		return nil, err
	}
	if won {
		order.Status = models.OrderStatusExpired
		return order, nil
	}
	return s.load(ctx, order.OrderID)
}

func (s *service) expire(ctx context.Context, order *models.Order, now time.Time) (bool, error) {
	metadata := copyMetadata(order.Metadata)
	metadata[models.MetaExpiredAt] = now.UTC().Format(time.RFC3339)

	won, err := s.orders.TransitionStatus(ctx, order.OrderID, models.OrderStatusPending, models.OrderStatusExpired, metadata)
	if err != nil {
		return false, domainErrors.FromStore(err)
	}
	if !won {
		return false, nil
	}

	order.Metadata = metadata
	s.metrics.OrderTransition(string(models.OrderStatusPending), string(models.OrderStatusExpired))
	s.audit.RecordAsync(audit.Entry{
		Action:      models.AuditOrderExpired,
		TargetID:    order.OrderID,
		PerformedBy: models.SystemActor,
		Details:     map[string]interface{}{"expires_at": order.ExpiresAt},
	})
	log.Printf("Order %s expired", order.OrderID)
	return true, nil
}

func (s *service) List(ctx context.Context, actor *models.Identity, in ListInput) ([]models.Order, int64, error) {
	if actor == nil {
		return nil, 0, domainErrors.ErrUnauthenticated
	}
	if !actor.Can(models.CapViewOwnOrders) && !actor.Can(models.CapViewAllOrders) {
		return nil, 0, domainErrors.ErrForbidden
	}

	filter := models.OrderFilter{Limit: in.Limit, Offset: in.Offset}
	if in.Status != "" {
		status, ok := models.ParseOrderStatus(in.Status)
		if !ok {
			return nil, 0, domainErrors.ErrInvalidStatusFilter
		}
		filter.Status = &status
	}
	if !actor.Can(models.CapViewAllOrders) {
		filter.CreatedBy = actor.UserID
	}

	orders, total, err := s.orders.List(ctx, filter)
	if err != nil {
		return nil, 0, domainErrors.FromStore(err)
	}
	for i := range orders {
		refreshed, err := s.expireIfOverdue(ctx, &orders[i])
		if err != nil {
			return nil, 0, err
		}
		orders[i] = *refreshed
	}
	return orders, total, nil
}

func (s *service) SubmitUTR(ctx context.Context, orderID, utr string, meta models.RequestMeta) (*models.Order, error) {
	order, err := s.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if err := submitConflict(order); err != nil {
		return nil, err
	}

	normalized, err := validation.NormalizeUTR(utr)
	if err != nil {
		return nil, err
	}

	now := s.now()
	metadata := copyMetadata(order.Metadata)
	metadata[models.MetaUTRSubmittedAt] = now.UTC().Format(time.RFC3339)
	metadata[models.MetaUTRSubmittedIP] = meta.IPAddress
	metadata[models.MetaUTRSubmittedUA] = meta.UserAgent

	err = s.tx.WithinTransaction(ctx, func(ctx context.Context) error {
		won, err := s.orders.SubmitUTR(ctx, orderID, normalized, now, metadata)
		if err != nil {
			return err
		}
		if !won {
			return s.classifyLostSubmit(ctx, orderID)
		}
		return s.audit.Record(ctx, audit.Entry{
			Action:      models.AuditOrderUTRSubmitted,
			TargetID:    orderID,
			PerformedBy: models.SystemActor,
			Details:     map[string]interface{}{"utr": maskUTR(normalized)},
			Meta:        meta,
		})
	})
	if err != nil {
		return nil, domainErrors.FromStore(err)
	}

	s.metrics.OrderTransition(string(models.OrderStatusPending), string(models.OrderStatusPendingVerification))
	log.Printf("UTR %s submitted for order %s", maskUTR(normalized), orderID)
	return s.load(ctx, orderID)
}

// classifyLostSubmit explains why a conditional UTR update matched no row.
func (s *service) classifyLostSubmit(ctx context.Context, orderID string) error {
	current, err := s.load(ctx, orderID)
	if err != nil {
		return err
	}
	if err := submitConflict(current); err != nil {
		return err
	}
	if current.IsExpired(s.now()) {
		return domainErrors.ErrOrderExpired
	}
	return domainErrors.ErrOrderNotPending
}

// submitConflict returns the conflict that forbids a UTR on order, if any.
func submitConflict(order *models.Order) error {
	switch {
	case order.UTR != nil:
		return domainErrors.ErrUTRAlreadySubmitted
	case order.Status == models.OrderStatusExpired:
		return domainErrors.ErrOrderExpired
	case order.Status != models.OrderStatusPending:
		return domainErrors.ErrOrderNotPending
	}
	return nil
}

func (s *service) Decide(ctx context.Context, actor *models.Identity, orderID, outcome, note string, meta models.RequestMeta) (*models.Order, error) {
	if actor == nil {
		return nil, domainErrors.ErrUnauthenticated
	}
	if !actor.Can(models.CapDecideOrder) {
		return nil, domainErrors.ErrForbidden
	}
	status, err := validation.ParseOutcome(outcome)
	if err != nil {
		return nil, err
	}
	if len([]rune(note)) > validation.MaxNoteLength {
		note = string([]rune(note)[:validation.MaxNoteLength])
	}

	order, err := s.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !actor.Can(models.CapDecideAnyOrder) && order.CreatedBy != actor.UserID {
		return nil, domainErrors.ErrForbidden
	}
	if !order.Status.CanTransitionTo(status) {
		return nil, domainErrors.ErrOrderNotAwaitingVerification
	}

	now := s.now()
	metadata := copyMetadata(order.Metadata)
	metadata[models.MetaDecidedBy] = actor.UserID
	metadata[models.MetaDecidedAt] = now.UTC().Format(time.RFC3339)
	if note != "" {
		metadata[models.MetaNote] = note
	}

	err = s.tx.WithinTransaction(ctx, func(ctx context.Context) error {
		won, err := s.orders.TransitionStatus(ctx, orderID, models.OrderStatusPendingVerification, status, metadata)
		if err != nil {
			return err
		}
		if !won {
			return domainErrors.ErrOrderNotAwaitingVerification
		}
		return s.audit.Record(ctx, audit.Entry{
			Action:      models.AuditOrderStatusUpdated,
			TargetID:    orderID,
			PerformedBy: actor.UserID,
			Details: map[string]interface{}{
				"from": string(models.OrderStatusPendingVerification),
				"to":   string(status),
				"note": note,
			},
			Meta: meta,
		})
	})
	if err != nil {
		return nil, domainErrors.FromStore(err)
	}

	s.metrics.OrderTransition(string(models.OrderStatusPendingVerification), string(status))
	log.Printf("Order %s marked %s by %s", orderID, status, actor.UserID)
	return s.load(ctx, orderID)
}

func (s *service) ExpireOverdue(ctx context.Context, limit int) (int, error) {
	now := s.now()
	ids, err := s.orders.ListOverdue(ctx, now, limit)
	if err != nil {
		return 0, domainErrors.FromStore(err)
	}

	expired := 0
	for _, id := range ids {
		order, err := s.load(ctx, id)
		if err != nil {
			if errors.Is(err, domainErrors.ErrOrderNotFound) {
				continue
			}
			return expired, err
		}
		if order.Status != models.OrderStatusPending || !order.IsExpired(now) {
			continue
		}
		won, err := s.expire(ctx, order, now)
		if err != nil {
			return expired, err
		}
		if won {
			expired++
		}
	}
	return expired, nil
}

func copyMetadata(m datatypes.JSONMap) datatypes.JSONMap {
	out := make(datatypes.JSONMap, len(m)+4)
	for k, v := range m {
		out[k] = v
	}
	return out
}

// maskUTR keeps the last four characters for logs and audit details.
func maskUTR(utr string) string {
	if len(utr) <= 4 {
		return "****"
	}
	return "****" + utr[len(utr)-4:]
}
