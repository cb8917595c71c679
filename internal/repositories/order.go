package repositories

import (
	"context"
	"time"

	"upilink/internal/models"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// OrderRepository persists orders. Status changes go through conditional
// updates only: a call reports false when the row was not in the expected
// state, so a lost race is visible to the caller.
type OrderRepository interface {
	Create(ctx context.Context, order *models.Order) error
	GetByOrderID(ctx context.Context, orderID string) (*models.Order, error)
	List(ctx context.Context, filter models.OrderFilter) ([]models.Order, int64, error)

	// TransitionStatus sets status to `to` only if it is currently `from`.
	TransitionStatus(ctx context.Context, orderID string, from, to models.OrderStatus, metadata datatypes.JSONMap) (bool, error)

	// SubmitUTR records utr and moves the order to pending-verification only
	// if it is pending, has no UTR yet and has not expired at now.
	SubmitUTR(ctx context.Context, orderID, utr string, now time.Time, metadata datatypes.JSONMap) (bool, error)

	// ListOverdue returns ids of pending orders whose expiry is at or before now.
	ListOverdue(ctx context.Context, now time.Time, limit int) ([]string, error)

	CountByStatus(ctx context.Context, since, until time.Time) (map[models.OrderStatus]int64, error)
	TopCreators(ctx context.Context, since, until time.Time, limit int) ([]CreatorStat, error)
}

// CreatorStat is the completed-order tally of one creator.
type CreatorStat struct {
	CreatedBy       string
	CompletedOrders int64
	CompletedAmount decimal.Decimal
}
