package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// OrderStatus is a state of the order lifecycle.
type OrderStatus string

const (
	OrderStatusPending             OrderStatus = "pending"
	OrderStatusPendingVerification OrderStatus = "pending-verification"
	OrderStatusCompleted           OrderStatus = "completed"
	OrderStatusFailed              OrderStatus = "failed"
	OrderStatusExpired             OrderStatus = "expired"
)

// AllOrderStatuses lists every status, in lifecycle order.
var AllOrderStatuses = []OrderStatus{
	OrderStatusPending,
	OrderStatusPendingVerification,
	OrderStatusCompleted,
	OrderStatusFailed,
	OrderStatusExpired,
}

// orderTransitions is the allowed edge set. Terminal states have no entry.
var orderTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusPending:             {OrderStatusPendingVerification, OrderStatusExpired},
	OrderStatusPendingVerification: {OrderStatusCompleted, OrderStatusFailed},
}

// ParseOrderStatus validates s.
func ParseOrderStatus(s string) (OrderStatus, bool) {
	for _, st := range AllOrderStatuses {
		if string(st) == s {
			return st, true
		}
	}
	return "", false
}

// IsTerminal reports whether no transition leaves s.
func (s OrderStatus) IsTerminal() bool {
	return len(orderTransitions[s]) == 0
}

// CanTransitionTo reports whether s -> next is an edge of the lifecycle graph.
func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	for _, n := range orderTransitions[s] {
		if n == next {
			return true
		}
	}
	return false
}

// Metadata keys stored on Order.Metadata.
const (
	MetaIPAddress      = "ip_address"
	MetaUserAgent      = "user_agent"
	MetaUTRSubmittedAt = "utr_submitted_at"
	MetaUTRSubmittedIP = "utr_submitted_ip"
	MetaUTRSubmittedUA = "utr_submitted_ua"
	MetaDecidedBy      = "decided_by"
	MetaDecidedAt      = "decided_at"
	MetaExpiredAt      = "expired_at"
	MetaNote           = "note"
)

// Order is a payment request. Amount is a fixed-point decimal stored as
// numeric(12,2); it is never handled as a float.
type Order struct {
	ID             uint              `gorm:"primarykey" json:"-"`
	OrderID        string            `gorm:"uniqueIndex;size:32;not null" json:"order_id"`
	Amount         decimal.Decimal   `gorm:"type:numeric(12,2);not null" json:"amount"`
	MerchantName   string            `gorm:"size:100;not null" json:"merchant_name"`
	VPA            string            `gorm:"column:vpa;size:256;not null" json:"vpa"`
	Status         OrderStatus       `gorm:"size:32;not null;default:'pending';index" json:"status"`
	UTR            *string           `gorm:"column:utr;size:20" json:"utr,omitempty"`
	CreatedBy      string            `gorm:"size:64;not null;index" json:"created_by"`
	ExpiresAt      time.Time         `gorm:"not null;index" json:"expires_at"`
	PaymentPageURL string            `gorm:"size:512" json:"payment_page_url"`
	UPIDeepLink    string            `gorm:"column:upi_deep_link;size:1024" json:"upi_deep_link"`
	Metadata       datatypes.JSONMap `gorm:"type:jsonb" json:"metadata,omitempty"`
	CreatedAt      time.Time         `json:"created_at"`
	UpdatedAt      time.Time         `json:"updated_at"`
}

// IsExpired reports whether the validity window has closed at now.
func (o *Order) IsExpired(now time.Time) bool {
	return !now.Before(o.ExpiresAt)
}

// CanSubmitUTR is derived on every read and never persisted.
func (o *Order) CanSubmitUTR(now time.Time) bool {
	return o.Status == OrderStatusPending && !o.IsExpired(now)
}

// RemainingSeconds is the time left before expiry, floored at zero.
func (o *Order) RemainingSeconds(now time.Time) int64 {
	if o.IsExpired(now) {
		return 0
	}
	return int64(o.ExpiresAt.Sub(now) / time.Second)
}

// OrderFilter narrows order listings.
type OrderFilter struct {
	Status    *OrderStatus
	CreatedBy string
	Limit     int
	Offset    int
}
