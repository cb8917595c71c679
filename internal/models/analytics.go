package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// AnalyticsRange is the inclusive reporting window.
type AnalyticsRange struct {
	Start time.Time `json:"start_date"`
	End   time.Time `json:"end_date"`
}

// UserActivity is the audit action count of one actor.
type UserActivity struct {
	UserID      string `json:"user_id"`
	DisplayName string `json:"display_name"`
	Actions     int64  `json:"actions"`
}

// OrderStats aggregates orders created within the range. Rates are
// percentages rounded for display and never persisted.
type OrderStats struct {
	Total          int64                 `json:"total"`
	ByStatus       map[OrderStatus]int64 `json:"by_status"`
	ConversionRate float64               `json:"conversion_rate"`
	FailureRate    float64               `json:"failure_rate"`
	ExpiryRate     float64               `json:"expiry_rate"`
}

// TopPerformer ranks order creators by completed orders.
type TopPerformer struct {
	UserID          string          `json:"user_id"`
	DisplayName     string          `json:"display_name"`
	CompletedOrders int64           `json:"completed_orders"`
	CompletedAmount decimal.Decimal `json:"completed_amount"`
}

// AnalyticsReport is the admin analytics payload.
type AnalyticsReport struct {
	Range         AnalyticsRange   `json:"range"`
	ActionCounts  map[string]int64 `json:"action_counts"`
	UserActivity  []UserActivity   `json:"user_activity"`
	Orders        OrderStats       `json:"orders"`
	TopPerformers []TopPerformer   `json:"top_performers"`
}
