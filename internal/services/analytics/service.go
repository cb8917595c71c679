// Package analytics aggregates audit and order activity for the admin console.
package analytics

import (
	"context"
	"time"

	domainErrors "upilink/internal/errors"
	"upilink/internal/models"
	"upilink/internal/repositories"
	"upilink/internal/services/audit"

	"github.com/shopspring/decimal"
)

const (
	dateLayout       = "2006-01-02"
	defaultRangeDays = 30
	userActivityTop  = 20
	topPerformersTop = 5
)

type Service interface {
	// Report covers [startDate, endDate], both YYYY-MM-DD and inclusive.
	// Empty dates default to the last 30 days.
	Report(ctx context.Context, actor *models.Identity, startDate, endDate string) (*models.AnalyticsReport, error)
}

type service struct {
	orders repositories.OrderRepository
	audits repositories.AuditRepository
	names  audit.Service
	now    func() time.Time
}

func NewService(orders repositories.OrderRepository, audits repositories.AuditRepository, names audit.Service) Service {
	if orders == nil {
		panic("order repository is required")
	}
	if audits == nil {
		panic("audit repository is required")
	}
	if names == nil {
		panic("audit service is required")
	}
	return &service{orders: orders, audits: audits, names: names, now: time.Now}
}

func (s *service) Report(ctx context.Context, actor *models.Identity, startDate, endDate string) (*models.AnalyticsReport, error) {
	if actor == nil {
		return nil, domainErrors.ErrUnauthenticated
	}
	if !actor.Can(models.CapViewAnalytics) {
		return nil, domainErrors.ErrForbidden
	}

	rng, err := ParseRange(startDate, endDate, s.now())
	if err != nil {
		return nil, err
	}

	actionCounts, err := s.audits.CountByAction(ctx, rng.Start, rng.End)
	if err != nil {
		return nil, domainErrors.FromStore(err)
	}

	actors, err := s.audits.TopActors(ctx, rng.Start, rng.End, userActivityTop)
	if err != nil {
		return nil, domainErrors.FromStore(err)
	}
	activity := make([]models.UserActivity, 0, len(actors))
	for _, a := range actors {
		activity = append(activity, models.UserActivity{
			UserID:      a.PerformedBy,
			DisplayName: s.names.DisplayName(ctx, a.PerformedBy),
			Actions:     a.Actions,
		})
	}

	byStatus, err := s.orders.CountByStatus(ctx, rng.Start, rng.End)
	if err != nil {
		return nil, domainErrors.FromStore(err)
	}

	creators, err := s.orders.TopCreators(ctx, rng.Start, rng.End, topPerformersTop)
	if err != nil {
		return nil, domainErrors.FromStore(err)
	}
	performers := make([]models.TopPerformer, 0, len(creators))
	for _, c := range creators {
		performers = append(performers, models.TopPerformer{
			UserID:          c.CreatedBy,
			DisplayName:     s.names.DisplayName(ctx, c.CreatedBy),
			CompletedOrders: c.CompletedOrders,
			CompletedAmount: c.CompletedAmount,
		})
	}

	return &models.AnalyticsReport{
		Range:         rng,
		ActionCounts:  actionCounts,
		UserActivity:  activity,
		Orders:        orderStats(byStatus),
		TopPerformers: performers,
	}, nil
}

// ParseRange resolves the report window. The end date covers its whole day.
func ParseRange(startDate, endDate string, now time.Time) (models.AnalyticsRange, error) {
	now = now.UTC()
	end := endOfDay(now)
	if endDate != "" {
		d, err := time.Parse(dateLayout, endDate)
		if err != nil {
			return models.AnalyticsRange{}, domainErrors.ErrInvalidDateRange
		}
		end = endOfDay(d)
	}

	start := startOfDay(end).AddDate(0, 0, -(defaultRangeDays - 1))
	if startDate != "" {
		d, err := time.Parse(dateLayout, startDate)
		if err != nil {
			return models.AnalyticsRange{}, domainErrors.ErrInvalidDateRange
		}
		start = d
	}

	if start.After(end) {
		return models.AnalyticsRange{}, domainErrors.ErrInvalidDateRange
	}
	return models.AnalyticsRange{Start: start, End: end}, nil
}

func orderStats(byStatus map[models.OrderStatus]int64) models.OrderStats {
	stats := models.OrderStats{ByStatus: make(map[models.OrderStatus]int64, len(models.AllOrderStatuses))}
	for _, st := range models.AllOrderStatuses {
		stats.ByStatus[st] = byStatus[st]
		stats.Total += byStatus[st]
	}
	stats.ConversionRate = rate(stats.ByStatus[models.OrderStatusCompleted], stats.Total)
	stats.FailureRate = rate(stats.ByStatus[models.OrderStatusFailed], stats.Total)
	stats.ExpiryRate = rate(stats.ByStatus[models.OrderStatusExpired], stats.Total)
	return stats
}

// rate is count/total*100 rounded to two decimals, 0 when total is 0.
func rate(count, total int64) float64 {
	if total == 0 {
		return 0
	}
	r := decimal.NewFromInt(count).
		Div(decimal.NewFromInt(total)).
		Mul(decimal.NewFromInt(100)).
		Round(2)
	f, _ := r.Float64()
	return f
}

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func endOfDay(t time.Time) time.Time {
	return startOfDay(t).Add(24*time.Hour - time.Nanosecond)
}
