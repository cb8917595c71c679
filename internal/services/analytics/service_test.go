package analytics

import (
	"context"
	"errors"
	"testing"
	"time"

	domainErrors "upilink/internal/errors"
	"upilink/internal/models"
	"upilink/internal/repositories/repotest"
	"upilink/internal/services/audit"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubNames map[string]string

func (n stubNames) DisplayName(ctx context.Context, userID string) (string, error) {
	if name, ok := n[userID]; ok {
		return name, nil
	}
	return "", errors.New("not found")
}

var admin = models.NewIdentity("admin-1", "admin@example.com", models.RoleAdmin, "sid")

func TestParseRange(t *testing.T) {
	now := time.Date(2024, 7, 15, 13, 45, 0, 0, time.UTC)

	rng, err := ParseRange("", "", now)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 6, 16, 0, 0, 0, 0, time.UTC), rng.Start)
	assert.Equal(t, time.Date(2024, 7, 15, 23, 59, 59, 999999999, time.UTC), rng.End)

	rng, err = ParseRange("2024-07-01", "2024-07-01", now)
	require.NoError(t, err)
	assert.Equal(t, 24*time.Hour-time.Nanosecond, rng.End.Sub(rng.Start))

	_, err = ParseRange("2024-07-10", "2024-07-01", now)
	assert.ErrorIs(t, err, domainErrors.ErrInvalidDateRange)

	_, err = ParseRange("07/01/2024", "", now)
	assert.ErrorIs(t, err, domainErrors.ErrInvalidDateRange)
}

func TestReport(t *testing.T) {
	ctx := context.Background()
	day := time.Date(2024, 7, 10, 10, 0, 0, 0, time.UTC)

	orders := repotest.NewOrderRepository()
	put := func(id, by string, status models.OrderStatus, amount int64, at time.Time) {
		orders.Put(&models.Order{OrderID: id, CreatedBy: by, Status: status, Amount: decimal.NewFromInt(amount), CreatedAt: at})
	}
	put("O1", "m1", models.OrderStatusCompleted, 100, day)
	put("O2", "m1", models.OrderStatusCompleted, 250, day)
	put("O3", "m2", models.OrderStatusCompleted, 40, day)
	put("O4", "m2", models.OrderStatusFailed, 10, day)
	put("O5", "m2", models.OrderStatusExpired, 10, day)
	put("O6", "m3", models.OrderStatusPending, 10, day)
	put("OLD", "m3", models.OrderStatusCompleted, 999, day.AddDate(0, -2, 0))

	audits := repotest.NewAuditRepository()
	for i, e := range []struct {
		action models.AuditAction
		by     string
	}{
		{models.AuditOrderCreated, "m1"},
		{models.AuditOrderCreated, "m1"},
		{models.AuditOrderCreated, "m2"},
		{models.AuditSettingsUpdated, "admin-1"},
		{models.AuditOrderExpired, models.SystemActor},
	} {
		require.NoError(t, audits.Append(ctx, &models.AuditLog{
			ID: string(rune('a' + i)), Action: e.action, PerformedBy: e.by, Timestamp: day,
		}))
	}

	names := audit.NewService(audits, stubNames{"m1": "Mona", "admin-1": "Ada"}, nil)
	svc := NewService(orders, audits, names)

	report, err := svc.Report(ctx, admin, "2024-07-01", "2024-07-31")
	require.NoError(t, err)

	assert.EqualValues(t, 3, report.ActionCounts[string(models.AuditOrderCreated)])
	assert.EqualValues(t, 1, report.ActionCounts[string(models.AuditSettingsUpdated)])

	require.NotEmpty(t, report.UserActivity)
	assert.Equal(t, "m1", report.UserActivity[0].UserID)
	assert.Equal(t, "Mona", report.UserActivity[0].DisplayName)
	assert.EqualValues(t, 2, report.UserActivity[0].Actions)
	byUser := map[string]string{}
	for _, a := range report.UserActivity {
		byUser[a.UserID] = a.DisplayName
	}
	assert.Equal(t, audit.UnknownUserName, byUser["m2"])
	assert.Equal(t, audit.SystemUserName, byUser[models.SystemActor])

	assert.EqualValues(t, 6, report.Orders.Total)
	assert.EqualValues(t, 3, report.Orders.ByStatus[models.OrderStatusCompleted])
	assert.EqualValues(t, 0, report.Orders.ByStatus[models.OrderStatusPendingVerification])
	assert.Equal(t, 50.0, report.Orders.ConversionRate)
	assert.Equal(t, 16.67, report.Orders.FailureRate)
	assert.Equal(t, 16.67, report.Orders.ExpiryRate)

	require.Len(t, report.TopPerformers, 2)
	assert.Equal(t, "m1", report.TopPerformers[0].UserID)
	assert.EqualValues(t, 2, report.TopPerformers[0].CompletedOrders)
	assert.True(t, decimal.NewFromInt(350).Equal(report.TopPerformers[0].CompletedAmount))
	assert.Equal(t, "m2", report.TopPerformers[1].UserID)
}

func TestReport_EmptyRangeHasZeroRates(t *testing.T) {
	svc := NewService(repotest.NewOrderRepository(), repotest.NewAuditRepository(),
		audit.NewService(repotest.NewAuditRepository(), nil, nil))

	report, err := svc.Report(context.Background(), admin, "2024-01-01", "2024-01-31")
	require.NoError(t, err)
	assert.Zero(t, report.Orders.Total)
	assert.Zero(t, report.Orders.ConversionRate)
	assert.Empty(t, report.TopPerformers)
}

func TestReport_RequiresCapability(t *testing.T) {
	svc := NewService(repotest.NewOrderRepository(), repotest.NewAuditRepository(),
		audit.NewService(repotest.NewAuditRepository(), nil, nil))
	merchant := models.NewIdentity("m1", "m@example.com", models.RoleMerchant, "sid")

	_, err := svc.Report(context.Background(), merchant, "", "")
	assert.ErrorIs(t, err, domainErrors.ErrForbidden)
}
