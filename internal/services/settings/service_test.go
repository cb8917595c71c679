package settings

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	domainErrors "upilink/internal/errors"
	"upilink/internal/models"
	"upilink/internal/repositories/cache"
	"upilink/internal/repositories/repotest"
	"upilink/internal/services/audit"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var meta = models.RequestMeta{IPAddress: "198.51.100.4", UserAgent: "test"}

func setup() (Service, *repotest.SettingsRepository, *repotest.AuditRepository) {
	repo := repotest.NewSettingsRepository()
	auditRepo := repotest.NewAuditRepository()
	svc := NewService(repo, repotest.Transactor{}, audit.NewService(auditRepo, nil, nil), cache.NewMemoryCache())
	return svc, repo, auditRepo
}

func admin() *models.Identity {
	return models.NewIdentity("admin-1", "admin@example.com", models.RoleAdmin, "sid")
}

func TestGet_MaterializesDefaults(t *testing.T) {
	svc, _, _ := setup()

	s, err := svc.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, models.DefaultTimerDuration, s.TimerDuration)
	assert.Nil(t, s.StaticUPIID)
	assert.Equal(t, models.DefaultUPIAppFlags(), s.Apps())
}

func TestGet_IsCached(t *testing.T) {
	svc, repo, _ := setup()
	ctx := context.Background()

	_, err := svc.Get(ctx)
	require.NoError(t, err)
	_, err = svc.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, repo.Gets)
}

func TestUpdate_DropsStaleCopyCachedDuringCommit(t *testing.T) {
	repo := repotest.NewSettingsRepository()
	c := cache.NewMemoryCache()
	svc := NewService(repo, repotest.Transactor{}, audit.NewService(repotest.NewAuditRepository(), nil, nil), c).(*service)
	svc.reinvalidateAfter = 100 * time.Millisecond
	ctx := context.Background()

	stale, err := svc.Get(ctx)
	require.NoError(t, err)

	timer := 30
	_, err = svc.Update(ctx, admin(), models.SettingsPatch{TimerDuration: &timer}, meta)
	require.NoError(t, err)

	// A reader that loaded the old row before the commit writes it back.
	require.NoError(t, c.SetWithTTL(ctx, cacheKey, stale, cacheTTL))
	got, err := svc.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.DefaultTimerDuration, got.TimerDuration)

	assert.Eventually(t, func() bool {
		got, err := svc.Get(ctx)
		return err == nil && got.TimerDuration == 30
	}, time.Second, 10*time.Millisecond)
}

func TestUpdate_AppliesPatchAndRecordsHistory(t *testing.T) {
	svc, repo, auditRepo := setup()
	ctx := context.Background()

	// warm the cache so the update has to invalidate it
	_, err := svc.Get(ctx)
	require.NoError(t, err)

	timer := 15
	vpa := "shop@OKAXIS"
	updated, err := svc.Update(ctx, admin(), models.SettingsPatch{
		TimerDuration:  &timer,
		StaticUPIID:    &vpa,
		EnabledUPIApps: map[string]bool{"PayTM": false},
	}, meta)
	require.NoError(t, err)
	assert.Equal(t, 15, updated.TimerDuration)
	assert.Equal(t, "shop@okaxis", updated.EffectiveStaticUPIID())
	assert.False(t, updated.Apps()[models.UPIAppPaytm])
	assert.True(t, updated.Apps()[models.UPIAppGPay])
	assert.Equal(t, "admin-1", updated.UpdatedBy)

	got, err := svc.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, 15, got.TimerDuration, "cache was invalidated")

	history, total, err := svc.History(ctx, admin(), 10, 0)
	require.NoError(t, err)
	require.EqualValues(t, 1, total)
	assert.Equal(t, ActionUpdate, history[0].Action)
	assert.Contains(t, history[0].Changes, "timer_duration")
	assert.Contains(t, history[0].Changes, "static_upi_id")
	assert.Contains(t, history[0].Changes, "enabled_upi_apps.paytm")
	assert.NotContains(t, history[0].Changes, "enabled_upi_apps.gpay")

	var prev snapshot
	require.NoError(t, json.Unmarshal(history[0].Previous, &prev))
	assert.Equal(t, models.DefaultTimerDuration, prev.TimerDuration)

	assert.Equal(t, 1, auditRepo.Count(models.AuditSettingsUpdated))
	assert.GreaterOrEqual(t, repo.Gets, 2)
}

func TestUpdate_RejectsInvalidPatch(t *testing.T) {
	svc, _, auditRepo := setup()
	ctx := context.Background()

	tooLong := 61
	_, err := svc.Update(ctx, admin(), models.SettingsPatch{TimerDuration: &tooLong}, meta)
	assert.ErrorIs(t, err, domainErrors.ErrInvalidTimerDuration)

	_, err = svc.Update(ctx, admin(), models.SettingsPatch{EnabledUPIApps: map[string]bool{"venmo": true}}, meta)
	assert.ErrorIs(t, err, domainErrors.ErrUnknownUPIApp)

	bad := "not-a-vpa"
	_, err = svc.Update(ctx, admin(), models.SettingsPatch{StaticUPIID: &bad}, meta)
	assert.ErrorIs(t, err, domainErrors.ErrInvalidStaticUPIID)

	assert.Empty(t, auditRepo.Entries())
}

func TestUpdate_RequiresCapability(t *testing.T) {
	svc, _, _ := setup()
	timer := 5

	_, err := svc.Update(context.Background(), nil, models.SettingsPatch{TimerDuration: &timer}, meta)
	assert.ErrorIs(t, err, domainErrors.ErrUnauthenticated)

	merchant := models.NewIdentity("m1", "m@example.com", models.RoleMerchant, "sid")
	_, err = svc.Update(context.Background(), merchant, models.SettingsPatch{TimerDuration: &timer}, meta)
	assert.ErrorIs(t, err, domainErrors.ErrForbidden)
}

func TestUpdate_AuditFailureFailsUpdate(t *testing.T) {
	svc, _, auditRepo := setup()
	auditRepo.Err = assert.AnError
	timer := 5

	_, err := svc.Update(context.Background(), admin(), models.SettingsPatch{TimerDuration: &timer}, meta)
	require.Error(t, err)
	assert.Equal(t, domainErrors.KindInternal, domainErrors.KindOf(err))
}

func TestResetToDefaults(t *testing.T) {
	svc, _, auditRepo := setup()
	ctx := context.Background()

	timer := 30
	vpa := "shop@okaxis"
	_, err := svc.Update(ctx, admin(), models.SettingsPatch{
		TimerDuration:  &timer,
		StaticUPIID:    &vpa,
		EnabledUPIApps: map[string]bool{"bhim": false},
	}, meta)
	require.NoError(t, err)

	reset, err := svc.ResetToDefaults(ctx, admin(), meta)
	require.NoError(t, err)
	assert.Equal(t, models.DefaultTimerDuration, reset.TimerDuration)
	assert.Nil(t, reset.StaticUPIID)
	assert.Equal(t, models.DefaultUPIAppFlags(), reset.Apps())

	history, total, err := svc.History(ctx, admin(), 10, 0)
	require.NoError(t, err)
	assert.EqualValues(t, 2, total)
	assert.Equal(t, ActionReset, history[0].Action)
	assert.Equal(t, 1, auditRepo.Count(models.AuditSettingsReset))
}
