package auth

import (
	"context"
	"testing"
	"time"

	domainErrors "upilink/internal/errors"
	"upilink/internal/models"
	"upilink/internal/repositories/cache"
	"upilink/internal/repositories/repotest"
	"upilink/internal/services/audit"
	"upilink/internal/services/session"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

const testSecret = "test-secret"

var meta = models.RequestMeta{IPAddress: "198.51.100.20", UserAgent: "test"}

type fixture struct {
	svc       Service
	users     *repotest.UserRepository
	tracker   *session.Tracker
	audit     audit.Service
	auditRepo *repotest.AuditRepository
}

func newUser(t *testing.T, id, email, password string, role models.Role) *models.User {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	return &models.User{
		ID:           id,
		Email:        email,
		Name:         "User " + id,
		Password:     string(hash),
		Role:         role,
		Status:       models.UserStatusActive,
		TokenVersion: 1,
	}
}

func newFixture(t *testing.T, users ...*models.User) *fixture {
	t.Helper()
	f := &fixture{
		users:     repotest.NewUserRepository(users...),
		tracker:   session.NewTracker(cache.NewMemorySessionStore(), session.Config{}, nil),
		auditRepo: repotest.NewAuditRepository(),
	}
	f.audit = audit.NewService(f.auditRepo, nil, nil)
	f.svc = NewService(f.users, f.tracker, cache.NewMemoryCache(), f.audit, Config{
		JWTSecret:      testSecret,
		AccessTokenTTL: time.Hour,
		StoreTimeout:   time.Second,
	})
	return f
}

func TestLogin_IssuesTokenForTrackedSession(t *testing.T) {
	f := newFixture(t, newUser(t, "u1", "merchant@example.com", "s3cret-pass!", models.RoleMerchant))
	ctx := context.Background()

	res, err := f.svc.Login(ctx, " Merchant@Example.com ", "s3cret-pass!", meta)
	require.NoError(t, err)
	assert.NotEmpty(t, res.AccessToken)
	assert.NotEmpty(t, res.SessionID)
	assert.WithinDuration(t, time.Now().Add(time.Hour), res.ExpiresAt, 5*time.Second)

	sessions, err := f.tracker.ListForUser(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, res.SessionID, sessions[0].SessionID)

	identity, err := f.svc.Authenticate(ctx, res.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "u1", identity.UserID)
	assert.Equal(t, res.SessionID, identity.SessionID)
	assert.True(t, identity.Can(models.CapCreateOrder))
	assert.False(t, identity.Can(models.CapManageSettings))

	f.audit.Wait()
	assert.Equal(t, 1, f.auditRepo.Count(models.AuditUserLogin))
}

func TestLogin_Failures(t *testing.T) {
	disabled := newUser(t, "u2", "disabled@example.com", "s3cret-pass!", models.RoleViewer)
	disabled.Status = models.UserStatusDisabled
	f := newFixture(t,
		newUser(t, "u1", "merchant@example.com", "s3cret-pass!", models.RoleMerchant),
		disabled,
	)
	ctx := context.Background()

	_, err := f.svc.Login(ctx, "merchant@example.com", "wrong", meta)
	assert.ErrorIs(t, err, domainErrors.ErrInvalidCredentials)

	_, err = f.svc.Login(ctx, "nobody@example.com", "whatever", meta)
	assert.ErrorIs(t, err, domainErrors.ErrInvalidCredentials)

	_, err = f.svc.Login(ctx, "disabled@example.com", "s3cret-pass!", meta)
	assert.ErrorIs(t, err, domainErrors.ErrAccountDisabled)

	f.audit.Wait()
	assert.Equal(t, 3, f.auditRepo.Count(models.AuditUserLoginFailed))
	assert.Zero(t, f.auditRepo.Count(models.AuditUserLogin))
}

func TestAuthenticate_RejectsBadTokens(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Authenticate(context.Background(), "not-a-jwt")
	assert.ErrorIs(t, err, domainErrors.ErrInvalidToken)
}

func TestLogout_RevokesSession(t *testing.T) {
	f := newFixture(t, newUser(t, "u1", "m@example.com", "s3cret-pass!", models.RoleMerchant))
	ctx := context.Background()

	first, err := f.svc.Login(ctx, "m@example.com", "s3cret-pass!", meta)
	require.NoError(t, err)
	second, err := f.svc.Login(ctx, "m@example.com", "s3cret-pass!", meta)
	require.NoError(t, err)

	identity, err := f.svc.Authenticate(ctx, first.AccessToken)
	require.NoError(t, err)
	require.NoError(t, f.svc.Logout(ctx, identity, meta))

	_, err = f.svc.Authenticate(ctx, first.AccessToken)
	assert.ErrorIs(t, err, domainErrors.ErrSessionExpired)

	_, err = f.svc.Authenticate(ctx, second.AccessToken)
	assert.NoError(t, err, "other sessions are untouched")
}

func TestLogoutAll_RevokesEveryToken(t *testing.T) {
	f := newFixture(t, newUser(t, "u1", "m@example.com", "s3cret-pass!", models.RoleMerchant))
	ctx := context.Background()

	first, err := f.svc.Login(ctx, "m@example.com", "s3cret-pass!", meta)
	require.NoError(t, err)
	second, err := f.svc.Login(ctx, "m@example.com", "s3cret-pass!", meta)
	require.NoError(t, err)

	identity, err := f.svc.Authenticate(ctx, first.AccessToken)
	require.NoError(t, err)

	n, err := f.svc.LogoutAll(ctx, identity, meta)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	for _, tok := range []string{first.AccessToken, second.AccessToken} {
		_, err = f.svc.Authenticate(ctx, tok)
		assert.ErrorIs(t, err, domainErrors.ErrSessionExpired)
	}
}

func TestAuthenticate_RoleChangeForcesReauth(t *testing.T) {
	f := newFixture(t, newUser(t, "u1", "m@example.com", "s3cret-pass!", models.RoleMerchant))
	ctx := context.Background()

	res, err := f.svc.Login(ctx, "m@example.com", "s3cret-pass!", meta)
	require.NoError(t, err)
	require.NoError(t, f.users.UpdateRole(ctx, "u1", models.RoleViewer))

	_, err = f.svc.Authenticate(ctx, res.AccessToken)
	assert.ErrorIs(t, err, domainErrors.ErrSessionExpired)
}

func TestAuthenticate_StoreTimeoutIsRetryable(t *testing.T) {
	f := newFixture(t, newUser(t, "u1", "m@example.com", "s3cret-pass!", models.RoleMerchant))
	ctx := context.Background()

	res, err := f.svc.Login(ctx, "m@example.com", "s3cret-pass!", meta)
	require.NoError(t, err)

	slow := NewService(f.users, f.tracker, cache.NewMemoryCache(), f.audit, Config{
		JWTSecret:    testSecret,
		StoreTimeout: 20 * time.Millisecond,
	})
	f.users.Delay = 500 * time.Millisecond

	_, err = slow.Authenticate(ctx, res.AccessToken)
	require.Error(t, err)
	assert.Equal(t, domainErrors.KindExternalService, domainErrors.KindOf(err))
	de, ok := domainErrors.As(err)
	require.True(t, ok)
	assert.True(t, de.Retryable())
}
