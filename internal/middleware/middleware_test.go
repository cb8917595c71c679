package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"upilink/internal/config"
	domainErrors "upilink/internal/errors"
	"upilink/internal/models"
	"upilink/internal/repositories/cache"
	"upilink/internal/repositories/repotest"
	"upilink/internal/services/audit"
	"upilink/internal/services/auth"
	"upilink/internal/services/ratelimit"
	"upilink/internal/services/session"
	"upilink/internal/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func newApp() *fiber.App {
	return fiber.New(fiber.Config{ErrorHandler: ErrorHandler})
}

func ok(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"ok": true})
}

func decode(t *testing.T, resp *http.Response) map[string]interface{} {
	t.Helper()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(body, &out))
	return out
}

func csrfCookie(resp *http.Response) *http.Cookie {
	for _, ck := range resp.Cookies() {
		if ck.Name == CSRFCookieName {
			return ck
		}
	}
	return nil
}

func TestCSRFGuard(t *testing.T) {
	auditRepo := repotest.NewAuditRepository()
	auditSvc := audit.NewService(auditRepo, nil, nil)
	guard := NewCSRFGuard(CSRFConfig{Exempt: []string{"/hook"}}, auditSvc, nil)

	app := newApp()
	app.Use(guard.Handler)
	app.Get("/thing", ok)
	app.Post("/thing", ok)
	app.Post("/hook", ok)

	resp, err := app.Test(httptest.NewRequest(fiber.MethodGet, "/thing", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode, "GET needs no token")
	issued := csrfCookie(resp)
	require.NotNil(t, issued)
	assert.Len(t, issued.Value, 43)
	assert.False(t, issued.HttpOnly)
	assert.Equal(t, http.SameSiteStrictMode, issued.SameSite)

	resp, err = app.Test(httptest.NewRequest(fiber.MethodPost, "/thing", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusForbidden, resp.StatusCode)
	assert.Equal(t, "CSRF_TOKEN_INVALID", decode(t, resp)["code"])

	req := httptest.NewRequest(fiber.MethodPost, "/thing", nil)
	req.AddCookie(&http.Cookie{Name: CSRFCookieName, Value: issued.Value})
	req.Header.Set(CSRFHeaderName, issued.Value+"x")
	resp, err = app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusForbidden, resp.StatusCode, "mismatched token")

	req = httptest.NewRequest(fiber.MethodPost, "/thing", nil)
	req.AddCookie(&http.Cookie{Name: CSRFCookieName, Value: issued.Value})
	req.Header.Set(CSRFHeaderName, issued.Value)
	resp, err = app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	resp, err = app.Test(httptest.NewRequest(fiber.MethodPost, "/hook", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode, "exempt path")

	auditSvc.Wait()
	assert.Equal(t, 2, auditRepo.Count(models.AuditCSRFRejected))
}

func TestCSRFGuard_ExemptPathVariants(t *testing.T) {
	auditRepo := repotest.NewAuditRepository()
	auditSvc := audit.NewService(auditRepo, nil, nil)
	guard := NewCSRFGuard(CSRFConfig{Exempt: []string{"/api/webhooks/identity/"}}, auditSvc, nil)

	app := newApp()
	app.Use(guard.Handler)
	app.Post("/api/webhooks/identity", ok)
	app.Post("/api/webhooks", ok)

	for _, path := range []string{"/api/webhooks/identity", "/api/webhooks/identity/", "/API/Webhooks/Identity/"} {
		resp, err := app.Test(httptest.NewRequest(fiber.MethodPost, path, nil))
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusOK, resp.StatusCode, path)
	}

	resp, err := app.Test(httptest.NewRequest(fiber.MethodPost, "/api/webhooks/", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusForbidden, resp.StatusCode, "parent path is not exempt")

	assert.Equal(t, "/", routePath("/"))
	assert.Equal(t, "/", routePath("///"))

	auditSvc.Wait()
	assert.Equal(t, 1, auditRepo.Count(models.AuditCSRFRejected))
}

func TestCSRFGuard_ReusesExistingCookie(t *testing.T) {
	guard := NewCSRFGuard(CSRFConfig{}, audit.NewService(repotest.NewAuditRepository(), nil, nil), nil)

	app := newApp()
	app.Use(guard.Handler)
	app.Get("/token", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"token": c.Locals(LocalsCSRFToken)})
	})

	req := httptest.NewRequest(fiber.MethodGet, "/token", nil)
	req.AddCookie(&http.Cookie{Name: CSRFCookieName, Value: "existing-token"})
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Nil(t, csrfCookie(resp))
	assert.Equal(t, "existing-token", decode(t, resp)["token"])
}

// memoryStorage is a fiber.Storage standing in for a store shared by
// several instances.
type memoryStorage struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newMemoryStorage() *memoryStorage {
	return &memoryStorage{data: make(map[string][]byte)}
}

func (s *memoryStorage) Get(key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data[key], nil
}

func (s *memoryStorage) Set(key string, val []byte, exp time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = append([]byte(nil), val...)
	return nil
}

func (s *memoryStorage) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, key)
	return nil
}

func (s *memoryStorage) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data = make(map[string][]byte)
	return nil
}

func (s *memoryStorage) Close() error { return nil }

func (s *memoryStorage) Keys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	keys := make([]string, 0, len(s.data))
	for k := range s.data {
		keys = append(keys, k)
	}
	return keys
}

func headerInt(t *testing.T, resp *http.Response, name string) int {
	t.Helper()
	n, err := strconv.Atoi(resp.Header.Get(name))
	require.NoError(t, err, name)
	return n
}

func TestRateLimiter_DeniesAfterBudget(t *testing.T) {
	const max = 3
	auditRepo := repotest.NewAuditRepository()
	auditSvc := audit.NewService(auditRepo, nil, nil)
	rl := NewRateLimiter(map[string]config.LimitRule{
		ratelimit.Order: {Window: time.Minute, MaxRequests: max},
	}, nil, auditSvc, nil)

	app := newApp()
	app.Post("/orders", rl.Limit(ratelimit.Order), ok)

	for i := 0; i < max; i++ {
		resp, err := app.Test(httptest.NewRequest(fiber.MethodPost, "/orders", nil))
		require.NoError(t, err)
		require.Equal(t, fiber.StatusOK, resp.StatusCode)
		assert.Equal(t, "3", resp.Header.Get(HeaderRateLimitLimit))
		assert.Equal(t, max-1-i, headerInt(t, resp, HeaderRateLimitRemaining))
		reset := headerInt(t, resp, HeaderRateLimitReset)
		assert.True(t, reset >= 0 && reset <= 60, "reset in %d seconds", reset)
		assert.Empty(t, resp.Header.Get(fiber.HeaderRetryAfter))
	}

	resp, err := app.Test(httptest.NewRequest(fiber.MethodPost, "/orders", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusTooManyRequests, resp.StatusCode)
	retry := headerInt(t, resp, fiber.HeaderRetryAfter)
	assert.True(t, retry >= 0 && retry <= 60, "retry after %d seconds", retry)
	body := decode(t, resp)
	assert.Equal(t, "RATE_LIMITED", body["code"])
	assert.Contains(t, body["error"], "retry in")

	auditSvc.Wait()
	entries := auditRepo.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, models.AuditRateLimitExceeded, entries[0].Action)
	assert.Equal(t, ratelimit.Order, entries[0].TargetID)
}

func TestRateLimiter_NamesAreIndependent(t *testing.T) {
	rl := NewRateLimiter(map[string]config.LimitRule{
		ratelimit.General: {Window: time.Minute, MaxRequests: 1},
		ratelimit.Order:   {Window: time.Minute, MaxRequests: 1},
	}, nil, audit.NewService(repotest.NewAuditRepository(), nil, nil), nil)

	app := newApp()
	app.Get("/general", rl.Limit(ratelimit.General), ok)
	app.Get("/order", rl.Limit(ratelimit.Order), ok)

	resp, err := app.Test(httptest.NewRequest(fiber.MethodGet, "/general", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	resp, err = app.Test(httptest.NewRequest(fiber.MethodGet, "/general", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusTooManyRequests, resp.StatusCode)

	resp, err = app.Test(httptest.NewRequest(fiber.MethodGet, "/order", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode, "blocked on general, still inside order")
}

func TestRateLimiter_SharedStorageAcrossInstances(t *testing.T) {
	storage := newMemoryStorage()
	rules := map[string]config.LimitRule{ratelimit.UTR: {Window: time.Minute, MaxRequests: 2}}
	auditSvc := audit.NewService(repotest.NewAuditRepository(), nil, nil)

	instances := make([]*fiber.App, 2)
	for i := range instances {
		rl := NewRateLimiter(rules, storage, auditSvc, nil)
		instances[i] = newApp()
		instances[i].Post("/utr", rl.Limit(ratelimit.UTR), ok)
	}

	for _, app := range instances {
		resp, err := app.Test(httptest.NewRequest(fiber.MethodPost, "/utr", nil))
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	}

	resp, err := instances[0].Test(httptest.NewRequest(fiber.MethodPost, "/utr", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusTooManyRequests, resp.StatusCode, "budget is shared through storage")

	keys := storage.Keys()
	require.Len(t, keys, 1)
	assert.True(t, strings.HasPrefix(keys[0], ratelimit.UTR+":"), keys[0])
}

func TestRateLimiter_UnknownLimiterPasses(t *testing.T) {
	rl := NewRateLimiter(map[string]config.LimitRule{}, nil, audit.NewService(repotest.NewAuditRepository(), nil, nil), nil)

	app := newApp()
	app.Get("/", rl.Limit("missing"), ok)

	resp, err := app.Test(httptest.NewRequest(fiber.MethodGet, "/", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
}

type authFixture struct {
	app   *fiber.App
	auth  auth.Service
	audit audit.Service
}

func newAuthFixture(t *testing.T) *authFixture {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte("s3cret-pass!"), bcrypt.MinCost)
	require.NoError(t, err)
	users := repotest.NewUserRepository(
		&models.User{ID: "v1", Email: "viewer@example.com", Password: string(hash), Role: models.RoleViewer, Status: models.UserStatusActive, TokenVersion: 1},
		&models.User{ID: "a1", Email: "admin@example.com", Password: string(hash), Role: models.RoleAdmin, Status: models.UserStatusActive, TokenVersion: 1},
	)
	auditSvc := audit.NewService(repotest.NewAuditRepository(), nil, nil)
	tracker := session.NewTracker(cache.NewMemorySessionStore(), session.Config{}, nil)
	authSvc := auth.NewService(users, tracker, cache.NewMemoryCache(), auditSvc, auth.Config{JWTSecret: "test-secret", AccessTokenTTL: time.Hour})

	mw := NewAuthMiddleware(authSvc, tracker, auditSvc)
	app := newApp()
	app.Get("/me", mw.Handler, func(c *fiber.Ctx) error {
		identity, err := utils.GetIdentity(c)
		if err != nil {
			return err
		}
		return c.JSON(fiber.Map{"user_id": identity.UserID})
	})
	app.Get("/admin", mw.Handler, Require(models.CapManageSettings), ok)

	return &authFixture{app: app, auth: authSvc, audit: auditSvc}
}

func (f *authFixture) token(t *testing.T, email string) string {
	t.Helper()
	res, err := f.auth.Login(context.Background(), email, "s3cret-pass!", models.RequestMeta{IPAddress: "0.0.0.0"})
	require.NoError(t, err)
	return res.AccessToken
}

func TestAuthMiddleware(t *testing.T) {
	f := newAuthFixture(t)
	defer f.audit.Wait()

	resp, err := f.app.Test(httptest.NewRequest(fiber.MethodGet, "/me", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "UNAUTHENTICATED", decode(t, resp)["code"])

	req := httptest.NewRequest(fiber.MethodGet, "/me", nil)
	req.Header.Set(fiber.HeaderAuthorization, "Bearer not-a-token")
	resp, err = f.app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)

	viewerToken := f.token(t, "viewer@example.com")
	req = httptest.NewRequest(fiber.MethodGet, "/me", nil)
	req.Header.Set(fiber.HeaderAuthorization, "Bearer "+viewerToken)
	resp, err = f.app.Test(req)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, "v1", decode(t, resp)["user_id"])

	req = httptest.NewRequest(fiber.MethodGet, "/me", nil)
	req.AddCookie(&http.Cookie{Name: AccessTokenCookie, Value: viewerToken})
	resp, err = f.app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode, "cookie token")

	req = httptest.NewRequest(fiber.MethodGet, "/admin", nil)
	req.Header.Set(fiber.HeaderAuthorization, "Bearer "+viewerToken)
	resp, err = f.app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusForbidden, resp.StatusCode)

	req = httptest.NewRequest(fiber.MethodGet, "/admin", nil)
	req.Header.Set(fiber.HeaderAuthorization, "Bearer "+f.token(t, "admin@example.com"))
	resp, err = f.app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
}

func TestErrorHandler(t *testing.T) {
	app := newApp()
	app.Get("/internal", func(c *fiber.Ctx) error {
		return errors.New("pq: connection refused to 10.0.0.5")
	})
	app.Get("/conflict", func(c *fiber.Ctx) error {
		return domainErrors.ErrUTRAlreadySubmitted
	})
	app.Get("/timeout", func(c *fiber.Ctx) error {
		return domainErrors.FromStore(context.DeadlineExceeded)
	})

	resp, err := app.Test(httptest.NewRequest(fiber.MethodGet, "/internal", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusInternalServerError, resp.StatusCode)
	body := decode(t, resp)
	assert.Equal(t, "INTERNAL_ERROR", body["code"])
	assert.NotContains(t, body["error"], "10.0.0.5")

	resp, err = app.Test(httptest.NewRequest(fiber.MethodGet, "/conflict", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusConflict, resp.StatusCode)
	assert.Equal(t, domainErrors.ErrUTRAlreadySubmitted.Code, decode(t, resp)["code"])

	resp, err = app.Test(httptest.NewRequest(fiber.MethodGet, "/timeout", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusServiceUnavailable, resp.StatusCode)

	resp, err = app.Test(httptest.NewRequest(fiber.MethodGet, "/missing", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "NOT_FOUND", decode(t, resp)["code"])
}
