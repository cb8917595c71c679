package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("ENV", "development")
	t.Setenv("JWT_SECRET", "")
	t.Setenv("STATE_BACKEND", "")
	t.Setenv("SECURE_COOKIES", "")
	t.Setenv("TRUSTED_PROXIES", "")

	cfg := Load()

	assert.Equal(t, "memory", cfg.StateBackend)
	assert.NotEmpty(t, cfg.JWTSecret)
	assert.False(t, cfg.SecureCookies)
	assert.Equal(t, 30*time.Minute, cfg.SessionIdleTimeout)
	assert.Equal(t, 5, cfg.MaxSessionsPerUser)
	assert.Equal(t, time.Duration(0), cfg.OrderSweepInterval)
	assert.Equal(t, LimitRule{Window: time.Minute, MaxRequests: 100}, cfg.RateLimits["general"])
	assert.Equal(t, LimitRule{Window: 15 * time.Minute, MaxRequests: 5}, cfg.RateLimits["auth"])
	assert.Empty(t, cfg.TrustedProxies)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("ENV", "development")
	t.Setenv("BASE_URL", "https://pay.example.com/")
	t.Setenv("STATE_BACKEND", "Redis")
	t.Setenv("RATE_UTR_MAX", "2")
	t.Setenv("RATE_UTR_WINDOW", "30s")
	t.Setenv("SECURE_COOKIES", "true")
	t.Setenv("TRUSTED_PROXIES", "10.0.0.1, ,10.0.0.2")
	t.Setenv("SESSION_IDLE_TIMEOUT", "not-a-duration")

	cfg := Load()

	assert.Equal(t, "https://pay.example.com", cfg.BaseURL)
	assert.Equal(t, "redis", cfg.StateBackend)
	assert.Equal(t, LimitRule{Window: 30 * time.Second, MaxRequests: 2}, cfg.RateLimits["utr"])
	assert.True(t, cfg.SecureCookies)
	assert.Equal(t, []string{"10.0.0.1", "10.0.0.2"}, cfg.TrustedProxies)
	assert.Equal(t, 30*time.Minute, cfg.SessionIdleTimeout)
}

func TestTypedGetters(t *testing.T) {
	t.Setenv("X_INT", "12")
	t.Setenv("X_BAD_INT", "twelve")
	t.Setenv("X_BOOL", "false")

	assert.Equal(t, 12, GetIntEnv("X_INT", 1))
	assert.Equal(t, 1, GetIntEnv("X_BAD_INT", 1))
	assert.False(t, GetBoolEnv("X_BOOL", true))
	assert.True(t, GetBoolEnv("X_MISSING_BOOL", true))
	assert.Equal(t, "fallback", GetEnv("X_MISSING", "fallback"))
}
