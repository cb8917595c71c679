package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// LoadEnv loads variables from a .env file if present.
func LoadEnv() {
	if err := godotenv.Load(); err != nil {
		log.Printf("no .env file found: %v", err)
	}
}

// GetEnv returns an environment variable or a default value.
func GetEnv(key, defaultVal string) string {
	if val, ok := os.LookupEnv(key); ok && val != "" {
		return val
	}
	return defaultVal
}

// GetIntEnv returns an int environment variable or a default value.
func GetIntEnv(key string, defaultVal int) int {
	if val, ok := os.LookupEnv(key); ok {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

// GetDurationEnv parses a Go duration ("90s", "5m") or returns the default.
func GetDurationEnv(key string, defaultVal time.Duration) time.Duration {
	if val, ok := os.LookupEnv(key); ok && val != "" {
		d, err := time.ParseDuration(val)
		if err == nil {
			return d
		}
		log.Printf("Invalid %s=%q, using default %s", key, val, defaultVal)
	}
	return defaultVal
}

// GetBoolEnv returns a bool environment variable or a default value.
func GetBoolEnv(key string, defaultVal bool) bool {
	if val, ok := os.LookupEnv(key); ok {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return defaultVal
}

// IsProduction checks if the app runs in production mode.
func IsProduction() bool {
	return GetEnv("ENV", "development") == "production"
}

// LimitRule is the window and request budget of one named rate limiter.
type LimitRule struct {
	Window      time.Duration
	MaxRequests int
}

// Config is the typed view of the process environment.
type Config struct {
	Port    string
	BaseURL string

	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string

	RedisHost     string
	RedisPort     string
	RedisPassword string
	RedisDB       int

	// StateBackend selects where limiter counters and sessions live: "memory" or "redis".
	StateBackend string

	JWTSecret      string
	AccessTokenTTL time.Duration
	WebhookSecret  string

	SessionIdleTimeout   time.Duration
	MaxSessionsPerUser   int
	SessionSweepInterval time.Duration

	RateLimits map[string]LimitRule

	OrderSweepInterval time.Duration
	StoreTimeout       time.Duration

	AllowedOrigins string
	TrustedProxies []string
	SecureCookies  bool
}

// Load reads the environment into a Config, applying defaults.
func Load() *Config {
	cfg := &Config{
		Port:    GetEnv("PORT", "3000"),
		BaseURL: strings.TrimRight(GetEnv("BASE_URL", "http://localhost:3000"), "/"),

		DBHost:     GetEnv("DB_HOST", "localhost"),
		DBPort:     GetEnv("DB_PORT", "5432"),
		DBUser:     GetEnv("DB_USER", "postgres"),
		DBPassword: GetEnv("DB_PASSWORD", "postgres"),
		DBName:     GetEnv("DB_NAME", "upilink"),
		DBSSLMode:  GetEnv("DB_SSLMODE", "disable"),

		RedisHost:     GetEnv("REDIS_HOST", "localhost"),
		RedisPort:     GetEnv("REDIS_PORT", "6379"),
		RedisPassword: GetEnv("REDIS_PASSWORD", ""),
		RedisDB:       GetIntEnv("REDIS_DB", 0),

		StateBackend: strings.ToLower(GetEnv("STATE_BACKEND", "memory")),

		JWTSecret:      GetEnv("JWT_SECRET", ""),
		AccessTokenTTL: GetDurationEnv("ACCESS_TOKEN_TTL", 12*time.Hour),
		WebhookSecret:  GetEnv("IDENTITY_WEBHOOK_SECRET", ""),

		SessionIdleTimeout:   GetDurationEnv("SESSION_IDLE_TIMEOUT", 30*time.Minute),
		MaxSessionsPerUser:   GetIntEnv("MAX_SESSIONS_PER_USER", 5),
		SessionSweepInterval: GetDurationEnv("SESSION_SWEEP_INTERVAL", 5*time.Minute),

		OrderSweepInterval: GetDurationEnv("ORDER_SWEEP_INTERVAL", 0),
		StoreTimeout:       GetDurationEnv("STORE_TIMEOUT", 5*time.Second),

		AllowedOrigins: GetEnv("CORS_ALLOWED_ORIGINS", "http://localhost:5173"),
		SecureCookies:  GetBoolEnv("SECURE_COOKIES", IsProduction()),
	}

	cfg.RateLimits = map[string]LimitRule{
		"general": limitFromEnv("GENERAL", time.Minute, 100),
		"order":   limitFromEnv("ORDER", time.Minute, 10),
		"utr":     limitFromEnv("UTR", time.Minute, 5),
		"admin":   limitFromEnv("ADMIN", time.Minute, 60),
		"auth":    limitFromEnv("AUTH", 15*time.Minute, 5),
	}

	if v := GetEnv("TRUSTED_PROXIES", ""); v != "" {
		for _, p := range strings.Split(v, ",") {
			if p = strings.TrimSpace(p); p != "" {
				cfg.TrustedProxies = append(cfg.TrustedProxies, p)
			}
		}
	}

	if cfg.JWTSecret == "" {
		if IsProduction() {
			log.Fatal("JWT_SECRET must be set in production")
		}
		cfg.JWTSecret = "upilink-dev-secret"
	}

	return cfg
}

// limitFromEnv reads RATE_<NAME>_WINDOW and RATE_<NAME>_MAX.
func limitFromEnv(name string, window time.Duration, max int) LimitRule {
	return LimitRule{
		Window:      GetDurationEnv("RATE_"+name+"_WINDOW", window),
		MaxRequests: GetIntEnv("RATE_"+name+"_MAX", max),
	}
}
