package routes

import (
	"context"
	"log"
	"time"

	"upilink/internal/config"
	"upilink/internal/metrics"
	"upilink/internal/repositories"
	"upilink/internal/repositories/cache"
	"upilink/internal/services/analytics"
	"upilink/internal/services/audit"
	"upilink/internal/services/auth"
	"upilink/internal/services/order"
	"upilink/internal/services/session"
	"upilink/internal/services/settings"
	"upilink/internal/services/user"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

const (
	BackendMemory = "memory"
	BackendRedis  = "redis"

	userCacheTTL         = 5 * time.Minute
	cachePurgeInterval   = time.Minute
	redisPoolLogInterval = 5 * time.Minute
)

// Container holds the wired services of one process.
type Container struct {
	Config   *config.Config
	DB       *gorm.DB
	Redis    *redis.Client
	Registry *prometheus.Registry
	Metrics  metrics.Collector

	Cache cache.Cache
	// LimiterStorage holds rate-limit counters; nil keeps them in process memory.
	LimiterStorage fiber.Storage

	Tracker   *session.Tracker
	Audit     audit.Service
	Settings  settings.Service
	Orders    order.Service
	Auth      auth.Service
	Users     user.Service
	Analytics analytics.Service

	redisCache *cache.CacheService
}

// NewContainer wires repositories and services. redisClient is required
// when cfg.StateBackend is "redis" and ignored otherwise.
func NewContainer(cfg *config.Config, db *gorm.DB, redisClient *redis.Client, reg *prometheus.Registry) *Container {
	c := &Container{
		Config:   cfg,
		DB:       db,
		Registry: reg,
		Metrics:  metrics.NewPrometheus(reg),
	}

	var sessions cache.SessionStore
	switch cfg.StateBackend {
	case BackendRedis:
		if redisClient == nil {
			panic("redis client is required for the redis state backend")
		}
		c.Redis = redisClient
		c.redisCache = cache.NewCacheService(redisClient, userCacheTTL)
		c.Cache = c.redisCache
		storage, err := cache.NewLimiterStorage(RedisConfig(cfg))
		if err != nil {
			panic(err)
		}
		c.LimiterStorage = storage
		sessions = cache.NewRedisSessionStore(redisClient)
	default:
		c.Cache = cache.NewMemoryCache()
		sessions = cache.NewMemorySessionStore()
	}
	log.Printf("Using %s state backend", backendName(cfg.StateBackend))

	// Repositories
	tx := repositories.NewTransactor(db)
	userRepo := repositories.NewUserRepository(db, c.Cache)
	orderRepo := repositories.NewOrderRepository(db)
	settingsRepo := repositories.NewSettingsRepository(db)
	auditRepo := repositories.NewAuditRepository(db)

	// Services, in dependency order
	c.Audit = audit.NewService(auditRepo, user.NewNameResolver(userRepo), c.Metrics)
	c.Tracker = session.NewTracker(sessions, session.Config{
		IdleTimeout: cfg.SessionIdleTimeout,
		MaxPerUser:  cfg.MaxSessionsPerUser,
	}, c.Metrics)
	c.Auth = auth.NewService(userRepo, c.Tracker, c.Cache, c.Audit, auth.Config{
		JWTSecret:      cfg.JWTSecret,
		AccessTokenTTL: cfg.AccessTokenTTL,
		StoreTimeout:   cfg.StoreTimeout,
	})
	c.Users = user.NewService(userRepo, tx, c.Audit, c.Auth)
	c.Settings = settings.NewService(settingsRepo, tx, c.Audit, c.Cache)
	c.Orders = order.NewService(orderRepo, c.Settings, c.Audit, tx, c.Metrics, cfg.BaseURL)
	c.Analytics = analytics.NewService(orderRepo, auditRepo, c.Audit)

	return c
}

// StartBackground runs the sweepers until ctx is done.
func (c *Container) StartBackground(ctx context.Context) {
	go c.Tracker.StartSweeper(ctx, c.Config.SessionSweepInterval)
	if c.Config.OrderSweepInterval > 0 {
		log.Printf("Order expiry sweeper running every %s", c.Config.OrderSweepInterval)
		go order.StartExpirySweeper(ctx, c.Orders, c.Config.OrderSweepInterval)
	}
	if c.Redis != nil {
		go cache.MonitorPool(ctx, c.Redis, redisPoolLogInterval)
	}
	if mc, ok := c.Cache.(*cache.MemoryCache); ok {
		go purgeMemoryCache(ctx, mc, cachePurgeInterval)
	}
}

// purgeMemoryCache drops expired user and revoked-session entries.
func purgeMemoryCache(ctx context.Context, mc *cache.MemoryCache, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			mc.Purge()
		}
	}
}

// Close waits for pending audit writes and releases connections.
func (c *Container) Close() {
	c.Audit.Wait()

	if c.LimiterStorage != nil {
		if err := c.LimiterStorage.Close(); err != nil {
			log.Printf("Failed to close rate limit storage: %v", err)
		}
	}
	if c.redisCache != nil {
		if err := c.redisCache.Close(); err != nil {
			log.Printf("Failed to close Redis connection: %v", err)
		}
	}
	if c.DB != nil {
		sqlDB, err := c.DB.DB()
		if err != nil {
			log.Printf("Failed to get database instance: %v", err)
			return
		}
		if err := sqlDB.Close(); err != nil {
			log.Printf("Failed to close database connection: %v", err)
		}
	}
}

// RedisConfig is the Redis connection described by cfg.
func RedisConfig(cfg *config.Config) *cache.RedisConfig {
	return &cache.RedisConfig{
		Host:         cfg.RedisHost,
		Port:         cfg.RedisPort,
		Password:     cfg.RedisPassword,
		DB:           cfg.RedisDB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	}
}

func backendName(b string) string {
	if b == BackendRedis {
		return BackendRedis
	}
	return BackendMemory
}
