// Package routes defines the API routing configuration.
// It wires services into handlers and mounts them behind the security
// middleware chain.
package routes

import (
	"upilink/internal/handlers"
	"upilink/internal/middleware"
	"upilink/internal/models"
	"upilink/internal/services/ratelimit"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const webhookPath = "/api/webhooks/identity"

// SetupRoutes configures all application routes.
// Every /api request passes the general limiter and the CSRF guard; groups
// then add authentication and their own limiter.
func SetupRoutes(app *fiber.App, c *Container) {
	secureCookies := c.Config.SecureCookies

	// Middleware
	rl := middleware.NewRateLimiter(c.Config.RateLimits, c.LimiterStorage, c.Audit, c.Metrics)
	csrf := middleware.NewCSRFGuard(middleware.CSRFConfig{
		Exempt: []string{webhookPath},
		Secure: secureCookies,
	}, c.Audit, c.Metrics)
	authMW := middleware.NewAuthMiddleware(c.Auth, c.Tracker, c.Audit)

	// Handlers
	var redisHealth handlers.HealthChecker
	if c.redisCache != nil {
		redisHealth = c.redisCache
	}
	healthHandler := handlers.NewHealthHandler(c.DB, redisHealth)
	authHandler := handlers.NewAuthHandler(c.Auth, secureCookies)
	orderHandler := handlers.NewOrderHandler(c.Orders)
	settingsHandler := handlers.NewSettingsHandler(c.Settings)
	analyticsHandler := handlers.NewAnalyticsHandler(c.Analytics)
	adminHandler := handlers.NewAdminHandler(c.Users, c.Audit)
	webhookHandler := handlers.NewWebhookHandler(c.Users, c.Config.WebhookSecret)

	app.Get("/", func(ctx *fiber.Ctx) error {
		return ctx.JSON(fiber.Map{
			"message": "Welcome to UPI Link API",
			"version": "1.0.0",
			"docs":    "/api",
		})
	})
	app.Get("/health", healthHandler.HealthCheck)
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(c.Registry, promhttp.HandlerOpts{})))

	api := app.Group("/api", rl.Limit(ratelimit.General), csrf.Handler)

	api.Get("/csrf-token", authHandler.CSRFToken)
	api.Post("/webhooks/identity", webhookHandler.IdentityEvent)

	// Auth
	authGroup := api.Group("/auth")
	authGroup.Post("/login", rl.Limit(ratelimit.Auth), authHandler.LoginUser)
	authGroup.Get("/me", authMW.Handler, authHandler.Me)
	authGroup.Post("/logout", authMW.Handler, authHandler.LogoutUser)
	authGroup.Post("/logout-all", authMW.Handler, authHandler.LogoutAllDevices)

	// Orders. Reading an order, its QR code and submitting a UTR are public:
	// the payer holds only the order id.
	orders := api.Group("/orders")
	orders.Post("/", authMW.Handler, middleware.Require(models.CapCreateOrder), rl.Limit(ratelimit.Order), orderHandler.CreateOrder)
	orders.Get("/", authMW.Handler, orderHandler.ListOrders)
	orders.Get("/:orderId", orderHandler.GetOrder)
	orders.Get("/:orderId/qr", orderHandler.OrderQRCode)
	orders.Post("/:orderId/utr", rl.Limit(ratelimit.UTR), orderHandler.SubmitUTR)
	orders.Post("/:orderId/decision", authMW.Handler, middleware.Require(models.CapDecideOrder), orderHandler.DecideOrder)

	// Admin
	admin := api.Group("/admin", authMW.Handler, rl.Limit(ratelimit.Admin))
	admin.Get("/settings", middleware.Require(models.CapManageSettings), settingsHandler.GetSettings)
	admin.Put("/settings", middleware.Require(models.CapManageSettings), settingsHandler.UpdateSettings)
	admin.Post("/settings/reset", middleware.Require(models.CapManageSettings), settingsHandler.ResetSettings)
	admin.Get("/settings/history", middleware.Require(models.CapManageSettings), settingsHandler.SettingsHistory)
	admin.Get("/analytics", middleware.Require(models.CapViewAnalytics), analyticsHandler.GetAnalytics)
	admin.Get("/users", middleware.Require(models.CapManageUsers), adminHandler.ListUsers)
	admin.Put("/users/:id/role", middleware.Require(models.CapManageUsers), adminHandler.UpdateUserRole)
	admin.Get("/audit-logs", middleware.Require(models.CapViewAudit), adminHandler.ListAuditLogs)
}
