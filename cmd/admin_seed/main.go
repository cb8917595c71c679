package main

import (
	"context"
	"log"
	"os"

	"upilink/internal/config"
	"upilink/internal/models"
	"upilink/internal/repositories"
	"upilink/internal/repositories/cache"
	"upilink/internal/services/audit"
	"upilink/internal/services/user"
)

func main() {
	config.LoadEnv()
	cfg := config.Load()

	adminEmail := os.Getenv("ADMIN_EMAIL")
	adminPassword := os.Getenv("ADMIN_PASSWORD")
	adminName := config.GetEnv("ADMIN_NAME", "Administrator")

	if adminEmail == "" || adminPassword == "" {
		log.Fatal("ADMIN_EMAIL and ADMIN_PASSWORD must be set in environment")
	}

	db, err := repositories.InitDB(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer func() {
		sqlDB, err := db.DB()
		if err != nil {
			log.Printf("Failed to get SQL DB instance: %v", err)
			return
		}
		if err := sqlDB.Close(); err != nil {
			log.Printf("Failed to close PostgreSQL connection: %v", err)
		}
	}()

	userRepo := repositories.NewUserRepository(db, cache.NewMemoryCache())
	auditSvc := audit.NewService(repositories.NewAuditRepository(db), user.NewNameResolver(userRepo), nil)
	userService := user.NewService(userRepo, repositories.NewTransactor(db), auditSvc, nil)

	ctx := context.Background()
	admins, err := userService.CountAdmins(ctx)
	if err != nil {
		log.Fatalf("Failed to count administrators: %v", err)
	}
	if admins > 0 {
		log.Println("Admin user already exists")
		return
	}

	admin, err := userService.Create(ctx, user.CreateInput{
		Email:    adminEmail,
		Name:     adminName,
		Password: adminPassword,
		Role:     models.RoleAdmin,
	})
	if err != nil {
		log.Fatalf("Failed to create admin user: %v", err)
	}

	log.Printf("Admin account %s created successfully", admin.Email)
}
