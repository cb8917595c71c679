package repositories

import (
	"context"
	"errors"
	"log"
	"time"

	"upilink/internal/models"
	"upilink/internal/repositories/cache"

	"gorm.io/gorm"
)

const userCacheTTL = 10 * time.Minute

type userRepository struct {
	db    *gorm.DB
	cache cache.Cache
}

// NewUserRepository creates a new instance of UserRepository
func NewUserRepository(db *gorm.DB, c cache.Cache) UserRepository {
	return &userRepository{
		db:    db,
		cache: c,
	}
}

func userCacheKey(id string) string {
	return cache.Key("user", "id", id)
}

// cachedUser carries the fields models.User hides from JSON.
type cachedUser struct {
	models.User
	Password     string `json:"password_hash"`
	TokenVersion int    `json:"token_version"`
	LastLoginIP  string `json:"last_login_ip"`
}

func (c *cachedUser) user() *models.User {
	u := c.User
	u.Password = c.Password
	u.TokenVersion = c.TokenVersion
	u.LastLoginIP = c.LastLoginIP
	return &u
}

func (r *userRepository) Create(ctx context.Context, user *models.User) error {
	err := conn(ctx, r.db).Create(user).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return ErrEmailTaken
	}
	if err != nil {
		log.Printf("Error creating user: %v", err)
		return ErrDatabaseOperation
	}
	return nil
}

func (r *userRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	key := userCacheKey(id)
	var cached cachedUser
	if found, err := r.cache.Get(ctx, key, &cached); err == nil && found {
		return cached.user(), nil
	} else if err != nil {
		log.Printf("Cache error for user %s: %v", id, err)
	}

	var user models.User
	if err := conn(ctx, r.db).Where("id = ?", id).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}

	entry := cachedUser{User: user, Password: user.Password, TokenVersion: user.TokenVersion, LastLoginIP: user.LastLoginIP}
	if err := r.cache.SetWithTTL(ctx, key, &entry, userCacheTTL); err != nil {
		log.Printf("Failed to cache user: %v", err)
	}
	return &user, nil
}

func (r *userRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	result := conn(ctx, r.db).Where("email = ?", email).First(&user)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, result.Error
	}
	return &user, nil
}

func (r *userRepository) UpdateRole(ctx context.Context, userID string, role models.Role) error {
	result := conn(ctx, r.db).Model(&models.User{}).
		Where("id = ?", userID).
		Updates(map[string]interface{}{
			"role":          role,
			"token_version": gorm.Expr("token_version + 1"),
			"updated_at":    time.Now(),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrUserNotFound
	}
	r.invalidate(ctx, userID)
	return nil
}

func (r *userRepository) IncrementTokenVersion(ctx context.Context, userID string) error {
	result := conn(ctx, r.db).Model(&models.User{}).
		Where("id = ?", userID).
		UpdateColumn("token_version", gorm.Expr("token_version + 1"))
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrUserNotFound
	}
	r.invalidate(ctx, userID)
	return nil
}

func (r *userRepository) RecordLogin(ctx context.Context, userID, ip string) error {
	now := time.Now()
	err := conn(ctx, r.db).Model(&models.User{}).
		Where("id = ?", userID).
		UpdateColumns(map[string]interface{}{
			"last_login_at": &now,
			"last_login_ip": ip,
		}).Error
	if err != nil {
		return err
	}
	r.invalidate(ctx, userID)
	return nil
}

func (r *userRepository) List(ctx context.Context, offset, limit int) ([]models.User, int64, error) {
	var users []models.User
	var total int64

	db := conn(ctx, r.db)
	if err := db.Model(&models.User{}).Count(&total).Error; err != nil {
		return nil, 0, ErrDatabaseOperation
	}

	result := db.Order("created_at ASC").Offset(offset).Limit(limit).Find(&users)
	if result.Error != nil {
		return nil, 0, ErrDatabaseOperation
	}
	return users, total, nil
}

func (r *userRepository) CountByRole(ctx context.Context, role models.Role) (int64, error) {
	var count int64
	err := conn(ctx, r.db).Model(&models.User{}).Where("role = ?", role).Count(&count).Error
	return count, err
}

func (r *userRepository) invalidate(ctx context.Context, userID string) {
	if err := r.cache.Delete(ctx, userCacheKey(userID)); err != nil {
		log.Printf("Warning: Failed to invalidate user cache: %v", err)
	}
}
