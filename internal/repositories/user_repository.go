package repositories

import (
	"context"
	"errors"

	"upilink/internal/models"
)

var (
	ErrUserNotFound      = errors.New("user not found")
	ErrEmailTaken        = errors.New("email already taken")
	ErrDatabaseOperation = errors.New("database operation failed")
)

// UserRepository defines the interface for user-related database operations
type UserRepository interface {
	// Create creates a new user in the database
	Create(ctx context.Context, user *models.User) error

	// GetByID retrieves a user by their ID
	GetByID(ctx context.Context, id string) (*models.User, error)

	// GetByEmail retrieves a user by their email address
	GetByEmail(ctx context.Context, email string) (*models.User, error)

	// UpdateRole sets the role and bumps the token version so outstanding
	// tokens stop authenticating.
	UpdateRole(ctx context.Context, userID string, role models.Role) error

	// IncrementTokenVersion increments the user's token version
	IncrementTokenVersion(ctx context.Context, userID string) error

	// RecordLogin stamps the last successful login.
	RecordLogin(ctx context.Context, userID, ip string) error

	// List retrieves users with pagination
	List(ctx context.Context, offset, limit int) ([]models.User, int64, error)

	// CountByRole is used by the seed command to detect an existing admin.
	CountByRole(ctx context.Context, role models.Role) (int64, error)
}
