package user

import (
	"context"
	"errors"
	"log"
	"strings"

	domainErrors "upilink/internal/errors"
	"upilink/internal/models"
	"upilink/internal/repositories"
	"upilink/internal/services/audit"
	"upilink/internal/validation"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// SessionRevoker ends every session and token of a user.
type SessionRevoker interface {
	RevokeUser(ctx context.Context, userID string) error
}

// CreateInput describes a new account.
type CreateInput struct {
	Email    string
	Name     string
	Password string
	Role     models.Role
}

// RoleChangedEvent is the payload of an identity webhook role change.
type RoleChangedEvent struct {
	UserID    string `json:"user_id"`
	OldRole   string `json:"old_role"`
	NewRole   string `json:"new_role"`
	ChangedBy string `json:"changed_by"`
}

type Service interface {
	Create(ctx context.Context, in CreateInput) (*models.User, error)
	GetByID(ctx context.Context, id string) (*models.User, error)
	List(ctx context.Context, actor *models.Identity, limit, offset int) ([]models.User, int64, error)
	UpdateRole(ctx context.Context, actor *models.Identity, userID, role string, meta models.RequestMeta) (*models.User, error)
	// RecordRoleChanged audits a role change reported by the identity
	// webhook. It never fails the caller.
	RecordRoleChanged(event RoleChangedEvent, meta models.RequestMeta)
	CountAdmins(ctx context.Context) (int64, error)
}

type service struct {
	repo    repositories.UserRepository
	tx      repositories.Transactor
	audit   audit.Service
	revoker SessionRevoker
}

// NewService creates the user service. revoker may be nil, in which case a
// role change relies on the token version bump alone.
func NewService(repo repositories.UserRepository, tx repositories.Transactor, auditSvc audit.Service, revoker SessionRevoker) Service {
	if repo == nil {
		panic("user repository is required")
	}
	if tx == nil {
		panic("transactor is required")
	}
	if auditSvc == nil {
		panic("audit service is required")
	}
	return &service{repo: repo, tx: tx, audit: auditSvc, revoker: revoker}
}

func (s *service) Create(ctx context.Context, in CreateInput) (*models.User, error) {
	email := strings.ToLower(strings.TrimSpace(in.Email))

	v := validation.New()
	v.Email("email", email)
	v.Required("name", in.Name)
	v.MaxLength("name", in.Name, validation.MaxUserNameLength)
	v.Password("password", in.Password)
	if _, ok := models.ParseRole(string(in.Role)); !ok {
		v.AddError("role", "must be admin, merchant or viewer")
	}
	if !v.Valid() {
		return nil, domainErrors.ErrInvalidRequest.WithMessage("%s", v.Summary())
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, domainErrors.ErrInternal.Wrap(err)
	}

	user := &models.User{
		ID:           uuid.NewString(),
		Email:        email,
		Name:         strings.TrimSpace(in.Name),
		Password:     string(hashedPassword),
		Role:         in.Role,
		Status:       models.UserStatusActive,
		TokenVersion: 1,
	}
	if err := s.repo.Create(ctx, user); err != nil {
		if errors.Is(err, repositories.ErrEmailTaken) {
			return nil, domainErrors.Conflict("EMAIL_TAKEN", "a user with this email already exists")
		}
		return nil, domainErrors.FromStore(err)
	}
	log.Printf("Created %s account %s", user.Role, user.ID)
	return user, nil
}

func (s *service) GetByID(ctx context.Context, id string) (*models.User, error) {
	user, err := s.repo.GetByID(ctx, id)
	if errors.Is(err, repositories.ErrUserNotFound) {
		return nil, domainErrors.ErrUserNotFound
	}
	if err != nil {
		return nil, domainErrors.FromStore(err)
	}
	return user, nil
}

func (s *service) List(ctx context.Context, actor *models.Identity, limit, offset int) ([]models.User, int64, error) {
	if err := authorize(actor); err != nil {
		return nil, 0, err
	}
	users, total, err := s.repo.List(ctx, offset, limit)
	if err != nil {
		return nil, 0, domainErrors.FromStore(err)
	}
	return users, total, nil
}

func (s *service) UpdateRole(ctx context.Context, actor *models.Identity, userID, role string, meta models.RequestMeta) (*models.User, error) {
	if err := authorize(actor); err != nil {
		return nil, err
	}
	newRole, ok := models.ParseRole(strings.ToLower(strings.TrimSpace(role)))
	if !ok {
		return nil, domainErrors.ErrInvalidRole
	}
	if userID == actor.UserID {
		return nil, domainErrors.ErrForbidden.WithMessage("administrators cannot change their own role")
	}

	target, err := s.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	oldRole := target.Role

	err = s.tx.WithinTransaction(ctx, func(ctx context.Context) error {
		if err := s.repo.UpdateRole(ctx, userID, newRole); err != nil {
			if errors.Is(err, repositories.ErrUserNotFound) {
				return domainErrors.ErrUserNotFound
			}
			return err
		}
		return s.audit.Record(ctx, audit.Entry{
			Action:      models.AuditUserRoleUpdated,
			TargetID:    userID,
			PerformedBy: actor.UserID,
			Details: map[string]interface{}{
				"old_role": string(oldRole),
				"new_role": string(newRole),
			},
			Meta: meta,
		})
	})
	if err != nil {
		return nil, domainErrors.FromStore(err)
	}

	// The token version bump already rejects outstanding tokens; dropping
	// sessions makes the change visible in session listings too.
	if s.revoker != nil {
		if err := s.revoker.RevokeUser(ctx, userID); err != nil {
			log.Printf("Failed to revoke sessions for user %s after role change: %v", userID, err)
		}
	}
	log.Printf("User %s role changed from %s to %s by %s", userID, oldRole, newRole, actor.UserID)

	return s.GetByID(ctx, userID)
}

func (s *service) RecordRoleChanged(event RoleChangedEvent, meta models.RequestMeta) {
	performedBy := event.ChangedBy
	if performedBy == "" {
		performedBy = models.SystemActor
	}
	s.audit.RecordAsync(audit.Entry{
		Action:      models.AuditUserRoleUpdated,
		TargetID:    event.UserID,
		PerformedBy: performedBy,
		Details: map[string]interface{}{
			"old_role": event.OldRole,
			"new_role": event.NewRole,
			"source":   "webhook",
		},
		Meta: meta,
	})
}

// NameResolver resolves audit display names from the user store.
type NameResolver struct {
	repo repositories.UserRepository
}

func NewNameResolver(repo repositories.UserRepository) *NameResolver {
	return &NameResolver{repo: repo}
}

func (r *NameResolver) DisplayName(ctx context.Context, userID string) (string, error) {
	user, err := r.repo.GetByID(ctx, userID)
	if err != nil {
		return "", err
	}
	if user.Name != "" {
		return user.Name, nil
	}
	return user.Email, nil
}

func (s *service) CountAdmins(ctx context.Context) (int64, error) {
	n, err := s.repo.CountByRole(ctx, models.RoleAdmin)
	if err != nil {
		return 0, domainErrors.FromStore(err)
	}
	return n, nil
}

func authorize(actor *models.Identity) error {
	if actor == nil {
		return domainErrors.ErrUnauthenticated
	}
	if !actor.Can(models.CapManageUsers) {
		return domainErrors.ErrForbidden
	}
	return nil
}
