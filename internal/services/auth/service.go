// Package auth is the local identity provider: it checks credentials, issues
// access tokens bound to a tracked session and resolves tokens back to an
// Identity.
package auth

import (
	"context"
	"errors"
	"log"
	"strings"
	"time"

	domainErrors "upilink/internal/errors"
	"upilink/internal/models"
	"upilink/internal/repositories"
	"upilink/internal/repositories/cache"
	"upilink/internal/services/audit"
	"upilink/internal/services/session"
	"upilink/internal/utils"

	"golang.org/x/crypto/bcrypt"
)

// dummyHash is compared against when the email is unknown so both failure
// paths cost one bcrypt comparison.
var dummyHash, _ = bcrypt.GenerateFromPassword([]byte("upilink-dummy-password"), bcrypt.DefaultCost)

type Config struct {
	JWTSecret      string
	AccessTokenTTL time.Duration
	StoreTimeout   time.Duration
}

// LoginResult is returned by a successful Login.
type LoginResult struct {
	User        *models.User
	AccessToken string
	ExpiresAt   time.Time
	SessionID   string
}

type Service interface {
	Login(ctx context.Context, email, password string, meta models.RequestMeta) (*LoginResult, error)
	// Authenticate resolves an access token. It does not touch the session
	// tracker; callers validate the session id separately.
	Authenticate(ctx context.Context, token string) (*models.Identity, error)
	Logout(ctx context.Context, identity *models.Identity, meta models.RequestMeta) error
	// LogoutAll ends every session of the caller and reports how many.
	LogoutAll(ctx context.Context, identity *models.Identity, meta models.RequestMeta) (int, error)
	// RevokeUser invalidates every token and session of userID.
	RevokeUser(ctx context.Context, userID string) error
	// Sessions lists the caller's live sessions.
	Sessions(ctx context.Context, identity *models.Identity) ([]models.Session, error)
}

type service struct {
	users   repositories.UserRepository
	tracker *session.Tracker
	revoked cache.Cache
	audit   audit.Service
	cfg     Config
}

func NewService(users repositories.UserRepository, tracker *session.Tracker, revoked cache.Cache, auditSvc audit.Service, cfg Config) Service {
	if users == nil {
		panic("user repository is required")
	}
	if tracker == nil {
		panic("session tracker is required")
	}
	if revoked == nil {
		panic("revocation cache is required")
	}
	if auditSvc == nil {
		panic("audit service is required")
	}
	if cfg.AccessTokenTTL <= 0 {
		cfg.AccessTokenTTL = 12 * time.Hour
	}
	if cfg.StoreTimeout <= 0 {
		cfg.StoreTimeout = 5 * time.Second
	}
	return &service{users: users, tracker: tracker, revoked: revoked, audit: auditSvc, cfg: cfg}
}

func revokedKey(sessionID string) string {
	return cache.Key("session", "revoked", sessionID)
}

func (s *service) Login(ctx context.Context, email, password string, meta models.RequestMeta) (*LoginResult, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil && !errors.Is(err, repositories.ErrUserNotFound) {
		return nil, domainErrors.FromStore(err)
	}

	if user == nil {
		_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(password))
		s.loginFailed(email, "unknown email", meta)
		return nil, domainErrors.ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password)); err != nil {
		s.loginFailed(email, "wrong password", meta)
		return nil, domainErrors.ErrInvalidCredentials
	}
	if user.Status == models.UserStatusDisabled {
		s.loginFailed(email, "account disabled", meta)
		return nil, domainErrors.ErrAccountDisabled
	}

	sess, err := s.tracker.Create(ctx, user.ID, user.Role, meta)
	if err != nil {
		return nil, err
	}

	token, expiresAt, err := utils.GenerateAccessToken(s.cfg.JWTSecret, &models.UserClaims{
		UserID:       user.ID,
		Email:        user.Email,
		Role:         user.Role,
		SessionID:    sess.SessionID,
		TokenVersion: user.TokenVersion,
	}, s.cfg.AccessTokenTTL)
	if err != nil {
		log.Printf("Error generating token for user %s: %v", user.ID, err)
		return nil, domainErrors.ErrInternal.Wrap(err)
	}

	if err := s.users.RecordLogin(ctx, user.ID, meta.IPAddress); err != nil {
		log.Printf("Failed to record login for user %s: %v", user.ID, err)
	}
	s.audit.RecordAsync(audit.Entry{
		Action:      models.AuditUserLogin,
		TargetID:    user.ID,
		PerformedBy: user.ID,
		Details:     map[string]interface{}{"session_id": sess.SessionID},
		Meta:        meta,
	})
	log.Printf("User %s logged in, session %s", user.ID, sess.SessionID)

	return &LoginResult{User: user, AccessToken: token, ExpiresAt: expiresAt, SessionID: sess.SessionID}, nil
}

func (s *service) loginFailed(email, reason string, meta models.RequestMeta) {
	log.Printf("Login failed for %s: %s", email, reason)
	s.audit.RecordAsync(audit.Entry{
		Action:      models.AuditUserLoginFailed,
		TargetID:    email,
		PerformedBy: models.SystemActor,
		Details:     map[string]interface{}{"reason": reason},
		Meta:        meta,
	})
}

func (s *service) Authenticate(ctx context.Context, token string) (*models.Identity, error) {
	claims, err := utils.ParseToken(s.cfg.JWTSecret, token)
	if err != nil {
		return nil, domainErrors.ErrInvalidToken
	}
	if claims.UserID == "" || claims.SessionID == "" {
		return nil, domainErrors.ErrInvalidToken
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.StoreTimeout)
	defer cancel()

	revoked, err := s.revoked.Exists(ctx, revokedKey(claims.SessionID))
	if err != nil {
		return nil, domainErrors.ErrExternalService.Wrap(err)
	}
	if revoked {
		return nil, domainErrors.ErrSessionExpired
	}

	user, err := s.users.GetByID(ctx, claims.UserID)
	if errors.Is(err, repositories.ErrUserNotFound) {
		return nil, domainErrors.ErrInvalidToken
	}
	if err != nil {
		return nil, domainErrors.FromStore(err)
	}
	if user.Status == models.UserStatusDisabled {
		return nil, domainErrors.ErrAccountDisabled
	}
	if user.TokenVersion != claims.TokenVersion {
		log.Printf("Token version mismatch for user %s: token %d, current %d", user.ID, claims.TokenVersion, user.TokenVersion)
		return nil, domainErrors.ErrSessionExpired
	}

	return models.NewIdentity(user.ID, user.Email, user.Role, claims.SessionID), nil
}

func (s *service) Logout(ctx context.Context, identity *models.Identity, meta models.RequestMeta) error {
	if identity == nil {
		return domainErrors.ErrUnauthenticated
	}
	if err := s.tracker.Remove(ctx, identity.SessionID); err != nil {
		return err
	}
	if err := s.revoked.SetWithTTL(ctx, revokedKey(identity.SessionID), true, s.cfg.AccessTokenTTL); err != nil {
		return domainErrors.FromStore(err)
	}

	s.audit.RecordAsync(audit.Entry{
		Action:      models.AuditUserLogout,
		TargetID:    identity.UserID,
		PerformedBy: identity.UserID,
		Details:     map[string]interface{}{"session_id": identity.SessionID},
		Meta:        meta,
	})
	log.Printf("User %s logged out of session %s", identity.UserID, identity.SessionID)
	return nil
}

func (s *service) LogoutAll(ctx context.Context, identity *models.Identity, meta models.RequestMeta) (int, error) {
	if identity == nil {
		return 0, domainErrors.ErrUnauthenticated
	}
	ids, err := s.tracker.RemoveAllForUser(ctx, identity.UserID)
	if err != nil {
		return 0, err
	}
	if err := s.users.IncrementTokenVersion(ctx, identity.UserID); err != nil {
		return 0, domainErrors.FromStore(err)
	}

	s.audit.RecordAsync(audit.Entry{
		Action:      models.AuditUserLogoutAll,
		TargetID:    identity.UserID,
		PerformedBy: identity.UserID,
		Details:     map[string]interface{}{"sessions": len(ids)},
		Meta:        meta,
	})
	log.Printf("User %s logged out of %d sessions", identity.UserID, len(ids))
	return len(ids), nil
}

func (s *service) Sessions(ctx context.Context, identity *models.Identity) ([]models.Session, error) {
	if identity == nil {
		return nil, domainErrors.ErrUnauthenticated
	}
	return s.tracker.ListForUser(ctx, identity.UserID)
}

func (s *service) RevokeUser(ctx context.Context, userID string) error {
	if _, err := s.tracker.RemoveAllForUser(ctx, userID); err != nil {
		return err
	}
	if err := s.users.IncrementTokenVersion(ctx, userID); err != nil {
		if errors.Is(err, repositories.ErrUserNotFound) {
			return domainErrors.ErrUserNotFound
		}
		return domainErrors.FromStore(err)
	}
	return nil
}
