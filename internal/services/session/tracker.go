// Package session tracks active logins: idle expiry, a per-user cap and
// IP-change flagging.
package session

import (
	"context"
	"log"
	"sort"
	"time"

	domainErrors "upilink/internal/errors"
	"upilink/internal/metrics"
	"upilink/internal/models"
	"upilink/internal/repositories/cache"

	"github.com/google/uuid"
)

// Reasons reported to metrics when a session ends.
const (
	ReasonIdle    = "idle"
	ReasonEvicted = "evicted"
	ReasonLogout  = "logout"
	ReasonRevoked = "revoked"
)

type Config struct {
	IdleTimeout time.Duration
	MaxPerUser  int
}

// ValidateResult describes a successful Validate.
type ValidateResult struct {
	Session    *models.Session
	IPChanged  bool
	PreviousIP string
}

type Tracker struct {
	store   cache.SessionStore
	cfg     Config
	metrics metrics.Collector
	now     func() time.Time
}

func NewTracker(store cache.SessionStore, cfg Config, collector metrics.Collector) *Tracker {
	return NewTrackerWithClock(store, cfg, collector, time.Now)
}

func NewTrackerWithClock(store cache.SessionStore, cfg Config, collector metrics.Collector, now func() time.Time) *Tracker {
	if store == nil {
		panic("session store is required")
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = 30 * time.Minute
	}
	if cfg.MaxPerUser <= 0 {
		cfg.MaxPerUser = 5
	}
	if collector == nil {
		collector = metrics.Noop{}
	}
	return &Tracker{store: store, cfg: cfg, metrics: collector, now: now}
}

// Create records a new session and evicts the user's least recently active
// sessions beyond the cap.
func (t *Tracker) Create(ctx context.Context, userID string, role models.Role, meta models.RequestMeta) (*models.Session, error) {
	now := t.now()
	s := &models.Session{
		SessionID:    uuid.NewString(),
		UserID:       userID,
		Role:         role,
		IPAddress:    meta.IPAddress,
		UserAgent:    meta.UserAgent,
		CreatedAt:    now,
		LastActivity: now,
	}
	if err := t.store.Put(ctx, s, t.cfg.IdleTimeout); err != nil {
		return nil, domainErrors.FromStore(err)
	}

	if err := t.enforceCap(ctx, userID, s.SessionID); err != nil {
		log.Printf("Session cap enforcement failed for user %s: %v", userID, err)
	}
	return s, nil
}

func (t *Tracker) enforceCap(ctx context.Context, userID, keep string) error {
	sessions, err := t.store.ListByUser(ctx, userID)
	if err != nil {
		return err
	}
	if len(sessions) <= t.cfg.MaxPerUser {
		return nil
	}

	// Most recently active first; the session just created always survives.
	sort.Slice(sessions, func(i, j int) bool {
		if sessions[i].SessionID == keep {
			return true
		}
		if sessions[j].SessionID == keep {
			return false
		}
		return sessions[i].LastActivity.After(sessions[j].LastActivity)
	})

	var evict []string
	for _, s := range sessions[t.cfg.MaxPerUser:] {
		evict = append(evict, s.SessionID)
	}
	if err := t.store.Delete(ctx, evict...); err != nil {
		return err
	}
	for range evict {
		t.metrics.SessionEnded(ReasonEvicted)
	}
	log.Printf("Evicted %d sessions for user %s over the limit of %d", len(evict), userID, t.cfg.MaxPerUser)
	return nil
}

// Validate checks a session on an authenticated request and refreshes its
// activity time. An IP change is reported, not rejected.
func (t *Tracker) Validate(ctx context.Context, sessionID string, meta models.RequestMeta) (*ValidateResult, error) {
	s, err := t.store.Get(ctx, sessionID)
	if err != nil {
		return nil, domainErrors.FromStore(err)
	}
	if s == nil {
		return nil, domainErrors.ErrSessionExpired
	}

	now := t.now()
	if s.IdleFor(now) > t.cfg.IdleTimeout {
		if err := t.store.Delete(ctx, sessionID); err != nil {
			log.Printf("Failed to remove idle session %s: %v", sessionID, err)
		}
		t.metrics.SessionEnded(ReasonIdle)
		return nil, domainErrors.ErrSessionExpired
	}

	res := &ValidateResult{Session: s}
	if meta.IPAddress != "" && s.IPAddress != "" && meta.IPAddress != s.IPAddress {
		res.IPChanged = true
		res.PreviousIP = s.IPAddress
		log.Printf("Session %s for user %s changed IP from %s to %s", sessionID, s.UserID, s.IPAddress, meta.IPAddress)
		s.IPAddress = meta.IPAddress
	}

	s.LastActivity = now
	stored, err := t.store.Touch(ctx, s, t.cfg.IdleTimeout)
	if err != nil {
		return nil, domainErrors.FromStore(err)
	}
	if !stored {
		// removed by a logout, revocation or cap eviction since the read
		return nil, domainErrors.ErrSessionExpired
	}
	return res, nil
}

// Remove drops one session. Removing an unknown session is not an error.
func (t *Tracker) Remove(ctx context.Context, sessionID string) error {
	if err := t.store.Delete(ctx, sessionID); err != nil {
		return domainErrors.FromStore(err)
	}
	t.metrics.SessionEnded(ReasonLogout)
	return nil
}

// RemoveAllForUser drops every session of userID and returns their ids.
func (t *Tracker) RemoveAllForUser(ctx context.Context, userID string) ([]string, error) {
	sessions, err := t.store.ListByUser(ctx, userID)
	if err != nil {
		return nil, domainErrors.FromStore(err)
	}
	ids := make([]string, 0, len(sessions))
	for _, s := range sessions {
		ids = append(ids, s.SessionID)
	}
	if len(ids) == 0 {
		return nil, nil
	}
	if err := t.store.Delete(ctx, ids...); err != nil {
		return nil, domainErrors.FromStore(err)
	}
	for range ids {
		t.metrics.SessionEnded(ReasonRevoked)
	}
	return ids, nil
}

// ListForUser returns the user's live sessions.
func (t *Tracker) ListForUser(ctx context.Context, userID string) ([]models.Session, error) {
	sessions, err := t.store.ListByUser(ctx, userID)
	if err != nil {
		return nil, domainErrors.FromStore(err)
	}
	return sessions, nil
}

// Sweep removes every idle-expired session and reports how many.
func (t *Tracker) Sweep(ctx context.Context) (int, error) {
	sessions, err := t.store.ListAll(ctx)
	if err != nil {
		return 0, err
	}

	now := t.now()
	var expired []string
	for _, s := range sessions {
		if s.IdleFor(now) > t.cfg.IdleTimeout {
			expired = append(expired, s.SessionID)
		}
	}
	if len(expired) == 0 {
		return 0, nil
	}
	if err := t.store.Delete(ctx, expired...); err != nil {
		return 0, err
	}
	for range expired {
		t.metrics.SessionEnded(ReasonIdle)
	}
	return len(expired), nil
}

// StartSweeper runs Sweep every interval until ctx is done.
func (t *Tracker) StartSweeper(ctx context.Context, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := t.Sweep(ctx)
			if err != nil {
				log.Printf("Session sweep failed: %v", err)
			} else if n > 0 {
				log.Printf("Session sweep removed %d idle sessions", n)
			}
		}
	}
}
