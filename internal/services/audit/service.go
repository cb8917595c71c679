// Package audit records security- and business-relevant events.
//
// Record is synchronous and its error is surfaced: callers that mutate
// orders or settings run it inside the same transaction so a mutation is
// never committed without its entry. RecordAsync is fire-and-forget for
// paths that must not fail because of auditing, such as webhooks and
// rate-limit denials.
package audit

import (
	"context"
	"log"
	"sync"
	"time"
	"unicode/utf8"

	domainErrors "upilink/internal/errors"
	"upilink/internal/metrics"
	"upilink/internal/models"
	"upilink/internal/repositories"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

const (
	UnknownUserName = "Unknown User"
	SystemUserName  = "System"

	defaultLookupTimeout = 500 * time.Millisecond
	asyncWriteTimeout    = 5 * time.Second
)

// DisplayNameResolver looks up a human-readable name for a user id.
type DisplayNameResolver interface {
	DisplayName(ctx context.Context, userID string) (string, error)
}

// Entry is one event to record.
type Entry struct {
	Action      models.AuditAction
	TargetID    string
	PerformedBy string
	Details     map[string]interface{}
	Meta        models.RequestMeta
}

type Service interface {
	Record(ctx context.Context, e Entry) error
	RecordAsync(e Entry)
	List(ctx context.Context, filter models.AuditFilter) ([]models.AuditLog, int64, error)
	// DisplayName never fails: lookups that error or time out yield UnknownUserName.
	DisplayName(ctx context.Context, userID string) string
	// Wait blocks until pending asynchronous writes finish.
	Wait()
}

type service struct {
	repo          repositories.AuditRepository
	names         DisplayNameResolver
	metrics       metrics.Collector
	lookupTimeout time.Duration
	now           func() time.Time
	pending       sync.WaitGroup
}

// NewService creates the audit recorder. names may be nil, in which case
// every actor other than the system is shown as UnknownUserName.
func NewService(repo repositories.AuditRepository, names DisplayNameResolver, collector metrics.Collector) Service {
	if repo == nil {
		panic("audit repository is required")
	}
	if collector == nil {
		collector = metrics.Noop{}
	}
	return &service{
		repo:          repo,
		names:         names,
		metrics:       collector,
		lookupTimeout: defaultLookupTimeout,
		now:           time.Now,
	}
}

func (s *service) Record(ctx context.Context, e Entry) error {
	entry := s.build(ctx, e)
	if err := s.repo.Append(ctx, entry); err != nil {
		s.metrics.AuditWriteFailed(string(e.Action))
		log.Printf("Audit write failed for %s on %s: %v", e.Action, e.TargetID, err)
		return domainErrors.FromStore(err)
	}
	return nil
}

func (s *service) RecordAsync(e Entry) {
	s.pending.Add(1)
	go func() {
		defer s.pending.Done()
		defer func() {
			if r := recover(); r != nil {
				log.Printf("Audit async write panicked for %s: %v", e.Action, r)
			}
		}()

		ctx, cancel := context.WithTimeout(context.Background(), asyncWriteTimeout)
		defer cancel()
		_ = s.Record(ctx, e)
	}()
}

func (s *service) Wait() {
	s.pending.Wait()
}

func (s *service) List(ctx context.Context, filter models.AuditFilter) ([]models.AuditLog, int64, error) {
	entries, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, 0, domainErrors.FromStore(err)
	}
	return entries, total, nil
}

func (s *service) DisplayName(_ context.Context, userID string) string {
	if userID == models.SystemActor {
		return SystemUserName
	}
	if userID == "" || s.names == nil {
		return UnknownUserName
	}

	// Detached from ctx so the lookup never joins the caller's transaction.
	lookupCtx, cancel := context.WithTimeout(context.Background(), s.lookupTimeout)
	defer cancel()

	name, err := s.names.DisplayName(lookupCtx, userID)
	if err != nil || name == "" {
		return UnknownUserName
	}
	return name
}

func (s *service) build(ctx context.Context, e Entry) *models.AuditLog {
	performedBy := e.PerformedBy
	if performedBy == "" {
		performedBy = models.SystemActor
	}
	details := datatypes.JSONMap{}
	for k, v := range e.Details {
		details[k] = v
	}

	return &models.AuditLog{
		ID:              uuid.NewString(),
		Action:          e.Action,
		TargetID:        truncate(e.TargetID, models.AuditTargetIDSize),
		PerformedBy:     truncate(performedBy, models.AuditPerformedBySize),
		PerformedByName: truncate(s.DisplayName(ctx, performedBy), models.AuditNameSize),
		Details:         details,
		IPAddress:       truncate(e.Meta.IPAddress, models.AuditIPSize),
		UserAgent:       truncate(e.Meta.UserAgent, models.AuditUserAgentSize),
		Timestamp:       s.now().UTC(),
	}
}

// truncate cuts s to at most n characters so caller-controlled values
// always fit their column.
func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
