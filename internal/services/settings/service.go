// Package settings manages the process-wide settings document.
package settings

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"time"

	domainErrors "upilink/internal/errors"
	"upilink/internal/models"
	"upilink/internal/repositories"
	"upilink/internal/repositories/cache"
	"upilink/internal/services/audit"
	"upilink/internal/validation"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// History actions
const (
	ActionUpdate = "update"
	ActionReset  = "reset"
)

const (
	cacheTTL = time.Minute

	// staleReadWindow covers a concurrent Get that read the old row before
	// the commit and writes it back after the first invalidation.
	staleReadWindow   = 2 * time.Second
	invalidateTimeout = 3 * time.Second
)

var cacheKey = cache.Key("settings", "doc", models.SettingsSingletonID)

type Service interface {
	Get(ctx context.Context) (*models.SystemSettings, error)
	Update(ctx context.Context, actor *models.Identity, patch models.SettingsPatch, meta models.RequestMeta) (*models.SystemSettings, error)
	ResetToDefaults(ctx context.Context, actor *models.Identity, meta models.RequestMeta) (*models.SystemSettings, error)
	History(ctx context.Context, actor *models.Identity, limit, offset int) ([]models.SettingsHistory, int64, error)
}

type service struct {
	repo  repositories.SettingsRepository
	tx    repositories.Transactor
	audit audit.Service
	cache cache.Cache
	now   func() time.Time

	reinvalidateAfter time.Duration
}

func NewService(repo repositories.SettingsRepository, tx repositories.Transactor, auditSvc audit.Service, c cache.Cache) Service {
	if repo == nil {
		panic("settings repository is required")
	}
	if tx == nil {
		panic("transactor is required")
	}
	if auditSvc == nil {
		panic("audit service is required")
	}
	if c == nil {
		c = cache.NewMemoryCache()
	}
	return &service{repo: repo, tx: tx, audit: auditSvc, cache: c, now: time.Now, reinvalidateAfter: staleReadWindow}
}

func (s *service) Get(ctx context.Context) (*models.SystemSettings, error) {
	var cached models.SystemSettings
	if found, err := s.cache.Get(ctx, cacheKey, &cached); err == nil && found {
		return &cached, nil
	} else if err != nil {
		log.Printf("Settings cache read failed: %v", err)
	}

	settings, err := s.repo.Get(ctx)
	if err != nil {
		return nil, domainErrors.FromStore(err)
	}
	if err := s.cache.SetWithTTL(ctx, cacheKey, settings, cacheTTL); err != nil {
		log.Printf("Settings cache write failed: %v", err)
	}
	return settings, nil
}

func (s *service) Update(ctx context.Context, actor *models.Identity, patch models.SettingsPatch, meta models.RequestMeta) (*models.SystemSettings, error) {
	if err := authorize(actor); err != nil {
		return nil, err
	}
	if err := validation.ValidateSettingsPatch(&patch); err != nil {
		return nil, err
	}
	return s.apply(ctx, actor, patch, ActionUpdate, models.AuditSettingsUpdated, meta)
}

func (s *service) ResetToDefaults(ctx context.Context, actor *models.Identity, meta models.RequestMeta) (*models.SystemSettings, error) {
	if err := authorize(actor); err != nil {
		return nil, err
	}
	timer := models.DefaultTimerDuration
	patch := models.SettingsPatch{
		TimerDuration:    &timer,
		ClearStaticUPIID: true,
		EnabledUPIApps:   models.DefaultUPIAppFlags(),
	}
	return s.apply(ctx, actor, patch, ActionReset, models.AuditSettingsReset, meta)
}

func (s *service) History(ctx context.Context, actor *models.Identity, limit, offset int) ([]models.SettingsHistory, int64, error) {
	if err := authorize(actor); err != nil {
		return nil, 0, err
	}
	entries, total, err := s.repo.History(ctx, limit, offset)
	if err != nil {
		return nil, 0, domainErrors.FromStore(err)
	}
	return entries, total, nil
}

// apply writes the patched document, its history entry and its audit entry
// in one transaction.
func (s *service) apply(ctx context.Context, actor *models.Identity, patch models.SettingsPatch, action string, auditAction models.AuditAction, meta models.RequestMeta) (*models.SystemSettings, error) {
	var updated *models.SystemSettings

	err := s.tx.WithinTransaction(ctx, func(ctx context.Context) error {
		current, err := s.repo.Get(ctx)
		if err != nil {
			return err
		}
		previous := snapshotOf(current)

		next := *current
		applyPatch(&next, patch)
		next.UpdatedBy = actor.UserID
		next.UpdatedAt = s.now().UTC()
		if err := s.repo.Save(ctx, &next); err != nil {
			return err
		}

		currentSnap := snapshotOf(&next)
		changes := diff(previous, currentSnap)

		entry := &models.SettingsHistory{
			ID:        uuid.NewString(),
			Action:    action,
			Previous:  mustJSON(previous),
			Current:   mustJSON(currentSnap),
			Changes:   changes,
			UpdatedBy: actor.UserID,
			IPAddress: meta.IPAddress,
			UserAgent: meta.UserAgent,
			CreatedAt: next.UpdatedAt,
		}
		if err := s.repo.AppendHistory(ctx, entry); err != nil {
			return err
		}

		if err := s.audit.Record(ctx, audit.Entry{
			Action:      auditAction,
			TargetID:    "system_settings",
			PerformedBy: actor.UserID,
			Details:     map[string]interface{}{"changes": map[string]interface{}(changes)},
			Meta:        meta,
		}); err != nil {
			return err
		}

		updated = &next
		return nil
	})
	if err != nil {
		var de *domainErrors.DomainError
		if errors.As(err, &de) {
			return nil, de
		}
		return nil, domainErrors.FromStore(err)
	}

	s.invalidate(ctx)
	log.Printf("Settings %s by %s", action, actor.UserID)
	return updated, nil
}

// invalidate drops the cached document now and once more after
// reinvalidateAfter.
func (s *service) invalidate(ctx context.Context) {
	if err := s.cache.Delete(ctx, cacheKey); err != nil {
		log.Printf("Settings cache invalidation failed: %v", err)
	}
	time.AfterFunc(s.reinvalidateAfter, func() {
		ctx, cancel := context.WithTimeout(context.Background(), invalidateTimeout)
		defer cancel()
		if err := s.cache.Delete(ctx, cacheKey); err != nil {
			log.Printf("Delayed settings cache invalidation failed: %v", err)
		}
	})
}

func authorize(actor *models.Identity) error {
	if actor == nil {
		return domainErrors.ErrUnauthenticated
	}
	if !actor.Can(models.CapManageSettings) {
		return domainErrors.ErrForbidden
	}
	return nil
}

func applyPatch(s *models.SystemSettings, patch models.SettingsPatch) {
	if patch.TimerDuration != nil {
		s.TimerDuration = *patch.TimerDuration
	}
	if patch.ClearStaticUPIID {
		s.StaticUPIID = nil
	} else if patch.StaticUPIID != nil {
		vpa := *patch.StaticUPIID
		s.StaticUPIID = &vpa
	}
	if patch.EnabledUPIApps != nil {
		apps := s.Apps()
		for app, enabled := range patch.EnabledUPIApps {
			apps[app] = enabled
		}
		s.EnabledUPIApps = datatypes.NewJSONType(apps)
	}
}

// snapshot is the comparable view of the fields an admin can change.
type snapshot struct {
	TimerDuration  int                `json:"timer_duration"`
	StaticUPIID    string             `json:"static_upi_id"`
	EnabledUPIApps models.UPIAppFlags `json:"enabled_upi_apps"`
}

func snapshotOf(s *models.SystemSettings) snapshot {
	return snapshot{
		TimerDuration:  s.TimerDuration,
		StaticUPIID:    s.EffectiveStaticUPIID(),
		EnabledUPIApps: s.Apps(),
	}
}

func diff(before, after snapshot) datatypes.JSONMap {
	changes := datatypes.JSONMap{}
	if before.TimerDuration != after.TimerDuration {
		changes["timer_duration"] = map[string]interface{}{"from": before.TimerDuration, "to": after.TimerDuration}
	}
	if before.StaticUPIID != after.StaticUPIID {
		changes["static_upi_id"] = map[string]interface{}{"from": before.StaticUPIID, "to": after.StaticUPIID}
	}
	for _, app := range models.KnownUPIApps {
		if before.EnabledUPIApps[app] != after.EnabledUPIApps[app] {
			changes["enabled_upi_apps."+app] = map[string]interface{}{
				"from": before.EnabledUPIApps[app],
				"to":   after.EnabledUPIApps[app],
			}
		}
	}
	return changes
}

func mustJSON(v interface{}) datatypes.JSON {
	b, err := json.Marshal(v)
	if err != nil {
		return datatypes.JSON("null")
	}
	return datatypes.JSON(b)
}
