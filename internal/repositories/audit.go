package repositories

import (
	"context"
	"time"

	"upilink/internal/models"

	"gorm.io/gorm"
)

// AuditRepository appends and queries audit entries. It exposes no update or
// delete operation.
type AuditRepository interface {
	Append(ctx context.Context, entry *models.AuditLog) error
	List(ctx context.Context, filter models.AuditFilter) ([]models.AuditLog, int64, error)
	CountByAction(ctx context.Context, since, until time.Time) (map[string]int64, error)
	TopActors(ctx context.Context, since, until time.Time, limit int) ([]ActorStat, error)
}

// ActorStat is the number of audited actions of one actor.
type ActorStat struct {
	PerformedBy string
	Actions     int64
}

type auditRepository struct {
	db *gorm.DB
}

func NewAuditRepository(db *gorm.DB) AuditRepository {
	return &auditRepository{db: db}
}

func (r *auditRepository) Append(ctx context.Context, entry *models.AuditLog) error {
	return translate(conn(ctx, r.db).Create(entry).Error)
}

func (r *auditRepository) List(ctx context.Context, filter models.AuditFilter) ([]models.AuditLog, int64, error) {
	var entries []models.AuditLog
	var total int64

	query := conn(ctx, r.db).Model(&models.AuditLog{})
	if filter.Action != "" {
		query = query.Where("action = ?", filter.Action)
	}
	if filter.PerformedBy != "" {
		query = query.Where("performed_by = ?", filter.PerformedBy)
	}
	if filter.TargetID != "" {
		query = query.Where("target_id = ?", filter.TargetID)
	}
	if filter.Since != nil {
		query = query.Where("timestamp >= ?", *filter.Since)
	}
	if filter.Until != nil {
		query = query.Where("timestamp <= ?", *filter.Until)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	err := query.Order("timestamp DESC").
		Limit(filter.Limit).
		Offset(filter.Offset).
		Find(&entries).Error
	return entries, total, err
}

func (r *auditRepository) CountByAction(ctx context.Context, since, until time.Time) (map[string]int64, error) {
	var rows []struct {
		Action string
		Count  int64
	}
	err := conn(ctx, r.db).Model(&models.AuditLog{}).
		Select("action, COUNT(*) AS count").
		Where("timestamp BETWEEN ? AND ?", since, until).
		Group("action").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	counts := make(map[string]int64, len(rows))
	for _, row := range rows {
		counts[row.Action] = row.Count
	}
	return counts, nil
}

func (r *auditRepository) TopActors(ctx context.Context, since, until time.Time, limit int) ([]ActorStat, error) {
	var stats []ActorStat
	err := conn(ctx, r.db).Model(&models.AuditLog{}).
		Select("performed_by, COUNT(*) AS actions").
		Where("timestamp BETWEEN ? AND ?", since, until).
		Group("performed_by").
		Order("actions DESC").
		Limit(limit).
		Scan(&stats).Error
	return stats, err
}
