package repositories

import (
	"context"

	"upilink/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SettingsRepository persists the settings singleton and its change history.
type SettingsRepository interface {
	// Get returns the singleton, inserting the defaults when absent.
	Get(ctx context.Context) (*models.SystemSettings, error)
	// Save overwrites the singleton. Concurrent saves are last-write-wins.
	Save(ctx context.Context, settings *models.SystemSettings) error
	AppendHistory(ctx context.Context, entry *models.SettingsHistory) error
	History(ctx context.Context, limit, offset int) ([]models.SettingsHistory, int64, error)
}

type settingsRepository struct {
	db *gorm.DB
}

func NewSettingsRepository(db *gorm.DB) SettingsRepository {
	return &settingsRepository{db: db}
}

func (r *settingsRepository) Get(ctx context.Context) (*models.SystemSettings, error) {
	db := conn(ctx, r.db)

	// Two first readers may race to materialize the defaults; the loser's
	// insert is a no-op and both then read the same row.
	defaults := models.DefaultSettings()
	if err := db.Clauses(clause.OnConflict{DoNothing: true}).Create(defaults).Error; err != nil {
		return nil, translate(err)
	}

	var settings models.SystemSettings
	if err := db.First(&settings, models.SettingsSingletonID).Error; err != nil {
		return nil, translate(err)
	}
	return &settings, nil
}

func (r *settingsRepository) Save(ctx context.Context, settings *models.SystemSettings) error {
	settings.ID = models.SettingsSingletonID
	return translate(conn(ctx, r.db).Save(settings).Error)
}

func (r *settingsRepository) AppendHistory(ctx context.Context, entry *models.SettingsHistory) error {
	return translate(conn(ctx, r.db).Create(entry).Error)
}

func (r *settingsRepository) History(ctx context.Context, limit, offset int) ([]models.SettingsHistory, int64, error) {
	var entries []models.SettingsHistory
	var total int64

	db := conn(ctx, r.db)
	if err := db.Model(&models.SettingsHistory{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}
	err := db.Order("created_at DESC").Limit(limit).Offset(offset).Find(&entries).Error
	return entries, total, err
}
