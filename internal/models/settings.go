package models

import (
	"time"

	"gorm.io/datatypes"
)

// SettingsSingletonID is the primary key of the only settings row.
const SettingsSingletonID uint = 1

// Settings defaults and bounds.
const (
	DefaultTimerDuration = 9
	MinTimerDuration     = 1
	MaxTimerDuration     = 60
)

// Known UPI apps.
const (
	UPIAppGPay    = "gpay"
	UPIAppPhonePe = "phonepe"
	UPIAppPaytm   = "paytm"
	UPIAppBHIM    = "bhim"
)

// KnownUPIApps is the closed set of app flags accepted in settings.
var KnownUPIApps = []string{UPIAppGPay, UPIAppPhonePe, UPIAppPaytm, UPIAppBHIM}

// IsKnownUPIApp reports whether name is one of KnownUPIApps.
func IsKnownUPIApp(name string) bool {
	for _, a := range KnownUPIApps {
		if a == name {
			return true
		}
	}
	return false
}

// UPIAppFlags maps app name to enabled.
type UPIAppFlags map[string]bool

// DefaultUPIAppFlags enables every known app.
func DefaultUPIAppFlags() UPIAppFlags {
	flags := make(UPIAppFlags, len(KnownUPIApps))
	for _, a := range KnownUPIApps {
		flags[a] = true
	}
	return flags
}

// SystemSettings is the process-wide configuration document.
type SystemSettings struct {
	ID             uint                            `gorm:"primaryKey" json:"-"`
	TimerDuration  int                             `gorm:"not null;default:9" json:"timer_duration"`
	StaticUPIID    *string                         `gorm:"column:static_upi_id;size:256" json:"static_upi_id"`
	EnabledUPIApps datatypes.JSONType[UPIAppFlags] `gorm:"column:enabled_upi_apps;type:jsonb" json:"enabled_upi_apps"`
	UpdatedBy      string                          `gorm:"size:64" json:"updated_by"`
	UpdatedAt      time.Time                       `json:"updated_at"`
}

func (SystemSettings) TableName() string { return "system_settings" }

// DefaultSettings returns the document materialized on first read.
func DefaultSettings() *SystemSettings {
	return &SystemSettings{
		ID:             SettingsSingletonID,
		TimerDuration:  DefaultTimerDuration,
		EnabledUPIApps: datatypes.NewJSONType(DefaultUPIAppFlags()),
		UpdatedBy:      SystemActor,
	}
}

// TimerDurationValue is the order validity window.
func (s *SystemSettings) TimerDurationValue() time.Duration {
	return time.Duration(s.TimerDuration) * time.Minute
}

// Apps returns the enabled-app flags, filling unknown-to-the-row apps with false.
func (s *SystemSettings) Apps() UPIAppFlags {
	stored := s.EnabledUPIApps.Data()
	out := make(UPIAppFlags, len(KnownUPIApps))
	for _, a := range KnownUPIApps {
		out[a] = stored[a]
	}
	return out
}

// EffectiveStaticUPIID returns the override address, or "" when none is set.
func (s *SystemSettings) EffectiveStaticUPIID() string {
	if s.StaticUPIID == nil {
		return ""
	}
	return *s.StaticUPIID
}

// SettingsPatch is a partial settings update. Nil fields are left unchanged.
// ClearStaticUPIID removes the override address.
type SettingsPatch struct {
	TimerDuration    *int            `json:"timer_duration"`
	StaticUPIID      *string         `json:"static_upi_id"`
	ClearStaticUPIID bool            `json:"clear_static_upi_id"`
	EnabledUPIApps   map[string]bool `json:"enabled_upi_apps"`
}

// SettingsHistory is one recorded settings change.
type SettingsHistory struct {
	ID        string            `gorm:"primaryKey;type:varchar(36)" json:"id"`
	Action    string            `gorm:"size:32;not null" json:"action"`
	Previous  datatypes.JSON    `gorm:"type:jsonb" json:"previous"`
	Current   datatypes.JSON    `gorm:"type:jsonb" json:"current"`
	Changes   datatypes.JSONMap `gorm:"type:jsonb" json:"changes"`
	UpdatedBy string            `gorm:"size:64;not null" json:"updated_by"`
	IPAddress string            `gorm:"size:64" json:"ip_address"`
	UserAgent string            `gorm:"size:512" json:"user_agent"`
	CreatedAt time.Time         `gorm:"index" json:"created_at"`
}

func (SettingsHistory) TableName() string { return "settings_history" }
