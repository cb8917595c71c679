package models

import (
	"errors"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// AuditAction tags the kind of audited event.
type AuditAction string

const (
	AuditOrderCreated       AuditAction = "order_created"
	AuditOrderUTRSubmitted  AuditAction = "order_utr_submitted"
	AuditOrderStatusUpdated AuditAction = "order_status_updated"
	AuditOrderExpired       AuditAction = "order_expired"

	AuditSettingsUpdated AuditAction = "settings_updated"
	AuditSettingsReset   AuditAction = "settings_reset"

	AuditUserRoleUpdated AuditAction = "user_role_updated"
	AuditUserLogin       AuditAction = "user_login"
	AuditUserLoginFailed AuditAction = "user_login_failed"
	AuditUserLogout      AuditAction = "user_logout"
	AuditUserLogoutAll   AuditAction = "user_logout_all"

	AuditSessionIPChanged  AuditAction = "session_ip_changed"
	AuditRateLimitExceeded AuditAction = "rate_limit_exceeded"
	AuditCSRFRejected      AuditAction = "csrf_rejected"
)

// ErrAuditImmutable is returned by the hooks guarding audit rows.
var ErrAuditImmutable = errors.New("audit log entries are append-only")

// Column widths of the bounded audit text fields, in characters.
const (
	AuditTargetIDSize    = 256
	AuditPerformedBySize = 64
	AuditNameSize        = 128
	AuditIPSize          = 64
	AuditUserAgentSize   = 512
)

// AuditLog is an immutable record of an action.
type AuditLog struct {
	ID              string            `gorm:"primaryKey;type:varchar(36)" json:"id"`
	Action          AuditAction       `gorm:"size:64;not null;index" json:"action"`
	TargetID        string            `gorm:"size:256;index" json:"target_id"`
	PerformedBy     string            `gorm:"size:64;not null;index" json:"performed_by"`
	PerformedByName string            `gorm:"size:128" json:"performed_by_name"`
	Details         datatypes.JSONMap `gorm:"type:jsonb" json:"details"`
	IPAddress       string            `gorm:"size:64" json:"ip_address"`
	UserAgent       string            `gorm:"size:512" json:"user_agent"`
	Timestamp       time.Time         `gorm:"not null;index" json:"timestamp"`
}

func (AuditLog) TableName() string { return "audit_logs" }

func (a *AuditLog) BeforeUpdate(tx *gorm.DB) error { return ErrAuditImmutable }

func (a *AuditLog) BeforeDelete(tx *gorm.DB) error { return ErrAuditImmutable }

// AuditFilter narrows audit listings.
type AuditFilter struct {
	Action      string
	PerformedBy string
	TargetID    string
	Since       *time.Time
	Until       *time.Time
	Limit       int
	Offset      int
}
