package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Audit action kinds recorded in PermissionAudit rows.
const (
	AuditActionGranted      = "granted"
	AuditActionRevoked      = "revoked"
	AuditActionModified     = "modified"
	AuditActionUnauthorized = "unauthorized_access_attempt"
)

// PermissionAudit is an append-only record of authorization mutations and
// denied access attempts. Rows are never updated or deleted.
type PermissionAudit struct {
	ID           string         `gorm:"primaryKey;type:uuid" json:"id"`
	UserID       string         `gorm:"type:uuid;not null;index" json:"user_id"`
	PermissionID *string        `gorm:"type:uuid;index" json:"permission_id"`
	RoleID       *string        `gorm:"type:uuid;index" json:"role_id"`
	Action       string         `gorm:"not null;index" json:"action"`
	OldValues    datatypes.JSON `json:"old_values"`
	NewValues    datatypes.JSON `json:"new_values"`
	PerformedBy  string         `gorm:"type:uuid;index" json:"performed_by"`
	IPAddress    string         `json:"ip_address"`
	UserAgent    string         `json:"user_agent"`
	Reason       string         `json:"reason"`
	CreatedAt    time.Time      `gorm:"index" json:"created_at"`

	User       *User       `gorm:"foreignKey:UserID" json:"user,omitempty"`
	Permission *Permission `gorm:"foreignKey:PermissionID" json:"permission,omitempty"`
	Role       *Role       `gorm:"foreignKey:RoleID" json:"role,omitempty"`
}

// BeforeCreate ensures a UUID is present before persisting.
func (p *PermissionAudit) BeforeCreate(tx *gorm.DB) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	return nil
}
