package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// UserRole is a single role grant. Several rows may exist for the same user
// and role pair (for example one permanent and one temporal); each row is in
// effect independently. Expiry is evaluated at read time so expired rows
// remain for audit purposes.
type UserRole struct {
	ID     string `gorm:"primaryKey;type:uuid" json:"id"`
	UserID string `gorm:"type:uuid;not null;index" json:"user_id"`
	RoleID string `gorm:"type:uuid;not null;index" json:"role_id"`

	GrantedBy        string     `gorm:"type:uuid" json:"granted_by"`
	GrantedAt        time.Time  `gorm:"not null" json:"granted_at"`
	ExpiresAt        *time.Time `gorm:"index" json:"expires_at"`
	IsActive         bool       `gorm:"default:true;index" json:"is_active"`
	DelegationReason string     `json:"delegation_reason"`

	User *User `gorm:"foreignKey:UserID" json:"user,omitempty"`
	Role *Role `gorm:"foreignKey:RoleID" json:"role,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// BeforeCreate ensures a UUID is present before persisting.
func (a *UserRole) BeforeCreate(tx *gorm.DB) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	return nil
}

// InEffect reports whether the grant confers access at the supplied instant.
func (a *UserRole) InEffect(now time.Time) bool {
	if !a.IsActive {
		return false
	}
	return a.ExpiresAt == nil || a.ExpiresAt.After(now)
}
