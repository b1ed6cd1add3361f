package models

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"
)

// EmergencyAccess is a break-glass grant: an explicit permission list bound
// to a user for a short window, bypassing role mediation. Rows transition
// through used, expired, and revoked states but are never deleted.
type EmergencyAccess struct {
	BaseModel

	UserID      string         `gorm:"type:uuid;not null;index" json:"user_id"`
	Permissions datatypes.JSON `gorm:"not null" json:"permissions"`
	GrantedBy   string         `gorm:"type:uuid;not null" json:"granted_by"`
	Reason      string         `gorm:"not null" json:"reason"`
	GrantedAt   time.Time      `gorm:"not null" json:"granted_at"`
	ExpiresAt   time.Time      `gorm:"not null;index" json:"expires_at"`

	// Token, when present, makes the grant single-use: the first successful
	// consumption stamps UsedAt and the transition is one-way.
	Token    *string    `gorm:"uniqueIndex" json:"-"`
	UsedAt   *time.Time `json:"used_at"`
	IsActive bool       `gorm:"default:true;index" json:"is_active"`

	User *User `gorm:"foreignKey:UserID" json:"user,omitempty"`
}

// InEffect reports whether the grant confers access at the supplied instant.
func (e *EmergencyAccess) InEffect(now time.Time) bool {
	return e.IsActive && e.ExpiresAt.After(now)
}

// PermissionNames decodes the stored permission list.
func (e *EmergencyAccess) PermissionNames() ([]string, error) {
	if len(e.Permissions) == 0 {
		return nil, nil
	}
	var names []string
	if err := json.Unmarshal(e.Permissions, &names); err != nil {
		return nil, err
	}
	return names, nil
}

// Covers reports whether the grant names the permission explicitly.
func (e *EmergencyAccess) Covers(permission string) bool {
	names, err := e.PermissionNames()
	if err != nil {
		return false
	}
	for _, name := range names {
		if name == permission {
			return true
		}
	}
	return false
}
