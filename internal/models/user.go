package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// User describes helpdesk operators and administrators with their role and
// department relationships.
type User struct {
	ID       string `gorm:"primaryKey;type:uuid" json:"id"`
	Username string `gorm:"uniqueIndex;not null" json:"username"`
	Email    string `gorm:"uniqueIndex;not null" json:"email"`
	Password string `gorm:"not null" json:"-"`

	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`

	IsRoot   bool `gorm:"default:false" json:"is_root"`
	IsActive bool `gorm:"default:true" json:"is_active"`

	DepartmentID *string     `gorm:"type:uuid;index" json:"department_id"`
	Department   *Department `json:"department,omitempty"`

	// Assignments record role grants together with provenance, activity, and
	// expiry metadata. A user may hold the same role through several rows.
	Assignments []UserRole `gorm:"foreignKey:UserID" json:"assignments,omitempty"`

	// Permissions are direct user-to-permission grants that bypass role
	// mediation. They are rare and administrator managed.
	Permissions []Permission `gorm:"many2many:user_permissions;" json:"permissions,omitempty"`

	LastLoginAt *time.Time `json:"last_login_at"`
	LastLoginIP string     `json:"last_login_ip"`

	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

// BeforeCreate ensures a UUID is present before persisting.
func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	return nil
}
