package models

// Role is a named bundle of permissions. HierarchyLevel imposes a total
// order used to gate who may grant which roles: a granter can only manage
// roles strictly below their own level.
type Role struct {
	BaseModel

	Name           string `gorm:"uniqueIndex;not null" json:"name"`
	DisplayName    string `json:"display_name"`
	Description    string `json:"description"`
	HierarchyLevel int    `gorm:"default:0;index" json:"hierarchy_level"`
	IsSystem       bool   `gorm:"default:false" json:"is_system"`
	IsActive       bool   `gorm:"default:true" json:"is_active"`

	Permissions []Permission `gorm:"many2many:role_permissions;" json:"permissions,omitempty"`
	Assignments []UserRole   `gorm:"foreignKey:RoleID" json:"assignments,omitempty"`
}
