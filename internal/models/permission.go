package models

// Permission identifies an atomic capability as a resource and action pair,
// e.g. (tickets, view_department). Deactivating a permission removes it from
// every evaluation without deleting grant history.
type Permission struct {
	BaseModel

	Name        string `gorm:"uniqueIndex;not null" json:"name"`
	DisplayName string `json:"display_name"`
	Resource    string `gorm:"not null;index" json:"resource"`
	Action      string `gorm:"not null;index" json:"action"`
	IsActive    bool   `gorm:"default:true" json:"is_active"`

	Roles []Role `gorm:"many2many:role_permissions;" json:"roles,omitempty"`
}
