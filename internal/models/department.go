package models

import "strings"

// Department is a node in the organisational tree. Path is the materialized
// ancestor chain (IDs separated by slashes, e.g. "/1/4/"); root nodes carry
// "/". The chain never includes the node's own ID.
type Department struct {
	BaseModel

	Name        string  `gorm:"not null;index" json:"name"`
	Description string  `json:"description"`
	ParentID    *string `gorm:"type:uuid;index" json:"parent_id"`
	Path        string  `gorm:"not null;default:'/';index" json:"path"`
	IsActive    bool    `gorm:"default:true" json:"is_active"`
	ManagerID   *string `gorm:"type:uuid" json:"manager_id"`

	Parent   *Department  `gorm:"foreignKey:ParentID" json:"parent,omitempty"`
	Children []Department `gorm:"foreignKey:ParentID" json:"children,omitempty"`
}

// SubtreePrefix returns the path prefix shared by every descendant of the
// department.
func (d *Department) SubtreePrefix() string {
	path := d.Path
	if path == "" {
		path = "/"
	}
	return path + d.ID + "/"
}

// AncestorIDs parses the materialized path into the ordered ancestor chain,
// outermost first. Roots return an empty slice.
func (d *Department) AncestorIDs() []string {
	trimmed := strings.Trim(d.Path, "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}

// IsDescendantOf reports whether the department sits anywhere below other.
func (d *Department) IsDescendantOf(other *Department) bool {
	if other == nil || other.ID == "" {
		return false
	}
	return strings.Contains(d.Path, "/"+other.ID+"/")
}
