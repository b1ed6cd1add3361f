package access

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/oakdesk/oakdesk/internal/models"
)

// ErrPermissionNotFound indicates the named permission is not in the catalog.
var ErrPermissionNotFound = errors.New("access: permission not found")

// Catalog resolves roles to their effective permission sets.
type Catalog struct {
	db *gorm.DB
}

// NewCatalog constructs a catalog backed by the provided database.
func NewCatalog(db *gorm.DB) (*Catalog, error) {
	if db == nil {
		return nil, errors.New("access catalog: db is required")
	}
	return &Catalog{db: db}, nil
}

// PermissionByName looks up a permission regardless of its activity flag so
// callers can distinguish "inactive" from "unknown".
func (c *Catalog) PermissionByName(ctx context.Context, name string) (*models.Permission, error) {
	ctx = ensureContext(ctx)

	var perm models.Permission
	if err := c.db.WithContext(ctx).First(&perm, "name = ?", name).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrPermissionNotFound
		}
		return nil, fmt.Errorf("access catalog: load permission: %w", err)
	}
	return &perm, nil
}

// EffectivePermissions returns the role's attached permissions filtered to
// active ones. An inactive role has an empty effective set regardless of its
// attachments.
func (c *Catalog) EffectivePermissions(ctx context.Context, roleID string) ([]models.Permission, error) {
	ctx = ensureContext(ctx)

	var role models.Role
	if err := c.db.WithContext(ctx).
		Preload("Permissions", "is_active = ?", true).
		First(&role, "id = ?", roleID).Error; err != nil {
		return nil, fmt.Errorf("access catalog: load role: %w", err)
	}

	if !role.IsActive {
		return nil, nil
	}
	return role.Permissions, nil
}

// CanManage reports whether granter may administer the target role. The
// hierarchy level is a simple total order: managers can only hand out roles
// strictly below their own authority.
func (c *Catalog) CanManage(granter, target *models.Role) bool {
	if granter == nil || target == nil {
		return false
	}
	return granter.HierarchyLevel > target.HierarchyLevel
}

func ensureContext(ctx context.Context) context.Context {
	if ctx != nil {
		return ctx
	}
	return context.Background()
}
