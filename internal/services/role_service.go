package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"gorm.io/gorm"

	"github.com/oakdesk/oakdesk/internal/models"
	apperrors "github.com/oakdesk/oakdesk/pkg/errors"
)

var (
	// ErrRoleNotFound indicates the requested role does not exist.
	ErrRoleNotFound = apperrors.New("ROLE_NOT_FOUND", "Role not found", http.StatusNotFound)
	// ErrPermissionNotFound indicates the requested permission does not exist.
	ErrPermissionNotFound = apperrors.New("PERMISSION_NOT_FOUND", "Permission not found", http.StatusNotFound)
	// ErrSystemRoleImmutable prevents destructive operations on system roles.
	ErrSystemRoleImmutable = apperrors.New("ROLE_IMMUTABLE", "System roles cannot be modified", http.StatusBadRequest)
)

// RoleService manages the role and permission catalog. Catalog rows are
// deactivated rather than deleted so historic grants keep their references.
type RoleService struct {
	db    *gorm.DB
	audit *AuditService
}

// NewRoleService constructs a RoleService using the provided database handle.
func NewRoleService(db *gorm.DB, audit *AuditService) (*RoleService, error) {
	if db == nil {
		return nil, errors.New("role service: db is required")
	}
	if audit == nil {
		return nil, errors.New("role service: audit service is required")
	}
	return &RoleService{db: db, audit: audit}, nil
}

// CreateRoleInput describes the payload accepted by CreateRole.
type CreateRoleInput struct {
	Name           string
	DisplayName    string
	Description    string
	HierarchyLevel int
	IsSystem       bool
	PerformedBy    string
}

// CreateRole registers a new role.
func (s *RoleService) CreateRole(ctx context.Context, input CreateRoleInput) (*models.Role, error) {
	ctx = ensureContext(ctx)

	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, apperrors.NewBadRequest("role name is required")
	}

	role := &models.Role{
		Name:           name,
		DisplayName:    strings.TrimSpace(input.DisplayName),
		Description:    strings.TrimSpace(input.Description),
		HierarchyLevel: input.HierarchyLevel,
		IsSystem:       input.IsSystem,
		IsActive:       true,
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(role).Error; err != nil {
			if isUniqueConstraintError(err) {
				return apperrors.NewBadRequest("role name already exists")
			}
			return fmt.Errorf("role service: create role: %w", err)
		}

		return s.audit.RecordTx(ctx, tx, AuditRecord{
			UserID:      input.PerformedBy,
			RoleID:      &role.ID,
			Action:      models.AuditActionModified,
			PerformedBy: input.PerformedBy,
			NewValues: map[string]any{
				"name":            role.Name,
				"hierarchy_level": role.HierarchyLevel,
				"is_system":       role.IsSystem,
			},
		})
	})
	if err != nil {
		return nil, err
	}

	return role, nil
}

// UpdateRoleInput describes mutable fields on a role.
type UpdateRoleInput struct {
	DisplayName string
	Description string
	PerformedBy string
}

// UpdateRole modifies role metadata. Names and hierarchy levels are fixed at
// creation; changing authority means creating a new role.
func (s *RoleService) UpdateRole(ctx context.Context, roleID string, input UpdateRoleInput) (*models.Role, error) {
	ctx = ensureContext(ctx)

	var role models.Role
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&role, "id = ?", roleID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrRoleNotFound
			}
			return fmt.Errorf("role service: load role: %w", err)
		}

		old := map[string]any{
			"display_name": role.DisplayName,
			"description":  role.Description,
		}

		updates := map[string]any{}
		if name := strings.TrimSpace(input.DisplayName); name != "" && name != role.DisplayName {
			updates["display_name"] = name
		}
		if desc := strings.TrimSpace(input.Description); desc != role.Description {
			updates["description"] = desc
		}

		if len(updates) == 0 {
			return nil
		}

		if err := tx.Model(&role).Updates(updates).Error; err != nil {
			return fmt.Errorf("role service: update role: %w", err)
		}

		return s.audit.RecordTx(ctx, tx, AuditRecord{
			UserID:      input.PerformedBy,
			RoleID:      &role.ID,
			Action:      models.AuditActionModified,
			PerformedBy: input.PerformedBy,
			OldValues:   old,
			NewValues:   updates,
		})
	})
	if err != nil {
		return nil, err
	}

	return &role, nil
}

// DeactivateRole turns the role off without deleting it. Every permission it
// would grant stops being in effect immediately.
func (s *RoleService) DeactivateRole(ctx context.Context, roleID, performedBy string) error {
	ctx = ensureContext(ctx)

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var role models.Role
		if err := tx.First(&role, "id = ?", roleID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrRoleNotFound
			}
			return fmt.Errorf("role service: load role: %w", err)
		}

		if role.IsSystem {
			return ErrSystemRoleImmutable
		}
		if !role.IsActive {
			return nil
		}

		if err := tx.Model(&role).Update("is_active", false).Error; err != nil {
			return fmt.Errorf("role service: deactivate role: %w", err)
		}

		return s.audit.RecordTx(ctx, tx, AuditRecord{
			UserID:      performedBy,
			RoleID:      &role.ID,
			Action:      models.AuditActionModified,
			PerformedBy: performedBy,
			OldValues:   map[string]any{"is_active": true},
			NewValues:   map[string]any{"is_active": false},
		})
	})
}

// ListRoles returns all roles ordered by hierarchy level descending.
func (s *RoleService) ListRoles(ctx context.Context) ([]models.Role, error) {
	ctx = ensureContext(ctx)

	var roles []models.Role
	if err := s.db.WithContext(ctx).
		Preload("Permissions").
		Order("hierarchy_level DESC, name ASC").
		Find(&roles).Error; err != nil {
		return nil, fmt.Errorf("role service: list roles: %w", err)
	}
	return roles, nil
}

// SetRolePermissions replaces the role's attached permissions with the named set.
func (s *RoleService) SetRolePermissions(ctx context.Context, roleID string, permissionNames []string, performedBy string) error {
	ctx = ensureContext(ctx)

	names := normaliseNames(permissionNames)

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var role models.Role
		if err := tx.Preload("Permissions").First(&role, "id = ?", roleID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrRoleNotFound
			}
			return fmt.Errorf("role service: load role: %w", err)
		}

		if role.IsSystem {
			return ErrSystemRoleImmutable
		}

		oldNames := make([]string, 0, len(role.Permissions))
		for _, perm := range role.Permissions {
			oldNames = append(oldNames, perm.Name)
		}

		var perms []models.Permission
		if len(names) > 0 {
			if err := tx.Where("name IN ?", names).Find(&perms).Error; err != nil {
				return fmt.Errorf("role service: load permissions: %w", err)
			}
			if len(perms) != len(names) {
				return ErrPermissionNotFound
			}
		}

		if err := tx.Model(&role).Association("Permissions").Replace(perms); err != nil {
			return fmt.Errorf("role service: replace permissions: %w", err)
		}

		return s.audit.RecordTx(ctx, tx, AuditRecord{
			UserID:      performedBy,
			RoleID:      &role.ID,
			Action:      models.AuditActionModified,
			PerformedBy: performedBy,
			OldValues:   map[string]any{"permissions": oldNames},
			NewValues:   map[string]any{"permissions": names},
		})
	})
}

// CreatePermissionInput describes the payload accepted by CreatePermission.
type CreatePermissionInput struct {
	Name        string
	DisplayName string
	Resource    string
	Action      string
	PerformedBy string
}

// CreatePermission registers a new capability in the catalog.
func (s *RoleService) CreatePermission(ctx context.Context, input CreatePermissionInput) (*models.Permission, error) {
	ctx = ensureContext(ctx)

	resource := strings.TrimSpace(input.Resource)
	action := strings.TrimSpace(input.Action)
	if resource == "" || action == "" {
		return nil, apperrors.NewBadRequest("permission resource and action are required")
	}

	name := strings.TrimSpace(input.Name)
	if name == "" {
		name = resource + "." + action
	}

	perm := &models.Permission{
		Name:        name,
		DisplayName: strings.TrimSpace(input.DisplayName),
		Resource:    resource,
		Action:      action,
		IsActive:    true,
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(perm).Error; err != nil {
			if isUniqueConstraintError(err) {
				return apperrors.NewBadRequest("permission name already exists")
			}
			return fmt.Errorf("role service: create permission: %w", err)
		}

		return s.audit.RecordTx(ctx, tx, AuditRecord{
			UserID:       input.PerformedBy,
			PermissionID: &perm.ID,
			Action:       models.AuditActionModified,
			PerformedBy:  input.PerformedBy,
			NewValues: map[string]any{
				"name":     perm.Name,
				"resource": perm.Resource,
				"action":   perm.Action,
			},
		})
	})
	if err != nil {
		return nil, err
	}

	return perm, nil
}

// DeactivatePermission makes the permission unavailable everywhere without
// deleting grant history.
func (s *RoleService) DeactivatePermission(ctx context.Context, permissionID, performedBy string) error {
	ctx = ensureContext(ctx)

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var perm models.Permission
		if err := tx.First(&perm, "id = ?", permissionID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrPermissionNotFound
			}
			return fmt.Errorf("role service: load permission: %w", err)
		}

		if !perm.IsActive {
			return nil
		}

		if err := tx.Model(&perm).Update("is_active", false).Error; err != nil {
			return fmt.Errorf("role service: deactivate permission: %w", err)
		}

		return s.audit.RecordTx(ctx, tx, AuditRecord{
			UserID:       performedBy,
			PermissionID: &perm.ID,
			Action:       models.AuditActionModified,
			PerformedBy:  performedBy,
			OldValues:    map[string]any{"is_active": true},
			NewValues:    map[string]any{"is_active": false},
		})
	})
}

// ListPermissions returns the whole catalog ordered by resource then action.
func (s *RoleService) ListPermissions(ctx context.Context) ([]models.Permission, error) {
	ctx = ensureContext(ctx)

	var perms []models.Permission
	if err := s.db.WithContext(ctx).
		Order("resource ASC, action ASC").
		Find(&perms).Error; err != nil {
		return nil, fmt.Errorf("role service: list permissions: %w", err)
	}
	return perms, nil
}
