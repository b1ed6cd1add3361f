package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"gorm.io/gorm"

	"github.com/oakdesk/oakdesk/internal/hierarchy"
	"github.com/oakdesk/oakdesk/internal/models"
	apperrors "github.com/oakdesk/oakdesk/pkg/errors"
	"github.com/oakdesk/oakdesk/pkg/metrics"
)

var (
	// ErrDepartmentNotFound indicates the requested department does not exist.
	ErrDepartmentNotFound = apperrors.New("DEPARTMENT_NOT_FOUND", "Department not found", http.StatusNotFound)
	// ErrCircularDepartment rejects reparent operations that would create a cycle.
	ErrCircularDepartment = apperrors.New("DEPARTMENT_CYCLE", "Department cannot become its own ancestor", http.StatusBadRequest)
)

// DepartmentService manages the organisational tree, delegating path
// maintenance and cycle checks to the hierarchy service.
type DepartmentService struct {
	db    *gorm.DB
	audit *AuditService
	tree  *hierarchy.Service
}

// NewDepartmentService constructs a DepartmentService using the provided database handle.
func NewDepartmentService(db *gorm.DB, audit *AuditService) (*DepartmentService, error) {
	if db == nil {
		return nil, errors.New("department service: db is required")
	}
	if audit == nil {
		return nil, errors.New("department service: audit service is required")
	}

	tree, err := hierarchy.NewService(db)
	if err != nil {
		return nil, err
	}
	return &DepartmentService{db: db, audit: audit, tree: tree}, nil
}

// CreateDepartmentInput describes the payload accepted by CreateDepartment.
type CreateDepartmentInput struct {
	Name        string
	Description string
	ParentID    *string
	ManagerID   *string
	PerformedBy string
}

// CreateDepartment inserts a department under the given parent, or as a new
// root when ParentID is nil. A missing parent is rejected, never coerced.
func (s *DepartmentService) CreateDepartment(ctx context.Context, input CreateDepartmentInput) (*models.Department, error) {
	ctx = ensureContext(ctx)

	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, apperrors.NewBadRequest("department name is required")
	}

	dept := &models.Department{
		Name:        name,
		Description: strings.TrimSpace(input.Description),
		ParentID:    input.ParentID,
		Path:        "/",
		IsActive:    true,
		ManagerID:   input.ManagerID,
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if input.ParentID != nil {
			var parent models.Department
			if err := tx.First(&parent, "id = ?", *input.ParentID).Error; err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return ErrDepartmentNotFound
				}
				return fmt.Errorf("department service: load parent: %w", err)
			}
			dept.Path = parent.SubtreePrefix()
		}

		if err := tx.Create(dept).Error; err != nil {
			return fmt.Errorf("department service: create department: %w", err)
		}

		return s.audit.RecordTx(ctx, tx, AuditRecord{
			UserID:      input.PerformedBy,
			Action:      models.AuditActionModified,
			PerformedBy: input.PerformedBy,
			NewValues: map[string]any{
				"department_id": dept.ID,
				"name":          dept.Name,
				"path":          dept.Path,
			},
		})
	})
	if err != nil {
		return nil, err
	}

	return dept, nil
}

// UpdateDepartmentInput describes mutable department fields.
type UpdateDepartmentInput struct {
	Name        string
	Description string
	ManagerID   *string
	PerformedBy string
}

// UpdateDepartment modifies department metadata. Moving a department is a
// separate Reparent operation.
func (s *DepartmentService) UpdateDepartment(ctx context.Context, departmentID string, input UpdateDepartmentInput) (*models.Department, error) {
	ctx = ensureContext(ctx)

	var dept models.Department
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&dept, "id = ?", departmentID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrDepartmentNotFound
			}
			return fmt.Errorf("department service: load department: %w", err)
		}

		old := map[string]any{
			"name":        dept.Name,
			"description": dept.Description,
		}

		updates := map[string]any{}
		if name := strings.TrimSpace(input.Name); name != "" && name != dept.Name {
			updates["name"] = name
		}
		if desc := strings.TrimSpace(input.Description); desc != dept.Description {
			updates["description"] = desc
		}
		if input.ManagerID != nil {
			updates["manager_id"] = input.ManagerID
		}

		if len(updates) == 0 {
			return nil
		}

		if err := tx.Model(&dept).Updates(updates).Error; err != nil {
			return fmt.Errorf("department service: update department: %w", err)
		}

		return s.audit.RecordTx(ctx, tx, AuditRecord{
			UserID:      input.PerformedBy,
			Action:      models.AuditActionModified,
			PerformedBy: input.PerformedBy,
			OldValues:   old,
			NewValues:   updates,
		})
	})
	if err != nil {
		return nil, err
	}

	return &dept, nil
}

// DeactivateDepartment hides the department from active descendant queries
// without touching its children.
func (s *DepartmentService) DeactivateDepartment(ctx context.Context, departmentID, performedBy string) error {
	ctx = ensureContext(ctx)

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var dept models.Department
		if err := tx.First(&dept, "id = ?", departmentID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrDepartmentNotFound
			}
			return fmt.Errorf("department service: load department: %w", err)
		}

		if !dept.IsActive {
			return nil
		}

		if err := tx.Model(&dept).Update("is_active", false).Error; err != nil {
			return fmt.Errorf("department service: deactivate department: %w", err)
		}

		return s.audit.RecordTx(ctx, tx, AuditRecord{
			UserID:      performedBy,
			Action:      models.AuditActionModified,
			PerformedBy: performedBy,
			OldValues:   map[string]any{"is_active": true},
			NewValues:   map[string]any{"is_active": false, "department_id": dept.ID},
		})
	})
}

// Reparent moves a department under a new parent, cascading the path rewrite
// over the whole subtree. Cycles and dangling parents are rejected before
// any mutation.
func (s *DepartmentService) Reparent(ctx context.Context, departmentID string, newParentID *string, performedBy string) error {
	ctx = ensureContext(ctx)

	before, err := s.tree.Get(ctx, departmentID)
	if err != nil {
		if errors.Is(err, hierarchy.ErrDepartmentNotFound) {
			return ErrDepartmentNotFound
		}
		return err
	}

	if err := s.tree.Reparent(ctx, departmentID, newParentID); err != nil {
		switch {
		case errors.Is(err, hierarchy.ErrCircularReference):
			metrics.DepartmentReparents.WithLabelValues("cycle_rejected").Inc()
			return ErrCircularDepartment
		case errors.Is(err, hierarchy.ErrDepartmentNotFound):
			metrics.DepartmentReparents.WithLabelValues("error").Inc()
			return ErrDepartmentNotFound
		default:
			metrics.DepartmentReparents.WithLabelValues("error").Inc()
			return err
		}
	}
	metrics.DepartmentReparents.WithLabelValues("success").Inc()

	after, err := s.tree.Get(ctx, departmentID)
	if err != nil {
		return err
	}

	oldParent := ""
	if before.ParentID != nil {
		oldParent = *before.ParentID
	}
	newParent := ""
	if newParentID != nil {
		newParent = *newParentID
	}

	return s.audit.Record(ctx, AuditRecord{
		UserID:      performedBy,
		Action:      models.AuditActionModified,
		PerformedBy: performedBy,
		OldValues:   map[string]any{"parent_id": oldParent, "path": before.Path},
		NewValues:   map[string]any{"parent_id": newParent, "path": after.Path, "department_id": departmentID},
	})
}

// Get returns a single department.
func (s *DepartmentService) Get(ctx context.Context, departmentID string) (*models.Department, error) {
	dept, err := s.tree.Get(ensureContext(ctx), departmentID)
	if errors.Is(err, hierarchy.ErrDepartmentNotFound) {
		return nil, ErrDepartmentNotFound
	}
	return dept, err
}

// List returns every department ordered by path so subtrees group together.
func (s *DepartmentService) List(ctx context.Context) ([]models.Department, error) {
	ctx = ensureContext(ctx)

	var depts []models.Department
	if err := s.db.WithContext(ctx).Order("path ASC, name ASC").Find(&depts).Error; err != nil {
		return nil, fmt.Errorf("department service: list departments: %w", err)
	}
	return depts, nil
}

// Ancestors exposes the hierarchy ancestor chain.
func (s *DepartmentService) Ancestors(ctx context.Context, departmentID string) ([]models.Department, error) {
	rows, err := s.tree.Ancestors(ensureContext(ctx), departmentID)
	if errors.Is(err, hierarchy.ErrDepartmentNotFound) {
		return nil, ErrDepartmentNotFound
	}
	return rows, err
}

// Descendants exposes the hierarchy active descendant query.
func (s *DepartmentService) Descendants(ctx context.Context, departmentID string) ([]models.Department, error) {
	rows, err := s.tree.Descendants(ensureContext(ctx), departmentID)
	if errors.Is(err, hierarchy.ErrDepartmentNotFound) {
		return nil, ErrDepartmentNotFound
	}
	return rows, err
}
