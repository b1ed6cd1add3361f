package hierarchy

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/oakdesk/oakdesk/internal/models"
)

var (
	// ErrCircularReference indicates a reparent that would make a department
	// its own ancestor. The tree is left untouched.
	ErrCircularReference = errors.New("hierarchy: reparenting would create a cycle")
	// ErrDepartmentNotFound indicates the department or target parent does not exist.
	ErrDepartmentNotFound = errors.New("hierarchy: department not found")
)

// Service maintains the department tree and answers ancestor and descendant
// queries used to scope department-level permissions.
type Service struct {
	db *gorm.DB
}

// NewService constructs a hierarchy service backed by the provided database.
func NewService(db *gorm.DB) (*Service, error) {
	if db == nil {
		return nil, errors.New("hierarchy: db is required")
	}
	return &Service{db: db}, nil
}

// Get loads a single department by ID.
func (s *Service) Get(ctx context.Context, departmentID string) (*models.Department, error) {
	ctx = ensureContext(ctx)

	var dept models.Department
	if err := s.db.WithContext(ctx).First(&dept, "id = ?", departmentID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrDepartmentNotFound
		}
		return nil, fmt.Errorf("hierarchy: load department: %w", err)
	}
	return &dept, nil
}

// Ancestors resolves the department's materialized path into Department
// records ordered outermost first. Roots return an empty slice.
func (s *Service) Ancestors(ctx context.Context, departmentID string) ([]models.Department, error) {
	ctx = ensureContext(ctx)

	dept, err := s.Get(ctx, departmentID)
	if err != nil {
		return nil, err
	}

	ids := dept.AncestorIDs()
	if len(ids) == 0 {
		return nil, nil
	}

	var rows []models.Department
	if err := s.db.WithContext(ctx).Where("id IN ?", ids).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("hierarchy: load ancestors: %w", err)
	}

	// Preserve path order, not database order.
	byID := make(map[string]models.Department, len(rows))
	for _, row := range rows {
		byID[row.ID] = row
	}

	ordered := make([]models.Department, 0, len(ids))
	for _, id := range ids {
		if row, ok := byID[id]; ok {
			ordered = append(ordered, row)
		}
	}
	return ordered, nil
}

// Descendants returns every active department anywhere below the given one.
func (s *Service) Descendants(ctx context.Context, departmentID string) ([]models.Department, error) {
	ctx = ensureContext(ctx)

	dept, err := s.Get(ctx, departmentID)
	if err != nil {
		return nil, err
	}

	var rows []models.Department
	if err := s.db.WithContext(ctx).
		Where("path LIKE ? AND is_active = ?", dept.SubtreePrefix()+"%", true).
		Order("path ASC, name ASC").
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("hierarchy: load descendants: %w", err)
	}
	return rows, nil
}

// IsAncestorOf reports whether department a sits anywhere above department b.
func (s *Service) IsAncestorOf(ctx context.Context, aID, bID string) (bool, error) {
	ctx = ensureContext(ctx)

	b, err := s.Get(ctx, bID)
	if err != nil {
		return false, err
	}
	return strings.Contains(b.Path, "/"+aID+"/"), nil
}

// Reparent moves a department (and its whole subtree) under a new parent, or
// to the root when newParentID is nil. The cycle check and the cascading path
// rewrite run in one transaction so a failure never leaves the tree with a
// partially rewritten path.
func (s *Service) Reparent(ctx context.Context, departmentID string, newParentID *string) error {
	ctx = ensureContext(ctx)

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var dept models.Department
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&dept, "id = ?", departmentID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrDepartmentNotFound
			}
			return fmt.Errorf("hierarchy: load department: %w", err)
		}

		newPath := "/"
		if newParentID != nil {
			if *newParentID == dept.ID {
				return ErrCircularReference
			}

			var parent models.Department
			if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
				First(&parent, "id = ?", *newParentID).Error; err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					// Dangling parents are rejected, never silently coerced to root.
					return ErrDepartmentNotFound
				}
				return fmt.Errorf("hierarchy: load new parent: %w", err)
			}

			if parent.IsDescendantOf(&dept) {
				return ErrCircularReference
			}
			newPath = parent.SubtreePrefix()
		}

		oldPrefix := dept.SubtreePrefix()

		if err := tx.Model(&models.Department{}).
			Where("id = ?", dept.ID).
			UpdateColumns(map[string]any{
				"parent_id": newParentID,
				"path":      newPath,
			}).Error; err != nil {
			return fmt.Errorf("hierarchy: move department: %w", err)
		}

		// Rewrite descendant paths by prefix substitution. UpdateColumn keeps
		// the rewrite from re-entering model hooks per descendant.
		newPrefix := newPath + dept.ID + "/"
		if oldPrefix == newPrefix {
			return nil
		}

		var descendants []models.Department
		if err := tx.Where("path LIKE ?", oldPrefix+"%").Find(&descendants).Error; err != nil {
			return fmt.Errorf("hierarchy: load subtree: %w", err)
		}

		for _, child := range descendants {
			rewritten := newPrefix + strings.TrimPrefix(child.Path, oldPrefix)
			if err := tx.Model(&models.Department{}).
				Where("id = ?", child.ID).
				UpdateColumn("path", rewritten).Error; err != nil {
				return fmt.Errorf("hierarchy: rewrite path for %s: %w", child.ID, err)
			}
		}

		return nil
	})
}

func ensureContext(ctx context.Context) context.Context {
	if ctx != nil {
		return ctx
	}
	return context.Background()
}
