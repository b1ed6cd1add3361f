package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/oakdesk/oakdesk/internal/access"
	"github.com/oakdesk/oakdesk/internal/models"
	apperrors "github.com/oakdesk/oakdesk/pkg/errors"
)

var (
	// ErrAssignmentNotFound indicates the assignment row does not exist.
	ErrAssignmentNotFound = apperrors.New("ASSIGNMENT_NOT_FOUND", "Assignment not found", http.StatusNotFound)
	// ErrRoleAboveGranter rejects grants of roles at or above the granter's own level.
	ErrRoleAboveGranter = apperrors.New("ROLE_ABOVE_GRANTER", "Cannot grant a role at or above your own hierarchy level", http.StatusForbidden)
	// ErrRoleInactive rejects grants of deactivated roles.
	ErrRoleInactive = apperrors.New("ROLE_INACTIVE", "Role is not active", http.StatusBadRequest)
)

// AssignmentService records role grants and revocations. Rows are never
// deleted: revocation flips the active flag and expiry is evaluated at read
// time, so the ledger doubles as grant history.
type AssignmentService struct {
	db     *gorm.DB
	audit  *AuditService
	policy access.DurationPolicy
	now    func() time.Time
}

// AssignmentOption customises the AssignmentService.
type AssignmentOption func(*AssignmentService)

// WithDurationPolicy overrides the temporal grant bounds.
func WithDurationPolicy(policy access.DurationPolicy) AssignmentOption {
	return func(s *AssignmentService) {
		s.policy = policy
	}
}

// WithAssignmentNow overrides the clock used for grant and expiry timestamps.
func WithAssignmentNow(now func() time.Time) AssignmentOption {
	return func(s *AssignmentService) {
		if now != nil {
			s.now = now
		}
	}
}

// NewAssignmentService constructs an AssignmentService using the provided database handle.
func NewAssignmentService(db *gorm.DB, audit *AuditService, opts ...AssignmentOption) (*AssignmentService, error) {
	if db == nil {
		return nil, errors.New("assignment service: db is required")
	}
	if audit == nil {
		return nil, errors.New("assignment service: audit service is required")
	}

	svc := &AssignmentService{
		db:     db,
		audit:  audit,
		policy: access.DefaultDurationPolicy,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// GrantDuration expresses a bounded temporal grant request.
type GrantDuration struct {
	Amount int
	Unit   string
}

// GrantRoleInput describes the payload accepted by GrantRole.
type GrantRoleInput struct {
	UserID    string
	RoleID    string
	GrantedBy string
	// Duration, when set, makes the grant temporal; nil grants permanently.
	Duration *GrantDuration
	Reason   string
}

// GrantRole inserts a new assignment row. Existing rows for the same user and
// role are deliberately not deduplicated: concurrent grants are legal and
// expire independently.
func (s *AssignmentService) GrantRole(ctx context.Context, input GrantRoleInput) (*models.UserRole, error) {
	ctx = ensureContext(ctx)

	userID := strings.TrimSpace(input.UserID)
	roleID := strings.TrimSpace(input.RoleID)
	grantedBy := strings.TrimSpace(input.GrantedBy)
	if userID == "" || roleID == "" || grantedBy == "" {
		return nil, apperrors.NewBadRequest("user, role, and granting user are required")
	}

	now := s.now()

	var expiresAt *time.Time
	if input.Duration != nil {
		expiry, err := s.policy.Expiry(now, input.Duration.Amount, input.Duration.Unit)
		if err != nil {
			if errors.Is(err, access.ErrDurationExceeded) {
				return nil, apperrors.NewBadRequest(err.Error())
			}
			return nil, apperrors.NewBadRequest(err.Error())
		}
		expiresAt = &expiry
	}

	assignment := &models.UserRole{
		UserID:           userID,
		RoleID:           roleID,
		GrantedBy:        grantedBy,
		GrantedAt:        now,
		ExpiresAt:        expiresAt,
		IsActive:         true,
		DelegationReason: strings.TrimSpace(input.Reason),
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var user models.User
		if err := tx.First(&user, "id = ?", userID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrUserNotFound
			}
			return fmt.Errorf("assignment service: load user: %w", err)
		}

		var role models.Role
		if err := tx.First(&role, "id = ?", roleID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrRoleNotFound
			}
			return fmt.Errorf("assignment service: load role: %w", err)
		}
		if !role.IsActive {
			return ErrRoleInactive
		}

		if err := s.checkGranterAuthority(ctx, tx, grantedBy, &role); err != nil {
			return err
		}

		if err := tx.Create(assignment).Error; err != nil {
			return fmt.Errorf("assignment service: create assignment: %w", err)
		}

		newValues := map[string]any{
			"assignment_id": assignment.ID,
			"role":          role.Name,
		}
		if expiresAt != nil {
			newValues["expires_at"] = expiresAt.UTC().Format(time.RFC3339)
		}
		if assignment.DelegationReason != "" {
			newValues["delegation_reason"] = assignment.DelegationReason
		}

		return s.audit.RecordTx(ctx, tx, AuditRecord{
			UserID:      userID,
			RoleID:      &role.ID,
			Action:      models.AuditActionGranted,
			PerformedBy: grantedBy,
			Reason:      assignment.DelegationReason,
			NewValues:   newValues,
		})
	})
	if err != nil {
		return nil, err
	}

	return assignment, nil
}

// checkGranterAuthority enforces the hierarchy-level total order: only root
// users or holders of a strictly higher role may hand out a role.
func (s *AssignmentService) checkGranterAuthority(ctx context.Context, tx *gorm.DB, granterID string, target *models.Role) error {
	var granter models.User
	if err := tx.First(&granter, "id = ?", granterID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperrors.NewBadRequest("granting user does not exist")
		}
		return fmt.Errorf("assignment service: load granter: %w", err)
	}
	if granter.IsRoot {
		return nil
	}

	var maxLevel *int
	err := tx.Model(&models.Role{}).
		Select("MAX(roles.hierarchy_level)").
		Joins("JOIN user_roles ON user_roles.role_id = roles.id").
		Where("user_roles.user_id = ?", granterID).
		Where("user_roles.is_active = ?", true).
		Where("user_roles.expires_at IS NULL OR user_roles.expires_at > ?", s.now()).
		Where("roles.is_active = ?", true).
		Scan(&maxLevel).Error
	if err != nil {
		return fmt.Errorf("assignment service: granter authority: %w", err)
	}

	if maxLevel == nil || *maxLevel <= target.HierarchyLevel {
		return ErrRoleAboveGranter
	}
	return nil
}

// RevokeAssignment turns the assignment off. The row stays behind for audit
// purposes; re-granting later means inserting a new row.
func (s *AssignmentService) RevokeAssignment(ctx context.Context, assignmentID, performedBy string) error {
	ctx = ensureContext(ctx)

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var assignment models.UserRole
		if err := tx.First(&assignment, "id = ?", assignmentID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrAssignmentNotFound
			}
			return fmt.Errorf("assignment service: load assignment: %w", err)
		}

		if !assignment.IsActive {
			return nil
		}

		if err := tx.Model(&assignment).Update("is_active", false).Error; err != nil {
			return fmt.Errorf("assignment service: revoke assignment: %w", err)
		}

		return s.audit.RecordTx(ctx, tx, AuditRecord{
			UserID:      assignment.UserID,
			RoleID:      &assignment.RoleID,
			Action:      models.AuditActionRevoked,
			PerformedBy: performedBy,
			OldValues:   map[string]any{"is_active": true},
			NewValues:   map[string]any{"is_active": false, "assignment_id": assignment.ID},
		})
	})
}

// ListUserAssignments returns every assignment row for the user, newest
// first, including revoked and expired rows.
func (s *AssignmentService) ListUserAssignments(ctx context.Context, userID string) ([]models.UserRole, error) {
	ctx = ensureContext(ctx)

	var rows []models.UserRole
	if err := s.db.WithContext(ctx).
		Preload("Role").
		Where("user_id = ?", userID).
		Order("granted_at DESC").
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("assignment service: list assignments: %w", err)
	}
	return rows, nil
}
