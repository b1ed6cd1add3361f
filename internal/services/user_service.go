package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"gorm.io/gorm"

	"github.com/oakdesk/oakdesk/internal/models"
	"github.com/oakdesk/oakdesk/pkg/crypto"
	apperrors "github.com/oakdesk/oakdesk/pkg/errors"
)

// ErrUserNotFound indicates the requested user does not exist.
var ErrUserNotFound = apperrors.New("USER_NOT_FOUND", "User not found", http.StatusNotFound)

// UserService manages user accounts, their department membership, and their
// direct permission grants.
type UserService struct {
	db    *gorm.DB
	audit *AuditService
}

// NewUserService constructs a UserService using the provided database handle.
func NewUserService(db *gorm.DB, audit *AuditService) (*UserService, error) {
	if db == nil {
		return nil, errors.New("user service: db is required")
	}
	if audit == nil {
		return nil, errors.New("user service: audit service is required")
	}
	return &UserService{db: db, audit: audit}, nil
}

// CreateUserInput describes the payload accepted by CreateUser.
type CreateUserInput struct {
	Username     string
	Email        string
	Password     string
	DepartmentID *string
	IsRoot       bool
	PerformedBy  string
}

// CreateUser registers a new account. The department, when given, must exist.
func (s *UserService) CreateUser(ctx context.Context, input CreateUserInput) (*models.User, error) {
	ctx = ensureContext(ctx)

	username := strings.TrimSpace(input.Username)
	email := strings.TrimSpace(strings.ToLower(input.Email))
	if username == "" || email == "" {
		return nil, apperrors.NewBadRequest("username and email are required")
	}
	if len(input.Password) < 8 {
		return nil, apperrors.NewBadRequest("password must be at least 8 characters")
	}

	hash, err := crypto.HashPassword(input.Password)
	if err != nil {
		return nil, fmt.Errorf("user service: hash password: %w", err)
	}

	user := &models.User{
		Username:     username,
		Email:        email,
		Password:     hash,
		DepartmentID: input.DepartmentID,
		IsRoot:       input.IsRoot,
		IsActive:     true,
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if input.DepartmentID != nil {
			var count int64
			if err := tx.Model(&models.Department{}).
				Where("id = ?", *input.DepartmentID).
				Count(&count).Error; err != nil {
				return fmt.Errorf("user service: verify department: %w", err)
			}
			if count == 0 {
				return ErrDepartmentNotFound
			}
		}

		if err := tx.Create(user).Error; err != nil {
			if isUniqueConstraintError(err) {
				return apperrors.NewBadRequest("username or email already exists")
			}
			return fmt.Errorf("user service: create user: %w", err)
		}

		return s.audit.RecordTx(ctx, tx, AuditRecord{
			UserID:      user.ID,
			Action:      models.AuditActionModified,
			PerformedBy: input.PerformedBy,
			NewValues: map[string]any{
				"username": user.Username,
				"is_root":  user.IsRoot,
			},
		})
	})
	if err != nil {
		return nil, err
	}

	return user, nil
}

// Get returns a user with assignments and direct permissions preloaded.
func (s *UserService) Get(ctx context.Context, userID string) (*models.User, error) {
	ctx = ensureContext(ctx)

	var user models.User
	if err := s.db.WithContext(ctx).
		Preload("Assignments.Role").
		Preload("Permissions").
		First(&user, "id = ?", userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("user service: load user: %w", err)
	}
	return &user, nil
}

// GetByUsername looks a user up by username for authentication.
func (s *UserService) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	ctx = ensureContext(ctx)

	var user models.User
	if err := s.db.WithContext(ctx).
		First(&user, "username = ?", strings.TrimSpace(username)).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("user service: load user: %w", err)
	}
	return &user, nil
}

// VerifyCredentials checks a username/password pair. Inactive accounts fail
// with the same error as a bad password.
func (s *UserService) VerifyCredentials(ctx context.Context, username, password string) (*models.User, error) {
	user, err := s.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, apperrors.ErrInvalidCredentials
		}
		return nil, err
	}

	if !user.IsActive || !crypto.VerifyPassword(user.Password, password) {
		return nil, apperrors.ErrInvalidCredentials
	}
	return user, nil
}

// SetDepartment moves a user to a different department, or clears membership
// when departmentID is nil. A missing department is rejected, not coerced.
func (s *UserService) SetDepartment(ctx context.Context, userID string, departmentID *string, performedBy string) error {
	ctx = ensureContext(ctx)

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var user models.User
		if err := tx.First(&user, "id = ?", userID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrUserNotFound
			}
			return fmt.Errorf("user service: load user: %w", err)
		}

		if departmentID != nil {
			var count int64
			if err := tx.Model(&models.Department{}).
				Where("id = ?", *departmentID).
				Count(&count).Error; err != nil {
				return fmt.Errorf("user service: verify department: %w", err)
			}
			if count == 0 {
				return ErrDepartmentNotFound
			}
		}

		old := ""
		if user.DepartmentID != nil {
			old = *user.DepartmentID
		}
		next := ""
		if departmentID != nil {
			next = *departmentID
		}

		if err := tx.Model(&user).Update("department_id", departmentID).Error; err != nil {
			return fmt.Errorf("user service: set department: %w", err)
		}

		return s.audit.RecordTx(ctx, tx, AuditRecord{
			UserID:      user.ID,
			Action:      models.AuditActionModified,
			PerformedBy: performedBy,
			OldValues:   map[string]any{"department_id": old},
			NewValues:   map[string]any{"department_id": next},
		})
	})
}

// SetDirectPermissions replaces the user's direct permission grants with the
// named set. Direct grants bypass role resolution and department scoping.
func (s *UserService) SetDirectPermissions(ctx context.Context, userID string, permissionNames []string, performedBy string) error {
	ctx = ensureContext(ctx)

	names := normaliseNames(permissionNames)

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var user models.User
		if err := tx.Preload("Permissions").First(&user, "id = ?", userID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrUserNotFound
			}
			return fmt.Errorf("user service: load user: %w", err)
		}

		oldNames := make([]string, 0, len(user.Permissions))
		for _, perm := range user.Permissions {
			oldNames = append(oldNames, perm.Name)
		}

		var perms []models.Permission
		if len(names) > 0 {
			if err := tx.Where("name IN ?", names).Find(&perms).Error; err != nil {
				return fmt.Errorf("user service: load permissions: %w", err)
			}
			if len(perms) != len(names) {
				return ErrPermissionNotFound
			}
		}

		if err := tx.Model(&user).Association("Permissions").Replace(perms); err != nil {
			return fmt.Errorf("user service: replace permissions: %w", err)
		}

		action := models.AuditActionGranted
		if len(names) < len(oldNames) {
			action = models.AuditActionRevoked
		}

		var permissionID *string
		if len(perms) == 1 {
			permissionID = &perms[0].ID
		} else if len(perms) == 0 && len(user.Permissions) == 1 {
			permissionID = &user.Permissions[0].ID
		}

		rec := AuditRecord{
			UserID:      user.ID,
			Action:      action,
			PerformedBy: performedBy,
			OldValues:   map[string]any{"permissions": oldNames},
			NewValues:   map[string]any{"permissions": names},
		}
		if permissionID != nil {
			rec.PermissionID = permissionID
		} else {
			// Bulk replacements touch several catalog rows at once.
			rec.Action = models.AuditActionModified
		}

		return s.audit.RecordTx(ctx, tx, rec)
	})
}

// Deactivate disables the account. Every permission the user held stops
// resolving immediately; the account and its history remain.
func (s *UserService) Deactivate(ctx context.Context, userID, performedBy string) error {
	ctx = ensureContext(ctx)

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var user models.User
		if err := tx.First(&user, "id = ?", userID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrUserNotFound
			}
			return fmt.Errorf("user service: load user: %w", err)
		}

		if !user.IsActive {
			return nil
		}

		if err := tx.Model(&user).Update("is_active", false).Error; err != nil {
			return fmt.Errorf("user service: deactivate user: %w", err)
		}

		return s.audit.RecordTx(ctx, tx, AuditRecord{
			UserID:      user.ID,
			Action:      models.AuditActionModified,
			PerformedBy: performedBy,
			OldValues:   map[string]any{"is_active": true},
			NewValues:   map[string]any{"is_active": false},
		})
	})
}

// List returns users ordered by username.
func (s *UserService) List(ctx context.Context) ([]models.User, error) {
	ctx = ensureContext(ctx)

	var users []models.User
	if err := s.db.WithContext(ctx).Order("username ASC").Find(&users).Error; err != nil {
		return nil, fmt.Errorf("user service: list users: %w", err)
	}
	return users, nil
}
