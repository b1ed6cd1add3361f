package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/oakdesk/oakdesk/internal/models"
	"github.com/oakdesk/oakdesk/pkg/crypto"
	apperrors "github.com/oakdesk/oakdesk/pkg/errors"
)

var (
	// ErrEmergencyNotFound indicates the emergency grant does not exist.
	ErrEmergencyNotFound = apperrors.New("EMERGENCY_NOT_FOUND", "Emergency access grant not found", http.StatusNotFound)
	// ErrTokenNotFound indicates no grant carries the presented token.
	ErrTokenNotFound = apperrors.New("TOKEN_NOT_FOUND", "Break-glass token not found", http.StatusNotFound)
	// ErrTokenAlreadyUsed surfaces a replayed break-glass token, distinct from
	// an invalid one so callers can tell replay attempts apart.
	ErrTokenAlreadyUsed = apperrors.New("TOKEN_ALREADY_USED", "Break-glass token has already been used", http.StatusConflict)
	// ErrTokenExpired indicates the token's grant is expired or revoked.
	ErrTokenExpired = apperrors.New("TOKEN_EXPIRED", "Break-glass token is expired or revoked", http.StatusConflict)
)

// EmergencyService manages break-glass grants: bounded-lifetime permission
// overrides for incident response. Rows transition through used, expired,
// and revoked states but are never deleted.
type EmergencyService struct {
	db    *gorm.DB
	audit *AuditService
	now   func() time.Time
}

// EmergencyOption customises the EmergencyService.
type EmergencyOption func(*EmergencyService)

// WithEmergencyNow overrides the clock used for expiry comparisons.
func WithEmergencyNow(now func() time.Time) EmergencyOption {
	return func(s *EmergencyService) {
		if now != nil {
			s.now = now
		}
	}
}

// NewEmergencyService constructs an EmergencyService using the provided database handle.
func NewEmergencyService(db *gorm.DB, audit *AuditService, opts ...EmergencyOption) (*EmergencyService, error) {
	if db == nil {
		return nil, errors.New("emergency service: db is required")
	}
	if audit == nil {
		return nil, errors.New("emergency service: audit service is required")
	}

	svc := &EmergencyService{db: db, audit: audit, now: time.Now}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// GrantInput describes the payload accepted by Grant.
type GrantInput struct {
	UserID      string
	Permissions []string
	GrantedBy   string
	ExpiresAt   time.Time
	Reason      string
	// SingleUse attaches a break-glass token consumed on first use.
	SingleUse bool
}

// Grant creates an emergency access row naming explicit permissions. Every
// named permission must exist and be active at grant time.
func (s *EmergencyService) Grant(ctx context.Context, input GrantInput) (*models.EmergencyAccess, error) {
	ctx = ensureContext(ctx)

	userID := strings.TrimSpace(input.UserID)
	grantedBy := strings.TrimSpace(input.GrantedBy)
	reason := strings.TrimSpace(input.Reason)
	names := normaliseNames(input.Permissions)

	switch {
	case userID == "" || grantedBy == "":
		return nil, apperrors.NewBadRequest("user and granting user are required")
	case reason == "":
		return nil, apperrors.NewBadRequest("emergency access requires a reason")
	case len(names) == 0:
		return nil, apperrors.NewBadRequest("at least one permission is required")
	case !input.ExpiresAt.After(s.now()):
		return nil, apperrors.NewBadRequest("expiry must be in the future")
	}

	encoded, err := json.Marshal(names)
	if err != nil {
		return nil, fmt.Errorf("emergency service: encode permissions: %w", err)
	}

	grant := &models.EmergencyAccess{
		UserID:      userID,
		Permissions: datatypes.JSON(encoded),
		GrantedBy:   grantedBy,
		Reason:      reason,
		GrantedAt:   s.now(),
		ExpiresAt:   input.ExpiresAt,
		IsActive:    true,
	}

	if input.SingleUse {
		token, err := crypto.GenerateToken(32)
		if err != nil {
			return nil, fmt.Errorf("emergency service: generate token: %w", err)
		}
		grant.Token = &token
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&models.Permission{}).
			Where("name IN ? AND is_active = ?", names, true).
			Count(&count).Error; err != nil {
			return fmt.Errorf("emergency service: verify permissions: %w", err)
		}
		if count != int64(len(names)) {
			return apperrors.NewBadRequest("one or more permissions are unknown or inactive")
		}

		if err := tx.Create(grant).Error; err != nil {
			return fmt.Errorf("emergency service: create grant: %w", err)
		}

		return s.audit.RecordTx(ctx, tx, AuditRecord{
			UserID:            userID,
			Action:            models.AuditActionGranted,
			PerformedBy:       grantedBy,
			Reason:            reason,
			EmergencyAccessID: &grant.ID,
			NewValues: map[string]any{
				"emergency_access_id": grant.ID,
				"permissions":         names,
				"expires_at":          input.ExpiresAt.UTC().Format(time.RFC3339),
				"single_use":          input.SingleUse,
			},
		})
	})
	if err != nil {
		return nil, err
	}

	return grant, nil
}

// MarkTokenUsed consumes a break-glass token. The transition is a
// compare-and-swap on used_at so two concurrent presentations of the same
// token yield exactly one success; the loser sees ErrTokenAlreadyUsed.
func (s *EmergencyService) MarkTokenUsed(ctx context.Context, token, performedBy string) (*models.EmergencyAccess, error) {
	ctx = ensureContext(ctx)

	token = strings.TrimSpace(token)
	if token == "" {
		return nil, apperrors.NewBadRequest("token is required")
	}

	now := s.now()

	result := s.db.WithContext(ctx).
		Model(&models.EmergencyAccess{}).
		Where("token = ? AND used_at IS NULL AND is_active = ? AND expires_at > ?", token, true, now).
		Update("used_at", now)
	if result.Error != nil {
		return nil, fmt.Errorf("emergency service: mark token used: %w", result.Error)
	}

	var grant models.EmergencyAccess
	if err := s.db.WithContext(ctx).First(&grant, "token = ?", token).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTokenNotFound
		}
		return nil, fmt.Errorf("emergency service: load grant: %w", err)
	}

	if result.RowsAffected == 0 {
		if grant.UsedAt != nil {
			return nil, ErrTokenAlreadyUsed
		}
		return nil, ErrTokenExpired
	}

	grant.UsedAt = &now

	if err := s.audit.Record(ctx, AuditRecord{
		UserID:      grant.UserID,
		Action:      models.AuditActionModified,
		PerformedBy: performedBy,
		OldValues:   map[string]any{"used_at": nil},
		NewValues: map[string]any{
			"emergency_access_id": grant.ID,
			"used_at":             now.UTC().Format(time.RFC3339),
		},
	}); err != nil {
		return nil, err
	}

	return &grant, nil
}

// Revoke immediately deactivates the grant, independent of natural expiry.
func (s *EmergencyService) Revoke(ctx context.Context, grantID, performedBy string) error {
	ctx = ensureContext(ctx)

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var grant models.EmergencyAccess
		if err := tx.First(&grant, "id = ?", grantID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrEmergencyNotFound
			}
			return fmt.Errorf("emergency service: load grant: %w", err)
		}

		if !grant.IsActive {
			return nil
		}

		if err := tx.Model(&grant).Update("is_active", false).Error; err != nil {
			return fmt.Errorf("emergency service: revoke grant: %w", err)
		}

		return s.audit.RecordTx(ctx, tx, AuditRecord{
			UserID:            grant.UserID,
			Action:            models.AuditActionRevoked,
			PerformedBy:       performedBy,
			EmergencyAccessID: &grant.ID,
			OldValues:         map[string]any{"is_active": true},
			NewValues:         map[string]any{"is_active": false, "emergency_access_id": grant.ID},
		})
	})
}

// ListInEffect returns grants currently conferring access, newest first.
func (s *EmergencyService) ListInEffect(ctx context.Context) ([]models.EmergencyAccess, error) {
	ctx = ensureContext(ctx)

	var grants []models.EmergencyAccess
	if err := s.db.WithContext(ctx).
		Where("is_active = ? AND expires_at > ?", true, s.now()).
		Order("granted_at DESC").
		Find(&grants).Error; err != nil {
		return nil, fmt.Errorf("emergency service: list grants: %w", err)
	}
	return grants, nil
}
