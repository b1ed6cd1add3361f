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

	"github.com/oakdesk/oakdesk/internal/auditctx"
	"github.com/oakdesk/oakdesk/internal/models"
	apperrors "github.com/oakdesk/oakdesk/pkg/errors"
)

// ErrInvalidAudit indicates an audit write missing required fields; rejected
// at the boundary, never silently defaulted.
var ErrInvalidAudit = apperrors.New("INVALID_AUDIT_ENTRY", "Audit entry is missing required fields", http.StatusBadRequest)

// AuditRecord captures a single authorization audit event to persist.
type AuditRecord struct {
	UserID       string
	PermissionID *string
	RoleID       *string
	// EmergencyAccessID marks entries produced by break-glass grants, which
	// are permission-list based rather than role or permission mediated.
	EmergencyAccessID *string
	Action            string
	OldValues         map[string]any
	NewValues         map[string]any
	PerformedBy       string
	Reason            string
}

// AuditFilters encapsulates optional filters when querying the audit trail.
type AuditFilters struct {
	UserID      string
	Action      string
	PerformedBy string
	Since       *time.Time
	Until       *time.Time
}

// AuditListOptions controls pagination and filtering for audit queries.
type AuditListOptions struct {
	Page     int
	PageSize int
	Filters  AuditFilters
}

// AuditService persists and retrieves permission audit entries. The table is
// append-only: there is no update, delete, or retention purge path.
type AuditService struct {
	db *gorm.DB
}

// NewAuditService constructs an AuditService using the provided database handle.
func NewAuditService(db *gorm.DB) (*AuditService, error) {
	if db == nil {
		return nil, errors.New("audit service: db is required")
	}
	return &AuditService{db: db}, nil
}

// Record appends an audit entry using the service's own connection.
func (s *AuditService) Record(ctx context.Context, rec AuditRecord) error {
	return s.RecordTx(ctx, s.db, rec)
}

// RecordTx appends an audit entry on the supplied transaction so a mutation
// and its audit row commit or roll back together.
func (s *AuditService) RecordTx(ctx context.Context, tx *gorm.DB, rec AuditRecord) error {
	ctx = ensureContext(ctx)
	if tx == nil {
		tx = s.db
	}

	entry, err := buildAuditEntry(ctx, rec)
	if err != nil {
		return err
	}

	if err := tx.WithContext(ctx).Create(entry).Error; err != nil {
		return fmt.Errorf("audit service: record entry: %w", err)
	}
	return nil
}

func buildAuditEntry(ctx context.Context, rec AuditRecord) (*models.PermissionAudit, error) {
	action := strings.TrimSpace(rec.Action)
	switch action {
	case models.AuditActionGranted, models.AuditActionRevoked, models.AuditActionModified, models.AuditActionUnauthorized:
	default:
		return nil, ErrInvalidAudit.WithInternal(fmt.Errorf("unknown action %q", rec.Action))
	}

	userID := strings.TrimSpace(rec.UserID)
	if userID == "" {
		return nil, ErrInvalidAudit.WithInternal(errors.New("user id is required"))
	}

	// Grant and revoke entries must reference the subject they touch.
	if action == models.AuditActionGranted || action == models.AuditActionRevoked {
		if rec.RoleID == nil && rec.PermissionID == nil && rec.EmergencyAccessID == nil {
			return nil, ErrInvalidAudit.WithInternal(errors.New("neither role nor permission specified"))
		}
	}

	entry := &models.PermissionAudit{
		UserID:       userID,
		PermissionID: rec.PermissionID,
		RoleID:       rec.RoleID,
		Action:       action,
		PerformedBy:  strings.TrimSpace(rec.PerformedBy),
		Reason:       strings.TrimSpace(rec.Reason),
	}

	if actor, ok := auditctx.FromContext(ctx); ok {
		entry.IPAddress = actor.IPAddress
		entry.UserAgent = actor.UserAgent
		if entry.PerformedBy == "" {
			entry.PerformedBy = actor.UserID
		}
	}

	var err error
	if entry.OldValues, err = marshalSnapshot(rec.OldValues); err != nil {
		return nil, fmt.Errorf("audit service: marshal old values: %w", err)
	}
	if entry.NewValues, err = marshalSnapshot(rec.NewValues); err != nil {
		return nil, fmt.Errorf("audit service: marshal new values: %w", err)
	}

	return entry, nil
}

func marshalSnapshot(values map[string]any) (datatypes.JSON, error) {
	if values == nil {
		return nil, nil
	}
	encoded, err := json.Marshal(values)
	if err != nil {
		return nil, err
	}
	return datatypes.JSON(encoded), nil
}

// List returns paginated audit entries ordered by creation time descending.
func (s *AuditService) List(ctx context.Context, opts AuditListOptions) ([]models.PermissionAudit, int64, error) {
	ctx = ensureContext(ctx)

	page := opts.Page
	if page <= 0 {
		page = 1
	}
	perPage := opts.PageSize
	if perPage <= 0 || perPage > 200 {
		perPage = 50
	}

	var (
		results []models.PermissionAudit
		total   int64
	)

	query := s.db.WithContext(ctx).Model(&models.PermissionAudit{})
	query = applyAuditFilters(query, opts.Filters)

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("audit service: count entries: %w", err)
	}

	if err := query.
		Preload("Permission").
		Preload("Role").
		Order("created_at DESC").
		Offset((page - 1) * perPage).
		Limit(perPage).
		Find(&results).Error; err != nil {
		return nil, 0, fmt.Errorf("audit service: list entries: %w", err)
	}

	return results, total, nil
}

// Export returns audit entries matching the provided filters without pagination.
func (s *AuditService) Export(ctx context.Context, filters AuditFilters) ([]models.PermissionAudit, error) {
	ctx = ensureContext(ctx)

	var entries []models.PermissionAudit
	query := s.db.WithContext(ctx).Model(&models.PermissionAudit{})
	query = applyAuditFilters(query, filters)

	if err := query.
		Order("created_at DESC").
		Find(&entries).Error; err != nil {
		return nil, fmt.Errorf("audit service: export entries: %w", err)
	}

	return entries, nil
}

func applyAuditFilters(query *gorm.DB, filters AuditFilters) *gorm.DB {
	if filters.UserID != "" {
		query = query.Where("user_id = ?", filters.UserID)
	}
	if filters.Action != "" {
		query = query.Where("action = ?", filters.Action)
	}
	if filters.PerformedBy != "" {
		query = query.Where("performed_by = ?", filters.PerformedBy)
	}
	if filters.Since != nil {
		query = query.Where("created_at >= ?", *filters.Since)
	}
	if filters.Until != nil {
		query = query.Where("created_at <= ?", *filters.Until)
	}
	return query
}
