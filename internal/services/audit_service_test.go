package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/oakdesk/oakdesk/internal/auditctx"
	"github.com/oakdesk/oakdesk/internal/models"
)

func TestAuditRecordValidation(t *testing.T) {
	db := openServiceTestDB(t)
	audit := newAudit(t, db)
	ctx := context.Background()

	err := audit.Record(ctx, AuditRecord{UserID: "u1", Action: "promoted"})
	require.ErrorIs(t, err, ErrInvalidAudit)

	err = audit.Record(ctx, AuditRecord{Action: models.AuditActionModified})
	require.ErrorIs(t, err, ErrInvalidAudit)

	// Grant entries must name a role, permission, or emergency grant.
	err = audit.Record(ctx, AuditRecord{UserID: "u1", Action: models.AuditActionGranted})
	require.ErrorIs(t, err, ErrInvalidAudit)

	err = audit.Record(ctx, AuditRecord{
		UserID: "u1",
		Action: models.AuditActionGranted,
		RoleID: ptr("support_agent"),
	})
	require.NoError(t, err)
	require.EqualValues(t, 1, countAuditRows(t, db))
}

func TestAuditRecordCapturesActorMetadata(t *testing.T) {
	db := openServiceTestDB(t)
	audit := newAudit(t, db)

	ctx := auditctx.WithActor(context.Background(), auditctx.Actor{
		UserID:    "admin",
		IPAddress: "10.0.0.9",
		UserAgent: "curl/8",
	})

	require.NoError(t, audit.Record(ctx, AuditRecord{
		UserID: "u1",
		Action: models.AuditActionModified,
		NewValues: map[string]any{
			"is_active": false,
		},
	}))

	var entry models.PermissionAudit
	require.NoError(t, db.First(&entry).Error)
	require.Equal(t, "10.0.0.9", entry.IPAddress)
	require.Equal(t, "curl/8", entry.UserAgent)
	// PerformedBy falls back to the context actor when the caller omits it.
	require.Equal(t, "admin", entry.PerformedBy)
	require.JSONEq(t, `{"is_active": false}`, string(entry.NewValues))
}

func TestAuditListFiltersAndPaginates(t *testing.T) {
	db := openServiceTestDB(t)
	audit := newAudit(t, db)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, audit.Record(ctx, AuditRecord{
			UserID:      "u1",
			Action:      models.AuditActionModified,
			PerformedBy: "admin",
		}))
	}
	require.NoError(t, audit.Record(ctx, AuditRecord{
		UserID:      "u2",
		Action:      models.AuditActionRevoked,
		RoleID:      ptr("support_agent"),
		PerformedBy: "admin",
	}))

	entries, total, err := audit.List(ctx, AuditListOptions{
		Page:     1,
		PageSize: 2,
		Filters:  AuditFilters{UserID: "u1"},
	})
	require.NoError(t, err)
	require.EqualValues(t, 3, total)
	require.Len(t, entries, 2)

	entries, total, err = audit.List(ctx, AuditListOptions{
		Filters: AuditFilters{Action: models.AuditActionRevoked},
	})
	require.NoError(t, err)
	require.EqualValues(t, 1, total)
	require.Len(t, entries, 1)
	require.Equal(t, "u2", entries[0].UserID)

	future := time.Now().Add(time.Hour)
	entries, err = audit.Export(ctx, AuditFilters{Until: &future})
	require.NoError(t, err)
	require.Len(t, entries, 4)
}
