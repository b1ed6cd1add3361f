package access_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/oakdesk/oakdesk/internal/access"
	"github.com/oakdesk/oakdesk/internal/database/testutil"
	"github.com/oakdesk/oakdesk/internal/models"
)

func TestDurationPolicyExpiry(t *testing.T) {
	policy := access.DefaultDurationPolicy
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	expiry, err := policy.Expiry(now, 90, "minutes")
	require.NoError(t, err)
	require.Equal(t, now.Add(90*time.Minute), expiry)

	expiry, err = policy.Expiry(now, 3, "days")
	require.NoError(t, err)
	require.Equal(t, now.Add(72*time.Hour), expiry)

	_, err = policy.Expiry(now, 481, "minutes")
	require.ErrorIs(t, err, access.ErrDurationExceeded)

	_, err = policy.Expiry(now, 73, "hours")
	require.ErrorIs(t, err, access.ErrDurationExceeded)

	_, err = policy.Expiry(now, 8, "days")
	require.ErrorIs(t, err, access.ErrDurationExceeded)

	_, err = policy.Expiry(now, 0, "hours")
	require.Error(t, err)

	_, err = policy.Expiry(now, 1, "fortnights")
	require.Error(t, err)
}

func TestDurationPolicyZeroValuesFallBackToDefaults(t *testing.T) {
	now := time.Now()
	policy := access.DurationPolicy{}

	_, err := policy.Expiry(now, 480, "minutes")
	require.NoError(t, err)

	_, err = policy.Expiry(now, 481, "minutes")
	require.ErrorIs(t, err, access.ErrDurationExceeded)
}

func seedLedger(t *testing.T, db *gorm.DB, now time.Time) {
	t.Helper()

	role := models.Role{BaseModel: models.BaseModel{ID: "agent"}, Name: "agent", HierarchyLevel: 1, IsActive: true}
	require.NoError(t, db.Create(&role).Error)

	stale := models.Role{BaseModel: models.BaseModel{ID: "stale"}, Name: "stale", HierarchyLevel: 1, IsActive: false}
	require.NoError(t, db.Create(&stale).Error)

	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)

	rows := []models.UserRole{
		{ID: "permanent", UserID: "u1", RoleID: "agent", GrantedAt: past, IsActive: true},
		{ID: "expired", UserID: "u1", RoleID: "agent", GrantedAt: past, ExpiresAt: &past, IsActive: true},
		{ID: "revoked", UserID: "u1", RoleID: "agent", GrantedAt: past, IsActive: false},
		{ID: "temporal", UserID: "u2", RoleID: "agent", GrantedAt: past, ExpiresAt: &future, IsActive: true},
		{ID: "inactive-role", UserID: "u2", RoleID: "stale", GrantedAt: past, IsActive: true},
	}
	for i := range rows {
		require.NoError(t, db.Create(&rows[i]).Error)
	}
}

func TestActiveRolesForFiltersAtReadTime(t *testing.T) {
	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	seedLedger(t, db, now)

	ledger, err := access.NewLedger(db, access.WithLedgerNow(func() time.Time { return now }))
	require.NoError(t, err)

	roles, err := ledger.ActiveRolesFor(context.Background(), "u1")
	require.NoError(t, err)
	require.Len(t, roles, 1)
	require.Equal(t, "agent", roles[0].Name)

	// Inactive roles never surface even through in-effect assignments.
	roles, err = ledger.ActiveRolesFor(context.Background(), "u2")
	require.NoError(t, err)
	require.Len(t, roles, 1)
	require.Equal(t, "agent", roles[0].Name)
}

func TestInEffectAssignmentsExpiryIsMonotonic(t *testing.T) {
	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	seedLedger(t, db, now)

	clock := now
	ledger, err := access.NewLedger(db, access.WithLedgerNow(func() time.Time { return clock }))
	require.NoError(t, err)

	rows, err := ledger.InEffectAssignments(context.Background(), "u2")
	require.NoError(t, err)
	require.Len(t, rows, 2)

	// Advance past the temporal grant's expiry; it stops conferring access
	// without any row being mutated.
	clock = now.Add(2 * time.Hour)
	rows, err = ledger.InEffectAssignments(context.Background(), "u2")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, "inactive-role", rows[0].ID)

	var count int64
	require.NoError(t, db.Model(&models.UserRole{}).Count(&count).Error)
	require.EqualValues(t, 5, count)
}
