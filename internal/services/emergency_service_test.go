package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/oakdesk/oakdesk/internal/models"
)

func newEmergencyService(t *testing.T, db *gorm.DB, clock *time.Time) *EmergencyService {
	t.Helper()

	svc, err := NewEmergencyService(db, newAudit(t, db),
		WithEmergencyNow(func() time.Time { return *clock }))
	require.NoError(t, err)
	return svc
}

func TestEmergencyGrantValidation(t *testing.T) {
	db := openServiceTestDB(t)
	clock := testClock
	svc := newEmergencyService(t, db, &clock)
	ctx := context.Background()

	createTestUser(t, db, "responder", nil)

	base := GrantInput{
		UserID:      "responder",
		Permissions: []string{"tickets.delete_all"},
		GrantedBy:   "admin",
		ExpiresAt:   testClock.Add(2 * time.Hour),
		Reason:      "incident 4411",
	}

	in := base
	in.Reason = ""
	_, err := svc.Grant(ctx, in)
	require.Error(t, err)

	in = base
	in.ExpiresAt = testClock.Add(-time.Minute)
	_, err = svc.Grant(ctx, in)
	require.Error(t, err)

	in = base
	in.Permissions = nil
	_, err = svc.Grant(ctx, in)
	require.Error(t, err)

	in = base
	in.Permissions = []string{"tickets.delete_all", "tickets.teleport"}
	_, err = svc.Grant(ctx, in)
	require.Error(t, err)

	// Inactive permissions cannot be named either.
	require.NoError(t, db.Model(&models.Permission{}).
		Where("name = ?", "tickets.close").Update("is_active", false).Error)
	in = base
	in.Permissions = []string{"tickets.close"}
	_, err = svc.Grant(ctx, in)
	require.Error(t, err)

	// None of the rejected grants left rows behind.
	require.Zero(t, countAuditRows(t, db))
	var count int64
	require.NoError(t, db.Model(&models.EmergencyAccess{}).Count(&count).Error)
	require.Zero(t, count)

	grant, err := svc.Grant(ctx, base)
	require.NoError(t, err)
	require.True(t, grant.IsActive)
	require.Nil(t, grant.Token)
	require.EqualValues(t, 1, countAuditRows(t, db))
}

func TestEmergencyGrantSingleUseToken(t *testing.T) {
	db := openServiceTestDB(t)
	clock := testClock
	svc := newEmergencyService(t, db, &clock)
	ctx := context.Background()

	createTestUser(t, db, "responder", nil)

	grant, err := svc.Grant(ctx, GrantInput{
		UserID:      "responder",
		Permissions: []string{"tickets.delete_all"},
		GrantedBy:   "admin",
		ExpiresAt:   testClock.Add(time.Hour),
		Reason:      "incident 4412",
		SingleUse:   true,
	})
	require.NoError(t, err)
	require.NotNil(t, grant.Token)
	require.NotEmpty(t, *grant.Token)

	used, err := svc.MarkTokenUsed(ctx, *grant.Token, "responder")
	require.NoError(t, err)
	require.NotNil(t, used.UsedAt)
	require.Equal(t, grant.ID, used.ID)

	// A second presentation of the same token is a replay.
	_, err = svc.MarkTokenUsed(ctx, *grant.Token, "responder")
	require.ErrorIs(t, err, ErrTokenAlreadyUsed)

	// One audit row for the grant, one for the successful consumption.
	require.EqualValues(t, 2, countAuditRows(t, db))
}

func TestEmergencyMarkTokenUsedExpiryAndUnknown(t *testing.T) {
	db := openServiceTestDB(t)
	clock := testClock
	svc := newEmergencyService(t, db, &clock)
	ctx := context.Background()

	createTestUser(t, db, "responder", nil)

	grant, err := svc.Grant(ctx, GrantInput{
		UserID:      "responder",
		Permissions: []string{"tickets.delete_all"},
		GrantedBy:   "admin",
		ExpiresAt:   testClock.Add(time.Hour),
		Reason:      "incident 4413",
		SingleUse:   true,
	})
	require.NoError(t, err)

	_, err = svc.MarkTokenUsed(ctx, "no-such-token", "responder")
	require.ErrorIs(t, err, ErrTokenNotFound)

	// Past natural expiry the unused token is dead.
	clock = testClock.Add(2 * time.Hour)
	_, err = svc.MarkTokenUsed(ctx, *grant.Token, "responder")
	require.ErrorIs(t, err, ErrTokenExpired)

	// Revoked grants refuse their token the same way.
	clock = testClock
	second, err := svc.Grant(ctx, GrantInput{
		UserID:      "responder",
		Permissions: []string{"tickets.delete_all"},
		GrantedBy:   "admin",
		ExpiresAt:   testClock.Add(time.Hour),
		Reason:      "incident 4414",
		SingleUse:   true,
	})
	require.NoError(t, err)
	require.NoError(t, svc.Revoke(ctx, second.ID, "admin"))

	_, err = svc.MarkTokenUsed(ctx, *second.Token, "responder")
	require.ErrorIs(t, err, ErrTokenExpired)
}

func TestEmergencyRevokeIsIdempotent(t *testing.T) {
	db := openServiceTestDB(t)
	clock := testClock
	svc := newEmergencyService(t, db, &clock)
	ctx := context.Background()

	createTestUser(t, db, "responder", nil)

	grant, err := svc.Grant(ctx, GrantInput{
		UserID:      "responder",
		Permissions: []string{"tickets.delete_all"},
		GrantedBy:   "admin",
		ExpiresAt:   testClock.Add(time.Hour),
		Reason:      "incident 4415",
	})
	require.NoError(t, err)

	require.NoError(t, svc.Revoke(ctx, grant.ID, "admin"))
	require.EqualValues(t, 2, countAuditRows(t, db))

	require.NoError(t, svc.Revoke(ctx, grant.ID, "admin"))
	require.EqualValues(t, 2, countAuditRows(t, db))

	require.ErrorIs(t, svc.Revoke(ctx, "missing", "admin"), ErrEmergencyNotFound)
}

func TestEmergencyListInEffect(t *testing.T) {
	db := openServiceTestDB(t)
	clock := testClock
	svc := newEmergencyService(t, db, &clock)
	ctx := context.Background()

	createTestUser(t, db, "responder", nil)

	live, err := svc.Grant(ctx, GrantInput{
		UserID:      "responder",
		Permissions: []string{"tickets.delete_all"},
		GrantedBy:   "admin",
		ExpiresAt:   testClock.Add(3 * time.Hour),
		Reason:      "incident 4416",
	})
	require.NoError(t, err)

	short, err := svc.Grant(ctx, GrantInput{
		UserID:      "responder",
		Permissions: []string{"audit.view"},
		GrantedBy:   "admin",
		ExpiresAt:   testClock.Add(30 * time.Minute),
		Reason:      "incident 4417",
	})
	require.NoError(t, err)

	grants, err := svc.ListInEffect(ctx)
	require.NoError(t, err)
	require.Len(t, grants, 2)

	// Expiry is read-time: advancing the clock hides the short grant without
	// touching its row.
	clock = testClock.Add(time.Hour)
	grants, err = svc.ListInEffect(ctx)
	require.NoError(t, err)
	require.Len(t, grants, 1)
	require.Equal(t, live.ID, grants[0].ID)

	var row models.EmergencyAccess
	require.NoError(t, db.First(&row, "id = ?", short.ID).Error)
	require.True(t, row.IsActive)
}
