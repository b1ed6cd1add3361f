package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/oakdesk/oakdesk/internal/models"
)

func TestCreateRoleRejectsDuplicates(t *testing.T) {
	db := openServiceTestDB(t)
	svc, err := NewRoleService(db, newAudit(t, db))
	require.NoError(t, err)
	ctx := context.Background()

	role, err := svc.CreateRole(ctx, CreateRoleInput{
		Name:           "triage_lead",
		DisplayName:    "Triage Lead",
		HierarchyLevel: 3,
		PerformedBy:    "admin",
	})
	require.NoError(t, err)
	require.True(t, role.IsActive)
	require.EqualValues(t, 1, countAuditRows(t, db))

	_, err = svc.CreateRole(ctx, CreateRoleInput{Name: "triage_lead", PerformedBy: "admin"})
	require.Error(t, err)
	// Failed mutations leave no audit trace.
	require.EqualValues(t, 1, countAuditRows(t, db))
}

func TestUpdateRoleOnlyTouchesMetadata(t *testing.T) {
	db := openServiceTestDB(t)
	svc, err := NewRoleService(db, newAudit(t, db))
	require.NoError(t, err)
	ctx := context.Background()

	role, err := svc.UpdateRole(ctx, "support_agent", UpdateRoleInput{
		DisplayName: "Frontline Agent",
		PerformedBy: "admin",
	})
	require.NoError(t, err)
	require.Equal(t, "Frontline Agent", role.DisplayName)
	require.Equal(t, 1, role.HierarchyLevel)

	_, err = svc.UpdateRole(ctx, "missing", UpdateRoleInput{PerformedBy: "admin"})
	require.ErrorIs(t, err, ErrRoleNotFound)
}

func TestDeactivateRoleProtectsSystemRoles(t *testing.T) {
	db := openServiceTestDB(t)
	svc, err := NewRoleService(db, newAudit(t, db))
	require.NoError(t, err)
	ctx := context.Background()

	err = svc.DeactivateRole(ctx, "system_administrator", "admin")
	require.ErrorIs(t, err, ErrSystemRoleImmutable)

	role, err := svc.CreateRole(ctx, CreateRoleInput{Name: "seasonal", PerformedBy: "admin"})
	require.NoError(t, err)

	require.NoError(t, svc.DeactivateRole(ctx, role.ID, "admin"))

	var got models.Role
	require.NoError(t, db.First(&got, "id = ?", role.ID).Error)
	require.False(t, got.IsActive)

	// Deactivating twice is a no-op, not an error.
	before := countAuditRows(t, db)
	require.NoError(t, svc.DeactivateRole(ctx, role.ID, "admin"))
	require.Equal(t, before, countAuditRows(t, db))
}

func TestSetRolePermissionsValidatesNames(t *testing.T) {
	db := openServiceTestDB(t)
	svc, err := NewRoleService(db, newAudit(t, db))
	require.NoError(t, err)
	ctx := context.Background()

	role, err := svc.CreateRole(ctx, CreateRoleInput{Name: "auditor", PerformedBy: "admin"})
	require.NoError(t, err)

	err = svc.SetRolePermissions(ctx, role.ID, []string{"audit.view", "tickets.levitate"}, "admin")
	require.ErrorIs(t, err, ErrPermissionNotFound)

	require.NoError(t, svc.SetRolePermissions(ctx, role.ID, []string{"audit.view", "tickets.view"}, "admin"))

	var got models.Role
	require.NoError(t, db.Preload("Permissions").First(&got, "id = ?", role.ID).Error)
	require.Len(t, got.Permissions, 2)

	err = svc.SetRolePermissions(ctx, "system_administrator", []string{"tickets.view"}, "admin")
	require.ErrorIs(t, err, ErrSystemRoleImmutable)
}

func TestCreatePermissionDefaultsName(t *testing.T) {
	db := openServiceTestDB(t)
	svc, err := NewRoleService(db, newAudit(t, db))
	require.NoError(t, err)
	ctx := context.Background()

	perm, err := svc.CreatePermission(ctx, CreatePermissionInput{
		Resource:    "tickets",
		Action:      "escalate",
		PerformedBy: "admin",
	})
	require.NoError(t, err)
	require.Equal(t, "tickets.escalate", perm.Name)
	require.True(t, perm.IsActive)

	_, err = svc.CreatePermission(ctx, CreatePermissionInput{Resource: "tickets", PerformedBy: "admin"})
	require.Error(t, err)
}

func TestDeactivatePermissionKeepsRow(t *testing.T) {
	db := openServiceTestDB(t)
	svc, err := NewRoleService(db, newAudit(t, db))
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, svc.DeactivatePermission(ctx, "tickets.close", "admin"))

	var perm models.Permission
	require.NoError(t, db.First(&perm, "id = ?", "tickets.close").Error)
	require.False(t, perm.IsActive)

	err = svc.DeactivatePermission(ctx, "missing", "admin")
	require.ErrorIs(t, err, ErrPermissionNotFound)
}
