package access_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/oakdesk/oakdesk/internal/access"
	"github.com/oakdesk/oakdesk/internal/database/testutil"
	"github.com/oakdesk/oakdesk/internal/models"
)

var evalClock = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func newEvaluator(t *testing.T) (*gorm.DB, *access.Evaluator, *time.Time) {
	t.Helper()

	db := testutil.MustOpenTestDB(t, testutil.WithSeedData())

	clock := evalClock
	eval, err := access.NewEvaluator(db, access.WithNow(func() time.Time { return clock }))
	require.NoError(t, err)

	depts := []models.Department{
		{BaseModel: models.BaseModel{ID: "emea"}, Name: "EMEA", Path: "/", IsActive: true},
		{BaseModel: models.BaseModel{ID: "emea-tier2"}, Name: "EMEA Tier 2", ParentID: ptr("emea"), Path: "/emea/", IsActive: true},
		{BaseModel: models.BaseModel{ID: "apac"}, Name: "APAC", Path: "/", IsActive: true},
	}
	for i := range depts {
		require.NoError(t, db.Create(&depts[i]).Error)
	}

	return db, eval, &clock
}

func ptr[T any](v T) *T { return &v }

func createUser(t *testing.T, db *gorm.DB, id string, mutate func(*models.User)) *models.User {
	t.Helper()

	user := &models.User{
		ID:       id,
		Username: id,
		Email:    id + "@example.com",
		Password: "x",
		IsActive: true,
	}
	if mutate != nil {
		mutate(user)
	}
	require.NoError(t, db.Create(user).Error)
	return user
}

func assignRole(t *testing.T, db *gorm.DB, userID, roleID string, expiresAt *time.Time) {
	t.Helper()

	require.NoError(t, db.Create(&models.UserRole{
		UserID:    userID,
		RoleID:    roleID,
		GrantedBy: userID,
		GrantedAt: evalClock.Add(-time.Hour),
		ExpiresAt: expiresAt,
		IsActive:  true,
	}).Error)
}

func TestEvaluateRootUserBypassesCatalog(t *testing.T) {
	db, eval, _ := newEvaluator(t)
	createUser(t, db, "root", func(u *models.User) { u.IsRoot = true })

	decision, err := eval.Evaluate(context.Background(), "root", access.Query{Permission: "tickets.delete_all"})
	require.NoError(t, err)
	require.True(t, decision.Allowed)
	require.Equal(t, access.ReasonRootGrant, decision.Reason)

	// Even permissions nobody has are granted to root.
	decision, err = eval.Evaluate(context.Background(), "root", access.Query{Resource: "tickets", Action: "view"})
	require.NoError(t, err)
	require.True(t, decision.Allowed)
}

func TestEvaluateInactiveUserDeniedEverything(t *testing.T) {
	db, eval, _ := newEvaluator(t)
	createUser(t, db, "ghost", func(u *models.User) {
		u.IsRoot = true
		u.IsActive = false
	})

	decision, err := eval.Evaluate(context.Background(), "ghost", access.Query{Permission: "tickets.view"})
	require.NoError(t, err)
	require.False(t, decision.Allowed)
	require.Equal(t, access.ReasonNoGrant, decision.Reason)
}

func TestEvaluateDirectGrantBeatsRoleResolution(t *testing.T) {
	db, eval, _ := newEvaluator(t)
	user := createUser(t, db, "alice", nil)

	var perm models.Permission
	require.NoError(t, db.First(&perm, "name = ?", "tickets.close").Error)
	require.NoError(t, db.Model(user).Association("Permissions").Append(&perm))

	decision, err := eval.Evaluate(context.Background(), "alice", access.Query{Permission: "tickets.close"})
	require.NoError(t, err)
	require.True(t, decision.Allowed)
	require.Equal(t, access.ReasonDirectGrant, decision.Reason)
}

func TestEvaluateRoleGrant(t *testing.T) {
	db, eval, _ := newEvaluator(t)
	createUser(t, db, "bob", nil)
	assignRole(t, db, "bob", "support_agent", nil)

	decision, err := eval.Evaluate(context.Background(), "bob", access.Query{Permission: "tickets.close"})
	require.NoError(t, err)
	require.True(t, decision.Allowed)
	require.Equal(t, access.ReasonRoleGrant, decision.Reason)

	// Permissions outside the role still deny.
	decision, err = eval.Evaluate(context.Background(), "bob", access.Query{Permission: "tickets.delete_all"})
	require.NoError(t, err)
	require.False(t, decision.Allowed)
	require.Equal(t, access.ReasonNoGrant, decision.Reason)
}

func TestEvaluateUnknownPermissionDenies(t *testing.T) {
	db, eval, _ := newEvaluator(t)
	createUser(t, db, "carol", nil)

	decision, err := eval.Evaluate(context.Background(), "carol", access.Query{Permission: "tickets.teleport"})
	require.NoError(t, err)
	require.False(t, decision.Allowed)
	require.Equal(t, access.ReasonNoGrant, decision.Reason)
}

func TestEvaluateInactivePermissionDeniesForEveryoneButRoot(t *testing.T) {
	db, eval, _ := newEvaluator(t)
	createUser(t, db, "dave", nil)
	assignRole(t, db, "dave", "support_agent", nil)

	require.NoError(t, db.Model(&models.Permission{}).
		Where("name = ?", "tickets.close").
		Update("is_active", false).Error)

	decision, err := eval.Evaluate(context.Background(), "dave", access.Query{Permission: "tickets.close"})
	require.NoError(t, err)
	require.False(t, decision.Allowed)
	require.Equal(t, access.ReasonPermissionInactive, decision.Reason)
}

func TestEvaluateExpiredAssignmentStopsConferring(t *testing.T) {
	db, eval, clock := newEvaluator(t)
	createUser(t, db, "erin", nil)
	assignRole(t, db, "erin", "support_agent", ptr(evalClock.Add(30*time.Minute)))

	decision, err := eval.Evaluate(context.Background(), "erin", access.Query{Permission: "tickets.close"})
	require.NoError(t, err)
	require.True(t, decision.Allowed)

	*clock = evalClock.Add(time.Hour)
	decision, err = eval.Evaluate(context.Background(), "erin", access.Query{Permission: "tickets.close"})
	require.NoError(t, err)
	require.False(t, decision.Allowed)
	require.Equal(t, access.ReasonNoGrant, decision.Reason)
}

func TestEvaluateDeactivatedRoleStopsConferring(t *testing.T) {
	db, eval, _ := newEvaluator(t)
	createUser(t, db, "frank", nil)

	role := models.Role{BaseModel: models.BaseModel{ID: "temp"}, Name: "temp", HierarchyLevel: 1, IsActive: true}
	require.NoError(t, db.Create(&role).Error)
	var perm models.Permission
	require.NoError(t, db.First(&perm, "name = ?", "tickets.close").Error)
	require.NoError(t, db.Model(&role).Association("Permissions").Append(&perm))
	assignRole(t, db, "frank", "temp", nil)

	decision, err := eval.Evaluate(context.Background(), "frank", access.Query{Permission: "tickets.close"})
	require.NoError(t, err)
	require.True(t, decision.Allowed)

	require.NoError(t, db.Model(&role).Update("is_active", false).Error)
	decision, err = eval.Evaluate(context.Background(), "frank", access.Query{Permission: "tickets.close"})
	require.NoError(t, err)
	require.False(t, decision.Allowed)
}

func TestEvaluateDepartmentScope(t *testing.T) {
	db, eval, _ := newEvaluator(t)
	createUser(t, db, "mgr", func(u *models.User) { u.DepartmentID = ptr("emea") })
	assignRole(t, db, "mgr", "department_manager", nil)

	// Own department.
	decision, err := eval.Evaluate(context.Background(), "mgr", access.Query{
		Permission:   "tickets.view_department",
		DepartmentID: "emea",
	})
	require.NoError(t, err)
	require.True(t, decision.Allowed)
	require.Equal(t, access.ReasonRoleGrant, decision.Reason)

	// Descendant department.
	decision, err = eval.Evaluate(context.Background(), "mgr", access.Query{
		Permission:   "tickets.view_department",
		DepartmentID: "emea-tier2",
	})
	require.NoError(t, err)
	require.True(t, decision.Allowed)

	// Unrelated department.
	decision, err = eval.Evaluate(context.Background(), "mgr", access.Query{
		Permission:   "tickets.view_department",
		DepartmentID: "apac",
	})
	require.NoError(t, err)
	require.False(t, decision.Allowed)
	require.Equal(t, access.ReasonDepartmentScopeDenied, decision.Reason)

	// Without a target department the role grant stands on its own.
	decision, err = eval.Evaluate(context.Background(), "mgr", access.Query{Permission: "tickets.view_department"})
	require.NoError(t, err)
	require.True(t, decision.Allowed)
}

func TestEvaluateDepartmentScopeWithoutMembership(t *testing.T) {
	db, eval, _ := newEvaluator(t)
	createUser(t, db, "nomad", nil)
	assignRole(t, db, "nomad", "department_manager", nil)

	decision, err := eval.Evaluate(context.Background(), "nomad", access.Query{
		Permission:   "tickets.view_department",
		DepartmentID: "emea",
	})
	require.NoError(t, err)
	require.False(t, decision.Allowed)
	require.Equal(t, access.ReasonDepartmentScopeDenied, decision.Reason)
}

func emergencyGrant(t *testing.T, db *gorm.DB, userID string, token *string, usedAt *time.Time) *models.EmergencyAccess {
	t.Helper()

	grant := &models.EmergencyAccess{
		UserID:      userID,
		Permissions: datatypes.JSON(`["tickets.delete_all"]`),
		GrantedBy:   "root",
		Reason:      "incident 4821",
		GrantedAt:   evalClock.Add(-10 * time.Minute),
		ExpiresAt:   evalClock.Add(time.Hour),
		Token:       token,
		UsedAt:      usedAt,
		IsActive:    true,
	}
	require.NoError(t, db.Create(grant).Error)
	return grant
}

func TestEvaluateEmergencyOverride(t *testing.T) {
	db, eval, clock := newEvaluator(t)
	createUser(t, db, "oncall", nil)
	emergencyGrant(t, db, "oncall", nil, nil)

	decision, err := eval.Evaluate(context.Background(), "oncall", access.Query{Permission: "tickets.delete_all"})
	require.NoError(t, err)
	require.True(t, decision.Allowed)
	require.Equal(t, access.ReasonEmergencyOverride, decision.Reason)

	// Grants name permissions explicitly; anything else stays denied.
	decision, err = eval.Evaluate(context.Background(), "oncall", access.Query{Permission: "roles.manage"})
	require.NoError(t, err)
	require.False(t, decision.Allowed)

	// Natural expiry.
	*clock = evalClock.Add(2 * time.Hour)
	decision, err = eval.Evaluate(context.Background(), "oncall", access.Query{Permission: "tickets.delete_all"})
	require.NoError(t, err)
	require.False(t, decision.Allowed)
	require.Equal(t, access.ReasonNoGrant, decision.Reason)
}

func TestEvaluateConsumedTokenDeniesWithDistinctReason(t *testing.T) {
	db, eval, _ := newEvaluator(t)
	createUser(t, db, "spent", nil)
	emergencyGrant(t, db, "spent", ptr("token-1"), ptr(evalClock.Add(-time.Minute)))

	decision, err := eval.Evaluate(context.Background(), "spent", access.Query{Permission: "tickets.delete_all"})
	require.NoError(t, err)
	require.False(t, decision.Allowed)
	require.Equal(t, access.ReasonEmergencyExhausted, decision.Reason)
}

func TestUserPermissionsUnionsAllChannels(t *testing.T) {
	db, eval, _ := newEvaluator(t)
	user := createUser(t, db, "union", nil)
	assignRole(t, db, "union", "support_agent", nil)

	var perm models.Permission
	require.NoError(t, db.First(&perm, "name = ?", "audit.view").Error)
	require.NoError(t, db.Model(user).Association("Permissions").Append(&perm))

	emergencyGrant(t, db, "union", nil, nil)

	names, err := eval.UserPermissions(context.Background(), "union")
	require.NoError(t, err)
	require.Equal(t, []string{"audit.view", "tickets.close", "tickets.delete_all", "tickets.view"}, names)
}

func TestUserPermissionsForRootListsWholeCatalog(t *testing.T) {
	db, eval, _ := newEvaluator(t)
	createUser(t, db, "root", func(u *models.User) { u.IsRoot = true })

	names, err := eval.UserPermissions(context.Background(), "root")
	require.NoError(t, err)
	require.Len(t, names, 10)
	require.Contains(t, names, "system.configuration")
}
