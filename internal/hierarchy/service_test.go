package hierarchy_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/oakdesk/oakdesk/internal/database/testutil"
	"github.com/oakdesk/oakdesk/internal/hierarchy"
	"github.com/oakdesk/oakdesk/internal/models"
)

func newTree(t *testing.T) (*gorm.DB, *hierarchy.Service) {
	t.Helper()

	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	svc, err := hierarchy.NewService(db)
	require.NoError(t, err)

	// support
	// ├── emea
	// │   └── emea-tier2
	// └── apac
	depts := []models.Department{
		{BaseModel: models.BaseModel{ID: "support"}, Name: "Support", Path: "/", IsActive: true},
		{BaseModel: models.BaseModel{ID: "emea"}, Name: "EMEA", ParentID: strPtr("support"), Path: "/support/", IsActive: true},
		{BaseModel: models.BaseModel{ID: "emea-tier2"}, Name: "EMEA Tier 2", ParentID: strPtr("emea"), Path: "/support/emea/", IsActive: true},
		{BaseModel: models.BaseModel{ID: "apac"}, Name: "APAC", ParentID: strPtr("support"), Path: "/support/", IsActive: true},
	}
	for i := range depts {
		require.NoError(t, db.Create(&depts[i]).Error)
	}

	return db, svc
}

func strPtr(s string) *string { return &s }

func TestAncestorsOrderedOutermostFirst(t *testing.T) {
	_, svc := newTree(t)

	rows, err := svc.Ancestors(context.Background(), "emea-tier2")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	require.Equal(t, "support", rows[0].ID)
	require.Equal(t, "emea", rows[1].ID)

	rows, err = svc.Ancestors(context.Background(), "support")
	require.NoError(t, err)
	require.Empty(t, rows)
}

func TestDescendantsExcludesInactive(t *testing.T) {
	db, svc := newTree(t)

	rows, err := svc.Descendants(context.Background(), "support")
	require.NoError(t, err)
	require.Len(t, rows, 3)

	require.NoError(t, db.Model(&models.Department{}).
		Where("id = ?", "apac").
		Update("is_active", false).Error)

	rows, err = svc.Descendants(context.Background(), "support")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	for _, row := range rows {
		require.NotEqual(t, "apac", row.ID)
	}
}

func TestIsAncestorOf(t *testing.T) {
	_, svc := newTree(t)

	ok, err := svc.IsAncestorOf(context.Background(), "support", "emea-tier2")
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = svc.IsAncestorOf(context.Background(), "apac", "emea-tier2")
	require.NoError(t, err)
	require.False(t, ok)

	ok, err = svc.IsAncestorOf(context.Background(), "emea-tier2", "support")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestReparentCascadesSubtreePaths(t *testing.T) {
	db, svc := newTree(t)

	require.NoError(t, svc.Reparent(context.Background(), "emea", strPtr("apac")))

	var emea models.Department
	require.NoError(t, db.First(&emea, "id = ?", "emea").Error)
	require.Equal(t, "/support/apac/", emea.Path)
	require.Equal(t, "apac", *emea.ParentID)

	var tier2 models.Department
	require.NoError(t, db.First(&tier2, "id = ?", "emea-tier2").Error)
	require.Equal(t, "/support/apac/emea/", tier2.Path)
}

func TestReparentToRoot(t *testing.T) {
	db, svc := newTree(t)

	require.NoError(t, svc.Reparent(context.Background(), "emea", nil))

	var emea models.Department
	require.NoError(t, db.First(&emea, "id = ?", "emea").Error)
	require.Equal(t, "/", emea.Path)
	require.Nil(t, emea.ParentID)

	var tier2 models.Department
	require.NoError(t, db.First(&tier2, "id = ?", "emea-tier2").Error)
	require.Equal(t, "/emea/", tier2.Path)
}

func TestReparentRejectsCycles(t *testing.T) {
	db, svc := newTree(t)

	err := svc.Reparent(context.Background(), "support", strPtr("emea-tier2"))
	require.ErrorIs(t, err, hierarchy.ErrCircularReference)

	err = svc.Reparent(context.Background(), "emea", strPtr("emea"))
	require.ErrorIs(t, err, hierarchy.ErrCircularReference)

	// Tree must be untouched after a rejected move.
	var support models.Department
	require.NoError(t, db.First(&support, "id = ?", "support").Error)
	require.Equal(t, "/", support.Path)
	require.Nil(t, support.ParentID)
}

func TestReparentRejectsMissingParent(t *testing.T) {
	_, svc := newTree(t)

	err := svc.Reparent(context.Background(), "emea", strPtr("nope"))
	require.ErrorIs(t, err, hierarchy.ErrDepartmentNotFound)

	err = svc.Reparent(context.Background(), "nope", nil)
	require.ErrorIs(t, err, hierarchy.ErrDepartmentNotFound)
}
