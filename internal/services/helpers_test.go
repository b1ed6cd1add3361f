package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/oakdesk/oakdesk/internal/database/testutil"
	"github.com/oakdesk/oakdesk/internal/models"
)

var testClock = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func openServiceTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	return testutil.MustOpenTestDB(t, testutil.WithSeedData())
}

func newAudit(t *testing.T, db *gorm.DB) *AuditService {
	t.Helper()
	audit, err := NewAuditService(db)
	require.NoError(t, err)
	return audit
}

func createTestUser(t *testing.T, db *gorm.DB, id string, mutate func(*models.User)) *models.User {
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

func countAuditRows(t *testing.T, db *gorm.DB) int64 {
	t.Helper()

	var count int64
	require.NoError(t, db.Model(&models.PermissionAudit{}).Count(&count).Error)
	return count
}

func ptr[T any](v T) *T { return &v }
