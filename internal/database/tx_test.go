package database

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"stockroom-backend/internal/models"
)

// openDryPostgres builds a postgres-dialect session that only renders SQL.
// The connection is lazy and never pinged, so no server is needed.
func openDryPostgres(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(postgres.New(postgres.Config{
		DSN: "host=localhost user=test dbname=test",
	}), &gorm.Config{
		DryRun:               true,
		DisableAutomaticPing: true,
		Logger:               logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	return db
}

func TestJSONContainsCastsToTextOnPostgres(t *testing.T) {
	db := openDryPostgres(t)

	var batches []models.InventoryBatch
	stmt := JSONContains(db, "transfer_requests", "abc-123").Find(&batches).Statement

	sql := stmt.SQL.String()
	assert.Contains(t, sql, "transfer_requests::text LIKE")
	assert.NotContains(t, sql, "transfer_requests LIKE")
	assert.Contains(t, stmt.Vars, "%abc-123%")
}

func TestJSONContainsMatchesDirectlyOnSQLite(t *testing.T) {
	db := openTestDB(t).
		WithContext(WithBypass(context.Background())).
		Session(&gorm.Session{DryRun: true})

	var batches []models.InventoryBatch
	stmt := JSONContains(db, "transfer_requests", "abc-123").Find(&batches).Statement

	assert.Contains(t, stmt.SQL.String(), "transfer_requests LIKE")
	assert.NotContains(t, stmt.SQL.String(), "::text")
}

func TestLockForUpdateAppliesOnPostgresOnly(t *testing.T) {
	pg := openDryPostgres(t)
	var batch models.InventoryBatch
	stmt := LockForUpdate(pg).Find(&batch, 1).Statement
	assert.Contains(t, stmt.SQL.String(), "FOR UPDATE")

	lite := openTestDB(t).
		WithContext(WithBypass(context.Background())).
		Session(&gorm.Session{DryRun: true})
	stmt = LockForUpdate(lite).Find(&batch, 1).Statement
	assert.NotContains(t, stmt.SQL.String(), "FOR UPDATE")
}
