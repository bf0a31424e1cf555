package database

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"stockroom-backend/internal/models"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	// A single connection keeps every statement on the same in-memory DB.
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, Use(db))
	return db
}

func seedTenants(t *testing.T, db *gorm.DB) (uint, uint) {
	t.Helper()
	ctx := WithBypass(context.Background())

	t1 := models.Tenant{Name: "acme", Status: models.TenantStatusActive}
	t2 := models.Tenant{Name: "globex", Status: models.TenantStatusActive}
	require.NoError(t, db.WithContext(ctx).Create(&t1).Error)
	require.NoError(t, db.WithContext(ctx).Create(&t2).Error)

	for _, s := range []*models.Store{
		{TenantID: t1.ID, Name: "acme-main", Classification: models.StoreMain},
		{TenantID: t2.ID, Name: "globex-main", Classification: models.StoreMain},
	} {
		require.NoError(t, db.WithContext(ctx).Create(s).Error)
	}
	return t1.ID, t2.ID
}

func TestScopedQueryFiltersByTenant(t *testing.T) {
	db := openTestDB(t)
	t1, t2 := seedTenants(t, db)

	var stores []models.Store
	require.NoError(t, db.WithContext(WithTenant(context.Background(), t1)).Find(&stores).Error)
	require.Len(t, stores, 1)
	assert.Equal(t, "acme-main", stores[0].Name)
	assert.Equal(t, t1, stores[0].TenantID)

	// The other tenant's store is invisible even when asked for by id.
	var leaked models.Store
	err := db.WithContext(WithTenant(context.Background(), t1)).
		Where("name = ?", "globex-main").First(&leaked).Error
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)

	var all []models.Store
	require.NoError(t, db.WithContext(WithTenant(context.Background(), t2)).Find(&all).Error)
	require.Len(t, all, 1)
	assert.Equal(t, "globex-main", all[0].Name)
}

func TestUnscopedOperationFails(t *testing.T) {
	db := openTestDB(t)
	seedTenants(t, db)

	var stores []models.Store
	err := db.WithContext(context.Background()).Find(&stores).Error
	assert.ErrorIs(t, err, ErrNoTenant)

	err = db.WithContext(context.Background()).Create(&models.Store{
		Name: "orphan", Classification: models.StoreMain, TenantID: 1,
	}).Error
	assert.ErrorIs(t, err, ErrNoTenant)

	err = db.WithContext(context.Background()).
		Model(&models.Store{}).Where("id = ?", 1).Update("name", "x").Error
	assert.ErrorIs(t, err, ErrNoTenant)
}

func TestCreateInjectsTenantID(t *testing.T) {
	db := openTestDB(t)
	t1, t2 := seedTenants(t, db)

	// Poisoned TenantID on the model value is overridden by the scope.
	s := models.Store{TenantID: t2, Name: "sneaky", Classification: models.StoreRegional}
	require.NoError(t, db.WithContext(WithTenant(context.Background(), t1)).Create(&s).Error)
	assert.Equal(t, t1, s.TenantID)
}

func TestExemptAndBypass(t *testing.T) {
	db := openTestDB(t)
	seedTenants(t, db)

	// Tenants are exempt: readable without any scope.
	var tenants []models.Tenant
	require.NoError(t, db.WithContext(context.Background()).Find(&tenants).Error)
	assert.Len(t, tenants, 2)

	// Bypass sees across tenants (token-resolution path).
	var stores []models.Store
	require.NoError(t, db.WithContext(WithBypass(context.Background())).Find(&stores).Error)
	assert.Len(t, stores, 2)

	// A zero tenant id is not a valid scope.
	err := db.WithContext(WithTenant(context.Background(), 0)).Find(&stores).Error
	assert.ErrorIs(t, err, ErrNoTenant)
}

func TestScopedUpdateCannotCrossTenants(t *testing.T) {
	db := openTestDB(t)
	t1, t2 := seedTenants(t, db)

	res := db.WithContext(WithTenant(context.Background(), t1)).
		Model(&models.Store{}).Where("name = ?", "globex-main").Update("name", "stolen")
	require.NoError(t, res.Error)
	assert.Zero(t, res.RowsAffected)

	var s models.Store
	require.NoError(t, db.WithContext(WithTenant(context.Background(), t2)).
		Where("name = ?", "globex-main").First(&s).Error)
}
