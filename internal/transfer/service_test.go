package transfer

import (
	"context"
	"errors"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"stockroom-backend/internal/database"
	"stockroom-backend/internal/ledger"
	"stockroom-backend/internal/models"
)

type fixture struct {
	ctx context.Context

	mainStore models.Store
	regionA   models.Store
	regionB   models.Store
	subA1     models.Store
	subB1     models.Store

	superAdmin  models.User
	mainAdmin   models.User
	regionAUser models.User
	regionBUser models.User

	batch models.InventoryBatch
}

func setup(t *testing.T) *fixture {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, database.Use(db))

	tenant := models.Tenant{Name: "acme", Status: models.TenantStatusActive}
	require.NoError(t, db.WithContext(database.WithBypass(context.Background())).Create(&tenant).Error)

	f := &fixture{ctx: database.WithTenant(context.Background(), tenant.ID)}
	scoped := db.WithContext(f.ctx)

	f.mainStore = models.Store{Name: "main", Classification: models.StoreMain}
	require.NoError(t, scoped.Create(&f.mainStore).Error)

	f.regionA = models.Store{Name: "region-a", Classification: models.StoreRegional, ParentID: &f.mainStore.ID}
	f.regionB = models.Store{Name: "region-b", Classification: models.StoreRegional, ParentID: &f.mainStore.ID}
	require.NoError(t, scoped.Create(&f.regionA).Error)
	require.NoError(t, scoped.Create(&f.regionB).Error)

	f.subA1 = models.Store{Name: "sub-a1", Classification: models.StoreSubRegional, ParentID: &f.regionA.ID}
	f.subB1 = models.Store{Name: "sub-b1", Classification: models.StoreSubRegional, ParentID: &f.regionB.ID}
	require.NoError(t, scoped.Create(&f.subA1).Error)
	require.NoError(t, scoped.Create(&f.subB1).Error)

	f.superAdmin = models.User{Name: "Root", Email: "root@acme.test", PasswordHash: "x", Role: models.RoleSuperAdmin}
	f.mainAdmin = models.User{Name: "Main Admin", Email: "main@acme.test", PasswordHash: "x", Role: models.RoleStoreAdmin, StoreID: &f.mainStore.ID}
	f.regionAUser = models.User{Name: "Region A Admin", Email: "rega@acme.test", PasswordHash: "x", Role: models.RoleStoreAdmin, StoreID: &f.regionA.ID}
	f.regionBUser = models.User{Name: "Region B Admin", Email: "regb@acme.test", PasswordHash: "x", Role: models.RoleStoreAdmin, StoreID: &f.regionB.ID}
	for _, u := range []*models.User{&f.superAdmin, &f.mainAdmin, &f.regionAUser, &f.regionBUser} {
		require.NoError(t, scoped.Create(u).Error)
	}

	product := models.Product{Name: "Dark Chocolate 1kg", Unit: "kg", StockCode: "CHO-001"}
	require.NoError(t, scoped.Create(&product).Error)

	m, err := ledger.Update(nil, ledger.Key(f.mainStore.ID), 100, 0, "seed")
	require.NoError(t, err)

	f.batch = models.InventoryBatch{
		ProductID:        product.ID,
		BatchNumber:      "B-2026-001",
		UnitPrice:        12.5,
		NumberOfStock:    100,
		TransferRequests: models.TransferRequestMap{},
	}
	f.batch.SetLedger(m)
	require.NoError(t, scoped.Create(&f.batch).Error)

	return f
}

func (f *fixture) reloadBatch(t *testing.T) models.InventoryBatch {
	t.Helper()
	var b models.InventoryBatch
	require.NoError(t, database.DB.WithContext(f.ctx).First(&b, f.batch.ID).Error)
	return b
}

func statusCode(t *testing.T, err error) int {
	t.Helper()
	var fe *fiber.Error
	require.True(t, errors.As(err, &fe), "expected a fiber error, got %v", err)
	return fe.Code
}

func TestRequestApproveConfirmFlow(t *testing.T) {
	f := setup(t)

	req, err := CreateRequest(f.ctx, CreateRequestInput{
		BatchID:       f.batch.ID,
		SourceStoreID: f.mainStore.ID,
		TargetStoreID: f.regionA.ID,
		Quantity:      30,
		Reason:        "restock",
		Actor:         &f.regionAUser,
	})
	require.NoError(t, err)
	assert.Equal(t, models.TransferPending, req.Status)
	assert.NotEmpty(t, req.ID)

	// A request is pure intent: nothing moved yet.
	b := f.reloadBatch(t)
	alloc, _ := ledger.Get(b.Ledger(), ledger.Key(f.mainStore.ID))
	assert.Equal(t, int64(100), alloc.Allocated)

	// Approve for less than requested.
	decided, err := Decide(f.ctx, DecideInput{
		RequestID:        req.ID,
		Approve:          true,
		ApprovedQuantity: 25,
		Actor:            &f.mainAdmin,
	})
	require.NoError(t, err)
	assert.Equal(t, models.TransferPartiallyApproved, decided.Status)
	require.NotNil(t, decided.ApprovedQuantity)
	assert.Equal(t, int64(25), *decided.ApprovedQuantity)

	confirmed, err := Confirm(f.ctx, ConfirmInput{RequestID: req.ID, Actor: &f.regionAUser})
	require.NoError(t, err)
	assert.Equal(t, models.TransferCompleted, confirmed.Status)

	b = f.reloadBatch(t)
	m := b.Ledger()
	src, _ := ledger.Get(m, ledger.Key(f.mainStore.ID))
	dst, _ := ledger.Get(m, ledger.Key(f.regionA.ID))
	assert.Equal(t, int64(75), src.Allocated)
	assert.Equal(t, int64(25), dst.Allocated)

	// A transfer never changes the batch aggregates.
	assert.Equal(t, int64(100), b.RemainingQuantity)
	assert.True(t, b.Balanced())
}

func TestConfirmTwiceFailsSecondTime(t *testing.T) {
	f := setup(t)

	req, err := CreateRequest(f.ctx, CreateRequestInput{
		BatchID: f.batch.ID, SourceStoreID: f.mainStore.ID, TargetStoreID: f.regionA.ID,
		Quantity: 10, Actor: &f.regionAUser,
	})
	require.NoError(t, err)

	_, err = Decide(f.ctx, DecideInput{RequestID: req.ID, Approve: true, Actor: &f.mainAdmin})
	require.NoError(t, err)

	_, err = Confirm(f.ctx, ConfirmInput{RequestID: req.ID, Actor: &f.regionAUser})
	require.NoError(t, err)

	_, err = Confirm(f.ctx, ConfirmInput{RequestID: req.ID, Actor: &f.regionAUser})
	require.Error(t, err)
	assert.Equal(t, fiber.StatusBadRequest, statusCode(t, err))

	// The movement applied exactly once.
	b := f.reloadBatch(t)
	dst, _ := ledger.Get(b.Ledger(), ledger.Key(f.regionA.ID))
	assert.Equal(t, int64(10), dst.Allocated)
}

func TestDuplicateOpenRequestConflicts(t *testing.T) {
	f := setup(t)

	in := CreateRequestInput{
		BatchID: f.batch.ID, SourceStoreID: f.mainStore.ID, TargetStoreID: f.regionA.ID,
		Quantity: 5, Actor: &f.regionAUser,
	}

	_, err := CreateRequest(f.ctx, in)
	require.NoError(t, err)

	_, err = CreateRequest(f.ctx, in)
	require.Error(t, err)
	assert.Equal(t, fiber.StatusConflict, statusCode(t, err))
}

func TestRejectFreesTheSlot(t *testing.T) {
	f := setup(t)

	req, err := CreateRequest(f.ctx, CreateRequestInput{
		BatchID: f.batch.ID, SourceStoreID: f.mainStore.ID, TargetStoreID: f.regionA.ID,
		Quantity: 5, Actor: &f.regionAUser,
	})
	require.NoError(t, err)

	rejected, err := Decide(f.ctx, DecideInput{
		RequestID: req.ID, Approve: false, RejectionReason: "not now", Actor: &f.mainAdmin,
	})
	require.NoError(t, err)
	assert.Equal(t, models.TransferRejected, rejected.Status)
	assert.Equal(t, "not now", rejected.RejectionReason)
	require.NotNil(t, rejected.ApprovedAt)

	// Rejection is terminal, the pair slot is free again.
	_, err = CreateRequest(f.ctx, CreateRequestInput{
		BatchID: f.batch.ID, SourceStoreID: f.mainStore.ID, TargetStoreID: f.regionA.ID,
		Quantity: 5, Actor: &f.regionAUser,
	})
	require.NoError(t, err)

	// And a rejected request cannot be confirmed.
	_, err = Confirm(f.ctx, ConfirmInput{RequestID: req.ID, Actor: &f.regionAUser})
	require.Error(t, err)
	assert.Equal(t, fiber.StatusBadRequest, statusCode(t, err))
}

func TestInsufficientAllocationOnCreate(t *testing.T) {
	f := setup(t)

	_, err := CreateRequest(f.ctx, CreateRequestInput{
		BatchID: f.batch.ID, SourceStoreID: f.mainStore.ID, TargetStoreID: f.regionA.ID,
		Quantity: 1000, Actor: &f.regionAUser,
	})
	require.Error(t, err)
	var fe *fiber.Error
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, fiber.StatusBadRequest, fe.Code)
	assert.Equal(t, msgInsufficientAllocation, fe.Message)
}

func TestApprovalRechecksAllocation(t *testing.T) {
	f := setup(t)

	req, err := CreateRequest(f.ctx, CreateRequestInput{
		BatchID: f.batch.ID, SourceStoreID: f.mainStore.ID, TargetStoreID: f.regionA.ID,
		Quantity: 80, Actor: &f.regionAUser,
	})
	require.NoError(t, err)

	// Allocation changed between request and approval: main drains 50 away.
	_, err = ExecuteDirect(f.ctx, DirectInput{
		BatchID: f.batch.ID, FromStoreID: f.mainStore.ID, ToStoreID: f.regionB.ID,
		Quantity: 50, Actor: &f.mainAdmin,
	})
	require.NoError(t, err)

	_, err = Decide(f.ctx, DecideInput{RequestID: req.ID, Approve: true, Actor: &f.mainAdmin})
	require.Error(t, err)
	assert.Equal(t, fiber.StatusBadRequest, statusCode(t, err))
}

func TestInvalidQuantities(t *testing.T) {
	f := setup(t)

	_, err := CreateRequest(f.ctx, CreateRequestInput{
		BatchID: f.batch.ID, SourceStoreID: f.mainStore.ID, TargetStoreID: f.regionA.ID,
		Quantity: 0, Actor: &f.regionAUser,
	})
	require.Error(t, err)
	assert.Equal(t, fiber.StatusBadRequest, statusCode(t, err))

	req, err := CreateRequest(f.ctx, CreateRequestInput{
		BatchID: f.batch.ID, SourceStoreID: f.mainStore.ID, TargetStoreID: f.regionA.ID,
		Quantity: 10, Actor: &f.regionAUser,
	})
	require.NoError(t, err)

	_, err = Decide(f.ctx, DecideInput{
		RequestID: req.ID, Approve: true, ApprovedQuantity: -3, Actor: &f.mainAdmin,
	})
	require.Error(t, err)
	assert.Equal(t, fiber.StatusBadRequest, statusCode(t, err))
}

func TestOverApprovalRejected(t *testing.T) {
	f := setup(t)

	req, err := CreateRequest(f.ctx, CreateRequestInput{
		BatchID: f.batch.ID, SourceStoreID: f.mainStore.ID, TargetStoreID: f.regionA.ID,
		Quantity: 10, Actor: &f.regionAUser,
	})
	require.NoError(t, err)

	_, err = Decide(f.ctx, DecideInput{
		RequestID: req.ID, Approve: true, ApprovedQuantity: 20, Actor: &f.mainAdmin,
	})
	require.Error(t, err)
	assert.Equal(t, fiber.StatusBadRequest, statusCode(t, err))

	// Still pending, still decidable for a legal quantity.
	decided, err := Decide(f.ctx, DecideInput{
		RequestID: req.ID, Approve: true, ApprovedQuantity: 10, Actor: &f.mainAdmin,
	})
	require.NoError(t, err)
	assert.Equal(t, models.TransferApproved, decided.Status)
}

func TestFulfillStoreRequestAppliesOnce(t *testing.T) {
	f := setup(t)

	qty := int64(20)
	req := models.StoreRequest{
		StoreID:          f.regionA.ID,
		SourceStoreID:    f.mainStore.ID,
		BatchID:          f.batch.ID,
		Quantity:         qty,
		ApprovedQuantity: &qty,
		Status:           models.StoreRequestApproved,
		RequestedBy:      f.regionAUser.ID,
		RequestedByName:  f.regionAUser.Name,
	}
	require.NoError(t, database.DB.WithContext(f.ctx).Create(&req).Error)

	record, err := FulfillStoreRequest(f.ctx, FulfillInput{RequestID: req.ID, Actor: &f.mainAdmin})
	require.NoError(t, err)
	require.NotNil(t, record.StoreRequestID)
	assert.Equal(t, req.ID, *record.StoreRequestID)

	var persisted models.StoreRequest
	require.NoError(t, database.DB.WithContext(f.ctx).First(&persisted, req.ID).Error)
	assert.Equal(t, models.StoreRequestFulfilled, persisted.Status)
	require.NotNil(t, persisted.FulfilledAt)

	// A replay finds the request already fulfilled and ships nothing.
	_, err = FulfillStoreRequest(f.ctx, FulfillInput{RequestID: req.ID, Actor: &f.mainAdmin})
	require.Error(t, err)
	assert.Equal(t, fiber.StatusBadRequest, statusCode(t, err))

	b := f.reloadBatch(t)
	m := b.Ledger()
	src, _ := ledger.Get(m, ledger.Key(f.mainStore.ID))
	dst, _ := ledger.Get(m, ledger.Key(f.regionA.ID))
	assert.Equal(t, int64(80), src.Allocated)
	assert.Equal(t, int64(20), dst.Allocated)
	assert.True(t, b.Balanced())
}

func TestFulfillFailureLeavesRequestApproved(t *testing.T) {
	f := setup(t)

	// Approved for more than the source holds: the movement fails, and the
	// shared transaction must also roll back the status flip.
	qty := int64(500)
	req := models.StoreRequest{
		StoreID:          f.regionA.ID,
		SourceStoreID:    f.mainStore.ID,
		BatchID:          f.batch.ID,
		Quantity:         qty,
		ApprovedQuantity: &qty,
		Status:           models.StoreRequestApproved,
		RequestedBy:      f.regionAUser.ID,
		RequestedByName:  f.regionAUser.Name,
	}
	require.NoError(t, database.DB.WithContext(f.ctx).Create(&req).Error)

	_, err := FulfillStoreRequest(f.ctx, FulfillInput{RequestID: req.ID, Actor: &f.mainAdmin})
	require.Error(t, err)

	var persisted models.StoreRequest
	require.NoError(t, database.DB.WithContext(f.ctx).First(&persisted, req.ID).Error)
	assert.Equal(t, models.StoreRequestApproved, persisted.Status)

	b := f.reloadBatch(t)
	src, _ := ledger.Get(b.Ledger(), ledger.Key(f.mainStore.ID))
	assert.Equal(t, int64(100), src.Allocated)
}

func TestHierarchyViolationOnCreate(t *testing.T) {
	f := setup(t)

	// sub-a1 asking sub-b1 (different regional parents) is out of bounds.
	_, err := CreateRequest(f.ctx, CreateRequestInput{
		BatchID: f.batch.ID, SourceStoreID: f.subB1.ID, TargetStoreID: f.subA1.ID,
		Quantity: 5, Actor: &f.superAdmin,
	})
	require.Error(t, err)
	assert.Equal(t, fiber.StatusBadRequest, statusCode(t, err))
}

func TestAuthorizationRules(t *testing.T) {
	f := setup(t)

	req, err := CreateRequest(f.ctx, CreateRequestInput{
		BatchID: f.batch.ID, SourceStoreID: f.mainStore.ID, TargetStoreID: f.regionA.ID,
		Quantity: 10, Actor: &f.regionAUser,
	})
	require.NoError(t, err)

	// Deciding needs source-store authority.
	_, err = Decide(f.ctx, DecideInput{RequestID: req.ID, Approve: true, Actor: &f.regionBUser})
	require.Error(t, err)
	assert.Equal(t, fiber.StatusForbidden, statusCode(t, err))

	// Super admin may decide for any store.
	_, err = Decide(f.ctx, DecideInput{RequestID: req.ID, Approve: true, Actor: &f.superAdmin})
	require.NoError(t, err)

	// Confirming needs target-store authority.
	_, err = Confirm(f.ctx, ConfirmInput{RequestID: req.ID, Actor: &f.regionBUser})
	require.Error(t, err)
	assert.Equal(t, fiber.StatusForbidden, statusCode(t, err))

	_, err = Confirm(f.ctx, ConfirmInput{RequestID: req.ID, Actor: &f.regionAUser})
	require.NoError(t, err)
}

func TestRequestingForAnotherStoreIsForbidden(t *testing.T) {
	f := setup(t)

	_, err := CreateRequest(f.ctx, CreateRequestInput{
		BatchID: f.batch.ID, SourceStoreID: f.mainStore.ID, TargetStoreID: f.regionA.ID,
		Quantity: 10, Actor: &f.regionBUser,
	})
	require.Error(t, err)
	assert.Equal(t, fiber.StatusForbidden, statusCode(t, err))
}

func TestDirectTransfer(t *testing.T) {
	f := setup(t)

	record, err := ExecuteDirect(f.ctx, DirectInput{
		BatchID: f.batch.ID, FromStoreID: f.mainStore.ID, ToStoreID: f.subB1.ID,
		Quantity: 40, Note: "seasonal push", Actor: &f.mainAdmin,
	})
	require.NoError(t, err)
	assert.NotZero(t, record.ID)
	assert.Equal(t, int64(40), record.Quantity)

	b := f.reloadBatch(t)
	m := b.Ledger()
	src, _ := ledger.Get(m, ledger.Key(f.mainStore.ID))
	dst, _ := ledger.Get(m, ledger.Key(f.subB1.ID))
	assert.Equal(t, int64(60), src.Allocated)
	assert.Equal(t, int64(40), dst.Allocated)
	assert.True(t, b.Balanced())

	// The immutable record is persisted and tenant-scoped.
	var persisted models.Transfer
	require.NoError(t, database.DB.WithContext(f.ctx).First(&persisted, record.ID).Error)
	assert.Equal(t, f.mainStore.ID, persisted.FromStoreID)
	assert.Equal(t, "seasonal push", persisted.Note)
}

func TestDirectTransferHierarchyDenied(t *testing.T) {
	f := setup(t)

	// region-a pushing to region-b violates the tree.
	_, err := ExecuteDirect(f.ctx, DirectInput{
		BatchID: f.batch.ID, FromStoreID: f.regionA.ID, ToStoreID: f.regionB.ID,
		Quantity: 5, Actor: &f.regionAUser,
	})
	require.Error(t, err)
	assert.Equal(t, fiber.StatusBadRequest, statusCode(t, err))
}

func TestDirectTransferInsufficientAllocation(t *testing.T) {
	f := setup(t)

	_, err := ExecuteDirect(f.ctx, DirectInput{
		BatchID: f.batch.ID, FromStoreID: f.regionA.ID, ToStoreID: f.subA1.ID,
		Quantity: 5, Actor: &f.regionAUser,
	})
	require.Error(t, err)
	var fe *fiber.Error
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, msgInsufficientAllocation, fe.Message)
}

func TestDepletedSourceEntryIsDropped(t *testing.T) {
	f := setup(t)

	_, err := ExecuteDirect(f.ctx, DirectInput{
		BatchID: f.batch.ID, FromStoreID: f.mainStore.ID, ToStoreID: f.regionA.ID,
		Quantity: 100, Actor: &f.mainAdmin,
	})
	require.NoError(t, err)

	b := f.reloadBatch(t)
	assert.False(t, ledger.Has(b.Ledger(), ledger.Key(f.mainStore.ID)))
	assert.Equal(t, int64(100), b.RemainingQuantity)
	assert.True(t, b.Balanced())
}

func TestOperationsWithoutTenantContext(t *testing.T) {
	f := setup(t)

	_, err := CreateRequest(context.Background(), CreateRequestInput{
		BatchID: f.batch.ID, SourceStoreID: f.mainStore.ID, TargetStoreID: f.regionA.ID,
		Quantity: 5, Actor: &f.regionAUser,
	})
	require.Error(t, err)
	assert.Equal(t, fiber.StatusUnauthorized, statusCode(t, err))

	_, err = ExecuteDirect(context.Background(), DirectInput{
		BatchID: f.batch.ID, FromStoreID: f.mainStore.ID, ToStoreID: f.regionA.ID,
		Quantity: 5, Actor: &f.mainAdmin,
	})
	require.Error(t, err)
	assert.Equal(t, fiber.StatusUnauthorized, statusCode(t, err))
}

func TestLookupErrorMapping(t *testing.T) {
	var fe *fiber.Error

	err := scopedErr(database.ErrNoTenant, "thing not found")
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, fiber.StatusUnauthorized, fe.Code)

	err = scopedErr(gorm.ErrRecordNotFound, "thing not found")
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, fiber.StatusNotFound, fe.Code)
	assert.Equal(t, "thing not found", fe.Message)

	// An infrastructure failure is not a miss; it passes through untouched
	// and surfaces as a 500.
	infra := errors.New("connection reset")
	assert.Same(t, infra, scopedErr(infra, "thing not found"))
}

func TestBatchFromAnotherTenantIsInvisible(t *testing.T) {
	f := setup(t)

	other := models.Tenant{Name: "globex", Status: models.TenantStatusActive}
	require.NoError(t, database.DB.WithContext(database.WithBypass(context.Background())).Create(&other).Error)
	otherCtx := database.WithTenant(context.Background(), other.ID)

	otherMain := models.Store{Name: "globex-main", Classification: models.StoreMain}
	require.NoError(t, database.DB.WithContext(otherCtx).Create(&otherMain).Error)
	otherBranch := models.Store{Name: "globex-east", Classification: models.StoreRegional, ParentID: &otherMain.ID}
	require.NoError(t, database.DB.WithContext(otherCtx).Create(&otherBranch).Error)
	otherAdmin := models.User{Name: "G", Email: "g@globex.test", PasswordHash: "x", Role: models.RoleSuperAdmin}
	require.NoError(t, database.DB.WithContext(otherCtx).Create(&otherAdmin).Error)

	_, err := ExecuteDirect(otherCtx, DirectInput{
		BatchID: f.batch.ID, FromStoreID: otherMain.ID, ToStoreID: otherBranch.ID,
		Quantity: 5, Actor: &otherAdmin,
	})
	require.Error(t, err)
	assert.Equal(t, fiber.StatusNotFound, statusCode(t, err))
}
