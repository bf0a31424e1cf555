package inventory

import (
	"strconv"

	"stockroom-backend/internal/audit"
	"stockroom-backend/internal/auth"
	"stockroom-backend/internal/database"
	"stockroom-backend/internal/ledger"
	"stockroom-backend/internal/models"

	"github.com/gofiber/fiber/v2"
)

type CreateBatchRequest struct {
	ProductID     uint    `json:"product_id"`
	BatchNumber   string  `json:"batch_number"`
	UnitPrice     float64 `json:"unit_price"`
	NumberOfStock int64   `json:"number_of_stock"`
	StoreID       *uint   `json:"store_id"` // receiving store; super admin only
}

type allocationEntry struct {
	StoreID   uint  `json:"store_id"`
	Allocated int64 `json:"allocated"`
	Reserved  int64 `json:"reserved"`
}

type SetAllocationsRequest struct {
	Allocations []allocationEntry `json:"allocations"`
}

// POST /api/inventory-batches
// Receives a stock batch; the full quantity is allocated to the receiving
// store.
func CreateBatchHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body CreateBatchRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
		}
		if body.NumberOfStock < 1 {
			return fiber.NewError(fiber.StatusBadRequest, "number_of_stock must be at least 1")
		}
		if body.BatchNumber == "" {
			return fiber.NewError(fiber.StatusBadRequest, "batch_number is required")
		}

		actor, err := auth.CurrentUser(c)
		if err != nil {
			return err
		}
		if !auth.HasAnyPermission(actor, models.PermStockWrite) {
			return fiber.NewError(fiber.StatusForbidden, "You are not allowed to receive stock")
		}

		storeID, err := resolveReceivingStore(c, actor, body.StoreID)
		if err != nil {
			return err
		}

		db := database.DB.WithContext(c.UserContext())

		var store models.Store
		if err := db.First(&store, storeID).Error; err != nil {
			return fiber.NewError(fiber.StatusNotFound, "Store not found")
		}
		var product models.Product
		if err := db.First(&product, body.ProductID).Error; err != nil {
			return fiber.NewError(fiber.StatusNotFound, "Product not found")
		}

		m, err := ledger.Update(nil, ledger.Key(store.ID), body.NumberOfStock, 0, strconv.FormatUint(uint64(actor.ID), 10))
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		batch := models.InventoryBatch{
			ProductID:        product.ID,
			BatchNumber:      body.BatchNumber,
			UnitPrice:        body.UnitPrice,
			NumberOfStock:    body.NumberOfStock,
			TransferRequests: models.TransferRequestMap{},
		}
		batch.SetLedger(m)

		if err := db.Create(&batch).Error; err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Batch could not be created")
		}

		logBatchAudit(c, actor, &store.ID, batch.ID, models.AuditActionCreate,
			"Received batch "+batch.BatchNumber, batch)

		return c.Status(fiber.StatusCreated).JSON(fiber.Map{
			"id":                 batch.ID,
			"batch_number":       batch.BatchNumber,
			"remaining_quantity": batch.RemainingQuantity,
		})
	}
}

// PUT /api/inventory-batches/:id/allocations
// Idempotently replaces the whole allocation ledger. Meant for external
// backfill jobs migrating legacy data; under-allocation against the batch
// total is tolerated mid-migration, over-allocation never is.
func SetAllocationsHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		batchID, err := strconv.ParseUint(c.Params("id"), 10, 32)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Invalid batch id")
		}

		var body SetAllocationsRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
		}

		actor, err := auth.CurrentUser(c)
		if err != nil {
			return err
		}

		db := database.DB.WithContext(c.UserContext())

		tx := db.Begin()
		if tx.Error != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Could not start transaction")
		}
		defer tx.Rollback()

		var batch models.InventoryBatch
		if err := database.LockForUpdate(tx).First(&batch, uint(batchID)).Error; err != nil {
			return fiber.NewError(fiber.StatusNotFound, "Inventory batch not found")
		}

		actorKey := strconv.FormatUint(uint64(actor.ID), 10)
		var m ledger.Map
		for _, entry := range body.Allocations {
			if entry.StoreID == 0 {
				return fiber.NewError(fiber.StatusBadRequest, "store_id is required for every allocation")
			}
			var store models.Store
			if err := tx.First(&store, entry.StoreID).Error; err != nil {
				return fiber.NewError(fiber.StatusNotFound, "Store "+strconv.FormatUint(uint64(entry.StoreID), 10)+" not found")
			}
			m, err = ledger.Update(m, ledger.Key(entry.StoreID), entry.Allocated, entry.Reserved, actorKey)
			if err != nil {
				return fiber.NewError(fiber.StatusBadRequest, err.Error())
			}
		}

		if !ledger.ValidateTotal(m, batch.NumberOfStock) {
			return fiber.NewError(fiber.StatusBadRequest, "Allocations exceed the batch total")
		}

		before := batch.StoreAllocations
		batch.SetLedger(m)

		if err := tx.Save(&batch).Error; err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Allocations could not be saved")
		}
		if err := tx.Commit().Error; err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Allocations could not be saved")
		}

		logBatchAuditDiff(c, actor, batch.ID, "Replaced allocation ledger of batch "+batch.BatchNumber, before, batch.StoreAllocations)

		return c.JSON(fiber.Map{
			"id":                 batch.ID,
			"remaining_quantity": batch.RemainingQuantity,
			"reserved_quantity":  batch.ReservedQuantity,
		})
	}
}

// GET /api/inventory-batches/:id/allocations
func ListAllocationsHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		batchID, err := strconv.ParseUint(c.Params("id"), 10, 32)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Invalid batch id")
		}

		var batch models.InventoryBatch
		if err := database.DB.WithContext(c.UserContext()).First(&batch, uint(batchID)).Error; err != nil {
			return fiber.NewError(fiber.StatusNotFound, "Inventory batch not found")
		}

		m := batch.Ledger()
		entries := make([]fiber.Map, 0, len(m))
		for _, key := range ledger.StoreIDs(m) {
			a, _ := ledger.Get(m, key)
			storeID, _ := ledger.ParseKey(key)
			entries = append(entries, fiber.Map{
				"store_id":     storeID,
				"allocated":    a.Allocated,
				"reserved":     a.Reserved,
				"last_updated": a.LastUpdated,
				"updated_by":   a.UpdatedBy,
			})
		}

		return c.JSON(fiber.Map{
			"batch_id":           batch.ID,
			"batch_number":       batch.BatchNumber,
			"number_of_stock":    batch.NumberOfStock,
			"remaining_quantity": batch.RemainingQuantity,
			"reserved_quantity":  batch.ReservedQuantity,
			"allocations":        entries,
		})
	}
}

// GET /api/inventory-batches
func ListBatchesHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		var batches []models.InventoryBatch
		if err := database.DB.WithContext(c.UserContext()).
			Preload("Product").Order("created_at DESC").Find(&batches).Error; err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Batches could not be listed")
		}

		res := make([]fiber.Map, 0, len(batches))
		for _, b := range batches {
			res = append(res, fiber.Map{
				"id":                 b.ID,
				"product_id":         b.ProductID,
				"product_name":       b.Product.Name,
				"batch_number":       b.BatchNumber,
				"unit_price":         b.UnitPrice,
				"number_of_stock":    b.NumberOfStock,
				"remaining_quantity": b.RemainingQuantity,
				"reserved_quantity":  b.ReservedQuantity,
				"created_at":         b.CreatedAt.Format("2006-01-02 15:04:05"),
			})
		}

		return c.JSON(res)
	}
}

func resolveReceivingStore(c *fiber.Ctx, actor *models.User, bodyStoreID *uint) (uint, error) {
	if actor.StoreID != nil {
		return *actor.StoreID, nil
	}
	if actor.Role == models.RoleSuperAdmin {
		if bodyStoreID == nil || *bodyStoreID == 0 {
			return 0, fiber.NewError(fiber.StatusBadRequest, "store_id is required for super admin")
		}
		return *bodyStoreID, nil
	}
	return 0, fiber.NewError(fiber.StatusForbidden, "Could not resolve your store")
}

func logBatchAudit(c *fiber.Ctx, actor *models.User, storeID *uint, batchID uint, action models.AuditAction, description string, after any) {
	_ = audit.WriteLog(c.UserContext(), audit.LogOptions{
		StoreID:     storeID,
		UserID:      actor.ID,
		UserName:    actor.Name,
		EntityType:  "inventory_batch",
		EntityID:    strconv.FormatUint(uint64(batchID), 10),
		Action:      action,
		Description: description,
		After:       after,
	})
}

func logBatchAuditDiff(c *fiber.Ctx, actor *models.User, batchID uint, description string, before, after any) {
	_ = audit.WriteLog(c.UserContext(), audit.LogOptions{
		UserID:      actor.ID,
		UserName:    actor.Name,
		EntityType:  "inventory_batch",
		EntityID:    strconv.FormatUint(uint64(batchID), 10),
		Action:      models.AuditActionUpdate,
		Description: description,
		Before:      before,
		After:       after,
	})
}
