package transfer

import (
	"sort"
	"strconv"

	"stockroom-backend/internal/auth"
	"stockroom-backend/internal/database"
	"stockroom-backend/internal/ledger"
	"stockroom-backend/internal/models"

	"github.com/gofiber/fiber/v2"
)

type RequestView struct {
	ID                string     `json:"id"`
	BatchID           uint       `json:"batch_id"`
	BatchNumber       string     `json:"batch_number"`
	ProductName       string     `json:"product_name"`
	SourceStoreID     uint       `json:"source_store_id"`
	TargetStoreID     uint       `json:"target_store_id"`
	RequestedQuantity int64      `json:"requested_quantity"`
	ApprovedQuantity  *int64     `json:"approved_quantity,omitempty"`
	Status            string     `json:"status"`
	Reason            string     `json:"reason"`
	RequestedByName   string     `json:"requested_by_name"`
	RequestedAt       string     `json:"requested_at"`
	RejectionReason   string     `json:"rejection_reason,omitempty"`
}

// GET /api/transfer-requests?store_id=&status=
// Projection of requests touching the store, as source or target.
func ListTransferRequestsHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		actor, err := auth.CurrentUser(c)
		if err != nil {
			return err
		}

		storeID, err := resolveStoreIDFromQuery(c, actor)
		if err != nil {
			return err
		}

		statusFilter := models.TransferRequestStatus(c.Query("status"))

		var batches []models.InventoryBatch
		if err := database.DB.WithContext(c.UserContext()).
			Preload("Product").Find(&batches).Error; err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Requests could not be listed")
		}

		views := make([]RequestView, 0)
		for _, b := range batches {
			for _, r := range b.TransferRequests {
				if r.SourceStoreID != storeID && r.TargetStoreID != storeID {
					continue
				}
				if statusFilter != "" && r.Status != statusFilter {
					continue
				}
				views = append(views, RequestView{
					ID:                r.ID,
					BatchID:           b.ID,
					BatchNumber:       b.BatchNumber,
					ProductName:       b.Product.Name,
					SourceStoreID:     r.SourceStoreID,
					TargetStoreID:     r.TargetStoreID,
					RequestedQuantity: r.RequestedQuantity,
					ApprovedQuantity:  r.ApprovedQuantity,
					Status:            string(r.Status),
					Reason:            r.Reason,
					RequestedByName:   r.RequestedByName,
					RequestedAt:       r.RequestedAt.Format("2006-01-02 15:04:05"),
					RejectionReason:   r.RejectionReason,
				})
			}
		}

		sort.Slice(views, func(i, j int) bool { return views[i].RequestedAt > views[j].RequestedAt })

		return c.JSON(fiber.Map{"requests": views})
	}
}

type InventoryView struct {
	BatchID          uint    `json:"batch_id"`
	BatchNumber      string  `json:"batch_number"`
	ProductID        uint    `json:"product_id"`
	ProductName      string  `json:"product_name"`
	UnitPrice        float64 `json:"unit_price"`
	AllocatedToStore int64   `json:"allocated_to_store"`
	ReservedInStore  int64   `json:"reserved_in_store"`
	AvailableInStore int64   `json:"available_in_store"`
	IsOwnedByStore   bool    `json:"is_owned_by_store"`
	OwnerStoreName   string  `json:"owner_store_name"`
	TotalAllocated   int64   `json:"total_allocated"`
}

// GET /api/stores/:id/inventory
// Per-batch allocation snapshot for one store. The owner store is the one
// holding the largest allocation of the batch.
func StoreInventoryViewHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		storeID, err := parseStoreParam(c)
		if err != nil {
			return err
		}

		actor, err := auth.CurrentUser(c)
		if err != nil {
			return err
		}
		if !auth.CanActForStore(actor, storeID) {
			return fiber.NewError(fiber.StatusForbidden, "You are not allowed to view this store's inventory")
		}

		db := database.DB.WithContext(c.UserContext())

		var store models.Store
		if err := db.First(&store, storeID).Error; err != nil {
			return fiber.NewError(fiber.StatusNotFound, "Store not found")
		}

		var stores []models.Store
		if err := db.Find(&stores).Error; err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Stores could not be loaded")
		}
		storeNames := make(map[string]string, len(stores))
		for _, s := range stores {
			storeNames[ledger.Key(s.ID)] = s.Name
		}

		var batches []models.InventoryBatch
		if err := db.Preload("Product").Find(&batches).Error; err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Inventory could not be loaded")
		}

		key := ledger.Key(storeID)
		views := make([]InventoryView, 0, len(batches))
		for _, b := range batches {
			m := b.Ledger()
			alloc, _ := ledger.Get(m, key)

			ownerKey := ""
			var ownerQty int64 = -1
			for _, id := range ledger.StoreIDs(m) {
				if a, _ := ledger.Get(m, id); a.Allocated > ownerQty {
					ownerQty = a.Allocated
					ownerKey = id
				}
			}

			views = append(views, InventoryView{
				BatchID:          b.ID,
				BatchNumber:      b.BatchNumber,
				ProductID:        b.ProductID,
				ProductName:      b.Product.Name,
				UnitPrice:        b.UnitPrice,
				AllocatedToStore: alloc.Allocated,
				ReservedInStore:  alloc.Reserved,
				AvailableInStore: alloc.Allocated - alloc.Reserved,
				IsOwnedByStore:   ownerKey == key,
				OwnerStoreName:   storeNames[ownerKey],
				TotalAllocated:   ledger.TotalAllocated(m),
			})
		}

		return c.JSON(fiber.Map{
			"store_id":    store.ID,
			"store_name":  store.Name,
			"inventories": views,
		})
	}
}

type TransferRecordView struct {
	ID              uint   `json:"id"`
	BatchID         uint   `json:"batch_id"`
	FromStoreID     uint   `json:"from_store_id"`
	ToStoreID       uint   `json:"to_store_id"`
	Quantity        int64  `json:"quantity"`
	Note            string `json:"note"`
	InitiatedByName string `json:"initiated_by_name"`
	CreatedAt       string `json:"created_at"`
}

// GET /api/transfers?store_id=
func ListTransfersHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		actor, err := auth.CurrentUser(c)
		if err != nil {
			return err
		}

		storeID, err := resolveStoreIDFromQuery(c, actor)
		if err != nil {
			return err
		}

		var records []models.Transfer
		if err := database.DB.WithContext(c.UserContext()).
			Where("from_store_id = ? OR to_store_id = ?", storeID, storeID).
			Order("created_at DESC").Limit(200).
			Find(&records).Error; err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Transfers could not be listed")
		}

		res := make([]TransferRecordView, 0, len(records))
		for _, r := range records {
			res = append(res, TransferRecordView{
				ID:              r.ID,
				BatchID:         r.BatchID,
				FromStoreID:     r.FromStoreID,
				ToStoreID:       r.ToStoreID,
				Quantity:        r.Quantity,
				Note:            r.Note,
				InitiatedByName: r.InitiatedByName,
				CreatedAt:       r.CreatedAt.Format("2006-01-02 15:04:05"),
			})
		}

		return c.JSON(fiber.Map{"transfers": res})
	}
}

func parseStoreParam(c *fiber.Ctx) (uint, error) {
	id, err := strconv.ParseUint(c.Params("id"), 10, 32)
	if err != nil {
		return 0, fiber.NewError(fiber.StatusBadRequest, "Invalid store id")
	}
	return uint(id), nil
}

// resolveStoreIDFromQuery mirrors resolveStoreID for GET endpoints.
func resolveStoreIDFromQuery(c *fiber.Ctx, actor *models.User) (uint, error) {
	if actor.StoreID != nil {
		return *actor.StoreID, nil
	}
	if actor.Role == models.RoleSuperAdmin {
		storeIDStr := c.Query("store_id")
		if storeIDStr == "" {
			return 0, fiber.NewError(fiber.StatusBadRequest, "store_id is required for super admin")
		}
		id, err := strconv.ParseUint(storeIDStr, 10, 32)
		if err != nil {
			return 0, fiber.NewError(fiber.StatusBadRequest, "Invalid store_id")
		}
		return uint(id), nil
	}
	return 0, fiber.NewError(fiber.StatusForbidden, "Could not resolve your store")
}
