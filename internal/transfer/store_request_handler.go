package transfer

import (
	"strconv"
	"time"

	"stockroom-backend/internal/auth"
	"stockroom-backend/internal/database"
	"stockroom-backend/internal/hierarchy"
	"stockroom-backend/internal/models"

	"github.com/gofiber/fiber/v2"
)

type CreateStoreRequestBody struct {
	InventoryBatchID uint   `json:"inventory_batch_id"`
	SourceStoreID    uint   `json:"source_store_id"`
	StoreID          *uint  `json:"store_id"` // super admin only
	Quantity         int64  `json:"quantity"`
	Note             string `json:"note"`
}

type DecideStoreRequestBody struct {
	Decision         string `json:"decision"` // "approve" or "reject"
	ApprovedQuantity int64  `json:"approved_quantity"`
	RejectionReason  string `json:"rejection_reason"`
}

// POST /api/store-requests
// A store asks its parent (or the main store) to send stock. Fulfillment of
// an approved request runs the direct transfer path.
func CreateStoreRequestHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body CreateStoreRequestBody
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
		}
		if body.Quantity < 1 {
			return fiber.NewError(fiber.StatusBadRequest, "Quantity must be at least 1")
		}

		actor, err := auth.CurrentUser(c)
		if err != nil {
			return err
		}

		storeID, err := resolveStoreID(c, actor, body.StoreID)
		if err != nil {
			return err
		}

		db := database.DB.WithContext(c.UserContext())

		var requester, source models.Store
		if err := db.First(&requester, storeID).Error; err != nil {
			return fiber.NewError(fiber.StatusNotFound, "Store not found")
		}
		if err := db.First(&source, body.SourceStoreID).Error; err != nil {
			return fiber.NewError(fiber.StatusNotFound, "Source store not found")
		}

		if d := hierarchy.CanRequest(&requester, &source); !d.Allowed {
			return fiber.NewError(fiber.StatusBadRequest, "Hierarchy violation: "+d.Reason)
		}

		var batch models.InventoryBatch
		if err := db.First(&batch, body.InventoryBatchID).Error; err != nil {
			return fiber.NewError(fiber.StatusNotFound, "Inventory batch not found")
		}

		req := models.StoreRequest{
			StoreID:         requester.ID,
			SourceStoreID:   source.ID,
			BatchID:         batch.ID,
			Quantity:        body.Quantity,
			Status:          models.StoreRequestPending,
			Note:            body.Note,
			RequestedBy:     actor.ID,
			RequestedByName: actor.Name,
		}
		if err := db.Create(&req).Error; err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Store request could not be created")
		}

		return c.Status(fiber.StatusCreated).JSON(fiber.Map{
			"request_id": req.ID,
			"status":     req.Status,
		})
	}
}

// POST /api/store-requests/:id/decision
func DecideStoreRequestHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := strconv.ParseUint(c.Params("id"), 10, 32)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Invalid request id")
		}

		var body DecideStoreRequestBody
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
		}
		if body.Decision != "approve" && body.Decision != "reject" {
			return fiber.NewError(fiber.StatusBadRequest, "Decision must be 'approve' or 'reject'")
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

		// Locked read, so a racing decide or fulfill sees the final status.
		var req models.StoreRequest
		if err := database.LockForUpdate(tx).First(&req, uint(id)).Error; err != nil {
			return scopedErr(err, "Store request not found")
		}

		if req.Status != models.StoreRequestPending {
			return fiber.NewError(fiber.StatusBadRequest, "Only pending store requests can be decided")
		}
		if !auth.CanActForStore(actor, req.SourceStoreID) || !auth.HasAnyPermission(actor, models.PermTransferApprove) {
			return fiber.NewError(fiber.StatusForbidden, "You are not allowed to decide for the source store")
		}

		now := time.Now().UTC()
		req.DecidedBy = &actor.ID
		req.DecidedByName = actor.Name
		req.DecidedAt = &now

		if body.Decision == "reject" {
			req.Status = models.StoreRequestRejected
			req.RejectionReason = body.RejectionReason
		} else {
			qty := body.ApprovedQuantity
			if qty == 0 {
				qty = req.Quantity
			}
			if qty < 1 || qty > req.Quantity {
				return fiber.NewError(fiber.StatusBadRequest, "Approved quantity must be between 1 and the requested quantity")
			}
			req.Status = models.StoreRequestApproved
			req.ApprovedQuantity = &qty
		}

		if err := tx.Save(&req).Error; err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Decision could not be saved")
		}
		if err := tx.Commit().Error; err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Decision could not be saved")
		}

		return c.JSON(fiber.Map{"message": "Store request is now " + string(req.Status), "status": req.Status})
	}
}

// POST /api/store-requests/:id/fulfill
// Ships the approved quantity via the direct transfer executor and marks the
// request fulfilled, in one transaction.
func FulfillStoreRequestHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := strconv.ParseUint(c.Params("id"), 10, 32)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Invalid request id")
		}

		actor, err := auth.CurrentUser(c)
		if err != nil {
			return err
		}

		record, err := FulfillStoreRequest(c.UserContext(), FulfillInput{
			RequestID: uint(id),
			Actor:     actor,
		})
		if err != nil {
			return err
		}

		return c.JSON(fiber.Map{
			"message":     "Store request fulfilled",
			"transfer_id": record.ID,
		})
	}
}

// GET /api/store-requests?store_id=&status=
func ListStoreRequestsHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		actor, err := auth.CurrentUser(c)
		if err != nil {
			return err
		}

		storeID, err := resolveStoreIDFromQuery(c, actor)
		if err != nil {
			return err
		}

		db := database.DB.WithContext(c.UserContext()).
			Where("store_id = ? OR source_store_id = ?", storeID, storeID)

		if status := c.Query("status"); status != "" {
			db = db.Where("status = ?", status)
		}

		var requests []models.StoreRequest
		if err := db.Order("created_at DESC").Find(&requests).Error; err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Store requests could not be listed")
		}

		return c.JSON(fiber.Map{"requests": requests})
	}
}
