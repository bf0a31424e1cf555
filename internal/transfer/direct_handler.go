package transfer

import (
	"stockroom-backend/internal/auth"
	"stockroom-backend/internal/models"

	"github.com/gofiber/fiber/v2"
)

type DirectTransferBody struct {
	InventoryBatchID uint   `json:"inventory_batch_id"`
	FromStoreID      *uint  `json:"from_store_id"` // super admin only; others use their own store
	ToStoreID        uint   `json:"to_store_id"`
	Quantity         int64  `json:"quantity"`
	Note             string `json:"note"`
}

// POST /api/transfers
func DirectTransferHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body DirectTransferBody
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
		}

		actor, err := auth.CurrentUser(c)
		if err != nil {
			return err
		}

		fromStoreID, err := resolveStoreID(c, actor, body.FromStoreID)
		if err != nil {
			return err
		}

		record, err := ExecuteDirect(c.UserContext(), DirectInput{
			BatchID:     body.InventoryBatchID,
			FromStoreID: fromStoreID,
			ToStoreID:   body.ToStoreID,
			Quantity:    body.Quantity,
			Note:        body.Note,
			Actor:       actor,
		})
		if err != nil {
			return err
		}

		return c.Status(fiber.StatusCreated).JSON(fiber.Map{
			"transfer_id": record.ID,
			"quantity":    record.Quantity,
		})
	}
}

// resolveStoreID picks the acting store: scoped users always act as their
// own store, super admins name one explicitly.
func resolveStoreID(c *fiber.Ctx, actor *models.User, bodyStoreID *uint) (uint, error) {
	if actor.StoreID != nil {
		return *actor.StoreID, nil
	}

	if actor.Role == models.RoleSuperAdmin {
		if bodyStoreID == nil || *bodyStoreID == 0 {
			return 0, fiber.NewError(fiber.StatusBadRequest, "store id is required for super admin")
		}
		return *bodyStoreID, nil
	}

	return 0, fiber.NewError(fiber.StatusForbidden, "Could not resolve your store")
}
