package transfer

import (
	"stockroom-backend/internal/auth"

	"github.com/gofiber/fiber/v2"
)

type CreateTransferRequestBody struct {
	InventoryBatchID  uint   `json:"inventory_batch_id"`
	SourceStoreID     uint   `json:"source_store_id"`
	TargetStoreID     *uint  `json:"target_store_id"` // super admin only; others use their own store
	RequestedQuantity int64  `json:"requested_quantity"`
	Reason            string `json:"reason"`
}

type DecideRequestBody struct {
	Decision         string `json:"decision"` // "approve" or "reject"
	ApprovedQuantity int64  `json:"approved_quantity"`
	RejectionReason  string `json:"rejection_reason"`
}

// POST /api/transfer-requests
func CreateTransferRequestHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body CreateTransferRequestBody
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
		}

		actor, err := auth.CurrentUser(c)
		if err != nil {
			return err
		}

		targetStoreID, err := resolveStoreID(c, actor, body.TargetStoreID)
		if err != nil {
			return err
		}

		req, err := CreateRequest(c.UserContext(), CreateRequestInput{
			BatchID:       body.InventoryBatchID,
			SourceStoreID: body.SourceStoreID,
			TargetStoreID: targetStoreID,
			Quantity:      body.RequestedQuantity,
			Reason:        body.Reason,
			Actor:         actor,
		})
		if err != nil {
			return err
		}

		return c.Status(fiber.StatusCreated).JSON(fiber.Map{
			"request_id": req.ID,
			"status":     req.Status,
		})
	}
}

// POST /api/transfer-requests/:id/decision
func DecideTransferRequestHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		requestID := c.Params("id")

		var body DecideRequestBody
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

		req, err := Decide(c.UserContext(), DecideInput{
			RequestID:        requestID,
			Approve:          body.Decision == "approve",
			ApprovedQuantity: body.ApprovedQuantity,
			RejectionReason:  body.RejectionReason,
			Actor:            actor,
		})
		if err != nil {
			return err
		}

		return c.JSON(fiber.Map{
			"message": "Request " + requestID + " is now " + string(req.Status),
			"status":  req.Status,
		})
	}
}

// POST /api/transfer-requests/:id/confirm
func ConfirmTransferRequestHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		requestID := c.Params("id")

		actor, err := auth.CurrentUser(c)
		if err != nil {
			return err
		}

		req, err := Confirm(c.UserContext(), ConfirmInput{
			RequestID: requestID,
			Actor:     actor,
		})
		if err != nil {
			return err
		}

		return c.JSON(fiber.Map{
			"message": "Transfer completed",
			"status":  req.Status,
		})
	}
}
