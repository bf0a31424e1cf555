// Package transfer implements the inter-store movement engine: the
// request/approve/confirm state machine embedded in a batch document and
// the direct, already-authorized transfer path.
package transfer

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"time"

	"stockroom-backend/internal/audit"
	"stockroom-backend/internal/auth"
	"stockroom-backend/internal/database"
	"stockroom-backend/internal/hierarchy"
	"stockroom-backend/internal/ledger"
	"stockroom-backend/internal/models"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

const msgInsufficientAllocation = "insufficient inventory allocation"

type CreateRequestInput struct {
	BatchID       uint
	SourceStoreID uint
	TargetStoreID uint
	Quantity      int64
	Reason        string
	Actor         *models.User
}

// CreateRequest files a PENDING transfer request on the batch. A request is
// a pure intent record: no quantity is reserved or moved yet.
func CreateRequest(ctx context.Context, in CreateRequestInput) (*models.TransferRequest, error) {
	if in.Quantity < 1 {
		return nil, fiber.NewError(fiber.StatusBadRequest, "Requested quantity must be at least 1")
	}
	if !auth.CanActForStore(in.Actor, in.TargetStoreID) || !auth.HasAnyPermission(in.Actor, models.PermTransferRequest) {
		return nil, fiber.NewError(fiber.StatusForbidden, "You are not allowed to request stock for this store")
	}

	db := database.DB.WithContext(ctx)

	var source, target models.Store
	if err := db.First(&source, in.SourceStoreID).Error; err != nil {
		return nil, scopedErr(err, "Source store not found")
	}
	if err := db.First(&target, in.TargetStoreID).Error; err != nil {
		return nil, scopedErr(err, "Target store not found")
	}

	if d := hierarchy.CanRequest(&target, &source); !d.Allowed {
		return nil, fiber.NewError(fiber.StatusBadRequest, "Hierarchy violation: "+d.Reason)
	}

	tx := db.Begin()
	if tx.Error != nil {
		return nil, fiber.NewError(fiber.StatusInternalServerError, "Could not start transaction")
	}
	defer tx.Rollback()

	var batch models.InventoryBatch
	if err := database.LockForUpdate(tx).First(&batch, in.BatchID).Error; err != nil {
		return nil, scopedErr(err, "Inventory batch not found")
	}

	// One open request per (source, target) pair per batch.
	if open, exists := batch.TransferRequests.OpenRequestFor(in.SourceStoreID, in.TargetStoreID); exists {
		return nil, fiber.NewError(fiber.StatusConflict,
			fmt.Sprintf("An open transfer request (%s) already exists for this store pair", open.ID))
	}

	alloc, _ := ledger.Get(batch.Ledger(), ledger.Key(in.SourceStoreID))
	if alloc.Allocated < in.Quantity {
		return nil, fiber.NewError(fiber.StatusBadRequest, msgInsufficientAllocation)
	}

	req := models.TransferRequest{
		ID:                uuid.NewString(),
		Type:              models.TransferTypeStock,
		SourceStoreID:     in.SourceStoreID,
		TargetStoreID:     in.TargetStoreID,
		RequestedQuantity: in.Quantity,
		Status:            models.TransferPending,
		Reason:            in.Reason,
		RequestedBy:       in.Actor.ID,
		RequestedByName:   in.Actor.Name,
		RequestedAt:       time.Now().UTC(),
	}

	if batch.TransferRequests == nil {
		batch.TransferRequests = models.TransferRequestMap{}
	}
	batch.TransferRequests[req.ID] = req

	if err := tx.Save(&batch).Error; err != nil {
		return nil, fiber.NewError(fiber.StatusInternalServerError, "Transfer request could not be saved")
	}
	if err := tx.Commit().Error; err != nil {
		return nil, fiber.NewError(fiber.StatusInternalServerError, "Transfer request could not be saved")
	}

	writeAudit(ctx, in.Actor, &in.TargetStoreID, "transfer_request", req.ID, models.AuditActionCreate,
		fmt.Sprintf("Requested %d units of batch %s from store %d", in.Quantity, batch.BatchNumber, in.SourceStoreID),
		nil, req)

	return &req, nil
}

type DecideInput struct {
	RequestID        string
	Approve          bool
	ApprovedQuantity int64 // 0 means "the requested quantity"
	RejectionReason  string
	Actor            *models.User
}

// Decide approves or rejects a PENDING request. Approval for less than the
// requested quantity lands in PARTIALLY_APPROVED. No ledger mutation happens
// here; stock moves on confirmation.
func Decide(ctx context.Context, in DecideInput) (*models.TransferRequest, error) {
	db := database.DB.WithContext(ctx)

	tx := db.Begin()
	if tx.Error != nil {
		return nil, fiber.NewError(fiber.StatusInternalServerError, "Could not start transaction")
	}
	defer tx.Rollback()

	batch, req, err := findRequest(tx, in.RequestID)
	if err != nil {
		return nil, err
	}

	if req.Status != models.TransferPending {
		return nil, fiber.NewError(fiber.StatusBadRequest,
			fmt.Sprintf("Request is %s, only pending requests can be decided", req.Status))
	}
	if !auth.CanActForStore(in.Actor, req.SourceStoreID) || !auth.HasAnyPermission(in.Actor, models.PermTransferApprove) {
		return nil, fiber.NewError(fiber.StatusForbidden, "You are not allowed to decide for the source store")
	}

	now := time.Now().UTC()
	req.ApprovedBy = &in.Actor.ID
	req.ApprovedByName = in.Actor.Name
	req.ApprovedAt = &now

	if !in.Approve {
		req.Status = models.TransferRejected
		req.RejectionReason = in.RejectionReason
	} else {
		qty := in.ApprovedQuantity
		if qty == 0 {
			qty = req.RequestedQuantity
		}
		if qty < 1 || qty > req.RequestedQuantity {
			return nil, fiber.NewError(fiber.StatusBadRequest, "Approved quantity must be between 1 and the requested quantity")
		}

		// Allocation may have changed since the request was filed.
		alloc, _ := ledger.Get(batch.Ledger(), ledger.Key(req.SourceStoreID))
		if alloc.Allocated < qty {
			return nil, fiber.NewError(fiber.StatusBadRequest, msgInsufficientAllocation)
		}

		req.ApprovedQuantity = &qty
		if qty == req.RequestedQuantity {
			req.Status = models.TransferApproved
		} else {
			req.Status = models.TransferPartiallyApproved
		}
	}

	batch.TransferRequests[req.ID] = *req
	if err := tx.Save(batch).Error; err != nil {
		return nil, fiber.NewError(fiber.StatusInternalServerError, "Decision could not be saved")
	}
	if err := tx.Commit().Error; err != nil {
		return nil, fiber.NewError(fiber.StatusInternalServerError, "Decision could not be saved")
	}

	action := models.AuditActionApprove
	if !in.Approve {
		action = models.AuditActionReject
	}
	writeAudit(ctx, in.Actor, &req.SourceStoreID, "transfer_request", req.ID, action,
		fmt.Sprintf("Request %s is now %s", req.ID, req.Status), nil, req)

	return req, nil
}

type ConfirmInput struct {
	RequestID string
	Actor     *models.User
}

// Confirm applies an approved request: debits the source store, credits the
// target store and closes the request, all in one batch-row write. A second
// confirm of the same request fails on the status check instead of
// double-applying the movement.
func Confirm(ctx context.Context, in ConfirmInput) (*models.TransferRequest, error) {
	db := database.DB.WithContext(ctx)

	tx := db.Begin()
	if tx.Error != nil {
		return nil, fiber.NewError(fiber.StatusInternalServerError, "Could not start transaction")
	}
	defer tx.Rollback()

	batch, req, err := findRequest(tx, in.RequestID)
	if err != nil {
		return nil, err
	}

	if !req.Status.Approved() {
		return nil, fiber.NewError(fiber.StatusBadRequest,
			fmt.Sprintf("Request is %s, only approved requests can be confirmed", req.Status))
	}
	if !auth.CanActForStore(in.Actor, req.TargetStoreID) || !auth.HasAnyPermission(in.Actor, models.PermTransferConfirm) {
		return nil, fiber.NewError(fiber.StatusForbidden, "You are not allowed to confirm for the target store")
	}

	qty := *req.ApprovedQuantity
	if err := moveAllocation(batch, req.SourceStoreID, req.TargetStoreID, qty, actorKey(in.Actor)); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	req.Status = models.TransferCompleted
	req.ConfirmedBy = &in.Actor.ID
	req.ConfirmedByName = in.Actor.Name
	req.ConfirmedAt = &now
	batch.TransferRequests[req.ID] = *req

	if err := tx.Save(batch).Error; err != nil {
		return nil, fiber.NewError(fiber.StatusInternalServerError, "Transfer could not be saved")
	}
	if err := tx.Commit().Error; err != nil {
		return nil, fiber.NewError(fiber.StatusInternalServerError, "Transfer could not be saved")
	}

	writeAudit(ctx, in.Actor, &req.TargetStoreID, "transfer_request", req.ID, models.AuditActionConfirm,
		fmt.Sprintf("Moved %d units of batch %s from store %d to store %d",
			qty, batch.BatchNumber, req.SourceStoreID, req.TargetStoreID),
		nil, req)

	return req, nil
}

type DirectInput struct {
	BatchID        uint
	FromStoreID    uint
	ToStoreID      uint
	Quantity       int64
	Note           string
	StoreRequestID *uint
	Actor          *models.User
}

// ExecuteDirect moves allocation in a single authorized step, bypassing the
// request cycle, and appends the immutable transfer record.
func ExecuteDirect(ctx context.Context, in DirectInput) (*models.Transfer, error) {
	db := database.DB.WithContext(ctx)

	tx := db.Begin()
	if tx.Error != nil {
		return nil, fiber.NewError(fiber.StatusInternalServerError, "Could not start transaction")
	}
	defer tx.Rollback()

	record, err := executeDirectLocked(tx, in)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit().Error; err != nil {
		return nil, fiber.NewError(fiber.StatusInternalServerError, "Transfer could not be saved")
	}

	auditDirect(ctx, in, record)
	return record, nil
}

// executeDirectLocked runs the full direct-transfer legality check and ledger
// mutation inside the caller's transaction, so a caller can pair the movement
// with its own status write in one commit.
func executeDirectLocked(tx *gorm.DB, in DirectInput) (*models.Transfer, error) {
	if in.Quantity < 1 {
		return nil, fiber.NewError(fiber.StatusBadRequest, "Transfer quantity must be at least 1")
	}
	if !auth.CanActForStore(in.Actor, in.FromStoreID) || !auth.HasAnyPermission(in.Actor, models.PermTransferDirect) {
		return nil, fiber.NewError(fiber.StatusForbidden, "You are not allowed to transfer from this store")
	}

	var from, to models.Store
	if err := tx.First(&from, in.FromStoreID).Error; err != nil {
		return nil, scopedErr(err, "Source store not found")
	}
	if err := tx.First(&to, in.ToStoreID).Error; err != nil {
		return nil, scopedErr(err, "Target store not found")
	}

	if d := hierarchy.CanTransfer(&from, &to); !d.Allowed {
		return nil, fiber.NewError(fiber.StatusBadRequest, "Hierarchy violation: "+d.Reason)
	}

	var batch models.InventoryBatch
	if err := database.LockForUpdate(tx).First(&batch, in.BatchID).Error; err != nil {
		return nil, scopedErr(err, "Inventory batch not found")
	}

	if err := moveAllocation(&batch, in.FromStoreID, in.ToStoreID, in.Quantity, actorKey(in.Actor)); err != nil {
		return nil, err
	}

	record := models.Transfer{
		BatchID:         batch.ID,
		FromStoreID:     in.FromStoreID,
		ToStoreID:       in.ToStoreID,
		Quantity:        in.Quantity,
		Note:            in.Note,
		StoreRequestID:  in.StoreRequestID,
		InitiatedBy:     in.Actor.ID,
		InitiatedByName: in.Actor.Name,
	}

	if err := tx.Save(&batch).Error; err != nil {
		return nil, fiber.NewError(fiber.StatusInternalServerError, "Transfer could not be saved")
	}
	if err := tx.Create(&record).Error; err != nil {
		return nil, fiber.NewError(fiber.StatusInternalServerError, "Transfer record could not be saved")
	}
	return &record, nil
}

type FulfillInput struct {
	RequestID uint
	Actor     *models.User
}

// FulfillStoreRequest ships the approved quantity of a store request and
// marks it fulfilled. The status re-check, the ledger movement and the
// status flip share one transaction under a row lock on the request, so a
// concurrent or replayed fulfill fails instead of shipping twice.
func FulfillStoreRequest(ctx context.Context, in FulfillInput) (*models.Transfer, error) {
	db := database.DB.WithContext(ctx)

	tx := db.Begin()
	if tx.Error != nil {
		return nil, fiber.NewError(fiber.StatusInternalServerError, "Could not start transaction")
	}
	defer tx.Rollback()

	var req models.StoreRequest
	if err := database.LockForUpdate(tx).First(&req, in.RequestID).Error; err != nil {
		return nil, scopedErr(err, "Store request not found")
	}
	if req.Status != models.StoreRequestApproved {
		return nil, fiber.NewError(fiber.StatusBadRequest, "Only approved store requests can be fulfilled")
	}

	reqID := req.ID
	din := DirectInput{
		BatchID:        req.BatchID,
		FromStoreID:    req.SourceStoreID,
		ToStoreID:      req.StoreID,
		Quantity:       *req.ApprovedQuantity,
		Note:           "Store request #" + strconv.FormatUint(uint64(reqID), 10),
		StoreRequestID: &reqID,
		Actor:          in.Actor,
	}
	record, err := executeDirectLocked(tx, din)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	req.Status = models.StoreRequestFulfilled
	req.FulfilledAt = &now
	if err := tx.Save(&req).Error; err != nil {
		return nil, fiber.NewError(fiber.StatusInternalServerError, "Store request could not be updated")
	}
	if err := tx.Commit().Error; err != nil {
		return nil, fiber.NewError(fiber.StatusInternalServerError, "Store request could not be updated")
	}

	auditDirect(ctx, din, record)
	return record, nil
}

func auditDirect(ctx context.Context, in DirectInput, record *models.Transfer) {
	writeAudit(ctx, in.Actor, &in.FromStoreID, "transfer", strconv.FormatUint(uint64(record.ID), 10),
		models.AuditActionTransfer,
		fmt.Sprintf("Moved %d units of batch %d from store %d to store %d",
			in.Quantity, record.BatchID, in.FromStoreID, in.ToStoreID),
		nil, record)
}

// findRequest locates (and locks) the batch holding the request. Request ids
// are uuids, so the coarse LIKE match cannot hit a foreign row; the map
// lookup afterwards is authoritative.
func findRequest(tx *gorm.DB, requestID string) (*models.InventoryBatch, *models.TransferRequest, error) {
	if requestID == "" {
		return nil, nil, fiber.NewError(fiber.StatusBadRequest, "Request id is required")
	}

	var batch models.InventoryBatch
	err := database.JSONContains(database.LockForUpdate(tx), "transfer_requests", requestID).
		First(&batch).Error
	if err != nil {
		return nil, nil, scopedErr(err, "Transfer request not found")
	}

	req, ok := batch.TransferRequests[requestID]
	if !ok {
		return nil, nil, fiber.NewError(fiber.StatusNotFound, "Transfer request not found")
	}
	return &batch, &req, nil
}

// moveAllocation applies the two-sided ledger mutation on the in-memory
// batch. A transfer never changes the batch aggregates (stock stays inside
// the tenant), so the ledger sums must still match them afterwards.
func moveAllocation(b *models.InventoryBatch, fromStoreID, toStoreID uint, qty int64, actorID string) error {
	m := b.Ledger()
	fromKey := ledger.Key(fromStoreID)
	toKey := ledger.Key(toStoreID)

	src, _ := ledger.Get(m, fromKey)
	if src.Allocated < qty {
		return fiber.NewError(fiber.StatusBadRequest, msgInsufficientAllocation)
	}

	m, err := ledger.Update(m, fromKey, src.Allocated-qty, src.Reserved, actorID)
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}

	tgt, _ := ledger.Get(m, toKey)
	m, err = ledger.Update(m, toKey, tgt.Allocated+qty, tgt.Reserved, actorID)
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}

	// Depleted entries are dropped once nothing is allocated or reserved.
	if left, _ := ledger.Get(m, fromKey); left.Allocated == 0 && left.Reserved == 0 {
		m = ledger.Remove(m, fromKey)
	}

	if ledger.TotalAllocated(m) != b.RemainingQuantity ||
		ledger.TotalReserved(m) != b.ReservedQuantity ||
		!ledger.ValidateTotal(m, b.NumberOfStock) {
		return fiber.NewError(fiber.StatusInternalServerError, "Allocation ledger out of balance, transfer aborted")
	}

	b.StoreAllocations = models.AllocationMap(m)
	return nil
}

// scopedErr keeps the error taxonomy honest: a lookup that failed because
// no tenant was bound is an authorization failure, not a missing record.
// Anything other than a genuine miss passes through unchanged and surfaces
// as a 500 via the central error handler.
func scopedErr(err error, notFoundMsg string) error {
	switch {
	case errors.Is(err, database.ErrNoTenant):
		return fiber.NewError(fiber.StatusUnauthorized, database.ErrNoTenant.Error())
	case errors.Is(err, gorm.ErrRecordNotFound):
		return fiber.NewError(fiber.StatusNotFound, notFoundMsg)
	}
	return err
}

func actorKey(u *models.User) string {
	if u == nil {
		return ""
	}
	return strconv.FormatUint(uint64(u.ID), 10)
}

func writeAudit(ctx context.Context, actor *models.User, storeID *uint, entityType, entityID string,
	action models.AuditAction, description string, before, after any) {
	err := audit.WriteLog(ctx, audit.LogOptions{
		StoreID:     storeID,
		UserID:      actor.ID,
		UserName:    actor.Name,
		EntityType:  entityType,
		EntityID:    entityID,
		Action:      action,
		Description: description,
		Before:      before,
		After:       after,
	})
	if err != nil {
		log.Printf("audit log write failed: %v", err)
	}
}
