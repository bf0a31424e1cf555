package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/schema"

	"stockroom-backend/internal/ledger"
)

// InventoryBatch is one receipt of stock for one product. BatchNumber,
// UnitPrice and NumberOfStock are fixed at receipt; RemainingQuantity and
// ReservedQuantity must always equal the sums of the embedded allocation
// ledger. The ledger and the transfer requests live on the batch row itself
// so every mutation is a single-row atomic write.
type InventoryBatch struct {
	ID                uint `gorm:"primaryKey"`
	TenantID          uint `gorm:"index;not null"`
	Tenant            Tenant
	ProductID         uint `gorm:"index;not null"`
	Product           Product
	BatchNumber       string  `gorm:"size:50;not null;index"`
	UnitPrice         float64 `gorm:"not null"`
	NumberOfStock     int64   `gorm:"not null"` // total received, immutable
	RemainingQuantity int64   `gorm:"not null"`
	ReservedQuantity  int64   `gorm:"not null;default:0"`
	StoreAllocations  AllocationMap      `gorm:"not null"`
	TransferRequests  TransferRequestMap `gorm:"not null"`
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// Ledger returns the allocation map in its ledger-package shape.
func (b *InventoryBatch) Ledger() ledger.Map {
	return ledger.Map(b.StoreAllocations)
}

// SetLedger writes the map back and keeps the batch aggregates in sync with
// the ledger sums.
func (b *InventoryBatch) SetLedger(m ledger.Map) {
	b.StoreAllocations = AllocationMap(m)
	b.RemainingQuantity = ledger.TotalAllocated(m)
	b.ReservedQuantity = ledger.TotalReserved(m)
}

// Balanced reports whether the aggregates match the embedded ledger.
func (b *InventoryBatch) Balanced() bool {
	m := b.Ledger()
	return ledger.TotalAllocated(m) == b.RemainingQuantity &&
		ledger.TotalReserved(m) == b.ReservedQuantity &&
		ledger.ValidateTotal(m, b.NumberOfStock)
}

// AllocationMap stores the per-store ledger as a JSON column.
type AllocationMap map[string]ledger.Allocation

func (m AllocationMap) Value() (driver.Value, error) {
	if m == nil {
		m = AllocationMap{}
	}
	return json.Marshal(m)
}

func (m *AllocationMap) Scan(value any) error {
	return scanJSON(value, m)
}

func (AllocationMap) GormDBDataType(db *gorm.DB, _ *schema.Field) string {
	if db.Dialector.Name() == "postgres" {
		return "JSONB"
	}
	return "JSON"
}

type TransferRequestStatus string

const (
	TransferPending           TransferRequestStatus = "PENDING"
	TransferApproved          TransferRequestStatus = "APPROVED"
	TransferPartiallyApproved TransferRequestStatus = "PARTIALLY_APPROVED"
	TransferRejected          TransferRequestStatus = "REJECTED"
	TransferCompleted         TransferRequestStatus = "COMPLETED"
)

// Open reports whether the request still occupies its (source, target) slot.
func (s TransferRequestStatus) Open() bool {
	return s == TransferPending || s == TransferApproved || s == TransferPartiallyApproved
}

// Approved reports whether the request is ready to be confirmed.
func (s TransferRequestStatus) Approved() bool {
	return s == TransferApproved || s == TransferPartiallyApproved
}

type TransferRequestType string

const TransferTypeStock TransferRequestType = "STOCK_TRANSFER"

// TransferRequest is embedded in the batch document, keyed by a generated
// request id. Requests are never deleted; terminal ones stay as audit trail.
type TransferRequest struct {
	ID                string                `json:"id"`
	Type              TransferRequestType   `json:"type"`
	SourceStoreID     uint                  `json:"source_store_id"`
	TargetStoreID     uint                  `json:"target_store_id"`
	RequestedQuantity int64                 `json:"requested_quantity"`
	ApprovedQuantity  *int64                `json:"approved_quantity,omitempty"`
	Status            TransferRequestStatus `json:"status"`
	Reason            string                `json:"reason"`
	RequestedBy       uint                  `json:"requested_by"`
	RequestedByName   string                `json:"requested_by_name"`
	RequestedAt       time.Time             `json:"requested_at"`
	ApprovedBy        *uint                 `json:"approved_by,omitempty"`
	ApprovedByName    string                `json:"approved_by_name,omitempty"`
	ApprovedAt        *time.Time            `json:"approved_at,omitempty"`
	RejectionReason   string                `json:"rejection_reason,omitempty"`
	ConfirmedBy       *uint                 `json:"confirmed_by,omitempty"`
	ConfirmedByName   string                `json:"confirmed_by_name,omitempty"`
	ConfirmedAt       *time.Time            `json:"confirmed_at,omitempty"`
}

// TransferRequestMap stores the embedded requests as a JSON column.
type TransferRequestMap map[string]TransferRequest

func (m TransferRequestMap) Value() (driver.Value, error) {
	if m == nil {
		m = TransferRequestMap{}
	}
	return json.Marshal(m)
}

func (m *TransferRequestMap) Scan(value any) error {
	return scanJSON(value, m)
}

func (TransferRequestMap) GormDBDataType(db *gorm.DB, _ *schema.Field) string {
	if db.Dialector.Name() == "postgres" {
		return "JSONB"
	}
	return "JSON"
}

// OpenRequestFor returns the open request occupying the (source, target)
// slot, if any. At most one may be open per pair per batch.
func (m TransferRequestMap) OpenRequestFor(sourceStoreID, targetStoreID uint) (TransferRequest, bool) {
	for _, r := range m {
		if r.SourceStoreID == sourceStoreID && r.TargetStoreID == targetStoreID && r.Status.Open() {
			return r, true
		}
	}
	return TransferRequest{}, false
}

func scanJSON(value, dest any) error {
	if value == nil {
		return nil
	}
	switch v := value.(type) {
	case []byte:
		return json.Unmarshal(v, dest)
	case string:
		return json.Unmarshal([]byte(v), dest)
	default:
		return fmt.Errorf("unsupported column type %T", value)
	}
}
