package models

import "time"

// Transfer is the immutable record of a completed allocation movement
// between two stores for one batch. Rows are append-only: there is no
// update or delete path for them anywhere in the system.
type Transfer struct {
	ID              uint `gorm:"primaryKey"`
	TenantID        uint `gorm:"index;not null"`
	Tenant          Tenant
	BatchID         uint `gorm:"index;not null"`
	Batch           InventoryBatch `gorm:"foreignKey:BatchID"`
	FromStoreID     uint           `gorm:"index;not null"`
	FromStore       Store          `gorm:"foreignKey:FromStoreID"`
	ToStoreID       uint           `gorm:"index;not null"`
	ToStore         Store          `gorm:"foreignKey:ToStoreID"`
	Quantity        int64          `gorm:"not null"`
	Note            string         `gorm:"size:255"`
	StoreRequestID  *uint          `gorm:"index"` // set when fulfilling a store request
	InitiatedBy     uint           `gorm:"not null"`
	InitiatedByName string         `gorm:"size:100"`
	CreatedAt       time.Time
}

type StoreRequestStatus string

const (
	StoreRequestPending   StoreRequestStatus = "pending"
	StoreRequestApproved  StoreRequestStatus = "approved"
	StoreRequestRejected  StoreRequestStatus = "rejected"
	StoreRequestFulfilled StoreRequestStatus = "fulfilled"
)

// StoreRequest is the higher-level "please send me stock" intent: a store
// asks its parent (or the tenant MAIN store) for a quantity out of a batch.
// Fulfillment of an approved request runs the direct transfer path; it is
// distinct from the embedded transfer-request state machine.
type StoreRequest struct {
	ID               uint `gorm:"primaryKey"`
	TenantID         uint `gorm:"index;not null"`
	Tenant           Tenant
	StoreID          uint  `gorm:"index;not null"` // requesting store
	Store            Store `gorm:"foreignKey:StoreID"`
	SourceStoreID    uint  `gorm:"index;not null"`
	SourceStore      Store `gorm:"foreignKey:SourceStoreID"`
	BatchID          uint  `gorm:"index;not null"`
	Batch            InventoryBatch     `gorm:"foreignKey:BatchID"`
	Quantity         int64              `gorm:"not null"`
	ApprovedQuantity *int64
	Status           StoreRequestStatus `gorm:"size:20;not null;default:'pending';index"`
	Note             string             `gorm:"size:255"`
	RejectionReason  string             `gorm:"size:255"`
	RequestedBy      uint               `gorm:"not null"`
	RequestedByName  string             `gorm:"size:100"`
	DecidedBy        *uint
	DecidedByName    string `gorm:"size:100"`
	DecidedAt        *time.Time
	FulfilledAt      *time.Time
	CreatedAt        time.Time
	UpdatedAt        time.Time
}
