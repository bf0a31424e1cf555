package models

import "time"

type AuditAction string

const (
	AuditActionCreate   AuditAction = "create"
	AuditActionUpdate   AuditAction = "update"
	AuditActionTransfer AuditAction = "transfer"
	AuditActionApprove  AuditAction = "approve"
	AuditActionReject   AuditAction = "reject"
	AuditActionConfirm  AuditAction = "confirm"
)

// AuditLog is append-only: there is no undo path, reversing a ledger write
// outside the state machine would break the allocation-sum invariant.
type AuditLog struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time `json:"created_at"`

	TenantID uint  `gorm:"index;not null" json:"tenant_id"`
	StoreID  *uint `json:"store_id"`

	UserID   uint   `json:"user_id"`
	UserName string `gorm:"size:100" json:"user_name"` // denormalized display name

	// EntityType e.g. "inventory_batch", "transfer_request", "store", "store_request"
	EntityType string `gorm:"size:50;index" json:"entity_type"`
	EntityID   string `gorm:"size:50;index" json:"entity_id"` // numeric id or request uuid

	Action      AuditAction `gorm:"size:20" json:"action"`
	Description string      `gorm:"size:255" json:"description"`

	// Before/after snapshots as JSON.
	BeforeData string `gorm:"type:jsonb" json:"before_data"`
	AfterData  string `gorm:"type:jsonb" json:"after_data"`
}
