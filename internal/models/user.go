package models

import "time"

type UserRole string

const (
	RoleSuperAdmin UserRole = "super_admin" // tenant-wide, bypasses per-store checks
	RoleStoreAdmin UserRole = "store_admin"
	RoleStoreStaff UserRole = "store_staff"
)

// Permission values form a closed catalog; they are global definitions and
// deliberately carry no tenant_id.
type Permission string

const (
	PermManageAll       Permission = "manage:all"
	PermStockWrite      Permission = "stock:write"
	PermTransferRequest Permission = "transfer:request"
	PermTransferApprove Permission = "transfer:approve"
	PermTransferConfirm Permission = "transfer:confirm"
	PermTransferDirect  Permission = "transfer:direct"
)

// RolePermissions is the global role catalog.
var RolePermissions = map[UserRole][]Permission{
	RoleSuperAdmin: {PermManageAll},
	RoleStoreAdmin: {
		PermStockWrite,
		PermTransferRequest,
		PermTransferApprove,
		PermTransferConfirm,
		PermTransferDirect,
	},
	RoleStoreStaff: {PermTransferRequest},
}

type User struct {
	ID           uint `gorm:"primaryKey"`
	TenantID     uint `gorm:"index;not null"`
	Tenant       Tenant
	StoreID      *uint // nil for tenant-wide users (super admin)
	Store        *Store
	Name         string   `gorm:"size:100;not null"`
	Email        string   `gorm:"size:100;uniqueIndex;not null"`
	PasswordHash string   `gorm:"size:255;not null"`
	Role         UserRole `gorm:"size:20;not null"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
