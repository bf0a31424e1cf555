package models

import "time"

type TenantStatus string

const (
	TenantStatusActive    TenantStatus = "active"
	TenantStatusSuspended TenantStatus = "suspended"
)

// Tenant is the isolation boundary: every scoped entity carries a tenant_id.
// Tenants are never hard-deleted or merged, only flipped to suspended.
type Tenant struct {
	ID        uint         `gorm:"primaryKey"`
	Name      string       `gorm:"size:100;not null;unique"`
	Status    TenantStatus `gorm:"size:20;not null;default:'active'"`
	CreatedAt time.Time
	UpdatedAt time.Time
}
