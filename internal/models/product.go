package models

import "time"

// Product is the catalog item a batch is received against.
type Product struct {
	ID        uint `gorm:"primaryKey"`
	TenantID  uint `gorm:"index;not null"`
	Tenant    Tenant
	Name      string `gorm:"size:100;not null"`
	Unit      string `gorm:"size:20;not null"` // kg, piece, box
	StockCode string `gorm:"size:50;index"`
	CreatedAt time.Time
	UpdatedAt time.Time
}
