package models

import (
	"time"

	"gorm.io/gorm"
)

type StoreClassification string

const (
	StoreMain        StoreClassification = "MAIN"
	StoreRegional    StoreClassification = "REGIONAL"
	StoreSubRegional StoreClassification = "SUB_REGIONAL"
)

// Store is a stock-holding location inside a tenant's strict 3-level tree:
// exactly one active MAIN store per tenant, REGIONAL stores hang off MAIN,
// SUB_REGIONAL stores hang off a REGIONAL and have no children.
type Store struct {
	ID             uint `gorm:"primaryKey"`
	TenantID       uint `gorm:"index;not null"`
	Tenant         Tenant
	Name           string              `gorm:"size:100;not null"`
	Classification StoreClassification `gorm:"size:20;not null"`
	ParentID       *uint               `gorm:"index"`
	Parent         *Store
	Address        string `gorm:"size:255"`
	Phone          string `gorm:"size:50"`
	CreatedAt      time.Time
	UpdatedAt      time.Time
	DeletedAt      gorm.DeletedAt `gorm:"index"`
}
