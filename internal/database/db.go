package database

import (
	"log"

	"stockroom-backend/internal/config"
	"stockroom-backend/internal/models"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

var DB *gorm.DB

func Init(cfg *config.Config) {
	db, err := gorm.Open(postgres.Open(cfg.DatabaseDSN), &gorm.Config{})
	if err != nil {
		log.Fatalf("could not connect to database: %v", err)
	}

	if err := Use(db); err != nil {
		log.Fatalf("database setup failed: %v", err)
	}

	log.Println("Database connected. Migration complete.")
}

// Use wires a gorm connection as the process-wide handle: registers the
// tenant scoping callbacks and runs migrations. Tests call it with an
// in-memory sqlite connection.
func Use(db *gorm.DB) error {
	if err := registerScopeCallbacks(db); err != nil {
		return err
	}

	if err := db.AutoMigrate(
		&models.Tenant{},
		&models.Store{},
		&models.User{},
		&models.Product{},
		&models.InventoryBatch{},
		&models.Transfer{},
		&models.StoreRequest{},
		&models.AuditLog{},
	); err != nil {
		return err
	}

	DB = db
	return nil
}
