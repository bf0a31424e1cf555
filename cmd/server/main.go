package main

import (
	"log"
	"strings"

	"stockroom-backend/internal/admin"
	"stockroom-backend/internal/audit"
	"stockroom-backend/internal/auth"
	"stockroom-backend/internal/config"
	"stockroom-backend/internal/database"
	"stockroom-backend/internal/inventory"
	"stockroom-backend/internal/models"
	"stockroom-backend/internal/transfer"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
)

func main() {
	cfg := config.Load()
	database.Init(cfg)

	app := fiber.New(fiber.Config{
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			if e, ok := err.(*fiber.Error); ok {
				return c.Status(e.Code).JSON(fiber.Map{
					"error": e.Message,
				})
			}
			log.Println("Unexpected error:", err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "Unexpected server error",
			})
		},
	})

	corsOrigins := strings.Split(cfg.CORSOrigins, ",")
	for i := range corsOrigins {
		corsOrigins[i] = strings.TrimSpace(corsOrigins[i])
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins: strings.Join(corsOrigins, ","),
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
		AllowMethods: "GET,POST,PUT,DELETE,OPTIONS",
	}))

	api := app.Group("/api")

	// Public auth
	api.Post("/auth/register-tenant", auth.RegisterTenantHandler(cfg))
	api.Post("/auth/login", auth.LoginHandler(cfg))

	// Protected
	protected := api.Group("")
	protected.Use(auth.JWTMiddleware(cfg))

	protected.Get("/auth/me", auth.MeHandler())

	// Tenant super admin routes
	adminRoutes := protected.Group("/admin")
	adminRoutes.Use(auth.RequireRole(models.RoleSuperAdmin))

	// Tenant lifecycle
	adminRoutes.Get("/tenant", admin.GetTenantHandler())
	adminRoutes.Put("/tenant", admin.UpdateTenantHandler())

	// Store hierarchy management
	adminRoutes.Post("/stores", admin.CreateStoreHandler())
	adminRoutes.Get("/stores", admin.ListStoresHandler())
	adminRoutes.Get("/stores/:id", admin.GetStoreHandler())
	adminRoutes.Put("/stores/:id", admin.UpdateStoreHandler())
	adminRoutes.Delete("/stores/:id", admin.DeleteStoreHandler())
	adminRoutes.Post("/stores/:id/admin", admin.CreateStoreAdminHandler())
	adminRoutes.Get("/stores/:id/users", admin.ListStoreUsersHandler())

	// Product catalog
	adminRoutes.Post("/products", inventory.CreateProductHandler())

	// Ledger backfill operations for migration jobs
	adminRoutes.Put("/inventory-batches/:id/allocations", inventory.SetAllocationsHandler())
	adminRoutes.Post("/inventory-batches/import-allocations", inventory.ImportAllocationsHandler())

	// Shared (authenticated) routes
	protected.Get("/products", inventory.ListProductsHandler())

	// Batch intake & allocation views
	protected.Post("/inventory-batches", inventory.CreateBatchHandler())
	protected.Get("/inventory-batches", inventory.ListBatchesHandler())
	protected.Get("/inventory-batches/:id/allocations", inventory.ListAllocationsHandler())
	protected.Get("/stores/:id/inventory", transfer.StoreInventoryViewHandler())

	// Transfer request state machine
	protected.Post("/transfer-requests", transfer.CreateTransferRequestHandler())
	protected.Get("/transfer-requests", transfer.ListTransferRequestsHandler())
	protected.Post("/transfer-requests/:id/decision", transfer.DecideTransferRequestHandler())
	protected.Post("/transfer-requests/:id/confirm", transfer.ConfirmTransferRequestHandler())

	// Direct transfers
	protected.Post("/transfers", transfer.DirectTransferHandler())
	protected.Get("/transfers", transfer.ListTransfersHandler())

	// Store requests (ask parent/main for stock)
	protected.Post("/store-requests", transfer.CreateStoreRequestHandler())
	protected.Get("/store-requests", transfer.ListStoreRequestsHandler())
	protected.Post("/store-requests/:id/decision", transfer.DecideStoreRequestHandler())
	protected.Post("/store-requests/:id/fulfill", transfer.FulfillStoreRequestHandler())

	// Audit logs
	protected.Get("/audit-logs", audit.ListAuditLogsHandler())

	log.Println("Server listening on port:", cfg.HTTPPort)
	if err := app.Listen(":" + cfg.HTTPPort); err != nil {
		log.Fatal(err)
	}
}
