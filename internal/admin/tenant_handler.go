package admin

import (
	"strings"

	"stockroom-backend/internal/auth"
	"stockroom-backend/internal/database"
	"stockroom-backend/internal/models"

	"github.com/gofiber/fiber/v2"
)

type UpdateTenantRequest struct {
	Name   *string `json:"name"`
	Status *string `json:"status"`
}

// GET /api/admin/tenant
func GetTenantHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		tenantID, ok := c.Locals(auth.CtxTenantIDKey).(uint)
		if !ok {
			return fiber.NewError(fiber.StatusUnauthorized, "Could not resolve tenant")
		}

		var tenant models.Tenant
		if err := database.DB.WithContext(c.UserContext()).First(&tenant, tenantID).Error; err != nil {
			return fiber.NewError(fiber.StatusNotFound, "Tenant not found")
		}

		return c.JSON(fiber.Map{
			"id":         tenant.ID,
			"name":       tenant.Name,
			"status":     tenant.Status,
			"created_at": tenant.CreatedAt.Format("2006-01-02 15:04:05"),
		})
	}
}

// PUT /api/admin/tenant
// Tenants have a soft lifecycle: active or suspended, never deleted.
func UpdateTenantHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		tenantID, ok := c.Locals(auth.CtxTenantIDKey).(uint)
		if !ok {
			return fiber.NewError(fiber.StatusUnauthorized, "Could not resolve tenant")
		}

		var body UpdateTenantRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
		}

		var tenant models.Tenant
		if err := database.DB.WithContext(c.UserContext()).First(&tenant, tenantID).Error; err != nil {
			return fiber.NewError(fiber.StatusNotFound, "Tenant not found")
		}

		if body.Name != nil {
			name := strings.TrimSpace(*body.Name)
			if name == "" {
				return fiber.NewError(fiber.StatusBadRequest, "Tenant name cannot be empty")
			}
			tenant.Name = name
		}
		if body.Status != nil {
			switch models.TenantStatus(*body.Status) {
			case models.TenantStatusActive, models.TenantStatusSuspended:
				tenant.Status = models.TenantStatus(*body.Status)
			default:
				return fiber.NewError(fiber.StatusBadRequest, "Status must be 'active' or 'suspended'")
			}
		}

		if err := database.DB.WithContext(c.UserContext()).Save(&tenant).Error; err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Tenant could not be updated")
		}

		return c.JSON(fiber.Map{
			"id":     tenant.ID,
			"name":   tenant.Name,
			"status": tenant.Status,
		})
	}
}
