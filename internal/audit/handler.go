package audit

import (
	"strconv"

	"stockroom-backend/internal/database"
	"stockroom-backend/internal/models"

	"github.com/gofiber/fiber/v2"
)

type LogResponse struct {
	ID          uint   `json:"id"`
	StoreID     *uint  `json:"store_id"`
	UserID      uint   `json:"user_id"`
	UserName    string `json:"user_name"`
	EntityType  string `json:"entity_type"`
	EntityID    string `json:"entity_id"`
	Action      string `json:"action"`
	Description string `json:"description"`
	BeforeData  string `json:"before_data"`
	AfterData   string `json:"after_data"`
	CreatedAt   string `json:"created_at"`
}

// GET /api/audit-logs?store_id=&entity_type=&limit=
func ListAuditLogsHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		db := database.DB.WithContext(c.UserContext()).Model(&models.AuditLog{})

		if storeIDStr := c.Query("store_id"); storeIDStr != "" {
			storeID, err := strconv.ParseUint(storeIDStr, 10, 32)
			if err != nil {
				return fiber.NewError(fiber.StatusBadRequest, "Invalid store_id")
			}
			db = db.Where("store_id = ?", uint(storeID))
		}
		if entityType := c.Query("entity_type"); entityType != "" {
			db = db.Where("entity_type = ?", entityType)
		}

		limit := 100
		if limitStr := c.Query("limit"); limitStr != "" {
			if n, err := strconv.Atoi(limitStr); err == nil && n > 0 && n <= 500 {
				limit = n
			}
		}

		var logs []models.AuditLog
		if err := db.Order("created_at DESC").Limit(limit).Find(&logs).Error; err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Audit logs could not be listed")
		}

		res := make([]LogResponse, 0, len(logs))
		for _, l := range logs {
			res = append(res, LogResponse{
				ID:          l.ID,
				StoreID:     l.StoreID,
				UserID:      l.UserID,
				UserName:    l.UserName,
				EntityType:  l.EntityType,
				EntityID:    l.EntityID,
				Action:      string(l.Action),
				Description: l.Description,
				BeforeData:  l.BeforeData,
				AfterData:   l.AfterData,
				CreatedAt:   l.CreatedAt.Format("2006-01-02 15:04:05"),
			})
		}

		return c.JSON(res)
	}
}
