package inventory

import (
	"strings"

	"stockroom-backend/internal/database"
	"stockroom-backend/internal/models"

	"github.com/gofiber/fiber/v2"
)

type CreateProductRequest struct {
	Name      string `json:"name"`
	Unit      string `json:"unit"`
	StockCode string `json:"stock_code"`
}

// POST /api/products
func CreateProductHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body CreateProductRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
		}

		body.Name = strings.TrimSpace(body.Name)
		if body.Name == "" || body.Unit == "" {
			return fiber.NewError(fiber.StatusBadRequest, "name and unit are required")
		}

		product := models.Product{
			Name:      body.Name,
			Unit:      body.Unit,
			StockCode: strings.TrimSpace(body.StockCode),
		}
		if err := database.DB.WithContext(c.UserContext()).Create(&product).Error; err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Product could not be created")
		}

		return c.Status(fiber.StatusCreated).JSON(fiber.Map{
			"id":         product.ID,
			"name":       product.Name,
			"unit":       product.Unit,
			"stock_code": product.StockCode,
		})
	}
}

// GET /api/products
func ListProductsHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		var products []models.Product
		if err := database.DB.WithContext(c.UserContext()).Order("name").Find(&products).Error; err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Products could not be listed")
		}

		res := make([]fiber.Map, 0, len(products))
		for _, p := range products {
			res = append(res, fiber.Map{
				"id":         p.ID,
				"name":       p.Name,
				"unit":       p.Unit,
				"stock_code": p.StockCode,
			})
		}

		return c.JSON(res)
	}
}
