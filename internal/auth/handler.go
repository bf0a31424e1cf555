package auth

import (
	"strings"

	"stockroom-backend/internal/config"
	"stockroom-backend/internal/database"
	"stockroom-backend/internal/models"

	"github.com/gofiber/fiber/v2"
	"golang.org/x/crypto/bcrypt"
)

type RegisterTenantRequest struct {
	TenantName string `json:"tenant_name"`
	StoreName  string `json:"store_name"` // the tenant's MAIN store
	Name       string `json:"name"`
	Email      string `json:"email"`
	Password   string `json:"password"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// RegisterTenantHandler onboards a tenant: tenant row, its MAIN store and
// the tenant super admin in one transaction. Runs before any tenant is
// known, so it uses the bypass scope.
func RegisterTenantHandler(cfg *config.Config) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body RegisterTenantRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
		}

		body.Email = strings.TrimSpace(strings.ToLower(body.Email))
		body.TenantName = strings.TrimSpace(body.TenantName)
		body.StoreName = strings.TrimSpace(body.StoreName)

		if body.Email == "" || body.Password == "" || body.Name == "" || body.TenantName == "" || body.StoreName == "" {
			return fiber.NewError(fiber.StatusBadRequest, "tenant_name, store_name, name, email and password are required")
		}

		ctx := database.WithBypass(c.UserContext())
		db := database.DB.WithContext(ctx)

		var count int64
		db.Model(&models.Tenant{}).Where("name = ?", body.TenantName).Count(&count)
		if count > 0 {
			return fiber.NewError(fiber.StatusConflict, "A tenant with this name already exists")
		}
		db.Model(&models.User{}).Where("email = ?", body.Email).Count(&count)
		if count > 0 {
			return fiber.NewError(fiber.StatusConflict, "A user with this email already exists")
		}

		hash, err := bcrypt.GenerateFromPassword([]byte(body.Password), bcrypt.DefaultCost)
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Could not hash password")
		}

		tx := db.Begin()
		if tx.Error != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Could not start transaction")
		}

		tenant := models.Tenant{Name: body.TenantName, Status: models.TenantStatusActive}
		if err := tx.Create(&tenant).Error; err != nil {
			tx.Rollback()
			return fiber.NewError(fiber.StatusInternalServerError, "Tenant could not be created")
		}

		store := models.Store{
			TenantID:       tenant.ID,
			Name:           body.StoreName,
			Classification: models.StoreMain,
		}
		if err := tx.Create(&store).Error; err != nil {
			tx.Rollback()
			return fiber.NewError(fiber.StatusInternalServerError, "Main store could not be created")
		}

		user := models.User{
			TenantID:     tenant.ID,
			Name:         body.Name,
			Email:        body.Email,
			PasswordHash: string(hash),
			Role:         models.RoleSuperAdmin,
		}
		if err := tx.Create(&user).Error; err != nil {
			tx.Rollback()
			return fiber.NewError(fiber.StatusInternalServerError, "User could not be created")
		}

		if err := tx.Commit().Error; err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Registration could not be completed")
		}

		return c.Status(fiber.StatusCreated).JSON(fiber.Map{
			"tenant_id": tenant.ID,
			"store_id":  store.ID,
			"user_id":   user.ID,
			"email":     user.Email,
			"role":      user.Role,
		})
	}
}

func LoginHandler(cfg *config.Config) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body LoginRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
		}

		body.Email = strings.TrimSpace(strings.ToLower(body.Email))

		// The tenant is unknown until the user row is found, so this single
		// lookup runs under the bypass scope.
		ctx := database.WithBypass(c.UserContext())

		var user models.User
		if err := database.DB.WithContext(ctx).Where("email = ?", body.Email).First(&user).Error; err != nil {
			return fiber.NewError(fiber.StatusUnauthorized, "Wrong email or password")
		}

		if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(body.Password)); err != nil {
			return fiber.NewError(fiber.StatusUnauthorized, "Wrong email or password")
		}

		token, err := GenerateToken(cfg.JWTSecret, &user)
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Could not issue token")
		}

		return c.JSON(fiber.Map{
			"token": token,
			"user": fiber.Map{
				"id":        user.ID,
				"tenant_id": user.TenantID,
				"name":      user.Name,
				"email":     user.Email,
				"role":      user.Role,
				"store_id":  user.StoreID,
			},
		})
	}
}

func MeHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		user, err := CurrentUser(c)
		if err != nil {
			return err
		}

		response := fiber.Map{
			"user_id":   user.ID,
			"tenant_id": user.TenantID,
			"name":      user.Name,
			"email":     user.Email,
			"role":      user.Role,
			"store_id":  user.StoreID,
		}

		if user.StoreID != nil {
			var store models.Store
			if err := database.DB.WithContext(c.UserContext()).First(&store, *user.StoreID).Error; err == nil {
				response["store"] = fiber.Map{
					"id":             store.ID,
					"name":           store.Name,
					"classification": store.Classification,
				}
			}
		}

		return c.JSON(response)
	}
}
