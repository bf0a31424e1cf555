package admin

import (
	"strconv"
	"strings"

	"stockroom-backend/internal/database"
	"stockroom-backend/internal/ledger"
	"stockroom-backend/internal/models"

	"github.com/gofiber/fiber/v2"
	"golang.org/x/crypto/bcrypt"
)

type StoreResponse struct {
	ID             uint   `json:"id"`
	Name           string `json:"name"`
	Classification string `json:"classification"`
	ParentID       *uint  `json:"parent_id"`
	Address        string `json:"address"`
	Phone          string `json:"phone"`
	CreatedAt      string `json:"created_at"`
}

type CreateStoreRequest struct {
	Name           string  `json:"name"`
	Classification string  `json:"classification"`
	ParentID       *uint   `json:"parent_id"`
	Address        string  `json:"address"`
	Phone          *string `json:"phone"`
}

type UpdateStoreRequest struct {
	Name    *string `json:"name"`
	Address *string `json:"address"`
	Phone   *string `json:"phone"`
}

type CreateStoreAdminRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Role     string `json:"role"` // store_admin (default) or store_staff
}

func toStoreResponse(s models.Store) StoreResponse {
	return StoreResponse{
		ID:             s.ID,
		Name:           s.Name,
		Classification: string(s.Classification),
		ParentID:       s.ParentID,
		Address:        s.Address,
		Phone:          s.Phone,
		CreatedAt:      s.CreatedAt.Format("2006-01-02 15:04:05"),
	}
}

// validateStorePlacement enforces the 3-level tree: one active MAIN per
// tenant, REGIONAL under MAIN, SUB_REGIONAL under REGIONAL.
func validateStorePlacement(c *fiber.Ctx, classification models.StoreClassification, parentID *uint) error {
	db := database.DB.WithContext(c.UserContext())

	switch classification {
	case models.StoreMain:
		var count int64
		db.Model(&models.Store{}).Where("classification = ?", models.StoreMain).Count(&count)
		if count > 0 {
			return fiber.NewError(fiber.StatusConflict, "Tenant already has a main store")
		}
		if parentID != nil {
			return fiber.NewError(fiber.StatusBadRequest, "A main store has no parent")
		}
	case models.StoreRegional:
		if parentID == nil {
			return fiber.NewError(fiber.StatusBadRequest, "A regional store needs the main store as parent")
		}
		var parent models.Store
		if err := db.First(&parent, *parentID).Error; err != nil {
			return fiber.NewError(fiber.StatusNotFound, "Parent store not found")
		}
		if parent.Classification != models.StoreMain {
			return fiber.NewError(fiber.StatusBadRequest, "A regional store's parent must be the main store")
		}
	case models.StoreSubRegional:
		if parentID == nil {
			return fiber.NewError(fiber.StatusBadRequest, "A sub-regional store needs a regional parent")
		}
		var parent models.Store
		if err := db.First(&parent, *parentID).Error; err != nil {
			return fiber.NewError(fiber.StatusNotFound, "Parent store not found")
		}
		if parent.Classification != models.StoreRegional {
			return fiber.NewError(fiber.StatusBadRequest, "A sub-regional store's parent must be a regional store")
		}
	default:
		return fiber.NewError(fiber.StatusBadRequest, "Classification must be MAIN, REGIONAL or SUB_REGIONAL")
	}
	return nil
}

// POST /api/admin/stores
func CreateStoreHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body CreateStoreRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
		}

		body.Name = strings.TrimSpace(body.Name)
		if body.Name == "" {
			return fiber.NewError(fiber.StatusBadRequest, "Store name cannot be empty")
		}

		classification := models.StoreClassification(body.Classification)
		if err := validateStorePlacement(c, classification, body.ParentID); err != nil {
			return err
		}

		store := models.Store{
			Name:           body.Name,
			Classification: classification,
			ParentID:       body.ParentID,
			Address:        body.Address,
		}
		if body.Phone != nil {
			store.Phone = strings.TrimSpace(*body.Phone)
		}

		if err := database.DB.WithContext(c.UserContext()).Create(&store).Error; err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Store could not be created")
		}

		return c.Status(fiber.StatusCreated).JSON(toStoreResponse(store))
	}
}

// GET /api/admin/stores
func ListStoresHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		var stores []models.Store
		if err := database.DB.WithContext(c.UserContext()).
			Order("classification, name").Find(&stores).Error; err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Stores could not be listed")
		}

		res := make([]StoreResponse, 0, len(stores))
		for _, s := range stores {
			res = append(res, toStoreResponse(s))
		}

		return c.JSON(res)
	}
}

// GET /api/admin/stores/:id
func GetStoreHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		id := c.Params("id")

		var store models.Store
		if err := database.DB.WithContext(c.UserContext()).First(&store, "id = ?", id).Error; err != nil {
			return fiber.NewError(fiber.StatusNotFound, "Store not found")
		}

		return c.JSON(toStoreResponse(store))
	}
}

// PUT /api/admin/stores/:id
func UpdateStoreHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		id := c.Params("id")

		var store models.Store
		if err := database.DB.WithContext(c.UserContext()).First(&store, "id = ?", id).Error; err != nil {
			return fiber.NewError(fiber.StatusNotFound, "Store not found")
		}

		var body UpdateStoreRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
		}

		if body.Name != nil {
			name := strings.TrimSpace(*body.Name)
			if name == "" {
				return fiber.NewError(fiber.StatusBadRequest, "Store name cannot be empty")
			}
			store.Name = name
		}
		if body.Address != nil {
			store.Address = *body.Address
		}
		if body.Phone != nil {
			store.Phone = strings.TrimSpace(*body.Phone)
		}

		if err := database.DB.WithContext(c.UserContext()).Save(&store).Error; err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Store could not be updated")
		}

		return c.JSON(toStoreResponse(store))
	}
}

// DELETE /api/admin/stores/:id
// Soft delete; refused while the store still holds allocation in any batch
// or has child stores.
func DeleteStoreHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := strconv.ParseUint(c.Params("id"), 10, 32)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Invalid store id")
		}

		db := database.DB.WithContext(c.UserContext())

		var store models.Store
		if err := db.First(&store, uint(id)).Error; err != nil {
			return fiber.NewError(fiber.StatusNotFound, "Store not found")
		}
		if store.Classification == models.StoreMain {
			return fiber.NewError(fiber.StatusBadRequest, "The main store cannot be deleted")
		}

		var childCount int64
		db.Model(&models.Store{}).Where("parent_id = ?", store.ID).Count(&childCount)
		if childCount > 0 {
			return fiber.NewError(fiber.StatusBadRequest, "Store still has child stores")
		}

		var batches []models.InventoryBatch
		if err := db.Find(&batches).Error; err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Allocations could not be checked")
		}
		key := ledger.Key(store.ID)
		for _, b := range batches {
			if a, ok := ledger.Get(b.Ledger(), key); ok && (a.Allocated > 0 || a.Reserved > 0) {
				return fiber.NewError(fiber.StatusBadRequest,
					"Store still holds allocation in batch "+b.BatchNumber)
			}
		}

		if err := db.Delete(&store).Error; err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Store could not be deleted")
		}

		return c.JSON(fiber.Map{"message": "Store deleted"})
	}
}

// POST /api/admin/stores/:id/admin
func CreateStoreAdminHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := strconv.ParseUint(c.Params("id"), 10, 32)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Invalid store id")
		}

		db := database.DB.WithContext(c.UserContext())

		var store models.Store
		if err := db.First(&store, uint(id)).Error; err != nil {
			return fiber.NewError(fiber.StatusNotFound, "Store not found")
		}

		var body CreateStoreAdminRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
		}

		body.Email = strings.TrimSpace(strings.ToLower(body.Email))
		if body.Email == "" || body.Password == "" || body.Name == "" {
			return fiber.NewError(fiber.StatusBadRequest, "name, email and password are required")
		}

		role := models.RoleStoreAdmin
		if body.Role != "" {
			switch models.UserRole(body.Role) {
			case models.RoleStoreAdmin, models.RoleStoreStaff:
				role = models.UserRole(body.Role)
			default:
				return fiber.NewError(fiber.StatusBadRequest, "Role must be store_admin or store_staff")
			}
		}

		hash, err := bcrypt.GenerateFromPassword([]byte(body.Password), bcrypt.DefaultCost)
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Could not hash password")
		}

		storeID := store.ID
		user := models.User{
			StoreID:      &storeID,
			Name:         body.Name,
			Email:        body.Email,
			PasswordHash: string(hash),
			Role:         role,
		}
		if err := db.Create(&user).Error; err != nil {
			return fiber.NewError(fiber.StatusConflict, "User could not be created, is the email already in use?")
		}

		return c.Status(fiber.StatusCreated).JSON(fiber.Map{
			"id":       user.ID,
			"name":     user.Name,
			"email":    user.Email,
			"role":     user.Role,
			"store_id": user.StoreID,
		})
	}
}

// GET /api/admin/stores/:id/users
func ListStoreUsersHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := strconv.ParseUint(c.Params("id"), 10, 32)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Invalid store id")
		}

		var users []models.User
		if err := database.DB.WithContext(c.UserContext()).
			Where("store_id = ?", uint(id)).Find(&users).Error; err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Users could not be listed")
		}

		res := make([]fiber.Map, 0, len(users))
		for _, u := range users {
			res = append(res, fiber.Map{
				"id":    u.ID,
				"name":  u.Name,
				"email": u.Email,
				"role":  u.Role,
			})
		}

		return c.JSON(res)
	}
}
