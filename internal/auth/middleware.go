package auth

import (
	"fmt"
	"strings"

	"stockroom-backend/internal/config"
	"stockroom-backend/internal/database"
	"stockroom-backend/internal/models"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
)

const (
	CtxUserIDKey   = "user_id"
	CtxTenantIDKey = "tenant_id"
	CtxUserRoleKey = "user_role"
	CtxStoreIDKey  = "store_id"
)

// JWTMiddleware validates the bearer token and binds the caller's tenant
// (and store, if any) to the request context. Every persistence call made
// through c.UserContext() is tenant-filtered from here on.
func JWTMiddleware(cfg *config.Config) fiber.Handler {
	return func(c *fiber.Ctx) error {
		authHeader := c.Get("Authorization")
		if authHeader == "" {
			return fiber.NewError(fiber.StatusUnauthorized, "Authorization header is missing")
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
			return fiber.NewError(fiber.StatusUnauthorized, "Authorization format must be 'Bearer <token>'")
		}

		tokenStr := parts[1]

		token, err := jwt.ParseWithClaims(tokenStr, &JWTCustomClaims{}, func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method")
			}
			return []byte(cfg.JWTSecret), nil
		})
		if err != nil || !token.Valid {
			return fiber.NewError(fiber.StatusUnauthorized, "Invalid or expired token")
		}

		claims, ok := token.Claims.(*JWTCustomClaims)
		if !ok {
			return fiber.NewError(fiber.StatusUnauthorized, "Could not parse token claims")
		}
		if claims.TenantID == 0 {
			return fiber.NewError(fiber.StatusUnauthorized, "Token carries no tenant")
		}

		c.Locals(CtxUserIDKey, claims.UserID)
		c.Locals(CtxTenantIDKey, claims.TenantID)
		c.Locals(CtxUserRoleKey, claims.Role)
		c.Locals(CtxStoreIDKey, claims.StoreID)

		ctx := database.WithTenant(c.UserContext(), claims.TenantID)
		if claims.StoreID != nil {
			ctx = database.WithTenantStore(c.UserContext(), claims.TenantID, *claims.StoreID)
		}
		c.SetUserContext(ctx)

		return c.Next()
	}
}

func RequireRole(allowedRoles ...models.UserRole) fiber.Handler {
	return func(c *fiber.Ctx) error {
		roleVal := c.Locals(CtxUserRoleKey)
		role, ok := roleVal.(models.UserRole)
		if !ok {
			return fiber.NewError(fiber.StatusForbidden, "Could not resolve role")
		}

		for _, r := range allowedRoles {
			if r == role {
				return c.Next()
			}
		}
		return fiber.NewError(fiber.StatusForbidden, "You are not allowed to perform this action")
	}
}

// CurrentUser loads the acting user within the request's tenant scope.
func CurrentUser(c *fiber.Ctx) (*models.User, error) {
	userID, ok := c.Locals(CtxUserIDKey).(uint)
	if !ok {
		return nil, fiber.NewError(fiber.StatusUnauthorized, "Could not resolve user")
	}

	var user models.User
	if err := database.DB.WithContext(c.UserContext()).First(&user, userID).Error; err != nil {
		return nil, fiber.NewError(fiber.StatusUnauthorized, "User not found")
	}
	return &user, nil
}
