package auth

import "stockroom-backend/internal/models"

// CanActForStore is the single store-authority rule consumed by approval,
// confirmation and direct transfers alike: tenant super admins act for any
// store in their tenant, everyone else only for the store they belong to.
func CanActForStore(u *models.User, storeID uint) bool {
	if u == nil {
		return false
	}
	if u.Role == models.RoleSuperAdmin {
		return true
	}
	return u.StoreID != nil && *u.StoreID == storeID
}

// HasAnyPermission passes when the user holds at least one of the required
// permissions, or the global manage-all permission.
func HasAnyPermission(u *models.User, required ...models.Permission) bool {
	if u == nil {
		return false
	}
	held := models.RolePermissions[u.Role]
	for _, h := range held {
		if h == models.PermManageAll {
			return true
		}
	}
	for _, r := range required {
		for _, h := range held {
			if h == r {
				return true
			}
		}
	}
	return len(required) == 0
}
