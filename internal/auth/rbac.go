package auth

import (
	"errors"
)

var (
	ErrUnauthorized = errors.New("unauthorized: insufficient permissions")
)

// Role definitions
const (
	RoleAdmin  = "admin"
	RoleBridge = "bridge"
	RoleViewer = "viewer"
)

// Permission definitions
const (
	PermissionDeleteFiles = "files:delete"
	PermissionReadFiles   = "files:read"
	PermissionViewEvents  = "events:read"
)

// RolePermissions maps roles to their allowed permissions
var RolePermissions = map[string][]string{
	RoleAdmin: {
		PermissionDeleteFiles,
		PermissionReadFiles,
		PermissionViewEvents,
	},
	RoleBridge: {
		PermissionDeleteFiles,
		PermissionReadFiles,
	},
	RoleViewer: {
		PermissionReadFiles,
		PermissionViewEvents,
	},
}

// HasPermission checks if user roles include the required permission
func HasPermission(userRoles []string, requiredPermission string) bool {
	for _, role := range userRoles {
		for _, perm := range RolePermissions[role] {
			if perm == requiredPermission {
				return true
			}
		}
	}
	return false
}

// RequirePermission returns a check for one permission
func RequirePermission(permission string) func(*Claims) error {
	return func(claims *Claims) error {
		if claims == nil || !HasPermission(claims.Roles, permission) {
			return ErrUnauthorized
		}
		return nil
	}
}
