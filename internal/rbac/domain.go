// Package rbac implements restaurant-scoped role based access control:
// role and permission entities, the cached permission registry, holder
// capabilities and the gate evaluator consumed by route guards.
package rbac

import "time"

// Permission is an atomic capability. Permissions are global; only their
// grants (direct or through roles) are restaurant-scoped.
type Permission struct {
	ID        int64
	UUID      string
	Name      string
	CreatedAt time.Time
	UpdatedAt time.Time

	// Roles carries the roles linked to this permission when loaded through
	// the registry snapshot or an eager join.
	Roles []Role
}

// Role groups permissions. RestaurantID is nil for global roles such as
// "admin" and set for roles that exist inside a single restaurant.
type Role struct {
	ID             int64
	UUID           string
	Name           string
	RestaurantID   *int64
	RestaurantUUID *string
	CreatedAt      time.Time
	UpdatedAt      time.Time

	// Permissions is populated when the role is loaded with its linked
	// permissions.
	Permissions []Permission
}

// Global reports whether the role is restaurant-independent.
func (r Role) Global() bool {
	return r.RestaurantID == nil
}

// UserRoleGrant is the pivot row written when a role is assigned to a user.
// The restaurant columns record the tenant scope active at assignment time.
type UserRoleGrant struct {
	RoleID         int64
	RoleUUID       string
	UserUUID       string
	RestaurantID   *int64
	RestaurantUUID *string
}

// UserPermissionGrant is the pivot row for a direct permission grant. Direct
// grants are always restaurant-scoped even though permissions are global.
type UserPermissionGrant struct {
	PermissionID   int64
	PermissionUUID string
	UserUUID       string
	RestaurantID   *int64
	RestaurantUUID *string
}

// RoleHolder is implemented by entities that can be assigned roles.
// HeldRoles reports the loaded relation; implementations must not query.
type RoleHolder interface {
	HolderID() int64
	HolderUUID() string
	HeldRoles() ([]Role, bool)
	SetHeldRoles([]Role)
}

// PermissionHolder is implemented by entities that can receive direct
// permission grants.
type PermissionHolder interface {
	HolderID() int64
	HolderUUID() string
	DirectPermissions() ([]Permission, bool)
	SetDirectPermissions([]Permission)
}

// Member combines both holder capabilities. Users satisfy it.
type Member interface {
	RoleHolder
	PermissionHolder
}
