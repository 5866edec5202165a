package rbac

import (
	"context"

	"github.com/eatthat/eatthat/internal/tenant"
)

// RoleQuery selects a role by name or by id. Exactly one field is set.
type RoleQuery struct {
	Name string
	ID   int64
}

// CreateRoleParams carries the columns written for a new role. Restaurant
// fields are nil for global roles.
type CreateRoleParams struct {
	Name           string
	UUID           string
	RestaurantID   *int64
	RestaurantUUID *string
}

// Repository defines persistence operations for the RBAC tables and their
// pivots. Role reads are tenant-scoped: a row is visible when its
// restaurant id is NULL or inside the scope's visible set.
type Repository interface {
	PermissionsWithRoles(ctx context.Context) ([]Permission, error)
	CreatePermission(ctx context.Context, name, uuid string) (Permission, error)
	FindPermissionByName(ctx context.Context, name string) (Permission, error)
	SoftDeletePermission(ctx context.Context, id int64) error

	ListPermissions(ctx context.Context, limit, offset int) ([]Permission, int, error)

	FindRole(ctx context.Context, scope tenant.Scope, q RoleQuery) (Role, error)
	CreateRole(ctx context.Context, params CreateRoleParams) (Role, error)
	SoftDeleteRole(ctx context.Context, id int64) error
	ListRoles(ctx context.Context, scope tenant.Scope, limit, offset int) ([]Role, int, error)

	AttachPermissionToRole(ctx context.Context, role Role, perm Permission) error
	DetachPermissionFromRole(ctx context.Context, roleID, permissionID int64) error

	UserRoles(ctx context.Context, scope tenant.Scope, userID int64) ([]Role, error)
	UpsertUserRoles(ctx context.Context, userID int64, grants []UserRoleGrant) error
	SoftDeleteUserRole(ctx context.Context, userID, roleID int64) error

	UserDirectPermissions(ctx context.Context, scope tenant.Scope, userID int64) ([]Permission, error)
	UpsertUserPermissions(ctx context.Context, userID int64, grants []UserPermissionGrant) error
	SoftDeleteUserPermission(ctx context.Context, userID, permissionID int64) error

	// UserRolePermissionsInRestaurant loads the user's roles whose pivot is
	// stamped with the given restaurant, each carrying at most the one
	// permission identified by permissionID.
	UserRolePermissionsInRestaurant(ctx context.Context, userID, restaurantID, permissionID int64) ([]Role, error)
}
