// Package users manages user accounts and their RBAC member capability.
package users

import (
	"time"

	"github.com/eatthat/eatthat/internal/rbac"
)

// User represents a user account. The role and direct permission relations
// are loaded on demand by the rbac service and cached on the struct for the
// rest of the request.
type User struct {
	ID           int64
	UUID         string
	Email        string
	Name         string
	PasswordHash string
	IsActive     bool
	CreatedAt    time.Time
	UpdatedAt    time.Time

	roles       []rbac.Role
	rolesLoaded bool

	permissions       []rbac.Permission
	permissionsLoaded bool
}

var _ rbac.Member = (*User)(nil)

// HolderID implements rbac.RoleHolder.
func (u *User) HolderID() int64 { return u.ID }

// HolderUUID implements rbac.RoleHolder.
func (u *User) HolderUUID() string { return u.UUID }

// HeldRoles reports the loaded roles relation.
func (u *User) HeldRoles() ([]rbac.Role, bool) { return u.roles, u.rolesLoaded }

// SetHeldRoles replaces the loaded roles relation.
func (u *User) SetHeldRoles(roles []rbac.Role) {
	u.roles = roles
	u.rolesLoaded = true
}

// DirectPermissions reports the loaded direct permission grants.
func (u *User) DirectPermissions() ([]rbac.Permission, bool) {
	return u.permissions, u.permissionsLoaded
}

// SetDirectPermissions replaces the loaded direct permission grants.
func (u *User) SetDirectPermissions(perms []rbac.Permission) {
	u.permissions = perms
	u.permissionsLoaded = true
}
