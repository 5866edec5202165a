package rbac

import (
	"errors"
	"fmt"
)

// ErrNotFound indicates that the requested record does not exist in the
// current tenant scope. A role that exists under a different restaurant is
// reported the same way, so callers cannot distinguish cross-tenant rows
// from absent ones.
var ErrNotFound = errors.New("rbac: not found")

// RoleNotFoundError reports a failed role lookup together with the key used.
type RoleNotFoundError struct {
	Name string
	ID   int64
}

func (e RoleNotFoundError) Error() string {
	if e.Name != "" {
		return fmt.Sprintf("rbac: role %q not found", e.Name)
	}
	return fmt.Sprintf("rbac: role %d not found", e.ID)
}

func (e RoleNotFoundError) Unwrap() error { return ErrNotFound }

// PermissionNotFoundError reports a failed permission lookup.
type PermissionNotFoundError struct {
	Name string
	ID   int64
}

func (e PermissionNotFoundError) Error() string {
	if e.Name != "" {
		return fmt.Sprintf("rbac: permission %q not found", e.Name)
	}
	return fmt.Sprintf("rbac: permission %d not found", e.ID)
}

func (e PermissionNotFoundError) Unwrap() error { return ErrNotFound }
