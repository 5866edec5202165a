package rbac

import "strings"

type refKind int

const (
	refByName refKind = iota
	refByID
	refByEntity
	refByList
)

// RoleRef names one or more roles at the API boundary. Callers construct it
// through RoleNamed, RoleWithID, RoleEntity or Roles; matching logic only
// ever sees the normalized criteria.
type RoleRef struct {
	kind refKind
	name string
	id   int64
	role Role
	list []RoleRef
}

// RoleNamed references roles by name. Pipe-delimited strings ("admin|owner")
// reference several roles; see SplitPipe for the quoting rule.
func RoleNamed(name string) RoleRef { return RoleRef{kind: refByName, name: name} }

// RoleWithID references a role by primary id.
func RoleWithID(id int64) RoleRef { return RoleRef{kind: refByID, id: id} }

// RoleEntity references an already resolved role.
func RoleEntity(role Role) RoleRef { return RoleRef{kind: refByEntity, role: role} }

// Roles combines several references; a match on any member is a match.
func Roles(refs ...RoleRef) RoleRef { return RoleRef{kind: refByList, list: refs} }

// roleCriteria is the normal form every RoleRef reduces to.
type roleCriteria struct {
	names []string
	ids   []int64
}

func (c *roleCriteria) add(ref RoleRef) {
	switch ref.kind {
	case refByName:
		for _, name := range SplitPipe(ref.name) {
			if name != "" {
				c.names = append(c.names, name)
			}
		}
	case refByID:
		c.ids = append(c.ids, ref.id)
	case refByEntity:
		c.ids = append(c.ids, ref.role.ID)
	case refByList:
		for _, sub := range ref.list {
			c.add(sub)
		}
	}
}

func normalizeRoleRef(refs ...RoleRef) roleCriteria {
	var c roleCriteria
	for _, ref := range refs {
		c.add(ref)
	}
	return c
}

// SplitPipe splits a pipe-delimited role name list. A string wrapped in a
// single matching quote character at both ends is one literal name, pipes
// included; nothing else suppresses splitting. Strings of two characters or
// fewer are always a single name.
func SplitPipe(s string) []string {
	s = strings.TrimSpace(s)
	if len(s) <= 2 {
		return []string{s}
	}
	first := s[0]
	if (first == '\'' || first == '"') && s[len(s)-1] == first {
		return []string{strings.Trim(s, string(first))}
	}
	return strings.Split(s, "|")
}

// PermissionRef names a permission at the API boundary.
type PermissionRef struct {
	kind refKind
	name string
	id   int64
	perm Permission
}

// PermissionNamed references a permission by its unique name.
func PermissionNamed(name string) PermissionRef {
	return PermissionRef{kind: refByName, name: name}
}

// PermissionWithID references a permission by primary id.
func PermissionWithID(id int64) PermissionRef { return PermissionRef{kind: refByID, id: id} }

// PermissionEntity references an already resolved permission.
func PermissionEntity(perm Permission) PermissionRef {
	return PermissionRef{kind: refByEntity, perm: perm}
}
