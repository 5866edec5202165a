package rbac

import "sort"

// Pure matching helpers over loaded relations. Loading and resolution live
// on Service; everything here is a function of data already in memory.

// ContainsRole reports whether any of the referenced roles is present in the
// loaded set.
func ContainsRole(roles []Role, refs ...RoleRef) bool {
	criteria := normalizeRoleRef(refs...)
	for _, role := range roles {
		for _, name := range criteria.names {
			if role.Name == name {
				return true
			}
		}
		for _, id := range criteria.ids {
			if role.ID == id {
				return true
			}
		}
	}
	return false
}

// ContainsAllRoles reports whether every referenced role is present.
func ContainsAllRoles(roles []Role, refs ...RoleRef) bool {
	criteria := normalizeRoleRef(refs...)
	for _, name := range criteria.names {
		if !containsRoleName(roles, name) {
			return false
		}
	}
	for _, id := range criteria.ids {
		if !containsRoleID(roles, id) {
			return false
		}
	}
	return true
}

func containsRoleName(roles []Role, name string) bool {
	for _, role := range roles {
		if role.Name == name {
			return true
		}
	}
	return false
}

func containsRoleID(roles []Role, id int64) bool {
	for _, role := range roles {
		if role.ID == id {
			return true
		}
	}
	return false
}

// EqualsRoleSet reports whether the loaded set matches the referenced roles
// exactly: same members, nothing more.
func EqualsRoleSet(roles []Role, refs ...RoleRef) bool {
	criteria := normalizeRoleRef(refs...)
	if len(roles) != len(criteria.names)+len(criteria.ids) {
		return false
	}
	return ContainsAllRoles(roles, refs...)
}

// RoleNames lists the names of the loaded roles.
func RoleNames(roles []Role) []string {
	names := make([]string, 0, len(roles))
	for _, role := range roles {
		names = append(names, role.Name)
	}
	return names
}

// ContainsPermission reports whether a permission with the given id is in
// the loaded set.
func ContainsPermission(perms []Permission, id int64) bool {
	for _, perm := range perms {
		if perm.ID == id {
			return true
		}
	}
	return false
}

// DedupSortPermissions removes duplicate ids and orders by name. Downstream
// set comparisons rely on this ordering being reproducible.
func DedupSortPermissions(perms []Permission) []Permission {
	seen := make(map[int64]struct{}, len(perms))
	out := make([]Permission, 0, len(perms))
	for _, perm := range perms {
		if _, ok := seen[perm.ID]; ok {
			continue
		}
		seen[perm.ID] = struct{}{}
		out = append(out, perm)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
