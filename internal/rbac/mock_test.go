package rbac

import (
	"context"
	"sort"
	"sync"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/eatthat/eatthat/internal/tenant"
)

// mockRepository is an in-memory Repository mirroring the SQL semantics:
// tenant-filtered role reads, pivot revival on upsert, soft deletes modeled
// as row removal.
type mockRepository struct {
	mu sync.Mutex

	permissions map[int64]Permission
	roles       map[int64]Role
	rolePerms   map[int64]map[int64]struct{}
	userRoles   map[int64]map[int64]UserRoleGrant
	userPerms   map[int64]map[int64]UserPermissionGrant

	nextPermissionID int64
	nextRoleID       int64

	permissionsWithRolesCalls int
	permissionsWithRolesErr   error
	findRoleErr               error
	// findRoleMisses forces that many NotFound results before real lookups
	// resume, simulating a concurrent writer winning the insert race.
	findRoleMisses int
}

func newMockRepository() *mockRepository {
	return &mockRepository{
		permissions:      make(map[int64]Permission),
		roles:            make(map[int64]Role),
		rolePerms:        make(map[int64]map[int64]struct{}),
		userRoles:        make(map[int64]map[int64]UserRoleGrant),
		userPerms:        make(map[int64]map[int64]UserPermissionGrant),
		nextPermissionID: 1,
		nextRoleID:       1,
	}
}

func uniqueViolationErr() error {
	return &pgconn.PgError{Code: uniqueViolation, Message: "duplicate key value violates unique constraint"}
}

func (m *mockRepository) PermissionsWithRoles(ctx context.Context) ([]Permission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.permissionsWithRolesCalls++
	if m.permissionsWithRolesErr != nil {
		return nil, m.permissionsWithRolesErr
	}
	perms := []Permission{}
	ids := sortedKeys(m.permissions)
	for _, id := range ids {
		perm := m.permissions[id]
		perm.Roles = nil
		for roleID := range m.rolePerms {
			if _, ok := m.rolePerms[roleID][id]; !ok {
				continue
			}
			if role, ok := m.roles[roleID]; ok {
				perm.Roles = append(perm.Roles, role)
			}
		}
		sort.Slice(perm.Roles, func(i, j int) bool { return perm.Roles[i].ID < perm.Roles[j].ID })
		perms = append(perms, perm)
	}
	return perms, nil
}

func (m *mockRepository) CreatePermission(ctx context.Context, name, uuid string) (Permission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, perm := range m.permissions {
		if perm.Name == name {
			return Permission{}, uniqueViolationErr()
		}
	}
	perm := Permission{ID: m.nextPermissionID, UUID: uuid, Name: name}
	m.nextPermissionID++
	m.permissions[perm.ID] = perm
	return perm, nil
}

func (m *mockRepository) FindPermissionByName(ctx context.Context, name string) (Permission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, perm := range m.permissions {
		if perm.Name == name {
			return perm, nil
		}
	}
	return Permission{}, PermissionNotFoundError{Name: name}
}

func (m *mockRepository) SoftDeletePermission(ctx context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.permissions[id]; !ok {
		return PermissionNotFoundError{ID: id}
	}
	delete(m.permissions, id)
	return nil
}

func (m *mockRepository) ListPermissions(ctx context.Context, limit, offset int) ([]Permission, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	all := []Permission{}
	for _, id := range sortedKeys(m.permissions) {
		all = append(all, m.permissions[id])
	}
	sort.Slice(all, func(i, j int) bool { return all[i].Name < all[j].Name })
	total := len(all)
	if offset >= len(all) {
		return []Permission{}, total, nil
	}
	all = all[offset:]
	if limit < len(all) {
		all = all[:limit]
	}
	return all, total, nil
}

func roleVisible(role Role, ids []int64) bool {
	if role.RestaurantID == nil {
		return true
	}
	for _, id := range ids {
		if *role.RestaurantID == id {
			return true
		}
	}
	return false
}

func (m *mockRepository) FindRole(ctx context.Context, scope tenant.Scope, q RoleQuery) (Role, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.findRoleErr != nil {
		return Role{}, m.findRoleErr
	}
	if m.findRoleMisses > 0 {
		m.findRoleMisses--
		return Role{}, RoleNotFoundError{Name: q.Name, ID: q.ID}
	}
	ids := visibleIDs(scope)
	for _, id := range sortedKeys(m.roles) {
		role := m.roles[id]
		if q.Name != "" && role.Name != q.Name {
			continue
		}
		if q.Name == "" && role.ID != q.ID {
			continue
		}
		if !roleVisible(role, ids) {
			continue
		}
		return role, nil
	}
	return Role{}, RoleNotFoundError{Name: q.Name, ID: q.ID}
}

func (m *mockRepository) CreateRole(ctx context.Context, params CreateRoleParams) (Role, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, role := range m.roles {
		if role.Name != params.Name {
			continue
		}
		sameTenant := role.RestaurantID == nil && params.RestaurantID == nil ||
			role.RestaurantID != nil && params.RestaurantID != nil && *role.RestaurantID == *params.RestaurantID
		if sameTenant {
			return Role{}, uniqueViolationErr()
		}
	}
	role := Role{
		ID:             m.nextRoleID,
		UUID:           params.UUID,
		Name:           params.Name,
		RestaurantID:   params.RestaurantID,
		RestaurantUUID: params.RestaurantUUID,
	}
	m.nextRoleID++
	m.roles[role.ID] = role
	return role, nil
}

func (m *mockRepository) SoftDeleteRole(ctx context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.roles[id]; !ok {
		return RoleNotFoundError{ID: id}
	}
	delete(m.roles, id)
	return nil
}

func (m *mockRepository) ListRoles(ctx context.Context, scope tenant.Scope, limit, offset int) ([]Role, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := visibleIDs(scope)
	all := []Role{}
	for _, id := range sortedKeys(m.roles) {
		role := m.roles[id]
		if roleVisible(role, ids) {
			all = append(all, role)
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].Name < all[j].Name })
	total := len(all)
	if offset >= len(all) {
		return []Role{}, total, nil
	}
	all = all[offset:]
	if limit < len(all) {
		all = all[:limit]
	}
	return all, total, nil
}

func (m *mockRepository) AttachPermissionToRole(ctx context.Context, role Role, perm Permission) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.rolePerms[role.ID] == nil {
		m.rolePerms[role.ID] = make(map[int64]struct{})
	}
	m.rolePerms[role.ID][perm.ID] = struct{}{}
	return nil
}

func (m *mockRepository) DetachPermissionFromRole(ctx context.Context, roleID, permissionID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if perms, ok := m.rolePerms[roleID]; ok {
		delete(perms, permissionID)
	}
	return nil
}

func (m *mockRepository) UserRoles(ctx context.Context, scope tenant.Scope, userID int64) ([]Role, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := visibleIDs(scope)
	roles := []Role{}
	for _, roleID := range sortedKeys(m.userRoles[userID]) {
		grant := m.userRoles[userID][roleID]
		role, ok := m.roles[roleID]
		if !ok || !roleVisible(role, ids) {
			continue
		}
		if len(ids) > 0 {
			if grant.RestaurantID == nil || !containsID(ids, *grant.RestaurantID) {
				continue
			}
		}
		roles = append(roles, role)
	}
	return roles, nil
}

func (m *mockRepository) UpsertUserRoles(ctx context.Context, userID int64, grants []UserRoleGrant) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.userRoles[userID] == nil {
		m.userRoles[userID] = make(map[int64]UserRoleGrant)
	}
	for _, grant := range grants {
		m.userRoles[userID][grant.RoleID] = grant
	}
	return nil
}

func (m *mockRepository) SoftDeleteUserRole(ctx context.Context, userID, roleID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.userRoles[userID], roleID)
	return nil
}

func (m *mockRepository) UserDirectPermissions(ctx context.Context, scope tenant.Scope, userID int64) ([]Permission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := visibleIDs(scope)
	perms := []Permission{}
	for _, permID := range sortedKeys(m.userPerms[userID]) {
		grant := m.userPerms[userID][permID]
		perm, ok := m.permissions[permID]
		if !ok {
			continue
		}
		if grant.RestaurantID == nil || !containsID(ids, *grant.RestaurantID) {
			continue
		}
		perms = append(perms, perm)
	}
	return perms, nil
}

func (m *mockRepository) UpsertUserPermissions(ctx context.Context, userID int64, grants []UserPermissionGrant) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.userPerms[userID] == nil {
		m.userPerms[userID] = make(map[int64]UserPermissionGrant)
	}
	for _, grant := range grants {
		m.userPerms[userID][grant.PermissionID] = grant
	}
	return nil
}

func (m *mockRepository) SoftDeleteUserPermission(ctx context.Context, userID, permissionID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.userPerms[userID], permissionID)
	return nil
}

func (m *mockRepository) UserRolePermissionsInRestaurant(ctx context.Context, userID, restaurantID, permissionID int64) ([]Role, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	roles := []Role{}
	for _, roleID := range sortedKeys(m.userRoles[userID]) {
		grant := m.userRoles[userID][roleID]
		if grant.RestaurantID == nil || *grant.RestaurantID != restaurantID {
			continue
		}
		role, ok := m.roles[roleID]
		if !ok {
			continue
		}
		if _, linked := m.rolePerms[roleID][permissionID]; linked {
			if perm, ok := m.permissions[permissionID]; ok {
				role.Permissions = []Permission{perm}
			}
		}
		roles = append(roles, role)
	}
	return roles, nil
}

var _ Repository = (*mockRepository)(nil)

func sortedKeys[V any](m map[int64]V) []int64 {
	keys := make([]int64, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

func containsID(ids []int64, id int64) bool {
	for _, candidate := range ids {
		if candidate == id {
			return true
		}
	}
	return false
}

// testMember is a minimal Member implementation mirroring how users carry
// their loaded relations.
type testMember struct {
	id   int64
	uuid string

	roles       []Role
	rolesLoaded bool

	perms       []Permission
	permsLoaded bool
}

func (u *testMember) HolderID() int64    { return u.id }
func (u *testMember) HolderUUID() string { return u.uuid }

func (u *testMember) HeldRoles() ([]Role, bool) { return u.roles, u.rolesLoaded }

func (u *testMember) SetHeldRoles(roles []Role) {
	u.roles = roles
	u.rolesLoaded = true
}

func (u *testMember) DirectPermissions() ([]Permission, bool) { return u.perms, u.permsLoaded }

func (u *testMember) SetDirectPermissions(perms []Permission) {
	u.perms = perms
	u.permsLoaded = true
}
