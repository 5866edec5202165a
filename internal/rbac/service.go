package rbac

import (
	"context"
	"errors"
	"log/slog"
	"strconv"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/eatthat/eatthat/internal/shared"
	"github.com/eatthat/eatthat/internal/tenant"
)

const uniqueViolation = "23505"

// Service orchestrates RBAC operations: lookups, role/permission lifecycle,
// holder assignment and querying. Every mutation of the role or permission
// tables invalidates the shared snapshot before returning.
type Service struct {
	repo     Repository
	registry *Registry
	audit    *shared.AuditLogger
	logger   *slog.Logger
}

// NewService constructs a Service. The audit logger may be nil.
func NewService(repo Repository, registry *Registry, audit *shared.AuditLogger, logger *slog.Logger) *Service {
	return &Service{repo: repo, registry: registry, audit: audit, logger: logger}
}

// Registry exposes the permission registry, e.g. for cache warmup jobs.
func (s *Service) Registry() *Registry {
	return s.registry
}

// FindRoleByName resolves a role inside the tenant scope.
func (s *Service) FindRoleByName(ctx context.Context, scope tenant.Scope, name string) (Role, error) {
	return s.repo.FindRole(ctx, scope, RoleQuery{Name: name})
}

// FindRoleByID resolves a role inside the tenant scope.
func (s *Service) FindRoleByID(ctx context.Context, scope tenant.Scope, id int64) (Role, error) {
	return s.repo.FindRole(ctx, scope, RoleQuery{ID: id})
}

// FindOrCreateRole returns the scoped role with the given name, creating it
// stamped with the scope's restaurant when absent. Safe to race: the loser
// of a concurrent insert re-reads the winner's row.
func (s *Service) FindOrCreateRole(ctx context.Context, scope tenant.Scope, name string) (Role, error) {
	role, err := s.repo.FindRole(ctx, scope, RoleQuery{Name: name})
	if err == nil {
		return role, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return Role{}, err
	}
	role, err = s.CreateRole(ctx, scope, name)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return s.repo.FindRole(ctx, scope, RoleQuery{Name: name})
		}
		return Role{}, err
	}
	return role, nil
}

// CreateRole inserts a role stamped with the active tenant (global when the
// scope is empty) and invalidates the snapshot.
func (s *Service) CreateRole(ctx context.Context, scope tenant.Scope, name string) (Role, error) {
	params := CreateRoleParams{Name: name, UUID: uuid.NewString()}
	if scope.Active() {
		id := scope.RestaurantID
		params.RestaurantID = &id
		if scope.RestaurantUUID != "" {
			ru := scope.RestaurantUUID
			params.RestaurantUUID = &ru
		}
	}
	role, err := s.repo.CreateRole(ctx, params)
	if err != nil {
		return Role{}, err
	}
	if err := s.registry.ForgetCachedPermissions(ctx); err != nil {
		return Role{}, err
	}
	return role, nil
}

// DeleteRole soft-deletes a role and invalidates the snapshot.
func (s *Service) DeleteRole(ctx context.Context, id int64) error {
	if err := s.repo.SoftDeleteRole(ctx, id); err != nil {
		return err
	}
	return s.registry.ForgetCachedPermissions(ctx)
}

// FindOrCreatePermission returns the permission with the given name,
// creating it when absent. Permissions are global, never tenant-stamped.
func (s *Service) FindOrCreatePermission(ctx context.Context, name string) (Permission, error) {
	perm, err := s.registry.FindPermissionByName(ctx, name)
	if err == nil {
		return perm, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return Permission{}, err
	}
	perm, err = s.CreatePermission(ctx, name)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return s.repo.FindPermissionByName(ctx, name)
		}
		return Permission{}, err
	}
	return perm, nil
}

// CreatePermission inserts a permission and invalidates the snapshot.
func (s *Service) CreatePermission(ctx context.Context, name string) (Permission, error) {
	perm, err := s.repo.CreatePermission(ctx, name, uuid.NewString())
	if err != nil {
		return Permission{}, err
	}
	if err := s.registry.ForgetCachedPermissions(ctx); err != nil {
		return Permission{}, err
	}
	return perm, nil
}

// DeletePermission soft-deletes a permission and invalidates the snapshot.
func (s *Service) DeletePermission(ctx context.Context, id int64) error {
	if err := s.repo.SoftDeletePermission(ctx, id); err != nil {
		return err
	}
	return s.registry.ForgetCachedPermissions(ctx)
}

// AttachPermission links a permission to a role and invalidates the
// snapshot, which embeds role links.
func (s *Service) AttachPermission(ctx context.Context, role Role, ref PermissionRef) error {
	perm, err := s.ResolvePermission(ctx, ref)
	if err != nil {
		return err
	}
	if err := s.repo.AttachPermissionToRole(ctx, role, perm); err != nil {
		return err
	}
	return s.registry.ForgetCachedPermissions(ctx)
}

// RevokePermissionFromRole soft-deletes the role/permission link and
// invalidates the snapshot.
func (s *Service) RevokePermissionFromRole(ctx context.Context, roleID, permissionID int64) error {
	if err := s.repo.DetachPermissionFromRole(ctx, roleID, permissionID); err != nil {
		return err
	}
	return s.registry.ForgetCachedPermissions(ctx)
}

// ListRoles pages through roles visible to the scope.
func (s *Service) ListRoles(ctx context.Context, scope tenant.Scope, page, perPage int) ([]Role, shared.Pagination, error) {
	if perPage <= 0 {
		perPage = 20
	}
	if page <= 0 {
		page = 1
	}
	roles, total, err := s.repo.ListRoles(ctx, scope, perPage, (page-1)*perPage)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	return roles, shared.NewPagination(page, perPage, total), nil
}

// ListPermissions pages through the permission catalog.
func (s *Service) ListPermissions(ctx context.Context, page, perPage int) ([]Permission, shared.Pagination, error) {
	if perPage <= 0 {
		perPage = 20
	}
	if page <= 0 {
		page = 1
	}
	perms, total, err := s.repo.ListPermissions(ctx, perPage, (page-1)*perPage)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	return perms, shared.NewPagination(page, perPage, total), nil
}

// ResolvePermission turns a PermissionRef into a canonical entity via the
// registry.
func (s *Service) ResolvePermission(ctx context.Context, ref PermissionRef) (Permission, error) {
	switch ref.kind {
	case refByName:
		return s.registry.FindPermissionByName(ctx, ref.name)
	case refByID:
		return s.registry.FindPermissionByID(ctx, ref.id)
	case refByEntity:
		return ref.perm, nil
	default:
		return Permission{}, PermissionNotFoundError{}
	}
}

// resolveRoles turns references into entities, aborting on the first lookup
// failure so a partially resolvable assignment never half-applies.
func (s *Service) resolveRoles(ctx context.Context, scope tenant.Scope, refs ...RoleRef) ([]Role, error) {
	criteria := normalizeRoleRef(refs...)
	roles := make([]Role, 0, len(criteria.names)+len(criteria.ids))
	for _, name := range criteria.names {
		role, err := s.repo.FindRole(ctx, scope, RoleQuery{Name: name})
		if err != nil {
			return nil, err
		}
		roles = append(roles, role)
	}
	for _, id := range criteria.ids {
		role, err := s.repo.FindRole(ctx, scope, RoleQuery{ID: id})
		if err != nil {
			return nil, err
		}
		roles = append(roles, role)
	}
	return roles, nil
}

// AssignRoles attaches the referenced roles to the holder, stamping each
// pivot with the active tenant, then reloads the relation so later checks in
// the same request see the change. Existing assignments stay untouched.
func (s *Service) AssignRoles(ctx context.Context, scope tenant.Scope, holder RoleHolder, refs ...RoleRef) error {
	roles, err := s.resolveRoles(ctx, scope, refs...)
	if err != nil {
		return err
	}
	grants := make([]UserRoleGrant, 0, len(roles))
	for _, role := range roles {
		grant := UserRoleGrant{
			RoleID:   role.ID,
			RoleUUID: role.UUID,
			UserUUID: holder.HolderUUID(),
		}
		if scope.Active() {
			id := scope.RestaurantID
			grant.RestaurantID = &id
			if scope.RestaurantUUID != "" {
				ru := scope.RestaurantUUID
				grant.RestaurantUUID = &ru
			}
		}
		grants = append(grants, grant)
	}
	if err := s.repo.UpsertUserRoles(ctx, holder.HolderID(), grants); err != nil {
		return err
	}
	s.recordAudit(ctx, holder.HolderID(), "rbac.role.assign", roles)
	return s.LoadRoles(ctx, scope, holder)
}

// RemoveRole revokes a role by soft-deleting the pivot, preserving the
// assignment history, then reloads the relation.
func (s *Service) RemoveRole(ctx context.Context, scope tenant.Scope, holder RoleHolder, ref RoleRef) error {
	roles, err := s.resolveRoles(ctx, scope, ref)
	if err != nil {
		return err
	}
	for _, role := range roles {
		if err := s.repo.SoftDeleteUserRole(ctx, holder.HolderID(), role.ID); err != nil {
			return err
		}
	}
	s.recordAudit(ctx, holder.HolderID(), "rbac.role.remove", roles)
	return s.LoadRoles(ctx, scope, holder)
}

// LoadRoles replaces the holder's loaded roles relation from storage.
func (s *Service) LoadRoles(ctx context.Context, scope tenant.Scope, holder RoleHolder) error {
	roles, err := s.repo.UserRoles(ctx, scope, holder.HolderID())
	if err != nil {
		return err
	}
	holder.SetHeldRoles(roles)
	return nil
}

func (s *Service) loadMissingRoles(ctx context.Context, scope tenant.Scope, holder RoleHolder) ([]Role, error) {
	if roles, ok := holder.HeldRoles(); ok {
		return roles, nil
	}
	if err := s.LoadRoles(ctx, scope, holder); err != nil {
		return nil, err
	}
	roles, _ := holder.HeldRoles()
	return roles, nil
}

// HasRole reports whether the holder has any of the referenced roles.
// Already-loaded roles are reused, not re-queried.
func (s *Service) HasRole(ctx context.Context, scope tenant.Scope, holder RoleHolder, refs ...RoleRef) (bool, error) {
	roles, err := s.loadMissingRoles(ctx, scope, holder)
	if err != nil {
		return false, err
	}
	return ContainsRole(roles, refs...), nil
}

// HasAllRoles reports whether the holder has every referenced role.
func (s *Service) HasAllRoles(ctx context.Context, scope tenant.Scope, holder RoleHolder, refs ...RoleRef) (bool, error) {
	roles, err := s.loadMissingRoles(ctx, scope, holder)
	if err != nil {
		return false, err
	}
	return ContainsAllRoles(roles, refs...), nil
}

// HasExactRoles reports whether the holder's roles equal the referenced set.
func (s *Service) HasExactRoles(ctx context.Context, scope tenant.Scope, holder RoleHolder, refs ...RoleRef) (bool, error) {
	roles, err := s.loadMissingRoles(ctx, scope, holder)
	if err != nil {
		return false, err
	}
	return EqualsRoleSet(roles, refs...), nil
}

// GrantPermissions attaches direct permission grants stamped with the active
// tenant, then reloads the relation.
func (s *Service) GrantPermissions(ctx context.Context, scope tenant.Scope, holder PermissionHolder, refs ...PermissionRef) error {
	grants := make([]UserPermissionGrant, 0, len(refs))
	for _, ref := range refs {
		perm, err := s.ResolvePermission(ctx, ref)
		if err != nil {
			return err
		}
		grant := UserPermissionGrant{
			PermissionID:   perm.ID,
			PermissionUUID: perm.UUID,
			UserUUID:       holder.HolderUUID(),
		}
		if scope.Active() {
			id := scope.RestaurantID
			grant.RestaurantID = &id
			if scope.RestaurantUUID != "" {
				ru := scope.RestaurantUUID
				grant.RestaurantUUID = &ru
			}
		}
		grants = append(grants, grant)
	}
	if err := s.repo.UpsertUserPermissions(ctx, holder.HolderID(), grants); err != nil {
		return err
	}
	return s.LoadDirectPermissions(ctx, scope, holder)
}

// RevokeDirectPermission soft-deletes a direct grant, then reloads.
func (s *Service) RevokeDirectPermission(ctx context.Context, scope tenant.Scope, holder PermissionHolder, ref PermissionRef) error {
	perm, err := s.ResolvePermission(ctx, ref)
	if err != nil {
		return err
	}
	if err := s.repo.SoftDeleteUserPermission(ctx, holder.HolderID(), perm.ID); err != nil {
		return err
	}
	return s.LoadDirectPermissions(ctx, scope, holder)
}

// LoadDirectPermissions replaces the holder's loaded direct permissions.
func (s *Service) LoadDirectPermissions(ctx context.Context, scope tenant.Scope, holder PermissionHolder) error {
	perms, err := s.repo.UserDirectPermissions(ctx, scope, holder.HolderID())
	if err != nil {
		return err
	}
	holder.SetDirectPermissions(perms)
	return nil
}

func (s *Service) loadMissingDirect(ctx context.Context, scope tenant.Scope, holder PermissionHolder) ([]Permission, error) {
	if perms, ok := holder.DirectPermissions(); ok {
		return perms, nil
	}
	if err := s.LoadDirectPermissions(ctx, scope, holder); err != nil {
		return nil, err
	}
	perms, _ := holder.DirectPermissions()
	return perms, nil
}

// HasDirectPermission reports whether the permission was granted straight to
// the holder. Lookup failure propagates; a missing grant is a normal false.
func (s *Service) HasDirectPermission(ctx context.Context, scope tenant.Scope, holder PermissionHolder, ref PermissionRef) (bool, error) {
	perm, err := s.ResolvePermission(ctx, ref)
	if err != nil {
		return false, err
	}
	perms, err := s.loadMissingDirect(ctx, scope, holder)
	if err != nil {
		return false, err
	}
	return ContainsPermission(perms, perm.ID), nil
}

// HasPermissionTo reports whether the member holds the permission directly
// or through any of its roles.
func (s *Service) HasPermissionTo(ctx context.Context, scope tenant.Scope, member Member, ref PermissionRef) (bool, error) {
	perm, err := s.ResolvePermission(ctx, ref)
	if err != nil {
		return false, err
	}
	direct, err := s.HasDirectPermission(ctx, scope, member, PermissionEntity(perm))
	if err != nil {
		return false, err
	}
	if direct {
		return true, nil
	}
	if len(perm.Roles) == 0 {
		return false, nil
	}
	viaRole := make([]RoleRef, 0, len(perm.Roles))
	for _, role := range perm.Roles {
		viaRole = append(viaRole, RoleEntity(role))
	}
	return s.HasRole(ctx, scope, member, viaRole...)
}

// PermissionsViaRoles lists permissions inherited through the holder's
// roles, resolved against the registry's role linkage.
func (s *Service) PermissionsViaRoles(ctx context.Context, scope tenant.Scope, holder RoleHolder) ([]Permission, error) {
	roles, err := s.loadMissingRoles(ctx, scope, holder)
	if err != nil {
		return nil, err
	}
	all, err := s.registry.GetPermissions(ctx, nil, false)
	if err != nil {
		return nil, err
	}
	held := make(map[int64]struct{}, len(roles))
	for _, role := range roles {
		held[role.ID] = struct{}{}
	}
	var inherited []Permission
	for _, perm := range all {
		for _, role := range perm.Roles {
			if _, ok := held[role.ID]; ok {
				inherited = append(inherited, perm)
				break
			}
		}
	}
	return DedupSortPermissions(inherited), nil
}

// AllPermissions returns the union of direct and role-derived permissions,
// deduplicated and name-ordered for deterministic comparisons.
func (s *Service) AllPermissions(ctx context.Context, scope tenant.Scope, member Member) ([]Permission, error) {
	direct, err := s.loadMissingDirect(ctx, scope, member)
	if err != nil {
		return nil, err
	}
	inherited, err := s.PermissionsViaRoles(ctx, scope, member)
	if err != nil {
		return nil, err
	}
	return DedupSortPermissions(append(append([]Permission{}, direct...), inherited...)), nil
}

func (s *Service) recordAudit(ctx context.Context, userID int64, action string, roles []Role) {
	if s.audit == nil {
		return
	}
	log := shared.AuditLog{
		ActorID:  userID,
		Action:   action,
		Entity:   "user",
		EntityID: strconv.FormatInt(userID, 10),
		Meta:     map[string]any{"roles": RoleNames(roles)},
	}
	if err := s.audit.Record(ctx, log); err != nil && s.logger != nil {
		s.logger.Warn("rbac audit record", slog.Any("error", err))
	}
}
