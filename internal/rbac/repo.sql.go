package rbac

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/eatthat/eatthat/internal/platform/db"
	"github.com/eatthat/eatthat/internal/tenant"
)

// PGRepository provides PostgreSQL backed persistence for the RBAC tables.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

var _ Repository = (*PGRepository)(nil)

// visibleIDs flattens the scope into the id set used by role filters. The
// active restaurant is always part of the set.
func visibleIDs(scope tenant.Scope) []int64 {
	ids := append([]int64(nil), scope.VisibleIDs...)
	if scope.RestaurantID != 0 && !scope.Sees(scope.RestaurantID) {
		ids = append(ids, scope.RestaurantID)
	}
	if ids == nil {
		ids = []int64{}
	}
	return ids
}

// PermissionsWithRoles returns every live permission with its linked roles
// eagerly joined, ordered by permission id. This is the registry's rebuild
// source.
func (r *PGRepository) PermissionsWithRoles(ctx context.Context) ([]Permission, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT p.id, p.uuid, p.name, p.created_at, p.updated_at,
		       rl.id, rl.uuid, rl.name, rl.restaurant_id, rl.restaurant_uuid
		FROM permissions p
		LEFT JOIN role_has_permissions rp ON rp.permission_id = p.id AND rp.deleted_at IS NULL
		LEFT JOIN roles rl ON rl.id = rp.role_id AND rl.deleted_at IS NULL
		WHERE p.deleted_at IS NULL
		ORDER BY p.id, rl.id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var perms []Permission
	index := make(map[int64]int)
	for rows.Next() {
		var (
			perm     Permission
			createdAt, updatedAt pgtype.Timestamptz
			roleID   pgtype.Int8
			roleUUID pgtype.Text
			roleName pgtype.Text
			restID   pgtype.Int8
			restUUID pgtype.Text
		)
		if err := rows.Scan(&perm.ID, &perm.UUID, &perm.Name, &createdAt, &updatedAt,
			&roleID, &roleUUID, &roleName, &restID, &restUUID); err != nil {
			return nil, err
		}
		perm.CreatedAt = createdAt.Time
		perm.UpdatedAt = updatedAt.Time
		pos, ok := index[perm.ID]
		if !ok {
			perms = append(perms, perm)
			pos = len(perms) - 1
			index[perm.ID] = pos
		}
		if roleID.Valid {
			role := Role{ID: roleID.Int64, UUID: roleUUID.String, Name: roleName.String}
			if restID.Valid {
				id := restID.Int64
				role.RestaurantID = &id
			}
			if restUUID.Valid {
				uuid := restUUID.String
				role.RestaurantUUID = &uuid
			}
			perms[pos].Roles = append(perms[pos].Roles, role)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if perms == nil {
		perms = []Permission{}
	}
	return perms, nil
}

// CreatePermission inserts a permission row. Name uniqueness is enforced by
// the database; callers handle the unique-violation error.
func (r *PGRepository) CreatePermission(ctx context.Context, name, uuid string) (Permission, error) {
	var perm Permission
	var createdAt, updatedAt pgtype.Timestamptz
	err := r.pool.QueryRow(ctx, `
		INSERT INTO permissions (uuid, name, created_at, updated_at)
		VALUES ($1, $2, NOW(), NOW())
		RETURNING id, uuid, name, created_at, updated_at`, uuid, name).
		Scan(&perm.ID, &perm.UUID, &perm.Name, &createdAt, &updatedAt)
	if err != nil {
		return Permission{}, err
	}
	perm.CreatedAt = createdAt.Time
	perm.UpdatedAt = updatedAt.Time
	return perm, nil
}

// FindPermissionByName reads one permission straight from the table. The
// registry is the usual read path; this exists for the idempotent
// find-or-create race where the snapshot may be mid-rebuild.
func (r *PGRepository) FindPermissionByName(ctx context.Context, name string) (Permission, error) {
	var perm Permission
	var createdAt, updatedAt pgtype.Timestamptz
	err := r.pool.QueryRow(ctx, `
		SELECT id, uuid, name, created_at, updated_at
		FROM permissions
		WHERE name = $1 AND deleted_at IS NULL`, name).
		Scan(&perm.ID, &perm.UUID, &perm.Name, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Permission{}, PermissionNotFoundError{Name: name}
		}
		return Permission{}, err
	}
	perm.CreatedAt = createdAt.Time
	perm.UpdatedAt = updatedAt.Time
	return perm, nil
}

// SoftDeletePermission marks a permission deleted. Returns ErrNotFound when
// nothing was live under that id.
func (r *PGRepository) SoftDeletePermission(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE permissions SET deleted_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND deleted_at IS NULL`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return PermissionNotFoundError{ID: id}
	}
	return nil
}

// ListPermissions pages through live permissions ordered by name, returning
// the total live count alongside.
func (r *PGRepository) ListPermissions(ctx context.Context, limit, offset int) ([]Permission, int, error) {
	var total int
	if err := r.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM permissions WHERE deleted_at IS NULL`).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.pool.Query(ctx, `
		SELECT id, uuid, name, created_at, updated_at
		FROM permissions
		WHERE deleted_at IS NULL
		ORDER BY name
		LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	perms := []Permission{}
	for rows.Next() {
		var perm Permission
		var createdAt, updatedAt pgtype.Timestamptz
		if err := rows.Scan(&perm.ID, &perm.UUID, &perm.Name, &createdAt, &updatedAt); err != nil {
			return nil, 0, err
		}
		perm.CreatedAt = createdAt.Time
		perm.UpdatedAt = updatedAt.Time
		perms = append(perms, perm)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return perms, total, nil
}

// FindRole fetches one role matching the query inside the tenant scope.
// A role scoped to a restaurant outside the visible set is reported as not
// found, indistinguishable from a missing row.
func (r *PGRepository) FindRole(ctx context.Context, scope tenant.Scope, q RoleQuery) (Role, error) {
	where := `name = $2`
	arg := any(q.Name)
	if q.Name == "" {
		where = `id = $2`
		arg = q.ID
	}
	row := r.pool.QueryRow(ctx, `
		SELECT id, uuid, name, restaurant_id, restaurant_uuid, created_at, updated_at
		FROM roles
		WHERE deleted_at IS NULL
		  AND (restaurant_id IS NULL OR restaurant_id = ANY($1))
		  AND `+where+`
		LIMIT 1`, visibleIDs(scope), arg)
	role, err := scanRole(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Role{}, RoleNotFoundError{Name: q.Name, ID: q.ID}
		}
		return Role{}, err
	}
	return role, nil
}

// CreateRole inserts a role row, restaurant-stamped when params carry a
// tenant.
func (r *PGRepository) CreateRole(ctx context.Context, params CreateRoleParams) (Role, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO roles (uuid, name, restaurant_id, restaurant_uuid, created_at, updated_at)
		VALUES ($1, $2, $3, $4, NOW(), NOW())
		RETURNING id, uuid, name, restaurant_id, restaurant_uuid, created_at, updated_at`,
		params.UUID, params.Name, params.RestaurantID, params.RestaurantUUID)
	return scanRole(row)
}

// SoftDeleteRole marks a role deleted.
func (r *PGRepository) SoftDeleteRole(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE roles SET deleted_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND deleted_at IS NULL`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return RoleNotFoundError{ID: id}
	}
	return nil
}

// ListRoles pages through live roles visible to the scope, ordered by name.
func (r *PGRepository) ListRoles(ctx context.Context, scope tenant.Scope, limit, offset int) ([]Role, int, error) {
	ids := visibleIDs(scope)
	var total int
	if err := r.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM roles
		WHERE deleted_at IS NULL
		  AND (restaurant_id IS NULL OR restaurant_id = ANY($1))`, ids).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.pool.Query(ctx, `
		SELECT id, uuid, name, restaurant_id, restaurant_uuid, created_at, updated_at
		FROM roles
		WHERE deleted_at IS NULL
		  AND (restaurant_id IS NULL OR restaurant_id = ANY($1))
		ORDER BY name
		LIMIT $2 OFFSET $3`, ids, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	roles, err := collectRoles(rows)
	if err != nil {
		return nil, 0, err
	}
	return roles, total, nil
}

// AttachPermissionToRole upserts the role/permission pivot, reviving a
// previously revoked link.
func (r *PGRepository) AttachPermissionToRole(ctx context.Context, role Role, perm Permission) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO role_has_permissions (role_id, permission_id, role_uuid, permission_uuid, created_at, updated_at)
		VALUES ($1, $2, $3, $4, NOW(), NOW())
		ON CONFLICT (role_id, permission_id)
		DO UPDATE SET deleted_at = NULL, updated_at = NOW()`,
		role.ID, perm.ID, role.UUID, perm.UUID)
	return err
}

// DetachPermissionFromRole soft-deletes the pivot, preserving the grant
// history.
func (r *PGRepository) DetachPermissionFromRole(ctx context.Context, roleID, permissionID int64) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE role_has_permissions SET deleted_at = NOW(), updated_at = NOW()
		WHERE role_id = $1 AND permission_id = $2 AND deleted_at IS NULL`, roleID, permissionID)
	return err
}

// UserRoles returns the user's live roles inside the tenant scope. The pivot
// restaurant filter only applies when the scope names visible restaurants;
// with an empty scope only global roles come back.
func (r *PGRepository) UserRoles(ctx context.Context, scope tenant.Scope, userID int64) ([]Role, error) {
	ids := visibleIDs(scope)
	rows, err := r.pool.Query(ctx, `
		SELECT rl.id, rl.uuid, rl.name, rl.restaurant_id, rl.restaurant_uuid, rl.created_at, rl.updated_at
		FROM roles rl
		JOIN user_has_roles ur ON ur.role_id = rl.id
		WHERE ur.user_id = $1 AND ur.deleted_at IS NULL AND rl.deleted_at IS NULL
		  AND (rl.restaurant_id IS NULL OR rl.restaurant_id = ANY($2))
		  AND (cardinality($2::bigint[]) = 0 OR ur.restaurant_id = ANY($2))
		ORDER BY rl.id`, userID, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectRoles(rows)
}

// UpsertUserRoles attaches roles without detaching existing ones. Re-granting
// a soft-deleted assignment revives the pivot with the new tenant stamp. The
// whole grant set lands in one transaction.
func (r *PGRepository) UpsertUserRoles(ctx context.Context, userID int64, grants []UserRoleGrant) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		for _, grant := range grants {
			_, err := tx.Exec(ctx, `
				INSERT INTO user_has_roles (user_id, role_id, user_uuid, role_uuid, restaurant_id, restaurant_uuid, created_at, updated_at)
				VALUES ($1, $2, $3, $4, $5, $6, NOW(), NOW())
				ON CONFLICT (user_id, role_id)
				DO UPDATE SET deleted_at = NULL,
				              restaurant_id = EXCLUDED.restaurant_id,
				              restaurant_uuid = EXCLUDED.restaurant_uuid,
				              updated_at = NOW()`,
				userID, grant.RoleID, grant.UserUUID, grant.RoleUUID, grant.RestaurantID, grant.RestaurantUUID)
			if err != nil {
				return err
			}
		}
		return nil
	})
}

// SoftDeleteUserRole revokes a role by stamping the pivot's deletion time.
func (r *PGRepository) SoftDeleteUserRole(ctx context.Context, userID, roleID int64) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE user_has_roles SET deleted_at = NOW(), updated_at = NOW()
		WHERE user_id = $1 AND role_id = $2 AND deleted_at IS NULL`, userID, roleID)
	return err
}

// UserDirectPermissions returns permissions granted straight to the user.
// Direct grants are tenant-scoped, so an empty scope yields none.
func (r *PGRepository) UserDirectPermissions(ctx context.Context, scope tenant.Scope, userID int64) ([]Permission, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT p.id, p.uuid, p.name, p.created_at, p.updated_at
		FROM permissions p
		JOIN user_has_permissions up ON up.permission_id = p.id
		WHERE up.user_id = $1 AND up.deleted_at IS NULL AND p.deleted_at IS NULL
		  AND up.restaurant_id = ANY($2)
		ORDER BY p.id`, userID, visibleIDs(scope))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var perms []Permission
	for rows.Next() {
		var perm Permission
		var createdAt, updatedAt pgtype.Timestamptz
		if err := rows.Scan(&perm.ID, &perm.UUID, &perm.Name, &createdAt, &updatedAt); err != nil {
			return nil, err
		}
		perm.CreatedAt = createdAt.Time
		perm.UpdatedAt = updatedAt.Time
		perms = append(perms, perm)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if perms == nil {
		perms = []Permission{}
	}
	return perms, nil
}

// UpsertUserPermissions attaches direct permission grants without detaching
// existing ones. The whole grant set lands in one transaction.
func (r *PGRepository) UpsertUserPermissions(ctx context.Context, userID int64, grants []UserPermissionGrant) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		for _, grant := range grants {
			_, err := tx.Exec(ctx, `
				INSERT INTO user_has_permissions (user_id, permission_id, user_uuid, permission_uuid, restaurant_id, restaurant_uuid, created_at, updated_at)
				VALUES ($1, $2, $3, $4, $5, $6, NOW(), NOW())
				ON CONFLICT (user_id, permission_id)
				DO UPDATE SET deleted_at = NULL,
				              restaurant_id = EXCLUDED.restaurant_id,
				              restaurant_uuid = EXCLUDED.restaurant_uuid,
				              updated_at = NOW()`,
				userID, grant.PermissionID, grant.UserUUID, grant.PermissionUUID, grant.RestaurantID, grant.RestaurantUUID)
			if err != nil {
				return err
			}
		}
		return nil
	})
}

// SoftDeleteUserPermission revokes a direct grant.
func (r *PGRepository) SoftDeleteUserPermission(ctx context.Context, userID, permissionID int64) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE user_has_permissions SET deleted_at = NOW(), updated_at = NOW()
		WHERE user_id = $1 AND permission_id = $2 AND deleted_at IS NULL`, userID, permissionID)
	return err
}

// UserRolePermissionsInRestaurant loads the user's roles assigned under the
// given restaurant, each carrying the one permission identified by
// permissionID when the role is linked to it.
func (r *PGRepository) UserRolePermissionsInRestaurant(ctx context.Context, userID, restaurantID, permissionID int64) ([]Role, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT rl.id, rl.uuid, rl.name, rl.restaurant_id, rl.restaurant_uuid, rl.created_at, rl.updated_at,
		       p.id, p.uuid, p.name
		FROM user_has_roles ur
		JOIN roles rl ON rl.id = ur.role_id AND rl.deleted_at IS NULL
		LEFT JOIN role_has_permissions rp ON rp.role_id = rl.id AND rp.deleted_at IS NULL AND rp.permission_id = $3
		LEFT JOIN permissions p ON p.id = rp.permission_id AND p.deleted_at IS NULL
		WHERE ur.user_id = $1 AND ur.restaurant_id = $2 AND ur.deleted_at IS NULL
		ORDER BY rl.id`, userID, restaurantID, permissionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var roles []Role
	index := make(map[int64]int)
	for rows.Next() {
		var (
			role     Role
			restID   pgtype.Int8
			restUUID pgtype.Text
			createdAt, updatedAt pgtype.Timestamptz
			permID   pgtype.Int8
			permUUID pgtype.Text
			permName pgtype.Text
		)
		if err := rows.Scan(&role.ID, &role.UUID, &role.Name, &restID, &restUUID, &createdAt, &updatedAt,
			&permID, &permUUID, &permName); err != nil {
			return nil, err
		}
		if restID.Valid {
			id := restID.Int64
			role.RestaurantID = &id
		}
		if restUUID.Valid {
			uuid := restUUID.String
			role.RestaurantUUID = &uuid
		}
		role.CreatedAt = createdAt.Time
		role.UpdatedAt = updatedAt.Time
		pos, ok := index[role.ID]
		if !ok {
			roles = append(roles, role)
			pos = len(roles) - 1
			index[role.ID] = pos
		}
		if permID.Valid {
			roles[pos].Permissions = append(roles[pos].Permissions, Permission{
				ID:   permID.Int64,
				UUID: permUUID.String,
				Name: permName.String,
			})
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if roles == nil {
		roles = []Role{}
	}
	return roles, nil
}

func scanRole(row pgx.Row) (Role, error) {
	var (
		role     Role
		restID   pgtype.Int8
		restUUID pgtype.Text
		createdAt, updatedAt pgtype.Timestamptz
	)
	if err := row.Scan(&role.ID, &role.UUID, &role.Name, &restID, &restUUID, &createdAt, &updatedAt); err != nil {
		return Role{}, err
	}
	if restID.Valid {
		id := restID.Int64
		role.RestaurantID = &id
	}
	if restUUID.Valid {
		uuid := restUUID.String
		role.RestaurantUUID = &uuid
	}
	role.CreatedAt = createdAt.Time
	role.UpdatedAt = updatedAt.Time
	return role, nil
}

func collectRoles(rows pgx.Rows) ([]Role, error) {
	var roles []Role
	for rows.Next() {
		role, err := scanRole(rows)
		if err != nil {
			return nil, err
		}
		roles = append(roles, role)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if roles == nil {
		roles = []Role{}
	}
	return roles, nil
}
