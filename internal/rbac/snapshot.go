package rbac

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// The cached snapshot flattens every permission with its role links into one
// JSON document. Attribute names are replaced by short aliases to keep the
// stored payload small; the alias table travels with the snapshot (stored
// inverted, alias -> attribute) so the scheme can evolve without breaking
// old entries. Timestamps and soft-delete markers are not serialized: the
// snapshot only needs to round-trip id, uuid, name and the role linkage.

const roleListKey = "r"

var (
	permissionAttributes = []string{"id", "uuid", "name"}
	roleAttributes       = []string{"id", "uuid", "name", "restaurant_id", "restaurant_uuid"}

	// Permission attributes draw aliases from the first half of the
	// alphabet, role attributes from the second, so the two models never
	// collide on a fresh alias. Attributes both models share reuse the
	// permission alias.
	permissionAlphabet = []string{"a", "b", "c", "d", "e", "f", "g", "h"}
	roleAlphabet       = []string{"j", "k", "l", "m", "n", "o", "p"}
)

type snapshot struct {
	Alias       map[string]string `json:"alias"`
	Permissions []map[string]any  `json:"permissions"`
	Roles       []map[string]any  `json:"roles"`
}

// buildSnapshot flattens permissions (with their Roles relation populated)
// into the serialized form. Roles shared by several permissions are stored
// once in the side table and referenced by id.
func buildSnapshot(perms []Permission) snapshot {
	forward := make(map[string]string)
	assign := func(attrs []string, alphabet []string) {
		next := 0
		for _, attr := range attrs {
			if _, ok := forward[attr]; ok {
				continue
			}
			if next < len(alphabet) {
				forward[attr] = alphabet[next]
				next++
			} else {
				forward[attr] = attr
			}
		}
	}
	assign(permissionAttributes, permissionAlphabet)

	cachedRoles := make(map[int64]map[string]any)
	var roleOrder []int64

	rows := make([]map[string]any, 0, len(perms))
	for _, perm := range perms {
		row := map[string]any{
			forward["id"]:   perm.ID,
			forward["uuid"]: perm.UUID,
			forward["name"]: perm.Name,
		}
		if len(perm.Roles) > 0 {
			if _, ok := forward["roles"]; !ok {
				forward["roles"] = roleListKey
				assign(roleAttributes, roleAlphabet)
			}
			ids := make([]int64, 0, len(perm.Roles))
			for _, role := range perm.Roles {
				if _, seen := cachedRoles[role.ID]; !seen {
					entry := map[string]any{
						forward["id"]:   role.ID,
						forward["uuid"]: role.UUID,
						forward["name"]: role.Name,
					}
					if role.RestaurantID != nil {
						entry[forward["restaurant_id"]] = *role.RestaurantID
					}
					if role.RestaurantUUID != nil {
						entry[forward["restaurant_uuid"]] = *role.RestaurantUUID
					}
					cachedRoles[role.ID] = entry
					roleOrder = append(roleOrder, role.ID)
				}
				ids = append(ids, role.ID)
			}
			row[roleListKey] = ids
		}
		rows = append(rows, row)
	}

	sideTable := make([]map[string]any, 0, len(roleOrder))
	for _, id := range roleOrder {
		sideTable = append(sideTable, cachedRoles[id])
	}

	inverted := make(map[string]string, len(forward))
	for attr, alias := range forward {
		inverted[alias] = attr
	}
	return snapshot{Alias: inverted, Permissions: rows, Roles: sideTable}
}

func (s snapshot) encode() ([]byte, error) {
	return json.Marshal(s)
}

func decodeSnapshot(data []byte) (snapshot, error) {
	var snap snapshot
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&snap); err != nil {
		return snapshot{}, fmt.Errorf("rbac: decode snapshot: %w", err)
	}
	return snap, nil
}

// hydrate reverses the aliasing and rebuilds live entities. The role side
// table is materialized first so shared roles are reconstructed once, then
// discarded.
func (s snapshot) hydrate() ([]Permission, error) {
	attrOf := func(alias string) string {
		if attr, ok := s.Alias[alias]; ok {
			return attr
		}
		return alias
	}

	roles := make(map[int64]Role, len(s.Roles))
	for _, row := range s.Roles {
		var role Role
		for alias, value := range row {
			switch attrOf(alias) {
			case "id":
				id, err := asInt64(value)
				if err != nil {
					return nil, fmt.Errorf("rbac: hydrate role id: %w", err)
				}
				role.ID = id
			case "uuid":
				role.UUID, _ = value.(string)
			case "name":
				role.Name, _ = value.(string)
			case "restaurant_id":
				id, err := asInt64(value)
				if err != nil {
					return nil, fmt.Errorf("rbac: hydrate role restaurant id: %w", err)
				}
				role.RestaurantID = &id
			case "restaurant_uuid":
				if str, ok := value.(string); ok {
					role.RestaurantUUID = &str
				}
			}
		}
		roles[role.ID] = role
	}

	perms := make([]Permission, 0, len(s.Permissions))
	for _, row := range s.Permissions {
		var perm Permission
		for alias, value := range row {
			if alias == roleListKey && attrOf(alias) == "roles" {
				list, ok := value.([]any)
				if !ok {
					continue
				}
				for _, raw := range list {
					id, err := asInt64(raw)
					if err != nil {
						return nil, fmt.Errorf("rbac: hydrate role link: %w", err)
					}
					if role, ok := roles[id]; ok {
						perm.Roles = append(perm.Roles, role)
					}
				}
				continue
			}
			switch attrOf(alias) {
			case "id":
				id, err := asInt64(value)
				if err != nil {
					return nil, fmt.Errorf("rbac: hydrate permission id: %w", err)
				}
				perm.ID = id
			case "uuid":
				perm.UUID, _ = value.(string)
			case "name":
				perm.Name, _ = value.(string)
			}
		}
		perms = append(perms, perm)
	}
	return perms, nil
}

func asInt64(value any) (int64, error) {
	switch v := value.(type) {
	case int64:
		return v, nil
	case int:
		return int64(v), nil
	case float64:
		return int64(v), nil
	case json.Number:
		return v.Int64()
	default:
		return 0, fmt.Errorf("unexpected numeric type %T", value)
	}
}
