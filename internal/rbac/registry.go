package rbac

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

const (
	// CacheKey is the shared cache slot holding the permission snapshot.
	CacheKey = "eatthat.permission.cache"
	// CacheTTL bounds how long a snapshot may serve reads before a rebuild.
	CacheTTL = 24 * time.Hour
)

// Registry is the single source for resolving permission identities. It
// serves reads from a hydrated in-memory copy of the shared snapshot,
// rebuilding lazily from the database on cache miss. The cache is an
// accelerator only; the tables stay authoritative.
//
// The in-memory copy is valid only while the shared key exists. Every warm
// read revalidates the key, so a forget issued by any instance (or plain
// TTL expiry) invalidates all instances on their next read.
//
// Cache backend failures propagate to the caller. Falling back to an
// unscoped database read here would bypass the invalidation contract and is
// deliberately not done.
type Registry struct {
	client  *redis.Client
	repo    Repository
	ttl     time.Duration
	key     string
	metrics *CacheMetrics

	group  singleflight.Group
	mu     sync.RWMutex
	loaded []Permission
}

// NewRegistry constructs a Registry on the shared cache client.
func NewRegistry(client *redis.Client, repo Repository, ttl time.Duration) *Registry {
	if ttl <= 0 {
		ttl = CacheTTL
	}
	return &Registry{client: client, repo: repo, ttl: ttl, key: CacheKey}
}

// InstrumentWith attaches Prometheus collectors for cache reads and
// rebuilds. A registry without collectors records nothing.
func (r *Registry) InstrumentWith(metrics *CacheMetrics) {
	r.metrics = metrics
}

// GetPermissions returns the cached permissions matching every key/value
// pair in filter (supported attributes: id, uuid, name). Each result carries
// its Roles relation hydrated from the snapshot. With onlyOne set, at most
// one match is returned, still as a slice.
func (r *Registry) GetPermissions(ctx context.Context, filter map[string]any, onlyOne bool) ([]Permission, error) {
	perms, err := r.load(ctx)
	if err != nil {
		return nil, err
	}
	matches := make([]Permission, 0, len(perms))
	for _, perm := range perms {
		if !matchesFilter(perm, filter) {
			continue
		}
		matches = append(matches, perm)
		if onlyOne {
			break
		}
	}
	return matches, nil
}

// FindPermissionByName resolves a permission through the cache.
func (r *Registry) FindPermissionByName(ctx context.Context, name string) (Permission, error) {
	matches, err := r.GetPermissions(ctx, map[string]any{"name": name}, true)
	if err != nil {
		return Permission{}, err
	}
	if len(matches) == 0 {
		return Permission{}, PermissionNotFoundError{Name: name}
	}
	return matches[0], nil
}

// FindPermissionByID resolves a permission through the cache.
func (r *Registry) FindPermissionByID(ctx context.Context, id int64) (Permission, error) {
	matches, err := r.GetPermissions(ctx, map[string]any{"id": id}, true)
	if err != nil {
		return Permission{}, err
	}
	if len(matches) == 0 {
		return Permission{}, PermissionNotFoundError{ID: id}
	}
	return matches[0], nil
}

// ForgetCachedPermissions evicts the snapshot so the next read rebuilds it.
// Writers call this synchronously before reporting success.
func (r *Registry) ForgetCachedPermissions(ctx context.Context) error {
	r.mu.Lock()
	r.loaded = nil
	r.mu.Unlock()
	if err := r.client.Del(ctx, r.key).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("rbac: permission cache forget: %w", err)
	}
	return nil
}

// load returns the hydrated permission set, going to the cache and then the
// database as needed. Concurrent misses inside the process collapse into one
// rebuild; concurrent rebuilds across processes are tolerated because the
// snapshot is a pure function of the tables and the cache write is atomic.
func (r *Registry) load(ctx context.Context) ([]Permission, error) {
	r.mu.RLock()
	perms := r.loaded
	r.mu.RUnlock()
	if perms != nil {
		// The hydrated copy is a projection of the shared key. Once the key
		// is gone, whether forgotten by another instance or expired, the
		// copy must go with it.
		n, err := r.client.Exists(ctx, r.key).Result()
		if err != nil {
			return nil, fmt.Errorf("rbac: permission cache check: %w", err)
		}
		if n > 0 {
			r.metrics.Hit()
			return perms, nil
		}
		r.mu.Lock()
		r.loaded = nil
		r.mu.Unlock()
	}

	result, err, _ := r.group.Do(r.key, func() (any, error) {
		data, err := r.client.Get(ctx, r.key).Bytes()
		if err != nil {
			if !errors.Is(err, redis.Nil) {
				return nil, fmt.Errorf("rbac: permission cache read: %w", err)
			}
			r.metrics.Miss()
			data, err = r.rebuild(ctx)
			if err != nil {
				return nil, err
			}
		} else {
			r.metrics.Hit()
		}
		snap, err := decodeSnapshot(data)
		if err != nil {
			return nil, err
		}
		perms, err := snap.hydrate()
		if err != nil {
			return nil, err
		}
		r.mu.Lock()
		r.loaded = perms
		r.mu.Unlock()
		return perms, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]Permission), nil
}

// rebuild reserializes the permission tables into a fresh snapshot and
// stores it. Returns the encoded snapshot so the caller hydrates the same
// bytes a later reader would see.
func (r *Registry) rebuild(ctx context.Context) ([]byte, error) {
	start := time.Now()
	defer func() { r.metrics.ObserveRebuild(time.Since(start)) }()
	perms, err := r.repo.PermissionsWithRoles(ctx)
	if err != nil {
		return nil, fmt.Errorf("rbac: load permissions: %w", err)
	}
	data, err := buildSnapshot(perms).encode()
	if err != nil {
		return nil, fmt.Errorf("rbac: encode snapshot: %w", err)
	}
	if err := r.client.Set(ctx, r.key, data, r.ttl).Err(); err != nil {
		return nil, fmt.Errorf("rbac: permission cache write: %w", err)
	}
	return data, nil
}

func matchesFilter(perm Permission, filter map[string]any) bool {
	for attr, want := range filter {
		var got any
		switch attr {
		case "id":
			got = perm.ID
		case "uuid":
			got = perm.UUID
		case "name":
			got = perm.Name
		default:
			return false
		}
		if !looseEqual(got, want) {
			return false
		}
	}
	return true
}

// looseEqual compares attribute values across the numeric types that survive
// JSON round-trips.
func looseEqual(got, want any) bool {
	if gotN, err := asInt64(got); err == nil {
		if wantN, err := asInt64(want); err == nil {
			return gotN == wantN
		}
		return false
	}
	return fmt.Sprint(got) == fmt.Sprint(want)
}
