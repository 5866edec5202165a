// Package tenant carries the per-request restaurant scope used to filter
// role and permission queries.
package tenant

import "context"

// Scope identifies the restaurant a request operates in, plus the wider set
// of restaurant ids the caller is allowed to see. A zero Scope means no
// tenant is active: role lookups then match global roles only.
type Scope struct {
	RestaurantID   int64
	RestaurantUUID string
	VisibleIDs     []int64
}

// ForRestaurant builds a scope for a single restaurant.
func ForRestaurant(id int64, uuid string) Scope {
	return Scope{RestaurantID: id, RestaurantUUID: uuid, VisibleIDs: []int64{id}}
}

// Active reports whether a restaurant has been set on the scope.
func (s Scope) Active() bool {
	return s.RestaurantID != 0
}

// Sees reports whether the given restaurant id is inside the visible set.
func (s Scope) Sees(id int64) bool {
	for _, v := range s.VisibleIDs {
		if v == id {
			return true
		}
	}
	return false
}

// WithVisible returns a copy of the scope with the visible set replaced.
func (s Scope) WithVisible(ids []int64) Scope {
	s.VisibleIDs = append([]int64(nil), ids...)
	return s
}

type scopeContextKey struct{}

// WithScope stores the scope in context. Each request gets its own value;
// nothing here outlives the request.
func WithScope(ctx context.Context, scope Scope) context.Context {
	return context.WithValue(ctx, scopeContextKey{}, scope)
}

// ScopeFromContext extracts the scope, returning the zero Scope when none
// was set.
func ScopeFromContext(ctx context.Context) Scope {
	scope, _ := ctx.Value(scopeContextKey{}).(Scope)
	return scope
}
