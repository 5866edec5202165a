package rbac

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"log/slog"

	"github.com/go-chi/chi/v5"

	"github.com/eatthat/eatthat/internal/platform/httpx"
	"github.com/eatthat/eatthat/internal/shared"
	"github.com/eatthat/eatthat/internal/tenant"
)

// MemberLoader resolves the session user into an RBAC member. Implemented by
// the users service.
type MemberLoader interface {
	Member(ctx context.Context, userID int64) (Member, error)
}

// ScopeResolver resolves a restaurant id into the uuid stamped on grant
// pivots. Implemented by the restaurants repository.
type ScopeResolver interface {
	RestaurantUUID(ctx context.Context, id int64) (string, error)
}

type memberContextKey struct{}

// ContextWithMember stores the authenticated member in context.
func ContextWithMember(ctx context.Context, member Member) context.Context {
	return context.WithValue(ctx, memberContextKey{}, member)
}

// MemberFromContext extracts the authenticated member from context.
func MemberFromContext(ctx context.Context) Member {
	member, _ := ctx.Value(memberContextKey{}).(Member)
	return member
}

// Middleware wires gate checks into HTTP routing.
type Middleware struct {
	Evaluator *Evaluator
	Members   MemberLoader
	Scopes    ScopeResolver
	Logger    *slog.Logger
}

// RequireGate denies the request unless the named gate allows the session
// user for the restaurant addressed by the route. Routes without a
// restaurantID parameter evaluate with no target restaurant, which only
// tenant-independent gates can pass. On allow, the member and the restaurant
// scope are placed in the request context for downstream handlers.
func (m Middleware) RequireGate(gate Gate) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			userID, ok := m.currentUserID(r)
			if !ok {
				httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "sign in required")
				return
			}
			member, err := m.Members.Member(ctx, userID)
			if err != nil {
				if m.Logger != nil {
					m.Logger.Error("rbac load member", slog.Int64("user_id", userID), slog.Any("error", err))
				}
				httpx.Problem(w, http.StatusForbidden, "Forbidden", http.StatusText(http.StatusForbidden))
				return
			}
			restaurantID, err := restaurantParam(r)
			if err != nil {
				httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid restaurant id")
				return
			}
			decision := m.Evaluator.Check(ctx, gate, member, restaurantID)
			if !decision.Allowed {
				httpx.Problem(w, decision.Status, "Forbidden", decision.Message)
				return
			}
			ctx = ContextWithMember(ctx, member)
			if restaurantID > 0 && tenant.ScopeFromContext(ctx).RestaurantID != restaurantID {
				// An earlier middleware may already have established the
				// scope with the restaurant uuid; otherwise resolve it here
				// so grant pivots never land with an empty uuid.
				restaurantUUID := ""
				if m.Scopes != nil {
					restaurantUUID, err = m.Scopes.RestaurantUUID(ctx, restaurantID)
					if err != nil {
						if errors.Is(err, shared.ErrNotFound) {
							httpx.Problem(w, http.StatusNotFound, "Not Found", "restaurant not found")
							return
						}
						if m.Logger != nil {
							m.Logger.Error("rbac resolve restaurant scope", slog.Int64("restaurant_id", restaurantID), slog.Any("error", err))
						}
						httpx.Problem(w, http.StatusInternalServerError, "Internal Server Error", http.StatusText(http.StatusInternalServerError))
						return
					}
				}
				ctx = tenant.WithScope(ctx, tenant.ForRestaurant(restaurantID, restaurantUUID))
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func (m Middleware) currentUserID(r *http.Request) (int64, bool) {
	sess := shared.SessionFromContext(r.Context())
	if sess == nil {
		return 0, false
	}
	raw := strings.TrimSpace(sess.User())
	if raw == "" {
		return 0, false
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		if m.Logger != nil {
			m.Logger.Error("rbac parse user id", slog.String("value", raw))
		}
		return 0, false
	}
	return id, true
}

func restaurantParam(r *http.Request) (int64, error) {
	raw := chi.URLParam(r, "restaurantID")
	if raw == "" {
		return 0, nil
	}
	return strconv.ParseInt(raw, 10, 64)
}
