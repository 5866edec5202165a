package rbac

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/eatthat/eatthat/internal/tenant"
)

// Gate names a route-level authorization check.
type Gate string

const (
	GateProfileTextUnlock  Gate = "unlock-restaurant-profile-with-only-text"
	GateProfileImageUnlock Gate = "unlock-restaurant-profile-with-image"
	GateProfileVideoUnlock Gate = "unlock-restaurant-profile-with-video"
	GateRestaurantHasPost  Gate = "restaurant-has-post"
	GateRestaurantHasUser  Gate = "restaurant-has-user"
	GateSponsoredUnlock    Gate = "unlock-sponsored-posts-and-ads"
	GateAdmin              Gate = "admin"
)

var gateDenials = map[Gate]string{
	GateProfileTextUnlock:  "this restaurant profile does not include text updates",
	GateProfileImageUnlock: "this restaurant profile does not include image updates",
	GateProfileVideoUnlock: "this restaurant profile does not include video updates",
	GateRestaurantHasPost:  "this restaurant has no posts",
	GateRestaurantHasUser:  "you are not a member of this restaurant",
	GateSponsoredUnlock:    "sponsored posts and ads are not unlocked for this restaurant",
	GateAdmin:              "administrator access required",
}

// Decision is the outcome of a gate check. Denials carry a message and the
// HTTP status route guards respond with.
type Decision struct {
	Allowed bool
	Message string
	Status  int
}

// Allow returns a permitting decision.
func Allow() Decision {
	return Decision{Allowed: true}
}

// Deny returns a refusing decision with a 403 status.
func Deny(message string) Decision {
	return Decision{Message: message, Status: http.StatusForbidden}
}

// RestaurantChecker answers the membership and content questions some gates
// depend on. Implemented by the restaurants repository.
type RestaurantChecker interface {
	HasUser(ctx context.Context, restaurantID, userID int64) (bool, error)
	HasPost(ctx context.Context, restaurantID int64) (bool, error)
}

// Evaluator composes tenant-scoped RBAC queries into named gate decisions.
// Each check is a pure function of the member's loaded relations and the
// target restaurant; call sites that mutate roles mid-request must reload
// before re-checking.
type Evaluator struct {
	service     *Service
	restaurants RestaurantChecker
	logger      *slog.Logger
}

// NewEvaluator constructs an Evaluator.
func NewEvaluator(service *Service, restaurants RestaurantChecker, logger *slog.Logger) *Evaluator {
	return &Evaluator{service: service, restaurants: restaurants, logger: logger}
}

// HasPermissionInRestaurant reports whether the member may exercise the named
// permission inside the given restaurant. Global admins pass regardless of
// restaurant; everyone else needs a role whose assignment is stamped with
// that restaurant and which links to the permission. A missing grant is a
// plain false; only resolution and storage failures return an error.
func (e *Evaluator) HasPermissionInRestaurant(ctx context.Context, member Member, permission string, restaurantID int64) (bool, error) {
	perm, err := e.service.registry.FindPermissionByName(ctx, permission)
	if err != nil {
		return false, err
	}
	admin, err := e.service.HasRole(ctx, tenant.Scope{}, member, RoleNamed("admin"))
	if err != nil {
		return false, err
	}
	if admin {
		return true, nil
	}
	roles, err := e.service.repo.UserRolePermissionsInRestaurant(ctx, member.HolderID(), restaurantID, perm.ID)
	if err != nil {
		return false, err
	}
	var granted []Permission
	for _, role := range roles {
		granted = append(granted, role.Permissions...)
	}
	return ContainsPermission(DedupSortPermissions(granted), perm.ID), nil
}

// Check evaluates the named gate for the member against the restaurant.
// Evaluation failures deny closed.
func (e *Evaluator) Check(ctx context.Context, gate Gate, member Member, restaurantID int64) Decision {
	allowed, err := e.evaluate(ctx, gate, member, restaurantID)
	if err != nil {
		if e.logger != nil {
			e.logger.Warn("gate evaluation failed",
				slog.String("gate", string(gate)),
				slog.Int64("restaurant_id", restaurantID),
				slog.Any("error", err))
		}
		return Deny(denialMessage(gate))
	}
	if !allowed {
		return Deny(denialMessage(gate))
	}
	return Allow()
}

func (e *Evaluator) evaluate(ctx context.Context, gate Gate, member Member, restaurantID int64) (bool, error) {
	switch gate {
	case GateAdmin:
		return e.service.HasRole(ctx, tenant.Scope{}, member, RoleNamed("admin"))
	case GateRestaurantHasPost:
		return e.restaurants.HasPost(ctx, restaurantID)
	case GateRestaurantHasUser:
		return e.restaurants.HasUser(ctx, restaurantID, member.HolderID())
	case GateProfileTextUnlock, GateProfileImageUnlock, GateProfileVideoUnlock, GateSponsoredUnlock:
		return e.HasPermissionInRestaurant(ctx, member, string(gate), restaurantID)
	default:
		return false, nil
	}
}

func denialMessage(gate Gate) string {
	if msg, ok := gateDenials[gate]; ok {
		return msg
	}
	return "forbidden"
}
