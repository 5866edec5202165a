package rbac

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eatthat/eatthat/internal/tenant"
)

type mockRestaurants struct {
	hasUser bool
	hasPost bool
	err     error
}

func (m *mockRestaurants) HasUser(ctx context.Context, restaurantID, userID int64) (bool, error) {
	return m.hasUser, m.err
}

func (m *mockRestaurants) HasPost(ctx context.Context, restaurantID int64) (bool, error) {
	return m.hasPost, m.err
}

func newTestEvaluator(t *testing.T, restaurants RestaurantChecker) (*Evaluator, *Service) {
	t.Helper()
	svc, _, _ := newTestService(t)
	if restaurants == nil {
		restaurants = &mockRestaurants{}
	}
	return NewEvaluator(svc, restaurants, nil), svc
}

func TestHasPermissionInRestaurantEndToEnd(t *testing.T) {
	eval, svc := newTestEvaluator(t, nil)
	ctx := context.Background()
	r1 := tenant.ForRestaurant(1, "rest-uuid-1")
	user := &testMember{id: 42, uuid: "user-uuid-42"}

	perm, err := svc.FindOrCreatePermission(ctx, "publish-post")
	require.NoError(t, err)
	editor, err := svc.FindOrCreateRole(ctx, r1, "editor")
	require.NoError(t, err)
	require.NoError(t, svc.AttachPermission(ctx, editor, PermissionEntity(perm)))
	require.NoError(t, svc.AssignRoles(ctx, r1, user, RoleEntity(editor)))

	ok, err := eval.HasPermissionInRestaurant(ctx, user, "publish-post", 1)
	require.NoError(t, err)
	assert.True(t, ok)

	// The same user has nothing in a different restaurant.
	ok, err = eval.HasPermissionInRestaurant(ctx, user, "publish-post", 2)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestHasPermissionInRestaurantAdminBypass(t *testing.T) {
	eval, svc := newTestEvaluator(t, nil)
	ctx := context.Background()
	admin := &testMember{id: 7, uuid: "user-uuid-7"}

	_, err := svc.FindOrCreatePermission(ctx, "publish-post")
	require.NoError(t, err)
	_, err = svc.FindOrCreateRole(ctx, tenant.Scope{}, "admin")
	require.NoError(t, err)
	require.NoError(t, svc.AssignRoles(ctx, tenant.Scope{}, admin, RoleNamed("admin")))

	for _, restaurantID := range []int64{1, 2, 99} {
		ok, err := eval.HasPermissionInRestaurant(ctx, admin, "publish-post", restaurantID)
		require.NoError(t, err)
		assert.True(t, ok, "admin passes in restaurant %d", restaurantID)
	}
}

func TestHasPermissionInRestaurantAfterRevocation(t *testing.T) {
	eval, svc := newTestEvaluator(t, nil)
	ctx := context.Background()
	r1 := tenant.ForRestaurant(1, "")
	user := &testMember{id: 42, uuid: "user-uuid-42"}

	perm, err := svc.FindOrCreatePermission(ctx, "publish-post")
	require.NoError(t, err)
	editor, err := svc.FindOrCreateRole(ctx, r1, "editor")
	require.NoError(t, err)
	require.NoError(t, svc.AttachPermission(ctx, editor, PermissionEntity(perm)))
	require.NoError(t, svc.AssignRoles(ctx, r1, user, RoleEntity(editor)))

	ok, err := eval.HasPermissionInRestaurant(ctx, user, "publish-post", 1)
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, svc.RemoveRole(ctx, r1, user, RoleEntity(editor)))

	ok, err = eval.HasPermissionInRestaurant(ctx, user, "publish-post", 1)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestHasPermissionInRestaurantMissingGrantIsPlainFalse(t *testing.T) {
	eval, svc := newTestEvaluator(t, nil)
	ctx := context.Background()
	user := &testMember{id: 42, uuid: "user-uuid-42"}

	_, err := svc.FindOrCreatePermission(ctx, "publish-post")
	require.NoError(t, err)

	ok, err := eval.HasPermissionInRestaurant(ctx, user, "publish-post", 1)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestHasPermissionInRestaurantUnresolvablePermission(t *testing.T) {
	eval, _ := newTestEvaluator(t, nil)
	user := &testMember{id: 42, uuid: "user-uuid-42"}

	_, err := eval.HasPermissionInRestaurant(context.Background(), user, "no-such", 1)
	require.Error(t, err)
}

func TestCheckUnlockGate(t *testing.T) {
	eval, svc := newTestEvaluator(t, nil)
	ctx := context.Background()
	r1 := tenant.ForRestaurant(1, "")
	user := &testMember{id: 42, uuid: "user-uuid-42"}

	perm, err := svc.FindOrCreatePermission(ctx, string(GateProfileImageUnlock))
	require.NoError(t, err)
	role, err := svc.FindOrCreateRole(ctx, r1, "image-tier")
	require.NoError(t, err)
	require.NoError(t, svc.AttachPermission(ctx, role, PermissionEntity(perm)))
	require.NoError(t, svc.AssignRoles(ctx, r1, user, RoleEntity(role)))

	decision := eval.Check(ctx, GateProfileImageUnlock, user, 1)
	assert.True(t, decision.Allowed)

	decision = eval.Check(ctx, GateProfileImageUnlock, user, 2)
	assert.False(t, decision.Allowed)
	assert.Equal(t, http.StatusForbidden, decision.Status)
	assert.NotEmpty(t, decision.Message)

	decision = eval.Check(ctx, GateProfileVideoUnlock, user, 1)
	assert.False(t, decision.Allowed, "unprovisioned gate permission denies closed")
	assert.Equal(t, http.StatusForbidden, decision.Status)
}

func TestCheckAdminGate(t *testing.T) {
	eval, svc := newTestEvaluator(t, nil)
	ctx := context.Background()
	admin := &testMember{id: 7, uuid: "user-uuid-7"}
	mortal := &testMember{id: 8, uuid: "user-uuid-8"}

	_, err := svc.FindOrCreateRole(ctx, tenant.Scope{}, "admin")
	require.NoError(t, err)
	require.NoError(t, svc.AssignRoles(ctx, tenant.Scope{}, admin, RoleNamed("admin")))

	assert.True(t, eval.Check(ctx, GateAdmin, admin, 0).Allowed)

	decision := eval.Check(ctx, GateAdmin, mortal, 0)
	assert.False(t, decision.Allowed)
	assert.Equal(t, http.StatusForbidden, decision.Status)
	assert.Equal(t, "administrator access required", decision.Message)
}

func TestCheckRestaurantGates(t *testing.T) {
	restaurants := &mockRestaurants{hasUser: true, hasPost: false}
	eval, _ := newTestEvaluator(t, restaurants)
	ctx := context.Background()
	user := &testMember{id: 42, uuid: "user-uuid-42"}

	assert.True(t, eval.Check(ctx, GateRestaurantHasUser, user, 1).Allowed)

	decision := eval.Check(ctx, GateRestaurantHasPost, user, 1)
	assert.False(t, decision.Allowed)
	assert.Equal(t, "this restaurant has no posts", decision.Message)
}

func TestCheckUnknownGateDenies(t *testing.T) {
	eval, _ := newTestEvaluator(t, nil)
	decision := eval.Check(context.Background(), Gate("mystery"), &testMember{id: 1}, 1)
	assert.False(t, decision.Allowed)
	assert.Equal(t, http.StatusForbidden, decision.Status)
	assert.Equal(t, "forbidden", decision.Message)
}
