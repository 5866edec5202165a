package rbac

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSplitPipe(t *testing.T) {
	cases := []struct {
		name  string
		input string
		want  []string
	}{
		{"plain name", "editor", []string{"editor"}},
		{"pipe delimited", "admin|owner", []string{"admin", "owner"}},
		{"three names", "admin|owner|editor", []string{"admin", "owner", "editor"}},
		{"single quoted literal", "'admin|owner'", []string{"admin|owner"}},
		{"double quoted literal", `"admin|owner"`, []string{"admin|owner"}},
		{"mismatched quotes split", `'admin|owner"`, []string{"'admin", `owner"`}},
		{"leading quote only splits", "'admin|owner", []string{"'admin", "owner"}},
		{"two chars never split", "a|", []string{"a|"}},
		{"surrounding space trimmed", "  admin|owner ", []string{"admin", "owner"}},
		{"empty string", "", []string{""}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, SplitPipe(tc.input))
		})
	}
}

func TestNormalizeRoleRef(t *testing.T) {
	criteria := normalizeRoleRef(
		RoleNamed("admin|owner"),
		RoleWithID(7),
		RoleEntity(Role{ID: 12, Name: "editor"}),
		Roles(RoleNamed("waiter"), RoleWithID(3)),
	)
	assert.Equal(t, []string{"admin", "owner", "waiter"}, criteria.names)
	assert.Equal(t, []int64{7, 12, 3}, criteria.ids)
}

func TestNormalizeRoleRefDropsEmptyNames(t *testing.T) {
	criteria := normalizeRoleRef(RoleNamed("admin||owner"))
	assert.Equal(t, []string{"admin", "owner"}, criteria.names)
}
