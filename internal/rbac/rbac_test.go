package rbac

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRoleTable(t *testing.T) {
	cases := map[Role][]Permission{
		RoleAdmin:  {PermUseBot, PermUseRag, PermViewMetrics, PermAdminCommands},
		RoleUser:   {PermUseBot, PermUseRag, PermViewMetrics},
		RoleGuest:  {PermUseBot},
		RoleBanned: nil,
	}
	for _, role := range Roles() {
		want, ok := cases[role]
		require.True(t, ok, "role %s missing from table", role)
		require.ElementsMatch(t, want, Permissions(role), "role %s", role)
	}
}

func TestAdminCommandsOnlyForAdmin(t *testing.T) {
	for _, role := range Roles() {
		require.Equal(t, role == RoleAdmin, Allows(role, PermAdminCommands), "role %s", role)
	}
}

func TestBannedDeniesEverything(t *testing.T) {
	for _, perm := range AllPermissions() {
		require.False(t, Allows(RoleBanned, perm))
	}
}

func TestParseRole(t *testing.T) {
	role, err := ParseRole("  ADMIN ")
	require.NoError(t, err)
	require.Equal(t, RoleAdmin, role)

	role, err = ParseRole("Banned")
	require.NoError(t, err)
	require.Equal(t, RoleBanned, role)

	_, err = ParseRole("owner")
	require.True(t, errors.Is(err, ErrUnknownRole))
}

func TestParsePermission(t *testing.T) {
	perm, err := ParsePermission("USE_RAG")
	require.NoError(t, err)
	require.Equal(t, PermUseRag, perm)

	_, err = ParsePermission("manage_users")
	require.ErrorIs(t, err, ErrUnknownPermission)
}

func TestRoleTitle(t *testing.T) {
	require.Equal(t, "Guest", RoleGuest.Title())
	require.Equal(t, "", Role("").Title())
}
