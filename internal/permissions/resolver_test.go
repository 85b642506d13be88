package permissions

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type testClock struct {
	current time.Time
}

func (c *testClock) Now() time.Time { return c.current }

func (c *testClock) Advance(d time.Duration) { c.current = c.current.Add(d) }

func newTestResolver(t *testing.T) (*Resolver, *testClock) {
	t.Helper()

	table, err := DefaultRoleTable()
	require.NoError(t, err)

	clock := &testClock{current: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
	resolver, err := NewResolver(table, clock.Now)
	require.NoError(t, err)
	return resolver, clock
}

func TestResolverEffectivePermissions(t *testing.T) {
	resolver, _ := newTestResolver(t)

	perms := resolver.EffectivePermissions(FromClaims([]string{"user"}))
	require.Equal(t, []string{ContentCreate, ProfileRead, ProfileWrite}, perms.Sorted())

	perms = resolver.EffectivePermissions(FromClaims([]string{"user", "moderator"}))
	require.True(t, perms.Has(ContentModerate))
	require.True(t, perms.Has(UserView))
	require.False(t, perms.Has(UserManage))
}

func TestResolverAllGrantsUniverse(t *testing.T) {
	resolver, _ := newTestResolver(t)
	assignments := FromClaims([]string{"super_admin"})

	for _, perm := range resolver.Table().Universe() {
		require.True(t, resolver.HasPermission(assignments, perm), perm)
	}
	require.False(t, resolver.HasPermission(assignments, "billing.refund"))
	require.Equal(t, 100, resolver.MaxLevel(assignments))
}

func TestResolverIgnoresExpiredAssignments(t *testing.T) {
	resolver, clock := newTestResolver(t)

	expires := clock.Now().Add(time.Hour)
	assignments := []Assignment{
		{Role: "user"},
		{Role: "super_admin", ExpiresAt: &expires},
	}

	require.True(t, resolver.HasPermission(assignments, SessionRevokeAny))
	require.True(t, resolver.HasRole(assignments, "super_admin"))
	require.Equal(t, 100, resolver.MaxLevel(assignments))

	clock.Advance(time.Hour)

	require.False(t, resolver.HasPermission(assignments, SessionRevokeAny))
	require.False(t, resolver.HasRole(assignments, "super_admin"))
	require.True(t, resolver.HasRole(assignments, "user"))
	require.Equal(t, 10, resolver.MaxLevel(assignments))
	require.Equal(t, []string{"user"}, resolver.RoleNames(assignments))
}

func TestResolverUnknownRolesGrantNothing(t *testing.T) {
	resolver, _ := newTestResolver(t)
	assignments := FromClaims([]string{"root", ""})

	require.Empty(t, resolver.EffectivePermissions(assignments))
	require.Equal(t, 0, resolver.MaxLevel(assignments))
	require.False(t, resolver.HasRole(assignments, "root"))
	require.Equal(t, 0, resolver.MaxLevel(nil))
}

func TestResolverFollowsImplications(t *testing.T) {
	resolver, _ := newTestResolver(t)
	assignments := FromClaims([]string{"admin"})

	require.True(t, resolver.HasPermission(assignments, SessionViewAny))
	require.True(t, resolver.HasPermission(assignments, UserView))
	require.True(t, resolver.HasPermission(assignments, ContentCreate))
	require.Equal(t, []string{"admin"}, resolver.RoleNames(FromClaims([]string{"Admin", "admin"})))
}
