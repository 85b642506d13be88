package permissions

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewRoleTableValidates(t *testing.T) {
	catalog := []Permission{{ID: "a"}, {ID: "b", Implies: []string{"a"}}}

	tests := []struct {
		name    string
		roles   []Role
		catalog []Permission
		wantErr error
	}{
		{"empty name", []Role{{Name: " "}}, nil, errEmptyRoleName},
		{"duplicate name", []Role{{Name: "user"}, {Name: "USER"}}, nil, errDuplicateRole},
		{"negative level", []Role{{Name: "user", Level: -1}}, nil, errNegativeLevel},
		{"all combined", []Role{{Name: "root", Permissions: []string{"all", "a"}}}, nil, errAllNotExclusive},
		{"unknown permission", []Role{{Name: "user", Permissions: []string{"c"}}}, catalog, ErrUnknownPermission},
		{"self implication", nil, []Permission{{ID: "a", Implies: []string{"a"}}}, errSelfImplication},
		{"unknown implication", nil, []Permission{{ID: "a", Implies: []string{"z"}}}, ErrUnknownPermission},
		{"duplicate permission", nil, []Permission{{ID: "a"}, {ID: "a"}}, errDuplicatePermission},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewRoleTable(tt.roles, tt.catalog)
			require.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestRoleTableUniverseExcludesAllRoles(t *testing.T) {
	table, err := NewRoleTable([]Role{
		{Name: "reader", Level: 1, Permissions: []string{"doc.read"}},
		{Name: "writer", Level: 2, Permissions: []string{"doc.write", " doc.read ", ""}},
		{Name: "root", Level: 9, Permissions: []string{AllPermissions}},
	}, nil)
	require.NoError(t, err)

	require.Equal(t, []string{"doc.read", "doc.write"}, table.Universe())

	writer, ok := table.Get(" Writer ")
	require.True(t, ok)
	require.Equal(t, []string{"doc.write", "doc.read"}, writer.Permissions)

	writer.Permissions[0] = "mutated"
	again, _ := table.Get("writer")
	require.Equal(t, "doc.write", again.Permissions[0])

	all := table.All()
	require.Equal(t, "root", all[0].Name)
	require.Equal(t, "reader", all[2].Name)
}

func TestDefaultRoleTable(t *testing.T) {
	table, err := DefaultRoleTable()
	require.NoError(t, err)

	universe := table.Universe()
	for _, perm := range table.Catalog() {
		require.Contains(t, universe, perm.ID)
	}

	superAdmin, ok := table.Get("super_admin")
	require.True(t, ok)
	require.True(t, superAdmin.GrantsAll())
}
