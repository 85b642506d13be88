package permissions

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// AllPermissions is the sentinel granting every permission enumerated by any other role.
const AllPermissions = "all"

// Permission is a catalog entry. Holding a permission also grants everything it implies.
type Permission struct {
	ID          string
	Description string
	Implies     []string
}

// Role maps a name to a privilege level and a permission set.
type Role struct {
	Name        string
	Level       int
	Description string
	Permissions []string
}

// GrantsAll reports whether the role carries the universal sentinel.
func (r Role) GrantsAll() bool {
	return len(r.Permissions) == 1 && r.Permissions[0] == AllPermissions
}

var (
	ErrUnknownRole       = errors.New("permission: unknown role")
	ErrUnknownPermission = errors.New("permission: unknown permission")

	errEmptyRoleName       = errors.New("permission: role name is required")
	errDuplicateRole       = errors.New("permission: role already defined")
	errNegativeLevel       = errors.New("permission: role level must not be negative")
	errAllNotExclusive     = errors.New("permission: \"all\" cannot be combined with other permissions")
	errEmptyPermissionID   = errors.New("permission: id is required")
	errDuplicatePermission = errors.New("permission: already registered")
	errSelfImplication     = errors.New("permission: cannot imply itself")
)

// RoleTable is an immutable, validated set of roles and the permission catalog they draw from.
type RoleTable struct {
	roles    map[string]Role
	catalog  map[string]Permission
	universe map[string]struct{}
}

// NewRoleTable validates roles against catalog. An empty catalog accepts any permission id.
func NewRoleTable(roles []Role, catalog []Permission) (*RoleTable, error) {
	t := &RoleTable{
		roles:    make(map[string]Role, len(roles)),
		catalog:  make(map[string]Permission, len(catalog)),
		universe: make(map[string]struct{}),
	}

	for _, perm := range catalog {
		id := strings.TrimSpace(perm.ID)
		if id == "" || id == AllPermissions {
			return nil, errEmptyPermissionID
		}
		if _, exists := t.catalog[id]; exists {
			return nil, fmt.Errorf("%w: %s", errDuplicatePermission, id)
		}
		implies, err := normaliseIDs(perm.Implies, id, errSelfImplication)
		if err != nil {
			return nil, err
		}
		t.catalog[id] = Permission{ID: id, Description: perm.Description, Implies: implies}
	}
	for _, perm := range t.catalog {
		for _, implied := range perm.Implies {
			if _, ok := t.catalog[implied]; !ok {
				return nil, fmt.Errorf("%w %q implied by %s", ErrUnknownPermission, implied, perm.ID)
			}
		}
	}

	for _, role := range roles {
		name := normaliseRoleName(role.Name)
		if name == "" {
			return nil, errEmptyRoleName
		}
		if _, exists := t.roles[name]; exists {
			return nil, fmt.Errorf("%w: %s", errDuplicateRole, name)
		}
		if role.Level < 0 {
			return nil, fmt.Errorf("%w: %s", errNegativeLevel, name)
		}

		perms, err := normaliseIDs(role.Permissions, "", nil)
		if err != nil {
			return nil, err
		}
		for _, id := range perms {
			if id == AllPermissions {
				if len(perms) > 1 {
					return nil, fmt.Errorf("%w: %s", errAllNotExclusive, name)
				}
				continue
			}
			if len(t.catalog) > 0 {
				if _, ok := t.catalog[id]; !ok {
					return nil, fmt.Errorf("%w %q in role %s", ErrUnknownPermission, id, name)
				}
			}
		}

		t.roles[name] = Role{Name: name, Level: role.Level, Description: role.Description, Permissions: perms}
	}

	for _, role := range t.roles {
		if role.GrantsAll() {
			continue
		}
		for id := range t.expand(role.Permissions) {
			t.universe[id] = struct{}{}
		}
	}

	return t, nil
}

// Get returns a copy of the named role.
func (t *RoleTable) Get(name string) (Role, bool) {
	role, ok := t.roles[normaliseRoleName(name)]
	if !ok {
		return Role{}, false
	}
	return cloneRole(role), true
}

// Lookup is Get with an error for unknown names.
func (t *RoleTable) Lookup(name string) (Role, error) {
	role, ok := t.Get(name)
	if !ok {
		return Role{}, fmt.Errorf("%w: %s", ErrUnknownRole, name)
	}
	return role, nil
}

// All returns every role ordered by descending level, then name.
func (t *RoleTable) All() []Role {
	out := make([]Role, 0, len(t.roles))
	for _, role := range t.roles {
		out = append(out, cloneRole(role))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Level != out[j].Level {
			return out[i].Level > out[j].Level
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// Catalog returns the permission catalog sorted by id.
func (t *RoleTable) Catalog() []Permission {
	out := make([]Permission, 0, len(t.catalog))
	for _, perm := range t.catalog {
		perm.Implies = append([]string(nil), perm.Implies...)
		out = append(out, perm)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Universe returns the sorted set granted by AllPermissions.
func (t *RoleTable) Universe() []string {
	return sortedKeys(t.universe)
}

// permissionsOf returns the expanded permission set of one role.
func (t *RoleTable) permissionsOf(role Role) map[string]struct{} {
	if role.GrantsAll() {
		return t.universe
	}
	return t.expand(role.Permissions)
}

// expand follows Implies edges. Cycles terminate because visited ids are skipped.
func (t *RoleTable) expand(ids []string) map[string]struct{} {
	perms := make(map[string]struct{}, len(ids))

	var visit func(string)
	visit = func(id string) {
		if _, exists := perms[id]; exists {
			return
		}
		perms[id] = struct{}{}
		for _, implied := range t.catalog[id].Implies {
			visit(implied)
		}
	}

	for _, id := range ids {
		visit(id)
	}
	return perms
}

func normaliseRoleName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

func normaliseIDs(values []string, self string, selfErr error) ([]string, error) {
	if len(values) == 0 {
		return nil, nil
	}

	seen := make(map[string]struct{}, len(values))
	var result []string

	for _, value := range values {
		value = strings.TrimSpace(value)
		if value == "" {
			continue
		}
		if self != "" && value == self {
			return nil, selfErr
		}
		if _, exists := seen[value]; exists {
			continue
		}

		seen[value] = struct{}{}
		result = append(result, value)
	}

	return result, nil
}

func cloneRole(role Role) Role {
	if len(role.Permissions) > 0 {
		role.Permissions = append([]string(nil), role.Permissions...)
	}
	return role
}

func sortedKeys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
