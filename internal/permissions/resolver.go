package permissions

import (
	"errors"
	"sort"
	"time"
)

// Assignment binds a role to a user, optionally until ExpiresAt.
type Assignment struct {
	Role      string
	ExpiresAt *time.Time
}

// ActiveAt reports whether the assignment is still in force at now.
func (a Assignment) ActiveAt(now time.Time) bool {
	return a.ExpiresAt == nil || a.ExpiresAt.After(now)
}

// FromClaims builds non-expiring assignments from access token role claims.
func FromClaims(roles []string) []Assignment {
	out := make([]Assignment, 0, len(roles))
	for _, role := range roles {
		out = append(out, Assignment{Role: role})
	}
	return out
}

// PermissionSet is a resolved set of permission ids.
type PermissionSet map[string]struct{}

// Has reports membership.
func (s PermissionSet) Has(id string) bool {
	_, ok := s[id]
	return ok
}

// Sorted returns the ids in lexical order.
func (s PermissionSet) Sorted() []string {
	return sortedKeys(s)
}

// Resolver evaluates assignments against a RoleTable. Expiry is judged at call time using the
// injected clock. It is safe for concurrent use.
type Resolver struct {
	table *RoleTable
	now   func() time.Time
}

// NewResolver constructs a resolver. A nil clock uses time.Now.
func NewResolver(table *RoleTable, clock func() time.Time) (*Resolver, error) {
	if table == nil {
		return nil, errors.New("permission resolver: role table is required")
	}
	if clock == nil {
		clock = time.Now
	}
	return &Resolver{table: table, now: clock}, nil
}

// Table exposes the role table the resolver evaluates against.
func (r *Resolver) Table() *RoleTable { return r.table }

// activeRoles returns the known roles whose assignment is live. Unknown names grant nothing.
func (r *Resolver) activeRoles(assignments []Assignment) []Role {
	now := r.now()
	seen := make(map[string]struct{}, len(assignments))
	roles := make([]Role, 0, len(assignments))
	for _, a := range assignments {
		if !a.ActiveAt(now) {
			continue
		}
		role, ok := r.table.roles[normaliseRoleName(a.Role)]
		if !ok {
			continue
		}
		if _, dup := seen[role.Name]; dup {
			continue
		}
		seen[role.Name] = struct{}{}
		roles = append(roles, role)
	}
	return roles
}

// EffectivePermissions unions the permissions of every active assignment.
func (r *Resolver) EffectivePermissions(assignments []Assignment) PermissionSet {
	set := make(PermissionSet)
	for _, role := range r.activeRoles(assignments) {
		for id := range r.table.permissionsOf(role) {
			set[id] = struct{}{}
		}
	}
	return set
}

// HasPermission reports whether any active assignment grants permission.
func (r *Resolver) HasPermission(assignments []Assignment, permission string) bool {
	for _, role := range r.activeRoles(assignments) {
		if _, ok := r.table.permissionsOf(role)[permission]; ok {
			return true
		}
	}
	return false
}

// HasRole reports whether role is among the active assignments.
func (r *Resolver) HasRole(assignments []Assignment, role string) bool {
	name := normaliseRoleName(role)
	for _, active := range r.activeRoles(assignments) {
		if active.Name == name {
			return true
		}
	}
	return false
}

// MaxLevel returns the highest level among active assignments, or 0 when none is active.
func (r *Resolver) MaxLevel(assignments []Assignment) int {
	level := 0
	for _, role := range r.activeRoles(assignments) {
		if role.Level > level {
			level = role.Level
		}
	}
	return level
}

// RoleNames returns the active role names ordered by descending level.
func (r *Resolver) RoleNames(assignments []Assignment) []string {
	roles := r.activeRoles(assignments)
	sort.Slice(roles, func(i, j int) bool {
		if roles[i].Level != roles[j].Level {
			return roles[i].Level > roles[j].Level
		}
		return roles[i].Name < roles[j].Name
	})

	names := make([]string, len(roles))
	for i, role := range roles {
		names[i] = role.Name
	}
	return names
}
