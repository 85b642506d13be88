package permissions

// Permission identifiers used by the HTTP layer.
const (
	ProfileRead      = "profile.read"
	ProfileWrite     = "profile.write"
	ContentCreate    = "content.create"
	ContentModerate  = "content.moderate"
	UserView         = "user.view"
	UserManage       = "user.manage"
	RoleManage       = "role.manage"
	AuditView        = "audit.view"
	SessionViewAny   = "session.view_any"
	SessionRevokeAny = "session.revoke_any"
)

// DefaultCatalog returns the built-in permission catalog.
func DefaultCatalog() []Permission {
	return []Permission{
		{ID: ProfileRead, Description: "View own profile and sessions"},
		{ID: ProfileWrite, Description: "Edit own profile", Implies: []string{ProfileRead}},
		{ID: ContentCreate, Description: "Create content"},
		{ID: ContentModerate, Description: "Moderate content created by others", Implies: []string{ContentCreate}},
		{ID: UserView, Description: "View user accounts"},
		{ID: UserManage, Description: "Manage user accounts", Implies: []string{UserView}},
		{ID: RoleManage, Description: "Assign and revoke roles", Implies: []string{UserView}},
		{ID: AuditView, Description: "View audit records"},
		{ID: SessionViewAny, Description: "List sessions of any user"},
		{ID: SessionRevokeAny, Description: "Force logout of any session family", Implies: []string{SessionViewAny}},
	}
}

// DefaultRoles returns the built-in role ladder.
func DefaultRoles() []Role {
	return []Role{
		{Name: "guest", Level: 0, Description: "Anonymous guest", Permissions: []string{ProfileRead}},
		{Name: "user", Level: 10, Description: "Registered user", Permissions: []string{ProfileWrite, ContentCreate}},
		{Name: "moderator", Level: 50, Description: "Content moderator", Permissions: []string{ProfileWrite, ContentModerate, UserView}},
		{Name: "admin", Level: 80, Description: "Administrator", Permissions: []string{
			ProfileWrite, ContentModerate, UserManage, RoleManage, AuditView, SessionRevokeAny,
		}},
		{Name: "super_admin", Level: 100, Description: "Full system access", Permissions: []string{AllPermissions}},
	}
}

// DefaultRoleTable builds the table from DefaultRoles and DefaultCatalog.
func DefaultRoleTable() (*RoleTable, error) {
	return NewRoleTable(DefaultRoles(), DefaultCatalog())
}
