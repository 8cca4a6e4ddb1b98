package rbac

// Permission names, formatted "entity:action".
const (
	PermUserCreate = "user:create"
	PermUserRead   = "user:read"
	PermUserUpdate = "user:update"
	PermUserDelete = "user:delete"
	PermUserList   = "user:list"

	PermRoleCreate = "role:create"
	PermRoleRead   = "role:read"
	PermRoleUpdate = "role:update"
	PermRoleDelete = "role:delete"
	PermRoleList   = "role:list"
	PermRoleAssign = "role:assign"

	PermPermissionCreate = "permission:create"
	PermPermissionRead   = "permission:read"
	PermPermissionUpdate = "permission:update"
	PermPermissionDelete = "permission:delete"
	PermPermissionList   = "permission:list"
	PermPermissionAssign = "permission:assign"

	PermAuthLogin          = "auth:login"
	PermAuthRegister       = "auth:register"
	PermAuthLogout         = "auth:logout"
	PermAuthChangePassword = "auth:change-password"

	PermTenantCreate = "tenant:create"
	PermTenantRead   = "tenant:read"
	PermTenantUpdate = "tenant:update"
	PermTenantDelete = "tenant:delete"
	PermTenantList   = "tenant:list"
	PermTenantAssign = "tenant:assign"

	PermFileUpload   = "file:upload"
	PermFileRead     = "file:read"
	PermFileDownload = "file:download"
)

// Default role names.
const (
	RoleSuperAdmin = "super_admin"
	RoleAdmin      = "admin"
	RoleUser       = "user"
	RoleGuest      = "guest"
)

var catalog = []struct {
	entity string
	perms  []string
}{
	{"user", []string{PermUserCreate, PermUserRead, PermUserUpdate, PermUserDelete, PermUserList}},
	{"role", []string{PermRoleCreate, PermRoleRead, PermRoleUpdate, PermRoleDelete, PermRoleList, PermRoleAssign}},
	{"permission", []string{PermPermissionCreate, PermPermissionRead, PermPermissionUpdate, PermPermissionDelete, PermPermissionList, PermPermissionAssign}},
	{"auth", []string{PermAuthLogin, PermAuthRegister, PermAuthLogout, PermAuthChangePassword}},
	{"tenant", []string{PermTenantCreate, PermTenantRead, PermTenantUpdate, PermTenantDelete, PermTenantList, PermTenantAssign}},
	{"file", []string{PermFileUpload, PermFileRead, PermFileDownload}},
}

// RoleDefinition is the desired state of a persisted role.
type RoleDefinition struct {
	Name        string
	Description string
	Permissions []string
}

// AllPermissions lists every catalog permission.
func AllPermissions() []string {
	var out []string
	for _, group := range catalog {
		out = append(out, group.perms...)
	}
	return out
}

// PermissionsByEntity lists the permissions of one entity, nil when unknown.
func PermissionsByEntity(entity string) []string {
	for _, group := range catalog {
		if group.entity == entity {
			return append([]string(nil), group.perms...)
		}
	}
	return nil
}

// PermissionDescription is the description stored for newly synced permissions.
func PermissionDescription(name string) string {
	return "Permission for " + name
}

// DefaultRoles returns the roles the synchronizer reconciles.
func DefaultRoles() []RoleDefinition {
	admin := PermissionsByEntity("user")
	admin = append(admin, PermRoleRead, PermRoleList, PermRoleAssign, PermPermissionRead, PermPermissionList)
	admin = append(admin, PermissionsByEntity("auth")...)

	return []RoleDefinition{
		{
			Name:        RoleSuperAdmin,
			Description: "Super administrator with every permission",
			Permissions: AllPermissions(),
		},
		{
			Name:        RoleAdmin,
			Description: "Administrator managing users and role assignments",
			Permissions: admin,
		},
		{
			Name:        RoleUser,
			Description: "Regular user with access to their own profile",
			Permissions: []string{PermUserRead, PermUserUpdate, PermAuthLogin, PermAuthLogout, PermAuthChangePassword},
		},
		{
			Name:        RoleGuest,
			Description: "Guest allowed to sign in and register",
			Permissions: []string{PermAuthLogin, PermAuthRegister},
		},
	}
}
