package rbac

import (
	"context"
	"errors"
	"maps"
	"sort"
)

type memoryRepo struct {
	permissions map[string]Permission // by name
	roles       map[string]Role       // by name
	rolePerms   map[string]map[string]struct{}
	userPerms   map[string][]string
	lookups     int

	failCreateRole    map[string]bool
	failPermissionOps bool
}

type memoryTx struct {
	repo *memoryRepo
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		permissions:    map[string]Permission{},
		roles:          map[string]Role{},
		rolePerms:      map[string]map[string]struct{}{},
		userPerms:      map[string][]string{},
		failCreateRole: map[string]bool{},
	}
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	perms := maps.Clone(r.permissions)
	roles := maps.Clone(r.roles)
	rolePerms := make(map[string]map[string]struct{}, len(r.rolePerms))
	for k, v := range r.rolePerms {
		rolePerms[k] = maps.Clone(v)
	}
	if err := fn(ctx, &memoryTx{repo: r}); err != nil {
		r.permissions, r.roles, r.rolePerms = perms, roles, rolePerms
		return err
	}
	return nil
}

func (r *memoryRepo) ListRoles(ctx context.Context) ([]Role, error) {
	var out []Role
	for _, role := range r.roles {
		role.Permissions = r.permissionsOf(role.ID)
		out = append(out, role)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (r *memoryRepo) ListPermissions(ctx context.Context) ([]Permission, error) {
	var out []Permission
	for _, p := range r.permissions {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (r *memoryRepo) EffectivePermissions(ctx context.Context, userID string) ([]string, error) {
	r.lookups++
	set := map[string]struct{}{}
	for _, name := range r.userPerms[userID] {
		set[name] = struct{}{}
	}
	out := make([]string, 0, len(set))
	for name := range set {
		out = append(out, name)
	}
	sort.Strings(out)
	return out, nil
}

func (r *memoryRepo) permissionsOf(roleID string) []Permission {
	out := []Permission{}
	for _, p := range r.permissions {
		if _, ok := r.rolePerms[roleID][p.ID]; ok {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (t *memoryTx) FindPermissionsByNames(ctx context.Context, names []string) ([]Permission, error) {
	if t.repo.failPermissionOps {
		return nil, errors.New("permissions table unavailable")
	}
	var out []Permission
	for _, name := range names {
		if p, ok := t.repo.permissions[name]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

func (t *memoryTx) CreatePermission(ctx context.Context, perm Permission) error {
	t.repo.permissions[perm.Name] = perm
	return nil
}

func (t *memoryTx) FindRoleByName(ctx context.Context, name string) (Role, error) {
	role, ok := t.repo.roles[name]
	if !ok {
		return Role{}, ErrRoleNotFound
	}
	return role, nil
}

func (t *memoryTx) CreateRole(ctx context.Context, role Role) error {
	if t.repo.failCreateRole[role.Name] {
		return errors.New("insert rejected")
	}
	t.repo.roles[role.Name] = role
	return nil
}

func (t *memoryTx) UpdateRoleDescription(ctx context.Context, roleID, description string) error {
	for name, role := range t.repo.roles {
		if role.ID == roleID {
			role.Description = description
			t.repo.roles[name] = role
		}
	}
	return nil
}

func (t *memoryTx) ReplaceRolePermissions(ctx context.Context, roleID string, permissionIDs []string) error {
	set := make(map[string]struct{}, len(permissionIDs))
	for _, id := range permissionIDs {
		set[id] = struct{}{}
	}
	t.repo.rolePerms[roleID] = set
	return nil
}
