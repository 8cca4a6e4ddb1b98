package users

import (
	"context"
	"errors"
	"maps"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/odyssey-erp/odyssey-iam/internal/shared"
)

type membership struct {
	tenantID  string
	isDefault bool
	seq       int
}

type tenantRow struct {
	id, name, slug string
}

// memoryRepo mirrors the relational ledgers closely enough to check invariants.
type memoryRepo struct {
	users       map[string]User
	tenants     map[string]tenantRow
	memberships map[string][]membership
	roles       map[string]string // name -> id
	permissions map[string]string // name -> id
	rolePerms   map[string][]string
	userRoles   map[string][]string
	userPerms   map[string][]string
	seq         int
	writes      int
	failOn      string
}

type memoryTx struct {
	repo *memoryRepo
}

var errInjected = errors.New("injected failure")

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		users:       map[string]User{},
		tenants:     map[string]tenantRow{},
		memberships: map[string][]membership{},
		roles:       map[string]string{},
		permissions: map[string]string{},
		rolePerms:   map[string][]string{},
		userRoles:   map[string][]string{},
		userPerms:   map[string][]string{},
	}
}

func (r *memoryRepo) addTenant(id, name string) {
	r.tenants[id] = tenantRow{id: id, name: name, slug: shared.Slugify(name)}
}

func cloneSlices[T any](m map[string][]T) map[string][]T {
	out := make(map[string][]T, len(m))
	for k, v := range m {
		out[k] = slices.Clone(v)
	}
	return out
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	users, tenants := maps.Clone(r.users), maps.Clone(r.tenants)
	memberships, userRoles, userPerms := cloneSlices(r.memberships), cloneSlices(r.userRoles), cloneSlices(r.userPerms)
	writes := r.writes
	if err := fn(ctx, &memoryTx{repo: r}); err != nil {
		r.users, r.tenants = users, tenants
		r.memberships, r.userRoles, r.userPerms = memberships, userRoles, userPerms
		r.writes = writes
		return err
	}
	return nil
}

func (r *memoryRepo) FindByID(ctx context.Context, id string) (User, error) {
	u, ok := r.users[id]
	if !ok {
		return User{}, shared.ErrNotFound
	}
	return u, nil
}

func (r *memoryRepo) List(ctx context.Context, c shared.Criteria) ([]User, int, error) {
	var all []User
	for _, u := range r.users {
		all = append(all, u)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].Username < all[j].Username })
	if c.Offset >= len(all) {
		return nil, len(all), nil
	}
	return all[c.Offset:min(c.Offset+c.Limit, len(all))], len(all), nil
}

func (r *memoryRepo) RoleNames(ctx context.Context, userID string) ([]string, error) {
	var out []string
	for name, id := range r.roles {
		if slices.Contains(r.userRoles[userID], id) {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (r *memoryRepo) DirectPermissions(ctx context.Context, userID string) ([]string, error) {
	var out []string
	for name, id := range r.permissions {
		if slices.Contains(r.userPerms[userID], id) {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (r *memoryRepo) Memberships(ctx context.Context, userID string) ([]TenantMembership, error) {
	var out []TenantMembership
	for _, m := range r.memberships[userID] {
		t := r.tenants[m.tenantID]
		out = append(out, TenantMembership{ID: t.id, Name: t.name, Slug: t.slug, IsDefault: m.isDefault})
	}
	return out, nil
}

// EffectivePermissions lets the repo double as the Permissions collaborator.
func (r *memoryRepo) EffectivePermissions(ctx context.Context, userID string) ([]string, error) {
	set := map[string]struct{}{}
	for _, roleID := range r.userRoles[userID] {
		for _, name := range r.rolePerms[roleID] {
			set[name] = struct{}{}
		}
	}
	direct, _ := r.DirectPermissions(ctx, userID)
	for _, name := range direct {
		set[name] = struct{}{}
	}
	return slices.Collect(maps.Keys(set)), nil
}

func (r *memoryRepo) defaults(userID string) []string {
	var out []string
	for _, m := range r.memberships[userID] {
		if m.isDefault {
			out = append(out, m.tenantID)
		}
	}
	return out
}

func (t *memoryTx) write(op string) error {
	if t.repo.failOn == op {
		return errInjected
	}
	t.repo.writes++
	return nil
}

func (t *memoryTx) FindByID(ctx context.Context, id string) (User, error) {
	return t.repo.FindByID(ctx, id)
}

func (t *memoryTx) FindByUsername(ctx context.Context, username string) (User, error) {
	for _, u := range t.repo.users {
		if u.Username == username {
			return u, nil
		}
	}
	return User{}, shared.ErrNotFound
}

func (t *memoryTx) LockUser(ctx context.Context, id string) error {
	if _, ok := t.repo.users[id]; !ok {
		return shared.ErrNotFound
	}
	return nil
}

func (t *memoryTx) CreateUser(ctx context.Context, u User) error {
	if err := t.write("CreateUser"); err != nil {
		return err
	}
	t.repo.users[u.ID] = u
	return nil
}

func (t *memoryTx) UpdateUser(ctx context.Context, u User) error {
	if err := t.write("UpdateUser"); err != nil {
		return err
	}
	t.repo.users[u.ID] = u
	return nil
}

func (t *memoryTx) ExistingTenantIDs(ctx context.Context, ids []string) ([]string, error) {
	var out []string
	for _, id := range ids {
		if _, ok := t.repo.tenants[id]; ok {
			out = append(out, id)
		}
	}
	return out, nil
}

func (t *memoryTx) FindTenantBySlug(ctx context.Context, slug string) (string, error) {
	for _, tr := range t.repo.tenants {
		if tr.slug == slug {
			return tr.id, nil
		}
	}
	return "", shared.ErrNotFound
}

func (t *memoryTx) CreateTenant(ctx context.Context, id, name, slug, description string) error {
	if err := t.write("CreateTenant"); err != nil {
		return err
	}
	t.repo.tenants[id] = tenantRow{id: id, name: name, slug: slug}
	return nil
}

func (t *memoryTx) TenantIDs(ctx context.Context, userID string) ([]string, error) {
	ms := slices.Clone(t.repo.memberships[userID])
	sort.Slice(ms, func(i, j int) bool { return ms[i].seq < ms[j].seq })
	var out []string
	for _, m := range ms {
		out = append(out, m.tenantID)
	}
	return out, nil
}

func (t *memoryTx) AddMembership(ctx context.Context, userID, tenantID string, isDefault bool) error {
	if err := t.write("AddMembership"); err != nil {
		return err
	}
	for _, m := range t.repo.memberships[userID] {
		if m.tenantID == tenantID {
			return errors.New("duplicate user tenant")
		}
	}
	t.repo.seq++
	t.repo.memberships[userID] = append(t.repo.memberships[userID], membership{tenantID: tenantID, isDefault: isDefault, seq: t.repo.seq})
	return t.checkDefaultIndex(userID)
}

func (t *memoryTx) RemoveMemberships(ctx context.Context, userID string, tenantIDs []string) error {
	if err := t.write("RemoveMemberships"); err != nil {
		return err
	}
	t.repo.memberships[userID] = slices.DeleteFunc(t.repo.memberships[userID], func(m membership) bool {
		return slices.Contains(tenantIDs, m.tenantID)
	})
	return nil
}

func (t *memoryTx) DefaultTenantID(ctx context.Context, userID string) (string, error) {
	if d := t.repo.defaults(userID); len(d) > 0 {
		return d[0], nil
	}
	return "", shared.ErrNotFound
}

func (t *memoryTx) ClearDefaultTenant(ctx context.Context, userID string) error {
	if err := t.write("ClearDefaultTenant"); err != nil {
		return err
	}
	for i := range t.repo.memberships[userID] {
		t.repo.memberships[userID][i].isDefault = false
	}
	return nil
}

func (t *memoryTx) MarkDefaultTenant(ctx context.Context, userID, tenantID string) error {
	if err := t.write("MarkDefaultTenant"); err != nil {
		return err
	}
	for i, m := range t.repo.memberships[userID] {
		if m.tenantID == tenantID {
			t.repo.memberships[userID][i].isDefault = true
			return t.checkDefaultIndex(userID)
		}
	}
	return shared.ErrNotFound
}

// checkDefaultIndex emulates the partial unique index on user_tenants(user_id) WHERE is_default.
func (t *memoryTx) checkDefaultIndex(userID string) error {
	if len(t.repo.defaults(userID)) > 1 {
		return errors.New("duplicate key value violates unique constraint \"uq_user_tenants_default\"")
	}
	return nil
}

func (t *memoryTx) FindRoleID(ctx context.Context, name string) (string, error) {
	if id, ok := t.repo.roles[name]; ok {
		return id, nil
	}
	return "", shared.ErrNotFound
}

func (t *memoryTx) FindPermissionID(ctx context.Context, name string) (string, error) {
	if id, ok := t.repo.permissions[name]; ok {
		return id, nil
	}
	return "", shared.ErrNotFound
}

func addUnique(m map[string][]string, key, value string) bool {
	if slices.Contains(m[key], value) {
		return false
	}
	m[key] = append(m[key], value)
	return true
}

func removeValue(m map[string][]string, key, value string) bool {
	before := len(m[key])
	m[key] = slices.DeleteFunc(m[key], func(v string) bool { return v == value })
	return len(m[key]) < before
}

func (t *memoryTx) AddRole(ctx context.Context, userID, roleID string) (bool, error) {
	if err := t.write("AddRole"); err != nil {
		return false, err
	}
	return addUnique(t.repo.userRoles, userID, roleID), nil
}

func (t *memoryTx) RemoveRole(ctx context.Context, userID, roleID string) (bool, error) {
	return removeValue(t.repo.userRoles, userID, roleID), nil
}

func (t *memoryTx) AddPermission(ctx context.Context, userID, permissionID string) (bool, error) {
	return addUnique(t.repo.userPerms, userID, permissionID), nil
}

func (t *memoryTx) RemovePermission(ctx context.Context, userID, permissionID string) (bool, error) {
	return removeValue(t.repo.userPerms, userID, permissionID), nil
}

type prefixHasher struct{}

func (prefixHasher) Hash(p string) (string, error) { return "hashed:" + p, nil }

// cachePerms wraps the repo to observe invalidations.
type cachePerms struct {
	*memoryRepo
	invalidated []string
}

func (c *cachePerms) Invalidate(userID string) {
	c.invalidated = append(c.invalidated, userID)
}

type captureAudit struct {
	entries []shared.AuditLog
}

func (a *captureAudit) Record(ctx context.Context, log shared.AuditLog) error {
	a.entries = append(a.entries, log)
	return nil
}

func (a *captureAudit) actions() []string {
	var out []string
	for _, e := range a.entries {
		out = append(out, e.Action)
	}
	return out
}

func fixedClock() func() time.Time {
	ts := time.Date(2025, 2, 3, 4, 5, 6, 0, time.UTC)
	return func() time.Time { return ts }
}

func joinIDs(ids ...string) string { return strings.Join(ids, ", ") }
