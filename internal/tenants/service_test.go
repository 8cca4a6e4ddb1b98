package tenants

import (
	"bytes"
	"context"
	"encoding/json"
	"maps"
	"net/http"
	"net/http/httptest"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-iam/internal/shared"
)

type memoryRepo struct {
	tenants map[string]Tenant
}

type memoryTx struct {
	repo *memoryRepo
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{tenants: map[string]Tenant{}}
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	snapshot := maps.Clone(r.tenants)
	if err := fn(ctx, &memoryTx{repo: r}); err != nil {
		r.tenants = snapshot
		return err
	}
	return nil
}

func (r *memoryRepo) FindByID(ctx context.Context, id string) (Tenant, error) {
	t, ok := r.tenants[id]
	if !ok {
		return Tenant{}, shared.ErrNotFound
	}
	return t, nil
}

func (r *memoryRepo) List(ctx context.Context, c shared.Criteria) ([]Tenant, int, error) {
	var all []Tenant
	for _, t := range r.tenants {
		if names := c.Filters["name"]; len(names) > 0 && !slices.ContainsFunc(names, func(n string) bool {
			return strings.Contains(strings.ToLower(t.Name), strings.ToLower(n))
		}) {
			continue
		}
		all = append(all, t)
	}
	slices.SortFunc(all, func(a, b Tenant) int { return strings.Compare(a.Name, b.Name) })
	total := len(all)
	end := min(c.Offset+c.Limit, total)
	if c.Offset >= total {
		return nil, total, nil
	}
	return all[c.Offset:end], total, nil
}

func (t *memoryTx) FindByID(ctx context.Context, id string) (Tenant, error) {
	return t.repo.FindByID(ctx, id)
}

func (t *memoryTx) find(match func(Tenant) bool) (Tenant, error) {
	for _, tenant := range t.repo.tenants {
		if match(tenant) {
			return tenant, nil
		}
	}
	return Tenant{}, shared.ErrNotFound
}

func (t *memoryTx) FindByName(ctx context.Context, name string) (Tenant, error) {
	return t.find(func(x Tenant) bool { return x.Name == name })
}

func (t *memoryTx) FindBySlug(ctx context.Context, slug string) (Tenant, error) {
	return t.find(func(x Tenant) bool { return x.Slug == slug })
}

func (t *memoryTx) Create(ctx context.Context, tenant Tenant) error {
	t.repo.tenants[tenant.ID] = tenant
	return nil
}

func (t *memoryTx) Update(ctx context.Context, tenant Tenant) error {
	t.repo.tenants[tenant.ID] = tenant
	return nil
}

type captureAudit struct {
	actions []string
}

func (a *captureAudit) Record(ctx context.Context, log shared.AuditLog) error {
	a.actions = append(a.actions, log.Action)
	return nil
}

func ptr[T any](v T) *T { return &v }

func TestCreateTenant(t *testing.T) {
	repo := newMemoryRepo()
	audit := &captureAudit{}
	svc := NewService(repo, audit, nil)
	svc.now = func() time.Time { return time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC) }

	tenant, err := svc.CreateTenant(context.Background(), CreateInput{Name: "  Café Société ", Description: "HQ"})
	require.NoError(t, err)
	assert.Equal(t, "Café Société", tenant.Name)
	assert.Equal(t, "cafe-societe", tenant.Slug)
	assert.Equal(t, tenant, repo.tenants[tenant.ID])
	assert.Equal(t, []string{"tenant.created"}, audit.actions)
}

func TestCreateTenantConflicts(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil)
	ctx := context.Background()

	_, err := svc.CreateTenant(ctx, CreateInput{Name: "Acme Corp"})
	require.NoError(t, err)

	_, err = svc.CreateTenant(ctx, CreateInput{Name: "Acme Corp"})
	require.Error(t, err)
	assert.Equal(t, shared.KindConflict, shared.KindOf(err))
	assert.Equal(t, "Tenant with name 'Acme Corp' already exists", err.Error())

	_, err = svc.CreateTenant(ctx, CreateInput{Name: "acme   corp"})
	require.Error(t, err)
	assert.Equal(t, "Tenant with slug 'acme-corp' already exists", err.Error())
	assert.Len(t, repo.tenants, 1)
}

func TestUpdateTenant(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil)
	ctx := context.Background()

	acme, err := svc.CreateTenant(ctx, CreateInput{Name: "Acme"})
	require.NoError(t, err)
	_, err = svc.CreateTenant(ctx, CreateInput{Name: "Globex"})
	require.NoError(t, err)

	updated, err := svc.UpdateTenant(ctx, acme.ID, UpdateInput{Name: ptr("Acme"), Description: ptr("same name is fine")})
	require.NoError(t, err)
	assert.Equal(t, "same name is fine", updated.Description)

	updated, err = svc.UpdateTenant(ctx, acme.ID, UpdateInput{Name: ptr("Acme Labs")})
	require.NoError(t, err)
	assert.Equal(t, "acme-labs", updated.Slug)

	_, err = svc.UpdateTenant(ctx, acme.ID, UpdateInput{Name: ptr("Globex")})
	require.Error(t, err)
	assert.Equal(t, "Tenant with name 'Globex' already exists", err.Error())
	assert.Equal(t, "Acme Labs", repo.tenants[acme.ID].Name)

	missing := "3c0a8f4e-1111-4222-8333-444455556666"
	_, err = svc.UpdateTenant(ctx, missing, UpdateInput{Name: ptr("Nope")})
	require.Error(t, err)
	assert.Equal(t, shared.KindNotFound, shared.KindOf(err))
	assert.Equal(t, "Tenant with ID "+missing+" not found", err.Error())

	_, err = svc.UpdateTenant(ctx, acme.ID, UpdateInput{})
	assert.Equal(t, shared.KindBadRequest, shared.KindOf(err))
}

func TestListTenantsPaging(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil)
	ctx := context.Background()
	for _, name := range []string{"Alpha", "Bravo", "Charlie"} {
		_, err := svc.CreateTenant(ctx, CreateInput{Name: name})
		require.NoError(t, err)
	}

	c := shared.NewCriteria()
	c.Limit = 2
	page, err := svc.ListTenants(ctx, c)
	require.NoError(t, err)
	assert.Len(t, page.Data, 2)
	assert.Equal(t, 3, page.Total)
	assert.Equal(t, 2, page.TotalPages)
	require.NotNil(t, page.NextPage)
	assert.Equal(t, 2, *page.NextPage)
	assert.Nil(t, page.PrevPage)

	c.SortBy = "description"
	_, err = svc.ListTenants(ctx, c)
	require.Error(t, err)
	assert.Equal(t, "Invalid sortBy field. Valid fields are: createdAt, name, slug", err.Error())
}

type allowAll struct{}

func (allowAll) Require(perms ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler { return next }
}

func TestHandlerCreateAndGet(t *testing.T) {
	repo := newMemoryRepo()
	h := NewHandler(nil, NewService(repo, nil, nil), allowAll{})
	r := chi.NewRouter()
	r.Route("/auth/tenants", h.MountRoutes)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/auth/tenants/", bytes.NewBufferString(`{"name":"Initech"}`)))
	require.Equal(t, http.StatusCreated, rec.Code)
	var created Tenant
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.Equal(t, "initech", created.Slug)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/auth/tenants/"+created.ID, nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/auth/tenants/", bytes.NewBufferString(`{"name":"ab"}`)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "name must be at least 3 characters long")

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/auth/tenants/not-a-uuid", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/auth/tenants/?sortBy=name&orderBy=asc", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"total":1`)
}
