package tenants

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/odyssey-iam/internal/platform/db"
	"github.com/odyssey-erp/odyssey-iam/internal/shared"
)

// ListRules are the sort fields and filters accepted by ListTenants.
var ListRules = shared.CriteriaRules{
	SortFields: []string{"createdAt", "name", "slug"},
	FilterKeys: []string{"name", "slug"},
}

var sortColumns = map[string]string{
	"createdAt": "created_at",
	"name":      "name",
	"slug":      "slug",
}

// Repository defines tenant persistence.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error

	FindByID(ctx context.Context, id string) (Tenant, error)
	List(ctx context.Context, c shared.Criteria) ([]Tenant, int, error)
}

// TxRepository defines tenant operations inside a transaction.
type TxRepository interface {
	FindByID(ctx context.Context, id string) (Tenant, error)
	FindByName(ctx context.Context, name string) (Tenant, error)
	FindBySlug(ctx context.Context, slug string) (Tenant, error)
	Create(ctx context.Context, t Tenant) error
	Update(ctx context.Context, t Tenant) error
}

var (
	_ Repository   = (*pgRepository)(nil)
	_ TxRepository = (*pgTxRepository)(nil)
)

type pgRepository struct {
	pool *pgxpool.Pool
	pgTxRepository
}

type pgTxRepository struct {
	q db.Querier
}

// NewRepository constructs a PostgreSQL backed tenant repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &pgRepository{pool: pool, pgTxRepository: pgTxRepository{q: pool}}
}

func (r *pgRepository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &pgTxRepository{q: tx})
	})
}

const tenantColumns = `id, name, slug, description, created_at, updated_at`

func scanTenant(row pgx.Row) (Tenant, error) {
	var t Tenant
	err := row.Scan(&t.ID, &t.Name, &t.Slug, &t.Description, &t.CreatedAt, &t.UpdatedAt)
	return t, err
}

func (r *pgTxRepository) findOne(ctx context.Context, where string, arg any) (Tenant, error) {
	t, err := scanTenant(r.q.QueryRow(ctx, `SELECT `+tenantColumns+` FROM tenants WHERE `+where, arg))
	if err != nil {
		if db.IsNoRows(err) {
			return Tenant{}, shared.ErrNotFound
		}
		return Tenant{}, fmt.Errorf("tenants: find tenant: %w", err)
	}
	return t, nil
}

func (r *pgTxRepository) FindByID(ctx context.Context, id string) (Tenant, error) {
	return r.findOne(ctx, `id = $1`, id)
}

func (r *pgTxRepository) FindByName(ctx context.Context, name string) (Tenant, error) {
	return r.findOne(ctx, `name = $1`, name)
}

func (r *pgTxRepository) FindBySlug(ctx context.Context, slug string) (Tenant, error) {
	return r.findOne(ctx, `slug = $1`, slug)
}

func (r *pgTxRepository) Create(ctx context.Context, t Tenant) error {
	_, err := r.q.Exec(ctx, `INSERT INTO tenants (id, name, slug, description, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $5)`, t.ID, t.Name, t.Slug, t.Description, t.CreatedAt)
	if err != nil {
		return fmt.Errorf("tenants: insert tenant: %w", err)
	}
	return nil
}

func (r *pgTxRepository) Update(ctx context.Context, t Tenant) error {
	_, err := r.q.Exec(ctx, `UPDATE tenants SET name = $2, slug = $3, description = $4, updated_at = $5 WHERE id = $1`,
		t.ID, t.Name, t.Slug, t.Description, t.UpdatedAt)
	if err != nil {
		return fmt.Errorf("tenants: update tenant: %w", err)
	}
	return nil
}

func (r *pgRepository) List(ctx context.Context, c shared.Criteria) ([]Tenant, int, error) {
	where, args := filterClause(c.Filters)
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM tenants`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("tenants: count tenants: %w", err)
	}
	query := fmt.Sprintf(`SELECT %s FROM tenants%s ORDER BY %s %s LIMIT $%d OFFSET $%d`,
		tenantColumns, where, sortColumns[c.SortBy], strings.ToUpper(c.OrderBy), len(args)+1, len(args)+2)
	rows, err := r.pool.Query(ctx, query, append(args, c.Limit, c.Offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("tenants: list tenants: %w", err)
	}
	defer rows.Close()
	var out []Tenant
	for rows.Next() {
		t, err := scanTenant(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("tenants: scan tenant: %w", err)
		}
		out = append(out, t)
	}
	return out, total, rows.Err()
}

// filterClause turns validated filters into case-insensitive substring matches.
func filterClause(filters map[string][]string) (string, []any) {
	var (
		conds []string
		args  []any
	)
	for _, key := range ListRules.FilterKeys {
		values := filters[key]
		if len(values) == 0 {
			continue
		}
		var alts []string
		for _, v := range values {
			args = append(args, "%"+v+"%")
			alts = append(alts, fmt.Sprintf("%s ILIKE $%d", sortColumns[key], len(args)))
		}
		conds = append(conds, "("+strings.Join(alts, " OR ")+")")
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}
