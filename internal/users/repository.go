package users

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/odyssey-iam/internal/platform/db"
	"github.com/odyssey-erp/odyssey-iam/internal/shared"
)

// ListRules are the sort fields and filters accepted by ListUsers.
var ListRules = shared.CriteriaRules{
	SortFields: []string{"createdAt", "username"},
	FilterKeys: []string{"username"},
}

var sortColumns = map[string]string{
	"createdAt": "created_at",
	"username":  "username",
}

// Repository exposes reads outside a transaction and the unit of work.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error

	FindByID(ctx context.Context, id string) (User, error)
	List(ctx context.Context, c shared.Criteria) ([]User, int, error)
	RoleNames(ctx context.Context, userID string) ([]string, error)
	DirectPermissions(ctx context.Context, userID string) ([]string, error)
	Memberships(ctx context.Context, userID string) ([]TenantMembership, error)
}

// TxRepository groups the user directory and ledger writes of one transaction.
type TxRepository interface {
	FindByID(ctx context.Context, id string) (User, error)
	FindByUsername(ctx context.Context, username string) (User, error)
	// LockUser takes a row lock on the user so membership changes serialize.
	LockUser(ctx context.Context, id string) error
	CreateUser(ctx context.Context, u User) error
	UpdateUser(ctx context.Context, u User) error

	ExistingTenantIDs(ctx context.Context, ids []string) ([]string, error)
	FindTenantBySlug(ctx context.Context, slug string) (string, error)
	CreateTenant(ctx context.Context, id, name, slug, description string) error

	TenantIDs(ctx context.Context, userID string) ([]string, error)
	AddMembership(ctx context.Context, userID, tenantID string, isDefault bool) error
	RemoveMemberships(ctx context.Context, userID string, tenantIDs []string) error
	DefaultTenantID(ctx context.Context, userID string) (string, error)
	ClearDefaultTenant(ctx context.Context, userID string) error
	MarkDefaultTenant(ctx context.Context, userID, tenantID string) error

	FindRoleID(ctx context.Context, name string) (string, error)
	AddRole(ctx context.Context, userID, roleID string) (bool, error)
	RemoveRole(ctx context.Context, userID, roleID string) (bool, error)
	FindPermissionID(ctx context.Context, name string) (string, error)
	AddPermission(ctx context.Context, userID, permissionID string) (bool, error)
	RemovePermission(ctx context.Context, userID, permissionID string) (bool, error)
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

// NewRepository constructs a PostgreSQL backed repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &pgRepository{pool: pool, pgTxRepository: pgTxRepository{q: pool}}
}

func (r *pgRepository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &pgTxRepository{q: tx})
	})
}

const userColumns = `id, username, password_hash, created_at, updated_at`

func scanUser(row pgx.Row) (User, error) {
	var u User
	err := row.Scan(&u.ID, &u.Username, &u.PasswordHash, &u.CreatedAt, &u.UpdatedAt)
	return u, err
}

func (r *pgTxRepository) findUser(ctx context.Context, where string, arg any) (User, error) {
	u, err := scanUser(r.q.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE `+where, arg))
	if err != nil {
		if db.IsNoRows(err) {
			return User{}, shared.ErrNotFound
		}
		return User{}, fmt.Errorf("users: find user: %w", err)
	}
	return u, nil
}

func (r *pgTxRepository) FindByID(ctx context.Context, id string) (User, error) {
	return r.findUser(ctx, `id = $1`, id)
}

func (r *pgTxRepository) FindByUsername(ctx context.Context, username string) (User, error) {
	return r.findUser(ctx, `username = $1`, username)
}

func (r *pgTxRepository) LockUser(ctx context.Context, id string) error {
	var locked string
	err := r.q.QueryRow(ctx, `SELECT id FROM users WHERE id = $1 FOR UPDATE`, id).Scan(&locked)
	if err != nil {
		if db.IsNoRows(err) {
			return shared.ErrNotFound
		}
		return fmt.Errorf("users: lock user: %w", err)
	}
	return nil
}

func (r *pgTxRepository) CreateUser(ctx context.Context, u User) error {
	_, err := r.q.Exec(ctx, `INSERT INTO users (id, username, password_hash, created_at, updated_at) VALUES ($1, $2, $3, $4, $5)`,
		u.ID, u.Username, u.PasswordHash, u.CreatedAt, u.UpdatedAt)
	if err != nil {
		return fmt.Errorf("users: insert user: %w", err)
	}
	return nil
}

func (r *pgTxRepository) UpdateUser(ctx context.Context, u User) error {
	_, err := r.q.Exec(ctx, `UPDATE users SET username = $2, password_hash = $3, updated_at = $4 WHERE id = $1`,
		u.ID, u.Username, u.PasswordHash, u.UpdatedAt)
	if err != nil {
		return fmt.Errorf("users: update user: %w", err)
	}
	return nil
}

func (r *pgTxRepository) ExistingTenantIDs(ctx context.Context, ids []string) ([]string, error) {
	rows, err := r.q.Query(ctx, `SELECT id FROM tenants WHERE id = ANY($1::uuid[])`, ids)
	if err != nil {
		return nil, fmt.Errorf("users: resolve tenants: %w", err)
	}
	found, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("users: resolve tenants: %w", err)
	}
	return found, nil
}

func (r *pgTxRepository) FindTenantBySlug(ctx context.Context, slug string) (string, error) {
	var id string
	err := r.q.QueryRow(ctx, `SELECT id FROM tenants WHERE slug = $1`, slug).Scan(&id)
	if err != nil {
		if db.IsNoRows(err) {
			return "", shared.ErrNotFound
		}
		return "", fmt.Errorf("users: find tenant: %w", err)
	}
	return id, nil
}

func (r *pgTxRepository) CreateTenant(ctx context.Context, id, name, slug, description string) error {
	_, err := r.q.Exec(ctx, `INSERT INTO tenants (id, name, slug, description) VALUES ($1, $2, $3, $4)`, id, name, slug, description)
	if err != nil {
		return fmt.Errorf("users: insert tenant: %w", err)
	}
	return nil
}

func (r *pgTxRepository) TenantIDs(ctx context.Context, userID string) ([]string, error) {
	rows, err := r.q.Query(ctx, `SELECT tenant_id FROM user_tenants WHERE user_id = $1 ORDER BY created_at, tenant_id`, userID)
	if err != nil {
		return nil, fmt.Errorf("users: list user tenants: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("users: list user tenants: %w", err)
	}
	return ids, nil
}

func (r *pgTxRepository) AddMembership(ctx context.Context, userID, tenantID string, isDefault bool) error {
	_, err := r.q.Exec(ctx, `INSERT INTO user_tenants (user_id, tenant_id, is_default) VALUES ($1, $2, $3)`, userID, tenantID, isDefault)
	if err != nil {
		return fmt.Errorf("users: insert user tenant: %w", err)
	}
	return nil
}

func (r *pgTxRepository) RemoveMemberships(ctx context.Context, userID string, tenantIDs []string) error {
	_, err := r.q.Exec(ctx, `DELETE FROM user_tenants WHERE user_id = $1 AND tenant_id = ANY($2::uuid[])`, userID, tenantIDs)
	if err != nil {
		return fmt.Errorf("users: delete user tenants: %w", err)
	}
	return nil
}

func (r *pgTxRepository) DefaultTenantID(ctx context.Context, userID string) (string, error) {
	var id string
	err := r.q.QueryRow(ctx, `SELECT tenant_id FROM user_tenants WHERE user_id = $1 AND is_default`, userID).Scan(&id)
	if err != nil {
		if db.IsNoRows(err) {
			return "", shared.ErrNotFound
		}
		return "", fmt.Errorf("users: find default tenant: %w", err)
	}
	return id, nil
}

func (r *pgTxRepository) ClearDefaultTenant(ctx context.Context, userID string) error {
	_, err := r.q.Exec(ctx, `UPDATE user_tenants SET is_default = FALSE WHERE user_id = $1 AND is_default`, userID)
	if err != nil {
		return fmt.Errorf("users: clear default tenant: %w", err)
	}
	return nil
}

func (r *pgTxRepository) MarkDefaultTenant(ctx context.Context, userID, tenantID string) error {
	tag, err := r.q.Exec(ctx, `UPDATE user_tenants SET is_default = TRUE WHERE user_id = $1 AND tenant_id = $2`, userID, tenantID)
	if err != nil {
		return fmt.Errorf("users: set default tenant: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func (r *pgTxRepository) findID(ctx context.Context, table, name string) (string, error) {
	var id string
	err := r.q.QueryRow(ctx, `SELECT id FROM `+table+` WHERE name = $1`, name).Scan(&id)
	if err != nil {
		if db.IsNoRows(err) {
			return "", shared.ErrNotFound
		}
		return "", fmt.Errorf("users: find %s %s: %w", strings.TrimSuffix(table, "s"), name, err)
	}
	return id, nil
}

func (r *pgTxRepository) FindRoleID(ctx context.Context, name string) (string, error) {
	return r.findID(ctx, "roles", name)
}

func (r *pgTxRepository) FindPermissionID(ctx context.Context, name string) (string, error) {
	return r.findID(ctx, "permissions", name)
}

func (r *pgTxRepository) AddRole(ctx context.Context, userID, roleID string) (bool, error) {
	tag, err := r.q.Exec(ctx, `INSERT INTO user_roles (user_id, role_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`, userID, roleID)
	if err != nil {
		return false, fmt.Errorf("users: insert user role: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (r *pgTxRepository) RemoveRole(ctx context.Context, userID, roleID string) (bool, error) {
	tag, err := r.q.Exec(ctx, `DELETE FROM user_roles WHERE user_id = $1 AND role_id = $2`, userID, roleID)
	if err != nil {
		return false, fmt.Errorf("users: delete user role: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (r *pgTxRepository) AddPermission(ctx context.Context, userID, permissionID string) (bool, error) {
	tag, err := r.q.Exec(ctx, `INSERT INTO user_permissions (user_id, permission_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`, userID, permissionID)
	if err != nil {
		return false, fmt.Errorf("users: insert user permission: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (r *pgTxRepository) RemovePermission(ctx context.Context, userID, permissionID string) (bool, error) {
	tag, err := r.q.Exec(ctx, `DELETE FROM user_permissions WHERE user_id = $1 AND permission_id = $2`, userID, permissionID)
	if err != nil {
		return false, fmt.Errorf("users: delete user permission: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (r *pgRepository) List(ctx context.Context, c shared.Criteria) ([]User, int, error) {
	var (
		where string
		args  []any
	)
	if names := c.Filters["username"]; len(names) > 0 {
		var alts []string
		for _, n := range names {
			args = append(args, "%"+n+"%")
			alts = append(alts, fmt.Sprintf("username ILIKE $%d", len(args)))
		}
		where = " WHERE " + strings.Join(alts, " OR ")
	}
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM users`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("users: count users: %w", err)
	}
	query := fmt.Sprintf(`SELECT %s FROM users%s ORDER BY %s %s LIMIT $%d OFFSET $%d`,
		userColumns, where, sortColumns[c.SortBy], strings.ToUpper(c.OrderBy), len(args)+1, len(args)+2)
	rows, err := r.pool.Query(ctx, query, append(args, c.Limit, c.Offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("users: list users: %w", err)
	}
	defer rows.Close()
	var out []User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("users: scan user: %w", err)
		}
		out = append(out, u)
	}
	return out, total, rows.Err()
}

func (r *pgRepository) names(ctx context.Context, op, query, userID string) ([]string, error) {
	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("users: %s: %w", op, err)
	}
	out, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("users: %s: %w", op, err)
	}
	return out, nil
}

func (r *pgRepository) RoleNames(ctx context.Context, userID string) ([]string, error) {
	return r.names(ctx, "list user roles", `SELECT r.name FROM user_roles ur JOIN roles r ON r.id = ur.role_id WHERE ur.user_id = $1 ORDER BY r.name`, userID)
}

func (r *pgRepository) DirectPermissions(ctx context.Context, userID string) ([]string, error) {
	return r.names(ctx, "list user permissions", `SELECT p.name FROM user_permissions up JOIN permissions p ON p.id = up.permission_id WHERE up.user_id = $1 ORDER BY p.name`, userID)
}

func (r *pgRepository) Memberships(ctx context.Context, userID string) ([]TenantMembership, error) {
	rows, err := r.pool.Query(ctx, `SELECT t.id, t.name, t.slug, ut.is_default
FROM user_tenants ut
JOIN tenants t ON t.id = ut.tenant_id
WHERE ut.user_id = $1
ORDER BY ut.is_default DESC, t.name`, userID)
	if err != nil {
		return nil, fmt.Errorf("users: list memberships: %w", err)
	}
	defer rows.Close()
	var out []TenantMembership
	for rows.Next() {
		var m TenantMembership
		if err := rows.Scan(&m.ID, &m.Name, &m.Slug, &m.IsDefault); err != nil {
			return nil, fmt.Errorf("users: scan membership: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}
