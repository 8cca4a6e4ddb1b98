package rbac

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/odyssey-iam/internal/platform/db"
)

// ErrRoleNotFound indicates that the requested role does not exist.
var ErrRoleNotFound = errors.New("rbac: role not found")

// Repository defines RBAC data access.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error

	ListRoles(ctx context.Context) ([]Role, error)
	ListPermissions(ctx context.Context) ([]Permission, error)
	EffectivePermissions(ctx context.Context, userID string) ([]string, error)
}

// TxRepository defines operations within a transaction.
type TxRepository interface {
	FindPermissionsByNames(ctx context.Context, names []string) ([]Permission, error)
	CreatePermission(ctx context.Context, perm Permission) error
	FindRoleByName(ctx context.Context, name string) (Role, error)
	CreateRole(ctx context.Context, role Role) error
	UpdateRoleDescription(ctx context.Context, roleID, description string) error
	// ReplaceRolePermissions makes permissionIDs the exact permission set of the role.
	ReplaceRolePermissions(ctx context.Context, roleID string, permissionIDs []string) error
}

var (
	_ Repository   = (*pgRepository)(nil)
	_ TxRepository = (*pgTxRepository)(nil)
)

type pgRepository struct {
	pool *pgxpool.Pool
}

type pgTxRepository struct {
	q db.Querier
}

// NewRepository constructs a PostgreSQL backed repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &pgRepository{pool: pool}
}

func (r *pgRepository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &pgTxRepository{q: tx})
	})
}

func (r *pgRepository) ListRoles(ctx context.Context) ([]Role, error) {
	rows, err := r.pool.Query(ctx, `SELECT r.id, r.name, r.description, r.created_at, r.updated_at,
       p.id, p.name, p.description
FROM roles r
LEFT JOIN role_permissions rp ON rp.role_id = r.id
LEFT JOIN permissions p ON p.id = rp.permission_id
ORDER BY r.name, p.name`)
	if err != nil {
		return nil, fmt.Errorf("rbac: list roles: %w", err)
	}
	defer rows.Close()

	var roles []Role
	index := make(map[string]int)
	for rows.Next() {
		var (
			role                      Role
			permID, permName, permDsc *string
		)
		if err := rows.Scan(&role.ID, &role.Name, &role.Description, &role.CreatedAt, &role.UpdatedAt, &permID, &permName, &permDsc); err != nil {
			return nil, fmt.Errorf("rbac: scan role: %w", err)
		}
		i, ok := index[role.ID]
		if !ok {
			role.Permissions = []Permission{}
			roles = append(roles, role)
			i = len(roles) - 1
			index[role.ID] = i
		}
		if permID != nil {
			roles[i].Permissions = append(roles[i].Permissions, Permission{ID: *permID, Name: deref(permName), Description: deref(permDsc)})
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rbac: list roles: %w", err)
	}
	return roles, nil
}

func (r *pgRepository) ListPermissions(ctx context.Context) ([]Permission, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, name, description FROM permissions ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("rbac: list permissions: %w", err)
	}
	defer rows.Close()
	var perms []Permission
	for rows.Next() {
		var p Permission
		if err := rows.Scan(&p.ID, &p.Name, &p.Description); err != nil {
			return nil, fmt.Errorf("rbac: scan permission: %w", err)
		}
		perms = append(perms, p)
	}
	return perms, rows.Err()
}

// EffectivePermissions returns the union of role-derived and directly granted permission names.
func (r *pgRepository) EffectivePermissions(ctx context.Context, userID string) ([]string, error) {
	rows, err := r.pool.Query(ctx, `SELECT p.name
FROM user_roles ur
JOIN role_permissions rp ON rp.role_id = ur.role_id
JOIN permissions p ON p.id = rp.permission_id
WHERE ur.user_id = $1
UNION
SELECT p.name
FROM user_permissions up
JOIN permissions p ON p.id = up.permission_id
WHERE up.user_id = $1
ORDER BY 1`, userID)
	if err != nil {
		return nil, fmt.Errorf("rbac: effective permissions: %w", err)
	}
	names, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("rbac: effective permissions: %w", err)
	}
	return names, nil
}

func (t *pgTxRepository) FindPermissionsByNames(ctx context.Context, names []string) ([]Permission, error) {
	rows, err := t.q.Query(ctx, `SELECT id, name, description FROM permissions WHERE name = ANY($1) ORDER BY name`, names)
	if err != nil {
		return nil, fmt.Errorf("rbac: find permissions: %w", err)
	}
	defer rows.Close()
	var perms []Permission
	for rows.Next() {
		var p Permission
		if err := rows.Scan(&p.ID, &p.Name, &p.Description); err != nil {
			return nil, fmt.Errorf("rbac: scan permission: %w", err)
		}
		perms = append(perms, p)
	}
	return perms, rows.Err()
}

func (t *pgTxRepository) CreatePermission(ctx context.Context, perm Permission) error {
	if perm.ID == "" {
		perm.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	_, err := t.q.Exec(ctx, `INSERT INTO permissions (id, name, description, created_at, updated_at) VALUES ($1, $2, $3, $4, $4)`,
		perm.ID, perm.Name, perm.Description, now)
	if err != nil {
		return fmt.Errorf("rbac: create permission %s: %w", perm.Name, err)
	}
	return nil
}

func (t *pgTxRepository) FindRoleByName(ctx context.Context, name string) (Role, error) {
	var role Role
	err := t.q.QueryRow(ctx, `SELECT id, name, description, created_at, updated_at FROM roles WHERE name = $1`, name).
		Scan(&role.ID, &role.Name, &role.Description, &role.CreatedAt, &role.UpdatedAt)
	if err != nil {
		if db.IsNoRows(err) {
			return Role{}, ErrRoleNotFound
		}
		return Role{}, fmt.Errorf("rbac: find role %s: %w", name, err)
	}
	return role, nil
}

func (t *pgTxRepository) CreateRole(ctx context.Context, role Role) error {
	now := time.Now().UTC()
	_, err := t.q.Exec(ctx, `INSERT INTO roles (id, name, description, created_at, updated_at) VALUES ($1, $2, $3, $4, $4)`,
		role.ID, role.Name, role.Description, now)
	if err != nil {
		return fmt.Errorf("rbac: create role %s: %w", role.Name, err)
	}
	return nil
}

func (t *pgTxRepository) UpdateRoleDescription(ctx context.Context, roleID, description string) error {
	_, err := t.q.Exec(ctx, `UPDATE roles SET description = $2, updated_at = NOW() WHERE id = $1`, roleID, description)
	if err != nil {
		return fmt.Errorf("rbac: update role %s: %w", roleID, err)
	}
	return nil
}

func (t *pgTxRepository) ReplaceRolePermissions(ctx context.Context, roleID string, permissionIDs []string) error {
	if permissionIDs == nil {
		permissionIDs = []string{}
	}
	if _, err := t.q.Exec(ctx, `DELETE FROM role_permissions WHERE role_id = $1 AND NOT (permission_id = ANY($2::uuid[]))`, roleID, permissionIDs); err != nil {
		return fmt.Errorf("rbac: detach role permissions: %w", err)
	}
	if _, err := t.q.Exec(ctx, `INSERT INTO role_permissions (role_id, permission_id)
SELECT $1::uuid, unnest($2::uuid[])
ON CONFLICT DO NOTHING`, roleID, permissionIDs); err != nil {
		return fmt.Errorf("rbac: attach role permissions: %w", err)
	}
	return nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
