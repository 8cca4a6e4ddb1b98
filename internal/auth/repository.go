package auth

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/odyssey-iam/internal/platform/db"
	"github.com/odyssey-erp/odyssey-iam/internal/shared"
)

// Repository defines persistence required by the session issuer and recovery flow.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error

	FindAccountByUsername(ctx context.Context, username string) (Account, error)
	FindDefaultTenant(ctx context.Context, userID string) (string, error)
	HasTenant(ctx context.Context, userID, tenantID string) (bool, error)
}

// TxRepository exposes recovery token operations inside a transaction.
type TxRepository interface {
	// LockAccount takes a row lock on the user so recovery requests serialize.
	LockAccount(ctx context.Context, userID string) error
	InvalidateUserTokens(ctx context.Context, userID string) error
	CreateRecoveryToken(ctx context.Context, token RecoveryToken) error
	// FindRecoveryTokenForUpdate locks the token row until the transaction ends.
	FindRecoveryTokenForUpdate(ctx context.Context, token string) (RecoveryToken, error)
	MarkTokenUsed(ctx context.Context, id string) error
	UpdatePassword(ctx context.Context, userID, passwordHash string) error
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

// NewRepository creates a PostgreSQL backed auth repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &pgRepository{pool: pool}
}

func (r *pgRepository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &pgTxRepository{q: tx})
	})
}

func (r *pgRepository) FindAccountByUsername(ctx context.Context, username string) (Account, error) {
	var acc Account
	err := r.pool.QueryRow(ctx, `SELECT id, username, password_hash FROM users WHERE username = $1`, username).
		Scan(&acc.ID, &acc.Username, &acc.PasswordHash)
	if err != nil {
		if db.IsNoRows(err) {
			return Account{}, shared.ErrNotFound
		}
		return Account{}, fmt.Errorf("auth: find account: %w", err)
	}
	return acc, nil
}

func (r *pgRepository) FindDefaultTenant(ctx context.Context, userID string) (string, error) {
	var tenantID string
	err := r.pool.QueryRow(ctx, `SELECT tenant_id FROM user_tenants WHERE user_id = $1 AND is_default`, userID).Scan(&tenantID)
	if err != nil {
		if db.IsNoRows(err) {
			return "", shared.ErrNotFound
		}
		return "", fmt.Errorf("auth: find default tenant: %w", err)
	}
	return tenantID, nil
}

func (r *pgRepository) HasTenant(ctx context.Context, userID, tenantID string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM user_tenants WHERE user_id = $1 AND tenant_id = $2)`, userID, tenantID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("auth: has tenant: %w", err)
	}
	return exists, nil
}

func (t *pgTxRepository) InvalidateUserTokens(ctx context.Context, userID string) error {
	_, err := t.q.Exec(ctx, `UPDATE password_recovery_tokens SET is_used = TRUE, updated_at = NOW() WHERE user_id = $1 AND NOT is_used`, userID)
	if err != nil {
		return fmt.Errorf("auth: invalidate recovery tokens: %w", err)
	}
	return nil
}

func (t *pgTxRepository) CreateRecoveryToken(ctx context.Context, token RecoveryToken) error {
	_, err := t.q.Exec(ctx, `INSERT INTO password_recovery_tokens (id, token, user_id, expires_at, is_used, created_at, updated_at)
VALUES ($1, $2, $3, $4, FALSE, $5, $5)`, token.ID, token.Token, token.UserID, token.ExpiresAt, token.CreatedAt)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return shared.WithCause(shared.Conflict(msgRecoveryInProgress), err)
		}
		return fmt.Errorf("auth: create recovery token: %w", err)
	}
	return nil
}

func (t *pgTxRepository) LockAccount(ctx context.Context, userID string) error {
	var locked string
	err := t.q.QueryRow(ctx, `SELECT id FROM users WHERE id = $1 FOR UPDATE`, userID).Scan(&locked)
	if err != nil {
		if db.IsNoRows(err) {
			return shared.ErrNotFound
		}
		return fmt.Errorf("auth: lock account: %w", err)
	}
	return nil
}

func (t *pgTxRepository) FindRecoveryTokenForUpdate(ctx context.Context, token string) (RecoveryToken, error) {
	var rt RecoveryToken
	err := t.q.QueryRow(ctx, `SELECT id, token, user_id, expires_at, is_used, created_at, updated_at
FROM password_recovery_tokens WHERE token = $1 FOR UPDATE`, token).
		Scan(&rt.ID, &rt.Token, &rt.UserID, &rt.ExpiresAt, &rt.IsUsed, &rt.CreatedAt, &rt.UpdatedAt)
	if err != nil {
		if db.IsNoRows(err) {
			return RecoveryToken{}, shared.ErrNotFound
		}
		return RecoveryToken{}, fmt.Errorf("auth: find recovery token: %w", err)
	}
	return rt, nil
}

func (t *pgTxRepository) MarkTokenUsed(ctx context.Context, id string) error {
	_, err := t.q.Exec(ctx, `UPDATE password_recovery_tokens SET is_used = TRUE, updated_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("auth: mark token used: %w", err)
	}
	return nil
}

func (t *pgTxRepository) UpdatePassword(ctx context.Context, userID, passwordHash string) error {
	_, err := t.q.Exec(ctx, `UPDATE users SET password_hash = $2, updated_at = NOW() WHERE id = $1`, userID, passwordHash)
	if err != nil {
		return fmt.Errorf("auth: update password: %w", err)
	}
	return nil
}
