package files

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/odyssey-iam/internal/platform/db"
	"github.com/odyssey-erp/odyssey-iam/internal/shared"
)

// Repository stores file metadata.
type Repository interface {
	Create(ctx context.Context, f File) error
	FindByID(ctx context.Context, tenantID, id string) (File, error)
}

type pgRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL backed file repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &pgRepository{pool: pool}
}

func (r *pgRepository) Create(ctx context.Context, f File) error {
	_, err := r.pool.Exec(ctx, `INSERT INTO files (id, original_name, mime_type, size, bucket_name, path, tenant_id, is_public, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		f.ID, f.OriginalName, f.MimeType, f.Size, f.BucketName, f.Path, f.TenantID, f.IsPublic, f.CreatedAt, f.UpdatedAt)
	if err != nil {
		return fmt.Errorf("files: insert file: %w", err)
	}
	return nil
}

func (r *pgRepository) FindByID(ctx context.Context, tenantID, id string) (File, error) {
	var f File
	err := r.pool.QueryRow(ctx, `SELECT id, original_name, mime_type, size, bucket_name, path, tenant_id, is_public, created_at, updated_at
FROM files WHERE id = $1 AND tenant_id = $2`, id, tenantID).
		Scan(&f.ID, &f.OriginalName, &f.MimeType, &f.Size, &f.BucketName, &f.Path, &f.TenantID, &f.IsPublic, &f.CreatedAt, &f.UpdatedAt)
	if err != nil {
		if db.IsNoRows(err) {
			return File{}, shared.ErrNotFound
		}
		return File{}, fmt.Errorf("files: find file: %w", err)
	}
	return f, nil
}
