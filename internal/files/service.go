package files

import (
	"context"
	"errors"
	"log/slog"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/odyssey-erp/odyssey-iam/internal/platform/storage"
	"github.com/odyssey-erp/odyssey-iam/internal/shared"
)

const defaultPresignTTL = time.Minute

// ObjectStore is the object storage collaborator.
type ObjectStore interface {
	BucketFor(public bool) string
	PutObject(ctx context.Context, bucket, key string, data []byte, contentType string) error
	GetObject(ctx context.Context, bucket, key string) (*storage.Object, error)
	PresignedURL(ctx context.Context, bucket, key string, ttl time.Duration) (string, error)
	PublicURL(bucket, key string) string
}

// Service stores tenant files in object storage and tracks their metadata.
type Service struct {
	repo       Repository
	store      ObjectStore
	presignTTL time.Duration
	logger     *slog.Logger
	now        func() time.Time
}

// NewService constructs a file service.
func NewService(repo Repository, store ObjectStore, presignTTL time.Duration, logger *slog.Logger) *Service {
	if presignTTL <= 0 {
		presignTTL = defaultPresignTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, store: store, presignTTL: presignTTL, logger: logger, now: time.Now}
}

// Upload stores the body and records its metadata.
func (s *Service) Upload(ctx context.Context, in UploadInput) (FileWithURL, error) {
	if len(in.Body) == 0 {
		return FileWithURL{}, shared.BadRequest("No file uploaded")
	}
	key, err := objectKey(in.TenantID, in.Path, in.OriginalName)
	if err != nil {
		return FileWithURL{}, err
	}
	ts := s.now().UTC()
	f := File{
		ID:           uuid.NewString(),
		OriginalName: filepath.Base(in.OriginalName),
		MimeType:     contentType(in.MimeType, in.OriginalName, in.Body),
		Size:         int64(len(in.Body)),
		BucketName:   s.store.BucketFor(in.IsPublic),
		Path:         key,
		TenantID:     in.TenantID,
		IsPublic:     in.IsPublic,
		CreatedAt:    ts,
		UpdatedAt:    ts,
	}
	if err := s.store.PutObject(ctx, f.BucketName, f.Path, in.Body, f.MimeType); err != nil {
		return FileWithURL{}, err
	}
	if err := s.repo.Create(ctx, f); err != nil {
		s.logger.Warn("file metadata not stored, object orphaned",
			slog.String("bucket", f.BucketName), slog.String("key", f.Path), slog.Any("error", err))
		return FileWithURL{}, err
	}
	return s.withURL(ctx, f)
}

// GetFile returns metadata with a retrieval URL.
func (s *Service) GetFile(ctx context.Context, tenantID, id string) (FileWithURL, error) {
	f, err := s.find(ctx, tenantID, id)
	if err != nil {
		return FileWithURL{}, err
	}
	return s.withURL(ctx, f)
}

// DownloadFile opens the object for streaming.
func (s *Service) DownloadFile(ctx context.Context, tenantID, id string) (Download, error) {
	f, err := s.find(ctx, tenantID, id)
	if err != nil {
		return Download{}, err
	}
	obj, err := s.store.GetObject(ctx, f.BucketName, f.Path)
	if err != nil {
		return Download{}, err
	}
	return Download{File: f, Body: obj.Body, ContentLength: obj.ContentLength}, nil
}

func (s *Service) find(ctx context.Context, tenantID, id string) (File, error) {
	f, err := s.repo.FindByID(ctx, tenantID, id)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return File{}, shared.NotFound("File with ID %s not found", id)
		}
		return File{}, err
	}
	return f, nil
}

func (s *Service) withURL(ctx context.Context, f File) (FileWithURL, error) {
	if f.IsPublic {
		return FileWithURL{File: f, URL: s.store.PublicURL(f.BucketName, f.Path)}, nil
	}
	u, err := s.store.PresignedURL(ctx, f.BucketName, f.Path, s.presignTTL)
	if err != nil {
		return FileWithURL{}, err
	}
	return FileWithURL{File: f, URL: u}, nil
}

// objectKey places the object under the tenant's prefix, at the requested path
// or at a random name keeping the original extension.
func objectKey(tenantID, requested, originalName string) (string, error) {
	if tenantID == "" {
		return "", shared.BadRequest("Tenant is required")
	}
	requested = strings.TrimSpace(requested)
	if requested == "" {
		return tenantID + "/" + uuid.NewString() + strings.ToLower(filepath.Ext(originalName)), nil
	}
	clean := strings.TrimPrefix(path.Clean("/"+requested), "/")
	if clean == "" || strings.HasSuffix(requested, "/") {
		return "", shared.BadRequest("Invalid file path")
	}
	return tenantID + "/" + clean, nil
}
