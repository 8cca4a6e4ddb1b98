package files

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-iam/internal/platform/storage"
	"github.com/odyssey-erp/odyssey-iam/internal/shared"
)

const (
	tenantA = "aaaaaaaa-aaaa-4aaa-8aaa-aaaaaaaaaaaa"
	tenantB = "bbbbbbbb-bbbb-4bbb-8bbb-bbbbbbbbbbbb"
)

type memoryRepo struct {
	files map[string]File
}

func (r *memoryRepo) Create(ctx context.Context, f File) error {
	r.files[f.ID] = f
	return nil
}

func (r *memoryRepo) FindByID(ctx context.Context, tenantID, id string) (File, error) {
	f, ok := r.files[id]
	if !ok || f.TenantID != tenantID {
		return File{}, shared.ErrNotFound
	}
	return f, nil
}

type memoryStore struct {
	objects map[string][]byte
	types   map[string]string
	ttls    []time.Duration
}

func newMemoryStore() *memoryStore {
	return &memoryStore{objects: map[string][]byte{}, types: map[string]string{}}
}

func (s *memoryStore) BucketFor(public bool) string {
	if public {
		return "public"
	}
	return "private"
}

func (s *memoryStore) PutObject(ctx context.Context, bucket, key string, data []byte, contentType string) error {
	s.objects[bucket+"/"+key] = data
	s.types[bucket+"/"+key] = contentType
	return nil
}

func (s *memoryStore) GetObject(ctx context.Context, bucket, key string) (*storage.Object, error) {
	data, ok := s.objects[bucket+"/"+key]
	if !ok {
		return nil, fmt.Errorf("missing object %s/%s", bucket, key)
	}
	return &storage.Object{Body: io.NopCloser(bytes.NewReader(data)), ContentType: s.types[bucket+"/"+key], ContentLength: int64(len(data))}, nil
}

func (s *memoryStore) PresignedURL(ctx context.Context, bucket, key string, ttl time.Duration) (string, error) {
	s.ttls = append(s.ttls, ttl)
	return "http://minio.local/" + bucket + "/" + key + "?X-Amz-Signature=abc", nil
}

func (s *memoryStore) PublicURL(bucket, key string) string {
	return storage.PublicURL("http://minio.local", bucket, key)
}

func newTestService() (*Service, *memoryRepo, *memoryStore) {
	repo := &memoryRepo{files: map[string]File{}}
	store := newMemoryStore()
	return NewService(repo, store, 90*time.Second, nil), repo, store
}

func TestUploadPrivateFileUsesPresignedURL(t *testing.T) {
	svc, repo, store := newTestService()

	out, err := svc.Upload(context.Background(), UploadInput{TenantID: tenantA, OriginalName: "Report.PDF", Body: []byte("%PDF-1.4")})
	require.NoError(t, err)
	assert.Equal(t, "private", out.BucketName)
	assert.True(t, strings.HasPrefix(out.Path, tenantA+"/"))
	assert.True(t, strings.HasSuffix(out.Path, ".pdf"))
	assert.Equal(t, "application/pdf", out.MimeType)
	assert.Equal(t, int64(8), out.Size)
	assert.Contains(t, out.URL, "X-Amz-Signature")
	assert.Equal(t, []time.Duration{90 * time.Second}, store.ttls)
	assert.Equal(t, out.File, repo.files[out.ID])
}

func TestUploadPublicFileWithPath(t *testing.T) {
	svc, _, _ := newTestService()

	out, err := svc.Upload(context.Background(), UploadInput{TenantID: tenantA, OriginalName: "logo.png", MimeType: "image/png", IsPublic: true, Path: "/brand/../brand/logo.png", Body: []byte{1, 2, 3}})
	require.NoError(t, err)
	assert.Equal(t, tenantA+"/brand/logo.png", out.Path)
	assert.Equal(t, "http://minio.local/public/"+tenantA+"/brand/logo.png", out.URL)

	_, err = svc.Upload(context.Background(), UploadInput{TenantID: tenantA, OriginalName: "x", Body: nil})
	require.Error(t, err)
	assert.Equal(t, "No file uploaded", err.Error())
}

func TestUploadSamePathKeepsTenantsApart(t *testing.T) {
	svc, _, store := newTestService()
	ctx := context.Background()

	a, err := svc.Upload(ctx, UploadInput{TenantID: tenantA, OriginalName: "logo.png", IsPublic: true, Path: "brand/logo.png", Body: []byte("tenant a")})
	require.NoError(t, err)
	b, err := svc.Upload(ctx, UploadInput{TenantID: tenantB, OriginalName: "logo.png", IsPublic: true, Path: "../brand/logo.png", Body: []byte("tenant b")})
	require.NoError(t, err)

	assert.NotEqual(t, a.Path, b.Path)
	assert.Equal(t, tenantB+"/brand/logo.png", b.Path)
	assert.Equal(t, "tenant a", string(store.objects["public/"+a.Path]))
	assert.Equal(t, "tenant b", string(store.objects["public/"+b.Path]))

	_, err = svc.Upload(ctx, UploadInput{OriginalName: "logo.png", Body: []byte("x")})
	require.Error(t, err)
	assert.Equal(t, shared.KindBadRequest, shared.KindOf(err))
}

func TestGetFileIsTenantScoped(t *testing.T) {
	svc, _, _ := newTestService()
	out, err := svc.Upload(context.Background(), UploadInput{TenantID: tenantA, OriginalName: "a.txt", Body: []byte("hello")})
	require.NoError(t, err)

	_, err = svc.GetFile(context.Background(), tenantB, out.ID)
	require.Error(t, err)
	assert.Equal(t, shared.KindNotFound, shared.KindOf(err))
	assert.Equal(t, "File with ID "+out.ID+" not found", err.Error())

	dl, err := svc.DownloadFile(context.Background(), tenantA, out.ID)
	require.NoError(t, err)
	defer dl.Body.Close()
	data, err := io.ReadAll(dl.Body)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))
}

type tenantAuthorizer struct{}

func (tenantAuthorizer) Require(perms ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := shared.ContextWithPrincipal(r.Context(), &shared.Principal{UserID: "u1", TenantID: tenantA})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func TestHandlerUploadAndDownload(t *testing.T) {
	svc, _, _ := newTestService()
	r := chi.NewRouter()
	r.Route("/files", NewHandler(nil, svc, tenantAuthorizer{}).MountRoutes)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", "notes.txt")
	require.NoError(t, err)
	_, _ = part.Write([]byte("remember the milk"))
	require.NoError(t, mw.WriteField("isPublic", "false"))
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/files/upload", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var out FileWithURL
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.Equal(t, "notes.txt", out.OriginalName)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/files/"+out.ID+"/download", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "remember the milk", rec.Body.String())
	assert.Equal(t, `attachment; filename=notes.txt`, rec.Header().Get("Content-Disposition"))

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/files/upload", strings.NewReader("")))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
