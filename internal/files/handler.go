package files

import (
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/odyssey-erp/odyssey-iam/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-iam/internal/rbac"
	"github.com/odyssey-erp/odyssey-iam/internal/shared"
)

const maxUploadBytes = 10 << 20

// Handler exposes upload, metadata and download endpoints.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	authz     rbac.Authorizer
	validator *validator.Validate
}

// NewHandler builds a Handler instance.
func NewHandler(logger *slog.Logger, service *Service, authz rbac.Authorizer) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, authz: authz, validator: httpx.NewValidator()}
}

// MountRoutes registers file routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.With(h.authz.Require(rbac.PermFileUpload)).Post("/upload", h.upload)
	r.With(h.authz.Require(rbac.PermFileRead)).Get("/{id}", h.get)
	r.With(h.authz.Require(rbac.PermFileDownload)).Get("/{id}/download", h.download)
}

func (h *Handler) upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		httpx.RespondError(w, shared.BadRequest("No file uploaded"))
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		httpx.RespondError(w, shared.BadRequest("No file uploaded"))
		return
	}
	defer file.Close()
	body, err := io.ReadAll(file)
	if err != nil {
		httpx.RespondError(w, shared.BadRequest("No file uploaded"))
		return
	}
	isPublic, _ := strconv.ParseBool(r.FormValue("isPublic"))

	tenantID, ok := activeTenant(w, r)
	if !ok {
		return
	}
	out, err := h.service.Upload(r.Context(), UploadInput{
		TenantID:     tenantID,
		OriginalName: header.Filename,
		MimeType:     header.Header.Get("Content-Type"),
		IsPublic:     isPublic,
		Path:         r.FormValue("path"),
		Body:         body,
	})
	if err != nil {
		h.fail(w, "upload file", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, out)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	tenantID, ok := activeTenant(w, r)
	if !ok {
		return
	}
	out, err := h.service.GetFile(r.Context(), tenantID, id)
	if err != nil {
		h.fail(w, "get file", err)
		return
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) download(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	tenantID, ok := activeTenant(w, r)
	if !ok {
		return
	}
	dl, err := h.service.DownloadFile(r.Context(), tenantID, id)
	if err != nil {
		h.fail(w, "download file", err)
		return
	}
	defer dl.Body.Close()

	w.Header().Set("Content-Type", dl.MimeType)
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": dl.OriginalName}))
	if dl.ContentLength > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(dl.ContentLength, 10))
	}
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, dl.Body); err != nil {
		h.logger.Warn("stream file", slog.String("file_id", id), slog.Any("error", err))
	}
}

func (h *Handler) pathID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := chi.URLParam(r, "id")
	if err := h.validator.Var(id, "required,uuid"); err != nil {
		httpx.RespondError(w, shared.BadRequest("id must be a valid UUID"))
		return "", false
	}
	return id, true
}

// activeTenant is the tenant the caller's token is scoped to.
func activeTenant(w http.ResponseWriter, r *http.Request) (string, bool) {
	principal := shared.PrincipalFromContext(r.Context())
	if principal == nil || principal.TenantID == "" {
		httpx.RespondError(w, shared.Unauthorized("No authentication token provided"))
		return "", false
	}
	return principal.TenantID, true
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	if shared.KindOf(err) == shared.KindInternal {
		h.logger.Error(op, slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}
