package tenants

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/odyssey-erp/odyssey-iam/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-iam/internal/rbac"
	"github.com/odyssey-erp/odyssey-iam/internal/shared"
)

// Handler exposes tenant directory endpoints.
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

// MountRoutes registers tenant routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.With(h.authz.Require(rbac.PermTenantList)).Get("/", h.list)
	r.With(h.authz.Require(rbac.PermTenantCreate)).Post("/", h.create)
	r.With(h.authz.Require(rbac.PermTenantRead)).Get("/{id}", h.get)
	r.With(h.authz.Require(rbac.PermTenantUpdate)).Put("/{id}", h.update)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	criteria, err := shared.ParseCriteria(r.URL.Query(), ListRules)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	page, err := h.service.ListTenants(r.Context(), criteria)
	if err != nil {
		h.fail(w, "list tenants", err)
		return
	}
	httpx.JSON(w, http.StatusOK, page)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var in CreateInput
	if err := httpx.Bind(r, h.validator, &in); err != nil {
		httpx.RespondError(w, err)
		return
	}
	tenant, err := h.service.CreateTenant(r.Context(), in)
	if err != nil {
		h.fail(w, "create tenant", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, tenant)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, err := h.pathID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	tenant, err := h.service.GetTenant(r.Context(), id)
	if err != nil {
		h.fail(w, "get tenant", err)
		return
	}
	httpx.JSON(w, http.StatusOK, tenant)
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	id, err := h.pathID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var in UpdateInput
	if err := httpx.Bind(r, h.validator, &in); err != nil {
		httpx.RespondError(w, err)
		return
	}
	tenant, err := h.service.UpdateTenant(r.Context(), id, in)
	if err != nil {
		h.fail(w, "update tenant", err)
		return
	}
	httpx.JSON(w, http.StatusOK, tenant)
}

func (h *Handler) pathID(r *http.Request) (string, error) {
	id := chi.URLParam(r, "id")
	if err := h.validator.Var(id, "required,uuid"); err != nil {
		return "", shared.BadRequest("id must be a valid UUID")
	}
	return id, nil
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	if shared.KindOf(err) == shared.KindInternal {
		h.logger.Error(op, slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}
