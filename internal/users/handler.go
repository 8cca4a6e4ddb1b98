package users

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/odyssey-erp/odyssey-iam/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-iam/internal/rbac"
	"github.com/odyssey-erp/odyssey-iam/internal/shared"
)

// Handler manages user management endpoints.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	authz     rbac.Authorizer
	validator *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, authz rbac.Authorizer) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, authz: authz, validator: httpx.NewValidator()}
}

// MountRoutes registers user routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.With(h.authz.Require(rbac.PermUserCreate)).Post("/register", h.register)
	r.With(h.authz.Require()).Get("/me", h.me)

	r.Route("/users", func(r chi.Router) {
		r.With(h.authz.Require(rbac.PermUserList)).Get("/", h.list)
		r.With(h.authz.Require(rbac.PermUserRead)).Get("/{id}", h.get)
		r.With(h.authz.Require(rbac.PermUserUpdate)).Put("/{id}", h.update)
		r.With(h.authz.Require(rbac.PermTenantAssign)).Post("/{id}/tenants", h.assignTenant)
		r.With(h.authz.Require(rbac.PermTenantAssign)).Put("/{id}/default-tenant", h.setDefaultTenant)
		r.With(h.authz.Require(rbac.PermRoleAssign)).Post("/{id}/roles", h.assignRole)
		r.With(h.authz.Require(rbac.PermRoleAssign)).Delete("/{id}/roles/{name}", h.removeRole)
		r.With(h.authz.Require(rbac.PermPermissionAssign)).Post("/{id}/permissions", h.grantPermission)
		r.With(h.authz.Require(rbac.PermPermissionAssign)).Delete("/{id}/permissions/{name}", h.revokePermission)
	})
}

type defaultTenantRequest struct {
	TenantID string `json:"tenantId" validate:"required,uuid"`
}

type roleRequest struct {
	Role string `json:"role" validate:"required"`
}

type permissionRequest struct {
	Permission string `json:"permission" validate:"required"`
}

type messageResponse struct {
	Message string `json:"message"`
}

func (h *Handler) register(w http.ResponseWriter, r *http.Request) {
	var in CreateUserInput
	if err := httpx.Bind(r, h.validator, &in); err != nil {
		httpx.RespondError(w, err)
		return
	}
	user, err := h.service.CreateUser(r.Context(), in)
	if err != nil {
		h.fail(w, "create user", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, user)
}

func (h *Handler) me(w http.ResponseWriter, r *http.Request) {
	principal := shared.PrincipalFromContext(r.Context())
	me, err := h.service.GetMe(r.Context(), principal.UserID)
	if err != nil {
		h.fail(w, "get me", err)
		return
	}
	httpx.JSON(w, http.StatusOK, me)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	criteria, err := shared.ParseCriteria(r.URL.Query(), ListRules)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	page, err := h.service.ListUsers(r.Context(), criteria)
	if err != nil {
		h.fail(w, "list users", err)
		return
	}
	httpx.JSON(w, http.StatusOK, page)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	detail, err := h.service.GetUser(r.Context(), id)
	if err != nil {
		h.fail(w, "get user", err)
		return
	}
	httpx.JSON(w, http.StatusOK, detail)
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	var in UpdateUserInput
	if err := httpx.Bind(r, h.validator, &in); err != nil {
		httpx.RespondError(w, err)
		return
	}
	user, err := h.service.UpdateUser(r.Context(), id, in)
	if err != nil {
		h.fail(w, "update user", err)
		return
	}
	httpx.JSON(w, http.StatusOK, user)
}

func (h *Handler) assignTenant(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	var in AssignTenantInput
	if err := httpx.Bind(r, h.validator, &in); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.service.AssignUserToTenant(r.Context(), id, in); err != nil {
		h.fail(w, "assign tenant", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, messageResponse{Message: "User assigned to tenant successfully"})
}

func (h *Handler) setDefaultTenant(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	var req defaultTenantRequest
	if err := httpx.Bind(r, h.validator, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.service.SetDefaultTenant(r.Context(), id, req.TenantID); err != nil {
		h.fail(w, "set default tenant", err)
		return
	}
	httpx.JSON(w, http.StatusOK, messageResponse{Message: "Default tenant updated successfully"})
}

func (h *Handler) assignRole(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	var req roleRequest
	if err := httpx.Bind(r, h.validator, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.service.AssignRole(r.Context(), id, req.Role); err != nil {
		h.fail(w, "assign role", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) removeRole(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	if err := h.service.RemoveRole(r.Context(), id, chi.URLParam(r, "name")); err != nil {
		h.fail(w, "remove role", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) grantPermission(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	var req permissionRequest
	if err := httpx.Bind(r, h.validator, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.service.GrantPermission(r.Context(), id, req.Permission); err != nil {
		h.fail(w, "grant permission", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) revokePermission(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	if err := h.service.RevokePermission(r.Context(), id, chi.URLParam(r, "name")); err != nil {
		h.fail(w, "revoke permission", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) pathID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := chi.URLParam(r, "id")
	if err := h.validator.Var(id, "required,uuid"); err != nil {
		httpx.RespondError(w, shared.BadRequest("id must be a valid UUID"))
		return "", false
	}
	return id, true
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	if shared.KindOf(err) == shared.KindInternal {
		h.logger.Error(op, slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}
