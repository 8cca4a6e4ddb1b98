package rbac

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/odyssey-iam/internal/platform/httpx"
)

// Authorizer builds per-route guards. Without permissions it only requires a
// valid session token.
type Authorizer interface {
	Require(perms ...string) func(http.Handler) http.Handler
}

// Handler exposes role and permission listings.
type Handler struct {
	logger  *slog.Logger
	service *Service
	authz   Authorizer
}

// NewHandler builds a Handler instance.
func NewHandler(logger *slog.Logger, service *Service, authz Authorizer) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, authz: authz}
}

// MountRoutes registers role and permission routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.With(h.authz.Require(PermRoleList)).Get("/roles", h.listRoles)
	r.With(h.authz.Require(PermPermissionList)).Get("/permissions", h.listPermissions)
}

func (h *Handler) listRoles(w http.ResponseWriter, r *http.Request) {
	roles, err := h.service.ListRoles(r.Context())
	if err != nil {
		h.logger.Error("list roles", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, roles)
}

func (h *Handler) listPermissions(w http.ResponseWriter, r *http.Request) {
	perms, err := h.service.ListPermissions(r.Context())
	if err != nil {
		h.logger.Error("list permissions", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, perms)
}
