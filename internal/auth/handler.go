package auth

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/odyssey-erp/odyssey-iam/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-iam/internal/shared"
)

// CookieConfig describes the session cookie written on login.
type CookieConfig struct {
	Name   string
	MaxAge time.Duration
	Secure bool
}

// Handler wires HTTP endpoints for authentication flows.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	guard     *Guard
	cookie    CookieConfig
	validator *validator.Validate
	limiter   func(http.Handler) http.Handler
}

// NewHandler constructs a Handler instance. limiter, when non-nil, wraps the
// credential endpoints.
func NewHandler(logger *slog.Logger, service *Service, guard *Guard, cookie CookieConfig, limiter func(http.Handler) http.Handler) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		logger:    logger,
		service:   service,
		guard:     guard,
		cookie:    cookie,
		validator: httpx.NewValidator(),
		limiter:   limiter,
	}
}

// MountRoutes registers auth routes on provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		if h.limiter != nil {
			r.Use(h.limiter)
		}
		r.Post("/login", h.handleLogin)
		r.Post("/recover-password", h.handleRecoverPassword)
		r.Post("/reset-password", h.handleResetPassword)
	})
	r.With(h.guard.Require()).Post("/logout", h.handleLogout)
	r.With(h.guard.Require()).Post("/switch-tenant", h.handleSwitchTenant)
}

type loginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type switchTenantRequest struct {
	TenantID string `json:"tenantId" validate:"required,uuid"`
}

type recoverPasswordRequest struct {
	Email string `json:"email" validate:"required,email"`
}

type resetPasswordRequest struct {
	Token    string `json:"token" validate:"required,uuid"`
	Password string `json:"password" validate:"required,min=6"`
}

type messageResponse struct {
	Message string `json:"message"`
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := httpx.Bind(r, h.validator, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	session, err := h.service.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		h.respondError(w, "login", err)
		return
	}
	h.setCookie(w, session.AccessToken, session.ExpiresAt)
	httpx.JSON(w, http.StatusOK, session)
}

func (h *Handler) handleSwitchTenant(w http.ResponseWriter, r *http.Request) {
	var req switchTenantRequest
	if err := httpx.Bind(r, h.validator, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	principal := shared.PrincipalFromContext(r.Context())
	session, err := h.service.SwitchTenant(r.Context(), principal.UserID, req.TenantID)
	if err != nil {
		h.respondError(w, "switch tenant", err)
		return
	}
	h.setCookie(w, session.AccessToken, session.ExpiresAt)
	httpx.JSON(w, http.StatusOK, session)
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Logout(r.Context(), shared.PrincipalFromContext(r.Context())); err != nil {
		h.respondError(w, "logout", err)
		return
	}
	h.clearCookie(w)
	httpx.JSON(w, http.StatusOK, messageResponse{Message: "Logged out successfully"})
}

func (h *Handler) handleRecoverPassword(w http.ResponseWriter, r *http.Request) {
	var req recoverPasswordRequest
	if err := httpx.Bind(r, h.validator, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if _, err := h.service.RequestRecovery(r.Context(), req.Email); err != nil {
		h.respondError(w, "recover password", err)
		return
	}
	httpx.JSON(w, http.StatusOK, messageResponse{Message: "Password recovery email sent"})
}

func (h *Handler) handleResetPassword(w http.ResponseWriter, r *http.Request) {
	var req resetPasswordRequest
	if err := httpx.Bind(r, h.validator, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.service.ResetPassword(r.Context(), req.Token, req.Password); err != nil {
		h.respondError(w, "reset password", err)
		return
	}
	httpx.JSON(w, http.StatusOK, messageResponse{Message: "Password reset successfully"})
}

func (h *Handler) respondError(w http.ResponseWriter, op string, err error) {
	if shared.KindOf(err) == shared.KindInternal {
		h.logger.Error(op, slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}

func (h *Handler) setCookie(w http.ResponseWriter, token string, expiresAt time.Time) {
	if h.cookie.Name == "" {
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     h.cookie.Name,
		Value:    token,
		Path:     "/",
		Expires:  expiresAt,
		MaxAge:   int(h.cookie.MaxAge.Seconds()),
		HttpOnly: true,
		Secure:   h.cookie.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (h *Handler) clearCookie(w http.ResponseWriter) {
	if h.cookie.Name == "" {
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     h.cookie.Name,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.cookie.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}
