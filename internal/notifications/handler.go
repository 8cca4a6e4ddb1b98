package notifications

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/odyssey-erp/odyssey-iam/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-iam/internal/rbac"
)

const (
	defaultExampleEmail   = "test@test.com"
	defaultExampleMessage = "Default message"
)

// Enqueuer schedules a notification for asynchronous delivery.
type Enqueuer interface {
	EnqueueNotification(ctx context.Context, n Notification) error
}

// Handler exposes the test email endpoint.
type Handler struct {
	logger    *slog.Logger
	queue     Enqueuer
	authz     rbac.Authorizer
	validator *validator.Validate
}

// NewHandler builds a Handler instance.
func NewHandler(logger *slog.Logger, queue Enqueuer, authz rbac.Authorizer) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, queue: queue, authz: authz, validator: httpx.NewValidator()}
}

// MountRoutes registers notification routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.With(h.authz.Require()).Post("/send-email", h.sendEmail)
}

type sendEmailRequest struct {
	Email   string `json:"email" validate:"omitempty,email"`
	Message string `json:"message" validate:"omitempty,max=1000"`
}

func (h *Handler) sendEmail(w http.ResponseWriter, r *http.Request) {
	var req sendEmailRequest
	if r.ContentLength != 0 {
		if err := httpx.Bind(r, h.validator, &req); err != nil {
			httpx.RespondError(w, err)
			return
		}
	}
	n := Example{Email: req.Email, Message: req.Message}
	if n.Email == "" {
		n.Email = defaultExampleEmail
	}
	if n.Message == "" {
		n.Message = defaultExampleMessage
	}
	if err := h.queue.EnqueueNotification(r.Context(), n); err != nil {
		h.logger.Error("enqueue notification", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]any{"success": true, "message": "Email queued"})
}
