package rbac

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/odyssey-erp/odyssey-iam/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-iam/internal/shared"
)

// PermissionResolver resolves the effective permission set of a user.
type PermissionResolver interface {
	EffectivePermissions(ctx context.Context, userID string) ([]string, error)
}

// Middleware wires RBAC authorization helpers for HTTP handlers. It expects an
// authenticated principal in the request context.
type Middleware struct {
	Resolver PermissionResolver
	Logger   *slog.Logger
}

// RequireAll ensures the current user has all required permissions.
func (m Middleware) RequireAll(perms ...string) func(http.Handler) http.Handler {
	normalized := normalizePermissions(perms)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal := shared.PrincipalFromContext(r.Context())
			if principal == nil {
				httpx.RespondError(w, shared.Unauthorized("No authentication token provided"))
				return
			}
			if len(normalized) == 0 {
				next.ServeHTTP(w, r)
				return
			}
			granted, err := m.Resolver.EffectivePermissions(r.Context(), principal.UserID)
			if err != nil {
				if m.Logger != nil {
					m.Logger.Error("rbac require all", slog.String("user_id", principal.UserID), slog.Any("error", err))
				}
				httpx.RespondError(w, err)
				return
			}
			if !hasAllPermissions(granted, normalized) {
				httpx.RespondError(w, shared.Forbidden("Insufficient permissions to access this resource"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// HasAll reports whether granted covers every required permission.
func HasAll(granted []string, required ...string) bool {
	return hasAllPermissions(granted, normalizePermissions(required))
}

func normalizePermissions(perms []string) []string {
	unique := make(map[string]struct{}, len(perms))
	for _, p := range perms {
		p = strings.TrimSpace(strings.ToLower(p))
		if p == "" {
			continue
		}
		unique[p] = struct{}{}
	}
	normalized := make([]string, 0, len(unique))
	for p := range unique {
		normalized = append(normalized, p)
	}
	return normalized
}

func hasAllPermissions(granted []string, required []string) bool {
	if len(required) == 0 {
		return true
	}
	set := make(map[string]struct{}, len(granted))
	for _, p := range granted {
		set[strings.ToLower(p)] = struct{}{}
	}
	for _, r := range required {
		if _, ok := set[r]; !ok {
			return false
		}
	}
	return true
}
