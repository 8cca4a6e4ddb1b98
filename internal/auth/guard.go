package auth

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/odyssey-erp/odyssey-iam/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-iam/internal/rbac"
	"github.com/odyssey-erp/odyssey-iam/internal/shared"
)

const (
	msgNoToken      = "No authentication token provided"
	msgInvalidToken = "Invalid authentication token"
)

// Guard authenticates requests from a bearer header or session cookie and
// evaluates route permissions against the caller's effective permission set.
type Guard struct {
	verifier   TokenSigner
	revoker    Revoker
	perms      rbac.Middleware
	cookieName string
	logger     *slog.Logger
}

var _ rbac.Authorizer = (*Guard)(nil)

// NewGuard constructs a Guard. revoker may be nil when logout revocation is disabled.
func NewGuard(verifier TokenSigner, revoker Revoker, resolver rbac.PermissionResolver, cookieName string, logger *slog.Logger) *Guard {
	if logger == nil {
		logger = slog.Default()
	}
	return &Guard{
		verifier:   verifier,
		revoker:    revoker,
		perms:      rbac.Middleware{Resolver: resolver, Logger: logger},
		cookieName: cookieName,
		logger:     logger,
	}
}

// Authenticate verifies the request token and attaches the principal to the context.
func (g *Guard) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := g.extractToken(r)
		if token == "" {
			httpx.RespondError(w, shared.Unauthorized(msgNoToken))
			return
		}
		principal, err := g.verifier.Verify(token)
		if err != nil {
			httpx.RespondError(w, shared.Unauthorized(msgInvalidToken))
			return
		}
		if g.revoker != nil {
			revoked, err := g.revoker.IsRevoked(r.Context(), principal.TokenID)
			if err != nil {
				g.logger.Error("check token revocation", slog.Any("error", err))
				httpx.RespondError(w, err)
				return
			}
			if revoked {
				httpx.RespondError(w, shared.Unauthorized(msgInvalidToken))
				return
			}
		}
		next.ServeHTTP(w, r.WithContext(shared.ContextWithPrincipal(r.Context(), principal)))
	})
}

// Require authenticates the request and, when perms are given, demands every one of them.
func (g *Guard) Require(perms ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if len(perms) > 0 {
			next = g.perms.RequireAll(perms...)(next)
		}
		return g.Authenticate(next)
	}
}

func (g *Guard) extractToken(r *http.Request) string {
	if header := r.Header.Get("Authorization"); header != "" {
		scheme, token, ok := strings.Cut(header, " ")
		if ok && strings.EqualFold(scheme, tokenTypeBearer) {
			if token = strings.TrimSpace(token); token != "" {
				return token
			}
		}
	}
	if g.cookieName == "" {
		return ""
	}
	cookie, err := r.Cookie(g.cookieName)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(cookie.Value)
}
