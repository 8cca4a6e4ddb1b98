package rbac

import (
	"context"
	"log/slog"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// Service resolves effective permissions and exposes role listings.
type Service struct {
	repo   Repository
	logger *slog.Logger
	cache  *gocache.Cache
}

// ServiceConfig groups optional settings.
type ServiceConfig struct {
	// PermissionCacheTTL bounds how long a resolved permission set is reused. Zero disables caching.
	PermissionCacheTTL time.Duration
}

// NewService constructs a Service.
func NewService(repo Repository, logger *slog.Logger, cfg ServiceConfig) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{repo: repo, logger: logger}
	if cfg.PermissionCacheTTL > 0 {
		s.cache = gocache.New(cfg.PermissionCacheTTL, 2*cfg.PermissionCacheTTL)
	}
	return s
}

// EffectivePermissions returns the deduplicated, sorted union of role and direct permissions.
func (s *Service) EffectivePermissions(ctx context.Context, userID string) ([]string, error) {
	if s.cache != nil {
		if cached, ok := s.cache.Get(userID); ok {
			return append([]string(nil), cached.([]string)...), nil
		}
	}
	perms, err := s.repo.EffectivePermissions(ctx, userID)
	if err != nil {
		return nil, err
	}
	if perms == nil {
		perms = []string{}
	}
	if s.cache != nil {
		s.cache.SetDefault(userID, append([]string(nil), perms...))
	}
	return perms, nil
}

// Invalidate drops the cached permission set of one user.
func (s *Service) Invalidate(userID string) {
	if s.cache != nil {
		s.cache.Delete(userID)
	}
}

// InvalidateAll drops every cached permission set.
func (s *Service) InvalidateAll() {
	if s.cache != nil {
		s.cache.Flush()
	}
}

// ListRoles returns every role with its permissions.
func (s *Service) ListRoles(ctx context.Context) ([]Role, error) {
	roles, err := s.repo.ListRoles(ctx)
	if err != nil {
		return nil, err
	}
	if roles == nil {
		roles = []Role{}
	}
	return roles, nil
}

// ListPermissions returns every persisted permission.
func (s *Service) ListPermissions(ctx context.Context) ([]Permission, error) {
	perms, err := s.repo.ListPermissions(ctx)
	if err != nil {
		return nil, err
	}
	if perms == nil {
		perms = []Permission{}
	}
	return perms, nil
}

// SyncRoles reconciles the catalog into storage and drops cached permission sets.
func (s *Service) SyncRoles(ctx context.Context) (SyncReport, error) {
	report, err := NewSynchronizer(s.repo, s.logger).Sync(ctx)
	s.InvalidateAll()
	return report, err
}
