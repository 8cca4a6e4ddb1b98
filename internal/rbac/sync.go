package rbac

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
)

// Synchronizer reconciles the static catalog into persisted permissions and roles.
type Synchronizer struct {
	repo        Repository
	logger      *slog.Logger
	permissions []string
	roles       []RoleDefinition
}

// NewSynchronizer builds a Synchronizer for the default catalog.
func NewSynchronizer(repo Repository, logger *slog.Logger) *Synchronizer {
	return NewSynchronizerFor(repo, logger, AllPermissions(), DefaultRoles())
}

// NewSynchronizerFor builds a Synchronizer for an explicit catalog.
func NewSynchronizerFor(repo Repository, logger *slog.Logger, permissions []string, roles []RoleDefinition) *Synchronizer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Synchronizer{repo: repo, logger: logger, permissions: permissions, roles: roles}
}

// Sync creates missing permissions, then creates or overwrites every role.
// Obsolete permissions are never deleted. A failing role is logged and skipped;
// a failing permission sync aborts the run.
func (s *Synchronizer) Sync(ctx context.Context) (SyncReport, error) {
	var report SyncReport

	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		existing, err := tx.FindPermissionsByNames(ctx, s.permissions)
		if err != nil {
			return err
		}
		known := make(map[string]struct{}, len(existing))
		for _, p := range existing {
			known[p.Name] = struct{}{}
		}
		for _, name := range s.permissions {
			if _, ok := known[name]; ok {
				continue
			}
			if err := tx.CreatePermission(ctx, Permission{ID: uuid.NewString(), Name: name, Description: PermissionDescription(name)}); err != nil {
				return err
			}
			known[name] = struct{}{}
			report.PermissionsCreated++
		}
		return nil
	})
	if err != nil {
		return report, fmt.Errorf("rbac: failed to synchronize roles and permissions: %w", err)
	}

	for _, def := range s.roles {
		created, err := s.syncRole(ctx, def)
		if err != nil {
			s.logger.Error("sync role", slog.String("role", def.Name), slog.Any("error", err))
			report.FailedRoles = append(report.FailedRoles, def.Name)
			continue
		}
		if created {
			report.RolesCreated++
		} else {
			report.RolesUpdated++
		}
	}

	s.logger.Info("roles synchronized",
		slog.Int("permissions_created", report.PermissionsCreated),
		slog.Int("roles_created", report.RolesCreated),
		slog.Int("roles_updated", report.RolesUpdated),
		slog.Int("roles_failed", len(report.FailedRoles)),
	)
	return report, nil
}

func (s *Synchronizer) syncRole(ctx context.Context, def RoleDefinition) (bool, error) {
	created := false
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		perms, err := tx.FindPermissionsByNames(ctx, def.Permissions)
		if err != nil {
			return err
		}
		ids := make([]string, 0, len(perms))
		for _, p := range perms {
			ids = append(ids, p.ID)
		}

		role, err := tx.FindRoleByName(ctx, def.Name)
		switch {
		case errors.Is(err, ErrRoleNotFound):
			role = Role{ID: uuid.NewString(), Name: def.Name, Description: def.Description}
			if err := tx.CreateRole(ctx, role); err != nil {
				return err
			}
			created = true
		case err != nil:
			return err
		case role.Description != def.Description:
			if err := tx.UpdateRoleDescription(ctx, role.ID, def.Description); err != nil {
				return err
			}
		}
		return tx.ReplaceRolePermissions(ctx, role.ID, ids)
	})
	return created, err
}
