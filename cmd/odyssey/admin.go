package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/odyssey-erp/odyssey-iam/internal/auth"
	"github.com/odyssey-erp/odyssey-iam/internal/rbac"
	"github.com/odyssey-erp/odyssey-iam/internal/shared"
	"github.com/odyssey-erp/odyssey-iam/internal/users"
)

func syncRolesCommand(e *env) *cobra.Command {
	return &cobra.Command{
		Use:     "sync-roles",
		Aliases: []string{"sync:roles"},
		Short:   "Create or update the permission catalog and default roles",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			pool, err := e.openPool(ctx)
			if err != nil {
				return err
			}
			defer pool.Close()

			report, err := rbac.NewService(rbac.NewRepository(pool), e.logger, rbac.ServiceConfig{}).SyncRoles(ctx)
			if err != nil {
				return err
			}
			e.logger.Info("roles synchronized",
				slog.Int("permissions_created", report.PermissionsCreated),
				slog.Int("roles_created", report.RolesCreated),
				slog.Int("roles_updated", report.RolesUpdated),
				slog.Any("failed_roles", report.FailedRoles),
			)
			if len(report.FailedRoles) > 0 {
				return fmt.Errorf("sync roles: %d role(s) failed", len(report.FailedRoles))
			}
			return nil
		},
	}
}

func createSuperUserCommand(e *env) *cobra.Command {
	var username, password string
	cmd := &cobra.Command{
		Use:     "create-superuser",
		Aliases: []string{"create:superuser"},
		Short:   "Create the super admin account in the System tenant",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			pool, err := e.openPool(ctx)
			if err != nil {
				return err
			}
			defer pool.Close()

			rbacService := rbac.NewService(rbac.NewRepository(pool), e.logger, rbac.ServiceConfig{})
			service := users.NewService(
				users.NewRepository(pool),
				auth.NewBcryptHasher(e.cfg.BcryptCost),
				rbacService,
				shared.NewAuditLogger(pool),
				e.logger,
			)
			res, err := service.CreateSuperUser(ctx, users.SuperUserInput{Username: username, Password: password})
			if err != nil {
				return err
			}
			if !res.Created {
				e.logger.Info("super user already exists", slog.String("username", res.Username))
				return nil
			}
			e.logger.Info("super user created",
				slog.String("user_id", res.UserID),
				slog.String("username", res.Username),
				slog.String("tenant_id", res.TenantID),
			)
			return nil
		},
	}
	cmd.Flags().StringVar(&username, "username", "", "super admin username (default superadmin@node.com)")
	cmd.Flags().StringVar(&password, "password", "", "super admin password (generated when empty)")
	return cmd
}
