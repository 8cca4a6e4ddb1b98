package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"github.com/odyssey-erp/odyssey-iam/internal/app"
	"github.com/odyssey-erp/odyssey-iam/internal/platform/db"
)

type env struct {
	cfg    *app.Config
	logger *slog.Logger
}

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	e := &env{}
	root := &cobra.Command{
		Use:           "odyssey",
		Short:         "Odyssey IAM: multi-tenant identity and access management",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := app.LoadConfig()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			e.cfg = cfg
			e.logger = app.NewLogger(cfg)
			return nil
		},
	}

	root.AddCommand(
		serveCommand(e),
		migrateCommand(e),
		syncRolesCommand(e),
		createSuperUserCommand(e),
		jobsCommand(e),
	)

	if err := root.ExecuteContext(ctx); err != nil {
		slog.Default().Error("command failed", slog.Any("error", err))
		os.Exit(1)
	}
}

func (e *env) openPool(ctx context.Context) (*pgxpool.Pool, error) {
	pool, err := db.New(ctx, e.cfg.PGDSN)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return pool, nil
}

func migrateCommand(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			pool, err := e.openPool(ctx)
			if err != nil {
				return err
			}
			defer pool.Close()

			applied, err := db.Migrate(ctx, pool)
			for _, name := range applied {
				e.logger.Info("migration applied", slog.String("file", name))
			}
			if err != nil {
				return err
			}
			e.logger.Info("migrations up to date", slog.Int("applied", len(applied)))
			return nil
		},
	}
}
