package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/hibiken/asynq"
	"github.com/spf13/cobra"

	"github.com/odyssey-erp/odyssey-iam/internal/app"
	"github.com/odyssey-erp/odyssey-iam/internal/auth"
	"github.com/odyssey-erp/odyssey-iam/internal/files"
	"github.com/odyssey-erp/odyssey-iam/internal/notifications"
	"github.com/odyssey-erp/odyssey-iam/internal/observability"
	"github.com/odyssey-erp/odyssey-iam/internal/platform/cache"
	"github.com/odyssey-erp/odyssey-iam/internal/platform/storage"
	"github.com/odyssey-erp/odyssey-iam/internal/rbac"
	"github.com/odyssey-erp/odyssey-iam/internal/shared"
	"github.com/odyssey-erp/odyssey-iam/internal/tenants"
	"github.com/odyssey-erp/odyssey-iam/internal/users"
	"github.com/odyssey-erp/odyssey-iam/jobs"
)

func serveCommand(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context(), e)
		},
	}
}

func serve(ctx context.Context, e *env) error {
	cfg, logger := e.cfg, e.logger
	dbpool, err := e.openPool(ctx)
	if err != nil {
		return err
	}
	defer dbpool.Close()

	redisClient, err := cache.New(ctx, cache.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
	if err != nil {
		return err
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	objectStore, err := storage.NewS3(ctx, storage.Config{
		Endpoint:      cfg.MinioEndpoint,
		Region:        cfg.MinioRegion,
		AccessKey:     cfg.MinioAccessKey,
		SecretKey:     cfg.MinioSecretKey,
		PublicBucket:  cfg.MinioPublicBucket,
		PrivateBucket: cfg.MinioPrivateBucket,
	})
	if err != nil {
		return err
	}
	if err := objectStore.EnsureBuckets(ctx); err != nil {
		logger.Warn("ensure buckets", slog.Any("error", err))
	}

	redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr, Password: cfg.RedisPassword}
	jobClient := jobs.NewClient(redisOpts)
	defer func() {
		if err := jobClient.Close(); err != nil {
			logger.Warn("job client close", slog.Any("error", err))
		}
	}()
	inspector := asynq.NewInspector(redisOpts)
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()

	metrics := observability.NewMetrics()
	auditLogger := shared.NewAuditLogger(dbpool)
	hasher := auth.NewBcryptHasher(cfg.BcryptCost)

	rbacService := rbac.NewService(rbac.NewRepository(dbpool), logger, rbac.ServiceConfig{PermissionCacheTTL: cfg.PermissionCacheTTL})

	signer, err := auth.NewJWTSigner(cfg.JWTSecret, cfg.JWTExpiresIn)
	if err != nil {
		return err
	}
	denylist := auth.NewRedisDenylist(redisClient)
	guard := auth.NewGuard(signer, denylist, rbacService, cfg.CookieName, logger)

	authService := auth.NewService(
		auth.NewRepository(dbpool),
		hasher,
		signer,
		denylist,
		jobClient,
		logger,
		auth.Config{RecoveryTokenTTL: cfg.RecoveryTokenTTL},
		auth.WithAudit(auditLogger),
		auth.WithEventRecorder(metrics),
	)
	authHandler := auth.NewHandler(logger, authService, guard, auth.CookieConfig{
		Name:   cfg.CookieName,
		MaxAge: cfg.CookieExpiration,
		Secure: cfg.IsProduction(),
	}, app.RateLimit(cfg.AuthRateLimit))

	usersService := users.NewService(users.NewRepository(dbpool), hasher, rbacService, auditLogger, logger)
	tenantsService := tenants.NewService(tenants.NewRepository(dbpool), auditLogger, logger)
	filesService := files.NewService(files.NewRepository(dbpool), objectStore, cfg.MinioPresignTTL, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:               logger,
		Config:               cfg,
		AuthHandler:          authHandler,
		UsersHandler:         users.NewHandler(logger, usersService, guard),
		TenantsHandler:       tenants.NewHandler(logger, tenantsService, guard),
		RBACHandler:          rbac.NewHandler(logger, rbacService, guard),
		FilesHandler:         files.NewHandler(logger, filesService, guard),
		NotificationsHandler: notifications.NewHandler(logger, jobClient, guard),
		JobHandler:           jobs.NewHandler(inspector, logger),
		Metrics:              metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return err
		}
	case <-ctx.Done():
	}
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
	return nil
}
