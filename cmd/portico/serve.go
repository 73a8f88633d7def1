// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Portico Contributors

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/portico/portico/internal/auth"
	"github.com/portico/portico/internal/captcha"
	"github.com/portico/portico/internal/config"
	"github.com/portico/portico/internal/entitlement"
	"github.com/portico/portico/internal/httpapi"
	"github.com/portico/portico/internal/logging"
	"github.com/portico/portico/internal/observability"
	"github.com/portico/portico/internal/token"
	"github.com/portico/portico/internal/users"
)

const serviceName = "portico"

// NewServeCmd creates the serve subcommand.
func NewServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the API server",
		Long: `Start the HTTP API serving registration, login, sessions and plan
activation, plus the metrics and health endpoints.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(config.LoadOptions{Path: configFile, Flags: cmd.Flags()})
			if err != nil {
				return fmt.Errorf("failed to load configuration: %w", err)
			}
			return runServeWithDeps(cmd.Context(), cfg, cmd, nil)
		},
	}

	config.BindFlags(cmd.Flags())
	return cmd
}

// runServeWithDeps starts the API server with injectable dependencies.
// If deps is nil, default implementations are used.
func runServeWithDeps(ctx context.Context, cfg *config.Config, cmd *cobra.Command, deps *ServeDeps) error {
	deps = deps.withDefaults()
	if ctx == nil {
		ctx = context.Background()
	}

	logger := logging.SetDefault(logging.Options{
		Service: serviceName,
		Version: version,
		Format:  cfg.Log.Format,
		Level:   cfg.Log.Level,
		Writer:  cmd.ErrOrStderr(),
	})

	logger.Info("starting portico",
		"http_addr", cfg.HTTP.Addr,
		"store", cfg.Store.Driver,
		"password_scheme", cfg.Auth.PasswordScheme,
	)

	store, closeStore, err := deps.StoreFactory(ctx, cfg.Store)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer closeStore()

	repo := users.NewRepository(store)

	// Metrics are recorded even when the observability listener is disabled.
	obsServer := deps.ObservabilityServerFactory(cfg.Metrics.Addr, func(ctx context.Context) bool {
		return repo.Ping(ctx) == nil
	})
	metrics := obsServer.Metrics()

	if cfg.Store.Driver == config.DriverPostgres && cfg.Store.AutoMigrate {
		err := applyMigrations(deps, cfg.Store.DatabaseURL)
		metrics.RecordStoreOperation("migrate", err)
		if err != nil {
			return err
		}
	}

	authSvc, plans, err := buildServices(cfg, repo, logger, metrics)
	if err != nil {
		return err
	}

	handler, err := httpapi.NewHandler(authSvc, plans, httpapi.Options{
		Cookies: httpapi.CookiePolicy{
			MaxAge: cfg.Auth.CookieMaxAge,
			Secure: cfg.Auth.CookieSecure,
		},
		AllowedOrigins: cfg.HTTP.AllowedOrigins,
		Logger:         logger,
		Metrics:        metrics,
	})
	if err != nil {
		return fmt.Errorf("failed to build API handler: %w", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	shutdownCtx := func() (context.Context, context.CancelFunc) {
		return context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	}

	// Start observability server if configured
	obsStarted := false
	if cfg.Metrics.Addr != "" {
		obsErrChan, err := obsServer.Start()
		if err != nil {
			return fmt.Errorf("failed to start observability server: %w", err)
		}
		obsStarted = true
		go monitorServerErrors(ctx, cancel, obsErrChan, "observability")
		logger.Info("observability server started", "addr", obsServer.Addr())
	}

	apiServer := deps.APIServerFactory(cfg.HTTP.Addr, handler, cfg.HTTP.ReadHeaderTimeout)
	apiErrChan, err := apiServer.Start()
	if err != nil {
		if obsStarted {
			stopCtx, stopCancel := shutdownCtx()
			defer stopCancel()
			if stopErr := obsServer.Stop(stopCtx); stopErr != nil {
				logger.Warn("failed to stop observability server during cleanup", "error", stopErr)
			}
		}
		return fmt.Errorf("failed to start API server: %w", err)
	}
	go monitorServerErrors(ctx, cancel, apiErrChan, "api")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	cmd.Println("Portico started on " + apiServer.Addr())
	logger.Info("portico ready", "addr", apiServer.Addr())

	select {
	case sig := <-sigChan:
		logger.Info("received shutdown signal", "signal", sig)
	case <-ctx.Done():
		logger.Info("context cancelled, shutting down")
	}

	logger.Info("shutting down...")
	stopCtx, stopCancel := shutdownCtx()
	defer stopCancel()

	if err := apiServer.Stop(stopCtx); err != nil {
		logger.Warn("error stopping api server", "error", err)
	}
	if obsStarted {
		if err := obsServer.Stop(stopCtx); err != nil {
			logger.Warn("error stopping observability server", "error", err)
		}
	}

	logger.Info("shutdown complete")
	return nil
}

// buildServices wires the token codecs, challenge protocol, hasher and
// flows over repo.
func buildServices(cfg *config.Config, repo *users.Repository, logger *slog.Logger, metrics *observability.Metrics) (*auth.Service, *entitlement.Service, error) {
	secret := []byte(cfg.Auth.TokenSecret)
	sessions, err := token.NewCodec(secret, token.AudienceSession)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create session codec: %w", err)
	}
	admin, err := token.NewCodec(secret, token.AudienceAdmin)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create admin codec: %w", err)
	}
	challenges, err := captcha.New([]byte(cfg.Auth.CaptchaSecret))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create challenge protocol: %w", err)
	}
	hasher, err := auth.NewHasher(cfg.Auth.PasswordScheme)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create password hasher: %w", err)
	}

	authSvc, err := auth.NewService(auth.Deps{
		Users:      repo,
		Sessions:   sessions,
		Admin:      admin,
		Challenges: challenges,
		Hasher:     hasher,
	}, auth.Config{
		SessionTTL:    cfg.Auth.SessionTTL,
		AdminUsername: cfg.Admin.Username,
		AdminPassword: cfg.Admin.Password,
	}, auth.WithLogger(logger), auth.WithEventRecorder(metrics))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create auth service: %w", err)
	}

	plans, err := entitlement.NewService(authSvc, repo, entitlement.Codes{
		Normal: cfg.Activation.Normal,
		Pro:    cfg.Activation.Pro,
		ProMax: cfg.Activation.ProMax,
	}, entitlement.WithLogger(logger), entitlement.WithEventRecorder(metrics))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create entitlement service: %w", err)
	}
	return authSvc, plans, nil
}

// applyMigrations brings the schema up to date before serving.
func applyMigrations(deps *ServeDeps, databaseURL string) error {
	migrator, err := deps.MigratorFactory(databaseURL)
	if err != nil {
		return fmt.Errorf("failed to open migrator: %w", err)
	}
	defer func() {
		if closeErr := migrator.Close(); closeErr != nil {
			slog.Debug("error closing migrator", "error", closeErr)
		}
	}()

	if err := migrator.Up(); err != nil {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}
	slog.Info("store schema up to date")
	return nil
}

// monitorServerErrors cancels ctx when a server reports an error.
func monitorServerErrors(ctx context.Context, cancel context.CancelFunc, errCh <-chan error, serverName string) {
	select {
	case err, ok := <-errCh:
		if !ok {
			return
		}
		if err != nil {
			slog.Error("server error, triggering shutdown",
				"server", serverName,
				"error", err,
			)
			cancel()
		}
	case <-ctx.Done():
	}
}
