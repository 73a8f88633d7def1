// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Portico Contributors

package main

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/portico/portico/internal/config"
)

// migrateConfig holds configuration for the migrate command.
type migrateConfig struct {
	yes bool
}

// NewMigrateCmd creates the migrate subcommand.
func NewMigrateCmd() *cobra.Command {
	mcfg := &migrateConfig{}

	cmd := &cobra.Command{
		Use:   "migrate [up|down|version]",
		Short: "Manage the PostgreSQL store schema",
		Long: `Apply or roll back the schema of the PostgreSQL user store.

  up       apply all pending migrations (default)
  down     roll back every migration, dropping all stored users
  version  print the applied version and pending migrations`,
		Args:      cobra.MaximumNArgs(1),
		ValidArgs: []string{"up", "down", "version"},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(config.LoadOptions{Path: configFile, Flags: cmd.Flags(), SkipValidation: true})
			if err != nil {
				return fmt.Errorf("failed to load configuration: %w", err)
			}
			action := "up"
			if len(args) == 1 {
				action = args[0]
			}
			return runMigrateWithDeps(cmd, cfg, mcfg, action, nil)
		},
	}

	cmd.Flags().String("database-url", "", "PostgreSQL connection URL")
	cmd.Flags().BoolVar(&mcfg.yes, "yes", false, "confirm destructive operations such as down")
	return cmd
}

// runMigrateWithDeps runs a migration action. If deps is nil, default
// implementations are used.
func runMigrateWithDeps(cmd *cobra.Command, cfg *config.Config, mcfg *migrateConfig, action string, deps *ServeDeps) error {
	deps = deps.withDefaults()

	if cfg.Store.DatabaseURL == "" {
		return oops.Code("CONFIG_INVALID").Errorf("store.database_url is required for migrations")
	}

	action = strings.ToLower(action)
	switch action {
	case "up", "down", "version":
	default:
		return oops.Code("MIGRATION_INVALID_ACTION").With("action", action).
			Errorf("unknown action %q: expected up, down or version", action)
	}
	if action == "down" && !mcfg.yes {
		return oops.Code("MIGRATION_NOT_CONFIRMED").
			Errorf("migrate down drops all stored users; rerun with --yes to confirm")
	}

	migrator, err := deps.MigratorFactory(cfg.Store.DatabaseURL)
	if err != nil {
		return oops.Code("DB_CONNECT_FAILED").With("operation", "open migrator").Wrap(err)
	}
	defer func() {
		if closeErr := migrator.Close(); closeErr != nil {
			slog.Debug("error closing migrator", "error", closeErr)
		}
	}()

	switch action {
	case "up":
		pending, err := migrator.Pending()
		if err != nil {
			return oops.With("operation", "list pending migrations").Wrap(err)
		}
		if len(pending) == 0 {
			cmd.Println("Schema is up to date")
			return nil
		}
		cmd.Printf("Applying %d migration(s)...\n", len(pending))
		if err := migrator.Up(); err != nil {
			return oops.Code("MIGRATION_FAILED").With("operation", "run migrations").Wrap(err)
		}
		cmd.Println("Migrations completed successfully")
	case "down":
		cmd.Println("Rolling back migrations...")
		if err := migrator.Down(); err != nil {
			return oops.Code("MIGRATION_FAILED").With("operation", "roll back migrations").Wrap(err)
		}
		cmd.Println("Rollback completed successfully")
	case "version":
		version, dirty, err := migrator.Version()
		if err != nil {
			return oops.With("operation", "read version").Wrap(err)
		}
		pending, err := migrator.Pending()
		if err != nil {
			return oops.With("operation", "list pending migrations").Wrap(err)
		}
		state := "clean"
		if dirty {
			state = "dirty"
		}
		cmd.Printf("Version: %d (%s)\n", version, state)
		cmd.Printf("Pending: %d\n", len(pending))
	}
	return nil
}
