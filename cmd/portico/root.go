// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Portico Contributors

package main

import (
	"github.com/spf13/cobra"
)

// Global flags available to all subcommands.
var configFile string

// NewRootCmd creates the root command for the Portico CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "portico",
		Short: "Portico - accounts, sessions and plan entitlements",
		Long: `Portico serves account registration and login with stateless signed
session cookies, a stateless CAPTCHA challenge, and plan activation codes.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&configFile, "config", "", "config file path (default: $XDG_CONFIG_HOME/portico/config.yaml)")

	cmd.AddCommand(NewServeCmd())
	cmd.AddCommand(NewMigrateCmd())
	cmd.AddCommand(NewStatusCmd())

	return cmd
}
