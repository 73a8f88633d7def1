// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Portico Contributors

// Package xdg provides XDG Base Directory paths for Portico.
package xdg

import (
	"os"
	"path/filepath"

	"github.com/samber/oops"
)

const appName = "portico"

// ConfigFileName is the name of the config file inside ConfigDir.
const ConfigFileName = "config.yaml"

// ConfigDir returns the XDG config directory for portico.
// Checks XDG_CONFIG_HOME first, falls back to ~/.config.
func ConfigDir() (string, error) {
	return baseDir("XDG_CONFIG_HOME", ".config")
}

// ConfigFile returns the default config file path.
func ConfigFile() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, ConfigFileName), nil
}

func baseDir(envVar, homeRel string) (string, error) {
	if base := os.Getenv(envVar); base != "" {
		return filepath.Join(base, appName), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", oops.Code("XDG_NO_HOME").With("env", envVar).Wrap(err)
	}
	return filepath.Join(home, homeRel, appName), nil
}
