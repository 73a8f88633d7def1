// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Portico Contributors

package config

import (
	"errors"
	"io/fs"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	"github.com/spf13/pflag"

	"github.com/portico/portico/internal/xdg"
)

// EnvPrefix prefixes environment overrides. Nested keys are separated by a
// double underscore: PORTICO_AUTH__TOKEN_SECRET sets auth.token_secret.
const EnvPrefix = "PORTICO_"

// flagKeys maps command-line flag names to config keys.
var flagKeys = map[string]string{
	"http-addr":       "http.addr",
	"allowed-origins": "http.allowed_origins",
	"metrics-addr":    "metrics.addr",
	"log-format":      "log.format",
	"log-level":       "log.level",
	"store-driver":    "store.driver",
	"database-url":    "store.database_url",
	"auto-migrate":    "store.auto_migrate",
}

// BindFlags registers the config override flags on fs.
func BindFlags(fs *pflag.FlagSet) {
	d := Defaults()
	fs.String("http-addr", d.HTTP.Addr, "API listen address")
	fs.StringSlice("allowed-origins", nil, "origin glob patterns allowed to send state-changing requests")
	fs.String("metrics-addr", d.Metrics.Addr, "metrics and health listen address (empty disables)")
	fs.String("log-format", d.Log.Format, "log format (json or text)")
	fs.String("log-level", d.Log.Level, "log level (debug, info, warn, error)")
	fs.String("store-driver", d.Store.Driver, "user store driver (memory or postgres)")
	fs.String("database-url", "", "PostgreSQL connection string")
	fs.Bool("auto-migrate", d.Store.AutoMigrate, "apply pending migrations on startup")
}

// LoadOptions control where configuration is read from.
type LoadOptions struct {
	// Path is the YAML file to read. When empty the XDG default is used if
	// it exists.
	Path string
	// Flags carries explicitly set command-line overrides.
	Flags *pflag.FlagSet
	// SkipValidation returns the merged configuration without running
	// Validate. Maintenance commands that read only a few keys use it.
	SkipValidation bool
}

// Load builds the configuration. Later sources override earlier ones:
// defaults, YAML file, environment, then flags that were set explicitly.
func Load(opts LoadOptions) (*Config, error) {
	k := koanf.New(".")

	path, explicit := opts.Path, opts.Path != ""
	if !explicit {
		if p, err := xdg.ConfigFile(); err == nil {
			path = p
		}
	}
	if path != "" {
		err := loadFile(k, path)
		switch {
		case errors.Is(err, fs.ErrNotExist) && !explicit:
		case err != nil:
			return nil, err
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, oops.Code("CONFIG_LOAD_FAILED").With("source", "env").Wrap(err)
	}

	if opts.Flags != nil {
		if err := k.Load(posflag.ProviderWithFlag(opts.Flags, ".", k, flagKey), nil); err != nil {
			return nil, oops.Code("CONFIG_LOAD_FAILED").With("source", "flags").Wrap(err)
		}
	}

	cfg := Defaults()
	if err := k.UnmarshalWithConf("", cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, oops.Code("CONFIG_LOAD_FAILED").With("operation", "unmarshal").Wrap(err)
	}
	cfg.normalize()

	if opts.SkipValidation {
		return cfg, nil
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadFile(k *koanf.Koanf, path string) error {
	data, err := os.ReadFile(path) //nolint:gosec // path comes from the operator
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return err
		}
		return oops.Code("CONFIG_READ_FAILED").With("path", path).Wrap(err)
	}
	if err := ValidateYAML(data); err != nil {
		return oops.Code("CONFIG_SCHEMA_INVALID").With("path", path).Wrap(err)
	}
	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return oops.Code("CONFIG_LOAD_FAILED").With("path", path).Wrap(err)
	}
	return nil
}

// envKey turns PORTICO_AUTH__TOKEN_SECRET into auth.token_secret.
func envKey(name string) string {
	name = strings.TrimPrefix(name, EnvPrefix)
	return strings.ReplaceAll(strings.ToLower(name), "__", ".")
}

// flagKey maps explicitly set flags to config keys and skips the rest.
func flagKey(f *pflag.Flag) (string, interface{}) {
	key, ok := flagKeys[f.Name]
	if !ok || !f.Changed {
		return "", nil
	}
	if sv, ok := f.Value.(pflag.SliceValue); ok {
		return key, sv.GetSlice()
	}
	return key, f.Value.String()
}
