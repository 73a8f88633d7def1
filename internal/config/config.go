// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Portico Contributors

// Package config defines the server configuration and loads it from a YAML
// file, PORTICO_* environment variables and command-line flags.
package config

import (
	"errors"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	"github.com/samber/oops"
)

// Store drivers.
const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
)

// Config is the complete server configuration.
type Config struct {
	HTTP       HTTPConfig       `koanf:"http" json:"http,omitempty"`
	Metrics    MetricsConfig    `koanf:"metrics" json:"metrics,omitempty"`
	Log        LogConfig        `koanf:"log" json:"log,omitempty"`
	Store      StoreConfig      `koanf:"store" json:"store,omitempty"`
	Auth       AuthConfig       `koanf:"auth" json:"auth,omitempty"`
	Admin      AdminConfig      `koanf:"admin" json:"admin,omitempty"`
	Activation ActivationConfig `koanf:"activation" json:"activation,omitempty"`
}

// HTTPConfig configures the public API listener.
type HTTPConfig struct {
	Addr              string        `koanf:"addr" json:"addr,omitempty" jsonschema:"description=API listen address"`
	AllowedOrigins    []string      `koanf:"allowed_origins" json:"allowed_origins,omitempty" jsonschema:"description=Glob patterns of Origin values allowed to send state-changing requests; empty allows all"`
	ReadHeaderTimeout time.Duration `koanf:"read_header_timeout" json:"read_header_timeout,omitempty" jsonschema:"type=string,description=Go duration"`
	ShutdownTimeout   time.Duration `koanf:"shutdown_timeout" json:"shutdown_timeout,omitempty" jsonschema:"type=string,description=Go duration"`
}

// MetricsConfig configures the observability listener.
type MetricsConfig struct {
	Addr string `koanf:"addr" json:"addr,omitempty" jsonschema:"description=Metrics and health listen address; empty disables"`
}

// LogConfig configures structured logging.
type LogConfig struct {
	Format string `koanf:"format" json:"format,omitempty" jsonschema:"enum=json,enum=text"`
	Level  string `koanf:"level" json:"level,omitempty" jsonschema:"enum=debug,enum=info,enum=warn,enum=error"`
}

// StoreConfig selects the user record store.
type StoreConfig struct {
	Driver      string `koanf:"driver" json:"driver,omitempty" jsonschema:"enum=memory,enum=postgres"`
	DatabaseURL string `koanf:"database_url" json:"database_url,omitempty"`
	AutoMigrate bool   `koanf:"auto_migrate" json:"auto_migrate,omitempty" jsonschema:"description=Apply pending migrations on serve"`
}

// AuthConfig configures tokens, cookies and password hashing.
type AuthConfig struct {
	TokenSecret    string        `koanf:"token_secret" json:"token_secret,omitempty" jsonschema:"minLength=32"`
	CaptchaSecret  string        `koanf:"captcha_secret" json:"captcha_secret,omitempty" jsonschema:"description=Defaults to token_secret"`
	SessionTTL     time.Duration `koanf:"session_ttl" json:"session_ttl,omitempty" jsonschema:"type=string,description=Go duration"`
	CookieMaxAge   time.Duration `koanf:"cookie_max_age" json:"cookie_max_age,omitempty" jsonschema:"type=string,description=Go duration"`
	CookieSecure   bool          `koanf:"cookie_secure" json:"cookie_secure,omitempty"`
	PasswordScheme string        `koanf:"password_scheme" json:"password_scheme,omitempty" jsonschema:"enum=argon2id,enum=sha256"`
}

// AdminConfig holds the fixed admin credentials. Both empty disables admin
// login.
type AdminConfig struct {
	Username string `koanf:"username" json:"username,omitempty"`
	Password string `koanf:"password" json:"password,omitempty"`
}

// ActivationConfig holds the per-tier activation codes. Empty disables a
// tier.
type ActivationConfig struct {
	Normal string `koanf:"normal" json:"normal,omitempty" jsonschema:"minLength=4,maxLength=4"`
	Pro    string `koanf:"pro" json:"pro,omitempty" jsonschema:"minLength=4,maxLength=4"`
	ProMax string `koanf:"promax" json:"promax,omitempty" jsonschema:"minLength=4,maxLength=4"`
}

// Defaults returns the configuration used when nothing overrides it.
func Defaults() *Config {
	return &Config{
		HTTP: HTTPConfig{
			Addr:              ":8080",
			ReadHeaderTimeout: 10 * time.Second,
			ShutdownTimeout:   10 * time.Second,
		},
		Metrics: MetricsConfig{Addr: "127.0.0.1:9100"},
		Log:     LogConfig{Format: "json", Level: "info"},
		Store: StoreConfig{
			Driver:      DriverMemory,
			AutoMigrate: true,
		},
		Auth: AuthConfig{
			SessionTTL:     7 * 24 * time.Hour,
			CookieMaxAge:   30 * 24 * time.Hour,
			CookieSecure:   true,
			PasswordScheme: "argon2id",
		},
	}
}

// normalize fills derived values after loading.
func (c *Config) normalize() {
	if c.Auth.CaptchaSecret == "" {
		c.Auth.CaptchaSecret = c.Auth.TokenSecret
	}
	c.Activation.Normal = strings.ToUpper(strings.TrimSpace(c.Activation.Normal))
	c.Activation.Pro = strings.ToUpper(strings.TrimSpace(c.Activation.Pro))
	c.Activation.ProMax = strings.ToUpper(strings.TrimSpace(c.Activation.ProMax))
	c.Log.Format = strings.ToLower(c.Log.Format)
	c.Log.Level = strings.ToLower(c.Log.Level)
}

// Validate reports every invalid field.
func (c Config) Validate() error {
	err := validation.ValidateStruct(&c,
		validation.Field(&c.HTTP),
		validation.Field(&c.Log),
		validation.Field(&c.Store),
		validation.Field(&c.Auth),
		validation.Field(&c.Admin),
		validation.Field(&c.Activation),
	)
	if err != nil {
		return oops.Code("CONFIG_INVALID").Wrap(err)
	}
	return nil
}

// Validate implements validation.Validatable.
func (c HTTPConfig) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Addr, validation.Required),
		validation.Field(&c.AllowedOrigins, validation.By(noEmptyEntries)),
		validation.Field(&c.ReadHeaderTimeout, validation.Required, validation.Min(time.Millisecond)),
		validation.Field(&c.ShutdownTimeout, validation.Required, validation.Min(time.Millisecond)),
	)
}

// Validate implements validation.Validatable.
func (c LogConfig) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Format, validation.Required, validation.In("json", "text")),
		validation.Field(&c.Level, validation.Required, validation.In("debug", "info", "warn", "error")),
	)
}

// Validate implements validation.Validatable.
func (c StoreConfig) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Driver, validation.Required, validation.In(DriverMemory, DriverPostgres)),
		validation.Field(&c.DatabaseURL,
			validation.By(requiredIf(c.Driver == DriverPostgres, "database_url is required for the postgres driver")),
			is.RequestURI,
		),
	)
}

// Validate implements validation.Validatable.
func (c AuthConfig) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.TokenSecret, validation.Required, validation.Length(32, 0)),
		validation.Field(&c.CaptchaSecret, validation.Required),
		validation.Field(&c.SessionTTL, validation.Required, validation.Min(time.Second)),
		validation.Field(&c.CookieMaxAge, validation.Required, validation.Min(time.Second)),
		validation.Field(&c.PasswordScheme, validation.Required, validation.In("argon2id", "sha256")),
	)
}

// Validate implements validation.Validatable.
func (c AdminConfig) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Username, validation.By(requiredIf(c.Password != "", "admin username is required with a password"))),
		validation.Field(&c.Password,
			validation.By(requiredIf(c.Username != "", "admin password is required with a username")),
			validation.Length(8, 0),
		),
	)
}

// Validate implements validation.Validatable.
func (c ActivationConfig) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Normal, validation.Length(4, 4)),
		validation.Field(&c.Pro, validation.Length(4, 4)),
		validation.Field(&c.ProMax, validation.Length(4, 4)),
	)
}

// requiredIf rejects an empty string when cond holds.
func requiredIf(cond bool, msg string) validation.RuleFunc {
	return func(value interface{}) error {
		s, _ := value.(string)
		if cond && s == "" {
			return errors.New(msg)
		}
		return nil
	}
}

func noEmptyEntries(value interface{}) error {
	list, _ := value.([]string)
	for _, s := range list {
		if strings.TrimSpace(s) == "" {
			return errors.New("must not contain empty entries")
		}
	}
	return nil
}
