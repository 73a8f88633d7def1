// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Portico Contributors

package main

import (
	"context"
	"net/http"
	"time"

	"github.com/portico/portico/internal/config"
	"github.com/portico/portico/internal/httpapi"
	"github.com/portico/portico/internal/kv"
	"github.com/portico/portico/internal/observability"
)

// ServeDeps contains injectable dependencies for the serve command.
// All fields with nil values will use their default implementations.
type ServeDeps struct {
	// StoreFactory opens the user record store. The returned func releases it.
	// Default: openStore
	StoreFactory func(ctx context.Context, cfg config.StoreConfig) (kv.Store, func(), error)

	// MigratorFactory opens a schema migrator for a database URL.
	// Default: kv.NewMigrator
	MigratorFactory func(databaseURL string) (Migrator, error)

	// ObservabilityServerFactory creates an observability server.
	// Default: observability.NewServer
	ObservabilityServerFactory func(addr string, readinessChecker observability.ReadinessChecker) ObservabilityServer

	// APIServerFactory creates the API server.
	// Default: httpapi.NewServer
	APIServerFactory func(addr string, handler http.Handler, readHeaderTimeout time.Duration) Server
}

// Migrator wraps the methods used from kv.Migrator.
type Migrator interface {
	Up() error
	Down() error
	Version() (version uint, dirty bool, err error)
	Pending() ([]uint, error)
	Close() error
}

// Server wraps the lifecycle methods shared by the API and observability
// servers.
type Server interface {
	Start() (<-chan error, error)
	Stop(ctx context.Context) error
	Addr() string
}

// ObservabilityServer wraps the methods used from observability.Server.
type ObservabilityServer interface {
	Server
	Metrics() *observability.Metrics
}

func (d *ServeDeps) withDefaults() *ServeDeps {
	out := ServeDeps{}
	if d != nil {
		out = *d
	}
	if out.StoreFactory == nil {
		out.StoreFactory = openStore
	}
	if out.MigratorFactory == nil {
		out.MigratorFactory = newMigrator
	}
	if out.ObservabilityServerFactory == nil {
		out.ObservabilityServerFactory = func(addr string, ready observability.ReadinessChecker) ObservabilityServer {
			return observability.NewServer(addr, ready)
		}
	}
	if out.APIServerFactory == nil {
		out.APIServerFactory = func(addr string, handler http.Handler, readHeaderTimeout time.Duration) Server {
			return httpapi.NewServer(addr, handler, readHeaderTimeout)
		}
	}
	return &out
}

func newMigrator(databaseURL string) (Migrator, error) {
	return kv.NewMigrator(databaseURL)
}

// openStore opens the configured store driver.
func openStore(ctx context.Context, cfg config.StoreConfig) (kv.Store, func(), error) {
	if cfg.Driver != config.DriverPostgres {
		return kv.NewMemoryStore(), func() {}, nil
	}
	store, err := kv.NewPostgresStore(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, nil, err
	}
	return store, store.Close, nil
}
