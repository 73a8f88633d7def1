// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Portico Contributors

// Package httpapi exposes the authentication and entitlement flows as a
// JSON API with cookie-carried session tokens.
package httpapi

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gorilla/mux"
	"github.com/samber/oops"
)

// Options configure the API handler.
type Options struct {
	Cookies        CookiePolicy
	AllowedOrigins []string
	Logger         *slog.Logger
	Metrics        RequestObserver
}

// NewHandler builds the API router.
func NewHandler(authSvc AuthService, plans Activator, opts Options) (http.Handler, error) {
	if authSvc == nil || plans == nil {
		return nil, oops.Code("HTTP_INVALID_HANDLER").Errorf("auth and entitlement services are required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	guard, err := NewOriginGuard(opts.AllowedOrigins, logger)
	if err != nil {
		return nil, err
	}

	h := &handlers{auth: authSvc, plans: plans, cookies: opts.Cookies, logger: logger}

	r := mux.NewRouter()
	r.HandleFunc("/challenge", h.challenge).Methods(http.MethodGet)
	r.HandleFunc("/register", h.register).Methods(http.MethodPost)
	r.HandleFunc("/login", h.login).Methods(http.MethodPost)
	r.HandleFunc("/logout", h.logout).Methods(http.MethodPost)
	r.HandleFunc("/me", h.me).Methods(http.MethodGet)
	r.HandleFunc("/activate", h.activate).Methods(http.MethodPost)
	r.HandleFunc("/user/password", h.changePassword).Methods(http.MethodPost)

	admin := r.PathPrefix("/admin").Subrouter()
	admin.HandleFunc("/login", h.adminLogin).Methods(http.MethodPost)
	admin.HandleFunc("/logout", h.adminLogout).Methods(http.MethodPost)
	admin.HandleFunc("/status", h.adminStatus).Methods(http.MethodGet)

	r.Use(tracing, instrument(logger, opts.Metrics), guard.Middleware)
	return r, nil
}

// Server serves the API over HTTP.
type Server struct {
	addr              string
	handler           http.Handler
	readHeaderTimeout time.Duration
	listener          net.Listener
	httpServer        *http.Server
	running           atomic.Bool
}

// NewServer creates a server for handler on addr.
func NewServer(addr string, handler http.Handler, readHeaderTimeout time.Duration) *Server {
	if readHeaderTimeout <= 0 {
		readHeaderTimeout = 10 * time.Second
	}
	return &Server{addr: addr, handler: handler, readHeaderTimeout: readHeaderTimeout}
}

// Start begins serving. The returned channel receives any serve error and
// is closed when the server stops.
func (s *Server) Start() (<-chan error, error) {
	if !s.running.CompareAndSwap(false, true) {
		return nil, oops.Errorf("api server already running")
	}

	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		s.running.Store(false)
		return nil, oops.Code("HTTP_LISTEN_FAILED").With("addr", s.addr).Wrap(err)
	}
	s.listener = listener

	httpSrv := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: s.readHeaderTimeout,
	}
	s.httpServer = httpSrv

	errCh := make(chan error, 1)
	go func() {
		defer close(errCh)
		if serveErr := httpSrv.Serve(listener); serveErr != nil && serveErr != http.ErrServerClosed {
			slog.Error("api server error", "error", serveErr)
			errCh <- serveErr
		}
	}()

	slog.Info("api server started", "addr", listener.Addr().String())
	return errCh, nil
}

// Stop gracefully shuts the server down.
func (s *Server) Stop(ctx context.Context) error {
	if !s.running.CompareAndSwap(true, false) {
		return nil
	}
	if s.httpServer != nil {
		if err := s.httpServer.Shutdown(ctx); err != nil {
			s.running.Store(true)
			return oops.With("operation", "shutdown_api_server").Wrap(err)
		}
	}
	slog.Info("api server stopped")
	return nil
}

// Addr returns the listening address, or "" before Start.
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return ""
}
