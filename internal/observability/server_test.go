// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Portico Contributors

package observability

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.uber.org/goleak"
)

func alwaysReady(context.Context) bool { return true }

func startServer(t *testing.T, ready ReadinessChecker) *Server {
	t.Helper()
	server := NewServer("127.0.0.1:0", ready)
	if _, err := server.Start(); err != nil {
		t.Fatalf("failed to start server: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Stop(ctx)
	})
	return server
}

func get(t *testing.T, url string) (int, string) {
	t.Helper()
	resp, err := http.Get(url) //nolint:gosec,noctx // test-local address
	if err != nil {
		t.Fatalf("failed to GET %s: %v", url, err)
	}
	defer func() { _ = resp.Body.Close() }()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed to read response body: %v", err)
	}
	return resp.StatusCode, string(body)
}

func TestServer_Metrics(t *testing.T) {
	server := startServer(t, alwaysReady)

	server.Metrics().RecordAuthEvent("login", "ok")
	server.Metrics().ObserveHTTP("/login", http.MethodPost, http.StatusOK, 15*time.Millisecond)

	status, body := get(t, "http://"+server.Addr()+"/metrics")
	if status != http.StatusOK {
		t.Errorf("expected status 200, got %d", status)
	}
	for _, want := range []string{
		"# HELP", "# TYPE", "go_", "process_",
		"portico_auth_events_total",
		"portico_http_requests_total",
		"portico_http_request_duration_seconds",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("expected %q in metrics output", want)
		}
	}
}

func TestServer_LivenessReturns200(t *testing.T) {
	server := startServer(t, nil)

	status, body := get(t, "http://"+server.Addr()+"/healthz/liveness")
	if status != http.StatusOK {
		t.Errorf("expected status 200, got %d", status)
	}
	if strings.TrimSpace(body) != "ok" {
		t.Errorf("expected body 'ok', got %q", body)
	}
}

func TestServer_Readiness(t *testing.T) {
	tests := []struct {
		name       string
		ready      ReadinessChecker
		wantStatus int
		wantBody   string
	}{
		{name: "ready", ready: alwaysReady, wantStatus: http.StatusOK, wantBody: "ok"},
		{name: "not ready", ready: func(context.Context) bool { return false }, wantStatus: http.StatusServiceUnavailable, wantBody: "not ready"},
		{name: "nil checker", ready: nil, wantStatus: http.StatusOK, wantBody: "ok"},
		{
			name: "checker sees a deadline",
			ready: func(ctx context.Context) bool {
				_, ok := ctx.Deadline()
				return ok
			},
			wantStatus: http.StatusOK,
			wantBody:   "ok",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := startServer(t, tt.ready)
			status, body := get(t, "http://"+server.Addr()+"/healthz/readiness")
			if status != tt.wantStatus {
				t.Errorf("expected status %d, got %d", tt.wantStatus, status)
			}
			if strings.TrimSpace(body) != tt.wantBody {
				t.Errorf("expected body %q, got %q", tt.wantBody, body)
			}
		})
	}
}

func TestServer_DoubleStartFails(t *testing.T) {
	server := startServer(t, nil)

	if _, err := server.Start(); err == nil {
		t.Error("expected error on second Start()")
	}
}

func TestServer_StopIdempotent(t *testing.T) {
	server := NewServer("127.0.0.1:0", nil)

	if err := server.Stop(context.Background()); err != nil {
		t.Errorf("Stop() on unstarted server should return nil, got %v", err)
	}
	if server.Addr() != "" {
		t.Errorf("Addr() on unstarted server should be empty, got %q", server.Addr())
	}
}

func TestServer_ErrorChannelReportsServeErrors(t *testing.T) {
	server := NewServer("127.0.0.1:0", nil)

	errCh, err := server.Start()
	if err != nil {
		t.Fatalf("failed to start server: %v", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Stop(ctx)
	}()

	_ = server.listener.Close()

	select {
	case serveErr := <-errCh:
		if serveErr == nil {
			t.Error("expected an error from the error channel after closing listener")
		}
	case <-time.After(2 * time.Second):
		t.Error("timeout waiting for error on error channel")
	}
}

func TestServer_ShutdownLeavesNoGoroutines(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	server := NewServer("127.0.0.1:0", nil)
	errCh, err := server.Start()
	if err != nil {
		t.Fatalf("failed to start server: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Stop(ctx); err != nil {
		t.Fatalf("failed to stop server: %v", err)
	}

	select {
	case err, ok := <-errCh:
		if ok && err != nil {
			t.Errorf("unexpected error on normal shutdown: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Error("timeout waiting for error channel to close")
	}
}

func TestMetrics_Recorders(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.RecordAuthEvent("register", "ok")
	m.RecordAuthEvent("register", "ok")
	m.RecordAuthEvent("register", "username_taken")
	m.ObserveHTTP("/me", http.MethodGet, http.StatusOK, time.Millisecond)
	m.RecordStoreOperation("migrate_up", nil)
	m.RecordStoreOperation("migrate_up", errors.New("boom"))

	if got := testutil.ToFloat64(m.AuthEvents.WithLabelValues("register", "ok")); got != 2 {
		t.Errorf("register ok = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.AuthEvents.WithLabelValues("register", "username_taken")); got != 1 {
		t.Errorf("register username_taken = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.HTTPRequests.WithLabelValues("/me", "GET", "200")); got != 1 {
		t.Errorf("GET /me 200 = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.StoreOperations.WithLabelValues("migrate_up", "error")); got != 1 {
		t.Errorf("migrate_up error = %v, want 1", got)
	}
}
