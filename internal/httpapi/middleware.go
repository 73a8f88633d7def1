// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Portico Contributors

package httpapi

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gobwas/glob"
	"github.com/gorilla/mux"
	"github.com/samber/oops"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/portico/portico/internal/httpapi"

// RequestObserver records finished requests.
type RequestObserver interface {
	ObserveHTTP(route, method string, status int, elapsed time.Duration)
}

// statusRecorder captures the status code written by a handler.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

func (s *statusRecorder) Write(b []byte) (int, error) {
	if s.status == 0 {
		s.status = http.StatusOK
	}
	//nolint:wrapcheck // ResponseWriter passthrough
	return s.ResponseWriter.Write(b)
}

// routeName returns the matched route template. Router middleware only runs
// for matched routes, so 404 and 405 responses are neither traced nor
// counted.
func routeName(r *http.Request) string {
	route := mux.CurrentRoute(r)
	if route == nil {
		return ""
	}
	tpl, err := route.GetPathTemplate()
	if err != nil {
		return ""
	}
	return tpl
}

// tracing starts a server span per request, continuing any propagated trace.
func tracing(next http.Handler) http.Handler {
	tracer := otel.Tracer(tracerName)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))
		route := routeName(r)
		ctx, span := tracer.Start(ctx, r.Method+" "+route,
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(
				attribute.String("http.request.method", r.Method),
				attribute.String("http.route", route),
			),
		)
		defer span.End()

		rec := &statusRecorder{ResponseWriter: w}
		next.ServeHTTP(rec, r.WithContext(ctx))

		span.SetAttributes(attribute.Int("http.response.status_code", rec.status))
		if rec.status >= http.StatusInternalServerError {
			span.SetStatus(codes.Error, http.StatusText(rec.status))
		}
	})
}

// instrument logs each request and reports it to obs when set.
func instrument(logger *slog.Logger, obs RequestObserver) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w}
			next.ServeHTTP(rec, r)
			if rec.status == 0 {
				rec.status = http.StatusOK
			}
			elapsed := time.Since(start)
			route := routeName(r)

			if obs != nil {
				obs.ObserveHTTP(route, r.Method, rec.status, elapsed)
			}
			level := slog.LevelDebug
			if rec.status >= http.StatusInternalServerError {
				level = slog.LevelWarn
			}
			logger.Log(r.Context(), level, "request handled",
				"method", r.Method,
				"route", route,
				"status", rec.status,
				"duration", elapsed)
		})
	}
}

// OriginGuard rejects state-changing requests whose Origin header matches
// none of the allowed glob patterns. Requests without an Origin header and
// safe methods pass through. An empty pattern list allows everything.
type OriginGuard struct {
	patterns []glob.Glob
	logger   *slog.Logger
}

// NewOriginGuard compiles the allowed origin patterns.
func NewOriginGuard(patterns []string, logger *slog.Logger) (*OriginGuard, error) {
	g := &OriginGuard{logger: logger}
	for _, p := range patterns {
		compiled, err := glob.Compile(p, '.')
		if err != nil {
			return nil, oops.Code("HTTP_ORIGIN_PATTERN_INVALID").With("pattern", p).Wrap(err)
		}
		g.patterns = append(g.patterns, compiled)
	}
	return g, nil
}

// Allowed reports whether origin may send state-changing requests.
func (g *OriginGuard) Allowed(origin string) bool {
	if len(g.patterns) == 0 || origin == "" {
		return true
	}
	for _, p := range g.patterns {
		if p.Match(origin) {
			return true
		}
	}
	return false
}

// Middleware applies the guard to next.
func (g *OriginGuard) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet, http.MethodHead, http.MethodOptions:
			next.ServeHTTP(w, r)
			return
		}
		origin := r.Header.Get("Origin")
		if !g.Allowed(origin) {
			writeError(r.Context(), w, g.logger, oops.Code(CodeOriginForbidden).
				Public("origin not allowed").
				With("origin", origin).
				Errorf("origin %q rejected", origin))
			return
		}
		next.ServeHTTP(w, r)
	})
}
