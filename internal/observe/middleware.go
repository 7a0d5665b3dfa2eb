package observe

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	semconv "go.opentelemetry.io/otel/semconv/v1.39.0"
	"go.opentelemetry.io/otel/trace"
)

// CorrelationHeader carries the trace ID of an operator request back to the
// caller.
const CorrelationHeader = "X-Correlation-ID"

// unmatchedRoute labels requests no route claimed.
const unmatchedRoute = "unmatched"

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// Middleware instruments the operator endpoints. Each request runs in a
// server span continued from an incoming traceparent header, answers with
// [CorrelationHeader] and is recorded in [Metrics.HTTPRequestDuration]
// under the route pattern that served it, so the label set stays bounded
// to the registered routes.
//
// Probe and scrape routes are logged at debug level; anything else at info.
func Middleware(m *Metrics) func(http.Handler) http.Handler {
	prop := propagation.TraceContext{}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			began := time.Now()
			ctx := prop.Extract(r.Context(), propagation.HeaderCarrier(r.Header))
			ctx, span := StartSpan(ctx, "operator "+r.Method,
				trace.WithSpanKind(trace.SpanKindServer),
				trace.WithAttributes(
					semconv.HTTPRequestMethodKey.String(r.Method),
					semconv.URLPath(r.URL.Path),
				),
			)
			defer span.End()

			if cid := CorrelationID(ctx); cid != "" {
				w.Header().Set(CorrelationHeader, cid)
			}

			sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
			r = r.WithContext(ctx)
			next.ServeHTTP(sw, r)

			// ServeMux fills in the pattern on the request it was handed.
			route := routeOf(r)
			span.SetName("operator " + route)
			span.SetAttributes(
				semconv.HTTPRoute(route),
				semconv.HTTPResponseStatusCode(sw.status),
			)

			elapsed := time.Since(began)
			m.HTTPRequestDuration.Record(ctx, elapsed.Seconds(),
				metric.WithAttributes(
					attribute.String("method", r.Method),
					attribute.String("route", route),
					attribute.Int("status", sw.status),
				),
			)

			level := slog.LevelInfo
			if quietRoute(route) {
				level = slog.LevelDebug
			}
			Logger(ctx).LogAttrs(ctx, level, "operator request",
				slog.String("route", route),
				slog.Int("status", sw.status),
				slog.Duration("took", elapsed),
			)
		})
	}
}

// routeOf returns the pattern without its method prefix, or unmatchedRoute.
func routeOf(r *http.Request) string {
	p := r.Pattern
	if p == "" {
		return unmatchedRoute
	}
	if _, path, ok := strings.Cut(p, " "); ok {
		return path
	}
	return p
}

func quietRoute(route string) bool {
	switch route {
	case "/healthz", "/readyz", "/statusz", "/metrics":
		return true
	}
	return false
}
