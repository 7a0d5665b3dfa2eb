package observe

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

// operatorSetup wires a mux with the routes the health server registers
// behind Middleware, backed by in-memory metric and span collection.
func operatorSetup(t *testing.T) (http.Handler, *sdkmetric.ManualReader, *tracetest.InMemoryExporter) {
	t.Helper()

	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	m, err := NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}

	exp := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exp))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })
	orig := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() { otel.SetTracerProvider(orig) })

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("GET /statusz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Seen-Correlation", CorrelationID(r.Context()))
		w.WriteHeader(http.StatusNoContent)
	})
	return Middleware(m)(mux), reader, exp
}

func serve(h http.Handler, method, path string, header http.Header) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	for k, v := range header {
		req.Header[k] = v
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

// ── correlation ──────────────────────────────────────────────────────────────

func TestMiddleware_CorrelationHeaderMatchesContext(t *testing.T) {
	h, _, _ := operatorSetup(t)

	rec := serve(h, "GET", "/statusz", nil)
	cid := rec.Header().Get(CorrelationHeader)
	if len(cid) != 32 {
		t.Fatalf("%s = %q, want a 32 char trace ID", CorrelationHeader, cid)
	}
	if seen := rec.Header().Get("X-Seen-Correlation"); seen != cid {
		t.Errorf("handler saw correlation %q, response carries %q", seen, cid)
	}
}

func TestMiddleware_ContinuesIncomingTrace(t *testing.T) {
	h, _, _ := operatorSetup(t)
	const traceID = "4bf92f3577b34da6a3ce929d0e0e4736"

	rec := serve(h, "GET", "/statusz", http.Header{
		"Traceparent": {"00-" + traceID + "-00f067aa0ba902b7-01"},
	})
	if got := rec.Header().Get(CorrelationHeader); got != traceID {
		t.Errorf("%s = %q, want %q", CorrelationHeader, got, traceID)
	}
}

// ── spans and metrics ────────────────────────────────────────────────────────

func TestMiddleware_SpanNamedAfterRoute(t *testing.T) {
	h, _, exp := operatorSetup(t)

	rec := serve(h, "GET", "/statusz", nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusNoContent)
	}

	spans := exp.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("spans = %d, want 1", len(spans))
	}
	if spans[0].Name != "operator /statusz" {
		t.Errorf("span name = %q, want %q", spans[0].Name, "operator /statusz")
	}
	var gotStatus int64
	for _, a := range spans[0].Attributes {
		if a.Key == "http.response.status_code" {
			gotStatus = a.Value.AsInt64()
		}
	}
	if gotStatus != http.StatusNoContent {
		t.Errorf("span status attribute = %d, want %d", gotStatus, http.StatusNoContent)
	}
}

func TestMiddleware_RecordsRouteNotPath(t *testing.T) {
	h, reader, _ := operatorSetup(t)

	serve(h, "GET", "/healthz", nil)
	serve(h, "GET", "/no/such/thing", nil)
	serve(h, "GET", "/another/unknown", nil)

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	met := findMetric(rm, "cuecard.http.request.duration")
	if met == nil {
		t.Fatal("cuecard.http.request.duration not recorded")
	}
	hist, ok := met.Data.(metricdata.Histogram[float64])
	if !ok {
		t.Fatalf("data = %T, want Histogram[float64]", met.Data)
	}

	counts := make(map[string]uint64)
	for _, dp := range hist.DataPoints {
		route, _ := dp.Attributes.Value(attribute.Key("route"))
		counts[route.AsString()] += dp.Count
	}
	if counts["/healthz"] != 1 {
		t.Errorf("/healthz count = %d, want 1", counts["/healthz"])
	}
	if counts[unmatchedRoute] != 2 {
		t.Errorf("%s count = %d, want 2", unmatchedRoute, counts[unmatchedRoute])
	}
	if len(counts) != 2 {
		t.Errorf("routes = %v, want only /healthz and %s", counts, unmatchedRoute)
	}
}

func TestRouteOf(t *testing.T) {
	t.Parallel()

	tests := []struct {
		pattern string
		want    string
	}{
		{"", unmatchedRoute},
		{"GET /statusz", "/statusz"},
		{"/metrics", "/metrics"},
	}
	for _, tt := range tests {
		r := httptest.NewRequest("GET", "/", nil)
		r.Pattern = tt.pattern
		if got := routeOf(r); got != tt.want {
			t.Errorf("routeOf(%q) = %q, want %q", tt.pattern, got, tt.want)
		}
	}
}
