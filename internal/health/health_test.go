package health

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/MrWong99/cuecard/internal/observe"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric/noop"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

func ok(context.Context) error { return nil }

func failing(msg string) func(context.Context) error {
	return func(context.Context) error { return errors.New(msg) }
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) result {
	t.Helper()
	var body result
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode JSON: %v", err)
	}
	return body
}

// ── Healthz ──────────────────────────────────────────────────────────────────

func TestHealthz(t *testing.T) {
	t.Parallel()
	h := New(Checker{Name: "store", Check: failing("down")})

	rec := httptest.NewRecorder()
	h.Healthz(rec, httptest.NewRequest("GET", "/healthz", nil))

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json; charset=utf-8" {
		t.Errorf("Content-Type = %q, want application/json", ct)
	}
	if body := decode(t, rec); body.Status != "ok" {
		t.Errorf("status = %q, want ok", body.Status)
	}
}

// ── Readyz ───────────────────────────────────────────────────────────────────

func TestReadyz(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		checkers   []Checker
		wantCode   int
		wantStatus string
		wantChecks map[string]string
	}{
		{
			name:       "no checkers",
			wantCode:   http.StatusOK,
			wantStatus: "ok",
		},
		{
			name: "all pass",
			checkers: []Checker{
				{Name: "store", Check: ok},
				{Name: "recognition", Check: ok},
			},
			wantCode:   http.StatusOK,
			wantStatus: "ok",
			wantChecks: map[string]string{"store": "ok", "recognition": "ok"},
		},
		{
			name: "one fails",
			checkers: []Checker{
				{Name: "store", Check: failing("connection refused")},
				{Name: "recognition", Check: ok},
			},
			wantCode:   http.StatusServiceUnavailable,
			wantStatus: "fail",
			wantChecks: map[string]string{"store": "fail: connection refused", "recognition": "ok"},
		},
		{
			name: "all fail",
			checkers: []Checker{
				{Name: "store", Check: failing("timeout")},
				{Name: "recognition", Check: failing("circuit open")},
			},
			wantCode:   http.StatusServiceUnavailable,
			wantStatus: "fail",
			wantChecks: map[string]string{"store": "fail: timeout", "recognition": "fail: circuit open"},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			h := New(tc.checkers...)

			rec := httptest.NewRecorder()
			h.Readyz(rec, httptest.NewRequest("GET", "/readyz", nil))

			if rec.Code != tc.wantCode {
				t.Errorf("code = %d, want %d", rec.Code, tc.wantCode)
			}
			body := decode(t, rec)
			if body.Status != tc.wantStatus {
				t.Errorf("status = %q, want %q", body.Status, tc.wantStatus)
			}
			for name, want := range tc.wantChecks {
				if got := body.Checks[name]; got != want {
					t.Errorf("check %q = %q, want %q", name, got, want)
				}
			}
		})
	}
}

func TestReadyz_ChecksRunConcurrently(t *testing.T) {
	t.Parallel()

	var running atomic.Int32
	both := make(chan struct{})
	check := func(ctx context.Context) error {
		if running.Add(1) == 2 {
			close(both)
		}
		select {
		case <-both:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	h := New(Checker{Name: "a", Check: check}, Checker{Name: "b", Check: check})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	rec := httptest.NewRecorder()
	h.Readyz(rec, httptest.NewRequest("GET", "/readyz", nil).WithContext(ctx))

	if rec.Code != http.StatusOK {
		t.Errorf("code = %d, want %d (checks did not overlap)", rec.Code, http.StatusOK)
	}
}

func TestReadyz_RespectsContextCancellation(t *testing.T) {
	t.Parallel()
	h := New(Checker{Name: "slow", Check: func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	rec := httptest.NewRecorder()
	h.Readyz(rec, httptest.NewRequest("GET", "/readyz", nil).WithContext(ctx))

	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("code = %d, want %d", rec.Code, http.StatusServiceUnavailable)
	}
}

// ── Statusz ──────────────────────────────────────────────────────────────────

func TestStatusz(t *testing.T) {
	t.Parallel()

	type view struct {
		Phase string `json:"phase"`
	}

	tests := []struct {
		name     string
		status   StatusFunc
		wantCode int
		wantBody string
	}{
		{name: "unset", wantCode: http.StatusNoContent},
		{name: "no session", status: func() any { return nil }, wantCode: http.StatusNoContent},
		{name: "running", status: func() any { return view{Phase: "running"} }, wantCode: http.StatusOK, wantBody: `{"phase":"running"}`},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			h := New().WithStatus(tc.status)

			rec := httptest.NewRecorder()
			h.Statusz(rec, httptest.NewRequest("GET", "/statusz", nil))

			if rec.Code != tc.wantCode {
				t.Errorf("code = %d, want %d", rec.Code, tc.wantCode)
			}
			if got := strings.TrimSpace(rec.Body.String()); got != tc.wantBody {
				t.Errorf("body = %q, want %q", got, tc.wantBody)
			}
		})
	}
}

// ── Routes ───────────────────────────────────────────────────────────────────

func TestRegister_RoutesWork(t *testing.T) {
	t.Parallel()
	h := New(Checker{Name: "store", Check: ok})

	mux := http.NewServeMux()
	h.Register(mux)

	tests := []struct {
		method, path string
		wantStatus   int
	}{
		{"GET", "/healthz", http.StatusOK},
		{"GET", "/readyz", http.StatusOK},
		{"GET", "/statusz", http.StatusNoContent},
		{"POST", "/healthz", http.StatusMethodNotAllowed},
	}

	for _, tc := range tests {
		t.Run(tc.method+" "+tc.path, func(t *testing.T) {
			rec := httptest.NewRecorder()
			mux.ServeHTTP(rec, httptest.NewRequest(tc.method, tc.path, nil))

			if rec.Code != tc.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tc.wantStatus)
			}
		})
	}
}

func TestServer(t *testing.T) {
	m, err := observe.NewMetrics(noop.NewMeterProvider())
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	tp := sdktrace.NewTracerProvider()
	origTP := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() {
		otel.SetTracerProvider(origTP)
		_ = tp.Shutdown(context.Background())
	})

	h := New(Checker{Name: "store", Check: ok}).WithStatus(func() any { return map[string]int{"cursor": 2} })

	srv, err := Listen("127.0.0.1:0", h, m)
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	})

	base := "http://" + srv.Addr()
	for _, path := range []string{"/healthz", "/readyz", "/statusz", "/metrics"} {
		t.Run(path, func(t *testing.T) {
			resp, err := http.Get(base + path)
			if err != nil {
				t.Fatalf("GET %s: %v", path, err)
			}
			defer resp.Body.Close()
			_, _ = io.Copy(io.Discard, resp.Body)

			if resp.StatusCode != http.StatusOK {
				t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusOK)
			}
			if resp.Header.Get("X-Correlation-ID") == "" {
				t.Error("X-Correlation-ID header missing; middleware not applied")
			}
		})
	}
}
