package store_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/MrWong99/cuecard/internal/insight"
	"github.com/MrWong99/cuecard/internal/session"
	"github.com/MrWong99/cuecard/internal/store"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ── helpers ──────────────────────────────────────────────────────────────────

func newResult(id, setlist string, started time.Time) *session.Result {
	return &session.Result{
		ID:        id,
		SessionID: "sess-" + id,
		Setlist:   setlist,
		Mode:      "cue-card",
		StartedAt: started.UTC(),
		Path:      "/recordings/" + id + ".wav",
		Duration:  12*time.Minute + 30*time.Second,
		Bytes:     24_000_044,
		Insights: []insight.Insight{
			{Kind: insight.KindLongPause, Message: "12s without speech at 4:10", At: 250 * time.Second, Span: 12 * time.Second},
		},
		UnitsReached: 7,
		TotalUnits:   9,
		Advances:     map[string]int{"voice": 5, "manual": 1},
		Degraded:     true,
	}
}

func newSQLite(t *testing.T) *store.SQLite {
	t.Helper()
	st, err := store.OpenSQLite(context.Background(), ":memory:")
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

// testDSN returns the Postgres DSN from the environment or skips the test.
func testDSN(t *testing.T) string {
	t.Helper()
	dsn := os.Getenv("CUECARD_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("CUECARD_TEST_POSTGRES_DSN not set, skipping PostgreSQL integration tests")
	}
	return dsn
}

func newPostgres(t *testing.T) *store.Postgres {
	t.Helper()
	dsn := testDSN(t)
	ctx := context.Background()

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("pool: %v", err)
	}
	if _, err := pool.Exec(ctx, "DROP TABLE IF EXISTS results CASCADE"); err != nil {
		t.Fatalf("drop results: %v", err)
	}
	pool.Close()

	st, err := store.NewPostgres(ctx, dsn)
	if err != nil {
		t.Fatalf("NewPostgres: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

// exerciseStore runs the shared behaviour checks against any backend.
func exerciseStore(t *testing.T, st store.Store) {
	t.Helper()
	ctx := context.Background()
	base := time.Date(2026, 10, 15, 21, 0, 0, 0, time.UTC)

	older := newResult("a1", "Friday late", base)
	newer := newResult("a2", "Friday late", base.Add(24*time.Hour))
	other := newResult("b1", "Open mic", base.Add(time.Hour))
	other.Insights = nil
	for _, r := range []*session.Result{older, newer, other} {
		if err := st.SaveResult(ctx, r); err != nil {
			t.Fatalf("SaveResult(%s): %v", r.ID, err)
		}
	}

	got, err := st.GetResult(ctx, "a1")
	if err != nil {
		t.Fatalf("GetResult: %v", err)
	}
	if !reflect.DeepEqual(got, older) {
		t.Errorf("GetResult = %+v\nwant %+v", got, older)
	}

	if _, err := st.GetResult(ctx, "missing"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("GetResult(missing) = %v, want ErrNotFound", err)
	}

	list, err := st.ListResults(ctx, "Friday late")
	if err != nil {
		t.Fatalf("ListResults: %v", err)
	}
	if len(list) != 2 || list[0].ID != "a2" || list[1].ID != "a1" {
		t.Errorf("ListResults = %v, want [a2 a1]", ids(list))
	}

	all, err := st.ListResults(ctx, "")
	if err != nil {
		t.Fatalf("ListResults(all): %v", err)
	}
	if len(all) != 3 {
		t.Errorf("ListResults(all) = %v, want 3 results", ids(all))
	}

	none, err := st.ListResults(ctx, "Nobody's set")
	if err != nil || none == nil || len(none) != 0 {
		t.Errorf("ListResults(unknown) = %v, %v; want empty slice", none, err)
	}

	newer.Completed = true
	if err := st.SaveResult(ctx, newer); err != nil {
		t.Fatalf("SaveResult(update): %v", err)
	}
	if got, _ := st.GetResult(ctx, "a2"); got == nil || !got.Completed {
		t.Errorf("updated result = %+v, want completed", got)
	}

	if err := st.SaveResult(ctx, &session.Result{}); err == nil {
		t.Error("SaveResult without ID succeeded")
	}
	if err := st.Ping(ctx); err != nil {
		t.Errorf("Ping: %v", err)
	}
}

func ids(rs []*session.Result) []string {
	out := make([]string, len(rs))
	for i, r := range rs {
		out[i] = r.ID
	}
	return out
}

// ── backends ─────────────────────────────────────────────────────────────────

func TestSQLite(t *testing.T) {
	t.Parallel()
	exerciseStore(t, newSQLite(t))
}

func TestSQLite_File(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "history.db")
	st, err := store.OpenSQLite(ctx, path)
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	if err := st.SaveResult(ctx, newResult("f1", "Friday late", time.Now())); err != nil {
		t.Fatalf("SaveResult: %v", err)
	}
	st.Close()

	reopened, err := store.OpenSQLite(ctx, path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()
	if _, err := reopened.GetResult(ctx, "f1"); err != nil {
		t.Errorf("result lost across reopen: %v", err)
	}
}

func TestPostgres(t *testing.T) {
	exerciseStore(t, newPostgres(t))
}

func TestOpen(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	tests := []struct {
		driver  string
		wantNil bool
		wantErr bool
	}{
		{driver: store.DriverSQLite},
		{driver: store.DriverNone, wantNil: true},
		{driver: "", wantNil: true},
		{driver: "mongodb", wantNil: true, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.driver, func(t *testing.T) {
			t.Parallel()
			st, err := store.Open(ctx, tt.driver, ":memory:")
			if (err != nil) != tt.wantErr {
				t.Fatalf("Open err = %v, wantErr %v", err, tt.wantErr)
			}
			if (st == nil) != tt.wantNil {
				t.Fatalf("Open store = %v, wantNil %v", st, tt.wantNil)
			}
			if st != nil {
				st.Close()
			}
		})
	}
}

// ── sidecar ──────────────────────────────────────────────────────────────────

func TestSidecar(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	dir := t.TempDir()
	res := newResult("s1", "Friday late", time.Date(2026, 10, 15, 21, 0, 0, 0, time.UTC))
	res.Path = filepath.Join(dir, "Friday-late_20261015-210000.wav")

	inner := newSQLite(t)
	sc := store.WithSidecar(inner)
	if err := sc.SaveResult(ctx, res); err != nil {
		t.Fatalf("SaveResult: %v", err)
	}

	path := filepath.Join(dir, "Friday-late_20261015-210000.json")
	if got := store.SidecarPath(res.Path); got != path {
		t.Errorf("SidecarPath = %q, want %q", got, path)
	}
	got, err := store.ReadSidecar(path)
	if err != nil {
		t.Fatalf("ReadSidecar: %v", err)
	}
	if !reflect.DeepEqual(got, res) {
		t.Errorf("sidecar = %+v\nwant %+v", got, res)
	}
	if _, err := inner.GetResult(ctx, "s1"); err != nil {
		t.Errorf("inner store missed the result: %v", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Errorf("directory has %d entries, want only the sidecar", len(entries))
	}
}

func TestSidecar_Standalone(t *testing.T) {
	t.Parallel()

	res := newResult("s2", "Open mic", time.Now())
	res.Path = filepath.Join(t.TempDir(), "nested", "take.wav")
	if err := store.WithSidecar(nil).SaveResult(context.Background(), res); err != nil {
		t.Fatalf("SaveResult: %v", err)
	}
	if _, err := os.Stat(store.SidecarPath(res.Path)); err != nil {
		t.Errorf("sidecar missing: %v", err)
	}

	res.Path = ""
	if _, err := store.WriteSidecar(res); err == nil {
		t.Error("WriteSidecar without a path succeeded")
	}
}
