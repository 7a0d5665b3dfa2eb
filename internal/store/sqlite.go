package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/MrWong99/cuecard/internal/session"
	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS results (
    id            TEXT    PRIMARY KEY,
    session_id    TEXT    NOT NULL,
    setlist       TEXT    NOT NULL,
    mode          TEXT    NOT NULL,
    started_at    INTEGER NOT NULL,
    path          TEXT    NOT NULL,
    duration_ns   INTEGER NOT NULL DEFAULT 0,
    bytes         INTEGER NOT NULL DEFAULT 0,
    units_reached INTEGER NOT NULL DEFAULT 0,
    total_units   INTEGER NOT NULL DEFAULT 0,
    completed     INTEGER NOT NULL DEFAULT 0,
    degraded      INTEGER NOT NULL DEFAULT 0,
    advances      TEXT    NOT NULL DEFAULT '{}',
    insights      TEXT    NOT NULL DEFAULT '[]'
);

CREATE INDEX IF NOT EXISTS idx_results_setlist_started
    ON results (setlist, started_at);
`

// SQLite is a [Store] backed by a local SQLite file.
type SQLite struct {
	db *sql.DB
}

var _ Store = (*SQLite)(nil)

// OpenSQLite opens (creating if needed) the database at path and migrates
// it. Use ":memory:" for a throwaway database.
func OpenSQLite(ctx context.Context, path string) (*SQLite, error) {
	dsn := path
	if path != ":memory:" {
		dsn = fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path)
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open sqlite: %w", err)
	}
	// Each connection to ":memory:" is its own database.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: ping sqlite: %w", err)
	}
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: migrate sqlite: %w", err)
	}
	return &SQLite{db: db}, nil
}

// SaveResult implements [session.ResultStore]. Saving an existing ID
// replaces the stored row.
func (s *SQLite) SaveResult(ctx context.Context, r *session.Result) error {
	rec, err := toRecord(r)
	if err != nil {
		return err
	}
	const q = `
		INSERT OR REPLACE INTO results
		    (id, session_id, setlist, mode, started_at, path, duration_ns, bytes,
		     units_reached, total_units, completed, degraded, advances, insights)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err = s.db.ExecContext(ctx, q,
		rec.ID, rec.SessionID, rec.Setlist, rec.Mode, rec.StartedAt.UnixNano(), rec.Path,
		rec.DurationNS, rec.Bytes, rec.UnitsReached, rec.TotalUnits,
		rec.Completed, rec.Degraded, string(rec.Advances), string(rec.Insights),
	)
	if err != nil {
		return fmt.Errorf("store: save result: %w", err)
	}
	return nil
}

const sqliteColumns = `id, session_id, setlist, mode, started_at, path, duration_ns, bytes,
       units_reached, total_units, completed, degraded, advances, insights`

// ListResults implements [Store].
func (s *SQLite) ListResults(ctx context.Context, setlist string) ([]*session.Result, error) {
	q := "SELECT " + sqliteColumns + " FROM results"
	var args []any
	if setlist != "" {
		q += " WHERE setlist = ?"
		args = append(args, setlist)
	}
	q += " ORDER BY started_at DESC, id"

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("store: list results: %w", err)
	}
	defer rows.Close()

	out := []*session.Result{}
	for rows.Next() {
		r, err := scanSQLite(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// GetResult implements [Store].
func (s *SQLite) GetResult(ctx context.Context, id string) (*session.Result, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+sqliteColumns+" FROM results WHERE id = ?", id)
	r, err := scanSQLite(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return r, err
}

// Ping implements [Store].
func (s *SQLite) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database.
func (s *SQLite) Close() error {
	return s.db.Close()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSQLite(sc scanner) (*session.Result, error) {
	var (
		rec                record
		startedAt          int64
		advances, insights string
	)
	err := sc.Scan(&rec.ID, &rec.SessionID, &rec.Setlist, &rec.Mode, &startedAt, &rec.Path,
		&rec.DurationNS, &rec.Bytes, &rec.UnitsReached, &rec.TotalUnits,
		&rec.Completed, &rec.Degraded, &advances, &insights)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("store: scan result: %w", err)
	}
	rec.StartedAt = time.Unix(0, startedAt).UTC()
	rec.Advances = []byte(advances)
	rec.Insights = []byte(insights)
	return rec.result()
}
