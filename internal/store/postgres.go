package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/MrWong99/cuecard/internal/session"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS results (
    id            TEXT         PRIMARY KEY,
    session_id    TEXT         NOT NULL,
    setlist       TEXT         NOT NULL,
    mode          TEXT         NOT NULL,
    started_at    TIMESTAMPTZ  NOT NULL,
    path          TEXT         NOT NULL,
    duration_ns   BIGINT       NOT NULL DEFAULT 0,
    bytes         BIGINT       NOT NULL DEFAULT 0,
    units_reached INTEGER      NOT NULL DEFAULT 0,
    total_units   INTEGER      NOT NULL DEFAULT 0,
    completed     BOOLEAN      NOT NULL DEFAULT false,
    degraded      BOOLEAN      NOT NULL DEFAULT false,
    advances      JSONB        NOT NULL DEFAULT '{}',
    insights      JSONB        NOT NULL DEFAULT '[]'
);

CREATE INDEX IF NOT EXISTS idx_results_setlist_started
    ON results (setlist, started_at DESC);
`

// Postgres is a [Store] backed by a PostgreSQL connection pool. All methods
// are safe for concurrent use.
type Postgres struct {
	pool *pgxpool.Pool
}

var _ Store = (*Postgres)(nil)

// NewPostgres creates a connection pool for dsn, verifies it and runs
// [MigratePostgres].
func NewPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("store: parse dsn: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("store: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("store: ping: %w", err)
	}
	if err := MigratePostgres(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}
	return &Postgres{pool: pool}, nil
}

// MigratePostgres creates the results table and its index. It is idempotent
// and safe to call on every start.
func MigratePostgres(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		return fmt.Errorf("store: migrate postgres: %w", err)
	}
	return nil
}

// SaveResult implements [session.ResultStore]. Saving an existing ID
// replaces the stored row.
func (p *Postgres) SaveResult(ctx context.Context, r *session.Result) error {
	rec, err := toRecord(r)
	if err != nil {
		return err
	}
	const q = `
		INSERT INTO results
		    (id, session_id, setlist, mode, started_at, path, duration_ns, bytes,
		     units_reached, total_units, completed, degraded, advances, insights)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13::jsonb, $14::jsonb)
		ON CONFLICT (id) DO UPDATE SET
		    session_id = EXCLUDED.session_id,
		    setlist = EXCLUDED.setlist,
		    mode = EXCLUDED.mode,
		    started_at = EXCLUDED.started_at,
		    path = EXCLUDED.path,
		    duration_ns = EXCLUDED.duration_ns,
		    bytes = EXCLUDED.bytes,
		    units_reached = EXCLUDED.units_reached,
		    total_units = EXCLUDED.total_units,
		    completed = EXCLUDED.completed,
		    degraded = EXCLUDED.degraded,
		    advances = EXCLUDED.advances,
		    insights = EXCLUDED.insights`

	_, err = p.pool.Exec(ctx, q,
		rec.ID, rec.SessionID, rec.Setlist, rec.Mode, rec.StartedAt, rec.Path,
		rec.DurationNS, rec.Bytes, rec.UnitsReached, rec.TotalUnits,
		rec.Completed, rec.Degraded, string(rec.Advances), string(rec.Insights),
	)
	if err != nil {
		return fmt.Errorf("store: save result: %w", err)
	}
	return nil
}

const postgresColumns = `id, session_id, setlist, mode, started_at, path, duration_ns, bytes,
       units_reached, total_units, completed, degraded, advances::text, insights::text`

// ListResults implements [Store].
func (p *Postgres) ListResults(ctx context.Context, setlist string) ([]*session.Result, error) {
	q := "SELECT " + postgresColumns + "\nFROM results"
	var args []any
	if setlist != "" {
		q += "\nWHERE setlist = $1"
		args = append(args, setlist)
	}
	q += "\nORDER BY started_at DESC, id"

	rows, err := p.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("store: list results: %w", err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*session.Result, error) {
		return scanPostgres(row)
	})
	if err != nil {
		return nil, fmt.Errorf("store: list results: %w", err)
	}
	if out == nil {
		out = []*session.Result{}
	}
	return out, nil
}

// GetResult implements [Store].
func (p *Postgres) GetResult(ctx context.Context, id string) (*session.Result, error) {
	row := p.pool.QueryRow(ctx, "SELECT "+postgresColumns+"\nFROM results\nWHERE id = $1", id)
	r, err := scanPostgres(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("store: get result: %w", err)
	}
	return r, nil
}

// Ping implements [Store].
func (p *Postgres) Ping(ctx context.Context) error {
	return p.pool.Ping(ctx)
}

// Close releases the pool's connections.
func (p *Postgres) Close() error {
	p.pool.Close()
	return nil
}

func scanPostgres(row pgx.Row) (*session.Result, error) {
	var (
		rec                record
		advances, insights string
	)
	if err := row.Scan(&rec.ID, &rec.SessionID, &rec.Setlist, &rec.Mode, &rec.StartedAt, &rec.Path,
		&rec.DurationNS, &rec.Bytes, &rec.UnitsReached, &rec.TotalUnits,
		&rec.Completed, &rec.Degraded, &advances, &insights); err != nil {
		return nil, err
	}
	rec.StartedAt = rec.StartedAt.UTC()
	rec.Advances = []byte(advances)
	rec.Insights = []byte(insights)
	return rec.result()
}
