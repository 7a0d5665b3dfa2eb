// Package store persists finalized session results so performers can look
// back over past runs of a setlist.
//
// Two backends share the same [Store] interface: [SQLite] for a local history
// file and [Postgres] for a shared database. Both run their migrations on
// open. [Sidecar] writes each result as JSON next to its recording and can
// wrap either backend or stand alone.
//
// Usage:
//
//	st, err := store.Open(ctx, "sqlite", "cuecard.db")
//	if err != nil { … }
//	defer st.Close()
//
//	mgr := session.NewManager(session.ManagerConfig{
//		Build:   build,
//		Options: []session.Option{session.WithStore(store.WithSidecar(st))},
//	})
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/MrWong99/cuecard/internal/insight"
	"github.com/MrWong99/cuecard/internal/session"
)

// ErrNotFound is returned by [Store.GetResult] for an unknown ID.
var ErrNotFound = errors.New("store: result not found")

// Store is a queryable result history.
type Store interface {
	session.ResultStore

	// ListResults returns the results of setlist, newest first. An empty
	// setlist lists every result.
	ListResults(ctx context.Context, setlist string) ([]*session.Result, error)

	// GetResult returns the result with id or [ErrNotFound].
	GetResult(ctx context.Context, id string) (*session.Result, error)

	// Ping checks that the backend is reachable.
	Ping(ctx context.Context) error

	Close() error
}

// Drivers accepted by [Open].
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverNone     = "none"
)

// Open connects to the backend named by driver and migrates it. The
// [DriverNone] driver returns a nil Store and no error.
func Open(ctx context.Context, driver, dsn string) (Store, error) {
	switch driver {
	case DriverSQLite:
		s, err := OpenSQLite(ctx, dsn)
		if err != nil {
			return nil, err
		}
		return s, nil
	case DriverPostgres:
		p, err := NewPostgres(ctx, dsn)
		if err != nil {
			return nil, err
		}
		return p, nil
	case DriverNone, "":
		return nil, nil
	}
	return nil, fmt.Errorf("store: unknown driver %q", driver)
}

// record is the column form of a result shared by both SQL backends.
type record struct {
	ID           string
	SessionID    string
	Setlist      string
	Mode         string
	StartedAt    time.Time
	Path         string
	DurationNS   int64
	Bytes        int64
	UnitsReached int
	TotalUnits   int
	Completed    bool
	Degraded     bool
	Advances     []byte
	Insights     []byte
}

func toRecord(r *session.Result) (record, error) {
	if r == nil || r.ID == "" {
		return record{}, errors.New("store: result without ID")
	}
	advances, err := json.Marshal(r.Advances)
	if err != nil {
		return record{}, fmt.Errorf("store: encode advances: %w", err)
	}
	insights := r.Insights
	if insights == nil {
		insights = []insight.Insight{}
	}
	ins, err := json.Marshal(insights)
	if err != nil {
		return record{}, fmt.Errorf("store: encode insights: %w", err)
	}
	return record{
		ID:           r.ID,
		SessionID:    r.SessionID,
		Setlist:      r.Setlist,
		Mode:         r.Mode,
		StartedAt:    r.StartedAt.UTC(),
		Path:         r.Path,
		DurationNS:   r.Duration.Nanoseconds(),
		Bytes:        r.Bytes,
		UnitsReached: r.UnitsReached,
		TotalUnits:   r.TotalUnits,
		Completed:    r.Completed,
		Degraded:     r.Degraded,
		Advances:     advances,
		Insights:     ins,
	}, nil
}

func (rec record) result() (*session.Result, error) {
	r := &session.Result{
		ID:           rec.ID,
		SessionID:    rec.SessionID,
		Setlist:      rec.Setlist,
		Mode:         rec.Mode,
		StartedAt:    rec.StartedAt,
		Path:         rec.Path,
		Duration:     time.Duration(rec.DurationNS),
		Bytes:        rec.Bytes,
		UnitsReached: rec.UnitsReached,
		TotalUnits:   rec.TotalUnits,
		Completed:    rec.Completed,
		Degraded:     rec.Degraded,
	}
	if len(rec.Advances) > 0 {
		if err := json.Unmarshal(rec.Advances, &r.Advances); err != nil {
			return nil, fmt.Errorf("store: decode advances of %s: %w", rec.ID, err)
		}
	}
	if len(rec.Insights) > 0 {
		if err := json.Unmarshal(rec.Insights, &r.Insights); err != nil {
			return nil, fmt.Errorf("store: decode insights of %s: %w", rec.ID, err)
		}
	}
	return r, nil
}
