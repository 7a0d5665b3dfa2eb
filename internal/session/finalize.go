package session

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"maps"
	"os"
	"time"

	"github.com/MrWong99/cuecard/internal/insight"
	"github.com/MrWong99/cuecard/internal/observe"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// StopInfo describes the recording of a stopped session.
type StopInfo struct {
	Path string

	// Duration is the session clock at stop, excluding pauses.
	Duration time.Duration

	// Recorded is the playing time of the audio written.
	Recorded time.Duration

	Bytes int64
}

// Result is the finalized outcome of a saved session. It is created only by
// [Session.StopAndFinalize] and must not be modified.
type Result struct {
	ID        string            `json:"id"`
	SessionID string            `json:"session_id"`
	Setlist   string            `json:"setlist"`
	Mode      string            `json:"mode"`
	StartedAt time.Time         `json:"started_at"`
	Path      string            `json:"path"`
	Duration  time.Duration     `json:"duration"`
	Bytes     int64             `json:"bytes"`
	Insights  []insight.Insight `json:"insights"`

	// UnitsReached is the furthest position reached and TotalUnits the
	// number of content units.
	UnitsReached int  `json:"units_reached"`
	TotalUnits   int  `json:"total_units"`
	Completed    bool `json:"completed"`

	// Advances counts forward moves by cause.
	Advances map[string]int `json:"advances"`

	// Degraded is true when recognition was lost during the session.
	Degraded bool `json:"degraded"`
}

// StopAndFinalize stops the session, measures the recording, derives
// insights and returns the result, persisting it when a store is
// configured. A session that never recorded (never started, failed to start
// or was discarded) yields no result and no error, as [Session.Stop] does.
// A capture or storage failure returns an error and no result; the session
// is stopped either way. Later calls return the first outcome.
func (s *Session) StopAndFinalize(ctx context.Context) (*Result, error) {
	s.finalizeOnce.Do(func() {
		s.result, s.finalizeErr = s.finalize(ctx)
	})
	return s.result, s.finalizeErr
}

func (s *Session) finalize(ctx context.Context) (*Result, error) {
	ctx, span := observe.StartSpan(ctx, "session.finalize", trace.WithAttributes(
		attribute.String("session_id", s.id),
		attribute.String("setlist", s.plan.Config.Script.Title),
	))
	defer span.End()

	res, err := s.assemble(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	if res == nil {
		observe.Logger(ctx).Info("session finalized without a recording", "setlist", s.plan.Config.Script.Title)
		return nil, nil
	}
	span.SetAttributes(
		attribute.Int64("bytes", res.Bytes),
		attribute.Int("insights", len(res.Insights)),
	)
	observe.Logger(ctx).Info("session finalized",
		"result_id", res.ID,
		"setlist", res.Setlist,
		"duration", res.Duration,
		"bytes", res.Bytes,
		"insights", len(res.Insights),
		"completed", res.Completed,
	)
	return res, nil
}

func (s *Session) assemble(ctx context.Context) (*Result, error) {
	info, err := s.Stop(ctx)
	if err != nil {
		return nil, err
	}
	if info == nil {
		return nil, nil
	}

	fi, err := os.Stat(info.Path)
	if err != nil {
		return nil, fmt.Errorf("session: stat recording: %w", err)
	}

	cfg := s.plan.Config
	total := s.plan.ContentUnits()
	tl := insight.Timeline{
		Duration:  info.Duration,
		Activity:  s.tl.activity,
		Words:     s.tl.words,
		Visits:    s.tl.visits,
		Advances:  s.tl.advances,
		Reached:   s.tl.reached,
		Total:     total,
		Completed: s.tl.done,
		Positions: s.plan.Positions(),
	}

	res := &Result{
		ID:           uuid.NewString(),
		SessionID:    s.id,
		Setlist:      cfg.Script.Title,
		Mode:         string(cfg.Mode),
		StartedAt:    s.clock.StartedAt(),
		Path:         info.Path,
		Duration:     info.Duration,
		Bytes:        fi.Size(),
		Insights:     insight.Derive(tl, cfg.Insights),
		UnitsReached: s.tl.reached,
		TotalUnits:   total,
		Completed:    s.tl.done,
		Advances:     maps.Clone(s.tl.advances),
		Degraded:     s.degraded,
	}

	if s.store != nil {
		if err := s.store.SaveResult(ctx, res); err != nil {
			return nil, fmt.Errorf("session: save result: %w", err)
		}
	}
	return res, nil
}

// Discard stops the session and removes the partial recording. It never
// produces a result. Discarding a session that was already finalized
// leaves its recording in place.
func (s *Session) Discard(ctx context.Context) error {
	_, stopErr := s.Stop(ctx)

	// A discarded session never finalizes.
	s.finalizeOnce.Do(func() {})
	if s.result != nil {
		return stopErr
	}

	path := s.Path()
	if path == "" {
		return stopErr
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return errors.Join(stopErr, fmt.Errorf("session: remove recording: %w", err))
	}
	slog.Info("session discarded", "setlist", s.plan.Config.Script.Title, "path", path)
	return stopErr
}

// removeArtifact deletes a recording left behind by a failed start.
func removeArtifact(path string) {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		slog.Warn("session: remove partial recording", "path", path, "err", err)
	}
}
