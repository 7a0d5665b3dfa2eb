package session_test

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"

	"github.com/MrWong99/cuecard/internal/session"
	"github.com/MrWong99/cuecard/internal/session/mock"
)

type builds struct {
	mu   sync.Mutex
	recs []*mock.Recorder
	err  error
}

func (b *builds) build(context.Context, *session.Plan) (session.AudioRecorder, session.TranscriptSource, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.err != nil {
		return nil, nil, b.err
	}
	rec := &mock.Recorder{Data: recording}
	b.recs = append(b.recs, rec)
	return rec, mock.NewSource(), nil
}

func newTestManager(t *testing.T, b *builds, store session.ResultStore) *session.Manager {
	t.Helper()
	m := session.NewManager(session.ManagerConfig{
		Build: b.build,
		Options: []session.Option{
			session.WithMetrics(testMetrics(t)),
			session.WithStore(store),
		},
	})
	t.Cleanup(func() { _ = m.Discard(context.Background()) })
	return m
}

func TestManager_StartReplacesSession(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	b := &builds{}
	store := &memStore{}
	m := newTestManager(t, b, store)

	first, err := m.Start(ctx, testConfig(t))
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitFor(t, first, session.EventStarted)
	firstPath := first.Path()

	cfg := testConfig(t)
	cfg.Script.Title = "Saturday early"
	second, err := m.Start(ctx, cfg)
	if err != nil {
		t.Fatalf("second Start: %v", err)
	}
	if m.Active() != second || !m.IsActive() {
		t.Fatal("Active is not the second session")
	}
	if got := first.Snapshot().Phase; got != session.PhaseStopped {
		t.Errorf("first session phase = %s, want stopped", got)
	}
	if _, err := os.Stat(firstPath); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("replaced session's recording still exists: %v", err)
	}

	waitFor(t, second, session.EventStarted)
	res, err := m.Save(ctx)
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if res.Setlist != "Saturday early" {
		t.Errorf("saved setlist = %q, want the second session", res.Setlist)
	}
	if m.IsActive() {
		t.Error("manager still has an active session after Save")
	}
	if store.count() != 1 {
		t.Errorf("stored results = %d, want 1", store.count())
	}
	if _, err := m.Save(ctx); err == nil {
		t.Error("Save without a session succeeded")
	}
}

func TestManager_Errors(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	t.Run("invalid config", func(t *testing.T) {
		t.Parallel()
		b := &builds{}
		m := newTestManager(t, b, &memStore{})
		cfg := testConfig(t)
		cfg.Mode = "karaoke"
		if _, err := m.Start(ctx, cfg); err == nil {
			t.Fatal("Start with unknown mode succeeded")
		}
		if len(b.recs) != 0 {
			t.Error("builder called for an invalid config")
		}
	})

	t.Run("build failure", func(t *testing.T) {
		t.Parallel()
		buildErr := errors.New("no microphone configured")
		m := newTestManager(t, &builds{err: buildErr}, &memStore{})
		if _, err := m.Start(ctx, testConfig(t)); !errors.Is(err, buildErr) {
			t.Fatalf("Start = %v, want %v", err, buildErr)
		}
		if m.IsActive() {
			t.Error("failed build left an active session")
		}
	})

	t.Run("discard without session", func(t *testing.T) {
		t.Parallel()
		m := newTestManager(t, &builds{}, &memStore{})
		if err := m.Discard(ctx); err != nil {
			t.Errorf("Discard = %v, want nil", err)
		}
	})
}
