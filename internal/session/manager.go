package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

// Builder creates the recorder and transcript source for a prepared plan.
// It is called once per session; the returned values are single use.
type Builder func(ctx context.Context, plan *Plan) (AudioRecorder, TranscriptSource, error)

// ManagerConfig holds the dependencies of a [Manager].
type ManagerConfig struct {
	// Build wires capture and recognition for each new session. Required.
	Build Builder

	// Options are applied to every session the manager creates.
	Options []Option
}

// Manager runs at most one session at a time. Starting a new session stops
// and discards any prior one that was not finalized.
// All exported methods are safe for concurrent use.
type Manager struct {
	mu     sync.Mutex
	build  Builder
	opts   []Option
	active *Session
}

// NewManager creates a Manager with the given dependencies.
func NewManager(cfg ManagerConfig) *Manager {
	return &Manager{build: cfg.Build, opts: cfg.Options}
}

// Start prepares cfg, discards the current session if there is one, and
// starts a new session. Like [Session.Start] it returns before capture is
// up; watch the session's events for the outcome.
func (m *Manager) Start(ctx context.Context, cfg Config) (*Session, error) {
	plan, err := Prepare(cfg)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.build == nil {
		return nil, fmt.Errorf("session: manager has no builder")
	}

	if prev := m.active; prev != nil {
		m.active = nil
		if err := prev.Discard(ctx); err != nil {
			slog.Warn("session: discard previous session", "session_id", prev.ID(), "err", err)
		}
	}

	rec, src, err := m.build(ctx, plan)
	if err != nil {
		return nil, fmt.Errorf("session: build: %w", err)
	}
	s, err := New(plan, rec, src, m.opts...)
	if err != nil {
		return nil, err
	}
	if err := s.Start(ctx); err != nil {
		return nil, err
	}
	m.active = s

	slog.Info("session: manager started session",
		"session_id", s.ID(),
		"setlist", plan.Config.Script.Title,
		"mode", plan.Config.Mode,
	)
	return s, nil
}

// Active returns the current session, or nil.
func (m *Manager) Active() *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active
}

// IsActive reports whether a session is current.
func (m *Manager) IsActive() bool {
	return m.Active() != nil
}

// Save finalizes the current session and clears it.
func (m *Manager) Save(ctx context.Context) (*Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active == nil {
		return nil, fmt.Errorf("session: no active session to save")
	}
	s := m.active
	m.active = nil
	return s.StopAndFinalize(ctx)
}

// Discard stops the current session, removes its recording and clears it.
func (m *Manager) Discard(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active == nil {
		return nil
	}
	s := m.active
	m.active = nil
	return s.Discard(ctx)
}
