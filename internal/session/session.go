// Package session runs one live performance: it captures audio, feeds the
// transcript into the phrase matcher, drives the navigator, and turns the
// outcome into a finalized result.
//
// A [Session] owns a single loop goroutine that serializes transcript events,
// level samples, manual navigation commands and clock ticks. Callers observe
// it in two ways: [Session.Snapshot] returns the latest immutable [Snapshot],
// and [Session.Events] delivers discrete transitions. Recording and
// recognition sit behind the [AudioRecorder] and [TranscriptSource]
// interfaces; their platform errors are converted to [ErrPermissionDenied]
// and [ErrUnavailable] here and never reach the navigation core.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MrWong99/cuecard/internal/matcher"
	"github.com/MrWong99/cuecard/internal/navigator"
	"github.com/MrWong99/cuecard/internal/observe"
	"github.com/MrWong99/cuecard/internal/recorder"
	"github.com/MrWong99/cuecard/internal/transcript"
	"github.com/MrWong99/cuecard/pkg/audio"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

var (
	// ErrPermissionDenied is reported when microphone, file or recognition
	// access is refused. The session does not start and is not retried.
	ErrPermissionDenied = errors.New("session: permission denied")

	// ErrUnavailable is reported when no capture input or recognition
	// service exists. The session does not start.
	ErrUnavailable = errors.New("session: unavailable")

	// ErrAlreadyStarted is returned by Start on a session that was started
	// before.
	ErrAlreadyStarted = errors.New("session: already started")

	// ErrNotRunning is returned by navigation commands before capture is up.
	ErrNotRunning = errors.New("session: not running")

	// ErrStopped is returned by navigation commands after Stop or a failed
	// start.
	ErrStopped = errors.New("session: stopped")
)

const (
	defaultEventBuffer  = 64
	defaultTickInterval = 250 * time.Millisecond
)

// TranscriptSource produces the transcript of one session. See
// [transcript.Source] for the channel contract.
type TranscriptSource interface {
	Start(ctx context.Context) (<-chan transcript.Event, error)
	Stop() error
}

// AudioRecorder records one session to path and reports input levels.
type AudioRecorder interface {
	Start(ctx context.Context, path string) (<-chan recorder.LevelSample, error)
	Stop() (recorder.Info, error)
}

// Pauser is implemented by recorders that can drop audio while the session
// is paused.
type Pauser interface {
	Pause()
	Resume()
}

// ResultStore persists finalized results.
type ResultStore interface {
	SaveResult(ctx context.Context, r *Result) error
}

// Compile-time interface assertions.
var (
	_ TranscriptSource = (transcript.Source)(nil)
	_ AudioRecorder    = (*recorder.WAVRecorder)(nil)
	_ Pauser           = (*recorder.WAVRecorder)(nil)
)

// Option is a functional option for configuring a [Session].
type Option func(*Session)

// WithStore persists results produced by [Session.StopAndFinalize].
func WithStore(st ResultStore) Option {
	return func(s *Session) { s.store = st }
}

// WithMetrics sets the metric instruments. Default: [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Session) { s.metrics = m }
}

// WithClock replaces time.Now for the session clock and phrase cooldowns.
func WithClock(now func() time.Time) Option {
	return func(s *Session) { s.now = now }
}

// WithEventBuffer sets the capacity of the events channel. Default: 64.
func WithEventBuffer(n int) Option {
	return func(s *Session) {
		if n > 0 {
			s.eventBuffer = n
		}
	}
}

// WithTickInterval sets how often the snapshot is refreshed while nothing
// else happens. Default: 250ms.
func WithTickInterval(d time.Duration) Option {
	return func(s *Session) {
		if d > 0 {
			s.tick = d
		}
	}
}

type opKind int

const (
	opNext opKind = iota
	opPrevious
	opJump
	opPause
	opResume
)

type command struct {
	op    opKind
	block int
	reply chan error
}

// Session is one performance of a setlist. It is single use.
type Session struct {
	id          string
	plan        *Plan
	rec         AudioRecorder
	src         TranscriptSource
	store       ResultStore
	metrics     *observe.Metrics
	now         func() time.Time
	tick        time.Duration
	eventBuffer int
	clock       *Clock

	// Owned by the loop goroutine while it runs.
	nav       *navigator.Navigator
	match     *matcher.Matcher
	tl        timeline
	lastEval  matcher.Evaluation
	listening bool
	recording bool
	degraded  bool
	paused    bool
	level     float64
	speaking  bool

	snap atomic.Pointer[Snapshot]

	events       chan Event
	eventsMu     sync.Mutex
	eventsClosed bool

	cmds      chan command
	quit      chan struct{}
	loopDone  chan struct{}
	startDone chan struct{}

	mu     sync.Mutex
	phase  Phase
	path   string
	cancel context.CancelFunc

	stopOnce sync.Once
	stopInfo *StopInfo
	stopErr  error

	finalizeOnce sync.Once
	result       *Result
	finalizeErr  error
}

// New returns an idle session for plan recording through rec and listening
// through src.
func New(plan *Plan, rec AudioRecorder, src TranscriptSource, opts ...Option) (*Session, error) {
	switch {
	case plan == nil:
		return nil, errors.New("session: plan must not be nil")
	case rec == nil:
		return nil, errors.New("session: recorder must not be nil")
	case src == nil:
		return nil, errors.New("session: transcript source must not be nil")
	}

	s := &Session{
		id:          uuid.NewString(),
		plan:        plan,
		rec:         rec,
		src:         src,
		now:         time.Now,
		tick:        defaultTickInterval,
		eventBuffer: defaultEventBuffer,
		cmds:        make(chan command),
		quit:        make(chan struct{}),
		loopDone:    make(chan struct{}),
		startDone:   make(chan struct{}),
		tl:          newTimeline(),
	}
	for _, o := range opts {
		o(s)
	}
	if s.metrics == nil {
		s.metrics = observe.DefaultMetrics()
	}
	s.events = make(chan Event, s.eventBuffer)
	s.clock = NewClock(s.now)

	cfg := plan.Config
	s.nav = navigator.New(plan.Units, navigator.WithPolicy(plan.Policy))
	s.match = matcher.New(cfg.Sensitivity,
		matcher.WithCooldown(cfg.Cooldown),
		matcher.WithWindowSize(cfg.WindowSize),
		matcher.WithClock(s.now),
	)
	s.publish()
	return s, nil
}

// ID returns the unique identifier of the session.
func (s *Session) ID() string { return s.id }

// Plan returns the prepared plan the session runs.
func (s *Session) Plan() *Plan { return s.plan }

// Snapshot returns the latest published state.
func (s *Session) Snapshot() Snapshot { return *s.snap.Load() }

// Events returns the channel of discrete transitions. It is closed after
// [EventStopped] or [EventStartFailed]. Events are dropped when the consumer
// falls behind and the buffer is full.
func (s *Session) Events() <-chan Event { return s.events }

// Path returns the recording path, or "" before Start.
func (s *Session) Path() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.path
}

// Start records the start instant, derives the recording path and launches
// capture and recognition in the background. It returns immediately;
// completion is reported as [EventStarted] or [EventStartFailed].
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.phase != PhaseIdle {
		s.mu.Unlock()
		return ErrAlreadyStarted
	}
	s.phase = PhaseStarting
	started := s.clock.Start()
	cfg := s.plan.Config
	s.path = filepath.Join(cfg.RecordingDir, recorder.FileName(cfg.Script.Title, started))
	path := s.path
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.cancel = cancel
	s.mu.Unlock()

	s.publish()
	go s.start(runCtx, path)
	return nil
}

// start brings up the recorder and the transcript source concurrently.
func (s *Session) start(ctx context.Context, path string) {
	defer close(s.startDone)

	cfg := s.plan.Config
	spanCtx, span := observe.StartSpan(ctx, "session.start", trace.WithAttributes(
		attribute.String("setlist", cfg.Script.Title),
		attribute.String("mode", string(cfg.Mode)),
		attribute.Int("units", s.plan.ContentUnits()),
	))
	defer span.End()
	log := observe.Logger(spanCtx)

	var (
		levels   <-chan recorder.LevelSample
		events   <-chan transcript.Event
		recogErr error
		g        errgroup.Group
	)
	g.Go(func() error {
		l, err := s.rec.Start(ctx, path)
		if err != nil {
			return convertStartErr("start recording", err)
		}
		levels = l
		return nil
	})
	g.Go(func() error {
		ev, err := s.src.Start(ctx)
		if err != nil {
			if fatalRecognitionErr(err) {
				return convertStartErr("start recognition", err)
			}
			recogErr = err
			return nil
		}
		events = ev
		return nil
	})
	err := g.Wait()

	if err != nil {
		if levels != nil {
			if _, serr := s.rec.Stop(); serr != nil {
				log.Warn("session: stop recorder after failed start", "err", serr)
			}
			removeArtifact(path)
		}
		if events != nil {
			if serr := s.src.Stop(); serr != nil {
				log.Warn("session: stop transcript after failed start", "err", serr)
			}
		}
		s.cancel()
		s.clock.Stop()

		s.mu.Lock()
		s.phase = PhaseFailed
		s.mu.Unlock()
		s.publish()

		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.metrics.RecordSessionFailed(ctx, failureReason(err))
		log.Error("session: start failed", "setlist", cfg.Script.Title, "err", err)

		s.emit(Event{Kind: EventStartFailed, Err: err})
		s.closeEvents()
		return
	}

	s.recording = true
	s.listening = events != nil
	s.mu.Lock()
	s.phase = PhaseRunning
	s.mu.Unlock()

	s.metrics.SessionsStarted.Add(ctx, 1, metric.WithAttributes(attribute.String("mode", string(cfg.Mode))))
	s.metrics.ActiveSessions.Add(ctx, 1)
	log.Info("session started",
		"setlist", cfg.Script.Title,
		"mode", cfg.Mode,
		"units", s.plan.ContentUnits(),
		"phrases", len(s.plan.Phrases),
		"path", path,
		"recognition", recogErr == nil,
	)

	go s.loop(ctx, levels, events, recogErr)
}

// Stop ends capture and recognition and returns the duration and size of
// the recording. It returns nil, nil when capture never started. Stop is
// idempotent: later calls return the first call's outcome.
func (s *Session) Stop(ctx context.Context) (*StopInfo, error) {
	s.stopOnce.Do(func() {
		s.stopInfo, s.stopErr = s.stop(ctx)
	})
	return s.stopInfo, s.stopErr
}

func (s *Session) stop(ctx context.Context) (*StopInfo, error) {
	s.mu.Lock()
	phase := s.phase
	if phase == PhaseIdle {
		s.phase = PhaseStopped
		s.mu.Unlock()
		s.publish()
		s.closeEvents()
		return nil, nil
	}
	s.mu.Unlock()

	select {
	case <-s.startDone:
	case <-ctx.Done():
		s.cancel()
		<-s.startDone
	}

	s.mu.Lock()
	phase = s.phase
	s.mu.Unlock()
	if phase != PhaseRunning {
		return nil, nil
	}

	close(s.quit)
	<-s.loopDone

	log := observe.Logger(ctx)
	if err := s.src.Stop(); err != nil {
		log.Warn("session: stop transcript", "err", err)
	}
	info, recErr := s.rec.Stop()
	s.cancel()
	elapsed := s.clock.Stop()

	s.recording = false
	s.listening = false
	s.mu.Lock()
	s.phase = PhaseStopped
	s.mu.Unlock()
	s.publish()

	s.metrics.ActiveSessions.Add(ctx, -1)
	s.metrics.SessionDuration.Record(ctx, elapsed.Seconds())

	if recErr != nil {
		err := fmt.Errorf("session: stop recording: %w", recErr)
		log.Error("session stopped with error", "elapsed", elapsed, "err", err)
		s.emit(Event{Kind: EventStopped, Elapsed: elapsed, Err: err})
		s.closeEvents()
		return nil, err
	}

	si := &StopInfo{
		Path:     info.Path,
		Duration: elapsed,
		Recorded: info.Duration,
		Bytes:    info.Bytes,
	}
	log.Info("session stopped",
		"setlist", s.plan.Config.Script.Title,
		"elapsed", elapsed,
		"bytes", si.Bytes,
		"path", si.Path,
	)
	s.emit(Event{Kind: EventStopped, Elapsed: elapsed, To: s.nav.Cursor()})
	s.closeEvents()
	return si, nil
}

// Next advances to the next unit.
func (s *Session) Next() error { return s.do(command{op: opNext}) }

// Previous steps back one unit.
func (s *Session) Previous() error { return s.do(command{op: opPrevious}) }

// JumpToBlock moves to the first unit of the block at blockIndex.
func (s *Session) JumpToBlock(blockIndex int) error {
	return s.do(command{op: opJump, block: blockIndex})
}

// Pause stops the clock, the recording and matching until Resume.
func (s *Session) Pause() error { return s.do(command{op: opPause}) }

// Resume continues a paused session.
func (s *Session) Resume() error { return s.do(command{op: opResume}) }

func (s *Session) do(c command) error {
	s.mu.Lock()
	phase := s.phase
	s.mu.Unlock()
	switch phase {
	case PhaseIdle, PhaseStarting:
		return ErrNotRunning
	case PhaseFailed, PhaseStopped:
		return ErrStopped
	}

	c.reply = make(chan error, 1)
	select {
	case s.cmds <- c:
	case <-s.loopDone:
		return ErrStopped
	}
	return <-c.reply
}

// emit delivers ev without blocking. A full buffer drops the event.
func (s *Session) emit(ev Event) {
	s.eventsMu.Lock()
	defer s.eventsMu.Unlock()
	if s.eventsClosed {
		return
	}
	select {
	case s.events <- ev:
	default:
		slog.Warn("session: event dropped, consumer too slow", "kind", ev.Kind)
	}
}

func (s *Session) closeEvents() {
	s.eventsMu.Lock()
	defer s.eventsMu.Unlock()
	if !s.eventsClosed {
		s.eventsClosed = true
		close(s.events)
	}
}

// publish swaps in a fresh snapshot. It must only be called by the goroutine
// that currently owns the navigator.
func (s *Session) publish() {
	s.mu.Lock()
	phase := s.phase
	s.mu.Unlock()

	pos, total := s.nav.Position()
	snap := &Snapshot{
		Phase:            phase,
		State:            s.nav.State(),
		Cursor:           s.nav.Cursor(),
		UnitCount:        len(s.plan.Units),
		Position:         pos,
		Total:            total,
		HasPrevious:      s.nav.HasPrevious(),
		HasNext:          s.nav.HasNext(),
		Progress:         s.nav.Progress(),
		AnchorConfidence: s.lastEval.AnchorConfidence,
		ExitConfidence:   s.lastEval.ExitConfidence,
		Confirmed:        s.nav.Confirmed(),
		Listening:        s.listening && !s.paused && phase == PhaseRunning,
		Recording:        s.recording && phase == PhaseRunning,
		Paused:           s.paused,
		Degraded:         s.degraded,
		Level:            s.level,
		Speaking:         s.speaking,
		Words:            s.match.Words(),
		Elapsed:          s.clock.Elapsed(),
	}
	if u, ok := s.nav.Unit(); ok {
		snap.Text = u.Text
	}
	s.snap.Store(snap)
}

// convertStartErr maps platform start errors onto the session sentinels.
func convertStartErr(op string, err error) error {
	switch {
	case errors.Is(err, audio.ErrPermissionDenied), errors.Is(err, transcript.ErrPermissionDenied):
		return fmt.Errorf("%w: %s: %v", ErrPermissionDenied, op, err)
	case errors.Is(err, audio.ErrNoInput), errors.Is(err, transcript.ErrUnavailable):
		return fmt.Errorf("%w: %s: %v", ErrUnavailable, op, err)
	}
	return fmt.Errorf("session: %s: %v", op, err)
}

// fatalRecognitionErr reports whether a recognition start error prevents the
// session from starting. Other failures leave it running manual-only.
func fatalRecognitionErr(err error) bool {
	return errors.Is(err, transcript.ErrPermissionDenied) || errors.Is(err, transcript.ErrUnavailable)
}

func failureReason(err error) string {
	switch {
	case errors.Is(err, ErrPermissionDenied):
		return "permission_denied"
	case errors.Is(err, ErrUnavailable):
		return "unavailable"
	}
	return "error"
}
