package session

import (
	"context"
	"errors"
	"testing"

	"github.com/MrWong99/cuecard/internal/observe"
	"github.com/MrWong99/cuecard/internal/recorder"
	"github.com/MrWong99/cuecard/internal/transcript"
	"github.com/MrWong99/cuecard/pkg/script"
	"go.opentelemetry.io/otel/metric/noop"
)

type idleRecorder struct{}

func (idleRecorder) Start(context.Context, string) (<-chan recorder.LevelSample, error) {
	return nil, nil
}
func (idleRecorder) Stop() (recorder.Info, error) { return recorder.Info{}, nil }

type idleSource struct{}

func (idleSource) Start(context.Context) (<-chan transcript.Event, error) { return nil, nil }
func (idleSource) Stop() error                                            { return nil }

// listeningSession returns a session whose navigator shows the first unit,
// as the loop leaves it after start-up, with the start-up events drained.
func listeningSession(t *testing.T) *Session {
	t.Helper()
	plan, err := Prepare(Config{
		Script: script.Script{
			Title: "Stop race",
			Blocks: []script.Block{
				{ID: "opener", Text: "Good evening everybody thanks for coming out so anyway here we are"},
				{ID: "closer", Text: "That is my time you have been wonderful good night"},
			},
		},
		RecordingDir: t.TempDir(),
	})
	if err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	m, err := observe.NewMetrics(noop.NewMeterProvider())
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	s, err := New(plan, idleRecorder{}, idleSource{}, WithMetrics(m))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	tr, _ := s.nav.Start()
	s.moved(context.Background(), tr, nil, false)
	for len(s.events) > 0 {
		<-s.events
	}
	return s
}

func exitOf(t *testing.T, p *Plan, unit int) string {
	t.Helper()
	for _, ph := range p.Phrases {
		if ph.UnitIndex == unit && ph.Role == script.RoleExit && ph.Matchable() {
			return ph.Text
		}
	}
	t.Fatalf("unit %d has no exit phrase", unit)
	return ""
}

func TestLoop_BufferedInputAfterStopIsIgnored(t *testing.T) {
	ctx := context.Background()

	t.Run("transcript", func(t *testing.T) {
		s := listeningSession(t)
		exit := exitOf(t, s.plan, s.nav.Cursor())

		// The exit matches while the session is live.
		live := listeningSession(t)
		live.handleTranscript(ctx, transcript.Event{Text: exit, Final: true})
		if live.nav.Cursor() == 0 {
			t.Fatalf("exit %q did not advance a live session", exit)
		}

		close(s.quit)
		s.handleTranscript(ctx, transcript.Event{Text: exit, Final: true})
		if got := s.nav.Cursor(); got != 0 {
			t.Errorf("cursor = %d after stop, want 0", got)
		}
		if n := len(s.events); n != 0 {
			t.Errorf("%d events emitted after stop, want none", n)
		}
	})

	t.Run("command", func(t *testing.T) {
		s := listeningSession(t)
		close(s.quit)
		if err := s.handleCommand(ctx, command{op: opNext}); !errors.Is(err, ErrStopped) {
			t.Errorf("handleCommand after stop = %v, want ErrStopped", err)
		}
		if got := s.nav.Cursor(); got != 0 {
			t.Errorf("cursor = %d after stop, want 0", got)
		}
	})
}
