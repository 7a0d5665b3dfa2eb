package transcript

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"
)

// Cue is one timed delivery of a [ScriptedSource].
type Cue struct {
	// After is the delay since the previous cue.
	After time.Duration
	Text  string
	Final bool
}

// ScriptedSource replays cues with their delays. It drives rehearsals and
// tests where no microphone is involved.
type ScriptedSource struct {
	cues  []Cue
	now   func() time.Time
	after func(time.Duration) <-chan time.Time

	mu      sync.Mutex
	started bool
	cancel  context.CancelFunc
	done    chan struct{}
	stop    sync.Once
}

var _ Source = (*ScriptedSource)(nil)

// NewScriptedSource returns a source replaying cues in order.
func NewScriptedSource(cues []Cue) *ScriptedSource {
	return &ScriptedSource{
		cues:  append([]Cue(nil), cues...),
		now:   time.Now,
		after: time.After,
		done:  make(chan struct{}),
	}
}

// Start begins the replay. The channel closes after the last cue.
func (s *ScriptedSource) Start(ctx context.Context) (<-chan Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return nil, ErrAlreadyStarted
	}
	s.started = true

	ctx, s.cancel = context.WithCancel(ctx)
	out := make(chan Event)
	go func() {
		defer close(s.done)
		defer close(out)
		for _, c := range s.cues {
			if c.After > 0 {
				select {
				case <-s.after(c.After):
				case <-ctx.Done():
					return
				}
			}
			select {
			case out <- Event{Text: c.Text, Final: c.Final, At: s.now()}:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// Stop ends the replay and waits for it to finish.
func (s *ScriptedSource) Stop() error {
	s.stop.Do(func() {
		s.mu.Lock()
		cancel := s.cancel
		s.mu.Unlock()
		if cancel == nil {
			return
		}
		cancel()
		<-s.done
	})
	return nil
}

// ParseCues reads a cue file. Each non-blank line holds an optional delay
// followed by text; a leading "~" on the text marks a partial hypothesis.
// Lines starting with "#" are comments.
//
//	# warm-up
//	1.5s ~so any
//	200ms so anyway
//	moving on
func ParseCues(r io.Reader) ([]Cue, error) {
	var cues []Cue
	sc := bufio.NewScanner(r)
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		var c Cue
		if first, rest, ok := strings.Cut(text, " "); ok {
			if d, err := time.ParseDuration(first); err == nil {
				if d < 0 {
					return nil, fmt.Errorf("transcript: cue line %d: negative delay %s", line, first)
				}
				c.After = d
				text = strings.TrimSpace(rest)
			}
		}
		c.Final = true
		if partial, ok := strings.CutPrefix(text, "~"); ok {
			c.Final = false
			text = strings.TrimSpace(partial)
		}
		c.Text = text
		cues = append(cues, c)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("transcript: read cues: %w", err)
	}
	return cues, nil
}
