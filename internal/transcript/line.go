package transcript

import (
	"bufio"
	"context"
	"io"
	"sync"
	"time"
)

// LineSource turns each line read from r into a final event. It lets a
// performer type trigger phrases during a rehearsal, and lets tools pipe the
// output of an external recognizer into a session.
type LineSource struct {
	r   io.Reader
	now func() time.Time

	mu      sync.Mutex
	started bool
	cancel  context.CancelFunc
	done    chan struct{}
	stop    sync.Once
}

var _ Source = (*LineSource)(nil)

// NewLineSource returns a source reading lines from r. When r implements
// [io.Closer] it is closed by Stop.
func NewLineSource(r io.Reader) *LineSource {
	return &LineSource{r: r, now: time.Now, done: make(chan struct{})}
}

// Start begins reading. The channel closes at end of input or on Stop.
func (s *LineSource) Start(ctx context.Context) (<-chan Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return nil, ErrAlreadyStarted
	}
	s.started = true
	ctx, s.cancel = context.WithCancel(ctx)

	// The scanner may block in Read indefinitely, so it feeds an internal
	// channel and only the forwarding goroutine owns out.
	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(s.r)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	out := make(chan Event)
	go func() {
		defer close(s.done)
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case line, ok := <-lines:
				if !ok {
					return
				}
				ev := Event{Text: line, Final: true, At: s.now()}
				if ev.Empty() {
					continue
				}
				select {
				case out <- ev:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

// Stop ends reading.
func (s *LineSource) Stop() error {
	var err error
	s.stop.Do(func() {
		s.mu.Lock()
		cancel := s.cancel
		s.mu.Unlock()
		if c, ok := s.r.(io.Closer); ok {
			err = c.Close()
		}
		if cancel == nil {
			return
		}
		cancel()
		<-s.done
	})
	return err
}
