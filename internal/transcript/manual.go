package transcript

import (
	"context"
	"sync"
)

// ManualSource produces no transcript at all. Sessions built on it navigate
// by key presses only and report that they are not listening.
type ManualSource struct {
	mu      sync.Mutex
	started bool
}

var _ Source = (*ManualSource)(nil)

// Start returns an already closed channel.
func (s *ManualSource) Start(context.Context) (<-chan Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return nil, ErrAlreadyStarted
	}
	s.started = true
	ch := make(chan Event)
	close(ch)
	return ch, nil
}

// Stop is a no-op.
func (s *ManualSource) Stop() error { return nil }
