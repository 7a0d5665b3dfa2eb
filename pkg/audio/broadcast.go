package audio

import (
	"log/slog"
	"sync"
	"sync/atomic"
)

// Broadcaster fans one frame channel out to several subscribers. A slow
// subscriber drops frames instead of stalling the others; the recorder and the
// recognizer therefore never block capture.
//
// Subscribe before calling Run. All subscriber channels are closed when the
// input channel closes.
type Broadcaster struct {
	mu      sync.Mutex
	subs    []subscriber
	running bool
	dropped atomic.Int64
}

type subscriber struct {
	name string
	ch   chan Frame
}

// Subscribe returns a channel receiving every frame, buffered to buffer
// frames.
func (b *Broadcaster) Subscribe(name string, buffer int) <-chan Frame {
	b.mu.Lock()
	defer b.mu.Unlock()
	ch := make(chan Frame, buffer)
	if b.running {
		close(ch)
		slog.Warn("audio broadcaster: subscribe after start", "subscriber", name)
		return ch
	}
	b.subs = append(b.subs, subscriber{name: name, ch: ch})
	return ch
}

// Dropped returns the number of frames dropped across all subscribers.
func (b *Broadcaster) Dropped() int64 { return b.dropped.Load() }

// Run forwards frames from in until it closes. It blocks and is usually run
// in its own goroutine.
func (b *Broadcaster) Run(in <-chan Frame) {
	b.mu.Lock()
	b.running = true
	subs := append([]subscriber(nil), b.subs...)
	b.mu.Unlock()

	defer func() {
		for _, s := range subs {
			close(s.ch)
		}
	}()

	for frame := range in {
		for _, s := range subs {
			select {
			case s.ch <- frame:
			default:
				if b.dropped.Add(1) == 1 {
					slog.Warn("audio broadcaster: subscriber too slow, dropping frames", "subscriber", s.name)
				}
			}
		}
	}
}
