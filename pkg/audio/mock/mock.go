// Package mock provides an in-memory implementation of [audio.Source] for
// unit tests.
//
// The mock is safe for concurrent use. It records every method call so tests
// can assert on call counts, and exposes fields that control return values.
//
// Typical usage:
//
//	src := &mock.Source{
//	    SourceFormat: audio.Format{SampleRate: 16000, Channels: 1},
//	    Frames:       []audio.Frame{{Data: pcm}},
//	    HoldOpen:     true,
//	}
//	frames, err := src.Open(ctx)
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/cuecard/pkg/audio"
)

// Source is a mock implementation of [audio.Source].
type Source struct {
	mu sync.Mutex

	// SourceFormat is returned by Format and stamped on frames without one.
	SourceFormat audio.Format

	// Frames are delivered in order after Open.
	Frames []audio.Frame

	// HoldOpen keeps the channel open after Frames are delivered until Close
	// or context cancellation.
	HoldOpen bool

	// OpenErr, if non-nil, is returned by Open.
	OpenErr error

	// CloseErr, if non-nil, is returned by Close.
	CloseErr error

	// OpenCallCount and CloseCallCount record calls.
	OpenCallCount  int
	CloseCallCount int

	stop chan struct{}
}

// Compile-time interface assertion.
var _ audio.Source = (*Source)(nil)

// Open records the call and starts delivering Frames.
func (s *Source) Open(ctx context.Context) (<-chan audio.Frame, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.OpenCallCount++
	if s.OpenErr != nil {
		return nil, s.OpenErr
	}
	s.stop = make(chan struct{})
	frames := append([]audio.Frame(nil), s.Frames...)
	format, hold, stop := s.SourceFormat, s.HoldOpen, s.stop

	out := make(chan audio.Frame, len(frames)+1)
	go func() {
		defer close(out)
		for _, f := range frames {
			if !f.Format.Valid() {
				f.Format = format
			}
			select {
			case out <- f:
			case <-stop:
				return
			case <-ctx.Done():
				return
			}
		}
		if hold {
			select {
			case <-stop:
			case <-ctx.Done():
			}
		}
	}()
	return out, nil
}

// Format returns SourceFormat.
func (s *Source) Format() audio.Format {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.SourceFormat
}

// Close records the call, ends delivery and returns CloseErr.
func (s *Source) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CloseCallCount++
	if s.stop != nil {
		close(s.stop)
		s.stop = nil
	}
	return s.CloseErr
}

// Calls returns the Open and Close call counts. Thread-safe.
func (s *Source) Calls() (open, close int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.OpenCallCount, s.CloseCallCount
}
