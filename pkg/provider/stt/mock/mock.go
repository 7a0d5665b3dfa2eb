// Package mock provides test doubles for the stt package interfaces.
//
// Provider records the StreamConfig of every StartStream call. Session lets a
// test push Transcript values with Emit, end the stream with Fail or Close,
// and inspect the audio that was sent.
//
// Example:
//
//	sess := mock.NewSession()
//	p := &mock.Provider{Session: sess}
//	handle, _ := p.StartStream(ctx, cfg)
//	sess.Emit(stt.Transcript{Text: "so anyway", IsFinal: true})
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/cuecard/pkg/provider/stt"
)

// Provider is a mock implementation of stt.Provider.
type Provider struct {
	mu sync.Mutex

	// Session is returned by StartStream. If nil, a new Session is created.
	Session *Session

	// StartStreamErr, if non-nil, is returned as the error from StartStream.
	StartStreamErr error

	// Configs records the StreamConfig of every StartStream call in order.
	Configs []stt.StreamConfig
}

var _ stt.Provider = (*Provider)(nil)

// StartStream records the call and returns Session, StartStreamErr.
func (p *Provider) StartStream(_ context.Context, cfg stt.StreamConfig) (stt.SessionHandle, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Configs = append(p.Configs, cfg)
	if p.StartStreamErr != nil {
		return nil, p.StartStreamErr
	}
	if p.Session == nil {
		p.Session = NewSession()
	}
	return p.Session, nil
}

// Calls returns the number of StartStream calls. Thread-safe.
func (p *Provider) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.Configs)
}

// Session is a mock implementation of stt.SessionHandle.
type Session struct {
	mu      sync.Mutex
	results chan stt.Transcript
	closed  bool
	err     error
	audio   int

	// SendAudioErr, if non-nil, is returned by every SendAudio call.
	SendAudioErr error
}

var _ stt.SessionHandle = (*Session)(nil)

// NewSession returns an open session with a buffered result channel.
func NewSession() *Session {
	return &Session{results: make(chan stt.Transcript, 64)}
}

// Emit delivers t on the result channel. It is a no-op after Close or Fail.
func (s *Session) Emit(t stt.Transcript) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.results <- t
}

// Fail ends the stream with err, as a dropped connection would.
func (s *Session) Fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.err = err
	s.closed = true
	close(s.results)
}

// SendAudio counts the bytes received.
func (s *Session) SendAudio(chunk []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return stt.ErrClosed
	}
	if s.SendAudioErr != nil {
		return s.SendAudioErr
	}
	s.audio += len(chunk)
	return nil
}

// Results returns the result channel.
func (s *Session) Results() <-chan stt.Transcript { return s.results }

// Err returns the error passed to Fail.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Close closes the result channel. Calling Close more than once is safe.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.results)
	}
	return nil
}

// AudioBytes returns the number of PCM bytes sent. Thread-safe.
func (s *Session) AudioBytes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.audio
}

// Closed reports whether the session has ended. Thread-safe.
func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
