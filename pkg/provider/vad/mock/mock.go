// Package mock provides test doubles for the vad package interfaces.
//
// Engine records the Config of every session it creates. Session replays a
// scripted sequence of events, one per frame, then repeats the last one.
//
// Example:
//
//	sess := &mock.Session{Events: []vad.VADEvent{
//	    {Type: vad.VADSpeechStart, Probability: 0.9},
//	    {Type: vad.VADSpeechContinue, Probability: 0.8},
//	}}
//	eng := &mock.Engine{Session: sess}
package mock

import (
	"errors"
	"sync"

	"github.com/MrWong99/cuecard/pkg/provider/vad"
)

// Engine is a mock implementation of vad.Engine.
type Engine struct {
	mu sync.Mutex

	// Session is returned by NewSession. If nil, a fresh silent Session is
	// returned.
	Session vad.SessionHandle

	// NewSessionErr, if non-nil, is returned as the error from NewSession.
	NewSessionErr error

	// Configs records the Config of every NewSession call in order.
	Configs []vad.Config
}

// Ensure Engine implements vad.Engine at compile time.
var _ vad.Engine = (*Engine)(nil)

// NewSession records the call and returns Session, NewSessionErr.
func (e *Engine) NewSession(cfg vad.Config) (vad.SessionHandle, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.Configs = append(e.Configs, cfg)
	if e.NewSessionErr != nil {
		return nil, e.NewSessionErr
	}
	if e.Session != nil {
		return e.Session, nil
	}
	return &Session{}, nil
}

// Session is a mock implementation of vad.SessionHandle.
type Session struct {
	mu sync.Mutex

	// Events are returned by successive ProcessFrame calls. Once exhausted the
	// last event repeats. An empty script yields VADSilence.
	Events []vad.VADEvent

	// ProcessFrameErr, if non-nil, is returned by every ProcessFrame call.
	ProcessFrameErr error

	// Frames counts ProcessFrame calls; ResetCount and CloseCount count the
	// other methods.
	Frames     int
	ResetCount int
	CloseCount int

	closed bool
}

// Ensure Session implements vad.SessionHandle at compile time.
var _ vad.SessionHandle = (*Session)(nil)

// ProcessFrame returns the next scripted event.
func (s *Session) ProcessFrame(frame []byte) (vad.VADEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return vad.VADEvent{}, errors.New("mock vad: session closed")
	}
	idx := s.Frames
	s.Frames++
	if s.ProcessFrameErr != nil {
		return vad.VADEvent{}, s.ProcessFrameErr
	}
	switch {
	case len(s.Events) == 0:
		return vad.VADEvent{Type: vad.VADSilence}, nil
	case idx >= len(s.Events):
		return s.Events[len(s.Events)-1], nil
	default:
		return s.Events[idx], nil
	}
}

// Reset increments ResetCount.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ResetCount++
}

// Close increments CloseCount.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CloseCount++
	s.closed = true
	return nil
}

// Counts returns the call counters. Thread-safe.
func (s *Session) Counts() (frames, resets, closes int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Frames, s.ResetCount, s.CloseCount
}
