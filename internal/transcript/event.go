// Package transcript defines the continuous transcript stream consumed by the
// performance engine and the sources that produce it.
//
// A [Source] delivers [Event] values on a channel: partial hypotheses that may
// be revised, and final text the recognizer has committed to. Sources adapt
// a streaming STT provider ([STTSource]), a timed script for rehearsals
// ([ScriptedSource]) or typed lines ([LineSource]). The engine never sees
// provider errors directly; sources report failures through the errors below.
package transcript

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrPermissionDenied is returned when microphone or recognition access is
	// refused. Sessions treat it as unrecoverable.
	ErrPermissionDenied = errors.New("transcript: permission denied")

	// ErrUnavailable is returned when the recognition service cannot be
	// reached or is not configured.
	ErrUnavailable = errors.New("transcript: recognition unavailable")
)

// Event is one delivery from a transcript source.
type Event struct {
	// Text is the recognized text. It may be empty.
	Text string

	// Final reports whether the recognizer committed to Text. A partial event
	// replaces the previous partial; a final event is appended to the history.
	Final bool

	// At is when the source received the result.
	At time.Time

	// Err, when set, reports why recognition stopped unexpectedly. It is
	// always the last event before the channel closes and carries no text.
	Err error
}

// Empty reports whether the event carries no text.
func (e Event) Empty() bool {
	for _, r := range e.Text {
		switch r {
		case ' ', '\t', '\n', '\r':
			continue
		}
		return false
	}
	return true
}

// ErrAlreadyStarted is returned by Start on a source that was started before.
var ErrAlreadyStarted = errors.New("transcript: source already started")

// Source produces transcript events for one session.
//
// Start begins recognition and returns the event channel. The channel is
// closed when the source stops, either because Stop was called, ctx was
// cancelled, or the underlying stream ended. A stream that ends because of a
// failure delivers a final event with Err set first. Stop is idempotent and
// a source can be started only once.
type Source interface {
	Start(ctx context.Context) (<-chan Event, error)
	Stop() error
}
