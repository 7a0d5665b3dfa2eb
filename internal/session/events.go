package session

import (
	"fmt"
	"time"

	"github.com/MrWong99/cuecard/internal/navigator"
)

// EventKind identifies a discrete session transition.
type EventKind int

const (
	// EventStarted is emitted once capture and recognition are up.
	EventStarted EventKind = iota

	// EventStartFailed is emitted when capture could not start. Err holds
	// the reason.
	EventStartFailed

	// EventUnitChanged is emitted whenever the cursor moves.
	EventUnitChanged

	// EventConfirmed is emitted when the current unit's anchor was heard.
	EventConfirmed

	// EventFinished is emitted when the cursor passes the last unit.
	EventFinished

	// EventDegraded is emitted when recognition is lost and navigation
	// continues manually. Err holds the reason.
	EventDegraded

	EventPaused
	EventResumed

	// EventStopped is the last event of a session.
	EventStopped
)

// String returns a short label for logs.
func (k EventKind) String() string {
	switch k {
	case EventStarted:
		return "started"
	case EventStartFailed:
		return "start_failed"
	case EventUnitChanged:
		return "unit_changed"
	case EventConfirmed:
		return "confirmed"
	case EventFinished:
		return "finished"
	case EventDegraded:
		return "degraded"
	case EventPaused:
		return "paused"
	case EventResumed:
		return "resumed"
	case EventStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Event is a discrete transition delivered on [Session.Events].
type Event struct {
	Kind EventKind

	// Elapsed is the session clock reading when the event happened.
	Elapsed time.Duration

	// From and To are the unit indices of a cursor move. To is
	// [navigator.Finished] past the last unit.
	From, To int

	Cause navigator.Cause

	// Jumped marks a jump to another block.
	Jumped bool

	// Confidence is the score of the phrase that caused the event, if any.
	Confidence float64

	// Phrase is the text of the phrase that caused the event, if any.
	Phrase string

	Err error
}

// Phase is the lifecycle phase of a session.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseStarting
	PhaseRunning
	PhaseFailed
	PhaseStopped
)

// String returns the lowercase name of the phase.
func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseStarting:
		return "starting"
	case PhaseRunning:
		return "running"
	case PhaseFailed:
		return "failed"
	case PhaseStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Snapshot is an immutable view of a session. A new snapshot is published
// after every change; readers never see a partially updated one.
type Snapshot struct {
	Phase Phase
	State navigator.State

	// Cursor is the current unit index or [navigator.Finished].
	Cursor    int
	UnitCount int

	// Text is the display text of the current unit.
	Text string

	// Position and Total are the 1-based position among content units.
	Position, Total int

	HasPrevious bool
	HasNext     bool
	Progress    float64

	AnchorConfidence float64
	ExitConfidence   float64
	Confirmed        bool

	// Listening is true while transcript events are being matched.
	Listening bool
	Recording bool
	Paused    bool

	// Degraded is true once recognition failed and only manual navigation
	// remains.
	Degraded bool

	// Level is the most recent input RMS and Speaking its speech flag.
	Level    float64
	Speaking bool

	// Words are the transcript words the matcher currently sees.
	Words []string

	Elapsed time.Duration
}

// ProgressLabel renders the position for display, e.g. "3 / 12".
func (s Snapshot) ProgressLabel() string {
	if s.Position > s.Total {
		return fmt.Sprintf("done / %d", s.Total)
	}
	return fmt.Sprintf("%d / %d", s.Position, s.Total)
}
