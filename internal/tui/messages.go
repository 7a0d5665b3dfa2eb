package tui

import "github.com/MrWong99/cuecard/internal/session"

// EventMsg wraps a session event.
type EventMsg struct {
	Event session.Event
}

// EventsClosedMsg is sent once the session's event channel is closed.
type EventsClosedMsg struct{}

// TickMsg triggers a snapshot refresh.
type TickMsg struct{}

// ActionErrMsg carries the error of a navigation or pause command.
type ActionErrMsg struct {
	Err error
}

// ClearErrorMsg clears a transient error after a timeout.
type ClearErrorMsg struct{}
