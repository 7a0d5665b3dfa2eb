// Package navigator owns the performance cursor: which unit of the script is
// on screen and how it moves in response to spoken cues and manual input.
//
// The [Navigator] is the only component that mutates the cursor. It runs the
// state machine
//
//	idle → listening → advancing → listening … → finished
//	any  → stopped (terminal)
//
// and enforces bounds: the cursor is always the index of a non-separator unit
// or the [Finished] sentinel. Navigator is not safe for concurrent use; the
// session loop serializes every call.
package navigator

import (
	"errors"
	"fmt"

	"github.com/MrWong99/cuecard/pkg/script"
)

var (
	// ErrStopped is returned by every mutator once [Navigator.Stop] was called.
	ErrStopped = errors.New("navigator: stopped")

	// ErrNotStarted is returned when navigating before [Navigator.Start].
	ErrNotStarted = errors.New("navigator: not started")

	// ErrNoSuchBlock is returned when jumping to a block without units.
	ErrNoSuchBlock = errors.New("navigator: block has no units")

	// ErrJumpNotAllowed is returned when the policy forbids a spoken jump.
	ErrJumpNotAllowed = errors.New("navigator: jump not allowed by policy")
)

// State is the navigation state.
type State int

const (
	StateIdle State = iota
	StateListening
	StateAdvancing
	StateFinished
	StateStopped
)

// String returns the lowercase name of the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateListening:
		return "listening"
	case StateAdvancing:
		return "advancing"
	case StateFinished:
		return "finished"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Finished is the cursor value past the last unit.
const Finished = -1

// Cause records what moved the cursor.
type Cause int

const (
	CauseManual Cause = iota
	CauseVoice
	CauseLookahead
)

// String returns a short label for logs and metrics.
func (c Cause) String() string {
	switch c {
	case CauseManual:
		return "manual"
	case CauseVoice:
		return "voice"
	case CauseLookahead:
		return "lookahead"
	default:
		return "unknown"
	}
}

// Transition describes the effect of one navigator call.
type Transition struct {
	From, To int
	State    State
	Cause    Cause

	// Moved is false when the call was bounded and left the cursor in place.
	Moved bool

	// Jumped is true for jump-to-block moves.
	Jumped bool

	// Confirmed is true for anchor confirmations.
	Confirmed bool
}

// Option is a functional option for configuring a [Navigator].
type Option func(*Navigator)

// WithPolicy sets the navigation policy. Default: [CueCardPolicy].
func WithPolicy(p Policy) Option {
	return func(n *Navigator) {
		n.policy = p
	}
}

// WithStateObserver registers fn to be called on every state change,
// including the transient advancing state.
func WithStateObserver(fn func(from, to State)) Option {
	return func(n *Navigator) {
		n.observer = fn
	}
}

// Navigator moves a cursor over an immutable unit sequence.
type Navigator struct {
	units    []script.Unit
	content  []int // indices of non-separator units
	ordinal  map[int]int
	policy   Policy
	observer func(from, to State)

	state     State
	cursor    int
	confirmed bool
}

// New returns an idle navigator over units. The slice is not copied and must
// not be modified afterwards.
func New(units []script.Unit, opts ...Option) *Navigator {
	n := &Navigator{
		units:   units,
		ordinal: make(map[int]int, len(units)),
		policy:  CueCardPolicy(),
		state:   StateIdle,
		cursor:  Finished,
	}
	for _, u := range units {
		if u.Separator {
			continue
		}
		n.ordinal[u.Index] = len(n.content)
		n.content = append(n.content, u.Index)
	}
	for _, o := range opts {
		o(n)
	}
	return n
}

// Start moves from idle to listening on the first unit. A script without
// units finishes immediately.
func (n *Navigator) Start() (Transition, error) {
	switch n.state {
	case StateStopped:
		return n.noop(CauseManual), ErrStopped
	case StateIdle:
	default:
		return n.noop(CauseManual), nil
	}
	if len(n.content) == 0 {
		n.setState(StateFinished)
		return Transition{From: Finished, To: Finished, State: n.state}, nil
	}
	n.cursor = n.content[0]
	n.setState(StateListening)
	return Transition{From: Finished, To: n.cursor, State: n.state, Moved: true}, nil
}

// Next advances by one unit. From the last unit the cursor becomes
// [Finished] and the state finished. From finished it is a no-op.
func (n *Navigator) Next(cause Cause) (Transition, error) {
	if err := n.ready(); err != nil {
		return n.noop(cause), err
	}
	if n.state == StateFinished {
		return n.noop(cause), nil
	}

	from := n.cursor
	n.setState(StateAdvancing)
	ord := n.ordinal[n.cursor]
	if ord+1 < len(n.content) {
		n.cursor = n.content[ord+1]
		n.setState(StateListening)
	} else {
		n.cursor = Finished
		n.setState(StateFinished)
	}
	n.confirmed = false
	return Transition{From: from, To: n.cursor, State: n.state, Cause: cause, Moved: true}, nil
}

// Previous steps back by one unit, bounded at the first unit. From finished
// it returns to the last unit. It never finishes the session.
func (n *Navigator) Previous() (Transition, error) {
	if err := n.ready(); err != nil {
		return n.noop(CauseManual), err
	}

	from := n.cursor
	switch {
	case n.state == StateFinished:
		if len(n.content) == 0 {
			return n.noop(CauseManual), nil
		}
		n.cursor = n.content[len(n.content)-1]
	case n.ordinal[n.cursor] == 0:
		return n.noop(CauseManual), nil
	default:
		n.cursor = n.content[n.ordinal[n.cursor]-1]
	}
	n.setState(StateListening)
	n.confirmed = false
	return Transition{From: from, To: n.cursor, State: n.state, Cause: CauseManual, Moved: true}, nil
}

// Confirm records an anchor match for unit. It never moves the cursor and is
// ignored when unit is not the current one.
func (n *Navigator) Confirm(unit int) (Transition, error) {
	if err := n.ready(); err != nil {
		return n.noop(CauseVoice), err
	}
	if n.state != StateListening || unit != n.cursor {
		return n.noop(CauseVoice), nil
	}
	n.confirmed = true
	t := n.noop(CauseVoice)
	t.Confirmed = true
	return t, nil
}

// JumpToBlock moves the cursor to the first unit of blockIndex. Manual jumps
// are always allowed; spoken jumps must be permitted by the policy in the
// direction of travel.
func (n *Navigator) JumpToBlock(blockIndex int, cause Cause) (Transition, error) {
	if err := n.ready(); err != nil {
		return n.noop(cause), err
	}
	target := script.FirstUnitOfBlock(n.units, blockIndex)
	if target < 0 {
		return n.noop(cause), fmt.Errorf("%w: block %d", ErrNoSuchBlock, blockIndex)
	}
	if cause != CauseManual && !n.policy.allowsJump(n.currentBlock(), blockIndex) {
		return n.noop(cause), ErrJumpNotAllowed
	}
	if target == n.cursor {
		return n.noop(cause), nil
	}

	from := n.cursor
	n.setState(StateAdvancing)
	n.cursor = target
	n.setState(StateListening)
	n.confirmed = false
	return Transition{From: from, To: n.cursor, State: n.state, Cause: cause, Moved: true, Jumped: true}, nil
}

// Stop ends navigation from any state and reports whether this call changed
// anything. The cursor keeps its last value for reporting.
func (n *Navigator) Stop() bool {
	if n.state == StateStopped {
		return false
	}
	n.setState(StateStopped)
	return true
}

// State returns the current state.
func (n *Navigator) State() State { return n.state }

// Cursor returns the current unit index or [Finished].
func (n *Navigator) Cursor() int { return n.cursor }

// Unit returns the current unit, if any.
func (n *Navigator) Unit() (script.Unit, bool) {
	if n.cursor < 0 || n.cursor >= len(n.units) {
		return script.Unit{}, false
	}
	return n.units[n.cursor], true
}

// Units returns the unit sequence.
func (n *Navigator) Units() []script.Unit { return n.units }

// Policy returns the navigation policy.
func (n *Navigator) Policy() Policy { return n.policy }

// Confirmed reports whether the current unit's anchor was heard.
func (n *Navigator) Confirmed() bool { return n.confirmed }

// HasPrevious reports whether [Navigator.Previous] would move the cursor.
func (n *Navigator) HasPrevious() bool {
	switch n.state {
	case StateFinished:
		return len(n.content) > 0
	case StateListening, StateAdvancing:
		return n.ordinal[n.cursor] > 0
	}
	return false
}

// HasNext reports whether a further unit exists after the cursor.
func (n *Navigator) HasNext() bool {
	switch n.state {
	case StateListening, StateAdvancing:
		return n.ordinal[n.cursor]+1 < len(n.content)
	}
	return false
}

// Position returns the 1-based position of the cursor among content units
// and the number of content units. Finished reports total+1.
func (n *Navigator) Position() (pos, total int) {
	total = len(n.content)
	if n.cursor == Finished {
		if n.state == StateIdle {
			return 0, total
		}
		return total + 1, total
	}
	return n.ordinal[n.cursor] + 1, total
}

// Progress returns the fraction of content units already passed, in [0,1].
func (n *Navigator) Progress() float64 {
	pos, total := n.Position()
	if total == 0 {
		if n.state == StateFinished {
			return 1
		}
		return 0
	}
	return min(float64(max(pos-1, 0))/float64(total), 1)
}

// ProgressLabel renders the position for display, e.g. "3 / 12".
func (n *Navigator) ProgressLabel() string {
	pos, total := n.Position()
	if pos > total {
		return fmt.Sprintf("done / %d", total)
	}
	return fmt.Sprintf("%d / %d", pos, total)
}

func (n *Navigator) ready() error {
	switch n.state {
	case StateStopped:
		return ErrStopped
	case StateIdle:
		return ErrNotStarted
	}
	return nil
}

func (n *Navigator) currentBlock() int {
	if u, ok := n.Unit(); ok {
		return u.BlockIndex
	}
	if len(n.content) > 0 {
		return n.units[n.content[len(n.content)-1]].BlockIndex
	}
	return 0
}

func (n *Navigator) noop(cause Cause) Transition {
	return Transition{From: n.cursor, To: n.cursor, State: n.state, Cause: cause}
}

func (n *Navigator) setState(s State) {
	if s == n.state {
		return
	}
	from := n.state
	n.state = s
	if n.observer != nil {
		n.observer(from, s)
	}
}
