package navigator

import (
	"fmt"

	"github.com/MrWong99/cuecard/internal/matcher"
	"github.com/MrWong99/cuecard/pkg/script"
)

// Mode is the navigation style of a session.
type Mode string

const (
	// ModeCueCard shows one whole block at a time and only moves sequentially
	// on speech.
	ModeCueCard Mode = "cue-card"

	// ModeTeleprompter tracks sentence-sized chunks and lets a recognized
	// anchor jump to any block.
	ModeTeleprompter Mode = "teleprompter"
)

// IsValid reports whether m is a recognised mode.
func (m Mode) IsValid() bool {
	return m == ModeCueCard || m == ModeTeleprompter
}

// Segmentation returns the segmentation policy that goes with the mode.
func (m Mode) Segmentation() script.Mode {
	if m == ModeTeleprompter {
		return script.ModeChunked
	}
	return script.ModeWholeBlock
}

// Policy controls which spoken transitions are permitted.
type Policy struct {
	Mode Mode

	// Lookahead lets the next unit's anchor advance the cursor.
	Lookahead bool

	// JumpForward lets an anchor of a later block jump ahead.
	JumpForward bool

	// JumpBackward lets an anchor of an earlier block jump back, for example
	// when the performer repeats a callback.
	JumpBackward bool
}

// CueCardPolicy is sequential navigation with lookahead.
func CueCardPolicy() Policy {
	return Policy{Mode: ModeCueCard, Lookahead: true}
}

// TeleprompterPolicy allows forward jumps, and backward jumps when backward
// is true.
func TeleprompterPolicy(backward bool) Policy {
	return Policy{Mode: ModeTeleprompter, Lookahead: true, JumpForward: true, JumpBackward: backward}
}

// PolicyFor returns the default policy for mode with the given backward jump
// setting. Cue-card mode ignores backward.
func PolicyFor(mode Mode, backward bool) (Policy, error) {
	switch mode {
	case ModeCueCard, "":
		return CueCardPolicy(), nil
	case ModeTeleprompter:
		return TeleprompterPolicy(backward), nil
	}
	return Policy{}, fmt.Errorf("navigator: unknown mode %q", mode)
}

// Scope converts the policy into the matcher's candidate scope.
func (p Policy) Scope() matcher.Scope {
	return matcher.Scope{
		Lookahead:    p.Lookahead,
		JumpForward:  p.JumpForward,
		JumpBackward: p.JumpBackward,
	}
}

func (p Policy) allowsJump(fromBlock, toBlock int) bool {
	switch {
	case toBlock > fromBlock:
		return p.JumpForward
	case toBlock < fromBlock:
		return p.JumpBackward
	}
	return true
}
