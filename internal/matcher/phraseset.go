package matcher

import (
	"github.com/MrWong99/cuecard/pkg/script"
)

// Kind is what a firing candidate asks the navigator to do.
type Kind int

const (
	// KindConfirm is the current unit's anchor: confirm position, no movement.
	KindConfirm Kind = iota

	// KindExit is one of the current unit's exit phrases: advance by one.
	KindExit

	// KindLookahead is the next unit's anchor: the performer moved on without
	// saying the exit phrase, so advance by one.
	KindLookahead

	// KindJump is the anchor of another block's first unit: jump to that block.
	KindJump
)

// String returns a short label for logs and metrics.
func (k Kind) String() string {
	switch k {
	case KindConfirm:
		return "confirm"
	case KindExit:
		return "exit"
	case KindLookahead:
		return "lookahead"
	case KindJump:
		return "jump"
	default:
		return "unknown"
	}
}

// priority breaks ties between equally confident candidates.
func (k Kind) priority() int {
	switch k {
	case KindExit:
		return 3
	case KindLookahead:
		return 2
	case KindJump:
		return 1
	default:
		return 0
	}
}

// Candidate is a phrase the matcher listens for while a given unit is shown.
type Candidate struct {
	Phrase script.TriggerPhrase
	Kind   Kind
}

// Scope controls which phrases beyond the current unit are considered.
type Scope struct {
	// Lookahead adds the anchor of the next unit.
	Lookahead bool

	// JumpForward adds the anchors of later blocks.
	JumpForward bool

	// JumpBackward adds the anchors of earlier blocks.
	JumpBackward bool
}

// SelectCandidates returns the phrases relevant while units[current] is shown:
// its anchor and exit phrases, optionally the next unit's anchor and the
// first-unit anchors of other blocks. Phrases that are disabled or invalid are
// never returned.
func SelectCandidates(phrases []script.TriggerPhrase, units []script.Unit, current int, scope Scope) []Candidate {
	if current < 0 || current >= len(units) {
		return nil
	}
	next := nextContentUnit(units, current)
	currentBlock := units[current].BlockIndex

	var out []Candidate
	for _, p := range phrases {
		if !p.Matchable() {
			continue
		}
		switch {
		case p.UnitIndex == current && p.Role == script.RoleAnchor:
			out = append(out, Candidate{Phrase: p, Kind: KindConfirm})
		case p.UnitIndex == current && p.Role == script.RoleExit:
			out = append(out, Candidate{Phrase: p, Kind: KindExit})
		case scope.Lookahead && next >= 0 && p.UnitIndex == next && p.Role == script.RoleAnchor:
			out = append(out, Candidate{Phrase: p, Kind: KindLookahead})
		case p.Role == script.RoleAnchor && p.BlockIndex != currentBlock &&
			p.UnitIndex == script.FirstUnitOfBlock(units, p.BlockIndex):
			if (p.BlockIndex > currentBlock && scope.JumpForward) ||
				(p.BlockIndex < currentBlock && scope.JumpBackward) {
				out = append(out, Candidate{Phrase: p, Kind: KindJump})
			}
		}
	}
	return out
}

// nextContentUnit returns the index of the first non-separator unit after
// current, or -1.
func nextContentUnit(units []script.Unit, current int) int {
	for i := current + 1; i < len(units); i++ {
		if !units[i].Separator {
			return i
		}
	}
	return -1
}
