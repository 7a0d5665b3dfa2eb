// Package script models a setlist script and turns it into the navigable units
// and trigger phrases used during a live performance.
//
// A [Script] is an ordered list of [Block] values. Each block is either inline
// text or a reference to reusable material (a "bit") that is resolved to plain
// text through a [MaterialResolver] before segmentation. The [Segmenter] then
// produces an immutable []Unit for the session, either one unit per block
// (cue-card navigation) or sentence-bounded chunks (teleprompter tracking).
package script

import (
	"errors"
	"fmt"
)

// ErrUnresolvedMaterial is returned when a material block references a bit the
// resolver does not know.
var ErrUnresolvedMaterial = errors.New("script: unresolved material")

// BlockKind distinguishes inline text from material references.
type BlockKind int

const (
	// KindText is a block carrying its own text.
	KindText BlockKind = iota

	// KindMaterial is a block that points at reusable material by reference.
	KindMaterial
)

// String returns the human-readable name of the kind.
func (k BlockKind) String() string {
	switch k {
	case KindText:
		return "text"
	case KindMaterial:
		return "material"
	default:
		return "unknown"
	}
}

// Block is one entry of a setlist script.
type Block struct {
	// ID identifies the block within its script.
	ID string

	// Kind selects whether Text or MaterialRef is authoritative.
	Kind BlockKind

	// Text is the plain text of a [KindText] block.
	Text string

	// MaterialRef names the bit a [KindMaterial] block resolves to.
	MaterialRef string
}

// Script is the ordered content of a setlist.
type Script struct {
	Title  string
	Blocks []Block
}

// MaterialResolver reduces a material reference to plain text.
type MaterialResolver interface {
	ResolveMaterial(ref string) (string, error)
}

// Materials is a map-backed [MaterialResolver] keyed by material reference.
type Materials map[string]string

// ResolveMaterial returns the text stored under ref.
func (m Materials) ResolveMaterial(ref string) (string, error) {
	text, ok := m[ref]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnresolvedMaterial, ref)
	}
	return text, nil
}

// Compile-time interface assertion.
var _ MaterialResolver = Materials(nil)

// resolveText returns the plain text of b.
func resolveText(b Block, r MaterialResolver) (string, error) {
	if b.Kind != KindMaterial {
		return b.Text, nil
	}
	if r == nil {
		return "", fmt.Errorf("%w: %q (no resolver)", ErrUnresolvedMaterial, b.MaterialRef)
	}
	return r.ResolveMaterial(b.MaterialRef)
}

// Unit is one navigable segment of a script. Units are immutable once the
// segmenter has produced them.
type Unit struct {
	// ID is stable for a given script and segmentation mode.
	ID string

	// Index is the unit's position in the session's unit sequence.
	Index int

	// Text is the display text.
	Text string

	// Tokens is the normalized word sequence of Text.
	Tokens []string

	// BlockID and BlockIndex point at the originating block. BlockIndex is the
	// position in [Script.Blocks], including blocks that produced no units.
	BlockID    string
	BlockIndex int

	// Separator marks the empty unit inserted between blocks in chunked mode.
	Separator bool
}

// FirstUnitOfBlock returns the index of the first non-separator unit that
// originates from blockIndex, or -1 when the block produced no units.
func FirstUnitOfBlock(units []Unit, blockIndex int) int {
	for _, u := range units {
		if u.BlockIndex == blockIndex && !u.Separator {
			return u.Index
		}
	}
	return -1
}

// LastUnitOfBlock returns the index of the last non-separator unit that
// originates from blockIndex, or -1 when the block produced no units.
func LastUnitOfBlock(units []Unit, blockIndex int) int {
	last := -1
	for _, u := range units {
		if u.BlockIndex == blockIndex && !u.Separator {
			last = u.Index
		}
	}
	return last
}
