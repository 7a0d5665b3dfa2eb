package script

import (
	"fmt"
	"strings"

	"github.com/MrWong99/cuecard/pkg/phrase"
)

const (
	// DefaultPhraseWords is how many words an auto-generated phrase takes from
	// its unit.
	DefaultPhraseWords = 4

	// DefaultMinPhraseWords is the minimum word count of a valid phrase.
	DefaultMinPhraseWords = 2
)

// Role is the purpose of a trigger phrase.
type Role int

const (
	// RoleAnchor confirms that the performer is on the displayed unit.
	RoleAnchor Role = iota

	// RoleExit advances past the unit it belongs to.
	RoleExit
)

// String returns the configuration name of the role.
func (r Role) String() string {
	switch r {
	case RoleAnchor:
		return "anchor"
	case RoleExit:
		return "exit"
	default:
		return "unknown"
	}
}

// ParseRole parses "anchor" or "exit".
func ParseRole(s string) (Role, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "anchor":
		return RoleAnchor, nil
	case "exit":
		return RoleExit, nil
	}
	return 0, fmt.Errorf("script: unknown phrase role %q", s)
}

// TriggerPhrase is a spoken cue bound to a unit.
type TriggerPhrase struct {
	ID     string
	Text   string
	Tokens []string
	Role   Role

	// Enabled is the user's switch. Disabled phrases are never matched.
	Enabled bool

	// Valid is false when the phrase has fewer words than the configured
	// minimum. Invalid phrases are never matched but stay visible.
	Valid bool

	UnitIndex  int
	BlockIndex int

	// Generated marks phrases derived from unit text rather than configured.
	Generated bool
}

// Matchable reports whether the phrase takes part in matching.
func (p TriggerPhrase) Matchable() bool {
	return p.Enabled && p.Valid && len(p.Tokens) > 0
}

// PhraseConfig is a user-configured phrase as stored with a setlist.
type PhraseConfig struct {
	Text    string
	Role    Role
	BlockID string
	Enabled bool
}

// NewPhrase builds a [TriggerPhrase] from text and validates it against
// minWords.
func NewPhrase(text string, role Role, unit Unit, minWords int) TriggerPhrase {
	tokens := phrase.Normalize(text)
	p := TriggerPhrase{
		ID:         fmt.Sprintf("%s:%s:%s", unit.ID, role, phrase.Join(tokens)),
		Text:       strings.TrimSpace(text),
		Tokens:     tokens,
		Role:       role,
		Enabled:    true,
		UnitIndex:  unit.Index,
		BlockIndex: unit.BlockIndex,
	}
	return ValidatePhrase(p, minWords)
}

// ValidatePhrase sets p.Valid according to minWords. A non-positive minWords
// uses [DefaultMinPhraseWords].
func ValidatePhrase(p TriggerPhrase, minWords int) TriggerPhrase {
	if minWords <= 0 {
		minWords = DefaultMinPhraseWords
	}
	p.Valid = len(p.Tokens) >= minWords
	return p
}

// GeneratePhrases derives one anchor (the first words) and one exit (the last
// words) phrase per non-separator unit. Units shorter than words contribute
// their whole text to both.
func GeneratePhrases(units []Unit, words, minWords int) []TriggerPhrase {
	if words <= 0 {
		words = DefaultPhraseWords
	}
	out := make([]TriggerPhrase, 0, 2*len(units))
	for _, u := range units {
		if u.Separator || len(u.Tokens) == 0 {
			continue
		}
		n := min(words, len(u.Tokens))
		anchor := NewPhrase(phrase.Join(u.Tokens[:n]), RoleAnchor, u, minWords)
		exit := NewPhrase(phrase.Join(u.Tokens[len(u.Tokens)-n:]), RoleExit, u, minWords)
		anchor.Generated = true
		exit.Generated = true
		out = append(out, anchor, exit)
	}
	return out
}

// BindPhrases attaches configured phrases to units. Anchor phrases bind to the
// first unit of their block and exit phrases to the last. Phrases for blocks
// that produced no units are dropped; unknown block IDs are an error.
func BindPhrases(cfgs []PhraseConfig, sc Script, units []Unit, minWords int) ([]TriggerPhrase, error) {
	blockIndex := make(map[string]int, len(sc.Blocks))
	for i, b := range sc.Blocks {
		id := b.ID
		if id == "" {
			id = fmt.Sprintf("block-%d", i)
		}
		blockIndex[id] = i
	}

	var out []TriggerPhrase
	for _, c := range cfgs {
		bi, ok := blockIndex[c.BlockID]
		if !ok {
			return nil, fmt.Errorf("script: phrase %q: unknown block %q", c.Text, c.BlockID)
		}
		ui := FirstUnitOfBlock(units, bi)
		if c.Role == RoleExit {
			ui = LastUnitOfBlock(units, bi)
		}
		if ui < 0 {
			continue
		}
		p := NewPhrase(c.Text, c.Role, units[ui], minWords)
		p.Enabled = c.Enabled
		out = append(out, p)
	}
	return out, nil
}

// MergePhrases overlays configured phrases on generated ones. Any configured
// phrase for a unit and role replaces the generated phrase for that pair.
func MergePhrases(generated, configured []TriggerPhrase) []TriggerPhrase {
	type key struct {
		unit int
		role Role
	}
	overridden := make(map[key]bool, len(configured))
	for _, p := range configured {
		overridden[key{p.UnitIndex, p.Role}] = true
	}

	out := make([]TriggerPhrase, 0, len(generated)+len(configured))
	for _, p := range generated {
		if !overridden[key{p.UnitIndex, p.Role}] {
			out = append(out, p)
		}
	}
	out = append(out, configured...)
	return out
}

// InvalidPhrases returns the phrases that are flagged invalid, for display.
func InvalidPhrases(ps []TriggerPhrase) []TriggerPhrase {
	var out []TriggerPhrase
	for _, p := range ps {
		if !p.Valid {
			out = append(out, p)
		}
	}
	return out
}
