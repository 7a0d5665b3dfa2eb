// Package matcher decides, from a rolling window of recently transcribed words,
// whether one of the currently relevant trigger phrases has just been spoken.
//
// A [Matcher] is configured with the candidates for the unit on screen (see
// [SelectCandidates]), fed [transcript.Event] values as they arrive and asked
// to [Matcher.Evaluate] after each one. A candidate fires when its confidence
// reaches the sensitivity threshold for its role and the same phrase has not
// fired within the cooldown. At most one candidate fires per evaluation.
//
// Matcher is not safe for concurrent use; the session loop owns it.
package matcher

import (
	"fmt"
	"time"

	"github.com/MrWong99/cuecard/internal/transcript"
	"github.com/MrWong99/cuecard/pkg/script"
)

const (
	// DefaultAnchorSensitivity is the default confidence threshold for anchors.
	DefaultAnchorSensitivity = 0.7

	// DefaultExitSensitivity is the default confidence threshold for exits.
	DefaultExitSensitivity = 0.75

	// DefaultCooldown is the default minimum time between two fires of the same
	// phrase.
	DefaultCooldown = 2 * time.Second
)

// Sensitivity holds the role-specific confidence thresholds in [0,1]. Lower
// values are more lenient.
type Sensitivity struct {
	Anchor float64
	Exit   float64
}

// DefaultSensitivity returns the default thresholds.
func DefaultSensitivity() Sensitivity {
	return Sensitivity{Anchor: DefaultAnchorSensitivity, Exit: DefaultExitSensitivity}
}

// Validate reports thresholds outside [0,1].
func (s Sensitivity) Validate() error {
	if s.Anchor < 0 || s.Anchor > 1 {
		return fmt.Errorf("matcher: anchor sensitivity %.2f is out of range [0, 1]", s.Anchor)
	}
	if s.Exit < 0 || s.Exit > 1 {
		return fmt.Errorf("matcher: exit sensitivity %.2f is out of range [0, 1]", s.Exit)
	}
	return nil
}

// threshold returns the threshold that applies to role.
func (s Sensitivity) threshold(role script.Role) float64 {
	if role == script.RoleExit {
		return s.Exit
	}
	return s.Anchor
}

// Fires reports whether a candidate with the given role and confidence passes
// the threshold. A zero confidence never fires.
func (s Sensitivity) Fires(role script.Role, confidence float64) bool {
	return confidence > 0 && confidence >= s.threshold(role)
}

// Option is a functional option for configuring a [Matcher].
type Option func(*Matcher)

// WithCooldown sets the per-phrase cooldown. Default: 2s.
func WithCooldown(d time.Duration) Option {
	return func(m *Matcher) {
		m.cooldown = d
	}
}

// WithClock replaces time.Now for cooldown bookkeeping.
func WithClock(now func() time.Time) Option {
	return func(m *Matcher) {
		m.now = now
	}
}

// WithWindowSize sets the minimum window capacity in words.
func WithWindowSize(n int) Option {
	return func(m *Matcher) {
		m.window = NewWindow(n)
	}
}

// WithScorer replaces the default [Scorer].
func WithScorer(s *Scorer) Option {
	return func(m *Matcher) {
		m.scorer = s
	}
}

// MatchCandidate is a candidate paired with its confidence for one evaluation.
type MatchCandidate struct {
	Candidate
	Confidence float64
}

// Evaluation is the outcome of a single [Matcher.Evaluate] call.
type Evaluation struct {
	// Candidates holds every configured candidate with its confidence.
	Candidates []MatchCandidate

	// Fired is the candidate that fired, or nil.
	Fired *MatchCandidate

	// AnchorConfidence is the confidence of the current unit's anchor.
	AnchorConfidence float64

	// ExitConfidence is the highest confidence among the current unit's exits.
	ExitConfidence float64
}

// Matcher scores transcript windows against the active candidate set.
type Matcher struct {
	sensitivity Sensitivity
	cooldown    time.Duration
	now         func() time.Time
	scorer      *Scorer
	window      *Window
	candidates  []Candidate
	lastFired   map[string]time.Time
}

// New returns a [Matcher] using sensitivity and opts.
func New(sensitivity Sensitivity, opts ...Option) *Matcher {
	m := &Matcher{
		sensitivity: sensitivity,
		cooldown:    DefaultCooldown,
		now:         time.Now,
		scorer:      NewScorer(),
		window:      NewWindow(DefaultWindowSize),
		lastFired:   make(map[string]time.Time),
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Configure replaces the active candidate set. The window grows to twice the
// longest candidate so every phrase fits with room for filler words.
func (m *Matcher) Configure(candidates []Candidate) {
	m.candidates = candidates
	longest := 0
	for _, c := range candidates {
		longest = max(longest, len(c.Phrase.Tokens))
	}
	m.window.Grow(2 * longest)
}

// Candidates returns the active candidate set.
func (m *Matcher) Candidates() []Candidate { return m.candidates }

// SetSensitivity replaces the thresholds. It takes effect on the next
// evaluation.
func (m *Matcher) SetSensitivity(s Sensitivity) { m.sensitivity = s }

// Sensitivity returns the active thresholds.
func (m *Matcher) Sensitivity() Sensitivity { return m.sensitivity }

// Feed pushes a transcript event into the window and reports whether the
// window changed. Empty events are ignored.
func (m *Matcher) Feed(ev transcript.Event) bool {
	return m.window.Push(ev)
}

// Words returns the words currently visible to the matcher.
func (m *Matcher) Words() []string { return m.window.Words() }

// Reset clears the window and all cooldowns.
func (m *Matcher) Reset() {
	m.window.Clear()
	clear(m.lastFired)
}

// Evaluate scores every candidate against the window and fires at most one.
// When a candidate fires its cooldown starts and, unless it is a confirm,
// its words are consumed from the window.
func (m *Matcher) Evaluate() Evaluation {
	view := m.window.View()
	words := make([]string, len(view))
	for i, w := range view {
		words[i] = w.text
	}

	now := m.now()
	ev := Evaluation{Candidates: make([]MatchCandidate, 0, len(m.candidates))}
	var (
		best     *MatchCandidate
		bestLast = -1
	)
	for _, c := range m.candidates {
		a := m.scorer.align(c.Phrase.Tokens, words)
		mc := MatchCandidate{Candidate: c, Confidence: a.confidence}
		ev.Candidates = append(ev.Candidates, mc)

		switch c.Kind {
		case KindConfirm:
			ev.AnchorConfidence = max(ev.AnchorConfidence, a.confidence)
		case KindExit:
			ev.ExitConfidence = max(ev.ExitConfidence, a.confidence)
		}

		if !m.sensitivity.Fires(c.Phrase.Role, a.confidence) || m.coolingDown(c.Phrase.ID, now) {
			continue
		}
		if best == nil || a.confidence > best.Confidence ||
			(a.confidence == best.Confidence && c.Kind.priority() > best.Kind.priority()) {
			fired := mc
			best = &fired
			bestLast = a.last
		}
	}

	if best != nil {
		m.lastFired[best.Phrase.ID] = now
		// A confirm leaves the words in place: on short units the exit
		// overlaps the anchor and still needs them.
		if bestLast >= 0 && best.Kind != KindConfirm {
			m.window.Consume(view[bestLast].pos)
		}
		ev.Fired = best
	}
	return ev
}

func (m *Matcher) coolingDown(id string, now time.Time) bool {
	last, ok := m.lastFired[id]
	return ok && now.Sub(last) < m.cooldown
}
