package matcher

import (
	"testing"
	"time"

	"github.com/MrWong99/cuecard/internal/transcript"
	"github.com/MrWong99/cuecard/pkg/script"
)

// ── helpers ──────────────────────────────────────────────────────────────────

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 3, 1, 21, 0, 0, 0, time.UTC)}
}

func exitCandidate(text string, unit int) Candidate {
	u := script.Unit{ID: "u", Index: unit}
	return Candidate{Phrase: script.NewPhrase(text, script.RoleExit, u, 2), Kind: KindExit}
}

func anchorCandidate(text string, unit int, kind Kind) Candidate {
	u := script.Unit{ID: "u", Index: unit}
	return Candidate{Phrase: script.NewPhrase(text, script.RoleAnchor, u, 2), Kind: kind}
}

func feedAndEvaluate(m *Matcher, evs ...transcript.Event) Evaluation {
	for _, ev := range evs {
		m.Feed(ev)
	}
	return m.Evaluate()
}

// ── scenarios ────────────────────────────────────────────────────────────────

func TestMatcher_LenientVersusStrict(t *testing.T) {
	tests := []struct {
		name      string
		exit      float64
		wantFired bool
	}{
		{"lenient", 0.3, true},
		{"default", DefaultExitSensitivity, false},
		{"strict", 0.9, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := New(Sensitivity{Anchor: 0.7, Exit: tt.exit})
			m.Configure([]Candidate{exitCandidate("so anyway", 0)})
			ev := feedAndEvaluate(m, final("and then she left so any way"))
			if got := ev.Fired != nil; got != tt.wantFired {
				t.Errorf("fired = %v, want %v (confidence %.2f)", got, tt.wantFired, ev.ExitConfidence)
			}
		})
	}
}

func TestMatcher_ExactPhraseFires(t *testing.T) {
	m := New(DefaultSensitivity())
	m.Configure([]Candidate{
		anchorCandidate("good evening", 0, KindConfirm),
		exitCandidate("so anyway", 0),
	})
	ev := feedAndEvaluate(m, partial("it's great to be here so anyway"))
	if ev.Fired == nil || ev.Fired.Kind != KindExit {
		t.Fatalf("Fired = %+v, want exit", ev.Fired)
	}
	if ev.ExitConfidence != 1 {
		t.Errorf("ExitConfidence = %.2f, want 1", ev.ExitConfidence)
	}
	if ev.AnchorConfidence >= 1 {
		t.Errorf("AnchorConfidence = %.2f, want < 1", ev.AnchorConfidence)
	}
	if len(ev.Candidates) != 2 {
		t.Errorf("Candidates = %d, want 2", len(ev.Candidates))
	}
}

func TestMatcher_EmptyInputIsNoOp(t *testing.T) {
	m := New(DefaultSensitivity())
	m.Configure([]Candidate{exitCandidate("so anyway", 0)})
	m.Feed(final("so"))
	for range 5 {
		if m.Feed(partial("")) {
			t.Fatal("empty partial changed the window")
		}
	}
	ev := feedAndEvaluate(m, partial("anyway"))
	if ev.Fired == nil {
		t.Fatal("words spanning empty ticks did not match")
	}
}

func TestMatcher_MonotonicSensitivity(t *testing.T) {
	windows := []string{
		"so anyway", "so any way", "so uh anyway", "anyway so", "nothing to see here",
		"tip your waitres", "tip the waitress", "moving right on",
	}
	phrases := []string{"so anyway", "tip your waitress", "moving on"}

	for _, w := range windows {
		for _, p := range phrases {
			prev := true
			for th := 0.0; th <= 1.0001; th += 0.05 {
				m := New(Sensitivity{Anchor: 1, Exit: th})
				m.Configure([]Candidate{exitCandidate(p, 0)})
				fired := feedAndEvaluate(m, final(w)).Fired != nil
				if fired && !prev {
					t.Errorf("phrase %q window %q: fired at %.2f but not at a lower threshold", p, w, th)
				}
				prev = fired
			}
		}
	}
}

func TestMatcher_Cooldown(t *testing.T) {
	clk := newClock()
	m := New(Sensitivity{Anchor: 0.5, Exit: 0.5}, WithClock(clk.now), WithCooldown(2*time.Second))
	m.Configure([]Candidate{exitCandidate("so anyway", 0)})

	var fires []time.Time
	for range 20 {
		if ev := feedAndEvaluate(m, final("so anyway")); ev.Fired != nil {
			fires = append(fires, clk.t)
		}
		clk.advance(250 * time.Millisecond)
	}
	if len(fires) < 2 {
		t.Fatalf("fires = %d, want at least 2 over 5s", len(fires))
	}
	for i := 1; i < len(fires); i++ {
		if gap := fires[i].Sub(fires[i-1]); gap < 2*time.Second {
			t.Errorf("fires %d and %d only %v apart", i-1, i, gap)
		}
	}
}

func TestMatcher_SameUtteranceFiresOnce(t *testing.T) {
	clk := newClock()
	m := New(DefaultSensitivity(), WithClock(clk.now), WithCooldown(time.Millisecond))
	m.Configure([]Candidate{exitCandidate("so anyway", 0)})

	fires := 0
	for _, p := range []string{"so anyway", "so anyway the", "so anyway the thing", "so anyway the thing is"} {
		clk.advance(time.Second)
		if feedAndEvaluate(m, partial(p)).Fired != nil {
			fires++
		}
	}
	if feedAndEvaluate(m, final("so anyway the thing is")).Fired != nil {
		fires++
	}
	if fires != 1 {
		t.Errorf("fires = %d, want 1 for one growing utterance", fires)
	}
}

func TestMatcher_ConsumedWordsFreeNextPhrase(t *testing.T) {
	m := New(DefaultSensitivity())
	m.Configure([]Candidate{exitCandidate("so anyway", 0)})
	if feedAndEvaluate(m, final("so anyway moving on")).Fired == nil {
		t.Fatal("first exit did not fire")
	}
	m.Configure([]Candidate{exitCandidate("moving on", 1)})
	if m.Evaluate().Fired == nil {
		t.Fatal("words after the consumed phrase did not match")
	}
}

func TestMatcher_ShorterFinalKeepsNextExit(t *testing.T) {
	m := New(DefaultSensitivity())
	m.Configure([]Candidate{exitCandidate("moving on", 0)})
	if feedAndEvaluate(m, partial("uh well moving on")).Fired == nil {
		t.Fatal("exit did not fire on the partial")
	}
	m.Feed(final("moving on"))

	m.Configure([]Candidate{exitCandidate("so anyway", 1)})
	ev := feedAndEvaluate(m, final("so anyway"))
	if ev.Fired == nil {
		t.Fatalf("next exit did not fire: words %q, confidence %.2f", m.Words(), ev.ExitConfidence)
	}
}

func TestMatcher_ShortUnitConfirmThenExit(t *testing.T) {
	units := []script.Unit{{
		ID:     "closer/0",
		Index:  0,
		Text:   "one two three four five",
		Tokens: []string{"one", "two", "three", "four", "five"},
	}}
	phrases := script.GeneratePhrases(units, script.DefaultPhraseWords, 2)
	m := New(DefaultSensitivity())
	m.Configure(SelectCandidates(phrases, units, 0, Scope{Lookahead: true}))

	var kinds []Kind
	for _, p := range []string{"one", "one two", "one two three", "one two three four", "one two three four five"} {
		if ev := feedAndEvaluate(m, partial(p)); ev.Fired != nil {
			kinds = append(kinds, ev.Fired.Kind)
		}
	}
	if ev := feedAndEvaluate(m, final("one two three four five")); ev.Fired != nil {
		kinds = append(kinds, ev.Fired.Kind)
	}

	if len(kinds) != 2 || kinds[0] != KindConfirm || kinds[1] != KindExit {
		t.Errorf("fired %v, want [confirm exit]", kinds)
	}
}

func TestMatcher_TiePrefersExit(t *testing.T) {
	m := New(DefaultSensitivity())
	m.Configure([]Candidate{
		anchorCandidate("thank you", 0, KindConfirm),
		exitCandidate("thank you", 0),
	})
	ev := feedAndEvaluate(m, final("thank you"))
	if ev.Fired == nil || ev.Fired.Kind != KindExit {
		t.Fatalf("Fired = %+v, want exit", ev.Fired)
	}
}

func TestMatcher_Reset(t *testing.T) {
	clk := newClock()
	m := New(DefaultSensitivity(), WithClock(clk.now))
	m.Configure([]Candidate{exitCandidate("so anyway", 0)})
	feedAndEvaluate(m, final("so anyway"))
	m.Reset()
	if len(m.Words()) != 0 {
		t.Errorf("Words after Reset = %q", m.Words())
	}
	if feedAndEvaluate(m, final("so anyway")).Fired == nil {
		t.Error("cooldown survived Reset")
	}
}

func TestSensitivity_Validate(t *testing.T) {
	if err := DefaultSensitivity().Validate(); err != nil {
		t.Errorf("default: %v", err)
	}
	if err := (Sensitivity{Anchor: -0.1, Exit: 0.5}).Validate(); err == nil {
		t.Error("negative anchor accepted")
	}
	if err := (Sensitivity{Anchor: 0.5, Exit: 1.5}).Validate(); err == nil {
		t.Error("exit above 1 accepted")
	}
}

// ── candidate selection ──────────────────────────────────────────────────────

func TestSelectCandidates(t *testing.T) {
	units := []script.Unit{
		{ID: "a/0", Index: 0, Tokens: []string{"x"}, BlockIndex: 0},
		{ID: "a/1", Index: 1, Tokens: []string{"x"}, BlockIndex: 0},
		{ID: "a/sep", Index: 2, BlockIndex: 0, Separator: true},
		{ID: "b/0", Index: 3, Tokens: []string{"x"}, BlockIndex: 1},
		{ID: "c/0", Index: 4, Tokens: []string{"x"}, BlockIndex: 2},
	}
	mk := func(text string, role script.Role, unit int) script.TriggerPhrase {
		return script.NewPhrase(text, role, units[unit], 2)
	}
	disabled := mk("never ever", script.RoleExit, 1)
	disabled.Enabled = false
	phrases := []script.TriggerPhrase{
		mk("first anchor", script.RoleAnchor, 0),
		mk("first exit", script.RoleExit, 0),
		mk("second anchor", script.RoleAnchor, 1),
		mk("second exit", script.RoleExit, 1),
		disabled,
		mk("third anchor", script.RoleAnchor, 3),
		mk("fourth anchor", script.RoleAnchor, 4),
		mk("short", script.RoleExit, 1),
	}

	count := func(cs []Candidate, k Kind) int {
		n := 0
		for _, c := range cs {
			if c.Kind == k {
				n++
			}
		}
		return n
	}

	t.Run("sequential with lookahead", func(t *testing.T) {
		cs := SelectCandidates(phrases, units, 1, Scope{Lookahead: true})
		if count(cs, KindConfirm) != 1 || count(cs, KindExit) != 1 {
			t.Errorf("confirm=%d exit=%d, want 1 and 1", count(cs, KindConfirm), count(cs, KindExit))
		}
		if count(cs, KindLookahead) != 1 || count(cs, KindJump) != 0 {
			t.Errorf("lookahead=%d jump=%d, want 1 and 0", count(cs, KindLookahead), count(cs, KindJump))
		}
	})

	t.Run("forward jumps only", func(t *testing.T) {
		cs := SelectCandidates(phrases, units, 3, Scope{JumpForward: true})
		if count(cs, KindJump) != 1 {
			t.Errorf("jump=%d, want 1 (block c only)", count(cs, KindJump))
		}
	})

	t.Run("both directions", func(t *testing.T) {
		cs := SelectCandidates(phrases, units, 3, Scope{JumpForward: true, JumpBackward: true})
		if count(cs, KindJump) != 2 {
			t.Errorf("jump=%d, want 2", count(cs, KindJump))
		}
	})

	t.Run("out of range", func(t *testing.T) {
		if cs := SelectCandidates(phrases, units, 9, Scope{}); cs != nil {
			t.Errorf("got %d candidates for invalid cursor", len(cs))
		}
	})
}
