package tui

import (
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/MrWong99/cuecard/internal/navigator"
	"github.com/MrWong99/cuecard/internal/session"
	"github.com/MrWong99/cuecard/pkg/script"

	tea "github.com/charmbracelet/bubbletea"
)

type fakeController struct {
	mu     sync.Mutex
	snap   session.Snapshot
	events chan session.Event
	calls  []string
	err    error
}

func newFake() *fakeController {
	return &fakeController{
		events: make(chan session.Event, 8),
		snap: session.Snapshot{
			Phase:     session.PhaseRunning,
			Cursor:    0,
			UnitCount: 3,
			Text:      "So I was at the airport",
			Position:  1,
			Total:     3,
			Recording: true,
			Listening: true,
		},
	}
}

func (f *fakeController) Snapshot() session.Snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.snap
}

func (f *fakeController) Events() <-chan session.Event { return f.events }

func (f *fakeController) record(name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, name)
	return f.err
}

func (f *fakeController) Next() error     { return f.record("next") }
func (f *fakeController) Previous() error { return f.record("previous") }
func (f *fakeController) Pause() error    { return f.record("pause") }
func (f *fakeController) Resume() error   { return f.record("resume") }
func (f *fakeController) JumpToBlock(i int) error {
	return f.record("jump:" + string(rune('0'+i)))
}

func (f *fakeController) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

var testUnits = []script.Unit{
	{Index: 0, Text: "So I was at the airport"},
	{Index: 1, Separator: true},
	{Index: 2, Text: "and the security guy says"},
}

func newModel(t *testing.T, f *fakeController) Model {
	t.Helper()
	m := New(f, "Friday late", testUnits)
	updated, _ := m.Update(tea.WindowSizeMsg{Width: 80, Height: 24})
	return updated.(Model)
}

func keyMsg(s string) tea.KeyMsg {
	switch s {
	case "right":
		return tea.KeyMsg{Type: tea.KeyRight}
	case "left":
		return tea.KeyMsg{Type: tea.KeyLeft}
	case "ctrl+c":
		return tea.KeyMsg{Type: tea.KeyCtrlC}
	case " ":
		return tea.KeyMsg{Type: tea.KeySpace, Runes: []rune{' '}}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func isQuit(cmd tea.Cmd) bool {
	if cmd == nil {
		return false
	}
	_, ok := cmd().(tea.QuitMsg)
	return ok
}

// ── Keys ─────────────────────────────────────────────────────────────────────

func TestHandleKey_Navigation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		key    string
		paused bool
		want   string
	}{
		{key: " ", want: "next"},
		{key: "right", want: "next"},
		{key: "l", want: "next"},
		{key: "left", want: "previous"},
		{key: "h", want: "previous"},
		{key: "p", want: "pause"},
		{key: "p", paused: true, want: "resume"},
		{key: "1", want: "jump:0"},
		{key: "3", want: "jump:2"},
	}

	for _, tc := range tests {
		t.Run(tc.want+"/"+tc.key, func(t *testing.T) {
			t.Parallel()
			f := newFake()
			f.snap.Paused = tc.paused
			m := newModel(t, f)

			_, cmd := m.Update(keyMsg(tc.key))
			if cmd == nil {
				t.Fatal("no command returned")
			}
			if msg := cmd(); msg != (TickMsg{}) {
				t.Errorf("command result = %#v, want TickMsg", msg)
			}
			if calls := f.Calls(); len(calls) != 1 || calls[0] != tc.want {
				t.Errorf("calls = %v, want [%s]", calls, tc.want)
			}
		})
	}
}

func TestHandleKey_Quit(t *testing.T) {
	t.Parallel()

	tests := []struct {
		key  string
		want Outcome
	}{
		{"q", OutcomeSave},
		{"Q", OutcomeSave},
		{"ctrl+c", OutcomeSave},
		{"D", OutcomeDiscard},
	}

	for _, tc := range tests {
		t.Run(tc.key, func(t *testing.T) {
			t.Parallel()
			f := newFake()
			updated, cmd := newModel(t, f).Update(keyMsg(tc.key))

			if !isQuit(cmd) {
				t.Error("expected quit command")
			}
			if got := updated.(Model).Outcome(); got != tc.want {
				t.Errorf("outcome = %v, want %v", got, tc.want)
			}
			if calls := f.Calls(); len(calls) != 0 {
				t.Errorf("unexpected session calls %v", calls)
			}
		})
	}
}

func TestHandleKey_IgnoredAfterStartFailure(t *testing.T) {
	t.Parallel()
	f := newFake()
	m := newModel(t, f)

	updated, _ := m.Update(EventMsg{Event: session.Event{Kind: session.EventStartFailed, Err: errors.New("microphone denied")}})
	m = updated.(Model)
	if !strings.Contains(m.errorMessage, "microphone denied") {
		t.Errorf("errorMessage = %q", m.errorMessage)
	}
	if m.StartErr() == nil {
		t.Error("StartErr() = nil after start failure")
	}

	if _, cmd := m.Update(keyMsg(" ")); cmd != nil {
		t.Error("navigation key after start failure returned a command")
	}
}

func TestActionError(t *testing.T) {
	t.Parallel()
	f := newFake()
	f.err = session.ErrStopped
	m := newModel(t, f)

	_, cmd := m.Update(keyMsg(" "))
	msg := cmd()
	errMsg, ok := msg.(ActionErrMsg)
	if !ok {
		t.Fatalf("command result = %#v, want ActionErrMsg", msg)
	}

	updated, clear := m.Update(errMsg)
	m = updated.(Model)
	if m.errorMessage == "" {
		t.Error("error not shown")
	}
	if clear == nil {
		t.Fatal("no clear command scheduled")
	}

	updated, _ = m.Update(ClearErrorMsg{})
	if updated.(Model).errorMessage != "" {
		t.Error("error not cleared")
	}
}

// ── Events ───────────────────────────────────────────────────────────────────

func TestEvents_LogAndRefresh(t *testing.T) {
	t.Parallel()
	f := newFake()
	m := newModel(t, f)

	f.mu.Lock()
	f.snap.Cursor = 2
	f.snap.Text = "and the security guy says"
	f.mu.Unlock()

	updated, cmd := m.Update(EventMsg{Event: session.Event{
		Kind:       session.EventUnitChanged,
		Elapsed:    65 * time.Second,
		From:       0,
		To:         2,
		Cause:      navigator.CauseVoice,
		Phrase:     "the airport",
		Confidence: 0.91,
	}})
	m = updated.(Model)

	if cmd == nil {
		t.Error("event handling must keep reading events")
	}
	if m.snap.Cursor != 2 {
		t.Errorf("snapshot not refreshed: cursor = %d", m.snap.Cursor)
	}
	if len(m.log) != 1 {
		t.Fatalf("log = %d entries, want 1", len(m.log))
	}
	if got := m.log[0].text; !strings.Contains(got, "→ 3 (voice)") || !strings.Contains(got, `"the airport" 0.91`) {
		t.Errorf("log text = %q", got)
	}
}

func TestEvents_LogIsBounded(t *testing.T) {
	t.Parallel()
	m := newModel(t, newFake())

	for i := 0; i < maxLog+4; i++ {
		updated, _ := m.Update(EventMsg{Event: session.Event{Kind: session.EventConfirmed, Phrase: "so anyway"}})
		m = updated.(Model)
	}
	if len(m.log) != maxLog {
		t.Errorf("log = %d entries, want %d", len(m.log), maxLog)
	}
}

func TestEvents_ClosedQuits(t *testing.T) {
	t.Parallel()
	m := newModel(t, newFake())

	_, cmd := m.Update(EventsClosedMsg{})
	if !isQuit(cmd) {
		t.Error("closed event stream should quit")
	}
}

func TestWaitEventCmd(t *testing.T) {
	t.Parallel()
	events := make(chan session.Event, 1)
	events <- session.Event{Kind: session.EventFinished}

	if msg := waitEventCmd(events)(); msg != (EventMsg{Event: session.Event{Kind: session.EventFinished}}) {
		t.Errorf("msg = %#v", msg)
	}
	close(events)
	if msg := waitEventCmd(events)(); msg != (EventsClosedMsg{}) {
		t.Errorf("msg = %#v, want EventsClosedMsg", msg)
	}
}

// ── View ─────────────────────────────────────────────────────────────────────

func TestView(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		modify func(*session.Snapshot)
		want   []string
	}{
		{
			name: "running",
			want: []string{"CUECARD", "Friday late", "1 / 3", "REC", "LISTENING", "So I was at the airport", "next", "security guy"},
		},
		{
			name:   "degraded and paused",
			modify: func(s *session.Snapshot) { s.Degraded = true; s.Paused = true; s.Listening = false },
			want:   []string{"PAUSED", "MANUAL", "Resume"},
		},
		{
			name: "finished",
			modify: func(s *session.Snapshot) {
				s.Cursor = navigator.Finished
				s.Text = ""
				s.Position = 4
			},
			want: []string{"done / 3", "That's the set."},
		},
		{
			name:   "transcript words",
			modify: func(s *session.Snapshot) { s.Words = []string{"so", "anyway"} },
			want:   []string{"so anyway"},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			f := newFake()
			if tc.modify != nil {
				tc.modify(&f.snap)
			}
			view := newModel(t, f).View()
			for _, w := range tc.want {
				if !strings.Contains(view, w) {
					t.Errorf("view missing %q:\n%s", w, view)
				}
			}
		})
	}
}

func TestView_BeforeResize(t *testing.T) {
	t.Parallel()
	if got := New(newFake(), "set", nil).View(); got != "Initializing..." {
		t.Errorf("View() = %q", got)
	}
}

// ── Helpers ──────────────────────────────────────────────────────────────────

func TestFormatElapsed(t *testing.T) {
	t.Parallel()
	tests := []struct {
		d    time.Duration
		want string
	}{
		{0, "00:00"},
		{65 * time.Second, "01:05"},
		{12*time.Minute + 400*time.Millisecond, "12:00"},
	}
	for _, tc := range tests {
		if got := formatElapsed(tc.d); got != tc.want {
			t.Errorf("formatElapsed(%s) = %q, want %q", tc.d, got, tc.want)
		}
	}
}

func TestWrapText(t *testing.T) {
	t.Parallel()
	got := wrapText("so I was at the airport", 10)
	want := []string{"so I was", "at the", "airport"}
	if strings.Join(got, "|") != strings.Join(want, "|") {
		t.Errorf("wrapText = %q, want %q", got, want)
	}
}

func TestTruncateLeft(t *testing.T) {
	t.Parallel()
	if got := truncateLeft("one two three", 20); got != "one two three" {
		t.Errorf("short string changed: %q", got)
	}
	if got := truncateLeft("one two three", 6); got != "…three" {
		t.Errorf("truncateLeft = %q, want %q", got, "…three")
	}
}
