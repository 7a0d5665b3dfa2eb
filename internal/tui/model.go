// Package tui is the live performance monitor: the current card in large
// type, what comes next, recognition confidence, input level and a short log
// of cursor moves. Keys drive manual navigation.
package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MrWong99/cuecard/internal/navigator"
	"github.com/MrWong99/cuecard/internal/session"
	"github.com/MrWong99/cuecard/pkg/audio"
	"github.com/MrWong99/cuecard/pkg/script"
	"github.com/charmbracelet/lipgloss"

	tea "github.com/charmbracelet/bubbletea"
)

// refreshInterval is how often the snapshot is re-read between events.
const refreshInterval = 100 * time.Millisecond

// maxLog is the number of log lines kept.
const maxLog = 6

// Controller is the part of a session the monitor drives. *session.Session
// implements it.
type Controller interface {
	Snapshot() session.Snapshot
	Events() <-chan session.Event
	Next() error
	Previous() error
	JumpToBlock(blockIndex int) error
	Pause() error
	Resume() error
}

// Outcome is what the performer chose when leaving the monitor.
type Outcome int

const (
	// OutcomeSave keeps the recording and stores the result.
	OutcomeSave Outcome = iota

	// OutcomeDiscard removes the recording.
	OutcomeDiscard
)

type logEntry struct {
	elapsed time.Duration
	text    string
	err     bool
}

// Model is the root bubbletea model of the monitor.
type Model struct {
	ctrl  Controller
	title string
	units []script.Unit

	snap     session.Snapshot
	log      []logEntry
	finished bool
	failed   bool
	startErr error

	errorMessage string

	width  int
	height int

	outcome Outcome
}

// New creates a Model for a running session.
func New(ctrl Controller, title string, units []script.Unit) Model {
	return Model{
		ctrl:  ctrl,
		title: title,
		units: units,
		snap:  ctrl.Snapshot(),
	}
}

// Outcome returns the performer's choice. It is meaningful once the program
// has quit.
func (m Model) Outcome() Outcome { return m.outcome }

// StartErr returns the reason the session failed to start, if it did.
func (m Model) StartErr() error { return m.startErr }

// Init starts reading events and the refresh ticker.
func (m Model) Init() tea.Cmd {
	return tea.Batch(waitEventCmd(m.ctrl.Events()), tickCmd())
}

// Run shows the monitor until the performer quits or ctx ends. A session
// that fails to start ends the monitor with its start error.
func Run(ctx context.Context, ctrl Controller, title string, units []script.Unit) (Outcome, error) {
	p := tea.NewProgram(New(ctrl, title, units), tea.WithAltScreen(), tea.WithContext(ctx))
	final, err := p.Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return OutcomeSave, nil
	}
	if err != nil {
		return OutcomeSave, fmt.Errorf("tui: %w", err)
	}
	fm := final.(Model)
	if fm.startErr != nil {
		return OutcomeDiscard, fm.startErr
	}
	return fm.Outcome(), nil
}

func waitEventCmd(events <-chan session.Event) tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-events
		if !ok {
			return EventsClosedMsg{}
		}
		return EventMsg{Event: ev}
	}
}

func tickCmd() tea.Cmd {
	return tea.Tick(refreshInterval, func(time.Time) tea.Msg {
		return TickMsg{}
	})
}

// actionCmd runs a session command off the update loop.
func actionCmd(fn func() error) tea.Cmd {
	return func() tea.Msg {
		if err := fn(); err != nil {
			return ActionErrMsg{Err: err}
		}
		return TickMsg{}
	}
}

func clearErrorCmd() tea.Cmd {
	return tea.Tick(4*time.Second, func(time.Time) tea.Msg {
		return ClearErrorMsg{}
	})
}

// Update processes messages and returns the updated model and any commands.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {

	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case TickMsg:
		m.snap = m.ctrl.Snapshot()
		return m, nil

	case EventMsg:
		m.handleEvent(msg.Event)
		m.snap = m.ctrl.Snapshot()
		return m, waitEventCmd(m.ctrl.Events())

	case EventsClosedMsg:
		return m, tea.Quit

	case ActionErrMsg:
		m.errorMessage = msg.Err.Error()
		return m, clearErrorCmd()

	case ClearErrorMsg:
		m.errorMessage = ""
		return m, nil
	}

	return m, nil
}

func (m *Model) handleEvent(ev session.Event) {
	switch ev.Kind {
	case session.EventUnitChanged:
		if ev.To == navigator.Finished {
			return
		}
		text := fmt.Sprintf("→ %d (%s)", ev.To+1, ev.Cause)
		if ev.Jumped {
			text += " jump"
		}
		if ev.Phrase != "" {
			text += fmt.Sprintf(" %q %.2f", ev.Phrase, ev.Confidence)
		}
		m.appendLog(ev, text, false)

	case session.EventConfirmed:
		m.appendLog(ev, fmt.Sprintf("✓ %q %.2f", ev.Phrase, ev.Confidence), false)

	case session.EventFinished:
		m.finished = true
		m.appendLog(ev, "finished", false)

	case session.EventDegraded:
		m.appendLog(ev, "recognition lost, manual only: "+errText(ev.Err), true)

	case session.EventStartFailed:
		m.failed = true
		m.startErr = ev.Err
		m.errorMessage = "start failed: " + errText(ev.Err)
		m.appendLog(ev, m.errorMessage, true)

	case session.EventPaused, session.EventResumed, session.EventStarted:
		m.appendLog(ev, ev.Kind.String(), false)
	}
}

func (m *Model) appendLog(ev session.Event, text string, isErr bool) {
	m.log = append(m.log, logEntry{elapsed: ev.Elapsed, text: text, err: isErr})
	if len(m.log) > maxLog {
		m.log = m.log[len(m.log)-maxLog:]
	}
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	key := msg.String()
	switch key {
	case KeyQuit, KeyQuitUpper, KeyCtrlC:
		m.outcome = OutcomeSave
		return m, tea.Quit

	case KeyDiscard:
		m.outcome = OutcomeDiscard
		return m, tea.Quit
	}

	if m.failed {
		return m, nil
	}

	switch key {
	case KeySpace, KeyRight, KeyL:
		return m, actionCmd(m.ctrl.Next)

	case KeyLeft, KeyH:
		return m, actionCmd(m.ctrl.Previous)

	case KeyPause:
		if m.snap.Paused {
			return m, actionCmd(m.ctrl.Resume)
		}
		return m, actionCmd(m.ctrl.Pause)
	}

	if len(key) == 1 && key[0] >= '1' && key[0] <= '9' {
		block := int(key[0] - '1')
		return m, actionCmd(func() error { return m.ctrl.JumpToBlock(block) })
	}
	return m, nil
}

// View renders the monitor.
func (m Model) View() string {
	if m.width == 0 {
		return "Initializing..."
	}

	divider := DividerStyle.Render(strings.Repeat("─", m.width))
	sections := []string{
		m.renderHeader(),
		m.renderStatusBar(),
		divider,
		m.renderCard(),
		divider,
		m.renderWords(),
		m.renderLog(),
	}
	if m.errorMessage != "" {
		sections = append(sections, ErrorStyle.Render("Error: ")+ErrorTextStyle.Render(m.errorMessage))
	}
	sections = append(sections, m.renderFooter())
	return strings.Join(sections, "\n")
}

func (m Model) renderHeader() string {
	return TitleStyle.Render("CUECARD") + DimStyle.Render("  "+m.title) +
		DimStyle.Render("  "+m.snap.ProgressLabel())
}

func (m Model) renderStatusBar() string {
	var dot string
	switch {
	case m.snap.Paused:
		dot = PausedDotStyle.Render("‖ PAUSED")
	case m.snap.Recording:
		dot = RecordingDotStyle.Render("● REC")
	default:
		dot = IdleDotStyle.Render("○ " + strings.ToUpper(m.snap.Phase.String()))
	}

	parts := []string{
		dot,
		DimStyle.Render(formatElapsed(m.snap.Elapsed)),
		renderLevelMeter(m.snap.Level, m.snap.Speaking),
	}
	switch {
	case m.snap.Degraded:
		parts = append(parts, ManualBadgeStyle.Render("MANUAL"))
	case m.snap.Listening:
		parts = append(parts, ListeningBadgeStyle.Render("LISTENING"))
	}
	parts = append(parts,
		renderConfidence("anchor", m.snap.AnchorConfidence),
		renderConfidence("exit", m.snap.ExitConfidence),
	)
	return strings.Join(parts, "  ")
}

func (m Model) renderCard() string {
	width := max(20, m.width-4)
	var lines []string

	switch {
	case m.finished || m.snap.Cursor == navigator.Finished:
		lines = append(lines, "", ConfirmedStyle.Render("  That's the set."), DimStyle.Render("  q save  D discard"))
	case m.snap.Text == "" && m.snap.UnitCount > 0:
		lines = append(lines, "", DimStyle.Render("  ·  ·  ·"))
	default:
		style := CurrentStyle
		if m.snap.Confirmed {
			style = ConfirmedStyle
		}
		lines = append(lines, "")
		for _, l := range wrapText(m.snap.Text, width) {
			lines = append(lines, "  "+style.Render(l))
		}
	}

	if next := m.upcoming(); next != "" {
		lines = append(lines, "")
		for i, l := range wrapText(next, width-6) {
			prefix := "      "
			if i == 0 {
				prefix = "  next "
			}
			lines = append(lines, UpcomingStyle.Render(prefix+l))
		}
	}
	return strings.Join(lines, "\n")
}

// upcoming returns the text of the next content unit after the cursor.
func (m Model) upcoming() string {
	if m.snap.Cursor < 0 {
		return ""
	}
	for i := m.snap.Cursor + 1; i < len(m.units); i++ {
		if !m.units[i].Separator {
			return m.units[i].Text
		}
	}
	return ""
}

func (m Model) renderWords() string {
	if len(m.snap.Words) == 0 {
		return DimStyle.Render("  …")
	}
	line := strings.Join(m.snap.Words, " ")
	return DimStyle.Render("  " + truncateLeft(line, max(10, m.width-4)))
}

func (m Model) renderLog() string {
	lines := make([]string, 0, len(m.log))
	for _, e := range m.log {
		ts := DimStyle.Render(formatElapsed(e.elapsed))
		text := e.text
		if e.err {
			text = ErrorTextStyle.Render(text)
		}
		lines = append(lines, "  "+ts+" "+text)
	}
	return strings.Join(lines, "\n")
}

func (m Model) renderFooter() string {
	parts := []string{
		FooterKeyStyle.Render("Space/→") + FooterDescStyle.Render(" Next"),
		FooterKeyStyle.Render("←") + FooterDescStyle.Render(" Back"),
		FooterKeyStyle.Render("1-9") + FooterDescStyle.Render(" Block"),
	}
	if m.snap.Paused {
		parts = append(parts, FooterKeyStyle.Render("p")+FooterDescStyle.Render(" Resume"))
	} else {
		parts = append(parts, FooterKeyStyle.Render("p")+FooterDescStyle.Render(" Pause"))
	}
	parts = append(parts,
		FooterKeyStyle.Render("q")+FooterDescStyle.Render(" Save"),
		FooterKeyStyle.Render("D")+FooterDescStyle.Render(" Discard"),
	)
	return strings.Join(parts, "  ")
}

// renderLevelMeter maps the input level from -60 dBFS to full scale.
func renderLevelMeter(rms float64, speaking bool) string {
	const barLen = 8
	frac := (audio.DBFS(rms) + 60) / 60
	filled := min(max(int(frac*barLen), 0), barLen)

	var b strings.Builder
	for i := 0; i < barLen; i++ {
		switch {
		case i >= filled:
			b.WriteString(LevelGrayStyle.Render("░"))
		case float64(i)/barLen > 0.6:
			b.WriteString(LevelYellowStyle.Render("█"))
		default:
			b.WriteString(LevelGreenStyle.Render("█"))
		}
	}
	label := DimStyle.Render("MIC")
	if speaking {
		label = LevelGreenStyle.Render("MIC")
	}
	return label + " " + b.String()
}

func renderConfidence(label string, v float64) string {
	return DimStyle.Render(fmt.Sprintf("%s %3.0f%%", label, v*100))
}

// Helpers

func formatElapsed(d time.Duration) string {
	d = d.Round(time.Second)
	return fmt.Sprintf("%02d:%02d", int(d.Minutes()), int(d.Seconds())%60)
}

func errText(err error) string {
	if err == nil {
		return "unknown error"
	}
	return err.Error()
}

// truncateLeft keeps the tail of s so the most recent words stay visible.
func truncateLeft(s string, width int) string {
	if lipgloss.Width(s) <= width {
		return s
	}
	runes := []rune(s)
	if len(runes) < width {
		return s
	}
	return "…" + string(runes[len(runes)-(width-1):])
}

func wrapText(text string, width int) []string {
	if width <= 0 {
		return []string{text}
	}

	var lines []string
	for _, paragraph := range strings.Split(text, "\n") {
		var current string
		for _, word := range strings.Fields(paragraph) {
			if current == "" {
				current = word
			} else if len(current)+1+len(word) <= width {
				current += " " + word
			} else {
				lines = append(lines, current)
				current = word
			}
		}
		lines = append(lines, current)
	}
	if len(lines) == 0 {
		return []string{""}
	}
	return lines
}
