package session

import (
	"context"
	"errors"
	"time"

	"github.com/MrWong99/cuecard/internal/insight"
	"github.com/MrWong99/cuecard/internal/matcher"
	"github.com/MrWong99/cuecard/internal/navigator"
	"github.com/MrWong99/cuecard/internal/observe"
	"github.com/MrWong99/cuecard/internal/recorder"
	"github.com/MrWong99/cuecard/internal/transcript"
	"github.com/MrWong99/cuecard/pkg/phrase"
)

// timeline accumulates the timing data insights are derived from.
type timeline struct {
	activity []insight.Activity
	words    int
	visits   []insight.UnitVisit
	open     int // index into visits of the unit on screen, or -1
	advances map[string]int
	reached  int
	done     bool
}

func newTimeline() timeline {
	return timeline{open: -1, advances: make(map[string]int)}
}

func (t *timeline) enter(unit int, at time.Duration) {
	t.leave(at)
	t.visits = append(t.visits, insight.UnitVisit{Unit: unit, Enter: at, Leave: at})
	t.open = len(t.visits) - 1
}

func (t *timeline) leave(at time.Duration) {
	if t.open >= 0 {
		t.visits[t.open].Leave = at
		t.open = -1
	}
}

// loop is the only goroutine that touches the navigator and matcher while
// the session runs.
func (s *Session) loop(ctx context.Context, levels <-chan recorder.LevelSample, events <-chan transcript.Event, recogErr error) {
	defer close(s.loopDone)
	log := observe.Logger(ctx)

	t, _ := s.nav.Start()
	s.emit(Event{Kind: EventStarted, Elapsed: s.clock.Elapsed(), To: s.nav.Cursor()})
	s.moved(ctx, t, nil, false)
	if t.State == navigator.StateFinished && !t.Moved {
		s.tl.done = true
		s.emit(Event{Kind: EventFinished, To: navigator.Finished})
	}
	if recogErr != nil {
		s.degrade(ctx, recogErr)
	}
	s.publish()

	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	for {
		select {
		case <-s.quit:
			s.tl.leave(s.clock.Elapsed())
			s.nav.Stop()
			s.publish()
			return

		case ev, ok := <-events:
			if !ok {
				events = nil
				s.listening = false
				log.Info("session: transcript ended")
				s.publish()
				continue
			}
			s.handleTranscript(ctx, ev)

		case sample, ok := <-levels:
			if !ok {
				levels = nil
				s.recording = false
				s.publish()
				continue
			}
			s.handleLevel(sample)

		case c := <-s.cmds:
			err := s.handleCommand(ctx, c)
			s.publish()
			c.reply <- err

		case <-ticker.C:
			s.publish()
		}
	}
}

// stopRequested reports whether Stop has closed quit. Input already queued
// when that happens must not move the cursor.
func (s *Session) stopRequested() bool {
	select {
	case <-s.quit:
		return true
	default:
		return false
	}
}

func (s *Session) handleTranscript(ctx context.Context, ev transcript.Event) {
	if s.stopRequested() {
		return
	}
	if ev.Err != nil {
		s.degrade(ctx, ev.Err)
		s.publish()
		return
	}
	if s.paused || s.degraded || ev.Empty() {
		return
	}
	s.metrics.RecordTranscript(ctx, ev.Final)
	if ev.Final {
		s.tl.words += len(phrase.Normalize(ev.Text))
	}
	if s.nav.State() != navigator.StateListening {
		return
	}
	if !s.match.Feed(ev) {
		return
	}

	began := time.Now()
	eval := s.match.Evaluate()
	s.metrics.EvaluationDuration.Record(ctx, time.Since(began).Seconds())
	s.lastEval = eval

	if eval.Fired != nil {
		s.fire(ctx, *eval.Fired)
	}
	s.publish()
}

// fire applies a fired candidate to the navigator.
func (s *Session) fire(ctx context.Context, c matcher.MatchCandidate) {
	s.metrics.RecordFire(ctx, c.Kind.String())
	log := observe.Logger(ctx)

	var (
		t   navigator.Transition
		err error
	)
	switch c.Kind {
	case matcher.KindConfirm:
		if s.nav.Confirmed() {
			return
		}
		t, err = s.nav.Confirm(c.Phrase.UnitIndex)
	case matcher.KindExit:
		t, err = s.nav.Next(navigator.CauseVoice)
	case matcher.KindLookahead:
		t, err = s.nav.Next(navigator.CauseLookahead)
		if err == nil && t.Moved && t.To == c.Phrase.UnitIndex {
			s.moved(ctx, t, &c, true)
			t, err = s.nav.Confirm(c.Phrase.UnitIndex)
		}
	case matcher.KindJump:
		t, err = s.nav.JumpToBlock(c.Phrase.BlockIndex, navigator.CauseVoice)
	}
	if err != nil {
		if !errors.Is(err, navigator.ErrJumpNotAllowed) {
			log.Warn("session: apply phrase", "phrase", c.Phrase.Text, "kind", c.Kind, "err", err)
		}
		return
	}

	log.Debug("session: phrase fired",
		"phrase", c.Phrase.Text,
		"kind", c.Kind,
		"confidence", c.Confidence,
		"unit", c.Phrase.UnitIndex,
	)
	if c.Kind == matcher.KindLookahead && t.Confirmed {
		s.emitConfirmed(t, c)
		return
	}
	s.moved(ctx, t, &c, true)
}

// moved records a navigator transition: visits, counts, the matcher's
// candidate set and events. counted is false for moves that are not
// advances, such as stepping back.
func (s *Session) moved(ctx context.Context, t navigator.Transition, c *matcher.MatchCandidate, counted bool) {
	if t.Confirmed {
		if c != nil {
			s.emitConfirmed(t, *c)
		}
		return
	}
	if !t.Moved {
		return
	}

	now := s.clock.Elapsed()
	if t.To == navigator.Finished {
		s.tl.leave(now)
	} else {
		s.tl.enter(t.To, now)
	}
	pos, total := s.nav.Position()
	s.tl.reached = max(s.tl.reached, min(pos, total))

	if counted && t.From != navigator.Finished {
		s.tl.advances[t.Cause.String()]++
		s.metrics.RecordAdvance(ctx, t.Cause.String())
	}

	s.match.Configure(matcher.SelectCandidates(s.plan.Phrases, s.plan.Units, t.To, s.plan.Policy.Scope()))
	s.lastEval = matcher.Evaluation{}

	ev := Event{
		Kind:    EventUnitChanged,
		Elapsed: now,
		From:    t.From,
		To:      t.To,
		Cause:   t.Cause,
		Jumped:  t.Jumped,
	}
	if c != nil {
		ev.Confidence = c.Confidence
		ev.Phrase = c.Phrase.Text
	}
	s.emit(ev)

	if t.State == navigator.StateFinished {
		s.tl.done = true
		s.emit(Event{Kind: EventFinished, Elapsed: now, From: t.From, To: t.To, Cause: t.Cause})
	}
}

func (s *Session) emitConfirmed(t navigator.Transition, c matcher.MatchCandidate) {
	s.emit(Event{
		Kind:       EventConfirmed,
		Elapsed:    s.clock.Elapsed(),
		From:       t.From,
		To:         t.To,
		Cause:      navigator.CauseVoice,
		Confidence: c.Confidence,
		Phrase:     c.Phrase.Text,
	})
}

// degrade switches the session to manual-only navigation.
func (s *Session) degrade(ctx context.Context, err error) {
	if s.degraded {
		return
	}
	s.degraded = true
	s.listening = false
	s.lastEval = matcher.Evaluation{}
	s.metrics.DegradedSessions.Add(ctx, 1)
	observe.Logger(ctx).Warn("session: recognition lost, continuing with manual navigation", "err", err)
	s.emit(Event{Kind: EventDegraded, Elapsed: s.clock.Elapsed(), To: s.nav.Cursor(), Err: err})
}

func (s *Session) handleLevel(sample recorder.LevelSample) {
	if s.paused {
		return
	}
	s.level = sample.RMS
	s.speaking = sample.Speech
	s.tl.activity = append(s.tl.activity, insight.Activity{Offset: s.clock.Elapsed(), Speech: sample.Speech})
}

func (s *Session) handleCommand(ctx context.Context, c command) error {
	if s.stopRequested() {
		return ErrStopped
	}
	var (
		t       navigator.Transition
		err     error
		counted = true
	)
	switch c.op {
	case opNext:
		t, err = s.nav.Next(navigator.CauseManual)
	case opPrevious:
		t, err = s.nav.Previous()
		counted = false
	case opJump:
		t, err = s.nav.JumpToBlock(c.block, navigator.CauseManual)
	case opPause:
		s.pause(ctx)
		return nil
	case opResume:
		s.resume(ctx)
		return nil
	}
	if err != nil {
		return err
	}
	s.moved(ctx, t, nil, counted)
	return nil
}

func (s *Session) pause(ctx context.Context) {
	if !s.clock.Pause() {
		return
	}
	s.paused = true
	if p, ok := s.rec.(Pauser); ok {
		p.Pause()
	}
	observe.Logger(ctx).Info("session paused", "elapsed", s.clock.Elapsed())
	s.emit(Event{Kind: EventPaused, Elapsed: s.clock.Elapsed(), To: s.nav.Cursor()})
}

func (s *Session) resume(ctx context.Context) {
	if !s.clock.Resume() {
		return
	}
	s.paused = false
	if p, ok := s.rec.(Pauser); ok {
		p.Resume()
	}
	// Speech from before the pause must not fire after it.
	s.match.Reset()
	s.lastEval = matcher.Evaluation{}
	observe.Logger(ctx).Info("session resumed", "elapsed", s.clock.Elapsed())
	s.emit(Event{Kind: EventResumed, Elapsed: s.clock.Elapsed(), To: s.nav.Cursor()})
}
