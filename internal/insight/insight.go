// Package insight derives coarse performance observations from the timing
// data collected during a session: long silences, pacing, units the performer
// lingered on and how much navigation fell back to manual input.
//
// [Derive] is a pure function over a [Timeline]; the session assembles the
// timeline while it runs and calls Derive once when the result is finalized.
package insight

import (
	"fmt"
	"slices"
	"sort"
	"time"
)

// Kind identifies the type of an insight.
type Kind string

const (
	KindLongPause      Kind = "long_pause"
	KindNoSpeech       Kind = "no_speech"
	KindRushed         Kind = "rushed_pacing"
	KindSlow           Kind = "slow_pacing"
	KindDwell          Kind = "unit_dwell"
	KindManualFallback Kind = "manual_fallback"
	KindIncomplete     Kind = "incomplete_run"
)

// Insight is a single human-readable observation.
type Insight struct {
	Kind    Kind          `json:"kind"`
	Message string        `json:"message"`
	At      time.Duration `json:"at"`
	Span    time.Duration `json:"span,omitempty"`
	Value   float64       `json:"value,omitempty"`
	Unit    int           `json:"unit,omitempty"`
}

// String returns the message.
func (i Insight) String() string { return i.Message }

// Activity is a speech-activity sample at an offset on the session clock.
type Activity struct {
	Offset time.Duration
	Speech bool
}

// UnitVisit is one contiguous span during which a unit was on screen.
type UnitVisit struct {
	Unit  int
	Enter time.Duration
	Leave time.Duration
}

// Timeline is the timing data of one session.
type Timeline struct {
	Duration time.Duration
	Activity []Activity

	// Words is the number of final transcript words.
	Words int

	Visits []UnitVisit

	// Advances counts cursor moves by cause ("manual", "voice", ...).
	Advances map[string]int

	// Reached and Total describe how far through the script the session got.
	Reached, Total int
	Completed      bool

	// Positions maps a unit index to the 1-based position the performer
	// saw for it, skipping separators. Without it units are numbered by
	// index.
	Positions []int
}

// position returns the displayed 1-based position of unit.
func (tl Timeline) position(unit int) int {
	if unit >= 0 && unit < len(tl.Positions) && tl.Positions[unit] > 0 {
		return tl.Positions[unit]
	}
	return unit + 1
}

// Config holds the thresholds used by [Derive].
type Config struct {
	// LongPause is the minimum silence between two speech samples that is
	// reported. Default: 8s.
	LongPause time.Duration

	// RushedWPM and SlowWPM bound normal pacing. Defaults: 190 and 90.
	RushedWPM float64
	SlowWPM   float64

	// MinPacingWords and MinPacingTime gate the pacing insights. Defaults: 40
	// words and 30s of speaking time.
	MinPacingWords int
	MinPacingTime  time.Duration

	// DwellFactor and MinDwell flag units held DwellFactor times longer than
	// the median unit and at least MinDwell. Defaults: 3 and 30s.
	DwellFactor float64
	MinDwell    time.Duration
}

// DefaultConfig returns the default thresholds.
func DefaultConfig() Config {
	return Config{
		LongPause:      8 * time.Second,
		RushedWPM:      190,
		SlowWPM:        90,
		MinPacingWords: 40,
		MinPacingTime:  30 * time.Second,
		DwellFactor:    3,
		MinDwell:       30 * time.Second,
	}
}

// withDefaults fills zero fields from [DefaultConfig].
func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.LongPause <= 0 {
		c.LongPause = d.LongPause
	}
	if c.RushedWPM <= 0 {
		c.RushedWPM = d.RushedWPM
	}
	if c.SlowWPM <= 0 {
		c.SlowWPM = d.SlowWPM
	}
	if c.MinPacingWords <= 0 {
		c.MinPacingWords = d.MinPacingWords
	}
	if c.MinPacingTime <= 0 {
		c.MinPacingTime = d.MinPacingTime
	}
	if c.DwellFactor <= 0 {
		c.DwellFactor = d.DwellFactor
	}
	if c.MinDwell <= 0 {
		c.MinDwell = d.MinDwell
	}
	return c
}

// Derive returns the insights for tl ordered by offset.
func Derive(tl Timeline, cfg Config) []Insight {
	cfg = cfg.withDefaults()

	var out []Insight
	pauses, heardSpeech := longPauses(tl.Activity, cfg.LongPause)
	out = append(out, pauses...)
	if len(tl.Activity) > 0 && !heardSpeech {
		out = append(out, Insight{
			Kind:    KindNoSpeech,
			Message: "No speech activity was detected during the session.",
		})
	}
	if in, ok := pacing(tl, cfg); ok {
		out = append(out, in)
	}
	out = append(out, dwell(tl, cfg)...)
	if in, ok := manualFallback(tl.Advances); ok {
		out = append(out, in)
	}
	if !tl.Completed && tl.Total > 0 {
		out = append(out, Insight{
			Kind:    KindIncomplete,
			Message: fmt.Sprintf("Stopped at unit %d of %d.", max(tl.Reached, 1), tl.Total),
			At:      tl.Duration,
			Value:   float64(tl.Reached) / float64(tl.Total),
		})
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].At < out[j].At })
	return out
}

// longPauses reports silences of at least threshold between two speech samples.
// Silence before the first or after the last speech sample is not
// mid-session and is ignored.
func longPauses(activity []Activity, threshold time.Duration) ([]Insight, bool) {
	var (
		out        []Insight
		lastSpeech time.Duration
		heard      bool
	)
	for _, a := range activity {
		if !a.Speech {
			continue
		}
		if heard {
			if gap := a.Offset - lastSpeech; gap >= threshold {
				out = append(out, Insight{
					Kind:    KindLongPause,
					Message: fmt.Sprintf("Long pause of %s at %s.", roundSeconds(gap), clock(lastSpeech)),
					At:      lastSpeech,
					Span:    gap,
					Value:   gap.Seconds(),
				})
			}
		}
		heard = true
		lastSpeech = a.Offset
	}
	return out, heard
}

// speakingTime sums the intervals that start with a speech sample. Without
// activity data the whole session counts.
func speakingTime(tl Timeline) time.Duration {
	if len(tl.Activity) == 0 {
		return tl.Duration
	}
	var total time.Duration
	for i, a := range tl.Activity {
		if !a.Speech {
			continue
		}
		end := tl.Duration
		if i+1 < len(tl.Activity) {
			end = tl.Activity[i+1].Offset
		}
		if end > a.Offset {
			total += end - a.Offset
		}
	}
	return total
}

func pacing(tl Timeline, cfg Config) (Insight, bool) {
	speaking := speakingTime(tl)
	if tl.Words < cfg.MinPacingWords || speaking < cfg.MinPacingTime {
		return Insight{}, false
	}
	wpm := float64(tl.Words) / speaking.Minutes()
	switch {
	case wpm > cfg.RushedWPM:
		return Insight{
			Kind:    KindRushed,
			Message: fmt.Sprintf("Pacing was rushed at %.0f words per minute.", wpm),
			Value:   wpm,
		}, true
	case wpm < cfg.SlowWPM:
		return Insight{
			Kind:    KindSlow,
			Message: fmt.Sprintf("Pacing was slow at %.0f words per minute.", wpm),
			Value:   wpm,
		}, true
	}
	return Insight{}, false
}

func dwell(tl Timeline, cfg Config) []Insight {
	type agg struct {
		total time.Duration
		first time.Duration
	}
	perUnit := make(map[int]*agg)
	var order []int
	for _, v := range tl.Visits {
		a, ok := perUnit[v.Unit]
		if !ok {
			a = &agg{first: v.Enter}
			perUnit[v.Unit] = a
			order = append(order, v.Unit)
		}
		if v.Leave > v.Enter {
			a.total += v.Leave - v.Enter
		}
	}
	if len(order) < 3 {
		return nil
	}

	totals := make([]time.Duration, 0, len(order))
	for _, u := range order {
		totals = append(totals, perUnit[u].total)
	}
	slices.Sort(totals)
	median := totals[len(totals)/2]
	if median <= 0 {
		return nil
	}

	var out []Insight
	for _, u := range order {
		a := perUnit[u]
		if a.total < cfg.MinDwell || float64(a.total) < cfg.DwellFactor*float64(median) {
			continue
		}
		out = append(out, Insight{
			Kind:    KindDwell,
			Message: fmt.Sprintf("Spent %s on unit %d, %.1fx the typical unit.", roundSeconds(a.total), tl.position(u), float64(a.total)/float64(median)),
			At:      a.first,
			Span:    a.total,
			Value:   float64(a.total) / float64(median),
			Unit:    u,
		})
	}
	return out
}

func manualFallback(advances map[string]int) (Insight, bool) {
	manual := advances["manual"]
	total := 0
	for _, n := range advances {
		total += n
	}
	if total < 4 || manual*2 <= total {
		return Insight{}, false
	}
	return Insight{
		Kind:    KindManualFallback,
		Message: fmt.Sprintf("%d of %d advances were manual; consider more lenient exit phrases.", manual, total),
		Value:   float64(manual) / float64(total),
	}, true
}

func roundSeconds(d time.Duration) time.Duration {
	return d.Round(time.Second)
}

// clock formats an offset as m:ss.
func clock(d time.Duration) string {
	d = d.Round(time.Second)
	return fmt.Sprintf("%d:%02d", int(d.Minutes()), int(d.Seconds())%60)
}
