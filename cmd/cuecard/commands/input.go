package commands

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/MrWong99/cuecard/internal/config"
	"github.com/MrWong99/cuecard/internal/recorder"
	"github.com/MrWong99/cuecard/internal/session"
	"github.com/MrWong99/cuecard/internal/transcript"
	"github.com/MrWong99/cuecard/pkg/audio"
	"github.com/MrWong99/cuecard/pkg/provider/stt"
	"github.com/MrWong99/cuecard/pkg/provider/vad"
)

// stdinInput selects standard input as the PCM source.
const stdinInput = "-"

// recognizerBuffer is the tap buffer between recorder and recognizer.
const recognizerBuffer = 64

// openInput returns the capture source named by input: a PCM or WAV file,
// "-" for stdin, or "" for generated silence.
func openInput(cfg *config.Config, input string, stdin io.Reader) (audio.Source, error) {
	rc := cfg.Recording
	format := audio.Format{SampleRate: rc.SampleRate, Channels: rc.Channels}
	switch input {
	case "":
		return audio.NewReaderSource(silence{}, format, audio.WithRealtime(true)), nil
	case stdinInput:
		return audio.NewReaderSource(stdin, format), nil
	}
	return audio.OpenFile(input, format, audio.WithRealtime(rc.Realtime))
}

// silence is an endless stream of zero samples.
type silence struct{}

func (silence) Read(p []byte) (int, error) {
	clear(p)
	return len(p), nil
}

// builder wires capture and recognition for each session.
type builder struct {
	cfg   *config.Config
	input string
	stdin io.Reader
	vad   vad.Engine
	stt   stt.Provider

	// transcript overrides recognition with a fixed source.
	transcript func() (session.TranscriptSource, error)
}

// build implements [session.Builder].
func (b *builder) build(ctx context.Context, plan *session.Plan) (session.AudioRecorder, session.TranscriptSource, error) {
	src, err := openInput(b.cfg, b.input, b.stdin)
	if err != nil {
		return nil, nil, err
	}

	var opts []recorder.Option
	if b.vad != nil {
		opts = append(opts, recorder.WithVAD(b.vad))
	}
	rec := recorder.New(src, opts...)

	if b.transcript != nil {
		ts, err := b.transcript()
		if err != nil {
			src.Close()
			return nil, nil, err
		}
		return rec, ts, nil
	}

	if b.stt == nil {
		slog.Info("no recognizer configured, navigation is manual")
		return rec, &transcript.ManualSource{}, nil
	}

	rc := b.cfg.Recognition
	sttOpts := []transcript.STTOption{
		transcript.WithFormat(src.Format()),
		transcript.WithLanguage(rc.Language),
	}
	if rc.KeywordBoost >= 0 {
		sttOpts = append(sttOpts, transcript.WithKeywords(transcript.KeywordsFromPhrases(plan.Phrases, rc.KeywordBoost)))
	}
	frames := rec.Tap("stt", recognizerBuffer)
	return rec, transcript.NewSTTSource(b.stt, frames, sttOpts...), nil
}

// ── Event output ─────────────────────────────────────────────────────────────

// printEvent writes one line per session event.
func printEvent(w io.Writer, plan *session.Plan, ev session.Event) {
	at := formatClock(ev.Elapsed)
	switch ev.Kind {
	case session.EventUnitChanged:
		jump := ""
		if ev.Jumped {
			jump = " (jump)"
		}
		fmt.Fprintf(w, "%s  %-10s %s → %s [%s]%s", at, ev.Kind, unitLabel(ev.From), unitLabel(ev.To), ev.Cause, jump)
		if ev.Phrase != "" {
			fmt.Fprintf(w, " %q %.2f", ev.Phrase, ev.Confidence)
		}
		fmt.Fprintln(w)
		if ev.To >= 0 && ev.To < len(plan.Units) {
			fmt.Fprintf(w, "       %s\n", clip(plan.Units[ev.To].Text, 72))
		}
	case session.EventConfirmed:
		fmt.Fprintf(w, "%s  %-10s %q %.2f\n", at, ev.Kind, ev.Phrase, ev.Confidence)
	case session.EventStartFailed, session.EventDegraded:
		fmt.Fprintf(w, "%s  %-10s %v\n", at, ev.Kind, ev.Err)
	default:
		fmt.Fprintf(w, "%s  %s\n", at, ev.Kind)
	}
}

func unitLabel(i int) string {
	if i < 0 {
		return "end"
	}
	return fmt.Sprint(i + 1)
}

func formatClock(d time.Duration) string {
	d = d.Round(time.Second)
	return fmt.Sprintf("%02d:%02d", int(d.Minutes()), int(d.Seconds())%60)
}
