package commands

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MrWong99/cuecard/internal/session"
	"github.com/MrWong99/cuecard/internal/transcript"
	"github.com/spf13/cobra"
)

var (
	rehearseCues  string
	rehearseAudio string
	rehearseMode  string
	rehearseSave  bool
)

var rehearseCmd = &cobra.Command{
	Use:   "rehearse <setlist.yaml>",
	Short: "Run a session against a scripted or typed transcript",
	Long: `Run a full session without a recognizer. The transcript comes from a
cue file (--cues) or from lines typed on stdin, and every session event is
printed as it happens.

A cue file holds one cue per line, optionally prefixed with a delay; a
leading "~" marks a partial hypothesis:

  # opener
  1.5s ~so any
  200ms so anyway
  moving on

The session ends when the set is finished, the transcript runs out or on
Ctrl+C. The recording and result are discarded unless --save is given.`,
	Example: `  cuecard rehearse friday.yaml --cues friday.cues
  cuecard rehearse friday.yaml --audio take1.wav --save`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return rehearse(ctx, cmd, args[0])
	},
}

func init() {
	rehearseCmd.Flags().StringVar(&rehearseCues, "cues", "", "cue file to replay (default: read lines from stdin)")
	rehearseCmd.Flags().StringVar(&rehearseAudio, "audio", "", `PCM or WAV file to record, "-" for stdin (default: silence)`)
	rehearseCmd.Flags().StringVar(&rehearseMode, "mode", "", "override navigation.mode (cue-card, teleprompter)")
	rehearseCmd.Flags().BoolVar(&rehearseSave, "save", false, "finalize and store the result instead of discarding it")
}

func rehearse(ctx context.Context, cmd *cobra.Command, path string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if rehearseCues == "" && rehearseAudio == stdinInput {
		return fmt.Errorf("--audio - needs --cues: stdin carries the typed transcript")
	}
	plan, err := preparePlan(path, rehearseMode)
	if err != nil {
		return err
	}

	rt, err := newRuntime(ctx, cfg)
	if err != nil {
		return err
	}
	defer rt.close(ctx)

	vadEngine, err := buildVAD(cfg, newRegistry(cfg))
	if err != nil {
		return err
	}
	b := &builder{
		cfg:   cfg,
		input: rehearseAudio,
		stdin: cmd.InOrStdin(),
		vad:   vadEngine,
		transcript: func() (session.TranscriptSource, error) {
			return rehearsalTranscript(rehearseCues, cmd.InOrStdin())
		},
	}
	mgr := session.NewManager(session.ManagerConfig{Build: b.build, Options: rt.sessionOptions()})
	if err := rt.serve(managerStatus(mgr)); err != nil {
		return err
	}

	s, err := mgr.Start(ctx, plan.Config)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "rehearsing %q: %d units, %s\n", plan.Config.Script.Title, plan.ContentUnits(), plan.Config.Mode)

	if err := follow(ctx, s, out); err != nil {
		_ = mgr.Discard(context.WithoutCancel(ctx))
		return err
	}

	stopCtx := context.WithoutCancel(ctx)
	if !rehearseSave {
		return mgr.Discard(stopCtx)
	}
	res, err := mgr.Save(stopCtx)
	if err != nil {
		return err
	}
	if res == nil {
		fmt.Fprintln(out, "nothing was recorded")
		return nil
	}
	printResult(out, res)
	return nil
}

// rehearsalTranscript replays cuesPath, or reads typed lines from stdin.
func rehearsalTranscript(cuesPath string, stdin io.Reader) (session.TranscriptSource, error) {
	if cuesPath == "" {
		return transcript.NewLineSource(stdin), nil
	}
	f, err := os.Open(cuesPath)
	if err != nil {
		return nil, fmt.Errorf("open cues: %w", err)
	}
	defer f.Close()
	cues, err := transcript.ParseCues(f)
	if err != nil {
		return nil, err
	}
	return transcript.NewScriptedSource(cues), nil
}

// followPoll is how often follow checks whether the transcript ended.
const followPoll = 100 * time.Millisecond

// follow prints events until the set is finished, the transcript ends, the
// session fails to start or ctx is cancelled.
func follow(ctx context.Context, s *session.Session, w io.Writer) error {
	plan := s.Plan()
	ticker := time.NewTicker(followPoll)
	defer ticker.Stop()

	started := false
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-s.Events():
			if !ok {
				return nil
			}
			printEvent(w, plan, ev)
			switch ev.Kind {
			case session.EventStarted:
				started = true
			case session.EventStartFailed:
				return ev.Err
			case session.EventFinished:
				return nil
			}
		case <-ticker.C:
			snap := s.Snapshot()
			if started && snap.Phase == session.PhaseRunning && !snap.Listening {
				fmt.Fprintf(w, "%s  transcript ended\n", formatClock(snap.Elapsed))
				return nil
			}
		}
	}
}

// printResult writes a short summary of a finalized session.
func printResult(w io.Writer, r *session.Result) {
	status := "incomplete"
	if r.Completed {
		status = "completed"
	}
	fmt.Fprintf(w, "\n%s: %d / %d units, %s, %s\n", r.Setlist, r.UnitsReached, r.TotalUnits, r.Duration.Round(time.Second), status)
	if r.Path != "" {
		fmt.Fprintf(w, "recording: %s (%d bytes)\n", r.Path, r.Bytes)
	}
	if len(r.Advances) > 0 {
		fmt.Fprintf(w, "advances: voice %d, manual %d, lookahead %d\n", r.Advances["voice"], r.Advances["manual"], r.Advances["lookahead"])
	}
	if r.Degraded {
		fmt.Fprintln(w, "recognition was lost during the set")
	}
	for _, in := range r.Insights {
		fmt.Fprintf(w, "  • %s\n", in.Message)
	}
	fmt.Fprintf(w, "id: %s\n", r.ID)
}
