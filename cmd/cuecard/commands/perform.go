package commands

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"

	"github.com/MrWong99/cuecard/internal/config"
	"github.com/MrWong99/cuecard/internal/health"
	"github.com/MrWong99/cuecard/internal/resilience"
	"github.com/MrWong99/cuecard/internal/session"
	"github.com/MrWong99/cuecard/internal/tui"
	"github.com/MrWong99/cuecard/pkg/script"
	"github.com/spf13/cobra"
)

var (
	performInput   string
	performMode    string
	performManual  bool
	performLogFile string
	performTakes   int
)

var performCmd = &cobra.Command{
	Use:   "perform <setlist.yaml>",
	Short: "Perform a set with live recognition and the cue monitor",
	Long: `Start a live session: audio from --input (or recording.input) is
recorded and streamed to the configured recognizer, and the cue monitor
follows the set.

Monitor keys:
  space, →, l   next unit
  ←, h          previous unit
  1-9           jump to block
  p             pause / resume
  q, ctrl+c     stop and save
  D             stop and discard

Without recognition.stt, or with --manual, navigation is by keys only.
Logs go to --log-file while the monitor is on screen.`,
	Example: `  arecord -f S16_LE -r 16000 -c 1 -t raw | cuecard perform friday.yaml --input -
  cuecard perform friday.yaml --input /tmp/mic.fifo --takes 3`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return perform(ctx, cmd, args[0])
	},
}

func init() {
	performCmd.Flags().StringVar(&performInput, "input", "", `PCM or WAV input, "-" for stdin (default: recording.input)`)
	performCmd.Flags().StringVar(&performMode, "mode", "", "override navigation.mode (cue-card, teleprompter)")
	performCmd.Flags().BoolVar(&performManual, "manual", false, "navigate by keys only, without recognition")
	performCmd.Flags().StringVar(&performLogFile, "log-file", "cuecard.log", "file receiving logs while the monitor runs")
	performCmd.Flags().IntVar(&performTakes, "takes", 1, "number of takes to run back to back")
}

func perform(ctx context.Context, cmd *cobra.Command, path string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if performTakes < 1 {
		return fmt.Errorf("--takes must be at least 1")
	}
	input := performInput
	if input == "" {
		input = cfg.Recording.Input
	}
	if input == "" {
		return fmt.Errorf("no audio input: set --input or recording.input")
	}
	sl, err := script.LoadSetlist(path)
	if err != nil {
		return err
	}

	logFile, err := os.OpenFile(performLogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	defer logFile.Close()
	slog.SetDefault(newLoggerTo(logFile, cfg.Server.LogLevel))

	rt, err := newRuntime(ctx, cfg)
	if err != nil {
		return err
	}
	defer rt.close(ctx)

	reg := newRegistry(cfg)
	b := &builder{cfg: cfg, input: input, stdin: cmd.InOrStdin()}
	if b.vad, err = buildVAD(cfg, reg); err != nil {
		return err
	}
	var checkers []health.Checker
	if !performManual {
		stt, err := buildSTT(cfg, reg, rt.metrics)
		if err != nil {
			return err
		}
		b.stt = stt
		if fb, ok := stt.(*resilience.STTFallback); ok {
			checkers = append(checkers, health.Checker{Name: "recognition", Check: recognitionCheck(fb)})
		}
	}

	mgr := session.NewManager(session.ManagerConfig{Build: b.build, Options: rt.sessionOptions()})
	if err := rt.serve(managerStatus(mgr), checkers...); err != nil {
		return err
	}

	next := &nextConfig{}
	next.cfg.Store(cfg)
	if p := configPath(); p != "" {
		w, err := config.NewWatcher(p, next.onChange)
		if err != nil {
			slog.Warn("config watcher disabled", "err", err)
		} else {
			defer w.Stop()
		}
	}

	out := cmd.OutOrStdout()
	for take := 1; take <= performTakes; take++ {
		sc := next.cfg.Load().SessionConfig(sl)
		if err := applyMode(&sc, performMode); err != nil {
			return err
		}
		if err := runTake(ctx, mgr, sc, out); err != nil {
			return err
		}
		if ctx.Err() != nil {
			return nil
		}
	}
	return nil
}

// runTake runs one session under the monitor and saves or discards it.
func runTake(ctx context.Context, mgr *session.Manager, sc session.Config, out io.Writer) error {
	s, err := mgr.Start(ctx, sc)
	if err != nil {
		return err
	}
	title := s.Plan().Config.Script.Title
	outcome, err := tui.Run(ctx, s, title, s.Plan().Units)

	stopCtx := context.WithoutCancel(ctx)
	if err != nil {
		_ = mgr.Discard(stopCtx)
		return err
	}

	if outcome == tui.OutcomeDiscard {
		if err := mgr.Discard(stopCtx); err != nil {
			return err
		}
		fmt.Fprintf(out, "%s: take discarded\n", title)
		return nil
	}
	res, err := mgr.Save(stopCtx)
	if err != nil {
		return err
	}
	if res == nil {
		fmt.Fprintf(out, "%s: nothing was recorded\n", title)
		return nil
	}
	printResult(out, res)
	return nil
}

// nextConfig holds the config the next take starts with.
type nextConfig struct {
	cfg atomic.Pointer[config.Config]
}

func (n *nextConfig) onChange(old, new *config.Config) {
	d := config.Diff(old, new)
	if d.LogLevelChanged {
		levelVar.Set(slogLevel(d.NewLogLevel))
		slog.Info("log level changed", "level", d.NewLogLevel)
	}
	if d.MatchingChanged || d.InsightsChanged {
		slog.Info("config reloaded, applies to the next take", "matching", d.MatchingChanged, "insights", d.InsightsChanged)
	}
	if len(d.RestartRequired) > 0 {
		slog.Warn("config changes need a restart", "sections", d.RestartRequired)
	}

	// Only the live sections move forward; the rest stays as started.
	cur := *n.cfg.Load()
	cur.Server.LogLevel = new.Server.LogLevel
	cur.Matching = new.Matching
	cur.Insights = new.Insights
	n.cfg.Store(&cur)
}

// recognitionCheck fails readiness when every recognizer's circuit is open.
func recognitionCheck(fb *resilience.STTFallback) func(context.Context) error {
	return func(context.Context) error {
		states := fb.States()
		for _, st := range states {
			if st != resilience.StateOpen {
				return nil
			}
		}
		return fmt.Errorf("all %d recognizers unavailable", len(states))
	}
}
