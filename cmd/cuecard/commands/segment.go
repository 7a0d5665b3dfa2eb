package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/MrWong99/cuecard/internal/navigator"
	"github.com/MrWong99/cuecard/internal/session"
	"github.com/MrWong99/cuecard/pkg/script"
	"github.com/spf13/cobra"
)

var (
	segmentMode string
	segmentJSON bool
)

var segmentCmd = &cobra.Command{
	Use:   "segment <setlist.yaml>",
	Short: "Print the units and trigger phrases of a setlist",
	Long: `Segment a setlist the way a session would and print the resulting
units and their anchor and exit phrases.

Phrases marked "invalid" are shorter than matching.min_phrase_words and
are never matched. Phrases marked "off" were disabled in the setlist.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		plan, err := preparePlan(args[0], segmentMode)
		if err != nil {
			return err
		}
		if segmentJSON {
			return writePlanJSON(cmd.OutOrStdout(), plan)
		}
		return writePlan(cmd.OutOrStdout(), plan)
	},
}

func init() {
	segmentCmd.Flags().StringVar(&segmentMode, "mode", "", "override navigation.mode (cue-card, teleprompter)")
	segmentCmd.Flags().BoolVar(&segmentJSON, "json", false, "print JSON instead of a table")
}

// preparePlan loads a setlist and prepares it with the current config.
// A non-empty mode overrides navigation.mode.
func preparePlan(path, mode string) (*session.Plan, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	sl, err := script.LoadSetlist(path)
	if err != nil {
		return nil, err
	}
	sc := cfg.SessionConfig(sl)
	if err := applyMode(&sc, mode); err != nil {
		return nil, err
	}
	return session.Prepare(sc)
}

// applyMode overrides the navigation mode of sc when mode is set.
func applyMode(sc *session.Config, mode string) error {
	if mode == "" {
		return nil
	}
	m := navigator.Mode(mode)
	if !m.IsValid() {
		return fmt.Errorf("--mode %q is invalid; valid values: %s, %s", mode, navigator.ModeCueCard, navigator.ModeTeleprompter)
	}
	sc.Mode = m
	return nil
}

func writePlan(w io.Writer, plan *session.Plan) error {
	fmt.Fprintf(w, "%s (%s, %d units)\n\n", plan.Config.Script.Title, plan.Config.Mode, plan.ContentUnits())

	byUnit := make(map[int][]script.TriggerPhrase)
	for _, p := range plan.Phrases {
		byUnit[p.UnitIndex] = append(byUnit[p.UnitIndex], p)
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "UNIT\tBLOCK\tROLE\tPHRASE\tFLAGS")
	for _, u := range plan.Units {
		if u.Separator {
			fmt.Fprintf(tw, "%d\t%s\t\t· · ·\t\n", u.Index, u.BlockID)
			continue
		}
		fmt.Fprintf(tw, "%d\t%s\ttext\t%s\t\n", u.Index, u.BlockID, clip(u.Text, 60))
		for _, p := range byUnit[u.Index] {
			fmt.Fprintf(tw, "\t\t%s\t%q\t%s\n", p.Role, p.Text, phraseFlags(p))
		}
	}
	return tw.Flush()
}

func phraseFlags(p script.TriggerPhrase) string {
	var flags string
	add := func(s string) {
		if flags != "" {
			flags += ","
		}
		flags += s
	}
	if p.Generated {
		add("generated")
	}
	if !p.Enabled {
		add("off")
	}
	if !p.Valid {
		add("invalid")
	}
	return flags
}

// planJSON is the --json form of a prepared plan.
type planJSON struct {
	Title   string       `json:"title"`
	Mode    string       `json:"mode"`
	Units   []unitJSON   `json:"units"`
	Phrases []phraseJSON `json:"phrases"`
}

type unitJSON struct {
	Index     int    `json:"index"`
	ID        string `json:"id"`
	Block     string `json:"block"`
	Text      string `json:"text,omitempty"`
	Separator bool   `json:"separator,omitempty"`
}

type phraseJSON struct {
	Unit      int    `json:"unit"`
	Role      string `json:"role"`
	Text      string `json:"text"`
	Enabled   bool   `json:"enabled"`
	Valid     bool   `json:"valid"`
	Generated bool   `json:"generated"`
}

func writePlanJSON(w io.Writer, plan *session.Plan) error {
	out := planJSON{
		Title:   plan.Config.Script.Title,
		Mode:    string(plan.Config.Mode),
		Units:   make([]unitJSON, 0, len(plan.Units)),
		Phrases: make([]phraseJSON, 0, len(plan.Phrases)),
	}
	for _, u := range plan.Units {
		out.Units = append(out.Units, unitJSON{Index: u.Index, ID: u.ID, Block: u.BlockID, Text: u.Text, Separator: u.Separator})
	}
	for _, p := range plan.Phrases {
		out.Phrases = append(out.Phrases, phraseJSON{
			Unit:      p.UnitIndex,
			Role:      p.Role.String(),
			Text:      p.Text,
			Enabled:   p.Enabled,
			Valid:     p.Valid,
			Generated: p.Generated,
		})
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

// clip shortens s to n runes.
func clip(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
