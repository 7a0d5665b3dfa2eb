package commands

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/MrWong99/cuecard/internal/session"
	"github.com/MrWong99/cuecard/internal/store"
	"github.com/spf13/cobra"
)

var (
	historyJSON    bool
	historyID      string
	historySidecar string
)

var historyCmd = &cobra.Command{
	Use:   "history [setlist]",
	Short: "List stored session results",
	Long: `List finalized sessions from the configured store, newest first.
Give a setlist title to list only its runs, --id to show one result in
full, or --sidecar to read the JSON written next to a recording.`,
	Example: `  cuecard history
  cuecard history "Friday late set"
  cuecard history --id 6f1c… --json
  cuecard history --sidecar recordings/friday-late-set-20261015-2130.wav`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		if historySidecar != "" {
			r, err := store.ReadSidecar(store.SidecarPath(historySidecar))
			if err != nil {
				return err
			}
			return showResult(out, r)
		}

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		ctx := cmd.Context()
		st, err := store.Open(ctx, cfg.Storage.Driver, cfg.Storage.DSN)
		if err != nil {
			return err
		}
		if st == nil {
			return errors.New("history needs storage.driver sqlite or postgres")
		}
		defer st.Close()

		if historyID != "" {
			r, err := st.GetResult(ctx, historyID)
			if err != nil {
				return err
			}
			return showResult(out, r)
		}

		var setlist string
		if len(args) == 1 {
			setlist = args[0]
		}
		results, err := st.ListResults(ctx, setlist)
		if err != nil {
			return err
		}
		if historyJSON {
			return writeJSON(out, results)
		}
		return writeHistory(out, results)
	},
}

func init() {
	historyCmd.Flags().BoolVar(&historyJSON, "json", false, "print JSON instead of a table")
	historyCmd.Flags().StringVar(&historyID, "id", "", "show the result with this ID")
	historyCmd.Flags().StringVar(&historySidecar, "sidecar", "", "show the sidecar of this recording")
}

func showResult(w io.Writer, r *session.Result) error {
	if historyJSON {
		return writeJSON(w, r)
	}
	printResult(w, r)
	return nil
}

func writeHistory(w io.Writer, results []*session.Result) error {
	if len(results) == 0 {
		fmt.Fprintln(w, "no results")
		return nil
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "STARTED\tSETLIST\tMODE\tREACHED\tDURATION\tINSIGHTS\tID")
	for _, r := range results {
		reached := fmt.Sprintf("%d / %d", r.UnitsReached, r.TotalUnits)
		if r.Completed {
			reached += " ✓"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%d\t%s\n",
			r.StartedAt.Local().Format("2006-01-02 15:04"),
			clip(r.Setlist, 30),
			r.Mode,
			reached,
			r.Duration.Round(time.Second),
			len(r.Insights),
			r.ID,
		)
	}
	return tw.Flush()
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
