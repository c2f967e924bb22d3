package commands

import (
	"errors"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/54b3r/docrag/internal/store"
)

// newRunsCmd constructs the `docrag runs` command, which lists recent
// ingestion runs from the ledger.
func newRunsCmd(a *app) *cobra.Command {
	var n int

	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List recent ingestion runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !a.settings.RunsEnabled() {
				return errors.New("runs: the run ledger is disabled (DOCRAG_RUNS_DB=disabled)")
			}
			if err := a.settings.EnsureDirs(); err != nil {
				return err
			}
			s, err := store.Open(a.settings.RunsDB)
			if err != nil {
				return fmt.Errorf("runs: %w", err)
			}
			defer s.Close()

			runs, err := s.Recent(cmd.Context(), n)
			if err != nil {
				return fmt.Errorf("runs: %w", err)
			}
			if len(runs) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No ingestion runs recorded yet.")
				return nil
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "STARTED\tSTATUS\tDOCS\tSKIPPED\tCHUNKS\tDURATION\tCOLLECTION\tERROR")
			for _, r := range runs {
				dur := "-"
				if !r.FinishedAt.IsZero() {
					dur = r.FinishedAt.Sub(r.StartedAt).Round(time.Millisecond).String()
				}
				fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%d\t%s\t%s\t%s\n",
					r.StartedAt.Local().Format(time.DateTime), r.Status,
					r.Documents, r.Skipped, r.Chunks, dur, r.Collection, r.Error)
			}
			return tw.Flush()
		},
	}

	cmd.Flags().IntVarP(&n, "limit", "n", 10, "Number of runs to show")

	return cmd
}
