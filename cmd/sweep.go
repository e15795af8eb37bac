package main

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/ticker-ingest/internal/pipeline"
)

var sweepCmd = &cobra.Command{
	Use:   "sweep <TICKER...>",
	Short: "Refetch every artifact for tickers that still have unresolved records",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := cfg.Validate("sweep"); err != nil {
			return err
		}
		strict, _ := cmd.Flags().GetBool("strict")

		st := buildStages(ctx, cfg, strict)
		defer st.Close()

		summary, err := st.sweeper.Run(ctx, pipeline.Distinct(args))
		if err != nil {
			return eris.Wrap(err, "sweep")
		}
		formatSweepSummary(os.Stdout, summary)
		return nil
	},
}

func formatSweepSummary(out io.Writer, s *pipeline.SweepSummary) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "TICKER\tCLOSED\tREMAINING\tNOTE")
	for _, e := range s.Entities {
		note := "-"
		switch {
		case e.Skipped:
			note = "skipped: " + e.Reason
		case e.Reason != "":
			note = "refetch failed: " + e.Reason
		case len(e.Remaining) > 0:
			note = "still missing: " + joinNames(e.Remaining)
		}
		_, _ = fmt.Fprintf(w, "%s\t%d\t%d\t%s\n", e.Entity, len(e.Closed), len(e.Remaining), note)
	}
	_ = w.Flush()
}

func init() {
	sweepCmd.Flags().Bool("strict", false, "close only records whose refetched file holds data rows")
	rootCmd.AddCommand(sweepCmd)
}
