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

var repairCmd = &cobra.Command{
	Use:   "repair [TICKER...]",
	Short: "Retry unresolved artifacts through the fallback providers",
	Long:  "Loads each ticker's ledger and retries every failed or empty artifact against Yahoo Finance, then Financial Modeling Prep. With no tickers, every ticker in the output directory is repaired.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := cfg.Validate("repair"); err != nil {
			return err
		}

		st := buildStages(ctx, cfg, false)
		defer st.Close()

		summary, err := st.repairer.Run(ctx, pipeline.Distinct(args))
		if err != nil {
			return eris.Wrap(err, "repair")
		}
		formatRepairSummary(os.Stdout, summary)
		return nil
	},
}

func formatRepairSummary(out io.Writer, s *pipeline.RepairSummary) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "TICKER\tREPAIRED\tUNRESOLVED\tNOTE")
	for _, e := range s.Entities {
		note := "-"
		switch {
		case e.Skipped:
			note = "skipped: " + e.Reason
		case len(e.Unresolved) > 0:
			note = "still missing: " + joinNames(e.Unresolved)
		}
		_, _ = fmt.Fprintf(w, "%s\t%d\t%d\t%s\n", e.Entity, len(e.Repaired), len(e.Unresolved), note)
	}
	_ = w.Flush()

	if c := s.SweepCandidates(); len(c) > 0 {
		_, _ = fmt.Fprintf(out, "\nSweep candidates: %v\n", c)
	}
}

func init() {
	rootCmd.AddCommand(repairCmd)
}
