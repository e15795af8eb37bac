package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/ticker-ingest/internal/pipeline"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest <TICKER...>",
	Short: "Acquire, repair, and sweep tickers in one run",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := applyAcquireFlags(cmd); err != nil {
			return err
		}
		if err := cfg.Validate("ingest"); err != nil {
			return err
		}
		plan, err := pipeline.PlanFromConfig(cfg.Acquire, cfg.WriteJSON)
		if err != nil {
			return err
		}
		strict, _ := cmd.Flags().GetBool("strict")

		st := buildStages(ctx, cfg, strict)
		defer st.Close()

		p := pipeline.New(st.acquirer, st.repairer, st.sweeper, cfg.Batch.MaxConcurrentEntities)
		res, err := p.Ingest(ctx, args, plan)
		if err != nil {
			return eris.Wrap(err, "ingest")
		}

		formatLedgerSummary(os.Stdout, pipeline.Distinct(args), res.Ledgers)
		fmt.Fprintf(os.Stdout, "\nRepaired %d artifacts; sweep closed %d.\n", res.Repair.RepairedCount(), res.Sweep.ClosedCount())
		if u := res.Unresolved(); len(u) > 0 {
			fmt.Fprintf(os.Stderr, "Tickers with unresolved artifacts: %v\n", u)
		}
		return nil
	},
}

func init() {
	addAcquireFlags(ingestCmd)
	ingestCmd.Flags().Bool("strict", false, "sweep closes only records whose refetched file holds data rows")
	rootCmd.AddCommand(ingestCmd)
}
