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

	"github.com/sells-group/ticker-ingest/internal/ledger"
	"github.com/sells-group/ticker-ingest/internal/pipeline"
)

var acquireCmd = &cobra.Command{
	Use:   "acquire <TICKER...>",
	Short: "Fetch all planned artifacts for tickers from the primary provider",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := applyAcquireFlags(cmd); err != nil {
			return err
		}
		if err := cfg.Validate("acquire"); err != nil {
			return err
		}
		plan, err := pipeline.PlanFromConfig(cfg.Acquire, cfg.WriteJSON)
		if err != nil {
			return err
		}

		st := buildStages(ctx, cfg, false)
		defer st.Close()

		p := pipeline.New(st.acquirer, nil, nil, cfg.Batch.MaxConcurrentEntities)
		ledgers, err := p.AcquireAll(ctx, args, plan)
		formatLedgerSummary(os.Stdout, pipeline.Distinct(args), ledgers)
		if err != nil {
			return eris.Wrap(err, "acquire")
		}
		return nil
	},
}

// applyAcquireFlags folds the acquisition flags into cfg.
func applyAcquireFlags(cmd *cobra.Command) error {
	flags := cmd.Flags()
	if flags.Changed("plan") {
		cfg.Acquire.PlanFile, _ = flags.GetString("plan")
	}
	if flags.Changed("json") {
		cfg.WriteJSON, _ = flags.GetBool("json")
	}
	if flags.Changed("period") {
		cfg.Acquire.PricePeriod, _ = flags.GetString("period")
	}
	if flags.Changed("concurrency") {
		n, _ := flags.GetInt("concurrency")
		if n < 1 {
			return eris.Errorf("--concurrency must be at least 1, got %d", n)
		}
		cfg.Batch.MaxConcurrentEntities = n
	}
	return nil
}

func addAcquireFlags(cmd *cobra.Command) {
	cmd.Flags().String("plan", "", "YAML acquisition plan (statements, periods, price_period)")
	cmd.Flags().Bool("json", false, "also write a JSON records file next to every CSV")
	cmd.Flags().String("period", "", "price history lookback (e.g. 5d, 1mo, 1y, ytd)")
	cmd.Flags().Int("concurrency", 0, "tickers acquired in parallel (overrides batch.max_concurrent_entities)")
}

// formatLedgerSummary writes one line per ticker with its artifact counts.
func formatLedgerSummary(out io.Writer, entities []string, ledgers map[string]*ledger.Ledger) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "TICKER\tARTIFACTS\tUNRESOLVED\tMISSING")
	for _, e := range entities {
		led, ok := ledgers[e]
		if !ok {
			_, _ = fmt.Fprintf(w, "%s\t-\t-\tnot acquired\n", e)
			continue
		}
		unresolved := led.Unresolved()
		missing := "-"
		if len(unresolved) > 0 {
			missing = joinNames(unresolved)
		}
		_, _ = fmt.Fprintf(w, "%s\t%d\t%d\t%s\n", e, len(led.ArtifactNames()), len(unresolved), missing)
	}
	_ = w.Flush()
}

func init() {
	addAcquireFlags(acquireCmd)
	rootCmd.AddCommand(acquireCmd)
}
