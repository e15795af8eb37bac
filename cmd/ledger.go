package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/ticker-ingest/internal/export"
	"github.com/sells-group/ticker-ingest/internal/ledger"
	"github.com/sells-group/ticker-ingest/internal/model"
	"github.com/sells-group/ticker-ingest/internal/workspace"
)

var ledgerCmd = &cobra.Command{
	Use:   "ledger",
	Short: "Inspect provenance ledgers",
}

// -- ledger show --

var ledgerShowCmd = &cobra.Command{
	Use:   "show <TICKER>",
	Short: "Print a ticker's provenance ledger",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ws := workspace.New(cfg.OutputDir)
		if raw, _ := cmd.Flags().GetBool("raw"); raw {
			data, err := os.ReadFile(ledger.Path(ws.Dir(args[0])))
			if err != nil {
				return eris.Wrap(err, "ledger show")
			}
			_, err = os.Stdout.Write(data)
			return err
		}

		led, err := ws.LoadLedger(args[0])
		if err != nil {
			return eris.Wrap(err, "ledger show")
		}
		formatLedger(os.Stdout, led)
		return nil
	},
}

// -- ledger export --

var ledgerExportCmd = &cobra.Command{
	Use:   "export [TICKER...]",
	Short: "Write ledgers to an XLSX audit workbook",
	RunE: func(cmd *cobra.Command, args []string) error {
		out, _ := cmd.Flags().GetString("out")
		ws := workspace.New(cfg.OutputDir)

		ledgers, err := loadLedgers(ws, args)
		if err != nil {
			return err
		}
		if len(ledgers) == 0 {
			return eris.New("ledger export: no ledgers found")
		}
		if err := export.WriteProvenanceWorkbook(out, ledgers); err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "Wrote %d ledgers to %s\n", len(ledgers), out)
		return nil
	},
}

// loadLedgers reads the ledgers of entities, or of every ticker in the
// workspace when entities is empty. Unreadable ledgers are logged and
// skipped.
func loadLedgers(ws *workspace.Workspace, entities []string) ([]*ledger.Ledger, error) {
	if len(entities) == 0 {
		all, err := ws.Entities()
		if err != nil {
			return nil, err
		}
		entities = all
	}
	var out []*ledger.Ledger
	for _, e := range entities {
		led, err := ws.LoadLedger(e)
		if err != nil {
			zap.L().Warn("ledger unavailable", zap.String("ticker", e), zap.Error(err))
			continue
		}
		out = append(out, led)
	}
	return out, nil
}

// formatLedger writes a ledger as a table, one line per artifact.
func formatLedger(out io.Writer, led *ledger.Ledger) {
	_, _ = fmt.Fprintf(out, "%s  generated %s\n\n", led.Ticker, ledger.Timestamp(led.GeneratedOn))
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ARTIFACT\tSTATUS\tSOURCE\tFETCHED")
	for _, name := range led.Names() {
		r, _ := led.Get(name)
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", name, r.Status, truncate(r.Source, 60), r.FetchedAtText())
	}
	_ = w.Flush()
}

func joinNames(names []model.ArtifactName) string {
	s := make([]string, len(names))
	for i, n := range names {
		s[i] = string(n)
	}
	return strings.Join(s, ", ")
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}

func init() {
	ledgerShowCmd.Flags().Bool("raw", false, "print metadata.json as stored")
	ledgerExportCmd.Flags().String("out", "provenance.xlsx", "output workbook path")

	ledgerCmd.AddCommand(ledgerShowCmd)
	ledgerCmd.AddCommand(ledgerExportCmd)
	rootCmd.AddCommand(ledgerCmd)
}
