package main

import (
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/glamour"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/ticker-ingest/internal/model"
	"github.com/sells-group/ticker-ingest/internal/workspace"
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "View acquisition reports",
}

var reportShowCmd = &cobra.Command{
	Use:   "show <TICKER>",
	Short: "Render a ticker's report.md in the terminal",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ws := workspace.New(cfg.OutputDir)
		data, err := os.ReadFile(ws.Path(args[0], model.ArtifactReport))
		if err != nil {
			return eris.Wrap(err, "report show")
		}
		raw, _ := cmd.Flags().GetBool("raw")
		width, _ := cmd.Flags().GetInt("width")
		return renderReport(os.Stdout, string(data), raw, width)
	},
}

// renderReport writes markdown to out, styled for the terminal unless raw.
func renderReport(out io.Writer, markdown string, raw bool, width int) error {
	if raw {
		_, err := io.WriteString(out, markdown)
		return err
	}
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return eris.Wrap(err, "report: init renderer")
	}
	rendered, err := r.Render(markdown)
	if err != nil {
		return eris.Wrap(err, "report: render")
	}
	_, err = fmt.Fprint(out, rendered)
	return err
}

func init() {
	reportShowCmd.Flags().Bool("raw", false, "print the markdown without styling")
	reportShowCmd.Flags().Int("width", 100, "word wrap width")

	reportCmd.AddCommand(reportShowCmd)
	rootCmd.AddCommand(reportCmd)
}
