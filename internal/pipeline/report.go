package pipeline

import (
	"fmt"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/sells-group/ticker-ingest/internal/model"
)

const (
	reportPriceRows     = 5
	reportStatementRows = 3
)

// report accumulates the Markdown summary of one acquisition run.
type report struct {
	entity string
	b      strings.Builder
	title  cases.Caser
}

func newReport(entity string) *report {
	r := &report{entity: entity, title: cases.Title(language.English)}
	fmt.Fprintf(&r.b, "# Report for %s\n", entity)
	r.b.WriteString("*Generated via OpenBB Platform*\n\n")
	return r
}

func (r *report) profile(label, url string, t model.Table, err error) {
	r.b.WriteString("## 1) Company Profile\n\n")
	switch {
	case err != nil:
		fmt.Fprintf(&r.b, "> Error fetching profile for %s: %v\n\n", r.entity, err)
		r.b.WriteString("**Source:** ERROR occurred; see metadata.json\n\n")
	case t.Empty():
		fmt.Fprintf(&r.b, "> Profile not available or empty for %s.\n\n", r.entity)
	default:
		fmt.Fprintf(&r.b, "- Saved full profile to `%s`\n\n", model.ArtifactProfile)
		r.source(label, url)
		var fields [][]string
		for _, c := range []string{"symbol", "companyName", "name", "sector", "industry", "mktCap", "price", "website"} {
			if v := t.Value(0, c); v != "" {
				fields = append(fields, []string{c, v})
			}
		}
		if len(fields) > 0 {
			r.table(model.Table{Columns: []string{"Field", "Value"}, Rows: fields})
		}
	}
}

func (r *report) prices(period, label, url string, t model.Table, err error, charted bool) {
	span := "Last 1 Month"
	if period != defaultPricePeriod {
		span = "Last " + period
	}
	fmt.Fprintf(&r.b, "## 2) Price History (%s)\n\n", span)
	switch {
	case err != nil:
		fmt.Fprintf(&r.b, "> Error fetching %s price history for %s: %v\n\n", period, r.entity, err)
		r.b.WriteString("**Source:** ERROR occurred; see metadata.json\n\n")
	case t.Empty():
		fmt.Fprintf(&r.b, "> Price history not available or empty for %s.\n\n", r.entity)
	default:
		fmt.Fprintf(&r.b, "- Saved %s price history to `%s`\n\n", period, model.ArtifactPrices)
		r.source(label, url)
		if charted {
			fmt.Fprintf(&r.b, "- Saved price chart to `%s`\n\n", model.ArtifactChart)
		}
		fmt.Fprintf(&r.b, "Last %d rows:\n\n", reportPriceRows)
		r.table(t.Tail(reportPriceRows))
	}
}

func (r *report) statementsHeader() {
	r.b.WriteString("## 3) Financial Statements\n\n")
}

func (r *report) statement(s model.StatementSpec, label, url string, t model.Table, err error) {
	fmt.Fprintf(&r.b, "### %s (%s)\n\n", s.Label, r.title.String(string(s.Period)))
	switch {
	case err != nil:
		fmt.Fprintf(&r.b, "> %s error for %s: %v\n\n", s.Label, r.entity, err)
		r.b.WriteString("**Source:** ERROR occurred; see metadata.json\n\n")
	case t.Empty():
		fmt.Fprintf(&r.b, "> %s not available or empty for %s.\n\n", s.Label, r.entity)
	default:
		fmt.Fprintf(&r.b, "- Saved to `%s`\n\n", s.Name)
		r.source(label, url)
		fmt.Fprintf(&r.b, "First %d rows:\n\n", reportStatementRows)
		r.table(t.Head(reportStatementRows))
	}
}

func (r *report) source(label, url string) {
	if url == "" {
		fmt.Fprintf(&r.b, "**Source:** %s\n\n", label)
		return
	}
	fmt.Fprintf(&r.b, "**Source:** %s ([reference](%s))\n\n", label, url)
}

// table writes t as a GitHub-flavored Markdown table.
func (r *report) table(t model.Table) {
	if len(t.Columns) == 0 {
		return
	}
	row := func(cells []string) {
		r.b.WriteString("|")
		for i := range t.Columns {
			v := ""
			if i < len(cells) {
				v = strings.ReplaceAll(cells[i], "|", `\|`)
			}
			fmt.Fprintf(&r.b, " %s |", v)
		}
		r.b.WriteString("\n")
	}
	row(t.Columns)
	r.b.WriteString("|" + strings.Repeat("---|", len(t.Columns)) + "\n")
	for _, cells := range t.Rows {
		row(cells)
	}
	r.b.WriteString("\n")
}

func (r *report) String() string {
	return r.b.String()
}
