// Package export writes provenance ledgers to an XLSX audit workbook.
package export

import (
	"sort"
	"strconv"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/ticker-ingest/internal/ledger"
)

// Sheet names of the provenance workbook.
const (
	SheetProvenance = "Provenance"
	SheetSummary    = "Summary"
)

var (
	provenanceHeader = []string{"ticker", "artifact", "status", "source", "url", "fetched_at"}
	summaryHeader    = []string{"ticker", "generated_on", "artifacts", "ok", "unresolved"}
)

// WriteProvenanceWorkbook writes one row per ledger record, plus a per-ticker
// summary sheet, to an XLSX file at path.
func WriteProvenanceWorkbook(path string, ledgers []*ledger.Ledger) error {
	sorted := make([]*ledger.Ledger, 0, len(ledgers))
	for _, l := range ledgers {
		if l != nil {
			sorted = append(sorted, l)
		}
	}
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Ticker < sorted[j].Ticker })

	f := xlsx.NewFile()
	prov, err := f.AddSheet(SheetProvenance)
	if err != nil {
		return eris.Wrap(err, "export: add provenance sheet")
	}
	summary, err := f.AddSheet(SheetSummary)
	if err != nil {
		return eris.Wrap(err, "export: add summary sheet")
	}

	addRow(prov, provenanceHeader)
	addRow(summary, summaryHeader)
	for _, l := range sorted {
		ok := 0
		for _, name := range l.Names() {
			r, _ := l.Get(name)
			if r.Status == ledger.StatusSuccess {
				ok++
			}
			addRow(prov, []string{
				l.Ticker,
				string(name),
				r.Status.String(),
				r.Source,
				r.SourceURL,
				r.FetchedAtText(),
			})
		}
		addRow(summary, []string{
			l.Ticker,
			ledger.Timestamp(l.GeneratedOn),
			strconv.Itoa(len(l.ArtifactNames())),
			strconv.Itoa(ok),
			strconv.Itoa(len(l.Unresolved())),
		})
	}

	if err := f.Save(path); err != nil {
		return eris.Wrapf(err, "export: save %s", path)
	}
	return nil
}

// ReadSheet returns every row of the named sheet as strings.
func ReadSheet(path, name string) ([][]string, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "export: open workbook")
	}
	sheet, ok := f.Sheet[name]
	if !ok {
		return nil, eris.Errorf("export: sheet %q not found", name)
	}

	rows := make([][]string, 0, len(sheet.Rows))
	for _, row := range sheet.Rows {
		cells := make([]string, len(row.Cells))
		for j, cell := range row.Cells {
			cells[j] = cell.String()
		}
		rows = append(rows, cells)
	}
	return rows, nil
}

func addRow(sheet *xlsx.Sheet, values []string) {
	row := sheet.AddRow()
	for _, v := range values {
		row.AddCell().SetString(v)
	}
}
