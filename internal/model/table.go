package model

import "sort"

// Table is the tabular payload of an artifact. Cells are kept as strings so
// tables round-trip through CSV without loss.
type Table struct {
	Columns []string   `json:"columns"`
	Rows    [][]string `json:"rows"`
}

// Empty reports whether the table carries no data rows.
func (t Table) Empty() bool {
	return len(t.Rows) == 0
}

// Len returns the number of data rows.
func (t Table) Len() int {
	return len(t.Rows)
}

// Column returns the index of the named column, or -1.
func (t Table) Column(name string) int {
	for i, c := range t.Columns {
		if c == name {
			return i
		}
	}
	return -1
}

// Value returns the cell at row i for the named column.
func (t Table) Value(i int, column string) string {
	j := t.Column(column)
	if j < 0 || i < 0 || i >= len(t.Rows) || j >= len(t.Rows[i]) {
		return ""
	}
	return t.Rows[i][j]
}

// Tail returns a table holding at most the last n rows.
func (t Table) Tail(n int) Table {
	if n >= len(t.Rows) {
		return t
	}
	return Table{Columns: t.Columns, Rows: t.Rows[len(t.Rows)-n:]}
}

// Head returns a table holding at most the first n rows.
func (t Table) Head(n int) Table {
	if n >= len(t.Rows) {
		return t
	}
	return Table{Columns: t.Columns, Rows: t.Rows[:n]}
}

// DropColumns returns a copy of t without the named columns.
func (t Table) DropColumns(names ...string) Table {
	drop := make(map[string]bool, len(names))
	for _, n := range names {
		drop[n] = true
	}
	var keep []int
	out := Table{}
	for i, c := range t.Columns {
		if !drop[c] {
			keep = append(keep, i)
			out.Columns = append(out.Columns, c)
		}
	}
	for _, row := range t.Rows {
		r := make([]string, 0, len(keep))
		for _, i := range keep {
			if i < len(row) {
				r = append(r, row[i])
			} else {
				r = append(r, "")
			}
		}
		out.Rows = append(out.Rows, r)
	}
	return out
}

// TableFromRecords builds a table from a slice of flat records. Columns are
// the union of record keys with the lead columns first (when present) and the
// rest sorted.
func TableFromRecords(records []map[string]string, lead ...string) Table {
	if len(records) == 0 {
		return Table{}
	}
	seen := make(map[string]bool)
	for _, r := range records {
		for k := range r {
			seen[k] = true
		}
	}
	var cols []string
	for _, l := range lead {
		if seen[l] {
			cols = append(cols, l)
			delete(seen, l)
		}
	}
	rest := make([]string, 0, len(seen))
	for k := range seen {
		rest = append(rest, k)
	}
	sort.Strings(rest)
	cols = append(cols, rest...)

	t := Table{Columns: cols, Rows: make([][]string, 0, len(records))}
	for _, r := range records {
		row := make([]string, len(cols))
		for i, c := range cols {
			row[i] = r[c]
		}
		t.Rows = append(t.Rows, row)
	}
	return t
}

// ProfileColumns is the schema of profile.csv.
var ProfileColumns = []string{
	"symbol", "price", "beta", "volAvg", "mktCap", "lastDiv", "range",
	"changes", "exchange", "industry", "website", "description", "ceo",
	"sector", "country", "fullTimeEmployees", "phone", "address", "city",
	"state", "zip", "dcfDiff", "dcf", "image",
}

// PriceColumns is the schema of the price history artifact.
var PriceColumns = []string{"Date", "Open", "High", "Low", "Close", "Adj Close", "Volume"}

// PlaceholderSchema returns the empty-table schema written when an artifact
// could not be fetched. Statement placeholders have no columns.
func PlaceholderSchema(name ArtifactName) Table {
	switch name {
	case ArtifactProfile:
		return Table{Columns: append([]string(nil), ProfileColumns...)}
	case ArtifactPrices:
		return Table{Columns: append([]string(nil), PriceColumns...)}
	default:
		return Table{}
	}
}
