package provider

import (
	"sort"
	"strings"

	"github.com/sells-group/ticker-ingest/internal/model"
)

// priceAliases maps provider field names onto the price artifact columns.
var priceAliases = map[string]string{
	"date":      "Date",
	"datetime":  "Date",
	"timestamp": "Date",
	"open":      "Open",
	"high":      "High",
	"low":       "Low",
	"close":     "Close",
	"adj close": "Adj Close",
	"adj_close": "Adj Close",
	"adjclose":  "Adj Close",
	"volume":    "Volume",
}

// PriceTable normalizes price records onto model.PriceColumns. Dividend and
// split columns are dropped, a missing adjusted close is filled from the
// close, records without a close are skipped and rows are sorted by date.
func PriceTable(records []map[string]string) model.Table {
	t := model.Table{Columns: append([]string(nil), model.PriceColumns...)}
	for _, rec := range records {
		vals := make(map[string]string, len(model.PriceColumns))
		for k, v := range rec {
			if col, ok := priceAliases[strings.ToLower(k)]; ok {
				vals[col] = v
			}
		}
		if vals["Close"] == "" {
			continue
		}
		if vals["Adj Close"] == "" {
			vals["Adj Close"] = vals["Close"]
		}
		vals["Date"] = trimDate(vals["Date"])
		row := make([]string, len(model.PriceColumns))
		for i, c := range model.PriceColumns {
			row[i] = vals[c]
		}
		t.Rows = append(t.Rows, row)
	}
	sort.SliceStable(t.Rows, func(i, j int) bool { return t.Rows[i][0] < t.Rows[j][0] })
	return t
}

// trimDate drops a midnight time component so daily bars print as dates.
func trimDate(s string) string {
	if len(s) > 10 && s[4] == '-' && strings.HasPrefix(s[10:], "T00:00:00") {
		return s[:10]
	}
	return s
}
