package yahoo

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"unicode"

	"github.com/PaesslerAG/jsonpath"
	"github.com/rotisserie/eris"

	"github.com/sells-group/ticker-ingest/internal/fetcher"
	"github.com/sells-group/ticker-ingest/internal/model"
	"github.com/sells-group/ticker-ingest/internal/provider"
)

var (
	incomeFields = []string{
		"TotalRevenue", "CostOfRevenue", "GrossProfit", "OperatingExpense",
		"OperatingIncome", "PretaxIncome", "TaxProvision", "NetIncome",
		"BasicEPS", "DilutedEPS", "EBITDA",
	}
	balanceFields = []string{
		"TotalAssets", "CurrentAssets", "CashAndCashEquivalents",
		"TotalLiabilitiesNetMinorityInterest", "CurrentLiabilities",
		"TotalDebt", "StockholdersEquity", "OrdinarySharesNumber",
	}
	cashFields = []string{
		"OperatingCashFlow", "InvestingCashFlow", "FinancingCashFlow",
		"CapitalExpenditure", "FreeCashFlow", "RepurchaseOfCapitalStock",
		"CashDividendsPaid",
	}
)

// timeseriesStart is the earliest period1 the timeseries endpoint accepts.
const timeseriesStart = "493590046"

type statementAttr struct {
	prefix string
	fields []string
}

// statementAttrs maps statement attribute names onto timeseries queries.
var statementAttrs = map[string]statementAttr{
	"financials":              {"annual", incomeFields},
	"income_stmt":             {"annual", incomeFields},
	"quarterly_financials":    {"quarterly", incomeFields},
	"quarterly_income_stmt":   {"quarterly", incomeFields},
	"balance_sheet":           {"annual", balanceFields},
	"balancesheet":            {"annual", balanceFields},
	"quarterly_balance_sheet": {"quarterly", balanceFields},
	"cashflow":                {"annual", cashFields},
	"cash_flow":               {"annual", cashFields},
	"quarterly_cashflow":      {"quarterly", cashFields},
	"quarterly_cash_flow":     {"quarterly", cashFields},
}

// StatementAttr fetches a statement by attribute name. Rows are reporting
// dates, newest first, and columns are line items.
func (c *Client) StatementAttr(ctx context.Context, entity, attr string) (model.Table, error) {
	spec, ok := statementAttrs[attr]
	if !ok {
		return model.Table{}, provider.Wrap(name, attr, eris.Errorf("yahoo: unknown statement attribute %q", attr))
	}

	types := make([]string, len(spec.fields))
	for i, f := range spec.fields {
		types[i] = spec.prefix + f
	}
	sym := model.NormalizeEntity(entity)
	q := url.Values{}
	q.Set("symbol", sym)
	q.Set("type", strings.Join(types, ","))
	q.Set("period1", timeseriesStart)
	q.Set("period2", fmt.Sprint(c.now().Unix()))
	rawURL := fmt.Sprintf("%s/ws/fundamentals-timeseries/v1/finance/timeseries/%s?%s",
		c.cfg.QueryURL, url.PathEscape(sym), q.Encode())

	var doc any
	if err := c.fetch.GetJSON(ctx, rawURL, &doc); err != nil {
		if fetcher.IsNotFound(err) {
			return model.Table{}, nil
		}
		return model.Table{}, provider.Wrap(name, attr, err)
	}

	results, err := jsonpath.Get("$.timeseries.result", doc)
	if err != nil {
		return model.Table{}, nil
	}
	list, _ := results.([]any)

	// values[date][field]
	values := make(map[string]map[string]string)
	seen := make(map[string]bool)
	for _, item := range list {
		series, ok := item.(map[string]any)
		if !ok {
			continue
		}
		for _, typ := range types {
			points, ok := series[typ].([]any)
			if !ok {
				continue
			}
			field := strings.TrimPrefix(typ, spec.prefix)
			for _, p := range points {
				date, raw := pointValue(p)
				if date == "" || raw == "" {
					continue
				}
				if values[date] == nil {
					values[date] = make(map[string]string)
				}
				values[date][field] = raw
				seen[field] = true
			}
		}
	}
	return statementTable(values, spec.fields, seen), nil
}

func pointValue(p any) (string, string) {
	date, err := jsonpath.Get("$.asOfDate", p)
	if err != nil {
		return "", ""
	}
	raw, err := jsonpath.Get("$.reportedValue.raw", p)
	if err != nil {
		return "", ""
	}
	return provider.FormatValue(date), provider.FormatValue(raw)
}

func statementTable(values map[string]map[string]string, fields []string, seen map[string]bool) model.Table {
	if len(values) == 0 {
		return model.Table{}
	}
	t := model.Table{Columns: []string{"Date"}}
	var cols []string
	for _, f := range fields {
		if seen[f] {
			cols = append(cols, f)
			t.Columns = append(t.Columns, lineItem(f))
		}
	}

	dates := make([]string, 0, len(values))
	for d := range values {
		dates = append(dates, d)
	}
	sort.Sort(sort.Reverse(sort.StringSlice(dates)))

	for _, d := range dates {
		row := []string{d}
		for _, f := range cols {
			row = append(row, values[d][f])
		}
		t.Rows = append(t.Rows, row)
	}
	return t
}

// lineItem spells a CamelCase field as words, "BasicEPS" -> "Basic EPS".
func lineItem(field string) string {
	rs := []rune(field)
	var b strings.Builder
	for i, r := range rs {
		if i > 0 && unicode.IsUpper(r) {
			prevLower := unicode.IsLower(rs[i-1])
			nextLower := i+1 < len(rs) && unicode.IsLower(rs[i+1]) && unicode.IsUpper(rs[i-1])
			if prevLower || nextLower {
				b.WriteByte(' ')
			}
		}
		b.WriteRune(r)
	}
	return b.String()
}
