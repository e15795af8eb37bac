package yahoo

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/ticker-ingest/internal/fetcher"
	"github.com/sells-group/ticker-ingest/internal/model"
	"github.com/sells-group/ticker-ingest/internal/provider"
)

type chartResponse struct {
	Chart struct {
		Result []chartResult `json:"result"`
		Error  *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

type chartResult struct {
	Meta struct {
		Symbol    string `json:"symbol"`
		GMTOffset int64  `json:"gmtoffset"`
	} `json:"meta"`
	Timestamp  []int64 `json:"timestamp"`
	Indicators struct {
		Quote []struct {
			Open   []*float64 `json:"open"`
			High   []*float64 `json:"high"`
			Low    []*float64 `json:"low"`
			Close  []*float64 `json:"close"`
			Volume []*float64 `json:"volume"`
		} `json:"quote"`
		AdjClose []struct {
			AdjClose []*float64 `json:"adjclose"`
		} `json:"adjclose"`
	} `json:"indicators"`
}

// History fetches daily bars for period from the chart endpoint.
func (c *Client) History(ctx context.Context, entity, period string) (model.Table, error) {
	sym := model.NormalizeEntity(entity)
	q := url.Values{}
	q.Set("range", period)
	q.Set("interval", "1d")
	q.Set("events", "history")
	rawURL := fmt.Sprintf("%s/v8/finance/chart/%s?%s", c.cfg.QueryURL, url.PathEscape(sym), q.Encode())

	var resp chartResponse
	if err := c.fetch.GetJSON(ctx, rawURL, &resp); err != nil {
		if fetcher.IsNotFound(err) {
			return model.Table{}, nil
		}
		return model.Table{}, provider.Wrap(name, "history", err)
	}
	if e := resp.Chart.Error; e != nil {
		return model.Table{}, provider.Wrap(name, "history", eris.Errorf("yahoo: chart %s: %s", e.Code, e.Description))
	}
	if len(resp.Chart.Result) == 0 {
		return model.Table{}, nil
	}
	return chartTable(resp.Chart.Result[0]), nil
}

func chartTable(r chartResult) model.Table {
	if len(r.Indicators.Quote) == 0 {
		return model.Table{}
	}
	q := r.Indicators.Quote[0]
	var adj []*float64
	if len(r.Indicators.AdjClose) > 0 {
		adj = r.Indicators.AdjClose[0].AdjClose
	}

	recs := make([]map[string]string, 0, len(r.Timestamp))
	for i, ts := range r.Timestamp {
		day := time.Unix(ts+r.Meta.GMTOffset, 0).UTC().Format("2006-01-02")
		recs = append(recs, map[string]string{
			"Date":      day,
			"Open":      at(q.Open, i),
			"High":      at(q.High, i),
			"Low":       at(q.Low, i),
			"Close":     at(q.Close, i),
			"Adj Close": at(adj, i),
			"Volume":    at(q.Volume, i),
		})
	}
	return provider.PriceTable(recs)
}

func at(vals []*float64, i int) string {
	if i >= len(vals) || vals[i] == nil {
		return ""
	}
	return provider.FormatValue(*vals[i])
}

// Download fetches the same bars through the CSV download endpoint.
func (c *Client) Download(ctx context.Context, entity, period string) (model.Table, error) {
	now := c.now()
	start, err := provider.PeriodStart(period, now)
	if err != nil {
		return model.Table{}, provider.Wrap(name, "download", err)
	}
	sym := model.NormalizeEntity(entity)
	q := url.Values{}
	q.Set("period1", fmt.Sprint(start.Unix()))
	q.Set("period2", fmt.Sprint(now.Unix()))
	q.Set("interval", "1d")
	q.Set("events", "history")
	rawURL := fmt.Sprintf("%s/v7/finance/download/%s?%s", c.cfg.QueryURL, url.PathEscape(sym), q.Encode())

	body, err := c.fetch.Download(ctx, rawURL)
	if err != nil {
		if fetcher.IsNotFound(err) {
			return model.Table{}, nil
		}
		return model.Table{}, provider.Wrap(name, "download", err)
	}
	defer body.Close() //nolint:errcheck

	raw, err := fetcher.ReadCSVTable(ctx, body, fetcher.CSVOptions{TrimSpace: true})
	if err != nil {
		return model.Table{}, provider.Wrap(name, "download", err)
	}

	recs := make([]map[string]string, 0, raw.Len())
	for _, row := range raw.Rows {
		rec := make(map[string]string, len(raw.Columns))
		for i, col := range raw.Columns {
			if i < len(row) && !strings.EqualFold(row[i], "null") {
				rec[col] = row[i]
			}
		}
		recs = append(recs, rec)
	}
	return provider.PriceTable(recs), nil
}
