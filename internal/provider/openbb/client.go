// Package openbb is the primary data provider, backed by the OpenBB
// Platform REST API.
package openbb

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/ticker-ingest/internal/config"
	"github.com/sells-group/ticker-ingest/internal/fetcher"
	"github.com/sells-group/ticker-ingest/internal/model"
	"github.com/sells-group/ticker-ingest/internal/provider"
)

const name = "OpenBB"

// statementLead are the columns statements start with when present.
var statementLead = []string{"period_ending", "fiscal_period", "fiscal_year"}

// response is the OBBject envelope returned by every endpoint.
type response struct {
	Results  []map[string]any `json:"results"`
	Provider string           `json:"provider"`
}

// Client talks to an OpenBB Platform API server.
type Client struct {
	cfg   config.OpenBBConfig
	fetch fetcher.Fetcher
	now   func() time.Time
}

var _ provider.Primary = (*Client)(nil)

// New creates a client from the provider config.
func New(cfg config.OpenBBConfig, f fetcher.Fetcher) *Client {
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &Client{cfg: cfg, fetch: f, now: time.Now}
}

// Name returns the provider name.
func (c *Client) Name() string { return name }

// Profile fetches the company profile.
func (c *Client) Profile(ctx context.Context, entity string) (model.Table, error) {
	q := url.Values{}
	q.Set("symbol", model.NormalizeEntity(entity))
	setProvider(q, c.cfg.ProfileProvider)

	recs, err := c.results(ctx, "/api/v1/equity/profile", q)
	if err != nil {
		return model.Table{}, provider.Wrap(name, "profile", err)
	}
	return model.TableFromRecords(recs, "symbol", "name"), nil
}

// PriceHistory fetches daily bars covering period (e.g. "1mo").
func (c *Client) PriceHistory(ctx context.Context, entity, period string) (model.Table, error) {
	start, err := provider.PeriodStart(period, c.now())
	if err != nil {
		return model.Table{}, provider.Wrap(name, "price history", err)
	}
	q := url.Values{}
	q.Set("symbol", model.NormalizeEntity(entity))
	q.Set("start_date", start.Format("2006-01-02"))
	q.Set("interval", "1d")
	setProvider(q, c.cfg.PriceProvider)

	recs, err := c.results(ctx, "/api/v1/equity/price/historical", q)
	if err != nil {
		return model.Table{}, provider.Wrap(name, "price history", err)
	}
	if len(recs) == 0 {
		return model.Table{}, nil
	}
	return provider.PriceTable(recs), nil
}

// Statement fetches one financial statement.
func (c *Client) Statement(ctx context.Context, entity string, kind model.StatementKind, period model.Period) (model.Table, error) {
	q := url.Values{}
	q.Set("symbol", model.NormalizeEntity(entity))
	q.Set("period", string(period))
	setProvider(q, c.cfg.StmtProvider)

	op := fmt.Sprintf("%s %s", kind, period)
	recs, err := c.results(ctx, "/api/v1/equity/fundamental/"+string(kind), q)
	if err != nil {
		return model.Table{}, provider.Wrap(name, op, err)
	}
	return model.TableFromRecords(recs, statementLead...), nil
}

// Label returns the provenance source of an artifact.
func (c *Client) Label(artifact model.ArtifactName) string {
	switch artifact {
	case model.ArtifactProfile:
		return "OpenBB (equity.profile)"
	case model.ArtifactPrices:
		return fmt.Sprintf("OpenBB (equity.price.historical, %s)", orDefault(c.cfg.PriceProvider, "yfinance"))
	}
	if s, ok := model.LookupStatement(artifact); ok {
		return fmt.Sprintf("OpenBB (equity.fundamental.%s, %s)", s.Kind, s.Period)
	}
	return name
}

// ReferenceURL returns the human-facing page for an artifact.
func (c *Client) ReferenceURL(entity string, artifact model.ArtifactName) string {
	sym := model.NormalizeEntity(entity)
	switch artifact {
	case model.ArtifactProfile:
		return "https://financialmodelingprep.com/api/v3/profile/" + sym
	case model.ArtifactPrices:
		return fmt.Sprintf("https://finance.yahoo.com/quote/%s/history?p=%s", sym, sym)
	}
	if s, ok := model.LookupStatement(artifact); ok {
		return s.ReferenceURL(sym)
	}
	return ""
}

func (c *Client) results(ctx context.Context, path string, q url.Values) ([]map[string]string, error) {
	if c.cfg.BaseURL == "" {
		return nil, eris.New("openbb: base url not configured")
	}
	var resp response
	rawURL := c.cfg.BaseURL + path + "?" + q.Encode()
	if err := c.fetch.GetJSON(ctx, rawURL, &resp, fetcher.WithBearer(c.cfg.Token)); err != nil {
		return nil, err
	}
	return provider.FlattenRecords(resp.Results), nil
}

func setProvider(q url.Values, p string) {
	if p != "" {
		q.Set("provider", p)
	}
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
