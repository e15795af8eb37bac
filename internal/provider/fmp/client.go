// Package fmp is the tertiary data provider, backed by the Financial
// Modeling Prep v3 API.
package fmp

import (
	"bytes"
	"context"
	"encoding/json"
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

const name = "FMP"

// historyPeriod is the lookback of the price history endpoint.
const historyPeriod = "1mo"

// ErrNoAPIKey is returned before any request when no key is configured.
var ErrNoAPIKey = eris.New("fmp: api key not configured")

type historyResponse struct {
	Symbol     string           `json:"symbol"`
	Historical []map[string]any `json:"historical"`
}

// Client reads Financial Modeling Prep.
type Client struct {
	cfg   config.FMPConfig
	fetch fetcher.Fetcher
	now   func() time.Time
}

var _ provider.Tertiary = (*Client)(nil)

// New creates a client from the provider config.
func New(cfg config.FMPConfig, f fetcher.Fetcher) *Client {
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &Client{cfg: cfg, fetch: f, now: time.Now}
}

// Name returns the provider name.
func (c *Client) Name() string { return name }

// Profile fetches the company profile. A response without a company name
// is reported as ErrNoData.
func (c *Client) Profile(ctx context.Context, entity string) (model.Table, error) {
	sym := model.NormalizeEntity(entity)
	var objs []map[string]any
	if err := c.get(ctx, "profile/"+url.PathEscape(sym), nil, &objs); err != nil {
		return model.Table{}, provider.Wrap(name, "profile", err)
	}
	if len(objs) == 0 || provider.FormatValue(objs[0]["companyName"]) == "" {
		return model.Table{}, provider.Wrap(name, "profile", eris.Wrapf(provider.ErrNoData, "fmp: no profile for %s", sym))
	}
	return model.TableFromRecords(provider.FlattenRecords(objs[:1]), model.ProfileColumns...), nil
}

// PriceHistory fetches one month of daily bars, oldest first.
func (c *Client) PriceHistory(ctx context.Context, entity string) (model.Table, error) {
	now := c.now()
	start, err := provider.PeriodStart(historyPeriod, now)
	if err != nil {
		return model.Table{}, provider.Wrap(name, "price history", err)
	}
	q := url.Values{}
	q.Set("from", start.Format("2006-01-02"))
	q.Set("to", now.UTC().Format("2006-01-02"))

	var resp historyResponse
	sym := model.NormalizeEntity(entity)
	if err := c.get(ctx, "historical-price-full/"+url.PathEscape(sym), q, &resp); err != nil {
		return model.Table{}, provider.Wrap(name, "price history", err)
	}
	return provider.PriceTable(provider.FlattenRecords(resp.Historical)), nil
}

// Statement fetches a statement endpoint such as "income-statement".
func (c *Client) Statement(ctx context.Context, entity, endpoint string, period model.Period) (model.Table, error) {
	q := url.Values{}
	q.Set("period", string(period))

	var objs []map[string]any
	sym := model.NormalizeEntity(entity)
	if err := c.get(ctx, endpoint+"/"+url.PathEscape(sym), q, &objs); err != nil {
		return model.Table{}, provider.Wrap(name, fmt.Sprintf("%s %s", endpoint, period), err)
	}
	return model.TableFromRecords(provider.FlattenRecords(objs), "date", "period", "symbol"), nil
}

// ReferenceURL returns the endpoint an artifact was read from, without
// credentials.
func (c *Client) ReferenceURL(entity string, artifact model.ArtifactName) string {
	sym := model.NormalizeEntity(entity)
	switch artifact {
	case model.ArtifactProfile:
		return fmt.Sprintf("%s/profile/%s", c.cfg.BaseURL, sym)
	case model.ArtifactPrices:
		return fmt.Sprintf("%s/historical-price-full/%s", c.cfg.BaseURL, sym)
	}
	if s, ok := model.LookupStatement(artifact); ok {
		return fmt.Sprintf("%s/%s/%s", c.cfg.BaseURL, s.TertiaryEndpoint, sym)
	}
	return ""
}

// get calls an endpoint and decodes the payload into v. FMP reports some
// failures as a 200 object carrying an "Error Message".
func (c *Client) get(ctx context.Context, path string, q url.Values, v any) error {
	if c.cfg.Key == "" {
		return ErrNoAPIKey
	}
	if q == nil {
		q = url.Values{}
	}
	q.Set("apikey", c.cfg.Key)
	rawURL := fmt.Sprintf("%s/%s?%s", c.cfg.BaseURL, path, q.Encode())

	var raw json.RawMessage
	if err := c.fetch.GetJSON(ctx, rawURL, &raw); err != nil {
		return err
	}
	raw = bytes.TrimSpace(raw)
	if len(raw) > 0 && raw[0] == '{' {
		var msg struct {
			Error string `json:"Error Message"`
		}
		if err := json.Unmarshal(raw, &msg); err == nil && msg.Error != "" {
			return eris.Errorf("fmp: %s", msg.Error)
		}
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return eris.Wrapf(err, "fmp: decode %s", path)
	}
	return nil
}
