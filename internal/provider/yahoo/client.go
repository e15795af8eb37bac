// Package yahoo is the secondary data provider, backed by the public Yahoo
// Finance query endpoints. It also supplies the last-resort full refetch.
package yahoo

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/PaesslerAG/jsonpath"

	"github.com/sells-group/ticker-ingest/internal/config"
	"github.com/sells-group/ticker-ingest/internal/fetcher"
	"github.com/sells-group/ticker-ingest/internal/model"
	"github.com/sells-group/ticker-ingest/internal/provider"
)

const name = "yfinance"

const summaryModules = "price,summaryProfile,summaryDetail,financialData,defaultKeyStatistics"

// infoPaths locates each profile field in a quoteSummary document. The first
// path that resolves wins.
var infoPaths = map[string][]string{
	"longName":           {"$.price.longName"},
	"shortName":          {"$.price.shortName"},
	"industry":           {"$.summaryProfile.industry"},
	"sector":             {"$.summaryProfile.sector"},
	"website":            {"$.summaryProfile.website"},
	"marketCap":          {"$.price.marketCap.raw", "$.summaryDetail.marketCap.raw"},
	"currentPrice":       {"$.financialData.currentPrice.raw"},
	"regularMarketPrice": {"$.price.regularMarketPrice.raw"},
	"beta":               {"$.summaryDetail.beta.raw", "$.defaultKeyStatistics.beta.raw"},
	"averageVolume":      {"$.summaryDetail.averageVolume.raw"},
	"dividendRate":       {"$.summaryDetail.dividendRate.raw"},
}

// Client reads Yahoo Finance.
type Client struct {
	cfg   config.YahooConfig
	fetch fetcher.Fetcher
	now   func() time.Time
}

var _ provider.Secondary = (*Client)(nil)

// New creates a client from the provider config.
func New(cfg config.YahooConfig, f fetcher.Fetcher) *Client {
	cfg.QueryURL = strings.TrimRight(cfg.QueryURL, "/")
	cfg.SummaryURL = strings.TrimRight(cfg.SummaryURL, "/")
	if cfg.SummaryURL == "" {
		cfg.SummaryURL = cfg.QueryURL
	}
	return &Client{cfg: cfg, fetch: f, now: time.Now}
}

// Name returns the provider name.
func (c *Client) Name() string { return name }

// Info fetches the quote summary of entity and flattens the profile fields.
// Unknown symbols yield an empty Info.
func (c *Client) Info(ctx context.Context, entity string) (provider.Info, error) {
	sym := model.NormalizeEntity(entity)
	rawURL := fmt.Sprintf("%s/v10/finance/quoteSummary/%s?modules=%s", c.cfg.SummaryURL, sym, summaryModules)

	var doc any
	if err := c.fetch.GetJSON(ctx, rawURL, &doc); err != nil {
		if fetcher.IsNotFound(err) {
			return provider.Info{}, nil
		}
		return nil, provider.Wrap(name, "info", err)
	}

	result, err := jsonpath.Get("$.quoteSummary.result[0]", doc)
	if err != nil || result == nil {
		return provider.Info{}, nil
	}

	info := provider.Info{}
	for field, paths := range infoPaths {
		for _, p := range paths {
			v, err := jsonpath.Get(p, result)
			if err != nil || v == nil {
				continue
			}
			if s := provider.FormatValue(v); s != "" {
				info[field] = s
				break
			}
		}
	}
	if info["longName"] == "" {
		return provider.Info{}, nil
	}
	return info, nil
}

// ReferenceURL returns the human-facing page for an artifact.
func (c *Client) ReferenceURL(entity string, artifact model.ArtifactName) string {
	sym := model.NormalizeEntity(entity)
	switch artifact {
	case model.ArtifactProfile:
		return fmt.Sprintf("https://finance.yahoo.com/quote/%s/profile", sym)
	case model.ArtifactPrices:
		return fmt.Sprintf("https://finance.yahoo.com/quote/%s/history?p=%s", sym, sym)
	}
	if s, ok := model.LookupStatement(artifact); ok {
		return s.ReferenceURL(sym)
	}
	return ""
}
