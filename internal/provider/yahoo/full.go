package yahoo

import (
	"context"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/ticker-ingest/internal/model"
	"github.com/sells-group/ticker-ingest/internal/provider"
	"github.com/sells-group/ticker-ingest/internal/workspace"
)

// FullFetcher refetches every artifact of an entity from Yahoo Finance in
// one pass. It is the last-resort tier of the sweep.
type FullFetcher struct {
	client *Client
	period string
}

var _ provider.LastResort = (*FullFetcher)(nil)

// NewFullFetcher creates a full fetcher over client. period is the price
// history lookback, "1mo" when empty.
func NewFullFetcher(client *Client, period string) *FullFetcher {
	if period == "" {
		period = "1mo"
	}
	return &FullFetcher{client: client, period: period}
}

// Name returns the provider name.
func (f *FullFetcher) Name() string { return name }

// FullFetch fetches the profile, price history and all six statements
// independently and writes whichever succeed into dir under their canonical
// artifact names. Provider failures are logged. An unusable dir or a context
// cancelled before the pass completes is returned as an error.
func (f *FullFetcher) FullFetch(ctx context.Context, entity, dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return eris.Wrapf(err, "yahoo: full fetch dir %s", dir)
	}
	log := zap.L().With(zap.String("ticker", entity), zap.String("provider", name))
	written := 0

	write := func(artifact model.ArtifactName, t model.Table, err error) error {
		switch {
		case err != nil:
			log.Warn("yahoo: full fetch artifact failed", zap.String("artifact", string(artifact)), zap.Error(err))
			return nil
		case t.Empty():
			log.Info("yahoo: full fetch artifact empty", zap.String("artifact", string(artifact)))
			return nil
		}
		if err := workspace.WriteCSV(filepath.Join(dir, string(artifact)), t); err != nil {
			return err
		}
		written++
		return nil
	}

	info, err := f.client.Info(ctx, entity)
	var profile model.Table
	if err == nil && !info.Empty() {
		profile = provider.ProfileFromInfo(entity, info)
	}
	if werr := write(model.ArtifactProfile, profile, err); werr != nil {
		return werr
	}

	prices, err := f.client.History(ctx, entity, f.period)
	if err != nil || prices.Empty() {
		if err != nil {
			log.Debug("yahoo: history failed, trying download", zap.Error(err))
		}
		prices, err = f.client.Download(ctx, entity, f.period)
	}
	if werr := write(model.ArtifactPrices, prices, err); werr != nil {
		return werr
	}

	for _, s := range model.StatementSpecs() {
		if err := ctx.Err(); err != nil {
			return eris.Wrap(err, "yahoo: full fetch interrupted")
		}
		t, err := f.client.StatementAttr(ctx, entity, s.SecondaryAttr)
		if werr := write(s.Name, t, err); werr != nil {
			return werr
		}
	}

	if err := ctx.Err(); err != nil {
		return eris.Wrap(err, "yahoo: full fetch interrupted")
	}
	log.Info("yahoo: full fetch finished", zap.Int("written", written))
	return nil
}
