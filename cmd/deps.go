package main

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/ticker-ingest/internal/config"
	"github.com/sells-group/ticker-ingest/internal/fetcher"
	"github.com/sells-group/ticker-ingest/internal/pipeline"
	"github.com/sells-group/ticker-ingest/internal/provider/fmp"
	"github.com/sells-group/ticker-ingest/internal/provider/openbb"
	"github.com/sells-group/ticker-ingest/internal/provider/yahoo"
	"github.com/sells-group/ticker-ingest/internal/store"
	"github.com/sells-group/ticker-ingest/internal/workspace"
)

// stages holds the wired pipeline stages for one command invocation.
type stages struct {
	ws       *workspace.Workspace
	acquirer *pipeline.Acquirer
	repairer *pipeline.Repairer
	sweeper  *pipeline.Sweeper
	closeFn  func()
}

func (s *stages) Close() {
	if s.closeFn != nil {
		s.closeFn()
	}
}

// buildStages wires providers, the run log, and the three stages from cfg.
func buildStages(ctx context.Context, c *config.Config, strict bool) *stages {
	f := fetcher.NewHTTPFetcher(fetcher.OptionsFromConfig(c))
	ws := workspace.New(c.OutputDir, workspace.WithJSONSidecars(c.WriteJSON))

	yf := yahoo.New(c.Providers.Yahoo, f)
	rec, closeFn := initRecorder(ctx, c)

	return &stages{
		ws: ws,
		acquirer: pipeline.NewAcquirer(ws, openbb.New(c.Providers.OpenBB, f),
			pipeline.WithAcquireRecorder(rec),
		),
		repairer: pipeline.NewRepairer(ws, yf, fmp.New(c.Providers.FMP, f),
			pipeline.WithRepairRecorder(rec),
			pipeline.WithRepairPricePeriod(c.Acquire.PricePeriod),
		),
		sweeper: pipeline.NewSweeper(ws, yahoo.NewFullFetcher(yf, c.Acquire.PricePeriod),
			pipeline.WithStrict(strict || c.Sweep.Strict),
			pipeline.WithSweepRecorder(rec),
		),
		closeFn: closeFn,
	}
}

// initStore opens and migrates the run log database.
func initStore(ctx context.Context, c *config.Config) (store.Store, error) {
	if !c.Store.Enabled {
		return nil, eris.New("run log is disabled (store.enabled=false)")
	}
	st, err := store.NewSQLite(c.Store.Path)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		st.Close() //nolint:errcheck
		return nil, err
	}
	return st, nil
}

// initRecorder returns the run log as a stage recorder. A disabled or
// unavailable run log yields a nil recorder; stages run without one.
func initRecorder(ctx context.Context, c *config.Config) (pipeline.RunRecorder, func()) {
	if !c.Store.Enabled {
		return nil, func() {}
	}
	st, err := initStore(ctx, c)
	if err != nil {
		zap.L().Warn("run log unavailable, continuing without it", zap.Error(err))
		return nil, func() {}
	}
	return st, func() { st.Close() } //nolint:errcheck
}
