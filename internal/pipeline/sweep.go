package pipeline

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/ticker-ingest/internal/ledger"
	"github.com/sells-group/ticker-ingest/internal/model"
	"github.com/sells-group/ticker-ingest/internal/provider"
	"github.com/sells-group/ticker-ingest/internal/workspace"
)

// EntitySweep is the sweep outcome of one entity.
type EntitySweep struct {
	Entity    string
	Closed    []model.ArtifactName
	Remaining []model.ArtifactName
	Skipped   bool
	Reason    string
}

// SweepSummary is the outcome of a sweep run.
type SweepSummary struct {
	Entities []EntitySweep
}

// ClosedCount returns the number of records closed across entities.
func (s *SweepSummary) ClosedCount() int {
	n := 0
	for _, e := range s.Entities {
		n += len(e.Closed)
	}
	return n
}

// Sweeper runs the fallback sweep: entities that still hold unresolved
// records get one full refetch from the last-resort provider.
type Sweeper struct {
	ws     *workspace.Workspace
	last   provider.LastResort
	strict bool
	rec    RunRecorder
	now    func() time.Time // injectable for testing
}

// SweeperOption configures a Sweeper.
type SweeperOption func(*Sweeper)

// WithStrict closes only records whose artifact file holds data rows after
// the refetch. By default every unresolved record is closed once the
// refetch returns without error.
func WithStrict(strict bool) SweeperOption {
	return func(s *Sweeper) { s.strict = strict }
}

// WithSweepRecorder logs sweep runs to rec.
func WithSweepRecorder(rec RunRecorder) SweeperOption {
	return func(s *Sweeper) { s.rec = rec }
}

// WithSweepClock sets the clock used for ledger timestamps.
func WithSweepClock(now func() time.Time) SweeperOption {
	return func(s *Sweeper) { s.now = now }
}

// NewSweeper creates a fallback sweep over the last-resort provider.
func NewSweeper(ws *workspace.Workspace, last provider.LastResort, opts ...SweeperOption) *Sweeper {
	s := &Sweeper{ws: ws, last: last, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Source is the ledger source recorded for records the sweep closes.
func (s *Sweeper) Source() string {
	return s.last.Name() + "-full-fallback"
}

// Run sweeps the given entities, or every entity with a ledger when the list
// is empty. A cancelled context stops the run; the entity being swept keeps
// its ledger unchanged.
func (s *Sweeper) Run(ctx context.Context, entities []string) (*SweepSummary, error) {
	if len(entities) == 0 {
		all, err := s.ws.Entities()
		if err != nil {
			return nil, err
		}
		entities = all
	}

	summary := &SweepSummary{}
	for _, entity := range entities {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		res, err := s.sweepEntity(ctx, model.NormalizeEntity(entity))
		summary.Entities = append(summary.Entities, res)
		if err != nil {
			return summary, err
		}
	}
	zap.L().Info("pipeline: sweep finished",
		zap.Int("entities", len(summary.Entities)),
		zap.Int("closed", summary.ClosedCount()),
	)
	return summary, nil
}

func (s *Sweeper) sweepEntity(ctx context.Context, entity string) (EntitySweep, error) {
	res := EntitySweep{Entity: entity}
	log := zap.L().With(zap.String("ticker", entity), zap.String("stage", StageSweep))

	led, err := s.ws.LoadLedger(entity)
	if err != nil {
		log.Warn("pipeline: ledger unavailable, skipping entity", zap.Error(err))
		res.Skipped = true
		res.Reason = err.Error()
		return res, nil
	}
	pending := led.Unresolved()
	if len(pending) == 0 {
		log.Debug("pipeline: nothing to sweep")
		return res, nil
	}

	finish := startRun(ctx, s.rec, StageSweep, entity)
	dir, err := s.ws.EntityDir(entity)
	if err == nil {
		err = s.last.FullFetch(ctx, entity, dir)
	}
	if cerr := ctx.Err(); cerr != nil {
		log.Warn("pipeline: sweep interrupted, ledger unchanged", zap.Error(cerr))
		res.Remaining = pending
		res.Reason = cerr.Error()
		finish(RunFailed, "interrupted: "+cerr.Error())
		return res, cerr
	}
	if err != nil {
		log.Warn("pipeline: full refetch failed, ledger unchanged", zap.Error(err))
		res.Remaining = pending
		res.Reason = err.Error()
		finish(RunFailed, err.Error())
		return res, nil
	}

	for _, name := range pending {
		if s.strict && !s.hasRows(entity, name) {
			res.Remaining = append(res.Remaining, name)
			continue
		}
		led.Set(name, ledger.Success(s.Source(), "", s.now()))
		res.Closed = append(res.Closed, name)
	}

	if len(res.Closed) > 0 {
		if err := s.ws.SaveLedger(entity, led); err != nil {
			log.Error("pipeline: save ledger", zap.Error(err))
			res.Skipped = true
			res.Reason = err.Error()
			res.Remaining = pending
			res.Closed = nil
			finish(RunFailed, err.Error())
			return res, nil
		}
	}

	status := RunOK
	if len(res.Remaining) > 0 {
		status = RunPartial
	}
	finish(status, fmt.Sprintf("%d closed, %d remaining", len(res.Closed), len(res.Remaining)))
	log.Info("pipeline: entity swept", zap.Int("closed", len(res.Closed)), zap.Int("remaining", len(res.Remaining)))
	return res, nil
}

func (s *Sweeper) hasRows(entity string, name model.ArtifactName) bool {
	t, err := s.ws.ReadTable(entity, name)
	return err == nil && !t.Empty()
}
