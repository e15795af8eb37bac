// Package pipeline implements the three ingest stages: acquisition from the
// primary provider, per-artifact repair through the secondary and tertiary
// providers, and a last-resort full refetch sweep.
package pipeline

import (
	"context"
	"sort"
	"sync"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/ticker-ingest/internal/ledger"
	"github.com/sells-group/ticker-ingest/internal/model"
)

// Pipeline chains the three stages for a batch of entities.
type Pipeline struct {
	acquirer    *Acquirer
	repairer    *Repairer
	sweeper     *Sweeper
	concurrency int
}

// New creates a Pipeline. concurrency bounds how many distinct entities are
// acquired at once; values below 1 mean sequential.
func New(acquirer *Acquirer, repairer *Repairer, sweeper *Sweeper, concurrency int) *Pipeline {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Pipeline{acquirer: acquirer, repairer: repairer, sweeper: sweeper, concurrency: concurrency}
}

// IngestResult is the outcome of a full ingest.
type IngestResult struct {
	// Ledgers holds the final ledger of each entity, keyed by ticker.
	Ledgers map[string]*ledger.Ledger
	Repair  *RepairSummary
	Sweep   *SweepSummary
}

// Unresolved returns the tickers whose final ledger still has unresolved
// records.
func (r *IngestResult) Unresolved() []string {
	var out []string
	for _, entity := range sortedKeys(r.Ledgers) {
		if r.Ledgers[entity].HasUnresolved() {
			out = append(out, entity)
		}
	}
	return out
}

// AcquireAll runs acquisition for each distinct entity, at most
// p.concurrency at a time.
func (p *Pipeline) AcquireAll(ctx context.Context, entities []string, plan Plan) (map[string]*ledger.Ledger, error) {
	entities = Distinct(entities)
	var (
		mu      sync.Mutex
		ledgers = make(map[string]*ledger.Ledger, len(entities))
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.concurrency)
	for _, entity := range entities {
		g.Go(func() error {
			led, err := p.acquirer.Run(gctx, entity, plan)
			if err != nil {
				return eris.Wrapf(err, "pipeline: acquire %s", entity)
			}
			mu.Lock()
			ledgers[entity] = led
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return ledgers, err
	}
	return ledgers, nil
}

// Ingest acquires every entity, repairs the same entities, then sweeps the
// entities repair could not complete.
func (p *Pipeline) Ingest(ctx context.Context, entities []string, plan Plan) (*IngestResult, error) {
	entities = Distinct(entities)
	if len(entities) == 0 {
		return nil, eris.New("pipeline: ingest: no tickers")
	}

	if _, err := p.AcquireAll(ctx, entities, plan); err != nil {
		return nil, err
	}

	repair, err := p.repairer.Run(ctx, entities)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: repair")
	}
	result := &IngestResult{Repair: repair, Sweep: &SweepSummary{}}

	if candidates := repair.SweepCandidates(); len(candidates) > 0 {
		sweep, err := p.sweeper.Run(ctx, candidates)
		if err != nil {
			return nil, eris.Wrap(err, "pipeline: sweep")
		}
		result.Sweep = sweep
	}

	result.Ledgers = make(map[string]*ledger.Ledger, len(entities))
	for _, entity := range entities {
		led, err := p.acquirer.ws.LoadLedger(entity)
		if err != nil {
			zap.L().Warn("pipeline: reload ledger", zap.String("ticker", entity), zap.Error(err))
			continue
		}
		result.Ledgers[entity] = led
	}
	return result, nil
}

// Distinct normalizes tickers and drops blanks and duplicates, keeping the
// first occurrence order.
func Distinct(entities []string) []string {
	seen := make(map[string]bool, len(entities))
	out := make([]string, 0, len(entities))
	for _, e := range entities {
		e = model.NormalizeEntity(e)
		if e == "" || seen[e] {
			continue
		}
		seen[e] = true
		out = append(out, e)
	}
	return out
}

func sortedKeys(m map[string]*ledger.Ledger) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
