package pipeline

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/ticker-ingest/internal/ledger"
	"github.com/sells-group/ticker-ingest/internal/model"
	"github.com/sells-group/ticker-ingest/internal/provider"
	"github.com/sells-group/ticker-ingest/internal/waterfall"
	"github.com/sells-group/ticker-ingest/internal/workspace"
)

// EntityRepair is the repair outcome of one entity.
type EntityRepair struct {
	Entity     string
	Repaired   []model.ArtifactName
	Unresolved []model.ArtifactName
	// Skipped is set when the entity's ledger could not be loaded or saved.
	Skipped bool
	Reason  string
}

// RepairSummary is the outcome of a repair run.
type RepairSummary struct {
	Entities []EntityRepair
}

// SweepCandidates returns the entities that still hold unresolved records.
func (s *RepairSummary) SweepCandidates() []string {
	var out []string
	for _, e := range s.Entities {
		if !e.Skipped && len(e.Unresolved) > 0 {
			out = append(out, e.Entity)
		}
	}
	return out
}

// RepairedCount returns the number of artifacts repaired across entities.
func (s *RepairSummary) RepairedCount() int {
	n := 0
	for _, e := range s.Entities {
		n += len(e.Repaired)
	}
	return n
}

// Repairer runs the repair stage: every unresolved ledger record is retried
// against the secondary provider, then the tertiary.
type Repairer struct {
	ws          *workspace.Workspace
	secondary   provider.Secondary
	tertiary    provider.Tertiary
	exec        *waterfall.Executor
	rec         RunRecorder
	pricePeriod string
	now         func() time.Time // injectable for testing
}

// RepairerOption configures a Repairer.
type RepairerOption func(*Repairer)

// WithRepairRecorder logs repair runs to rec.
func WithRepairRecorder(rec RunRecorder) RepairerOption {
	return func(r *Repairer) { r.rec = rec }
}

// WithRepairClock sets the clock used for ledger timestamps.
func WithRepairClock(now func() time.Time) RepairerOption {
	return func(r *Repairer) { r.now = now }
}

// WithRepairPricePeriod sets the lookback of repaired price history.
func WithRepairPricePeriod(period string) RepairerOption {
	return func(r *Repairer) {
		if period != "" {
			r.pricePeriod = period
		}
	}
}

// NewRepairer creates a repair stage.
func NewRepairer(ws *workspace.Workspace, secondary provider.Secondary, tertiary provider.Tertiary, opts ...RepairerOption) *Repairer {
	r := &Repairer{
		ws:          ws,
		secondary:   secondary,
		tertiary:    tertiary,
		exec:        waterfall.NewExecutor(),
		pricePeriod: defaultPricePeriod,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run repairs the given entities, or every entity with a ledger when the
// list is empty. Per-entity problems are reported in the summary; the only
// returned error is a failure to list the workspace or a cancelled context.
func (r *Repairer) Run(ctx context.Context, entities []string) (*RepairSummary, error) {
	if len(entities) == 0 {
		all, err := r.ws.Entities()
		if err != nil {
			return nil, err
		}
		entities = all
	}

	summary := &RepairSummary{}
	for _, entity := range entities {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		summary.Entities = append(summary.Entities, r.repairEntity(ctx, model.NormalizeEntity(entity)))
	}
	zap.L().Info("pipeline: repair finished",
		zap.Int("entities", len(summary.Entities)),
		zap.Int("repaired", summary.RepairedCount()),
		zap.Strings("sweep_candidates", summary.SweepCandidates()),
	)
	return summary, nil
}

func (r *Repairer) repairEntity(ctx context.Context, entity string) EntityRepair {
	res := EntityRepair{Entity: entity}
	log := zap.L().With(zap.String("ticker", entity), zap.String("stage", StageRepair))

	led, err := r.ws.LoadLedger(entity)
	if err != nil {
		log.Warn("pipeline: ledger unavailable, skipping entity", zap.Error(err))
		res.Skipped = true
		res.Reason = err.Error()
		return res
	}

	pending := led.Unresolved()
	if len(pending) == 0 {
		log.Debug("pipeline: nothing to repair")
		return res
	}

	finish := startRun(ctx, r.rec, StageRepair, entity)
	changed := false
	for _, name := range pending {
		sources, ok := r.sources(entity, name)
		if !ok {
			log.Debug("pipeline: no repair handler", zap.String("artifact", string(name)))
			res.Unresolved = append(res.Unresolved, name)
			continue
		}

		out := r.exec.Run(ctx, entity, name, sources)
		if !out.Resolved() {
			log.Warn("pipeline: artifact still unresolved",
				zap.String("artifact", string(name)),
				zap.Int("attempts", len(out.Attempts)),
				zap.Error(out.LastError()),
			)
			res.Unresolved = append(res.Unresolved, name)
			continue
		}
		if err := r.ws.WriteTable(entity, name, out.Table); err != nil {
			log.Error("pipeline: write repaired artifact", zap.String("artifact", string(name)), zap.Error(err))
			res.Unresolved = append(res.Unresolved, name)
			continue
		}
		led.Set(name, ledger.Success(out.Winner.Label, out.URL, r.now()))
		res.Repaired = append(res.Repaired, name)
		changed = true
	}

	if changed {
		if err := r.ws.SaveLedger(entity, led); err != nil {
			log.Error("pipeline: save ledger", zap.Error(err))
			res.Skipped = true
			res.Reason = err.Error()
			res.Unresolved = append(res.Unresolved, res.Repaired...)
			res.Repaired = nil
			finish(RunFailed, err.Error())
			return res
		}
	}

	status := RunOK
	if len(res.Unresolved) > 0 {
		status = RunPartial
	}
	finish(status, fmt.Sprintf("%d repaired, %d unresolved", len(res.Repaired), len(res.Unresolved)))
	return res
}

// sources builds the escalation chain of an artifact. Unknown and auxiliary
// names have no chain.
func (r *Repairer) sources(entity string, name model.ArtifactName) ([]waterfall.Source, bool) {
	sec, ter := r.secondary, r.tertiary

	switch name {
	case model.ArtifactProfile:
		return []waterfall.Source{
			{
				Label: fmt.Sprintf("%s / %s (profile fallback)", sec.Name(), ter.Name()),
				URL:   sec.ReferenceURL(entity, name),
				Tier:  waterfall.TierSecondary,
				Fetch: func(ctx context.Context) (model.Table, error) {
					info, err := sec.Info(ctx, entity)
					if err != nil || info.Empty() {
						return model.Table{}, err
					}
					return provider.ProfileFromInfo(entity, info), nil
				},
			},
			{
				Label: ter.Name() + " (profile)",
				URL:   ter.ReferenceURL(entity, name),
				Tier:  waterfall.TierTertiary,
				Fetch: func(ctx context.Context) (model.Table, error) {
					return ter.Profile(ctx, entity)
				},
			},
		}, true

	case model.ArtifactPrices:
		return []waterfall.Source{
			{
				Label: sec.Name() + ".history",
				URL:   sec.ReferenceURL(entity, name),
				Tier:  waterfall.TierSecondary,
				Fetch: func(ctx context.Context) (model.Table, error) {
					return sec.History(ctx, entity, r.pricePeriod)
				},
			},
			{
				Label: sec.Name() + ".download",
				URL:   sec.ReferenceURL(entity, name),
				Tier:  waterfall.TierSecondary,
				Fetch: func(ctx context.Context) (model.Table, error) {
					return sec.Download(ctx, entity, r.pricePeriod)
				},
			},
			{
				Label: ter.Name() + " (historical-price-full)",
				URL:   ter.ReferenceURL(entity, name),
				Tier:  waterfall.TierTertiary,
				Fetch: func(ctx context.Context) (model.Table, error) {
					return ter.PriceHistory(ctx, entity)
				},
			},
		}, true
	}

	s, ok := model.LookupStatement(name)
	if !ok {
		return nil, false
	}
	return []waterfall.Source{
		{
			Label: sec.Name() + "." + s.SecondaryAttr,
			URL:   sec.ReferenceURL(entity, name),
			Tier:  waterfall.TierSecondary,
			Fetch: func(ctx context.Context) (model.Table, error) {
				return sec.StatementAttr(ctx, entity, s.SecondaryAttr)
			},
		},
		{
			Label: fmt.Sprintf("%s (%s, %s)", ter.Name(), s.TertiaryEndpoint, s.Period),
			URL:   ter.ReferenceURL(entity, name),
			Tier:  waterfall.TierTertiary,
			Fetch: func(ctx context.Context) (model.Table, error) {
				return ter.Statement(ctx, entity, s.TertiaryEndpoint, s.Period)
			},
		},
	}, true
}
