package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/ticker-ingest/internal/ledger"
	"github.com/sells-group/ticker-ingest/internal/model"
	"github.com/sells-group/ticker-ingest/internal/provider"
	"github.com/sells-group/ticker-ingest/internal/workspace"
)

const (
	chartSource  = "Visualization (png)"
	reportSource = "Aggregated Markdown report (multiple sources)"
)

// Acquirer runs the acquisition stage: one pass over the primary provider
// producing every planned artifact plus its ledger record.
type Acquirer struct {
	ws      *workspace.Workspace
	primary provider.Primary
	rec     RunRecorder
	now     func() time.Time // injectable for testing
}

// AcquirerOption configures an Acquirer.
type AcquirerOption func(*Acquirer)

// WithAcquireRecorder logs acquisition runs to rec.
func WithAcquireRecorder(rec RunRecorder) AcquirerOption {
	return func(a *Acquirer) { a.rec = rec }
}

// WithAcquireClock sets the clock used for ledger timestamps.
func WithAcquireClock(now func() time.Time) AcquirerOption {
	return func(a *Acquirer) { a.now = now }
}

// NewAcquirer creates an acquisition stage over the primary provider.
func NewAcquirer(ws *workspace.Workspace, primary provider.Primary, opts ...AcquirerOption) *Acquirer {
	a := &Acquirer{ws: ws, primary: primary, now: time.Now}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Run fetches every artifact in plan for entity. Provider failures become
// placeholder files and failed or empty ledger records; only workspace
// write failures are returned. The ledger is saved before Run returns.
func (a *Acquirer) Run(ctx context.Context, entity string, plan Plan) (*ledger.Ledger, error) {
	entity, err := model.ValidateEntity(entity)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: acquire")
	}
	plan = plan.withDefaults()
	ws := a.ws.WithJSON(plan.WriteJSON)
	if _, err := ws.EntityDir(entity); err != nil {
		return nil, err
	}

	log := zap.L().With(zap.String("ticker", entity), zap.String("stage", StageAcquire))
	log.Info("pipeline: acquisition starting", zap.String("provider", a.primary.Name()))
	finish := startRun(ctx, a.rec, StageAcquire, entity)

	led := ledger.New(entity, a.now())
	rep := newReport(entity)

	tbl, err := emptyAsNoRows(a.primary.Profile(ctx, entity))
	if _, werr := a.record(ws, led, entity, model.ArtifactProfile, tbl, err); werr != nil {
		finish(RunFailed, werr.Error())
		return nil, werr
	}
	rep.profile(a.primary.Label(model.ArtifactProfile), a.primary.ReferenceURL(entity, model.ArtifactProfile), tbl, err)

	tbl, err = emptyAsNoRows(a.primary.PriceHistory(ctx, entity, plan.PricePeriod))
	ok, werr := a.record(ws, led, entity, model.ArtifactPrices, tbl, err)
	if werr != nil {
		finish(RunFailed, werr.Error())
		return nil, werr
	}
	charted := false
	if ok {
		charted = a.chart(ws, led, entity, plan.PricePeriod, tbl)
	}
	rep.prices(plan.PricePeriod, a.primary.Label(model.ArtifactPrices), a.primary.ReferenceURL(entity, model.ArtifactPrices), tbl, err, charted)

	rep.statementsHeader()
	for _, s := range model.StatementSpecs() {
		if !plan.Includes(s) {
			continue
		}
		tbl, err := emptyAsNoRows(a.primary.Statement(ctx, entity, s.Kind, s.Period))
		if _, werr := a.record(ws, led, entity, s.Name, tbl, err); werr != nil {
			finish(RunFailed, werr.Error())
			return nil, werr
		}
		rep.statement(s, a.primary.Label(s.Name), a.primary.ReferenceURL(entity, s.Name), tbl, err)
	}

	if err := ws.WriteFile(entity, model.ArtifactReport, []byte(rep.String())); err != nil {
		finish(RunFailed, err.Error())
		return nil, err
	}
	led.Set(model.ArtifactReport, ledger.Auxiliary(reportSource, a.now()))

	if err := ws.SaveLedger(entity, led); err != nil {
		finish(RunFailed, err.Error())
		return nil, err
	}

	unresolved := led.Unresolved()
	status := RunOK
	if len(unresolved) > 0 {
		status = RunPartial
	}
	summary := fmt.Sprintf("%d artifacts, %d unresolved", len(led.ArtifactNames()), len(unresolved))
	finish(status, summary)
	log.Info("pipeline: acquisition finished",
		zap.Int("artifacts", len(led.ArtifactNames())),
		zap.Int("unresolved", len(unresolved)),
	)
	return led, nil
}

// record writes the artifact (or its placeholder) and its ledger entry. It
// reports whether provider data was written.
func (a *Acquirer) record(ws *workspace.Workspace, led *ledger.Ledger, entity string, name model.ArtifactName, tbl model.Table, err error) (bool, error) {
	url := a.primary.ReferenceURL(entity, name)
	log := zap.L().With(zap.String("ticker", entity), zap.String("artifact", string(name)))

	switch {
	case err != nil:
		log.Warn("pipeline: primary fetch failed", zap.Error(err))
		if werr := ws.WritePlaceholder(entity, name); werr != nil {
			return false, werr
		}
		led.Set(name, ledger.Failed(err.Error(), url, a.now()))
		return false, nil
	case tbl.Empty():
		log.Info("pipeline: primary returned no data")
		if werr := ws.WritePlaceholder(entity, name); werr != nil {
			return false, werr
		}
		led.Set(name, ledger.Empty(url, a.now()))
		return false, nil
	}

	if werr := ws.WriteTable(entity, name, tbl); werr != nil {
		return false, werr
	}
	led.Set(name, ledger.Success(a.primary.Label(name), url, a.now()))
	return true, nil
}

// emptyAsNoRows folds a provider "no data" error into an empty table so it is
// recorded as a confirmed-empty result rather than a failure.
func emptyAsNoRows(tbl model.Table, err error) (model.Table, error) {
	if err != nil && provider.IsEmpty(err) {
		return model.Table{}, nil
	}
	return tbl, err
}

// chart renders the close price chart. A chart failure is logged and leaves
// no ledger entry; the price artifact itself is unaffected.
func (a *Acquirer) chart(ws *workspace.Workspace, led *ledger.Ledger, entity, period string, prices model.Table) bool {
	data, err := renderCloseChart(entity, period, prices)
	if err == nil {
		err = ws.WriteFile(entity, model.ArtifactChart, data)
	}
	if err != nil {
		zap.L().Warn("pipeline: price chart skipped", zap.String("ticker", entity), zap.Error(err))
		return false
	}
	led.Set(model.ArtifactChart, ledger.Auxiliary(chartSource, a.now()))
	return true
}
