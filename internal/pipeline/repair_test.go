package pipeline

import (
	"context"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/ticker-ingest/internal/ledger"
	"github.com/sells-group/ticker-ingest/internal/model"
	"github.com/sells-group/ticker-ingest/internal/provider"
	"github.com/sells-group/ticker-ingest/internal/workspace"
)

func newTestRepairer(ws *workspace.Workspace, sec *mockSecondary, ter *mockTertiary, opts ...RepairerOption) *Repairer {
	opts = append([]RepairerOption{WithRepairClock(fixedClock(t1))}, opts...)
	return NewRepairer(ws, sec, ter, opts...)
}

func TestRepair_PricesFallBackToDownload(t *testing.T) {
	ws := workspace.New(t.TempDir())
	seedLedger(t, ws, "AAPL", map[model.ArtifactName]ledger.Record{
		model.ArtifactProfile: ok("OpenBB (equity.profile)"),
		model.ArtifactPrices:  failed("timeout"),
	})

	sec := &mockSecondary{}
	sec.On("History", mock.Anything, "AAPL", "1mo").Return(model.Table{}, eris.New("chart api down"))
	sec.On("Download", mock.Anything, "AAPL", "1mo").Return(priceTable, nil)
	ter := &mockTertiary{}

	summary, err := newTestRepairer(ws, sec, ter).Run(context.Background(), []string{"AAPL"})
	require.NoError(t, err)
	sec.AssertExpectations(t)
	ter.AssertNotCalled(t, "PriceHistory", mock.Anything, mock.Anything)

	require.Len(t, summary.Entities, 1)
	assert.Equal(t, []model.ArtifactName{model.ArtifactPrices}, summary.Entities[0].Repaired)
	assert.Empty(t, summary.SweepCandidates())

	led, err := ws.LoadLedger("AAPL")
	require.NoError(t, err)
	r, _ := led.Get(model.ArtifactPrices)
	assert.Equal(t, ledger.StatusSuccess, r.Status)
	assert.Equal(t, "yfinance.download", r.Source)
	assert.Equal(t, "https://secondary.example/AAPL/1mo_prices.csv", r.SourceURL)
	assert.True(t, r.FetchedAt.Equal(t1))

	tbl, err := ws.ReadTable("AAPL", model.ArtifactPrices)
	require.NoError(t, err)
	assert.Equal(t, priceTable, tbl)
}

func TestRepair_ProfileEscalatesToTertiary(t *testing.T) {
	ws := workspace.New(t.TempDir())
	seedLedger(t, ws, "AAPL", map[model.ArtifactName]ledger.Record{
		model.ArtifactProfile: failed("401"),
	})

	sec := &mockSecondary{}
	sec.On("Info", mock.Anything, "AAPL").Return(provider.Info{}, nil)
	ter := &mockTertiary{}
	ter.On("Profile", mock.Anything, "AAPL").Return(profileTable, nil)

	_, err := newTestRepairer(ws, sec, ter).Run(context.Background(), []string{"AAPL"})
	require.NoError(t, err)
	sec.AssertExpectations(t)
	ter.AssertExpectations(t)

	led, err := ws.LoadLedger("AAPL")
	require.NoError(t, err)
	r, _ := led.Get(model.ArtifactProfile)
	assert.Equal(t, "FMP (profile)", r.Source)
	assert.Equal(t, "https://tertiary.example/AAPL/profile.csv", r.SourceURL)
}

func TestRepair_ProfileFromSecondaryInfo(t *testing.T) {
	ws := workspace.New(t.TempDir())
	seedLedger(t, ws, "AAPL", map[model.ArtifactName]ledger.Record{
		model.ArtifactProfile: failed("401"),
	})

	sec := &mockSecondary{}
	sec.On("Info", mock.Anything, "AAPL").Return(provider.Info{"longName": "Apple Inc.", "sector": "Technology"}, nil)
	ter := &mockTertiary{}

	_, err := newTestRepairer(ws, sec, ter).Run(context.Background(), []string{"AAPL"})
	require.NoError(t, err)
	ter.AssertNotCalled(t, "Profile", mock.Anything, mock.Anything)

	led, err := ws.LoadLedger("AAPL")
	require.NoError(t, err)
	r, _ := led.Get(model.ArtifactProfile)
	assert.Equal(t, "yfinance / FMP (profile fallback)", r.Source)

	tbl, err := ws.ReadTable("AAPL", model.ArtifactProfile)
	require.NoError(t, err)
	assert.Equal(t, model.ProfileColumns, tbl.Columns)
	assert.Equal(t, "Technology", tbl.Value(0, "sector"))
}

func TestRepair_StatementExhaustedLeavesRecord(t *testing.T) {
	ws := workspace.New(t.TempDir())
	seedLedger(t, ws, "AAPL", map[model.ArtifactName]ledger.Record{
		model.ArtifactProfile:       ok("OpenBB (equity.profile)"),
		model.ArtifactBalanceAnnual: failed("schema drift"),
	})
	before := readLedgerBytes(t, ws, "AAPL")

	sec := &mockSecondary{}
	sec.On("StatementAttr", mock.Anything, "AAPL", "balance_sheet").Return(model.Table{}, nil)
	ter := &mockTertiary{}
	ter.On("Statement", mock.Anything, "AAPL", "balance-sheet-statement", model.PeriodAnnual).
		Return(model.Table{}, provider.ErrNoData)

	summary, err := newTestRepairer(ws, sec, ter).Run(context.Background(), nil)
	require.NoError(t, err)
	sec.AssertExpectations(t)
	ter.AssertExpectations(t)

	assert.Equal(t, []string{"AAPL"}, summary.SweepCandidates())
	assert.Equal(t, []model.ArtifactName{model.ArtifactBalanceAnnual}, summary.Entities[0].Unresolved)
	assert.Equal(t, before, readLedgerBytes(t, ws, "AAPL"), "ledger must not change when nothing was repaired")
}

func TestRepair_StatementFromTertiary(t *testing.T) {
	ws := workspace.New(t.TempDir())
	seedLedger(t, ws, "AAPL", map[model.ArtifactName]ledger.Record{
		model.ArtifactCashQuarter: ledger.Empty("https://primary.example/cash", t0),
	})

	sec := &mockSecondary{}
	sec.On("StatementAttr", mock.Anything, "AAPL", "quarterly_cashflow").Return(model.Table{}, eris.New("404"))
	ter := &mockTertiary{}
	ter.On("Statement", mock.Anything, "AAPL", "cash-flow-statement", model.PeriodQuarter).Return(statementTable, nil)

	_, err := newTestRepairer(ws, sec, ter).Run(context.Background(), []string{"aapl"})
	require.NoError(t, err)

	led, err := ws.LoadLedger("AAPL")
	require.NoError(t, err)
	r, _ := led.Get(model.ArtifactCashQuarter)
	assert.Equal(t, ledger.StatusSuccess, r.Status)
	assert.Equal(t, "FMP (cash-flow-statement, quarter)", r.Source)
}

func TestRepair_LeavesResolvedRecordsUntouched(t *testing.T) {
	ws := workspace.New(t.TempDir())
	seedLedger(t, ws, "AAPL", map[model.ArtifactName]ledger.Record{
		model.ArtifactProfile:      ok("OpenBB (equity.profile)"),
		model.ArtifactIncomeAnnual: failed("boom"),
		model.ArtifactChart:        ledger.Auxiliary("Visualization (png)", t0),
	})
	orig, err := ws.LoadLedger("AAPL")
	require.NoError(t, err)

	sec := &mockSecondary{}
	sec.On("StatementAttr", mock.Anything, "AAPL", "financials").Return(statementTable, nil)

	_, err = newTestRepairer(ws, sec, &mockTertiary{}).Run(context.Background(), []string{"AAPL"})
	require.NoError(t, err)
	sec.AssertNotCalled(t, "Info", mock.Anything, mock.Anything)

	led, err := ws.LoadLedger("AAPL")
	require.NoError(t, err)
	for _, name := range []model.ArtifactName{model.ArtifactProfile, model.ArtifactChart} {
		want, _ := orig.Get(name)
		got, _ := led.Get(name)
		assert.Equal(t, want.Source, got.Source, name)
		assert.True(t, want.FetchedAt.Equal(got.FetchedAt), name)
	}
	r, _ := led.Get(model.ArtifactIncomeAnnual)
	assert.Equal(t, "yfinance.financials", r.Source)
}

func TestRepair_IdempotentWhenComplete(t *testing.T) {
	ws := workspace.New(t.TempDir())
	seedLedger(t, ws, "AAPL", map[model.ArtifactName]ledger.Record{
		model.ArtifactProfile: ok("OpenBB (equity.profile)"),
		model.ArtifactPrices:  ok("yfinance.history"),
	})
	before := readLedgerBytes(t, ws, "AAPL")

	sec, ter := &mockSecondary{}, &mockTertiary{}
	rec := &fakeRecorder{}
	summary, err := newTestRepairer(ws, sec, ter, WithRepairRecorder(rec)).Run(context.Background(), []string{"AAPL"})
	require.NoError(t, err)

	assert.Empty(t, sec.Calls)
	assert.Empty(t, ter.Calls)
	assert.Empty(t, rec.started)
	assert.Zero(t, summary.RepairedCount())
	assert.Equal(t, before, readLedgerBytes(t, ws, "AAPL"))
}

func TestRepair_MissingLedgerIsSkipped(t *testing.T) {
	ws := workspace.New(t.TempDir())
	sec, ter := &mockSecondary{}, &mockTertiary{}

	summary, err := newTestRepairer(ws, sec, ter).Run(context.Background(), []string{"NOPE"})
	require.NoError(t, err)
	require.Len(t, summary.Entities, 1)
	assert.True(t, summary.Entities[0].Skipped)
	assert.NotEmpty(t, summary.Entities[0].Reason)
	assert.Empty(t, summary.SweepCandidates())
	assert.Empty(t, sec.Calls)
}

func TestRepair_InvalidTickerIsSkipped(t *testing.T) {
	ws := workspace.New(t.TempDir())
	sec, ter := &mockSecondary{}, &mockTertiary{}

	summary, err := newTestRepairer(ws, sec, ter).Run(context.Background(), []string{"../escaped"})
	require.NoError(t, err)
	require.Len(t, summary.Entities, 1)
	assert.True(t, summary.Entities[0].Skipped)
	assert.Contains(t, summary.Entities[0].Reason, "invalid ticker")
	assert.Empty(t, sec.Calls)
}

func TestRepair_UnknownNameStaysUnresolved(t *testing.T) {
	ws := workspace.New(t.TempDir())
	seedLedger(t, ws, "AAPL", map[model.ArtifactName]ledger.Record{
		"segments.csv": failed("boom"),
	})
	sec, ter := &mockSecondary{}, &mockTertiary{}

	summary, err := newTestRepairer(ws, sec, ter).Run(context.Background(), []string{"AAPL"})
	require.NoError(t, err)
	assert.Empty(t, sec.Calls)
	assert.Equal(t, []model.ArtifactName{"segments.csv"}, summary.Entities[0].Unresolved)
}

func TestRepair_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newTestRepairer(workspace.New(t.TempDir()), &mockSecondary{}, &mockTertiary{}).Run(ctx, []string{"AAPL"})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRepair_RecordsPartialRun(t *testing.T) {
	ws := workspace.New(t.TempDir())
	seedLedger(t, ws, "AAPL", map[model.ArtifactName]ledger.Record{
		model.ArtifactPrices: failed("boom"),
	})
	sec := &mockSecondary{}
	sec.On("History", mock.Anything, "AAPL", "5d").Return(model.Table{}, nil)
	sec.On("Download", mock.Anything, "AAPL", "5d").Return(model.Table{}, nil)
	ter := &mockTertiary{}
	ter.On("PriceHistory", mock.Anything, "AAPL").Return(model.Table{}, eris.New("fmp: no api key configured"))
	rec := &fakeRecorder{}

	_, err := newTestRepairer(ws, sec, ter, WithRepairRecorder(rec), WithRepairPricePeriod("5d")).
		Run(context.Background(), []string{"AAPL"})
	require.NoError(t, err)
	sec.AssertExpectations(t)
	ter.AssertExpectations(t)
	assert.Equal(t, RunPartial, rec.completed["repair:AAPL"])
}
