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
	"github.com/sells-group/ticker-ingest/internal/workspace"
)

func TestSweep_ClosesEveryUnresolvedRecord(t *testing.T) {
	ws := workspace.New(t.TempDir())
	seeded := seedLedger(t, ws, "AAPL", map[model.ArtifactName]ledger.Record{
		model.ArtifactProfile:      ok("OpenBB (equity.profile)"),
		model.ArtifactPrices:       failed("timeout"),
		model.ArtifactIncomeAnnual: ledger.Empty("", t0),
	})

	last := &mockLastResort{}
	last.On("FullFetch", mock.Anything, "AAPL", ws.Dir("AAPL")).Return(nil)

	s := NewSweeper(ws, last, WithSweepClock(fixedClock(t1)))
	summary, err := s.Run(context.Background(), []string{"AAPL"})
	require.NoError(t, err)
	last.AssertExpectations(t)

	assert.Equal(t, 2, summary.ClosedCount())
	assert.Empty(t, summary.Entities[0].Remaining)

	led, err := ws.LoadLedger("AAPL")
	require.NoError(t, err)
	assert.False(t, led.HasUnresolved())
	for _, name := range []model.ArtifactName{model.ArtifactPrices, model.ArtifactIncomeAnnual} {
		r, _ := led.Get(name)
		assert.Equal(t, "yfinance-full-fallback", r.Source, name)
		assert.Empty(t, r.SourceURL, name)
		assert.True(t, r.FetchedAt.Equal(t1), name)
	}
	want, _ := seeded.Get(model.ArtifactProfile)
	got, _ := led.Get(model.ArtifactProfile)
	assert.Equal(t, want.Source, got.Source)
	assert.Equal(t, want.SourceURL, got.SourceURL)
	assert.Equal(t, want.FetchedAtText(), got.FetchedAtText())
	assert.Equal(t, want.Status, got.Status)
}

func TestSweep_SkipsCompleteEntities(t *testing.T) {
	ws := workspace.New(t.TempDir())
	seedLedger(t, ws, "AAPL", map[model.ArtifactName]ledger.Record{
		model.ArtifactProfile: ok("OpenBB (equity.profile)"),
	})
	before := readLedgerBytes(t, ws, "AAPL")

	last := &mockLastResort{}
	summary, err := NewSweeper(ws, last).Run(context.Background(), nil)
	require.NoError(t, err)

	last.AssertNotCalled(t, "FullFetch", mock.Anything, mock.Anything, mock.Anything)
	assert.Zero(t, summary.ClosedCount())
	assert.Equal(t, before, readLedgerBytes(t, ws, "AAPL"))
}

func TestSweep_FetchErrorLeavesLedger(t *testing.T) {
	ws := workspace.New(t.TempDir())
	seedLedger(t, ws, "AAPL", map[model.ArtifactName]ledger.Record{
		model.ArtifactPrices: failed("timeout"),
	})
	before := readLedgerBytes(t, ws, "AAPL")

	last := &mockLastResort{}
	last.On("FullFetch", mock.Anything, "AAPL", mock.Anything).Return(eris.New("disk full"))
	rec := &fakeRecorder{}

	summary, err := NewSweeper(ws, last, WithSweepRecorder(rec)).Run(context.Background(), []string{"AAPL"})
	require.NoError(t, err)

	assert.Equal(t, []model.ArtifactName{model.ArtifactPrices}, summary.Entities[0].Remaining)
	assert.Contains(t, summary.Entities[0].Reason, "disk full")
	assert.Equal(t, before, readLedgerBytes(t, ws, "AAPL"))
	assert.Equal(t, RunFailed, rec.completed["sweep:AAPL"])
}

func TestSweep_CancelledDuringFetchLeavesLedger(t *testing.T) {
	ws := workspace.New(t.TempDir())
	seedLedger(t, ws, "AAPL", map[model.ArtifactName]ledger.Record{
		model.ArtifactProfile:      failed("timeout"),
		model.ArtifactIncomeAnnual: ledger.Empty("", t0),
	})
	seedLedger(t, ws, "MSFT", map[model.ArtifactName]ledger.Record{
		model.ArtifactPrices: failed("timeout"),
	})
	before := readLedgerBytes(t, ws, "AAPL")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	last := &mockLastResort{}
	last.On("FullFetch", mock.Anything, "AAPL", mock.Anything).
		Run(func(mock.Arguments) { cancel() }).
		Return(nil)
	rec := &fakeRecorder{}

	summary, err := NewSweeper(ws, last, WithSweepRecorder(rec)).Run(ctx, nil)
	require.ErrorIs(t, err, context.Canceled)

	require.Len(t, summary.Entities, 1)
	assert.Zero(t, summary.ClosedCount())
	assert.ElementsMatch(t, []model.ArtifactName{model.ArtifactProfile, model.ArtifactIncomeAnnual}, summary.Entities[0].Remaining)
	assert.Equal(t, before, readLedgerBytes(t, ws, "AAPL"))
	assert.Equal(t, RunFailed, rec.completed["sweep:AAPL"])
	last.AssertNotCalled(t, "FullFetch", mock.Anything, "MSFT", mock.Anything)
}

func TestSweep_InvalidTickerIsSkipped(t *testing.T) {
	last := &mockLastResort{}
	summary, err := NewSweeper(workspace.New(t.TempDir()), last).Run(context.Background(), []string{"../escaped"})
	require.NoError(t, err)
	assert.True(t, summary.Entities[0].Skipped)
	last.AssertNotCalled(t, "FullFetch", mock.Anything, mock.Anything, mock.Anything)
}

func TestSweep_StrictClosesOnlyFilesWithRows(t *testing.T) {
	ws := workspace.New(t.TempDir())
	seedLedger(t, ws, "AAPL", map[model.ArtifactName]ledger.Record{
		model.ArtifactPrices:        failed("timeout"),
		model.ArtifactBalanceAnnual: failed("timeout"),
	})

	last := &mockLastResort{}
	last.On("FullFetch", mock.Anything, "AAPL", mock.Anything).
		Run(func(mock.Arguments) {
			require.NoError(t, ws.WriteTable("AAPL", model.ArtifactPrices, priceTable))
		}).
		Return(nil)

	summary, err := NewSweeper(ws, last, WithStrict(true)).Run(context.Background(), []string{"AAPL"})
	require.NoError(t, err)

	assert.Equal(t, []model.ArtifactName{model.ArtifactPrices}, summary.Entities[0].Closed)
	assert.Equal(t, []model.ArtifactName{model.ArtifactBalanceAnnual}, summary.Entities[0].Remaining)

	led, err := ws.LoadLedger("AAPL")
	require.NoError(t, err)
	assert.Equal(t, []model.ArtifactName{model.ArtifactBalanceAnnual}, led.Unresolved())
}

func TestSweep_MissingLedgerIsSkipped(t *testing.T) {
	last := &mockLastResort{}
	summary, err := NewSweeper(workspace.New(t.TempDir()), last).Run(context.Background(), []string{"ZZZ"})
	require.NoError(t, err)
	assert.True(t, summary.Entities[0].Skipped)
	last.AssertNotCalled(t, "FullFetch", mock.Anything, mock.Anything, mock.Anything)
}

func TestSweep_Source(t *testing.T) {
	assert.Equal(t, "yfinance-full-fallback", NewSweeper(nil, &mockLastResort{}).Source())
}
