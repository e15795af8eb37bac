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

func TestIngest_EndToEnd(t *testing.T) {
	ws := workspace.New(t.TempDir())

	primary := &mockPrimary{}
	// AAPL: prices fail at the primary and are repaired by the secondary.
	primary.On("Profile", mock.Anything, mock.Anything).Return(profileTable, nil)
	primary.On("PriceHistory", mock.Anything, "AAPL", "1mo").Return(model.Table{}, eris.New("rate limited"))
	primary.On("PriceHistory", mock.Anything, "MSFT", "1mo").Return(priceTable, nil)
	// MSFT: annual income is missing everywhere and is closed by the sweep.
	primary.On("Statement", mock.Anything, "MSFT", model.StatementIncome, model.PeriodAnnual).
		Return(model.Table{}, eris.New("500"))
	primary.On("Statement", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(statementTable, nil)

	sec := &mockSecondary{}
	sec.On("History", mock.Anything, "AAPL", "1mo").Return(priceTable, nil)
	sec.On("StatementAttr", mock.Anything, "MSFT", "financials").Return(model.Table{}, nil)
	ter := &mockTertiary{}
	ter.On("Statement", mock.Anything, "MSFT", "income-statement", model.PeriodAnnual).Return(model.Table{}, nil)
	last := &mockLastResort{}
	last.On("FullFetch", mock.Anything, "MSFT", ws.Dir("MSFT")).Return(nil)

	p := New(
		NewAcquirer(ws, primary),
		NewRepairer(ws, sec, ter),
		NewSweeper(ws, last),
		2,
	)
	res, err := p.Ingest(context.Background(), []string{"aapl", "MSFT", "AAPL", ""}, DefaultPlan())
	require.NoError(t, err)
	sec.AssertExpectations(t)
	ter.AssertExpectations(t)
	last.AssertExpectations(t)
	last.AssertNotCalled(t, "FullFetch", mock.Anything, "AAPL", mock.Anything)
	primary.AssertNumberOfCalls(t, "Profile", 2)

	require.Len(t, res.Ledgers, 2)
	assert.Empty(t, res.Unresolved())
	assert.Equal(t, 1, res.Repair.RepairedCount())
	assert.Equal(t, 1, res.Sweep.ClosedCount())

	aapl, _ := res.Ledgers["AAPL"].Get(model.ArtifactPrices)
	assert.Equal(t, "yfinance.history", aapl.Source)
	msft, _ := res.Ledgers["MSFT"].Get(model.ArtifactIncomeAnnual)
	assert.Equal(t, "yfinance-full-fallback", msft.Source)
	assert.Equal(t, ledger.StatusSuccess, msft.Status)
}

func TestIngest_NoTickers(t *testing.T) {
	ws := workspace.New(t.TempDir())
	p := New(NewAcquirer(ws, &mockPrimary{}), NewRepairer(ws, &mockSecondary{}, &mockTertiary{}), NewSweeper(ws, &mockLastResort{}), 1)
	_, err := p.Ingest(context.Background(), []string{" ", ""}, DefaultPlan())
	assert.Error(t, err)
}

func TestAcquireAll_Concurrent(t *testing.T) {
	ws := workspace.New(t.TempDir())
	primary := &mockPrimary{}
	primary.On("Profile", mock.Anything, mock.Anything).Return(profileTable, nil)
	primary.On("PriceHistory", mock.Anything, mock.Anything, "1mo").Return(priceTable, nil)
	primary.On("Statement", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(statementTable, nil)

	p := New(NewAcquirer(ws, primary), nil, nil, 4)
	ledgers, err := p.AcquireAll(context.Background(), []string{"A", "B", "C", "D", "E"}, DefaultPlan())
	require.NoError(t, err)
	assert.Len(t, ledgers, 5)

	entities, err := ws.Entities()
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B", "C", "D", "E"}, entities)
}

func TestDistinct(t *testing.T) {
	assert.Equal(t, []string{"AAPL", "MSFT"}, Distinct([]string{" aapl", "MSFT", "", "AAPL", "msft "}))
	assert.Empty(t, Distinct(nil))
}

func TestNew_ClampsConcurrency(t *testing.T) {
	assert.Equal(t, 1, New(nil, nil, nil, 0).concurrency)
	assert.Equal(t, 3, New(nil, nil, nil, 3).concurrency)
}
