package export

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/ticker-ingest/internal/ledger"
	"github.com/sells-group/ticker-ingest/internal/model"
)

var at = time.Date(2024, 3, 15, 14, 0, 0, 0, time.UTC)

func sampleLedgers() []*ledger.Ledger {
	msft := ledger.New("MSFT", at)
	msft.Set(model.ArtifactProfile, ledger.Success("OpenBB (equity.profile)", "https://example.com/msft", at))
	msft.Set(model.ArtifactPrices, ledger.Failed("timeout", "https://example.com/msft/prices", at))

	aapl := ledger.New("AAPL", at)
	aapl.Set(model.ArtifactProfile, ledger.Success("FMP (profile)", "https://example.com/aapl", at))
	aapl.Set(model.ArtifactReport, ledger.Auxiliary("Aggregated Markdown report (multiple sources)", at))

	return []*ledger.Ledger{msft, nil, aapl}
}

func TestWriteProvenanceWorkbook(t *testing.T) {
	path := filepath.Join(t.TempDir(), "provenance.xlsx")
	require.NoError(t, WriteProvenanceWorkbook(path, sampleLedgers()))

	rows, err := ReadSheet(path, SheetProvenance)
	require.NoError(t, err)
	require.Len(t, rows, 5)
	assert.Equal(t, []string{"ticker", "artifact", "status", "source", "url", "fetched_at"}, rows[0])
	assert.Equal(t, []string{"AAPL", "profile.csv", "ok", "FMP (profile)", "https://example.com/aapl", "2024-03-15T14:00:00Z"}, rows[1])
	assert.Equal(t, "report.md", rows[2][1])
	assert.Equal(t, "aux", rows[2][2])
	assert.Equal(t, []string{"MSFT", "1mo_prices.csv", "error", "ERROR: timeout", "https://example.com/msft/prices", "2024-03-15T14:00:00Z"}, rows[3])

	summary, err := ReadSheet(path, SheetSummary)
	require.NoError(t, err)
	require.Len(t, summary, 3)
	assert.Equal(t, []string{"AAPL", "2024-03-15T14:00:00Z", "1", "1", "0"}, summary[1])
	assert.Equal(t, []string{"MSFT", "2024-03-15T14:00:00Z", "2", "1", "1"}, summary[2])
}

func TestWriteProvenanceWorkbook_Empty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.xlsx")
	require.NoError(t, WriteProvenanceWorkbook(path, nil))

	rows, err := ReadSheet(path, SheetProvenance)
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

func TestWriteProvenanceWorkbook_BadPath(t *testing.T) {
	err := WriteProvenanceWorkbook(filepath.Join(t.TempDir(), "missing", "x.xlsx"), sampleLedgers())
	assert.Error(t, err)
}

func TestReadSheet_Errors(t *testing.T) {
	_, err := ReadSheet(filepath.Join(t.TempDir(), "nope.xlsx"), SheetProvenance)
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "p.xlsx")
	require.NoError(t, WriteProvenanceWorkbook(path, nil))
	_, err = ReadSheet(path, "Other")
	assert.Error(t, err)
}
