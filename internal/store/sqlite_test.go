package store

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	st, err := NewSQLite(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

// stepClock returns a clock that advances one second per call.
func stepClock() func() time.Time {
	var mu sync.Mutex
	t := time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC)
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		t = t.Add(time.Second)
		return t
	}
}

func TestSQLite_CreateAndCompleteRun(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	id, err := st.CreateRun(ctx, "repair", "aapl")
	require.NoError(t, err)
	assert.Len(t, id, 36)

	run, err := st.GetRun(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "repair", run.Stage)
	assert.Equal(t, "AAPL", run.Entity)
	assert.Equal(t, StatusRunning, run.Status)
	assert.Empty(t, run.Summary)

	require.NoError(t, st.CompleteRun(ctx, id, "partial", "1 repaired, 2 unresolved"))

	run, err = st.GetRun(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "partial", run.Status)
	assert.Equal(t, "1 repaired, 2 unresolved", run.Summary)
	assert.False(t, run.UpdatedAt.Before(run.CreatedAt))
}

func TestSQLite_CompleteRun_NotFound(t *testing.T) {
	st := newTestSQLiteStore(t)
	err := st.CompleteRun(context.Background(), "missing", "ok", "")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSQLite_GetRun_NotFound(t *testing.T) {
	st := newTestSQLiteStore(t)
	_, err := st.GetRun(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSQLite_ListRuns(t *testing.T) {
	st := newTestSQLiteStore(t)
	st.now = stepClock()
	ctx := context.Background()

	seed := []struct{ stage, entity, status string }{
		{"acquire", "AAPL", "ok"},
		{"acquire", "MSFT", "partial"},
		{"repair", "MSFT", "partial"},
		{"sweep", "MSFT", "ok"},
	}
	for _, s := range seed {
		id, err := st.CreateRun(ctx, s.stage, s.entity)
		require.NoError(t, err)
		require.NoError(t, st.CompleteRun(ctx, id, s.status, ""))
	}

	all, err := st.ListRuns(ctx, RunFilter{})
	require.NoError(t, err)
	require.Len(t, all, 4)
	assert.Equal(t, "sweep", all[0].Stage, "newest first")

	tests := []struct {
		name   string
		filter RunFilter
		want   int
	}{
		{"by entity", RunFilter{Entity: "msft"}, 3},
		{"by stage", RunFilter{Stage: "acquire"}, 2},
		{"by status", RunFilter{Status: "partial"}, 2},
		{"combined", RunFilter{Stage: "acquire", Entity: "AAPL"}, 1},
		{"limit", RunFilter{Limit: 2}, 2},
		{"offset", RunFilter{Offset: 3}, 1},
		{"no match", RunFilter{Entity: "NVDA"}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runs, err := st.ListRuns(ctx, tt.filter)
			require.NoError(t, err)
			assert.Len(t, runs, tt.want)
		})
	}
}

func TestSQLite_MigrateIdempotent(t *testing.T) {
	st := newTestSQLiteStore(t)
	assert.NoError(t, st.Migrate(context.Background()))
}

func TestSQLite_ConcurrentRuns(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for _, entity := range []string{"A", "B", "C", "D"} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id, err := st.CreateRun(ctx, "acquire", entity)
			if assert.NoError(t, err) {
				assert.NoError(t, st.CompleteRun(ctx, id, "ok", ""))
			}
		}()
	}
	wg.Wait()

	runs, err := st.ListRuns(ctx, RunFilter{Status: "ok"})
	require.NoError(t, err)
	assert.Len(t, runs, 4)
}
