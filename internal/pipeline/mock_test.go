package pipeline

import (
	"context"
	"sync"

	"github.com/stretchr/testify/mock"

	"github.com/sells-group/ticker-ingest/internal/model"
	"github.com/sells-group/ticker-ingest/internal/provider"
)

// --- Primary Mock ---

type mockPrimary struct {
	mock.Mock
}

func (m *mockPrimary) Name() string { return "OpenBB" }

func (m *mockPrimary) Profile(ctx context.Context, entity string) (model.Table, error) {
	args := m.Called(ctx, entity)
	return args.Get(0).(model.Table), args.Error(1)
}

func (m *mockPrimary) PriceHistory(ctx context.Context, entity, period string) (model.Table, error) {
	args := m.Called(ctx, entity, period)
	return args.Get(0).(model.Table), args.Error(1)
}

func (m *mockPrimary) Statement(ctx context.Context, entity string, kind model.StatementKind, period model.Period) (model.Table, error) {
	args := m.Called(ctx, entity, kind, period)
	return args.Get(0).(model.Table), args.Error(1)
}

func (m *mockPrimary) Label(artifact model.ArtifactName) string {
	return "OpenBB (" + string(artifact) + ")"
}

func (m *mockPrimary) ReferenceURL(entity string, artifact model.ArtifactName) string {
	return "https://primary.example/" + entity + "/" + string(artifact)
}

// --- Secondary Mock ---

type mockSecondary struct {
	mock.Mock
}

func (m *mockSecondary) Name() string { return "yfinance" }

func (m *mockSecondary) Info(ctx context.Context, entity string) (provider.Info, error) {
	args := m.Called(ctx, entity)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(provider.Info), args.Error(1)
}

func (m *mockSecondary) History(ctx context.Context, entity, period string) (model.Table, error) {
	args := m.Called(ctx, entity, period)
	return args.Get(0).(model.Table), args.Error(1)
}

func (m *mockSecondary) Download(ctx context.Context, entity, period string) (model.Table, error) {
	args := m.Called(ctx, entity, period)
	return args.Get(0).(model.Table), args.Error(1)
}

func (m *mockSecondary) StatementAttr(ctx context.Context, entity, attr string) (model.Table, error) {
	args := m.Called(ctx, entity, attr)
	return args.Get(0).(model.Table), args.Error(1)
}

func (m *mockSecondary) ReferenceURL(entity string, artifact model.ArtifactName) string {
	return "https://secondary.example/" + entity + "/" + string(artifact)
}

// --- Tertiary Mock ---

type mockTertiary struct {
	mock.Mock
}

func (m *mockTertiary) Name() string { return "FMP" }

func (m *mockTertiary) Profile(ctx context.Context, entity string) (model.Table, error) {
	args := m.Called(ctx, entity)
	return args.Get(0).(model.Table), args.Error(1)
}

func (m *mockTertiary) PriceHistory(ctx context.Context, entity string) (model.Table, error) {
	args := m.Called(ctx, entity)
	return args.Get(0).(model.Table), args.Error(1)
}

func (m *mockTertiary) Statement(ctx context.Context, entity, endpoint string, period model.Period) (model.Table, error) {
	args := m.Called(ctx, entity, endpoint, period)
	return args.Get(0).(model.Table), args.Error(1)
}

func (m *mockTertiary) ReferenceURL(entity string, artifact model.ArtifactName) string {
	return "https://tertiary.example/" + entity + "/" + string(artifact)
}

// --- LastResort Mock ---

type mockLastResort struct {
	mock.Mock
}

func (m *mockLastResort) Name() string { return "yfinance" }

func (m *mockLastResort) FullFetch(ctx context.Context, entity, dir string) error {
	args := m.Called(ctx, entity, dir)
	return args.Error(0)
}

// --- RunRecorder Fake ---

type fakeRecorder struct {
	mu        sync.Mutex
	started   []string
	completed map[string]string
	failStart bool
}

func (f *fakeRecorder) CreateRun(_ context.Context, stage, entity string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failStart {
		return "", context.DeadlineExceeded
	}
	f.started = append(f.started, stage+":"+entity)
	return stage + ":" + entity, nil
}

func (f *fakeRecorder) CompleteRun(_ context.Context, id, status, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.completed == nil {
		f.completed = make(map[string]string)
	}
	f.completed[id] = status
	return nil
}
