package pipeline

import (
	"context"
	"encoding/json"

	"github.com/stretchr/testify/mock"

	"github.com/sells-group/compintel-cli/internal/infer"
	"github.com/sells-group/compintel-cli/internal/model"
)

// --- Inference Mock ---

type mockInferService struct {
	mock.Mock
}

func (m *mockInferService) Infer(ctx context.Context, schema infer.Schema, content string) (json.RawMessage, error) {
	args := m.Called(ctx, schema, content)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(json.RawMessage), args.Error(1)
}

func (m *mockInferService) Ping(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

// --- Fetcher Mock ---

type mockFetcher struct {
	mock.Mock
}

func (m *mockFetcher) Fetch(ctx context.Context, competitorID, seedURL string, depth, limit int) ([]model.RawPage, error) {
	args := m.Called(ctx, competitorID, seedURL, depth, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.RawPage), args.Error(1)
}

func (m *mockFetcher) FetchBatch(ctx context.Context, competitorID string, seedURLs []string) ([]model.RawPage, error) {
	args := m.Called(ctx, competitorID, seedURLs)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.RawPage), args.Error(1)
}

func (m *mockFetcher) Ping(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

// --- Store Mock ---

type mockStore struct {
	mock.Mock
}

func (m *mockStore) CreateRun(ctx context.Context, run model.Run) error {
	args := m.Called(ctx, run)
	return args.Error(0)
}

func (m *mockStore) CompleteRun(ctx context.Context, run model.Run) error {
	args := m.Called(ctx, run)
	return args.Error(0)
}

func (m *mockStore) ListRuns(ctx context.Context, limit int) ([]model.Run, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Run), args.Error(1)
}

func (m *mockStore) SaveProducts(ctx context.Context, runID string, records []model.ProductRecord) error {
	args := m.Called(ctx, runID, records)
	return args.Error(0)
}

func (m *mockStore) SavePromotions(ctx context.Context, runID string, records []model.PromotionRecord) error {
	args := m.Called(ctx, runID, records)
	return args.Error(0)
}

func (m *mockStore) Products(ctx context.Context) ([]model.ProductRecord, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.ProductRecord), args.Error(1)
}

func (m *mockStore) Promotions(ctx context.Context) ([]model.PromotionRecord, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.PromotionRecord), args.Error(1)
}

func (m *mockStore) Migrate(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *mockStore) Close() error {
	args := m.Called()
	return args.Error(0)
}
