package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/compintel-cli/internal/infer"
	"github.com/sells-group/compintel-cli/internal/model"
)

func acmeCompetitor() model.Competitor {
	return model.Competitor{
		ID:             "acme-outdoors",
		Name:           "Acme Outdoors",
		NewProductURLs: []string{"https://acme.com/products"},
		PromoURLs:      []string{"https://acme.com/deals/summer"},
		CrawlDepth:     1,
		PageLimit:      5,
	}
}

// Pages below score decisively in the heuristic classifier, so no page-label
// inference calls are expected.
func acmeProductPage() model.RawPage {
	return model.RawPage{
		URL:          "https://acme.com/products",
		CompetitorID: "acme-outdoors",
		Markdown:     "Trail Pack 45L $129.99. Add to cart.",
	}
}

func acmePromoPage() model.RawPage {
	return model.RawPage{
		URL:          "https://acme.com/deals/summer",
		CompetitorID: "acme-outdoors",
		Markdown:     "Summer event: 30% off everything with promo code SUMMER30.",
	}
}

func healthy(m *mock.Mock) {
	m.On("Ping", mock.Anything).Return(nil)
}

func TestRun_PreflightFetcherFailure(t *testing.T) {
	fetcher := &mockFetcher{}
	fetcher.On("Ping", mock.Anything).Return(errors.New("401 unauthorized"))
	svc := &mockInferService{}
	svc.On("Ping", mock.Anything).Return(nil).Maybe()

	p := New(Config{}, fetcher, svc)
	result, err := p.Run(context.Background(), []model.Competitor{acmeCompetitor()})

	require.Error(t, err)
	assert.Nil(t, result)
	var pre *PreconditionError
	require.ErrorAs(t, err, &pre)
	assert.Equal(t, "fetcher", pre.Service)
	fetcher.AssertNotCalled(t, "Fetch", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestRun_PreflightInferFailure(t *testing.T) {
	fetcher := &mockFetcher{}
	fetcher.On("Ping", mock.Anything).Return(nil).Maybe()
	svc := &mockInferService{}
	svc.On("Ping", mock.Anything).Return(errors.New("invalid api key"))

	p := New(Config{}, fetcher, svc)
	result, err := p.Run(context.Background(), []model.Competitor{acmeCompetitor()})

	require.Error(t, err)
	assert.Nil(t, result)
	var pre *PreconditionError
	require.ErrorAs(t, err, &pre)
	assert.Equal(t, "infer", pre.Service)
}

func TestRun_HappyPath(t *testing.T) {
	// Both seeds are scrape-only, so they go out as one batch call.
	fetcher := &mockFetcher{}
	healthy(&fetcher.Mock)
	fetcher.On("FetchBatch", mock.Anything, "acme-outdoors",
		[]string{"https://acme.com/products", "https://acme.com/deals/summer"}).
		Return([]model.RawPage{acmeProductPage(), acmePromoPage()}, nil).Once()

	svc := &mockInferService{}
	healthy(&svc.Mock)
	// Two product items sharing a URL: the dedupe barrier collapses them.
	svc.On("Infer", mock.Anything, infer.SchemaProducts, mock.AnythingOfType("string")).
		Return(json.RawMessage(`{
			"products": [
				{"product_name": "Trail Pack 45L", "product_url": "/p/trail-pack", "price": "$129.99"},
				{"product_name": "Trail Pack 45L", "product_url": "/p/trail-pack"}
			],
			"confidence": 0.9
		}`), nil).Once()
	svc.On("Infer", mock.Anything, infer.SchemaPromotions, mock.AnythingOfType("string")).
		Return(json.RawMessage(`{
			"promotions": [
				{"promo_title": "Summer Event", "promo_type": "percent_off", "discount_value": "30", "promo_code": "SUMMER30"}
			],
			"confidence": 0.85
		}`), nil).Once()

	p := New(Config{}, fetcher, svc)
	result, err := p.Run(context.Background(), []model.Competitor{acmeCompetitor()})

	require.NoError(t, err)
	require.NotNil(t, result)
	assert.NotEmpty(t, result.RunID)

	require.Len(t, result.Products, 1)
	assert.Equal(t, "https://acme.com/p/trail-pack", result.Products[0].ProductURL)
	require.NotNil(t, result.Products[0].Price)

	require.Len(t, result.Promotions, 1)
	assert.Equal(t, "Summer Event", result.Promotions[0].PromoTitle)
	assert.Equal(t, model.PromoTypePercentOff, result.Promotions[0].PromoType)

	stats := result.Stats
	assert.Equal(t, 2, stats.PagesFetched)
	assert.Equal(t, 0, stats.FetchFailures)
	assert.Equal(t, 1, stats.PagesByLabel[model.LabelProduct])
	assert.Equal(t, 1, stats.PagesByLabel[model.LabelPromotion])
	assert.Equal(t, 0, stats.Escalations)
	assert.Equal(t, 3, stats.Candidates)
	assert.Equal(t, 1, stats.DuplicatesMerged)
	assert.Equal(t, 1, stats.Products)
	assert.Equal(t, 1, stats.Promotions)

	fetcher.AssertExpectations(t)
	svc.AssertExpectations(t)
}

func TestRun_FetchFailureIsIsolated(t *testing.T) {
	// A failed batch falls back to per-seed scrapes, where one blocked seed
	// leaves its sibling intact.
	fetcher := &mockFetcher{}
	healthy(&fetcher.Mock)
	fetcher.On("FetchBatch", mock.Anything, "acme-outdoors", mock.AnythingOfType("[]string")).
		Return(nil, errors.New("402 payment required")).Once()
	fetcher.On("Fetch", mock.Anything, "acme-outdoors", "https://acme.com/products", 1, 5).
		Return(nil, errors.New("403 blocked")).Once()
	fetcher.On("Fetch", mock.Anything, "acme-outdoors", "https://acme.com/deals/summer", 1, 5).
		Return([]model.RawPage{acmePromoPage()}, nil).Once()

	svc := &mockInferService{}
	healthy(&svc.Mock)
	svc.On("Infer", mock.Anything, infer.SchemaPromotions, mock.AnythingOfType("string")).
		Return(json.RawMessage(`{"promotions": [{"promo_title": "Summer Event"}], "confidence": 0.9}`), nil).Once()

	p := New(Config{}, fetcher, svc)
	result, err := p.Run(context.Background(), []model.Competitor{acmeCompetitor()})

	require.NoError(t, err)
	assert.Equal(t, 1, result.Stats.FetchFailures)
	assert.Equal(t, 1, result.Stats.PagesFetched)
	assert.Len(t, result.Promotions, 1)
}

func TestRun_DeadlineKeepsAcceptedRecords(t *testing.T) {
	fetcher := &mockFetcher{}
	healthy(&fetcher.Mock)
	fetcher.On("FetchBatch", mock.Anything, "acme-outdoors",
		[]string{"https://acme.com/products", "https://acme.com/deals/summer"}).
		Return([]model.RawPage{acmeProductPage(), acmePromoPage()}, nil).Once()

	svc := &mockInferService{}
	healthy(&svc.Mock)
	svc.On("Infer", mock.Anything, infer.SchemaProducts, mock.AnythingOfType("string")).
		Return(json.RawMessage(`{"products": [{"product_name": "Trail Pack 45L", "product_url": "/p/trail-pack"}], "confidence": 0.9}`), nil).Once()
	// The promotion page hangs until the run deadline expires.
	svc.On("Infer", mock.Anything, infer.SchemaPromotions, mock.AnythingOfType("string")).
		Run(func(args mock.Arguments) {
			<-args.Get(0).(context.Context).Done()
		}).
		Return(nil, context.DeadlineExceeded).Once()

	p := New(Config{RunTimeout: 250 * time.Millisecond}, fetcher, svc)
	result, err := p.Run(context.Background(), []model.Competitor{acmeCompetitor()})

	// Expiry abandons the in-flight page; records accepted before it survive.
	require.NoError(t, err)
	require.NotNil(t, result)
	require.Len(t, result.Products, 1)
	assert.Empty(t, result.Promotions)
	assert.Equal(t, 1, result.Stats.ExtractFailures)
	assert.Equal(t, 1, result.Stats.Products)
}

func TestRun_ExtractionFailureCounted(t *testing.T) {
	comp := acmeCompetitor()
	comp.PromoURLs = nil

	fetcher := &mockFetcher{}
	healthy(&fetcher.Mock)
	fetcher.On("Fetch", mock.Anything, "acme-outdoors", "https://acme.com/products", 1, 5).
		Return([]model.RawPage{acmeProductPage()}, nil).Once()

	svc := &mockInferService{}
	healthy(&svc.Mock)
	svc.On("Infer", mock.Anything, infer.SchemaProducts, mock.AnythingOfType("string")).
		Return(nil, errors.New("api: bad request"))

	p := New(Config{}, fetcher, svc)
	result, err := p.Run(context.Background(), []model.Competitor{comp})

	require.NoError(t, err)
	assert.Equal(t, 1, result.Stats.ExtractFailures)
	assert.Empty(t, result.Products)
}

func TestRun_RejectionsCounted(t *testing.T) {
	comp := acmeCompetitor()
	comp.PromoURLs = nil

	fetcher := &mockFetcher{}
	healthy(&fetcher.Mock)
	fetcher.On("Fetch", mock.Anything, "acme-outdoors", "https://acme.com/products", 1, 5).
		Return([]model.RawPage{acmeProductPage()}, nil).Once()

	svc := &mockInferService{}
	healthy(&svc.Mock)
	svc.On("Infer", mock.Anything, infer.SchemaProducts, mock.AnythingOfType("string")).
		Return(json.RawMessage(`{
			"products": [
				{"product_name": "Kept Product"},
				{"brand": "No Name Here"}
			],
			"confidence": 0.9
		}`), nil).Once()

	p := New(Config{}, fetcher, svc)
	result, err := p.Run(context.Background(), []model.Competitor{comp})

	require.NoError(t, err)
	assert.Len(t, result.Products, 1)
	assert.Equal(t, 1, result.Stats.Rejections[model.RejectMissingRequiredField])
}

func TestRun_OtherPagesSkipExtraction(t *testing.T) {
	comp := acmeCompetitor()
	comp.NewProductURLs = []string{"https://acme.com/about"}
	comp.PromoURLs = nil

	fetcher := &mockFetcher{}
	healthy(&fetcher.Mock)
	fetcher.On("Fetch", mock.Anything, "acme-outdoors", "https://acme.com/about", 1, 5).
		Return([]model.RawPage{{
			URL:          "https://acme.com/about",
			CompetitorID: "acme-outdoors",
			Markdown:     "Our story since 2004. Gear made by people who hike.",
		}}, nil).Once()

	svc := &mockInferService{}
	healthy(&svc.Mock)

	p := New(Config{}, fetcher, svc)
	result, err := p.Run(context.Background(), []model.Competitor{comp})

	require.NoError(t, err)
	assert.Equal(t, 1, result.Stats.PagesByLabel[model.LabelOther])
	assert.Empty(t, result.Products)
	svc.AssertNotCalled(t, "Infer", mock.Anything, mock.Anything, mock.Anything)
}

func TestRun_PersistsToStore(t *testing.T) {
	comp := acmeCompetitor()
	comp.PromoURLs = nil

	fetcher := &mockFetcher{}
	healthy(&fetcher.Mock)
	fetcher.On("Fetch", mock.Anything, "acme-outdoors", "https://acme.com/products", 1, 5).
		Return([]model.RawPage{acmeProductPage()}, nil).Once()

	svc := &mockInferService{}
	healthy(&svc.Mock)
	svc.On("Infer", mock.Anything, infer.SchemaProducts, mock.AnythingOfType("string")).
		Return(json.RawMessage(`{"products": [{"product_name": "Trail Pack"}], "confidence": 0.9}`), nil).Once()

	st := &mockStore{}
	var createdID string
	st.On("CreateRun", mock.Anything, mock.MatchedBy(func(run model.Run) bool {
		createdID = run.ID
		return run.Status == model.RunStatusRunning
	})).Return(nil).Once()
	st.On("SaveProducts", mock.Anything, mock.AnythingOfType("string"), mock.AnythingOfType("[]model.ProductRecord")).
		Return(nil).Once()
	st.On("SavePromotions", mock.Anything, mock.AnythingOfType("string"), mock.AnythingOfType("[]model.PromotionRecord")).
		Return(nil).Once()
	st.On("CompleteRun", mock.Anything, mock.MatchedBy(func(run model.Run) bool {
		return run.Status == model.RunStatusCompleted && run.ID == createdID
	})).Return(nil).Once()

	p := New(Config{}, fetcher, svc, WithStore(st))
	result, err := p.Run(context.Background(), []model.Competitor{comp})

	require.NoError(t, err)
	assert.Equal(t, createdID, result.RunID)
	st.AssertExpectations(t)
}

func TestRun_PersistFailureStillReturnsResult(t *testing.T) {
	comp := acmeCompetitor()
	comp.PromoURLs = nil

	fetcher := &mockFetcher{}
	healthy(&fetcher.Mock)
	fetcher.On("Fetch", mock.Anything, "acme-outdoors", "https://acme.com/products", 1, 5).
		Return([]model.RawPage{acmeProductPage()}, nil).Once()

	svc := &mockInferService{}
	healthy(&svc.Mock)
	svc.On("Infer", mock.Anything, infer.SchemaProducts, mock.AnythingOfType("string")).
		Return(json.RawMessage(`{"products": [{"product_name": "Trail Pack"}], "confidence": 0.9}`), nil).Once()

	st := &mockStore{}
	st.On("CreateRun", mock.Anything, mock.AnythingOfType("model.Run")).Return(nil).Once()
	st.On("SaveProducts", mock.Anything, mock.AnythingOfType("string"), mock.AnythingOfType("[]model.ProductRecord")).
		Return(errors.New("disk full")).Once()

	p := New(Config{}, fetcher, svc, WithStore(st))
	result, err := p.Run(context.Background(), []model.Competitor{comp})

	require.Error(t, err)
	require.NotNil(t, result)
	assert.Len(t, result.Products, 1)
}

func TestRun_ClockStampsRecords(t *testing.T) {
	comp := acmeCompetitor()
	comp.PromoURLs = nil
	frozen := time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)

	fetcher := &mockFetcher{}
	healthy(&fetcher.Mock)
	fetcher.On("Fetch", mock.Anything, "acme-outdoors", "https://acme.com/products", 1, 5).
		Return([]model.RawPage{acmeProductPage()}, nil).Once()

	svc := &mockInferService{}
	healthy(&svc.Mock)
	svc.On("Infer", mock.Anything, infer.SchemaProducts, mock.AnythingOfType("string")).
		Return(json.RawMessage(`{"products": [{"product_name": "Trail Pack"}], "confidence": 0.9}`), nil).Once()

	p := New(Config{}, fetcher, svc, WithClock(func() time.Time { return frozen }))
	result, err := p.Run(context.Background(), []model.Competitor{comp})

	require.NoError(t, err)
	assert.Equal(t, frozen, result.StartedAt)
	require.Len(t, result.Products, 1)
	assert.Equal(t, frozen, result.Products[0].CollectedAt)
}
