package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/compintel-cli/internal/infer"
	"github.com/sells-group/compintel-cli/internal/model"
)

func productPage() model.RawPage {
	return model.RawPage{
		URL:          "https://acme.com/products/trail-pack",
		CompetitorID: "acme-outdoors",
		Markdown:     "Trail Pack 45L $129.99",
	}
}

func TestExtract_Products(t *testing.T) {
	svc := &mockInferService{}
	svc.On("Infer", mock.Anything, infer.SchemaProducts, mock.AnythingOfType("string")).
		Return(json.RawMessage(`{
			"products": [
				{"product_name": "Trail Pack 45L", "price": "$129.99", "confidence": 0.92},
				{"product_name": "Summit Tent", "price": 499.00}
			],
			"confidence": 0.8
		}`), nil).Once()

	candidates, err := Extract(context.Background(), svc, productPage(), model.LabelProduct, ExtractConfig{})

	require.NoError(t, err)
	require.Len(t, candidates, 2)

	first := candidates[0]
	assert.Equal(t, "acme-outdoors", first.Competitor)
	assert.Equal(t, "https://acme.com/products/trail-pack", first.SourceURL)
	assert.Equal(t, model.LabelProduct, first.Label)
	require.NotNil(t, first.Product)
	assert.Equal(t, "Trail Pack 45L", first.Product.ProductName.String())
	assert.InDelta(t, 0.92, first.Confidence, 0.001)
	assert.False(t, first.LowConfidence)

	// Second item has no per-item confidence: the envelope value applies.
	second := candidates[1]
	require.NotNil(t, second.Product)
	assert.InDelta(t, 0.8, second.Confidence, 0.001)
	assert.Equal(t, "499.00", second.Product.Price.String())

	svc.AssertExpectations(t)
}

func TestExtract_Promotions(t *testing.T) {
	svc := &mockInferService{}
	svc.On("Infer", mock.Anything, infer.SchemaPromotions, mock.AnythingOfType("string")).
		Return(json.RawMessage(`{
			"promotions": [
				{"promo_title": "Summer Sale", "promo_type": "percent_off", "discount_value": "30"}
			],
			"confidence": 0.75
		}`), nil).Once()

	page := model.RawPage{URL: "https://acme.com/sale", CompetitorID: "acme-outdoors", Markdown: "30% off"}
	candidates, err := Extract(context.Background(), svc, page, model.LabelPromotion, ExtractConfig{})

	require.NoError(t, err)
	require.Len(t, candidates, 1)
	require.NotNil(t, candidates[0].Promotion)
	assert.Equal(t, "Summer Sale", candidates[0].Promotion.PromoTitle.String())
	assert.Equal(t, model.LabelPromotion, candidates[0].Label)
	svc.AssertExpectations(t)
}

func TestExtract_OtherLabelSkipsService(t *testing.T) {
	svc := &mockInferService{}

	candidates, err := Extract(context.Background(), svc, productPage(), model.LabelOther, ExtractConfig{})

	assert.NoError(t, err)
	assert.Nil(t, candidates)
	svc.AssertNotCalled(t, "Infer", mock.Anything, mock.Anything, mock.Anything)
}

func TestExtract_MalformedEnvelopeRetriesThenSucceeds(t *testing.T) {
	svc := &mockInferService{}
	svc.On("Infer", mock.Anything, infer.SchemaProducts, mock.AnythingOfType("string")).
		Return(json.RawMessage(`I could not find any products on this page.`), nil).Once()
	svc.On("Infer", mock.Anything, infer.SchemaProducts, mock.AnythingOfType("string")).
		Return(json.RawMessage(`{"products": [{"product_name": "Trail Pack"}], "confidence": 0.9}`), nil).Once()

	candidates, err := Extract(context.Background(), svc, productPage(), model.LabelProduct, ExtractConfig{})

	require.NoError(t, err)
	assert.Len(t, candidates, 1)
	svc.AssertExpectations(t)
}

func TestExtract_PersistentlyMalformedFailsPage(t *testing.T) {
	svc := &mockInferService{}
	svc.On("Infer", mock.Anything, infer.SchemaProducts, mock.AnythingOfType("string")).
		Return(json.RawMessage(`still not json`), nil).Times(2)

	_, err := Extract(context.Background(), svc, productPage(), model.LabelProduct, ExtractConfig{Retries: 1})

	require.Error(t, err)
	var extractErr *ExtractionError
	require.ErrorAs(t, err, &extractErr)
	assert.Equal(t, "https://acme.com/products/trail-pack", extractErr.URL)
	svc.AssertExpectations(t)
}

func TestExtract_ServiceError(t *testing.T) {
	svc := &mockInferService{}
	svc.On("Infer", mock.Anything, infer.SchemaProducts, mock.AnythingOfType("string")).
		Return(nil, errors.New("api: invalid request"))

	_, err := Extract(context.Background(), svc, productPage(), model.LabelProduct, ExtractConfig{})

	var extractErr *ExtractionError
	require.ErrorAs(t, err, &extractErr)
}

func TestExtract_MalformedItemIsIsolated(t *testing.T) {
	// review_count as an object fails the typed decode for that item only.
	svc := &mockInferService{}
	svc.On("Infer", mock.Anything, infer.SchemaProducts, mock.AnythingOfType("string")).
		Return(json.RawMessage(`{
			"products": [
				{"product_name": "Good Product"},
				{"product_name": "Bad Product", "review_count": {"count": 3}}
			],
			"confidence": 0.9
		}`), nil).Once()

	candidates, err := Extract(context.Background(), svc, productPage(), model.LabelProduct, ExtractConfig{})

	require.NoError(t, err)
	require.Len(t, candidates, 2)
	assert.False(t, candidates[0].Malformed)
	assert.True(t, candidates[1].Malformed)
	assert.Nil(t, candidates[1].Product)
}

func TestExtract_LowConfidenceFlag(t *testing.T) {
	svc := &mockInferService{}
	svc.On("Infer", mock.Anything, infer.SchemaProducts, mock.AnythingOfType("string")).
		Return(json.RawMessage(`{
			"products": [
				{"product_name": "Sure Thing", "confidence": 0.95},
				{"product_name": "Wild Guess", "confidence": 0.3}
			],
			"confidence": 0.9
		}`), nil).Once()

	candidates, err := Extract(context.Background(), svc, productPage(), model.LabelProduct, ExtractConfig{ConfidenceThreshold: 0.6})

	require.NoError(t, err)
	require.Len(t, candidates, 2)
	assert.False(t, candidates[0].LowConfidence)
	assert.True(t, candidates[1].LowConfidence)
}

func TestExtract_TruncatesLongContent(t *testing.T) {
	page := productPage()
	for len(page.Markdown) < 2*maxExtractContentLen {
		page.Markdown += " more catalog text"
	}

	svc := &mockInferService{}
	svc.On("Infer", mock.Anything, infer.SchemaProducts, mock.MatchedBy(func(content string) bool {
		return len(content) == maxExtractContentLen
	})).Return(json.RawMessage(`{"products": [], "confidence": 1}`), nil).Once()

	candidates, err := Extract(context.Background(), svc, page, model.LabelProduct, ExtractConfig{})

	require.NoError(t, err)
	assert.Empty(t, candidates)
	svc.AssertExpectations(t)
}

func TestTruncateContent(t *testing.T) {
	tests := []struct {
		name string
		in   string
		n    int
		want string
	}{
		{"under limit", "short", 10, "short"},
		{"exact limit", "exact", 5, "exact"},
		{"ascii cut", "abcdef", 3, "abc"},
		{"two-byte rune straddles boundary", "abé", 3, "ab"},
		{"three-byte rune straddles boundary", "a✨bc", 2, "a"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := truncateContent(tt.in, tt.n)
			assert.Equal(t, tt.want, got)
			assert.True(t, utf8.ValidString(got))
		})
	}
}

func TestExtract_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	svc := &mockInferService{}
	_, err := Extract(ctx, svc, productPage(), model.LabelProduct, ExtractConfig{})

	var extractErr *ExtractionError
	require.ErrorAs(t, err, &extractErr)
	assert.ErrorIs(t, err, context.Canceled)
}
