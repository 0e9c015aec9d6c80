package fetch

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/compintel-cli/pkg/firecrawl"
)

type mockFirecrawlClient struct {
	mock.Mock
}

func (m *mockFirecrawlClient) Crawl(ctx context.Context, req firecrawl.CrawlRequest) (*firecrawl.CrawlResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*firecrawl.CrawlResponse), args.Error(1)
}

func (m *mockFirecrawlClient) GetCrawlStatus(ctx context.Context, id string) (*firecrawl.CrawlStatusResponse, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*firecrawl.CrawlStatusResponse), args.Error(1)
}

func (m *mockFirecrawlClient) Scrape(ctx context.Context, req firecrawl.ScrapeRequest) (*firecrawl.ScrapeResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*firecrawl.ScrapeResponse), args.Error(1)
}

func (m *mockFirecrawlClient) BatchScrape(ctx context.Context, req firecrawl.BatchScrapeRequest) (*firecrawl.BatchScrapeResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*firecrawl.BatchScrapeResponse), args.Error(1)
}

func (m *mockFirecrawlClient) GetBatchScrapeStatus(ctx context.Context, id string) (*firecrawl.BatchScrapeStatusResponse, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*firecrawl.BatchScrapeStatusResponse), args.Error(1)
}

func TestFetch_SingleScrape(t *testing.T) {
	client := &mockFirecrawlClient{}
	client.On("Scrape", mock.Anything, firecrawl.ScrapeRequest{
		URL:     "https://acme.com/products",
		Formats: []string{"markdown", "html"},
	}).Return(&firecrawl.ScrapeResponse{
		Success: true,
		Data: firecrawl.PageData{
			URL:      "https://acme.com/products",
			Title:    "New Arrivals",
			Markdown: "# New Arrivals",
		},
	}, nil).Once()

	f := NewFirecrawlFetcher(client)
	pages, err := f.Fetch(context.Background(), "acme-outdoors", "https://acme.com/products", 1, 10)

	require.NoError(t, err)
	require.Len(t, pages, 1)
	assert.Equal(t, "https://acme.com/products", pages[0].URL)
	assert.Equal(t, "acme-outdoors", pages[0].CompetitorID)
	assert.Equal(t, "New Arrivals", pages[0].Title)
	assert.Equal(t, "# New Arrivals", pages[0].Markdown)
	assert.False(t, pages[0].FetchedAt.IsZero())
	client.AssertExpectations(t)
}

func TestFetch_SingleScrape_EmptyURLFallsBackToSeed(t *testing.T) {
	client := &mockFirecrawlClient{}
	client.On("Scrape", mock.Anything, mock.AnythingOfType("firecrawl.ScrapeRequest")).
		Return(&firecrawl.ScrapeResponse{
			Success: true,
			Data:    firecrawl.PageData{Markdown: "# Page"},
		}, nil).Once()

	f := NewFirecrawlFetcher(client)
	pages, err := f.Fetch(context.Background(), "acme-outdoors", "https://acme.com/promo", 1, 10)

	require.NoError(t, err)
	require.Len(t, pages, 1)
	assert.Equal(t, "https://acme.com/promo", pages[0].URL)
}

func TestFetch_LimitOneUsesScrape(t *testing.T) {
	client := &mockFirecrawlClient{}
	client.On("Scrape", mock.Anything, mock.AnythingOfType("firecrawl.ScrapeRequest")).
		Return(&firecrawl.ScrapeResponse{Success: true, Data: firecrawl.PageData{URL: "https://acme.com"}}, nil).Once()

	f := NewFirecrawlFetcher(client)
	_, err := f.Fetch(context.Background(), "acme-outdoors", "https://acme.com", 3, 1)

	require.NoError(t, err)
	client.AssertNotCalled(t, "Crawl", mock.Anything, mock.Anything)
}

func TestFetch_CrawlPath(t *testing.T) {
	client := &mockFirecrawlClient{}
	client.On("Crawl", mock.Anything, firecrawl.CrawlRequest{
		URL:      "https://acme.com/shop",
		MaxDepth: 2,
		Limit:    10,
	}).Return(&firecrawl.CrawlResponse{Success: true, ID: "crawl-1"}, nil).Once()
	client.On("GetCrawlStatus", mock.Anything, "crawl-1").
		Return(&firecrawl.CrawlStatusResponse{
			Status: "completed",
			Total:  2,
			Data: []firecrawl.PageData{
				{URL: "https://acme.com/shop", Markdown: "# Shop"},
				{URL: "https://acme.com/shop/packs", Markdown: "# Packs"},
			},
		}, nil).Once()

	f := NewFirecrawlFetcher(client)
	pages, err := f.Fetch(context.Background(), "acme-outdoors", "https://acme.com/shop", 2, 10)

	require.NoError(t, err)
	require.Len(t, pages, 2)
	assert.Equal(t, "https://acme.com/shop/packs", pages[1].URL)
	assert.Equal(t, "acme-outdoors", pages[1].CompetitorID)
	client.AssertExpectations(t)
}

func TestFetch_CrawlStartFails(t *testing.T) {
	client := &mockFirecrawlClient{}
	client.On("Crawl", mock.Anything, mock.AnythingOfType("firecrawl.CrawlRequest")).
		Return(nil, &firecrawl.APIError{StatusCode: 402, Body: "insufficient credits"})

	f := NewFirecrawlFetcher(client)
	_, err := f.Fetch(context.Background(), "acme-outdoors", "https://acme.com/shop", 2, 10)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "start crawl")
}

func TestFetch_CrawlFailedStatus(t *testing.T) {
	client := &mockFirecrawlClient{}
	client.On("Crawl", mock.Anything, mock.AnythingOfType("firecrawl.CrawlRequest")).
		Return(&firecrawl.CrawlResponse{Success: true, ID: "crawl-2"}, nil).Once()
	client.On("GetCrawlStatus", mock.Anything, "crawl-2").
		Return(&firecrawl.CrawlStatusResponse{Status: "failed"}, nil).Once()

	f := NewFirecrawlFetcher(client)
	_, err := f.Fetch(context.Background(), "acme-outdoors", "https://acme.com/shop", 2, 10)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "poll crawl")
}

func TestFetch_ScrapeError(t *testing.T) {
	client := &mockFirecrawlClient{}
	client.On("Scrape", mock.Anything, mock.AnythingOfType("firecrawl.ScrapeRequest")).
		Return(nil, errors.New("connection refused"))

	f := NewFirecrawlFetcher(client)
	_, err := f.Fetch(context.Background(), "acme-outdoors", "https://acme.com", 1, 10)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "scrape")
}

func TestFetchBatch(t *testing.T) {
	seeds := []string{"https://acme.com/products", "https://acme.com/deals"}

	client := &mockFirecrawlClient{}
	client.On("BatchScrape", mock.Anything, firecrawl.BatchScrapeRequest{
		URLs:    seeds,
		Formats: []string{"markdown", "html"},
	}).Return(&firecrawl.BatchScrapeResponse{Success: true, ID: "batch-1"}, nil).Once()
	client.On("GetBatchScrapeStatus", mock.Anything, "batch-1").
		Return(&firecrawl.BatchScrapeStatusResponse{
			Status: "completed",
			Total:  2,
			Data: []firecrawl.PageData{
				{URL: "https://acme.com/products", Markdown: "# New Arrivals"},
				{Markdown: "# Deals"}, // no URL: falls back to the seed at this index
			},
		}, nil).Once()

	f := NewFirecrawlFetcher(client)
	pages, err := f.FetchBatch(context.Background(), "acme-outdoors", seeds)

	require.NoError(t, err)
	require.Len(t, pages, 2)
	assert.Equal(t, "https://acme.com/products", pages[0].URL)
	assert.Equal(t, "https://acme.com/deals", pages[1].URL)
	assert.Equal(t, "acme-outdoors", pages[1].CompetitorID)
	client.AssertExpectations(t)
}

func TestFetchBatch_StartFails(t *testing.T) {
	client := &mockFirecrawlClient{}
	client.On("BatchScrape", mock.Anything, mock.AnythingOfType("firecrawl.BatchScrapeRequest")).
		Return(nil, &firecrawl.APIError{StatusCode: 402, Body: "insufficient credits"})

	f := NewFirecrawlFetcher(client)
	_, err := f.FetchBatch(context.Background(), "acme-outdoors", []string{"https://acme.com"})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "start batch scrape")
	client.AssertNotCalled(t, "GetBatchScrapeStatus", mock.Anything, mock.Anything)
}

func TestFetchBatch_FailedStatus(t *testing.T) {
	client := &mockFirecrawlClient{}
	client.On("BatchScrape", mock.Anything, mock.AnythingOfType("firecrawl.BatchScrapeRequest")).
		Return(&firecrawl.BatchScrapeResponse{Success: true, ID: "batch-2"}, nil).Once()
	client.On("GetBatchScrapeStatus", mock.Anything, "batch-2").
		Return(&firecrawl.BatchScrapeStatusResponse{Status: "failed"}, nil).Once()

	f := NewFirecrawlFetcher(client)
	_, err := f.FetchBatch(context.Background(), "acme-outdoors", []string{"https://acme.com"})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "poll batch scrape")
}

func TestScrapeOnly(t *testing.T) {
	assert.True(t, ScrapeOnly(1, 10))
	assert.True(t, ScrapeOnly(0, 10))
	assert.True(t, ScrapeOnly(3, 1))
	assert.False(t, ScrapeOnly(2, 10))
}

func TestPing(t *testing.T) {
	client := &mockFirecrawlClient{}
	client.On("Scrape", mock.Anything, firecrawl.ScrapeRequest{
		URL:     pingURL,
		Formats: []string{"markdown"},
	}).Return(&firecrawl.ScrapeResponse{Success: true}, nil).Once()

	f := NewFirecrawlFetcher(client)
	assert.NoError(t, f.Ping(context.Background()))
	client.AssertExpectations(t)
}

func TestPing_Error(t *testing.T) {
	client := &mockFirecrawlClient{}
	client.On("Scrape", mock.Anything, mock.AnythingOfType("firecrawl.ScrapeRequest")).
		Return(nil, &firecrawl.APIError{StatusCode: 401, Body: "invalid key"})

	f := NewFirecrawlFetcher(client)
	assert.Error(t, f.Ping(context.Background()))
}

func TestFetcherClock(t *testing.T) {
	client := &mockFirecrawlClient{}
	client.On("Scrape", mock.Anything, mock.AnythingOfType("firecrawl.ScrapeRequest")).
		Return(&firecrawl.ScrapeResponse{Success: true, Data: firecrawl.PageData{URL: "https://acme.com"}}, nil).Once()

	frozen := time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)
	f := NewFirecrawlFetcher(client)
	f.now = func() time.Time { return frozen }

	pages, err := f.Fetch(context.Background(), "acme-outdoors", "https://acme.com", 1, 10)
	require.NoError(t, err)
	assert.Equal(t, frozen, pages[0].FetchedAt)
}
