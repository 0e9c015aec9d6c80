// Package fetch retrieves competitor pages through the Firecrawl API and
// hands them to the pipeline as RawPages.
package fetch

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/compintel-cli/internal/model"
	"github.com/sells-group/compintel-cli/pkg/firecrawl"
)

// pageFormats are requested for every page: markdown is preferred model
// input, html backs the classifier's text heuristics when markdown is empty.
var pageFormats = []string{"markdown", "html"}

// Fetcher retrieves competitor pages from seed URLs.
type Fetcher interface {
	// Fetch returns pages for the seed URL, crawling up to depth levels and
	// at most limit pages. depth <= 1 or limit == 1 means a single scrape.
	Fetch(ctx context.Context, competitorID, seedURL string, depth, limit int) ([]model.RawPage, error)

	// FetchBatch scrapes several seed URLs in one batch call. Only valid for
	// scrape-only seeds; callers with crawl seeds use Fetch per seed.
	FetchBatch(ctx context.Context, competitorID string, seedURLs []string) ([]model.RawPage, error)

	// Ping verifies the fetch service is reachable and credentialed.
	Ping(ctx context.Context) error
}

// ScrapeOnly reports whether the depth/limit pair fetches with single
// scrapes rather than a crawl.
func ScrapeOnly(depth, limit int) bool {
	return depth <= 1 || limit == 1
}

// pingURL is a cheap, stable target for the preflight scrape.
const pingURL = "https://example.com"

// FirecrawlFetcher implements Fetcher on the Firecrawl scrape/crawl API.
type FirecrawlFetcher struct {
	client firecrawl.Client
	now    func() time.Time
}

// NewFirecrawlFetcher wraps a Firecrawl client.
func NewFirecrawlFetcher(client firecrawl.Client) *FirecrawlFetcher {
	return &FirecrawlFetcher{client: client, now: time.Now}
}

func (f *FirecrawlFetcher) Fetch(ctx context.Context, competitorID, seedURL string, depth, limit int) ([]model.RawPage, error) {
	if ScrapeOnly(depth, limit) {
		return f.scrapeOne(ctx, competitorID, seedURL)
	}
	return f.crawl(ctx, competitorID, seedURL, depth, limit)
}

// FetchBatch submits all seed URLs as one batch scrape and polls it to
// completion. Result order follows the submitted URL order, which backs the
// per-index seed fallback for pages the API returns without a URL.
func (f *FirecrawlFetcher) FetchBatch(ctx context.Context, competitorID string, seedURLs []string) ([]model.RawPage, error) {
	batch, err := f.client.BatchScrape(ctx, firecrawl.BatchScrapeRequest{
		URLs:    seedURLs,
		Formats: pageFormats,
	})
	if err != nil {
		return nil, eris.Wrap(err, "fetch: start batch scrape")
	}

	status, err := firecrawl.PollBatchScrape(ctx, f.client, batch.ID)
	if err != nil {
		return nil, eris.Wrap(err, "fetch: poll batch scrape")
	}

	pages := make([]model.RawPage, 0, len(status.Data))
	for i, data := range status.Data {
		seed := seedURLs[0]
		if i < len(seedURLs) {
			seed = seedURLs[i]
		}
		pages = append(pages, f.toRawPage(competitorID, seed, data))
	}
	zap.L().Debug("fetch: batch scrape complete",
		zap.Int("seeds", len(seedURLs)),
		zap.Int("pages", len(pages)),
	)
	return pages, nil
}

func (f *FirecrawlFetcher) scrapeOne(ctx context.Context, competitorID, seedURL string) ([]model.RawPage, error) {
	resp, err := f.client.Scrape(ctx, firecrawl.ScrapeRequest{
		URL:     seedURL,
		Formats: pageFormats,
	})
	if err != nil {
		return nil, eris.Wrap(err, "fetch: scrape")
	}
	page := f.toRawPage(competitorID, seedURL, resp.Data)
	return []model.RawPage{page}, nil
}

func (f *FirecrawlFetcher) crawl(ctx context.Context, competitorID, seedURL string, depth, limit int) ([]model.RawPage, error) {
	crawl, err := f.client.Crawl(ctx, firecrawl.CrawlRequest{
		URL:      seedURL,
		MaxDepth: depth,
		Limit:    limit,
	})
	if err != nil {
		return nil, eris.Wrap(err, "fetch: start crawl")
	}

	status, err := firecrawl.PollCrawl(ctx, f.client, crawl.ID)
	if err != nil {
		return nil, eris.Wrap(err, "fetch: poll crawl")
	}

	pages := make([]model.RawPage, 0, len(status.Data))
	for _, data := range status.Data {
		pages = append(pages, f.toRawPage(competitorID, seedURL, data))
	}
	zap.L().Debug("fetch: crawl complete",
		zap.String("seed_url", seedURL),
		zap.Int("pages", len(pages)),
	)
	return pages, nil
}

// Ping performs a minimal scrape to confirm the API accepts our key.
func (f *FirecrawlFetcher) Ping(ctx context.Context) error {
	_, err := f.client.Scrape(ctx, firecrawl.ScrapeRequest{
		URL:     pingURL,
		Formats: []string{"markdown"},
	})
	if err != nil {
		return eris.Wrap(err, "fetch: ping")
	}
	return nil
}

func (f *FirecrawlFetcher) toRawPage(competitorID, seedURL string, data firecrawl.PageData) model.RawPage {
	url := data.URL
	if url == "" {
		url = seedURL
	}
	return model.RawPage{
		URL:          url,
		CompetitorID: competitorID,
		Title:        data.Title,
		HTML:         data.HTML,
		Markdown:     data.Markdown,
		FetchedAt:    f.now(),
	}
}
