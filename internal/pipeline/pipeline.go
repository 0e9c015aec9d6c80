// Package pipeline turns fetched competitor pages into validated,
// deduplicated product and promotion records: classify, extract,
// normalize, dedupe, with every dropped page and record attributable
// in the run stats.
package pipeline

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/compintel-cli/internal/fetch"
	"github.com/sells-group/compintel-cli/internal/infer"
	"github.com/sells-group/compintel-cli/internal/model"
	"github.com/sells-group/compintel-cli/internal/store"
)

// Config tunes run concurrency and bounds.
type Config struct {
	// MaxConcurrentCompetitors bounds the competitor fan-out. Default 3.
	MaxConcurrentCompetitors int

	// MaxConcurrentPages bounds page workers within one competitor. Default 8.
	MaxConcurrentPages int

	// RunTimeout caps the whole run. Zero means no deadline.
	RunTimeout time.Duration

	Extract ExtractConfig
}

func (c Config) withDefaults() Config {
	if c.MaxConcurrentCompetitors <= 0 {
		c.MaxConcurrentCompetitors = 3
	}
	if c.MaxConcurrentPages <= 0 {
		c.MaxConcurrentPages = 8
	}
	return c
}

// RunResult is everything a completed run produced.
type RunResult struct {
	RunID      string
	StartedAt  time.Time
	FinishedAt time.Time
	Products   []model.ProductRecord
	Promotions []model.PromotionRecord
	Stats      model.RunStats
}

// Pipeline orchestrates one extraction run across competitors.
type Pipeline struct {
	cfg     Config
	fetcher fetch.Fetcher
	svc     infer.Service
	store   store.Store
	now     func() time.Time
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithStore enables run and record persistence.
func WithStore(st store.Store) Option {
	return func(p *Pipeline) {
		p.store = st
	}
}

// WithClock overrides the clock used for CollectedAt stamps.
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) {
		p.now = now
	}
}

// New builds a Pipeline.
func New(cfg Config, fetcher fetch.Fetcher, svc infer.Service, opts ...Option) *Pipeline {
	p := &Pipeline{
		cfg:     cfg.withDefaults(),
		fetcher: fetcher,
		svc:     svc,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run executes the pipeline for the given competitors. It aborts only when a
// preflight check fails; after that, every per-page failure is isolated into
// the stats and the run always produces records. A non-nil error alongside a
// non-nil result means persistence failed after the run completed.
func (p *Pipeline) Run(ctx context.Context, competitors []model.Competitor) (*RunResult, error) {
	if err := p.preflight(ctx); err != nil {
		return nil, err
	}

	runID := uuid.New().String()
	started := p.now()
	log := zap.L().With(zap.String("run_id", runID))
	log.Info("pipeline: run started", zap.Int("competitors", len(competitors)))

	if p.store != nil {
		if err := p.store.CreateRun(ctx, model.Run{
			ID:        runID,
			Status:    model.RunStatusRunning,
			StartedAt: started,
		}); err != nil {
			return nil, eris.Wrap(err, "pipeline: create run")
		}
	}

	if p.cfg.RunTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.cfg.RunTimeout)
		defer cancel()
	}

	stats := model.NewStatsCollector()

	var mu sync.Mutex
	var products []model.ProductRecord
	var promotions []model.PromotionRecord

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(p.cfg.MaxConcurrentCompetitors)

	for _, comp := range competitors {
		g.Go(func() error {
			prods, promos := p.processCompetitor(gCtx, comp, stats)
			mu.Lock()
			products = append(products, prods...)
			promotions = append(promotions, promos...)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	result := &RunResult{
		RunID:      runID,
		StartedAt:  started,
		FinishedAt: p.now(),
		Products:   products,
		Promotions: promotions,
		Stats:      stats.Snapshot(),
	}
	log.Info("pipeline: run finished",
		zap.Int("products", len(result.Products)),
		zap.Int("promotions", len(result.Promotions)),
		zap.Duration("elapsed", result.FinishedAt.Sub(started)),
	)

	if p.store != nil {
		if err := p.persist(context.WithoutCancel(ctx), result); err != nil {
			return result, err
		}
	}
	return result, nil
}

// preflight verifies both collaborators before any page work.
func (p *Pipeline) preflight(ctx context.Context) error {
	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := p.fetcher.Ping(gCtx); err != nil {
			return &PreconditionError{Service: "fetcher", Err: err}
		}
		return nil
	})
	g.Go(func() error {
		if err := p.svc.Ping(gCtx); err != nil {
			return &PreconditionError{Service: "infer", Err: err}
		}
		return nil
	})
	return g.Wait()
}

// processCompetitor fetches, classifies, extracts, normalizes, and dedupes
// all pages for one competitor. Failures are recorded in stats, never
// returned.
func (p *Pipeline) processCompetitor(ctx context.Context, comp model.Competitor, stats *model.StatsCollector) ([]model.ProductRecord, []model.PromotionRecord) {
	log := zap.L().With(zap.String("competitor", comp.ID))

	seeds := comp.AllURLs()
	var pages []model.RawPage

	// Scrape-only competitors with several seeds go out as one batch call.
	// A failed batch falls back to per-seed scrapes so one bad seed keeps
	// its per-URL accounting.
	remaining := seeds
	if len(seeds) > 1 && fetch.ScrapeOnly(comp.CrawlDepth, comp.PageLimit) {
		fetched, err := p.fetcher.FetchBatch(ctx, comp.ID, seeds)
		if err != nil {
			log.Warn("pipeline: batch fetch failed, retrying seeds individually", zap.Error(err))
		} else {
			pages = fetched
			remaining = nil
		}
	}
	for _, seedURL := range remaining {
		if ctx.Err() != nil {
			break
		}
		fetched, err := p.fetcher.Fetch(ctx, comp.ID, seedURL, comp.CrawlDepth, comp.PageLimit)
		if err != nil {
			stats.AddFetchFailure()
			log.Warn("pipeline: fetch failed",
				zap.String("seed_url", seedURL),
				zap.Error(&FetchError{URL: seedURL, Err: err}),
			)
			continue
		}
		pages = append(pages, fetched...)
	}
	stats.AddPagesFetched(len(pages))

	var mu sync.Mutex
	var products []model.ProductRecord
	var promotions []model.PromotionRecord

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(p.cfg.MaxConcurrentPages)

	for _, page := range pages {
		g.Go(func() error {
			if gCtx.Err() != nil {
				return nil
			}

			cls := Classify(gCtx, p.svc, page)
			stats.AddClassified(cls.Label, cls.Escalated)
			if cls.Label == model.LabelOther {
				return nil
			}

			candidates, err := Extract(gCtx, p.svc, page, cls.Label, p.cfg.Extract)
			if err != nil {
				stats.AddExtractFailure()
				log.Warn("pipeline: extraction failed", zap.Error(err))
				return nil
			}

			low := 0
			for _, c := range candidates {
				if c.LowConfidence {
					low++
				}
			}
			stats.AddCandidates(len(candidates), low)

			now := p.now()
			mu.Lock()
			defer mu.Unlock()
			for _, c := range candidates {
				switch c.Label {
				case model.LabelProduct:
					rec, rej := NormalizeProduct(c, now)
					if rej != nil {
						stats.AddRejection(rej.Reason)
						continue
					}
					products = append(products, rec)
				case model.LabelPromotion:
					rec, rej := NormalizePromotion(c, now)
					if rej != nil {
						stats.AddRejection(rej.Reason)
						continue
					}
					promotions = append(promotions, rec)
				}
			}
			return nil
		})
	}
	_ = g.Wait()

	// Per-competitor barrier: all pages are in, collapse duplicates.
	dedupedProducts, collapsedProducts := DedupeProducts(products)
	dedupedPromotions, collapsedPromotions := DedupePromotions(promotions)
	stats.AddDuplicates(collapsedProducts + collapsedPromotions)
	stats.AddFinal(len(dedupedProducts), len(dedupedPromotions))

	log.Info("pipeline: competitor done",
		zap.Int("pages", len(pages)),
		zap.Int("products", len(dedupedProducts)),
		zap.Int("promotions", len(dedupedPromotions)),
		zap.Int("duplicates_collapsed", collapsedProducts+collapsedPromotions),
	)
	return dedupedProducts, dedupedPromotions
}

// persist writes the completed run and its records. Called with a
// cancellation-free context so a deadline expiry does not lose the records
// accepted before it.
func (p *Pipeline) persist(ctx context.Context, result *RunResult) error {
	if err := p.store.SaveProducts(ctx, result.RunID, result.Products); err != nil {
		return eris.Wrap(err, "pipeline: save products")
	}
	if err := p.store.SavePromotions(ctx, result.RunID, result.Promotions); err != nil {
		return eris.Wrap(err, "pipeline: save promotions")
	}
	if err := p.store.CompleteRun(ctx, model.Run{
		ID:         result.RunID,
		Status:     model.RunStatusCompleted,
		FinishedAt: result.FinishedAt,
		Stats:      result.Stats,
	}); err != nil {
		return eris.Wrap(err, "pipeline: complete run")
	}
	return nil
}
