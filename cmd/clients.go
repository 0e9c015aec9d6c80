package main

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/compintel-cli/internal/fetch"
	"github.com/sells-group/compintel-cli/internal/infer"
	"github.com/sells-group/compintel-cli/internal/pipeline"
	"github.com/sells-group/compintel-cli/internal/store"
	anthropicpkg "github.com/sells-group/compintel-cli/pkg/anthropic"
	"github.com/sells-group/compintel-cli/pkg/firecrawl"
)

func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = "compintel.db"
		}
		return store.NewSQLite(dsn)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, &store.PoolConfig{
			MaxConns: cfg.Store.MaxConns,
			MinConns: cfg.Store.MinConns,
		})
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

func initFetcher() (*fetch.FirecrawlFetcher, error) {
	if cfg.Firecrawl.Key == "" {
		return nil, eris.New("firecrawl API key is required (COMPINTEL_FIRECRAWL_KEY)")
	}
	client := firecrawl.NewClient(cfg.Firecrawl.Key, firecrawl.WithBaseURL(cfg.Firecrawl.BaseURL))
	return fetch.NewFirecrawlFetcher(client), nil
}

func initInfer() (*infer.AnthropicService, error) {
	if cfg.Anthropic.Key == "" {
		return nil, eris.New("anthropic API key is required (COMPINTEL_ANTHROPIC_KEY)")
	}
	client := anthropicpkg.NewClient(cfg.Anthropic.Key)
	return infer.NewAnthropicService(client, infer.Config{
		Model:             cfg.Anthropic.Model,
		MaxTokens:         cfg.Anthropic.MaxTokens,
		RequestsPerMinute: cfg.Anthropic.RequestsPerMinute,
		MaxInFlight:       cfg.Pipeline.MaxConcurrentPages,
	}), nil
}

func pipelineConfig() pipeline.Config {
	return pipeline.Config{
		MaxConcurrentCompetitors: cfg.Pipeline.MaxConcurrentCompetitors,
		MaxConcurrentPages:       cfg.Pipeline.MaxConcurrentPages,
		RunTimeout:               runTimeout(),
		Extract: pipeline.ExtractConfig{
			Retries:             cfg.Pipeline.ExtractRetries,
			ConfidenceThreshold: cfg.Pipeline.ConfidenceThreshold,
		},
	}
}
