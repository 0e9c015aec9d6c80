package infer

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/sells-group/compintel-cli/pkg/anthropic"
)

const pageLabelSystemPrompt = `You classify e-commerce web pages. Given page content, decide whether the page primarily presents products for sale, promotions/deals/discounts, or neither. Respond with a valid JSON object: {"label": "<product|promotion|other>", "confidence": <0.0-1.0>}`

const productsSystemPrompt = `You extract product listings from e-commerce page content. Return a valid JSON object:
{"products": [{"product_name": string, "brand": string, "category": string, "price": string, "original_price": string, "launch_date": string, "product_url": string, "image_url": string, "description": string, "availability": string, "rating": string, "review_count": string, "sku": string}], "confidence": <0.0-1.0>}

Include every distinct product visible on the page. Use an empty string for fields the page does not show. Report values exactly as they appear; do not clean or convert them.`

const promotionsSystemPrompt = `You extract promotions, deals, and discount offers from e-commerce page content. Return a valid JSON object:
{"promotions": [{"promo_title": string, "promo_type": string, "promo_code": string, "discount_value": string, "minimum_purchase": string, "start_date": string, "end_date": string, "applicable_products": string, "exclusions": string, "promo_url": string, "image_url": string, "description": string, "terms_and_conditions": string}], "confidence": <0.0-1.0>}

promo_type is one of: percent_off, amount_off, bogo, free_shipping, other. Include every distinct offer on the page. Use an empty string for fields the page does not show. Report values exactly as they appear; do not clean or convert them.`

const inferUserPrompt = `Page content:
%s`

// Config controls the Anthropic-backed service.
type Config struct {
	Model             string
	MaxTokens         int64
	RequestsPerMinute int
	MaxInFlight       int
}

// AnthropicService implements Service on the Anthropic messages API with a
// shared request-rate limiter and per-schema cached system prompts.
type AnthropicService struct {
	client  anthropic.Client
	cfg     Config
	limiter *rate.Limiter

	mu    sync.Mutex
	usage anthropic.TokenUsage
}

// NewAnthropicService builds a rate-limited service. The limiter admits
// RequestsPerMinute sustained with a burst equal to MaxInFlight so a full
// worker fan-out can start without queueing.
func NewAnthropicService(client anthropic.Client, cfg Config) *AnthropicService {
	if cfg.RequestsPerMinute <= 0 {
		cfg.RequestsPerMinute = 50
	}
	if cfg.MaxInFlight <= 0 {
		cfg.MaxInFlight = 8
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 4096
	}
	return &AnthropicService{
		client:  client,
		cfg:     cfg,
		limiter: rate.NewLimiter(rate.Limit(float64(cfg.RequestsPerMinute)/60.0), cfg.MaxInFlight),
	}
}

// systemPromptFor returns the cached system blocks for a schema.
func systemPromptFor(schema Schema) ([]anthropic.SystemBlock, error) {
	switch schema {
	case SchemaPageLabel:
		return anthropic.BuildCachedSystemBlocks(pageLabelSystemPrompt), nil
	case SchemaProducts:
		return anthropic.BuildCachedSystemBlocks(productsSystemPrompt), nil
	case SchemaPromotions:
		return anthropic.BuildCachedSystemBlocks(promotionsSystemPrompt), nil
	default:
		return nil, eris.New(fmt.Sprintf("infer: unknown schema %q", schema))
	}
}

func (s *AnthropicService) Infer(ctx context.Context, schema Schema, content string) (json.RawMessage, error) {
	system, err := systemPromptFor(schema)
	if err != nil {
		return nil, err
	}

	if err := s.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "infer: rate limiter")
	}

	maxTokens := s.cfg.MaxTokens
	if schema == SchemaPageLabel {
		maxTokens = 128
	}

	resp, err := s.client.CreateMessage(ctx, anthropic.MessageRequest{
		Model:     s.cfg.Model,
		MaxTokens: maxTokens,
		System:    system,
		Messages: []anthropic.Message{
			{Role: "user", Content: fmt.Sprintf(inferUserPrompt, content)},
		},
	})
	if err != nil {
		return nil, eris.Wrap(err, "infer: create message")
	}

	s.mu.Lock()
	s.usage.Add(resp.Usage)
	s.mu.Unlock()

	return json.RawMessage(cleanJSON(anthropic.ExtractText(resp))), nil
}

// Ping sends a minimal message to verify reachability and credentials.
func (s *AnthropicService) Ping(ctx context.Context) error {
	_, err := s.client.CreateMessage(ctx, anthropic.MessageRequest{
		Model:     s.cfg.Model,
		MaxTokens: 1,
		Messages: []anthropic.Message{
			{Role: "user", Content: "ping"},
		},
	})
	if err != nil {
		return eris.Wrap(err, "infer: ping")
	}
	return nil
}

// Usage returns the accumulated token usage for the run.
func (s *AnthropicService) Usage() anthropic.TokenUsage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.usage
}

// LogCost logs the accumulated usage and estimated cost.
func (s *AnthropicService) LogCost(phase string) {
	s.Usage().LogCost(s.cfg.Model, phase)
}

// cleanJSON extracts a JSON object from text that may be wrapped in markdown
// code fences or surrounded by prose.
func cleanJSON(text string) string {
	text = strings.TrimSpace(text)

	if strings.HasPrefix(text, "```json") {
		text = strings.TrimPrefix(text, "```json")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
	} else if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
	}

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start >= 0 && end > start {
		text = text[start : end+1]
	}

	return strings.TrimSpace(text)
}
