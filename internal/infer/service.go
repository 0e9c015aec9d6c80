// Package infer wraps the content-understanding service behind a narrow
// schema-addressed interface so the pipeline never sees prompts, models,
// or rate limiting.
package infer

import (
	"context"
	"encoding/json"
)

// Schema names one structured-output contract the service can fill.
type Schema string

const (
	// SchemaPageLabel asks for {"label": "<product|promotion|other>", "confidence": c}.
	SchemaPageLabel Schema = "page_label"
	// SchemaProducts asks for {"products": [...], "confidence": c}.
	SchemaProducts Schema = "products"
	// SchemaPromotions asks for {"promotions": [...], "confidence": c}.
	SchemaPromotions Schema = "promotions"
)

// Service produces structured JSON for page content against a named schema.
// Implementations must be safe for concurrent use.
type Service interface {
	// Infer returns the service's JSON output for the given schema and page
	// content. The returned bytes are cleaned of markdown fences but NOT
	// validated: decoding failures are the caller's to handle.
	Infer(ctx context.Context, schema Schema, content string) (json.RawMessage, error)

	// Ping verifies the service is reachable and credentialed.
	Ping(ctx context.Context) error
}
