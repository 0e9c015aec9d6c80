// Package store persists runs and accepted records. Records upsert on their
// uniqueness keys so re-running a competitor refreshes rows in place.
package store

import (
	"context"
	"strings"

	"github.com/sells-group/compintel-cli/internal/model"
)

// promoTitleKey is the case-folded title component of the promotion
// uniqueness key.
func promoTitleKey(r model.PromotionRecord) string {
	return strings.ToLower(r.PromoTitle)
}

// Store defines the persistence interface for the extraction pipeline.
type Store interface {
	// Runs
	CreateRun(ctx context.Context, run model.Run) error
	CompleteRun(ctx context.Context, run model.Run) error
	ListRuns(ctx context.Context, limit int) ([]model.Run, error)

	// Records
	SaveProducts(ctx context.Context, runID string, records []model.ProductRecord) error
	SavePromotions(ctx context.Context, runID string, records []model.PromotionRecord) error
	Products(ctx context.Context) ([]model.ProductRecord, error)
	Promotions(ctx context.Context) ([]model.PromotionRecord, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

// productColumns is the column order shared by both backends for inserts
// and selects.
var productColumns = []string{
	"run_id", "competitor", "product_name", "brand", "category",
	"price", "original_price", "launch_date", "product_url", "image_url",
	"description", "availability", "rating", "review_count", "sku",
	"confidence", "low_confidence", "source_url", "collected_at",
}

var promotionColumns = []string{
	"run_id", "competitor", "promo_title", "promo_title_key", "promo_type",
	"promo_code", "discount_value", "minimum_purchase", "start_date", "end_date",
	"applicable_products", "exclusions", "promo_url", "image_url",
	"description", "terms", "confidence", "low_confidence", "source_url",
	"collected_at",
}

func productRow(runID string, r model.ProductRecord) []any {
	return []any{
		runID, r.Competitor, r.ProductName, r.Brand, r.Category,
		r.Price, r.OriginalPrice, r.LaunchDate, r.ProductURL, r.ImageURL,
		r.Description, r.Availability, r.Rating, r.ReviewCount, r.SKU,
		r.Confidence, r.LowConfidence, r.SourceURL, r.CollectedAt,
	}
}

// selectProductsQuery and selectPromotionsQuery read back current records
// in deterministic order. Valid SQL for both backends.
func selectProductsQuery() string {
	return `SELECT competitor, product_name, brand, category,
	price, original_price, launch_date, product_url, image_url,
	description, availability, rating, review_count, sku,
	confidence, low_confidence, source_url, collected_at
	FROM products ORDER BY competitor, product_name`
}

func selectPromotionsQuery() string {
	return `SELECT competitor, promo_title, promo_type, promo_code,
	discount_value, minimum_purchase, start_date, end_date,
	applicable_products, exclusions, promo_url, image_url,
	description, terms, confidence, low_confidence, source_url, collected_at
	FROM promotions ORDER BY competitor, promo_title`
}

func promotionRow(runID string, r model.PromotionRecord) []any {
	return []any{
		runID, r.Competitor, r.PromoTitle, promoTitleKey(r), string(r.PromoType),
		r.PromoCode, r.DiscountValue, r.MinimumPurchase, r.StartDate, r.EndDate,
		r.ApplicableProducts, r.Exclusions, r.PromoURL, r.ImageURL,
		r.Description, r.Terms, r.Confidence, r.LowConfidence, r.SourceURL,
		r.CollectedAt,
	}
}
