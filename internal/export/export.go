// Package export writes accepted records to CSV or XLSX files in an
// exports directory, one timestamped file set per invocation.
package export

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/compintel-cli/internal/model"
)

// productHeader is the fixed product column order.
var productHeader = []string{
	"competitor", "product_name", "brand", "category", "price",
	"original_price", "launch_date", "product_url", "image_url",
	"description", "availability", "rating", "review_count", "sku",
	"confidence", "low_confidence", "source_url", "collected_at",
}

// promotionHeader is the fixed promotion column order.
var promotionHeader = []string{
	"competitor", "promo_title", "promo_type", "promo_code",
	"discount_value", "minimum_purchase", "start_date", "end_date", "status",
	"applicable_products", "exclusions", "promo_url", "image_url",
	"description", "terms_and_conditions", "confidence", "low_confidence",
	"source_url", "collected_at",
}

func productRow(r model.ProductRecord) []string {
	return []string{
		r.Competitor, r.ProductName, r.Brand, r.Category, fmtFloat(r.Price),
		fmtFloat(r.OriginalPrice), r.LaunchDate, r.ProductURL, r.ImageURL,
		r.Description, r.Availability, fmtFloat(r.Rating), fmtInt(r.ReviewCount), r.SKU,
		fmtConfidence(r.Confidence), strconv.FormatBool(r.LowConfidence),
		r.SourceURL, r.CollectedAt.UTC().Format(time.RFC3339),
	}
}

func promotionRow(r model.PromotionRecord) []string {
	return []string{
		r.Competitor, r.PromoTitle, string(r.PromoType), r.PromoCode,
		fmtFloat(r.DiscountValue), fmtFloat(r.MinimumPurchase), r.StartDate, r.EndDate,
		string(r.Status(r.CollectedAt)),
		r.ApplicableProducts, r.Exclusions, r.PromoURL, r.ImageURL,
		r.Description, r.Terms, fmtConfidence(r.Confidence),
		strconv.FormatBool(r.LowConfidence),
		r.SourceURL, r.CollectedAt.UTC().Format(time.RFC3339),
	}
}

func fmtFloat(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}

func fmtInt(v *int) string {
	if v == nil {
		return ""
	}
	return strconv.Itoa(*v)
}

func fmtConfidence(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}

// ensureDir creates the export directory if needed.
func ensureDir(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return eris.Wrapf(err, "export: create dir %s", dir)
	}
	return nil
}

// stampedPath builds "<dir>/<base>_<timestamp>.<ext>".
func stampedPath(dir, base, ext string, now time.Time) string {
	return filepath.Join(dir, fmt.Sprintf("%s_%s.%s", base, now.UTC().Format("20060102_150405"), ext))
}
