package model

import (
	"fmt"
	"strings"
	"time"
)

// PromoType is the canonical promotion category. Richer strings reported by
// the extraction service (clearance, flash_sale, seasonal_sale, ...) map to
// PromoTypeOther.
type PromoType string

const (
	PromoTypePercentOff   PromoType = "percent_off"
	PromoTypeAmountOff    PromoType = "amount_off"
	PromoTypeBOGO         PromoType = "bogo"
	PromoTypeFreeShipping PromoType = "free_shipping"
	PromoTypeOther        PromoType = "other"
)

// ParsePromoType maps a raw promotion-type string onto the canonical set.
func ParsePromoType(s string) PromoType {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "percent_off", "percentage_off", "percent-off", "percentage":
		return PromoTypePercentOff
	case "amount_off", "dollar_off", "amount-off", "dollar-off":
		return PromoTypeAmountOff
	case "bogo", "buy_one_get_one", "buy-one-get-one":
		return PromoTypeBOGO
	case "free_shipping", "free-shipping":
		return PromoTypeFreeShipping
	default:
		return PromoTypeOther
	}
}

// ProductRecord is a validated, normalized product entry ready for
// deduplication and storage.
type ProductRecord struct {
	Competitor    string   `json:"competitor"`
	ProductName   string   `json:"product_name"`
	Brand         string   `json:"brand,omitempty"`
	Category      string   `json:"category,omitempty"`
	Price         *float64 `json:"price,omitempty"`
	OriginalPrice *float64 `json:"original_price,omitempty"`
	LaunchDate    string   `json:"launch_date,omitempty"` // ISO calendar date
	ProductURL    string   `json:"product_url"`
	ImageURL      string   `json:"image_url,omitempty"`
	Description   string   `json:"description,omitempty"`
	Availability  string   `json:"availability,omitempty"`
	Rating        *float64 `json:"rating,omitempty"`
	ReviewCount   *int     `json:"review_count,omitempty"`
	SKU           string   `json:"sku,omitempty"`

	Confidence    float64   `json:"confidence"`
	LowConfidence bool      `json:"low_confidence,omitempty"`
	SourceURL     string    `json:"source_url"`
	CollectedAt   time.Time `json:"collected_at"`
}

// Key returns the product uniqueness key: (competitor, product_url).
func (r ProductRecord) Key() string {
	return r.Competitor + "\x00" + r.ProductURL
}

// OptionalFieldCount counts populated optional fields, the first dedup
// tie-break criterion.
func (r ProductRecord) OptionalFieldCount() int {
	n := 0
	for _, s := range []string{r.Brand, r.Category, r.LaunchDate, r.ImageURL, r.Description, r.Availability, r.SKU} {
		if s != "" {
			n++
		}
	}
	if r.Price != nil {
		n++
	}
	if r.OriginalPrice != nil {
		n++
	}
	if r.Rating != nil {
		n++
	}
	if r.ReviewCount != nil {
		n++
	}
	return n
}

// HasNumericSignal reports whether the second tie-break signal (a parsed
// price or date) is present.
func (r ProductRecord) HasNumericSignal() bool {
	return r.Price != nil || r.LaunchDate != ""
}

// PromotionRecord is a validated, normalized promotion entry.
type PromotionRecord struct {
	Competitor         string    `json:"competitor"`
	PromoTitle         string    `json:"promo_title"`
	PromoType          PromoType `json:"promo_type"`
	PromoCode          string    `json:"promo_code,omitempty"`
	DiscountValue      *float64  `json:"discount_value,omitempty"`
	MinimumPurchase    *float64  `json:"minimum_purchase,omitempty"`
	StartDate          string    `json:"start_date,omitempty"` // ISO calendar date
	EndDate            string    `json:"end_date,omitempty"`
	ApplicableProducts string    `json:"applicable_products,omitempty"`
	Exclusions         string    `json:"exclusions,omitempty"`
	PromoURL           string    `json:"promo_url"`
	ImageURL           string    `json:"image_url,omitempty"`
	Description        string    `json:"description,omitempty"`
	Terms              string    `json:"terms_and_conditions,omitempty"`

	Confidence    float64   `json:"confidence"`
	LowConfidence bool      `json:"low_confidence,omitempty"`
	SourceURL     string    `json:"source_url"`
	CollectedAt   time.Time `json:"collected_at"`
}

// Key returns the promotion uniqueness key:
// (competitor, promo_url, lowercased promo_title).
func (r PromotionRecord) Key() string {
	return r.Competitor + "\x00" + r.PromoURL + "\x00" + strings.ToLower(r.PromoTitle)
}

// OptionalFieldCount counts populated optional fields.
func (r PromotionRecord) OptionalFieldCount() int {
	n := 0
	for _, s := range []string{r.PromoCode, r.StartDate, r.EndDate, r.ApplicableProducts, r.Exclusions, r.ImageURL, r.Description, r.Terms} {
		if s != "" {
			n++
		}
	}
	if r.DiscountValue != nil {
		n++
	}
	if r.MinimumPurchase != nil {
		n++
	}
	return n
}

// HasNumericSignal reports whether a discount value or date pair member is
// present.
func (r PromotionRecord) HasNumericSignal() bool {
	return r.DiscountValue != nil || r.StartDate != "" || r.EndDate != ""
}

// PromoStatus is the promotion lifecycle state derived from its date pair.
type PromoStatus string

const (
	PromoStatusActive   PromoStatus = "active"
	PromoStatusUpcoming PromoStatus = "upcoming"
	PromoStatusExpired  PromoStatus = "expired"
	PromoStatusUnknown  PromoStatus = "unknown"
)

// Status derives the promotion state as of a reference time. With no dates
// the state is unknown; a missing start or end is treated as open on that
// side. ISO dates compare lexicographically, so no parsing is needed.
func (r PromotionRecord) Status(asOf time.Time) PromoStatus {
	if r.StartDate == "" && r.EndDate == "" {
		return PromoStatusUnknown
	}
	day := asOf.Format("2006-01-02")
	if r.StartDate != "" && day < r.StartDate {
		return PromoStatusUpcoming
	}
	if r.EndDate != "" && day > r.EndDate {
		return PromoStatusExpired
	}
	return PromoStatusActive
}

// RejectReason classifies why the Normalizer dropped a candidate.
type RejectReason string

const (
	RejectMissingRequiredField RejectReason = "missing-required-field"
	RejectInvalidURL           RejectReason = "invalid-url"
	RejectMalformedSchema      RejectReason = "malformed-schema"
)

// Rejection records a dropped candidate with its attributable reason.
type Rejection struct {
	Reason    RejectReason
	SourceURL string
	Label     PageLabel
}

func (r Rejection) String() string {
	return fmt.Sprintf("%s (%s, %s)", r.Reason, r.Label, r.SourceURL)
}
