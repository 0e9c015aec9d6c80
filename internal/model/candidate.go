package model

import (
	"encoding/json"
	"strconv"
	"strings"
)

// RawField is a pre-normalization field value. The extraction service reports
// some fields as JSON strings and some as bare numbers depending on the page;
// both decode to the raw string the Normalizer expects.
type RawField string

// UnmarshalJSON accepts a JSON string, number, boolean, or null.
func (f *RawField) UnmarshalJSON(data []byte) error {
	s := strings.TrimSpace(string(data))
	if s == "null" {
		*f = ""
		return nil
	}
	if len(s) >= 2 && s[0] == '"' {
		var v string
		if err := json.Unmarshal(data, &v); err != nil {
			return err
		}
		*f = RawField(v)
		return nil
	}
	// Bare number or boolean: keep the literal text.
	*f = RawField(s)
	return nil
}

// String returns the raw value as a plain string.
func (f RawField) String() string { return string(f) }

// IsEmpty reports whether the field is absent after trimming.
func (f RawField) IsEmpty() bool { return strings.TrimSpace(string(f)) == "" }

// Float parses the raw value as a float, tolerating surrounding whitespace.
func (f RawField) Float() (float64, bool) {
	v, err := strconv.ParseFloat(strings.TrimSpace(string(f)), 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// ProductCandidate holds raw product fields as reported by the extraction
// service for one page. No cleaning has been applied.
type ProductCandidate struct {
	ProductName   RawField `json:"product_name"`
	Brand         RawField `json:"brand"`
	Category      RawField `json:"category"`
	Price         RawField `json:"price"`
	OriginalPrice RawField `json:"original_price"`
	LaunchDate    RawField `json:"launch_date"`
	ProductURL    RawField `json:"product_url"`
	ImageURL      RawField `json:"image_url"`
	Description   RawField `json:"description"`
	Availability  RawField `json:"availability"`
	Rating        RawField `json:"rating"`
	ReviewCount   RawField `json:"review_count"`
	SKU           RawField `json:"sku"`
	Confidence    float64  `json:"confidence"`
}

// PromotionCandidate holds raw promotion fields for one page.
type PromotionCandidate struct {
	PromoTitle         RawField `json:"promo_title"`
	PromoType          RawField `json:"promo_type"`
	PromoCode          RawField `json:"promo_code"`
	DiscountValue      RawField `json:"discount_value"`
	MinimumPurchase    RawField `json:"minimum_purchase"`
	StartDate          RawField `json:"start_date"`
	EndDate            RawField `json:"end_date"`
	ApplicableProducts RawField `json:"applicable_products"`
	Exclusions         RawField `json:"exclusions"`
	PromoURL           RawField `json:"promo_url"`
	ImageURL           RawField `json:"image_url"`
	Description        RawField `json:"description"`
	Terms              RawField `json:"terms_and_conditions"`
	Confidence         float64  `json:"confidence"`
}

// CandidateRecord is one partially-trusted extraction result: exactly one of
// Product or Promotion is set unless Malformed, in which case neither is and
// the Normalizer rejects it with reason malformed-schema.
type CandidateRecord struct {
	Competitor string
	SourceURL  string
	Label      PageLabel

	Product   *ProductCandidate
	Promotion *PromotionCandidate

	Confidence    float64
	LowConfidence bool
	Malformed     bool
}
