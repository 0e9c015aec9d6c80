package pipeline

import (
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/araddon/dateparse"
	"golang.org/x/text/unicode/norm"

	"github.com/sells-group/compintel-cli/internal/model"
)

// Price plausibility bounds. Values outside this range are treated as
// extraction noise and dropped rather than stored.
const (
	minPlausiblePrice = 0.01
	maxPlausiblePrice = 100000
)

// dateLayouts are tried in order before falling back to dateparse.
var dateLayouts = []string{
	"2006-01-02",
	"2006-01-02T15:04:05Z07:00",
	"01/02/2006",
	"Jan 2, 2006",
	"Jan 2 2006",
	"January 2, 2006",
	"January 2 2006",
	"2 Jan 2006",
	"2 January 2006",
}

// promoCodePrefixes are label prefixes the extraction service sometimes
// includes verbatim from the page ("CODE: SAVE20").
var promoCodePrefixes = []string{"CODE:", "PROMO:", "USE:", "COUPON:"}

var numberRe = regexp.MustCompile(`-?\d+(?:\.\d+)?`)

// cleanText applies the idempotent text rules: NFC normalization, control
// character removal (0x00-0x1F, 0x7F-0x9F), whitespace collapse, trim.
func cleanText(s string) string {
	s = norm.NFC.String(s)
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r < 0x20 || (r >= 0x7F && r <= 0x9F) {
			b.WriteByte(' ')
			continue
		}
		b.WriteRune(r)
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// parsePrice extracts a non-negative decimal from a raw price string,
// tolerating currency symbols, thousands separators, and USD affixes.
// Returns nil when the value is unparseable or implausible.
func parsePrice(raw string) *float64 {
	s := cleanText(raw)
	if s == "" {
		return nil
	}
	s = strings.ToLower(s)
	for _, junk := range []string{"usd", "$", "€", "£", "¥", ","} {
		s = strings.ReplaceAll(s, junk, "")
	}
	s = strings.TrimSpace(s)

	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		// "from 12.99" and similar: take the first number in the string.
		m := numberRe.FindString(s)
		if m == "" {
			return nil
		}
		v, err = strconv.ParseFloat(m, 64)
		if err != nil {
			return nil
		}
	}
	if v < minPlausiblePrice || v > maxPlausiblePrice {
		return nil
	}
	return &v
}

// parseDate normalizes a raw date string to an ISO calendar date
// (2006-01-02). Returns "" when no layout matches.
func parseDate(raw string) string {
	s := cleanText(raw)
	if s == "" {
		return ""
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Format("2006-01-02")
		}
	}
	if t, err := dateparse.ParseAny(s); err == nil {
		return t.Format("2006-01-02")
	}
	return ""
}

// resolveURL resolves raw against the page's source URL and reports whether
// the result is an absolute http(s) URL.
func resolveURL(raw, sourceURL string) (string, bool) {
	s := cleanText(raw)
	if s == "" {
		return "", false
	}
	u, err := url.Parse(s)
	if err != nil {
		return "", false
	}
	if !u.IsAbs() {
		base, berr := url.Parse(sourceURL)
		if berr != nil || !base.IsAbs() {
			return "", false
		}
		u = base.ResolveReference(u)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", false
	}
	return u.String(), true
}

// cleanPromoCode uppercases a promo code and strips label prefixes the
// service occasionally copies from the page.
func cleanPromoCode(raw string) string {
	s := strings.ToUpper(cleanText(raw))
	for _, prefix := range promoCodePrefixes {
		s = strings.TrimSpace(strings.TrimPrefix(s, prefix))
	}
	return s
}

// clampRating parses a 0-5 star rating; out-of-range values are dropped.
func clampRating(raw model.RawField) *float64 {
	v, ok := raw.Float()
	if !ok || v < 0 || v > 5 {
		return nil
	}
	return &v
}

// parseCount parses a non-negative integer count, tolerating separators
// ("1,204 reviews").
func parseCount(raw model.RawField) *int {
	s := strings.ReplaceAll(cleanText(raw.String()), ",", "")
	if s == "" {
		return nil
	}
	m := numberRe.FindString(s)
	if m == "" || strings.Contains(m, ".") {
		return nil
	}
	n, err := strconv.Atoi(m)
	if err != nil || n < 0 {
		return nil
	}
	return &n
}

// NormalizeProduct converts one raw product candidate into a validated
// ProductRecord. A non-nil Rejection means the candidate was dropped;
// individual unparseable optional values degrade to absent instead.
func NormalizeProduct(c model.CandidateRecord, now time.Time) (model.ProductRecord, *model.Rejection) {
	reject := func(reason model.RejectReason) (model.ProductRecord, *model.Rejection) {
		return model.ProductRecord{}, &model.Rejection{
			Reason:    reason,
			SourceURL: c.SourceURL,
			Label:     model.LabelProduct,
		}
	}

	if c.Malformed || c.Product == nil {
		return reject(model.RejectMalformedSchema)
	}
	p := c.Product

	name := cleanText(p.ProductName.String())
	if name == "" {
		return reject(model.RejectMissingRequiredField)
	}

	rawURL := p.ProductURL.String()
	if strings.TrimSpace(rawURL) == "" {
		// Product pages usually describe themselves; fall back to the page.
		rawURL = c.SourceURL
	}
	productURL, ok := resolveURL(rawURL, c.SourceURL)
	if !ok {
		return reject(model.RejectInvalidURL)
	}

	rec := model.ProductRecord{
		Competitor:    c.Competitor,
		ProductName:   name,
		Brand:         cleanText(p.Brand.String()),
		Category:      cleanText(p.Category.String()),
		Price:         parsePrice(p.Price.String()),
		OriginalPrice: parsePrice(p.OriginalPrice.String()),
		LaunchDate:    parseDate(p.LaunchDate.String()),
		ProductURL:    productURL,
		Description:   cleanText(p.Description.String()),
		Availability:  cleanText(p.Availability.String()),
		Rating:        clampRating(p.Rating),
		ReviewCount:   parseCount(p.ReviewCount),
		SKU:           cleanText(p.SKU.String()),
		Confidence:    c.Confidence,
		LowConfidence: c.LowConfidence,
		SourceURL:     c.SourceURL,
		CollectedAt:   now,
	}
	if img, ok := resolveURL(p.ImageURL.String(), c.SourceURL); ok {
		rec.ImageURL = img
	}
	return rec, nil
}

// NormalizePromotion converts one raw promotion candidate into a validated
// PromotionRecord, with the same degrade-over-reject policy as products.
func NormalizePromotion(c model.CandidateRecord, now time.Time) (model.PromotionRecord, *model.Rejection) {
	reject := func(reason model.RejectReason) (model.PromotionRecord, *model.Rejection) {
		return model.PromotionRecord{}, &model.Rejection{
			Reason:    reason,
			SourceURL: c.SourceURL,
			Label:     model.LabelPromotion,
		}
	}

	if c.Malformed || c.Promotion == nil {
		return reject(model.RejectMalformedSchema)
	}
	p := c.Promotion

	title := cleanText(p.PromoTitle.String())
	if title == "" {
		return reject(model.RejectMissingRequiredField)
	}

	rawURL := p.PromoURL.String()
	if strings.TrimSpace(rawURL) == "" {
		rawURL = c.SourceURL
	}
	promoURL, ok := resolveURL(rawURL, c.SourceURL)
	if !ok {
		return reject(model.RejectInvalidURL)
	}

	promoType := model.ParsePromoType(p.PromoType.String())

	discount := parsePrice(p.DiscountValue.String())
	if discount != nil && promoType == model.PromoTypePercentOff && *discount > 100 {
		discount = nil
	}

	start := parseDate(p.StartDate.String())
	end := parseDate(p.EndDate.String())
	if start != "" && end != "" && start > end {
		// Inverted range is extraction noise; the record itself stays.
		start, end = "", ""
	}

	rec := model.PromotionRecord{
		Competitor:         c.Competitor,
		PromoTitle:         title,
		PromoType:          promoType,
		PromoCode:          cleanPromoCode(p.PromoCode.String()),
		DiscountValue:      discount,
		MinimumPurchase:    parsePrice(p.MinimumPurchase.String()),
		StartDate:          start,
		EndDate:            end,
		ApplicableProducts: cleanText(p.ApplicableProducts.String()),
		Exclusions:         cleanText(p.Exclusions.String()),
		PromoURL:           promoURL,
		Description:        cleanText(p.Description.String()),
		Terms:              cleanText(p.Terms.String()),
		Confidence:         c.Confidence,
		LowConfidence:      c.LowConfidence,
		SourceURL:          c.SourceURL,
		CollectedAt:        now,
	}
	if img, ok := resolveURL(p.ImageURL.String(), c.SourceURL); ok {
		rec.ImageURL = img
	}
	return rec, nil
}
