package pipeline

import (
	"context"
	"encoding/json"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/sells-group/compintel-cli/internal/infer"
	"github.com/sells-group/compintel-cli/internal/model"
	"github.com/sells-group/compintel-cli/internal/resilience"
)

// escalationExcerptLen caps the content sent to the inference service when a
// heuristic decision is ambiguous.
const escalationExcerptLen = 2000

// decisiveMargin is how far the top label's heuristic score must beat the
// runner-up to skip escalation.
const decisiveMargin = 2

// productPathSegments and promoPathSegments map URL path segments to label
// evidence. Only whole segments match, so /blog/sale-tips does not count.
var productPathSegments = map[string]bool{
	"product":      true,
	"products":     true,
	"p":            true,
	"item":         true,
	"items":        true,
	"shop":         true,
	"new":          true,
	"new-arrivals": true,
	"new-products": true,
}

var promoPathSegments = map[string]bool{
	"sale":       true,
	"sales":      true,
	"promo":      true,
	"promos":     true,
	"promotions": true,
	"deal":       true,
	"deals":      true,
	"offers":     true,
	"specials":   true,
	"clearance":  true,
	"coupon":     true,
	"coupons":    true,
	"discount":   true,
	"discounts":  true,
}

// promoTextTokens are discount phrases counted in visible page text.
var promoTextTokens = []string{
	"% off",
	"percent off",
	"promo code",
	"coupon code",
	"discount code",
	"free shipping",
	"buy one get one",
	"bogo",
	"clearance",
	"flash sale",
	"sale ends",
	"limited time offer",
}

// priceTokenRe matches price-like tokens ($129.99, $1,299) counted as
// product evidence in visible text.
var priceTokenRe = regexp.MustCompile(`\$\d{1,3}(?:,\d{3})*(?:\.\d{2})?`)

// addToCartRe matches commerce phrases found on product detail/listing pages.
var addToCartRe = regexp.MustCompile(`(?i)add to (?:cart|bag)|in stock|out of stock|sku[:\s]`)

// Classify labels one fetched page, escalating ambiguous heuristic decisions
// to the inference service. It never returns an error that should block the
// page: a failed escalation degrades the label to other.
func Classify(ctx context.Context, svc infer.Service, page model.RawPage) model.Classification {
	label, tier := heuristicLabel(page)
	if tier == model.TierDecisive {
		return model.Classification{Label: label, Tier: tier}
	}

	escalated, err := escalate(ctx, svc, page)
	if err != nil {
		zap.L().Warn("classify: escalation failed, labeling other",
			zap.String("url", page.URL),
			zap.Error(err),
		)
		return model.Classification{Label: model.LabelOther, Tier: model.TierAmbiguous, Escalated: true}
	}
	return model.Classification{Label: escalated, Tier: model.TierAmbiguous, Escalated: true}
}

// heuristicLabel is the pure first-tier decision: URL path-segment evidence
// plus visible-text token evidence. Decisive only when one label clearly
// outscores the other.
func heuristicLabel(page model.RawPage) (model.PageLabel, model.ConfidenceTier) {
	text := visibleText(page)
	if strings.TrimSpace(text) == "" {
		return model.LabelOther, model.TierDecisive
	}

	productScore, promoScore := pathScores(page.URL)

	lower := strings.ToLower(text)
	for _, token := range promoTextTokens {
		promoScore += strings.Count(lower, token)
	}
	if prices := len(priceTokenRe.FindAllString(text, 6)); prices > 0 {
		productScore += prices
	}
	if addToCartRe.MatchString(text) {
		productScore += 2
	}

	top, runner := productScore, promoScore
	label := model.LabelProduct
	if promoScore > productScore {
		top, runner = promoScore, productScore
		label = model.LabelPromotion
	}

	if top == 0 {
		return model.LabelOther, model.TierDecisive
	}
	if top-runner >= decisiveMargin {
		return label, model.TierDecisive
	}
	return label, model.TierAmbiguous
}

// pathScores scores the URL path segments for each label. A root path is
// treated as a homepage and contributes nothing.
func pathScores(rawURL string) (product, promo int) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return 0, 0
	}
	for _, seg := range strings.Split(strings.Trim(u.Path, "/"), "/") {
		seg = strings.ToLower(seg)
		if productPathSegments[seg] {
			product += 3
		}
		if promoPathSegments[seg] {
			promo += 3
		}
	}
	return product, promo
}

// visibleText returns the page text used for token scoring: markdown when
// present, otherwise the HTML body with script/style removed.
func visibleText(page model.RawPage) string {
	if page.Markdown != "" {
		return page.Markdown
	}
	if page.HTML == "" {
		return ""
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(page.HTML))
	if err != nil {
		return ""
	}
	doc.Find("script, style, noscript").Remove()
	return doc.Text()
}

// escalate asks the inference service for a label on a content excerpt.
// Transient failures retry once before giving up.
func escalate(ctx context.Context, svc infer.Service, page model.RawPage) (model.PageLabel, error) {
	content := truncateContent(page.Content(), escalationExcerptLen)

	retry := resilience.DefaultRetryConfig()
	retry.MaxAttempts = 2

	raw, err := resilience.DoVal(ctx, retry, func(ctx context.Context) (json.RawMessage, error) {
		return svc.Infer(ctx, infer.SchemaPageLabel, content)
	})
	if err != nil {
		return model.LabelOther, err
	}

	var result struct {
		Label      string  `json:"label"`
		Confidence float64 `json:"confidence"`
	}
	if err := json.Unmarshal(raw, &result); err != nil {
		// Unparseable output is a classification miss, not a page failure.
		return model.LabelOther, nil
	}
	if !model.ValidPageLabel(strings.ToLower(result.Label)) {
		return model.LabelOther, nil
	}
	return model.PageLabel(strings.ToLower(result.Label)), nil
}
