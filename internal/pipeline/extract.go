package pipeline

import (
	"context"
	"encoding/json"
	"unicode/utf8"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/compintel-cli/internal/infer"
	"github.com/sells-group/compintel-cli/internal/model"
	"github.com/sells-group/compintel-cli/internal/resilience"
)

// maxExtractContentLen caps page content sent for extraction. Listing pages
// beyond this are almost always boilerplate past the fold.
const maxExtractContentLen = 30000

// ExtractConfig bounds the extraction attempt loop.
type ExtractConfig struct {
	// Retries is how many times a malformed response is retried with the
	// same input before the page is given up. Default 2.
	Retries int

	// ConfidenceThreshold flags candidates below it as low-confidence.
	// Default 0.6.
	ConfidenceThreshold float64
}

func (c ExtractConfig) withDefaults() ExtractConfig {
	if c.Retries <= 0 {
		c.Retries = 2
	}
	if c.ConfidenceThreshold <= 0 {
		c.ConfidenceThreshold = 0.6
	}
	return c
}

// extractEnvelope defers per-item decoding so one bad item marks only
// itself malformed instead of discarding the whole page.
type extractEnvelope struct {
	Products   []json.RawMessage `json:"products"`
	Promotions []json.RawMessage `json:"promotions"`
	Confidence float64           `json:"confidence"`
}

// Extract runs field extraction for one labeled page and returns raw
// candidate records. Pages labeled other yield nothing. A response that
// stays malformed after the retry budget returns an ExtractionError and
// zero candidates.
func Extract(ctx context.Context, svc infer.Service, page model.RawPage, label model.PageLabel, cfg ExtractConfig) ([]model.CandidateRecord, error) {
	if label == model.LabelOther {
		return nil, nil
	}
	cfg = cfg.withDefaults()

	schema := infer.SchemaProducts
	if label == model.LabelPromotion {
		schema = infer.SchemaPromotions
	}

	content := truncateContent(page.Content(), maxExtractContentLen)

	attempts := cfg.Retries + 1
	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if ctx.Err() != nil {
			return nil, &ExtractionError{URL: page.URL, Err: ctx.Err()}
		}

		raw, err := resilience.DoVal(ctx, resilience.DefaultRetryConfig(), func(ctx context.Context) (json.RawMessage, error) {
			return svc.Infer(ctx, schema, content)
		})
		if err != nil {
			return nil, &ExtractionError{URL: page.URL, Err: err}
		}

		var env extractEnvelope
		if err := json.Unmarshal(raw, &env); err != nil {
			lastErr = err
			zap.L().Debug("extract: malformed response, retrying",
				zap.String("url", page.URL),
				zap.Int("attempt", attempt+1),
				zap.Error(err),
			)
			continue
		}
		return decodeCandidates(page, label, env, cfg), nil
	}

	return nil, &ExtractionError{URL: page.URL, Err: eris.Wrap(lastErr, "extract: malformed response after retries")}
}

// decodeCandidates decodes each envelope item independently. Items that fail
// typed decoding become malformed candidate records; the Normalizer rejects
// those with an attributable reason.
func decodeCandidates(page model.RawPage, label model.PageLabel, env extractEnvelope, cfg ExtractConfig) []model.CandidateRecord {
	items := env.Products
	if label == model.LabelPromotion {
		items = env.Promotions
	}

	out := make([]model.CandidateRecord, 0, len(items))
	for _, item := range items {
		rec := model.CandidateRecord{
			Competitor: page.CompetitorID,
			SourceURL:  page.URL,
			Label:      label,
			Confidence: env.Confidence,
		}

		switch label {
		case model.LabelProduct:
			var p model.ProductCandidate
			if err := json.Unmarshal(item, &p); err != nil {
				rec.Malformed = true
			} else {
				if p.Confidence > 0 {
					rec.Confidence = p.Confidence
				}
				rec.Product = &p
			}
		case model.LabelPromotion:
			var p model.PromotionCandidate
			if err := json.Unmarshal(item, &p); err != nil {
				rec.Malformed = true
			} else {
				if p.Confidence > 0 {
					rec.Confidence = p.Confidence
				}
				rec.Promotion = &p
			}
		}

		rec.LowConfidence = rec.Confidence < cfg.ConfidenceThreshold
		out = append(out, rec)
	}
	return out
}

// truncateContent cuts content at n bytes, backing off so a multi-byte rune
// is never split at the boundary.
func truncateContent(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
