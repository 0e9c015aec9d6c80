package model

import "time"

// PageLabel routes a fetched page to the matching extraction schema.
type PageLabel string

const (
	LabelProduct   PageLabel = "product"
	LabelPromotion PageLabel = "promotion"
	LabelOther     PageLabel = "other"
)

// AllPageLabels returns every defined page label.
func AllPageLabels() []PageLabel {
	return []PageLabel{LabelProduct, LabelPromotion, LabelOther}
}

// ValidPageLabel reports whether s names a defined label.
func ValidPageLabel(s string) bool {
	switch PageLabel(s) {
	case LabelProduct, LabelPromotion, LabelOther:
		return true
	}
	return false
}

// ConfidenceTier is the certainty bucket of a classification decision.
// Ambiguous classifications escalate to the content-understanding service.
type ConfidenceTier string

const (
	TierDecisive  ConfidenceTier = "decisive"
	TierAmbiguous ConfidenceTier = "ambiguous"
)

// RawPage is a fetched page as delivered by the page fetcher. It is consumed
// once by classification/extraction and not retained afterward.
type RawPage struct {
	URL          string    `json:"url"`
	CompetitorID string    `json:"competitor_id"`
	Title        string    `json:"title,omitempty"`
	HTML         string    `json:"html,omitempty"`
	Markdown     string    `json:"markdown,omitempty"`
	FetchedAt    time.Time `json:"fetched_at"`
}

// Content returns the page body preferred for language-model input:
// Markdown when present, raw HTML otherwise.
func (p RawPage) Content() string {
	if p.Markdown != "" {
		return p.Markdown
	}
	return p.HTML
}

// Classification is the outcome of the two-tier page labeling decision.
type Classification struct {
	Label     PageLabel      `json:"label"`
	Tier      ConfidenceTier `json:"tier"`
	Escalated bool           `json:"escalated"`
}
