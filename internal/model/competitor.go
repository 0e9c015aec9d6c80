package model

// Competitor is a monitored e-commerce competitor, loaded once per run from
// the competitors definition file. Immutable for the lifetime of a run.
type Competitor struct {
	ID             string   `json:"id" yaml:"id"`
	Name           string   `json:"name" yaml:"name"`
	NewProductURLs []string `json:"new_product_urls" yaml:"new_product_urls"`
	PromoURLs      []string `json:"promo_urls" yaml:"promo_urls"`
	CrawlDepth     int      `json:"crawl_depth" yaml:"crawl_depth"`
	PageLimit      int      `json:"page_limit" yaml:"page_limit"`
}

// AllURLs returns the competitor's seed URLs in configuration order,
// new-product URLs first.
func (c Competitor) AllURLs() []string {
	urls := make([]string, 0, len(c.NewProductURLs)+len(c.PromoURLs))
	urls = append(urls, c.NewProductURLs...)
	urls = append(urls, c.PromoURLs...)
	return urls
}
