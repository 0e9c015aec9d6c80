package model

import "sync"

// RunStats is the single telemetry surface the pipeline exposes: every
// skipped page and dropped candidate is attributable to one of its counters.
type RunStats struct {
	PagesFetched     int                  `json:"pages_fetched"`
	FetchFailures    int                  `json:"fetch_failures"`
	PagesByLabel     map[PageLabel]int    `json:"pages_by_label"`
	Escalations      int                  `json:"classify_escalations"`
	Candidates       int                  `json:"candidates_extracted"`
	LowConfidence    int                  `json:"candidates_low_confidence"`
	ExtractFailures  int                  `json:"extraction_failures"`
	Rejections       map[RejectReason]int `json:"rejections"`
	DuplicatesMerged int                  `json:"duplicates_collapsed"`
	Products         int                  `json:"products_final"`
	Promotions       int                  `json:"promotions_final"`
}

// StatsCollector accumulates RunStats from concurrent page workers.
type StatsCollector struct {
	mu    sync.Mutex
	stats RunStats
}

// NewStatsCollector returns a zeroed collector with maps initialized.
func NewStatsCollector() *StatsCollector {
	return &StatsCollector{
		stats: RunStats{
			PagesByLabel: make(map[PageLabel]int),
			Rejections:   make(map[RejectReason]int),
		},
	}
}

func (c *StatsCollector) AddPagesFetched(n int) {
	c.mu.Lock()
	c.stats.PagesFetched += n
	c.mu.Unlock()
}

func (c *StatsCollector) AddFetchFailure() {
	c.mu.Lock()
	c.stats.FetchFailures++
	c.mu.Unlock()
}

func (c *StatsCollector) AddClassified(label PageLabel, escalated bool) {
	c.mu.Lock()
	c.stats.PagesByLabel[label]++
	if escalated {
		c.stats.Escalations++
	}
	c.mu.Unlock()
}

func (c *StatsCollector) AddCandidates(total, lowConfidence int) {
	c.mu.Lock()
	c.stats.Candidates += total
	c.stats.LowConfidence += lowConfidence
	c.mu.Unlock()
}

func (c *StatsCollector) AddExtractFailure() {
	c.mu.Lock()
	c.stats.ExtractFailures++
	c.mu.Unlock()
}

func (c *StatsCollector) AddRejection(reason RejectReason) {
	c.mu.Lock()
	c.stats.Rejections[reason]++
	c.mu.Unlock()
}

func (c *StatsCollector) AddDuplicates(n int) {
	c.mu.Lock()
	c.stats.DuplicatesMerged += n
	c.mu.Unlock()
}

func (c *StatsCollector) AddFinal(products, promotions int) {
	c.mu.Lock()
	c.stats.Products += products
	c.stats.Promotions += promotions
	c.mu.Unlock()
}

// Snapshot returns a deep copy of the accumulated stats.
func (c *StatsCollector) Snapshot() RunStats {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := c.stats
	out.PagesByLabel = make(map[PageLabel]int, len(c.stats.PagesByLabel))
	for k, v := range c.stats.PagesByLabel {
		out.PagesByLabel[k] = v
	}
	out.Rejections = make(map[RejectReason]int, len(c.stats.Rejections))
	for k, v := range c.stats.Rejections {
		out.Rejections[k] = v
	}
	return out
}
