package pipeline

import "github.com/JakeFAU/carbuzz/internal/crawler"

// ParseStats counts one platform's extraction results.
type ParseStats struct {
	Parsed   int `json:"parsed"`
	Dropped  int `json:"dropped"`
	Issues   int `json:"issues"`
	Comments int `json:"comments"`
}

// MergeStats describes the merged day.
type MergeStats struct {
	Platforms []string `json:"platforms"`
	Contents  int      `json:"contents"`
	Comments  int      `json:"comments"`
}

// AnalyzeStats describes the analyze stage output.
type AnalyzeStats struct {
	Documents int `json:"documents"`
	Tagged    int `json:"tagged"`
	Matches   int `json:"matches"`
	Alerts    int `json:"alerts"`
}

// LoadStats describes the warehouse load.
type LoadStats struct {
	Skipped  bool   `json:"skipped"`
	Reason   string `json:"reason,omitempty"`
	Eligible int    `json:"eligible"`
	Inserted int    `json:"inserted"`
	Error    string `json:"error,omitempty"`
}

// NotifyStats describes alert delivery.
type NotifyStats struct {
	Alerts    int    `json:"alerts"`
	Slack     bool   `json:"slack"`
	Published bool   `json:"published"`
	Error     string `json:"error,omitempty"`
}

// RunStats aggregates every stage of one daily run.
type RunStats struct {
	Date    string                        `json:"date"`
	Crawl   map[string]crawler.CrawlStats `json:"crawl,omitempty"`
	Parse   map[string]ParseStats         `json:"parse,omitempty"`
	Merge   *MergeStats                   `json:"merge,omitempty"`
	Analyze *AnalyzeStats                 `json:"analyze,omitempty"`
	Load    *LoadStats                    `json:"load,omitempty"`
	Notify  *NotifyStats                  `json:"notify,omitempty"`
}
