package analytics

import (
	"cmp"
	"slices"
)

// DefaultAlertThreshold is the popularity at which a post is reported.
const DefaultAlertThreshold = 15.0

// SelectAlerts returns the documents at or above threshold, most popular first.
func SelectAlerts(docs []MergedDocument, threshold float64) []MergedDocument {
	var out []MergedDocument
	for _, d := range docs {
		if d.Popularity >= threshold {
			out = append(out, d)
		}
	}
	slices.SortStableFunc(out, func(a, b MergedDocument) int {
		return cmp.Or(cmp.Compare(b.Popularity, a.Popularity), cmp.Compare(a.URL, b.URL))
	})
	return out
}
