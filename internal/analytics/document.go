package analytics

import "github.com/JakeFAU/carbuzz/internal/crawler"

// MergedDocument is a post joined with its comments and scored.
type MergedDocument struct {
	crawler.Document
	// CommentAgg is every comment on the post joined with a single space, or "".
	CommentAgg string
	Popularity float64
}

// Text is the haystack used for keyword and sentiment matching.
func (d MergedDocument) Text() string {
	return d.Title + " " + d.Body + " " + d.CommentAgg
}
