package analytics

import (
	"cmp"
	"fmt"
	"slices"
)

// Post is a tagged document with its sentiment counts.
type Post struct {
	MergedDocument
	Positive int64
	Negative int64
}

// Report is everything the analyze stage produces for one day.
type Report struct {
	Posts      []Post
	Matches    []KeywordMatch
	Popularity []CategoryPopularity
	Categories []DocumentCategory
	Sentiment  []CategorySentiment
	Mentions   []KeywordMention
	Alerts     []MergedDocument
}

// Engine runs scoring, tagging, sentiment and rollups over merged documents.
type Engine struct {
	baselines Baselines
	taxonomy  *Taxonomy
	lexicon   *Lexicon
	threshold float64
}

// NewEngine builds an Engine. A non-positive threshold selects DefaultAlertThreshold.
func NewEngine(baselines Baselines, taxonomy *Taxonomy, lexicon *Lexicon, threshold float64) (*Engine, error) {
	if taxonomy == nil || lexicon == nil {
		return nil, fmt.Errorf("taxonomy and lexicon are required")
	}
	if err := taxonomy.Validate(); err != nil {
		return nil, fmt.Errorf("validate taxonomy: %w", err)
	}
	if threshold <= 0 {
		threshold = DefaultAlertThreshold
	}
	return &Engine{baselines: baselines, taxonomy: taxonomy, lexicon: lexicon, threshold: threshold}, nil
}

// NewDefaultEngine builds an Engine from the embedded tables plus baseline overrides.
func NewDefaultEngine(overrides map[string]Baseline, threshold float64) (*Engine, error) {
	base, err := DefaultBaselines()
	if err != nil {
		return nil, err
	}
	base, err = base.WithOverrides(overrides)
	if err != nil {
		return nil, err
	}
	tax, err := DefaultTaxonomy()
	if err != nil {
		return nil, err
	}
	lex, err := DefaultLexicon()
	if err != nil {
		return nil, err
	}
	return NewEngine(base, tax, lex, threshold)
}

// Threshold returns the alert threshold in effect.
func (e *Engine) Threshold() float64 {
	return e.threshold
}

// Analyze scores docs and derives every view. docs is not modified.
func (e *Engine) Analyze(docs []MergedDocument) Report {
	scored := slices.Clone(docs)
	e.baselines.Apply(scored)

	matches, tagged := e.taxonomy.TagAll(scored)
	counts := e.lexicon.CountAll(tagged)

	posts := make([]Post, 0, len(tagged))
	for i, d := range tagged {
		posts = append(posts, Post{MergedDocument: d, Positive: counts[i].Positive, Negative: counts[i].Negative})
	}
	slices.SortStableFunc(posts, func(a, b Post) int {
		return cmp.Or(cmp.Compare(a.Entity, b.Entity), cmp.Compare(b.Popularity, a.Popularity))
	})

	return Report{
		Posts:      posts,
		Matches:    matches,
		Popularity: PopularityByCategory(matches),
		Categories: DocumentCategories(tagged, matches),
		Sentiment:  CategorySentimentTotals(matches, counts),
		Mentions:   KeywordMentions(matches),
		Alerts:     SelectAlerts(scored, e.threshold),
	}
}
