package analytics

import (
	"cmp"
	"slices"
)

// CategoryPopularity is the popularity sum of one (entity, large, small) group.
type CategoryPopularity struct {
	Entity        string
	LargeCategory string
	SmallCategory string
	PopularitySum float64
}

// DocumentCategory places one document in one small category.
type DocumentCategory struct {
	Entity        string
	URL           string
	Title         string
	Popularity    float64
	SmallCategory string
}

// CategorySentiment is the sentiment sum of one (entity, large, small) group.
type CategorySentiment struct {
	Entity        string
	LargeCategory string
	SmallCategory string
	PositiveSum   int64
	NegativeSum   int64
}

// KeywordMention is the popularity sum of one (entity, keyword) group.
type KeywordMention struct {
	Entity        string
	Keyword       string
	PopularitySum float64
}

type categoryKey struct {
	entity, large, small string
}

// PopularityByCategory sums match popularity by (entity, large, small).
// A document matching several keywords of one category counts once per keyword.
func PopularityByCategory(matches []KeywordMatch) []CategoryPopularity {
	sums := make(map[categoryKey]float64)
	var order []categoryKey
	for _, m := range matches {
		k := categoryKey{m.Entity, m.LargeCategory, m.SmallCategory}
		if _, ok := sums[k]; !ok {
			order = append(order, k)
		}
		sums[k] += m.Popularity
	}
	out := make([]CategoryPopularity, 0, len(order))
	for _, k := range order {
		out = append(out, CategoryPopularity{
			Entity:        k.entity,
			LargeCategory: k.large,
			SmallCategory: k.small,
			PopularitySum: sums[k],
		})
	}
	slices.SortFunc(out, func(a, b CategoryPopularity) int {
		return cmp.Or(
			cmp.Compare(a.Entity, b.Entity),
			cmp.Compare(a.LargeCategory, b.LargeCategory),
			cmp.Compare(a.SmallCategory, b.SmallCategory),
		)
	})
	return out
}

// DocumentCategories joins each tagged document to its distinct small categories.
func DocumentCategories(docs []MergedDocument, matches []KeywordMatch) []DocumentCategory {
	type pair struct{ url, small string }
	seen := make(map[pair]struct{})
	smalls := make(map[string][]string)
	for _, m := range matches {
		p := pair{m.URL, m.SmallCategory}
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		smalls[m.URL] = append(smalls[m.URL], m.SmallCategory)
	}

	var out []DocumentCategory
	for _, d := range docs {
		cats, ok := smalls[d.URL]
		if !ok {
			out = append(out, DocumentCategory{Entity: d.Entity, URL: d.URL, Title: d.Title, Popularity: d.Popularity})
			continue
		}
		for _, small := range cats {
			out = append(out, DocumentCategory{
				Entity:        d.Entity,
				URL:           d.URL,
				Title:         d.Title,
				Popularity:    d.Popularity,
				SmallCategory: small,
			})
		}
	}
	slices.SortFunc(out, func(a, b DocumentCategory) int {
		return cmp.Or(
			cmp.Compare(a.URL, b.URL),
			cmp.Compare(b.Popularity, a.Popularity),
			cmp.Compare(a.SmallCategory, b.SmallCategory),
		)
	})
	return out
}

// CategorySentimentTotals sums document sentiment by (entity, large, small), once per keyword match.
func CategorySentimentTotals(matches []KeywordMatch, counts []SentimentCount) []CategorySentiment {
	type docKey struct{ entity, url string }
	byDoc := make(map[docKey]SentimentCount, len(counts))
	for _, c := range counts {
		byDoc[docKey{c.Entity, c.URL}] = c
	}

	sums := make(map[categoryKey]*CategorySentiment)
	var order []categoryKey
	for _, m := range matches {
		c, ok := byDoc[docKey{m.Entity, m.URL}]
		if !ok {
			continue
		}
		k := categoryKey{m.Entity, m.LargeCategory, m.SmallCategory}
		agg, ok := sums[k]
		if !ok {
			agg = &CategorySentiment{Entity: k.entity, LargeCategory: k.large, SmallCategory: k.small}
			sums[k] = agg
			order = append(order, k)
		}
		agg.PositiveSum += c.Positive
		agg.NegativeSum += c.Negative
	}
	out := make([]CategorySentiment, 0, len(order))
	for _, k := range order {
		out = append(out, *sums[k])
	}
	slices.SortFunc(out, func(a, b CategorySentiment) int {
		return cmp.Or(
			cmp.Compare(a.Entity, b.Entity),
			cmp.Compare(a.LargeCategory, b.LargeCategory),
			cmp.Compare(a.SmallCategory, b.SmallCategory),
		)
	})
	return out
}

// KeywordMentions sums match popularity by (entity, keyword).
func KeywordMentions(matches []KeywordMatch) []KeywordMention {
	type key struct{ entity, keyword string }
	sums := make(map[key]float64)
	var order []key
	for _, m := range matches {
		k := key{m.Entity, m.Keyword}
		if _, ok := sums[k]; !ok {
			order = append(order, k)
		}
		sums[k] += m.Popularity
	}
	out := make([]KeywordMention, 0, len(order))
	for _, k := range order {
		out = append(out, KeywordMention{Entity: k.entity, Keyword: k.keyword, PopularitySum: sums[k]})
	}
	slices.SortFunc(out, func(a, b KeywordMention) int {
		return cmp.Or(
			cmp.Compare(a.Entity, b.Entity),
			cmp.Compare(b.PopularitySum, a.PopularitySum),
			cmp.Compare(a.Keyword, b.Keyword),
		)
	})
	return out
}
