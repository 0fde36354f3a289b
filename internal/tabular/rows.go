package tabular

import (
	"time"

	"github.com/JakeFAU/carbuzz/internal/analytics"
	"github.com/JakeFAU/carbuzz/internal/crawler"
)

// ContentRow is one normalized post.
type ContentRow struct {
	Site          string `parquet:"site"`
	Datetime      int64  `parquet:"datetime,timestamp(millisecond)"`
	Model         string `parquet:"model"`
	Title         string `parquet:"title"`
	Content       string `parquet:"content"`
	URL           string `parquet:"url"`
	Author        string `parquet:"author"`
	Likes         int64  `parquet:"likes"`
	Hates         int64  `parquet:"hates"`
	CommentsCount int64  `parquet:"comments_count"`
	Views         int64  `parquet:"views"`
}

// CommentRow is one normalized comment.
type CommentRow struct {
	URL     string `parquet:"url"`
	Title   string `parquet:"title"`
	Comment string `parquet:"comment"`
}

// PostRow is one tagged post with its score and sentiment.
type PostRow struct {
	Site       string  `parquet:"site"`
	Datetime   int64   `parquet:"datetime,timestamp(millisecond)"`
	Model      string  `parquet:"model"`
	Title      string  `parquet:"title"`
	URL        string  `parquet:"url"`
	Popularity float64 `parquet:"popularity"`
	Views      int64   `parquet:"views"`
	Positive   int64   `parquet:"positive"`
	Negative   int64   `parquet:"negative"`
}

// KeywordRow is one keyword match.
type KeywordRow struct {
	URL           string  `parquet:"url"`
	Keyword       string  `parquet:"keyword"`
	SmallCategory string  `parquet:"small_category"`
	LargeCategory *string `parquet:"large_category,optional"`
}

// PopularityRow is one row of the live_popularity view.
type PopularityRow struct {
	Model         string  `parquet:"model"`
	LargeCategory *string `parquet:"large_category,optional"`
	SmallCategory string  `parquet:"small_category"`
	PopularitySum float64 `parquet:"popularity_sum"`
}

// CategoryRow is one row of the live_category view.
type CategoryRow struct {
	Model         string  `parquet:"model"`
	URL           string  `parquet:"url"`
	Title         string  `parquet:"title"`
	Popularity    float64 `parquet:"popularity"`
	SmallCategory *string `parquet:"small_category,optional"`
}

// SentimentRow is one row of the live_sentiment view.
type SentimentRow struct {
	Model         string  `parquet:"model"`
	LargeCategory *string `parquet:"large_category,optional"`
	SmallCategory string  `parquet:"small_category"`
	PositiveSum   int64   `parquet:"positive_sum"`
	NegativeSum   int64   `parquet:"negative_sum"`
}

// KeywordMentionRow is one row of the live_keyword view.
type KeywordMentionRow struct {
	Model         string  `parquet:"model"`
	Keyword       string  `parquet:"keyword"`
	PopularitySum float64 `parquet:"popularity_sum"`
}

// AlertRow is one line of the alert CSV.
type AlertRow struct {
	Model      string  `csv:"model"`
	Title      string  `csv:"title"`
	URL        string  `csv:"url"`
	Popularity float64 `csv:"popularity"`
}

// ContentRowFrom converts a Document.
func ContentRowFrom(d crawler.Document) ContentRow {
	return ContentRow{
		Site:          d.Site,
		Datetime:      d.Timestamp.UnixMilli(),
		Model:         d.Entity,
		Title:         d.Title,
		Content:       d.Body,
		URL:           d.URL,
		Author:        d.Author,
		Likes:         d.Likes,
		Hates:         d.Dislikes,
		CommentsCount: d.CommentCount,
		Views:         d.Views,
	}
}

// Document converts the row back, placing the timestamp in loc.
func (r ContentRow) Document(loc *time.Location) crawler.Document {
	return crawler.Document{
		Site:         r.Site,
		Entity:       r.Model,
		URL:          r.URL,
		Title:        r.Title,
		Body:         r.Content,
		Timestamp:    inLocation(r.Datetime, loc),
		Author:       r.Author,
		Likes:        r.Likes,
		Dislikes:     r.Hates,
		CommentCount: r.CommentsCount,
		Views:        r.Views,
	}
}

// CommentRowFrom converts a Comment.
func CommentRowFrom(c crawler.Comment) CommentRow {
	return CommentRow{URL: c.URL, Title: c.Title, Comment: c.Text}
}

// ToComment converts the row back.
func (r CommentRow) ToComment() crawler.Comment {
	return crawler.Comment{URL: r.URL, Title: r.Title, Text: r.Comment}
}

// PostRowFrom converts an analyzed post.
func PostRowFrom(p analytics.Post) PostRow {
	return PostRow{
		Site:       p.Site,
		Datetime:   p.Timestamp.UnixMilli(),
		Model:      p.Entity,
		Title:      p.Title,
		URL:        p.URL,
		Popularity: p.Popularity,
		Views:      p.Views,
		Positive:   p.Positive,
		Negative:   p.Negative,
	}
}

// Time returns the post timestamp in loc.
func (r PostRow) Time(loc *time.Location) time.Time {
	return inLocation(r.Datetime, loc)
}

// AlertRowFrom converts an alerted document.
func AlertRowFrom(d analytics.MergedDocument) AlertRow {
	return AlertRow{Model: d.Entity, Title: d.Title, URL: d.URL, Popularity: d.Popularity}
}

// ReportTables holds every table derived by the analyze stage.
type ReportTables struct {
	Posts      []PostRow
	Keywords   []KeywordRow
	Popularity []PopularityRow
	Categories []CategoryRow
	Sentiment  []SentimentRow
	Mentions   []KeywordMentionRow
	Alerts     []AlertRow
}

// FromReport converts an analytics report into its tables.
func FromReport(r analytics.Report) ReportTables {
	t := ReportTables{
		Posts:      make([]PostRow, 0, len(r.Posts)),
		Keywords:   make([]KeywordRow, 0, len(r.Matches)),
		Popularity: make([]PopularityRow, 0, len(r.Popularity)),
		Categories: make([]CategoryRow, 0, len(r.Categories)),
		Sentiment:  make([]SentimentRow, 0, len(r.Sentiment)),
		Mentions:   make([]KeywordMentionRow, 0, len(r.Mentions)),
		Alerts:     make([]AlertRow, 0, len(r.Alerts)),
	}
	for _, p := range r.Posts {
		t.Posts = append(t.Posts, PostRowFrom(p))
	}
	for _, m := range r.Matches {
		t.Keywords = append(t.Keywords, KeywordRow{
			URL:           m.URL,
			Keyword:       m.Keyword,
			SmallCategory: m.SmallCategory,
			LargeCategory: nullable(m.LargeCategory),
		})
	}
	for _, p := range r.Popularity {
		t.Popularity = append(t.Popularity, PopularityRow{
			Model:         p.Entity,
			LargeCategory: nullable(p.LargeCategory),
			SmallCategory: p.SmallCategory,
			PopularitySum: p.PopularitySum,
		})
	}
	for _, c := range r.Categories {
		t.Categories = append(t.Categories, CategoryRow{
			Model:         c.Entity,
			URL:           c.URL,
			Title:         c.Title,
			Popularity:    c.Popularity,
			SmallCategory: nullable(c.SmallCategory),
		})
	}
	for _, s := range r.Sentiment {
		t.Sentiment = append(t.Sentiment, SentimentRow{
			Model:         s.Entity,
			LargeCategory: nullable(s.LargeCategory),
			SmallCategory: s.SmallCategory,
			PositiveSum:   s.PositiveSum,
			NegativeSum:   s.NegativeSum,
		})
	}
	for _, m := range r.Mentions {
		t.Mentions = append(t.Mentions, KeywordMentionRow{Model: m.Entity, Keyword: m.Keyword, PopularitySum: m.PopularitySum})
	}
	for _, a := range r.Alerts {
		t.Alerts = append(t.Alerts, AlertRowFrom(a))
	}
	return t
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func inLocation(ms int64, loc *time.Location) time.Time {
	t := time.UnixMilli(ms)
	if loc != nil {
		t = t.In(loc)
	}
	return t
}
