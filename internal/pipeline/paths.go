package pipeline

import (
	"fmt"
	"time"
)

const dateLayout = "2006-01-02"

// Transformed table names under transformed_data/<date>/.
const (
	TablePost           = "post"
	TableKeyword        = "keyword"
	TableLivePopularity = "live_popularity"
	TableLiveCategory   = "live_category"
	TableLiveSentiment  = "live_sentiment"
	TableLiveKeyword    = "live_keyword"
)

// DateKey formats a run date the way every artifact path embeds it.
func DateKey(date time.Time) string {
	return date.Format(dateLayout)
}

// ParseDate parses a YYYY-MM-DD run date as midnight in loc.
func ParseDate(value string, loc *time.Location) (time.Time, error) {
	t, err := time.ParseInLocation(dateLayout, value, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse run date %q: %w", value, err)
	}
	return t, nil
}

// Midnight truncates t to the start of its day in loc.
func Midnight(t time.Time, loc *time.Location) time.Time {
	t = t.In(loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
}

// RawHTMLPath holds {url: {keyword, html}} for one platform.
func RawHTMLPath(site string, date time.Time) string {
	return fmt.Sprintf("raw_html/%s/%s.json", site, DateKey(date))
}

// ContentPath holds one platform's normalized posts.
func ContentPath(site string, date time.Time) string {
	return fmt.Sprintf("raw_data/%s/%s-content.parquet", site, DateKey(date))
}

// CommentPath holds one platform's normalized comments.
func CommentPath(site string, date time.Time) string {
	return fmt.Sprintf("raw_data/%s/%s-comment.parquet", site, DateKey(date))
}

// MergedContentsPath holds the day's posts across platforms.
func MergedContentsPath(date time.Time) string {
	return fmt.Sprintf("merge_data/contents/%s.parquet", DateKey(date))
}

// MergedCommentsPath holds the day's comments across platforms.
func MergedCommentsPath(date time.Time) string {
	return fmt.Sprintf("merge_data/comments/%s.parquet", DateKey(date))
}

// TransformedPath holds one analytics table.
func TransformedPath(date time.Time, table string) string {
	return fmt.Sprintf("transformed_data/%s/%s.parquet", DateKey(date), table)
}

// AlertPath holds the day's alert CSV.
func AlertPath(date time.Time) string {
	return fmt.Sprintf("transformed_data/alarm/%s.csv", DateKey(date))
}

// ManifestPath holds one platform's crawl statistics.
func ManifestPath(site string, date time.Time) string {
	return fmt.Sprintf("runs/%s/%s-crawl.json", DateKey(date), site)
}
