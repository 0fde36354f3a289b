// Package clien adapts the clien.net community search and post pages.
package clien

import (
	"bytes"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/carbuzz/internal/crawler"
	"github.com/JakeFAU/carbuzz/internal/extract"
)

const (
	baseURL    = "https://www.clien.net"
	dateLayout = "2006-01-02 15:04:05"
)

// Platform implements crawler.Platform for clien.
type Platform struct {
	loc      *time.Location
	headless bool
}

// New returns the clien adapter. Timestamps are read in loc.
func New(loc *time.Location, headless bool) *Platform {
	if loc == nil {
		loc = time.UTC
	}
	return &Platform{loc: loc, headless: headless}
}

// Name implements crawler.Platform.
func (p *Platform) Name() string { return crawler.SiteClien }

// FirstPage implements crawler.Platform. Clien search pages are zero-based.
func (p *Platform) FirstPage() int { return 0 }

// ListingRequest implements crawler.Platform.
func (p *Platform) ListingRequest(term string, page int) crawler.FetchRequest {
	q := url.Values{}
	q.Set("q", term)
	q.Set("sort", "recency")
	q.Set("p", strconv.Itoa(page))
	return crawler.FetchRequest{
		URL:          baseURL + "/service/search?" + q.Encode(),
		Headless:     p.headless,
		WaitSelector: "div.total_search",
	}
}

// ParseListing implements crawler.Platform.
func (p *Platform) ParseListing(body []byte, _ time.Time) (crawler.ListingPage, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return crawler.ListingPage{}, fmt.Errorf("clien listing: %w", err)
	}
	container := doc.Find("div.total_search").First()
	if container.Length() == 0 {
		return crawler.ListingPage{}, nil
	}
	page := crawler.ListingPage{Found: true}
	var rowErr error
	container.Find("div.symph_row").EachWithBreak(func(i int, row *goquery.Selection) bool {
		stamp := strings.TrimSpace(row.Find("span.timestamp").First().Text())
		published, err := extract.Time(dateLayout, stamp, p.loc)
		if err != nil {
			rowErr = fmt.Errorf("row %d: %w: %v", i, crawler.ErrMalformedListing, err)
			return false
		}
		href, ok := row.Find("a.subject_fixed").First().Attr("href")
		if !ok || href == "" {
			rowErr = fmt.Errorf("row %d: %w: missing subject link", i, crawler.ErrMalformedListing)
			return false
		}
		id, _, _ := strings.Cut(href, "?")
		page.Items = append(page.Items, crawler.ListingItem{ID: id, Published: published})
		return true
	})
	if rowErr != nil {
		return crawler.ListingPage{}, rowErr
	}
	return page, nil
}

// DetailRequest implements crawler.Platform. id is the post path.
func (p *Platform) DetailRequest(id string) crawler.FetchRequest {
	return crawler.FetchRequest{
		URL:          baseURL + id,
		Headless:     p.headless,
		WaitSelector: "div.content_view",
	}
}

// Capture implements crawler.Platform and keeps the inner HTML of the post view.
func (p *Platform) Capture(body []byte) (string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("clien capture: %w", err)
	}
	view := doc.Find("div.content_view").First()
	if view.Length() == 0 {
		return "", crawler.ErrContainerMissing
	}
	html, err := view.Html()
	if err != nil {
		return "", fmt.Errorf("clien capture: %w", err)
	}
	return html, nil
}

// Extract implements crawler.Platform.
func (p *Platform) Extract(raw crawler.RawDocument) (crawler.Extraction, error) {
	doc, err := extract.Parse(raw.HTML)
	if err != nil {
		return crawler.Extraction{}, err
	}
	dateText := extract.SelectionText(doc.Find("span.view_count.date"), " ")
	dateText, _, _ = strings.Cut(dateText, "수정일")
	published, err := extract.Time(dateLayout, dateText, p.loc)
	if err != nil {
		return crawler.Extraction{}, fmt.Errorf("clien %s: %w", raw.URL, err)
	}

	issues := extract.NewIssues(raw.URL)
	title := extract.OrDefault(extract.SelectionText(doc.Find("h3.post_subject span:nth-of-type(2)"), " "), crawler.UntitledPost)

	article := doc.Find("div.post_article").First()
	body := extract.SelectionText(article, " ")
	if article.Length() > 0 && body == "" {
		issues.Add(crawler.StageExtractContent, extract.MsgEmptyContent)
	}

	var texts []string
	doc.Find("div.comment_view").Each(func(_ int, c *goquery.Selection) {
		texts = append(texts, extract.SelectionText(c, " "))
	})
	comments := extract.Comments(raw.URL, title, texts, issues)

	return crawler.Extraction{
		Document: crawler.Document{
			Site:         crawler.SiteClien,
			Entity:       raw.Entity,
			URL:          raw.URL,
			Title:        title,
			Body:         body,
			Timestamp:    published,
			Author:       extract.OrDefault(extract.SelectionText(doc.Find("span.nickname span"), ""), crawler.UnknownAuthor),
			Likes:        extract.Count(extract.SelectionText(doc.Find("a.symph_count strong"), "")),
			Views:        extract.Count(extract.SelectionText(doc.Find("span.view_count strong"), "")),
			CommentCount: int64(len(comments)),
		},
		Comments: comments,
		Issues:   issues.List(),
	}, nil
}
