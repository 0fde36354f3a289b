// Package bobae adapts the bobaedream.co.kr community search. Its listing has no publish
// times, so the adapter also resolves them from detail pages.
package bobae

import (
	"bytes"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/carbuzz/internal/crawler"
	"github.com/JakeFAU/carbuzz/internal/extract"
)

const (
	baseURL    = "https://www.bobaedream.co.kr"
	searchURL  = baseURL + "/search"
	dateLayout = "2006.01.02 15:04"
)

var (
	countersRe = regexp.MustCompile(`조회([\d,]+)\|추천([\d,]+)\|`)
	postedRe   = regexp.MustCompile(`(\d{4}\.\d{2}\.\d{2})\s*\(.*?\)\s*(\d{2}:\d{2})`)
	bracketRe  = regexp.MustCompile(`\[.*?\]`)
)

// Platform implements crawler.Platform and crawler.TimestampResolver for bobae.
type Platform struct {
	loc *time.Location
}

// New returns the bobae adapter. Timestamps are read in loc.
func New(loc *time.Location) *Platform {
	if loc == nil {
		loc = time.UTC
	}
	return &Platform{loc: loc}
}

// Name implements crawler.Platform.
func (p *Platform) Name() string { return crawler.SiteBobae }

// FirstPage implements crawler.Platform.
func (p *Platform) FirstPage() int { return 1 }

// ListingRequest implements crawler.Platform. Search is a form POST.
func (p *Platform) ListingRequest(term string, page int) crawler.FetchRequest {
	return crawler.FetchRequest{
		URL:    searchURL,
		Method: http.MethodPost,
		Form: url.Values{
			"keyword":     {term},
			"searchField": {"ALL"},
			"colle":       {"community"},
			"page":        {strconv.Itoa(page)},
		},
		Headers: http.Header{"Referer": {searchURL}},
	}
}

// ParseListing implements crawler.Platform. Items carry no publish time.
func (p *Platform) ParseListing(body []byte, _ time.Time) (crawler.ListingPage, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return crawler.ListingPage{}, fmt.Errorf("bobae listing: %w", err)
	}
	var page crawler.ListingPage
	doc.Find("div.search_Community ul li dt a").Each(func(_ int, a *goquery.Selection) {
		if href, ok := a.Attr("href"); ok && href != "" {
			page.Items = append(page.Items, crawler.ListingItem{ID: href})
		}
	})
	page.Found = len(page.Items) > 0
	return page, nil
}

// ResolveTimestamp implements crawler.TimestampResolver.
func (p *Platform) ResolveTimestamp(detail []byte) (time.Time, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(detail))
	if err != nil {
		return time.Time{}, fmt.Errorf("bobae detail: %w", err)
	}
	return p.posted(extract.SelectionText(doc.Find("span.countGroup"), " "))
}

func (p *Platform) posted(counts string) (time.Time, error) {
	m := postedRe.FindStringSubmatch(counts)
	if m == nil {
		return time.Time{}, fmt.Errorf("%w: no date in %q", crawler.ErrTimestamp, counts)
	}
	return extract.Time(dateLayout, m[1]+" "+m[2], p.loc)
}

// DetailRequest implements crawler.Platform. id is the post path from the listing.
func (p *Platform) DetailRequest(id string) crawler.FetchRequest {
	return crawler.FetchRequest{
		URL:     baseURL + id,
		Headers: http.Header{"Referer": {searchURL}},
	}
}

// Capture implements crawler.Platform and keeps the post view including its wrapper.
func (p *Platform) Capture(body []byte) (string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("bobae capture: %w", err)
	}
	view := doc.Find("div.viewbg02").First()
	if view.Length() == 0 {
		return "", crawler.ErrContainerMissing
	}
	html, err := goquery.OuterHtml(view)
	if err != nil {
		return "", fmt.Errorf("bobae capture: %w", err)
	}
	return html, nil
}

// Extract implements crawler.Platform.
func (p *Platform) Extract(raw crawler.RawDocument) (crawler.Extraction, error) {
	doc, err := extract.Parse(raw.HTML)
	if err != nil {
		return crawler.Extraction{}, err
	}
	countGroup := doc.Find("span.countGroup").First()
	if countGroup.Length() == 0 {
		return crawler.Extraction{}, fmt.Errorf("bobae %s: %w: count group missing", raw.URL, crawler.ErrTimestamp)
	}
	counts := extract.SelectionText(countGroup, "")
	published, err := p.posted(extract.SelectionText(countGroup, " "))
	if err != nil {
		return crawler.Extraction{}, fmt.Errorf("bobae %s: %w", raw.URL, err)
	}
	var views, likes int64
	if m := countersRe.FindStringSubmatch(counts); m != nil {
		views = extract.Count(m[1])
		likes = extract.Count(m[2])
	}

	issues := extract.NewIssues(raw.URL)
	title := strings.TrimSpace(bracketRe.ReplaceAllString(extract.SelectionText(doc.Find("dt strong"), " "), ""))
	title = extract.OrDefault(title, crawler.UntitledPost)

	content := doc.Find("div.bodyCont").First()
	body := extract.SelectionText(content, " ")
	if content.Length() > 0 && body == "" {
		issues.Add(crawler.StageExtractContent, extract.MsgEmptyContent)
	}

	var texts []string
	doc.Find("div.commentlistbox dd[id^='small_cmt_']").Each(func(_ int, c *goquery.Selection) {
		texts = append(texts, extract.SelectionText(c, " "))
	})
	comments := extract.Comments(raw.URL, title, texts, issues)

	return crawler.Extraction{
		Document: crawler.Document{
			Site:         crawler.SiteBobae,
			Entity:       raw.Entity,
			URL:          raw.URL,
			Title:        title,
			Body:         body,
			Timestamp:    published,
			Author:       extract.OrDefault(extract.SelectionText(doc.Find("a.nickName"), ""), crawler.UnknownAuthor),
			Likes:        likes,
			Views:        views,
			CommentCount: int64(len(comments)),
		},
		Comments: comments,
		Issues:   issues.List(),
	}, nil
}
