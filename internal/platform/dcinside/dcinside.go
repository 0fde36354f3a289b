// Package dcinside adapts the DCInside new-car gallery. Pages are queried with XPath.
package dcinside

import (
	"bytes"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/antchfx/htmlquery"
	"golang.org/x/net/html"

	"github.com/JakeFAU/carbuzz/internal/crawler"
	"github.com/JakeFAU/carbuzz/internal/extract"
)

const (
	galleryID  = "car_new1"
	baseURL    = "https://gall.dcinside.com"
	dateLayout = "2006-01-02 15:04:05"
)

// cls builds an XPath predicate matching elements carrying class name.
func cls(name string) string {
	return "contains(concat(' ', normalize-space(@class), ' '), ' " + name + " ')"
}

var (
	xListBody    = "//tbody[" + cls("listwrap2") + "]"
	xListRow     = ".//tr[" + cls("us-post") + "]"
	xRowDate     = ".//td[" + cls("gall_date") + "]"
	xRowNumber   = ".//td[" + cls("gall_num") + "]"
	xArticles    = "//main[" + cls("gallery_view") + "]//article"
	xTitle       = "//span[" + cls("title_subject") + "]"
	xBody        = "//div[" + cls("write_div") + "]"
	xAuthor      = "//div[" + cls("gall_writer") + "]//span[" + cls("nickname") + "]"
	xDate        = "//span[" + cls("gall_date") + "]"
	xViews       = "//span[" + cls("gall_count") + "]"
	xLikes       = "//p[" + cls("up_num") + "]"
	xDislikes    = "//p[" + cls("down_num") + "]"
	xComments    = "//ul[" + cls("cmt_list") + "]//li[" + cls("ub-content") + "]"
	xCommentText = ".//p[" + cls("usertxt") + " and " + cls("ub-word") + "]"
)

// Platform implements crawler.Platform for DCInside.
type Platform struct {
	loc      *time.Location
	headless bool
}

// New returns the DCInside adapter. Timestamps are read in loc.
func New(loc *time.Location, headless bool) *Platform {
	if loc == nil {
		loc = time.UTC
	}
	return &Platform{loc: loc, headless: headless}
}

// Name implements crawler.Platform.
func (p *Platform) Name() string { return crawler.SiteDCInside }

// FirstPage implements crawler.Platform.
func (p *Platform) FirstPage() int { return 1 }

// ListingRequest implements crawler.Platform.
func (p *Platform) ListingRequest(term string, page int) crawler.FetchRequest {
	q := url.Values{}
	q.Set("id", galleryID)
	q.Set("page", strconv.Itoa(page))
	q.Set("search_pos", "")
	q.Set("s_type", "search_subject_memo")
	q.Set("s_keyword", term)
	return crawler.FetchRequest{
		URL:          baseURL + "/board/lists/?" + q.Encode(),
		Headless:     p.headless,
		WaitSelector: "tbody.listwrap2",
	}
}

// ParseListing implements crawler.Platform.
func (p *Platform) ParseListing(body []byte, _ time.Time) (crawler.ListingPage, error) {
	doc, err := htmlquery.Parse(bytes.NewReader(body))
	if err != nil {
		return crawler.ListingPage{}, fmt.Errorf("dcinside listing: %w", err)
	}
	tbody := htmlquery.FindOne(doc, xListBody)
	if tbody == nil {
		return crawler.ListingPage{}, nil
	}
	page := crawler.ListingPage{Found: true}
	for i, row := range htmlquery.Find(tbody, xListRow) {
		dateCell := htmlquery.FindOne(row, xRowDate)
		if dateCell == nil {
			return crawler.ListingPage{}, fmt.Errorf("row %d: %w: missing date cell", i, crawler.ErrMalformedListing)
		}
		published, err := extract.Time(dateLayout, htmlquery.SelectAttr(dateCell, "title"), p.loc)
		if err != nil {
			return crawler.ListingPage{}, fmt.Errorf("row %d: %w: %v", i, crawler.ErrMalformedListing, err)
		}
		id := strings.TrimSpace(text(htmlquery.FindOne(row, xRowNumber), ""))
		if id == "" {
			return crawler.ListingPage{}, fmt.Errorf("row %d: %w: missing post number", i, crawler.ErrMalformedListing)
		}
		page.Items = append(page.Items, crawler.ListingItem{ID: id, Published: published})
	}
	return page, nil
}

// DetailRequest implements crawler.Platform. id is the post number.
func (p *Platform) DetailRequest(id string) crawler.FetchRequest {
	q := url.Values{}
	q.Set("id", galleryID)
	q.Set("no", id)
	return crawler.FetchRequest{
		URL:          baseURL + "/board/view/?" + q.Encode(),
		Headless:     p.headless,
		WaitSelector: "main.gallery_view",
	}
}

// Capture implements crawler.Platform. The post lives in the second article of the gallery
// view; pages with a single article keep that one.
func (p *Platform) Capture(body []byte) (string, error) {
	doc, err := htmlquery.Parse(bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("dcinside capture: %w", err)
	}
	articles := htmlquery.Find(doc, xArticles)
	switch {
	case len(articles) >= 2:
		return htmlquery.OutputHTML(articles[1], false), nil
	case len(articles) == 1:
		return htmlquery.OutputHTML(articles[0], false), nil
	default:
		return "", crawler.ErrContainerMissing
	}
}

// Extract implements crawler.Platform.
func (p *Platform) Extract(raw crawler.RawDocument) (crawler.Extraction, error) {
	doc, err := htmlquery.Parse(strings.NewReader(raw.HTML))
	if err != nil {
		return crawler.Extraction{}, fmt.Errorf("dcinside %s: %w", raw.URL, err)
	}
	var stamp string
	if n := htmlquery.FindOne(doc, xDate); n != nil {
		stamp = htmlquery.SelectAttr(n, "title")
	}
	published, err := extract.Time(dateLayout, stamp, p.loc)
	if err != nil {
		return crawler.Extraction{}, fmt.Errorf("dcinside %s: %w", raw.URL, err)
	}

	issues := extract.NewIssues(raw.URL)
	title := extract.OrDefault(text(htmlquery.FindOne(doc, xTitle), ""), crawler.UntitledPost)

	bodyNode := htmlquery.FindOne(doc, xBody)
	body := text(bodyNode, "\n")
	if bodyNode != nil && body == "" {
		issues.Add(crawler.StageExtractContent, extract.MsgEmptyContent)
	}

	views := strings.TrimSpace(strings.ReplaceAll(text(htmlquery.FindOne(doc, xViews), ""), "조회", ""))

	var texts []string
	for _, li := range htmlquery.Find(doc, xComments) {
		texts = append(texts, text(htmlquery.FindOne(li, xCommentText), ""))
	}
	comments := extract.Comments(raw.URL, title, texts, issues)

	return crawler.Extraction{
		Document: crawler.Document{
			Site:         crawler.SiteDCInside,
			Entity:       raw.Entity,
			URL:          raw.URL,
			Title:        title,
			Body:         body,
			Timestamp:    published,
			Author:       extract.OrDefault(text(htmlquery.FindOne(doc, xAuthor), ""), crawler.UnknownAuthor),
			Likes:        extract.Count(text(htmlquery.FindOne(doc, xLikes), "")),
			Dislikes:     extract.Count(text(htmlquery.FindOne(doc, xDislikes), "")),
			Views:        extract.Count(views),
			CommentCount: int64(len(comments)),
		},
		Comments: comments,
		Issues:   issues.List(),
	}, nil
}

func text(n *html.Node, sep string) string {
	if n == nil {
		return ""
	}
	return extract.Text(sep, n)
}
