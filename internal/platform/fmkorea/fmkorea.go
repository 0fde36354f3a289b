// Package fmkorea adapts the fmkorea.com car board search and post pages.
package fmkorea

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
	baseURL     = "https://www.fmkorea.com"
	listDay     = "2006.01.02"
	listClock   = "15:04"
	postLayout  = "2006.01.02 15:04"
	srlParamKey = "document_srl="
)

// Platform implements crawler.Platform for fmkorea.
type Platform struct {
	loc      *time.Location
	headless bool
}

// New returns the fmkorea adapter. Timestamps are read in loc.
func New(loc *time.Location, headless bool) *Platform {
	if loc == nil {
		loc = time.UTC
	}
	return &Platform{loc: loc, headless: headless}
}

// Name implements crawler.Platform.
func (p *Platform) Name() string { return crawler.SiteFMKorea }

// FirstPage implements crawler.Platform.
func (p *Platform) FirstPage() int { return 1 }

// ListingRequest implements crawler.Platform.
func (p *Platform) ListingRequest(term string, page int) crawler.FetchRequest {
	q := url.Values{}
	q.Set("mid", "car")
	q.Set("search_keyword", term)
	q.Set("search_target", "title_content")
	q.Set("page", strconv.Itoa(page))
	return crawler.FetchRequest{
		URL:          baseURL + "/search.php?" + q.Encode(),
		Headless:     p.headless,
		WaitSelector: "tbody",
	}
}

// ParseListing implements crawler.Platform. Rows from today show only a clock time, which is
// placed on now's date.
func (p *Platform) ParseListing(body []byte, now time.Time) (crawler.ListingPage, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return crawler.ListingPage{}, fmt.Errorf("fmkorea listing: %w", err)
	}
	tbody := doc.Find("tbody")
	if tbody.Length() == 0 {
		return crawler.ListingPage{}, nil
	}
	times := tbody.Find("td.time")
	links := tbody.Find("a.hx")
	n := min(times.Length(), links.Length())

	page := crawler.ListingPage{Found: true}
	for i := 0; i < n; i++ {
		stamp := strings.TrimSpace(times.Eq(i).Text())
		published, err := p.listingTime(stamp, now)
		if err != nil {
			return crawler.ListingPage{}, fmt.Errorf("row %d: %w: %v", i, crawler.ErrMalformedListing, err)
		}
		href, _ := links.Eq(i).Attr("href")
		_, rest, ok := strings.Cut(href, srlParamKey)
		if !ok {
			continue
		}
		id, _, _ := strings.Cut(rest, "&")
		page.Items = append(page.Items, crawler.ListingItem{ID: id, Published: published})
	}
	return page, nil
}

func (p *Platform) listingTime(stamp string, now time.Time) (time.Time, error) {
	if ts, err := extract.Time(listDay, stamp, p.loc); err == nil {
		return ts, nil
	}
	clock, err := extract.Time(listClock, stamp, p.loc)
	if err != nil {
		return time.Time{}, err
	}
	today := now.In(p.loc)
	return time.Date(today.Year(), today.Month(), today.Day(), clock.Hour(), clock.Minute(), 0, 0, p.loc), nil
}

// DetailRequest implements crawler.Platform. id is the document serial.
func (p *Platform) DetailRequest(id string) crawler.FetchRequest {
	return crawler.FetchRequest{
		URL:          baseURL + "/" + id,
		Headless:     p.headless,
		WaitSelector: "div.rd_nav_style2",
	}
}

// Capture implements crawler.Platform and keeps the inner HTML of the read view.
func (p *Platform) Capture(body []byte) (string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("fmkorea capture: %w", err)
	}
	view := doc.Find("div.rd_nav_style2").First()
	if view.Length() == 0 {
		return "", crawler.ErrContainerMissing
	}
	html, err := view.Html()
	if err != nil {
		return "", fmt.Errorf("fmkorea capture: %w", err)
	}
	return html, nil
}

// Extract implements crawler.Platform.
func (p *Platform) Extract(raw crawler.RawDocument) (crawler.Extraction, error) {
	doc, err := extract.Parse(raw.HTML)
	if err != nil {
		return crawler.Extraction{}, err
	}
	dateText := extract.SelectionText(doc.Find("span.date.m_no"), " ")
	dateText, _, _ = strings.Cut(dateText, "수정일")
	published, err := extract.Time(postLayout, dateText, p.loc)
	if err != nil {
		return crawler.Extraction{}, fmt.Errorf("fmkorea %s: %w", raw.URL, err)
	}

	issues := extract.NewIssues(raw.URL)
	title := extract.OrDefault(extract.SelectionText(doc.Find("h1 span.np_18px_span"), " "), crawler.UntitledPost)

	content := doc.Find(".xe_content").First()
	body := extract.SelectionText(content, " ")
	if content.Length() > 0 && body == "" {
		issues.Add(crawler.StageExtractContent, extract.MsgEmptyContent)
	}

	stats := doc.Find(".btm_area .fr span b")
	var views, likes int64
	if stats.Length() > 0 {
		views = extract.Count(extract.SelectionText(stats.Eq(0), ""))
	}
	if stats.Length() > 1 {
		likes = extract.Count(extract.SelectionText(stats.Eq(1), ""))
	}

	comments := p.comments(doc, raw.URL, title, issues)

	return crawler.Extraction{
		Document: crawler.Document{
			Site:         crawler.SiteFMKorea,
			Entity:       raw.Entity,
			URL:          raw.URL,
			Title:        title,
			Body:         body,
			Timestamp:    published,
			Author:       extract.OrDefault(extract.SelectionText(doc.Find(".member_plate"), ""), crawler.UnknownAuthor),
			Likes:        likes,
			Views:        views,
			CommentCount: int64(len(comments)),
		},
		Comments: comments,
		Issues:   issues.List(),
	}, nil
}

// comments keeps non-empty comment bodies. Only a list where every body is empty is reported.
func (p *Platform) comments(doc *goquery.Document, url, title string, issues *extract.Issues) []crawler.Comment {
	nodes := doc.Find("ul.fdb_lst_ul").First().Find("div.comment-content")
	if nodes.Length() == 0 {
		return nil
	}
	var out []crawler.Comment
	nodes.Each(func(_ int, c *goquery.Selection) {
		if text := extract.SelectionText(c, " "); text != "" {
			out = append(out, crawler.Comment{URL: url, Title: title, Text: text})
		}
	})
	if len(out) == 0 {
		issues.Add(crawler.StageExtractComments, extract.MsgEmptyComments)
	}
	return out
}
