// Package extract holds the field helpers shared by the platform extractors.
package extract

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"github.com/JakeFAU/carbuzz/internal/crawler"
)

// Strings returns the whitespace-trimmed, non-empty text nodes under n in document order.
func Strings(nodes ...*html.Node) []string {
	var out []string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		switch n.Type {
		case html.TextNode:
			if s := strings.TrimSpace(n.Data); s != "" {
				out = append(out, s)
			}
		case html.ElementNode:
			if n.Data == "script" || n.Data == "style" {
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	for _, n := range nodes {
		if n != nil {
			walk(n)
		}
	}
	return out
}

// Text joins the stripped text nodes of nodes with sep.
func Text(sep string, nodes ...*html.Node) string {
	return strings.Join(Strings(nodes...), sep)
}

// SelectionText joins the stripped text nodes of the first element in sel with sep.
// It returns "" when sel is empty.
func SelectionText(sel *goquery.Selection, sep string) string {
	if sel.Length() == 0 {
		return ""
	}
	return Text(sep, sel.Nodes[0])
}

// Count parses an engagement counter. Commas are ignored and anything unparsable is 0.
func Count(raw string) int64 {
	cleaned := strings.ReplaceAll(strings.TrimSpace(raw), ",", "")
	n, err := strconv.ParseInt(cleaned, 10, 64)
	if err != nil || n < 0 {
		return 0
	}
	return n
}

// OrDefault returns def when s is empty.
func OrDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

// Time parses value with layout in loc, wrapping failures with crawler.ErrTimestamp.
func Time(layout, value string, loc *time.Location) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, fmt.Errorf("%w: empty value", crawler.ErrTimestamp)
	}
	if loc == nil {
		loc = time.UTC
	}
	ts, err := time.ParseInLocation(layout, value, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q: %v", crawler.ErrTimestamp, value, err)
	}
	return ts, nil
}

// Issues collects soft failures for one document, keeping at most one per stage.
type Issues struct {
	url    string
	seen   map[string]bool
	issues []crawler.Issue
}

// NewIssues returns a collector for url.
func NewIssues(url string) *Issues {
	return &Issues{url: url, seen: map[string]bool{}}
}

// Add records an issue unless one was already recorded for stage.
func (i *Issues) Add(stage, message string) {
	if i.seen[stage] {
		return
	}
	i.seen[stage] = true
	i.issues = append(i.issues, crawler.Issue{Stage: stage, URL: i.url, Message: message})
}

// List returns the recorded issues.
func (i *Issues) List() []crawler.Issue {
	return i.issues
}

// Messages used for the soft-fail stages.
const (
	MsgEmptyContent  = "content container present but text is empty"
	MsgEmptyComments = "comment container present but some comments are empty"
)

// Comments builds comment records from texts, dropping empty ones and recording a single
// extract_comments issue when any were dropped.
func Comments(url, title string, texts []string, issues *Issues) []crawler.Comment {
	var out []crawler.Comment
	for _, text := range texts {
		if text == "" {
			issues.Add(crawler.StageExtractComments, MsgEmptyComments)
			continue
		}
		out = append(out, crawler.Comment{URL: url, Title: title, Text: text})
	}
	return out
}

// Parse reads an HTML fragment into a goquery document.
func Parse(fragment string) (*goquery.Document, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(fragment))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	return doc, nil
}
