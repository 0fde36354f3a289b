package crawler

import (
	"net/http"
	"net/url"
	"time"
)

// Platform identifiers.
const (
	SiteBobae    = "bobae"
	SiteClien    = "clien"
	SiteDCInside = "dcinside"
	SiteFMKorea  = "fmkorea"
)

// Defaults applied when an optional field cannot be extracted.
const (
	UnknownAuthor = "알 수 없음"
	UntitledPost  = "제목 없음"
)

// FetchRequest captures everything needed to fetch a URL.
type FetchRequest struct {
	URL     string
	Method  string
	Form    url.Values
	Headers http.Header
	// WaitSelector is a CSS selector a headless fetcher waits for before snapshotting the DOM.
	WaitSelector string
	Headless     bool
}

// FetchResponse is the result returned by a Fetcher implementation.
type FetchResponse struct {
	URL          string
	StatusCode   int
	Headers      http.Header
	Body         []byte
	Duration     time.Duration
	UsedHeadless bool
}

// ListingItem is one search result row.
type ListingItem struct {
	ID        string
	Published time.Time
	// Prefetched holds the detail page body when it was already fetched to resolve Published.
	Prefetched []byte `json:"-"`
}

// ListingPage is one parsed page of a search listing.
type ListingPage struct {
	// Found reports whether the listing container was present at all.
	Found bool
	Items []ListingItem
}

// RawDocument is a captured detail page fragment tagged with the entity it was collected for.
type RawDocument struct {
	URL    string
	Entity string
	HTML   string
	Hash   string
}

// RawEntry is the stored form of a RawDocument, keyed by URL in the raw blob.
type RawEntry struct {
	Keyword string `json:"keyword"`
	HTML    string `json:"html"`
	Hash    string `json:"hash,omitempty"`
}

// Document is the canonical post record.
type Document struct {
	Site         string
	Entity       string
	URL          string
	Title        string
	Body         string
	Timestamp    time.Time
	Author       string
	Likes        int64
	Dislikes     int64
	CommentCount int64
	Views        int64
}

// Comment is one canonical comment record.
type Comment struct {
	URL   string
	Title string
	Text  string
}

// Issue is a soft failure found while extracting a document.
type Issue struct {
	Stage   string
	URL     string
	Message string
}

// Extraction is the result of normalizing one raw document.
type Extraction struct {
	Document Document
	Comments []Comment
	Issues   []Issue
}

// Task is one detail fetch unit.
type Task struct {
	Entity string
	Item   ListingItem
}

// Outcome records how a detail fetch task ended.
type Outcome struct {
	Task     Task
	URL      string
	Attempts int
	Document *RawDocument
	Reason   string
}

// Dropped reports whether the task produced no document.
func (o Outcome) Dropped() bool {
	return o.Document == nil
}

// CrawlStats summarizes one platform crawl.
type CrawlStats struct {
	Platform     string         `json:"platform"`
	ListedIDs    map[string]int `json:"listed_ids"`
	Fetched      int            `json:"fetched"`
	Recovered    int            `json:"recovered"`
	Dropped      []DroppedTask  `json:"dropped"`
	ListingPass  int            `json:"listing_passes"`
	StartedAt    time.Time      `json:"started_at"`
	FinishedAt   time.Time      `json:"finished_at"`
	DocumentKeys int            `json:"document_keys"`
}

// DroppedTask is the serializable form of a dropped Outcome.
type DroppedTask struct {
	Entity string `json:"entity"`
	ID     string `json:"id"`
	URL    string `json:"url"`
	Reason string `json:"reason"`
}

// CrawlResult is the output of one platform crawl.
type CrawlResult struct {
	Documents map[string]RawDocument
	Stats     CrawlStats
}

// ErrorEvent is the payload sent to the error reporting sink.
type ErrorEvent struct {
	Status string `json:"status"`
	Source string `json:"source"`
	Stage  string `json:"stage"`
	URL    string `json:"url,omitempty"`
	Error  string `json:"error"`
}

// Attributes labels the published message so subscribers can filter by source and stage.
func (e ErrorEvent) Attributes() map[string]string {
	return map[string]string{"event": "crawler_error", "source": e.Source, "stage": e.Stage}
}

// Stage labels carried by ErrorEvent.Stage and Issue.Stage.
const (
	StageListPage         = "list_page"
	StageResolveTimestamp = "resolve_timestamp"
	StageListing          = "listing"
	StageGetHTMLs         = "get_htmls"
	StageExtract          = "extract"
	StageExtractContent   = "extract_content"
	StageExtractComments  = "extract_comments"
	StageLoadPart         = "load_part"
	StageWarehouse        = "warehouse"
	StageNotify           = "notify"
)

// NewErrorEvent builds an ErrorEvent for a failure at stage while processing url.
func NewErrorEvent(source, stage, url string, err error) ErrorEvent {
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	return ErrorEvent{Status: "error", Source: source, Stage: stage, URL: url, Error: msg}
}
