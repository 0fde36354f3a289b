package worker

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/carbuzz/internal/crawler"
)

type fakePlatform struct{}

func (fakePlatform) Name() string   { return "fake" }
func (fakePlatform) FirstPage() int { return 1 }
func (fakePlatform) ListingRequest(string, int) crawler.FetchRequest {
	return crawler.FetchRequest{}
}
func (fakePlatform) ParseListing([]byte, time.Time) (crawler.ListingPage, error) {
	return crawler.ListingPage{}, nil
}
func (fakePlatform) DetailRequest(id string) crawler.FetchRequest {
	return crawler.FetchRequest{URL: "https://fake.test/view/" + id}
}

// Capture fails when the page lacks the marker container.
func (fakePlatform) Capture(body []byte) (string, error) {
	s := string(body)
	if !strings.Contains(s, "<article>") {
		return "", crawler.ErrContainerMissing
	}
	return s, nil
}
func (fakePlatform) Extract(crawler.RawDocument) (crawler.Extraction, error) {
	return crawler.Extraction{}, nil
}

// scriptedFetcher plays back a per-URL sequence of results; the last entry repeats.
type scriptedFetcher struct {
	mu      sync.Mutex
	scripts map[string][]string
	calls   map[string]int
}

func newScriptedFetcher(scripts map[string][]string) *scriptedFetcher {
	return &scriptedFetcher{scripts: scripts, calls: map[string]int{}}
}

func (f *scriptedFetcher) Fetch(_ context.Context, req crawler.FetchRequest) (crawler.FetchResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := f.calls[req.URL]
	f.calls[req.URL]++
	script := f.scripts[req.URL]
	if len(script) == 0 {
		return crawler.FetchResponse{}, errors.New("no route")
	}
	if n >= len(script) {
		n = len(script) - 1
	}
	if script[n] == "ERR" {
		return crawler.FetchResponse{}, errors.New("timeout")
	}
	return crawler.FetchResponse{URL: req.URL, Body: []byte(script[n])}, nil
}

func (f *scriptedFetcher) count(url string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[url]
}

type recordingReporter struct {
	mu     sync.Mutex
	events []crawler.ErrorEvent
}

func (r *recordingReporter) Report(_ context.Context, event crawler.ErrorEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

type constHasher struct{}

func (constHasher) Hash(data []byte) (string, error) { return "h" + string(rune('0'+len(data)%10)), nil }

func task(entity, id string) crawler.Task {
	return crawler.Task{Entity: entity, Item: crawler.ListingItem{ID: id}}
}

func TestFetchAllQuarantineReplay(t *testing.T) {
	t.Parallel()

	const (
		okURL      = "https://fake.test/view/1"
		flakyURL   = "https://fake.test/view/2"
		brokenURL  = "https://fake.test/view/3"
		noMarkup   = "https://fake.test/view/4"
		healedPage = "https://fake.test/view/5"
	)
	fetcher := newScriptedFetcher(map[string][]string{
		okURL:      {"<article>one</article>"},
		flakyURL:   {"ERR", "<article>two</article>"},
		brokenURL:  {"ERR", "ERR"},
		noMarkup:   {"<div>blocked</div>"},
		healedPage: {"<div>loading</div>", "<article>five</article>"},
	})
	reporter := &recordingReporter{}
	pool := New(fakePlatform{}, fetcher, constHasher{}, reporter, Config{Concurrency: 2}, zap.NewNop())

	outcomes := pool.FetchAll(context.Background(), []crawler.Task{
		task("tucson", "1"), task("tucson", "2"), task("avante", "3"), task("avante", "4"), task("ioniq9", "5"),
	})
	require.Len(t, outcomes, 5)

	assert.False(t, outcomes[0].Dropped())
	assert.Equal(t, 1, outcomes[0].Attempts)
	assert.Equal(t, "tucson", outcomes[0].Document.Entity)
	assert.Equal(t, okURL, outcomes[0].Document.URL)
	assert.NotEmpty(t, outcomes[0].Document.Hash)

	assert.False(t, outcomes[1].Dropped(), "a task that fails once then succeeds must appear")
	assert.Equal(t, 2, outcomes[1].Attempts)

	assert.True(t, outcomes[2].Dropped(), "a task that fails twice must be absent")
	assert.Equal(t, 2, outcomes[2].Attempts)
	assert.Contains(t, outcomes[2].Reason, "timeout")

	assert.True(t, outcomes[3].Dropped())
	assert.Contains(t, outcomes[3].Reason, crawler.ErrContainerMissing.Error())

	assert.False(t, outcomes[4].Dropped(), "missing container is quarantined like a network error")

	assert.Equal(t, 2, Recovered(outcomes))
	assert.Equal(t, 2, fetcher.count(brokenURL), "at most two attempts")
	assert.Equal(t, 1, fetcher.count(okURL))

	require.Len(t, reporter.events, 2, "each permanent failure is reported exactly once")
	reported := map[string]bool{}
	for _, ev := range reporter.events {
		assert.Equal(t, crawler.StageGetHTMLs, ev.Stage)
		assert.Equal(t, "fake", ev.Source)
		assert.Equal(t, "error", ev.Status)
		reported[ev.URL] = true
	}
	assert.True(t, reported[brokenURL])
	assert.True(t, reported[noMarkup])
}

func TestFetchAllUsesPrefetchedBodyOnFirstPass(t *testing.T) {
	t.Parallel()

	fetcher := newScriptedFetcher(map[string][]string{
		"https://fake.test/view/9": {"<article>fresh</article>"},
	})
	pool := New(fakePlatform{}, fetcher, constHasher{}, &recordingReporter{}, Config{}, nil)

	prefetched := crawler.Task{Entity: "palisade", Item: crawler.ListingItem{ID: "8", Prefetched: []byte("<article>cached</article>")}}
	stale := crawler.Task{Entity: "palisade", Item: crawler.ListingItem{ID: "9", Prefetched: []byte("<div>no container</div>")}}

	outcomes := pool.FetchAll(context.Background(), []crawler.Task{prefetched, stale})
	require.False(t, outcomes[0].Dropped())
	assert.Equal(t, "<article>cached</article>", outcomes[0].Document.HTML)
	assert.Equal(t, 0, fetcher.count("https://fake.test/view/8"))

	require.False(t, outcomes[1].Dropped(), "replay refetches instead of reusing the prefetched body")
	assert.Equal(t, "<article>fresh</article>", outcomes[1].Document.HTML)
	assert.Equal(t, 1, fetcher.count("https://fake.test/view/9"))
}

func TestFetchAllCanceledDoesNotReport(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	reporter := &recordingReporter{}
	pool := New(fakePlatform{}, newScriptedFetcher(nil), constHasher{}, reporter, Config{}, nil)

	outcomes := pool.FetchAll(ctx, []crawler.Task{task("tucson", "1")})
	require.Len(t, outcomes, 1)
	assert.True(t, outcomes[0].Dropped())
	assert.Zero(t, outcomes[0].Attempts)
	assert.Empty(t, reporter.events)
}

func TestFetchAllEmpty(t *testing.T) {
	t.Parallel()

	pool := New(fakePlatform{}, newScriptedFetcher(nil), constHasher{}, &recordingReporter{}, Config{}, nil)
	assert.Empty(t, pool.FetchAll(context.Background(), nil))
}
