package collyfetcher

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/gocolly/colly/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/carbuzz/internal/crawler"
)

func TestFetcherBuildCollector(t *testing.T) {
	t.Parallel()

	f := New(Config{UserAgent: "coverage-agent", Timeout: time.Second})
	collector := f.buildCollector(crawler.FetchRequest{URL: "https://example.com"}, time.Unix(0, 0), &crawler.FetchResponse{}, new(error))
	assert.Equal(t, "coverage-agent", collector.UserAgent)
	assert.True(t, collector.IgnoreRobotsTxt)
	assert.True(t, collector.AllowURLRevisit, "revisits are needed for retries")
	assert.True(t, collector.DetectCharset)
}

func TestConfigureCollectorHooks(t *testing.T) {
	t.Parallel()

	f := New(Config{})
	req := crawler.FetchRequest{
		URL:     "https://www.clien.net/service/board/cm_car/1",
		Headers: http.Header{"Referer": {"https://www.clien.net/service/search"}},
	}
	var result crawler.FetchResponse
	var fetchErr error

	hooks := &stubHooks{}
	f.configureCollectorHooks(hooks, req, time.Unix(0, 0), &result, &fetchErr)
	require.NotNil(t, hooks.onRequest)
	require.NotNil(t, hooks.onResponse)
	require.NotNil(t, hooks.onError)

	collyReq := &colly.Request{Headers: &http.Header{}}
	hooks.onRequest(collyReq)
	assert.Equal(t, "https://www.clien.net/service/search", collyReq.Headers.Get("Referer"))
	assert.Equal(t, defaultAcceptLanguage, collyReq.Headers.Get("Accept-Language"))

	hooks.onResponse(&colly.Response{
		StatusCode: http.StatusOK,
		Body:       []byte("body"),
		Headers:    &http.Header{"X-Resp": {"ok"}},
		Request:    &colly.Request{URL: mustParseURL(t, req.URL)},
	})
	assert.Equal(t, http.StatusOK, result.StatusCode)
	assert.Equal(t, "body", string(result.Body))
	assert.False(t, result.UsedHeadless)

	hooks.onError(nil, errors.New("boom"))
	require.EqualError(t, fetchErr, "boom")

	hooks.onError(&colly.Response{StatusCode: http.StatusGone}, errors.New("Gone"))
	var status *crawler.StatusError
	require.ErrorAs(t, fetchErr, &status)
	assert.Equal(t, http.StatusGone, status.Code)
	assert.Equal(t, req.URL, status.URL)
}

func TestApplyHeadersDefaults(t *testing.T) {
	t.Parallel()

	f := New(Config{AcceptLanguage: "ko"})
	collyReq := &colly.Request{Headers: &http.Header{}}
	f.applyHeaders(crawler.FetchRequest{URL: "https://gall.dcinside.com/board/view/?id=car_new1&no=7"}, collyReq)
	assert.Equal(t, "https://gall.dcinside.com/", collyReq.Headers.Get("Referer"))
	assert.Equal(t, "ko", collyReq.Headers.Get("Accept-Language"))

	bare := &colly.Request{Headers: &http.Header{}}
	f.applyHeaders(crawler.FetchRequest{URL: "not a url"}, bare)
	assert.Empty(t, bare.Headers.Get("Referer"))
}

func TestRequestParts(t *testing.T) {
	t.Parallel()

	method, body, hdr := requestParts(crawler.FetchRequest{URL: "https://example.com"})
	require.Equal(t, http.MethodGet, method)
	require.Nil(t, body)
	require.Empty(t, hdr)

	method, body, hdr = requestParts(crawler.FetchRequest{
		URL:  "https://example.com/search",
		Form: url.Values{"keyword": {"투싼"}, "page": {"2"}},
	})
	require.Equal(t, http.MethodPost, method)
	require.Equal(t, "application/x-www-form-urlencoded", hdr.Get("Content-Type"))
	raw, err := io.ReadAll(body)
	require.NoError(t, err)
	values, err := url.ParseQuery(string(raw))
	require.NoError(t, err)
	require.Equal(t, "투싼", values.Get("keyword"))
}

func TestFetchAgainstServer(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/search":
			if r.Method != http.MethodPost {
				http.Error(w, "method", http.StatusMethodNotAllowed)
				return
			}
			_ = r.ParseForm()
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
			_, _ = io.WriteString(w, "<html><body>"+r.PostForm.Get("keyword")+"</body></html>")
		case "/referer":
			w.Header().Set("Content-Type", "text/plain; charset=utf-8")
			_, _ = io.WriteString(w, r.Header.Get("Referer"))
		case "/missing":
			http.NotFound(w, r)
		case "/busy":
			w.WriteHeader(http.StatusServiceUnavailable)
		default:
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
			_, _ = io.WriteString(w, "<html><body>listing</body></html>")
		}
	}))
	defer srv.Close()

	f := New(Config{UserAgent: "carbuzz-test", Timeout: 2 * time.Second})
	ctx := context.Background()

	resp, err := f.Fetch(ctx, crawler.FetchRequest{URL: srv.URL + "/list"})
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Contains(t, string(resp.Body), "listing")

	resp, err = f.Fetch(ctx, crawler.FetchRequest{URL: srv.URL + "/list"})
	require.NoError(t, err, "revisiting the same URL must be allowed")
	require.Contains(t, string(resp.Body), "listing")

	resp, err = f.Fetch(ctx, crawler.FetchRequest{
		URL:  srv.URL + "/search",
		Form: url.Values{"keyword": {"avante"}},
	})
	require.NoError(t, err)
	require.Contains(t, string(resp.Body), "avante")

	resp, err = f.Fetch(ctx, crawler.FetchRequest{URL: srv.URL + "/referer"})
	require.NoError(t, err)
	assert.Equal(t, srv.URL+"/", string(resp.Body))

	_, err = f.Fetch(ctx, crawler.FetchRequest{URL: srv.URL + "/missing"})
	var status *crawler.StatusError
	require.ErrorAs(t, err, &status)
	assert.Equal(t, http.StatusNotFound, status.Code)
	assert.False(t, crawler.Retryable(err))

	_, err = f.Fetch(ctx, crawler.FetchRequest{URL: srv.URL + "/busy"})
	require.ErrorAs(t, err, &status)
	assert.Equal(t, http.StatusServiceUnavailable, status.Code)
	assert.True(t, crawler.Retryable(err))
}

func TestFetchCanceled(t *testing.T) {
	t.Parallel()

	block := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		<-block
	}))
	defer srv.Close()
	defer close(block)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := New(Config{Timeout: time.Second}).Fetch(ctx, crawler.FetchRequest{URL: srv.URL})
	require.ErrorIs(t, err, context.Canceled)
}

func mustParseURL(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	require.NoError(t, err)
	return u
}

type stubHooks struct {
	onRequest  colly.RequestCallback
	onResponse colly.ResponseCallback
	onError    colly.ErrorCallback
}

func (s *stubHooks) OnRequest(cb colly.RequestCallback) {
	s.onRequest = cb
}

func (s *stubHooks) OnResponse(cb colly.ResponseCallback) {
	s.onResponse = cb
}

func (s *stubHooks) OnError(cb colly.ErrorCallback) {
	s.onError = cb
}
