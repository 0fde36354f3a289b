package clien

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/carbuzz/internal/crawler"
)

var seoul = time.FixedZone("KST", 9*3600)

const listingHTML = `<html><body><div class="total_search">
  <div class="symph_row">
    <a class="subject_fixed" href="/service/board/cm_car/18000001?combine=true&q=투싼">투싼 하이브리드 연비</a>
    <span class="timestamp">2025-03-10 09:15:00</span>
  </div>
  <div class="symph_row">
    <a class="subject_fixed" href="/service/board/park/18000002">투싼 시승기</a>
    <span class="timestamp">2025-03-09 23:59:59</span>
  </div>
</div></body></html>`

const detailHTML = `<html><body><div class="content_view">
  <h3 class="post_subject"><span class="category">자동차</span><span>투싼 하이브리드 한 달 후기</span></h3>
  <span class="nickname"><span>달리는곰</span></span>
  <span class="view_count"><strong>4,321</strong></span>
  <span class="view_count date"> 2025-03-10 09:15:00 <span class="lastdate">수정일 : 2025-03-10 10:00:00</span></span>
  <a class="symph_count"><strong>7</strong></a>
  <div class="post_article"><p>연비가 정말 좋다</p><p>승차감도 괜찮음</p></div>
  <div class="comment_view">부럽네요</div>
  <div class="comment_view">   </div>
  <div class="comment_view"><p>가격이 <b>비싸</b></p></div>
</div></body></html>`

func TestParseListing(t *testing.T) {
	t.Parallel()

	p := New(seoul, true)
	page, err := p.ParseListing([]byte(listingHTML), time.Now())
	require.NoError(t, err)
	require.True(t, page.Found)
	require.Len(t, page.Items, 2)
	assert.Equal(t, "/service/board/cm_car/18000001", page.Items[0].ID)
	assert.Equal(t, time.Date(2025, 3, 10, 9, 15, 0, 0, seoul), page.Items[0].Published)
	assert.Equal(t, "/service/board/park/18000002", page.Items[1].ID)
}

func TestParseListingMissingContainer(t *testing.T) {
	t.Parallel()

	page, err := New(seoul, false).ParseListing([]byte(`<html><body><p>검색 결과가 없습니다</p></body></html>`), time.Now())
	require.NoError(t, err)
	assert.False(t, page.Found)
}

func TestParseListingBadTimestamp(t *testing.T) {
	t.Parallel()

	body := `<div class="total_search"><div class="symph_row"><a class="subject_fixed" href="/a"></a><span class="timestamp">방금</span></div></div>`
	_, err := New(seoul, false).ParseListing([]byte(body), time.Now())
	require.ErrorIs(t, err, crawler.ErrMalformedListing)
}

func TestRequests(t *testing.T) {
	t.Parallel()

	p := New(seoul, true)
	req := p.ListingRequest("팰리세이드", 0)
	assert.Contains(t, req.URL, "https://www.clien.net/service/search?")
	assert.Contains(t, req.URL, "p=0")
	assert.Contains(t, req.URL, "sort=recency")
	assert.True(t, req.Headless)
	assert.Equal(t, "div.total_search", req.WaitSelector)
	assert.Equal(t, 0, p.FirstPage())

	detail := p.DetailRequest("/service/board/cm_car/1")
	assert.Equal(t, "https://www.clien.net/service/board/cm_car/1", detail.URL)
	assert.Equal(t, "div.content_view", detail.WaitSelector)
}

func TestCapture(t *testing.T) {
	t.Parallel()

	p := New(seoul, false)
	html, err := p.Capture([]byte(detailHTML))
	require.NoError(t, err)
	assert.Contains(t, html, `class="post_article"`)
	assert.NotContains(t, html, `class="content_view"`)

	_, err = p.Capture([]byte(`<html><body>점검 중</body></html>`))
	require.ErrorIs(t, err, crawler.ErrContainerMissing)
}

func TestExtract(t *testing.T) {
	t.Parallel()

	p := New(seoul, false)
	html, err := p.Capture([]byte(detailHTML))
	require.NoError(t, err)

	url := "https://www.clien.net/service/board/cm_car/18000001"
	got, err := p.Extract(crawler.RawDocument{URL: url, Entity: "tucson", HTML: html})
	require.NoError(t, err)

	doc := got.Document
	assert.Equal(t, crawler.SiteClien, doc.Site)
	assert.Equal(t, "tucson", doc.Entity)
	assert.Equal(t, "투싼 하이브리드 한 달 후기", doc.Title)
	assert.Equal(t, "연비가 정말 좋다 승차감도 괜찮음", doc.Body)
	assert.Equal(t, "달리는곰", doc.Author)
	assert.Equal(t, int64(4321), doc.Views)
	assert.Equal(t, int64(7), doc.Likes)
	assert.Zero(t, doc.Dislikes)
	assert.Equal(t, time.Date(2025, 3, 10, 9, 15, 0, 0, seoul), doc.Timestamp)

	require.Len(t, got.Comments, 2)
	assert.Equal(t, "가격이 비싸", got.Comments[1].Text)
	assert.Equal(t, doc.Title, got.Comments[0].Title)
	assert.Equal(t, int64(2), doc.CommentCount)

	require.Len(t, got.Issues, 1)
	assert.Equal(t, crawler.StageExtractComments, got.Issues[0].Stage)
}

func TestExtractDefaultsAndHardFail(t *testing.T) {
	t.Parallel()

	p := New(seoul, false)
	got, err := p.Extract(crawler.RawDocument{
		URL:  "https://www.clien.net/x",
		HTML: `<span class="view_count date">2025-03-10 01:00:00</span><div class="post_article"> </div>`,
	})
	require.NoError(t, err)
	assert.Equal(t, crawler.UntitledPost, got.Document.Title)
	assert.Equal(t, crawler.UnknownAuthor, got.Document.Author)
	assert.Zero(t, got.Document.Views)
	require.Len(t, got.Issues, 1)
	assert.Equal(t, crawler.StageExtractContent, got.Issues[0].Stage)

	_, err = p.Extract(crawler.RawDocument{URL: "https://www.clien.net/y", HTML: `<div class="post_article">본문</div>`})
	require.ErrorIs(t, err, crawler.ErrTimestamp)
}
