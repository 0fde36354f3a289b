package fmkorea

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/carbuzz/internal/crawler"
)

var seoul = time.FixedZone("KST", 9*3600)

const listingHTML = `<html><body><table><tbody>
<tr><td class="title"><a class="hx" href="/index.php?mid=car&document_srl=7712345&search_keyword=아반떼">아반떼 N 출고</a></td><td class="time">14:05</td></tr>
<tr><td class="title"><a class="hx" href="/best">공지</a></td><td class="time">2025.03.09</td></tr>
<tr><td class="title"><a class="hx" href="/index.php?document_srl=7700001&mid=car">아반떼 하이브리드</a></td><td class="time">2025.03.08</td></tr>
</tbody></table></body></html>`

const detailHTML = `<html><body><div class="rd_nav_style2">
<h1><span class="np_18px_span">아반떼 N 출고 후기</span></h1>
<span class="date m_no">2025.03.10 14:05</span>
<div class="member_plate">카마니아</div>
<div class="xe_content"><p>디자인이 멋있다</p><p>가속이 빠름</p></div>
<div class="btm_area"><div class="fr"><span>조회 <b>1,024</b></span><span>추천 <b>12</b></span><span>댓글 <b>2</b></span></div></div>
<ul class="fdb_lst_ul">
  <li><div class="comment-content"><div class="xe_content">축하드려요</div></div></li>
  <li><div class="comment-content"> </div></li>
</ul>
</div></body></html>`

func TestParseListing(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 3, 10, 20, 0, 0, 0, seoul)
	page, err := New(seoul, false).ParseListing([]byte(listingHTML), now)
	require.NoError(t, err)
	require.True(t, page.Found)
	require.Len(t, page.Items, 2)

	assert.Equal(t, "7712345", page.Items[0].ID)
	assert.Equal(t, time.Date(2025, 3, 10, 14, 5, 0, 0, seoul), page.Items[0].Published, "clock-only rows are today")
	assert.Equal(t, "7700001", page.Items[1].ID)
	assert.Equal(t, time.Date(2025, 3, 8, 0, 0, 0, 0, seoul), page.Items[1].Published)
}

func TestParseListingEmptyAndMalformed(t *testing.T) {
	t.Parallel()

	p := New(seoul, false)
	page, err := p.ParseListing([]byte(`<html><body><div>no results</div></body></html>`), time.Now())
	require.NoError(t, err)
	assert.False(t, page.Found)

	bad := `<table><tbody><tr><td><a class="hx" href="?document_srl=1"></a></td><td class="time">어제</td></tr></tbody></table>`
	_, err = p.ParseListing([]byte(bad), time.Now())
	require.ErrorIs(t, err, crawler.ErrMalformedListing)
}

func TestRequests(t *testing.T) {
	t.Parallel()

	p := New(seoul, true)
	req := p.ListingRequest("아반떼", 3)
	assert.Contains(t, req.URL, "https://www.fmkorea.com/search.php?")
	assert.Contains(t, req.URL, "mid=car")
	assert.Contains(t, req.URL, "page=3")
	assert.Contains(t, req.URL, "search_target=title_content")
	assert.True(t, req.Headless)
	assert.Equal(t, "https://www.fmkorea.com/7712345", p.DetailRequest("7712345").URL)
}

func TestCaptureAndExtract(t *testing.T) {
	t.Parallel()

	p := New(seoul, false)
	html, err := p.Capture([]byte(detailHTML))
	require.NoError(t, err)

	got, err := p.Extract(crawler.RawDocument{URL: "https://www.fmkorea.com/7712345", Entity: "avante", HTML: html})
	require.NoError(t, err)
	doc := got.Document
	assert.Equal(t, crawler.SiteFMKorea, doc.Site)
	assert.Equal(t, "아반떼 N 출고 후기", doc.Title)
	assert.Equal(t, "디자인이 멋있다 가속이 빠름", doc.Body)
	assert.Equal(t, "카마니아", doc.Author)
	assert.Equal(t, int64(1024), doc.Views)
	assert.Equal(t, int64(12), doc.Likes)
	assert.Equal(t, time.Date(2025, 3, 10, 14, 5, 0, 0, seoul), doc.Timestamp)
	require.Len(t, got.Comments, 1)
	assert.Equal(t, "축하드려요", got.Comments[0].Text)
	assert.Equal(t, int64(1), doc.CommentCount)
	assert.Empty(t, got.Issues, "one readable comment is enough to skip the issue")

	_, err = p.Capture([]byte(`<html><body></body></html>`))
	require.ErrorIs(t, err, crawler.ErrContainerMissing)
}

func TestExtractAllCommentsEmpty(t *testing.T) {
	t.Parallel()

	html := `<span class="date m_no">2025.03.10 01:00</span>
<ul class="fdb_lst_ul"><li><div class="comment-content"></div></li><li><div class="comment-content"> </div></li></ul>`
	got, err := New(seoul, false).Extract(crawler.RawDocument{URL: "u", HTML: html})
	require.NoError(t, err)
	assert.Empty(t, got.Comments)
	require.Len(t, got.Issues, 1)
	assert.Equal(t, crawler.StageExtractComments, got.Issues[0].Stage)
	assert.Equal(t, crawler.UntitledPost, got.Document.Title)
}

func TestExtractBadDate(t *testing.T) {
	t.Parallel()

	_, err := New(seoul, false).Extract(crawler.RawDocument{URL: "u", HTML: `<span class="date m_no">3시간 전</span>`})
	require.ErrorIs(t, err, crawler.ErrTimestamp)
}
