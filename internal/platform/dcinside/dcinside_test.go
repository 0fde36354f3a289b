package dcinside

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/carbuzz/internal/crawler"
)

var seoul = time.FixedZone("KST", 9*3600)

const listingHTML = `<html><body><table><tbody class="listwrap2">
<tr class="ub-content us-post" data-no="912345"><td class="gall_num">912345</td><td class="gall_tit">팰리 풀체인지</td><td class="gall_date" title="2025-03-10 11:20:33">11:20</td></tr>
<tr class="ub-content us-post"><td class="gall_num"> 912300 </td><td class="gall_tit">펠리 가격</td><td class="gall_date" title="2025-03-09 22:01:00">03.09</td></tr>
</tbody></table></body></html>`

const detailHTML = `<html><body><main id="container" class="gallery_view">
<article><div class="gall_header">갤러리 헤더</div></article>
<article>
  <span class="title_subject">팰리세이드 하브 대기</span>
  <div class="gall_writer ub-writer"><span class="nickname in">ㅇㅇ</span></div>
  <span class="gall_date" title="2025-03-10 11:20:33">2025.03.10 11:20:33</span>
  <span class="gall_count">조회 1,045</span>
  <div class="write_div"><p>출고 대기가 길다</p><p>실내 공간은 넓음</p></div>
  <p class="up_num font_red">15</p>
  <p class="down_num">3</p>
  <ul class="cmt_list">
    <li class="ub-content"><p class="usertxt ub-word">나도 대기중</p></li>
    <li class="ub-content"><p class="usertxt ub-word"></p></li>
    <li class="ub-content"><div class="dory">광고</div></li>
  </ul>
</article>
</main></body></html>`

func TestParseListing(t *testing.T) {
	t.Parallel()

	page, err := New(seoul, true).ParseListing([]byte(listingHTML), time.Now())
	require.NoError(t, err)
	require.True(t, page.Found)
	require.Len(t, page.Items, 2)
	assert.Equal(t, "912345", page.Items[0].ID)
	assert.Equal(t, time.Date(2025, 3, 10, 11, 20, 33, 0, seoul), page.Items[0].Published)
	assert.Equal(t, "912300", page.Items[1].ID)
}

func TestParseListingMissingAndMalformed(t *testing.T) {
	t.Parallel()

	p := New(seoul, false)
	page, err := p.ParseListing([]byte(`<html><body><p>결과 없음</p></body></html>`), time.Now())
	require.NoError(t, err)
	assert.False(t, page.Found)

	bad := `<table><tbody class="listwrap2"><tr class="us-post"><td class="gall_num">1</td><td class="gall_date">방금</td></tr></tbody></table>`
	_, err = p.ParseListing([]byte(bad), time.Now())
	require.ErrorIs(t, err, crawler.ErrMalformedListing)
}

func TestRequests(t *testing.T) {
	t.Parallel()

	p := New(seoul, true)
	req := p.ListingRequest("팰리", 2)
	assert.Contains(t, req.URL, "https://gall.dcinside.com/board/lists/?")
	assert.Contains(t, req.URL, "id=car_new1")
	assert.Contains(t, req.URL, "page=2")
	assert.Contains(t, req.URL, "s_type=search_subject_memo")
	assert.Equal(t, "tbody.listwrap2", req.WaitSelector)

	assert.Equal(t, "https://gall.dcinside.com/board/view/?id=car_new1&no=912345", p.DetailRequest("912345").URL)
}

func TestCapturePrefersSecondArticle(t *testing.T) {
	t.Parallel()

	p := New(seoul, false)
	html, err := p.Capture([]byte(detailHTML))
	require.NoError(t, err)
	assert.Contains(t, html, "title_subject")
	assert.NotContains(t, html, "갤러리 헤더")

	single, err := p.Capture([]byte(`<main class="gallery_view"><article><p>only</p></article></main>`))
	require.NoError(t, err)
	assert.Contains(t, single, "only")

	_, err = p.Capture([]byte(`<main class="gallery_view"></main>`))
	require.ErrorIs(t, err, crawler.ErrContainerMissing)
}

func TestExtract(t *testing.T) {
	t.Parallel()

	p := New(seoul, false)
	html, err := p.Capture([]byte(detailHTML))
	require.NoError(t, err)

	url := "https://gall.dcinside.com/board/view/?id=car_new1&no=912345"
	got, err := p.Extract(crawler.RawDocument{URL: url, Entity: "palisade", HTML: html})
	require.NoError(t, err)

	doc := got.Document
	assert.Equal(t, crawler.SiteDCInside, doc.Site)
	assert.Equal(t, "palisade", doc.Entity)
	assert.Equal(t, "팰리세이드 하브 대기", doc.Title)
	assert.Equal(t, "출고 대기가 길다\n실내 공간은 넓음", doc.Body)
	assert.Equal(t, "ㅇㅇ", doc.Author)
	assert.Equal(t, int64(1045), doc.Views)
	assert.Equal(t, int64(15), doc.Likes)
	assert.Equal(t, int64(3), doc.Dislikes)
	assert.Equal(t, time.Date(2025, 3, 10, 11, 20, 33, 0, seoul), doc.Timestamp)

	require.Len(t, got.Comments, 1)
	assert.Equal(t, "나도 대기중", got.Comments[0].Text)
	assert.Equal(t, int64(1), doc.CommentCount)
	require.Len(t, got.Issues, 1, "two unreadable comments produce one issue")
	assert.Equal(t, crawler.StageExtractComments, got.Issues[0].Stage)
}

func TestExtractMissingDate(t *testing.T) {
	t.Parallel()

	_, err := New(seoul, false).Extract(crawler.RawDocument{URL: "u", HTML: `<span class="title_subject">제목</span>`})
	require.ErrorIs(t, err, crawler.ErrTimestamp)
}
