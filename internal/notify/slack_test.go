package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/carbuzz/internal/crawler"
	"github.com/JakeFAU/carbuzz/internal/tabular"
)

var kst = time.FixedZone("KST", 9*60*60)

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

type webhook struct {
	mu    sync.Mutex
	texts []string
}

func (w *webhook) handler(status int) http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		var p slackPayload
		if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
			http.Error(rw, err.Error(), http.StatusBadRequest)
			return
		}
		w.mu.Lock()
		w.texts = append(w.texts, p.Text)
		w.mu.Unlock()
		rw.WriteHeader(status)
		_, _ = rw.Write([]byte("ok"))
	}
}

func TestAlertReportFormat(t *testing.T) {
	t.Parallel()

	now := time.Date(2024, 10, 18, 21, 3, 0, 0, kst)
	text := AlertReport(now, 15, []tabular.AlertRow{
		{Model: "팰리세이드", Title: "리콜 소식", URL: "https://a", Popularity: 17.256},
		{Model: "투싼", Title: "출고 후기", URL: "https://b", Popularity: 15},
	})

	require.True(t, strings.HasPrefix(text, "💥💥2024-10-18 21시 화제도 리포트💥💥\n현재 화제도 15를 넘은 게시글 2개에 대해 보고 드립니다.\n\n"))
	assert.Contains(t, text, "차종: 팰리세이드 \n 화제도: 17.26\n 제목: 리콜 소식 \nhttps://a\n\n")
	assert.Contains(t, text, "차종: 투싼 \n 화제도: 15.00\n")
}

func TestErrorAlertFormat(t *testing.T) {
	t.Parallel()

	now := time.Date(2024, 10, 18, 9, 5, 0, 0, kst)
	text := ErrorAlert(now, crawler.ErrorEvent{Source: "bobae", Stage: crawler.StageExtractContent, Error: "boom"})
	assert.Equal(t, "🚨 *오류 발생!*\n"+
		"- 발생 시간: 2024-10-18 09:05\n"+
		"- 위치: `bobae`\n"+
		"- 단계: `extract_content`\n"+
		"- URL: 없음\n"+
		"- 오류 메시지: ```boom```\n", text)
}

func TestSendAlertsPostsJSON(t *testing.T) {
	t.Parallel()

	hook := &webhook{}
	srv := httptest.NewServer(hook.handler(http.StatusOK))
	defer srv.Close()

	clock := fixedClock{t: time.Date(2024, 10, 18, 12, 0, 0, 0, time.UTC)}
	s := NewSlack(Config{WebhookURL: srv.URL, Location: kst}, clock, nil)
	require.True(t, s.Enabled())

	require.NoError(t, s.SendAlerts(context.Background(), 15, nil))
	require.NoError(t, s.SendAlerts(context.Background(), 15, []tabular.AlertRow{{Model: "쏘렌토", URL: "u", Popularity: 20}}))

	require.Len(t, hook.texts, 1)
	assert.Contains(t, hook.texts[0], "2024-10-18 21시")
}

func TestReportErrorNon200(t *testing.T) {
	t.Parallel()

	hook := &webhook{}
	srv := httptest.NewServer(hook.handler(http.StatusForbidden))
	defer srv.Close()

	s := NewSlack(Config{WebhookURL: srv.URL}, nil, nil)
	err := s.ReportError(context.Background(), crawler.ErrorEvent{Source: "clien", Error: "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "403")
}

func TestDisabledSlack(t *testing.T) {
	t.Parallel()

	s := NewSlack(Config{}, nil, nil)
	assert.False(t, s.Enabled())
	require.Error(t, s.Send(context.Background(), "hi"))

	var nilSlack *Slack
	assert.False(t, nilSlack.Enabled())
}
