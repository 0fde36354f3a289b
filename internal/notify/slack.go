// Package notify formats and delivers Slack messages for alerts and pipeline errors.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/carbuzz/internal/crawler"
	"github.com/JakeFAU/carbuzz/internal/tabular"
)

// Config controls the Slack webhook client.
type Config struct {
	WebhookURL string
	Timeout    time.Duration
	// Location is used to render timestamps in messages.
	Location *time.Location
}

// Slack posts messages to an incoming webhook.
type Slack struct {
	webhookURL string
	client     *http.Client
	clock      crawler.Clock
	loc        *time.Location
	logger     *zap.Logger
}

const unknown = "알 수 없음"

type slackPayload struct {
	Text string `json:"text"`
}

// NewSlack builds a Slack notifier. An empty webhook URL yields a disabled notifier.
func NewSlack(cfg Config, clock crawler.Clock, logger *zap.Logger) *Slack {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	loc := cfg.Location
	if loc == nil {
		loc = time.UTC
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Slack{
		webhookURL: cfg.WebhookURL,
		client:     &http.Client{Timeout: timeout},
		clock:      clock,
		loc:        loc,
		logger:     logger.Named("slack"),
	}
}

// Enabled reports whether a webhook is configured.
func (s *Slack) Enabled() bool {
	return s != nil && s.webhookURL != ""
}

// Send posts text to the webhook.
func (s *Slack) Send(ctx context.Context, text string) error {
	if !s.Enabled() {
		return fmt.Errorf("slack webhook is not configured")
	}
	body, err := json.Marshal(slackPayload{Text: text})
	if err != nil {
		return fmt.Errorf("marshal slack payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build slack request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("post slack message: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("slack returned %d: %s", resp.StatusCode, strings.TrimSpace(string(detail)))
	}
	return nil
}

// SendAlerts posts the alert report for rows. Nothing is sent when rows is empty.
func (s *Slack) SendAlerts(ctx context.Context, threshold float64, rows []tabular.AlertRow) error {
	if len(rows) == 0 {
		return nil
	}
	return s.Send(ctx, AlertReport(s.now(), threshold, rows))
}

// ReportError posts an error alert.
func (s *Slack) ReportError(ctx context.Context, event crawler.ErrorEvent) error {
	return s.Send(ctx, ErrorAlert(s.now(), event))
}

func (s *Slack) now() time.Time {
	if s.clock == nil {
		return time.Now().In(s.loc)
	}
	return s.clock.Now().In(s.loc)
}

// AlertReport renders the popularity report for posts at or above threshold.
func AlertReport(now time.Time, threshold float64, rows []tabular.AlertRow) string {
	var b strings.Builder
	fmt.Fprintf(&b, "💥💥%s %s시 화제도 리포트💥💥\n", now.Format("2006-01-02"), now.Format("15"))
	fmt.Fprintf(&b, "현재 화제도 %s를 넘은 게시글 %d개에 대해 보고 드립니다.\n\n", formatThreshold(threshold), len(rows))
	for _, r := range rows {
		fmt.Fprintf(&b, "차종: %s \n 화제도: %.2f\n 제목: %s \n%s\n\n", r.Model, r.Popularity, r.Title, r.URL)
	}
	return b.String()
}

// ErrorAlert renders a pipeline error for the ops channel.
func ErrorAlert(now time.Time, event crawler.ErrorEvent) string {
	var b strings.Builder
	b.WriteString("🚨 *오류 발생!*\n")
	fmt.Fprintf(&b, "- 발생 시간: %s\n", now.Format("2006-01-02 15:04"))
	fmt.Fprintf(&b, "- 위치: `%s`\n", orDefault(event.Source, unknown))
	fmt.Fprintf(&b, "- 단계: `%s`\n", orDefault(event.Stage, unknown))
	fmt.Fprintf(&b, "- URL: %s\n", orDefault(event.URL, "없음"))
	fmt.Fprintf(&b, "- 오류 메시지: ```%s```\n", orDefault(event.Error, "No details"))
	return b.String()
}

func formatThreshold(t float64) string {
	if t == float64(int64(t)) {
		return fmt.Sprintf("%d", int64(t))
	}
	return fmt.Sprintf("%g", t)
}

func orDefault(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}
