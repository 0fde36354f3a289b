// Package metrics exposes Prometheus collectors for the carbuzz pipeline.
package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	listingPagesTotal          *prometheus.CounterVec
	listingItemsTotal          *prometheus.CounterVec
	detailFetchTotal           *prometheus.CounterVec
	documentsTotal             *prometheus.CounterVec
	alertsTotal                prometheus.Counter
	stageDurationSeconds       *prometheus.HistogramVec
	rateLimitDelaySeconds      *prometheus.HistogramVec
	rateLimitPenaltiesTotal    *prometheus.CounterVec
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		listingPagesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "carbuzz_listing_pages_total",
				Help: "Listing pages fetched, labeled by platform and status.",
			},
			[]string{"platform", "status"},
		)

		listingItemsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "carbuzz_listing_items_total",
				Help: "Post identifiers collected from listing pages, labeled by platform.",
			},
			[]string{"platform"},
		)

		detailFetchTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "carbuzz_detail_fetch_total",
				Help: "Detail page fetch outcomes, labeled by platform and outcome.",
			},
			[]string{"platform", "outcome"},
		)

		documentsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "carbuzz_documents_total",
				Help: "Documents extracted from raw HTML, labeled by platform and status.",
			},
			[]string{"platform", "status"},
		)

		alertsTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "carbuzz_alerts_total",
				Help: "Posts that crossed the popularity alert threshold.",
			},
		)

		stageDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "carbuzz_stage_duration_seconds",
				Help:    "Wall time of each pipeline stage.",
				Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
			},
			[]string{"stage"},
		)

		rateLimitDelaySeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "carbuzz_rate_limit_delay_seconds",
				Help:    "Histogram of rate limit wait durations.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"domain"},
		)

		rateLimitPenaltiesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "carbuzz_rate_limit_penalties_total",
				Help: "Hosts paused after answering 429.",
			},
			[]string{"domain"},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"method", "route"},
		)
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveListingPage counts one listing page fetch. status is "ok" or "failed".
func ObserveListingPage(platform, status string) {
	Init()
	listingPagesTotal.WithLabelValues(platform, status).Inc()
}

// ObserveListingItems adds n collected identifiers for platform.
func ObserveListingItems(platform string, n int) {
	Init()
	if n > 0 {
		listingItemsTotal.WithLabelValues(platform).Add(float64(n))
	}
}

// ObserveDetailFetch counts a detail fetch outcome: success, recovered or dropped.
func ObserveDetailFetch(platform, outcome string) {
	Init()
	detailFetchTotal.WithLabelValues(platform, outcome).Inc()
}

// ObserveDocument counts an extracted document: parsed or dropped.
func ObserveDocument(platform, status string) {
	Init()
	documentsTotal.WithLabelValues(platform, status).Inc()
}

// ObserveAlerts adds n alerting posts.
func ObserveAlerts(n int) {
	Init()
	if n > 0 {
		alertsTotal.Add(float64(n))
	}
}

// ObserveStage records the wall time of a pipeline stage.
func ObserveStage(stage string, duration time.Duration) {
	Init()
	stageDurationSeconds.WithLabelValues(stage).Observe(duration.Seconds())
}

// ObserveRateLimitDelay records the duration of a rate limit wait.
func ObserveRateLimitDelay(domain string, duration time.Duration) {
	Init()
	rateLimitDelaySeconds.WithLabelValues(domain).Observe(duration.Seconds())
}

// ObserveRateLimitPenalty counts a 429 pause applied to domain.
func ObserveRateLimitPenalty(domain string) {
	Init()
	rateLimitPenaltiesTotal.WithLabelValues(domain).Inc()
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
