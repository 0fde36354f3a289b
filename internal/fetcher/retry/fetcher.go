// Package retry wraps a Fetcher with rate limiting and bounded request-level retries.
package retry

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/carbuzz/internal/crawler"
)

// Limiter blocks until a request to url may proceed.
type Limiter interface {
	Wait(ctx context.Context, url string) error
}

// Penalizer is implemented by limiters that can hold a host after it answered 429.
type Penalizer interface {
	Penalize(url string, d time.Duration)
}

// Fetcher retries failed fetches according to a RetryPolicy.
type Fetcher struct {
	next    crawler.Fetcher
	policy  crawler.RetryPolicy
	limiter Limiter
	logger  *zap.Logger
	sleep   func(ctx context.Context, d time.Duration) error
}

// New wraps next. A nil limiter disables throttling.
func New(next crawler.Fetcher, policy crawler.RetryPolicy, limiter Limiter, logger *zap.Logger) *Fetcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if policy == nil {
		policy = crawler.NewFixedRetryPolicy(3, 2*time.Second)
	}
	return &Fetcher{
		next:    next,
		policy:  policy,
		limiter: limiter,
		logger:  logger.Named("retry"),
		sleep:   sleepContext,
	}
}

// Fetch performs the request, retrying transient failures.
func (f *Fetcher) Fetch(ctx context.Context, request crawler.FetchRequest) (crawler.FetchResponse, error) {
	for attempt := 1; ; attempt++ {
		if f.limiter != nil {
			if err := f.limiter.Wait(ctx, request.URL); err != nil {
				return crawler.FetchResponse{}, err
			}
		}
		resp, err := f.next.Fetch(ctx, request)
		if err == nil {
			return resp, nil
		}
		if !f.policy.ShouldRetry(err, attempt) {
			return crawler.FetchResponse{}, fmt.Errorf("fetch %s after %d attempt(s): %w", request.URL, attempt, err)
		}
		delay := f.policy.Backoff(attempt)
		if p, ok := f.limiter.(Penalizer); ok && tooManyRequests(err) {
			p.Penalize(request.URL, delay)
		}
		f.logger.Warn("fetch failed, retrying",
			zap.String("url", request.URL),
			zap.Int("attempt", attempt),
			zap.Duration("backoff", delay),
			zap.Error(err),
		)
		if err := f.sleep(ctx, delay); err != nil {
			return crawler.FetchResponse{}, fmt.Errorf("retry wait canceled: %w", err)
		}
	}
}

func tooManyRequests(err error) bool {
	var status *crawler.StatusError
	return errors.As(err, &status) && status.Code == http.StatusTooManyRequests
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
