// Package ratelimit throttles requests per board host with token buckets, and pauses a host
// that answered 429.
package ratelimit

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/JakeFAU/carbuzz/internal/metrics"
)

// Config holds rate limiter configuration.
type Config struct {
	DefaultRPS   float64
	DefaultBurst int
	// DomainRPS overrides DefaultRPS for specific hostnames.
	DomainRPS map[string]float64
}

type hostState struct {
	bucket      *rate.Limiter
	pausedUntil time.Time
}

// Limiter hands out per-host tokens.
type Limiter struct {
	cfg Config
	now func() time.Time

	mu    sync.Mutex
	hosts map[string]*hostState
}

// New creates a Limiter. A non-positive rate means unlimited.
func New(cfg Config) *Limiter {
	if cfg.DefaultBurst <= 0 {
		cfg.DefaultBurst = 1
	}
	rps := make(map[string]float64, len(cfg.DomainRPS))
	for host, v := range cfg.DomainRPS {
		rps[strings.ToLower(host)] = v
	}
	cfg.DomainRPS = rps
	return &Limiter{cfg: cfg, now: time.Now, hosts: make(map[string]*hostState)}
}

// Wait blocks until the URL's host is out of any penalty and a token is available.
func (l *Limiter) Wait(ctx context.Context, rawURL string) error {
	host := hostOf(rawURL)
	start := time.Now()

	if pause := l.pauseFor(host); pause > 0 {
		timer := time.NewTimer(pause)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("rate limit wait for %s: %w", host, ctx.Err())
		case <-timer.C:
		}
	}
	if err := l.state(host).bucket.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait for %s: %w", host, err)
	}
	if waited := time.Since(start); waited > time.Millisecond {
		metrics.ObserveRateLimitDelay(host, waited)
	}
	return nil
}

// Penalize holds every request to the URL's host for d. Overlapping penalties keep the later end.
func (l *Limiter) Penalize(rawURL string, d time.Duration) {
	if d <= 0 {
		return
	}
	host := hostOf(rawURL)
	st := l.state(host)
	metrics.ObserveRateLimitPenalty(host)
	l.mu.Lock()
	defer l.mu.Unlock()
	if until := l.now().Add(d); until.After(st.pausedUntil) {
		st.pausedUntil = until
	}
}

func (l *Limiter) pauseFor(host string) time.Duration {
	st := l.state(host)
	l.mu.Lock()
	defer l.mu.Unlock()
	return st.pausedUntil.Sub(l.now())
}

func (l *Limiter) state(host string) *hostState {
	l.mu.Lock()
	defer l.mu.Unlock()
	st, ok := l.hosts[host]
	if ok {
		return st
	}
	rps, found := l.cfg.DomainRPS[host]
	if !found {
		rps = l.cfg.DefaultRPS
	}
	limit := rate.Inf
	if rps > 0 {
		limit = rate.Limit(rps)
	}
	st = &hostState{bucket: rate.NewLimiter(limit, l.cfg.DefaultBurst)}
	l.hosts[host] = st
	return st
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	return strings.ToLower(u.Hostname())
}
