// Package worker fetches detail pages for a platform with a single quarantine replay.
package worker

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/carbuzz/internal/crawler"
	"github.com/JakeFAU/carbuzz/internal/metrics"
)

// Config controls Pool behavior.
type Config struct {
	// Concurrency bounds the number of detail fetches in flight.
	Concurrency int
}

// Pool runs detail fetch tasks. A failed task is quarantined and replayed once after the
// first pass; a task that fails twice is reported and dropped.
type Pool struct {
	platform crawler.Platform
	fetcher  crawler.Fetcher
	hasher   crawler.Hasher
	reporter crawler.ErrorReporter
	cfg      Config
	logger   *zap.Logger
}

// New constructs a Pool.
func New(
	platform crawler.Platform,
	fetcher crawler.Fetcher,
	hasher crawler.Hasher,
	reporter crawler.ErrorReporter,
	cfg Config,
	logger *zap.Logger,
) *Pool {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 8
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pool{
		platform: platform,
		fetcher:  fetcher,
		hasher:   hasher,
		reporter: reporter,
		cfg:      cfg,
		logger:   logger.Named("worker").With(zap.String("platform", platform.Name())),
	}
}

// FetchAll returns one Outcome per task, in task order.
func (p *Pool) FetchAll(ctx context.Context, tasks []crawler.Task) []crawler.Outcome {
	outcomes := make([]crawler.Outcome, len(tasks))
	errs := make([]error, len(tasks))
	for i, task := range tasks {
		outcomes[i] = crawler.Outcome{Task: task, URL: p.platform.DetailRequest(task.Item.ID).URL}
	}

	all := make([]int, len(tasks))
	for i := range all {
		all[i] = i
	}
	p.pass(ctx, tasks, all, outcomes, errs, true)

	var quarantine []int
	for i := range tasks {
		if errs[i] != nil {
			quarantine = append(quarantine, i)
		}
	}
	if len(quarantine) > 0 && ctx.Err() == nil {
		p.logger.Info("replaying quarantined tasks", zap.Int("count", len(quarantine)), zap.Int("total", len(tasks)))
		p.pass(ctx, tasks, quarantine, outcomes, errs, false)
	}

	name := p.platform.Name()
	for i := range outcomes {
		o := &outcomes[i]
		switch {
		case errs[i] != nil:
			o.Reason = errs[i].Error()
			metrics.ObserveDetailFetch(name, "dropped")
			p.logger.Warn("dropping document after replay", zap.String("url", o.URL), zap.Int("attempts", o.Attempts), zap.Error(errs[i]))
			if ctx.Err() == nil {
				p.reporter.Report(ctx, crawler.NewErrorEvent(name, crawler.StageGetHTMLs, o.URL, errs[i]))
			}
		case o.Attempts > 1:
			metrics.ObserveDetailFetch(name, "recovered")
		default:
			metrics.ObserveDetailFetch(name, "success")
		}
	}
	return outcomes
}

// pass runs the tasks at indexes, recording results in place. Each index is touched by one goroutine.
func (p *Pool) pass(
	ctx context.Context,
	tasks []crawler.Task,
	indexes []int,
	outcomes []crawler.Outcome,
	errs []error,
	first bool,
) {
	var g errgroup.Group
	g.SetLimit(p.cfg.Concurrency)
	for _, i := range indexes {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				errs[i] = fmt.Errorf("fetch %s: %w", outcomes[i].URL, err)
				return nil
			}
			outcomes[i].Attempts++
			doc, err := p.fetchOne(ctx, tasks[i], outcomes[i].URL, first)
			if err != nil {
				errs[i] = err
				if first {
					p.logger.Debug("quarantining task", zap.String("url", outcomes[i].URL), zap.Error(err))
				}
				return nil
			}
			errs[i] = nil
			outcomes[i].Document = &doc
			return nil
		})
	}
	_ = g.Wait()
}

func (p *Pool) fetchOne(ctx context.Context, task crawler.Task, url string, first bool) (crawler.RawDocument, error) {
	body := task.Item.Prefetched
	if !first || body == nil {
		resp, err := p.fetcher.Fetch(ctx, p.platform.DetailRequest(task.Item.ID))
		if err != nil {
			return crawler.RawDocument{}, fmt.Errorf("fetch %s: %w", url, err)
		}
		body = resp.Body
	}
	html, err := p.platform.Capture(body)
	if err != nil {
		return crawler.RawDocument{}, fmt.Errorf("capture %s: %w", url, err)
	}
	if html == "" {
		return crawler.RawDocument{}, fmt.Errorf("capture %s: %w", url, crawler.ErrContainerMissing)
	}
	hash, err := p.hasher.Hash([]byte(html))
	if err != nil {
		return crawler.RawDocument{}, fmt.Errorf("hash %s: %w", url, err)
	}
	return crawler.RawDocument{URL: url, Entity: task.Entity, HTML: html, Hash: hash}, nil
}

// Recovered counts outcomes that needed the quarantine replay to succeed.
func Recovered(outcomes []crawler.Outcome) int {
	n := 0
	for _, o := range outcomes {
		if !o.Dropped() && o.Attempts > 1 {
			n++
		}
	}
	return n
}
