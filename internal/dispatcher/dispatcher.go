// Package dispatcher fans a platform crawl out over entities and detail pages.
package dispatcher

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/carbuzz/internal/crawler"
	"github.com/JakeFAU/carbuzz/internal/store"
)

// Lister collects listing items for one search term.
type Lister interface {
	Collect(ctx context.Context, term string, cutoff time.Time) ([]crawler.ListingItem, error)
}

// DetailFetcher fetches detail pages for a batch of tasks.
type DetailFetcher interface {
	FetchAll(ctx context.Context, tasks []crawler.Task) []crawler.Outcome
}

// Dispatcher runs the listing and detail phases for one platform.
type Dispatcher struct {
	platform string
	lister   Lister
	details  DetailFetcher
	clock    crawler.Clock
	logger   *zap.Logger
}

// New creates a Dispatcher.
func New(platform string, lister Lister, details DetailFetcher, clock crawler.Clock, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{
		platform: platform,
		lister:   lister,
		details:  details,
		clock:    clock,
		logger:   logger.Named("dispatcher").With(zap.String("platform", platform)),
	}
}

// Run crawls every entity and returns the captured documents keyed by URL.
//
// The listing phase runs one worker per entity. If any worker fails the phase is retried once
// from scratch; a second failure is returned. Detail fetches share one bounded pool.
func (d *Dispatcher) Run(ctx context.Context, entities []crawler.Entity, cutoff time.Time) (crawler.CrawlResult, error) {
	stats := crawler.CrawlStats{Platform: d.platform, StartedAt: d.clock.Now()}

	var (
		ids *store.IdentifierSets
		err error
	)
	for pass := 1; pass <= 2; pass++ {
		stats.ListingPass = pass
		ids, err = d.listAll(ctx, entities, cutoff)
		if err == nil {
			break
		}
		if ctx.Err() != nil {
			return crawler.CrawlResult{}, fmt.Errorf("list %s: %w", d.platform, ctx.Err())
		}
		d.logger.Warn("listing pass failed", zap.Int("pass", pass), zap.Error(err))
	}
	if err != nil {
		return crawler.CrawlResult{}, fmt.Errorf("list %s after retry: %w", d.platform, err)
	}
	stats.ListedIDs = ids.Counts()

	tasks := ids.Tasks()
	d.logger.Info("listing complete", zap.Int("tasks", len(tasks)), zap.Any("per_entity", stats.ListedIDs))

	outcomes := d.details.FetchAll(ctx, tasks)
	docs := store.NewDocuments()
	for _, o := range outcomes {
		if o.Dropped() {
			stats.Dropped = append(stats.Dropped, crawler.DroppedTask{
				Entity: o.Task.Entity,
				ID:     o.Task.Item.ID,
				URL:    o.URL,
				Reason: o.Reason,
			})
			continue
		}
		stats.Fetched++
		if o.Attempts > 1 {
			stats.Recovered++
		}
		if !docs.PutIfAbsent(*o.Document) {
			d.logger.Debug("url already collected for another entity",
				zap.String("url", o.URL),
				zap.String("entity", o.Task.Entity),
			)
		}
	}
	if err := ctx.Err(); err != nil {
		return crawler.CrawlResult{}, fmt.Errorf("fetch %s details: %w", d.platform, err)
	}

	stats.DocumentKeys = docs.Len()
	stats.FinishedAt = d.clock.Now()
	d.logger.Info("crawl complete",
		zap.Int("documents", stats.DocumentKeys),
		zap.Int("recovered", stats.Recovered),
		zap.Int("dropped", len(stats.Dropped)),
	)
	return crawler.CrawlResult{Documents: docs.Snapshot(), Stats: stats}, nil
}

func (d *Dispatcher) listAll(ctx context.Context, entities []crawler.Entity, cutoff time.Time) (*store.IdentifierSets, error) {
	ids := store.NewIdentifierSets()
	g, gctx := errgroup.WithContext(ctx)
	for _, entity := range entities {
		ids.Add(entity.Name)
		g.Go(func() error {
			for _, term := range entity.Terms {
				items, err := d.lister.Collect(gctx, term, cutoff)
				if err != nil {
					return fmt.Errorf("entity %s term %q: %w", entity.Name, term, err)
				}
				added := ids.Add(entity.Name, items...)
				d.logger.Debug("term collected",
					zap.String("entity", entity.Name),
					zap.String("term", term),
					zap.Int("items", len(items)),
					zap.Int("new", added),
				)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return ids, nil
}
