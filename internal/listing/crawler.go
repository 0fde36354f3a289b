// Package listing walks a platform's search listing page by page until a publish-time cutoff.
package listing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/carbuzz/internal/crawler"
	"github.com/JakeFAU/carbuzz/internal/metrics"
)

// Config bounds a listing walk.
type Config struct {
	// MaxPages caps the pages walked per term. Zero means no cap.
	MaxPages int
}

// Crawler collects listing items for one platform.
type Crawler struct {
	platform crawler.Platform
	fetcher  crawler.Fetcher
	reporter crawler.ErrorReporter
	clock    crawler.Clock
	cfg      Config
	logger   *zap.Logger
}

// New builds a Crawler. fetcher is expected to retry transient failures itself.
func New(
	platform crawler.Platform,
	fetcher crawler.Fetcher,
	reporter crawler.ErrorReporter,
	clock crawler.Clock,
	cfg Config,
	logger *zap.Logger,
) *Crawler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Crawler{
		platform: platform,
		fetcher:  fetcher,
		reporter: reporter,
		clock:    clock,
		cfg:      cfg,
		logger:   logger.Named("listing").With(zap.String("platform", platform.Name())),
	}
}

// Collect returns the items for term published at or after cutoff, in listing order.
//
// The walk stops at the first item older than cutoff, at an empty or missing listing, or when a
// page cannot be fetched. A fetch failure is reported and ends the walk without an error. A listing
// that cannot be parsed is returned as an error so the caller can retry the whole pass.
func (c *Crawler) Collect(ctx context.Context, term string, cutoff time.Time) ([]crawler.ListingItem, error) {
	name := c.platform.Name()
	resolver, needsResolve := c.platform.(crawler.TimestampResolver)

	var items []crawler.ListingItem
	defer func() { metrics.ObserveListingItems(name, len(items)) }()

	for page, walked := c.platform.FirstPage(), 0; c.cfg.MaxPages == 0 || walked < c.cfg.MaxPages; page, walked = page+1, walked+1 {
		req := c.platform.ListingRequest(term, page)
		resp, err := c.fetcher.Fetch(ctx, req)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, fmt.Errorf("collect %q: %w", term, ctxErr)
			}
			metrics.ObserveListingPage(name, "failed")
			c.logger.Warn("listing page failed, keeping partial result",
				zap.String("term", term),
				zap.Int("page", page),
				zap.String("url", req.URL),
				zap.Int("collected", len(items)),
				zap.Error(err),
			)
			c.reporter.Report(ctx, crawler.NewErrorEvent(name, crawler.StageListPage, req.URL, err))
			return items, nil
		}
		metrics.ObserveListingPage(name, "ok")

		listing, err := c.platform.ParseListing(resp.Body, c.clock.Now())
		if err != nil {
			return nil, fmt.Errorf("parse %s listing page %d for %q: %w", name, page, term, err)
		}
		if !listing.Found || len(listing.Items) == 0 {
			c.logger.Debug("listing exhausted", zap.String("term", term), zap.Int("page", page))
			return items, nil
		}

		for _, item := range listing.Items {
			if needsResolve && item.Published.IsZero() {
				resolved, ok := c.resolve(ctx, resolver, item)
				if !ok {
					if ctxErr := ctx.Err(); ctxErr != nil {
						return nil, fmt.Errorf("collect %q: %w", term, ctxErr)
					}
					continue
				}
				item = resolved
			}
			if item.Published.Before(cutoff) {
				c.logger.Debug("reached cutoff",
					zap.String("term", term),
					zap.Int("page", page),
					zap.String("id", item.ID),
					zap.Time("published", item.Published),
				)
				return items, nil
			}
			items = append(items, item)
		}
	}
	c.logger.Warn("page cap reached", zap.String("term", term), zap.Int("max_pages", c.cfg.MaxPages))
	return items, nil
}

// resolve fetches the detail page of an item whose listing row carries no publish time.
func (c *Crawler) resolve(
	ctx context.Context,
	resolver crawler.TimestampResolver,
	item crawler.ListingItem,
) (crawler.ListingItem, bool) {
	req := c.platform.DetailRequest(item.ID)
	resp, err := c.fetcher.Fetch(ctx, req)
	if err == nil {
		var published time.Time
		published, err = resolver.ResolveTimestamp(resp.Body)
		if err == nil {
			item.Published = published
			item.Prefetched = resp.Body
			return item, true
		}
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return item, false
	}
	c.logger.Warn("skipping item without resolvable timestamp", zap.String("url", req.URL), zap.Error(err))
	c.reporter.Report(ctx, crawler.NewErrorEvent(c.platform.Name(), crawler.StageResolveTimestamp, req.URL, err))
	return item, false
}
