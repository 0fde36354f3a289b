package pipeline

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/carbuzz/internal/crawler"
	"github.com/JakeFAU/carbuzz/internal/merge"
	"github.com/JakeFAU/carbuzz/internal/metrics"
	"github.com/JakeFAU/carbuzz/internal/tabular"
)

// Crawl collects every configured platform concurrently for posts published since the previous
// midnight and stores each platform's raw fragments plus a manifest. A failed platform is reported
// and skipped; the stage fails only when every platform failed.
func (r *Runner) Crawl(ctx context.Context, date time.Time, only string) (map[string]crawler.CrawlStats, error) {
	date = Midnight(date, r.loc)
	names, err := r.Platforms(only)
	if err != nil {
		return nil, err
	}
	cutoff := date.AddDate(0, 0, -1)

	results := make([]*crawler.CrawlStats, len(names))
	err = r.stage(ctx, StageCrawl, date, func(ctx context.Context) error {
		var g errgroup.Group
		for i, name := range names {
			g.Go(func() error {
				stats, err := r.crawlOne(ctx, name, date, cutoff)
				if err != nil {
					r.logger.Error("platform crawl failed",
						zap.String("platform", name),
						zap.String("stage", crawler.StageListing),
						zap.Error(err),
					)
					r.reporter.Report(ctx, crawler.NewErrorEvent(name, crawler.StageListing, "", err))
					return nil
				}
				results[i] = &stats
				return nil
			})
		}
		_ = g.Wait()
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("crawl: %w", err)
		}
		for _, s := range results {
			if s != nil {
				return nil
			}
		}
		return fmt.Errorf("crawl %d platforms: %w", len(names), crawler.ErrNoData)
	})

	out := make(map[string]crawler.CrawlStats, len(names))
	for i, s := range results {
		if s != nil {
			out[names[i]] = *s
		}
	}
	return out, err
}

func (r *Runner) crawlOne(ctx context.Context, name string, date, cutoff time.Time) (crawler.CrawlStats, error) {
	site := r.sites[name]
	result, err := site.Crawler.Run(ctx, site.Entities, cutoff)
	if err != nil {
		return crawler.CrawlStats{}, err
	}
	raw := make(map[string]crawler.RawEntry, len(result.Documents))
	for url, doc := range result.Documents {
		raw[url] = crawler.RawEntry{Keyword: doc.Entity, HTML: doc.HTML, Hash: doc.Hash}
	}
	if err := r.putJSON(ctx, RawHTMLPath(name, date), raw); err != nil {
		return crawler.CrawlStats{}, err
	}
	if err := r.putJSON(ctx, ManifestPath(name, date), result.Stats); err != nil {
		return crawler.CrawlStats{}, err
	}
	return result.Stats, nil
}

// Parse normalizes each platform's raw fragments into content and comment tables.
// Documents that fail extraction are reported and dropped; soft issues are reported and kept.
func (r *Runner) Parse(ctx context.Context, date time.Time, only string) (map[string]ParseStats, error) {
	date = Midnight(date, r.loc)
	names, err := r.Platforms(only)
	if err != nil {
		return nil, err
	}
	out := make(map[string]ParseStats, len(names))
	err = r.stage(ctx, StageParse, date, func(ctx context.Context) error {
		for _, name := range names {
			stats, err := r.parseOne(ctx, name, date)
			if err != nil {
				if ctx.Err() != nil {
					return fmt.Errorf("parse: %w", ctx.Err())
				}
				r.logger.Warn("skipping platform",
					zap.String("platform", name),
					zap.String("stage", crawler.StageLoadPart),
					zap.Error(err),
				)
				r.reporter.Report(ctx, crawler.NewErrorEvent(name, crawler.StageLoadPart, RawHTMLPath(name, date), err))
				continue
			}
			out[name] = stats
		}
		if len(out) == 0 {
			return fmt.Errorf("parse %d platforms: %w", len(names), crawler.ErrNoData)
		}
		return nil
	})
	return out, err
}

func (r *Runner) parseOne(ctx context.Context, name string, date time.Time) (ParseStats, error) {
	site, ok := r.sites[name]
	if !ok || site.Platform == nil {
		return ParseStats{}, fmt.Errorf("platform %q is not enabled", name)
	}
	var raw map[string]crawler.RawEntry
	if err := r.getJSON(ctx, RawHTMLPath(name, date), &raw); err != nil {
		return ParseStats{}, err
	}

	var (
		stats    ParseStats
		contents = make([]tabular.ContentRow, 0, len(raw))
		comments []tabular.CommentRow
	)
	for _, url := range slices.Sorted(maps.Keys(raw)) {
		entry := raw[url]
		ext, err := site.Platform.Extract(crawler.RawDocument{URL: url, Entity: entry.Keyword, HTML: entry.HTML, Hash: entry.Hash})
		if err != nil {
			stats.Dropped++
			metrics.ObserveDocument(name, "dropped")
			r.logger.Warn("dropping document",
				zap.String("platform", name),
				zap.String("stage", crawler.StageExtract),
				zap.String("url", url),
				zap.Error(err),
			)
			r.reporter.Report(ctx, crawler.NewErrorEvent(name, crawler.StageExtract, url, err))
			continue
		}
		for _, issue := range ext.Issues {
			stats.Issues++
			r.logger.Warn("soft extraction failure",
				zap.String("platform", name),
				zap.String("stage", issue.Stage),
				zap.String("url", issue.URL),
				zap.String("reason", issue.Message),
			)
			r.reporter.Report(ctx, crawler.ErrorEvent{
				Status: "error",
				Source: name,
				Stage:  issue.Stage,
				URL:    issue.URL,
				Error:  issue.Message,
			})
		}
		stats.Parsed++
		metrics.ObserveDocument(name, "parsed")
		contents = append(contents, tabular.ContentRowFrom(ext.Document))
		for _, c := range ext.Comments {
			comments = append(comments, tabular.CommentRowFrom(c))
		}
	}
	stats.Comments = len(comments)

	if err := putTable(ctx, r.blobs, ContentPath(name, date), contents); err != nil {
		return stats, err
	}
	if err := putTable(ctx, r.blobs, CommentPath(name, date), comments); err != nil {
		return stats, err
	}
	r.logger.Info("platform parsed",
		zap.String("platform", name),
		zap.Int("parsed", stats.Parsed),
		zap.Int("dropped", stats.Dropped),
		zap.Int("issues", stats.Issues),
	)
	return stats, nil
}

// Merge unions every configured platform's tables for the day. Missing parts are reported and
// skipped; the stage fails with crawler.ErrNoData when no part loaded.
func (r *Runner) Merge(ctx context.Context, date time.Time) (MergeStats, error) {
	date = Midnight(date, r.loc)
	names, err := r.Platforms("")
	if err != nil {
		return MergeStats{}, err
	}
	var stats MergeStats
	err = r.stage(ctx, StageMerge, date, func(ctx context.Context) error {
		parts := make([]merge.Part, 0, len(names))
		for _, name := range names {
			parts = append(parts, r.loadPart(ctx, name, date))
		}
		daily, err := r.merger.Merge(ctx, parts)
		if err != nil {
			return err
		}
		contents := make([]tabular.ContentRow, 0, len(daily.Contents))
		for _, d := range daily.Contents {
			contents = append(contents, tabular.ContentRowFrom(d))
		}
		comments := make([]tabular.CommentRow, 0, len(daily.Comments))
		for _, c := range daily.Comments {
			comments = append(comments, tabular.CommentRowFrom(c))
		}
		if err := putTable(ctx, r.blobs, MergedContentsPath(date), contents); err != nil {
			return err
		}
		if err := putTable(ctx, r.blobs, MergedCommentsPath(date), comments); err != nil {
			return err
		}
		stats = MergeStats{Platforms: daily.Platforms, Contents: len(contents), Comments: len(comments)}
		return nil
	})
	return stats, err
}

func (r *Runner) loadPart(ctx context.Context, name string, date time.Time) merge.Part {
	part := merge.Part{Platform: name}
	contents, err := getTable[tabular.ContentRow](ctx, r.blobs, ContentPath(name, date))
	if err != nil {
		part.Err = err
		return part
	}
	comments, err := getTable[tabular.CommentRow](ctx, r.blobs, CommentPath(name, date))
	if err != nil {
		part.Err = err
		return part
	}
	for _, row := range contents {
		part.Contents = append(part.Contents, row.Document(r.loc))
	}
	for _, row := range comments {
		part.Comments = append(part.Comments, row.ToComment())
	}
	return part
}

// Analyze scores, tags and rolls up the merged day and writes every analytics table. The alert
// CSV is written only when at least one post crossed the threshold.
func (r *Runner) Analyze(ctx context.Context, date time.Time) (AnalyzeStats, error) {
	date = Midnight(date, r.loc)
	var stats AnalyzeStats
	err := r.stage(ctx, StageAnalyze, date, func(ctx context.Context) error {
		contents, err := getTable[tabular.ContentRow](ctx, r.blobs, MergedContentsPath(date))
		if err != nil {
			if isMissing(err) {
				return fmt.Errorf("read merged contents: %w", crawler.ErrNoData)
			}
			return err
		}
		comments, err := getTable[tabular.CommentRow](ctx, r.blobs, MergedCommentsPath(date))
		if err != nil && !isMissing(err) {
			return err
		}
		var daily merge.Daily
		for _, row := range contents {
			daily.Contents = append(daily.Contents, row.Document(r.loc))
		}
		for _, row := range comments {
			daily.Comments = append(daily.Comments, row.ToComment())
		}

		docs := merge.Join(daily)
		report := r.engine.Analyze(docs)
		tables := tabular.FromReport(report)

		writes := []struct {
			table string
			put   func(string) error
		}{
			{TablePost, func(p string) error { return putTable(ctx, r.blobs, p, tables.Posts) }},
			{TableKeyword, func(p string) error { return putTable(ctx, r.blobs, p, tables.Keywords) }},
			{TableLivePopularity, func(p string) error { return putTable(ctx, r.blobs, p, tables.Popularity) }},
			{TableLiveCategory, func(p string) error { return putTable(ctx, r.blobs, p, tables.Categories) }},
			{TableLiveSentiment, func(p string) error { return putTable(ctx, r.blobs, p, tables.Sentiment) }},
			{TableLiveKeyword, func(p string) error { return putTable(ctx, r.blobs, p, tables.Mentions) }},
		}
		for _, w := range writes {
			if err := w.put(TransformedPath(date, w.table)); err != nil {
				return err
			}
		}
		if len(tables.Alerts) > 0 {
			data, err := tabular.EncodeCSV(tables.Alerts)
			if err != nil {
				return fmt.Errorf("encode alerts: %w", err)
			}
			if _, err := r.blobs.PutObject(ctx, AlertPath(date), tabular.CSVContentType, data); err != nil {
				return fmt.Errorf("write %s: %w", AlertPath(date), err)
			}
		}
		metrics.ObserveAlerts(len(tables.Alerts))

		stats = AnalyzeStats{
			Documents: len(docs),
			Tagged:    len(report.Posts),
			Matches:   len(report.Matches),
			Alerts:    len(tables.Alerts),
		}
		r.logger.Info("day analyzed",
			zap.Int("documents", stats.Documents),
			zap.Int("tagged", stats.Tagged),
			zap.Int("alerts", stats.Alerts),
			zap.Float64("threshold", r.engine.Threshold()),
		)
		return nil
	})
	return stats, err
}

// Load inserts the posts published in [date-1, date) into the warehouse. Before the configured
// hour of the local day it does nothing unless force is set.
func (r *Runner) Load(ctx context.Context, date time.Time, force bool) (LoadStats, error) {
	date = Midnight(date, r.loc)
	if r.posts == nil {
		return LoadStats{Skipped: true, Reason: "warehouse not configured"}, nil
	}
	if now := r.clock.Now().In(r.loc); !force && now.Hour() < r.loadAfterHour {
		reason := fmt.Sprintf("before %02d:00", r.loadAfterHour)
		r.logger.Info("skipping warehouse load", zap.String("reason", reason), zap.Time("now", now))
		return LoadStats{Skipped: true, Reason: reason}, nil
	}

	var stats LoadStats
	err := r.stage(ctx, StageLoad, date, func(ctx context.Context) error {
		rows, err := getTable[tabular.PostRow](ctx, r.blobs, TransformedPath(date, TablePost))
		if err != nil {
			return err
		}
		from, until := date.AddDate(0, 0, -1), date
		eligible := make([]tabular.PostRow, 0, len(rows))
		for _, row := range rows {
			ts := row.Time(r.loc)
			if !ts.Before(from) && ts.Before(until) {
				eligible = append(eligible, row)
			}
		}
		stats.Eligible = len(eligible)
		if len(eligible) == 0 {
			r.logger.Info("no posts in load window", zap.Time("from", from), zap.Time("until", until))
			return nil
		}
		inserted, err := r.posts.InsertPosts(ctx, eligible)
		stats.Inserted = inserted
		if err != nil {
			return fmt.Errorf("load posts: %w", err)
		}
		return nil
	})
	return stats, err
}

// Notify delivers the day's alert CSV to chat and to the alert topic. A day without alerts is
// silent. Every failure is reported at stage notify and returned.
func (r *Runner) Notify(ctx context.Context, date time.Time) (NotifyStats, error) {
	date = Midnight(date, r.loc)
	var stats NotifyStats
	err := r.stage(ctx, StageNotify, date, func(ctx context.Context) error {
		data, err := r.blobs.GetObject(ctx, AlertPath(date))
		if err != nil {
			if isMissing(err) {
				r.logger.Info("no alerts for day")
				return nil
			}
			r.reporter.Report(ctx, crawler.NewErrorEvent("pipeline", crawler.StageNotify, AlertPath(date), err))
			return err
		}
		rows, err := tabular.DecodeCSV[tabular.AlertRow](data)
		if err != nil {
			err = fmt.Errorf("decode %s: %w", AlertPath(date), err)
			r.reporter.Report(ctx, crawler.NewErrorEvent("pipeline", crawler.StageNotify, AlertPath(date), err))
			return err
		}
		stats.Alerts = len(rows)
		if len(rows) == 0 {
			return nil
		}

		var errs []error
		if r.notifier != nil {
			if err := r.notifier.SendAlerts(ctx, r.engine.Threshold(), rows); err != nil {
				errs = append(errs, fmt.Errorf("send alerts: %w", err))
			} else {
				stats.Slack = true
			}
		}
		if r.publisher != nil && r.alertTopic != "" {
			event := AlertEvent{Date: DateKey(date), Threshold: r.engine.Threshold(), Posts: rows}
			if _, err := r.publisher.Publish(ctx, r.alertTopic, event); err != nil {
				errs = append(errs, fmt.Errorf("publish alerts: %w", err))
			} else {
				stats.Published = true
			}
		}
		for _, err := range errs {
			r.reporter.Report(ctx, crawler.NewErrorEvent("pipeline", crawler.StageNotify, "", err))
		}
		return errors.Join(errs...)
	})
	return stats, err
}
