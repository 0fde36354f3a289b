// Package pipeline runs the daily stages over object storage: crawl, parse, merge, analyze,
// load and notify. Each stage reads the previous stage's artifacts, so any stage can be rerun
// on its own for a given date.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/JakeFAU/carbuzz/internal/analytics"
	"github.com/JakeFAU/carbuzz/internal/crawler"
	"github.com/JakeFAU/carbuzz/internal/merge"
	"github.com/JakeFAU/carbuzz/internal/metrics"
	"github.com/JakeFAU/carbuzz/internal/tabular"
)

// Stage names used for metrics, spans and CLI commands.
const (
	StageCrawl   = "crawl"
	StageParse   = "parse"
	StageMerge   = "merge"
	StageAnalyze = "analyze"
	StageLoad    = "load"
	StageNotify  = "notify"
)

var tracer = otel.Tracer("github.com/JakeFAU/carbuzz/internal/pipeline")

// Crawler runs the listing and detail phases of one platform.
type Crawler interface {
	Run(ctx context.Context, entities []crawler.Entity, cutoff time.Time) (crawler.CrawlResult, error)
}

// Site binds a platform adapter to its crawler and the entities it searches for.
type Site struct {
	Platform crawler.Platform
	Crawler  Crawler
	Entities []crawler.Entity
}

// PostLoader inserts analyzed posts into the warehouse.
type PostLoader interface {
	InsertPosts(ctx context.Context, rows []tabular.PostRow) (int, error)
}

// AlertNotifier delivers the alert report to chat.
type AlertNotifier interface {
	SendAlerts(ctx context.Context, threshold float64, rows []tabular.AlertRow) error
}

// AlertEvent is published to the alert topic.
type AlertEvent struct {
	Date      string             `json:"date"`
	Threshold float64            `json:"threshold"`
	Posts     []tabular.AlertRow `json:"posts"`
}

// Attributes labels the published message for subscription filters.
func (e AlertEvent) Attributes() map[string]string {
	return map[string]string{"event": "popularity_alert", "date": e.Date}
}

// Deps wires a Runner.
type Deps struct {
	Blobs    crawler.BlobStore
	Sites    map[string]Site
	Reporter crawler.ErrorReporter
	Engine   *analytics.Engine
	// Posts, Notifier and Publisher are optional.
	Posts      PostLoader
	Notifier   AlertNotifier
	Publisher  crawler.Publisher
	AlertTopic string
	Clock      crawler.Clock
	Location   *time.Location
	// LoadAfterHour is the local hour before which the load stage is skipped.
	LoadAfterHour int
	Logger        *zap.Logger
}

// Runner executes pipeline stages for a date.
type Runner struct {
	blobs         crawler.BlobStore
	sites         map[string]Site
	reporter      crawler.ErrorReporter
	merger        *merge.Merger
	engine        *analytics.Engine
	posts         PostLoader
	notifier      AlertNotifier
	publisher     crawler.Publisher
	alertTopic    string
	clock         crawler.Clock
	loc           *time.Location
	loadAfterHour int
	logger        *zap.Logger
}

// New validates deps and builds a Runner.
func New(deps Deps) (*Runner, error) {
	if deps.Blobs == nil {
		return nil, fmt.Errorf("blob store is required")
	}
	if deps.Engine == nil {
		return nil, fmt.Errorf("analytics engine is required")
	}
	if deps.Clock == nil {
		return nil, fmt.Errorf("clock is required")
	}
	if deps.Reporter == nil {
		deps.Reporter = nopReporter{}
	}
	if deps.Location == nil {
		deps.Location = time.UTC
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	logger := deps.Logger.Named("pipeline")
	return &Runner{
		blobs:         deps.Blobs,
		sites:         deps.Sites,
		reporter:      deps.Reporter,
		merger:        merge.New(deps.Reporter, logger),
		engine:        deps.Engine,
		posts:         deps.Posts,
		notifier:      deps.Notifier,
		publisher:     deps.Publisher,
		alertTopic:    deps.AlertTopic,
		clock:         deps.Clock,
		loc:           deps.Location,
		loadAfterHour: deps.LoadAfterHour,
		logger:        logger,
	}, nil
}

// RunOptions narrows a full run.
type RunOptions struct {
	// Platform restricts crawl and parse to one site when set.
	Platform string
	// Force loads into the warehouse regardless of the hour.
	Force bool
}

// Run executes every stage in order. Crawl and parse failures of single platforms are reported
// and skipped; the run only fails when a stage has nothing to work with. Load and Notify
// failures end up in RunStats instead of the returned error.
func (r *Runner) Run(ctx context.Context, date time.Time, opts RunOptions) (RunStats, error) {
	date = Midnight(date, r.loc)
	stats := RunStats{Date: DateKey(date)}

	crawl, err := r.Crawl(ctx, date, opts.Platform)
	stats.Crawl = crawl
	if err != nil {
		return stats, err
	}
	parse, err := r.Parse(ctx, date, opts.Platform)
	stats.Parse = parse
	if err != nil {
		return stats, err
	}
	merged, err := r.Merge(ctx, date)
	if err != nil {
		return stats, err
	}
	stats.Merge = &merged
	analyzed, err := r.Analyze(ctx, date)
	if err != nil {
		return stats, err
	}
	stats.Analyze = &analyzed

	// Every table is written by now. Load and Notify failures are recorded, not returned.
	loaded, err := r.Load(ctx, date, opts.Force)
	if err != nil {
		loaded.Error = err.Error()
		r.reporter.Report(ctx, crawler.NewErrorEvent("pipeline", crawler.StageWarehouse, "", err))
	}
	stats.Load = &loaded
	notified, err := r.Notify(ctx, date)
	if err != nil {
		notified.Error = err.Error()
	}
	stats.Notify = &notified
	return stats, nil
}

// Platforms lists the configured sites, or only when it is set and configured.
func (r *Runner) Platforms(only string) ([]string, error) {
	if only != "" {
		if _, ok := r.sites[only]; !ok {
			return nil, fmt.Errorf("platform %q is not enabled", only)
		}
		return []string{only}, nil
	}
	names := make([]string, 0, len(r.sites))
	for name := range r.sites {
		names = append(names, name)
	}
	slices.Sort(names)
	return names, nil
}

// stage wraps fn with a span, a duration metric and start/finish logs.
func (r *Runner) stage(ctx context.Context, name string, date time.Time, fn func(context.Context) error) error {
	ctx, span := tracer.Start(ctx, "pipeline."+name)
	defer span.End()
	span.SetAttributes(attribute.String("carbuzz.date", DateKey(date)))

	logger := r.logger.With(zap.String("stage", name), zap.String("date", DateKey(date)))
	logger.Info("stage started")
	start := time.Now()
	err := fn(ctx)
	elapsed := time.Since(start)
	metrics.ObserveStage(name, elapsed)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		logger.Error("stage failed", zap.Duration("elapsed", elapsed), zap.Error(err))
		return err
	}
	logger.Info("stage finished", zap.Duration("elapsed", elapsed))
	return nil
}

func (r *Runner) putJSON(ctx context.Context, path string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", path, err)
	}
	if _, err := r.blobs.PutObject(ctx, path, "application/json", data); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

func (r *Runner) getJSON(ctx context.Context, path string, v any) error {
	data, err := r.blobs.GetObject(ctx, path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

func putTable[T any](ctx context.Context, blobs crawler.BlobStore, path string, rows []T) error {
	data, err := tabular.EncodeParquet(rows)
	if err != nil {
		return fmt.Errorf("encode %s: %w", path, err)
	}
	if _, err := blobs.PutObject(ctx, path, tabular.ParquetContentType, data); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

func getTable[T any](ctx context.Context, blobs crawler.BlobStore, path string) ([]T, error) {
	data, err := blobs.GetObject(ctx, path)
	if err != nil {
		return nil, err
	}
	rows, err := tabular.DecodeParquet[T](data)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return rows, nil
}

func isMissing(err error) bool {
	return errors.Is(err, crawler.ErrObjectNotFound)
}

type nopReporter struct{}

func (nopReporter) Report(context.Context, crawler.ErrorEvent) {}
