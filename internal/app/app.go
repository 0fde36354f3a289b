// Package app initializes and holds long-lived application services, acting as a dependency injection container.
package app

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	gcpubsub "cloud.google.com/go/pubsub"
	gcstorage "cloud.google.com/go/storage"
	"go.uber.org/zap"

	"github.com/JakeFAU/carbuzz/internal/analytics"
	"github.com/JakeFAU/carbuzz/internal/clock/system"
	"github.com/JakeFAU/carbuzz/internal/config"
	"github.com/JakeFAU/carbuzz/internal/crawler"
	"github.com/JakeFAU/carbuzz/internal/dispatcher"
	"github.com/JakeFAU/carbuzz/internal/fetcher"
	collyfetcher "github.com/JakeFAU/carbuzz/internal/fetcher/colly"
	"github.com/JakeFAU/carbuzz/internal/fetcher/headless"
	"github.com/JakeFAU/carbuzz/internal/fetcher/retry"
	"github.com/JakeFAU/carbuzz/internal/hash/fingerprint"
	"github.com/JakeFAU/carbuzz/internal/listing"
	"github.com/JakeFAU/carbuzz/internal/notify"
	"github.com/JakeFAU/carbuzz/internal/pipeline"
	"github.com/JakeFAU/carbuzz/internal/platform"
	"github.com/JakeFAU/carbuzz/internal/policy/ratelimit"
	memorypub "github.com/JakeFAU/carbuzz/internal/publisher/memory"
	pubsubpub "github.com/JakeFAU/carbuzz/internal/publisher/pubsub"
	"github.com/JakeFAU/carbuzz/internal/report"
	gcsstore "github.com/JakeFAU/carbuzz/internal/storage/gcs"
	localstore "github.com/JakeFAU/carbuzz/internal/storage/local"
	memstore "github.com/JakeFAU/carbuzz/internal/storage/memory"
	"github.com/JakeFAU/carbuzz/internal/storage/postgres"
	"github.com/JakeFAU/carbuzz/internal/worker"
)

// App holds the shared, long-lived services for one process.
// It is built once at startup from the loaded config and handed to the CLI commands and the API.
type App struct {
	cfg       config.Config
	logger    *zap.Logger
	loc       *time.Location
	clock     crawler.Clock
	blobs     crawler.BlobStore
	publisher crawler.Publisher
	reporter  *report.Reporter
	slack     *notify.Slack
	posts     *postgres.PostStore
	runner    *pipeline.Runner
	closers   []func()
}

// Logger returns the shared zap logger.
func (a *App) Logger() *zap.Logger {
	return a.logger
}

// Config returns the configuration the App was built from.
func (a *App) Config() config.Config {
	return a.cfg
}

// Location returns the run timezone.
func (a *App) Location() *time.Location {
	return a.loc
}

// Clock returns the wall clock shared by every component.
func (a *App) Clock() crawler.Clock {
	return a.clock
}

// Blobs exposes the artifact store.
func (a *App) Blobs() crawler.BlobStore {
	return a.blobs
}

// Reporter returns the error reporting sink.
func (a *App) Reporter() *report.Reporter {
	return a.reporter
}

// Runner returns the pipeline runner.
func (a *App) Runner() *pipeline.Runner {
	return a.runner
}

// NewApp creates every service the pipeline needs. It fails fast when a configured backend
// cannot be initialized.
func NewApp(ctx context.Context, cfg config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	a := &App{cfg: cfg, logger: logger, loc: loc, clock: system.New(loc)}
	logger.Info("initializing application services",
		zap.String("storage", cfg.Storage.Backend),
		zap.Strings("platforms", cfg.EnabledPlatforms("")),
	)

	if err := a.initStorage(ctx); err != nil {
		a.Close()
		return nil, err
	}
	if err := a.initPublisher(ctx); err != nil {
		a.Close()
		return nil, err
	}
	a.slack = notify.NewSlack(notify.Config{
		WebhookURL: cfg.Notify.SlackWebhookURL,
		Timeout:    time.Duration(cfg.Notify.TimeoutSeconds) * time.Second,
		Location:   loc,
	}, a.clock, logger)
	var errNotifier report.ErrorNotifier
	if a.slack.Enabled() {
		errNotifier = a.slack
	} else {
		logger.Info("slack webhook not set; alerts and errors stay in logs and pubsub")
	}
	a.reporter = report.New(a.publisher, cfg.PubSub.ErrorTopic, errNotifier, logger)

	if cfg.Warehouse.DSN != "" {
		a.posts, err = postgres.NewPostStore(ctx, postgres.Config{
			DSN:       cfg.Warehouse.DSN,
			Table:     cfg.Warehouse.Table,
			BatchSize: cfg.Warehouse.BatchSize,
		})
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("init warehouse: %w", err)
		}
		a.closers = append(a.closers, a.posts.Close)
	} else {
		logger.Info("warehouse dsn not set; load stage disabled")
	}

	engine, err := analytics.NewDefaultEngine(cfg.Analytics.Baselines, cfg.Analytics.AlertThreshold)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("init analytics: %w", err)
	}

	sites, err := a.buildSites()
	if err != nil {
		a.Close()
		return nil, err
	}

	deps := pipeline.Deps{
		Blobs:         a.blobs,
		Sites:         sites,
		Reporter:      a.reporter,
		Engine:        engine,
		Publisher:     a.publisher,
		AlertTopic:    cfg.PubSub.AlertTopic,
		Clock:         a.clock,
		Location:      loc,
		LoadAfterHour: cfg.Warehouse.LoadAfterHour,
		Logger:        logger,
	}
	if a.posts != nil {
		deps.Posts = a.posts
	}
	if a.slack.Enabled() {
		deps.Notifier = a.slack
	}
	a.runner, err = pipeline.New(deps)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("init pipeline: %w", err)
	}

	logger.Info("application services initialized")
	return a, nil
}

func (a *App) initStorage(ctx context.Context) error {
	switch a.cfg.Storage.Backend {
	case config.BackendMemory:
		a.logger.Info("using in-memory storage; artifacts are lost on exit")
		a.blobs = memstore.NewBlobStore()
	case config.BackendLocal:
		store, err := localstore.New(localstore.Config{BaseDir: a.cfg.Storage.BaseDir})
		if err != nil {
			return fmt.Errorf("init local storage: %w", err)
		}
		a.blobs = store
	case config.BackendGCS:
		client, err := gcstorage.NewClient(ctx)
		if err != nil {
			return fmt.Errorf("create gcs client: %w", err)
		}
		a.closers = append(a.closers, func() { _ = client.Close() })
		store, err := gcsstore.New(client, gcsstore.Config{Bucket: a.cfg.Storage.GCSBucket, Prefix: a.cfg.Storage.GCSPrefix})
		if err != nil {
			return fmt.Errorf("init gcs storage: %w", err)
		}
		a.logger.Info("using gcs storage", zap.String("bucket", a.cfg.Storage.GCSBucket))
		a.blobs = store
	default:
		return fmt.Errorf("unknown storage backend: %s", a.cfg.Storage.Backend)
	}
	return nil
}

func (a *App) initPublisher(ctx context.Context) error {
	if a.cfg.PubSub.ProjectID == "" {
		a.logger.Info("pubsub project not set; events are kept in memory")
		a.publisher = memorypub.New()
		return nil
	}
	client, err := gcpubsub.NewClient(ctx, a.cfg.PubSub.ProjectID)
	if err != nil {
		return fmt.Errorf("create pubsub client: %w", err)
	}
	pub := pubsubpub.New(client)
	a.closers = append(a.closers, func() {
		pub.Close()
		_ = client.Close()
	})
	a.publisher = pub
	return nil
}

// buildSites wires one fetch stack and one dispatcher per enabled platform.
func (a *App) buildSites() (map[string]pipeline.Site, error) {
	cfg := a.cfg
	httpFetcher := collyfetcher.New(collyfetcher.Config{
		UserAgent: cfg.Crawler.UserAgent,
		Timeout:   cfg.RequestTimeout(),
	})
	var browser crawler.Fetcher
	if cfg.UsesHeadless() {
		hf, err := headless.NewChromedp(headless.Config{
			MaxParallel:       cfg.Headless.MaxParallel,
			UserAgent:         cfg.Crawler.UserAgent,
			NavigationTimeout: time.Duration(cfg.Headless.NavTimeoutSeconds) * time.Second,
			SettleDelay:       time.Duration(cfg.Headless.SettleDelayMs) * time.Millisecond,
		})
		if err != nil {
			return nil, fmt.Errorf("init headless fetcher: %w", err)
		}
		a.closers = append(a.closers, hf.Close)
		browser = hf
	}

	names := cfg.EnabledPlatforms("")
	platforms := make(map[string]crawler.Platform, len(names))
	domainRPS := make(map[string]float64)
	for _, name := range names {
		p, err := platform.New(name, a.loc, cfg.Platforms[name].Headless)
		if err != nil {
			return nil, err
		}
		platforms[name] = p
		if rps := cfg.Platforms[name].RPS; rps > 0 {
			for _, host := range hostsOf(p) {
				domainRPS[host] = rps
			}
		}
	}

	limiter := ratelimit.New(ratelimit.Config{
		DefaultRPS:   cfg.Crawler.DefaultRPS,
		DefaultBurst: cfg.Crawler.Burst,
		DomainRPS:    domainRPS,
	})
	fetch := retry.New(fetcher.NewRouter(httpFetcher, browser), cfg.RetryPolicy(), limiter, a.logger)
	hasher := fingerprint.New()

	sites := make(map[string]pipeline.Site, len(names))
	for _, name := range names {
		p := platforms[name]
		entities, err := cfg.Synonyms(name).Entities(cfg.Run.Entities)
		if err != nil {
			return nil, fmt.Errorf("platform %s: %w", name, err)
		}
		lister := listing.New(p, fetch, a.reporter, a.clock, listing.Config{MaxPages: cfg.Crawler.MaxPages}, a.logger)
		pool := worker.New(p, fetch, hasher, a.reporter, worker.Config{Concurrency: cfg.Crawler.DetailConcurrency}, a.logger)
		sites[name] = pipeline.Site{
			Platform: p,
			Crawler:  dispatcher.New(name, lister, pool, a.clock, a.logger),
			Entities: entities,
		}
	}
	return sites, nil
}

// hostsOf returns the hostnames a platform's listing and detail requests go to.
func hostsOf(p crawler.Platform) []string {
	var hosts []string
	for _, raw := range []string{p.ListingRequest("x", p.FirstPage()).URL, p.DetailRequest("1").URL} {
		u, err := url.Parse(raw)
		if err != nil || u.Hostname() == "" {
			continue
		}
		host := strings.ToLower(u.Hostname())
		if len(hosts) == 0 || hosts[len(hosts)-1] != host {
			hosts = append(hosts, host)
		}
	}
	return hosts
}

// Close releases every service in reverse order of construction.
func (a *App) Close() {
	a.logger.Info("shutting down application services")
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
	// Sync errors on stderr are expected and ignored.
	_ = a.logger.Sync()
}
