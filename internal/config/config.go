// Package config loads and validates pipeline configuration via Viper.
package config

import (
	"fmt"
	"slices"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/spf13/viper"

	"github.com/JakeFAU/carbuzz/internal/analytics"
	"github.com/JakeFAU/carbuzz/internal/crawler"
)

// Storage backends.
const (
	BackendMemory = "memory"
	BackendLocal  = "local"
	BackendGCS    = "gcs"
)

// Retry modes.
const (
	RetryFixed       = "fixed"
	RetryExponential = "exponential"
)

// Config captures all pipeline configuration knobs loaded via Viper.
type Config struct {
	Run       RunConfig                 `mapstructure:"run"`
	Crawler   CrawlerConfig             `mapstructure:"crawler"`
	Platforms map[string]PlatformConfig `mapstructure:"platforms"`
	Headless  HeadlessConfig            `mapstructure:"headless"`
	Storage   StorageConfig             `mapstructure:"storage"`
	PubSub    PubSubConfig              `mapstructure:"pubsub"`
	Warehouse WarehouseConfig           `mapstructure:"warehouse"`
	Analytics AnalyticsConfig           `mapstructure:"analytics"`
	Notify    NotifyConfig              `mapstructure:"notify"`
	Server    ServerConfig              `mapstructure:"server"`
	Logging   LoggingConfig             `mapstructure:"logging"`
	Tracing   TracingConfig             `mapstructure:"tracing"`
}

// RunConfig selects what a daily run covers.
type RunConfig struct {
	Entities  []string `mapstructure:"entities"`
	Platforms []string `mapstructure:"platforms"`
	Timezone  string   `mapstructure:"timezone"`
}

// CrawlerConfig governs listing, detail fetching and request retries.
type CrawlerConfig struct {
	DetailConcurrency     int     `mapstructure:"detail_concurrency"`
	MaxPages              int     `mapstructure:"max_pages"`
	UserAgent             string  `mapstructure:"user_agent"`
	RequestTimeoutSeconds int     `mapstructure:"request_timeout_seconds"`
	RetryMode             string  `mapstructure:"retry_mode"`
	MaxAttempts           int     `mapstructure:"max_attempts"`
	BackoffMs             int     `mapstructure:"backoff_ms"`
	BackoffMaxMs          int     `mapstructure:"backoff_max_ms"`
	DefaultRPS            float64 `mapstructure:"default_rps"`
	Burst                 int     `mapstructure:"burst"`
}

// PlatformConfig tunes one community site.
type PlatformConfig struct {
	Enabled  bool                `mapstructure:"enabled"`
	Headless bool                `mapstructure:"headless"`
	RPS      float64             `mapstructure:"rps"`
	Synonyms map[string][]string `mapstructure:"synonyms"`
}

// HeadlessConfig configures the browser fetcher.
type HeadlessConfig struct {
	MaxParallel       int `mapstructure:"max_parallel"`
	NavTimeoutSeconds int `mapstructure:"nav_timeout_seconds"`
	SettleDelayMs     int `mapstructure:"settle_delay_ms"`
}

// StorageConfig selects where stage artifacts live.
type StorageConfig struct {
	Backend   string `mapstructure:"backend"`
	BaseDir   string `mapstructure:"base_dir"`
	GCSBucket string `mapstructure:"gcs_bucket"`
	// GCSPrefix namespaces every object when the bucket is shared.
	GCSPrefix string `mapstructure:"gcs_prefix"`
}

// PubSubConfig holds the topics error and alert events are published to.
type PubSubConfig struct {
	ProjectID  string `mapstructure:"project_id"`
	ErrorTopic string `mapstructure:"error_topic"`
	AlertTopic string `mapstructure:"alert_topic"`
}

// WarehouseConfig controls the daily post load.
type WarehouseConfig struct {
	DSN           string `mapstructure:"dsn"`
	Table         string `mapstructure:"table"`
	BatchSize     int    `mapstructure:"batch_size"`
	LoadAfterHour int    `mapstructure:"load_after_hour"`
}

// AnalyticsConfig tunes scoring and alerting.
type AnalyticsConfig struct {
	AlertThreshold float64                       `mapstructure:"alert_threshold"`
	Baselines      map[string]analytics.Baseline `mapstructure:"baselines"`
}

// NotifyConfig configures the Slack webhook.
type NotifyConfig struct {
	SlackWebhookURL string `mapstructure:"slack_webhook_url"`
	TimeoutSeconds  int    `mapstructure:"timeout_seconds"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port int `mapstructure:"port"`
	// APIKey guards the run endpoints when set.
	APIKey string `mapstructure:"api_key"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
	// Level is a zap level name such as "debug" or "warn".
	Level string `mapstructure:"level"`
}

// TracingConfig toggles the OpenTelemetry tracer provider. Sampled spans go to Cloud Trace in
// ProjectID, which falls back to pubsub.project_id.
type TracingConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	ProjectID string `mapstructure:"project_id"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("CARBUZZ")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("run.entities", crawler.DefaultSynonyms.Names())
	v.SetDefault("run.platforms", []string{crawler.SiteBobae, crawler.SiteClien, crawler.SiteDCInside, crawler.SiteFMKorea})
	v.SetDefault("run.timezone", "Asia/Seoul")
	v.SetDefault("crawler.detail_concurrency", 8)
	v.SetDefault("crawler.max_pages", 50)
	v.SetDefault("crawler.user_agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36")
	v.SetDefault("crawler.request_timeout_seconds", 15)
	v.SetDefault("crawler.retry_mode", RetryFixed)
	v.SetDefault("crawler.max_attempts", 3)
	v.SetDefault("crawler.backoff_ms", 2000)
	v.SetDefault("crawler.backoff_max_ms", 10000)
	v.SetDefault("crawler.default_rps", 2)
	v.SetDefault("crawler.burst", 1)
	for _, site := range []string{crawler.SiteBobae, crawler.SiteClien, crawler.SiteDCInside, crawler.SiteFMKorea} {
		v.SetDefault("platforms."+site+".enabled", true)
		v.SetDefault("platforms."+site+".headless", false)
	}
	v.SetDefault("headless.max_parallel", 2)
	v.SetDefault("headless.nav_timeout_seconds", 45)
	v.SetDefault("headless.settle_delay_ms", 0)
	v.SetDefault("storage.backend", BackendLocal)
	v.SetDefault("storage.base_dir", "data")
	v.SetDefault("storage.gcs_bucket", "")
	v.SetDefault("storage.gcs_prefix", "")
	v.SetDefault("pubsub.project_id", "")
	v.SetDefault("pubsub.error_topic", "crawler-errors")
	v.SetDefault("pubsub.alert_topic", "popularity-alerts")
	v.SetDefault("warehouse.dsn", "")
	v.SetDefault("warehouse.table", "posts")
	v.SetDefault("warehouse.batch_size", 500)
	v.SetDefault("warehouse.load_after_hour", 20)
	v.SetDefault("analytics.alert_threshold", analytics.DefaultAlertThreshold)
	v.SetDefault("notify.slack_webhook_url", "")
	v.SetDefault("notify.timeout_seconds", 10)
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.api_key", "")
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "info")
	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.project_id", "")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if len(c.Run.Entities) == 0 {
		return fmt.Errorf("run.entities must not be empty")
	}
	if len(c.Run.Platforms) == 0 {
		return fmt.Errorf("run.platforms must not be empty")
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	if c.Crawler.DetailConcurrency <= 0 {
		return fmt.Errorf("crawler.detail_concurrency must be > 0")
	}
	if c.Crawler.MaxPages <= 0 {
		return fmt.Errorf("crawler.max_pages must be > 0")
	}
	if c.Crawler.RequestTimeoutSeconds <= 0 {
		return fmt.Errorf("crawler.request_timeout_seconds must be > 0")
	}
	if c.Crawler.RetryMode != RetryFixed && c.Crawler.RetryMode != RetryExponential {
		return fmt.Errorf("crawler.retry_mode must be %q or %q", RetryFixed, RetryExponential)
	}
	if c.Headless.MaxParallel < 0 {
		return fmt.Errorf("headless.max_parallel must be >= 0")
	}
	switch c.Storage.Backend {
	case BackendMemory:
	case BackendLocal:
		if c.Storage.BaseDir == "" {
			return fmt.Errorf("storage.base_dir is required for the local backend")
		}
	case BackendGCS:
		if c.Storage.GCSBucket == "" {
			return fmt.Errorf("storage.gcs_bucket is required for the gcs backend")
		}
	default:
		return fmt.Errorf("storage.backend must be one of memory, local, gcs")
	}
	if c.Warehouse.LoadAfterHour < 0 || c.Warehouse.LoadAfterHour > 23 {
		return fmt.Errorf("warehouse.load_after_hour must be within 0-23")
	}
	if c.Analytics.AlertThreshold <= 0 {
		return fmt.Errorf("analytics.alert_threshold must be > 0")
	}
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	return nil
}

// Location resolves run.timezone.
func (c Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Run.Timezone)
	if err != nil {
		return nil, fmt.Errorf("run.timezone: %w", err)
	}
	return loc, nil
}

// EnabledPlatforms returns run.platforms minus disabled ones. A non-empty only narrows it to that platform.
func (c Config) EnabledPlatforms(only string) []string {
	var out []string
	for _, name := range c.Run.Platforms {
		if only != "" && name != only {
			continue
		}
		if p, ok := c.Platforms[name]; ok && !p.Enabled {
			continue
		}
		out = append(out, name)
	}
	return out
}

// Synonyms returns the entity table for platform with its overrides applied.
func (c Config) Synonyms(platform string) crawler.Synonyms {
	return crawler.DefaultSynonyms.WithOverrides(c.Platforms[platform].Synonyms)
}

// UsesHeadless reports whether any enabled platform renders through the browser.
func (c Config) UsesHeadless() bool {
	return slices.ContainsFunc(c.EnabledPlatforms(""), func(name string) bool {
		return c.Platforms[name].Headless
	})
}

// RequestTimeout converts crawler.request_timeout_seconds.
func (c Config) RequestTimeout() time.Duration {
	return time.Duration(c.Crawler.RequestTimeoutSeconds) * time.Second
}

// RetryPolicy builds the request-level retry policy.
func (c Config) RetryPolicy() crawler.RetryPolicy {
	base := time.Duration(c.Crawler.BackoffMs) * time.Millisecond
	if c.Crawler.RetryMode == RetryExponential {
		return crawler.NewExponentialRetryPolicy(c.Crawler.MaxAttempts, base, time.Duration(c.Crawler.BackoffMaxMs)*time.Millisecond)
	}
	return crawler.NewFixedRetryPolicy(c.Crawler.MaxAttempts, base)
}
