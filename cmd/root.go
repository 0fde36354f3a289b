// Package cmd defines and implements the CLI commands for the carbuzz executable.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/carbuzz/internal/app"
	"github.com/JakeFAU/carbuzz/internal/config"
	"github.com/JakeFAU/carbuzz/internal/crawler"
	"github.com/JakeFAU/carbuzz/internal/logging"
	"github.com/JakeFAU/carbuzz/internal/pipeline"
	"github.com/JakeFAU/carbuzz/internal/report"
	"github.com/JakeFAU/carbuzz/internal/telemetry"
)

const serviceName = "carbuzz"

// appKeyType is the key for storing the App in the context.
type appKeyType string

const appKey appKeyType = "app"

// App is what commands need from the service container.
type App interface {
	Close()
	Config() config.Config
	Logger() *zap.Logger
	Location() *time.Location
	Clock() crawler.Clock
	Reporter() *report.Reporter
	Runner() *pipeline.Runner
}

// newApp is the application factory. It's a variable so tests can swap in a container built
// on in-memory backends.
var newApp = func(ctx context.Context, cfg config.Config, logger *zap.Logger) (App, error) {
	return app.NewApp(ctx, cfg, logger)
}

type rootOptions struct {
	configPath string
	date       string
	platform   string
}

// newRootCmd creates the root command and every subcommand.
func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	var shutdownTracing telemetry.ShutdownFunc

	cmd := &cobra.Command{
		Use:   "carbuzz",
		Short: "Daily car community buzz pipeline.",
		Long: `carbuzz collects posts about car models from Korean community boards,
scores how much attention each post draws, tags what owners talk about, and
alerts when a post goes viral.

Each stage reads the artifacts of the previous one, so any stage can be rerun
for a given --date.`,
		SilenceUsage: true,

		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(opts.configPath)
			if err != nil {
				return err
			}
			logger, err := logging.New(cfg.Logging.Development, cfg.Logging.Level)
			if err != nil {
				return err
			}
			zap.ReplaceGlobals(logger)

			traceProject := cfg.Tracing.ProjectID
			if traceProject == "" {
				traceProject = cfg.PubSub.ProjectID
			}
			shutdownTracing, err = telemetry.InitTracerProvider(cmd.Context(), telemetry.Config{
				ServiceName: serviceName,
				Enabled:     cfg.Tracing.Enabled,
				ProjectID:   traceProject,
			})
			if err != nil {
				return fmt.Errorf("init tracing: %w", err)
			}

			appInstance, err := newApp(cmd.Context(), cfg, logger)
			if err != nil {
				return fmt.Errorf("failed to initialize application services: %w", err)
			}
			cmd.SetContext(context.WithValue(cmd.Context(), appKey, appInstance))
			return nil
		},

		PersistentPostRun: func(cmd *cobra.Command, _ []string) {
			if appInstance, ok := cmd.Context().Value(appKey).(App); ok && appInstance != nil {
				appInstance.Close()
			}
			if shutdownTracing != nil {
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := shutdownTracing(ctx); err != nil {
					zap.L().Warn("tracer shutdown failed", zap.Error(err))
				}
			}
		},
	}

	cmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "config file (YAML); env vars use the CARBUZZ_ prefix")
	cmd.PersistentFlags().StringVar(&opts.date, "date", "", "run date as YYYY-MM-DD in the run timezone (default today)")

	cmd.AddCommand(
		newCrawlCmd(opts),
		newParseCmd(opts),
		newMergeCmd(opts),
		newAnalyzeCmd(opts),
		newLoadCmd(opts),
		newNotifyCmd(opts),
		newRunCmd(opts),
		newServeCmd(),
	)
	return cmd
}

// Execute is the main entry point.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		if errors.Is(err, crawler.ErrNoData) {
			fmt.Fprintln(os.Stderr, "no data for run:", err)
		} else {
			fmt.Fprintln(os.Stderr, "error:", err)
		}
		stop()
		os.Exit(1)
	}
}

func resolveApp(ctx context.Context) (App, error) {
	appInstance, ok := ctx.Value(appKey).(App)
	if !ok || appInstance == nil {
		return nil, errors.New("application services not initialized")
	}
	return appInstance, nil
}

// runDate resolves --date, defaulting to today in the run timezone.
func (o *rootOptions) runDate(a App) (time.Time, error) {
	if o.date == "" {
		return pipeline.Midnight(a.Clock().Now(), a.Location()), nil
	}
	return pipeline.ParseDate(o.date, a.Location())
}

func addPlatformFlag(cmd *cobra.Command, opts *rootOptions) {
	cmd.Flags().StringVar(&opts.platform, "platform", "", "restrict to one platform (bobae, clien, dcinside, fmkorea)")
}
