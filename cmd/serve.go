package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/carbuzz/internal/api"
	"github.com/JakeFAU/carbuzz/internal/id/uuid"
	"github.com/JakeFAU/carbuzz/internal/metrics"
	"github.com/JakeFAU/carbuzz/internal/storage/memory"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve health, metrics and the run API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			return serve(cmd.Context(), a)
		},
	}
}

func serve(ctx context.Context, a App) error {
	cfg := a.Config()
	logger := a.Logger()
	metrics.Init()

	ctx, stop := context.WithCancel(ctx)
	defer stop()

	apiServer := api.NewServer(
		ctx,
		memory.NewRunStore(a.Clock()),
		a.Runner(),
		uuid.NewUUIDGenerator(),
		a.Clock(),
		api.Config{APIKey: cfg.Server.APIKey, Location: a.Location()},
		logger,
	)
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server started", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	var serveErr error
	select {
	case <-ctx.Done():
		logger.Info("shutdown initiated")
	case serveErr = <-errCh:
		logger.Error("http server error", zap.Error(serveErr))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", zap.Error(err))
	}
	// Background runs see the canceled context and stop at their next fetch.
	stop()
	apiServer.Wait()
	logger.Info("shutdown complete")
	if serveErr != nil {
		return fmt.Errorf("serve: %w", serveErr)
	}
	return nil
}
