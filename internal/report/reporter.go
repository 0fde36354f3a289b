// Package report delivers pipeline error events to the configured sinks.
package report

import (
	"context"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/JakeFAU/carbuzz/internal/crawler"
)

// ErrorNotifier is a chat sink for error events.
type ErrorNotifier interface {
	ReportError(ctx context.Context, event crawler.ErrorEvent) error
}

// Reporter implements crawler.ErrorReporter. Every sink is optional and delivery is best-effort.
type Reporter struct {
	publisher crawler.Publisher
	topic     string
	notifier  ErrorNotifier
	logger    *zap.Logger
	count     atomic.Int64
}

// New builds a Reporter. publisher and notifier may be nil.
func New(publisher crawler.Publisher, topic string, notifier ErrorNotifier, logger *zap.Logger) *Reporter {
	if logger == nil {
		logger = zap.NewNop()
	}
	if topic == "" {
		publisher = nil
	}
	return &Reporter{
		publisher: publisher,
		topic:     topic,
		notifier:  notifier,
		logger:    logger.Named("report"),
	}
}

// Report logs the event and forwards it to each sink. Sink failures are logged and dropped.
func (r *Reporter) Report(ctx context.Context, event crawler.ErrorEvent) {
	if event.Status == "" {
		event.Status = "error"
	}
	r.count.Add(1)
	fields := []zap.Field{
		zap.String("platform", event.Source),
		zap.String("stage", event.Stage),
		zap.String("url", event.URL),
		zap.String("error", event.Error),
	}
	r.logger.Warn("pipeline error", fields...)

	if r.publisher != nil {
		if _, err := r.publisher.Publish(ctx, r.topic, event); err != nil {
			r.logger.Warn("publish error event failed", append(fields, zap.NamedError("delivery_error", err))...)
		}
	}
	if r.notifier != nil {
		if err := r.notifier.ReportError(ctx, event); err != nil {
			r.logger.Warn("notify error event failed", append(fields, zap.NamedError("delivery_error", err))...)
		}
	}
}

// Count returns how many events were reported.
func (r *Reporter) Count() int64 {
	return r.count.Load()
}
