// Package telemetry configures the OpenTelemetry tracer provider used by pipeline stages and
// the Pub/Sub publisher.
package telemetry

import (
	"context"
	"fmt"

	texporter "github.com/GoogleCloudPlatform/opentelemetry-operations-go/exporter/trace"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.17.0"
)

// ShutdownFunc flushes and stops the tracer provider.
type ShutdownFunc func(context.Context) error

// Config selects sampling and where spans go.
type Config struct {
	ServiceName string
	// Enabled turns on sampling. The propagator is installed either way.
	Enabled     bool
	// ProjectID exports sampled spans to Google Cloud Trace in that project.
	ProjectID   string
	// Exporter overrides the Cloud Trace exporter.
	Exporter    sdktrace.SpanExporter
}

// InitTracerProvider installs a global tracer provider and the TraceContext plus Baggage
// propagator. Sampled spans are batched to the exporter; with no exporter and no project
// they only carry context through Pub/Sub attributes.
func InitTracerProvider(ctx context.Context, cfg Config) (ShutdownFunc, error) {
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}))

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(cfg.ServiceName),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("create resource: %w", err)
	}

	sampler := sdktrace.NeverSample()
	exporter := cfg.Exporter
	if cfg.Enabled {
		sampler = sdktrace.ParentBased(sdktrace.AlwaysSample())
		if exporter == nil && cfg.ProjectID != "" {
			exporter, err = texporter.New(texporter.WithProjectID(cfg.ProjectID))
			if err != nil {
				return nil, fmt.Errorf("create cloud trace exporter: %w", err)
			}
		}
	}
	opts := []sdktrace.TracerProviderOption{
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sampler),
	}
	if exporter != nil {
		opts = append(opts, sdktrace.WithBatcher(exporter))
	}
	tp := sdktrace.NewTracerProvider(opts...)
	otel.SetTracerProvider(tp)

	return tp.Shutdown, nil
}
