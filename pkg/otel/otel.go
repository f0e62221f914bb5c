package otel

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"
)

const defaultEndpoint = "otel-collector:4317"

// tracer is replaced by Init; until then spans go nowhere.
var tracer trace.Tracer = noop.NewTracerProvider().Tracer("habittracker")

// Config tracing settings for one binary.
type Config struct {
	ServiceName    string
	ServiceVersion string
	Environment    string
	Endpoint       string  // collector gRPC endpoint
	SampleRatio    float64 // share of root traces kept; <= 0 or >= 1 keeps all
	Enabled        bool
}

// Init installs the global tracer provider and propagator. The returned func flushes
// pending spans; it is a no-op when tracing is disabled.
func Init(ctx context.Context, cfg Config, logger *zap.Logger) (func(context.Context), error) {
	if !cfg.Enabled {
		logger.Info("OpenTelemetry is disabled")
		return func(context.Context) {}, nil
	}
	if cfg.Endpoint == "" {
		cfg.Endpoint = defaultEndpoint
	}

	logger.Info("Initializing OpenTelemetry",
		zap.String("service", cfg.ServiceName),
		zap.String("endpoint", cfg.Endpoint),
		zap.Float64("sample_ratio", cfg.SampleRatio),
	)

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceNameKey.String(cfg.ServiceName),
			semconv.ServiceVersionKey.String(cfg.ServiceVersion),
			semconv.DeploymentEnvironmentKey.String(cfg.Environment),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	dialCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	exporter, err := otlptracegrpc.New(dialCtx,
		otlptracegrpc.WithEndpoint(cfg.Endpoint),
		otlptracegrpc.WithInsecure(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create OTLP exporter: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sampler(cfg.SampleRatio)),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	tracer = tp.Tracer(cfg.ServiceName)

	return func(ctx context.Context) {
		if err := tp.Shutdown(ctx); err != nil {
			logger.Error("Failed to shutdown TracerProvider", zap.Error(err))
		}
	}, nil
}

// sampler keeps a parent's decision and samples new roots by ratio.
func sampler(ratio float64) sdktrace.Sampler {
	if ratio <= 0 || ratio >= 1 {
		return sdktrace.ParentBased(sdktrace.AlwaysSample())
	}
	return sdktrace.ParentBased(sdktrace.TraceIDRatioBased(ratio))
}

// Tracer returns the service tracer.
func Tracer() trace.Tracer {
	return tracer
}

// StartSpan starts an internal span.
func StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return Tracer().Start(ctx, name, opts...)
}
