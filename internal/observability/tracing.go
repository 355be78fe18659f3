// Package observability provides OpenTelemetry tracing and metrics, and slog
// logger construction, for cpyselect.
package observability

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
)

const (
	// TracerName is the instrumentation scope for cpyselect spans and metrics.
	TracerName = "github.com/efebarandurmaz/cpyselect"
)

// TracingConfig configures the OpenTelemetry tracing.
type TracingConfig struct {
	// ServiceName is the name of the service (default: "cpyselect")
	ServiceName string

	ServiceVersion string

	// Environment is the deployment environment (dev, staging, prod)
	Environment string

	// OTLPEndpoint is the OTLP gRPC endpoint (e.g., "localhost:4317").
	// If empty, tracing is disabled.
	OTLPEndpoint string

	// SampleRate is the trace sampling rate (0.0 to 1.0, default: 1.0)
	SampleRate float64
}

// DefaultTracingConfig returns a default tracing configuration.
func DefaultTracingConfig() *TracingConfig {
	return &TracingConfig{
		ServiceName:    "cpyselect",
		ServiceVersion: "0.1.0",
		Environment:    "development",
		SampleRate:     1.0,
	}
}

// TracerProvider wraps the OpenTelemetry tracer provider.
type TracerProvider struct {
	provider *sdktrace.TracerProvider
	tracer   trace.Tracer
}

// InitTracing initializes OpenTelemetry tracing.
// Returns a no-op tracer if OTLPEndpoint is empty.
func InitTracing(ctx context.Context, cfg *TracingConfig) (*TracerProvider, error) {
	if cfg == nil {
		cfg = DefaultTracingConfig()
	}

	if cfg.OTLPEndpoint == "" {
		return &TracerProvider{
			tracer: otel.Tracer(TracerName),
		}, nil
	}

	exporter, err := otlptracegrpc.New(ctx,
		otlptracegrpc.WithEndpoint(cfg.OTLPEndpoint),
		otlptracegrpc.WithInsecure(),
	)
	if err != nil {
		return nil, fmt.Errorf("create OTLP exporter: %w", err)
	}

	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(cfg.ServiceName),
			semconv.ServiceVersion(cfg.ServiceVersion),
			semconv.DeploymentEnvironment(cfg.Environment),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("create resource: %w", err)
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(samplerFor(cfg.SampleRate)),
	)

	otel.SetTracerProvider(provider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	return &TracerProvider{
		provider: provider,
		tracer:   provider.Tracer(TracerName),
	}, nil
}

func samplerFor(rate float64) sdktrace.Sampler {
	switch {
	case rate >= 1.0:
		return sdktrace.AlwaysSample()
	case rate <= 0:
		return sdktrace.NeverSample()
	default:
		return sdktrace.TraceIDRatioBased(rate)
	}
}

// Shutdown flushes pending spans and shuts down the tracer provider.
func (tp *TracerProvider) Shutdown(ctx context.Context) error {
	if tp.provider != nil {
		return tp.provider.Shutdown(ctx)
	}
	return nil
}

// Tracer returns the underlying tracer.
func (tp *TracerProvider) Tracer() trace.Tracer {
	return tp.tracer
}

// Span kinds recorded under the cpyselect.span.kind attribute.
const (
	SpanKindAnalysis = "analysis"
	SpanKindStage    = "stage"
	SpanKindBatch    = "batch"
)

// Pipeline stage names.
const (
	StageExpand   = "expand"
	StageTokenize = "tokenize"
	StageSelect   = "select"
	StageExtract  = "extract"
)

func tracerOrGlobal(t trace.Tracer) trace.Tracer {
	if t == nil {
		return otel.Tracer(TracerName)
	}
	return t
}

// StartAnalysisSpan starts the span covering one copybook analysis.
func StartAnalysisSpan(ctx context.Context, tracer trace.Tracer, source string, size int) (context.Context, trace.Span) {
	return tracerOrGlobal(tracer).Start(ctx, "copybook.analyze",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("cpyselect.span.kind", SpanKindAnalysis),
			attribute.String("copybook.source", source),
			attribute.Int("copybook.size", size),
		),
	)
}

// StartStageSpan starts a span for a single pipeline stage.
func StartStageSpan(ctx context.Context, tracer trace.Tracer, stage string) (context.Context, trace.Span) {
	return tracerOrGlobal(tracer).Start(ctx, fmt.Sprintf("copybook.%s", stage),
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("cpyselect.span.kind", SpanKindStage),
			attribute.String("copybook.stage", stage),
		),
	)
}

// StartBatchSpan starts a span around a multi-copybook run.
func StartBatchSpan(ctx context.Context, tracer trace.Tracer, count, limit int) (context.Context, trace.Span) {
	return tracerOrGlobal(tracer).Start(ctx, "copybook.batch",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("cpyselect.span.kind", SpanKindBatch),
			attribute.Int("batch.count", count),
			attribute.Int("batch.limit", limit),
		),
	)
}

// RecordDecision records the selected record on a span.
func RecordDecision(span trace.Span, record, rule string, blocks int, metadata bool) {
	span.SetAttributes(
		attribute.String("copybook.record", record),
		attribute.String("copybook.rule", rule),
		attribute.Int("copybook.block_count", blocks),
		attribute.Bool("copybook.record_is_metadata", metadata),
	)
}

// RecordError records an error on a span.
func RecordError(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
}
