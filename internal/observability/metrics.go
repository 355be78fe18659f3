package observability

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Instruments holds the metric instruments recorded by the analyzer.
type Instruments struct {
	analyses metric.Int64Counter
	failures metric.Int64Counter
	blocks   metric.Int64Histogram
	duration metric.Float64Histogram
}

// NewInstruments registers the analyzer's instruments on meter. A nil meter
// uses the global MeterProvider, which is a no-op until one is installed.
func NewInstruments(meter metric.Meter) (*Instruments, error) {
	if meter == nil {
		meter = otel.Meter(TracerName)
	}

	var (
		in  Instruments
		err error
	)
	if in.analyses, err = meter.Int64Counter("copybook.analyses",
		metric.WithDescription("Copybook analyses completed, by selection rule"),
	); err != nil {
		return nil, fmt.Errorf("create analyses counter: %w", err)
	}
	if in.failures, err = meter.Int64Counter("copybook.failures",
		metric.WithDescription("Copybook analyses that failed, by error kind"),
	); err != nil {
		return nil, fmt.Errorf("create failures counter: %w", err)
	}
	if in.blocks, err = meter.Int64Histogram("copybook.blocks",
		metric.WithDescription("Level-01 blocks found per copybook"),
		metric.WithExplicitBucketBoundaries(1, 2, 3, 5, 8, 13, 21),
	); err != nil {
		return nil, fmt.Errorf("create blocks histogram: %w", err)
	}
	if in.duration, err = meter.Float64Histogram("copybook.analysis.duration",
		metric.WithDescription("Time spent analyzing one copybook"),
		metric.WithUnit("s"),
	); err != nil {
		return nil, fmt.Errorf("create duration histogram: %w", err)
	}
	return &in, nil
}

// RecordAnalysis records a successful analysis.
func (in *Instruments) RecordAnalysis(ctx context.Context, rule string, blocks int, seconds float64) {
	if in == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("rule", rule))
	in.analyses.Add(ctx, 1, attrs)
	in.blocks.Record(ctx, int64(blocks))
	in.duration.Record(ctx, seconds, attrs)
}

// RecordFailure records a failed analysis. kind is a short error class such
// as "empty" or "no_records".
func (in *Instruments) RecordFailure(ctx context.Context, kind string) {
	if in == nil {
		return
	}
	in.failures.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
}
