// Package metrics records pipeline counters with OpenTelemetry and exports
// them to stdout or a Prometheus scrape endpoint.
package metrics

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	otelmetric "go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/entrepeneur4lyf/paycopilot"

// Recorder groups the instruments used across the service. A nil Recorder
// records nothing.
type Recorder struct {
	requests            otelmetric.Int64Counter
	classifierFallbacks otelmetric.Int64Counter
	computedRetries     otelmetric.Int64Counter
	stageTimeouts       otelmetric.Int64Counter
	queryDuration       otelmetric.Float64Histogram
}

// New creates a recorder on the given meter. Instruments that fail to
// register are left nil and skipped.
func New(meter otelmetric.Meter) *Recorder {
	r := &Recorder{}
	r.requests, _ = meter.Int64Counter("pipeline.requests",
		otelmetric.WithDescription("Requests handled by the query pipeline"))
	r.classifierFallbacks, _ = meter.Int64Counter("pipeline.classification_fallbacks",
		otelmetric.WithDescription("Classifier failures that defaulted to sql"))
	r.computedRetries, _ = meter.Int64Counter("pipeline.computed_column_retries",
		otelmetric.WithDescription("SQL regenerations after a computed-column error"))
	r.stageTimeouts, _ = meter.Int64Counter("pipeline.stage_timeouts",
		otelmetric.WithDescription("External calls that exceeded their timeout"))
	r.queryDuration, _ = meter.Float64Histogram("executor.query_duration_ms",
		otelmetric.WithDescription("Transaction store query latency"),
		otelmetric.WithUnit("ms"))
	return r
}

func (r *Recorder) Request(ctx context.Context, path, outcome string) {
	if r == nil || r.requests == nil {
		return
	}
	r.requests.Add(ctx, 1, otelmetric.WithAttributes(
		attribute.String("path", path),
		attribute.String("outcome", outcome),
	))
}

func (r *Recorder) ClassificationFallback(ctx context.Context) {
	if r == nil || r.classifierFallbacks == nil {
		return
	}
	r.classifierFallbacks.Add(ctx, 1)
}

func (r *Recorder) ComputedColumnRetry(ctx context.Context) {
	if r == nil || r.computedRetries == nil {
		return
	}
	r.computedRetries.Add(ctx, 1)
}

func (r *Recorder) StageTimeout(ctx context.Context, stage string) {
	if r == nil || r.stageTimeouts == nil {
		return
	}
	r.stageTimeouts.Add(ctx, 1, otelmetric.WithAttributes(attribute.String("stage", stage)))
}

func (r *Recorder) QueryDuration(ctx context.Context, d time.Duration, ok bool) {
	if r == nil || r.queryDuration == nil {
		return
	}
	r.queryDuration.Record(ctx, float64(d.Microseconds())/1000, otelmetric.WithAttributes(attribute.Bool("ok", ok)))
}
