// Package observe records OpenTelemetry metrics for the voice loop and
// exposes them to Prometheus.
//
// Tests should build a [Metrics] with [NewMetrics] over their own
// MeterProvider; a nil *Metrics is valid and records nothing.
package observe

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/d1nch8g/voxloop"

// Metrics holds every instrument used by the application.
type Metrics struct {
	// Utterances counts segmented utterances by outcome ("emitted", "discarded").
	Utterances metric.Int64Counter

	// BargeIns counts replies interrupted by the user.
	BargeIns metric.Int64Counter

	// PipelineResults counts processed turns by kind and reason.
	PipelineResults metric.Int64Counter

	// StageDuration tracks latency of the transcribe, answer and synthesize stages.
	StageDuration metric.Float64Histogram

	// FramesDropped counts capture frames lost to a full queue or to the
	// processing window.
	FramesDropped metric.Int64Counter

	// Playbacks counts finished playback sessions by outcome.
	Playbacks metric.Int64Counter
}

var latencyBuckets = []float64{
	0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60,
}

// NewMetrics creates all instruments on mp.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.Utterances, err = m.Int64Counter("voxloop.utterances",
		metric.WithDescription("Segmented utterances by outcome."),
	); err != nil {
		return nil, err
	}
	if met.BargeIns, err = m.Int64Counter("voxloop.bargeins",
		metric.WithDescription("Replies interrupted by user speech."),
	); err != nil {
		return nil, err
	}
	if met.PipelineResults, err = m.Int64Counter("voxloop.pipeline.results",
		metric.WithDescription("Processed turns by result kind and reason."),
	); err != nil {
		return nil, err
	}
	if met.StageDuration, err = m.Float64Histogram("voxloop.pipeline.stage.duration",
		metric.WithDescription("Latency of each pipeline stage."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.FramesDropped, err = m.Int64Counter("voxloop.frames.dropped",
		metric.WithDescription("Capture frames that were never segmented."),
	); err != nil {
		return nil, err
	}
	if met.Playbacks, err = m.Int64Counter("voxloop.playbacks",
		metric.WithDescription("Finished playback sessions by outcome."),
	); err != nil {
		return nil, err
	}
	return met, nil
}

func (m *Metrics) RecordUtterance(ctx context.Context, outcome string) {
	if m == nil {
		return
	}
	m.Utterances.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

func (m *Metrics) RecordBargeIn(ctx context.Context) {
	if m == nil {
		return
	}
	m.BargeIns.Add(ctx, 1)
}

func (m *Metrics) RecordResult(ctx context.Context, kind, reason string) {
	if m == nil {
		return
	}
	m.PipelineResults.Add(ctx, 1, metric.WithAttributes(
		attribute.String("kind", kind),
		attribute.String("reason", reason),
	))
}

func (m *Metrics) RecordStage(ctx context.Context, stage string, d time.Duration) {
	if m == nil {
		return
	}
	m.StageDuration.Record(ctx, d.Seconds(), metric.WithAttributes(attribute.String("stage", stage)))
}

// RecordDropped adds n dropped frames attributed to reason ("queue_full", "processing").
func (m *Metrics) RecordDropped(ctx context.Context, reason string, n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.FramesDropped.Add(ctx, n, metric.WithAttributes(attribute.String("reason", reason)))
}

func (m *Metrics) RecordPlayback(ctx context.Context, outcome string) {
	if m == nil {
		return
	}
	m.Playbacks.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}
