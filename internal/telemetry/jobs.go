package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "github.com/rotabus/rotabus/internal/telemetry"

// JobMetrics records background job outcomes. A nil *JobMetrics records nothing.
type JobMetrics struct {
	runs     metric.Int64Counter
	duration metric.Float64Histogram
	vehicles metric.Int64Gauge
	purged   metric.Int64Counter
}

// NewJobMetrics creates the job instruments on the global meter provider.
func NewJobMetrics() (*JobMetrics, error) {
	meter := otel.Meter(instrumentationName)

	runs, err := meter.Int64Counter(
		"rotabus.job.runs",
		metric.WithDescription("Background job runs by job and outcome"),
		metric.WithUnit("{run}"),
	)
	if err != nil {
		return nil, err
	}

	duration, err := meter.Float64Histogram(
		"rotabus.job.duration",
		metric.WithDescription("Background job duration"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30),
	)
	if err != nil {
		return nil, err
	}

	vehicles, err := meter.Int64Gauge(
		"rotabus.lines.vehicles",
		metric.WithDescription("Vehicles in the latest positions snapshot"),
		metric.WithUnit("{vehicle}"),
	)
	if err != nil {
		return nil, err
	}

	purged, err := meter.Int64Counter(
		"rotabus.store.purged",
		metric.WithDescription("Expired store entries removed"),
		metric.WithUnit("{entry}"),
	)
	if err != nil {
		return nil, err
	}

	return &JobMetrics{runs: runs, duration: duration, vehicles: vehicles, purged: purged}, nil
}

// RecordRun records one run of job. source says what triggered it, e.g. "schedule"
// or "pubsub".
func (m *JobMetrics) RecordRun(ctx context.Context, job, source string, d time.Duration, err error) {
	if m == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	attrs := metric.WithAttributes(
		attribute.String("job", job),
		attribute.String("source", source),
		attribute.String("outcome", outcome),
	)
	m.runs.Add(ctx, 1, attrs)
	m.duration.Record(ctx, d.Seconds(), attrs)
}

// RecordVehicles records the size of a fresh positions snapshot.
func (m *JobMetrics) RecordVehicles(ctx context.Context, n int) {
	if m == nil {
		return
	}
	m.vehicles.Record(ctx, int64(n))
}

// RecordPurged adds n removed store entries.
func (m *JobMetrics) RecordPurged(ctx context.Context, n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.purged.Add(ctx, n)
}
