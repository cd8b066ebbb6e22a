package otel

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	portmetrics "github.com/Strob0t/taskwatch/internal/port/metrics"
)

const meterName = "taskwatch"

// Metrics holds all taskwatch metric instruments and implements
// metrics.Recorder.
type Metrics struct {
	FramesDecoded      metric.Int64Counter
	DecodeErrors       metric.Int64Counter
	TransportErrors    metric.Int64Counter
	SnapshotsPublished metric.Int64Counter
	SessionsStarted    metric.Int64Counter
	SessionsClosed     metric.Int64Counter
	FetchFailures      metric.Int64Counter
}

// NewMetrics creates all metric instruments on the global meter provider.
func NewMetrics() (*Metrics, error) {
	return NewMetricsWithMeter(otel.Meter(meterName))
}

// NewMetricsWithMeter creates all metric instruments on meter.
func NewMetricsWithMeter(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}
	var err error

	counters := []struct {
		dst  *metric.Int64Counter
		name string
		desc string
	}{
		{&m.FramesDecoded, "taskwatch.frames.decoded", "Number of stream frames decoded"},
		{&m.DecodeErrors, "taskwatch.frames.decode_errors", "Number of malformed stream frames dropped"},
		{&m.TransportErrors, "taskwatch.stream.transport_errors", "Number of event streams closed by a transport failure"},
		{&m.SnapshotsPublished, "taskwatch.snapshots.published", "Number of snapshots handed to sinks"},
		{&m.SessionsStarted, "taskwatch.sessions.started", "Number of stream sessions started"},
		{&m.SessionsClosed, "taskwatch.sessions.closed", "Number of stream sessions closed"},
		{&m.FetchFailures, "taskwatch.fetch.failures", "Number of failed initial snapshot fetches"},
	}
	for _, c := range counters {
		*c.dst, err = meter.Int64Counter(c.name, metric.WithDescription(c.desc))
		if err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Metrics) FrameDecoded(ctx context.Context, kind string) {
	m.FramesDecoded.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
}

func (m *Metrics) DecodeFailed(ctx context.Context, kind string) {
	m.DecodeErrors.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
}

func (m *Metrics) TransportFailed(ctx context.Context) { m.TransportErrors.Add(ctx, 1) }

func (m *Metrics) SnapshotPublished(ctx context.Context) { m.SnapshotsPublished.Add(ctx, 1) }

func (m *Metrics) SessionStarted(ctx context.Context) { m.SessionsStarted.Add(ctx, 1) }

func (m *Metrics) SessionClosed(ctx context.Context, reason string) {
	m.SessionsClosed.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
}

func (m *Metrics) FetchFailed(ctx context.Context) { m.FetchFailures.Add(ctx, 1) }

var _ portmetrics.Recorder = (*Metrics)(nil)
