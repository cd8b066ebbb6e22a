package otel

import (
	"context"
	"errors"
	"testing"

	"go.opentelemetry.io/otel/codes"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/Strob0t/taskwatch/internal/config"
	"github.com/Strob0t/taskwatch/internal/domain/event"
	"github.com/Strob0t/taskwatch/internal/domain/task"
	"github.com/Strob0t/taskwatch/internal/port/stream"
)

func collectSums(t *testing.T, reader *sdkmetric.ManualReader) map[string]int64 {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	out := map[string]int64{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			sum, ok := m.Data.(metricdata.Sum[int64])
			if !ok {
				continue
			}
			for _, dp := range sum.DataPoints {
				out[m.Name] += dp.Value
			}
		}
	}
	return out
}

func TestMetrics_Recorder(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	m, err := NewMetricsWithMeter(mp.Meter(meterName))
	if err != nil {
		t.Fatalf("NewMetricsWithMeter: %v", err)
	}

	ctx := context.Background()
	m.FrameDecoded(ctx, "status")
	m.FrameDecoded(ctx, "think")
	m.DecodeFailed(ctx, "tool")
	m.TransportFailed(ctx)
	m.SnapshotPublished(ctx)
	m.SessionStarted(ctx)
	m.SessionClosed(ctx, "complete")
	m.FetchFailed(ctx)

	sums := collectSums(t, reader)
	want := map[string]int64{
		"taskwatch.frames.decoded":          2,
		"taskwatch.frames.decode_errors":    1,
		"taskwatch.stream.transport_errors": 1,
		"taskwatch.snapshots.published":     1,
		"taskwatch.sessions.started":        1,
		"taskwatch.sessions.closed":         1,
		"taskwatch.fetch.failures":          1,
	}
	for name, v := range want {
		if sums[name] != v {
			t.Errorf("%s = %d, want %d", name, sums[name], v)
		}
	}
}

type loaderFunc func(ctx context.Context, id string) (*task.Snapshot, error)

func (f loaderFunc) Fetch(ctx context.Context, id string) (*task.Snapshot, error) { return f(ctx, id) }

func newTestTracer() (*sdktrace.TracerProvider, *tracetest.SpanRecorder) {
	rec := tracetest.NewSpanRecorder()
	return sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec)), rec
}

func TestTracedLoader(t *testing.T) {
	tp, rec := newTestTracer()
	boom := errors.New("boom")
	l := TracedLoader{
		Next:   loaderFunc(func(context.Context, string) (*task.Snapshot, error) { return nil, boom }),
		Tracer: tp.Tracer("test"),
	}

	if _, err := l.Fetch(context.Background(), "t1"); !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}

	spans := rec.Ended()
	if len(spans) != 1 || spans[0].Name() != "snapshot.fetch" {
		t.Fatalf("expected one snapshot.fetch span, got %d", len(spans))
	}
	if spans[0].Status().Code != codes.Error {
		t.Fatalf("expected error status, got %v", spans[0].Status())
	}
}

type sourceFunc func(ctx context.Context, id string, h stream.Handler) error

func (f sourceFunc) Stream(ctx context.Context, id string, h stream.Handler) error { return f(ctx, id, h) }

type nopHandler struct{ frames int }

func (*nopHandler) OnOpen()               {}
func (h *nopHandler) OnFrame(event.Frame) { h.frames++ }

func TestTracedSource(t *testing.T) {
	tp, rec := newTestTracer()
	src := TracedSource{
		Next: sourceFunc(func(_ context.Context, _ string, h stream.Handler) error {
			h.OnOpen()
			h.OnFrame(event.Frame{Kind: event.KindStatus})
			h.OnFrame(event.Frame{Kind: event.KindThink})
			return context.Canceled
		}),
		Tracer: tp.Tracer("test"),
	}

	h := &nopHandler{}
	if err := src.Stream(context.Background(), "t1", h); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if h.frames != 2 {
		t.Fatalf("expected frames forwarded, got %d", h.frames)
	}

	spans := rec.Ended()
	if len(spans) != 1 || spans[0].Name() != "stream.session" {
		t.Fatalf("expected one stream.session span, got %d", len(spans))
	}
	if got := len(spans[0].Events()); got != 3 {
		t.Fatalf("expected open + 2 frame events, got %d", got)
	}
	if spans[0].Status().Code == codes.Error {
		t.Fatal("cancellation must not mark the span as failed")
	}
}

func TestSetupDisabled(t *testing.T) {
	shutdown, err := Setup(context.Background(), config.Telemetry{}, "test")
	if err != nil {
		t.Fatalf("Setup: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
}
