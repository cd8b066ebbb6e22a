package otel

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/Strob0t/taskwatch/internal/domain/event"
	"github.com/Strob0t/taskwatch/internal/domain/task"
	"github.com/Strob0t/taskwatch/internal/logger"
	"github.com/Strob0t/taskwatch/internal/port/snapshot"
	"github.com/Strob0t/taskwatch/internal/port/stream"
)

const tracerName = "taskwatch"

func tracerOrDefault(t trace.Tracer) trace.Tracer {
	if t != nil {
		return t
	}
	return otel.Tracer(tracerName)
}

// StartFetchSpan starts a span for an initial snapshot fetch.
func StartFetchSpan(ctx context.Context, tracer trace.Tracer, taskID string) (context.Context, trace.Span) {
	return tracerOrDefault(tracer).Start(ctx, "snapshot.fetch",
		trace.WithAttributes(
			attribute.String("task.id", taskID),
			attribute.String("session.id", logger.SessionID(ctx)),
		),
	)
}

// StartStreamSpan starts a span covering one event stream connection.
func StartStreamSpan(ctx context.Context, tracer trace.Tracer, taskID string) (context.Context, trace.Span) {
	return tracerOrDefault(tracer).Start(ctx, "stream.session",
		trace.WithAttributes(
			attribute.String("task.id", taskID),
			attribute.String("session.id", logger.SessionID(ctx)),
		),
	)
}

func endSpan(span trace.Span, err error) {
	if err != nil && !errors.Is(err, context.Canceled) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// TracedLoader wraps a snapshot.Loader with a span per fetch.
type TracedLoader struct {
	Next   snapshot.Loader
	Tracer trace.Tracer // nil uses the global provider
}

// Fetch implements snapshot.Loader.
func (l TracedLoader) Fetch(ctx context.Context, taskID string) (*task.Snapshot, error) {
	ctx, span := StartFetchSpan(ctx, l.Tracer, taskID)
	snap, err := l.Next.Fetch(ctx, taskID)
	if snap != nil {
		span.SetAttributes(
			attribute.String("task.status", string(snap.Status)),
			attribute.Int("task.steps", len(snap.Steps)),
		)
	}
	endSpan(span, err)
	return snap, err
}

// TracedSource wraps a stream.Source with a span per connection. Frames are
// recorded as span events.
type TracedSource struct {
	Next   stream.Source
	Tracer trace.Tracer // nil uses the global provider
}

// Stream implements stream.Source.
func (s TracedSource) Stream(ctx context.Context, taskID string, h stream.Handler) error {
	ctx, span := StartStreamSpan(ctx, s.Tracer, taskID)
	err := s.Next.Stream(ctx, taskID, tracedHandler{span: span, next: h})
	endSpan(span, err)
	return err
}

type tracedHandler struct {
	span trace.Span
	next stream.Handler
}

func (h tracedHandler) OnOpen() {
	h.span.AddEvent("open")
	h.next.OnOpen()
}

func (h tracedHandler) OnFrame(f event.Frame) {
	h.span.AddEvent("frame", trace.WithAttributes(attribute.String("kind", string(f.Kind))))
	h.next.OnFrame(f)
}

var (
	_ snapshot.Loader = TracedLoader{}
	_ stream.Source   = TracedSource{}
)
