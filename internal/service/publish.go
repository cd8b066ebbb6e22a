package service

import (
	"context"

	"github.com/Strob0t/taskwatch/internal/domain/task"
	"github.com/Strob0t/taskwatch/internal/port/broadcast"
)

// Fanout publishes every snapshot to each of its sinks in order. Each sink
// receives its own copy.
type Fanout []broadcast.Sink

// Publish implements broadcast.Sink.
func (f Fanout) Publish(ctx context.Context, snap task.Snapshot) {
	for i, s := range f {
		if i == len(f)-1 {
			s.Publish(ctx, snap)
			return
		}
		s.Publish(ctx, snap.Clone())
	}
}

// ReportFailure forwards to every sink that implements broadcast.FailureReporter.
func (f Fanout) ReportFailure(ctx context.Context, taskID string, err error) {
	for _, s := range f {
		if r, ok := s.(broadcast.FailureReporter); ok {
			r.ReportFailure(ctx, taskID, err)
		}
	}
}
