// Package broadcast defines the port for handing reconciled task snapshots to
// rendering sinks.
package broadcast

import (
	"context"

	"github.com/Strob0t/taskwatch/internal/domain/task"
)

// Sink receives every published snapshot. The snapshot is a private copy;
// sinks may keep it but must not expect changes to flow back.
// Publish is called synchronously with the mutation that caused it, so
// implementations should not block for long.
type Sink interface {
	Publish(ctx context.Context, snap task.Snapshot)
}

// FailureReporter is implemented by sinks that display viewing-session
// failures, such as a failed initial fetch.
type FailureReporter interface {
	ReportFailure(ctx context.Context, taskID string, err error)
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(ctx context.Context, snap task.Snapshot)

// Publish calls f.
func (f SinkFunc) Publish(ctx context.Context, snap task.Snapshot) { f(ctx, snap) }
