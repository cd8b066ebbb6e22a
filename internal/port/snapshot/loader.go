// Package snapshot defines the port for the one-shot initial task fetch.
package snapshot

import (
	"context"

	"github.com/Strob0t/taskwatch/internal/domain/task"
)

// Loader fetches the current state of a task.
type Loader interface {
	Fetch(ctx context.Context, taskID string) (*task.Snapshot, error)
}
