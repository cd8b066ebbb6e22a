// Package stream defines the port for the live task event stream.
package stream

import (
	"context"

	"github.com/Strob0t/taskwatch/internal/domain/event"
)

// Handler receives callbacks from a Source. Calls are made from a single
// goroutine, in transport delivery order.
type Handler interface {
	// OnOpen is called once the stream is acknowledged (first frame read).
	OnOpen()
	// OnFrame is called for every frame with content. Comment-only
	// heartbeats are not delivered.
	OnFrame(f event.Frame)
}

// Source opens the live event stream for a task.
type Source interface {
	// Stream blocks until the stream ends. It returns nil when the remote
	// closes the stream cleanly, ctx.Err() after cancellation, and the
	// transport error otherwise. It never reconnects.
	Stream(ctx context.Context, taskID string, h Handler) error
}
