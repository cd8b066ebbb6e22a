package ws

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/Strob0t/taskwatch/internal/domain"
	"github.com/Strob0t/taskwatch/internal/domain/task"
	"github.com/Strob0t/taskwatch/internal/port/broadcast"
)

// Event type constants for WebSocket messages.
const (
	EventSnapshot = "task.snapshot"
	EventFailure  = "task.failure"
)

// Failure kinds carried by FailureEvent.
const (
	FailureFetch  = "fetch"
	FailureStream = "stream"
	FailureOther  = "other"
)

// FailureEvent is broadcast when a viewing session fails. Fetch failures and
// stream failures are reported separately so clients can render them apart.
type FailureEvent struct {
	TaskID string `json:"task_id"`
	Kind   string `json:"kind"`
	Error  string `json:"error"`
}

// BroadcastEvent is a convenience method that marshals a typed event and broadcasts it.
func (h *Hub) BroadcastEvent(ctx context.Context, eventType string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		slog.Error("marshal ws event payload", "type", eventType, "error", err)
		return
	}

	h.Broadcast(ctx, Message{
		Type:    eventType,
		Payload: json.RawMessage(data),
	})
}

// Publish implements broadcast.Sink.
func (h *Hub) Publish(ctx context.Context, snap task.Snapshot) {
	h.BroadcastEvent(ctx, EventSnapshot, snap.View())
}

// ReportFailure implements broadcast.FailureReporter.
func (h *Hub) ReportFailure(ctx context.Context, taskID string, err error) {
	h.BroadcastEvent(ctx, EventFailure, FailureEvent{
		TaskID: taskID,
		Kind:   failureKind(err),
		Error:  err.Error(),
	})
}

func failureKind(err error) string {
	switch {
	case errors.Is(err, domain.ErrSnapshotFetch):
		return FailureFetch
	case errors.Is(err, domain.ErrTransport):
		return FailureStream
	default:
		return FailureOther
	}
}

var (
	_ broadcast.Sink            = (*Hub)(nil)
	_ broadcast.FailureReporter = (*Hub)(nil)
)
