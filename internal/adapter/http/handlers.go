package http

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/Strob0t/taskwatch/internal/domain/task"
	"github.com/Strob0t/taskwatch/internal/service"
)

// Viewer is the part of service.Viewer the HTTP API drives.
type Viewer interface {
	Open(ctx context.Context, taskID string) error
	Retry(ctx context.Context) error
	State() service.ViewState
	Snapshot() (task.Snapshot, bool)
}

// SnapshotCache serves encoded views without touching the live store.
type SnapshotCache interface {
	Get(taskID string) ([]byte, bool)
	Latest() ([]byte, bool)
}

// BreakerState reports the snapshot fetch circuit state.
type BreakerState interface {
	State() string
}

// Handlers holds the dependencies of the HTTP API. Cache, Breaker and WS are
// optional.
type Handlers struct {
	Viewer  Viewer
	Cache   SnapshotCache
	Breaker BreakerState
	WS      http.HandlerFunc
	Version string
}

type healthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version,omitempty"`
	Breaker string `json:"breaker,omitempty"`
	Phase   string `json:"phase"`
	Stream  string `json:"stream"`
}

// Health handles GET /health
func (h *Handlers) Health(w http.ResponseWriter, _ *http.Request) {
	st := h.Viewer.State()
	resp := healthResponse{
		Status:  "ok",
		Version: h.Version,
		Phase:   string(st.Phase),
		Stream:  st.Stream.String(),
	}
	if h.Breaker != nil {
		resp.Breaker = h.Breaker.State()
		if resp.Breaker == "open" {
			resp.Status = "degraded"
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

type stateResponse struct {
	TaskID    string `json:"task_id,omitempty"`
	SessionID string `json:"session_id,omitempty"`
	Phase     string `json:"phase"`
	Error     string `json:"error,omitempty"`
	Stream    string `json:"stream"`
	StreamErr string `json:"stream_error,omitempty"`
}

// GetState handles GET /api/v1/task
func (h *Handlers) GetState(w http.ResponseWriter, _ *http.Request) {
	st := h.Viewer.State()
	writeJSON(w, http.StatusOK, stateResponse{
		TaskID:    st.TaskID,
		SessionID: st.SessionID,
		Phase:     string(st.Phase),
		Error:     errString(st.Err),
		Stream:    st.Stream.String(),
		StreamErr: errString(st.StreamErr),
	})
}

// GetSnapshot handles GET /api/v1/task/snapshot
func (h *Handlers) GetSnapshot(w http.ResponseWriter, _ *http.Request) {
	snap, ok := h.Viewer.Snapshot()
	if !ok {
		writeError(w, http.StatusNotFound, "no task is open")
		return
	}
	writeJSON(w, http.StatusOK, snap.View())
}

// GetTaskSnapshot handles GET /api/v1/tasks/{id}/snapshot
//
// Served from the cache so views of recently watched tasks stay readable
// after switching to another task.
func (h *Handlers) GetTaskSnapshot(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if h.Cache != nil {
		if data, ok := h.Cache.Get(id); ok {
			writeRawJSON(w, http.StatusOK, data)
			return
		}
	}
	if snap, ok := h.Viewer.Snapshot(); ok && snap.ID == id {
		writeJSON(w, http.StatusOK, snap.View())
		return
	}
	writeError(w, http.StatusNotFound, "task not found")
}

// OpenTask handles POST /api/v1/tasks/{id}/open
func (h *Handlers) OpenTask(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.Viewer.Open(r.Context(), id); err != nil {
		if errors.Is(err, service.ErrNoTaskID) {
			writeError(w, http.StatusBadRequest, "task id is required")
			return
		}
		slog.ErrorContext(r.Context(), "open task failed", "task_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	h.GetState(w, r)
}

// Retry handles POST /api/v1/task/retry
func (h *Handlers) Retry(w http.ResponseWriter, r *http.Request) {
	if err := h.Viewer.Retry(r.Context()); err != nil {
		if errors.Is(err, service.ErrNoSession) {
			writeError(w, http.StatusConflict, "no task is open")
			return
		}
		slog.ErrorContext(r.Context(), "retry failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	h.GetState(w, r)
}
