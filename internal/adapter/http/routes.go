package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// NewRouter builds the chi router with the standard middleware stack.
// Extra middleware wraps every route after the standard stack.
func NewRouter(h *Handlers, corsOrigin string, extra ...func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()
	r.Use(RequestID)
	r.Use(Logger)
	r.Use(CORS(corsOrigin))
	for _, mw := range extra {
		r.Use(mw)
	}
	MountRoutes(r, h)
	return r
}

// MountRoutes registers all routes on the given chi router.
func MountRoutes(r chi.Router, h *Handlers) {
	r.Get("/health", h.Health)
	if h.WS != nil {
		r.Get("/ws", h.WS)
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/", func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, http.StatusOK, map[string]string{"version": h.Version})
		})

		// Current viewing session
		r.Get("/task", h.GetState)
		r.Get("/task/snapshot", h.GetSnapshot)
		r.Post("/task/retry", h.Retry)

		// Tasks by ID
		r.Get("/tasks/{id}/snapshot", h.GetTaskSnapshot)
		r.Post("/tasks/{id}/open", h.OpenTask)
	})
}
