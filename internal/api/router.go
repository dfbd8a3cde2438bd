package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	apiMiddleware "github.com/phrazzld/curation-engine/internal/api/middleware"
	"github.com/phrazzld/curation-engine/internal/redact"
)

// RouterConfig carries the dependencies of NewRouter.
type RouterConfig struct {
	Tasks  *TaskHandler
	Auth   *apiMiddleware.AuthMiddleware
	Logger *slog.Logger

	// Metrics serves GET /metrics when set.
	Metrics http.Handler

	// Ready is consulted by GET /health when set.
	Ready func(ctx context.Context) error
}

// NewRouter creates the admin API router. Everything under /api requires a
// bearer token; /health and /metrics are public.
func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(apiMiddleware.NewTraceMiddleware(cfg.Logger))

	r.Route("/api", func(r chi.Router) {
		r.Use(cfg.Auth.Authenticate)

		r.Post("/tasks", cfg.Tasks.CreateTask)
		r.Get("/tasks/{id}", cfg.Tasks.GetTask)
		r.Delete("/tasks/{id}", cfg.Tasks.RemoveTask)
		r.Post("/tasks/{id}/stop", cfg.Tasks.StopTask)
		r.Post("/tasks/{id}/complete", cfg.Tasks.CompleteTask)

		r.Get("/queues/{kind}", cfg.Tasks.GetQueue)
		r.Delete("/queues/{kind}/waiting", cfg.Tasks.ClearQueue)

		r.Get("/workers/{kind}", cfg.Tasks.ListWorkers)
	})

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		if cfg.Ready != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := cfg.Ready(ctx); err != nil {
				cfg.Logger.Warn("health check failed", "error", redact.Error(err))
				w.WriteHeader(http.StatusServiceUnavailable)
				_, _ = w.Write([]byte("UNAVAILABLE"))
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("OK")); err != nil {
			cfg.Logger.Error("Failed to write health check response", "error", err)
		}
	})

	if cfg.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", cfg.Metrics)
	}

	return r
}
