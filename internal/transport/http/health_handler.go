package http

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
)

// Pinger reports record store reachability
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler serves liveness, readiness, and version endpoints
type HealthHandler struct {
	store   Pinger
	version string
	logger  *slog.Logger
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(store Pinger, version string, logger *slog.Logger) *HealthHandler {
	return &HealthHandler{
		store:   store,
		version: version,
		logger:  logger.With(slog.String("handler", "health")),
	}
}

// Register mounts the health endpoints on the router
func (h *HealthHandler) Register(r chi.Router) {
	r.Get("/health", h.Health)
	r.Get("/health/live", h.Liveness)
	r.Get("/version", h.Version)
}

// Health handles GET /health: readiness including a store ping
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if err := h.store.Ping(ctx); err != nil {
		h.logger.ErrorContext(ctx, "store ping failed", slog.String("error", err.Error()))
		render.Status(r, http.StatusServiceUnavailable)
		render.JSON(w, r, map[string]any{
			"status": "degraded",
			"store":  "unreachable",
		})
		return
	}

	render.JSON(w, r, map[string]any{
		"status": "ok",
		"store":  "ok",
	})
}

// Liveness handles GET /health/live: process-up check only
func (h *HealthHandler) Liveness(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, map[string]any{"status": "ok"})
}

// Version handles GET /version
func (h *HealthHandler) Version(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, map[string]any{
		"version": h.version,
	})
}
