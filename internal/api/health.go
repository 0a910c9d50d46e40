package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
)

// HealthHandler reports readiness.
type HealthHandler struct {
	*Handler
}

// NewHealthHandler creates a health handler.
func NewHealthHandler(base *Handler) *HealthHandler {
	return &HealthHandler{Handler: base}
}

// RegisterHealth registers readiness routes. Liveness is served by the
// heartbeat middleware at /health.
func (h *HealthHandler) RegisterHealth(r chi.Router) {
	r.Get("/health/ready", h.Ready)
}

// Ready checks the visitor store.
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if h.repo != nil {
		if err := h.repo.Ping(ctx); err != nil {
			JSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "database": err.Error()})
			return
		}
	}
	JSON(w, http.StatusOK, map[string]string{"status": "ready"})
}
