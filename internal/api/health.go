package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
)

// Pinger reports database reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}

// SessionCounter reports how many sessions are held in memory.
type SessionCounter interface {
	Len() int
}

// HealthHandler handles health check endpoints.
type HealthHandler struct {
	repo     Pinger
	sessions SessionCounter
	timeout  time.Duration
}

// NewHealthHandler creates a new health handler.
func NewHealthHandler(repo Pinger, sessions SessionCounter, timeout time.Duration) *HealthHandler {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &HealthHandler{repo: repo, sessions: sessions, timeout: timeout}
}

// Health returns the health status of the API and its dependencies.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	checks := map[string]string{"api": "ok"}
	status := map[string]interface{}{
		"status": "healthy",
		"checks": checks,
	}
	if h.sessions != nil {
		status["sessions"] = h.sessions.Len()
	}
	statusCode := http.StatusOK

	if err := h.repo.Ping(ctx); err != nil {
		slog.Error("Health check failed", "error", err)
		status["status"] = "degraded"
		checks["database"] = "unreachable"
		statusCode = http.StatusServiceUnavailable
	} else {
		checks["database"] = "ok"
	}

	JSON(w, statusCode, status)
}

// RegisterHealth registers the health check route.
func (h *HealthHandler) RegisterHealth(r chi.Router) {
	r.Get("/health", h.Health)
}
