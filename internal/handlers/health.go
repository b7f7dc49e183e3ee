package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/lingoswap/backend/internal/logging"
)

const healthCheckTimeout = 2 * time.Second

// HealthHandler responds with service health information.
type HealthHandler struct {
	Ping HealthChecker
}

// Handle implements GET /healthz. The service reports degraded when its store cannot be reached.
func (h HealthHandler) Handle(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	payload := map[string]string{"status": "ok"}

	if h.Ping != nil {
		pingCtx, cancel := context.WithTimeout(ctx, healthCheckTimeout)
		defer cancel()
		if err := h.Ping(pingCtx); err != nil {
			logging.FromContext(ctx).Warn("health check failed", "error", err)
			payload["status"] = "degraded"
			respondJSON(ctx, w, http.StatusServiceUnavailable, payload)
			return
		}
	}

	respondJSON(ctx, w, http.StatusOK, payload)
}
