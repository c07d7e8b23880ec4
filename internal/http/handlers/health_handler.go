package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/diagnosis/hanguk-bookings/internal/http/response"
	"github.com/diagnosis/hanguk-bookings/pkg/logger"
)

func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	body := map[string]any{
		"success":     true,
		"status":      "ok",
		"message":     "HanGuk Bites API is running",
		"environment": h.env,
		"database":    h.store.Backend(),
		"timestamp":   h.now().UTC().Format(time.RFC3339),
	}
	status := http.StatusOK
	if err := h.store.Ping(ctx); err != nil {
		logger.WarnContext(ctx, "Health check: store unreachable", "error", err)
		body["success"] = false
		body["status"] = "degraded"
		status = http.StatusServiceUnavailable
	}
	response.JSON(w, status, body)
}

// NotFound answers unknown routes.
func NotFound(w http.ResponseWriter, r *http.Request) {
	response.NotFound(w, "Endpoint not found")
}

func MethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	response.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed", "")
}
