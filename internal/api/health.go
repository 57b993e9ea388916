package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"
)

const healthPingTimeout = 2 * time.Second

type healthHandler struct {
	db Pinger
}

func newHealthHandler(db Pinger) *healthHandler {
	return &healthHandler{db: db}
}

// Check handles GET /health. It answers 503 when the database ping fails.
func (h *healthHandler) Check(w http.ResponseWriter, r *http.Request) {
	body := map[string]string{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"database":  "connected",
	}

	if h.db != nil {
		ctx, cancel := context.WithTimeout(r.Context(), healthPingTimeout)
		defer cancel()
		if err := h.db.Ping(ctx); err != nil {
			slog.Warn("health check: database ping failed", "error", err)
			body["status"] = "error"
			body["database"] = "disconnected"
			writeJSON(w, http.StatusServiceUnavailable, body)
			return
		}
	}

	writeJSON(w, http.StatusOK, body)
}
