package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/lalita/wallet/internal/handlers/render"
	"github.com/lalita/wallet/internal/logger"
)

const healthTimeout = 2 * time.Second

func handleHealth(db pinger, l logger.Logger) http.Handler {
	type response struct {
		Status string `json:"status"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
		defer cancel()

		if err := db.Ping(ctx); err != nil {
			l.Error("Health check failed", "error", err)
			render.JSONWithStatus(w, response{Status: "unavailable"}, http.StatusServiceUnavailable)
			return
		}

		render.JSON(w, response{Status: "ok"})
	})
}
