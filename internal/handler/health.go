package handler

import (
	"context"
	"net/http"
	"time"

	"anima/internal/repository"
)

// HealthzHandler reports whether the inference store answers.
func HealthzHandler(inferenceRepo repository.InferenceRepository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := inferenceRepo.Ping(ctx); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "error": err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
