package handler

import (
	"errors"
	"net/http"
	"strconv"

	"anima/internal/config"
	"anima/internal/logger"
	"anima/internal/service/segment"
	"anima/internal/telemetry"
)

// SegmentHandler segments an uploaded scan and records the inference.
func SegmentHandler(segmentService *segment.SegmentService, cfg *config.Config, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !allowMethods(w, r, http.MethodPost) {
			return
		}

		data, filename, err := readUpload(r, "image", cfg.MaxUploadSizeMB<<20)
		if err != nil {
			writeError(w, statusFor(err), segment.ErrorPrefix+err.Error())
			return
		}

		result, err := segmentService.Process(r.Context(), filename, data)
		if err != nil {
			logger.Error("%s%v", segment.ErrorPrefix, err)
			status := statusFor(err)
			if status == http.StatusInternalServerError {
				telemetry.CaptureError(err)
			}
			writeError(w, status, segment.ErrorPrefix+err.Error())
			return
		}
		writeJSON(w, http.StatusOK, result)
	}
}

// SegmentOverlayHandler serves the overlay PNG of ?id=.
func SegmentOverlayHandler(segmentService *segment.SegmentService, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !allowMethods(w, r, http.MethodGet) {
			return
		}
		id, err := strconv.ParseInt(r.URL.Query().Get("id"), 10, 64)
		if err != nil || id <= 0 {
			http.Error(w, "Invalid inference id", http.StatusBadRequest)
			return
		}

		data, err := segmentService.Overlay(r.Context(), id)
		if errors.Is(err, segment.ErrNotFound) {
			http.NotFound(w, r)
			return
		}
		if err != nil {
			logger.Error("Error loading overlay %d: %v", id, err)
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "image/png")
		w.Header().Set("Cache-Control", "max-age=86400")
		w.Write(data)
	}
}
