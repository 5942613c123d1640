package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"anima/internal/service"
)

// errBadUpload marks a request without a readable multipart file.
var errBadUpload = errors.New("invalid upload")

// errorResponse is the body of every failed API call.
type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

// statusFor maps service errors to HTTP statuses.
func statusFor(err error) int {
	var tooLarge *http.MaxBytesError
	switch {
	case errors.As(err, &tooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, errBadUpload),
		errors.Is(err, service.ErrEmptyPrompt),
		errors.Is(err, service.ErrNoImage),
		errors.Is(err, service.ErrMissingFields):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrUnsupportedType):
		return http.StatusUnsupportedMediaType
	case errors.Is(err, service.ErrModelUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func allowMethods(w http.ResponseWriter, r *http.Request, methods ...string) bool {
	for _, m := range methods {
		if r.Method == m {
			return true
		}
	}
	http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	return false
}

// readUpload returns the named multipart file and its client-side name.
// Malformed requests and a missing field yield errBadUpload.
func readUpload(r *http.Request, field string, maxMemory int64) ([]byte, string, error) {
	if err := r.ParseMultipartForm(maxMemory); err != nil {
		return nil, "", uploadError(err)
	}
	file, header, err := r.FormFile(field)
	if err != nil {
		return nil, "", uploadError(err)
	}
	defer file.Close()
	data, err := io.ReadAll(file)
	if err != nil {
		return nil, "", err
	}
	return data, header.Filename, nil
}

func uploadError(err error) error {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return err
	}
	return fmt.Errorf("%w: %v", errBadUpload, err)
}
