// Package service holds the errors and upload checks shared by the page services.
package service

import (
	"errors"
	"net/http"
	"path/filepath"
	"strings"
)

var (
	// ErrNoImage is returned when an image operation runs before an upload.
	ErrNoImage = errors.New("no image uploaded")
	// ErrEmptyPrompt is returned for a blank prompt or query.
	ErrEmptyPrompt = errors.New("empty prompt")
	// ErrMissingFields is returned when a required form field is blank.
	ErrMissingFields = errors.New("required fields missing")
	// ErrUnsupportedType is returned for uploads that are not JPEG or PNG.
	ErrUnsupportedType = errors.New("unsupported file type, expected jpg, jpeg or png")
	// ErrModelUnavailable is returned while a model could not be loaded.
	ErrModelUnavailable = errors.New("model not available")
)

var imageExtensions = map[string]bool{".jpg": true, ".jpeg": true, ".png": true}

// ImageMIME validates an uploaded image by extension and content and returns
// its media type.
func ImageMIME(filename string, data []byte) (string, error) {
	if !imageExtensions[strings.ToLower(filepath.Ext(filename))] {
		return "", ErrUnsupportedType
	}
	mime := http.DetectContentType(data)
	if mime != "image/jpeg" && mime != "image/png" {
		return "", ErrUnsupportedType
	}
	return mime, nil
}
