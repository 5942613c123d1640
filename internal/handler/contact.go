package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"anima/internal/logger"
	"anima/internal/model"
	"anima/internal/repository"
	"anima/internal/telemetry"
)

const (
	msgContactSent   = "Your message has been sent successfully!"
	msgContactFailed = "There was a problem sending your message. Please try again later."
)

type contactRequest struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Subject string `json:"subject"`
	Message string `json:"message"`
}

// ContactBody formats a contact message the way it is delivered.
func ContactBody(name, email, message string) string {
	return fmt.Sprintf("Name: %s\nEmail: %s\n\nMessage:\n%s", name, email, message)
}

// ContactHandler records a message from the contact form.
func ContactHandler(contactRepo repository.ContactRepository, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !allowMethods(w, r, http.MethodPost) {
			return
		}

		var req contactRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid request body")
			return
		}
		if strings.TrimSpace(req.Message) == "" || strings.TrimSpace(req.Email) == "" {
			writeError(w, http.StatusBadRequest, "Please enter your email and a message.")
			return
		}

		msg := &model.ContactMessage{
			Name:    req.Name,
			Email:   req.Email,
			Subject: req.Subject,
			Message: req.Message,
			Body:    ContactBody(req.Name, req.Email, req.Message),
		}
		if _, err := contactRepo.Insert(r.Context(), msg); err != nil {
			logger.Error("Error saving contact message: %v", err)
			telemetry.CaptureError(err)
			writeError(w, http.StatusInternalServerError, msgContactFailed)
			return
		}

		logger.Info("Contact message from %s saved", req.Email)
		writeJSON(w, http.StatusOK, map[string]string{"message": msgContactSent})
	}
}
