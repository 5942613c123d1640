package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"anima/internal/config"
	"anima/internal/logger"
	"anima/internal/service"
	"anima/internal/service/caption"
	"anima/internal/service/session"
)

const (
	msgPromptAnalyze = "Please enter a prompt before analyzing."
	msgPromptAsk     = "Please enter a prompt before asking."
	msgNoImage       = "Please upload an image first."
)

type analyzeRequest struct {
	Prompt   string `json:"prompt"`
	FollowUp bool   `json:"followUp"`
}

type conversationResponse struct {
	HasImage     bool               `json:"hasImage"`
	Conversation []caption.Exchange `json:"conversation"`
}

// MedPaliImageHandler stores the uploaded image for the session.
func MedPaliImageHandler(captionService *caption.CaptionService, cfg *config.Config, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !allowMethods(w, r, http.MethodPost) {
			return
		}
		sessionID := session.ID(w, r)

		data, filename, err := readUpload(r, "image", cfg.MaxUploadSizeMB<<20)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Choose an image to upload")
			return
		}
		if err := captionService.SetImage(sessionID, filename, data); err != nil {
			writeError(w, statusFor(err), err.Error())
			return
		}
		logger.Info("MedPali image %s stored for session %s", filename, sessionID)

		conv, hasImage := captionService.Conversation(sessionID)
		writeJSON(w, http.StatusOK, conversationResponse{HasImage: hasImage, Conversation: conv})
	}
}

// MedPaliAnalyzeHandler answers a prompt about the session's image.
func MedPaliAnalyzeHandler(captionService *caption.CaptionService, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !allowMethods(w, r, http.MethodPost) {
			return
		}
		sessionID := session.ID(w, r)

		var req analyzeRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid request body")
			return
		}

		_, err := captionService.Analyze(r.Context(), sessionID, req.Prompt)
		switch {
		case errors.Is(err, service.ErrEmptyPrompt):
			msg := msgPromptAnalyze
			if req.FollowUp {
				msg = msgPromptAsk
			}
			writeError(w, http.StatusBadRequest, msg)
			return
		case errors.Is(err, service.ErrNoImage):
			writeError(w, http.StatusBadRequest, msgNoImage)
			return
		case err != nil:
			writeError(w, statusFor(err), "Error during model prediction: "+err.Error())
			return
		}

		conv, hasImage := captionService.Conversation(sessionID)
		writeJSON(w, http.StatusOK, conversationResponse{HasImage: hasImage, Conversation: conv})
	}
}

// MedPaliConversationHandler returns the session's conversation.
func MedPaliConversationHandler(captionService *caption.CaptionService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !allowMethods(w, r, http.MethodGet) {
			return
		}
		conv, hasImage := captionService.Conversation(session.ID(w, r))
		if conv == nil {
			conv = []caption.Exchange{}
		}
		writeJSON(w, http.StatusOK, conversationResponse{HasImage: hasImage, Conversation: conv})
	}
}
