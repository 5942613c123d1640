package handler

import (
	"encoding/json"
	"net/http"

	"anima/internal/logger"
	"anima/internal/service/chat"
	"anima/internal/service/session"
)

type chatRequest struct {
	Query string `json:"query"`
}

// ChatHandler serves GET (conversation so far) and POST (ask) on /api/chat.
func ChatHandler(chatService *chat.ChatService, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !allowMethods(w, r, http.MethodGet, http.MethodPost) {
			return
		}
		sessionID := session.ID(w, r)

		if r.Method == http.MethodGet {
			writeJSON(w, http.StatusOK, chatService.History(sessionID))
			return
		}

		var req chatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid request body")
			return
		}

		reply, err := chatService.Ask(r.Context(), sessionID, req.Query)
		if err != nil {
			writeError(w, statusFor(err), err.Error())
			return
		}
		writeJSON(w, http.StatusOK, reply)
	}
}

// ChatSearchHandler returns the Google search link for ?q=.
func ChatSearchHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !allowMethods(w, r, http.MethodGet) {
			return
		}
		query := r.URL.Query().Get("q")
		if query == "" {
			writeError(w, http.StatusBadRequest, "Enter a query to search on Google")
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"link": chat.SearchLink(query)})
	}
}
