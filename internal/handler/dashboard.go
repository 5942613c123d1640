package handler

import (
	"errors"
	"net/http"

	"anima/internal/logger"
	"anima/internal/service/dashboard"
	hub "anima/internal/service/websocket"

	"github.com/gorilla/websocket"
)

// Upgrader upgrades HTTP connections to WebSocket; CheckOrigin allows all origins.
var Upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

type dashboardResponse struct {
	*dashboard.Summary
	RefreshInterval int `json:"refreshInterval"`
}

// DashboardHandler returns the model performance summary. ?refresh= selects
// the page's auto-refresh interval in seconds.
func DashboardHandler(dashboardService *dashboard.DashboardService, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !allowMethods(w, r, http.MethodGet) {
			return
		}
		interval, err := dashboard.RefreshInterval(r.URL.Query().Get("refresh"))
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}

		summary, err := dashboardService.Summary(r.Context())
		if err != nil {
			logger.Error("Error loading dashboard: %v", err)
			writeError(w, http.StatusInternalServerError, "Could not load dashboard data")
			return
		}
		writeJSON(w, http.StatusOK, dashboardResponse{Summary: summary, RefreshInterval: interval})
	}
}

// DashboardHealthHandler returns CPU, memory and uptime of the host.
func DashboardHealthHandler(logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !allowMethods(w, r, http.MethodGet) {
			return
		}
		health, err := dashboard.SystemHealth(r.Context())
		if err != nil {
			logger.Error("Error reading system health: %v", err)
			writeError(w, http.StatusInternalServerError, "Could not read system health")
			return
		}
		writeJSON(w, http.StatusOK, health)
	}
}

// DashboardChartHandler renders the inference time chart. With fewer than
// two inferences it answers 204 so the page shows its empty state.
func DashboardChartHandler(dashboardService *dashboard.DashboardService, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !allowMethods(w, r, http.MethodGet) {
			return
		}
		png, err := dashboardService.Chart(r.Context())
		if errors.Is(err, dashboard.ErrNotEnoughData) {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		if err != nil {
			logger.Error("Error rendering chart: %v", err)
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "image/png")
		w.Header().Set("Cache-Control", "no-cache")
		w.Write(png)
	}
}

// DashboardLiveHandler streams new inferences to a dashboard viewer.
func DashboardLiveHandler(hubService *hub.HubService, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		connection, err := Upgrader.Upgrade(w, r, nil)
		if err != nil {
			logger.Error("WebSocket upgrade error: %v", err)
			return
		}

		hubService.Register(connection)
		defer hubService.Unregister(connection)

		for {
			if _, _, err := connection.ReadMessage(); err != nil {
				if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					logger.Warning("Dashboard viewer disconnected with error: %v", err)
				}
				return
			}
		}
	}
}
