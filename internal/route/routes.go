package route

import (
	"net/http"
	"os"
	"path/filepath"

	"anima/internal/config"
	"anima/internal/handler"
	"anima/internal/logger"
	"anima/internal/middleware"
	"anima/internal/repository"
	"anima/internal/service/caption"
	"anima/internal/service/chat"
	"anima/internal/service/dashboard"
	"anima/internal/service/recommend"
	"anima/internal/service/segment"
	"anima/internal/service/websocket"
)

// Services are the handlers' dependencies.
type Services struct {
	Chat      *chat.ChatService
	Caption   *caption.CaptionService
	Recommend *recommend.RecommendService
	Segment   *segment.SegmentService
	Dashboard *dashboard.DashboardService
	Hub       *websocket.HubService

	Inferences repository.InferenceRepository
	Contacts   repository.ContactRepository

	// Auth is nil when no password is configured.
	Auth    *middleware.Authenticator
	Limiter *middleware.RateLimiter
}

// dynamicHTMLHandler serves /path as <static>/path.html if the file exists; otherwise 404.
func dynamicHTMLHandler(staticDir string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		path := r.URL.Path

		if path == "/" {
			path = "/index"
		}

		filePath := filepath.Join(staticDir, filepath.Clean("/"+path)+".html")

		if _, err := os.Stat(filePath); os.IsNotExist(err) {
			http.NotFound(w, r)
			return
		}

		http.ServeFile(w, r, filePath)
	}
}

// SetupRoutes registers pages, static files and API endpoints, and wraps the
// mux with panic recovery, the body limit and authentication.
func SetupRoutes(cfg *config.Config, logger *logger.Logger, s *Services) http.Handler {
	mux := http.NewServeMux()
	limited := func(h http.HandlerFunc) http.Handler { return s.Limiter.Limit(h) }

	// Static files
	mux.Handle("/static/", http.StripPrefix("/static/", http.FileServer(http.Dir(cfg.StaticDirectory))))

	// Discussion
	mux.Handle("/api/chat", limited(handler.ChatHandler(s.Chat, logger)))
	mux.HandleFunc("/api/chat/search", handler.ChatSearchHandler())

	// MedPali
	mux.Handle("/api/medpali/image", limited(handler.MedPaliImageHandler(s.Caption, cfg, logger)))
	mux.Handle("/api/medpali/analyze", limited(handler.MedPaliAnalyzeHandler(s.Caption, logger)))
	mux.HandleFunc("/api/medpali/conversation", handler.MedPaliConversationHandler(s.Caption))

	// Recommendation
	mux.HandleFunc("/api/recommend/template", handler.RecommendTemplateHandler(logger))
	mux.Handle("/api/recommend/csv", limited(handler.RecommendCSVHandler(s.Recommend, cfg, logger)))
	mux.Handle("/api/recommend/form", limited(handler.RecommendFormHandler(s.Recommend, logger)))

	// Detection
	mux.Handle("/api/segment", limited(handler.SegmentHandler(s.Segment, cfg, logger)))
	mux.HandleFunc("/api/segment/overlay", handler.SegmentOverlayHandler(s.Segment, logger))

	// Dashboard
	mux.HandleFunc("/api/dashboard", handler.DashboardHandler(s.Dashboard, logger))
	mux.HandleFunc("/api/dashboard/health", handler.DashboardHealthHandler(logger))
	mux.HandleFunc("/api/dashboard/chart.png", handler.DashboardChartHandler(s.Dashboard, logger))
	mux.HandleFunc("/api/dashboard/live", handler.DashboardLiveHandler(s.Hub, logger))

	// Contact
	mux.Handle("/api/contact", limited(handler.ContactHandler(s.Contacts, logger)))

	// Log endpoints
	for _, name := range []string{"info", "warning", "error"} {
		file := name + ".log"
		mux.HandleFunc("/logs/"+name, handler.ShowLogsHandler(logger, file))
		mux.HandleFunc("/logs/"+name+"/clear", handler.ClearLogsHandler(logger, file))
	}

	// Auth endpoints
	mux.HandleFunc("/auth/login", handler.LoginHandler(s.Auth, logger))
	mux.HandleFunc("/auth/logout", handler.LogoutHandler(s.Auth))
	mux.HandleFunc("/healthz", handler.HealthzHandler(s.Inferences))

	// Automatic HTML handler mapping for example: /dashboard -> <static>/dashboard.html
	mux.HandleFunc("/", dynamicHTMLHandler(cfg.StaticDirectory))

	// Apply middleware
	var h http.Handler = mux
	h = middleware.AuthMiddleware(s.Auth, h)
	h = middleware.MaxBytes((cfg.MaxUploadSizeMB+1)<<20, h)
	return middleware.Recover(logger, h)
}
