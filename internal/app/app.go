package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"anima/internal/config"
	"anima/internal/logger"
	"anima/internal/middleware"
	"anima/internal/repository"
	"anima/internal/repository/postgres"
	"anima/internal/repository/sqlite"
	"anima/internal/route"
	"anima/internal/service/ai"
	"anima/internal/service/caption"
	"anima/internal/service/chat"
	"anima/internal/service/dashboard"
	"anima/internal/service/recommend"
	"anima/internal/service/segment"
	"anima/internal/service/storage"
	"anima/internal/service/websocket"
	"anima/internal/telemetry"
	"anima/internal/textgen"
)

// sessionSweepInterval is how often idle chat and image sessions are dropped.
const sessionSweepInterval = 10 * time.Minute

// App owns every long-lived resource of the server.
type App struct {
	config    *config.Config
	logger    *logger.Logger
	db        *sqlite.DB
	postgres  *postgres.InferenceRepository
	segmenter *ai.SegmenterService
	hub       *websocket.HubService
	services  *route.Services
	flush     func()
	closers   []func() error
}

// NewApp loads the configuration and wires storage, models and services.
func NewApp() (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	log := logger.NewLogger(cfg)

	flush, err := telemetry.Init(cfg, log)
	if err != nil {
		log.Warning("Error reporting disabled: %v", err)
	}

	a := &App{config: cfg, logger: log, flush: flush}
	if err := a.wire(context.Background()); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) wire(ctx context.Context) error {
	cfg, log := a.config, a.logger

	db, err := sqlite.New(cfg.DatabasePath)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	a.db = db

	var inferences repository.InferenceRepository = sqlite.NewInferenceRepository(db)
	if cfg.DatabaseURL != "" {
		pg, err := postgres.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("connect postgres: %w", err)
		}
		a.postgres = pg
		inferences = pg
		log.Info("Inferences are stored in PostgreSQL")
	}

	store, err := storage.New(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("open artifact store: %w", err)
	}

	var cache dashboard.Cache = dashboard.NewMemoryCache()
	if cfg.RedisAddr != "" {
		redisCache, err := dashboard.NewRedisCache(ctx, cfg.RedisAddr, cfg.RedisPassword)
		if err != nil {
			log.Warning("Redis unavailable, caching dashboard in memory: %v", err)
		} else {
			cache = redisCache
			a.closers = append(a.closers, redisCache.Close)
		}
	}

	a.segmenter = ai.NewSegmenterService(cfg, log)
	a.closers = append(a.closers, a.segmenter.Close)
	a.hub = websocket.NewHubService(log)

	chatGen := textgen.New(cfg, textgen.Backend{
		Kind: cfg.ChatBackend, ModelID: cfg.ChatModelID, ModelPath: cfg.ChatModelPath, TokenizerPath: cfg.ChatTokenizerPath,
	}, log)
	recommendGen := textgen.New(cfg, textgen.Backend{
		Kind: cfg.RecommendBackend, ModelID: cfg.RecommendModelID, ModelPath: cfg.RecommendModelPath, TokenizerPath: cfg.RecommendTokenizerPath,
	}, log)
	for _, gen := range []textgen.Generator{chatGen, recommendGen} {
		if c, ok := gen.(*textgen.ONNXGenerator); ok {
			a.closers = append(a.closers, c.Close)
		}
	}
	captionGen := textgen.NewRemoteGenerator(cfg.RemoteBaseURL, cfg.RemoteAPIKey, cfg.CaptionModelID, cfg.RemoteTimeout())

	dashboardService := dashboard.NewDashboardService(inferences, cache, cfg.DashboardTTL(), log)
	segmentService := segment.NewSegmentService(a.segmenter, inferences, store,
		segment.Publishers{a.hub, dashboardService},
		segment.Model{
			Name:      cfg.SegmentationModelName,
			Version:   ai.ModelVersion,
			Type:      ai.ModelType,
			InputSize: ai.InputSize(),
			Device:    cfg.Device,
		}, log)

	var auth *middleware.Authenticator
	if cfg.AuthEnabled() {
		auth, err = middleware.NewAuthenticator(cfg.Password)
		if err != nil {
			return fmt.Errorf("hash password: %w", err)
		}
	}

	a.services = &route.Services{
		Chat:       chat.NewChatService(chatGen, log),
		Caption:    caption.NewCaptionService(captionGen, log),
		Recommend:  recommend.NewRecommendService(recommendGen, log),
		Segment:    segmentService,
		Dashboard:  dashboardService,
		Hub:        a.hub,
		Inferences: inferences,
		Contacts:   sqlite.NewContactRepository(db),
		Auth:       auth,
		Limiter:    middleware.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst),
	}
	return nil
}

// Run serves HTTP until SIGINT or SIGTERM, then shuts down gracefully.
func (a *App) Run() error {
	defer a.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Start background services
	go a.hub.Run()
	defer a.hub.Stop()
	go a.services.Chat.Sessions().Run(sessionSweepInterval, ctx.Done())
	go a.services.Caption.Sessions().Run(sessionSweepInterval, ctx.Done())

	// Setup routes
	router := route.SetupRoutes(a.config, a.logger, a.services)
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.config.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	a.logger.Info("ANIMA server listening on http://localhost:%d", a.config.Port)
	a.logger.Info("Segmentation model: %s on %s", a.config.SegmentationModelName, a.config.Device)
	a.logger.Info("Chat model: %s (%s), recommendation model: %s (%s)",
		a.config.ChatModelID, a.config.ChatBackend, a.config.RecommendModelID, a.config.RecommendBackend)
	if !a.config.AuthEnabled() {
		a.logger.Warning("No PASSWORD set, pages are served without login")
	}

	errCh := make(chan error, 1)
	go func() { errCh <- server.ListenAndServe() }()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	a.logger.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// Close releases models, connections and log files. It is safe to call twice.
func (a *App) Close() {
	for _, c := range a.closers {
		if err := c(); err != nil {
			a.logger.Warning("Error during shutdown: %v", err)
		}
	}
	a.closers = nil
	if a.postgres != nil {
		a.postgres.Close()
		a.postgres = nil
	}
	if a.db != nil {
		a.db.Close()
		a.db = nil
	}
	if a.flush != nil {
		a.flush()
		a.flush = nil
	}
	if a.logger != nil {
		a.logger.Close()
		a.logger = nil
	}
}
