// Package dashboard assembles the model performance and system health views.
package dashboard

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"anima/internal/logger"
	"anima/internal/model"
	"anima/internal/repository"
	"anima/internal/service/websocket"
)

const (
	// RecentLimit is how many inferences the recent table lists.
	RecentLimit = 10

	// Refresh interval bounds for the auto-refreshing page, in seconds.
	MinRefresh     = 5
	MaxRefresh     = 300
	RefreshStep    = 5
	DefaultRefresh = 60

	summaryKey = "dashboard:summary"
)

// Summary is the model performance part of the dashboard.
type Summary struct {
	TotalInferences      int                      `json:"totalInferences"`
	AverageInferenceTime float64                  `json:"averageInferenceTime"`
	Recent               []model.InferenceSummary `json:"recent"`
	Series               []model.InferencePoint   `json:"series"`
	GeneratedAt          time.Time                `json:"generatedAt"`
}

// DashboardService reads inference statistics through a short-lived cache.
type DashboardService struct {
	repo   repository.InferenceRepository
	cache  Cache
	ttl    time.Duration
	logger *logger.Logger
}

// NewDashboardService creates the service; ttl bounds summary staleness.
func NewDashboardService(repo repository.InferenceRepository, cache Cache, ttl time.Duration, logger *logger.Logger) *DashboardService {
	return &DashboardService{repo: repo, cache: cache, ttl: ttl, logger: logger}
}

// Summary returns the cached summary or computes and caches a fresh one.
// Cache failures are logged and fall through to the database.
func (s *DashboardService) Summary(ctx context.Context) (*Summary, error) {
	if raw, ok, err := s.cache.Get(ctx, summaryKey); err != nil {
		s.logger.Warning("Dashboard cache read failed: %v", err)
	} else if ok {
		var cached Summary
		if err := json.Unmarshal(raw, &cached); err == nil {
			return &cached, nil
		}
	}

	summary, err := s.load(ctx)
	if err != nil {
		return nil, err
	}

	if raw, err := json.Marshal(summary); err == nil {
		if err := s.cache.Set(ctx, summaryKey, raw, s.ttl); err != nil {
			s.logger.Warning("Dashboard cache write failed: %v", err)
		}
	}
	return summary, nil
}

func (s *DashboardService) load(ctx context.Context) (*Summary, error) {
	total, err := s.repo.Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("count inferences: %w", err)
	}
	avg, err := s.repo.AverageInferenceTime(ctx)
	if err != nil {
		return nil, fmt.Errorf("average inference time: %w", err)
	}
	recent, err := s.repo.Recent(ctx, RecentLimit)
	if err != nil {
		return nil, fmt.Errorf("recent inferences: %w", err)
	}
	series, err := s.repo.Series(ctx)
	if err != nil {
		return nil, fmt.Errorf("inference series: %w", err)
	}
	if recent == nil {
		recent = []model.InferenceSummary{}
	}
	if series == nil {
		series = []model.InferencePoint{}
	}

	return &Summary{
		TotalInferences:      total,
		AverageInferenceTime: avg,
		Recent:               recent,
		Series:               series,
		GeneratedAt:          time.Now().UTC(),
	}, nil
}

// Chart renders the inference time chart from the current summary.
func (s *DashboardService) Chart(ctx context.Context) ([]byte, error) {
	summary, err := s.Summary(ctx)
	if err != nil {
		return nil, err
	}
	return RenderChart(summary.Series)
}

// Publish drops the cached summary when a new inference is recorded.
func (s *DashboardService) Publish(event websocket.Event) {
	if err := s.cache.Delete(context.Background(), summaryKey); err != nil {
		s.logger.Warning("Could not invalidate dashboard cache after inference %d: %v", event.InferenceID, err)
	}
}

// RefreshInterval parses the auto-refresh interval in seconds. Empty input
// yields the default.
func RefreshInterval(raw string) (int, error) {
	if raw == "" {
		return DefaultRefresh, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("refresh interval must be a number of seconds")
	}
	if n < MinRefresh || n > MaxRefresh || n%RefreshStep != 0 {
		return 0, fmt.Errorf("refresh interval must be between %d and %d seconds in steps of %d", MinRefresh, MaxRefresh, RefreshStep)
	}
	return n, nil
}
