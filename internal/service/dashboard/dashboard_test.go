package dashboard

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"anima/internal/config"
	"anima/internal/logger"
	"anima/internal/model"
	"anima/internal/service/websocket"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRepo struct {
	count  int
	calls  int
	points []model.InferencePoint
	err    error
}

func (f *fakeRepo) Insert(context.Context, *model.ModelInference) (int64, error) { return 0, nil }
func (f *fakeRepo) GetByID(context.Context, int64) (*model.ModelInference, error) {
	return nil, nil
}
func (f *fakeRepo) Count(context.Context) (int, error) {
	f.calls++
	return f.count, f.err
}
func (f *fakeRepo) AverageInferenceTime(context.Context) (float64, error) { return 0.25, nil }
func (f *fakeRepo) Recent(_ context.Context, limit int) ([]model.InferenceSummary, error) {
	return []model.InferenceSummary{{ID: 1, ModelName: "davidle7/segformer", Device: "cpu"}}, nil
}
func (f *fakeRepo) Series(context.Context) ([]model.InferencePoint, error) { return f.points, nil }
func (f *fakeRepo) Ping(context.Context) error                             { return nil }

func newTestService(t *testing.T, repo *fakeRepo, cache Cache) *DashboardService {
	t.Helper()
	cfg := config.Default()
	cfg.LogDirectory = t.TempDir()
	log := logger.NewLogger(cfg)
	t.Cleanup(func() { log.Close() })
	return NewDashboardService(repo, cache, time.Minute, log)
}

func TestSummary_CachedUntilExpiry(t *testing.T) {
	repo := &fakeRepo{count: 3}
	cache := NewMemoryCache()
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	cache.now = func() time.Time { return now }
	s := newTestService(t, repo, cache)
	ctx := context.Background()

	first, err := s.Summary(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, first.TotalInferences)
	assert.Equal(t, 0.25, first.AverageInferenceTime)
	assert.Len(t, first.Recent, 1)
	assert.NotNil(t, first.Series)

	repo.count = 4
	second, err := s.Summary(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, second.TotalInferences, "served from cache")
	assert.Equal(t, 1, repo.calls)

	now = now.Add(61 * time.Second)
	third, err := s.Summary(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, third.TotalInferences)
	assert.Equal(t, 2, repo.calls)
}

func TestSummary_InvalidatedByInference(t *testing.T) {
	repo := &fakeRepo{count: 1}
	s := newTestService(t, repo, NewMemoryCache())
	ctx := context.Background()

	_, err := s.Summary(ctx)
	require.NoError(t, err)

	repo.count = 2
	s.Publish(websocket.Event{Type: "inference", InferenceID: 2})

	got, err := s.Summary(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, got.TotalInferences)
}

func TestSummary_RepositoryError(t *testing.T) {
	boom := errors.New("database is locked")
	s := newTestService(t, &fakeRepo{err: boom}, NewMemoryCache())

	_, err := s.Summary(context.Background())
	assert.ErrorIs(t, err, boom)
}

func TestRenderChart(t *testing.T) {
	base := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	_, err := RenderChart(nil)
	assert.ErrorIs(t, err, ErrNotEnoughData)
	_, err = RenderChart([]model.InferencePoint{{Timestamp: base, InferenceTime: 0.2}})
	assert.ErrorIs(t, err, ErrNotEnoughData)

	png, err := RenderChart([]model.InferencePoint{
		{Timestamp: base, InferenceTime: 0.2},
		{Timestamp: base.Add(time.Minute), InferenceTime: 0.3},
		{Timestamp: base.Add(2 * time.Minute), InferenceTime: 0.25},
	})
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(png, []byte("\x89PNG")))

	flat, err := RenderChart([]model.InferencePoint{
		{Timestamp: base, InferenceTime: 0.2},
		{Timestamp: base.Add(time.Minute), InferenceTime: 0.2},
	})
	require.NoError(t, err)
	assert.NotEmpty(t, flat)
}

func TestRefreshInterval(t *testing.T) {
	got, err := RefreshInterval("")
	require.NoError(t, err)
	assert.Equal(t, DefaultRefresh, got)

	for _, ok := range []string{"5", "60", "300"} {
		_, err := RefreshInterval(ok)
		assert.NoError(t, err, ok)
	}
	for _, bad := range []string{"0", "4", "7", "305", "abc"} {
		_, err := RefreshInterval(bad)
		assert.Error(t, err, bad)
	}
}

func TestMemoryCache_Delete(t *testing.T) {
	c := NewMemoryCache()
	ctx := context.Background()
	require.NoError(t, c.Set(ctx, "k", []byte("v"), time.Minute))

	v, ok, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []byte("v"), v)

	require.NoError(t, c.Delete(ctx, "k"))
	_, ok, _ = c.Get(ctx, "k")
	assert.False(t, ok)
}
