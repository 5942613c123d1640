package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"anima/internal/config"
	"anima/internal/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLogger(t *testing.T) *logger.Logger {
	t.Helper()
	cfg := config.Default()
	cfg.LogDirectory = t.TempDir()
	log := logger.NewLogger(cfg)
	t.Cleanup(func() { log.Close() })
	return log
}

func TestLocalStore_PutGet(t *testing.T) {
	dir := t.TempDir()
	s := NewLocalStore(dir, newTestLogger(t))
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, OverlayKey(7), []byte("png"), "image/png"))

	_, err := os.Stat(filepath.Join(dir, "overlays", "7.png"))
	require.NoError(t, err)

	data, err := s.Get(ctx, "overlays/7.png")
	require.NoError(t, err)
	assert.Equal(t, []byte("png"), data)

	_, err = s.Get(ctx, OverlayKey(8))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLocalStore_RejectsEscapingKeys(t *testing.T) {
	s := NewLocalStore(t.TempDir(), newTestLogger(t))

	for _, key := range []string{"../x", "/etc/passwd", "", "a/../../b"} {
		assert.Error(t, s.Put(context.Background(), key, []byte("x"), ""), key)
	}
}

func TestNew_DefaultsToLocal(t *testing.T) {
	cfg := config.Default()
	cfg.ArtifactDirectory = t.TempDir()

	store, err := New(context.Background(), cfg, newTestLogger(t))
	require.NoError(t, err)
	assert.IsType(t, &LocalStore{}, store)
}
