package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadUsesDefaults(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("PORT", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, "davidle7/segformer", cfg.SegmentationModelName)
	assert.Equal(t, filepath.Join("databases", "inference_data.db"), cfg.DatabasePath)
	assert.Equal(t, 60, cfg.DashboardCacheTTL)
	assert.False(t, cfg.AuthEnabled())
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yamlData := "port: 9090\ndevice: cuda\nchat_model_id: from-file\n"
	require.NoError(t, os.WriteFile(path, []byte(yamlData), 0644))

	t.Setenv("CONFIG_FILE", path)
	t.Setenv("PORT", "9191")
	t.Setenv("DEVICE", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9191, cfg.Port, "env wins over file")
	assert.Equal(t, "cuda", cfg.Device, "file wins over default")
	assert.Equal(t, "from-file", cfg.ChatModelID)
}

func TestLoadRejectsBadFile(t *testing.T) {
	t.Setenv("CONFIG_FILE", filepath.Join(t.TempDir(), "missing.yaml"))

	_, err := Load()
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		ok     bool
	}{
		{"defaults", func(c *Config) {}, true},
		{"bad port", func(c *Config) { c.Port = 0 }, false},
		{"bad device", func(c *Config) { c.Device = "mps" }, false},
		{"bad chat backend", func(c *Config) { c.ChatBackend = "grpc" }, false},
		{"local recommend", func(c *Config) { c.RecommendBackend = "local" }, true},
		{"zero upload size", func(c *Config) { c.MaxUploadSizeMB = 0 }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestGetEnvAsInt_InvalidFallsBack(t *testing.T) {
	t.Setenv("ANIMA_TEST_INT", "12abc")
	assert.Equal(t, 7, getEnvAsInt("ANIMA_TEST_INT", 7))
	t.Setenv("ANIMA_TEST_INT", "42")
	assert.Equal(t, 42, getEnvAsInt("ANIMA_TEST_INT", 7))
}
