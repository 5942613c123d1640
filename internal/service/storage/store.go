// Package storage keeps rendered segmentation overlays outside the database.
package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"anima/internal/config"
	"anima/internal/logger"
)

// ErrNotFound is returned when no artifact exists under a key.
var ErrNotFound = errors.New("artifact not found")

// ArtifactStore saves and loads binary artifacts by key.
type ArtifactStore interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
	Get(ctx context.Context, key string) ([]byte, error)
}

// OverlayKey names the overlay of an inference.
func OverlayKey(inferenceID int64) string {
	return fmt.Sprintf("overlays/%d.png", inferenceID)
}

// New returns the MinIO store when an endpoint is configured, otherwise a
// store on the local filesystem.
func New(ctx context.Context, config *config.Config, logger *logger.Logger) (ArtifactStore, error) {
	if config.MinioEndpoint != "" {
		return NewMinioStore(ctx, config, logger)
	}
	return NewLocalStore(config.ArtifactDirectory, logger), nil
}

// LocalStore writes artifacts below a directory.
type LocalStore struct {
	dir    string
	mu     sync.RWMutex
	logger *logger.Logger
}

// NewLocalStore creates a store rooted at dir.
func NewLocalStore(dir string, logger *logger.Logger) *LocalStore {
	return &LocalStore{dir: dir, logger: logger}
}

func (s *LocalStore) path(key string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(key))
	if clean == "." || filepath.IsAbs(clean) || strings.HasPrefix(clean, "..") {
		return "", fmt.Errorf("invalid artifact key %q", key)
	}
	return filepath.Join(s.dir, clean), nil
}

// Put writes data under key, creating directories as needed.
func (s *LocalStore) Put(_ context.Context, key string, data []byte, _ string) error {
	fullpath, err := s.path(key)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(fullpath), 0755); err != nil {
		s.logger.Error("Error creating directory: %v", err)
		return err
	}
	if err := os.WriteFile(fullpath, data, 0644); err != nil {
		s.logger.Error("Error saving artifact %s: %v", key, err)
		return err
	}
	s.logger.Info("Saved artifact %s (%d bytes)", key, len(data))
	return nil
}

// Get reads the artifact stored under key.
func (s *LocalStore) Get(_ context.Context, key string) ([]byte, error) {
	fullpath, err := s.path(key)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	data, err := os.ReadFile(fullpath)
	if os.IsNotExist(err) {
		return nil, ErrNotFound
	}
	return data, err
}
