package logger

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"anima/internal/config"
)

func newTestLogger(t *testing.T) *Logger {
	t.Helper()
	l := NewLogger(&config.Config{LogDirectory: t.TempDir()})
	t.Cleanup(func() { l.Close() })
	return l
}

func TestLogger_WritesPerLevelFiles(t *testing.T) {
	l := newTestLogger(t)

	l.Info("segmentation took %.4f seconds", 0.1234)
	l.Warning("model %s missing", "segformer.onnx")
	l.Error("insert failed: %v", os.ErrClosed)

	checks := map[string]string{
		InfoFile:    "segmentation took 0.1234 seconds",
		WarningFile: "model segformer.onnx missing",
		ErrorFile:   "insert failed",
	}
	for file, want := range checks {
		data, err := os.ReadFile(filepath.Join(l.Dir(), file))
		if err != nil {
			t.Fatalf("read %s: %v", file, err)
		}
		if !strings.Contains(string(data), want) {
			t.Errorf("%s = %q, expected to contain %q", file, data, want)
		}
	}
}

func TestLogger_CleanLogs(t *testing.T) {
	l := newTestLogger(t)
	l.Info("first line")

	if err := l.CleanLogs(InfoFile); err != nil {
		t.Fatalf("CleanLogs failed: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(l.Dir(), InfoFile))
	if err != nil {
		t.Fatalf("read info log: %v", err)
	}
	if len(data) != 0 {
		t.Errorf("expected empty info log, got %q", data)
	}

	l.Info("after clean")
	data, _ = os.ReadFile(filepath.Join(l.Dir(), InfoFile))
	if !strings.Contains(string(data), "after clean") {
		t.Errorf("expected new entries after clean, got %q", data)
	}
	if strings.Contains(string(data), "first line") {
		t.Errorf("expected cleared entries to stay out of the live log, got %q", data)
	}

	backups, _ := filepath.Glob(filepath.Join(l.Dir(), "info-*"))
	if len(backups) == 0 {
		t.Error("expected the cleared log to be rotated through the writer")
	}
}

func TestLogger_CleanLogsRejectsUnknownFile(t *testing.T) {
	l := newTestLogger(t)

	if err := l.CleanLogs("../config.yaml"); err == nil {
		t.Error("expected error for unknown log file")
	}
}
