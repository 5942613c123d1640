package sqlite

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"anima/internal/model"
)

// ========================================
// Database Integration Tests
// ========================================

func newTestDB(t *testing.T) *DB {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "databases", "inference_data.db")
	db, err := New(dbPath)
	if err != nil {
		t.Fatalf("Failed to create database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func sampleInference(latency float64) *model.ModelInference {
	return &model.ModelInference{
		ModelName:          "davidle7/segformer",
		ModelVersion:       "1.0",
		ModelType:          "Segformer",
		InputImage:         []byte{0x89, 'P', 'N', 'G'},
		InputSize:          "(266, 266)",
		OutputSegmentation: []byte{0x93, 'N', 'U', 'M', 'P', 'Y'},
		InferenceTime:      latency,
		Device:             "cpu",
		SystemLoad:         0.5,
	}
}

func TestDatabase_CreatesDirectoryAndFile(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "nested", "test.db")

	db, err := New(dbPath)
	if err != nil {
		t.Fatalf("Failed to create database: %v", err)
	}
	defer db.Close()

	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		t.Error("Database file should exist")
	}
}

func TestDatabase_MigrationIsIdempotent(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")

	for i := 0; i < 2; i++ {
		db, err := New(dbPath)
		if err != nil {
			t.Fatalf("open #%d failed: %v", i, err)
		}
		db.Close()
	}
}

func TestInferenceRepository_InsertAddsExactlyOneRow(t *testing.T) {
	ctx := context.Background()
	repo := NewInferenceRepository(newTestDB(t))

	before, err := repo.Count(ctx)
	if err != nil {
		t.Fatalf("Count failed: %v", err)
	}

	inf := sampleInference(0.25)
	id, err := repo.Insert(ctx, inf)
	if err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	if id <= 0 || inf.ID != id {
		t.Errorf("expected positive id stored on record, got id=%d record=%d", id, inf.ID)
	}

	after, _ := repo.Count(ctx)
	if after != before+1 {
		t.Errorf("expected %d rows, got %d", before+1, after)
	}
}

func TestInferenceRepository_GetByID(t *testing.T) {
	ctx := context.Background()
	repo := NewInferenceRepository(newTestDB(t))

	inf := sampleInference(0.125)
	id, err := repo.Insert(ctx, inf)
	if err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	got, err := repo.GetByID(ctx, id)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if got == nil {
		t.Fatal("expected row, got nil")
	}
	if got.ModelName != "davidle7/segformer" || got.ModelType != "Segformer" || got.InputSize != "(266, 266)" {
		t.Errorf("unexpected row: %+v", got)
	}
	if string(got.InputImage) != string(inf.InputImage) || string(got.OutputSegmentation) != string(inf.OutputSegmentation) {
		t.Error("blobs did not round-trip")
	}
	if got.Accuracy != nil || got.Loss != nil {
		t.Error("placeholder accuracy/loss should be NULL")
	}
	if got.Timestamp.IsZero() {
		t.Error("timestamp should be populated")
	}

	missing, err := repo.GetByID(ctx, id+100)
	if err != nil || missing != nil {
		t.Errorf("expected nil, nil for missing row, got %v, %v", missing, err)
	}
}

func TestInferenceRepository_AverageAndEmpty(t *testing.T) {
	ctx := context.Background()
	repo := NewInferenceRepository(newTestDB(t))

	avg, err := repo.AverageInferenceTime(ctx)
	if err != nil {
		t.Fatalf("AverageInferenceTime on empty table failed: %v", err)
	}
	if avg != 0 {
		t.Errorf("expected 0 on empty table, got %f", avg)
	}

	for _, latency := range []float64{0.1, 0.2, 0.3} {
		if _, err := repo.Insert(ctx, sampleInference(latency)); err != nil {
			t.Fatalf("Insert failed: %v", err)
		}
	}

	avg, _ = repo.AverageInferenceTime(ctx)
	if avg < 0.1999 || avg > 0.2001 {
		t.Errorf("expected average 0.2, got %f", avg)
	}
}

func TestInferenceRepository_RecentAndSeriesOrdering(t *testing.T) {
	ctx := context.Background()
	repo := NewInferenceRepository(newTestDB(t))

	base := time.Date(2025, 6, 15, 14, 30, 0, 0, time.UTC)
	for i := 0; i < 12; i++ {
		inf := sampleInference(float64(i))
		inf.Timestamp = base.Add(time.Duration(i) * time.Minute)
		if _, err := repo.Insert(ctx, inf); err != nil {
			t.Fatalf("Insert failed: %v", err)
		}
	}

	recent, err := repo.Recent(ctx, 10)
	if err != nil {
		t.Fatalf("Recent failed: %v", err)
	}
	if len(recent) != 10 {
		t.Fatalf("expected 10 recent rows, got %d", len(recent))
	}
	if recent[0].InferenceTime != 11 || recent[9].InferenceTime != 2 {
		t.Errorf("expected newest first, got first=%f last=%f", recent[0].InferenceTime, recent[9].InferenceTime)
	}
	if !recent[0].Timestamp.Equal(base.Add(11 * time.Minute)) {
		t.Errorf("unexpected timestamp %v", recent[0].Timestamp)
	}

	series, err := repo.Series(ctx)
	if err != nil {
		t.Fatalf("Series failed: %v", err)
	}
	if len(series) != 12 || series[0].InferenceTime != 0 || series[11].InferenceTime != 11 {
		t.Errorf("expected chronological series of 12, got %+v", series)
	}
}

func TestInferenceRepository_ConcurrentInserts(t *testing.T) {
	ctx := context.Background()
	repo := NewInferenceRepository(newTestDB(t))

	var wg sync.WaitGroup
	errs := make(chan error, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			if _, err := repo.Insert(ctx, sampleInference(float64(idx))); err != nil {
				errs <- err
			}
		}(i)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Errorf("concurrent insert failed: %v", err)
	}

	count, _ := repo.Count(ctx)
	if count != 10 {
		t.Errorf("expected 10 rows, got %d", count)
	}
}

func TestContactRepository_Insert(t *testing.T) {
	ctx := context.Background()
	repo := NewContactRepository(newTestDB(t))

	msg := &model.ContactMessage{
		Name:    "Ada",
		Email:   "ada@example.com",
		Subject: "Question",
		Message: "Hello",
		Body:    "Name: Ada\nEmail: ada@example.com\n\nMessage:\nHello",
	}
	id, err := repo.Insert(ctx, msg)
	if err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	if id <= 0 {
		t.Errorf("expected positive id, got %d", id)
	}

	count, _ := repo.Count(ctx)
	if count != 1 {
		t.Errorf("expected 1 message, got %d", count)
	}
}
