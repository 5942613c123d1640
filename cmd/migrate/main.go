package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"anima/internal/config"
	"anima/internal/logger"
	"anima/internal/repository"
	"anima/internal/repository/postgres"
	"anima/internal/repository/sqlite"
	"anima/internal/service/ai"
	"anima/internal/service/segment"
	"anima/internal/service/storage"
)

func main() {
	imagesDir := flag.String("images", "static/images", "Directory containing scans to segment")
	dbPath := flag.String("db", "", "SQLite database path (defaults to DATABASE_PATH)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if *dbPath != "" {
		cfg.DatabasePath = *dbPath
	}
	logg := logger.NewLogger(cfg)
	defer logg.Close()

	ctx := context.Background()

	var repo repository.InferenceRepository
	if cfg.DatabaseURL != "" {
		pg, err := postgres.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("Failed to connect to postgres: %v", err)
		}
		defer pg.Close()
		repo = pg
		fmt.Printf("Importing scans from %s into postgres\n", *imagesDir)
	} else {
		db, err := sqlite.New(cfg.DatabasePath)
		if err != nil {
			log.Fatalf("Failed to open database: %v", err)
		}
		defer db.Close()
		repo = sqlite.NewInferenceRepository(db)
		fmt.Printf("Importing scans from %s into database %s\n", *imagesDir, cfg.DatabasePath)
	}

	store, err := storage.New(ctx, cfg, logg)
	if err != nil {
		log.Fatalf("Failed to open artifact store: %v", err)
	}

	segmenter := ai.NewSegmenterService(cfg, logg)
	defer segmenter.Close()

	pipeline := segment.NewSegmentService(segmenter, repo, store, segment.Publishers{}, segment.Model{
		Name:      cfg.SegmentationModelName,
		Version:   ai.ModelVersion,
		Type:      ai.ModelType,
		InputSize: ai.InputSize(),
		Device:    cfg.Device,
	}, logg)

	// Scan images directory
	files, err := os.ReadDir(*imagesDir)
	if err != nil {
		log.Fatalf("Failed to read images directory: %v", err)
	}

	imported, skipped := 0, 0
	var total float64
	for _, file := range files {
		ext := strings.ToLower(filepath.Ext(file.Name()))
		if file.IsDir() || (ext != ".jpg" && ext != ".jpeg" && ext != ".png") {
			continue
		}

		data, err := os.ReadFile(filepath.Join(*imagesDir, file.Name()))
		if err != nil {
			log.Printf("Skipping %s: %v", file.Name(), err)
			skipped++
			continue
		}

		result, err := pipeline.Process(ctx, file.Name(), data)
		if err != nil {
			log.Printf("Skipping %s: %v", file.Name(), err)
			skipped++
			continue
		}
		imported++
		total += result.InferenceTime
		fmt.Printf("  %s -> inference %d (%.4f s)\n", file.Name(), result.InferenceID, result.InferenceTime)
	}

	if imported == 0 && skipped == 0 {
		fmt.Println("No scans found to import")
		return
	}

	fmt.Printf("Imported %d scans\n", imported)
	if skipped > 0 {
		fmt.Printf("Skipped %d files (unsupported or failed)\n", skipped)
	}

	count, err := repo.Count(ctx)
	if err == nil {
		fmt.Printf("\nDatabase statistics:\n")
		fmt.Printf("   Total inferences: %d\n", count)
		if imported > 0 {
			fmt.Printf("   Mean inference time this run: %.4f s\n", total/float64(imported))
		}
	}
}
