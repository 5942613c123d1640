// Package postgres stores inferences in PostgreSQL for deployments that
// share one dashboard across several service instances.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"anima/internal/model"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const schema = `
CREATE TABLE IF NOT EXISTS model_inference (
	id BIGSERIAL PRIMARY KEY,
	model_name TEXT,
	model_version TEXT,
	model_type TEXT,
	input_image BYTEA,
	input_size TEXT,
	output_segmentation BYTEA,
	inference_time DOUBLE PRECISION,
	timestamp TIMESTAMPTZ DEFAULT now(),
	device TEXT,
	system_load DOUBLE PRECISION,
	accuracy DOUBLE PRECISION,
	loss DOUBLE PRECISION
);
CREATE INDEX IF NOT EXISTS idx_model_inference_timestamp ON model_inference(timestamp);
`

// InferenceRepository implements repository.InferenceRepository on a pgx pool.
type InferenceRepository struct {
	pool *pgxpool.Pool
}

// Connect opens a pool, verifies it and migrates the schema.
func Connect(ctx context.Context, url string) (*InferenceRepository, error) {
	cfg, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("parse db url: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}

	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return &InferenceRepository{pool: pool}, nil
}

// Close releases the pool.
func (r *InferenceRepository) Close() {
	r.pool.Close()
}

func (r *InferenceRepository) Insert(ctx context.Context, inf *model.ModelInference) (int64, error) {
	if inf.Timestamp.IsZero() {
		inf.Timestamp = time.Now().UTC()
	}

	var id int64
	err := r.pool.QueryRow(ctx, `
		INSERT INTO model_inference (model_name, model_version, model_type, input_image, input_size,
			output_segmentation, inference_time, timestamp, device, system_load, accuracy, loss)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING id
	`, inf.ModelName, inf.ModelVersion, inf.ModelType, inf.InputImage, inf.InputSize,
		inf.OutputSegmentation, inf.InferenceTime, inf.Timestamp, inf.Device, inf.SystemLoad,
		inf.Accuracy, inf.Loss).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to insert inference: %w", err)
	}

	inf.ID = id
	return id, nil
}

func (r *InferenceRepository) GetByID(ctx context.Context, id int64) (*model.ModelInference, error) {
	var (
		inf  model.ModelInference
		load *float64
	)
	err := r.pool.QueryRow(ctx, `
		SELECT id, model_name, model_version, model_type, input_image, input_size,
			output_segmentation, inference_time, timestamp, device, system_load, accuracy, loss
		FROM model_inference WHERE id = $1
	`, id).Scan(&inf.ID, &inf.ModelName, &inf.ModelVersion, &inf.ModelType, &inf.InputImage, &inf.InputSize,
		&inf.OutputSegmentation, &inf.InferenceTime, &inf.Timestamp, &inf.Device, &load, &inf.Accuracy, &inf.Loss)

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get inference: %w", err)
	}
	if load != nil {
		inf.SystemLoad = *load
	}
	return &inf, nil
}

func (r *InferenceRepository) Count(ctx context.Context) (int, error) {
	var count int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM model_inference`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count inferences: %w", err)
	}
	return count, nil
}

func (r *InferenceRepository) AverageInferenceTime(ctx context.Context) (float64, error) {
	var avg *float64
	if err := r.pool.QueryRow(ctx, `SELECT AVG(inference_time) FROM model_inference`).Scan(&avg); err != nil {
		return 0, fmt.Errorf("failed to average inference time: %w", err)
	}
	if avg == nil {
		return 0, nil
	}
	return *avg, nil
}

func (r *InferenceRepository) Recent(ctx context.Context, limit int) ([]model.InferenceSummary, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, timestamp, model_name, inference_time, device
		FROM model_inference
		ORDER BY timestamp DESC, id DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent inferences: %w", err)
	}
	defer rows.Close()

	var recent []model.InferenceSummary
	for rows.Next() {
		var s model.InferenceSummary
		if err := rows.Scan(&s.ID, &s.Timestamp, &s.ModelName, &s.InferenceTime, &s.Device); err != nil {
			return nil, fmt.Errorf("failed to scan inference: %w", err)
		}
		recent = append(recent, s)
	}
	return recent, rows.Err()
}

func (r *InferenceRepository) Series(ctx context.Context) ([]model.InferencePoint, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT timestamp, inference_time FROM model_inference ORDER BY timestamp ASC, id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query inference series: %w", err)
	}
	defer rows.Close()

	var points []model.InferencePoint
	for rows.Next() {
		var p model.InferencePoint
		if err := rows.Scan(&p.Timestamp, &p.InferenceTime); err != nil {
			return nil, fmt.Errorf("failed to scan inference point: %w", err)
		}
		points = append(points, p)
	}
	return points, rows.Err()
}

func (r *InferenceRepository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}
