package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"anima/internal/model"
)

// timestampLayout matches CURRENT_TIMESTAMP with millisecond precision so
// rows written by the service and by the column default sort together.
const timestampLayout = "2006-01-02 15:04:05.000"

// InferenceRepository implements repository.InferenceRepository for SQLite.
type InferenceRepository struct {
	db *DB
}

// NewInferenceRepository creates a new SQLite inference repository.
func NewInferenceRepository(db *DB) *InferenceRepository {
	return &InferenceRepository{db: db}
}

// Insert appends one inference row and returns its id.
func (r *InferenceRepository) Insert(ctx context.Context, inf *model.ModelInference) (int64, error) {
	r.db.Lock()
	defer r.db.Unlock()

	if inf.Timestamp.IsZero() {
		inf.Timestamp = time.Now().UTC()
	}

	result, err := r.db.Conn().ExecContext(ctx, `
		INSERT INTO model_inference (model_name, model_version, model_type, input_image, input_size,
			output_segmentation, inference_time, timestamp, device, system_load, accuracy, loss)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, inf.ModelName, inf.ModelVersion, inf.ModelType, inf.InputImage, inf.InputSize,
		inf.OutputSegmentation, inf.InferenceTime, inf.Timestamp.UTC().Format(timestampLayout),
		inf.Device, inf.SystemLoad, nullFloat(inf.Accuracy), nullFloat(inf.Loss))
	if err != nil {
		return 0, fmt.Errorf("failed to insert inference: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read inference id: %w", err)
	}
	inf.ID = id
	return id, nil
}

// GetByID retrieves a full inference row, blobs included. It returns nil, nil when absent.
func (r *InferenceRepository) GetByID(ctx context.Context, id int64) (*model.ModelInference, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	var (
		inf      model.ModelInference
		accuracy sql.NullFloat64
		loss     sql.NullFloat64
		load     sql.NullFloat64
	)
	err := r.db.Conn().QueryRowContext(ctx, `
		SELECT id, model_name, model_version, model_type, input_image, input_size,
			output_segmentation, inference_time, timestamp, device, system_load, accuracy, loss
		FROM model_inference WHERE id = ?
	`, id).Scan(&inf.ID, &inf.ModelName, &inf.ModelVersion, &inf.ModelType, &inf.InputImage, &inf.InputSize,
		&inf.OutputSegmentation, &inf.InferenceTime, &inf.Timestamp, &inf.Device, &load, &accuracy, &loss)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get inference: %w", err)
	}

	inf.SystemLoad = load.Float64
	inf.Accuracy = floatPtr(accuracy)
	inf.Loss = floatPtr(loss)
	return &inf, nil
}

// Count returns the number of logged inferences.
func (r *InferenceRepository) Count(ctx context.Context) (int, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	var count int
	if err := r.db.Conn().QueryRowContext(ctx, `SELECT COUNT(*) FROM model_inference`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count inferences: %w", err)
	}
	return count, nil
}

// AverageInferenceTime returns the mean latency in seconds, 0 for an empty table.
func (r *InferenceRepository) AverageInferenceTime(ctx context.Context) (float64, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	var avg sql.NullFloat64
	if err := r.db.Conn().QueryRowContext(ctx, `SELECT AVG(inference_time) FROM model_inference`).Scan(&avg); err != nil {
		return 0, fmt.Errorf("failed to average inference time: %w", err)
	}
	return avg.Float64, nil
}

// Recent returns the newest inferences first.
func (r *InferenceRepository) Recent(ctx context.Context, limit int) ([]model.InferenceSummary, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	rows, err := r.db.Conn().QueryContext(ctx, `
		SELECT id, timestamp, model_name, inference_time, device
		FROM model_inference
		ORDER BY timestamp DESC, id DESC
		LIMIT ?
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

// Series returns every (timestamp, inference_time) pair in chronological order.
func (r *InferenceRepository) Series(ctx context.Context) ([]model.InferencePoint, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	rows, err := r.db.Conn().QueryContext(ctx, `
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

// Ping checks the underlying connection.
func (r *InferenceRepository) Ping(ctx context.Context) error {
	return r.db.Ping(ctx)
}

func nullFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}

func floatPtr(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}
