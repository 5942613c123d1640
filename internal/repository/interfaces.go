package repository

import (
	"context"

	"anima/internal/model"
)

// InferenceRepository stores segmentation inferences. It is append-only:
// there are no update or delete operations.
type InferenceRepository interface {
	// Create operations
	Insert(ctx context.Context, inf *model.ModelInference) (int64, error)

	// Read operations
	GetByID(ctx context.Context, id int64) (*model.ModelInference, error)
	Count(ctx context.Context) (int, error)
	AverageInferenceTime(ctx context.Context) (float64, error)
	Recent(ctx context.Context, limit int) ([]model.InferenceSummary, error)
	Series(ctx context.Context) ([]model.InferencePoint, error)

	Ping(ctx context.Context) error
}

// ContactRepository stores contact form messages.
type ContactRepository interface {
	Insert(ctx context.Context, msg *model.ContactMessage) (int64, error)
	Count(ctx context.Context) (int, error)
}
