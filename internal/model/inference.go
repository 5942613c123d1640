package model

import "time"

// ModelInference is one logged segmentation inference. Rows are append-only.
type ModelInference struct {
	ID                 int64     `json:"id"`
	ModelName          string    `json:"model_name"`
	ModelVersion       string    `json:"model_version"`
	ModelType          string    `json:"model_type"`
	InputImage         []byte    `json:"-"` // PNG
	InputSize          string    `json:"input_size"`
	OutputSegmentation []byte    `json:"-"` // .npy, int64 (H, W)
	InferenceTime      float64   `json:"inference_time"`
	Timestamp          time.Time `json:"timestamp"`
	Device             string    `json:"device"`
	SystemLoad         float64   `json:"system_load"`
	Accuracy           *float64  `json:"accuracy"`
	Loss               *float64  `json:"loss"`
}

// InferenceSummary is the blob-free projection shown on the dashboard.
type InferenceSummary struct {
	ID            int64     `json:"id"`
	Timestamp     time.Time `json:"timestamp"`
	ModelName     string    `json:"model_name"`
	InferenceTime float64   `json:"inference_time"`
	Device        string    `json:"device"`
}

// InferencePoint is a single sample of the inference-time series.
type InferencePoint struct {
	Timestamp     time.Time `json:"timestamp"`
	InferenceTime float64   `json:"inference_time"`
}
