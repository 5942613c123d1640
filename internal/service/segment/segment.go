// Package segment runs an uploaded scan through the organ segmentation model
// and records the inference.
package segment

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"anima/internal/logger"
	"anima/internal/mask"
	"anima/internal/model"
	"anima/internal/repository"
	"anima/internal/service"
	"anima/internal/service/storage"
	"anima/internal/service/websocket"

	"github.com/shirou/gopsutil/v3/load"
)

const (
	// SavedMessage confirms the inference was recorded.
	SavedMessage = "Inference details saved to database."
	// ErrorPrefix starts every failure message shown to the user.
	ErrorPrefix = "An error occurred during segmentation: "
)

// ErrNotFound is returned for an unknown inference id.
var ErrNotFound = errors.New("inference not found")

// Segmenter is the model behind the pipeline.
type Segmenter interface {
	Segment(ctx context.Context, image []byte) (*mask.Prediction, error)
	Overlay(image []byte, m *mask.Mask) ([]byte, error)
	EncodePNG(image []byte) ([]byte, error)
}

// Publisher receives an event per recorded inference.
type Publisher interface {
	Publish(event websocket.Event)
}

// Publishers fans an event out to several publishers.
type Publishers []Publisher

// Publish forwards event to every publisher.
func (ps Publishers) Publish(event websocket.Event) {
	for _, p := range ps {
		p.Publish(event)
	}
}

// Model describes the segmentation model as recorded on each row.
type Model struct {
	Name      string
	Version   string
	Type      string
	InputSize string
	Device    string
}

// ClassArea is the pixel coverage of one class.
type ClassArea struct {
	mask.Class
	Pixels int `json:"pixels"`
}

// Result is what the segmentation page shows after an upload.
type Result struct {
	InferenceID   int64       `json:"inferenceId"`
	InferenceTime float64     `json:"inferenceTime"`
	Overlay       []byte      `json:"-"`
	OverlayBase64 string      `json:"overlay"`
	Classes       []ClassArea `json:"classes"`
	Message       string      `json:"message"`
}

// SegmentService ties the model, the inference table, the overlay store and
// the dashboard feed together.
type SegmentService struct {
	segmenter Segmenter
	repo      repository.InferenceRepository
	store     storage.ArtifactStore
	publisher Publisher
	model     Model
	logger    *logger.Logger

	// systemLoad samples the 1-minute load average.
	systemLoad func() float64
}

// NewSegmentService wires the pipeline.
func NewSegmentService(segmenter Segmenter, repo repository.InferenceRepository, store storage.ArtifactStore,
	publisher Publisher, model Model, logger *logger.Logger) *SegmentService {
	return &SegmentService{
		segmenter:  segmenter,
		repo:       repo,
		store:      store,
		publisher:  publisher,
		model:      model,
		logger:     logger,
		systemLoad: loadAverage,
	}
}

// Process segments an uploaded image and inserts exactly one inference row.
func (s *SegmentService) Process(ctx context.Context, filename string, data []byte) (*Result, error) {
	if _, err := service.ImageMIME(filename, data); err != nil {
		return nil, err
	}

	prediction, err := s.segmenter.Segment(ctx, data)
	if err != nil {
		return nil, fmt.Errorf("segment: %w", err)
	}

	overlay, err := s.segmenter.Overlay(data, prediction.Mask)
	if err != nil {
		return nil, fmt.Errorf("render overlay: %w", err)
	}

	inputPNG, err := s.segmenter.EncodePNG(data)
	if err != nil {
		return nil, fmt.Errorf("encode input: %w", err)
	}

	inference := &model.ModelInference{
		ModelName:          s.model.Name,
		ModelVersion:       s.model.Version,
		ModelType:          s.model.Type,
		InputImage:         inputPNG,
		InputSize:          s.model.InputSize,
		OutputSegmentation: mask.EncodeNPY(prediction.Mask),
		InferenceTime:      prediction.InferenceTime,
		Timestamp:          time.Now().UTC(),
		Device:             s.model.Device,
		SystemLoad:         s.systemLoad(),
	}
	id, err := s.repo.Insert(ctx, inference)
	if err != nil {
		return nil, fmt.Errorf("save inference: %w", err)
	}
	s.logger.Info("Saved inference %d (%.4f s on %s)", id, prediction.InferenceTime, s.model.Device)

	if err := s.store.Put(ctx, storage.OverlayKey(id), overlay, "image/png"); err != nil {
		// the row is authoritative; the overlay can be rebuilt from it
		s.logger.Warning("Could not store overlay for inference %d: %v", id, err)
	}

	if s.publisher != nil {
		s.publisher.Publish(websocket.Event{
			Type:          "inference",
			InferenceID:   id,
			ModelName:     s.model.Name,
			InferenceTime: prediction.InferenceTime,
			Device:        s.model.Device,
			Timestamp:     inference.Timestamp,
		})
	}

	return &Result{
		InferenceID:   id,
		InferenceTime: prediction.InferenceTime,
		Overlay:       overlay,
		OverlayBase64: base64.StdEncoding.EncodeToString(overlay),
		Classes:       classAreas(prediction.Mask),
		Message:       SavedMessage,
	}, nil
}

// Overlay returns the stored overlay of an inference, rebuilding and storing
// it from the recorded input and mask when it is missing.
func (s *SegmentService) Overlay(ctx context.Context, id int64) ([]byte, error) {
	key := storage.OverlayKey(id)
	data, err := s.store.Get(ctx, key)
	if err == nil {
		return data, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("load overlay: %w", err)
	}

	inference, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load inference %d: %w", id, err)
	}
	if inference == nil {
		return nil, ErrNotFound
	}

	m, err := mask.DecodeNPY(inference.OutputSegmentation)
	if err != nil {
		return nil, fmt.Errorf("decode mask of inference %d: %w", id, err)
	}
	data, err = s.segmenter.Overlay(inference.InputImage, m)
	if err != nil {
		return nil, fmt.Errorf("render overlay: %w", err)
	}

	if err := s.store.Put(ctx, key, data, "image/png"); err != nil {
		s.logger.Warning("Could not store rebuilt overlay for inference %d: %v", id, err)
	}
	return data, nil
}

func classAreas(m *mask.Mask) []ClassArea {
	counts := m.PixelCounts()
	areas := make([]ClassArea, len(mask.Classes))
	for i, c := range mask.Classes {
		areas[i] = ClassArea{Class: c, Pixels: counts[c.Index]}
	}
	return areas
}

func loadAverage() float64 {
	avg, err := load.Avg()
	if err != nil {
		return 0
	}
	return avg.Load1
}
