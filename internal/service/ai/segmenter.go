package ai

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"os"
	"sync"
	"time"

	"anima/internal/config"
	"anima/internal/logger"
	"anima/internal/mask"
	"anima/internal/service"

	"gocv.io/x/gocv"
)

const (
	// NumClasses counts background plus the three organ classes.
	NumClasses = 4
	// InputWidth and InputHeight are the model input size.
	InputWidth  = 266
	InputHeight = 266
	// ModelVersion and ModelType are recorded with every inference.
	ModelVersion = "1.0"
	ModelType    = "Segformer"
)

var (
	// Mean and Std are the per-channel RGB normalization constants.
	Mean = [3]float32{0.485, 0.456, 0.406}
	Std  = [3]float32{0.229, 0.224, 0.225}
)

// ErrModelUnavailable is returned while the network could not be loaded.
var ErrModelUnavailable = fmt.Errorf("segmentation: %w", service.ErrModelUnavailable)

// readColor and readGray decode without applying EXIF orientation, so the
// mask, the overlay and the stored input share one pixel grid.
const (
	readColor = gocv.IMReadColor | gocv.IMReadIgnoreOrientation
	readGray  = gocv.IMReadGrayScale | gocv.IMReadIgnoreOrientation
)

// InputSize renders the model input size the way it is stored.
func InputSize() string {
	return fmt.Sprintf("(%d, %d)", InputWidth, InputHeight)
}

// SegmenterService runs the segmentation network and renders overlays.
type SegmenterService struct {
	net       gocv.Net
	loaded    bool
	modelPath string
	modelName string
	device    string
	logger    *logger.Logger
	mu        sync.Mutex // gocv.Net is not safe for concurrent Forward calls
}

// NewSegmenterService creates a segmenter and attempts to load the ONNX network.
// A load failure is logged; Segment then returns ErrModelUnavailable.
func NewSegmenterService(config *config.Config, logger *logger.Logger) *SegmenterService {
	service := &SegmenterService{
		modelPath: config.SegmentationModelPath,
		modelName: config.SegmentationModelName,
		device:    config.Device,
		logger:    logger,
	}

	if err := service.initializeNet(); err != nil {
		service.logger.Warning("Could not initialize segmentation network: %v", err)
		return service
	}

	return service
}

// initializeNet loads the ONNX network and sets backend/target preferences.
func (s *SegmenterService) initializeNet() error {
	if _, err := os.Stat(s.modelPath); os.IsNotExist(err) {
		return fmt.Errorf("model file not found: %s", s.modelPath)
	}

	net := gocv.ReadNetFromONNX(s.modelPath)
	if net.Empty() {
		return fmt.Errorf("failed to load network from %s", s.modelPath)
	}

	backend, target := gocv.NetBackendDefault, gocv.NetTargetCPU
	if s.device == "cuda" {
		backend, target = gocv.NetBackendCUDA, gocv.NetTargetCUDA
	}
	errBackend := net.SetPreferableBackend(backend)
	errTarget := net.SetPreferableTarget(target)

	if errBackend != nil || errTarget != nil {
		net.Close()
		return fmt.Errorf("failed to set preferable backend or target for %s", s.device)
	}

	s.net = net
	s.loaded = true
	s.logger.Info("Segmentation network %s initialized on %s", s.modelName, s.device)
	return nil
}

// ModelName returns the configured model identifier.
func (s *SegmenterService) ModelName() string {
	return s.modelName
}

// Loaded reports whether the network is ready for Segment.
func (s *SegmenterService) Loaded() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loaded
}

// Device returns the inference device string.
func (s *SegmenterService) Device() string {
	return s.device
}

// Segment decodes the image, normalizes it, runs one forward pass and
// returns the class mask at the original resolution.
func (s *SegmenterService) Segment(ctx context.Context, imageBytes []byte) (*mask.Prediction, error) {
	if !s.Loaded() {
		return nil, ErrModelUnavailable
	}

	mat, err := gocv.IMDecode(imageBytes, readColor)
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}
	defer mat.Close()

	if mat.Empty() {
		return nil, fmt.Errorf("decoded image is empty")
	}
	width, height := mat.Cols(), mat.Rows()

	// resize, BGR->RGB and scale to [0,1]; per-channel normalization follows
	blob := gocv.BlobFromImage(mat, 1.0/255.0, image.Pt(InputWidth, InputHeight), gocv.NewScalar(0, 0, 0, 0), true, false)
	defer blob.Close()

	if err := normalizeBlob(blob); err != nil {
		return nil, err
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	if !s.loaded {
		s.mu.Unlock()
		return nil, ErrModelUnavailable
	}
	start := time.Now()
	s.net.SetInput(blob, "")
	output := s.net.Forward("")
	elapsed := time.Since(start).Seconds()
	s.mu.Unlock()
	defer output.Close()

	dims := output.Size()
	if len(dims) != 4 || dims[0] != 1 {
		return nil, fmt.Errorf("unexpected logits shape %v", dims)
	}

	// flatten to 2-D so the data pointer covers the whole tensor
	flat := output.Reshape(1, output.Total())
	defer flat.Close()

	logits, err := flat.DataPtrFloat32()
	if err != nil {
		return nil, fmt.Errorf("failed to read logits: %w", err)
	}

	m, err := mask.FromLogits(logits, dims[1], dims[2], dims[3], height, width)
	if err != nil {
		return nil, fmt.Errorf("failed to post-process logits: %w", err)
	}

	s.logger.Info("Segmented %dx%d image in %.4f seconds", width, height, elapsed)

	return &mask.Prediction{Mask: m, InferenceTime: elapsed}, nil
}

// normalizeBlob applies (x - mean) / std per channel in place on an NCHW blob.
func normalizeBlob(blob gocv.Mat) error {
	flat := blob.Reshape(1, blob.Total())
	defer flat.Close()

	data, err := flat.DataPtrFloat32()
	if err != nil {
		return fmt.Errorf("failed to access blob: %w", err)
	}

	plane := InputWidth * InputHeight
	if len(data) != 3*plane {
		return fmt.Errorf("unexpected blob size %d", len(data))
	}

	for c := 0; c < 3; c++ {
		channel := data[c*plane : (c+1)*plane]
		for i, v := range channel {
			channel[i] = (v - Mean[c]) / Std[c]
		}
	}
	return nil
}

// Overlay draws the contour of every class on a grayscale copy of the input,
// blended at half opacity, and returns the PNG encoding.
func (s *SegmenterService) Overlay(imageBytes []byte, m *mask.Mask) ([]byte, error) {
	mat, err := gocv.IMDecode(imageBytes, readGray)
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}
	defer mat.Close()

	if mat.Cols() != m.Width || mat.Rows() != m.Height {
		return nil, fmt.Errorf("mask %dx%d does not match image %dx%d", m.Width, m.Height, mat.Cols(), mat.Rows())
	}

	base := gocv.NewMat()
	defer base.Close()
	if err := gocv.CvtColor(mat, &base, gocv.ColorGrayToBGR); err != nil {
		return nil, fmt.Errorf("failed to convert image to color: %w", err)
	}

	contoured := base.Clone()
	defer contoured.Close()

	for _, class := range mask.Classes {
		classMask, err := binaryMat(m, class.Index)
		if err != nil {
			return nil, err
		}

		contours := gocv.FindContours(classMask, gocv.RetrievalExternal, gocv.ChainApproxSimple)
		if contours.Size() > 0 {
			gocv.DrawContours(&contoured, contours, -1, hexColor(class.Color), 2)
		}
		contours.Close()
		classMask.Close()
	}

	blended := gocv.NewMat()
	defer blended.Close()
	gocv.AddWeighted(contoured, 0.5, base, 0.5, 0, &blended)

	buf, err := gocv.IMEncode(".png", blended)
	if err != nil {
		s.logger.Error("Failed to encode overlay: %v", err)
		return nil, err
	}
	defer buf.Close()
	finalImage := make([]byte, len(buf.GetBytes()))
	copy(finalImage, buf.GetBytes())

	return finalImage, nil
}

// EncodePNG re-encodes an uploaded JPEG/PNG image as PNG for storage.
// IMReadUnchanged leaves EXIF orientation unapplied, like readColor.
func (s *SegmenterService) EncodePNG(imageBytes []byte) ([]byte, error) {
	mat, err := gocv.IMDecode(imageBytes, gocv.IMReadUnchanged)
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}
	defer mat.Close()

	if mat.Empty() {
		return nil, fmt.Errorf("decoded image is empty")
	}

	buf, err := gocv.IMEncode(".png", mat)
	if err != nil {
		return nil, fmt.Errorf("failed to encode png: %w", err)
	}
	defer buf.Close()
	out := make([]byte, len(buf.GetBytes()))
	copy(out, buf.GetBytes())
	return out, nil
}

// Close releases the network.
func (s *SegmenterService) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loaded {
		s.loaded = false
		return s.net.Close()
	}
	return nil
}

// binaryMat builds an 8-bit single channel Mat with 255 where the mask equals idx.
func binaryMat(m *mask.Mask, idx int) (gocv.Mat, error) {
	pixels := make([]byte, len(m.Labels))
	for i, on := range m.ClassMask(idx) {
		if on {
			pixels[i] = 255
		}
	}
	mat, err := gocv.NewMatFromBytes(m.Height, m.Width, gocv.MatTypeCV8UC1, pixels)
	if err != nil {
		return gocv.Mat{}, fmt.Errorf("failed to build class mask: %w", err)
	}
	return mat, nil
}

// hexColor parses "#RRGGBB".
func hexColor(hex string) color.RGBA {
	var r, g, b uint8
	fmt.Sscanf(hex, "#%02x%02x%02x", &r, &g, &b)
	return color.RGBA{R: r, G: g, B: b, A: 0}
}
