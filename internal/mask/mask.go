// Package mask turns segmentation logits into per-pixel class masks and
// serializes them in the NumPy .npy format the inference table stores.
package mask

import (
	"errors"
	"fmt"
	"math"
)

// ErrShape is returned when dimensions and data length disagree.
var ErrShape = errors.New("mask: shape mismatch")

// Mask is a per-pixel class-index array stored row-major.
type Mask struct {
	Width  int
	Height int
	Labels []uint8
}

// New allocates an all-background mask.
func New(width, height int) *Mask {
	return &Mask{Width: width, Height: height, Labels: make([]uint8, width*height)}
}

// At returns the class index at (x, y).
func (m *Mask) At(x, y int) int {
	return int(m.Labels[y*m.Width+x])
}

// ClassMask reports, per pixel, whether it belongs to class idx.
func (m *Mask) ClassMask(idx int) []bool {
	out := make([]bool, len(m.Labels))
	for i, l := range m.Labels {
		out[i] = int(l) == idx
	}
	return out
}

// PixelCounts returns how many pixels each present class covers.
func (m *Mask) PixelCounts() map[int]int {
	counts := make(map[int]int)
	for _, l := range m.Labels {
		counts[int(l)]++
	}
	return counts
}

// FromLogits upsamples NCHW logits (batch of one, laid out class-major as
// classes*h*w) to outH x outW with bilinear interpolation using half-pixel
// centers (align_corners=false) and takes the per-pixel argmax. Ties resolve
// to the lowest class index.
func FromLogits(logits []float32, classes, h, w, outH, outW int) (*Mask, error) {
	if classes <= 0 || h <= 0 || w <= 0 || outH <= 0 || outW <= 0 {
		return nil, fmt.Errorf("%w: non-positive dimension", ErrShape)
	}
	if classes > math.MaxUint8+1 {
		return nil, fmt.Errorf("mask: %d classes exceed label range", classes)
	}
	if len(logits) != classes*h*w {
		return nil, fmt.Errorf("%w: %d logits for %dx%dx%d", ErrShape, len(logits), classes, h, w)
	}

	ys := axisWeights(h, outH)
	xs := axisWeights(w, outW)
	plane := h * w

	m := New(outW, outH)
	for oy, ay := range ys {
		for ox, ax := range xs {
			best := 0
			bestVal := float32(math.Inf(-1))
			for c := 0; c < classes; c++ {
				p := logits[c*plane : (c+1)*plane]
				top := p[ay.i0*w+ax.i0]*(1-ax.t) + p[ay.i0*w+ax.i1]*ax.t
				bottom := p[ay.i1*w+ax.i0]*(1-ax.t) + p[ay.i1*w+ax.i1]*ax.t
				v := top*(1-ay.t) + bottom*ay.t
				if v > bestVal {
					bestVal = v
					best = c
				}
			}
			m.Labels[oy*outW+ox] = uint8(best)
		}
	}
	return m, nil
}

type sample struct {
	i0, i1 int
	t      float32
}

// axisWeights precomputes source indices and interpolation weights for one axis.
func axisWeights(in, out int) []sample {
	scale := float64(in) / float64(out)
	samples := make([]sample, out)
	for d := range samples {
		src := (float64(d)+0.5)*scale - 0.5
		if src < 0 {
			src = 0
		}
		i0 := int(src)
		if i0 > in-1 {
			i0 = in - 1
		}
		i1 := i0 + 1
		if i1 > in-1 {
			i1 = in - 1
		}
		samples[d] = sample{i0: i0, i1: i1, t: float32(src - float64(i0))}
	}
	return samples
}

// Class is a named foreground class of the organ segmentation model.
type Class struct {
	Index int    `json:"index"`
	Name  string `json:"name"`
	Color string `json:"color"`
}

// Classes lists the foreground classes by mask index; 0 is background.
var Classes = []Class{
	{Index: 1, Name: "Large bowel", Color: "#9370DB"},
	{Index: 2, Name: "Small bowel", Color: "#20B2AA"},
	{Index: 3, Name: "Stomach", Color: "#FFA07A"},
}

// Prediction is the outcome of one segmentation forward pass.
type Prediction struct {
	Mask          *Mask
	InferenceTime float64 // seconds, forward pass only
}
