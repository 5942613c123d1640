package dashboard

import (
	"bytes"
	"errors"
	"fmt"
	"time"

	"anima/internal/model"

	"github.com/wcharczuk/go-chart/v2"
)

// ChartTitle heads the inference time chart.
const ChartTitle = "Inference Time Over Time"

// ErrNotEnoughData is returned when the series cannot be drawn as a line.
var ErrNotEnoughData = errors.New("not enough inferences to chart")

// RenderChart draws inference time against timestamp as a PNG line chart.
func RenderChart(points []model.InferencePoint) ([]byte, error) {
	if len(points) < 2 || !points[0].Timestamp.Before(points[len(points)-1].Timestamp) {
		return nil, ErrNotEnoughData
	}

	xs := make([]time.Time, len(points))
	ys := make([]float64, len(points))
	minY, maxY := points[0].InferenceTime, points[0].InferenceTime
	for i, p := range points {
		xs[i] = p.Timestamp
		ys[i] = p.InferenceTime
		if p.InferenceTime < minY {
			minY = p.InferenceTime
		}
		if p.InferenceTime > maxY {
			maxY = p.InferenceTime
		}
	}

	// a flat series has a zero-height range, which the renderer rejects
	var yRange chart.Range
	if minY == maxY {
		yRange = &chart.ContinuousRange{Min: 0, Max: maxY*2 + 1e-3}
	}

	ch := chart.Chart{
		Title:      ChartTitle,
		Width:      900,
		Height:     400,
		Background: chart.Style{Padding: chart.Box{Top: 40, Left: 16, Right: 16, Bottom: 16}},
		XAxis:      chart.XAxis{Name: "timestamp", ValueFormatter: chart.TimeValueFormatter},
		YAxis:      chart.YAxis{Name: "inference_time (s)", Range: yRange},
		Series: []chart.Series{
			chart.TimeSeries{
				Name:    "inference_time",
				XValues: xs,
				YValues: ys,
				Style: chart.Style{
					StrokeColor: chart.ColorBlue,
					StrokeWidth: 2,
				},
			},
		},
	}

	var buf bytes.Buffer
	if err := ch.Render(chart.PNG, &buf); err != nil {
		return nil, fmt.Errorf("render chart: %w", err)
	}
	return buf.Bytes(), nil
}
