package processors

import (
	"bytes"
	"encoding/base64"
	"fmt"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

// ChartSpec describes a chart the LLM asked for as an answer
type ChartSpec struct {
	Type   string    `json:"type"` // bar (default) or line
	Title  string    `json:"title,omitempty"`
	XLabel string    `json:"x_label,omitempty"`
	YLabel string    `json:"y_label,omitempty"`
	Labels []string  `json:"labels"`
	Values []float64 `json:"values"`
}

// RenderChart draws the chart as a PNG image
func RenderChart(spec ChartSpec) ([]byte, error) {
	if len(spec.Values) == 0 {
		return nil, fmt.Errorf("chart has no values")
	}
	if len(spec.Labels) > 0 && len(spec.Labels) != len(spec.Values) {
		return nil, fmt.Errorf("chart has %d labels for %d values", len(spec.Labels), len(spec.Values))
	}

	p := plot.New()
	p.Title.Text = spec.Title
	p.X.Label.Text = spec.XLabel
	p.Y.Label.Text = spec.YLabel

	switch spec.Type {
	case "", "bar":
		bars, err := plotter.NewBarChart(plotter.Values(spec.Values), vg.Points(20))
		if err != nil {
			return nil, fmt.Errorf("failed to build bar chart: %w", err)
		}
		p.Add(bars)
		if len(spec.Labels) > 0 {
			p.NominalX(spec.Labels...)
		}
	case "line":
		pts := make(plotter.XYs, len(spec.Values))
		for i, v := range spec.Values {
			pts[i].X = float64(i)
			pts[i].Y = v
		}
		line, err := plotter.NewLine(pts)
		if err != nil {
			return nil, fmt.Errorf("failed to build line chart: %w", err)
		}
		p.Add(line)
		if len(spec.Labels) > 0 {
			p.NominalX(spec.Labels...)
		}
	default:
		return nil, fmt.Errorf("unsupported chart type: %s", spec.Type)
	}

	w, err := p.WriterTo(6*vg.Inch, 4*vg.Inch, "png")
	if err != nil {
		return nil, fmt.Errorf("failed to render chart: %w", err)
	}

	var buf bytes.Buffer
	if _, err := w.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("failed to encode chart: %w", err)
	}
	return buf.Bytes(), nil
}

// ChartDataURI renders the chart and encodes it as a base64 PNG data URI
func ChartDataURI(spec ChartSpec) (string, error) {
	png, err := RenderChart(spec)
	if err != nil {
		return "", err
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(png), nil
}
