package report

import (
	"errors"
	"fmt"
	"image/color"
	"io"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/ayusman/repcoach/internal/exercise"
	"github.com/ayusman/repcoach/internal/store"
)

// ErrNoSamples is returned when a chart is requested for a session without samples.
var ErrNoSamples = errors.New("no samples recorded")

const (
	chartWidth  = 10 * vg.Inch
	chartHeight = 4 * vg.Inch
)

var (
	angleColor     = color.RGBA{R: 30, G: 110, B: 220, A: 255}
	thresholdColor = color.RGBA{R: 220, G: 60, B: 60, A: 255}
	repColor       = color.RGBA{R: 20, G: 160, B: 80, A: 255}
)

// Chart plots the tracked shoulder angle over time with the exercise's shoulder
// threshold as horizontal lines and a marker at each completed rep. The result
// encodes as PNG.
func Chart(samples []store.AngleSample, ex *exercise.Exercise) (io.WriterTo, error) {
	pts := make(plotter.XYs, 0, len(samples))
	reps := make(plotter.XYs, 0)
	last := 0
	for _, s := range samples {
		if !s.Visible {
			continue
		}
		x := float64(s.AtMs) / 1000
		pts = append(pts, plotter.XY{X: x, Y: s.Angle})
		if s.Reps > last {
			reps = append(reps, plotter.XY{X: x, Y: s.Angle})
			last = s.Reps
		}
	}
	if len(pts) == 0 {
		return nil, ErrNoSamples
	}

	p := plot.New()
	p.Title.Text = "Shoulder angle"
	if ex != nil {
		p.Title.Text = ex.Name
	}
	p.X.Label.Text = "Time (s)"
	p.Y.Label.Text = "Angle (deg)"
	p.Y.Min = 0
	p.Y.Max = 180
	p.Add(plotter.NewGrid())

	line, err := plotter.NewLine(pts)
	if err != nil {
		return nil, fmt.Errorf("angle line: %w", err)
	}
	line.Color = angleColor
	line.Width = vg.Points(1.5)
	p.Add(line)
	p.Legend.Add("angle", line)

	if ex != nil && ex.ShoulderThreshold != nil {
		for _, v := range []float64{ex.ShoulderThreshold.Min, ex.ShoulderThreshold.Max} {
			f := plotter.NewFunction(func(float64) float64 { return v })
			f.Color = thresholdColor
			f.Dashes = []vg.Length{vg.Points(4), vg.Points(4)}
			p.Add(f)
		}
	}

	if len(reps) > 0 {
		sc, err := plotter.NewScatter(reps)
		if err != nil {
			return nil, fmt.Errorf("rep markers: %w", err)
		}
		sc.Color = repColor
		sc.Radius = vg.Points(3)
		p.Add(sc)
		p.Legend.Add("rep", sc)
	}

	wt, err := p.WriterTo(chartWidth, chartHeight, "png")
	if err != nil {
		return nil, fmt.Errorf("render chart: %w", err)
	}
	return wt, nil
}
