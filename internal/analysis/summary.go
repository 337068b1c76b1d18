// Package analysis derives session statistics from recorded angle samples.
package analysis

import (
	"math"
	"time"

	"gonum.org/v1/gonum/stat"
)

// Sample is one processed frame of a session.
type Sample struct {
	At      time.Duration `json:"at"`
	Angle   float64       `json:"angle"`
	Visible bool          `json:"visible"`
	Correct bool          `json:"correct"`
	Reps    int           `json:"reps"`
}

// Rep describes a single completed repetition.
type Rep struct {
	Index    int           `json:"index"`
	Start    time.Duration `json:"start"`
	Duration time.Duration `json:"duration"`
	MinAngle float64       `json:"minAngle"`
	MaxAngle float64       `json:"maxAngle"`
}

// RangeOfMotion is the angular span covered during the rep.
func (r Rep) RangeOfMotion() float64 {
	return r.MaxAngle - r.MinAngle
}

// Summary aggregates a finished session.
type Summary struct {
	Reps             int           `json:"reps"`
	Duration         time.Duration `json:"duration"`
	Frames           int           `json:"frames"`
	TrackedFrames    int           `json:"trackedFrames"`
	FormAccuracy     float64       `json:"formAccuracy"`
	MeanAngle        float64       `json:"meanAngle"`
	AngleStdDev      float64       `json:"angleStdDev"`
	MeanRepDuration  time.Duration `json:"meanRepDuration"`
	RepDurationStdev time.Duration `json:"repDurationStdDev"`
	MeanROM          float64       `json:"meanRom"`
	Consistency      float64       `json:"consistency"`
	RepDetails       []Rep         `json:"repDetails"`
}

// Summarize computes a Summary from samples in time order.
func Summarize(samples []Sample) Summary {
	var s Summary
	s.Frames = len(samples)
	if len(samples) == 0 {
		return s
	}

	s.Reps = samples[len(samples)-1].Reps
	s.Duration = samples[len(samples)-1].At - samples[0].At

	var angles []float64
	correct := 0
	for _, smp := range samples {
		if !smp.Visible {
			continue
		}
		angles = append(angles, smp.Angle)
		if smp.Correct {
			correct++
		}
	}
	s.TrackedFrames = len(angles)
	if len(angles) > 0 {
		s.FormAccuracy = float64(correct) / float64(len(angles))
		s.MeanAngle, s.AngleStdDev = stat.MeanStdDev(angles, nil)
		if math.IsNaN(s.AngleStdDev) {
			s.AngleStdDev = 0
		}
	}

	reps, traces := segment(samples)
	s.RepDetails = reps
	if len(reps) == 0 {
		return s
	}

	durations := make([]float64, len(reps))
	roms := make([]float64, len(reps))
	for i, r := range reps {
		durations[i] = r.Duration.Seconds()
		roms[i] = r.RangeOfMotion()
	}
	meanDur, stdDur := stat.MeanStdDev(durations, nil)
	if math.IsNaN(stdDur) {
		stdDur = 0
	}
	s.MeanRepDuration = time.Duration(meanDur * float64(time.Second))
	s.RepDurationStdev = time.Duration(stdDur * float64(time.Second))
	s.MeanROM = stat.Mean(roms, nil)
	s.Consistency = consistency(traces)

	return s
}

// segment splits samples into completed reps at every increase of the rep
// counter. Samples after the last completed rep are ignored.
func segment(samples []Sample) ([]Rep, [][]float64) {
	var (
		reps   []Rep
		traces [][]float64
		start  = samples[0].At
		trace  []float64
		lo, hi = math.Inf(1), math.Inf(-1)
		prev   = samples[0].Reps
	)

	for _, smp := range samples {
		if smp.Visible {
			trace = append(trace, smp.Angle)
			lo = math.Min(lo, smp.Angle)
			hi = math.Max(hi, smp.Angle)
		}

		if smp.Reps <= prev {
			continue
		}
		prev = smp.Reps

		r := Rep{
			Index:    len(reps) + 1,
			Start:    start,
			Duration: smp.At - start,
		}
		if len(trace) > 0 {
			r.MinAngle, r.MaxAngle = lo, hi
		}
		reps = append(reps, r)
		traces = append(traces, trace)

		start = smp.At
		trace = nil
		lo, hi = math.Inf(1), math.Inf(-1)
	}

	return reps, traces
}

// consistency scores how closely each rep's angle trace follows the first one:
// 1/(1+mean DTW distance). A single rep scores 1.
func consistency(traces [][]float64) float64 {
	if len(traces) == 0 {
		return 0
	}
	if len(traces) == 1 {
		return 1
	}

	ref := normalizeTrace(traces[0])
	var total float64
	var n int
	for _, tr := range traces[1:] {
		d := DTWDistance(ref, normalizeTrace(tr))
		if math.IsInf(d, 1) {
			continue
		}
		total += d
		n++
	}
	if n == 0 {
		return 0
	}
	return 1 / (1 + total/float64(n))
}
