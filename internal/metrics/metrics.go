// Package metrics exposes Prometheus collectors for the frame pipeline and HTTP surface.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	FramesSubmitted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "repcoach_frames_submitted_total",
			Help: "Frames submitted to the pose detector",
		},
	)

	// FramesSkipped counts ticks dropped because a detection was still in flight.
	FramesSkipped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "repcoach_frames_skipped_total",
			Help: "Frames skipped while a pose detection was in flight",
		},
	)

	DetectorErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "repcoach_detector_errors_total",
			Help: "Pose detection failures",
		},
	)

	DetectLatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "repcoach_detect_latency_seconds",
			Help:    "Pose detection latency in seconds",
			Buckets: []float64{.005, .01, .02, .033, .05, .1, .25, .5, 1},
		},
	)

	Reps = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "repcoach_reps_total",
			Help: "Repetitions counted",
		},
		[]string{"exercise"},
	)

	PhaseTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "repcoach_phase_transitions_total",
			Help: "Phase transitions emitted by the rep state machine",
		},
		[]string{"exercise", "phase"},
	)

	ActiveSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "repcoach_active_sessions",
			Help: "Number of live monitoring sessions",
		},
	)

	// FeedbackCues counts cue outcomes: sent, dropped, failed or muted.
	FeedbackCues = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "repcoach_feedback_cues_total",
			Help: "Feedback cues by kind and outcome",
		},
		[]string{"kind", "result"},
	)

	RequestCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "repcoach_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)
)
