package pose

import (
	"errors"
	"time"

	"gocv.io/x/gocv"
)

var (
	// ErrDetectorClosed is returned by Detect after Close.
	ErrDetectorClosed = errors.New("pose detector is closed")
	// ErrResponseTimeout is returned when the pose service does not answer a frame in time.
	ErrResponseTimeout = errors.New("pose service did not respond")
)

// Detector defines the interface for pose landmark implementations.
type Detector interface {
	// Detect analyzes a video frame and returns the detected body landmarks.
	// Returns a nil Pose if no body is found.
	Detect(frame *gocv.Mat) (*Pose, error)

	// Close releases any resources held by the detector. Safe to call more than once.
	Close() error
}

// Config holds configuration options for pose detection.
type Config struct {
	// MinDetectionConf is the minimum detection confidence threshold (0.0-1.0).
	MinDetectionConf float64

	// MinTrackingConf is the minimum tracking confidence threshold (0.0-1.0).
	MinTrackingConf float64

	// ModelComplexity selects the MediaPipe pose model (0, 1 or 2).
	ModelComplexity int

	// IdleTimeout shuts the subprocess down after this long without a frame.
	IdleTimeout time.Duration

	// ResponseTimeout bounds each frame round trip; the subprocess is killed
	// and restarted on the next frame when it expires.
	ResponseTimeout time.Duration
}

// DefaultConfig returns a Config with sensible default values.
func DefaultConfig() Config {
	return Config{
		MinDetectionConf: 0.5,
		MinTrackingConf:  0.5,
		ModelComplexity:  1,
		IdleTimeout:      30 * time.Second,
		ResponseTimeout:  5 * time.Second,
	}
}
