// Package render receives per-frame tracker updates and turns them into
// something a viewer can consume: annotated frames, JPEG snapshots or events.
package render

import (
	"gocv.io/x/gocv"

	"github.com/ayusman/repcoach/internal/tracker"
)

// Sink consumes one processed frame. frame may be nil when no image is
// available; a sink must not keep frame after Render returns.
type Sink interface {
	Render(u tracker.Update, frame *gocv.Mat)
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(u tracker.Update, frame *gocv.Mat)

// Render calls f(u, frame).
func (f SinkFunc) Render(u tracker.Update, frame *gocv.Mat) {
	f(u, frame)
}

// Multi fans out to each sink in order.
type Multi []Sink

// Render forwards to every non-nil sink.
func (m Multi) Render(u tracker.Update, frame *gocv.Mat) {
	for _, s := range m {
		if s != nil {
			s.Render(u, frame)
		}
	}
}

// Discard is a Sink that does nothing.
var Discard Sink = SinkFunc(func(tracker.Update, *gocv.Mat) {})
