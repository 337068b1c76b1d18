package render

import (
	"sync"

	"gocv.io/x/gocv"

	"github.com/ayusman/repcoach/internal/tracker"
)

// Latest keeps the most recent update and a JPEG copy of the most recent frame.
type Latest struct {
	mu     sync.RWMutex
	update tracker.Update
	has    bool
	jpeg   []byte
	seq    uint64
}

// NewLatest creates an empty Latest sink.
func NewLatest() *Latest {
	return &Latest{}
}

// Render stores u and encodes frame when present.
func (l *Latest) Render(u tracker.Update, frame *gocv.Mat) {
	var data []byte
	if frame != nil && !frame.Empty() {
		if buf, err := gocv.IMEncode(gocv.JPEGFileExt, *frame); err == nil {
			data = append([]byte(nil), buf.GetBytes()...)
			buf.Close()
		}
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.update = u
	l.has = true
	if data != nil {
		l.jpeg = data
		l.seq++
	}
}

// Update returns the last update and whether one has been received.
func (l *Latest) Update() (tracker.Update, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.update, l.has
}

// JPEG returns the last encoded frame and its sequence number. The sequence
// increases by one for every new frame, so callers can skip duplicates.
func (l *Latest) JPEG() ([]byte, uint64) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.jpeg, l.seq
}
