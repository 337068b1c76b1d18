package server

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ayusman/repcoach/internal/server/api"
	"github.com/ayusman/repcoach/internal/session"
)

// streamPoll is how often the stream checks for a new annotated frame.
const streamPoll = 33 * time.Millisecond

// StreamHandler serves a view's annotated frames as MJPEG.
type StreamHandler struct {
	sessions *session.Manager
}

// NewStreamHandler creates a new StreamHandler.
func NewStreamHandler(sessions *session.Manager) *StreamHandler {
	return &StreamHandler{sessions: sessions}
}

// ServeHTTP streams MJPEG frames until the client goes away or the session
// finishes. The optional view query parameter selects a secondary view.
func (h *StreamHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	sess, err := h.sessions.Get(chi.URLParam(r, "id"))
	if err != nil {
		api.WriteError(w, http.StatusNotFound, "Session not found")
		return
	}

	latest, err := sess.Latest(r.URL.Query().Get("view"))
	if err != nil {
		api.WriteError(w, http.StatusNotFound, "View not found")
		return
	}

	w.Header().Set("Content-Type", "multipart/x-mixed-replace; boundary=frame")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ticker := time.NewTicker(streamPoll)
	defer ticker.Stop()

	var last uint64
	for {
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
		}

		if _, err := h.sessions.Get(sess.ID); errors.Is(err, session.ErrSessionNotFound) {
			return
		}

		jpeg, seq := latest.JPEG()
		if jpeg == nil || seq == last {
			continue
		}
		last = seq

		fmt.Fprintf(w, "--frame\r\n")
		fmt.Fprintf(w, "Content-Type: image/jpeg\r\n")
		fmt.Fprintf(w, "Content-Length: %d\r\n\r\n", len(jpeg))
		if _, err := w.Write(jpeg); err != nil {
			return
		}
		fmt.Fprintf(w, "\r\n")

		if f, ok := w.(http.Flusher); ok {
			f.Flush()
		}
	}
}
