package server

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/ayusman/repcoach/internal/server/api"
	"github.com/ayusman/repcoach/internal/session"
	"github.com/ayusman/repcoach/internal/tracker"
)

const writeWait = 2 * time.Second

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow local connections
	},
}

// liveMessage is the JSON pushed for every processed frame. Landmarks are
// omitted; the overlay stream carries the skeleton.
type liveMessage struct {
	tracker.Update
	Pose      any   `json:"pose,omitempty"`
	Timestamp int64 `json:"timestamp"`
}

// LiveHandler pushes a session's tracker updates over a WebSocket.
type LiveHandler struct {
	sessions *session.Manager
	log      zerolog.Logger
}

// NewLiveHandler creates a new LiveHandler.
func NewLiveHandler(sessions *session.Manager, log zerolog.Logger) *LiveHandler {
	return &LiveHandler{sessions: sessions, log: log}
}

// ServeHTTP upgrades the connection and forwards updates until the client
// disconnects or the session finishes.
func (h *LiveHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	sess, err := h.sessions.Get(chi.URLParam(r, "id"))
	if err != nil {
		api.WriteError(w, http.StatusNotFound, "Session not found")
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn().Err(err).Msg("websocket upgrade error")
		return
	}
	defer conn.Close()

	updates, cancel := sess.Subscribe()
	defer cancel()

	// Reader goroutine notices client close.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-closed:
			return
		case u, ok := <-updates:
			if !ok {
				conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "session finished"),
					time.Now().Add(writeWait))
				return
			}
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(liveMessage{Update: u, Timestamp: u.At.UnixMilli()}); err != nil {
				return
			}
		}
	}
}
