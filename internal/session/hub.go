package session

import (
	"sync"

	"gocv.io/x/gocv"

	"github.com/ayusman/repcoach/internal/tracker"
)

const subscriberBuffer = 16

// hub fans updates out to live subscribers. A subscriber whose buffer is full
// misses updates; the pipeline never waits on it.
type hub struct {
	mu     sync.RWMutex
	subs   map[int]chan tracker.Update
	next   int
	closed bool
}

func newHub() *hub {
	return &hub{subs: make(map[int]chan tracker.Update)}
}

func (h *hub) Render(u tracker.Update, _ *gocv.Mat) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, ch := range h.subs {
		select {
		case ch <- u:
		default:
		}
	}
}

func (h *hub) subscribe() (<-chan tracker.Update, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	ch := make(chan tracker.Update, subscriberBuffer)
	if h.closed {
		close(ch)
		return ch, func() {}
	}

	id := h.next
	h.next++
	h.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			if c, ok := h.subs[id]; ok {
				delete(h.subs, id)
				close(c)
			}
		})
	}
}

// close ends every subscription.
func (h *hub) close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.closed = true
	for id, ch := range h.subs {
		delete(h.subs, id)
		close(ch)
	}
}

func (h *hub) len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}
