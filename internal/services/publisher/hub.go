package publisher

import (
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog/log"

	"emotion-worker-go/internal/models"
)

// Hub fans result events out to live listeners such as websocket clients.
// Slow listeners lose events instead of blocking the sampling loop.
type Hub struct {
	mu        sync.RWMutex
	listeners map[*Listener]struct{}
	buffer    int
}

// Listener receives events for one camera, or all cameras when CameraID is 0
type Listener struct {
	CameraID int64
	C        chan *models.ResultEvent
	dropped  atomic.Uint64
}

func NewHub(buffer int) *Hub {
	if buffer <= 0 {
		buffer = 16
	}
	return &Hub{listeners: make(map[*Listener]struct{}), buffer: buffer}
}

func (h *Hub) Listen(cameraID int64) *Listener {
	l := &Listener{CameraID: cameraID, C: make(chan *models.ResultEvent, h.buffer)}
	h.mu.Lock()
	h.listeners[l] = struct{}{}
	h.mu.Unlock()
	return l
}

// Unlisten removes the listener and closes its channel
func (h *Hub) Unlisten(l *Listener) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.listeners[l]; ok {
		delete(h.listeners, l)
		close(l.C)
	}
}

func (h *Hub) Broadcast(event *models.ResultEvent) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for l := range h.listeners {
		if l.CameraID != 0 && l.CameraID != event.CameraID {
			continue
		}
		select {
		case l.C <- event:
		default:
			if n := l.dropped.Add(1); n%100 == 1 {
				log.Warn().Int64("camera_id", event.CameraID).Uint64("dropped", n).Msg("result_listener_slow")
			}
		}
	}
}

func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.listeners)
}

// Close disconnects every listener
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for l := range h.listeners {
		close(l.C)
		delete(h.listeners, l)
	}
}
