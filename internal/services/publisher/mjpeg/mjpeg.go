package mjpeg

import (
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// PlaceholderFunc renders the JPEG sent before a camera has produced its first annotated frame
type PlaceholderFunc func(cameraID int64) []byte

// Publisher keeps the latest annotated JPEG per camera and streams it as multipart MJPEG
type Publisher struct {
	placeholder PlaceholderFunc
	keepalive   time.Duration

	jpegMutex  sync.RWMutex
	latestJPEG map[int64][]byte

	notifyMutex sync.Mutex
	watchers    map[int64]map[chan struct{}]struct{}
}

func NewPublisher(placeholder PlaceholderFunc) *Publisher {
	return &Publisher{
		placeholder: placeholder,
		keepalive:   2 * time.Second,
		latestJPEG:  make(map[int64][]byte),
		watchers:    make(map[int64]map[chan struct{}]struct{}),
	}
}

// PublishJPEG stores a copy of jpeg as the camera's latest frame and wakes its streamers
func (p *Publisher) PublishJPEG(cameraID int64, jpeg []byte) {
	if len(jpeg) == 0 {
		return
	}
	jpegCopy := make([]byte, len(jpeg))
	copy(jpegCopy, jpeg)

	p.jpegMutex.Lock()
	p.latestJPEG[cameraID] = jpegCopy
	p.jpegMutex.Unlock()

	p.notifyStreamers(cameraID)
}

// Latest returns the most recent JPEG for a camera
func (p *Publisher) Latest(cameraID int64) ([]byte, bool) {
	p.jpegMutex.RLock()
	defer p.jpegMutex.RUnlock()
	b, ok := p.latestJPEG[cameraID]
	return b, ok && len(b) > 0
}

// Forget drops the cached frame of a deactivated camera
func (p *Publisher) Forget(cameraID int64) {
	p.jpegMutex.Lock()
	delete(p.latestJPEG, cameraID)
	p.jpegMutex.Unlock()
}

func (p *Publisher) notifyStreamers(cameraID int64) {
	p.notifyMutex.Lock()
	defer p.notifyMutex.Unlock()
	for ch := range p.watchers[cameraID] {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

func (p *Publisher) watch(cameraID int64) chan struct{} {
	p.notifyMutex.Lock()
	defer p.notifyMutex.Unlock()

	set, ok := p.watchers[cameraID]
	if !ok {
		set = make(map[chan struct{}]struct{})
		p.watchers[cameraID] = set
	}
	ch := make(chan struct{}, 1)
	set[ch] = struct{}{}
	return ch
}

func (p *Publisher) unwatch(cameraID int64, ch chan struct{}) {
	p.notifyMutex.Lock()
	defer p.notifyMutex.Unlock()

	if set, ok := p.watchers[cameraID]; ok {
		delete(set, ch)
		if len(set) == 0 {
			delete(p.watchers, cameraID)
		}
	}
}

// Watchers reports the number of connected streamers for a camera
func (p *Publisher) Watchers(cameraID int64) int {
	p.notifyMutex.Lock()
	defer p.notifyMutex.Unlock()
	return len(p.watchers[cameraID])
}

func (p *Publisher) StreamMJPEGHTTP(w http.ResponseWriter, r *http.Request, cameraID int64) {
	boundary := "frame"
	w.Header().Set("Content-Type", "multipart/x-mixed-replace; boundary="+boundary)
	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
	w.Header().Set("Pragma", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
		return
	}

	notify := p.watch(cameraID)
	defer p.unwatch(cameraID, notify)

	writePart := func(jpeg []byte) bool {
		if _, err := io.WriteString(w, "--"+boundary+"\r\n"); err != nil {
			return false
		}
		if _, err := io.WriteString(w, "Content-Type: image/jpeg\r\n"); err != nil {
			return false
		}
		if _, err := io.WriteString(w, fmt.Sprintf("Content-Length: %d\r\n\r\n", len(jpeg))); err != nil {
			return false
		}
		if _, err := w.Write(jpeg); err != nil {
			return false
		}
		if _, err := io.WriteString(w, "\r\n"); err != nil {
			return false
		}
		flusher.Flush()
		return true
	}

	first, ok := p.Latest(cameraID)
	if !ok && p.placeholder != nil {
		first = p.placeholder(cameraID)
	}
	if len(first) > 0 {
		if !writePart(first) {
			return
		}
	}

	keepaliveTicker := time.NewTicker(p.keepalive)
	defer keepaliveTicker.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			log.Debug().Int64("camera_id", cameraID).Msg("mjpeg_client_disconnected")
			return
		case <-notify:
		case <-keepaliveTicker.C:
		}
		if buf, ok := p.Latest(cameraID); ok {
			if !writePart(buf) {
				return
			}
		}
	}
}
