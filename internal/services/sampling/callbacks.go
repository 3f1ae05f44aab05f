package sampling

import (
	"sync"

	"github.com/rs/zerolog/log"

	"emotion-worker-go/internal/models"
)

// Callback receives every completed detection. paths is nil when persistence failed.
type Callback func(frame *models.Frame, result *models.DetectionResult, paths *models.ArtifactPaths)

// SubscriptionID identifies a registered callback
type SubscriptionID uint64

type subscriber struct {
	id       SubscriptionID
	cameraID int64
	fn       Callback
}

// Callbacks is an observer list shared by all sampling loops. Subscribers
// registered for camera 0 receive results from every camera.
type Callbacks struct {
	mu     sync.RWMutex
	nextID SubscriptionID
	subs   []subscriber
}

func NewCallbacks() *Callbacks {
	return &Callbacks{}
}

// Add registers fn for cameraID and returns its subscription
func (c *Callbacks) Add(cameraID int64, fn Callback) SubscriptionID {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextID++
	c.subs = append(c.subs, subscriber{id: c.nextID, cameraID: cameraID, fn: fn})
	return c.nextID
}

// Remove drops a subscription; unknown IDs are ignored
func (c *Callbacks) Remove(id SubscriptionID) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, s := range c.subs {
		if s.id == id {
			c.subs = append(c.subs[:i:i], c.subs[i+1:]...)
			return true
		}
	}
	return false
}

func (c *Callbacks) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.subs)
}

// Invoke calls every matching subscriber outside the lock. A panicking
// subscriber is logged and does not affect the others.
func (c *Callbacks) Invoke(frame *models.Frame, result *models.DetectionResult, paths *models.ArtifactPaths) {
	if result == nil {
		return
	}
	c.mu.RLock()
	snapshot := make([]subscriber, 0, len(c.subs))
	for _, s := range c.subs {
		if s.cameraID == 0 || s.cameraID == result.CameraID {
			snapshot = append(snapshot, s)
		}
	}
	c.mu.RUnlock()

	for _, s := range snapshot {
		invokeSafely(s, frame, result, paths)
	}
}

func invokeSafely(s subscriber, frame *models.Frame, result *models.DetectionResult, paths *models.ArtifactPaths) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().
				Int64("camera_id", result.CameraID).
				Uint64("subscription_id", uint64(s.id)).
				Interface("panic", r).
				Msg("callback_panic_recovered")
		}
	}()
	s.fn(frame, result, paths)
}
