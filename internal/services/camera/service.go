package camera

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/rs/zerolog/log"

	"emotion-worker-go/internal/models"
	"emotion-worker-go/internal/services/source"
)

// CameraManager is the process-wide session registry. It holds at most one session per camera
// and never holds its lock while a session performs I/O.
type CameraManager struct {
	factory source.Factory
	states  StateRecorder
	opts    Options

	sessions map[int64]*Session
	starting map[*Session]int
	mutex    sync.Mutex
}

func NewCameraManager(factory source.Factory, states StateRecorder, opts Options) *CameraManager {
	return &CameraManager{
		factory:  factory,
		states:   states,
		opts:     opts.withDefaults(),
		sessions: make(map[int64]*Session),
		starting: make(map[*Session]int),
	}
}

// StartCamera returns the running session for camera, creating and starting one if needed.
// Concurrent calls for the same camera share a single session; a failed start only
// unregisters it once no other caller is still starting it.
func (cm *CameraManager) StartCamera(ctx context.Context, camera models.Camera) (*Session, error) {
	cm.mutex.Lock()
	sess, exists := cm.sessions[camera.ID]
	if !exists {
		sess = NewSession(camera, cm.factory, cm.states, cm.opts)
		cm.sessions[camera.ID] = sess
	}
	cm.starting[sess]++
	cm.mutex.Unlock()

	err := sess.Start(ctx)

	cm.mutex.Lock()
	pending := cm.starting[sess] - 1
	if pending == 0 {
		delete(cm.starting, sess)
	} else {
		cm.starting[sess] = pending
	}
	cur, registered := cm.sessions[camera.ID]

	if err != nil {
		if registered && cur == sess && pending == 0 && !sess.IsRunning() {
			delete(cm.sessions, camera.ID)
		}
		cm.mutex.Unlock()
		return nil, err
	}

	if registered && cur == sess {
		cm.mutex.Unlock()
		return sess, nil
	}
	cm.mutex.Unlock()

	// A concurrent stop dropped the session while it was starting
	if stopErr := sess.Stop(); stopErr != nil {
		log.Warn().Err(stopErr).Int64("camera_id", camera.ID).Msg("session_stop_failed")
	}
	if !registered {
		return nil, fmt.Errorf("camera %d: %w", camera.ID, ErrSessionNotRunning)
	}
	// A newer session owns the slot; share it
	return cm.StartCamera(ctx, camera)
}

// StopCamera stops and removes the camera's session. Unknown cameras are a no-op.
func (cm *CameraManager) StopCamera(cameraID int64) error {
	cm.mutex.Lock()
	sess, exists := cm.sessions[cameraID]
	delete(cm.sessions, cameraID)
	cm.mutex.Unlock()

	if !exists {
		return nil
	}
	return sess.Stop()
}

// GetSession returns the registered session for camera
func (cm *CameraManager) GetSession(cameraID int64) (*Session, bool) {
	cm.mutex.Lock()
	defer cm.mutex.Unlock()
	sess, ok := cm.sessions[cameraID]
	return sess, ok
}

// ListSessions returns the registered sessions ordered by camera ID
func (cm *CameraManager) ListSessions() []*Session {
	cm.mutex.Lock()
	out := make([]*Session, 0, len(cm.sessions))
	for _, s := range cm.sessions {
		out = append(out, s)
	}
	cm.mutex.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].CameraID() < out[j].CameraID() })
	return out
}

// StopAll drains the registry and stops every session in parallel. Idempotent.
func (cm *CameraManager) StopAll() {
	cm.mutex.Lock()
	sessions := cm.sessions
	cm.sessions = make(map[int64]*Session)
	cm.mutex.Unlock()

	var wg sync.WaitGroup
	for id, sess := range sessions {
		wg.Add(1)
		go func(id int64, sess *Session) {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					log.Error().Int64("camera_id", id).Interface("panic", r).Msg("session_stop_panic")
				}
			}()
			if err := sess.Stop(); err != nil {
				log.Warn().Err(err).Int64("camera_id", id).Msg("session_stop_failed")
			}
		}(id, sess)
	}
	wg.Wait()

	if len(sessions) > 0 {
		log.Info().Int("sessions", len(sessions)).Msg("all_camera_sessions_stopped")
	}
}
