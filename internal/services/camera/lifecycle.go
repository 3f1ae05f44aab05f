package camera

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"emotion-worker-go/internal/logging"
	"emotion-worker-go/internal/models"
	"emotion-worker-go/internal/services/source"
)

var ErrSessionNotRunning = errors.New("camera session is not running")

// SessionState represents the atomic state of a camera session
type SessionState int32

const (
	StateStopped SessionState = iota
	StateStarting
	StateRunning
	StateStopping
	StateFailed
)

func (s SessionState) String() string {
	switch s {
	case StateStopped:
		return "stopped"
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// StateRecorder persists connection state changes made by a session
type StateRecorder interface {
	UpdateConnectionState(ctx context.Context, cameraID int64, state models.ConnectionState, lastConnected *time.Time) error
}

// Options tune the capture loop
type Options struct {
	FPS          int
	RetryDelay   time.Duration
	StopTimeout  time.Duration
	StateTimeout time.Duration

	// Read retries back off exponentially from RetryDelay up to BackoffMax,
	// spread by +/- JitterPct percent. A zero BackoffMax keeps RetryDelay fixed.
	BackoffMax time.Duration
	JitterPct  int
}

func (o Options) withDefaults() Options {
	if o.FPS <= 0 {
		o.FPS = 30
	}
	if o.RetryDelay <= 0 {
		o.RetryDelay = time.Second
	}
	if o.StopTimeout <= 0 {
		o.StopTimeout = 5 * time.Second
	}
	if o.StateTimeout <= 0 {
		o.StateTimeout = 5 * time.Second
	}
	if o.BackoffMax < o.RetryDelay {
		o.BackoffMax = o.RetryDelay
	}
	if o.JitterPct < 0 {
		o.JitterPct = 0
	}
	if o.JitterPct > 100 {
		o.JitterPct = 100
	}
	return o
}

// Stats is a snapshot of session counters
type Stats struct {
	FramesCaptured int64
	ReadErrors     int64
	Reconnects     int64
	LastFrameTime  *time.Time
}

// Session owns the frame source of one camera and keeps its latest frame available
type Session struct {
	camera  models.Camera
	factory source.Factory
	states  StateRecorder
	opts    Options
	logger  zerolog.Logger

	state int32

	// Serializes Start and Stop; never taken by the capture loop
	lifeMu   sync.Mutex
	cancel   context.CancelFunc
	loopDone chan struct{}

	srcMu sync.Mutex
	src   source.Source

	connMu        sync.RWMutex
	conn          models.ConnectionState
	lastConnected *time.Time

	frameMu sync.RWMutex
	latest  *models.Frame

	framesCaptured atomic.Int64
	readErrors     atomic.Int64
	reconnects     atomic.Int64
	lastFrameAt    atomic.Int64
}

// NewSession creates a stopped session for camera
func NewSession(camera models.Camera, factory source.Factory, states StateRecorder, opts Options) *Session {
	s := &Session{
		camera:        camera,
		factory:       factory,
		states:        states,
		opts:          opts.withDefaults(),
		logger:        logging.WithCamera(log.Logger, camera.ID),
		conn:          models.ConnectionDisconnected,
		lastConnected: camera.LastConnected,
	}
	s.setState(StateStopped)
	return s
}

func (s *Session) setState(state SessionState) {
	atomic.StoreInt32(&s.state, int32(state))
}

// State returns the session lifecycle state
func (s *Session) State() SessionState {
	return SessionState(atomic.LoadInt32(&s.state))
}

// IsRunning reports whether the capture loop is alive
func (s *Session) IsRunning() bool {
	return s.State() == StateRunning
}

// CameraID returns the camera the session owns
func (s *Session) CameraID() int64 {
	return s.camera.ID
}

// Camera returns a copy of the camera configuration with the live connection state
func (s *Session) Camera() models.Camera {
	cam := s.camera
	s.connMu.RLock()
	cam.ConnectionState = s.conn
	cam.LastConnected = s.lastConnected
	s.connMu.RUnlock()
	return cam
}

// ConnectionState returns the last observed connection state
func (s *Session) ConnectionState() models.ConnectionState {
	s.connMu.RLock()
	defer s.connMu.RUnlock()
	return s.conn
}

// Start opens the source and spawns the capture loop. It is a no-op when already running.
func (s *Session) Start(ctx context.Context) error {
	s.lifeMu.Lock()
	defer s.lifeMu.Unlock()

	switch s.State() {
	case StateRunning:
		return nil
	case StateFailed:
		// Loop already exited on its own; release what it left behind
		s.waitLoop()
	}
	s.setState(StateStarting)
	s.setConnection(models.ConnectionConnecting, nil)

	src, err := s.factory.New(&s.camera)
	if err != nil {
		s.setState(StateStopped)
		s.setConnection(models.ConnectionError, nil)
		return fmt.Errorf("camera %d: %w", s.camera.ID, err)
	}
	if err := src.Open(ctx); err != nil {
		_ = src.Close()
		s.setState(StateStopped)
		s.setConnection(models.ConnectionError, nil)
		s.logger.Error().Err(err).Msg("camera_open_failed")
		return fmt.Errorf("camera %d: %w", s.camera.ID, err)
	}

	now := time.Now()
	s.setConnection(models.ConnectionConnected, &now)
	s.setSource(src)

	loopCtx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.loopDone = make(chan struct{})
	s.setState(StateRunning)

	go s.captureLoop(loopCtx, s.loopDone)

	s.logger.Info().
		Str("transport", src.Kind().String()).
		Int("fps", s.opts.FPS).
		Msg("camera_session_started")
	return nil
}

// Stop cancels the capture loop, waits for it with a bounded timeout and releases the source.
// Safe to call repeatedly and after the loop exited on its own.
func (s *Session) Stop() error {
	s.lifeMu.Lock()
	defer s.lifeMu.Unlock()

	prev := s.State()
	if prev == StateStopped {
		return nil
	}
	s.setState(StateStopping)

	s.waitLoop()
	s.closeSource()
	s.clearFrame()
	s.setConnection(models.ConnectionDisconnected, nil)
	s.setState(StateStopped)

	s.logger.Info().Str("previous_state", prev.String()).Msg("camera_session_stopped")
	return nil
}

// waitLoop cancels the loop and waits at most StopTimeout for it to exit
func (s *Session) waitLoop() {
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	if s.loopDone == nil {
		return
	}
	select {
	case <-s.loopDone:
	case <-time.After(s.opts.StopTimeout):
		s.logger.Warn().Dur("timeout", s.opts.StopTimeout).Msg("capture_loop_stop_timeout")
	}
	s.loopDone = nil
}

// LatestFrame returns a private copy of the most recent frame. A session that
// is not running has no frame to offer.
func (s *Session) LatestFrame() (*models.Frame, bool) {
	if !s.IsRunning() {
		return nil, false
	}
	s.frameMu.RLock()
	f := s.latest
	s.frameMu.RUnlock()
	if f == nil {
		return nil, false
	}
	return f.Clone(), true
}

func (s *Session) clearFrame() {
	s.frameMu.Lock()
	s.latest = nil
	s.frameMu.Unlock()
}

func (s *Session) storeFrame(f *models.Frame) {
	s.frameMu.Lock()
	s.latest = f
	s.frameMu.Unlock()
	s.framesCaptured.Add(1)
	s.lastFrameAt.Store(f.Timestamp.UnixNano())
}

// Stats returns a snapshot of the capture counters
func (s *Session) Stats() Stats {
	st := Stats{
		FramesCaptured: s.framesCaptured.Load(),
		ReadErrors:     s.readErrors.Load(),
		Reconnects:     s.reconnects.Load(),
	}
	if ns := s.lastFrameAt.Load(); ns != 0 {
		t := time.Unix(0, ns)
		st.LastFrameTime = &t
	}
	return st
}

func (s *Session) setSource(src source.Source) {
	s.srcMu.Lock()
	s.src = src
	s.srcMu.Unlock()
}

func (s *Session) currentSource() source.Source {
	s.srcMu.Lock()
	defer s.srcMu.Unlock()
	return s.src
}

func (s *Session) closeSource() {
	s.srcMu.Lock()
	src := s.src
	s.src = nil
	s.srcMu.Unlock()
	if src != nil {
		if err := src.Close(); err != nil {
			s.logger.Debug().Err(err).Msg("source_close_error")
		}
	}
}

// setConnection records the state and writes it through to the persistence store.
// lastConnected is only updated when non-nil.
func (s *Session) setConnection(state models.ConnectionState, lastConnected *time.Time) {
	s.connMu.Lock()
	changed := s.conn != state || lastConnected != nil
	s.conn = state
	if lastConnected != nil {
		s.lastConnected = lastConnected
	}
	s.connMu.Unlock()

	if !changed || s.states == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), s.opts.StateTimeout)
	defer cancel()
	if err := s.states.UpdateConnectionState(ctx, s.camera.ID, state, lastConnected); err != nil {
		s.logger.Warn().Err(err).Str("state", state.String()).Msg("connection_state_write_failed")
	}
}
