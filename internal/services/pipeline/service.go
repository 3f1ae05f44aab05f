// Package pipeline ties sessions, sampling loops, the scheduler and persistence
// together behind the operations exposed to the API.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"emotion-worker-go/internal/models"
	"emotion-worker-go/internal/repository"
	"emotion-worker-go/internal/services/camera"
	"emotion-worker-go/internal/services/sampling"
	"emotion-worker-go/internal/services/scheduler"
	"emotion-worker-go/internal/services/source"
)

var (
	ErrCameraNotFound     = errors.New("camera not found")
	ErrCaptureFailed      = errors.New("frame capture failed")
	ErrActivationRejected = errors.New("camera activation rejected")
	ErrInvalidImage       = errors.New("invalid image")
	ErrShutdown           = errors.New("pipeline is shut down")
)

// Store is the persistence the pipeline consumes
type Store interface {
	GetCamera(ctx context.Context, id int64) (*models.Camera, error)
	ListCameras(ctx context.Context) ([]models.Camera, error)
	CreateCamera(ctx context.Context, camera *models.Camera) error
	UpdateCamera(ctx context.Context, camera *models.Camera) error
	DeleteCamera(ctx context.Context, id int64) error
	SetCameraActive(ctx context.Context, id int64, active bool) error
	ListSchedules(ctx context.Context) ([]models.ScheduleEntry, error)
	UpsertSchedule(ctx context.Context, entry *models.ScheduleEntry) error
	DeleteSchedule(ctx context.Context, cameraID int64) error
	ListHistory(ctx context.Context, filter models.HistoryFilter) ([]models.HistoryRecord, int, error)
	ClearHistory(ctx context.Context, cameraID int64) ([]models.HistoryRecord, error)
}

// ArtifactRemover deletes persisted artifacts when history is cleared
type ArtifactRemover interface {
	Delete(ctx context.Context, paths models.ArtifactPaths) error
}

// Decoder turns an uploaded encoded image into a frame
type Decoder func(cameraID int64, data []byte) (*models.Frame, error)

type Options struct {
	DetectionEnabled bool
	SamplingInterval time.Duration
	SamplingPoll     time.Duration
	CaptureTimeout   time.Duration
	JobTimeout       time.Duration
	Clock            clockwork.Clock
	Decode           Decoder
}

func (o Options) withDefaults() Options {
	if o.SamplingInterval <= 0 {
		o.SamplingInterval = time.Second
	}
	if o.CaptureTimeout <= 0 {
		o.CaptureTimeout = 10 * time.Second
	}
	if o.JobTimeout <= 0 {
		o.JobTimeout = 30 * time.Second
	}
	if o.Clock == nil {
		o.Clock = clockwork.NewRealClock()
	}
	return o
}

// cameraLoop is a sampling loop bound to the session it reads frames from
type cameraLoop struct {
	*sampling.Loop
	session *camera.Session
}

// Service is the pipeline facade
type Service struct {
	store     Store
	artifacts ArtifactRemover
	sessions  *camera.CameraManager
	factory   source.Factory
	proc      sampling.Processor
	callbacks *sampling.Callbacks
	scheduler *scheduler.Scheduler
	opts      Options

	mu    sync.Mutex
	loops map[int64]*cameraLoop

	shutdownOnce sync.Once
	closed       chan struct{}
}

func New(store Store, artifacts ArtifactRemover, sessions *camera.CameraManager, factory source.Factory, proc sampling.Processor, opts Options) *Service {
	s := &Service{
		store:     store,
		artifacts: artifacts,
		sessions:  sessions,
		factory:   factory,
		proc:      proc,
		callbacks: sampling.NewCallbacks(),
		opts:      opts.withDefaults(),
		loops:     make(map[int64]*cameraLoop),
		closed:    make(chan struct{}),
	}
	s.scheduler = scheduler.New(s.scheduledCapture,
		scheduler.WithClock(s.opts.Clock),
		scheduler.WithJobTimeout(s.opts.JobTimeout))
	return s
}

// Start restores persisted schedules and active cameras, then starts the scheduler
func (s *Service) Start(ctx context.Context) error {
	if _, err := s.scheduler.LoadFromStore(ctx, s.store); err != nil {
		return fmt.Errorf("load schedules: %w", err)
	}
	s.scheduler.Start()
	if _, err := s.RestoreActive(ctx); err != nil {
		return fmt.Errorf("restore active cameras: %w", err)
	}
	return nil
}

func (s *Service) isClosed() bool {
	select {
	case <-s.closed:
		return true
	default:
		return false
	}
}

func (s *Service) lookup(ctx context.Context, id int64) (*models.Camera, error) {
	cam, err := s.store.GetCamera(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("%w: %d", ErrCameraNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return cam, nil
}

// ActivateCamera starts the camera's session and, when detection is enabled,
// its sampling loop. Calling it for an active camera is a no-op.
func (s *Service) ActivateCamera(ctx context.Context, id int64) error {
	if s.isClosed() {
		return ErrShutdown
	}
	cam, err := s.lookup(ctx, id)
	if err != nil {
		return err
	}

	sess, err := s.sessions.StartCamera(ctx, *cam)
	if err != nil {
		return fmt.Errorf("%w: camera %d: %w", ErrActivationRejected, id, err)
	}

	if err := s.store.SetCameraActive(ctx, id, true); err != nil {
		log.Warn().Err(err).Int64("camera_id", id).Msg("camera_active_flag_write_failed")
	}

	if s.opts.DetectionEnabled {
		s.startLoop(cam, sess)
	}
	log.Info().Int64("camera_id", id).Bool("sampling", s.opts.DetectionEnabled).Msg("camera_activated")
	return nil
}

// startLoop runs the sampling loop of cam against sess. A loop still bound to
// an older session of the camera is replaced.
func (s *Service) startLoop(cam *models.Camera, sess *camera.Session) {
	interval := cam.SamplingInterval
	if interval <= 0 {
		interval = s.opts.SamplingInterval
	}

	s.mu.Lock()
	prev, exists := s.loops[cam.ID]
	if exists && prev.session == sess {
		s.mu.Unlock()
		return
	}
	loop := sampling.NewLoop(cam.ID, sess, s.proc, s.callbacks, sampling.Options{
		Interval: interval,
		Poll:     s.opts.SamplingPoll,
		Clock:    s.opts.Clock,
	})
	s.loops[cam.ID] = &cameraLoop{Loop: loop, session: sess}
	s.mu.Unlock()

	if exists {
		prev.Stop()
		prev.Wait()
		log.Info().Int64("camera_id", cam.ID).Msg("sampling_loop_rebound")
	}
	loop.Start()
}

func (s *Service) stopLoop(id int64) {
	s.mu.Lock()
	loop, ok := s.loops[id]
	delete(s.loops, id)
	s.mu.Unlock()
	if ok {
		loop.Stop()
	}
}

// DeactivateCamera stops the sampling loop, then the session. Idempotent.
func (s *Service) DeactivateCamera(ctx context.Context, id int64) error {
	s.stopLoop(id)
	if err := s.sessions.StopCamera(id); err != nil {
		log.Warn().Err(err).Int64("camera_id", id).Msg("camera_session_stop_failed")
	}
	if err := s.store.SetCameraActive(ctx, id, false); err != nil && !errors.Is(err, repository.ErrNotFound) {
		log.Warn().Err(err).Int64("camera_id", id).Msg("camera_active_flag_write_failed")
	}
	log.Info().Int64("camera_id", id).Msg("camera_deactivated")
	return nil
}

// RunOnce performs a single detection for the camera. It uses the latest frame
// of a running session or captures one through a short-lived source. A capture
// failure returns ErrCaptureFailed and writes nothing.
func (s *Service) RunOnce(ctx context.Context, id int64) (*models.DetectionResult, *models.ArtifactPaths, error) {
	if s.isClosed() {
		return nil, nil, ErrShutdown
	}
	cam, err := s.lookup(ctx, id)
	if err != nil {
		return nil, nil, err
	}

	frame, err := s.captureFrame(ctx, cam)
	if err != nil {
		log.Warn().Err(err).Int64("camera_id", id).Msg("run_once_capture_failed")
		return nil, nil, fmt.Errorf("%w: camera %d: %w", ErrCaptureFailed, id, err)
	}
	return s.process(ctx, frame)
}

func (s *Service) captureFrame(ctx context.Context, cam *models.Camera) (*models.Frame, error) {
	if sess, ok := s.sessions.GetSession(cam.ID); ok && sess.IsRunning() {
		if frame, ok := sess.LatestFrame(); ok {
			return frame, nil
		}
	}
	ctx, cancel := context.WithTimeout(ctx, s.opts.CaptureTimeout)
	defer cancel()
	frame, err := source.CaptureOne(ctx, s.factory, cam)
	if err != nil {
		return nil, err
	}
	frame.CameraID = cam.ID
	return frame, nil
}

// ProcessUpload runs a detection on an uploaded image and persists it like a captured frame
func (s *Service) ProcessUpload(ctx context.Context, id int64, data []byte) (*models.DetectionResult, *models.ArtifactPaths, error) {
	if s.isClosed() {
		return nil, nil, ErrShutdown
	}
	if _, err := s.lookup(ctx, id); err != nil {
		return nil, nil, err
	}
	if s.opts.Decode == nil {
		return nil, nil, fmt.Errorf("%w: no decoder configured", ErrInvalidImage)
	}
	frame, err := s.opts.Decode(id, data)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %w", ErrInvalidImage, err)
	}
	frame.CameraID = id
	return s.process(ctx, frame)
}

func (s *Service) process(ctx context.Context, frame *models.Frame) (*models.DetectionResult, *models.ArtifactPaths, error) {
	result, paths, err := s.proc.Process(ctx, frame)
	if result != nil {
		s.callbacks.Invoke(frame, result, paths)
	}
	return result, paths, err
}

func (s *Service) scheduledCapture(ctx context.Context, id int64) error {
	_, _, err := s.RunOnce(ctx, id)
	return err
}

// SetSchedule validates and persists a trigger for the camera, replacing any previous one
func (s *Service) SetSchedule(ctx context.Context, id int64, trigger models.TriggerSpec) error {
	if _, err := s.lookup(ctx, id); err != nil {
		return err
	}
	if _, err := scheduler.ParseTrigger(trigger); err != nil {
		return err
	}
	entry := &models.ScheduleEntry{CameraID: id, Trigger: trigger, Active: true}
	if err := s.store.UpsertSchedule(ctx, entry); err != nil {
		return fmt.Errorf("persist schedule: %w", err)
	}
	return s.scheduler.Set(id, trigger)
}

// ClearSchedule removes the camera's trigger. Clearing a camera without one is a no-op.
func (s *Service) ClearSchedule(ctx context.Context, id int64) error {
	s.scheduler.Clear(id)
	if err := s.store.DeleteSchedule(ctx, id); err != nil {
		return fmt.Errorf("delete schedule: %w", err)
	}
	return nil
}

func (s *Service) GetSchedule(id int64) models.ScheduleStatus {
	return s.scheduler.Get(id)
}

func (s *Service) ListSchedules() []models.ScheduleStatus {
	return s.scheduler.List()
}

// Subscribe registers cb for results of the camera; id 0 receives every camera
func (s *Service) Subscribe(id int64, cb sampling.Callback) sampling.SubscriptionID {
	sub := s.callbacks.Add(id, cb)
	log.Debug().Int64("camera_id", id).Int("subscribers", s.callbacks.Len()).Msg("result_subscriber_added")
	return sub
}

func (s *Service) Unsubscribe(sub sampling.SubscriptionID) bool {
	removed := s.callbacks.Remove(sub)
	if removed {
		log.Debug().Int("subscribers", s.callbacks.Len()).Msg("result_subscriber_removed")
	}
	return removed
}

// RestoreActive activates every camera flagged active in the store. Failures
// are logged and skipped. It returns the number of cameras activated.
func (s *Service) RestoreActive(ctx context.Context) (int, error) {
	cams, err := s.store.ListCameras(ctx)
	if err != nil {
		return 0, err
	}
	restored := 0
	for _, cam := range cams {
		if !cam.Active {
			continue
		}
		if err := s.ActivateCamera(ctx, cam.ID); err != nil {
			log.Warn().Err(err).Int64("camera_id", cam.ID).Msg("camera_restore_failed")
			continue
		}
		restored++
	}
	log.Info().Int("count", restored).Msg("active_cameras_restored")
	return restored, nil
}

// Status reports session, sampling and schedule state for a camera
func (s *Service) Status(ctx context.Context, id int64) (*models.CameraStatusResponse, error) {
	cam, err := s.lookup(ctx, id)
	if err != nil {
		return nil, err
	}
	st := &models.CameraStatusResponse{
		CameraID:        id,
		SessionState:    camera.StateStopped.String(),
		ConnectionState: cam.ConnectionState,
		LastConnected:   cam.LastConnected,
	}
	if sess, ok := s.sessions.GetSession(id); ok {
		stats := sess.Stats()
		st.SessionState = sess.State().String()
		st.ConnectionState = sess.ConnectionState()
		st.LastFrameTime = stats.LastFrameTime
		st.FramesCaptured = stats.FramesCaptured
		st.ReadErrors = stats.ReadErrors
		st.Reconnects = stats.Reconnects
	}
	s.mu.Lock()
	loop, running := s.loops[id]
	s.mu.Unlock()
	if running {
		ls := loop.Stats()
		st.Sampling = true
		st.CyclesRun = ls.Cycles
		st.TicksSkipped = ls.TicksSkipped
	}
	return st, nil
}

// Shutdown stops the scheduler, every sampling loop and every session. Idempotent.
func (s *Service) Shutdown(ctx context.Context) error {
	s.shutdownOnce.Do(func() {
		close(s.closed)
		s.scheduler.Stop(ctx)

		s.mu.Lock()
		loops := s.loops
		s.loops = make(map[int64]*cameraLoop)
		s.mu.Unlock()

		var wg sync.WaitGroup
		for _, loop := range loops {
			wg.Add(1)
			go func(l *cameraLoop) {
				defer wg.Done()
				l.Stop()
				l.Wait()
			}(loop)
		}
		wg.Wait()

		s.sessions.StopAll()
		log.Info().Int("loops", len(loops)).Msg("pipeline_shutdown_complete")
	})
	return nil
}
