package sampling

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"emotion-worker-go/internal/logging"
	"emotion-worker-go/internal/models"
)

// FrameSource exposes the latest captured frame of a camera
type FrameSource interface {
	LatestFrame() (*models.Frame, bool)
}

// Processor runs one detection cycle and persists it
type Processor interface {
	Process(ctx context.Context, frame *models.Frame) (*models.DetectionResult, *models.ArtifactPaths, error)
}

// LoopState is Idle between cycles and Running while one is in flight
type LoopState int32

const (
	StateIdle LoopState = iota
	StateRunning
)

func (s LoopState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	default:
		return "unknown"
	}
}

type Options struct {
	Interval    time.Duration
	Poll        time.Duration
	StopTimeout time.Duration
	Clock       clockwork.Clock
}

func (o Options) withDefaults() Options {
	if o.Interval <= 0 {
		o.Interval = time.Second
	}
	if o.Poll <= 0 {
		o.Poll = 100 * time.Millisecond
	}
	if o.StopTimeout <= 0 {
		o.StopTimeout = 2 * time.Second
	}
	if o.Clock == nil {
		o.Clock = clockwork.NewRealClock()
	}
	return o
}

// Stats is a snapshot of loop counters
type Stats struct {
	State        string     `json:"state"`
	Cycles       int64      `json:"cycles"`
	Failures     int64      `json:"persist_failures"`
	TicksSkipped int64      `json:"ticks_skipped"`
	LastResultAt *time.Time `json:"last_result_at,omitempty"`
	Interval     string     `json:"interval"`
}

// Loop periodically submits the latest frame of one camera to the processor.
// At most one cycle per camera is in flight; ticks arriving meanwhile are dropped.
type Loop struct {
	cameraID  int64
	source    FrameSource
	proc      Processor
	callbacks *Callbacks
	opts      Options
	logger    zerolog.Logger

	state atomic.Int32

	mu      sync.Mutex
	lastRun time.Time

	lifeMu   sync.Mutex
	cancel   context.CancelFunc
	tickDone chan struct{}

	inflight sync.WaitGroup

	cycles       atomic.Int64
	failures     atomic.Int64
	skipped      atomic.Int64
	lastResultAt atomic.Int64
}

func NewLoop(cameraID int64, source FrameSource, proc Processor, callbacks *Callbacks, opts Options) *Loop {
	if callbacks == nil {
		callbacks = NewCallbacks()
	}
	return &Loop{
		cameraID:  cameraID,
		source:    source,
		proc:      proc,
		callbacks: callbacks,
		opts:      opts.withDefaults(),
		logger:    logging.WithCamera(log.Logger, cameraID).With().Str("service", "sampling").Logger(),
	}
}

func (l *Loop) CameraID() int64 {
	return l.cameraID
}

func (l *Loop) State() LoopState {
	return LoopState(l.state.Load())
}

// Start launches the poll goroutine; it is a no-op if already started
func (l *Loop) Start() {
	l.lifeMu.Lock()
	defer l.lifeMu.Unlock()
	if l.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	l.cancel = cancel
	l.tickDone = make(chan struct{})
	go l.poll(ctx, l.tickDone)

	l.logger.Info().Dur("interval", l.opts.Interval).Msg("sampling_loop_started")
}

// Stop halts ticking and waits boundedly for the poll goroutine. An in-flight
// cycle finishes on its own goroutine.
func (l *Loop) Stop() {
	l.lifeMu.Lock()
	defer l.lifeMu.Unlock()
	if l.cancel == nil {
		return
	}
	l.cancel()
	select {
	case <-l.tickDone:
	case <-time.After(l.opts.StopTimeout):
		l.logger.Warn().Dur("timeout", l.opts.StopTimeout).Msg("sampling_loop_stop_timeout")
	}
	l.cancel = nil
	l.tickDone = nil
	l.logger.Info().Msg("sampling_loop_stopped")
}

func (l *Loop) poll(ctx context.Context, done chan struct{}) {
	defer close(done)
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error().Interface("panic", r).Msg("sampling_loop_panic_recovered")
		}
	}()

	ticker := l.opts.Clock.NewTicker(l.opts.Poll)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.Chan():
			l.Tick(now)
		}
	}
}

// Tick starts a cycle when the loop is idle, a frame is available and the
// interval has elapsed since the previous cycle. It reports whether a cycle started.
func (l *Loop) Tick(now time.Time) bool {
	if l.State() == StateRunning {
		l.skipped.Add(1)
		return false
	}
	frame, ok := l.source.LatestFrame()
	if !ok || frame == nil {
		return false
	}

	l.mu.Lock()
	if !l.lastRun.IsZero() && now.Sub(l.lastRun) < l.opts.Interval {
		l.mu.Unlock()
		return false
	}
	if !l.state.CompareAndSwap(int32(StateIdle), int32(StateRunning)) {
		l.mu.Unlock()
		l.skipped.Add(1)
		return false
	}
	l.lastRun = now
	l.mu.Unlock()

	l.inflight.Add(1)
	go l.runCycle(frame)
	return true
}

func (l *Loop) runCycle(frame *models.Frame) {
	defer l.inflight.Done()
	defer l.state.Store(int32(StateIdle))
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error().Interface("panic", r).Msg("sampling_cycle_panic_recovered")
		}
	}()

	result, paths, err := l.proc.Process(context.Background(), frame)
	if err != nil {
		l.failures.Add(1)
		l.logger.Warn().Err(err).Msg("sampling_cycle_persist_failed")
	}
	l.cycles.Add(1)
	l.lastResultAt.Store(time.Now().UnixNano())

	l.callbacks.Invoke(frame, result, paths)
}

// Wait blocks until no cycle is in flight
func (l *Loop) Wait() {
	l.inflight.Wait()
}

func (l *Loop) Stats() Stats {
	st := Stats{
		State:        l.State().String(),
		Cycles:       l.cycles.Load(),
		Failures:     l.failures.Load(),
		TicksSkipped: l.skipped.Load(),
		Interval:     l.opts.Interval.String(),
	}
	if ns := l.lastResultAt.Load(); ns > 0 {
		t := time.Unix(0, ns)
		st.LastResultAt = &t
	}
	return st
}
