package scheduler

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"

	"emotion-worker-go/internal/models"
)

// Job is run on every fire of a camera's trigger
type Job func(ctx context.Context, cameraID int64) error

// EntryLister supplies persisted schedule entries at startup
type EntryLister interface {
	ListSchedules(ctx context.Context) ([]models.ScheduleEntry, error)
}

type entry struct {
	cameraID int64
	spec     models.TriggerSpec
	sched    cron.Schedule
	next     time.Time
	last     *time.Time
	fires    int64
}

// Scheduler fires per-camera triggers from a single timer goroutine. The
// trigger table lock is never held while a job runs.
type Scheduler struct {
	clock      clockwork.Clock
	job        Job
	jobTimeout time.Duration

	mu      sync.Mutex
	entries map[int64]*entry

	wake chan struct{}

	lifeMu sync.Mutex
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
	jobs   sync.WaitGroup
}

type Option func(*Scheduler)

func WithClock(c clockwork.Clock) Option {
	return func(s *Scheduler) { s.clock = c }
}

// WithJobTimeout bounds a single fire
func WithJobTimeout(d time.Duration) Option {
	return func(s *Scheduler) { s.jobTimeout = d }
}

func New(job Job, opts ...Option) *Scheduler {
	s := &Scheduler{
		clock:      clockwork.NewRealClock(),
		job:        job,
		jobTimeout: 2 * time.Minute,
		entries:    make(map[int64]*entry),
		wake:       make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Set installs or atomically replaces the trigger of a camera
func (s *Scheduler) Set(cameraID int64, spec models.TriggerSpec) error {
	sched, err := ParseTrigger(spec)
	if err != nil {
		return err
	}

	s.mu.Lock()
	e := &entry{
		cameraID: cameraID,
		spec:     spec,
		sched:    sched,
		next:     sched.Next(s.clock.Now()),
	}
	s.entries[cameraID] = e
	next := e.next
	s.mu.Unlock()

	s.notify()
	log.Info().
		Int64("camera_id", cameraID).
		Str("kind", string(spec.Kind)).
		Time("next_fire", next).
		Msg("schedule_set")
	return nil
}

// Clear cancels the trigger of a camera; it is a no-op when none exists
func (s *Scheduler) Clear(cameraID int64) bool {
	s.mu.Lock()
	_, ok := s.entries[cameraID]
	delete(s.entries, cameraID)
	s.mu.Unlock()

	if ok {
		s.notify()
		log.Info().Int64("camera_id", cameraID).Msg("schedule_cleared")
	}
	return ok
}

func (s *Scheduler) Get(cameraID int64) models.ScheduleStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[cameraID]
	if !ok {
		return models.ScheduleStatus{CameraID: cameraID}
	}
	return e.status()
}

func (s *Scheduler) List() []models.ScheduleStatus {
	s.mu.Lock()
	out := make([]models.ScheduleStatus, 0, len(s.entries))
	for _, e := range s.entries {
		out = append(out, e.status())
	}
	s.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].CameraID < out[j].CameraID })
	return out
}

func (e *entry) status() models.ScheduleStatus {
	next := e.next
	spec := e.spec
	st := models.ScheduleStatus{
		CameraID:  e.cameraID,
		Active:    true,
		NextFire:  &next,
		FireCount: e.fires,
		Trigger:   &spec,
	}
	if e.last != nil {
		last := *e.last
		st.LastFire = &last
	}
	return st
}

// LoadFromStore installs every active persisted entry. Invalid entries are
// logged and skipped. It returns the number installed.
func (s *Scheduler) LoadFromStore(ctx context.Context, store EntryLister) (int, error) {
	entries, err := store.ListSchedules(ctx)
	if err != nil {
		return 0, err
	}
	loaded := 0
	for _, e := range entries {
		if !e.Active {
			continue
		}
		if err := s.Set(e.CameraID, e.Trigger); err != nil {
			log.Warn().Err(err).Int64("camera_id", e.CameraID).Msg("schedule_restore_skipped")
			continue
		}
		loaded++
	}
	log.Info().Int("count", loaded).Msg("schedules_restored")
	return loaded, nil
}

// Start launches the timer goroutine; repeated calls are no-ops
func (s *Scheduler) Start() {
	s.lifeMu.Lock()
	defer s.lifeMu.Unlock()
	if s.cancel != nil {
		return
	}
	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.done = make(chan struct{})
	go s.run(s.ctx, s.done)
	log.Info().Msg("scheduler_started")
}

// Stop halts the timer goroutine and waits for running jobs up to ctx
func (s *Scheduler) Stop(ctx context.Context) {
	s.lifeMu.Lock()
	defer s.lifeMu.Unlock()
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done

	jobsDone := make(chan struct{})
	go func() {
		s.jobs.Wait()
		close(jobsDone)
	}()
	select {
	case <-jobsDone:
	case <-ctx.Done():
		log.Warn().Msg("scheduler_stop_jobs_still_running")
	}
	s.cancel = nil
	log.Info().Msg("scheduler_stopped")
}

func (s *Scheduler) notify() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *Scheduler) run(ctx context.Context, done chan struct{}) {
	defer close(done)
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("scheduler_panic_recovered")
		}
	}()

	for {
		var timer clockwork.Timer
		var fire <-chan time.Time
		if next, ok := s.earliest(); ok {
			d := next.Sub(s.clock.Now())
			if d < 0 {
				d = 0
			}
			timer = s.clock.NewTimer(d)
			fire = timer.Chan()
		}

		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return
		case <-s.wake:
			if timer != nil {
				timer.Stop()
			}
		case <-fire:
			s.fireDue(ctx, s.clock.Now())
		}
	}
}

func (s *Scheduler) earliest() (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var min time.Time
	for _, e := range s.entries {
		if min.IsZero() || e.next.Before(min) {
			min = e.next
		}
	}
	return min, !min.IsZero()
}

// fireDue advances every due entry from the fire time and runs its job
func (s *Scheduler) fireDue(ctx context.Context, now time.Time) {
	var due []int64
	s.mu.Lock()
	for id, e := range s.entries {
		if e.next.After(now) {
			continue
		}
		fired := now
		e.last = &fired
		e.fires++
		e.next = e.sched.Next(now)
		due = append(due, id)
	}
	s.mu.Unlock()

	for _, id := range due {
		s.jobs.Add(1)
		go s.fire(ctx, id)
	}
}

func (s *Scheduler) fire(ctx context.Context, cameraID int64) {
	defer s.jobs.Done()
	defer func() {
		if r := recover(); r != nil {
			log.Error().Int64("camera_id", cameraID).Interface("panic", r).Msg("scheduled_job_panic_recovered")
		}
	}()

	ctx, cancel := context.WithTimeout(ctx, s.jobTimeout)
	defer cancel()

	start := time.Now()
	if err := s.job(ctx, cameraID); err != nil {
		log.Warn().Err(err).Int64("camera_id", cameraID).Msg("scheduled_job_failed")
		return
	}
	log.Info().Int64("camera_id", cameraID).Dur("duration", time.Since(start)).Msg("scheduled_job_completed")
}
