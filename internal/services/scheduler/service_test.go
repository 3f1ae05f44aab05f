package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"emotion-worker-go/internal/models"
)

var start = time.Date(2024, 3, 4, 8, 0, 0, 0, time.UTC)

type recordingJob struct {
	mu    sync.Mutex
	fired []int64
	err   error
}

func (j *recordingJob) run(_ context.Context, cameraID int64) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.fired = append(j.fired, cameraID)
	return j.err
}

func (j *recordingJob) count() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return len(j.fired)
}

func everyMinutes(n int) models.TriggerSpec {
	return models.TriggerSpec{Kind: models.TriggerInterval, IntervalMinutes: n}
}

func started(t *testing.T, job Job) (*Scheduler, *clockwork.FakeClock) {
	t.Helper()
	clock := clockwork.NewFakeClockAt(start)
	s := New(job, WithClock(clock))
	s.Start()
	t.Cleanup(func() { s.Stop(context.Background()) })
	return s, clock
}

// advance moves the fake clock one step once the timer goroutine is waiting
func advance(t *testing.T, clock *clockwork.FakeClock, d time.Duration) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, clock.BlockUntilContext(ctx, 1))
	clock.Advance(d)
}

func TestIntervalTriggerFires(t *testing.T) {
	job := &recordingJob{}
	s, clock := started(t, job.run)

	require.NoError(t, s.Set(7, everyMinutes(1)))
	for i := 1; i <= 3; i++ {
		advance(t, clock, time.Minute)
		require.Eventually(t, func() bool { return job.count() == i }, time.Second, 5*time.Millisecond)
	}

	st := s.Get(7)
	assert.True(t, st.Active)
	assert.Equal(t, int64(3), st.FireCount)
	require.NotNil(t, st.LastFire)
	assert.WithinDuration(t, start.Add(3*time.Minute), *st.LastFire, 0)
	assert.WithinDuration(t, start.Add(4*time.Minute), *st.NextFire, 0)
}

func TestSetReplacesExistingTrigger(t *testing.T) {
	s, _ := started(t, (&recordingJob{}).run)

	require.NoError(t, s.Set(1, everyMinutes(5)))
	require.NoError(t, s.Set(1, everyMinutes(10)))

	list := s.List()
	require.Len(t, list, 1)
	assert.Equal(t, 10, list[0].Trigger.IntervalMinutes)
	assert.WithinDuration(t, start.Add(10*time.Minute), *list[0].NextFire, 0)
}

func TestClearStopsFiring(t *testing.T) {
	job := &recordingJob{}
	s, clock := started(t, job.run)

	require.NoError(t, s.Set(2, everyMinutes(1)))
	assert.True(t, s.Clear(2))
	assert.False(t, s.Clear(2))

	for i := 0; i < 5; i++ {
		clock.Advance(time.Minute)
		time.Sleep(5 * time.Millisecond)
	}

	assert.Zero(t, job.count())
	assert.False(t, s.Get(2).Active)
	assert.Empty(t, s.List())
}

func TestFailedJobKeepsSchedule(t *testing.T) {
	job := &recordingJob{err: errors.New("camera unreachable")}
	s, clock := started(t, job.run)

	require.NoError(t, s.Set(3, everyMinutes(2)))
	advance(t, clock, 2*time.Minute)
	require.Eventually(t, func() bool { return job.count() == 1 }, time.Second, 5*time.Millisecond)
	advance(t, clock, 2*time.Minute)
	require.Eventually(t, func() bool { return job.count() == 2 }, time.Second, 5*time.Millisecond)

	st := s.Get(3)
	assert.True(t, st.Active)
	assert.Equal(t, int64(2), st.FireCount)
}

func TestCalendarTriggerNextFire(t *testing.T) {
	s, _ := started(t, (&recordingJob{}).run)

	require.NoError(t, s.Set(4, models.TriggerSpec{Kind: models.TriggerCalendar, Hour: "9,17", Minute: "30"}))
	assert.WithinDuration(t, time.Date(2024, 3, 4, 9, 30, 0, 0, time.UTC), *s.Get(4).NextFire, 0)

	require.NoError(t, s.Set(4, models.TriggerSpec{Kind: models.TriggerCalendar, Hour: "6-7"}))
	assert.WithinDuration(t, time.Date(2024, 3, 5, 6, 0, 0, 0, time.UTC), *s.Get(4).NextFire, 0)
}

func TestInvalidTriggersAreRejected(t *testing.T) {
	s, _ := started(t, (&recordingJob{}).run)

	invalid := []models.TriggerSpec{
		everyMinutes(0),
		{Kind: models.TriggerCalendar},
		{Kind: models.TriggerCalendar, Hour: "24"},
		{Kind: models.TriggerCalendar, Hour: "8", Minute: "60"},
		{Kind: models.TriggerCalendar, Hour: "9-3"},
		{Kind: models.TriggerCalendar, Hour: "8,,9"},
		{Kind: models.TriggerCalendar, Hour: "noon"},
		{Kind: "weekly"},
	}
	for _, spec := range invalid {
		err := s.Set(5, spec)
		assert.ErrorIs(t, err, ErrInvalidTrigger, "%+v", spec)
	}
	assert.False(t, s.Get(5).Active)
}

func TestIndependentCamerasFireSeparately(t *testing.T) {
	job := &recordingJob{}
	s, clock := started(t, job.run)

	require.NoError(t, s.Set(1, everyMinutes(1)))
	require.NoError(t, s.Set(2, everyMinutes(2)))

	for i := 0; i < 4; i++ {
		advance(t, clock, time.Minute)
		time.Sleep(5 * time.Millisecond)
	}
	require.Eventually(t, func() bool { return job.count() == 6 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, int64(4), s.Get(1).FireCount)
	assert.Equal(t, int64(2), s.Get(2).FireCount)
}

type fakeLister struct {
	entries []models.ScheduleEntry
	err     error
}

func (f fakeLister) ListSchedules(context.Context) ([]models.ScheduleEntry, error) {
	return f.entries, f.err
}

func TestLoadFromStore(t *testing.T) {
	s, _ := started(t, (&recordingJob{}).run)

	n, err := s.LoadFromStore(context.Background(), fakeLister{entries: []models.ScheduleEntry{
		{CameraID: 1, Active: true, Trigger: everyMinutes(15)},
		{CameraID: 2, Active: false, Trigger: everyMinutes(15)},
		{CameraID: 3, Active: true, Trigger: everyMinutes(0)},
		{CameraID: 4, Active: true, Trigger: models.TriggerSpec{Kind: models.TriggerCalendar, Hour: "12"}},
	}})

	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.True(t, s.Get(1).Active)
	assert.False(t, s.Get(2).Active)
	assert.False(t, s.Get(3).Active)
	assert.True(t, s.Get(4).Active)

	_, err = s.LoadFromStore(context.Background(), fakeLister{err: errors.New("db down")})
	assert.Error(t, err)
}

func TestJobPanicIsRecovered(t *testing.T) {
	var calls atomic.Int32
	s, clock := started(t, func(context.Context, int64) error {
		calls.Add(1)
		panic("nil camera")
	})

	require.NoError(t, s.Set(9, everyMinutes(1)))
	advance(t, clock, time.Minute)
	require.Eventually(t, func() bool { return calls.Load() == 1 }, time.Second, 5*time.Millisecond)
	advance(t, clock, time.Minute)
	require.Eventually(t, func() bool { return calls.Load() == 2 }, time.Second, 5*time.Millisecond)
}

func TestStopIsIdempotent(t *testing.T) {
	s := New((&recordingJob{}).run, WithClock(clockwork.NewFakeClockAt(start)))
	s.Stop(context.Background())
	s.Start()
	s.Start()
	s.Stop(context.Background())
	s.Stop(context.Background())
}
