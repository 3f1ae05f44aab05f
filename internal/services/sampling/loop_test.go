package sampling

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

type staticSource struct {
	mu    sync.Mutex
	frame *models.Frame
}

func (s *staticSource) LatestFrame() (*models.Frame, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.frame == nil {
		return nil, false
	}
	return s.frame.Clone(), true
}

type countingProcessor struct {
	calls     atomic.Int32
	active    atomic.Int32
	maxActive atomic.Int32
	release   chan struct{}
	err       error
}

func (p *countingProcessor) Process(_ context.Context, frame *models.Frame) (*models.DetectionResult, *models.ArtifactPaths, error) {
	p.calls.Add(1)
	n := p.active.Add(1)
	for {
		m := p.maxActive.Load()
		if n <= m || p.maxActive.CompareAndSwap(m, n) {
			break
		}
	}
	if p.release != nil {
		<-p.release
	}
	p.active.Add(-1)
	result := &models.DetectionResult{CameraID: frame.CameraID, Dominant: models.EmotionHappy}
	if p.err != nil {
		return result, nil, p.err
	}
	return result, &models.ArtifactPaths{Raw: "camera1/x.jpg"}, nil
}

func newFrame(cameraID int64) *models.Frame {
	return &models.Frame{CameraID: cameraID, Width: 2, Height: 2, Data: make([]byte, 12)}
}

func TestTickRespectsInterval(t *testing.T) {
	proc := &countingProcessor{}
	l := NewLoop(1, &staticSource{frame: newFrame(1)}, proc, nil, Options{Interval: 2 * time.Second})

	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 100; i++ {
		l.Tick(base.Add(time.Duration(i) * 100 * time.Millisecond))
		l.Wait()
	}

	assert.Equal(t, int32(5), proc.calls.Load())
	assert.Equal(t, int32(1), proc.maxActive.Load())
	assert.Equal(t, int64(5), l.Stats().Cycles)
}

func TestTickDropsWhileRunning(t *testing.T) {
	proc := &countingProcessor{release: make(chan struct{})}
	l := NewLoop(1, &staticSource{frame: newFrame(1)}, proc, nil, Options{Interval: 100 * time.Millisecond})

	base := time.Now()
	require.True(t, l.Tick(base))
	for i := 1; i <= 20; i++ {
		assert.False(t, l.Tick(base.Add(time.Duration(i)*time.Second)))
	}
	assert.Equal(t, StateRunning, l.State())

	close(proc.release)
	l.Wait()

	assert.Equal(t, StateIdle, l.State())
	assert.Equal(t, int32(1), proc.calls.Load())
	assert.Equal(t, int32(1), proc.maxActive.Load())
	assert.Equal(t, int64(20), l.Stats().TicksSkipped)

	assert.True(t, l.Tick(base.Add(30*time.Second)))
	l.Wait()
	assert.Equal(t, int32(2), proc.calls.Load())
}

func TestTickWithoutFrameDoesNothing(t *testing.T) {
	proc := &countingProcessor{}
	l := NewLoop(1, &staticSource{}, proc, nil, Options{})

	assert.False(t, l.Tick(time.Now()))
	l.Wait()
	assert.Zero(t, proc.calls.Load())
}

func TestCallbacksReceiveResults(t *testing.T) {
	cbs := NewCallbacks()
	var mu sync.Mutex
	var got []int64
	var allCams int
	cbs.Add(1, func(_ *models.Frame, r *models.DetectionResult, p *models.ArtifactPaths) {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, r.CameraID)
		assert.NotNil(t, p)
	})
	cbs.Add(2, func(*models.Frame, *models.DetectionResult, *models.ArtifactPaths) {
		t.Error("callback for another camera invoked")
	})
	cbs.Add(0, func(*models.Frame, *models.DetectionResult, *models.ArtifactPaths) {
		mu.Lock()
		allCams++
		mu.Unlock()
	})

	l := NewLoop(1, &staticSource{frame: newFrame(1)}, &countingProcessor{}, cbs, Options{})
	require.True(t, l.Tick(time.Now()))
	l.Wait()

	assert.Equal(t, []int64{1}, got)
	assert.Equal(t, 1, allCams)
}

func TestCallbacksStillInvokedOnPersistFailure(t *testing.T) {
	cbs := NewCallbacks()
	var gotPaths *models.ArtifactPaths
	var called bool
	cbs.Add(0, func(_ *models.Frame, _ *models.DetectionResult, p *models.ArtifactPaths) {
		called = true
		gotPaths = p
	})

	l := NewLoop(3, &staticSource{frame: newFrame(3)}, &countingProcessor{err: errors.New("disk full")}, cbs, Options{})
	require.True(t, l.Tick(time.Now()))
	l.Wait()

	assert.True(t, called)
	assert.Nil(t, gotPaths)
	assert.Equal(t, int64(1), l.Stats().Failures)
}

func TestPanickingCallbackIsIsolated(t *testing.T) {
	cbs := NewCallbacks()
	var second atomic.Bool
	cbs.Add(0, func(*models.Frame, *models.DetectionResult, *models.ArtifactPaths) {
		panic("subscriber bug")
	})
	cbs.Add(0, func(*models.Frame, *models.DetectionResult, *models.ArtifactPaths) {
		second.Store(true)
	})

	l := NewLoop(1, &staticSource{frame: newFrame(1)}, &countingProcessor{}, cbs, Options{})
	require.True(t, l.Tick(time.Now()))
	l.Wait()

	assert.True(t, second.Load())
	assert.Equal(t, StateIdle, l.State())
	assert.True(t, l.Tick(time.Now().Add(time.Hour)))
	l.Wait()
}

func TestCallbackRemovalDuringIteration(t *testing.T) {
	cbs := NewCallbacks()
	var id SubscriptionID
	var calls atomic.Int32
	id = cbs.Add(0, func(*models.Frame, *models.DetectionResult, *models.ArtifactPaths) {
		calls.Add(1)
		cbs.Remove(id)
	})
	cbs.Add(0, func(*models.Frame, *models.DetectionResult, *models.ArtifactPaths) {
		calls.Add(1)
	})

	result := &models.DetectionResult{CameraID: 1}
	cbs.Invoke(nil, result, nil)
	cbs.Invoke(nil, result, nil)

	assert.Equal(t, int32(3), calls.Load())
	assert.Equal(t, 1, cbs.Len())
	assert.False(t, cbs.Remove(id))
}

func TestStartStopWithFakeClock(t *testing.T) {
	clock := clockwork.NewFakeClock()
	proc := &countingProcessor{}
	l := NewLoop(1, &staticSource{frame: newFrame(1)}, proc, nil, Options{
		Interval: time.Second,
		Poll:     100 * time.Millisecond,
		Clock:    clock,
	})

	l.Start()
	l.Start()

	require.NoError(t, clock.BlockUntilContext(context.Background(), 1))
	for i := 0; i < 25; i++ {
		clock.Advance(100 * time.Millisecond)
		time.Sleep(2 * time.Millisecond)
		l.Wait()
	}
	l.Stop()
	l.Stop()

	calls := proc.calls.Load()
	assert.GreaterOrEqual(t, calls, int32(2))
	assert.LessOrEqual(t, calls, int32(3))

	clock.Advance(10 * time.Second)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, calls, proc.calls.Load())
}
