package camera

import (
	"context"
	"errors"
	"math/rand"
	"sync/atomic"
	"time"

	"emotion-worker-go/internal/models"
	"emotion-worker-go/internal/services/source"
)

// captureLoop reads frames at the configured rate until ctx is cancelled or a reopen fails.
// The latest-frame slot is the only state it synchronizes on; no lock is held during I/O.
func (s *Session) captureLoop(ctx context.Context, done chan struct{}) {
	defer close(done)
	defer s.closeSource()
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error().Interface("panic", r).Msg("capture_loop_panic_recovered")
			s.fail()
		}
	}()

	interval := time.Second / time.Duration(s.opts.FPS)
	consecutiveErrors := 0

	for {
		select {
		case <-ctx.Done():
			s.logger.Debug().Msg("capture_loop_cancelled")
			return
		default:
		}

		src := s.currentSource()
		if src == nil {
			s.fail()
			return
		}

		frame, err := src.Read(ctx)
		if err == nil && !frame.Valid() {
			err = source.ErrEmptyFrame
		}
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			consecutiveErrors++
			s.readErrors.Add(1)
			s.logger.Warn().
				Err(err).
				Int("consecutive_errors", consecutiveErrors).
				Msg("frame_read_failed")

			if !sleepCtx(ctx, s.opts.retryDelay(consecutiveErrors)) {
				return
			}
			if src.Kind().IsStream() || errors.Is(err, source.ErrReadInFlight) {
				if err := s.reopen(ctx); err != nil {
					if ctx.Err() != nil {
						return
					}
					s.logger.Error().Err(err).Msg("camera_reopen_failed")
					s.fail()
					return
				}
			}
			continue
		}

		consecutiveErrors = 0
		frame.CameraID = s.camera.ID
		s.storeFrame(frame)

		if !sleepCtx(ctx, interval) {
			return
		}
	}
}

// reopen closes the current source and opens a fresh one from the factory
func (s *Session) reopen(ctx context.Context) error {
	s.closeSource()
	s.setConnection(models.ConnectionConnecting, nil)

	src, err := s.factory.New(&s.camera)
	if err != nil {
		return err
	}
	if err := src.Open(ctx); err != nil {
		_ = src.Close()
		return err
	}
	if ctx.Err() != nil {
		_ = src.Close()
		return ctx.Err()
	}
	s.setSource(src)
	s.reconnects.Add(1)

	now := time.Now()
	s.setConnection(models.ConnectionConnected, &now)
	s.logger.Info().Int64("reconnects", s.reconnects.Load()).Msg("camera_reconnected")
	return nil
}

// fail marks a loop that exited on its own; Stop still owns the final transition
func (s *Session) fail() {
	if atomic.CompareAndSwapInt32(&s.state, int32(StateRunning), int32(StateFailed)) {
		s.clearFrame()
		s.setConnection(models.ConnectionError, nil)
	}
}

// retryDelay is the wait before retry attempt n (1-based): RetryDelay doubled
// per attempt, capped at BackoffMax, with jitter applied after the cap.
func (o Options) retryDelay(attempt int) time.Duration {
	delay := o.RetryDelay
	for i := 1; i < attempt && delay < o.BackoffMax; i++ {
		delay *= 2
	}
	if delay > o.BackoffMax {
		delay = o.BackoffMax
	}
	if o.JitterPct > 0 {
		spread := float64(delay) * float64(o.JitterPct) / 100
		delay += time.Duration(spread * (rand.Float64()*2 - 1))
	}
	return delay
}

// sleepCtx sleeps for d and reports false when ctx was cancelled first
func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
