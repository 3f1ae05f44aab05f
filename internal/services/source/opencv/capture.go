package opencv

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
	"gocv.io/x/gocv"

	"emotion-worker-go/internal/helpers"
	"emotion-worker-go/internal/models"
	"emotion-worker-go/internal/services/source"
)

type openFunc func() (*gocv.VideoCapture, error)

type readResult struct {
	frame *models.Frame
	err   error
}

type openResult struct {
	capture *gocv.VideoCapture
	err     error
}

// captureSource is a gocv VideoCapture with hard deadlines on open and read.
// A blocked native call is abandoned on timeout; its resources are released once it returns.
type captureSource struct {
	cameraID    int64
	kind        models.TransportKind
	target      string
	open        openFunc
	openTimeout time.Duration
	readTimeout time.Duration
	prober      *source.Prober

	mu       sync.Mutex
	capture  *gocv.VideoCapture
	img      gocv.Mat
	hasImg   bool
	reading  bool
	closing  bool
	frameSeq atomic.Int64
}

func (s *captureSource) Kind() models.TransportKind {
	return s.kind
}

func (s *captureSource) Open(ctx context.Context) error {
	s.mu.Lock()
	if s.reading {
		s.mu.Unlock()
		return source.ErrReadInFlight
	}
	if s.capture != nil {
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	done := make(chan openResult, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				log.Error().Int64("camera_id", s.cameraID).Interface("panic", r).Msg("capture_open_panic")
				done <- openResult{err: fmt.Errorf("%w: panic: %v", source.ErrOpenFailed, r)}
			}
		}()
		c, err := s.open()
		done <- openResult{capture: c, err: err}
	}()

	timer := time.NewTimer(s.openTimeout)
	defer timer.Stop()

	select {
	case r := <-done:
		if r.err != nil {
			return fmt.Errorf("%w %s: %v", source.ErrOpenFailed, s.target, r.err)
		}
		if r.capture == nil || !r.capture.IsOpened() {
			if r.capture != nil {
				r.capture.Close()
			}
			return fmt.Errorf("%w %s: capture not opened", source.ErrOpenFailed, s.target)
		}
		// Minimal buffer keeps the latest frame fresh
		r.capture.Set(gocv.VideoCaptureBufferSize, 1)

		s.mu.Lock()
		defer s.mu.Unlock()
		if s.capture != nil {
			r.capture.Close()
			return nil
		}
		s.capture = r.capture
		s.img = gocv.NewMat()
		s.hasImg = true
		s.closing = false
		log.Info().
			Int64("camera_id", s.cameraID).
			Str("transport", s.kind.String()).
			Str("target", s.target).
			Float64("actual_fps", r.capture.Get(gocv.VideoCaptureFPS)).
			Msg("capture_opened")
		return nil
	case <-ctx.Done():
		go discardOpen(done)
		return ctx.Err()
	case <-timer.C:
		go discardOpen(done)
		return fmt.Errorf("%w %s after %s", source.ErrOpenTimeout, s.target, s.openTimeout)
	}
}

func discardOpen(done <-chan openResult) {
	r := <-done
	if r.capture != nil {
		r.capture.Close()
	}
}

func (s *captureSource) Read(ctx context.Context) (*models.Frame, error) {
	s.mu.Lock()
	if s.capture == nil || s.closing {
		s.mu.Unlock()
		return nil, source.ErrNotOpen
	}
	if s.reading {
		s.mu.Unlock()
		return nil, source.ErrReadInFlight
	}
	s.reading = true
	capture, img := s.capture, s.img
	s.mu.Unlock()

	done := make(chan readResult, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				log.Error().Int64("camera_id", s.cameraID).Interface("panic", r).Msg("capture_read_panic")
				s.finishRead()
				done <- readResult{err: fmt.Errorf("%w: panic: %v", source.ErrReadFailed, r)}
			}
		}()
		var res readResult
		if ok := capture.Read(&img); !ok {
			res.err = source.ErrReadFailed
		} else if img.Empty() {
			res.err = source.ErrEmptyFrame
		} else {
			res.frame = helpers.MatToFrame(img, s.cameraID, s.frameSeq.Add(1), time.Now())
		}
		s.finishRead()
		done <- res
	}()

	timer := time.NewTimer(s.readTimeout)
	defer timer.Stop()

	select {
	case r := <-done:
		return r.frame, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timer.C:
		return nil, fmt.Errorf("%w after %s", source.ErrReadTimeout, s.readTimeout)
	}
}

// finishRead clears the in-flight flag and performs a close that was deferred while reading
func (s *captureSource) finishRead() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reading = false
	if s.closing {
		s.releaseLocked()
		s.closing = false
	}
}

func (s *captureSource) Reachable(ctx context.Context) bool {
	s.mu.Lock()
	opened := s.capture != nil && !s.closing
	s.mu.Unlock()
	if opened {
		return true
	}

	if s.kind == models.TransportHTTPStream && s.prober != nil {
		return s.prober.Reachable(ctx, s.target)
	}

	probe := &captureSource{
		cameraID:    s.cameraID,
		kind:        s.kind,
		target:      s.target,
		open:        s.open,
		openTimeout: s.openTimeout,
		readTimeout: s.readTimeout,
	}
	defer probe.Close()
	return probe.Open(ctx) == nil
}

func (s *captureSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.reading {
		s.closing = true
		return nil
	}
	s.releaseLocked()
	return nil
}

func (s *captureSource) releaseLocked() {
	if s.capture != nil {
		if err := s.capture.Close(); err != nil {
			log.Debug().Err(err).Int64("camera_id", s.cameraID).Msg("capture_close_error")
		}
		s.capture = nil
	}
	if s.hasImg {
		s.img.Close()
		s.hasImg = false
	}
}
