package publisher

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"emotion-worker-go/internal/models"
	"emotion-worker-go/internal/services/publisher/mjpeg"
)

// Encoder turns an annotated frame into JPEG bytes for the MJPEG preview
type Encoder interface {
	Encode(frame *models.Frame) ([]byte, error)
}

type Options struct {
	WorkerID       string
	QueueSize      int
	PublishTimeout time.Duration
	Placeholder    mjpeg.PlaceholderFunc
}

// Service receives every completed detection and fans it out to the MJPEG
// preview, live listeners and external sinks. Sink delivery happens on a
// background worker so a slow broker never stalls a sampling loop.
type Service struct {
	opts   Options
	sinks  []Sink
	enc    Encoder
	frames *mjpeg.Publisher
	hub    *Hub

	queue chan *models.ResultEvent
	stop  chan struct{}
	wg    sync.WaitGroup
	once  sync.Once

	mu      sync.Mutex
	dropped int64
	failed  map[string]int64
}

func NewService(sinks []Sink, enc Encoder, opts Options) *Service {
	if opts.QueueSize <= 0 {
		opts.QueueSize = 256
	}
	if opts.PublishTimeout <= 0 {
		opts.PublishTimeout = 5 * time.Second
	}
	s := &Service{
		opts:   opts,
		sinks:  sinks,
		enc:    enc,
		frames: mjpeg.NewPublisher(opts.Placeholder),
		hub:    NewHub(16),
		queue:  make(chan *models.ResultEvent, opts.QueueSize),
		stop:   make(chan struct{}),
		failed: make(map[string]int64),
	}
	s.wg.Add(1)
	go s.deliver()
	return s
}

// HandleResult has the sampling callback signature
func (s *Service) HandleResult(_ *models.Frame, result *models.DetectionResult, paths *models.ArtifactPaths) {
	event := s.NewEvent(result, paths)

	if result.Annotated != nil && s.enc != nil {
		if jpeg, err := s.enc.Encode(result.Annotated); err != nil {
			log.Debug().Err(err).Int64("camera_id", result.CameraID).Msg("preview_encode_failed")
		} else {
			s.frames.PublishJPEG(result.CameraID, jpeg)
		}
	}

	s.hub.Broadcast(event)

	if len(s.sinks) == 0 {
		return
	}
	select {
	case <-s.stop:
	case s.queue <- event:
	default:
		s.mu.Lock()
		s.dropped++
		dropped := s.dropped
		s.mu.Unlock()
		log.Warn().Int64("camera_id", event.CameraID).Int64("dropped", dropped).Msg("result_queue_full")
	}
}

// NewEvent builds the outbound payload for a result
func (s *Service) NewEvent(result *models.DetectionResult, paths *models.ArtifactPaths) *models.ResultEvent {
	event := &models.ResultEvent{
		ResultID:  result.ID,
		CameraID:  result.CameraID,
		Dominant:  result.Dominant,
		Scores:    result.Scores.Clone(),
		Percent:   result.Percent,
		FaceCount: len(result.Faces),
		Fallback:  result.Fallback,
		Timestamp: result.CreatedAt,
		WorkerID:  s.opts.WorkerID,
	}
	if paths != nil {
		event.RawPath = paths.Raw
		event.ProcessedPath = paths.Annotated
		event.ResultPath = paths.Result
	}
	return event
}

func (s *Service) deliver() {
	defer s.wg.Done()
	for {
		select {
		case <-s.stop:
			s.drain()
			return
		case event := <-s.queue:
			s.publish(event)
		}
	}
}

func (s *Service) drain() {
	for {
		select {
		case event := <-s.queue:
			s.publish(event)
		default:
			return
		}
	}
}

func (s *Service) publish(event *models.ResultEvent) {
	for _, sink := range s.sinks {
		ctx, cancel := context.WithTimeout(context.Background(), s.opts.PublishTimeout)
		err := sink.Publish(ctx, event)
		cancel()
		if err != nil {
			s.mu.Lock()
			s.failed[sink.Name()]++
			s.mu.Unlock()
			log.Warn().Err(err).Str("sink", sink.Name()).Int64("camera_id", event.CameraID).Msg("result_publish_failed")
		}
	}
}

func (s *Service) Hub() *Hub { return s.hub }

func (s *Service) Frames() *mjpeg.Publisher { return s.frames }

// Latest returns the most recent annotated JPEG of a camera
func (s *Service) Latest(cameraID int64) ([]byte, bool) {
	return s.frames.Latest(cameraID)
}

func (s *Service) StreamMJPEGHTTP(w http.ResponseWriter, r *http.Request, cameraID int64) {
	s.frames.StreamMJPEGHTTP(w, r, cameraID)
}

// Stats reports queue drops and per-sink failures
type Stats struct {
	Sinks     []string         `json:"sinks"`
	Dropped   int64            `json:"dropped"`
	Failed    map[string]int64 `json:"failed"`
	Listeners int              `json:"listeners"`
}

func (s *Service) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := Stats{Dropped: s.dropped, Failed: make(map[string]int64, len(s.failed)), Listeners: s.hub.Len()}
	for _, sink := range s.sinks {
		st.Sinks = append(st.Sinks, sink.Name())
	}
	for k, v := range s.failed {
		st.Failed[k] = v
	}
	return st
}

// Shutdown flushes queued events, then closes listeners and sinks
func (s *Service) Shutdown(ctx context.Context) error {
	s.once.Do(func() {
		close(s.stop)

		done := make(chan struct{})
		go func() {
			s.wg.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-ctx.Done():
			log.Warn().Msg("result_publisher_flush_timeout")
		}

		s.hub.Close()
		for _, sink := range s.sinks {
			if err := sink.Close(ctx); err != nil {
				log.Warn().Err(err).Str("sink", sink.Name()).Msg("sink_close_failed")
			}
		}
	})
	return nil
}
