package publisher

import (
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"

	"emotion-worker-go/internal/config"
	"emotion-worker-go/internal/models"
)

// NATSSink publishes result events to <subject>.camera<N>
type NATSSink struct {
	conn         *nats.Conn
	subject      string
	drainTimeout time.Duration
}

func NewNATSSink(cfg *config.Config) (*NATSSink, error) {
	opts := []nats.Option{
		nats.Name(cfg.WorkerID),
		nats.Timeout(cfg.NatsConnectTimeout),
		nats.ReconnectWait(cfg.NatsReconnectWait),
		nats.MaxReconnects(cfg.NatsMaxReconnects),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Warn().Err(err).Msg("nats_disconnected")
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			log.Info().Str("url", c.ConnectedUrl()).Msg("nats_reconnected")
		}),
	}

	conn, err := nats.Connect(cfg.NatsURL, opts...)
	if err != nil {
		return nil, err
	}

	log.Info().Str("url", cfg.NatsURL).Str("subject", cfg.NatsSubject).Msg("nats_sink_connected")

	return &NATSSink{
		conn:         conn,
		subject:      cfg.NatsSubject,
		drainTimeout: cfg.NatsDrainTimeout,
	}, nil
}

func (s *NATSSink) Name() string { return "nats" }

func (s *NATSSink) Subject(cameraID int64) string {
	return fmt.Sprintf("%s.camera%d", s.subject, cameraID)
}

func (s *NATSSink) Publish(_ context.Context, event *models.ResultEvent) error {
	payload, err := encodeEvent(event)
	if err != nil {
		return err
	}
	return s.conn.Publish(s.Subject(event.CameraID), payload)
}

func (s *NATSSink) IsConnected() bool {
	return s.conn != nil && s.conn.IsConnected()
}

func (s *NATSSink) Close(ctx context.Context) error {
	if s.conn == nil {
		return nil
	}
	done := make(chan error, 1)
	go func() { done <- s.conn.Drain() }()

	select {
	case err := <-done:
		if err != nil {
			// Try graceful drain, fall back to immediate close
			log.Warn().Err(err).Msg("nats_drain_failed_closing")
			s.conn.Close()
		}
	case <-time.After(s.drainTimeout):
		log.Warn().Dur("timeout", s.drainTimeout).Msg("nats_drain_timeout")
		s.conn.Close()
	case <-ctx.Done():
		s.conn.Close()
	}
	return nil
}
