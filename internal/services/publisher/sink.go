package publisher

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog/log"

	"emotion-worker-go/internal/config"
	"emotion-worker-go/internal/models"
)

// Sink delivers result events to an external system
type Sink interface {
	Name() string
	Publish(ctx context.Context, event *models.ResultEvent) error
	Close(ctx context.Context) error
}

// NewSinks connects every enabled sink. A sink that fails to connect is
// skipped so a broker outage never blocks startup.
func NewSinks(cfg *config.Config) []Sink {
	var sinks []Sink

	if cfg.NatsEnabled {
		s, err := NewNATSSink(cfg)
		if err != nil {
			log.Warn().Err(err).Str("url", cfg.NatsURL).Msg("nats_sink_unavailable")
		} else {
			sinks = append(sinks, s)
		}
	}

	if cfg.MQTTEnabled {
		s, err := NewMQTTSink(MQTTConfig{
			Broker:      cfg.MQTTBroker,
			ClientID:    cfg.MQTTClientID,
			Username:    cfg.MQTTUsername,
			Password:    cfg.MQTTPassword,
			TopicPrefix: cfg.MQTTTopicPrefix,
			QoS:         byte(cfg.MQTTQoS),
		})
		if err != nil {
			log.Warn().Err(err).Str("broker", cfg.MQTTBroker).Msg("mqtt_sink_unavailable")
		} else {
			sinks = append(sinks, s)
		}
	}

	if cfg.RedisEnabled {
		s, err := NewRedisSink(RedisConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			Stream:   cfg.RedisStream,
			MaxLen:   cfg.RedisStreamMaxLen,
		})
		if err != nil {
			log.Warn().Err(err).Str("addr", cfg.RedisAddr).Msg("redis_sink_unavailable")
		} else {
			sinks = append(sinks, s)
		}
	}

	return sinks
}

func encodeEvent(event *models.ResultEvent) ([]byte, error) {
	payload, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("marshal result event: %w", err)
	}
	return payload, nil
}
