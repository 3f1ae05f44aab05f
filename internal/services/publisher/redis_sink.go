package publisher

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog/log"

	"emotion-worker-go/internal/models"
)

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Stream   string
	MaxLen   int64
}

// RedisSink appends result events to a capped Redis stream
type RedisSink struct {
	client *redis.Client
	stream string
	maxLen int64
}

func NewRedisSink(cfg RedisConfig) (*RedisSink, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	log.Info().Str("addr", cfg.Addr).Str("stream", cfg.Stream).Msg("redis_sink_connected")
	return NewRedisSinkWithClient(client, cfg.Stream, cfg.MaxLen), nil
}

func NewRedisSinkWithClient(client *redis.Client, stream string, maxLen int64) *RedisSink {
	return &RedisSink{client: client, stream: stream, maxLen: maxLen}
}

func (s *RedisSink) Name() string { return "redis" }

func (s *RedisSink) Publish(ctx context.Context, event *models.ResultEvent) error {
	payload, err := encodeEvent(event)
	if err != nil {
		return err
	}
	args := &redis.XAddArgs{
		Stream: s.stream,
		Values: map[string]interface{}{
			"camera_id":        strconv.FormatInt(event.CameraID, 10),
			"dominant_emotion": string(event.Dominant),
			"data":             string(payload),
			"timestamp":        event.Timestamp.Unix(),
		},
	}
	if s.maxLen > 0 {
		args.MaxLen = s.maxLen
		args.Approx = true
	}
	return s.client.XAdd(ctx, args).Err()
}

func (s *RedisSink) Close(context.Context) error {
	return s.client.Close()
}
