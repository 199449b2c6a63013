package analytics

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultMaxLen = 100000

type streamAdder interface {
	XAdd(ctx context.Context, a *redis.XAddArgs) *redis.StringCmd
}

type RedisConfig struct {
	URL    string `mapstructure:"url"`
	Stream string `mapstructure:"stream"`
	MaxLen int64  `mapstructure:"max-len"`
}

// RedisStream appends events to a Redis stream.
type RedisStream struct {
	client streamAdder
	stream string
	maxLen int64
	closer func() error
}

// NewRedisStream connects to the configured Redis and checks it with a ping.
func NewRedisStream(ctx context.Context, cfg RedisConfig) (*RedisStream, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	sink := newRedisStream(client, cfg.Stream, cfg.MaxLen)
	sink.closer = client.Close
	return sink, nil
}

func newRedisStream(client streamAdder, stream string, maxLen int64) *RedisStream {
	if stream == "" {
		stream = "repo-matcher:events"
	}
	if maxLen <= 0 {
		maxLen = defaultMaxLen
	}
	return &RedisStream{client: client, stream: stream, maxLen: maxLen}
}

func (s *RedisStream) Send(ctx context.Context, event Event) error {
	payload, err := json.Marshal(event.Payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	values := map[string]any{
		"event":   event.Type,
		"actor":   event.Actor,
		"login":   event.Login,
		"time":    event.Time.Format(time.RFC3339),
		"payload": string(payload),
	}
	for k, v := range event.Fields {
		if _, reserved := values[k]; reserved {
			continue
		}
		values[k] = v
	}

	if err := s.client.XAdd(ctx, &redis.XAddArgs{
		Stream: s.stream,
		MaxLen: s.maxLen,
		Approx: true,
		Values: values,
	}).Err(); err != nil {
		return fmt.Errorf("add event to stream %s: %w", s.stream, err)
	}
	return nil
}

func (s *RedisStream) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer()
}
