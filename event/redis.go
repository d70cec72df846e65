package event

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStream appends envelopes to a Redis stream with XADD. The stream is
// trimmed approximately to MaxLen entries.
type RedisStream struct {
	client   redis.Cmdable
	stream   string
	maxLen   int64
	producer string
	now      func() time.Time
}

func NewRedisStream(client redis.Cmdable, stream, producer string, maxLen int64) *RedisStream {
	if stream == "" {
		stream = "rental:events"
	}
	return &RedisStream{
		client:   client,
		stream:   stream,
		maxLen:   maxLen,
		producer: producer,
		now:      time.Now,
	}
}

func (s *RedisStream) Publish(ctx context.Context, events ...Event) error {
	if len(events) == 0 {
		return nil
	}

	pipe := s.client.TxPipeline()
	for _, e := range events {
		env, err := Wrap(s.producer, e, s.now())
		if err != nil {
			return err
		}
		payload, err := json.Marshal(env)
		if err != nil {
			return fmt.Errorf("redis: encode envelope: %w", err)
		}
		pipe.XAdd(ctx, &redis.XAddArgs{
			Stream: s.stream,
			MaxLen: s.maxLen,
			Approx: s.maxLen > 0,
			Values: map[string]any{
				"event_id":   env.EventID,
				"event_type": string(env.EventType),
				"product_id": env.ProductID,
				"envelope":   string(payload),
			},
		})
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: xadd %s: %w", s.stream, err)
	}
	return nil
}

// Stream returns the stream key events are appended to.
func (s *RedisStream) Stream() string { return s.stream }
