package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"

	"github.com/sentinel/mpc-engine/internal/model"
)

// DefaultStreamMaxLen caps the event stream when no length is configured.
const DefaultStreamMaxLen = 10000

// RedisStream appends events to a Redis stream for downstream consumers
// (ledger writers, notifiers).
type RedisStream struct {
	rdb    *redis.Client
	stream string
	maxLen int64
}

// NewRedisStream creates a stream sink. maxLen <= 0 leaves the stream
// uncapped.
func NewRedisStream(rdb *redis.Client, stream string, maxLen int64) *RedisStream {
	return &RedisStream{rdb: rdb, stream: stream, maxLen: maxLen}
}

func (s *RedisStream) Publish(ctx context.Context, ev model.Event) error {
	payload, err := json.Marshal(ev.Payload)
	if err != nil {
		return fmt.Errorf("encode %s payload: %w", ev.Kind, err)
	}
	args := &redis.XAddArgs{
		Stream: s.stream,
		Values: map[string]interface{}{
			"id":             ev.ID,
			"kind":           string(ev.Kind),
			"circuit":        string(ev.Circuit),
			"correlation_id": strconv.FormatUint(ev.CorrelationID, 10),
			"payload":        string(payload),
			"timestamp":      ev.Timestamp,
		},
	}
	// Approximate trimming keeps XADD O(1).
	if s.maxLen > 0 {
		args.MaxLen = s.maxLen
		args.Approx = true
	}
	if err := s.rdb.XAdd(ctx, args).Err(); err != nil {
		return fmt.Errorf("xadd %s: %w", s.stream, err)
	}
	return nil
}
