// Package queue buffers record batches in a Redis list. The ingest daemon
// pushes batches on accept and the dispatch loop pops them, so a slow
// endpoint backs up in Redis instead of in process memory.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/evpipe/http-sink/pkg/event"
)

// ErrEmpty indicates no batch was available within the poll timeout.
var ErrEmpty = errors.New("queue empty")

// Queue is a Redis-list backed batch buffer.
type Queue struct {
	redis *redis.Client
	key   string
}

// New creates a queue on the given Redis list key.
func New(redisClient *redis.Client, key string) *Queue {
	if redisClient == nil {
		panic("redis client cannot be nil")
	}
	return &Queue{
		redis: redisClient,
		key:   key,
	}
}

// Push appends a batch to the queue. Empty batches are dropped.
func (q *Queue) Push(ctx context.Context, records []event.Record) error {
	if len(records) == 0 {
		return nil
	}

	data, err := json.Marshal(records)
	if err != nil {
		return fmt.Errorf("marshal batch: %w", err)
	}

	if err := q.redis.LPush(ctx, q.key, data).Err(); err != nil {
		return fmt.Errorf("redis lpush: %w", err)
	}
	return nil
}

// PopBatch blocks up to timeout for the next batch. Returns ErrEmpty when
// the timeout elapses with nothing to pop.
func (q *Queue) PopBatch(ctx context.Context, timeout time.Duration) ([]event.Record, error) {
	result, err := q.redis.BRPop(ctx, timeout, q.key).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, ErrEmpty
		}
		return nil, fmt.Errorf("redis brpop: %w", err)
	}

	// BRPop returns [key, value].
	if len(result) != 2 {
		return nil, fmt.Errorf("unexpected brpop reply length %d", len(result))
	}

	var records []event.Record
	if err := json.Unmarshal([]byte(result[1]), &records); err != nil {
		return nil, fmt.Errorf("unmarshal batch: %w", err)
	}
	return records, nil
}

// Len returns the number of batches waiting in the queue.
func (q *Queue) Len(ctx context.Context) (int64, error) {
	n, err := q.redis.LLen(ctx, q.key).Result()
	if err != nil {
		return 0, fmt.Errorf("redis llen: %w", err)
	}
	return n, nil
}
