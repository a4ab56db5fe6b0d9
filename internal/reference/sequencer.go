package reference

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Sequencer hands out registration sequence numbers. Numbers are unique per
// prefix and run date and start at 1.
type Sequencer interface {
	Next(ctx context.Context, prefix string, runDate time.Time) (int, error)
}

// Counter is an in-memory Sequencer scoped to one process run.
type Counter struct {
	mu     sync.Mutex
	counts map[string]int
}

// NewCounter returns an empty Counter.
func NewCounter() *Counter {
	return &Counter{counts: make(map[string]int)}
}

// Next implements Sequencer.
func (c *Counter) Next(_ context.Context, prefix string, runDate time.Time) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := SequenceKey(prefix, runDate)
	if c.counts[key] >= MaxSequence {
		return 0, fmt.Errorf("sequence exhausted for %s", key)
	}
	c.counts[key]++
	return c.counts[key], nil
}

// SequenceKey is the scope a sequence is unique within.
func SequenceKey(prefix string, runDate time.Time) string {
	return alnumUpper(prefix) + ":" + runDate.Format(dateStamp)
}

// =============================================================================
// REDIS SEQUENCER
// =============================================================================

// redisCounter is the subset of the go-redis client the sequencer needs.
type redisCounter interface {
	Incr(ctx context.Context, key string) *redis.IntCmd
	Expire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd
}

// RedisSequencer shares a sequence between replicas through Redis INCR.
// Keys look like "regseq:LCEXP:20261017" and expire after two days.
type RedisSequencer struct {
	rdb redisCounter
	ttl time.Duration
}

// NewRedisSequencer connects to addr. The connection is lazy; errors
// surface on the first Next.
func NewRedisSequencer(addr string) *RedisSequencer {
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	return &RedisSequencer{rdb: rdb, ttl: 48 * time.Hour}
}

// Next implements Sequencer.
func (s *RedisSequencer) Next(ctx context.Context, prefix string, runDate time.Time) (int, error) {
	key := "regseq:" + SequenceKey(prefix, runDate)

	n, err := s.rdb.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to increment %s: %w", key, err)
	}
	if n == 1 {
		if err := s.rdb.Expire(ctx, key, s.ttl).Err(); err != nil {
			return 0, fmt.Errorf("failed to set expiry on %s: %w", key, err)
		}
	}
	if n > MaxSequence {
		return 0, fmt.Errorf("sequence exhausted for %s", key)
	}
	return int(n), nil
}

// Close releases the Redis connection pool.
func (s *RedisSequencer) Close() error {
	if c, ok := s.rdb.(*redis.Client); ok {
		return c.Close()
	}
	return nil
}
