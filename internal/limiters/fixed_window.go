package limiters

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

var ErrLimiterUnavailable = errors.New("rate limiter unavailable")

// hitWindowLua increments KEYS[1] and starts its window on the first hit.
// ARGV[1] = window length in milliseconds
//
// Returns {count, pttl}.
var hitWindowLua = redis.NewScript(`
local count = redis.call('INCR', KEYS[1])
local ttl = redis.call('PTTL', KEYS[1])
if count == 1 or ttl < 0 then
  redis.call('PEXPIRE', KEYS[1], ARGV[1])
  ttl = tonumber(ARGV[1])
end
return {count, ttl}
`)

// RedisWindow is a fixed-window counter shared by every instance using the
// same Redis.
type RedisWindow struct {
	redis  redis.UniversalClient
	prefix string
}

func NewRedisWindow(redisClient redis.UniversalClient, prefix string) *RedisWindow {
	if prefix == "" {
		prefix = "rl"
	}
	return &RedisWindow{
		redis:  redisClient,
		prefix: prefix,
	}
}

func (w *RedisWindow) Hit(ctx context.Context, key string, window time.Duration, now time.Time) (int64, time.Time, error) {
	result, err := hitWindowLua.Run(ctx, w.redis, []string{w.prefix + ":" + key}, window.Milliseconds()).Int64Slice()
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("%w: %v", ErrLimiterUnavailable, err)
	}
	if len(result) != 2 {
		return 0, time.Time{}, fmt.Errorf("%w: unexpected script result", ErrLimiterUnavailable)
	}

	return result[0], now.Add(time.Duration(result[1]) * time.Millisecond), nil
}

type memoryWindowEntry struct {
	count   int64
	resetAt time.Time
}

// MemoryWindow is a process-local fixed-window counter.
type MemoryWindow struct {
	mu      sync.Mutex
	entries map[string]memoryWindowEntry
}

func NewMemoryWindow() *MemoryWindow {
	return &MemoryWindow{
		entries: make(map[string]memoryWindowEntry),
	}
}

func (w *MemoryWindow) Hit(_ context.Context, key string, window time.Duration, now time.Time) (int64, time.Time, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	entry, ok := w.entries[key]
	if !ok || !now.Before(entry.resetAt) {
		entry = memoryWindowEntry{resetAt: now.Add(window)}
	}
	entry.count++
	w.entries[key] = entry

	return entry.count, entry.resetAt, nil
}

// Sweep drops windows that reset before now.
func (w *MemoryWindow) Sweep(now time.Time) int {
	w.mu.Lock()
	defer w.mu.Unlock()

	removed := 0
	for key, entry := range w.entries {
		if !now.Before(entry.resetAt) {
			delete(w.entries, key)
			removed++
		}
	}
	return removed
}
