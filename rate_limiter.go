package otpauth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MrEthical07/otpauth/internal/limiters"
	"github.com/redis/go-redis/v9"
)

// RateLimiter bounds requests per source identity over a fixed window.
// With the memory backend the window state is process-local; pass a Redis
// backend when several instances serve the same clients.
type RateLimiter struct {
	backend WindowBackend
	window  time.Duration
	max     int
	now     func() time.Time
}

func NewRateLimiter(backend WindowBackend, cfg RateLimitConfig, now func() time.Time) (*RateLimiter, error) {
	if backend == nil {
		return nil, errors.New("window backend required")
	}
	if cfg.Window <= 0 || cfg.MaxRequests <= 0 {
		return nil, errors.New("rate limit Window and MaxRequests must be > 0")
	}
	if now == nil {
		now = time.Now
	}
	return &RateLimiter{
		backend: backend,
		window:  cfg.Window,
		max:     cfg.MaxRequests,
		now:     now,
	}, nil
}

// Allow counts one request from source. The decision is returned even when
// the request is refused so callers can emit rate-limit headers.
func (l *RateLimiter) Allow(ctx context.Context, source string) (RateDecision, error) {
	if source == "" {
		source = "unknown"
	}

	count, resetAt, err := l.backend.Hit(ctx, source, l.window, l.now())
	if err != nil {
		return RateDecision{}, fmt.Errorf("%w: %v", ErrLimiterUnavailable, err)
	}

	remaining := l.max - int(count)
	if remaining < 0 {
		remaining = 0
	}

	return RateDecision{
		Allowed:   count <= int64(l.max),
		Limit:     l.max,
		Remaining: remaining,
		ResetAt:   resetAt,
	}, nil
}

// NewRedisWindowBackend keeps window counters in Redis under prefix.
func NewRedisWindowBackend(client redis.UniversalClient, prefix string) WindowBackend {
	return limiters.NewRedisWindow(client, prefix)
}

// NewMemoryWindowBackend keeps window counters in process. Expired windows
// are dropped by the Engine's sweeper.
func NewMemoryWindowBackend() WindowBackend {
	return limiters.NewMemoryWindow()
}
