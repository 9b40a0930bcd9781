// Package ratelimit implements fixed window throttling of deposit attempts.
//
// The window state lives in a Counter. RedisCounter shares it between service instances;
// MemoryCounter is only correct when a single instance is running.
package ratelimit

import (
	"context"
	"errors"
	"time"

	"github.com/lalita/wallet/internal/logger"
)

const (
	DefaultLimit  = 5
	DefaultWindow = 15 * time.Minute
)

type Counter interface {
	// Increment key in its current window. The window starts with the first increment.
	// Returns the count including this increment and time left till the window resets
	Incr(ctx context.Context, key string, window time.Duration) (count int64, resetIn time.Duration, err error)
}

type Decision struct {
	Allowed    bool
	Limit      int64
	Remaining  int64
	RetryAfter time.Duration
}

type Limiter struct {
	counter Counter
	prefix  string
	limit   int64
	window  time.Duration
	logger  logger.Logger
}

func NewLimiter(counter Counter, prefix string, limit int64, window time.Duration, l logger.Logger) (*Limiter, error) {
	if counter == nil {
		return nil, errors.New("rate limit counter is required")
	}
	if limit <= 0 || window <= 0 {
		return nil, errors.New("rate limit and window must be positive")
	}

	return &Limiter{
		counter: counter,
		prefix:  prefix,
		limit:   limit,
		window:  window,
		logger:  l,
	}, nil
}

// Allow counts an attempt for key.
// If the counter is unavailable the attempt is allowed: throttling is not worth refusing deposits
func (l *Limiter) Allow(ctx context.Context, key string) Decision {
	count, resetIn, err := l.counter.Incr(ctx, l.prefix+":"+key, l.window)
	if err != nil {
		l.logger.Warn("Rate limit counter unavailable, allowing request", "key", key, "error", err)
		return Decision{Allowed: true, Limit: l.limit, Remaining: l.limit}
	}

	if count > l.limit {
		return Decision{Allowed: false, Limit: l.limit, Remaining: 0, RetryAfter: resetIn}
	}

	return Decision{Allowed: true, Limit: l.limit, Remaining: l.limit - count}
}
