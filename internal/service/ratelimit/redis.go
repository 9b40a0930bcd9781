package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

type RedisCounter struct {
	rdb redis.Cmdable
}

func NewRedisCounter(rdb redis.Cmdable) *RedisCounter {
	return &RedisCounter{rdb: rdb}
}

// Incr uses INCR and sets expiry on the first hit of the window
func (c *RedisCounter) Incr(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error) {
	count, err := c.rdb.Incr(ctx, key).Result()
	if err != nil {
		return 0, 0, fmt.Errorf("redis incr: %w", err)
	}

	if count == 1 {
		if err := c.rdb.Expire(ctx, key, window).Err(); err != nil {
			return 0, 0, fmt.Errorf("redis expire: %w", err)
		}
		return count, window, nil
	}

	ttl, err := c.rdb.TTL(ctx, key).Result()
	if err != nil {
		return 0, 0, fmt.Errorf("redis ttl: %w", err)
	}

	// Key without expiry: previous EXPIRE was lost, start the window now
	if ttl < 0 {
		if err := c.rdb.Expire(ctx, key, window).Err(); err != nil {
			return 0, 0, fmt.Errorf("redis expire: %w", err)
		}
		ttl = window
	}

	return count, ttl, nil
}
