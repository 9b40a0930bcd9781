package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/require"

	"github.com/lalita/wallet/internal/logger"
)

type counterFunc func(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error)

func (f counterFunc) Incr(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error) {
	return f(ctx, key, window)
}

func TestLimiter_Allow(t *testing.T) {
	t.Run("fixed window", func(t *testing.T) {
		counter := NewMemoryCounter()
		now := time.Now()
		counter.now = func() time.Time { return now }
		limiter, err := NewLimiter(counter, "deposit", 5, 15*time.Minute, logger.NewNoOpLogger())
		require.NoError(t, err)

		for i := range 5 {
			d := limiter.Allow(t.Context(), "user-1")
			require.True(t, d.Allowed, "attempt %d has to be allowed", i+1)
			require.EqualValues(t, 4-i, d.Remaining)
		}

		now = now.Add(10 * time.Minute)
		d := limiter.Allow(t.Context(), "user-1")
		require.False(t, d.Allowed, "sixth attempt in window has to be refused")
		require.Equal(t, 5*time.Minute, d.RetryAfter)

		require.True(t, limiter.Allow(t.Context(), "user-2").Allowed, "other users are not affected")

		now = now.Add(5 * time.Minute)
		require.True(t, limiter.Allow(t.Context(), "user-1").Allowed, "new window starts after reset")
	})

	t.Run("counter failure allows", func(t *testing.T) {
		limiter, err := NewLimiter(counterFunc(func(context.Context, string, time.Duration) (int64, time.Duration, error) {
			return 0, 0, errors.New("connection refused")
		}), "deposit", 5, time.Minute, logger.NewNoOpLogger())
		require.NoError(t, err)

		d := limiter.Allow(t.Context(), "user-1")

		require.True(t, d.Allowed)
	})

	t.Run("key prefix", func(t *testing.T) {
		var gotKey string
		limiter, err := NewLimiter(counterFunc(func(_ context.Context, key string, _ time.Duration) (int64, time.Duration, error) {
			gotKey = key
			return 1, time.Minute, nil
		}), "deposit", 5, time.Minute, logger.NewNoOpLogger())
		require.NoError(t, err)

		limiter.Allow(t.Context(), "user-1")

		require.Equal(t, "deposit:user-1", gotKey)
	})

	t.Run("invalid config", func(t *testing.T) {
		_, err := NewLimiter(NewMemoryCounter(), "deposit", 0, time.Minute, logger.NewNoOpLogger())
		require.Error(t, err)

		_, err = NewLimiter(nil, "deposit", 5, time.Minute, logger.NewNoOpLogger())
		require.Error(t, err)
	})
}

func TestRedisCounter_Incr(t *testing.T) {
	window := 15 * time.Minute

	t.Run("first hit sets expiry", func(t *testing.T) {
		db, mock := redismock.NewClientMock()
		mock.ExpectIncr("deposit:user-1").SetVal(1)
		mock.ExpectExpire("deposit:user-1", window).SetVal(true)

		count, resetIn, err := NewRedisCounter(db).Incr(t.Context(), "deposit:user-1", window)

		require.NoError(t, err)
		require.EqualValues(t, 1, count)
		require.Equal(t, window, resetIn)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("next hit reads ttl", func(t *testing.T) {
		db, mock := redismock.NewClientMock()
		mock.ExpectIncr("deposit:user-1").SetVal(3)
		mock.ExpectTTL("deposit:user-1").SetVal(7 * time.Minute)

		count, resetIn, err := NewRedisCounter(db).Incr(t.Context(), "deposit:user-1", window)

		require.NoError(t, err)
		require.EqualValues(t, 3, count)
		require.Equal(t, 7*time.Minute, resetIn)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("lost expiry restored", func(t *testing.T) {
		db, mock := redismock.NewClientMock()
		mock.ExpectIncr("deposit:user-1").SetVal(2)
		mock.ExpectTTL("deposit:user-1").SetVal(-1)
		mock.ExpectExpire("deposit:user-1", window).SetVal(true)

		_, resetIn, err := NewRedisCounter(db).Incr(t.Context(), "deposit:user-1", window)

		require.NoError(t, err)
		require.Equal(t, window, resetIn)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("redis error", func(t *testing.T) {
		db, mock := redismock.NewClientMock()
		mock.ExpectIncr("deposit:user-1").SetErr(errors.New("connection refused"))

		_, _, err := NewRedisCounter(db).Incr(t.Context(), "deposit:user-1", window)

		require.Error(t, err)
	})
}

func TestMemoryCounter_Purge(t *testing.T) {
	fill := func(t *testing.T, counter *MemoryCounter, prefix string, n int, window time.Duration) {
		t.Helper()
		for i := range n {
			_, _, err := counter.Incr(t.Context(), fmt.Sprintf("%s-%d", prefix, i), window)
			require.NoError(t, err)
		}
	}

	t.Run("expired windows purged at threshold", func(t *testing.T) {
		counter := NewMemoryCounter()
		now := time.Now()
		counter.now = func() time.Time { return now }

		fill(t, counter, "user", memoryPurgeThreshold, time.Second)
		now = now.Add(2 * time.Second)
		_, _, err := counter.Incr(t.Context(), "fresh", time.Second)
		require.NoError(t, err)

		require.Len(t, counter.windows, 1, "expired windows have to be purged")
		require.Equal(t, memoryPurgeThreshold, counter.purgeAt)
	})

	t.Run("live windows push next purge out", func(t *testing.T) {
		counter := NewMemoryCounter()
		now := time.Now()
		counter.now = func() time.Time { return now }

		fill(t, counter, "user", memoryPurgeThreshold+1, time.Hour)

		require.Len(t, counter.windows, memoryPurgeThreshold+1)
		require.Equal(t, 2*memoryPurgeThreshold, counter.purgeAt, "map full of live windows must not be scanned on every increment")

		// Expired now, but the map has not doubled yet
		now = now.Add(2 * time.Hour)
		fill(t, counter, "late", memoryPurgeThreshold-2, time.Hour)
		require.Len(t, counter.windows, 2*memoryPurgeThreshold-1)

		fill(t, counter, "next", 2, time.Hour)
		require.Len(t, counter.windows, memoryPurgeThreshold, "only windows of late and next users are live")
	})
}
