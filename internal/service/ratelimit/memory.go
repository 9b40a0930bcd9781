package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Expired windows are purged once the map reaches this size,
// then again each time it doubles since the last purge
const memoryPurgeThreshold = 1024

type memoryWindow struct {
	count   int64
	resetAt time.Time
}

// MemoryCounter keeps windows in process memory. Valid for a single instance deployment only
type MemoryCounter struct {
	mu      sync.Mutex
	windows map[string]memoryWindow
	purgeAt int
	now     func() time.Time
}

func NewMemoryCounter() *MemoryCounter {
	return &MemoryCounter{
		windows: make(map[string]memoryWindow),
		purgeAt: memoryPurgeThreshold,
		now:     time.Now,
	}
}

func (c *MemoryCounter) Incr(_ context.Context, key string, window time.Duration) (int64, time.Duration, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if len(c.windows) >= c.purgeAt {
		c.purge(now)
	}

	w, ok := c.windows[key]
	if !ok || !now.Before(w.resetAt) {
		w = memoryWindow{resetAt: now.Add(window)}
	}
	w.count++
	c.windows[key] = w

	return w.count, w.resetAt.Sub(now), nil
}

// purge drops expired windows. Scan cost is amortized over the inserts that doubled the map
func (c *MemoryCounter) purge(now time.Time) {
	for k, w := range c.windows {
		if !now.Before(w.resetAt) {
			delete(c.windows, k)
		}
	}
	c.purgeAt = max(memoryPurgeThreshold, 2*len(c.windows))
}
