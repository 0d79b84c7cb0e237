package ratelimit

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"time"
)

// ErrLimited is returned when a key has exhausted its window allowance.
var ErrLimited = errors.New("ratelimit: limit exceeded")

// CounterStore counts occurrences per key within a fixed window. The window
// start is baked into the key, so Incr only ever needs to add and expire.
type CounterStore interface {
	// Incr adds one to the counter for key and returns the new count.
	// The counter may be dropped any time after ttl elapses.
	Incr(ctx context.Context, key string, ttl time.Duration) (int, error)
}

// KeyedLimiter enforces a fixed-window limit per key on top of a CounterStore.
type KeyedLimiter struct {
	name   string
	store  CounterStore
	limit  int
	window time.Duration
}

// NewKeyed creates a fixed-window limiter. The name labels rejections in
// metrics and has no other effect.
func NewKeyed(name string, store CounterStore, limit int, window time.Duration) *KeyedLimiter {
	return &KeyedLimiter{name: name, store: store, limit: limit, window: window}
}

// Allow consumes one unit for key. It returns ErrLimited when the key is
// over its allowance for the current window. A limit of zero or below
// disables the limiter.
func (k *KeyedLimiter) Allow(ctx context.Context, key string) error {
	if k == nil || k.limit <= 0 {
		return nil
	}
	// Full-resolution window start: second-granularity keys would merge
	// consecutive sub-second windows into one bucket.
	windowStart := time.Now().Truncate(k.window).UnixNano()
	bucket := k.name + ":" + key + ":" + strconv.FormatInt(windowStart, 10)

	count, err := k.store.Incr(ctx, bucket, k.window)
	if err != nil {
		// Fail open: losing the counter backend should not take down
		// top-ups and purchases with it.
		return nil
	}
	if count > k.limit {
		return ErrLimited
	}
	return nil
}

// Name returns the limiter's metrics label.
func (k *KeyedLimiter) Name() string { return k.name }

// MemoryCounterStore is the in-process CounterStore used by default.
type MemoryCounterStore struct {
	mu       sync.Mutex
	counters map[string]*counter
}

type counter struct {
	count     int
	expiresAt time.Time
}

// NewMemoryCounterStore creates an in-memory counter store.
func NewMemoryCounterStore() *MemoryCounterStore {
	return &MemoryCounterStore{counters: make(map[string]*counter)}
}

func (m *MemoryCounterStore) Incr(ctx context.Context, key string, ttl time.Duration) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	c, ok := m.counters[key]
	if !ok || now.After(c.expiresAt) {
		c = &counter{expiresAt: now.Add(2 * ttl)}
		m.counters[key] = c
	}
	c.count++

	// Opportunistic sweep keeps the map from growing unbounded.
	if len(m.counters) > 4096 {
		for k, v := range m.counters {
			if now.After(v.expiresAt) {
				delete(m.counters, k)
			}
		}
	}
	return c.count, nil
}
