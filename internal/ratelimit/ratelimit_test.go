package ratelimit

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestLimiterAllow(t *testing.T) {
	cfg := Config{
		RequestsPerMinute: 60,
		BurstSize:         5,
		CleanupInterval:   time.Minute,
	}
	limiter := New(cfg)
	defer limiter.Stop()

	key := "test-ip"

	// Should allow burst size requests immediately
	for i := 0; i < 5; i++ {
		if !limiter.Allow(key) {
			t.Errorf("Request %d should be allowed (within burst)", i)
		}
	}

	// Next request should be denied
	if limiter.Allow(key) {
		t.Error("Request after burst should be denied")
	}

	// Wait for token replenishment (1 second = 1 token at 60/min)
	time.Sleep(time.Second)

	// Should allow again
	if !limiter.Allow(key) {
		t.Error("Request after waiting should be allowed")
	}
}

func TestLimiterMultipleClients(t *testing.T) {
	cfg := Config{
		RequestsPerMinute: 60,
		BurstSize:         3,
		CleanupInterval:   time.Minute,
	}
	limiter := New(cfg)
	defer limiter.Stop()

	// Client A uses up their tokens
	for i := 0; i < 3; i++ {
		limiter.Allow("client-a")
	}

	// Client A is now rate limited
	if limiter.Allow("client-a") {
		t.Error("Client A should be rate limited")
	}

	// Client B should still have tokens
	if !limiter.Allow("client-b") {
		t.Error("Client B should not be rate limited")
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.RequestsPerMinute != 60 {
		t.Errorf("Expected 60 requests/min, got %d", cfg.RequestsPerMinute)
	}
	if cfg.BurstSize != 10 {
		t.Errorf("Expected burst size 10, got %d", cfg.BurstSize)
	}
	if cfg.CleanupInterval != time.Minute {
		t.Errorf("Expected 1 minute cleanup interval, got %v", cfg.CleanupInterval)
	}
}

func TestKeyedLimiter_EnforcesLimit(t *testing.T) {
	store := NewMemoryCounterStore()
	limiter := NewKeyed("topup", store, 3, time.Hour)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := limiter.Allow(ctx, "alice"); err != nil {
			t.Fatalf("Request %d should be allowed: %v", i, err)
		}
	}

	if err := limiter.Allow(ctx, "alice"); !errors.Is(err, ErrLimited) {
		t.Errorf("Expected ErrLimited, got %v", err)
	}

	// Other keys are unaffected
	if err := limiter.Allow(ctx, "bob"); err != nil {
		t.Errorf("Different key should be allowed: %v", err)
	}
}

func TestKeyedLimiter_WindowReset(t *testing.T) {
	store := NewMemoryCounterStore()
	limiter := NewKeyed("topup", store, 1, 50*time.Millisecond)
	ctx := context.Background()

	if err := limiter.Allow(ctx, "alice"); err != nil {
		t.Fatalf("First request should be allowed: %v", err)
	}
	if err := limiter.Allow(ctx, "alice"); !errors.Is(err, ErrLimited) {
		t.Fatalf("Second request should be limited, got %v", err)
	}

	// A fresh window gets a fresh allowance
	time.Sleep(60 * time.Millisecond)
	if err := limiter.Allow(ctx, "alice"); err != nil {
		t.Errorf("Request in new window should be allowed: %v", err)
	}
}

func TestKeyedLimiter_SubSecondWindows(t *testing.T) {
	store := NewMemoryCounterStore()
	limiter := NewKeyed("topup", store, 1, 20*time.Millisecond)
	ctx := context.Background()

	// Several consecutive windows elapse well inside one wall-clock second;
	// each must start with a fresh allowance.
	for i := 0; i < 4; i++ {
		if err := limiter.Allow(ctx, "alice"); err != nil {
			t.Fatalf("Window %d should start with a fresh allowance: %v", i, err)
		}
		if err := limiter.Allow(ctx, "alice"); !errors.Is(err, ErrLimited) {
			t.Fatalf("Window %d should be exhausted, got %v", i, err)
		}
		time.Sleep(25 * time.Millisecond)
	}
}

func TestKeyedLimiter_ZeroLimitDisables(t *testing.T) {
	limiter := NewKeyed("topup", NewMemoryCounterStore(), 0, time.Hour)
	ctx := context.Background()

	for i := 0; i < 100; i++ {
		if err := limiter.Allow(ctx, "alice"); err != nil {
			t.Fatalf("Disabled limiter rejected request: %v", err)
		}
	}
}

func TestKeyedLimiter_NilIsNoop(t *testing.T) {
	var limiter *KeyedLimiter
	if err := limiter.Allow(context.Background(), "alice"); err != nil {
		t.Errorf("Nil limiter should allow everything, got %v", err)
	}
}

// failingCounterStore simulates a lost counter backend.
type failingCounterStore struct{}

func (failingCounterStore) Incr(ctx context.Context, key string, ttl time.Duration) (int, error) {
	return 0, errors.New("backend down")
}

func TestKeyedLimiter_FailsOpen(t *testing.T) {
	limiter := NewKeyed("topup", failingCounterStore{}, 1, time.Hour)

	for i := 0; i < 5; i++ {
		if err := limiter.Allow(context.Background(), "alice"); err != nil {
			t.Fatalf("Limiter should fail open on store errors, got %v", err)
		}
	}
}
