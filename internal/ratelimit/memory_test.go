package ratelimit

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// mutationProfile mirrors the service defaults for the phase mutation
// endpoints: 5 sustained requests per second, burst of 10, per client IP.
func mutationProfile() MemoryConfig {
	return MemoryConfig{Rate: 5, Burst: 10}
}

func newTestLimiter(t *testing.T, cfg MemoryConfig) *MemoryLimiter {
	t.Helper()
	m := NewMemoryLimiter(cfg)
	t.Cleanup(func() {
		if err := m.Close(); err != nil {
			t.Errorf("Close: %v", err)
		}
	})
	return m
}

func TestMemoryLimiterBurstProfile(t *testing.T) {
	m := newTestLimiter(t, mutationProfile())
	ctx := context.Background()

	// A captain retrying a transition can burn the full burst at once.
	for i := 0; i < 10; i++ {
		ok, err := m.Allow(ctx, "203.0.113.7")
		if err != nil {
			t.Fatalf("Allow %d: %v", i, err)
		}
		if !ok {
			t.Fatalf("request %d should fit inside the burst", i)
		}
	}

	// The eleventh request in the same instant gets throttled.
	if ok, _ := m.Allow(ctx, "203.0.113.7"); ok {
		t.Fatal("request past the burst should be denied")
	}
}

func TestMemoryLimiterRefillAfterThrottle(t *testing.T) {
	// 500 tokens/s refills one token every 2ms; keep the burst tiny so
	// the test exhausts it instantly.
	m := newTestLimiter(t, MemoryConfig{Rate: 500, Burst: 2})
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, _ = m.Allow(ctx, "203.0.113.7")
	}
	if ok, _ := m.Allow(ctx, "203.0.113.7"); ok {
		t.Fatal("should be throttled right after the burst")
	}

	time.Sleep(10 * time.Millisecond)

	ok, err := m.Allow(ctx, "203.0.113.7")
	if err != nil {
		t.Fatalf("Allow after refill: %v", err)
	}
	if !ok {
		t.Fatal("a refilled bucket should admit the request")
	}
}

func TestMemoryLimiterIsolatesClientIPs(t *testing.T) {
	m := newTestLimiter(t, MemoryConfig{Rate: 1, Burst: 1})
	ctx := context.Background()

	if ok, _ := m.Allow(ctx, "203.0.113.7"); !ok {
		t.Fatal("first request from .7 should pass")
	}
	if ok, _ := m.Allow(ctx, "203.0.113.7"); ok {
		t.Fatal(".7 should now be throttled")
	}

	// A throttled captain must not affect another boat's captain.
	if ok, _ := m.Allow(ctx, "198.51.100.23"); !ok {
		t.Fatal(".23 should be unaffected by .7's throttle")
	}
}

func TestMemoryLimiterConcurrentSameIP(t *testing.T) {
	m := newTestLimiter(t, mutationProfile())
	ctx := context.Background()

	var admitted atomic.Int64
	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 10; i++ {
				ok, err := m.Allow(ctx, "203.0.113.7")
				if err != nil {
					t.Errorf("Allow: %v", err)
					return
				}
				if ok {
					admitted.Add(1)
				}
			}
		}()
	}
	wg.Wait()

	// 80 racing requests against burst 10: the bucket never admits more
	// than its capacity (plus sub-millisecond refill slack).
	if n := admitted.Load(); n < 1 || n > 11 {
		t.Fatalf("admitted %d of 80 requests, want within burst capacity", n)
	}
}

func TestMemoryLimiterEvictsIdleIPs(t *testing.T) {
	cfg := mutationProfile()
	cfg.StaleAfter = time.Minute
	m := newTestLimiter(t, cfg)
	ctx := context.Background()

	_, _ = m.Allow(ctx, "203.0.113.7")
	_, _ = m.Allow(ctx, "198.51.100.23")

	// Backdate one bucket past the idle threshold.
	m.mu.Lock()
	m.entries["203.0.113.7"].seen = time.Now().Add(-2 * time.Minute)
	m.mu.Unlock()

	m.evict()

	m.mu.Lock()
	_, stale := m.entries["203.0.113.7"]
	_, fresh := m.entries["198.51.100.23"]
	m.mu.Unlock()

	if stale {
		t.Fatal("idle bucket should have been evicted")
	}
	if !fresh {
		t.Fatal("active bucket should survive the sweep")
	}
}

func TestMemoryLimiterEvictedIPStartsFresh(t *testing.T) {
	m := newTestLimiter(t, MemoryConfig{Rate: 1, Burst: 1, StaleAfter: time.Minute})
	ctx := context.Background()

	_, _ = m.Allow(ctx, "203.0.113.7")
	if ok, _ := m.Allow(ctx, "203.0.113.7"); ok {
		t.Fatal("burst of 1 should throttle the second request")
	}

	m.mu.Lock()
	m.entries["203.0.113.7"].seen = time.Now().Add(-2 * time.Minute)
	m.mu.Unlock()
	m.evict()

	// After eviction the IP gets a brand-new full bucket.
	if ok, _ := m.Allow(ctx, "203.0.113.7"); !ok {
		t.Fatal("evicted IP should be admitted again")
	}
}

func TestMemoryLimiterIdleNeverExceedsBurst(t *testing.T) {
	m := newTestLimiter(t, MemoryConfig{Rate: 1000, Burst: 3})
	ctx := context.Background()

	_, _ = m.Allow(ctx, "203.0.113.7")

	// A long-idle bucket refills to capacity, never beyond it.
	m.mu.Lock()
	m.entries["203.0.113.7"].seen = time.Now().Add(-time.Hour)
	m.mu.Unlock()

	for i := 0; i < 3; i++ {
		if ok, _ := m.Allow(ctx, "203.0.113.7"); !ok {
			t.Fatalf("request %d should spend a refilled token", i)
		}
	}
	if ok, _ := m.Allow(ctx, "203.0.113.7"); ok {
		t.Fatal("tokens must cap at the burst even after a long idle")
	}
}

func TestMemoryLimiterConfigDefaults(t *testing.T) {
	m := newTestLimiter(t, MemoryConfig{Rate: 5, Burst: 10})

	if m.cfg.StaleAfter != defaultStaleAfter {
		t.Fatalf("StaleAfter defaulted to %v, want %v", m.cfg.StaleAfter, defaultStaleAfter)
	}
	if m.cfg.SweepInterval != defaultSweepInterval {
		t.Fatalf("SweepInterval defaulted to %v, want %v", m.cfg.SweepInterval, defaultSweepInterval)
	}
}

func TestMemoryLimiterCloseTwice(t *testing.T) {
	m := NewMemoryLimiter(mutationProfile())
	if err := m.Close(); err != nil {
		t.Fatalf("first Close: %v", err)
	}
	if err := m.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
}

func TestNoopLimiterAdmitsEverything(t *testing.T) {
	var l NoopLimiter
	ctx := context.Background()
	for i := 0; i < 100; i++ {
		ok, err := l.Allow(ctx, "203.0.113.7")
		if err != nil || !ok {
			t.Fatalf("NoopLimiter.Allow = %v, %v; want true, nil", ok, err)
		}
	}
	if err := l.Close(); err != nil {
		t.Fatalf("NoopLimiter.Close: %v", err)
	}
}
