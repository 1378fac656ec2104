package ratelimit

import (
	"context"
	"sync"
	"time"
)

// MemoryConfig tunes the in-memory limiter. Rate and Burst set the
// sustained request rate and burst capacity per key (per client IP when
// paired with IPKeyFunc); StaleAfter and SweepInterval bound memory by
// evicting keys that stopped sending.
type MemoryConfig struct {
	Rate          float64       // tokens refilled per second
	Burst         int           // bucket capacity
	StaleAfter    time.Duration // evict keys idle longer than this (default 10m)
	SweepInterval time.Duration // how often the sweeper runs (default 1m)
}

const (
	defaultStaleAfter    = 10 * time.Minute
	defaultSweepInterval = time.Minute
)

// entry is one key's token bucket.
type entry struct {
	tokens float64
	seen   time.Time
}

// MemoryLimiter is a per-key token bucket kept entirely in process
// memory. Each key refills at cfg.Rate and caps at cfg.Burst, so one
// client hammering the mutation endpoints cannot starve the others. A
// background sweeper drops idle keys; Close stops it.
type MemoryLimiter struct {
	cfg MemoryConfig

	mu      sync.Mutex
	entries map[string]*entry

	stopOnce sync.Once
	done     chan struct{}
}

// NewMemoryLimiter creates a limiter and starts its sweeper goroutine.
// Zero StaleAfter or SweepInterval fall back to package defaults.
func NewMemoryLimiter(cfg MemoryConfig) *MemoryLimiter {
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = defaultStaleAfter
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = defaultSweepInterval
	}
	m := &MemoryLimiter{
		cfg:     cfg,
		entries: make(map[string]*entry),
		done:    make(chan struct{}),
	}
	go m.sweep()
	return m
}

// Allow takes one token from key's bucket. It reports false when the
// bucket is empty; the error return exists only to satisfy Limiter.
func (m *MemoryLimiter) Allow(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	e, ok := m.entries[key]
	if !ok {
		// Unseen key: full bucket, spend one token now.
		m.entries[key] = &entry{tokens: float64(m.cfg.Burst) - 1, seen: now}
		return true, nil
	}

	e.tokens += now.Sub(e.seen).Seconds() * m.cfg.Rate
	if limit := float64(m.cfg.Burst); e.tokens > limit {
		e.tokens = limit
	}
	e.seen = now

	if e.tokens < 1 {
		return false, nil
	}
	e.tokens--
	return true, nil
}

// Close stops the sweeper. Safe to call more than once.
func (m *MemoryLimiter) Close() error {
	m.stopOnce.Do(func() { close(m.done) })
	return nil
}

func (m *MemoryLimiter) sweep() {
	ticker := time.NewTicker(m.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.done:
			return
		case <-ticker.C:
			m.evict()
		}
	}
}

// evict drops every key whose last request is older than StaleAfter.
func (m *MemoryLimiter) evict() {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := time.Now().Add(-m.cfg.StaleAfter)
	for key, e := range m.entries {
		if e.seen.Before(cutoff) {
			delete(m.entries, key)
		}
	}
}
