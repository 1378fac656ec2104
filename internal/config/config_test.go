package config

import (
	"testing"
	"time"
)

func TestEnvIntValid(t *testing.T) {
	t.Setenv("TEST_INT", "42")
	if v := envInt("TEST_INT", 0); v != 42 {
		t.Fatalf("expected 42, got %d", v)
	}
}

func TestEnvIntFallback(t *testing.T) {
	// TEST_INT_MISSING is not set.
	if v := envInt("TEST_INT_MISSING", 99); v != 99 {
		t.Fatalf("expected fallback 99, got %d", v)
	}
}

func TestEnvIntInvalidUsesFallback(t *testing.T) {
	t.Setenv("TEST_INT_BAD", "abc")
	if v := envInt("TEST_INT_BAD", 7); v != 7 {
		t.Fatalf("expected fallback 7, got %d", v)
	}
}

func TestEnvDuration(t *testing.T) {
	t.Setenv("TEST_DUR", "45s")
	if v := envDuration("TEST_DUR", time.Minute); v != 45*time.Second {
		t.Fatalf("expected 45s, got %s", v)
	}
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Port != 8080 {
		t.Fatalf("expected default port 8080, got %d", cfg.Port)
	}
	if cfg.HeartbeatInterval != 25*time.Second {
		t.Fatalf("expected 25s heartbeat interval, got %s", cfg.HeartbeatInterval)
	}
}

func TestValidateRejectsBadPort(t *testing.T) {
	t.Setenv("TIDECAST_PORT", "-1")
	if _, err := Load(); err == nil {
		t.Fatal("expected error for negative port, got nil")
	}
}

func TestValidateRejectsZeroHeartbeat(t *testing.T) {
	t.Setenv("TIDECAST_HEARTBEAT_INTERVAL", "0s")
	if _, err := Load(); err == nil {
		t.Fatal("expected error for zero heartbeat interval, got nil")
	}
}

func TestLoadRateLimitEviction(t *testing.T) {
	t.Setenv("TIDECAST_RATE_LIMIT_STALE_AFTER", "30m")
	t.Setenv("TIDECAST_RATE_LIMIT_SWEEP_INTERVAL", "5m")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.RateLimitStaleAfter != 30*time.Minute {
		t.Fatalf("expected 30m stale threshold, got %s", cfg.RateLimitStaleAfter)
	}
	if cfg.RateLimitSweep != 5*time.Minute {
		t.Fatalf("expected 5m sweep interval, got %s", cfg.RateLimitSweep)
	}
}

func TestValidateRejectsZeroSweep(t *testing.T) {
	t.Setenv("TIDECAST_RATE_LIMIT_SWEEP_INTERVAL", "0s")
	if _, err := Load(); err == nil {
		t.Fatal("expected error for zero sweep interval, got nil")
	}
}
