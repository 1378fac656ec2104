// Package config loads and validates application configuration from environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all application configuration.
type Config struct {
	// Server settings.
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	// WebSocket settings.
	HeartbeatInterval time.Duration // ping period per connection
	WriteWait         time.Duration // per-message write deadline
	MaxMessageSize    int64         // bytes a client may send per message
	SendBufferSize    int           // per-connection outbound queue length

	// Redis settings (cross-instance fan-out; empty = single instance).
	RedisURL         string
	BroadcastChannel string

	// Phase transition settings.
	TransitionTimeout      time.Duration
	ConfirmationTTL        time.Duration
	AutoTransitionInterval time.Duration

	// OTEL settings.
	OTELEndpoint string
	OTELInsecure bool
	ServiceName  string

	// Simulation settings (synthesized broadcasts for load/demo runs).
	Simulate         bool
	SimulateSeed     int64
	SimulateInterval time.Duration

	// Rate limit settings (phase mutation endpoints, keyed by client IP).
	RateLimitEnabled    bool
	RateLimitRPS        float64
	RateLimitBurst      int
	RateLimitStaleAfter time.Duration
	RateLimitSweep      time.Duration

	// Operational settings.
	LogLevel        string
	ShutdownTimeout time.Duration
}

// Load reads configuration from environment variables with sensible defaults.
func Load() (Config, error) {
	cfg := Config{
		Port:                   envInt("TIDECAST_PORT", 8080),
		ReadTimeout:            envDuration("TIDECAST_READ_TIMEOUT", 30*time.Second),
		WriteTimeout:           envDuration("TIDECAST_WRITE_TIMEOUT", 30*time.Second),
		HeartbeatInterval:      envDuration("TIDECAST_HEARTBEAT_INTERVAL", 25*time.Second),
		WriteWait:              envDuration("TIDECAST_WRITE_WAIT", 10*time.Second),
		MaxMessageSize:         int64(envInt("TIDECAST_MAX_MESSAGE_BYTES", 4096)),
		SendBufferSize:         envInt("TIDECAST_SEND_BUFFER", 64),
		RedisURL:               envStr("REDIS_URL", ""),
		BroadcastChannel:       envStr("TIDECAST_BROADCAST_CHANNEL", "tidecast:trip-updates"),
		TransitionTimeout:      envDuration("TIDECAST_TRANSITION_TIMEOUT", 30*time.Second),
		ConfirmationTTL:        envDuration("TIDECAST_CONFIRMATION_TTL", 2*time.Minute),
		AutoTransitionInterval: envDuration("TIDECAST_AUTO_TRANSITION_INTERVAL", time.Minute),
		OTELEndpoint:           envStr("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
		OTELInsecure:           envBool("OTEL_EXPORTER_OTLP_INSECURE", false),
		ServiceName:            envStr("OTEL_SERVICE_NAME", "tidecast"),
		Simulate:               envBool("TIDECAST_SIMULATE", false),
		SimulateSeed:           int64(envInt("TIDECAST_SIMULATE_SEED", 0)),
		SimulateInterval:       envDuration("TIDECAST_SIMULATE_INTERVAL", 5*time.Second),
		RateLimitEnabled:       envBool("TIDECAST_RATE_LIMIT_ENABLED", true),
		RateLimitRPS:           envFloat("TIDECAST_RATE_LIMIT_RPS", 5),
		RateLimitBurst:         envInt("TIDECAST_RATE_LIMIT_BURST", 10),
		RateLimitStaleAfter:    envDuration("TIDECAST_RATE_LIMIT_STALE_AFTER", 10*time.Minute),
		RateLimitSweep:         envDuration("TIDECAST_RATE_LIMIT_SWEEP_INTERVAL", time.Minute),
		LogLevel:               envStr("TIDECAST_LOG_LEVEL", "info"),
		ShutdownTimeout:        envDuration("TIDECAST_SHUTDOWN_TIMEOUT", 10*time.Second),
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks that required configuration is present.
func (c Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("config: TIDECAST_PORT must be in (0, 65535]")
	}
	if c.HeartbeatInterval <= 0 {
		return fmt.Errorf("config: TIDECAST_HEARTBEAT_INTERVAL must be positive")
	}
	if c.SendBufferSize <= 0 {
		return fmt.Errorf("config: TIDECAST_SEND_BUFFER must be positive")
	}
	if c.MaxMessageSize <= 0 {
		return fmt.Errorf("config: TIDECAST_MAX_MESSAGE_BYTES must be positive")
	}
	if c.TransitionTimeout < 0 {
		return fmt.Errorf("config: TIDECAST_TRANSITION_TIMEOUT must not be negative")
	}
	if c.RateLimitEnabled && (c.RateLimitRPS <= 0 || c.RateLimitBurst <= 0) {
		return fmt.Errorf("config: TIDECAST_RATE_LIMIT_RPS and TIDECAST_RATE_LIMIT_BURST must be positive when rate limiting is enabled")
	}
	if c.RateLimitEnabled && (c.RateLimitStaleAfter <= 0 || c.RateLimitSweep <= 0) {
		return fmt.Errorf("config: TIDECAST_RATE_LIMIT_STALE_AFTER and TIDECAST_RATE_LIMIT_SWEEP_INTERVAL must be positive when rate limiting is enabled")
	}
	return nil
}

func envStr(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return defaultVal
}

func envFloat(key string, defaultVal float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return defaultVal
}

func envBool(key string, defaultVal bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return defaultVal
}

func envDuration(key string, defaultVal time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultVal
}
