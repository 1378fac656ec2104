package tidecast

import "log/slog"

// Option configures an App.
type Option func(*resolvedOptions)

// resolvedOptions holds all extension points after applying defaults.
// Unexported — callers use the With* functions.
type resolvedOptions struct {
	port           int
	redisURL       string
	logger         *slog.Logger
	version        string
	states         StateProvider
	facts          PhaseFactsProvider
	phaseListeners []func(PhaseEvent)
}

// WithPort overrides the TCP port from config (TIDECAST_PORT env var).
func WithPort(port int) Option {
	return func(o *resolvedOptions) { o.port = port }
}

// WithRedisURL overrides the Redis connection string from config
// (REDIS_URL env var). Redis enables cross-instance broadcast fan-out;
// without it the hub serves only local connections.
func WithRedisURL(url string) Option {
	return func(o *resolvedOptions) { o.redisURL = url }
}

// WithLogger sets the structured logger for the App.
// If not set, the default slog logger is used.
func WithLogger(logger *slog.Logger) Option {
	return func(o *resolvedOptions) { o.logger = logger }
}

// WithVersion sets the version string reported in the health endpoint and logs.
func WithVersion(version string) Option {
	return func(o *resolvedOptions) { o.version = version }
}

// WithStateProvider registers the booking-state source used to answer
// snapshot pushes when a client subscribes to a trip. Without one, an
// in-memory provider fed via SetTripState is used.
func WithStateProvider(p StateProvider) Option {
	return func(o *resolvedOptions) { o.states = p }
}

// WithPhaseFactsProvider registers the booking facts source that drives
// automatic phase transitions. Without one, the evaluation loop is
// disabled and phases only advance on explicit requests.
func WithPhaseFactsProvider(p PhaseFactsProvider) Option {
	return func(o *resolvedOptions) { o.facts = p }
}

// WithPhaseListener registers a callback invoked after every settled
// phase transition. Multiple listeners may be registered; all are called
// in registration order, synchronously with the transition.
func WithPhaseListener(fn func(PhaseEvent)) Option {
	return func(o *resolvedOptions) { o.phaseListeners = append(o.phaseListeners, fn) }
}
