// Package tidecast is the public API for embedding the tidecast
// real-time trip broadcast server.
//
// Consumers import this package to construct and run the server without
// forking it:
//
//	app, err := tidecast.New(
//	    tidecast.WithVersion(version),
//	    tidecast.WithLogger(logger),
//	    tidecast.WithStateProvider(myBookingStore),
//	)
//	if err != nil { ... }
//	if err := app.Run(ctx); err != nil { ... }
//
// The import graph enforces a strict no-cycle rule: tidecast (root)
// imports internal/*, but internal/* never imports tidecast (root).
// Public types (TripUpdate, TripState, PhaseEvent) are standalone
// structs with no internal imports; conversion helpers live here because
// this is the only file that sees both sides of the boundary.
package tidecast

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/tidecast/tidecast/internal/config"
	"github.com/tidecast/tidecast/internal/hub"
	"github.com/tidecast/tidecast/internal/phase"
	"github.com/tidecast/tidecast/internal/ratelimit"
	"github.com/tidecast/tidecast/internal/server"
	"github.com/tidecast/tidecast/internal/synth"
	"github.com/tidecast/tidecast/internal/telemetry"
	"github.com/tidecast/tidecast/internal/trip"
)

// App is the tidecast server lifecycle. Construct with New(), run with
// Run(). App has no public fields — use New() options to configure it.
type App struct {
	cfg          config.Config
	hub          *hub.Hub
	srv          *server.Server
	phases       *phase.Service
	states       trip.StateProvider
	memStates    *trip.MemoryStateProvider // nil when an external provider is registered
	rdb          *redis.Client             // nil when Redis is not configured
	bridge       *hub.Bridge               // nil when Redis is not configured
	synth        *synth.Synthesizer        // nil unless simulation is enabled
	facts        PhaseFactsProvider        // nil disables the auto-transition loop
	limiter      ratelimit.Limiter         // nil when rate limiting is disabled
	otelShutdown telemetry.Shutdown
	logger       *slog.Logger
	version      string
}

// New initialises the tidecast server. It wires the hub, the phase
// service, the optional Redis bridge, and the HTTP/WebSocket server, and
// returns a ready-to-run App. It does NOT start any goroutines or accept
// connections — call Run().
func New(opts ...Option) (*App, error) {
	// Apply options.
	o := resolvedOptions{}
	for _, fn := range opts {
		fn(&o)
	}

	logger := o.logger
	if logger == nil {
		logger = slog.Default()
	}

	// Load .env file if present (non-fatal; production won't have one).
	_ = godotenv.Load()

	// Load configuration (env vars), then apply option overrides.
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if o.port != 0 {
		cfg.Port = o.port
	}
	if o.redisURL != "" {
		cfg.RedisURL = o.redisURL
	}
	version := o.version
	if version == "" {
		version = "dev"
	}

	logger.Info("tidecast starting", "version", version, "port", cfg.Port)

	// Initialize OpenTelemetry.
	otelShutdown, err := telemetry.Init(context.Background(), cfg.OTELEndpoint, cfg.ServiceName, version, cfg.OTELInsecure)
	if err != nil {
		return nil, fmt.Errorf("telemetry: %w", err)
	}

	metrics, err := telemetry.NewMetrics()
	if err != nil {
		_ = otelShutdown(context.Background())
		return nil, fmt.Errorf("metrics: %w", err)
	}

	h := hub.New(logger, metrics)

	// Redis fan-out bridge.
	var rdb *redis.Client
	var bridge *hub.Bridge
	if cfg.RedisURL != "" {
		ropts, perr := redis.ParseURL(cfg.RedisURL)
		if perr != nil {
			_ = otelShutdown(context.Background())
			return nil, fmt.Errorf("redis: %w", perr)
		}
		rdb = redis.NewClient(ropts)
		bridge = hub.NewBridge(rdb, cfg.BroadcastChannel, uuid.NewString(), logger)
		h.WithBridge(bridge)
		logger.Info("redis fan-out: enabled", "channel", cfg.BroadcastChannel)
	} else {
		logger.Info("redis fan-out: disabled (no REDIS_URL)")
	}

	// Trip state source for snapshot pushes.
	var states trip.StateProvider
	var memStates *trip.MemoryStateProvider
	if o.states != nil {
		states = &stateProviderAdapter{p: o.states}
	} else {
		memStates = trip.NewMemoryStateProvider()
		states = memStates
	}

	// Phase transition service.
	phases := phase.NewService(phase.ServiceConfig{
		TransitionTimeout: cfg.TransitionTimeout,
		ConfirmationTTL:   cfg.ConfirmationTTL,
		Logger:            logger,
		Metrics:           metrics,
	})
	// A completed transition refreshes subscribers via a state snapshot,
	// when the trip's booking state is known.
	phases.AddListener(func(ev phase.Event) {
		if ev.Status != phase.StatusCompleted {
			return
		}
		if st, ok := states.Lookup(context.Background(), ev.TripID); ok {
			h.Broadcast(st.Snapshot())
		}
	})
	for _, fn := range o.phaseListeners {
		fn := fn // capture
		phases.AddListener(func(ev phase.Event) { fn(toPublicPhaseEvent(ev)) })
	}

	// Rate limiter for phase mutation endpoints.
	var limiter ratelimit.Limiter
	if cfg.RateLimitEnabled {
		limiter = ratelimit.NewMemoryLimiter(ratelimit.MemoryConfig{
			Rate:          cfg.RateLimitRPS,
			Burst:         cfg.RateLimitBurst,
			StaleAfter:    cfg.RateLimitStaleAfter,
			SweepInterval: cfg.RateLimitSweep,
		})
		logger.Info("rate limiting: memory (in-process token bucket)",
			"rps", cfg.RateLimitRPS, "burst", cfg.RateLimitBurst)
	} else {
		logger.Info("rate limiting: disabled")
	}

	// HTTP/WebSocket server.
	srv := server.New(server.Config{
		Hub:               h,
		Phases:            phases,
		States:            states,
		Limiter:           limiter,
		Logger:            logger,
		Port:              cfg.Port,
		ReadTimeout:       cfg.ReadTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		HeartbeatInterval: cfg.HeartbeatInterval,
		WriteWait:         cfg.WriteWait,
		MaxMessageSize:    cfg.MaxMessageSize,
		SendBufferSize:    cfg.SendBufferSize,
		Version:           version,
	})

	// Update synthesizer for demo and load runs.
	var syn *synth.Synthesizer
	if cfg.Simulate {
		seed := cfg.SimulateSeed
		if seed == 0 {
			seed = time.Now().UnixNano()
		}
		syn = synth.New(rand.New(rand.NewSource(seed)))
		if memStates != nil {
			for _, st := range demoFleet() {
				memStates.Set(st)
			}
		}
		logger.Info("simulation: enabled", "interval", cfg.SimulateInterval, "seed", seed)
	}

	return &App{
		cfg:          cfg,
		hub:          h,
		srv:          srv,
		phases:       phases,
		states:       states,
		memStates:    memStates,
		rdb:          rdb,
		bridge:       bridge,
		synth:        syn,
		facts:        o.facts,
		limiter:      limiter,
		otelShutdown: otelShutdown,
		logger:       logger,
		version:      version,
	}, nil
}

// Run starts all background goroutines and the HTTP server, then blocks
// until ctx is cancelled or a fatal server error occurs. On return,
// Shutdown is called automatically — callers should not call Shutdown
// separately.
func (a *App) Run(ctx context.Context) error {
	if a.bridge != nil {
		go a.bridge.Run(ctx, a.hub)
	}
	if a.synth != nil {
		go a.simulateLoop(ctx)
	}
	if a.facts != nil {
		go a.autoTransitionLoop(ctx)
	}

	errCh := make(chan error, 1)
	go func() {
		if err := a.srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return err
	}

	return a.Shutdown(context.Background())
}

// Shutdown drains HTTP connections, then closes the Redis client and
// the OTEL provider.
func (a *App) Shutdown(ctx context.Context) error {
	a.logger.Info("tidecast shutting down")

	httpCtx, cancel := context.WithTimeout(ctx, a.cfg.ShutdownTimeout)
	defer cancel()
	if err := a.srv.Shutdown(httpCtx); err != nil {
		a.logger.Error("http shutdown error", "error", err)
	}

	if a.limiter != nil {
		_ = a.limiter.Close()
	}
	if a.rdb != nil {
		_ = a.rdb.Close()
	}
	_ = a.otelShutdown(context.Background())

	a.logger.Info("tidecast stopped")
	return nil
}

// BroadcastTripUpdate fans a trip update out to every subscribed
// connection (and, via Redis, to peer instances). It returns the number
// of local connections the update was delivered to.
func (a *App) BroadcastTripUpdate(u TripUpdate) int {
	return a.hub.Broadcast(toInternalUpdate(u))
}

// SetTripState records booking state on the built-in in-memory provider.
// It errors when an external StateProvider was registered — that
// provider owns trip state.
func (a *App) SetTripState(s TripState) error {
	if a.memStates == nil {
		return errors.New("external state provider registered")
	}
	a.memStates.Set(trip.State{
		TripID:              s.TripID,
		CurrentParticipants: s.CurrentParticipants,
		MaxParticipants:     s.MaxParticipants,
	})
	return nil
}

// Stats returns a point-in-time summary of the broadcast hub.
func (a *App) Stats() HubStats {
	return toPublicStats(a.hub.Stats())
}

// CurrentPhase returns the trip's phase, creating the trip's phase
// manager if this is the first time the trip is seen.
func (a *App) CurrentPhase(tripID string) string {
	return string(a.phases.Manager(tripID).Current())
}

// simulateLoop broadcasts a synthesized update for a random demo trip on
// every tick.
func (a *App) simulateLoop(ctx context.Context) {
	ticker := time.NewTicker(a.cfg.SimulateInterval)
	defer ticker.Stop()

	fleet := demoFleet()
	rnd := rand.New(rand.NewSource(a.cfg.SimulateSeed + 1))

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			st := fleet[rnd.Intn(len(fleet))]
			ev := a.synth.Random(st)
			n := a.hub.Broadcast(ev)
			a.logger.Debug("simulate: broadcast", "trip_id", ev.TripID, "type", ev.Type, "delivered", n)
		}
	}
}

// autoTransitionLoop polls booking facts and advances each trip's phase
// when an automatic rule fires (departure time reached, trip marked
// active or completed).
func (a *App) autoTransitionLoop(ctx context.Context) {
	ticker := time.NewTicker(a.cfg.AutoTransitionInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, tripID := range a.facts.TripIDs() {
				facts, ok := a.facts.PhaseFacts(tripID)
				if !ok {
					continue
				}
				m := a.phases.Manager(tripID)
				res := m.EvaluateAutoTransitions(phase.Context{
					TripID:     tripID,
					TripDate:   facts.TripDate,
					TripStatus: phase.TripStatus(facts.TripStatus),
				})
				if res != nil && !res.Success && res.Error != nil {
					a.logger.Warn("phase: auto transition failed",
						"trip_id", tripID, "to", res.Transition.To, "error", res.Error.Message)
				}
			}
		}
	}
}

// demoFleet is the fixed set of trips the simulator reports on.
func demoFleet() []trip.State {
	return []trip.State{
		{TripID: "trip-halfday-reef", CurrentParticipants: 3, MaxParticipants: 6},
		{TripID: "trip-offshore-tuna", CurrentParticipants: 7, MaxParticipants: 8},
		{TripID: "trip-night-squid", CurrentParticipants: 2, MaxParticipants: 10},
		{TripID: "trip-deep-drop", CurrentParticipants: 4, MaxParticipants: 4},
	}
}

// stateProviderAdapter bridges the public StateProvider to the internal
// lookup interface.
type stateProviderAdapter struct {
	p StateProvider
}

func (a *stateProviderAdapter) Lookup(_ context.Context, tripID string) (trip.State, bool) {
	s, ok := a.p.TripState(tripID)
	if !ok {
		return trip.State{}, false
	}
	return trip.State{
		TripID:              s.TripID,
		CurrentParticipants: s.CurrentParticipants,
		MaxParticipants:     s.MaxParticipants,
	}, true
}

func toPublicPhaseEvent(ev phase.Event) PhaseEvent {
	return PhaseEvent{
		TripID:  ev.TripID,
		From:    string(ev.From),
		To:      string(ev.To),
		Trigger: string(ev.Trigger),
		Status:  string(ev.Status),
		At:      ev.At,
	}
}
