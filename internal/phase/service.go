package phase

import (
	"log/slog"
	"sync"
	"time"

	"github.com/tidecast/tidecast/internal/telemetry"
)

// ServiceConfig holds the process-wide state machine configuration.
// Zero-value fields fall back to the defaults.
type ServiceConfig struct {
	Rules             []Rule
	Migrations        []MigrationRule
	Settings          map[Phase]Settings
	TransitionTimeout time.Duration
	ConfirmationTTL   time.Duration
	Logger            *slog.Logger
	Metrics           *telemetry.Metrics

	// Now overrides the clock for tests.
	Now func() time.Time
}

// Service owns one Manager per trip, the shared history store, and the
// override evaluator. Managers are created on demand; every trip starts
// in preparation.
type Service struct {
	cfg       ServiceConfig
	history   *HistoryStore
	evaluator *Evaluator
	listeners []Listener

	mu       sync.Mutex
	managers map[string]*Manager
}

// NewService creates the phase service.
func NewService(cfg ServiceConfig) *Service {
	if cfg.Rules == nil {
		cfg.Rules = DefaultRules()
	}
	if cfg.Migrations == nil {
		cfg.Migrations = DefaultMigrations()
	}
	if cfg.Settings == nil {
		cfg.Settings = DefaultSettings()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Now == nil {
		cfg.Now = func() time.Time { return time.Now().UTC() }
	}
	return &Service{
		cfg:       cfg,
		history:   NewHistoryStore(),
		evaluator: NewEvaluator(cfg.ConfirmationTTL),
		managers:  make(map[string]*Manager),
	}
}

// AddListener registers a lifecycle listener for all trips. Must be
// called before the first Manager is created.
func (s *Service) AddListener(l Listener) {
	s.listeners = append(s.listeners, l)
}

// Manager returns the state machine for tripID, creating it in the
// preparation phase on first use.
func (s *Service) Manager(tripID string) *Manager {
	s.mu.Lock()
	defer s.mu.Unlock()

	if m, ok := s.managers[tripID]; ok {
		return m
	}
	m := &Manager{
		tripID:     tripID,
		logger:     s.cfg.Logger,
		metrics:    s.cfg.Metrics,
		rules:      s.cfg.Rules,
		migrations: s.cfg.Migrations,
		settings:   s.cfg.Settings,
		history:    s.history,
		timeout:    s.cfg.TransitionTimeout,
		now:        s.cfg.Now,
		listeners:  s.listeners,
		current:    PhasePreparation,
		data:       map[Phase]Data{},
	}
	s.history.Open(tripID, PhasePreparation, TriggerAutomatic, s.cfg.Now())
	s.managers[tripID] = m
	return m
}

// Evaluator returns the shared override evaluator.
func (s *Service) Evaluator() *Evaluator { return s.evaluator }

// History returns the phase log for a trip without creating a manager.
func (s *Service) History(tripID string) History {
	return s.history.History(tripID)
}
