package trip

import (
	"context"
	"sync"
	"time"
)

// State is the externally-owned booking state of one trip. The core never
// mutates it; route handlers (or a simulator) feed it in.
type State struct {
	TripID              string
	CurrentParticipants int
	MaxParticipants     int
}

// Snapshot renders the current state as an UpdateEvent suitable for the
// initial push after a subscribe acknowledgment.
func (s State) Snapshot() UpdateEvent {
	return UpdateEvent{
		TripID:              s.TripID,
		Type:                EventStatusChanged,
		CurrentParticipants: s.CurrentParticipants,
		Status:              DeriveStatus(s.CurrentParticipants, s.MaxParticipants),
		Timestamp:           time.Now().UTC(),
		SpotsRemaining:      s.MaxParticipants - s.CurrentParticipants,
		MaxParticipants:     s.MaxParticipants,
	}
}

// StateProvider looks up the current booking state of a trip. Implemented
// by the persistence layer in production; MemoryStateProvider serves the
// binary and tests.
type StateProvider interface {
	Lookup(ctx context.Context, tripID string) (State, bool)
}

// MemoryStateProvider is a threadsafe in-memory StateProvider.
type MemoryStateProvider struct {
	mu    sync.RWMutex
	trips map[string]State
}

// NewMemoryStateProvider returns an empty provider.
func NewMemoryStateProvider() *MemoryStateProvider {
	return &MemoryStateProvider{trips: make(map[string]State)}
}

// Set stores or replaces the state for a trip.
func (p *MemoryStateProvider) Set(s State) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.trips[s.TripID] = s
}

// Lookup implements StateProvider.
func (p *MemoryStateProvider) Lookup(_ context.Context, tripID string) (State, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	s, ok := p.trips[tripID]
	return s, ok
}
