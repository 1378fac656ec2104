package phase

import (
	"sync"
	"time"
)

// HistoryEntry is one immutable record of a phase being entered and,
// eventually, exited. ExitedAt and Duration stay nil while the phase is
// active; exactly one entry per trip is open at any time.
type HistoryEntry struct {
	Phase      Phase          `json:"phase"`
	EnteredAt  time.Time      `json:"enteredAt"`
	ExitedAt   *time.Time     `json:"exitedAt,omitempty"`
	Duration   *time.Duration `json:"duration,omitempty"`
	Trigger    Trigger        `json:"trigger"`
	Completion *Data          `json:"completion,omitempty"`
	Note       string         `json:"note,omitempty"`
}

// History is the full phase log of one trip.
type History struct {
	TripID          string         `json:"tripId"`
	Phases          []HistoryEntry `json:"phases"`
	TotalDuration   time.Duration  `json:"totalDuration"`
	TransitionCount int            `json:"transitionCount"`
	LastUpdated     time.Time      `json:"lastUpdated"`
}

// HistoryStore is an append-only per-trip phase log, shared by all
// managers in one process. Safe for concurrent use.
type HistoryStore struct {
	mu      sync.RWMutex
	entries map[string][]HistoryEntry
	updated map[string]time.Time
}

// NewHistoryStore returns an empty store.
func NewHistoryStore() *HistoryStore {
	return &HistoryStore{
		entries: make(map[string][]HistoryEntry),
		updated: make(map[string]time.Time),
	}
}

// Open appends an open entry for phase, entered at now.
func (s *HistoryStore) Open(tripID string, phase Phase, trigger Trigger, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[tripID] = append(s.entries[tripID], HistoryEntry{
		Phase:     phase,
		EnteredAt: now,
		Trigger:   trigger,
	})
	s.updated[tripID] = now
}

// CloseActive stamps the currently open entry with an exit time, its
// duration, and an optional completion snapshot of the phase data.
func (s *HistoryStore) CloseActive(tripID string, now time.Time, completion *Data, note string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	list := s.entries[tripID]
	for i := len(list) - 1; i >= 0; i-- {
		if list[i].ExitedAt == nil {
			d := now.Sub(list[i].EnteredAt)
			list[i].ExitedAt = &now
			list[i].Duration = &d
			list[i].Completion = completion
			list[i].Note = note
			s.updated[tripID] = now
			return
		}
	}
}

// Advance atomically closes the open entry and opens one for the next
// phase, so observers never see zero or two open entries for a trip.
func (s *HistoryStore) Advance(tripID string, next Phase, trigger Trigger, now time.Time, completion *Data, note string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	list := s.entries[tripID]
	for i := len(list) - 1; i >= 0; i-- {
		if list[i].ExitedAt == nil {
			d := now.Sub(list[i].EnteredAt)
			list[i].ExitedAt = &now
			list[i].Duration = &d
			list[i].Completion = completion
			list[i].Note = note
			break
		}
	}
	s.entries[tripID] = append(list, HistoryEntry{
		Phase:     next,
		EnteredAt: now,
		Trigger:   trigger,
	})
	s.updated[tripID] = now
}

// Active returns the currently open entry for the trip.
func (s *HistoryStore) Active(tripID string) (HistoryEntry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	list := s.entries[tripID]
	for i := len(list) - 1; i >= 0; i-- {
		if list[i].ExitedAt == nil {
			return list[i], true
		}
	}
	return HistoryEntry{}, false
}

// History returns a copy of the trip's full phase log with derived
// totals.
func (s *HistoryStore) History(tripID string) History {
	s.mu.RLock()
	defer s.mu.RUnlock()

	list := s.entries[tripID]
	h := History{
		TripID:      tripID,
		Phases:      append([]HistoryEntry(nil), list...),
		LastUpdated: s.updated[tripID],
	}
	for _, e := range list {
		if e.Duration != nil {
			h.TotalDuration += *e.Duration
		}
	}
	if n := len(list); n > 0 {
		h.TransitionCount = n - 1
	}
	return h
}
