// Package hub implements the in-process broadcast core: a subscription
// registry tracking each connected client's trip and event-type interest,
// and a Hub that fans trip-state updates out to every matching connection.
package hub

import (
	"github.com/samber/lo"

	"github.com/tidecast/tidecast/internal/trip"
)

// Filters refines which events of a subscribed type a client wants.
// Fields are pointers so a shallow merge can distinguish "unset" from
// an explicit false/zero; last write wins per field.
type Filters struct {
	WeatherAlertsOnly        *bool            `json:"weatherAlertsOnly,omitempty"`
	BiteReportsMinConfidence *trip.Confidence `json:"biteReportsMinConfidence,omitempty"`
	RouteChangesOnly         *bool            `json:"routeChangesOnly,omitempty"`
}

// merge applies the set fields of other on top of f.
func (f *Filters) merge(other Filters) {
	if other.WeatherAlertsOnly != nil {
		f.WeatherAlertsOnly = other.WeatherAlertsOnly
	}
	if other.BiteReportsMinConfidence != nil {
		f.BiteReportsMinConfidence = other.BiteReportsMinConfidence
	}
	if other.RouteChangesOnly != nil {
		f.RouteChangesOnly = other.RouteChangesOnly
	}
}

// Subscription is one connection's interest set. All slices are kept
// deduplicated; order is irrelevant.
type Subscription struct {
	TripIDs    []string
	EventTypes []trip.EventType
	Filters    Filters
}

// copy returns a deep enough copy for safe concurrent reads.
func (s Subscription) copy() Subscription {
	return Subscription{
		TripIDs:    append([]string(nil), s.TripIDs...),
		EventTypes: append([]trip.EventType(nil), s.EventTypes...),
		Filters:    s.Filters,
	}
}

// Registry tracks one Subscription per connection. It is an injected
// value owned by the Hub, not a package singleton, so a distributed
// backing store can replace it without touching call sites.
//
// Only the owning connection's handler mutates its own entry; the Hub
// reads across entries during broadcast. The Hub's mutex serializes both.
type Registry struct {
	entries map[string]*Subscription
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]*Subscription)}
}

// Register creates an empty subscription for connID with the base
// event-type set. Idempotent: an existing entry is left untouched.
func (r *Registry) Register(connID string) {
	if _, ok := r.entries[connID]; ok {
		return
	}
	r.entries[connID] = &Subscription{EventTypes: trip.BaseEventTypes()}
}

// Unregister removes connID's subscription. Safe to call repeatedly.
func (r *Registry) Unregister(connID string) {
	delete(r.entries, connID)
}

// Subscribe unions tripIDs into connID's subscribed set and returns the
// updated set for acknowledgment. Empty input is a no-op.
func (r *Registry) Subscribe(connID string, tripIDs []string) []string {
	sub, ok := r.entries[connID]
	if !ok || len(tripIDs) == 0 {
		if ok {
			return append([]string(nil), sub.TripIDs...)
		}
		return nil
	}
	sub.TripIDs = lo.Union(sub.TripIDs, tripIDs)
	return append([]string(nil), sub.TripIDs...)
}

// Unsubscribe removes tripIDs from connID's subscribed set.
func (r *Registry) Unsubscribe(connID string, tripIDs []string) []string {
	sub, ok := r.entries[connID]
	if !ok || len(tripIDs) == 0 {
		if ok {
			return append([]string(nil), sub.TripIDs...)
		}
		return nil
	}
	sub.TripIDs = lo.Without(sub.TripIDs, tripIDs...)
	return append([]string(nil), sub.TripIDs...)
}

// SubscribeEvents unions eventTypes into connID's interest set and
// shallow-merges filters (last write wins per field).
func (r *Registry) SubscribeEvents(connID string, eventTypes []trip.EventType, filters *Filters) []trip.EventType {
	sub, ok := r.entries[connID]
	if !ok {
		return nil
	}
	if len(eventTypes) > 0 {
		sub.EventTypes = lo.Union(sub.EventTypes, eventTypes)
	}
	if filters != nil {
		sub.Filters.merge(*filters)
	}
	return append([]trip.EventType(nil), sub.EventTypes...)
}

// UnsubscribeEvents removes eventTypes from connID's interest set.
func (r *Registry) UnsubscribeEvents(connID string, eventTypes []trip.EventType) []trip.EventType {
	sub, ok := r.entries[connID]
	if !ok {
		return nil
	}
	if len(eventTypes) > 0 {
		sub.EventTypes = lo.Without(sub.EventTypes, eventTypes...)
	}
	return append([]trip.EventType(nil), sub.EventTypes...)
}

// Get returns a copy of connID's subscription.
func (r *Registry) Get(connID string) (Subscription, bool) {
	sub, ok := r.entries[connID]
	if !ok {
		return Subscription{}, false
	}
	return sub.copy(), true
}

// Len returns the number of registered connections.
func (r *Registry) Len() int { return len(r.entries) }
