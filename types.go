package tidecast

import (
	"time"

	"github.com/tidecast/tidecast/internal/hub"
	"github.com/tidecast/tidecast/internal/trip"
)

// TripStatus is the aggregate booking state of a trip.
type TripStatus string

const (
	StatusForming    TripStatus = "forming"
	StatusAlmostFull TripStatus = "almost_full"
	StatusConfirmed  TripStatus = "confirmed"
	StatusCancelled  TripStatus = "cancelled"
)

// UpdateType identifies the kind of trip update being broadcast.
type UpdateType string

const (
	ParticipantJoined UpdateType = "participant_joined"
	ParticipantLeft   UpdateType = "participant_left"
	StatusChanged     UpdateType = "status_changed"
	TripConfirmed     UpdateType = "confirmed"
	WeatherChanged    UpdateType = "weather_changed"
	BiteReport        UpdateType = "bite_report"
	RouteChanged      UpdateType = "route_changed"
)

// Weather is the weather payload attached to weather_changed updates.
type Weather struct {
	Condition     string  `json:"condition"`
	WindSpeedKn   float64 `json:"windSpeedKn"`
	WaveHeightM   float64 `json:"waveHeightM"`
	TemperatureC  float64 `json:"temperatureC"`
	AlertLevel    string  `json:"alertLevel"`
	ForecastNotes string  `json:"forecastNotes,omitempty"`
}

// Bite is the fishing-report payload attached to bite_report updates.
type Bite struct {
	Species    string `json:"species"`
	Technique  string `json:"technique"`
	Confidence string `json:"confidence"`
	Location   string `json:"location,omitempty"`
	ReportedBy string `json:"reportedBy,omitempty"`
}

// Route is the payload attached to route_changed updates.
type Route struct {
	PreviousRoute string `json:"previousRoute"`
	NewRoute      string `json:"newRoute"`
	Reason        string `json:"reason"`
}

// TripUpdate is the public representation of one broadcast event.
// It is a curated view of the internal update type with no internal
// package imports, safe to construct from outside the module.
type TripUpdate struct {
	TripID              string     `json:"tripId"`
	Type                UpdateType `json:"type"`
	CurrentParticipants int        `json:"currentParticipants"`
	MaxParticipants     int        `json:"maxParticipants"`
	SpotsRemaining      int        `json:"spotsRemaining"`
	Status              TripStatus `json:"status"`
	Timestamp           time.Time  `json:"timestamp"`
	ParticipantName     string     `json:"participantName,omitempty"`
	Weather             *Weather   `json:"weatherData,omitempty"`
	Bite                *Bite      `json:"biteReport,omitempty"`
	Route               *Route     `json:"routeChange,omitempty"`
}

// TripState is the externally-owned booking state of one trip, used to
// answer snapshot pushes when a client subscribes.
type TripState struct {
	TripID              string
	CurrentParticipants int
	MaxParticipants     int
}

// StateProvider supplies current trip state for snapshot pushes.
// Implement it over your booking store and register with
// WithStateProvider; when absent, subscribers get no initial snapshot.
type StateProvider interface {
	TripState(tripID string) (TripState, bool)
}

// PhaseFacts are the booking facts automatic phase transition rules
// evaluate: whether the trip has started or finished according to the
// booking system, and when it is scheduled to depart.
type PhaseFacts struct {
	TripDate   time.Time
	TripStatus string // scheduled | active | completed | cancelled
}

// PhaseFactsProvider feeds the automatic transition evaluator.
// Implement it over your booking store and register with
// WithPhaseFactsProvider; when absent, phases only advance on request.
type PhaseFactsProvider interface {
	TripIDs() []string
	PhaseFacts(tripID string) (PhaseFacts, bool)
}

// PhaseEvent is a notification that a trip's phase transition settled.
type PhaseEvent struct {
	TripID  string
	From    string
	To      string
	Trigger string
	Status  string
	At      time.Time
}

// ConnStats describes one active connection and its subscriptions.
type ConnStats struct {
	ConnID      string
	ConnectedAt time.Time
	TripIDs     []string
	EventTypes  []string
}

// HubStats is a point-in-time summary of the broadcast hub, including a
// per-connection breakdown.
type HubStats struct {
	TotalConnections        int
	TotalTripSubscriptions  int
	TotalEventSubscriptions int
	Connections             []ConnStats
}

// ── Conversion helpers between public and internal types ─────────────────

func toInternalUpdate(u TripUpdate) trip.UpdateEvent {
	ev := trip.UpdateEvent{
		TripID:              u.TripID,
		Type:                trip.EventType(u.Type),
		CurrentParticipants: u.CurrentParticipants,
		MaxParticipants:     u.MaxParticipants,
		SpotsRemaining:      u.SpotsRemaining,
		Status:              trip.Status(u.Status),
		Timestamp:           u.Timestamp,
		ParticipantName:     u.ParticipantName,
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}
	if u.Weather != nil {
		ev.WeatherData = &trip.WeatherData{
			Condition:     u.Weather.Condition,
			WindSpeedKn:   u.Weather.WindSpeedKn,
			WaveHeightM:   u.Weather.WaveHeightM,
			TemperatureC:  u.Weather.TemperatureC,
			AlertLevel:    trip.AlertLevel(u.Weather.AlertLevel),
			ForecastNotes: u.Weather.ForecastNotes,
		}
	}
	if u.Bite != nil {
		ev.BiteReport = &trip.BiteReport{
			Species:    u.Bite.Species,
			Technique:  u.Bite.Technique,
			Confidence: trip.Confidence(u.Bite.Confidence),
			Location:   u.Bite.Location,
			ReportedBy: u.Bite.ReportedBy,
		}
	}
	if u.Route != nil {
		ev.RouteChange = &trip.RouteChange{
			PreviousRoute: u.Route.PreviousRoute,
			NewRoute:      u.Route.NewRoute,
			Reason:        u.Route.Reason,
		}
	}
	return ev
}

func toPublicStats(s hub.Stats) HubStats {
	out := HubStats{
		TotalConnections:        s.TotalConnections,
		TotalTripSubscriptions:  s.TotalTripSubscriptions,
		TotalEventSubscriptions: s.TotalEventSubscriptions,
		Connections:             make([]ConnStats, 0, len(s.Connections)),
	}
	for _, c := range s.Connections {
		types := make([]string, len(c.EventTypes))
		for i, et := range c.EventTypes {
			types[i] = string(et)
		}
		out.Connections = append(out.Connections, ConnStats{
			ConnID:      c.ConnID,
			ConnectedAt: c.ConnectedAt,
			TripIDs:     c.TripIDs,
			EventTypes:  types,
		})
	}
	return out
}
