// Package trip defines the domain model for live trip-state updates:
// event types, display status derivation, and the payload shapes pushed
// to subscribed clients.
package trip

import "time"

// EventType tags one kind of trip-state change.
type EventType string

const (
	EventParticipantJoined EventType = "participant_joined"
	EventParticipantLeft   EventType = "participant_left"
	EventStatusChanged     EventType = "status_changed"
	EventConfirmed         EventType = "confirmed"
	EventWeatherChanged    EventType = "weather_changed"
	EventBiteReport        EventType = "bite_report"
	EventRouteChanged      EventType = "route_changed"
)

// Valid reports whether t is one of the known event types.
func (t EventType) Valid() bool {
	switch t {
	case EventParticipantJoined, EventParticipantLeft, EventStatusChanged,
		EventConfirmed, EventWeatherChanged, EventBiteReport, EventRouteChanged:
		return true
	}
	return false
}

// BaseEventTypes is the default interest set for a new subscription:
// status and participant events. Weather, bite and route events are
// opt-in via subscribe_events.
func BaseEventTypes() []EventType {
	return []EventType{
		EventParticipantJoined,
		EventParticipantLeft,
		EventStatusChanged,
		EventConfirmed,
	}
}

// Status is the derived display status of a group trip.
type Status string

const (
	StatusForming    Status = "forming"
	StatusAlmostFull Status = "almost_full"
	StatusConfirmed  Status = "confirmed"
)

// DeriveStatus maps participant counts to a display status. A full trip
// shows as confirmed; two or fewer open spots shows as almost_full.
func DeriveStatus(current, max int) Status {
	if max > 0 && current >= max {
		return StatusConfirmed
	}
	if max-current <= 2 {
		return StatusAlmostFull
	}
	return StatusForming
}

// AlertLevel grades a weather condition.
type AlertLevel string

const (
	AlertNone     AlertLevel = "none"
	AlertAdvisory AlertLevel = "advisory"
	AlertWarning  AlertLevel = "warning"
	AlertDanger   AlertLevel = "danger"
)

// Severe reports whether the alert level should pass a
// weather-alerts-only subscription filter.
func (a AlertLevel) Severe() bool {
	return a == AlertWarning || a == AlertDanger
}

// Confidence grades a bite report.
type Confidence string

const (
	ConfidenceLow    Confidence = "low"
	ConfidenceMedium Confidence = "medium"
	ConfidenceHigh   Confidence = "high"
)

// Level maps a confidence to its ordinal rank (low=1, medium=2, high=3).
// Unknown values rank 0 and therefore never satisfy a minimum-confidence
// filter.
func (c Confidence) Level() int {
	switch c {
	case ConfidenceLow:
		return 1
	case ConfidenceMedium:
		return 2
	case ConfidenceHigh:
		return 3
	}
	return 0
}

// WeatherData is the payload of a weather_changed event.
type WeatherData struct {
	Condition     string     `json:"condition"`
	WindSpeedKn   float64    `json:"windSpeedKn"`
	WaveHeightM   float64    `json:"waveHeightM"`
	TemperatureC  float64    `json:"temperatureC"`
	AlertLevel    AlertLevel `json:"alertLevel"`
	ForecastNotes string     `json:"forecastNotes,omitempty"`
}

// BiteReport is the payload of a bite_report event.
type BiteReport struct {
	Species    string     `json:"species"`
	Technique  string     `json:"technique"`
	Confidence Confidence `json:"confidence"`
	Location   string     `json:"location,omitempty"`
	ReportedBy string     `json:"reportedBy,omitempty"`
}

// RouteChange is the payload of a route_changed event.
type RouteChange struct {
	PreviousRoute string `json:"previousRoute"`
	NewRoute      string `json:"newRoute"`
	Reason        string `json:"reason"`
}

// UpdateEvent is one immutable trip-state change, serialized as-is to
// every matching client. Exactly one of the optional payload fields is
// populated, matching Type.
type UpdateEvent struct {
	TripID              string       `json:"tripId"`
	Type                EventType    `json:"type"`
	CurrentParticipants int          `json:"currentParticipants"`
	Status              Status       `json:"status"`
	Timestamp           time.Time    `json:"timestamp"`
	SpotsRemaining      int          `json:"spotsRemaining"`
	MaxParticipants     int          `json:"maxParticipants"`
	ParticipantName     string       `json:"participantName,omitempty"`
	WeatherData         *WeatherData `json:"weatherData,omitempty"`
	BiteReport          *BiteReport  `json:"biteReport,omitempty"`
	RouteChange         *RouteChange `json:"routeChange,omitempty"`
}
