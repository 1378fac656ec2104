package server

import (
	"time"

	"github.com/tidecast/tidecast/internal/hub"
	"github.com/tidecast/tidecast/internal/trip"
)

// clientMessage is the JSON envelope a client sends over the WebSocket.
// Raw "ping"/"heartbeat" strings bypass this and are answered before any
// JSON parsing.
type clientMessage struct {
	Type       string           `json:"type"`
	TripIDs    []string         `json:"tripIds,omitempty"`
	EventTypes []trip.EventType `json:"eventTypes,omitempty"`
	Filters    *hub.Filters     `json:"filters,omitempty"`
}

// Client message types.
const (
	msgSubscribe         = "subscribe"
	msgUnsubscribe       = "unsubscribe"
	msgSubscribeEvents   = "subscribe_events"
	msgUnsubscribeEvents = "unsubscribe_events"
	msgHeartbeat         = "heartbeat"
)

// ack is the confirmation envelope sent back for subscription changes
// and heartbeats.
type ack struct {
	Type       string           `json:"type"`
	TripIDs    []string         `json:"tripIds,omitempty"`
	EventTypes []trip.EventType `json:"eventTypes,omitempty"`
	Filters    *hub.Filters     `json:"filters,omitempty"`
	Timestamp  time.Time        `json:"timestamp"`
}

// wsError is the error envelope for protocol failures. It goes only to
// the offending connection.
type wsError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}
