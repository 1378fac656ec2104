package hub

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/tidecast/tidecast/internal/telemetry"
	"github.com/tidecast/tidecast/internal/trip"
)

// Conn is the transport-facing side of one client connection. Send must
// preserve call order for a single connection (FIFO per connection) and
// return an error once the connection is closed or its outbound queue is
// full; the Hub treats any Send error as fatal for that connection.
type Conn interface {
	ID() string
	Send(data []byte) error
	Close() error
}

type connEntry struct {
	conn        Conn
	connectedAt time.Time
}

// Hub owns the set of active connections and their subscriptions, and
// fans UpdateEvents out to every matching connection. All methods are
// safe for concurrent use.
type Hub struct {
	logger  *slog.Logger
	metrics *telemetry.Metrics

	mu       sync.RWMutex
	conns    map[string]connEntry
	registry *Registry

	bridge *Bridge // nil when cross-instance fan-out is not configured
}

// New creates a Hub with an empty registry.
func New(logger *slog.Logger, metrics *telemetry.Metrics) *Hub {
	return &Hub{
		logger:   logger,
		metrics:  metrics,
		conns:    make(map[string]connEntry),
		registry: NewRegistry(),
	}
}

// WithBridge attaches a cross-instance fan-out bridge. Events broadcast
// on this instance are republished to the bridge channel; events arriving
// from other instances are fanned out locally only.
func (h *Hub) WithBridge(b *Bridge) *Hub {
	h.bridge = b
	return h
}

// Register adds a connection with an empty subscription. Idempotent per
// connection identity.
func (h *Hub) Register(c Conn) {
	h.mu.Lock()
	if _, ok := h.conns[c.ID()]; !ok {
		h.conns[c.ID()] = connEntry{conn: c, connectedAt: time.Now().UTC()}
		h.registry.Register(c.ID())
	}
	n := len(h.conns)
	h.mu.Unlock()

	h.metrics.SetConnections(n)
	h.logger.Info("hub: connection registered", "conn_id", c.ID(), "connections", n)
}

// Unregister removes a connection and its subscription. Safe to call
// multiple times.
func (h *Hub) Unregister(connID string) {
	h.mu.Lock()
	entry, ok := h.conns[connID]
	if ok {
		delete(h.conns, connID)
		h.registry.Unregister(connID)
	}
	n := len(h.conns)
	h.mu.Unlock()

	if !ok {
		return
	}
	_ = entry.conn.Close()
	h.metrics.SetConnections(n)
	h.logger.Info("hub: connection unregistered", "conn_id", connID, "connections", n)
}

// Subscribe unions tripIDs into the connection's subscribed set and
// returns the updated set.
func (h *Hub) Subscribe(connID string, tripIDs []string) []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.registry.Subscribe(connID, tripIDs)
}

// Unsubscribe removes tripIDs from the connection's subscribed set.
func (h *Hub) Unsubscribe(connID string, tripIDs []string) []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.registry.Unsubscribe(connID, tripIDs)
}

// SubscribeEvents unions eventTypes into the connection's interest set
// and shallow-merges filters.
func (h *Hub) SubscribeEvents(connID string, eventTypes []trip.EventType, filters *Filters) []trip.EventType {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.registry.SubscribeEvents(connID, eventTypes, filters)
}

// UnsubscribeEvents removes eventTypes from the connection's interest set.
func (h *Hub) UnsubscribeEvents(connID string, eventTypes []trip.EventType) []trip.EventType {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.registry.UnsubscribeEvents(connID, eventTypes)
}

// Subscription returns a copy of the connection's current subscription.
func (h *Hub) Subscription(connID string) (Subscription, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.registry.Get(connID)
}

// Broadcast fans the event out to every matching local connection and,
// when a bridge is attached, republishes it for other instances. Returns
// the number of local connections actually sent to.
func (h *Hub) Broadcast(ev trip.UpdateEvent) int {
	n := h.broadcastLocal(ev)
	if h.bridge != nil {
		h.bridge.Publish(ev)
	}
	return n
}

// broadcastLocal delivers the event to matching connections on this
// instance only. A send failure on one connection is logged and the
// connection dropped; delivery to the others continues.
func (h *Hub) broadcastLocal(ev trip.UpdateEvent) int {
	payload, err := json.Marshal(ev)
	if err != nil {
		h.logger.Error("hub: marshal event", "trip_id", ev.TripID, "type", ev.Type, "error", err)
		return 0
	}

	h.mu.RLock()
	targets := make([]Conn, 0, len(h.conns))
	for connID, entry := range h.conns {
		sub, ok := h.registry.Get(connID)
		if ok && Match(sub, ev) {
			targets = append(targets, entry.conn)
		}
	}
	h.mu.RUnlock()

	sent := 0
	var failed []string
	for _, c := range targets {
		if err := c.Send(payload); err != nil {
			h.logger.Warn("hub: send failed, dropping connection",
				"conn_id", c.ID(), "trip_id", ev.TripID, "error", err)
			failed = append(failed, c.ID())
			continue
		}
		sent++
	}
	for _, id := range failed {
		h.Unregister(id)
	}

	h.metrics.RecordBroadcast(ev.Type, sent)
	return sent
}

// ConnStats describes one connection for the stats endpoint.
type ConnStats struct {
	ConnID      string           `json:"connId"`
	ConnectedAt time.Time        `json:"connectedAt"`
	TripIDs     []string         `json:"tripIds"`
	EventTypes  []trip.EventType `json:"eventTypes"`
}

// Stats is an operator-facing snapshot of the hub.
type Stats struct {
	TotalConnections        int         `json:"totalConnections"`
	TotalTripSubscriptions  int         `json:"totalTripSubscriptions"`
	TotalEventSubscriptions int         `json:"totalEventSubscriptions"`
	Connections             []ConnStats `json:"connections"`
}

// Stats returns a snapshot of all connections and their subscriptions.
func (h *Hub) Stats() Stats {
	h.mu.RLock()
	defer h.mu.RUnlock()

	st := Stats{Connections: make([]ConnStats, 0, len(h.conns))}
	for connID, entry := range h.conns {
		sub, _ := h.registry.Get(connID)
		st.TotalConnections++
		st.TotalTripSubscriptions += len(sub.TripIDs)
		st.TotalEventSubscriptions += len(sub.EventTypes)
		st.Connections = append(st.Connections, ConnStats{
			ConnID:      connID,
			ConnectedAt: entry.connectedAt,
			TripIDs:     sub.TripIDs,
			EventTypes:  sub.EventTypes,
		})
	}
	return st
}
