package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/tidecast/tidecast/internal/trip"
)

// Metrics bundles the domain instruments. A nil *Metrics is valid and
// records nothing, so callers never need to guard.
type Metrics struct {
	connections metric.Int64Gauge
	broadcasts  metric.Int64Counter
	delivered   metric.Int64Counter
	transitions metric.Int64Counter
}

// NewMetrics registers the instruments on the global meter provider.
// Safe to call when OTEL is disabled; the no-op provider absorbs it.
func NewMetrics() (*Metrics, error) {
	meter := Meter("tidecast")

	connections, err := meter.Int64Gauge("tidecast.connections.active",
		metric.WithDescription("Currently connected WebSocket clients"))
	if err != nil {
		return nil, fmt.Errorf("telemetry: connections gauge: %w", err)
	}
	broadcasts, err := meter.Int64Counter("tidecast.broadcasts.total",
		metric.WithDescription("Broadcast calls by event type"))
	if err != nil {
		return nil, fmt.Errorf("telemetry: broadcasts counter: %w", err)
	}
	delivered, err := meter.Int64Counter("tidecast.broadcasts.delivered",
		metric.WithDescription("Per-connection deliveries by event type"))
	if err != nil {
		return nil, fmt.Errorf("telemetry: delivered counter: %w", err)
	}
	transitions, err := meter.Int64Counter("tidecast.phase.transitions",
		metric.WithDescription("Phase transition attempts by outcome"))
	if err != nil {
		return nil, fmt.Errorf("telemetry: transitions counter: %w", err)
	}

	return &Metrics{
		connections: connections,
		broadcasts:  broadcasts,
		delivered:   delivered,
		transitions: transitions,
	}, nil
}

// SetConnections records the current connection count.
func (m *Metrics) SetConnections(n int) {
	if m == nil {
		return
	}
	m.connections.Record(context.Background(), int64(n))
}

// RecordBroadcast records one broadcast and how many connections it
// reached.
func (m *Metrics) RecordBroadcast(eventType trip.EventType, delivered int) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("event_type", string(eventType)))
	m.broadcasts.Add(context.Background(), 1, attrs)
	m.delivered.Add(context.Background(), int64(delivered), attrs)
}

// RecordTransition records one phase transition attempt by outcome
// ("completed", "failed", "cancelled", "rejected").
func (m *Metrics) RecordTransition(outcome string) {
	if m == nil {
		return
	}
	m.transitions.Add(context.Background(), 1,
		metric.WithAttributes(attribute.String("outcome", outcome)))
}
