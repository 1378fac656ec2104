package hub

import (
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tidecast/tidecast/internal/trip"
)

// testLogger returns a logger for tests that stays quiet below error.
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// fakeConn records sends in order; fail makes every Send error.
type fakeConn struct {
	id   string
	fail bool

	mu     sync.Mutex
	sent   [][]byte
	closed bool
}

func (c *fakeConn) ID() string { return c.id }

func (c *fakeConn) Send(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fail {
		return errors.New("connection gone")
	}
	c.sent = append(c.sent, data)
	return nil
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *fakeConn) received() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([][]byte(nil), c.sent...)
}

func joinEvent(tripID string, current, max int, name string) trip.UpdateEvent {
	return trip.UpdateEvent{
		TripID:              tripID,
		Type:                trip.EventParticipantJoined,
		CurrentParticipants: current,
		Status:              trip.DeriveStatus(current, max),
		Timestamp:           time.Now().UTC(),
		SpotsRemaining:      max - current,
		MaxParticipants:     max,
		ParticipantName:     name,
	}
}

func TestBroadcastDeliversToSubscriber(t *testing.T) {
	h := New(testLogger(), nil)
	c := &fakeConn{id: "c1"}
	h.Register(c)
	h.Subscribe("c1", []string{"trip-1"})

	ev := joinEvent("trip-1", 3, 8, "Ana")
	n := h.Broadcast(ev)
	require.Equal(t, 1, n)

	msgs := c.received()
	require.Len(t, msgs, 1)

	var got trip.UpdateEvent
	require.NoError(t, json.Unmarshal(msgs[0], &got))
	assert.Equal(t, "trip-1", got.TripID)
	assert.Equal(t, trip.EventParticipantJoined, got.Type)
	assert.Equal(t, 3, got.CurrentParticipants)
	assert.Equal(t, trip.StatusForming, got.Status)
	assert.Equal(t, 5, got.SpotsRemaining)
	assert.Equal(t, 8, got.MaxParticipants)
	assert.Equal(t, "Ana", got.ParticipantName)
}

func TestBroadcastSkipsOtherTrips(t *testing.T) {
	h := New(testLogger(), nil)
	c := &fakeConn{id: "c1"}
	h.Register(c)
	h.Subscribe("c1", []string{"trip-1"})

	n := h.Broadcast(joinEvent("trip-2", 1, 8, "Bo"))
	assert.Equal(t, 0, n)
	assert.Empty(t, c.received())
}

func TestBroadcastEventTypeInterest(t *testing.T) {
	// A subscribed to status_changed only, B to weather_changed only; a
	// weather_changed broadcast reaches B alone.
	h := New(testLogger(), nil)
	a := &fakeConn{id: "a"}
	b := &fakeConn{id: "b"}
	h.Register(a)
	h.Register(b)
	h.Subscribe("a", []string{"trip-9"})
	h.Subscribe("b", []string{"trip-9"})

	h.UnsubscribeEvents("a", []trip.EventType{
		trip.EventParticipantJoined, trip.EventParticipantLeft, trip.EventConfirmed,
	})
	h.SubscribeEvents("b", []trip.EventType{trip.EventWeatherChanged}, nil)

	ev := trip.UpdateEvent{
		TripID:    "trip-9",
		Type:      trip.EventWeatherChanged,
		Timestamp: time.Now().UTC(),
		WeatherData: &trip.WeatherData{
			Condition: "squall", AlertLevel: trip.AlertAdvisory,
		},
	}
	n := h.Broadcast(ev)
	assert.Equal(t, 1, n)
	assert.Empty(t, a.received())
	assert.Len(t, b.received(), 1)
}

func TestBiteConfidenceFilter(t *testing.T) {
	h := New(testLogger(), nil)
	c := &fakeConn{id: "c1"}
	h.Register(c)
	h.Subscribe("c1", []string{"trip-1"})

	minConf := trip.ConfidenceMedium
	h.SubscribeEvents("c1", []trip.EventType{trip.EventBiteReport},
		&Filters{BiteReportsMinConfidence: &minConf})

	bite := func(conf trip.Confidence) trip.UpdateEvent {
		return trip.UpdateEvent{
			TripID:    "trip-1",
			Type:      trip.EventBiteReport,
			Timestamp: time.Now().UTC(),
			BiteReport: &trip.BiteReport{
				Species: "striped bass", Technique: "jigging", Confidence: conf,
			},
		}
	}

	assert.Equal(t, 0, h.Broadcast(bite(trip.ConfidenceLow)))
	assert.Equal(t, 1, h.Broadcast(bite(trip.ConfidenceMedium)))
	assert.Equal(t, 1, h.Broadcast(bite(trip.ConfidenceHigh)))
	assert.Len(t, c.received(), 2)
}

func TestWeatherAlertsOnlyFilter(t *testing.T) {
	h := New(testLogger(), nil)
	c := &fakeConn{id: "c1"}
	h.Register(c)
	h.Subscribe("c1", []string{"trip-1"})

	alertsOnly := true
	h.SubscribeEvents("c1", []trip.EventType{trip.EventWeatherChanged},
		&Filters{WeatherAlertsOnly: &alertsOnly})

	weather := func(level trip.AlertLevel) trip.UpdateEvent {
		return trip.UpdateEvent{
			TripID:      "trip-1",
			Type:        trip.EventWeatherChanged,
			Timestamp:   time.Now().UTC(),
			WeatherData: &trip.WeatherData{Condition: "chop", AlertLevel: level},
		}
	}

	assert.Equal(t, 0, h.Broadcast(weather(trip.AlertNone)))
	assert.Equal(t, 0, h.Broadcast(weather(trip.AlertAdvisory)))
	assert.Equal(t, 1, h.Broadcast(weather(trip.AlertWarning)))
	assert.Equal(t, 1, h.Broadcast(weather(trip.AlertDanger)))
}

func TestSendFailureIsolation(t *testing.T) {
	h := New(testLogger(), nil)
	bad := &fakeConn{id: "bad", fail: true}
	good := &fakeConn{id: "good"}
	h.Register(bad)
	h.Register(good)
	h.Subscribe("bad", []string{"trip-1"})
	h.Subscribe("good", []string{"trip-1"})

	n := h.Broadcast(joinEvent("trip-1", 2, 8, "Cy"))
	assert.Equal(t, 1, n)
	assert.Len(t, good.received(), 1)

	// The failing connection is dropped and closed.
	_, ok := h.Subscription("bad")
	assert.False(t, ok)
	bad.mu.Lock()
	assert.True(t, bad.closed)
	bad.mu.Unlock()
}

func TestBroadcastFIFOPerConnection(t *testing.T) {
	h := New(testLogger(), nil)
	c := &fakeConn{id: "c1"}
	h.Register(c)
	h.Subscribe("c1", []string{"trip-1"})

	for i := 1; i <= 5; i++ {
		h.Broadcast(joinEvent("trip-1", i, 8, ""))
	}

	msgs := c.received()
	require.Len(t, msgs, 5)
	for i, raw := range msgs {
		var got trip.UpdateEvent
		require.NoError(t, json.Unmarshal(raw, &got))
		assert.Equal(t, i+1, got.CurrentParticipants)
	}
}

func TestStats(t *testing.T) {
	h := New(testLogger(), nil)
	h.Register(&fakeConn{id: "c1"})
	h.Register(&fakeConn{id: "c2"})
	h.Subscribe("c1", []string{"trip-1", "trip-2"})
	h.Subscribe("c2", []string{"trip-1"})

	st := h.Stats()
	assert.Equal(t, 2, st.TotalConnections)
	assert.Equal(t, 3, st.TotalTripSubscriptions)
	assert.Len(t, st.Connections, 2)
}

func TestUnregisterTwice(t *testing.T) {
	h := New(testLogger(), nil)
	c := &fakeConn{id: "c1"}
	h.Register(c)
	h.Unregister("c1")
	h.Unregister("c1")

	st := h.Stats()
	assert.Equal(t, 0, st.TotalConnections)
}
