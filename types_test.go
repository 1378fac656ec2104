package tidecast

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/tidecast/tidecast/internal/hub"
	"github.com/tidecast/tidecast/internal/trip"
)

func TestToPublicStatsCarriesConnections(t *testing.T) {
	at := time.Date(2026, 8, 14, 6, 30, 0, 0, time.UTC)
	in := hub.Stats{
		TotalConnections:        2,
		TotalTripSubscriptions:  3,
		TotalEventSubscriptions: 1,
		Connections: []hub.ConnStats{
			{
				ConnID:      "c1",
				ConnectedAt: at,
				TripIDs:     []string{"trip-halfday-reef", "trip-deep-drop"},
				EventTypes:  []trip.EventType{trip.EventWeatherChanged},
			},
			{ConnID: "c2", ConnectedAt: at, TripIDs: []string{"trip-night-squid"}},
		},
	}

	out := toPublicStats(in)

	assert.Equal(t, 2, out.TotalConnections)
	assert.Equal(t, 3, out.TotalTripSubscriptions)
	assert.Equal(t, 1, out.TotalEventSubscriptions)
	if assert.Len(t, out.Connections, 2) {
		assert.Equal(t, "c1", out.Connections[0].ConnID)
		assert.Equal(t, at, out.Connections[0].ConnectedAt)
		assert.Equal(t, []string{"trip-halfday-reef", "trip-deep-drop"}, out.Connections[0].TripIDs)
		assert.Equal(t, []string{"weather_changed"}, out.Connections[0].EventTypes)
		assert.Empty(t, out.Connections[1].EventTypes)
	}
}

func TestToPublicStatsEmptyHub(t *testing.T) {
	out := toPublicStats(hub.Stats{})
	assert.Zero(t, out.TotalConnections)
	assert.Empty(t, out.Connections)
}
