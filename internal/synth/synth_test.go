package synth

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tidecast/tidecast/internal/trip"
)

func testState() trip.State {
	return trip.State{TripID: "trip-1", CurrentParticipants: 5, MaxParticipants: 8}
}

func TestWeatherChangedShape(t *testing.T) {
	s := New(rand.New(rand.NewSource(1)))
	for range 50 {
		ev := s.WeatherChanged(testState())
		assert.Equal(t, trip.EventWeatherChanged, ev.Type)
		require.NotNil(t, ev.WeatherData)
		assert.Contains(t, alertLevels, ev.WeatherData.AlertLevel)
		assert.NotEmpty(t, ev.WeatherData.Condition)
		assert.Greater(t, ev.WeatherData.WindSpeedKn, 0.0)
		assert.Nil(t, ev.BiteReport)
		assert.Nil(t, ev.RouteChange)
	}
}

func TestBiteReportShape(t *testing.T) {
	s := New(rand.New(rand.NewSource(2)))
	for range 50 {
		ev := s.BiteReport(testState())
		assert.Equal(t, trip.EventBiteReport, ev.Type)
		require.NotNil(t, ev.BiteReport)
		// Every field a filter inspects must be an enumerated value.
		assert.Contains(t, confidences, ev.BiteReport.Confidence)
		assert.NotEmpty(t, ev.BiteReport.Species)
		assert.NotEmpty(t, ev.BiteReport.Technique)
	}
}

func TestRouteChangedDistinctRoutes(t *testing.T) {
	s := New(rand.New(rand.NewSource(3)))
	for range 50 {
		ev := s.RouteChanged(testState())
		require.NotNil(t, ev.RouteChange)
		assert.NotEqual(t, ev.RouteChange.PreviousRoute, ev.RouteChange.NewRoute)
	}
}

func TestBaseFieldsFromState(t *testing.T) {
	s := New(rand.New(rand.NewSource(4)))
	ev := s.Random(testState())
	assert.Equal(t, "trip-1", ev.TripID)
	assert.Equal(t, 5, ev.CurrentParticipants)
	assert.Equal(t, 3, ev.SpotsRemaining)
	assert.Equal(t, trip.StatusForming, ev.Status)
}

func TestDeterministicWithSeed(t *testing.T) {
	a := New(rand.New(rand.NewSource(42)))
	b := New(rand.New(rand.NewSource(42)))
	for range 10 {
		evA := a.Random(testState())
		evB := b.Random(testState())
		evA.Timestamp = evB.Timestamp
		assert.Equal(t, evB, evA)
	}
}
