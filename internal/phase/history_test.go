package phase

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHistoryAdvanceKeepsOneOpenEntry(t *testing.T) {
	s := NewHistoryStore()
	t0 := time.Date(2026, 7, 4, 5, 0, 0, 0, time.UTC)

	s.Open("trip-1", PhasePreparation, TriggerAutomatic, t0)
	s.Advance("trip-1", PhaseLive, TriggerManual, t0.Add(time.Hour), nil, "")
	s.Advance("trip-1", PhaseDebrief, TriggerCompletionBased, t0.Add(5*time.Hour), nil, "")

	h := s.History("trip-1")
	require.Len(t, h.Phases, 3)

	open := 0
	for _, e := range h.Phases {
		if e.ExitedAt == nil {
			open++
		}
	}
	assert.Equal(t, 1, open)
	assert.Equal(t, 2, h.TransitionCount)
	assert.Equal(t, 5*time.Hour, h.TotalDuration)
	assert.Equal(t, t0.Add(5*time.Hour), h.LastUpdated)
}

func TestHistoryDurations(t *testing.T) {
	s := NewHistoryStore()
	t0 := time.Date(2026, 7, 4, 5, 0, 0, 0, time.UTC)
	s.Open("trip-1", PhasePreparation, TriggerAutomatic, t0)
	s.Advance("trip-1", PhaseLive, TriggerManual, t0.Add(30*time.Minute), nil, "")

	h := s.History("trip-1")
	require.NotNil(t, h.Phases[0].Duration)
	assert.Equal(t, 30*time.Minute, *h.Phases[0].Duration)
	assert.Nil(t, h.Phases[1].Duration)
}

func TestHistoryCompletionSnapshot(t *testing.T) {
	s := NewHistoryStore()
	t0 := time.Now().UTC()
	s.Open("trip-1", PhaseLive, TriggerManual, t0)

	snap := Data{Catches: []CatchRecord{{Species: "albacore", By: "u1", CaughtAt: t0}}}
	s.Advance("trip-1", PhaseDebrief, TriggerManual, t0.Add(time.Hour), &snap, "good day")

	h := s.History("trip-1")
	require.NotNil(t, h.Phases[0].Completion)
	assert.Len(t, h.Phases[0].Completion.Catches, 1)
	assert.Equal(t, "good day", h.Phases[0].Note)
}

func TestHistoryIsolatedPerTrip(t *testing.T) {
	s := NewHistoryStore()
	s.Open("trip-1", PhasePreparation, TriggerAutomatic, time.Now().UTC())

	h := s.History("trip-2")
	assert.Empty(t, h.Phases)
	assert.Equal(t, 0, h.TransitionCount)

	_, ok := s.Active("trip-2")
	assert.False(t, ok)
}
