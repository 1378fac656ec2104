// Package synth builds domain-plausible UpdateEvents for exercising the
// broadcast path without a real booking mutation. The generator is
// seeded by the caller so simulation runs are reproducible.
package synth

import (
	"math/rand"
	"time"

	"github.com/tidecast/tidecast/internal/trip"
)

var (
	conditions = []string{"clear", "overcast", "light chop", "squall", "fog", "building swell"}
	species    = []string{"striped bass", "bluefish", "fluke", "mahi-mahi", "albacore", "tautog", "black sea bass"}
	techniques = []string{"jigging", "trolling", "bottom fishing", "live lining", "casting", "chunking"}
	locations  = []string{"north rip", "the ledge", "mussel bed", "wreck site", "harbor mouth"}
	routes     = []string{"inshore loop", "canyon run", "reef circuit", "bay drift", "offshore banks"}
	reasons    = []string{"weather window closing", "bite moved", "sea state", "captain's call"}

	alertLevels = []trip.AlertLevel{trip.AlertNone, trip.AlertAdvisory, trip.AlertWarning, trip.AlertDanger}
	confidences = []trip.Confidence{trip.ConfidenceLow, trip.ConfidenceMedium, trip.ConfidenceHigh}
)

// Synthesizer produces randomized UpdateEvents from an injected source,
// so deterministic seeds give reproducible streams.
type Synthesizer struct {
	rnd *rand.Rand
}

// New creates a Synthesizer backed by rnd.
func New(rnd *rand.Rand) *Synthesizer {
	return &Synthesizer{rnd: rnd}
}

func (s *Synthesizer) base(st trip.State, typ trip.EventType) trip.UpdateEvent {
	return trip.UpdateEvent{
		TripID:              st.TripID,
		Type:                typ,
		CurrentParticipants: st.CurrentParticipants,
		Status:              trip.DeriveStatus(st.CurrentParticipants, st.MaxParticipants),
		Timestamp:           time.Now().UTC(),
		SpotsRemaining:      st.MaxParticipants - st.CurrentParticipants,
		MaxParticipants:     st.MaxParticipants,
	}
}

func (s *Synthesizer) pick(list []string) string {
	return list[s.rnd.Intn(len(list))]
}

// WeatherChanged builds a weather_changed event. The alert level is
// always one of the enumerated values so alert filters can be evaluated.
func (s *Synthesizer) WeatherChanged(st trip.State) trip.UpdateEvent {
	ev := s.base(st, trip.EventWeatherChanged)
	ev.WeatherData = &trip.WeatherData{
		Condition:    s.pick(conditions),
		WindSpeedKn:  2 + s.rnd.Float64()*28, // 2-30 kn
		WaveHeightM:  0.2 + s.rnd.Float64()*2.8,
		TemperatureC: 8 + s.rnd.Float64()*18,
		AlertLevel:   alertLevels[s.rnd.Intn(len(alertLevels))],
	}
	return ev
}

// BiteReport builds a bite_report event with a populated confidence.
func (s *Synthesizer) BiteReport(st trip.State) trip.UpdateEvent {
	ev := s.base(st, trip.EventBiteReport)
	ev.BiteReport = &trip.BiteReport{
		Species:    s.pick(species),
		Technique:  s.pick(techniques),
		Confidence: confidences[s.rnd.Intn(len(confidences))],
		Location:   s.pick(locations),
	}
	return ev
}

// RouteChanged builds a route_changed event; previous and new route are
// always distinct.
func (s *Synthesizer) RouteChanged(st trip.State) trip.UpdateEvent {
	ev := s.base(st, trip.EventRouteChanged)
	prev := s.rnd.Intn(len(routes))
	next := (prev + 1 + s.rnd.Intn(len(routes)-1)) % len(routes)
	ev.RouteChange = &trip.RouteChange{
		PreviousRoute: routes[prev],
		NewRoute:      routes[next],
		Reason:        s.pick(reasons),
	}
	return ev
}

// Random builds one of the three synthesized event kinds.
func (s *Synthesizer) Random(st trip.State) trip.UpdateEvent {
	switch s.rnd.Intn(3) {
	case 0:
		return s.WeatherChanged(st)
	case 1:
		return s.BiteReport(st)
	default:
		return s.RouteChanged(st)
	}
}
