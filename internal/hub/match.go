package hub

import (
	"slices"

	"github.com/tidecast/tidecast/internal/trip"
)

// Match reports whether a subscription wants the given event: the trip
// must be in the subscribed set, the event type in the interest set, and
// any configured type-specific filter must accept the payload.
func Match(sub Subscription, ev trip.UpdateEvent) bool {
	if !slices.Contains(sub.TripIDs, ev.TripID) {
		return false
	}
	if !slices.Contains(sub.EventTypes, ev.Type) {
		return false
	}
	return filterAccepts(sub.Filters, ev)
}

func filterAccepts(f Filters, ev trip.UpdateEvent) bool {
	switch ev.Type {
	case trip.EventWeatherChanged:
		if f.WeatherAlertsOnly != nil && *f.WeatherAlertsOnly {
			return ev.WeatherData != nil && ev.WeatherData.AlertLevel.Severe()
		}
	case trip.EventBiteReport:
		if f.BiteReportsMinConfidence != nil {
			return ev.BiteReport != nil &&
				ev.BiteReport.Confidence.Level() >= f.BiteReportsMinConfidence.Level()
		}
	case trip.EventRouteChanged:
		// routeChangesOnly is tautological for a route_changed event;
		// kept for symmetry with the other filters.
		if f.RouteChangesOnly != nil && *f.RouteChangesOnly {
			return true
		}
	}
	return true
}
