package phase

import "time"

// ChecklistItem is one preparation task (gear, safety briefing, bait).
type ChecklistItem struct {
	ID    string `json:"id"`
	Label string `json:"label"`
	Done  bool   `json:"done"`
}

// CatchRecord is one logged catch during the live phase.
type CatchRecord struct {
	Species  string    `json:"species"`
	LengthCM float64   `json:"lengthCm,omitempty"`
	By       string    `json:"by"`
	CaughtAt time.Time `json:"caughtAt"`
}

// Review is one participant review written during debrief.
type Review struct {
	Author  string `json:"author"`
	Rating  int    `json:"rating"`
	Comment string `json:"comment,omitempty"`
}

// TripStatus is the external booking status of the trip, fed in by the
// collaborator that owns persistence.
type TripStatus string

const (
	TripScheduled TripStatus = "scheduled"
	TripActive    TripStatus = "active"
	TripCompleted TripStatus = "completed"
	TripCancelled TripStatus = "cancelled"
)

// Context carries the ambient facts a transition is validated and
// executed against. It is constructed fresh per attempt from external
// collaborators and never persisted as-is.
type Context struct {
	TripID       string
	TripDate     time.Time
	CurrentPhase Phase
	TargetPhase  Phase
	UserID       string
	UserRole     Role
	TripStatus   TripStatus
	Checklist    []ChecklistItem
	Catches      []CatchRecord
	Reviews      []Review

	// Now is the evaluation instant; zero means time.Now. Injectable so
	// time-based rules are testable.
	Now time.Time
}

func (c Context) now() time.Time {
	if c.Now.IsZero() {
		return time.Now().UTC()
	}
	return c.Now
}

// checklistComplete reports whether every checklist item is done.
func (c Context) checklistComplete() bool {
	for _, item := range c.Checklist {
		if !item.Done {
			return false
		}
	}
	return true
}

// Data is the phase-scoped working payload that migration rules carry
// forward between phases.
type Data struct {
	Checklist []ChecklistItem `json:"checklist,omitempty"`
	Catches   []CatchRecord   `json:"catches,omitempty"`
	Reviews   []Review        `json:"reviews,omitempty"`
}

// clone returns an independent copy; migration rules mutate the copy and
// the manager commits it only when every required rule validates.
func (d Data) clone() Data {
	return Data{
		Checklist: append([]ChecklistItem(nil), d.Checklist...),
		Catches:   append([]CatchRecord(nil), d.Catches...),
		Reviews:   append([]Review(nil), d.Reviews...),
	}
}
