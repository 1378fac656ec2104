package phase

import (
	"fmt"
	"time"
)

// Rule is a declarative predicate attached to a (from, to) phase pair.
// Blocking rules produce errors that stop the transition; non-blocking
// rules produce warnings the UI can surface. Rules are process-wide
// configuration, not per-trip state.
type Rule struct {
	Name     string
	From, To Phase
	Blocking bool
	// Check returns ok=false with a human-readable detail when the rule
	// does not hold for the given context. It must be side-effect-free.
	Check func(Context) (ok bool, detail string)
}

// Settings are the per-phase knobs consulted alongside rules.
type Settings struct {
	AllowManualEntry bool
	AllowManualExit  bool
	// MinDuration is how long a trip must have spent in this phase
	// before it may be exited. Zero disables the check.
	MinDuration time.Duration
}

// Validation is the outcome of a side-effect-free transition check.
// Errors block; warnings do not.
type Validation struct {
	IsValid  bool              `json:"isValid"`
	Errors   []TransitionError `json:"errors"`
	Warnings []string          `json:"warnings"`
}

// Capabilities phrases the same rule set as booleans plus reasons, for
// enabling and disabling UI controls.
type Capabilities struct {
	CanEnter bool     `json:"canEnter"`
	CanExit  bool     `json:"canExit"`
	Reasons  []string `json:"reasons"`
}

// DefaultSettings mirror the production configuration: every phase is
// manually enterable and exitable except debrief, which is terminal, and
// a live trip must run at least 15 minutes before debrief.
func DefaultSettings() map[Phase]Settings {
	return map[Phase]Settings{
		PhasePreparation: {AllowManualEntry: true, AllowManualExit: true},
		PhaseLive:        {AllowManualEntry: true, AllowManualExit: true, MinDuration: 15 * time.Minute},
		PhaseDebrief:     {AllowManualEntry: true, AllowManualExit: false},
	}
}

// DefaultRules returns the stock rule set. Only the cancelled-trip rule
// blocks; the rest advise.
func DefaultRules() []Rule {
	return []Rule{
		{
			Name: "trip_not_cancelled", From: PhasePreparation, To: PhaseLive, Blocking: true,
			Check: func(c Context) (bool, string) {
				if c.TripStatus == TripCancelled {
					return false, "trip is cancelled"
				}
				return true, ""
			},
		},
		{
			Name: "trip_date_reached", From: PhasePreparation, To: PhaseLive,
			Check: func(c Context) (bool, string) {
				if !c.TripDate.IsZero() && c.now().Before(c.TripDate.Add(-2*time.Hour)) {
					return false, fmt.Sprintf("trip starts %s, more than 2h away", c.TripDate.Format(time.RFC3339))
				}
				return true, ""
			},
		},
		{
			Name: "checklist_complete", From: PhasePreparation, To: PhaseLive,
			Check: func(c Context) (bool, string) {
				if !c.checklistComplete() {
					return false, "preparation checklist has open items"
				}
				return true, ""
			},
		},
		{
			Name: "trip_underway", From: PhaseLive, To: PhaseDebrief,
			Check: func(c Context) (bool, string) {
				if c.TripStatus == TripScheduled {
					return false, "trip has not started according to booking status"
				}
				return true, ""
			},
		},
		{
			Name: "catches_logged", From: PhaseLive, To: PhaseDebrief,
			Check: func(c Context) (bool, string) {
				if len(c.Catches) == 0 {
					return false, "no catch records logged"
				}
				return true, ""
			},
		},
	}
}

// validate runs the structural check, the phase settings, and every rule
// registered for the (from, to) pair. elapsed is how long the trip has
// been in the current phase. Pure: callable any number of times.
func validate(from, to Phase, trigger Trigger, elapsed time.Duration, octx Context, rules []Rule, settings map[Phase]Settings) Validation {
	v := Validation{IsValid: true}

	if !to.Valid() {
		v.fail(TransitionError{Code: CodeInvalidTransition, Message: fmt.Sprintf("unknown phase %q", to)})
		return v
	}
	next, ok := from.Next()
	if !ok || next != to {
		v.fail(TransitionError{
			Code:    CodeInvalidTransition,
			Message: fmt.Sprintf("unsupported transition %s → %s; phases advance strictly preparation → live → debrief", from, to),
		})
		return v
	}

	if trigger.Manual() {
		if s, ok := settings[from]; ok && !s.AllowManualExit {
			v.fail(TransitionError{Code: CodeValidationFailed, Message: fmt.Sprintf("phase %s does not allow manual exit", from)})
		}
		if s, ok := settings[to]; ok && !s.AllowManualEntry {
			v.fail(TransitionError{Code: CodeValidationFailed, Message: fmt.Sprintf("phase %s does not allow manual entry", to)})
		}
	}
	if s, ok := settings[from]; ok && s.MinDuration > 0 && elapsed < s.MinDuration {
		v.fail(TransitionError{
			Code:    CodeValidationFailed,
			Message: fmt.Sprintf("phase %s requires %s minimum, only %s elapsed", from, s.MinDuration, elapsed.Round(time.Second)),
		})
	}

	for _, r := range rules {
		if r.From != from || r.To != to {
			continue
		}
		ok, detail := r.Check(octx)
		if ok {
			continue
		}
		if r.Blocking {
			v.fail(TransitionError{Code: CodeValidationFailed, Message: detail, Rule: r.Name})
		} else {
			v.Warnings = append(v.Warnings, fmt.Sprintf("%s: %s", r.Name, detail))
		}
	}
	return v
}

func (v *Validation) fail(err TransitionError) {
	v.IsValid = false
	v.Errors = append(v.Errors, err)
}
