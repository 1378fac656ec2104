// Package phase implements the chat lifecycle state machine for a trip:
// preparation → live → debrief. It validates candidate transitions
// against declarative rules, migrates phase-scoped data forward under a
// staged commit, records append-only history, and evaluates role-based
// override requests.
package phase

import "fmt"

// Phase is one stage of a trip's chat lifecycle.
type Phase string

const (
	PhasePreparation Phase = "preparation"
	PhaseLive        Phase = "live"
	PhaseDebrief     Phase = "debrief"
)

// Valid reports whether p is a known phase.
func (p Phase) Valid() bool {
	switch p {
	case PhasePreparation, PhaseLive, PhaseDebrief:
		return true
	}
	return false
}

// Next returns the sole permitted successor phase. Debrief is terminal.
func (p Phase) Next() (Phase, bool) {
	switch p {
	case PhasePreparation:
		return PhaseLive, true
	case PhaseLive:
		return PhaseDebrief, true
	}
	return "", false
}

// Trigger records what initiated a transition attempt.
type Trigger string

const (
	TriggerManual          Trigger = "manual"
	TriggerAutomatic       Trigger = "automatic"
	TriggerTimeBased       Trigger = "time_based"
	TriggerStatusBased     Trigger = "status_based"
	TriggerCompletionBased Trigger = "completion_based"
	TriggerCaptainOverride Trigger = "captain_override"
)

// Manual reports whether the trigger represents a human-initiated
// request, which is subject to the phase's allowManualEntry/Exit
// settings.
func (t Trigger) Manual() bool {
	return t == TriggerManual || t == TriggerCaptainOverride
}

// TransitionStatus tracks one transition attempt. It advances
// monotonically pending → in_progress → {completed | failed | cancelled}.
type TransitionStatus string

const (
	StatusPending    TransitionStatus = "pending"
	StatusInProgress TransitionStatus = "in_progress"
	StatusCompleted  TransitionStatus = "completed"
	StatusFailed     TransitionStatus = "failed"
	StatusCancelled  TransitionStatus = "cancelled"
)

// Role is the acting user's role within a trip.
type Role string

const (
	RoleAdmin       Role = "admin"
	RoleCaptain     Role = "captain"
	RoleCoCaptain   Role = "co_captain"
	RoleParticipant Role = "participant"
	RoleObserver    Role = "observer"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleCaptain, RoleCoCaptain, RoleParticipant, RoleObserver:
		return true
	}
	return false
}

// ErrorCode distinguishes the failure classes of the public API. Each
// class from the error taxonomy gets its own code so callers can branch
// without string matching.
type ErrorCode string

const (
	CodeInvalidTransition    ErrorCode = "invalid_transition"
	CodeValidationFailed     ErrorCode = "validation_failed"
	CodeMigrationFailed      ErrorCode = "migration_failed"
	CodePermissionDenied     ErrorCode = "permission_denied"
	CodeTransitionInProgress ErrorCode = "transition_in_progress"
	CodeTransitionTimeout    ErrorCode = "transition_timeout"
	CodeConfirmationInvalid  ErrorCode = "confirmation_invalid"
)

// TransitionError is a structured, expected failure. It is returned in
// results, never panicked or thrown across the public boundary.
type TransitionError struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Rule    string    `json:"rule,omitempty"`
}

func (e TransitionError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}
