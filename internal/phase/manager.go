package phase

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tidecast/tidecast/internal/telemetry"
)

// Transition is one attempted or completed move between phases.
type Transition struct {
	ID          uuid.UUID         `json:"id"`
	TripID      string            `json:"tripId"`
	From        Phase             `json:"from"`
	To          Phase             `json:"to"`
	Trigger     Trigger           `json:"trigger"`
	Status      TransitionStatus  `json:"status"`
	RequestedAt time.Time         `json:"requestedAt"`
	CompletedAt *time.Time        `json:"completedAt,omitempty"`
	Migration   *Data             `json:"migration,omitempty"`
	Errors      []TransitionError `json:"errors,omitempty"`
}

// Result is the synchronous outcome of a transition request. Failures
// are reported here, never panicked.
type Result struct {
	Success    bool             `json:"success"`
	Transition Transition       `json:"transition"`
	Error      *TransitionError `json:"error,omitempty"`
	Warnings   []string         `json:"warnings,omitempty"`
}

// Event is a lifecycle notification emitted after a transition attempt
// settles, for the UI layer and the broadcast path.
type Event struct {
	TripID  string           `json:"tripId"`
	From    Phase            `json:"from"`
	To      Phase            `json:"to"`
	Trigger Trigger          `json:"trigger"`
	Status  TransitionStatus `json:"status"`
	At      time.Time        `json:"at"`
}

// Listener consumes lifecycle events. Listeners are invoked synchronously
// and must not call back into the manager.
type Listener func(Event)

// Manager runs the phase state machine for one trip. At most one
// transition is in flight at a time; a second request is rejected
// immediately rather than queued.
type Manager struct {
	tripID     string
	logger     *slog.Logger
	metrics    *telemetry.Metrics
	rules      []Rule
	migrations []MigrationRule
	settings   map[Phase]Settings
	history    *HistoryStore
	timeout    time.Duration
	now        func() time.Time
	listeners  []Listener

	mu       sync.Mutex
	current  Phase
	inFlight *Transition
	data     map[Phase]Data
}

// Current returns the trip's current phase.
func (m *Manager) Current() Phase {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// PhaseData returns a copy of the working payload for a phase.
func (m *Manager) PhaseData(p Phase) Data {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data[p].clone()
}

// SetPhaseData replaces the working payload for a phase. Used by the
// collaborators that own checklist/catch/review editing.
func (m *Manager) SetPhaseData(p Phase, d Data) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[p] = d.clone()
}

// History returns the trip's phase log.
func (m *Manager) History() History {
	return m.history.History(m.tripID)
}

// RequestTransition attempts to move the trip to toPhase. Validation
// errors, migration failures, permission problems and concurrency
// conflicts all come back inside the Result.
func (m *Manager) RequestTransition(octx Context, to Phase, trigger Trigger) Result {
	return m.request(octx, to, trigger, false, false)
}

// RequestOverride executes an approved override grant. Validation is
// bypassed only when the grant carries SkipValidation; otherwise errors
// still block and only warnings are overridden.
func (m *Manager) RequestOverride(octx Context, grant Grant) Result {
	return m.request(octx, grant.Request.ToPhase, TriggerCaptainOverride, grant.SkipValidation, grant.ForceExecution)
}

func (m *Manager) request(octx Context, to Phase, trigger Trigger, skipValidation, force bool) Result {
	now := m.now()

	m.mu.Lock()
	from := m.current
	if to == from {
		m.mu.Unlock()
		m.metrics.RecordTransition("rejected")
		return Result{Error: &TransitionError{
			Code:    CodeInvalidTransition,
			Message: fmt.Sprintf("trip already in phase %s; a transition is never a no-op", from),
		}}
	}
	if m.inFlight != nil {
		m.mu.Unlock()
		m.metrics.RecordTransition("rejected")
		return Result{Error: &TransitionError{
			Code:    CodeTransitionInProgress,
			Message: fmt.Sprintf("transition %s → %s already in progress", m.inFlight.From, m.inFlight.To),
		}}
	}

	tr := &Transition{
		ID:          uuid.New(),
		TripID:      m.tripID,
		From:        from,
		To:          to,
		Trigger:     trigger,
		Status:      StatusPending,
		RequestedAt: now,
	}
	m.inFlight = tr
	tr.Status = StatusInProgress

	var elapsed time.Duration
	if active, ok := m.history.Active(m.tripID); ok {
		elapsed = now.Sub(active.EnteredAt)
	}
	src := m.data[from].clone()
	dst := m.data[to].clone()
	m.mu.Unlock()

	var warnings []string
	if skipValidation {
		m.logger.Warn("phase: validation skipped by override",
			"trip_id", m.tripID, "to", to, "user_id", octx.UserID)
	} else {
		v := validate(from, to, trigger, elapsed, octx, m.rules, m.settings)
		warnings = v.Warnings
		if !v.IsValid {
			return m.settle(tr, v.Errors, warnings)
		}
	}

	staged, migWarnings, migErr := m.migrate(from, to, src, dst)
	warnings = append(warnings, migWarnings...)
	if migErr != nil {
		if force && migErr.Code == CodeMigrationFailed {
			// forceExecution pushes through a failed migration: the
			// transition completes without the staged payload.
			warnings = append(warnings, "migration forced past failure: "+migErr.Message)
			staged = dst
		} else {
			return m.settle(tr, []TransitionError{*migErr}, warnings)
		}
	}

	done := m.now()
	m.mu.Lock()
	if m.inFlight != tr || tr.Status == StatusCancelled {
		// Cancelled mid-flight: leave the phase untouched.
		m.mu.Unlock()
		m.metrics.RecordTransition("cancelled")
		return Result{Transition: *tr, Warnings: warnings, Error: &TransitionError{
			Code: CodeInvalidTransition, Message: "transition was cancelled",
		}}
	}
	completion := m.data[from].clone()
	m.history.Advance(m.tripID, to, trigger, done, &completion, "")
	m.current = to
	m.data[to] = staged
	tr.Status = StatusCompleted
	tr.CompletedAt = &done
	tr.Migration = &staged
	m.inFlight = nil
	m.mu.Unlock()

	m.metrics.RecordTransition("completed")
	m.logger.Info("phase: transition completed",
		"trip_id", m.tripID, "from", from, "to", to, "trigger", trigger,
		"warnings", len(warnings))
	m.emit(Event{TripID: m.tripID, From: from, To: to, Trigger: trigger, Status: StatusCompleted, At: done})
	return Result{Success: true, Transition: *tr, Warnings: warnings}
}

// migrate runs the migration rules bounded by the configured transition
// timeout. The race against the timer is the enforcement path for the
// transitionTimeout setting.
func (m *Manager) migrate(from, to Phase, src, dst Data) (Data, []string, *TransitionError) {
	ctx := context.Background()
	if m.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.timeout)
		defer cancel()
	}

	type outcome struct {
		staged Data
		warns  []string
		terr   *TransitionError
	}
	ch := make(chan outcome, 1)
	go func() {
		staged, warns, terr := runMigrations(ctx, from, to, src, dst, m.migrations)
		ch <- outcome{staged, warns, terr}
	}()

	select {
	case out := <-ch:
		return out.staged, out.warns, out.terr
	case <-ctx.Done():
		return dst, nil, &TransitionError{
			Code:    CodeTransitionTimeout,
			Message: fmt.Sprintf("transition exceeded %s", m.timeout),
		}
	}
}

// settle marks the in-flight transition failed and clears it. The
// current phase and history are left untouched.
func (m *Manager) settle(tr *Transition, errs []TransitionError, warnings []string) Result {
	done := m.now()
	m.mu.Lock()
	cancelled := m.inFlight != tr || tr.Status == StatusCancelled
	if !cancelled {
		tr.Status = StatusFailed
		tr.CompletedAt = &done
		tr.Errors = errs
		m.inFlight = nil
	}
	from, to := tr.From, tr.To
	m.mu.Unlock()

	if cancelled {
		m.metrics.RecordTransition("cancelled")
		return Result{Transition: *tr, Warnings: warnings, Error: &TransitionError{
			Code: CodeInvalidTransition, Message: "transition was cancelled",
		}}
	}

	m.metrics.RecordTransition("failed")
	m.logger.Info("phase: transition failed",
		"trip_id", m.tripID, "from", from, "to", to, "error", errs[0].Message)
	m.emit(Event{TripID: m.tripID, From: from, To: to, Trigger: tr.Trigger, Status: StatusFailed, At: done})

	err := errs[0]
	return Result{Transition: *tr, Error: &err, Warnings: warnings}
}

// CancelTransition marks the in-flight transition cancelled and leaves
// the current phase unchanged. It does not roll back migration work —
// migrations commit atomically, so a cancelled transition simply never
// commits.
func (m *Manager) CancelTransition(userID string, role Role) *TransitionError {
	if !PermissionsFor(role).CanCancelTransition {
		return &TransitionError{
			Code:    CodePermissionDenied,
			Message: "role " + string(role) + " may not cancel transitions",
		}
	}

	done := m.now()
	m.mu.Lock()
	tr := m.inFlight
	if tr == nil {
		m.mu.Unlock()
		return &TransitionError{Code: CodeInvalidTransition, Message: "no transition in progress"}
	}
	tr.Status = StatusCancelled
	tr.CompletedAt = &done
	m.inFlight = nil
	m.mu.Unlock()

	m.logger.Info("phase: transition cancelled",
		"trip_id", m.tripID, "from", tr.From, "to", tr.To, "user_id", userID)
	m.emit(Event{TripID: m.tripID, From: tr.From, To: tr.To, Trigger: tr.Trigger, Status: StatusCancelled, At: done})
	return nil
}

// ValidateTransition is the side-effect-free pre-flight check used by
// the UI. It never mutates manager state.
func (m *Manager) ValidateTransition(octx Context, to Phase) Validation {
	now := m.now()
	m.mu.Lock()
	from := m.current
	m.mu.Unlock()

	if to == from {
		v := Validation{}
		v.fail(TransitionError{
			Code:    CodeInvalidTransition,
			Message: fmt.Sprintf("trip already in phase %s", from),
		})
		return v
	}

	var elapsed time.Duration
	if active, ok := m.history.Active(m.tripID); ok {
		elapsed = now.Sub(active.EnteredAt)
	}
	return validate(from, to, TriggerManual, elapsed, octx, m.rules, m.settings)
}

// PhaseCapabilities reports whether the given phase can be entered from
// the current phase and exited toward its successor, with reasons for
// anything blocked.
func (m *Manager) PhaseCapabilities(p Phase, octx Context) Capabilities {
	now := m.now()
	m.mu.Lock()
	from := m.current
	m.mu.Unlock()

	caps := Capabilities{Reasons: []string{}}

	var elapsed time.Duration
	if active, ok := m.history.Active(m.tripID); ok {
		elapsed = now.Sub(active.EnteredAt)
	}

	if next, ok := from.Next(); ok && next == p {
		v := validate(from, p, TriggerManual, elapsed, octx, m.rules, m.settings)
		caps.CanEnter = v.IsValid
		for _, e := range v.Errors {
			caps.Reasons = append(caps.Reasons, e.Message)
		}
	} else if p != from {
		caps.Reasons = append(caps.Reasons, fmt.Sprintf("phase %s is not reachable from %s", p, from))
	}

	if succ, ok := p.Next(); ok {
		s := m.settings[p]
		caps.CanExit = s.AllowManualExit
		if !s.AllowManualExit {
			caps.Reasons = append(caps.Reasons, fmt.Sprintf("phase %s does not allow manual exit", p))
		} else if p == from && s.MinDuration > 0 && elapsed < s.MinDuration {
			caps.CanExit = false
			caps.Reasons = append(caps.Reasons, fmt.Sprintf("phase %s requires %s minimum before moving to %s", p, s.MinDuration, succ))
		}
	} else {
		caps.Reasons = append(caps.Reasons, fmt.Sprintf("phase %s is terminal", p))
	}
	return caps
}

// EvaluateAutoTransitions checks the time-, status- and completion-based
// triggers and fires at most one transition. Returns nil when nothing
// applies.
func (m *Manager) EvaluateAutoTransitions(octx Context) *Result {
	now := octx.now()
	switch m.Current() {
	case PhasePreparation:
		if octx.TripStatus == TripActive {
			r := m.request(octx, PhaseLive, TriggerStatusBased, false, false)
			return &r
		}
		if !octx.TripDate.IsZero() && !now.Before(octx.TripDate) {
			r := m.request(octx, PhaseLive, TriggerTimeBased, false, false)
			return &r
		}
	case PhaseLive:
		if octx.TripStatus == TripCompleted {
			r := m.request(octx, PhaseDebrief, TriggerCompletionBased, false, false)
			return &r
		}
	case PhaseDebrief:
		// Terminal.
	}
	return nil
}

// ResetPhase moves the trip back to preparation, closing the active
// history entry with a reset note. Admin-only.
func (m *Manager) ResetPhase(userID string, role Role) *TransitionError {
	if !PermissionsFor(role).CanResetPhase {
		return &TransitionError{
			Code:    CodePermissionDenied,
			Message: "role " + string(role) + " may not reset phases",
		}
	}

	now := m.now()
	m.mu.Lock()
	from := m.current
	if from == PhasePreparation {
		m.mu.Unlock()
		return &TransitionError{Code: CodeInvalidTransition, Message: "trip already in preparation"}
	}
	m.history.Advance(m.tripID, PhasePreparation, TriggerManual, now, nil, "reset by "+userID)
	m.current = PhasePreparation
	m.data = map[Phase]Data{}
	m.inFlight = nil
	m.mu.Unlock()

	m.logger.Info("phase: reset to preparation", "trip_id", m.tripID, "from", from, "user_id", userID)
	m.emit(Event{TripID: m.tripID, From: from, To: PhasePreparation, Trigger: TriggerManual, Status: StatusCompleted, At: now})
	return nil
}

func (m *Manager) emit(ev Event) {
	for _, l := range m.listeners {
		l(ev)
	}
}
