package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/tidecast/tidecast/internal/phase"
)

// requestContext carries the trip facts a caller supplies with a phase
// request. Trip data lives in the platform's database, not here, so the
// caller sends the facts the rules evaluate.
type requestContext struct {
	TripDate   time.Time             `json:"tripDate,omitzero"`
	UserID     string                `json:"userId"`
	UserRole   phase.Role            `json:"userRole"`
	TripStatus phase.TripStatus      `json:"tripStatus,omitempty"`
	Checklist  []phase.ChecklistItem `json:"checklist,omitempty"`
	Catches    []phase.CatchRecord   `json:"catches,omitempty"`
	Reviews    []phase.Review        `json:"reviews,omitempty"`
}

func (rc requestContext) toContext(tripID string) phase.Context {
	return phase.Context{
		TripID:     tripID,
		TripDate:   rc.TripDate,
		UserID:     rc.UserID,
		UserRole:   rc.UserRole,
		TripStatus: rc.TripStatus,
		Checklist:  rc.Checklist,
		Catches:    rc.Catches,
		Reviews:    rc.Reviews,
	}
}

type transitionRequest struct {
	TargetPhase phase.Phase    `json:"targetPhase"`
	Trigger     phase.Trigger  `json:"trigger,omitempty"`
	Context     requestContext `json:"context"`
}

type overrideRequest struct {
	TargetPhase    phase.Phase    `json:"targetPhase"`
	Reason         string         `json:"reason"`
	SkipValidation bool           `json:"skipValidation,omitempty"`
	ForceExecution bool           `json:"forceExecution,omitempty"`
	Context        requestContext `json:"context"`
}

type confirmRequest struct {
	Code    string         `json:"code"`
	Context requestContext `json:"context"`
}

type actorRequest struct {
	UserID   string     `json:"userId"`
	UserRole phase.Role `json:"userRole"`
}

func (s *Server) handlePhaseState(w http.ResponseWriter, r *http.Request) {
	m := s.phases.Manager(chi.URLParam(r, "tripID"))
	writeJSON(w, r, http.StatusOK, map[string]any{
		"currentPhase": m.Current(),
		"history":      m.History(),
	})
}

func (s *Server) handleTransition(w http.ResponseWriter, r *http.Request) {
	tripID := chi.URLParam(r, "tripID")
	var req transitionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid_request", "malformed request body")
		return
	}
	if !req.TargetPhase.Valid() {
		writeError(w, r, http.StatusBadRequest, "invalid_request", "targetPhase is required")
		return
	}
	trigger := req.Trigger
	if trigger == "" {
		trigger = phase.TriggerManual
	}

	m := s.phases.Manager(tripID)
	res := m.RequestTransition(req.Context.toContext(tripID), req.TargetPhase, trigger)
	writeResult(w, r, res)
}

func (s *Server) handleValidate(w http.ResponseWriter, r *http.Request) {
	tripID := chi.URLParam(r, "tripID")
	var req transitionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid_request", "malformed request body")
		return
	}
	if !req.TargetPhase.Valid() {
		writeError(w, r, http.StatusBadRequest, "invalid_request", "targetPhase is required")
		return
	}

	m := s.phases.Manager(tripID)
	writeJSON(w, r, http.StatusOK, m.ValidateTransition(req.Context.toContext(tripID), req.TargetPhase))
}

func (s *Server) handleCapabilities(w http.ResponseWriter, r *http.Request) {
	tripID := chi.URLParam(r, "tripID")
	m := s.phases.Manager(tripID)

	p := phase.Phase(r.URL.Query().Get("phase"))
	if p == "" {
		p = m.Current()
	}
	if !p.Valid() {
		writeError(w, r, http.StatusBadRequest, "invalid_request", "unknown phase")
		return
	}
	octx := phase.Context{
		TripID:   tripID,
		UserRole: phase.Role(r.URL.Query().Get("role")),
	}
	writeJSON(w, r, http.StatusOK, m.PhaseCapabilities(p, octx))
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, s.phases.History(chi.URLParam(r, "tripID")))
}

// handleOverride begins a captain override. Roles whose overrides need
// confirmation get a code back; the rest execute immediately.
func (s *Server) handleOverride(w http.ResponseWriter, r *http.Request) {
	tripID := chi.URLParam(r, "tripID")
	var req overrideRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid_request", "malformed request body")
		return
	}

	code, grant, terr := s.phases.Evaluator().Begin(phase.OverrideRequest{
		TripID:         tripID,
		UserID:         req.Context.UserID,
		Role:           req.Context.UserRole,
		ToPhase:        req.TargetPhase,
		Reason:         req.Reason,
		SkipValidation: req.SkipValidation,
		ForceExecution: req.ForceExecution,
	})
	if terr != nil {
		writeError(w, r, statusForCode(terr.Code), string(terr.Code), terr.Message)
		return
	}
	if grant == nil {
		writeJSON(w, r, http.StatusAccepted, map[string]string{
			"confirmationRequired": "true",
			"confirmationCode":     code,
		})
		return
	}

	m := s.phases.Manager(tripID)
	writeResult(w, r, m.RequestOverride(req.Context.toContext(tripID), *grant))
}

func (s *Server) handleOverrideConfirm(w http.ResponseWriter, r *http.Request) {
	tripID := chi.URLParam(r, "tripID")
	var req confirmRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid_request", "malformed request body")
		return
	}

	grant, terr := s.phases.Evaluator().Confirm(req.Code)
	if terr != nil {
		writeError(w, r, statusForCode(terr.Code), string(terr.Code), terr.Message)
		return
	}

	m := s.phases.Manager(tripID)
	writeResult(w, r, m.RequestOverride(req.Context.toContext(tripID), *grant))
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	tripID := chi.URLParam(r, "tripID")
	var req actorRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid_request", "malformed request body")
		return
	}

	if terr := s.phases.Manager(tripID).CancelTransition(req.UserID, req.UserRole); terr != nil {
		writeError(w, r, statusForCode(terr.Code), string(terr.Code), terr.Message)
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]string{"status": "cancelled"})
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	tripID := chi.URLParam(r, "tripID")
	var req actorRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid_request", "malformed request body")
		return
	}

	if terr := s.phases.Manager(tripID).ResetPhase(req.UserID, req.UserRole); terr != nil {
		writeError(w, r, statusForCode(terr.Code), string(terr.Code), terr.Message)
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]string{"status": "reset"})
}

// writeResult maps a transition result onto an HTTP response. Failed
// transitions keep a JSON body describing the failure so the UI can
// render rule names and warnings.
func writeResult(w http.ResponseWriter, r *http.Request, res phase.Result) {
	status := http.StatusOK
	if !res.Success && res.Error != nil {
		status = statusForCode(res.Error.Code)
	}
	writeJSON(w, r, status, res)
}

func statusForCode(code phase.ErrorCode) int {
	switch code {
	case phase.CodePermissionDenied:
		return http.StatusForbidden
	case phase.CodeTransitionInProgress:
		return http.StatusConflict
	case phase.CodeInvalidTransition, phase.CodeConfirmationInvalid:
		return http.StatusConflict
	case phase.CodeValidationFailed:
		return http.StatusUnprocessableEntity
	case phase.CodeTransitionTimeout:
		return http.StatusGatewayTimeout
	case phase.CodeMigrationFailed:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

type apiError struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, _ *http.Request, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	writeJSON(w, r, status, apiError{Error: errorDetail{Code: code, Message: message}})
}

// decodeJSON decodes a JSON request body into the target struct.
func decodeJSON(r *http.Request, target any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(target)
}
