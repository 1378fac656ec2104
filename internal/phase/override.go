package phase

import (
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Permissions is the fixed capability record for one role.
type Permissions struct {
	CanOverrideRules     bool `json:"canOverrideRules"`
	CanForceTransition   bool `json:"canForceTransition"`
	CanCancelTransition  bool `json:"canCancelTransition"`
	CanResetPhase        bool `json:"canResetPhase"`
	CanViewHistory       bool `json:"canViewHistory"`
	CanEditPermissions   bool `json:"canEditPermissions"`
	RequiresConfirmation bool `json:"requiresConfirmation"`
	RequiresReason       bool `json:"requiresReason"`
}

// PermissionsFor maps a role to its permission record. Exhaustive over
// the known roles; unknown roles get the observer (empty) record.
func PermissionsFor(role Role) Permissions {
	switch role {
	case RoleAdmin:
		return Permissions{
			CanOverrideRules:    true,
			CanForceTransition:  true,
			CanCancelTransition: true,
			CanResetPhase:       true,
			CanViewHistory:      true,
			CanEditPermissions:  true,
			RequiresReason:      true,
		}
	case RoleCaptain:
		return Permissions{
			CanOverrideRules:     true,
			CanForceTransition:   true,
			CanCancelTransition:  true,
			CanViewHistory:       true,
			RequiresConfirmation: true,
			RequiresReason:       true,
		}
	case RoleCoCaptain:
		return Permissions{
			CanCancelTransition:  true,
			CanViewHistory:       true,
			RequiresConfirmation: true,
			RequiresReason:       true,
		}
	case RoleParticipant:
		return Permissions{CanViewHistory: true}
	case RoleObserver:
		return Permissions{}
	}
	return Permissions{}
}

// OverrideRequest is a captain/admin request to push a transition
// through despite rule warnings (or, with SkipValidation, despite rule
// errors).
type OverrideRequest struct {
	TripID         string `json:"tripId"`
	UserID         string `json:"userId"`
	Role           Role   `json:"role"`
	ToPhase        Phase  `json:"toPhase"`
	Reason         string `json:"reason"`
	SkipValidation bool   `json:"skipValidation,omitempty"`
	ForceExecution bool   `json:"forceExecution,omitempty"`
}

// Grant is an approved override. SkipValidation and ForceExecution are
// the honored values after downgrading anything the role is not entitled
// to.
type Grant struct {
	Request        OverrideRequest `json:"request"`
	SkipValidation bool            `json:"skipValidation"`
	ForceExecution bool            `json:"forceExecution"`
}

type pendingOverride struct {
	grant    Grant
	issuedAt time.Time
}

// Evaluator approves override requests and owns the confirmation-code
// round trip. Codes are generated and verified here, server-side, are
// single-use, and expire after the configured TTL.
type Evaluator struct {
	ttl time.Duration
	now func() time.Time

	mu      sync.Mutex
	pending map[string]pendingOverride
}

// NewEvaluator creates an evaluator whose confirmation codes expire
// after ttl (zero means 2 minutes).
func NewEvaluator(ttl time.Duration) *Evaluator {
	if ttl <= 0 {
		ttl = 2 * time.Minute
	}
	return &Evaluator{
		ttl:     ttl,
		now:     func() time.Time { return time.Now().UTC() },
		pending: make(map[string]pendingOverride),
	}
}

// Begin evaluates an override request. Roles without any override power
// are rejected before any state changes. Unauthorized SkipValidation or
// ForceExecution flags are silently downgraded, not granted. When the
// role requires confirmation, Begin returns a code the requester must
// echo back via Confirm; otherwise the grant is returned directly.
func (e *Evaluator) Begin(req OverrideRequest) (code string, grant *Grant, terr *TransitionError) {
	perm := PermissionsFor(req.Role)
	if !perm.CanOverrideRules && !perm.CanForceTransition {
		return "", nil, &TransitionError{
			Code:    CodePermissionDenied,
			Message: "role " + string(req.Role) + " may not override transitions",
		}
	}
	if perm.RequiresReason && strings.TrimSpace(req.Reason) == "" {
		return "", nil, &TransitionError{
			Code:    CodePermissionDenied,
			Message: "override requires a reason",
		}
	}

	g := Grant{
		Request:        req,
		SkipValidation: req.SkipValidation && perm.CanOverrideRules,
		ForceExecution: req.ForceExecution && perm.CanForceTransition,
	}
	if !perm.RequiresConfirmation {
		return "", &g, nil
	}

	code = newConfirmationCode()
	e.mu.Lock()
	e.pending[code] = pendingOverride{grant: g, issuedAt: e.now()}
	e.mu.Unlock()
	return code, nil, nil
}

// Confirm redeems a confirmation code. The echo must match exactly;
// codes are single-use and expire.
func (e *Evaluator) Confirm(code string) (*Grant, *TransitionError) {
	e.mu.Lock()
	defer e.mu.Unlock()

	p, ok := e.pending[code]
	if !ok {
		return nil, &TransitionError{Code: CodeConfirmationInvalid, Message: "unknown confirmation code"}
	}
	delete(e.pending, code)
	if e.now().Sub(p.issuedAt) > e.ttl {
		return nil, &TransitionError{Code: CodeConfirmationInvalid, Message: "confirmation code expired"}
	}
	g := p.grant
	return &g, nil
}

func newConfirmationCode() string {
	return strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
}
