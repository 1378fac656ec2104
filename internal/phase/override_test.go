package phase

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPermissionsPerRole(t *testing.T) {
	admin := PermissionsFor(RoleAdmin)
	assert.True(t, admin.CanOverrideRules)
	assert.True(t, admin.CanResetPhase)
	assert.False(t, admin.RequiresConfirmation)

	captain := PermissionsFor(RoleCaptain)
	assert.True(t, captain.CanOverrideRules)
	assert.False(t, captain.CanResetPhase)
	assert.True(t, captain.RequiresConfirmation)

	observer := PermissionsFor(RoleObserver)
	assert.False(t, observer.CanOverrideRules)
	assert.False(t, observer.CanViewHistory)

	assert.Equal(t, Permissions{}, PermissionsFor(Role("stowaway")))
}

func TestOverrideRejectedForWeakRoles(t *testing.T) {
	e := NewEvaluator(0)
	for _, role := range []Role{RoleParticipant, RoleObserver, RoleCoCaptain} {
		_, _, terr := e.Begin(OverrideRequest{TripID: "trip-1", Role: role, ToPhase: PhaseLive, Reason: "because"})
		require.NotNil(t, terr, string(role))
		assert.Equal(t, CodePermissionDenied, terr.Code)
	}
}

func TestOverrideRequiresReason(t *testing.T) {
	e := NewEvaluator(0)
	_, _, terr := e.Begin(OverrideRequest{TripID: "trip-1", Role: RoleCaptain, ToPhase: PhaseLive, Reason: "  "})
	require.NotNil(t, terr)
	assert.Contains(t, terr.Message, "reason")
}

func TestOverrideConfirmationRoundTrip(t *testing.T) {
	e := NewEvaluator(0)
	code, grant, terr := e.Begin(OverrideRequest{
		TripID: "trip-1", UserID: "cap", Role: RoleCaptain,
		ToPhase: PhaseLive, Reason: "weather window", SkipValidation: true,
	})
	require.Nil(t, terr)
	assert.Nil(t, grant, "captain requires confirmation")
	require.NotEmpty(t, code)

	got, terr := e.Confirm(code)
	require.Nil(t, terr)
	assert.True(t, got.SkipValidation)

	// Single-use: the same code cannot be redeemed twice.
	_, terr = e.Confirm(code)
	require.NotNil(t, terr)
	assert.Equal(t, CodeConfirmationInvalid, terr.Code)
}

func TestOverrideCodeExpiry(t *testing.T) {
	e := NewEvaluator(time.Minute)
	now := time.Now().UTC()
	e.now = func() time.Time { return now }

	code, _, terr := e.Begin(OverrideRequest{TripID: "trip-1", Role: RoleCaptain, ToPhase: PhaseLive, Reason: "r"})
	require.Nil(t, terr)

	now = now.Add(2 * time.Minute)
	_, terr = e.Confirm(code)
	require.NotNil(t, terr)
	assert.Contains(t, terr.Message, "expired")
}

func TestUnauthorizedFlagsDowngraded(t *testing.T) {
	e := NewEvaluator(0)
	// Admin needs no confirmation, so the grant comes straight back.
	_, grant, terr := e.Begin(OverrideRequest{
		TripID: "trip-1", Role: RoleAdmin, ToPhase: PhaseLive,
		Reason: "ops", SkipValidation: true, ForceExecution: true,
	})
	require.Nil(t, terr)
	require.NotNil(t, grant)
	assert.True(t, grant.SkipValidation)
	assert.True(t, grant.ForceExecution)
}

func TestOverrideSkipsValidation(t *testing.T) {
	s := testService(t, ServiceConfig{})
	m := s.Manager("trip-1")

	// A cancelled trip blocks the normal path.
	octx := liveContext("trip-1")
	octx.TripStatus = TripCancelled
	require.False(t, m.RequestTransition(octx, PhaseLive, TriggerManual).Success)

	code, _, terr := s.Evaluator().Begin(OverrideRequest{
		TripID: "trip-1", UserID: "cap", Role: RoleCaptain,
		ToPhase: PhaseLive, Reason: "salvage the charter", SkipValidation: true,
	})
	require.Nil(t, terr)
	grant, terr := s.Evaluator().Confirm(code)
	require.Nil(t, terr)

	res := m.RequestOverride(octx, *grant)
	require.True(t, res.Success, "errors: %v", res.Error)
	assert.Equal(t, TriggerCaptainOverride, res.Transition.Trigger)
	assert.Equal(t, PhaseLive, m.Current())
}

func TestOverrideWithoutSkipStillBlockedByErrors(t *testing.T) {
	s := testService(t, ServiceConfig{})
	m := s.Manager("trip-1")

	octx := liveContext("trip-1")
	octx.TripStatus = TripCancelled

	code, _, terr := s.Evaluator().Begin(OverrideRequest{
		TripID: "trip-1", UserID: "cap", Role: RoleCaptain,
		ToPhase: PhaseLive, Reason: "try anyway",
	})
	require.Nil(t, terr)
	grant, terr := s.Evaluator().Confirm(code)
	require.Nil(t, terr)

	res := m.RequestOverride(octx, *grant)
	assert.False(t, res.Success)
	require.NotNil(t, res.Error)
	assert.Equal(t, CodeValidationFailed, res.Error.Code)
	assert.Equal(t, PhasePreparation, m.Current())
}
