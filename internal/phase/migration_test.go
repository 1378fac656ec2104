package phase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequiredMigrationFailureAborts(t *testing.T) {
	rules := []MigrationRule{
		{
			Name: "first", From: PhasePreparation, To: PhaseLive, IsRequired: true,
			Transform: func(_, dst Data) Data {
				dst.Checklist = []ChecklistItem{{ID: "x", Done: true}}
				return dst
			},
		},
		{
			Name: "broken", From: PhasePreparation, To: PhaseLive, IsRequired: true,
			Validate: func(Data) error { return errors.New("boom") },
		},
	}

	dst := Data{}
	got, _, terr := runMigrations(context.Background(), PhasePreparation, PhaseLive, Data{}, dst, rules)
	require.NotNil(t, terr)
	assert.Equal(t, CodeMigrationFailed, terr.Code)
	assert.Equal(t, "broken", terr.Rule)
	// The abort returns the original target payload: the first rule's
	// work stays in the discarded staging copy.
	assert.Empty(t, got.Checklist)
}

func TestOptionalMigrationFailureWarns(t *testing.T) {
	rules := []MigrationRule{
		{
			Name: "advisory", From: PhaseLive, To: PhaseDebrief,
			Validate: func(Data) error { return errors.New("nothing to carry") },
		},
	}
	_, warns, terr := runMigrations(context.Background(), PhaseLive, PhaseDebrief, Data{}, Data{}, rules)
	require.Nil(t, terr)
	require.Len(t, warns, 1)
	assert.Contains(t, warns[0], "advisory")
}

func TestMigrationSkipsOtherPairs(t *testing.T) {
	called := false
	rules := []MigrationRule{
		{
			Name: "other", From: PhaseLive, To: PhaseDebrief,
			Transform: func(_, dst Data) Data {
				called = true
				return dst
			},
		},
	}
	_, _, terr := runMigrations(context.Background(), PhasePreparation, PhaseLive, Data{}, Data{}, rules)
	require.Nil(t, terr)
	assert.False(t, called)
}

func TestMigrationHonorsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	rules := []MigrationRule{
		{Name: "never", From: PhasePreparation, To: PhaseLive, Transform: func(_, dst Data) Data { return dst }},
	}
	_, _, terr := runMigrations(ctx, PhasePreparation, PhaseLive, Data{}, Data{}, rules)
	require.NotNil(t, terr)
	assert.Equal(t, CodeTransitionTimeout, terr.Code)
}

func TestDefaultMigrationsCarryCatches(t *testing.T) {
	src := Data{Catches: []CatchRecord{{Species: "mahi-mahi", By: "u1", CaughtAt: time.Now()}}}
	dst := Data{Reviews: []Review{{Author: "stale", Rating: 1}}}

	got, _, terr := runMigrations(context.Background(), PhaseLive, PhaseDebrief, src, dst, DefaultMigrations())
	require.Nil(t, terr)
	assert.Equal(t, src.Catches, got.Catches)
	assert.Nil(t, got.Reviews, "debrief starts with a fresh review list")
}

func TestDefaultMigrationsRejectAnonymousCatch(t *testing.T) {
	src := Data{Catches: []CatchRecord{{Species: "", By: "u1"}}}
	_, _, terr := runMigrations(context.Background(), PhaseLive, PhaseDebrief, src, Data{}, DefaultMigrations())
	require.NotNil(t, terr)
	assert.Equal(t, CodeMigrationFailed, terr.Code)
}
