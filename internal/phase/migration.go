package phase

import (
	"context"
	"fmt"
)

// MigrationRule carries phase-relevant data from the source phase's
// working payload into the target's. Transform mutates a staging copy;
// Validate vets the staged result. A required rule whose validator fails
// aborts the whole transition — nothing is committed, so there is no
// partial application to roll back.
type MigrationRule struct {
	Name       string
	From, To   Phase
	IsRequired bool
	Transform  func(src Data, dst Data) Data
	Validate   func(dst Data) error
}

// DefaultMigrations mirror the production data flow: checklist state
// rides into live, catch records ride into debrief, and debrief starts
// with an empty review list.
func DefaultMigrations() []MigrationRule {
	return []MigrationRule{
		{
			Name: "carry_checklist", From: PhasePreparation, To: PhaseLive, IsRequired: true,
			Transform: func(src, dst Data) Data {
				dst.Checklist = append([]ChecklistItem(nil), src.Checklist...)
				return dst
			},
		},
		{
			Name: "carry_catches", From: PhaseLive, To: PhaseDebrief, IsRequired: true,
			Transform: func(src, dst Data) Data {
				dst.Catches = append([]CatchRecord(nil), src.Catches...)
				return dst
			},
			Validate: func(dst Data) error {
				for _, c := range dst.Catches {
					if c.Species == "" {
						return fmt.Errorf("catch record missing species")
					}
				}
				return nil
			},
		},
		{
			Name: "fresh_reviews", From: PhaseLive, To: PhaseDebrief,
			Transform: func(_, dst Data) Data {
				dst.Reviews = nil
				return dst
			},
		},
	}
}

// runMigrations applies every rule registered for (from, to) against a
// staging copy of the target payload and returns the staged result plus
// warnings from optional rules. The caller commits the staged data only
// on full success. ctx bounds execution; it is checked between rules so
// the transition timeout can fire mid-sequence.
func runMigrations(ctx context.Context, from, to Phase, src, dst Data, rules []MigrationRule) (Data, []string, *TransitionError) {
	staged := dst.clone()
	srcCopy := src.clone()
	var warnings []string

	for _, r := range rules {
		if r.From != from || r.To != to {
			continue
		}
		if err := ctx.Err(); err != nil {
			return dst, warnings, &TransitionError{Code: CodeTransitionTimeout, Message: "migration interrupted: " + err.Error(), Rule: r.Name}
		}
		if r.Transform != nil {
			staged = r.Transform(srcCopy, staged)
		}
		if r.Validate != nil {
			if err := r.Validate(staged); err != nil {
				if r.IsRequired {
					return dst, warnings, &TransitionError{
						Code:    CodeMigrationFailed,
						Message: fmt.Sprintf("required migration %s failed: %v", r.Name, err),
						Rule:    r.Name,
					}
				}
				warnings = append(warnings, fmt.Sprintf("migration %s: %v", r.Name, err))
			}
		}
	}
	return staged, warnings, nil
}
