// Package reflow computes constraint-satisfying start-time assignments for
// a set of schedule instances. The engine is pure: its inputs are fully
// materialized by the caller and it never touches storage or the clock, so
// identical inputs always produce identical output.
package reflow

import (
	"fmt"

	"github.com/example/autoplanner/internal/timeutil"
)

// ConflictType classifies an unsatisfiable constraint.
type ConflictType string

const (
	// ConflictChainBounds indicates a link window that cannot be met.
	ConflictChainBounds ConflictType = "chainBoundsViolated"
	// ConflictIntraDay indicates an intra-day ordering or overlap failure.
	ConflictIntraDay ConflictType = "intraDayConflict"
	// ConflictDay indicates a day-level co-scheduling failure.
	ConflictDay ConflictType = "dayConflict"
	// ConflictFixedOverlap indicates two immovable instances overlap.
	ConflictFixedOverlap ConflictType = "fixedOverlap"
)

// InstanceRef identifies one instance by series and occurrence date.
type InstanceRef struct {
	SeriesID string
	Date     timeutil.Date
}

// String renders the reference for conflict descriptions.
func (r InstanceRef) String() string {
	return fmt.Sprintf("%s@%s", r.SeriesID, r.Date)
}

// Conflict details one irreconcilable constraint that callers can present
// to users.
type Conflict struct {
	InstanceRefs []InstanceRef
	Type         ConflictType
	Description  string
}

// Assignment is one instance's chosen start and resulting end.
type Assignment struct {
	Ref   InstanceRef
	Start timeutil.DateTime
	End   timeutil.DateTime
}

// Result is the outcome of a solve: either a complete consistent
// assignment, or a conflict report plus the consistent partial assignment
// reached before failure. A partial assignment is never presented as a
// success.
type Result struct {
	Solved      bool
	Assignments []Assignment
	Conflicts   []Conflict
	// PartialAssignment holds the assignments made before the search
	// failed; empty on success.
	PartialAssignment []Assignment
	// BudgetExhausted is set when the search node budget ran out before
	// the space was exhausted.
	BudgetExhausted bool
}
