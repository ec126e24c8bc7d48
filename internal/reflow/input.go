package reflow

import "github.com/example/autoplanner/internal/timeutil"

// Wiggle is the flexibility from which an instance's candidate domain is
// generated: the instance may move DaysBefore days earlier through
// DaysAfter days later, and, when Earliest/Latest are set, its start may
// slide inside that time-of-day band.
type Wiggle struct {
	DaysBefore int
	DaysAfter  int
	Earliest   *timeutil.TimeOfDay
	Latest     *timeutil.TimeOfDay
}

// Instance is one occurrence to place. Start carries the scheduled start
// after exceptions; the domain is derived from it and the wiggle.
type Instance struct {
	Ref             InstanceRef
	Start           timeutil.DateTime
	DurationMinutes int
	AllDay          bool
	// Fixed collapses the domain to the scheduled start.
	Fixed  bool
	Wiggle *Wiggle
}

// Chain is a link instantiated against occurrence dates: for every date
// where both series have an instance, the child's start must fall inside
// [parentEnd + TargetDistance - EarlyWobble, parentEnd + TargetDistance +
// LateWobble]. CompletedEnds pins the parent end for dates where a logged
// completion fixes it.
type Chain struct {
	ParentSeriesID        string
	ChildSeriesID         string
	TargetDistanceMinutes int
	EarlyWobbleMinutes    int
	LateWobbleMinutes     int
	// CompletedEnds maps occurrence dates to the parent's completed end.
	CompletedEnds map[timeutil.Date]timeutil.DateTime
}

// RelationType mirrors the relational constraint kinds the engine checks.
type RelationType string

const (
	RelationMustBeOnSameDay RelationType = "mustBeOnSameDay"
	RelationCantBeOnSameDay RelationType = "cantBeOnSameDay"
	RelationMustBeNextTo    RelationType = "mustBeNextTo"
	RelationCantBeNextTo    RelationType = "cantBeNextTo"
	RelationMustBeBefore    RelationType = "mustBeBefore"
	RelationMustBeAfter     RelationType = "mustBeAfter"
	RelationMustBeWithin    RelationType = "mustBeWithin"
)

// Relation is a relational constraint resolved to concrete series id sets.
// An empty side satisfies the relation trivially.
type Relation struct {
	ID            string
	Type          RelationType
	SourceSeries  []string
	DestSeries    []string
	WithinMinutes int
}

// Input bundles everything a solve needs.
type Input struct {
	Instances []Instance
	Chains    []Chain
	Relations []Relation
}
