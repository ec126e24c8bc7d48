package application

import (
	"time"

	"github.com/example/autoplanner/internal/recurrence"
	"github.com/example/autoplanner/internal/timeutil"
)

// DurationKind discriminates the three duration modes of a series.
type DurationKind int

const (
	// DurationAllDay marks the series as occupying whole days.
	DurationAllDay DurationKind = iota
	// DurationFixed is a literal duration in minutes.
	DurationFixed
	// DurationAdaptive derives the duration from completion history.
	DurationAdaptive
)

// Duration is the tagged duration of a series.
type Duration struct {
	Kind    DurationKind
	Minutes int
	// Adaptive is set when Kind is DurationAdaptive.
	Adaptive *AdaptiveSpec
}

// AdaptiveSpec configures history-derived durations.
type AdaptiveSpec struct {
	FallbackMinutes int
	BufferPercent   float64
	LastN           int
	WindowDays      int
	MinMinutes      *int
	MaxMinutes      *int
}

// Wiggle is the per-series flexibility the reflow engine turns into a
// candidate domain.
type Wiggle struct {
	DaysBefore int
	DaysAfter  int
	Earliest   *timeutil.TimeOfDay
	Latest     *timeutil.TimeOfDay
}

// SeriesPattern pairs a recurrence pattern with its optional guarding
// condition tree.
type SeriesPattern struct {
	Pattern   recurrence.Pattern
	Condition *Condition
}

// Series is the fully assembled domain shape of a recurring activity.
type Series struct {
	ID          string
	Title       string
	Description *string
	StartDate   timeutil.Date
	// EndDate is exclusive and mutually exclusive with Count.
	EndDate *timeutil.Date
	Count   *int
	// TimeOfDay is nil for all-day series.
	TimeOfDay *timeutil.TimeOfDay
	Duration  Duration
	Locked    bool
	Fixed     bool
	Wiggle    *Wiggle

	Patterns  []SeriesPattern
	Reminders []Reminder
	Cycling   *Cycling
	Tags      []string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// AllDay reports whether the series occupies whole days.
func (s Series) AllDay() bool {
	return s.TimeOfDay == nil
}

// CyclingMode selects how cycling items rotate.
type CyclingMode string

const (
	// CyclingSequential rotates items in order.
	CyclingSequential CyclingMode = "sequential"
	// CyclingRandom selects items by deterministic hash.
	CyclingRandom CyclingMode = "random"
)

// Cycling is the variant rotation state of a series.
type Cycling struct {
	Items        []string
	Mode         CyclingMode
	GapLeap      bool
	CurrentIndex int
}

// Reminder is a notification offset attached to a series.
type Reminder struct {
	ID            string
	MinutesBefore int
	Label         string
}

// Link is a directed parent-to-child temporal dependency.
type Link struct {
	ID                    string
	ParentSeriesID        string
	ChildSeriesID         string
	TargetDistanceMinutes int
	EarlyWobbleMinutes    int
	LateWobbleMinutes     int
}

// MaxChainDepth bounds the link graph: the longest root-to-leaf path may
// not exceed this many series.
const MaxChainDepth = 32

// ConstraintType enumerates relational constraint kinds.
type ConstraintType string

const (
	MustBeOnSameDay ConstraintType = "mustBeOnSameDay"
	CantBeOnSameDay ConstraintType = "cantBeOnSameDay"
	MustBeNextTo    ConstraintType = "mustBeNextTo"
	CantBeNextTo    ConstraintType = "cantBeNextTo"
	MustBeBefore    ConstraintType = "mustBeBefore"
	MustBeAfter     ConstraintType = "mustBeAfter"
	MustBeWithin    ConstraintType = "mustBeWithin"
)

// TargetKind discriminates constraint targets.
type TargetKind string

const (
	// TargetByTag matches every series bearing the tag.
	TargetByTag TargetKind = "tag"
	// TargetBySeries matches one series by id.
	TargetBySeries TargetKind = "series"
)

// Target identifies one side of a relational constraint.
type Target struct {
	Kind TargetKind
	// Value is a tag name for TargetByTag or a series id for TargetBySeries.
	Value string
}

// Constraint is a global ordering rule between two targets. A target that
// resolves to no series leaves the constraint trivially satisfied.
type Constraint struct {
	ID            string
	Type          ConstraintType
	Source        Target
	Dest          Target
	WithinMinutes int
}

// Instance is one concrete occurrence of a series inside a schedule.
type Instance struct {
	SeriesID string
	Title    string
	// Date is the occurrence date after exceptions are applied.
	Date timeutil.Date
	// OriginalDate is the pattern-generated date, the instance's stable
	// identity for completions, acks, and reflow.
	OriginalDate timeutil.Date
	AllDay       bool
	// Start and End are nil for all-day instances.
	Start           *timeutil.DateTime
	End             *timeutil.DateTime
	DurationMinutes int
	Fixed           bool
	// InstanceNumber is the 0-based position in the series' expanded dates.
	InstanceNumber int
}

// PendingReminder is a reminder due and not yet acknowledged.
type PendingReminder struct {
	ReminderID   string
	SeriesID     string
	InstanceDate timeutil.Date
	Label        string
	FireAt       timeutil.DateTime
}

// DateRange is a half-open [From, To) window of dates.
type DateRange struct {
	From timeutil.Date
	To   timeutil.Date
}
