package persistence

import (
	"time"

	"github.com/example/autoplanner/internal/timeutil"
)

// Series is the core row for a recurring activity. Duration is a three-way
// choice encoded across columns: AllDay set, DurationMinutes set, or neither
// when an AdaptiveDuration row exists for the series.
type Series struct {
	ID          string
	Title       string
	Description *string
	StartDate   timeutil.Date
	// EndDate is exclusive when present. Mutually exclusive with Count.
	EndDate *timeutil.Date
	Count   *int

	AllDay          bool
	TimeOfDay       *timeutil.TimeOfDay
	DurationMinutes *int

	Locked bool
	Fixed  bool

	WiggleDaysBefore *int
	WiggleDaysAfter  *int
	WiggleEarliest   *timeutil.TimeOfDay
	WiggleLatest     *timeutil.TimeOfDay

	CreatedAt time.Time
	UpdatedAt time.Time
}

// PatternRole distinguishes how a non-root pattern row relates to its parent.
type PatternRole string

const (
	// PatternRoleMember marks a child of a union pattern.
	PatternRoleMember PatternRole = "member"
	// PatternRoleBase marks the base of an except pattern.
	PatternRoleBase PatternRole = "base"
	// PatternRoleExclude marks the exclusion of an except pattern.
	PatternRoleExclude PatternRole = "exclude"
)

// Pattern is a flat recurrence rule row. Nested union/except trees are
// stored as rows pointing at their parent via ParentID and Role; roots have
// neither. Only the columns relevant to Kind are populated.
type Pattern struct {
	ID       string
	SeriesID string
	Kind     string

	N       *int
	Day     *int
	Month   *int
	Weekday *int

	ParentID *string
	Role     *PatternRole

	ConditionID *string
}

// PatternWeekday is one member of a pattern's weekday mask.
type PatternWeekday struct {
	PatternID string
	Weekday   int
}

// Condition is a flat condition tree node. Internal nodes carry only Kind;
// leaves populate their predicate columns. Days is a JSON-encoded integer
// array for weekday predicates.
type Condition struct {
	ID       string
	SeriesID string
	ParentID *string
	Kind     string

	SeriesRef  *string
	WindowDays *int
	Comparison *string
	Value      *int
	Days       *string
}

// Completion records a logged execution of an instance. Unique on
// (SeriesID, InstanceDate); its presence blocks deletion of the series.
type Completion struct {
	ID           string
	SeriesID     string
	InstanceDate timeutil.Date
	ActualDate   timeutil.Date
	StartTime    *timeutil.DateTime
	EndTime      *timeutil.DateTime
}

// InstanceException overrides one occurrence. Unique on
// (SeriesID, OriginalDate); upserts replace the prior row for the key.
type InstanceException struct {
	ID           string
	SeriesID     string
	OriginalDate timeutil.Date
	// Type is "cancelled" or "rescheduled".
	Type    string
	NewDate *timeutil.Date
	NewTime *timeutil.TimeOfDay
}

// AdaptiveDuration configures history-derived durations for one series.
type AdaptiveDuration struct {
	SeriesID        string
	FallbackMinutes int
	BufferPercent   float64
	LastN           int
	WindowDays      int
	MinMinutes      *int
	MaxMinutes      *int
}

// CyclingConfig holds the rotation state for a series' title variants.
type CyclingConfig struct {
	SeriesID     string
	Mode         string
	GapLeap      bool
	CurrentIndex int
}

// CyclingItem is one ordered variant title of a cycling config.
type CyclingItem struct {
	SeriesID string
	Position int
	Title    string
}

// Reminder is a per-series notification offset.
type Reminder struct {
	ID            string
	SeriesID      string
	MinutesBefore int
	Label         string
}

// ReminderAck marks one reminder acknowledged for one instance date.
type ReminderAck struct {
	ReminderID   string
	InstanceDate timeutil.Date
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

// TargetType discriminates relational constraint targets.
type TargetType string

const (
	// TargetTag matches every series bearing a tag.
	TargetTag TargetType = "tag"
	// TargetSeries matches one series by id.
	TargetSeries TargetType = "series"
)

// RelationalConstraint is a global ordering rule between two targets.
// Constraints outlive the series they reference.
type RelationalConstraint struct {
	ID            string
	Type          string
	SourceType    TargetType
	SourceValue   string
	DestType      TargetType
	DestValue     string
	WithinMinutes *int
}

// Tag is a named label, unique by name.
type Tag struct {
	ID   string
	Name string
}

// SeriesTag associates a series with a tag.
type SeriesTag struct {
	SeriesID string
	TagID    string
}

// SchemaVersion is one applied migration record.
type SchemaVersion struct {
	Version   int
	AppliedAt time.Time
}
