package persistence

import (
	"context"

	"github.com/example/autoplanner/internal/timeutil"
)

// DurationQuery selects recent completion durations for adaptive duration
// computation. Exactly one of LastN or WindowDays is positive: LastN takes
// the most recent n completions with both timestamps; WindowDays takes the
// completions whose actual date falls within the window ending at AsOf.
type DurationQuery struct {
	LastN      int
	WindowDays int
	AsOf       timeutil.Date
}

// Store is the abstract storage interface the domain layer programs
// against. Two implementations exist: the snapshot-copy in-memory store and
// the SQLite-backed store. Both enforce the same cascade/restrict matrix:
//
//	series  -> pattern, pattern_weekday, condition, adaptive_duration,
//	           cycling_config, cycling_item, instance_exception, reminder,
//	           reminder_ack, series_tag, link (as child)     CASCADE
//	series  -> completion, link (as parent)                  RESTRICT
//	reminder -> reminder_ack                                 CASCADE
//	cycling_config -> cycling_item                           CASCADE
//	tag     -> series_tag                                    CASCADE
//
// Every method is safe to call inside Transaction; nested Transaction calls
// flatten into the outermost one.
type Store interface {
	// Transaction runs fn atomically. On error the store is restored to
	// its exact pre-transaction state. The Store passed to fn observes the
	// transaction's own writes.
	Transaction(ctx context.Context, fn func(tx Store) error) error

	// Series.
	CreateSeries(ctx context.Context, row Series) error
	GetSeries(ctx context.Context, id string) (Series, error)
	ListSeries(ctx context.Context) ([]Series, error)
	UpdateSeries(ctx context.Context, row Series) error
	// DeleteSeries applies the cascade/restrict matrix; a completion or a
	// parent-side link blocks the delete with ErrForeignKeyViolation.
	DeleteSeries(ctx context.Context, id string) error

	// Patterns and weekday masks.
	CreatePattern(ctx context.Context, row Pattern) error
	ListPatternsForSeries(ctx context.Context, seriesID string) ([]Pattern, error)
	DeletePatternsForSeries(ctx context.Context, seriesID string) error
	CreatePatternWeekday(ctx context.Context, row PatternWeekday) error
	ListPatternWeekdays(ctx context.Context, patternID string) ([]PatternWeekday, error)

	// Conditions.
	CreateCondition(ctx context.Context, row Condition) error
	GetCondition(ctx context.Context, id string) (Condition, error)
	ListConditionsForSeries(ctx context.Context, seriesID string) ([]Condition, error)
	DeleteConditionsForSeries(ctx context.Context, seriesID string) error

	// Completions.
	CreateCompletion(ctx context.Context, row Completion) error
	GetCompletion(ctx context.Context, seriesID string, instanceDate timeutil.Date) (Completion, error)
	ListCompletionsForSeries(ctx context.Context, seriesID string) ([]Completion, error)
	DeleteCompletion(ctx context.Context, seriesID string, instanceDate timeutil.Date) error
	// CountCompletionsInWindow counts completions whose actual date lies in
	// [from, to).
	CountCompletionsInWindow(ctx context.Context, seriesID string, from, to timeutil.Date) (int, error)
	// DaysSinceLastCompletion reports the days from the most recent actual
	// completion date to asOf; ok is false when no completion exists.
	DaysSinceLastCompletion(ctx context.Context, seriesID string, asOf timeutil.Date) (days int, ok bool, err error)
	// RecentDurations returns completion durations in minutes, most recent
	// first, for completions carrying both start and end timestamps.
	RecentDurations(ctx context.Context, seriesID string, q DurationQuery) ([]int, error)

	// Instance exceptions.
	UpsertInstanceException(ctx context.Context, row InstanceException) error
	GetInstanceException(ctx context.Context, seriesID string, originalDate timeutil.Date) (InstanceException, error)
	ListInstanceExceptionsForSeries(ctx context.Context, seriesID string) ([]InstanceException, error)
	DeleteInstanceException(ctx context.Context, seriesID string, originalDate timeutil.Date) error

	// Adaptive duration.
	UpsertAdaptiveDuration(ctx context.Context, row AdaptiveDuration) error
	GetAdaptiveDuration(ctx context.Context, seriesID string) (AdaptiveDuration, error)
	DeleteAdaptiveDuration(ctx context.Context, seriesID string) error

	// Cycling.
	UpsertCyclingConfig(ctx context.Context, row CyclingConfig) error
	GetCyclingConfig(ctx context.Context, seriesID string) (CyclingConfig, error)
	// ReplaceCyclingItems swaps the full ordered item list for a series.
	ReplaceCyclingItems(ctx context.Context, seriesID string, items []CyclingItem) error
	ListCyclingItems(ctx context.Context, seriesID string) ([]CyclingItem, error)
	// DeleteCyclingConfig removes the config and its items.
	DeleteCyclingConfig(ctx context.Context, seriesID string) error

	// Reminders.
	CreateReminder(ctx context.Context, row Reminder) error
	ListRemindersForSeries(ctx context.Context, seriesID string) ([]Reminder, error)
	DeleteReminder(ctx context.Context, id string) error
	CreateReminderAck(ctx context.Context, row ReminderAck) error
	HasReminderAck(ctx context.Context, reminderID string, instanceDate timeutil.Date) (bool, error)

	// Links.
	CreateLink(ctx context.Context, row Link) error
	GetLink(ctx context.Context, id string) (Link, error)
	GetLinkByChild(ctx context.Context, childSeriesID string) (Link, error)
	ListLinks(ctx context.Context) ([]Link, error)
	ListLinksByParent(ctx context.Context, parentSeriesID string) ([]Link, error)
	UpdateLink(ctx context.Context, row Link) error
	DeleteLink(ctx context.Context, id string) error

	// Relational constraints.
	CreateConstraint(ctx context.Context, row RelationalConstraint) error
	ListConstraints(ctx context.Context) ([]RelationalConstraint, error)
	DeleteConstraint(ctx context.Context, id string) error

	// Tags.
	CreateTag(ctx context.Context, row Tag) error
	GetTag(ctx context.Context, id string) (Tag, error)
	GetTagByName(ctx context.Context, name string) (Tag, error)
	ListTags(ctx context.Context) ([]Tag, error)
	DeleteTag(ctx context.Context, id string) error
	AddSeriesTag(ctx context.Context, row SeriesTag) error
	RemoveSeriesTag(ctx context.Context, seriesID, tagID string) error
	ListTagsForSeries(ctx context.Context, seriesID string) ([]Tag, error)
	ListSeriesIDsForTag(ctx context.Context, tagID string) ([]string, error)
}
