// Package recurrence expands declarative recurrence patterns into concrete
// date sequences. Expansion is pure: it never consults storage or the clock,
// so the same pattern, seed, and window always produce the same dates.
package recurrence

import (
	"errors"

	"github.com/example/autoplanner/internal/timeutil"
)

// Kind discriminates the pattern variants.
type Kind int

const (
	// KindUnspecified indicates the pattern kind is not set.
	KindUnspecified Kind = iota
	// KindDaily generates every date from the seed onward.
	KindDaily
	// KindEveryNDays generates seed, seed+n, seed+2n, ...
	KindEveryNDays
	// KindWeekly generates the selected weekdays each week.
	KindWeekly
	// KindEveryNWeeks generates the selected weekdays every n-th week,
	// aligned to the week containing the seed.
	KindEveryNWeeks
	// KindMonthly generates a fixed day of each month. Months shorter than
	// the requested day yield nothing; the day is never clamped.
	KindMonthly
	// KindLastDayOfMonth generates the final day of each month.
	KindLastDayOfMonth
	// KindYearly generates one date per year. February 29 is skipped in
	// non-leap years.
	KindYearly
	// KindWeekdays generates every date matching the weekday set.
	KindWeekdays
	// KindWeekdaysOnly generates Monday through Friday.
	KindWeekdaysOnly
	// KindWeekendsOnly generates Saturday and Sunday.
	KindWeekendsOnly
	// KindNthWeekdayOfMonth generates the n-th occurrence of a weekday per
	// month, omitting months with fewer than n occurrences.
	KindNthWeekdayOfMonth
	// KindLastWeekdayOfMonth generates the last occurrence of a weekday per
	// month.
	KindLastWeekdayOfMonth
	// KindNthToLastWeekdayOfMonth counts occurrences from the end of the
	// month.
	KindNthToLastWeekdayOfMonth
	// KindUnion generates the set union of its children.
	KindUnion
	// KindExcept generates the base minus the exclusion.
	KindExcept
)

var kindNames = map[Kind]string{
	KindDaily:                   "daily",
	KindEveryNDays:              "everyNDays",
	KindWeekly:                  "weekly",
	KindEveryNWeeks:             "everyNWeeks",
	KindMonthly:                 "monthly",
	KindLastDayOfMonth:          "lastDayOfMonth",
	KindYearly:                  "yearly",
	KindWeekdays:                "weekdays",
	KindWeekdaysOnly:            "weekdaysOnly",
	KindWeekendsOnly:            "weekendsOnly",
	KindNthWeekdayOfMonth:       "nthWeekdayOfMonth",
	KindLastWeekdayOfMonth:      "lastWeekdayOfMonth",
	KindNthToLastWeekdayOfMonth: "nthToLastWeekdayOfMonth",
	KindUnion:                   "union",
	KindExcept:                  "except",
}

// String returns the stable textual name of the kind, used as the storage
// discriminator.
func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "unspecified"
}

// KindFromString resolves a storage discriminator back to its Kind.
func KindFromString(s string) (Kind, bool) {
	for k, name := range kindNames {
		if name == s {
			return k, true
		}
	}
	return KindUnspecified, false
}

// Pattern is a tagged variant describing one recurrence rule. Only the
// fields relevant to Kind are meaningful; Validate rejects patterns whose
// populated fields are out of range for their variant.
type Pattern struct {
	Kind Kind

	// N is the interval for everyNDays/everyNWeeks and the ordinal for the
	// nth-weekday variants.
	N int
	// Day is the day-of-month for monthly and yearly patterns.
	Day int
	// Month is the month for yearly patterns.
	Month int
	// Weekday selects the weekday for the nth/last-weekday variants.
	Weekday timeutil.Weekday
	// Weekdays is the weekday set for weekly, everyNWeeks, and weekdays
	// patterns. For weekly variants an empty set defaults to the seed's
	// weekday.
	Weekdays []timeutil.Weekday

	// Children holds the members of a union.
	Children []Pattern
	// Base and Exclude form an except pattern.
	Base    *Pattern
	Exclude *Pattern

	// ConditionID optionally references a condition tree evaluated at
	// instance generation; expansion itself ignores it.
	ConditionID string
}

var (
	// ErrInvalidKind indicates an unknown or unset pattern kind.
	ErrInvalidKind = errors.New("recurrence: invalid pattern kind")
	// ErrInvalidInterval indicates a non-positive n.
	ErrInvalidInterval = errors.New("recurrence: interval must be at least 1")
	// ErrInvalidDay indicates a day-of-month outside 1..31.
	ErrInvalidDay = errors.New("recurrence: day of month must be within 1..31")
	// ErrInvalidMonth indicates a month outside 1..12.
	ErrInvalidMonth = errors.New("recurrence: month must be within 1..12")
	// ErrInvalidWeekday indicates a weekday outside Monday..Sunday.
	ErrInvalidWeekday = errors.New("recurrence: invalid weekday")
	// ErrInvalidOrdinal indicates an nth-weekday ordinal outside 1..5.
	ErrInvalidOrdinal = errors.New("recurrence: ordinal must be within 1..5")
	// ErrInvalidWindow indicates an expansion window whose start is after
	// its end.
	ErrInvalidWindow = errors.New("recurrence: window start must not be after window end")
)

// Validate checks the pattern tree for structural errors.
func (p Pattern) Validate() error {
	switch p.Kind {
	case KindDaily, KindLastDayOfMonth, KindWeekdaysOnly, KindWeekendsOnly:
		return nil
	case KindEveryNDays, KindEveryNWeeks:
		if p.N < 1 {
			return ErrInvalidInterval
		}
		return validateWeekdays(p.Weekdays)
	case KindWeekly:
		return validateWeekdays(p.Weekdays)
	case KindMonthly:
		if p.Day < 1 || p.Day > 31 {
			return ErrInvalidDay
		}
		return nil
	case KindYearly:
		if p.Month < 1 || p.Month > 12 {
			return ErrInvalidMonth
		}
		if p.Day < 1 || p.Day > 31 {
			return ErrInvalidDay
		}
		return nil
	case KindWeekdays:
		if len(p.Weekdays) == 0 {
			return ErrInvalidWeekday
		}
		return validateWeekdays(p.Weekdays)
	case KindNthWeekdayOfMonth, KindNthToLastWeekdayOfMonth:
		if p.N < 1 || p.N > 5 {
			return ErrInvalidOrdinal
		}
		if !p.Weekday.Valid() {
			return ErrInvalidWeekday
		}
		return nil
	case KindLastWeekdayOfMonth:
		if !p.Weekday.Valid() {
			return ErrInvalidWeekday
		}
		return nil
	case KindUnion:
		for _, child := range p.Children {
			if err := child.Validate(); err != nil {
				return err
			}
		}
		return nil
	case KindExcept:
		if p.Base == nil || p.Exclude == nil {
			return ErrInvalidKind
		}
		if err := p.Base.Validate(); err != nil {
			return err
		}
		return p.Exclude.Validate()
	}
	return ErrInvalidKind
}

func validateWeekdays(days []timeutil.Weekday) error {
	for _, d := range days {
		if !d.Valid() {
			return ErrInvalidWeekday
		}
	}
	return nil
}
