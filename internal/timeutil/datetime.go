package timeutil

import (
	"fmt"
	"strings"
)

// DateTime is a naive local date and time. It never carries a zone.
type DateTime struct {
	Date Date
	Time TimeOfDay
}

// ParseDateTime parses YYYY-MM-DDTHH:MM:SS with an optional fractional
// second suffix, which is accepted and discarded.
func ParseDateTime(s string) (DateTime, error) {
	datePart, timePart, ok := strings.Cut(s, "T")
	if !ok {
		return DateTime{}, fmt.Errorf("%w: invalid datetime %q", ErrParse, s)
	}
	if dot := strings.IndexByte(timePart, '.'); dot >= 0 {
		frac := timePart[dot+1:]
		if frac == "" {
			return DateTime{}, fmt.Errorf("%w: invalid datetime %q", ErrParse, s)
		}
		for _, c := range frac {
			if c < '0' || c > '9' {
				return DateTime{}, fmt.Errorf("%w: invalid datetime %q", ErrParse, s)
			}
		}
		timePart = timePart[:dot]
	}
	d, err := ParseDate(datePart)
	if err != nil {
		return DateTime{}, fmt.Errorf("%w: invalid datetime %q", ErrParse, s)
	}
	t, err := ParseTimeOfDay(timePart)
	if err != nil {
		return DateTime{}, fmt.Errorf("%w: invalid datetime %q", ErrParse, s)
	}
	return DateTime{Date: d, Time: t}, nil
}

// String formats the value as YYYY-MM-DDTHH:MM:SS.
func (dt DateTime) String() string {
	return dt.Date.String() + "T" + dt.Time.String()
}

// IsZero reports whether the value is the zero DateTime.
func (dt DateTime) IsZero() bool {
	return dt == DateTime{}
}

// Compare orders dt against other chronologically.
func (dt DateTime) Compare(other DateTime) int {
	if c := dt.Date.Compare(other.Date); c != 0 {
		return c
	}
	return dt.Time.Compare(other.Time)
}

// Before reports whether dt is strictly earlier than other.
func (dt DateTime) Before(other DateTime) bool { return dt.Compare(other) < 0 }

// After reports whether dt is strictly later than other.
func (dt DateTime) After(other DateTime) bool { return dt.Compare(other) > 0 }

// AddMinutes shifts the value by n minutes, rolling the date as needed.
// Seconds are preserved.
func (dt DateTime) AddMinutes(n int) DateTime {
	total := dt.Time.MinutesFromMidnight() + n
	days := total / (24 * 60)
	rem := total % (24 * 60)
	if rem < 0 {
		rem += 24 * 60
		days--
	}
	t := FromMinutes(rem)
	t.Second = dt.Time.Second
	return DateTime{Date: dt.Date.AddDays(days), Time: t}
}

// MinutesBetween returns the signed whole minutes from dt to other,
// ignoring seconds.
func (dt DateTime) MinutesBetween(other DateTime) int {
	days := dt.Date.DaysBetween(other.Date)
	return days*24*60 + other.Time.MinutesFromMidnight() - dt.Time.MinutesFromMidnight()
}
