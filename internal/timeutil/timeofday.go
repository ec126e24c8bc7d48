package timeutil

import (
	"fmt"
	"strconv"
	"strings"
)

// TimeOfDay is a wall-clock time with minute-or-second precision and no
// associated day.
type TimeOfDay struct {
	Hour   int
	Minute int
	Second int
}

// NewTimeOfDay constructs a time-of-day from its components.
func NewTimeOfDay(hour, minute, second int) TimeOfDay {
	return TimeOfDay{Hour: hour, Minute: minute, Second: second}
}

// ParseTimeOfDay parses HH:MM or HH:MM:SS.
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 2 && len(parts) != 3 {
		return TimeOfDay{}, fmt.Errorf("%w: invalid time of day %q", ErrParse, s)
	}
	nums := make([]int, len(parts))
	for i, p := range parts {
		if len(p) != 2 {
			return TimeOfDay{}, fmt.Errorf("%w: invalid time of day %q", ErrParse, s)
		}
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 {
			return TimeOfDay{}, fmt.Errorf("%w: invalid time of day %q", ErrParse, s)
		}
		nums[i] = n
	}
	t := TimeOfDay{Hour: nums[0], Minute: nums[1]}
	if len(nums) == 3 {
		t.Second = nums[2]
	}
	if t.Hour > 23 || t.Minute > 59 || t.Second > 59 {
		return TimeOfDay{}, fmt.Errorf("%w: invalid time of day %q", ErrParse, s)
	}
	return t, nil
}

// String formats the time as HH:MM:SS.
func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d:%02d", t.Hour, t.Minute, t.Second)
}

// MinutesFromMidnight returns the whole minutes elapsed since 00:00,
// discarding seconds.
func (t TimeOfDay) MinutesFromMidnight() int {
	return t.Hour*60 + t.Minute
}

// FromMinutes builds a time-of-day from minutes since midnight. The input
// must lie within a single day.
func FromMinutes(minutes int) TimeOfDay {
	return TimeOfDay{Hour: minutes / 60, Minute: minutes % 60}
}

// Compare returns -1, 0, or +1 ordering t against other.
func (t TimeOfDay) Compare(other TimeOfDay) int {
	switch {
	case t.Hour != other.Hour:
		return sign(t.Hour - other.Hour)
	case t.Minute != other.Minute:
		return sign(t.Minute - other.Minute)
	case t.Second != other.Second:
		return sign(t.Second - other.Second)
	}
	return 0
}

// Before reports whether t is strictly earlier than other.
func (t TimeOfDay) Before(other TimeOfDay) bool { return t.Compare(other) < 0 }

// After reports whether t is strictly later than other.
func (t TimeOfDay) After(other TimeOfDay) bool { return t.Compare(other) > 0 }
