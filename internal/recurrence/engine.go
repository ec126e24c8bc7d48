package recurrence

import (
	"sort"

	"github.com/example/autoplanner/internal/timeutil"
)

// Expand produces the dates generated by the pattern inside the half-open
// window [from, to), seeded by the series start date. The result is strictly
// increasing, deduplicated, and every element is on or after the seed.
func Expand(p Pattern, seed, from, to timeutil.Date) ([]timeutil.Date, error) {
	if from.After(to) {
		return nil, ErrInvalidWindow
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	dates := expand(p, seed, from, to)
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })
	return dedupe(dates), nil
}

// expand assumes the pattern is valid and the window is ordered.
func expand(p Pattern, seed, from, to timeutil.Date) []timeutil.Date {
	// The effective lower bound: inside the window and never before the seed.
	lower := from
	if lower.Before(seed) {
		lower = seed
	}
	if !lower.Before(to) {
		return nil
	}

	switch p.Kind {
	case KindDaily:
		return expandStride(seed, lower, to, 1)
	case KindEveryNDays:
		return expandStride(seed, lower, to, p.N)
	case KindWeekly:
		return expandWeekly(p, seed, lower, to, 1)
	case KindEveryNWeeks:
		return expandWeekly(p, seed, lower, to, p.N)
	case KindMonthly:
		return expandMonthly(lower, to, func(year, month int) []timeutil.Date {
			if p.Day > timeutil.DaysInMonth(year, month) {
				return nil
			}
			return []timeutil.Date{timeutil.NewDate(year, month, p.Day)}
		})
	case KindLastDayOfMonth:
		return expandMonthly(lower, to, func(year, month int) []timeutil.Date {
			return []timeutil.Date{timeutil.NewDate(year, month, timeutil.DaysInMonth(year, month))}
		})
	case KindYearly:
		return expandYearly(p, lower, to)
	case KindWeekdays:
		return expandWeekdaySet(lower, to, weekdaySet(p.Weekdays))
	case KindWeekdaysOnly:
		return expandWeekdaySet(lower, to, weekdaySet([]timeutil.Weekday{
			timeutil.Monday, timeutil.Tuesday, timeutil.Wednesday, timeutil.Thursday, timeutil.Friday,
		}))
	case KindWeekendsOnly:
		return expandWeekdaySet(lower, to, weekdaySet([]timeutil.Weekday{timeutil.Saturday, timeutil.Sunday}))
	case KindNthWeekdayOfMonth:
		return expandMonthly(lower, to, func(year, month int) []timeutil.Date {
			if d, ok := nthWeekdayOfMonth(year, month, p.N, p.Weekday); ok {
				return []timeutil.Date{d}
			}
			return nil
		})
	case KindLastWeekdayOfMonth:
		return expandMonthly(lower, to, func(year, month int) []timeutil.Date {
			return []timeutil.Date{lastWeekdayOfMonth(year, month, p.Weekday)}
		})
	case KindNthToLastWeekdayOfMonth:
		return expandMonthly(lower, to, func(year, month int) []timeutil.Date {
			if d, ok := nthToLastWeekdayOfMonth(year, month, p.N, p.Weekday); ok {
				return []timeutil.Date{d}
			}
			return nil
		})
	case KindUnion:
		var dates []timeutil.Date
		for _, child := range p.Children {
			dates = append(dates, expand(child, seed, from, to)...)
		}
		return dates
	case KindExcept:
		base := expand(*p.Base, seed, from, to)
		excluded := make(map[timeutil.Date]struct{})
		for _, d := range expand(*p.Exclude, seed, from, to) {
			excluded[d] = struct{}{}
		}
		kept := base[:0]
		for _, d := range base {
			if _, ok := excluded[d]; !ok {
				kept = append(kept, d)
			}
		}
		return kept
	}
	return nil
}

// expandStride walks seed, seed+n, seed+2n, ... clipped to [lower, to).
func expandStride(seed, lower, to timeutil.Date, n int) []timeutil.Date {
	current := seed
	if seed.Before(lower) {
		gap := seed.DaysBetween(lower)
		steps := gap / n
		if gap%n != 0 {
			steps++
		}
		current = seed.AddDays(steps * n)
	}
	var dates []timeutil.Date
	for current.Before(to) {
		dates = append(dates, current)
		current = current.AddDays(n)
	}
	return dates
}

// expandWeekly emits the selected weekdays of every strideWeeks-th week,
// weeks counted from the Monday-aligned week containing the seed. An empty
// weekday set defaults to the seed's weekday.
func expandWeekly(p Pattern, seed, lower, to timeutil.Date, strideWeeks int) []timeutil.Date {
	days := p.Weekdays
	if len(days) == 0 {
		days = []timeutil.Weekday{seed.Weekday()}
	}
	set := weekdaySet(days)

	seedWeek := startOfWeek(seed)
	var dates []timeutil.Date
	for d := lower; d.Before(to); d = d.AddDays(1) {
		if _, ok := set[d.Weekday()]; !ok {
			continue
		}
		weeks := seedWeek.DaysBetween(startOfWeek(d)) / 7
		if weeks%strideWeeks != 0 {
			continue
		}
		dates = append(dates, d)
	}
	return dates
}

func expandWeekdaySet(lower, to timeutil.Date, set map[timeutil.Weekday]struct{}) []timeutil.Date {
	var dates []timeutil.Date
	for d := lower; d.Before(to); d = d.AddDays(1) {
		if _, ok := set[d.Weekday()]; ok {
			dates = append(dates, d)
		}
	}
	return dates
}

// expandMonthly visits every month touched by [lower, to) and keeps the
// per-month candidates that fall inside the bounds.
func expandMonthly(lower, to timeutil.Date, generate func(year, month int) []timeutil.Date) []timeutil.Date {
	var dates []timeutil.Date
	year, month := lower.Year, lower.Month
	for {
		first := timeutil.NewDate(year, month, 1)
		if !first.Before(to) {
			break
		}
		for _, d := range generate(year, month) {
			if !d.Before(lower) && d.Before(to) {
				dates = append(dates, d)
			}
		}
		month++
		if month > 12 {
			month = 1
			year++
		}
	}
	return dates
}

func expandYearly(p Pattern, lower, to timeutil.Date) []timeutil.Date {
	var dates []timeutil.Date
	for year := lower.Year; year <= to.Year; year++ {
		if p.Day > timeutil.DaysInMonth(year, p.Month) {
			continue
		}
		d := timeutil.NewDate(year, p.Month, p.Day)
		if !d.Before(lower) && d.Before(to) {
			dates = append(dates, d)
		}
	}
	return dates
}

func weekdaySet(days []timeutil.Weekday) map[timeutil.Weekday]struct{} {
	set := make(map[timeutil.Weekday]struct{}, len(days))
	for _, d := range days {
		set[d] = struct{}{}
	}
	return set
}

// startOfWeek returns the Monday of the week containing d.
func startOfWeek(d timeutil.Date) timeutil.Date {
	return d.AddDays(-(int(d.Weekday()) - 1))
}

// nthWeekdayOfMonth finds the n-th occurrence of the weekday inside the
// month, reporting false when the month has fewer than n.
func nthWeekdayOfMonth(year, month, n int, w timeutil.Weekday) (timeutil.Date, bool) {
	first := timeutil.NewDate(year, month, 1)
	offset := (int(w) - int(first.Weekday()) + 7) % 7
	day := 1 + offset + (n-1)*7
	if day > timeutil.DaysInMonth(year, month) {
		return timeutil.Date{}, false
	}
	return timeutil.NewDate(year, month, day), true
}

// lastWeekdayOfMonth finds the final occurrence of the weekday inside the
// month. Every month contains every weekday at least four times, so this
// always succeeds.
func lastWeekdayOfMonth(year, month int, w timeutil.Weekday) timeutil.Date {
	last := timeutil.NewDate(year, month, timeutil.DaysInMonth(year, month))
	offset := (int(last.Weekday()) - int(w) + 7) % 7
	return last.AddDays(-offset)
}

// nthToLastWeekdayOfMonth counts occurrences backwards from the end of the
// month; n=1 is the last occurrence.
func nthToLastWeekdayOfMonth(year, month, n int, w timeutil.Weekday) (timeutil.Date, bool) {
	d := lastWeekdayOfMonth(year, month, w).AddDays(-(n - 1) * 7)
	if d.Month != month {
		return timeutil.Date{}, false
	}
	return d, true
}

func dedupe(dates []timeutil.Date) []timeutil.Date {
	if len(dates) == 0 {
		return dates
	}
	out := dates[:1]
	for _, d := range dates[1:] {
		if d != out[len(out)-1] {
			out = append(out, d)
		}
	}
	return out
}
