package application

import (
	"context"
	"errors"
	"sort"

	"github.com/example/autoplanner/internal/persistence"
	"github.com/example/autoplanner/internal/recurrence"
	"github.com/example/autoplanner/internal/timeutil"
)

// expandedDate is one pattern-level occurrence before exceptions apply.
// Number is the 0-based position in the series' sorted expanded date list,
// counted from the series start so cycling selection does not depend on the
// queried window.
type expandedDate struct {
	Date   timeutil.Date
	Number int
}

// expandSeries produces the series' occurrence dates inside the window.
// Dates are generated from the series start so that count bounds and
// instance numbers are stable, then clipped to the window. Condition-gated
// patterns consult current store state per candidate date.
func expandSeries(ctx context.Context, store persistence.Store, s Series, window DateRange) ([]expandedDate, error) {
	to := window.To
	if s.EndDate != nil && s.EndDate.Before(to) {
		to = *s.EndDate
	}
	if !s.StartDate.Before(to) {
		return nil, nil
	}

	// Expand each pattern over the full [start, to) range, gate by its
	// condition, then merge.
	seen := make(map[timeutil.Date]struct{})
	var dates []timeutil.Date
	for _, sp := range s.Patterns {
		expanded, err := recurrence.Expand(sp.Pattern, s.StartDate, s.StartDate, to)
		if err != nil {
			return nil, err
		}
		for _, d := range expanded {
			if _, dup := seen[d]; dup {
				continue
			}
			if sp.Condition != nil {
				ok, err := evaluateCondition(ctx, store, sp.Condition, s.ID, d)
				if err != nil {
					return nil, err
				}
				if !ok {
					continue
				}
			}
			seen[d] = struct{}{}
			dates = append(dates, d)
		}
	}
	if len(s.Patterns) == 0 {
		// A pattern-less series occurs once, on its start date.
		dates = append(dates, s.StartDate)
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })

	if s.Count != nil && len(dates) > *s.Count {
		dates = dates[:*s.Count]
	}

	var out []expandedDate
	for i, d := range dates {
		if d.Before(window.From) || !d.Before(window.To) {
			continue
		}
		out = append(out, expandedDate{Date: d, Number: i})
	}
	return out, nil
}

// buildInstances turns expanded dates into concrete instances: exceptions
// are applied, cycling titles resolved, and durations computed.
func buildInstances(ctx context.Context, store persistence.Store, s Series, window DateRange) ([]Instance, error) {
	dates, err := expandSeries(ctx, store, s, window)
	if err != nil {
		return nil, err
	}
	if len(dates) == 0 {
		return nil, nil
	}

	exceptionRows, err := store.ListInstanceExceptionsForSeries(ctx, s.ID)
	if err != nil {
		return nil, err
	}
	exceptions := make(map[timeutil.Date]persistence.InstanceException, len(exceptionRows))
	for _, e := range exceptionRows {
		exceptions[e.OriginalDate] = e
	}

	var instances []Instance
	for _, ed := range dates {
		date := ed.Date
		timeOfDay := s.TimeOfDay

		if e, ok := exceptions[date]; ok {
			if e.Type == exceptionCancelled {
				continue
			}
			if e.NewDate != nil {
				date = *e.NewDate
			}
			if e.NewTime != nil {
				t := *e.NewTime
				timeOfDay = &t
			}
		}

		inst := Instance{
			SeriesID:       s.ID,
			Title:          resolveInstanceTitle(s, ed.Number),
			Date:           date,
			OriginalDate:   ed.Date,
			AllDay:         timeOfDay == nil,
			Fixed:          s.Fixed,
			InstanceNumber: ed.Number,
		}
		if timeOfDay != nil {
			minutes, err := instanceDurationMinutes(ctx, store, s, date)
			if err != nil {
				return nil, err
			}
			start := date.At(*timeOfDay)
			end := start.AddMinutes(minutes)
			inst.Start = &start
			inst.End = &end
			inst.DurationMinutes = minutes
		}
		instances = append(instances, inst)
	}
	return instances, nil
}

// instanceDurationMinutes resolves the effective duration of one instance.
func instanceDurationMinutes(ctx context.Context, store persistence.Store, s Series, date timeutil.Date) (int, error) {
	switch s.Duration.Kind {
	case DurationFixed:
		return s.Duration.Minutes, nil
	case DurationAdaptive:
		return effectiveAdaptiveDuration(ctx, store, s.ID, *s.Duration.Adaptive, date)
	default:
		return 0, nil
	}
}

// instanceExistsOn reports whether the series generates an occurrence on
// the given original date, before exceptions are applied.
func instanceExistsOn(ctx context.Context, store persistence.Store, s Series, date timeutil.Date) (bool, error) {
	dates, err := expandSeries(ctx, store, s, DateRange{From: date, To: date.AddDays(1)})
	if err != nil {
		if errors.Is(err, recurrence.ErrInvalidWindow) {
			return false, nil
		}
		return false, err
	}
	return len(dates) > 0, nil
}

const (
	exceptionCancelled   = "cancelled"
	exceptionRescheduled = "rescheduled"
)
