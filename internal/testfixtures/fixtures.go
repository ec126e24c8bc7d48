// Package testfixtures provides the deterministic building blocks tests
// share: a controllable clock, a sequential id generator, and canned domain
// fixtures over the in-memory store.
package testfixtures

import (
	"time"

	"github.com/example/autoplanner/internal/application"
	"github.com/example/autoplanner/internal/persistence/memory"
	"github.com/example/autoplanner/internal/recurrence"
	"github.com/example/autoplanner/internal/timeutil"
)

// ReferenceTime is the fixed instant fixtures start from.
func ReferenceTime() time.Time {
	return time.Date(2024, time.January, 15, 8, 0, 0, 0, time.UTC)
}

// ReferenceDate is the calendar date of ReferenceTime.
func ReferenceDate() timeutil.Date {
	return timeutil.NewDate(2024, 1, 15)
}

// NewPlanner builds a planner over a fresh in-memory store with a
// deterministic clock and id sequence.
func NewPlanner() (*application.Planner, *memory.Store, *Clock, *IDGenerator) {
	store := memory.NewStore()
	clock := NewClock(ReferenceTime())
	ids := NewIDGenerator("fixture")
	planner := application.NewPlanner(store,
		application.WithClock(clock.NowFunc()),
		application.WithIDGenerator(ids.NextFunc()),
	)
	return planner, store, clock, ids
}

// DailySeriesInput is a timed daily series starting at the reference date.
func DailySeriesInput(title string, hour, durationMinutes int) application.SeriesInput {
	tod := timeutil.NewTimeOfDay(hour, 0, 0)
	duration := durationMinutes
	return application.SeriesInput{
		Title:           title,
		StartDate:       ReferenceDate(),
		TimeOfDay:       &tod,
		DurationMinutes: &duration,
		Patterns: []application.SeriesPattern{
			{Pattern: recurrence.Pattern{Kind: recurrence.KindDaily}},
		},
	}
}
