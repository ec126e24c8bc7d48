package application

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/autoplanner/internal/persistence"
	"github.com/example/autoplanner/internal/persistence/memory"
	"github.com/example/autoplanner/internal/recurrence"
	"github.com/example/autoplanner/internal/timeutil"
)

func newSeriesService(store persistence.Store) *SeriesService {
	now := time.Date(2024, 1, 15, 8, 0, 0, 0, time.UTC)
	return NewSeriesService(store, sequentialIDs("sid"), func() time.Time { return now }, nil)
}

func timedInput(title string, hour, minutes int) SeriesInput {
	tod := timeutil.NewTimeOfDay(hour, 0, 0)
	duration := minutes
	return SeriesInput{
		Title:           title,
		StartDate:       timeutil.NewDate(2024, 1, 1),
		TimeOfDay:       &tod,
		DurationMinutes: &duration,
		Patterns:        []SeriesPattern{{Pattern: recurrence.Pattern{Kind: recurrence.KindDaily}}},
	}
}

func TestCreateSeriesNormalization(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("defaults to an all-day single occurrence", func(t *testing.T) {
		t.Parallel()
		svc := newSeriesService(memory.NewStore())
		id, err := svc.CreateSeries(ctx, SeriesInput{Title: "move house", StartDate: timeutil.NewDate(2024, 3, 1)})
		require.NoError(t, err)

		series, err := svc.GetSeries(ctx, id)
		require.NoError(t, err)
		assert.Nil(t, series.TimeOfDay)
		assert.Equal(t, DurationAllDay, series.Duration.Kind)
		require.NotNil(t, series.Count)
		assert.Equal(t, 1, *series.Count)
		assert.Empty(t, series.Patterns)
	})

	t.Run("singular pattern becomes the patterns list", func(t *testing.T) {
		t.Parallel()
		svc := newSeriesService(memory.NewStore())
		input := timedInput("run", 7, 30)
		input.Patterns = nil
		input.Pattern = &SeriesPattern{Pattern: recurrence.Pattern{Kind: recurrence.KindEveryNDays, N: 2}}
		id, err := svc.CreateSeries(ctx, input)
		require.NoError(t, err)

		series, err := svc.GetSeries(ctx, id)
		require.NoError(t, err)
		require.Len(t, series.Patterns, 1)
		assert.Equal(t, recurrence.KindEveryNDays, series.Patterns[0].Pattern.Kind)
	})

	t.Run("datetime convenience keeps only the time portion", func(t *testing.T) {
		t.Parallel()
		svc := newSeriesService(memory.NewStore())
		at := timeutil.NewDate(2024, 5, 5).At(timeutil.NewTimeOfDay(18, 30, 0))
		duration := 20
		id, err := svc.CreateSeries(ctx, SeriesInput{
			Title: "water plants", StartDate: timeutil.NewDate(2024, 1, 1),
			Time: &at, DurationMinutes: &duration,
			Patterns: []SeriesPattern{{Pattern: recurrence.Pattern{Kind: recurrence.KindDaily}}},
		})
		require.NoError(t, err)

		series, err := svc.GetSeries(ctx, id)
		require.NoError(t, err)
		require.NotNil(t, series.TimeOfDay)
		assert.Equal(t, timeutil.NewTimeOfDay(18, 30, 0), *series.TimeOfDay)
	})
}

func TestCreateSeriesValidation(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	svc := newSeriesService(memory.NewStore())

	requireValidationError := func(t *testing.T, input SeriesInput, field string) {
		t.Helper()
		_, err := svc.CreateSeries(ctx, input)
		var validation *ValidationError
		require.ErrorAs(t, err, &validation, "expected validation error")
		assert.Contains(t, validation.FieldErrors, field)
	}

	t.Run("empty title", func(t *testing.T) {
		input := timedInput("   ", 9, 30)
		requireValidationError(t, input, "title")
	})

	t.Run("end date before start", func(t *testing.T) {
		input := timedInput("x", 9, 30)
		end := timeutil.NewDate(2023, 12, 1)
		input.EndDate = &end
		requireValidationError(t, input, "endDate")
	})

	t.Run("count and end date together", func(t *testing.T) {
		input := timedInput("x", 9, 30)
		end := timeutil.NewDate(2024, 6, 1)
		count := 3
		input.EndDate = &end
		input.Count = &count
		requireValidationError(t, input, "count")
	})

	t.Run("timed series without duration", func(t *testing.T) {
		tod := timeutil.NewTimeOfDay(9, 0, 0)
		input := SeriesInput{Title: "x", StartDate: timeutil.NewDate(2024, 1, 1), TimeOfDay: &tod}
		requireValidationError(t, input, "duration")
	})

	t.Run("fixed series with day wiggle", func(t *testing.T) {
		input := timedInput("x", 9, 30)
		input.Fixed = true
		input.Wiggle = &Wiggle{DaysBefore: 1}
		requireValidationError(t, input, "wiggle")
	})

	t.Run("wiggle earliest after latest", func(t *testing.T) {
		input := timedInput("x", 9, 30)
		earliest := timeutil.NewTimeOfDay(12, 0, 0)
		latest := timeutil.NewTimeOfDay(9, 0, 0)
		input.Wiggle = &Wiggle{Earliest: &earliest, Latest: &latest}
		requireValidationError(t, input, "wiggle.earliest")
	})

	t.Run("invalid pattern", func(t *testing.T) {
		input := timedInput("x", 9, 30)
		input.Patterns = []SeriesPattern{{Pattern: recurrence.Pattern{Kind: recurrence.KindMonthly, Day: 40}}}
		requireValidationError(t, input, "patterns[0]")
	})

	t.Run("adaptive min not below max", func(t *testing.T) {
		input := timedInput("x", 9, 30)
		input.DurationMinutes = nil
		min, max := 60, 30
		input.Adaptive = &AdaptiveSpec{FallbackMinutes: 30, MinMinutes: &min, MaxMinutes: &max}
		requireValidationError(t, input, "adaptive.min")
	})
}

func TestSeriesRoundTripAllFeatures(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	svc := newSeriesService(memory.NewStore())

	earliest := timeutil.NewTimeOfDay(8, 0, 0)
	latest := timeutil.NewTimeOfDay(19, 0, 0)
	description := "full feature round trip"
	end := timeutil.NewDate(2024, 12, 1)
	tod := timeutil.NewTimeOfDay(9, 15, 0)
	min, max := 20, 90

	input := SeriesInput{
		Title:       "everything",
		Description: &description,
		StartDate:   timeutil.NewDate(2024, 1, 1),
		EndDate:     &end,
		TimeOfDay:   &tod,
		Adaptive:    &AdaptiveSpec{FallbackMinutes: 40, BufferPercent: 10, MinMinutes: &min, MaxMinutes: &max},
		Wiggle:      &Wiggle{DaysBefore: 1, DaysAfter: 2, Earliest: &earliest, Latest: &latest},
		Patterns: []SeriesPattern{
			{
				Pattern: recurrence.Pattern{Kind: recurrence.KindUnion, Children: []recurrence.Pattern{
					{Kind: recurrence.KindWeekdays, Weekdays: []timeutil.Weekday{timeutil.Monday, timeutil.Thursday}},
					{Kind: recurrence.KindLastDayOfMonth},
				}},
				Condition: &Condition{Kind: ConditionWeekday, Days: []timeutil.Weekday{timeutil.Monday, timeutil.Thursday, timeutil.Sunday}},
			},
			{
				Pattern: recurrence.Pattern{
					Kind:    recurrence.KindExcept,
					Base:    &recurrence.Pattern{Kind: recurrence.KindDaily},
					Exclude: &recurrence.Pattern{Kind: recurrence.KindWeekendsOnly},
				},
			},
		},
		Reminders: []Reminder{{MinutesBefore: 15, Label: "soon"}, {MinutesBefore: 60, Label: "an hour"}},
		Cycling:   &Cycling{Items: []string{"A", "B"}, Mode: CyclingRandom, GapLeap: true},
		Tags:      []string{"health", "morning"},
	}

	id, err := svc.CreateSeries(ctx, input)
	require.NoError(t, err)
	loaded, err := svc.GetSeries(ctx, id)
	require.NoError(t, err)

	assert.Equal(t, "everything", loaded.Title)
	require.NotNil(t, loaded.Description)
	assert.Equal(t, description, *loaded.Description)
	assert.Equal(t, input.StartDate, loaded.StartDate)
	require.NotNil(t, loaded.EndDate)
	assert.Equal(t, end, *loaded.EndDate)
	require.NotNil(t, loaded.TimeOfDay)
	assert.Equal(t, tod, *loaded.TimeOfDay)

	require.Equal(t, DurationAdaptive, loaded.Duration.Kind)
	spec := loaded.Duration.Adaptive
	require.NotNil(t, spec)
	assert.Equal(t, 40, spec.FallbackMinutes)
	assert.Equal(t, 10.0, spec.BufferPercent)
	// Unset lastN and windowDays pick up the documented defaults.
	assert.Equal(t, 5, spec.LastN)
	assert.Equal(t, 30, spec.WindowDays)
	assert.Equal(t, 20, *spec.MinMinutes)
	assert.Equal(t, 90, *spec.MaxMinutes)

	require.NotNil(t, loaded.Wiggle)
	assert.Equal(t, *input.Wiggle, *loaded.Wiggle)

	require.Len(t, loaded.Patterns, 2)
	union := loaded.Patterns[0]
	assert.Equal(t, recurrence.KindUnion, union.Pattern.Kind)
	require.Len(t, union.Pattern.Children, 2)
	assert.Equal(t, recurrence.KindWeekdays, union.Pattern.Children[0].Kind)
	assert.Equal(t, []timeutil.Weekday{timeutil.Monday, timeutil.Thursday}, union.Pattern.Children[0].Weekdays)
	require.NotNil(t, union.Condition)
	assert.Equal(t, input.Patterns[0].Condition.Days, union.Condition.Days)

	except := loaded.Patterns[1]
	assert.Equal(t, recurrence.KindExcept, except.Pattern.Kind)
	require.NotNil(t, except.Pattern.Base)
	assert.Equal(t, recurrence.KindDaily, except.Pattern.Base.Kind)
	require.NotNil(t, except.Pattern.Exclude)
	assert.Equal(t, recurrence.KindWeekendsOnly, except.Pattern.Exclude.Kind)

	require.Len(t, loaded.Reminders, 2)
	assert.Equal(t, 15, loaded.Reminders[0].MinutesBefore)
	require.NotNil(t, loaded.Cycling)
	assert.Equal(t, []string{"A", "B"}, loaded.Cycling.Items)
	assert.Equal(t, CyclingRandom, loaded.Cycling.Mode)
	assert.True(t, loaded.Cycling.GapLeap)
	assert.ElementsMatch(t, []string{"health", "morning"}, loaded.Tags)
}

func TestUpdateSeriesLocking(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	svc := newSeriesService(memory.NewStore())

	id, err := svc.CreateSeries(ctx, timedInput("guarded", 9, 30))
	require.NoError(t, err)
	require.NoError(t, svc.LockSeries(ctx, id))

	t.Run("locked series rejects field changes", func(t *testing.T) {
		title := "renamed"
		err := svc.UpdateSeries(ctx, id, SeriesUpdate{Title: &title})
		assert.ErrorIs(t, err, ErrLockedSeries)
	})

	t.Run("locked series rejects unlocking alongside changes", func(t *testing.T) {
		title := "renamed"
		unlocked := false
		err := svc.UpdateSeries(ctx, id, SeriesUpdate{Title: &title, Locked: &unlocked})
		assert.ErrorIs(t, err, ErrLockedSeries)
	})

	t.Run("locked series rejects delete", func(t *testing.T) {
		assert.ErrorIs(t, svc.DeleteSeries(ctx, id), ErrLockedSeries)
	})

	t.Run("unlock alone is accepted", func(t *testing.T) {
		unlocked := false
		require.NoError(t, svc.UpdateSeries(ctx, id, SeriesUpdate{Locked: &unlocked}))
		series, err := svc.GetSeries(ctx, id)
		require.NoError(t, err)
		assert.False(t, series.Locked)
	})
}

func TestUpdateSeriesReplacesCollections(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	svc := newSeriesService(memory.NewStore())

	id, err := svc.CreateSeries(ctx, timedInput("mutable", 9, 30))
	require.NoError(t, err)

	update := SeriesUpdate{
		Patterns: []SeriesPattern{{Pattern: recurrence.Pattern{Kind: recurrence.KindWeekdaysOnly}}},
		Tags:     []string{"weekdays"},
	}
	require.NoError(t, svc.UpdateSeries(ctx, id, update))

	series, err := svc.GetSeries(ctx, id)
	require.NoError(t, err)
	require.Len(t, series.Patterns, 1)
	assert.Equal(t, recurrence.KindWeekdaysOnly, series.Patterns[0].Pattern.Kind)
	assert.Equal(t, []string{"weekdays"}, series.Tags)
}

func TestDeleteSeriesGuards(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("completions block deletion", func(t *testing.T) {
		t.Parallel()
		store := memory.NewStore()
		svc := newSeriesService(store)
		id, err := svc.CreateSeries(ctx, timedInput("done once", 9, 30))
		require.NoError(t, err)
		require.NoError(t, store.CreateCompletion(ctx, persistence.Completion{
			ID: "c1", SeriesID: id,
			InstanceDate: timeutil.NewDate(2024, 1, 2),
			ActualDate:   timeutil.NewDate(2024, 1, 2),
		}))

		assert.ErrorIs(t, svc.DeleteSeries(ctx, id), ErrCompletionsExist)
		_, err = svc.GetSeries(ctx, id)
		assert.NoError(t, err)
	})

	t.Run("parent links block deletion", func(t *testing.T) {
		t.Parallel()
		store := memory.NewStore()
		svc := newSeriesService(store)
		parent, err := svc.CreateSeries(ctx, timedInput("parent", 9, 30))
		require.NoError(t, err)
		child, err := svc.CreateSeries(ctx, timedInput("child", 10, 30))
		require.NoError(t, err)
		require.NoError(t, store.CreateLink(ctx, persistence.Link{ID: "l1", ParentSeriesID: parent, ChildSeriesID: child}))

		assert.ErrorIs(t, svc.DeleteSeries(ctx, parent), ErrLinkedChildrenExist)
		require.NoError(t, svc.DeleteSeries(ctx, child))
	})

	t.Run("clean delete leaves no rows behind", func(t *testing.T) {
		t.Parallel()
		store := memory.NewStore()
		svc := newSeriesService(store)
		input := timedInput("clean", 9, 30)
		input.Reminders = []Reminder{{MinutesBefore: 5}}
		input.Tags = []string{"temp"}
		id, err := svc.CreateSeries(ctx, input)
		require.NoError(t, err)

		require.NoError(t, svc.DeleteSeries(ctx, id))
		_, err = svc.GetSeries(ctx, id)
		assert.ErrorIs(t, err, ErrNotFound)
		patterns, err := store.ListPatternsForSeries(ctx, id)
		require.NoError(t, err)
		assert.Empty(t, patterns)
		reminders, err := store.ListRemindersForSeries(ctx, id)
		require.NoError(t, err)
		assert.Empty(t, reminders)
	})
}

func TestSplitSeries(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	newInput := func() SeriesInput {
		input := timedInput("long runner", 9, 45)
		input.StartDate = timeutil.NewDate(2024, 1, 1)
		input.Reminders = []Reminder{{MinutesBefore: 10, Label: "r"}}
		input.Cycling = &Cycling{Items: []string{"A", "B", "C"}, Mode: CyclingSequential, GapLeap: true, CurrentIndex: 1}
		input.Tags = []string{"routine"}
		return input
	}

	t.Run("clones at the split date", func(t *testing.T) {
		t.Parallel()
		svc := newSeriesService(memory.NewStore())
		id, err := svc.CreateSeries(ctx, newInput())
		require.NoError(t, err)

		splitDate := timeutil.NewDate(2024, 2, 1)
		newID, err := svc.SplitSeries(ctx, id, splitDate, SplitOverrides{})
		require.NoError(t, err)
		require.NotEqual(t, id, newID)

		original, err := svc.GetSeries(ctx, id)
		require.NoError(t, err)
		require.NotNil(t, original.EndDate)
		assert.Equal(t, splitDate, *original.EndDate)
		assert.Nil(t, original.Count)

		clone, err := svc.GetSeries(ctx, newID)
		require.NoError(t, err)
		assert.Equal(t, splitDate, clone.StartDate)
		assert.Nil(t, clone.EndDate)
		assert.Equal(t, original.Title, clone.Title)
		require.Len(t, clone.Patterns, 1)
		assert.Equal(t, recurrence.KindDaily, clone.Patterns[0].Pattern.Kind)
		require.Len(t, clone.Reminders, 1)
		require.NotNil(t, clone.Cycling)
		assert.Equal(t, 1, clone.Cycling.CurrentIndex)
		assert.Equal(t, []string{"routine"}, clone.Tags)
	})

	t.Run("applies overrides to the clone", func(t *testing.T) {
		t.Parallel()
		svc := newSeriesService(memory.NewStore())
		id, err := svc.CreateSeries(ctx, newInput())
		require.NoError(t, err)

		title := "second act"
		newID, err := svc.SplitSeries(ctx, id, timeutil.NewDate(2024, 2, 1), SplitOverrides{Title: &title})
		require.NoError(t, err)
		clone, err := svc.GetSeries(ctx, newID)
		require.NoError(t, err)
		assert.Equal(t, "second act", clone.Title)
	})

	t.Run("locked source rejects split", func(t *testing.T) {
		t.Parallel()
		svc := newSeriesService(memory.NewStore())
		id, err := svc.CreateSeries(ctx, newInput())
		require.NoError(t, err)
		require.NoError(t, svc.LockSeries(ctx, id))

		_, err = svc.SplitSeries(ctx, id, timeutil.NewDate(2024, 2, 1), SplitOverrides{})
		assert.ErrorIs(t, err, ErrLockedSeries)
	})

	t.Run("split date must fall inside the series", func(t *testing.T) {
		t.Parallel()
		svc := newSeriesService(memory.NewStore())
		id, err := svc.CreateSeries(ctx, newInput())
		require.NoError(t, err)

		_, err = svc.SplitSeries(ctx, id, timeutil.NewDate(2024, 1, 1), SplitOverrides{})
		var validation *ValidationError
		assert.ErrorAs(t, err, &validation)
	})
}
