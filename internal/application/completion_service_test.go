package application

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/autoplanner/internal/persistence/memory"
	"github.com/example/autoplanner/internal/recurrence"
	"github.com/example/autoplanner/internal/timeutil"
)

func completionFixture(t *testing.T) (*CompletionService, *SeriesService, *memory.Store) {
	t.Helper()
	store := memory.NewStore()
	now := time.Date(2024, 1, 15, 8, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	return NewCompletionService(store, sequentialIDs("comp"), clock, nil),
		NewSeriesService(store, sequentialIDs("series"), clock, nil),
		store
}

func TestLogCompletion(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("records actual date from start time", func(t *testing.T) {
		t.Parallel()
		completions, series, store := completionFixture(t)
		id, err := series.CreateSeries(ctx, timedInput("daily", 9, 30))
		require.NoError(t, err)

		instanceDate := timeutil.NewDate(2024, 1, 10)
		start := timeutil.NewDate(2024, 1, 11).At(timeutil.NewTimeOfDay(9, 5, 0))
		end := start.AddMinutes(25)
		require.NoError(t, completions.LogCompletion(ctx, id, instanceDate, CompletionTimes{Start: &start, End: &end}))

		logged, err := store.GetCompletion(ctx, id, instanceDate)
		require.NoError(t, err)
		assert.Equal(t, timeutil.NewDate(2024, 1, 11), logged.ActualDate)
		require.NotNil(t, logged.StartTime)
	})

	t.Run("rejects duplicates", func(t *testing.T) {
		t.Parallel()
		completions, series, _ := completionFixture(t)
		id, err := series.CreateSeries(ctx, timedInput("daily", 9, 30))
		require.NoError(t, err)

		date := timeutil.NewDate(2024, 1, 10)
		require.NoError(t, completions.LogCompletion(ctx, id, date, CompletionTimes{}))
		assert.ErrorIs(t, completions.LogCompletion(ctx, id, date, CompletionTimes{}), ErrDuplicateCompletion)
	})

	t.Run("rejects non-generated dates", func(t *testing.T) {
		t.Parallel()
		completions, series, _ := completionFixture(t)
		input := timedInput("sparse", 9, 30)
		input.Patterns = []SeriesPattern{{Pattern: recurrence.Pattern{Kind: recurrence.KindEveryNDays, N: 7}}}
		id, err := series.CreateSeries(ctx, input)
		require.NoError(t, err)

		// Start 2024-01-01, stride 7: the 5th is not an occurrence.
		err = completions.LogCompletion(ctx, id, timeutil.NewDate(2024, 1, 5), CompletionTimes{})
		assert.ErrorIs(t, err, ErrNonExistentInstance)
	})

	t.Run("rejects cancelled instances", func(t *testing.T) {
		t.Parallel()
		completions, series, _ := completionFixture(t)
		id, err := series.CreateSeries(ctx, timedInput("daily", 9, 30))
		require.NoError(t, err)

		date := timeutil.NewDate(2024, 1, 10)
		require.NoError(t, completions.CancelInstance(ctx, id, date))
		assert.ErrorIs(t, completions.LogCompletion(ctx, id, date, CompletionTimes{}), ErrCancelledInstance)
	})

	t.Run("rejects inverted time window", func(t *testing.T) {
		t.Parallel()
		completions, series, _ := completionFixture(t)
		id, err := series.CreateSeries(ctx, timedInput("daily", 9, 30))
		require.NoError(t, err)

		start := timeutil.NewDate(2024, 1, 10).At(timeutil.NewTimeOfDay(10, 0, 0))
		end := timeutil.NewDate(2024, 1, 10).At(timeutil.NewTimeOfDay(9, 0, 0))
		err = completions.LogCompletion(ctx, id, timeutil.NewDate(2024, 1, 10), CompletionTimes{Start: &start, End: &end})
		var validation *ValidationError
		assert.ErrorAs(t, err, &validation)
	})

	t.Run("missing series", func(t *testing.T) {
		t.Parallel()
		completions, _, _ := completionFixture(t)
		err := completions.LogCompletion(ctx, "ghost", timeutil.NewDate(2024, 1, 10), CompletionTimes{})
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestCancelInstance(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("double cancel fails", func(t *testing.T) {
		t.Parallel()
		completions, series, _ := completionFixture(t)
		id, err := series.CreateSeries(ctx, timedInput("daily", 9, 30))
		require.NoError(t, err)

		date := timeutil.NewDate(2024, 1, 10)
		require.NoError(t, completions.CancelInstance(ctx, id, date))
		assert.ErrorIs(t, completions.CancelInstance(ctx, id, date), ErrAlreadyCancelled)
	})

	t.Run("locked series rejects cancel", func(t *testing.T) {
		t.Parallel()
		completions, series, _ := completionFixture(t)
		id, err := series.CreateSeries(ctx, timedInput("daily", 9, 30))
		require.NoError(t, err)
		require.NoError(t, series.LockSeries(ctx, id))
		assert.ErrorIs(t, completions.CancelInstance(ctx, id, timeutil.NewDate(2024, 1, 10)), ErrLockedSeries)
	})

	t.Run("non-generated date rejects cancel", func(t *testing.T) {
		t.Parallel()
		completions, series, _ := completionFixture(t)
		input := timedInput("weekly", 9, 30)
		input.Patterns = []SeriesPattern{{Pattern: recurrence.Pattern{
			Kind: recurrence.KindWeekdays, Weekdays: []timeutil.Weekday{timeutil.Monday},
		}}}
		id, err := series.CreateSeries(ctx, input)
		require.NoError(t, err)

		// 2024-01-10 is a Wednesday.
		err = completions.CancelInstance(ctx, id, timeutil.NewDate(2024, 1, 10))
		assert.ErrorIs(t, err, ErrNonExistentInstance)
	})
}

func TestRescheduleInstance(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("upsert replaces a prior cancel", func(t *testing.T) {
		t.Parallel()
		completions, series, store := completionFixture(t)
		id, err := series.CreateSeries(ctx, timedInput("daily", 9, 30))
		require.NoError(t, err)

		date := timeutil.NewDate(2024, 1, 10)
		require.NoError(t, completions.CancelInstance(ctx, id, date))
		require.NoError(t, completions.RescheduleInstance(ctx, id, date,
			timeutil.NewDate(2024, 1, 12).At(timeutil.NewTimeOfDay(15, 0, 0))))

		e, err := store.GetInstanceException(ctx, id, date)
		require.NoError(t, err)
		assert.Equal(t, "rescheduled", e.Type)
		require.NotNil(t, e.NewDate)
		assert.Equal(t, timeutil.NewDate(2024, 1, 12), *e.NewDate)
		require.NotNil(t, e.NewTime)
		assert.Equal(t, timeutil.NewTimeOfDay(15, 0, 0), *e.NewTime)
	})

	t.Run("locked series rejects reschedule", func(t *testing.T) {
		t.Parallel()
		completions, series, _ := completionFixture(t)
		id, err := series.CreateSeries(ctx, timedInput("daily", 9, 30))
		require.NoError(t, err)
		require.NoError(t, series.LockSeries(ctx, id))

		err = completions.RescheduleInstance(ctx, id, timeutil.NewDate(2024, 1, 10),
			timeutil.NewDate(2024, 1, 11).At(timeutil.NewTimeOfDay(9, 0, 0)))
		assert.ErrorIs(t, err, ErrLockedSeries)
	})
}
