package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/autoplanner/internal/persistence"
	"github.com/example/autoplanner/internal/timeutil"
)

func seedSeries(t *testing.T, store *Store, id string) {
	t.Helper()
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	err := store.CreateSeries(context.Background(), persistence.Series{
		ID:        id,
		Title:     "series " + id,
		StartDate: timeutil.NewDate(2024, 1, 1),
		AllDay:    true,
		CreatedAt: now,
		UpdatedAt: now,
	})
	require.NoError(t, err)
}

// seedFullSeries attaches one row of every owned child entity.
func seedFullSeries(t *testing.T, store *Store, id string) {
	t.Helper()
	ctx := context.Background()
	seedSeries(t, store, id)

	require.NoError(t, store.CreatePattern(ctx, persistence.Pattern{ID: id + "-p1", SeriesID: id, Kind: "daily"}))
	require.NoError(t, store.CreatePatternWeekday(ctx, persistence.PatternWeekday{PatternID: id + "-p1", Weekday: 1}))
	require.NoError(t, store.CreateCondition(ctx, persistence.Condition{ID: id + "-c1", SeriesID: id, Kind: "weekday"}))
	require.NoError(t, store.UpsertAdaptiveDuration(ctx, persistence.AdaptiveDuration{SeriesID: id, FallbackMinutes: 30, LastN: 5, WindowDays: 30}))
	require.NoError(t, store.UpsertCyclingConfig(ctx, persistence.CyclingConfig{SeriesID: id, Mode: "sequential"}))
	require.NoError(t, store.ReplaceCyclingItems(ctx, id, []persistence.CyclingItem{{SeriesID: id, Position: 0, Title: "A"}}))
	require.NoError(t, store.UpsertInstanceException(ctx, persistence.InstanceException{
		ID: id + "-e1", SeriesID: id, OriginalDate: timeutil.NewDate(2024, 1, 2), Type: "cancelled",
	}))
	require.NoError(t, store.CreateReminder(ctx, persistence.Reminder{ID: id + "-r1", SeriesID: id, MinutesBefore: 10}))
	require.NoError(t, store.CreateReminderAck(ctx, persistence.ReminderAck{ReminderID: id + "-r1", InstanceDate: timeutil.NewDate(2024, 1, 2)}))
	require.NoError(t, store.CreateTag(ctx, persistence.Tag{ID: id + "-t1", Name: id + "-tag"}))
	require.NoError(t, store.AddSeriesTag(ctx, persistence.SeriesTag{SeriesID: id, TagID: id + "-t1"}))
}

func TestDeleteSeriesCascades(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := NewStore()

	seedFullSeries(t, store, "s1")
	seedSeries(t, store, "parent")
	require.NoError(t, store.CreateLink(ctx, persistence.Link{
		ID: "l1", ParentSeriesID: "parent", ChildSeriesID: "s1", TargetDistanceMinutes: 15,
	}))

	require.NoError(t, store.DeleteSeries(ctx, "s1"))

	patterns, err := store.ListPatternsForSeries(ctx, "s1")
	require.NoError(t, err)
	assert.Empty(t, patterns)
	weekdays, err := store.ListPatternWeekdays(ctx, "s1-p1")
	require.NoError(t, err)
	assert.Empty(t, weekdays)
	conditions, err := store.ListConditionsForSeries(ctx, "s1")
	require.NoError(t, err)
	assert.Empty(t, conditions)
	_, err = store.GetAdaptiveDuration(ctx, "s1")
	assert.ErrorIs(t, err, persistence.ErrNotFound)
	_, err = store.GetCyclingConfig(ctx, "s1")
	assert.ErrorIs(t, err, persistence.ErrNotFound)
	items, err := store.ListCyclingItems(ctx, "s1")
	require.NoError(t, err)
	assert.Empty(t, items)
	exceptions, err := store.ListInstanceExceptionsForSeries(ctx, "s1")
	require.NoError(t, err)
	assert.Empty(t, exceptions)
	reminders, err := store.ListRemindersForSeries(ctx, "s1")
	require.NoError(t, err)
	assert.Empty(t, reminders)
	acked, err := store.HasReminderAck(ctx, "s1-r1", timeutil.NewDate(2024, 1, 2))
	require.NoError(t, err)
	assert.False(t, acked)
	_, err = store.GetLinkByChild(ctx, "s1")
	assert.ErrorIs(t, err, persistence.ErrNotFound)

	// The tag itself survives; only the association goes.
	tag, err := store.GetTag(ctx, "s1-t1")
	require.NoError(t, err)
	assert.Equal(t, "s1-tag", tag.Name)
}

func TestDeleteSeriesRestricts(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("completion blocks delete and leaves store unchanged", func(t *testing.T) {
		t.Parallel()
		store := NewStore()
		seedFullSeries(t, store, "s1")
		require.NoError(t, store.CreateCompletion(ctx, persistence.Completion{
			ID: "comp1", SeriesID: "s1",
			InstanceDate: timeutil.NewDate(2024, 1, 3),
			ActualDate:   timeutil.NewDate(2024, 1, 3),
		}))

		err := store.DeleteSeries(ctx, "s1")
		assert.ErrorIs(t, err, persistence.ErrForeignKeyViolation)

		// Every owned row is still there.
		patterns, err := store.ListPatternsForSeries(ctx, "s1")
		require.NoError(t, err)
		assert.Len(t, patterns, 1)
		reminders, err := store.ListRemindersForSeries(ctx, "s1")
		require.NoError(t, err)
		assert.Len(t, reminders, 1)
	})

	t.Run("parent link blocks delete", func(t *testing.T) {
		t.Parallel()
		store := NewStore()
		seedSeries(t, store, "parent")
		seedSeries(t, store, "child")
		require.NoError(t, store.CreateLink(ctx, persistence.Link{ID: "l1", ParentSeriesID: "parent", ChildSeriesID: "child"}))

		assert.ErrorIs(t, store.DeleteSeries(ctx, "parent"), persistence.ErrForeignKeyViolation)
		// Deleting the child side cascades the link instead.
		require.NoError(t, store.DeleteSeries(ctx, "child"))
		_, err := store.GetLink(ctx, "l1")
		assert.ErrorIs(t, err, persistence.ErrNotFound)
	})
}

func TestUniqueConstraints(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := NewStore()
	seedSeries(t, store, "s1")
	seedSeries(t, store, "s2")
	seedSeries(t, store, "s3")

	t.Run("duplicate completion key", func(t *testing.T) {
		completion := persistence.Completion{
			ID: "c1", SeriesID: "s1",
			InstanceDate: timeutil.NewDate(2024, 1, 5),
			ActualDate:   timeutil.NewDate(2024, 1, 5),
		}
		require.NoError(t, store.CreateCompletion(ctx, completion))
		completion.ID = "c2"
		assert.ErrorIs(t, store.CreateCompletion(ctx, completion), persistence.ErrDuplicate)
	})

	t.Run("duplicate tag name", func(t *testing.T) {
		require.NoError(t, store.CreateTag(ctx, persistence.Tag{ID: "t1", Name: "chores"}))
		assert.ErrorIs(t, store.CreateTag(ctx, persistence.Tag{ID: "t2", Name: "chores"}), persistence.ErrDuplicate)
	})

	t.Run("second parent link for a child", func(t *testing.T) {
		require.NoError(t, store.CreateLink(ctx, persistence.Link{ID: "l1", ParentSeriesID: "s1", ChildSeriesID: "s2"}))
		assert.ErrorIs(t, store.CreateLink(ctx, persistence.Link{ID: "l2", ParentSeriesID: "s3", ChildSeriesID: "s2"}), persistence.ErrDuplicate)
	})
}

func TestForeignKeysOnCreate(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := NewStore()

	assert.ErrorIs(t, store.CreatePattern(ctx, persistence.Pattern{ID: "p1", SeriesID: "ghost", Kind: "daily"}), persistence.ErrForeignKeyViolation)
	assert.ErrorIs(t, store.CreateCompletion(ctx, persistence.Completion{ID: "c1", SeriesID: "ghost"}), persistence.ErrForeignKeyViolation)
	assert.ErrorIs(t, store.CreateReminderAck(ctx, persistence.ReminderAck{ReminderID: "ghost"}), persistence.ErrForeignKeyViolation)
	assert.ErrorIs(t, store.AddSeriesTag(ctx, persistence.SeriesTag{SeriesID: "ghost", TagID: "ghost"}), persistence.ErrForeignKeyViolation)
	assert.ErrorIs(t, store.CreateLink(ctx, persistence.Link{ID: "l1", ParentSeriesID: "ghost", ChildSeriesID: "ghost2"}), persistence.ErrForeignKeyViolation)
}

func TestTransactionRollback(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("error restores the exact pre-transaction state", func(t *testing.T) {
		t.Parallel()
		store := NewStore()
		seedFullSeries(t, store, "s1")

		before, err := store.ListSeries(ctx)
		require.NoError(t, err)

		boom := errors.New("boom")
		err = store.Transaction(ctx, func(tx persistence.Store) error {
			now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
			if err := tx.CreateSeries(ctx, persistence.Series{
				ID: "tx-series", Title: "tx", StartDate: timeutil.NewDate(2024, 1, 1),
				AllDay: true, CreatedAt: now, UpdatedAt: now,
			}); err != nil {
				return err
			}
			if err := tx.DeletePatternsForSeries(ctx, "s1"); err != nil {
				return err
			}
			if err := tx.DeleteReminder(ctx, "s1-r1"); err != nil {
				return err
			}
			return boom
		})
		assert.ErrorIs(t, err, boom)

		after, err := store.ListSeries(ctx)
		require.NoError(t, err)
		assert.Equal(t, before, after)
		patterns, err := store.ListPatternsForSeries(ctx, "s1")
		require.NoError(t, err)
		assert.Len(t, patterns, 1)
		reminders, err := store.ListRemindersForSeries(ctx, "s1")
		require.NoError(t, err)
		assert.Len(t, reminders, 1)
	})

	t.Run("reads observe the transaction's own writes", func(t *testing.T) {
		t.Parallel()
		store := NewStore()
		err := store.Transaction(ctx, func(tx persistence.Store) error {
			now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
			if err := tx.CreateSeries(ctx, persistence.Series{
				ID: "inner", Title: "inner", StartDate: timeutil.NewDate(2024, 1, 1),
				AllDay: true, CreatedAt: now, UpdatedAt: now,
			}); err != nil {
				return err
			}
			got, err := tx.GetSeries(ctx, "inner")
			if err != nil {
				return err
			}
			assert.Equal(t, "inner", got.ID)
			return nil
		})
		require.NoError(t, err)
	})

	t.Run("nested transactions flatten", func(t *testing.T) {
		t.Parallel()
		store := NewStore()
		boom := errors.New("inner failure")
		err := store.Transaction(ctx, func(tx persistence.Store) error {
			now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
			if err := tx.CreateSeries(ctx, persistence.Series{
				ID: "outer", Title: "outer", StartDate: timeutil.NewDate(2024, 1, 1),
				AllDay: true, CreatedAt: now, UpdatedAt: now,
			}); err != nil {
				return err
			}
			// The inner call is a no-op wrapper sharing the outer fate.
			return tx.Transaction(ctx, func(inner persistence.Store) error {
				if _, err := inner.GetSeries(ctx, "outer"); err != nil {
					return err
				}
				return boom
			})
		})
		assert.ErrorIs(t, err, boom)
		_, err = store.GetSeries(ctx, "outer")
		assert.ErrorIs(t, err, persistence.ErrNotFound)
	})
}

func TestRecentDurations(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := NewStore()
	seedSeries(t, store, "s1")

	log := func(id string, day, startHour, minutes int) {
		start := timeutil.NewDate(2024, 1, day).At(timeutil.NewTimeOfDay(startHour, 0, 0))
		end := start.AddMinutes(minutes)
		require.NoError(t, store.CreateCompletion(ctx, persistence.Completion{
			ID: id, SeriesID: "s1",
			InstanceDate: timeutil.NewDate(2024, 1, day),
			ActualDate:   timeutil.NewDate(2024, 1, day),
			StartTime:    &start, EndTime: &end,
		}))
	}
	log("c1", 1, 9, 30)
	log("c2", 2, 9, 40)
	log("c3", 3, 9, 50)
	// A completion without timestamps contributes nothing.
	require.NoError(t, store.CreateCompletion(ctx, persistence.Completion{
		ID: "c4", SeriesID: "s1",
		InstanceDate: timeutil.NewDate(2024, 1, 4),
		ActualDate:   timeutil.NewDate(2024, 1, 4),
	}))

	durations, err := store.RecentDurations(ctx, "s1", persistence.DurationQuery{LastN: 2})
	require.NoError(t, err)
	assert.Equal(t, []int{50, 40}, durations)

	durations, err = store.RecentDurations(ctx, "s1", persistence.DurationQuery{
		WindowDays: 1, AsOf: timeutil.NewDate(2024, 1, 3),
	})
	require.NoError(t, err)
	assert.Equal(t, []int{50, 40}, durations)

	days, ok, err := store.DaysSinceLastCompletion(ctx, "s1", timeutil.NewDate(2024, 1, 10))
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 6, days)

	count, err := store.CountCompletionsInWindow(ctx, "s1", timeutil.NewDate(2024, 1, 2), timeutil.NewDate(2024, 1, 4))
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestInstanceExceptionUpsert(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := NewStore()
	seedSeries(t, store, "s1")

	date := timeutil.NewDate(2024, 2, 1)
	newDate := timeutil.NewDate(2024, 2, 2)
	require.NoError(t, store.UpsertInstanceException(ctx, persistence.InstanceException{
		ID: "e1", SeriesID: "s1", OriginalDate: date, Type: "rescheduled", NewDate: &newDate,
	}))
	require.NoError(t, store.UpsertInstanceException(ctx, persistence.InstanceException{
		ID: "e2", SeriesID: "s1", OriginalDate: date, Type: "cancelled",
	}))

	got, err := store.GetInstanceException(ctx, "s1", date)
	require.NoError(t, err)
	assert.Equal(t, "cancelled", got.Type)
	assert.Nil(t, got.NewDate)

	all, err := store.ListInstanceExceptionsForSeries(ctx, "s1")
	require.NoError(t, err)
	assert.Len(t, all, 1)
}
