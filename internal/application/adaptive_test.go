package application

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/autoplanner/internal/persistence"
	"github.com/example/autoplanner/internal/persistence/memory"
	"github.com/example/autoplanner/internal/timeutil"
)

func adaptiveFixture(t *testing.T, durations []int) *memory.Store {
	t.Helper()
	ctx := context.Background()
	store := memory.NewStore()
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, store.CreateSeries(ctx, persistence.Series{
		ID: "s1", Title: "s1", StartDate: timeutil.NewDate(2024, 1, 1),
		AllDay: true, CreatedAt: now, UpdatedAt: now,
	}))
	for i, minutes := range durations {
		day := timeutil.NewDate(2024, 1, 1).AddDays(i)
		start := day.At(timeutil.NewTimeOfDay(9, 0, 0))
		end := start.AddMinutes(minutes)
		require.NoError(t, store.CreateCompletion(ctx, persistence.Completion{
			ID: "c" + day.String(), SeriesID: "s1",
			InstanceDate: day, ActualDate: day,
			StartTime: &start, EndTime: &end,
		}))
	}
	return store
}

func TestEffectiveAdaptiveDuration(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	asOf := timeutil.NewDate(2024, 1, 20)

	t.Run("empty history falls back", func(t *testing.T) {
		t.Parallel()
		store := adaptiveFixture(t, nil)
		minutes, err := effectiveAdaptiveDuration(ctx, store, "s1", AdaptiveSpec{FallbackMinutes: 45, LastN: 5}, asOf)
		require.NoError(t, err)
		assert.Equal(t, 45, minutes)
	})

	t.Run("averages the last n durations", func(t *testing.T) {
		t.Parallel()
		store := adaptiveFixture(t, []int{100, 30, 40, 50})
		minutes, err := effectiveAdaptiveDuration(ctx, store, "s1", AdaptiveSpec{FallbackMinutes: 10, LastN: 3}, asOf)
		require.NoError(t, err)
		assert.Equal(t, 40, minutes)
	})

	t.Run("applies the buffer percentage", func(t *testing.T) {
		t.Parallel()
		store := adaptiveFixture(t, []int{40, 40, 40})
		minutes, err := effectiveAdaptiveDuration(ctx, store, "s1", AdaptiveSpec{FallbackMinutes: 10, LastN: 5, BufferPercent: 25}, asOf)
		require.NoError(t, err)
		assert.Equal(t, 50, minutes)
	})

	t.Run("clamps to the configured bounds", func(t *testing.T) {
		t.Parallel()
		store := adaptiveFixture(t, []int{200, 200, 200})
		max := 90
		minutes, err := effectiveAdaptiveDuration(ctx, store, "s1", AdaptiveSpec{FallbackMinutes: 10, LastN: 5, MaxMinutes: &max}, asOf)
		require.NoError(t, err)
		assert.Equal(t, 90, minutes)

		min := 60
		store = adaptiveFixture(t, []int{10, 10})
		minutes, err = effectiveAdaptiveDuration(ctx, store, "s1", AdaptiveSpec{FallbackMinutes: 10, LastN: 5, MinMinutes: &min}, asOf)
		require.NoError(t, err)
		assert.Equal(t, 60, minutes)
	})

	t.Run("window query ignores completions outside the window", func(t *testing.T) {
		t.Parallel()
		// Days 1..4; a 2-day window ending on day 4 sees days 2..4.
		store := adaptiveFixture(t, []int{120, 30, 30, 30})
		minutes, err := effectiveAdaptiveDuration(ctx, store, "s1",
			AdaptiveSpec{FallbackMinutes: 10, WindowDays: 2}, timeutil.NewDate(2024, 1, 4))
		require.NoError(t, err)
		assert.Equal(t, 30, minutes)
	})
}
