package recurrence

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/autoplanner/internal/timeutil"
)

func date(y, m, d int) timeutil.Date { return timeutil.NewDate(y, m, d) }

func mustExpand(t *testing.T, p Pattern, seed, from, to timeutil.Date) []timeutil.Date {
	t.Helper()
	dates, err := Expand(p, seed, from, to)
	require.NoError(t, err)
	return dates
}

func TestExpandDaily(t *testing.T) {
	t.Parallel()

	dates := mustExpand(t, Pattern{Kind: KindDaily}, date(2024, 1, 3), date(2024, 1, 1), date(2024, 1, 6))
	assert.Equal(t, []timeutil.Date{date(2024, 1, 3), date(2024, 1, 4), date(2024, 1, 5)}, dates)
}

func TestExpandEveryNDays(t *testing.T) {
	t.Parallel()

	t.Run("seeded at window start", func(t *testing.T) {
		t.Parallel()
		dates := mustExpand(t, Pattern{Kind: KindEveryNDays, N: 3}, date(2024, 1, 1), date(2024, 1, 1), date(2024, 1, 15))
		assert.Equal(t, []timeutil.Date{
			date(2024, 1, 1), date(2024, 1, 4), date(2024, 1, 7), date(2024, 1, 10), date(2024, 1, 13),
		}, dates)
	})

	t.Run("window after seed keeps stride alignment", func(t *testing.T) {
		t.Parallel()
		dates := mustExpand(t, Pattern{Kind: KindEveryNDays, N: 3}, date(2024, 1, 1), date(2024, 1, 5), date(2024, 1, 12))
		assert.Equal(t, []timeutil.Date{date(2024, 1, 7), date(2024, 1, 10)}, dates)
	})

	t.Run("rejects non-positive interval", func(t *testing.T) {
		t.Parallel()
		_, err := Expand(Pattern{Kind: KindEveryNDays, N: 0}, date(2024, 1, 1), date(2024, 1, 1), date(2024, 2, 1))
		assert.ErrorIs(t, err, ErrInvalidInterval)
	})
}

func TestExpandWeekly(t *testing.T) {
	t.Parallel()

	t.Run("respects weekday selections", func(t *testing.T) {
		t.Parallel()
		p := Pattern{Kind: KindWeekly, Weekdays: []timeutil.Weekday{timeutil.Monday, timeutil.Thursday}}
		dates := mustExpand(t, p, date(2024, 1, 1), date(2024, 1, 1), date(2024, 1, 15))
		assert.Equal(t, []timeutil.Date{
			date(2024, 1, 1), date(2024, 1, 4), date(2024, 1, 8), date(2024, 1, 11),
		}, dates)
	})

	t.Run("empty selection defaults to seed weekday", func(t *testing.T) {
		t.Parallel()
		// 2024-01-03 is a Wednesday.
		dates := mustExpand(t, Pattern{Kind: KindWeekly}, date(2024, 1, 3), date(2024, 1, 1), date(2024, 1, 18))
		assert.Equal(t, []timeutil.Date{date(2024, 1, 3), date(2024, 1, 10), date(2024, 1, 17)}, dates)
	})

	t.Run("every second week aligns to the seed week", func(t *testing.T) {
		t.Parallel()
		p := Pattern{Kind: KindEveryNWeeks, N: 2, Weekdays: []timeutil.Weekday{timeutil.Monday}}
		dates := mustExpand(t, p, date(2024, 1, 1), date(2024, 1, 1), date(2024, 2, 1))
		assert.Equal(t, []timeutil.Date{date(2024, 1, 1), date(2024, 1, 15), date(2024, 1, 29)}, dates)
	})
}

func TestExpandMonthly(t *testing.T) {
	t.Parallel()

	t.Run("day of month each month", func(t *testing.T) {
		t.Parallel()
		dates := mustExpand(t, Pattern{Kind: KindMonthly, Day: 15}, date(2024, 1, 1), date(2024, 1, 1), date(2024, 4, 1))
		assert.Equal(t, []timeutil.Date{date(2024, 1, 15), date(2024, 2, 15), date(2024, 3, 15)}, dates)
	})

	t.Run("short months are skipped, not clamped", func(t *testing.T) {
		t.Parallel()
		dates := mustExpand(t, Pattern{Kind: KindMonthly, Day: 30}, date(2024, 1, 1), date(2024, 1, 1), date(2024, 4, 1))
		assert.Equal(t, []timeutil.Date{date(2024, 1, 30), date(2024, 3, 30)}, dates)
	})

	t.Run("rejects day outside 1..31", func(t *testing.T) {
		t.Parallel()
		_, err := Expand(Pattern{Kind: KindMonthly, Day: 32}, date(2024, 1, 1), date(2024, 1, 1), date(2024, 2, 1))
		assert.ErrorIs(t, err, ErrInvalidDay)
	})
}

func TestExpandLastDayOfMonth(t *testing.T) {
	t.Parallel()

	dates := mustExpand(t, Pattern{Kind: KindLastDayOfMonth}, date(2024, 1, 1), date(2024, 1, 1), date(2024, 5, 1))
	assert.Equal(t, []timeutil.Date{
		date(2024, 1, 31), date(2024, 2, 29), date(2024, 3, 31), date(2024, 4, 30),
	}, dates)
}

func TestExpandYearly(t *testing.T) {
	t.Parallel()

	t.Run("one date per year", func(t *testing.T) {
		t.Parallel()
		p := Pattern{Kind: KindYearly, Month: 7, Day: 4}
		dates := mustExpand(t, p, date(2023, 1, 1), date(2023, 1, 1), date(2026, 1, 1))
		assert.Equal(t, []timeutil.Date{date(2023, 7, 4), date(2024, 7, 4), date(2025, 7, 4)}, dates)
	})

	t.Run("february 29 skips non-leap years", func(t *testing.T) {
		t.Parallel()
		p := Pattern{Kind: KindYearly, Month: 2, Day: 29}
		dates := mustExpand(t, p, date(2023, 1, 1), date(2023, 1, 1), date(2029, 1, 1))
		assert.Equal(t, []timeutil.Date{date(2024, 2, 29), date(2028, 2, 29)}, dates)
	})
}

func TestExpandWeekdayMasks(t *testing.T) {
	t.Parallel()

	t.Run("weekdaysOnly", func(t *testing.T) {
		t.Parallel()
		dates := mustExpand(t, Pattern{Kind: KindWeekdaysOnly}, date(2024, 1, 1), date(2024, 1, 5), date(2024, 1, 10))
		assert.Equal(t, []timeutil.Date{date(2024, 1, 5), date(2024, 1, 8), date(2024, 1, 9)}, dates)
	})

	t.Run("weekendsOnly", func(t *testing.T) {
		t.Parallel()
		dates := mustExpand(t, Pattern{Kind: KindWeekendsOnly}, date(2024, 1, 1), date(2024, 1, 1), date(2024, 1, 9))
		assert.Equal(t, []timeutil.Date{date(2024, 1, 6), date(2024, 1, 7)}, dates)
	})

	t.Run("explicit mask requires at least one weekday", func(t *testing.T) {
		t.Parallel()
		_, err := Expand(Pattern{Kind: KindWeekdays}, date(2024, 1, 1), date(2024, 1, 1), date(2024, 2, 1))
		assert.ErrorIs(t, err, ErrInvalidWeekday)
	})
}

func TestExpandNthWeekday(t *testing.T) {
	t.Parallel()

	t.Run("nth weekday of month", func(t *testing.T) {
		t.Parallel()
		p := Pattern{Kind: KindNthWeekdayOfMonth, N: 2, Weekday: timeutil.Tuesday}
		dates := mustExpand(t, p, date(2024, 1, 1), date(2024, 1, 1), date(2024, 4, 1))
		assert.Equal(t, []timeutil.Date{date(2024, 1, 9), date(2024, 2, 13), date(2024, 3, 12)}, dates)
	})

	t.Run("fifth occurrence is omitted for short months", func(t *testing.T) {
		t.Parallel()
		p := Pattern{Kind: KindNthWeekdayOfMonth, N: 5, Weekday: timeutil.Wednesday}
		dates := mustExpand(t, p, date(2024, 1, 1), date(2024, 1, 1), date(2024, 3, 1))
		// January 2024 has five Wednesdays, February only four.
		assert.Equal(t, []timeutil.Date{date(2024, 1, 31)}, dates)
	})

	t.Run("last weekday of month", func(t *testing.T) {
		t.Parallel()
		p := Pattern{Kind: KindLastWeekdayOfMonth, Weekday: timeutil.Friday}
		dates := mustExpand(t, p, date(2024, 1, 1), date(2024, 1, 1), date(2024, 4, 1))
		assert.Equal(t, []timeutil.Date{date(2024, 1, 26), date(2024, 2, 23), date(2024, 3, 29)}, dates)
	})

	t.Run("nth to last counts backwards", func(t *testing.T) {
		t.Parallel()
		p := Pattern{Kind: KindNthToLastWeekdayOfMonth, N: 2, Weekday: timeutil.Friday}
		dates := mustExpand(t, p, date(2024, 1, 1), date(2024, 1, 1), date(2024, 3, 1))
		assert.Equal(t, []timeutil.Date{date(2024, 1, 19), date(2024, 2, 16)}, dates)
	})

	t.Run("rejects ordinal outside 1..5", func(t *testing.T) {
		t.Parallel()
		_, err := Expand(Pattern{Kind: KindNthWeekdayOfMonth, N: 6, Weekday: timeutil.Monday}, date(2024, 1, 1), date(2024, 1, 1), date(2024, 2, 1))
		assert.ErrorIs(t, err, ErrInvalidOrdinal)
	})
}

func TestExpandUnionAndExcept(t *testing.T) {
	t.Parallel()

	mondays := Pattern{Kind: KindWeekdays, Weekdays: []timeutil.Weekday{timeutil.Monday}}
	thursdays := Pattern{Kind: KindWeekdays, Weekdays: []timeutil.Weekday{timeutil.Thursday}}

	t.Run("union merges and deduplicates", func(t *testing.T) {
		t.Parallel()
		p := Pattern{Kind: KindUnion, Children: []Pattern{mondays, thursdays, mondays}}
		dates := mustExpand(t, p, date(2024, 1, 1), date(2024, 1, 1), date(2024, 1, 12))
		assert.Equal(t, []timeutil.Date{
			date(2024, 1, 1), date(2024, 1, 4), date(2024, 1, 8), date(2024, 1, 11),
		}, dates)
	})

	t.Run("union is commutative", func(t *testing.T) {
		t.Parallel()
		ab := Pattern{Kind: KindUnion, Children: []Pattern{mondays, thursdays}}
		ba := Pattern{Kind: KindUnion, Children: []Pattern{thursdays, mondays}}
		seed, from, to := date(2024, 1, 1), date(2024, 1, 1), date(2024, 3, 1)
		assert.Equal(t, mustExpand(t, ab, seed, from, to), mustExpand(t, ba, seed, from, to))
	})

	t.Run("except removes exclusion dates", func(t *testing.T) {
		t.Parallel()
		daily := Pattern{Kind: KindDaily}
		p := Pattern{Kind: KindExcept, Base: &daily, Exclude: &mondays}
		dates := mustExpand(t, p, date(2024, 1, 1), date(2024, 1, 1), date(2024, 1, 9))
		assert.Equal(t, []timeutil.Date{
			date(2024, 1, 2), date(2024, 1, 3), date(2024, 1, 4),
			date(2024, 1, 5), date(2024, 1, 6), date(2024, 1, 7),
		}, dates)
	})
}

func TestExpandWindowValidation(t *testing.T) {
	t.Parallel()

	_, err := Expand(Pattern{Kind: KindDaily}, date(2024, 1, 1), date(2024, 2, 1), date(2024, 1, 1))
	assert.ErrorIs(t, err, ErrInvalidWindow)
}

func TestExpandIsDeterministic(t *testing.T) {
	t.Parallel()

	p := Pattern{Kind: KindUnion, Children: []Pattern{
		{Kind: KindEveryNDays, N: 4},
		{Kind: KindWeekendsOnly},
		{Kind: KindLastDayOfMonth},
	}}
	seed, from, to := date(2024, 1, 3), date(2024, 1, 1), date(2024, 6, 1)
	first := mustExpand(t, p, seed, from, to)
	second := mustExpand(t, p, seed, from, to)
	assert.Equal(t, first, second)

	for i := 1; i < len(first); i++ {
		assert.True(t, first[i-1].Before(first[i]), "expansion must be strictly increasing")
	}
	for _, d := range first {
		assert.False(t, d.Before(seed))
		assert.False(t, d.Before(from))
		assert.True(t, d.Before(to))
	}
}
