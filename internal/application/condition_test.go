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

func conditionStore(t *testing.T) *memory.Store {
	t.Helper()
	store := memory.NewStore()
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, store.CreateSeries(context.Background(), persistence.Series{
		ID: "owner", Title: "owner", StartDate: timeutil.NewDate(2024, 1, 1),
		AllDay: true, CreatedAt: now, UpdatedAt: now,
	}))
	return store
}

func TestConditionValidate(t *testing.T) {
	t.Parallel()

	valid := &Condition{
		Kind: ConditionAnd,
		Children: []*Condition{
			{Kind: ConditionWeekday, Days: []timeutil.Weekday{timeutil.Monday}},
			{Kind: ConditionNot, Children: []*Condition{
				{Kind: ConditionCompletionCount, WindowDays: 7, Comparison: CompareGreaterOrEqual, Value: 3},
			}},
		},
	}
	assert.NoError(t, valid.Validate())

	cases := []struct {
		name string
		cond *Condition
	}{
		{"and without children", &Condition{Kind: ConditionAnd}},
		{"not with two children", &Condition{Kind: ConditionNot, Children: []*Condition{
			{Kind: ConditionWeekday, Days: []timeutil.Weekday{timeutil.Monday}},
			{Kind: ConditionWeekday, Days: []timeutil.Weekday{timeutil.Tuesday}},
		}}},
		{"weekday without days", &Condition{Kind: ConditionWeekday}},
		{"weekday out of range", &Condition{Kind: ConditionWeekday, Days: []timeutil.Weekday{8}}},
		{"completion count without window", &Condition{Kind: ConditionCompletionCount, Comparison: CompareEqual}},
		{"completion count bad comparison", &Condition{Kind: ConditionCompletionCount, WindowDays: 7, Comparison: "about"}},
		{"unknown kind", &Condition{Kind: "maybe"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.ErrorIs(t, tc.cond.Validate(), ErrInvalidCondition)
		})
	}
}

func TestConditionMarshalRoundTrip(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := conditionStore(t)

	tree := &Condition{
		Kind: ConditionOr,
		Children: []*Condition{
			{Kind: ConditionWeekday, Days: []timeutil.Weekday{timeutil.Monday, timeutil.Friday}},
			{Kind: ConditionAnd, Children: []*Condition{
				{Kind: ConditionCompletionCount, SeriesRef: "other", WindowDays: 14, Comparison: CompareLess, Value: 2},
				{Kind: ConditionNot, Children: []*Condition{
					{Kind: ConditionWeekday, Days: []timeutil.Weekday{timeutil.Sunday}},
				}},
			}},
		},
	}
	require.NoError(t, tree.Validate())

	ids := sequentialIDs("cond")
	rootID, err := marshalCondition(ctx, store, "owner", tree, ids)
	require.NoError(t, err)

	rows, err := store.ListConditionsForSeries(ctx, "owner")
	require.NoError(t, err)
	assert.Len(t, rows, 6)

	rebuilt, err := conditionFromRows(rows, rootID)
	require.NoError(t, err)
	assert.Equal(t, tree, rebuilt)
}

func TestConditionFromRowsRejectsCycles(t *testing.T) {
	t.Parallel()

	t.Run("self reference", func(t *testing.T) {
		t.Parallel()
		self := "n1"
		rows := []persistence.Condition{{ID: "n1", SeriesID: "owner", ParentID: &self, Kind: "and"}}
		_, err := conditionFromRows(rows, "n1")
		assert.ErrorIs(t, err, ErrInvalidCondition)
	})

	t.Run("ancestor reference", func(t *testing.T) {
		t.Parallel()
		n1, n2 := "n1", "n2"
		rows := []persistence.Condition{
			{ID: "n1", SeriesID: "owner", ParentID: &n2, Kind: "and"},
			{ID: "n2", SeriesID: "owner", ParentID: &n1, Kind: "and"},
		}
		_, err := conditionFromRows(rows, "n1")
		assert.ErrorIs(t, err, ErrInvalidCondition)
	})

	t.Run("missing root", func(t *testing.T) {
		t.Parallel()
		_, err := conditionFromRows(nil, "ghost")
		assert.ErrorIs(t, err, ErrInvalidCondition)
	})
}

func TestEvaluateCondition(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("weekday leaf", func(t *testing.T) {
		t.Parallel()
		store := conditionStore(t)
		cond := &Condition{Kind: ConditionWeekday, Days: []timeutil.Weekday{timeutil.Monday}}
		// 2024-01-15 is a Monday, 2024-01-16 a Tuesday.
		ok, err := evaluateCondition(ctx, store, cond, "owner", timeutil.NewDate(2024, 1, 15))
		require.NoError(t, err)
		assert.True(t, ok)
		ok, err = evaluateCondition(ctx, store, cond, "owner", timeutil.NewDate(2024, 1, 16))
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("completion count over trailing window", func(t *testing.T) {
		t.Parallel()
		store := conditionStore(t)
		for day := 10; day <= 12; day++ {
			d := timeutil.NewDate(2024, 1, day)
			require.NoError(t, store.CreateCompletion(ctx, persistence.Completion{
				ID: "c" + d.String(), SeriesID: "owner", InstanceDate: d, ActualDate: d,
			}))
		}

		atLeastTwo := &Condition{Kind: ConditionCompletionCount, WindowDays: 7, Comparison: CompareGreaterOrEqual, Value: 2}
		ok, err := evaluateCondition(ctx, store, atLeastTwo, "owner", timeutil.NewDate(2024, 1, 15))
		require.NoError(t, err)
		assert.True(t, ok)

		// The candidate date itself is outside the counted window.
		ok, err = evaluateCondition(ctx, store, atLeastTwo, "owner", timeutil.NewDate(2024, 1, 10))
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("boolean composition", func(t *testing.T) {
		t.Parallel()
		store := conditionStore(t)
		monday := &Condition{Kind: ConditionWeekday, Days: []timeutil.Weekday{timeutil.Monday}}
		notMonday := &Condition{Kind: ConditionNot, Children: []*Condition{monday}}
		either := &Condition{Kind: ConditionOr, Children: []*Condition{monday, notMonday}}
		both := &Condition{Kind: ConditionAnd, Children: []*Condition{monday, notMonday}}

		ok, err := evaluateCondition(ctx, store, either, "owner", timeutil.NewDate(2024, 1, 15))
		require.NoError(t, err)
		assert.True(t, ok)
		ok, err = evaluateCondition(ctx, store, both, "owner", timeutil.NewDate(2024, 1, 15))
		require.NoError(t, err)
		assert.False(t, ok)
	})
}
