package application

import (
	"context"
	"errors"
	"fmt"

	"github.com/example/autoplanner/internal/persistence"
	"github.com/example/autoplanner/internal/recurrence"
	"github.com/example/autoplanner/internal/timeutil"
)

// seriesRowFromDomain flattens the core columns of a domain series.
func seriesRowFromDomain(s Series) persistence.Series {
	row := persistence.Series{
		ID:          s.ID,
		Title:       s.Title,
		Description: s.Description,
		StartDate:   s.StartDate,
		EndDate:     s.EndDate,
		Count:       s.Count,
		Locked:      s.Locked,
		Fixed:       s.Fixed,
		CreatedAt:   s.CreatedAt,
		UpdatedAt:   s.UpdatedAt,
	}
	if s.TimeOfDay == nil {
		row.AllDay = true
	} else {
		tod := *s.TimeOfDay
		row.TimeOfDay = &tod
	}
	if s.Duration.Kind == DurationFixed {
		minutes := s.Duration.Minutes
		row.DurationMinutes = &minutes
	}
	if s.Wiggle != nil {
		before, after := s.Wiggle.DaysBefore, s.Wiggle.DaysAfter
		row.WiggleDaysBefore = &before
		row.WiggleDaysAfter = &after
		row.WiggleEarliest = s.Wiggle.Earliest
		row.WiggleLatest = s.Wiggle.Latest
	}
	return row
}

// persistSeries writes a fully assembled series inside the caller's
// transaction: core row, patterns with condition trees and weekday masks,
// reminders, cycling, adaptive config, and tag associations.
func persistSeries(ctx context.Context, tx persistence.Store, s Series, nextID func() string) error {
	if err := tx.CreateSeries(ctx, seriesRowFromDomain(s)); err != nil {
		return err
	}
	for _, sp := range s.Patterns {
		if err := persistPattern(ctx, tx, s.ID, sp, nextID); err != nil {
			return err
		}
	}
	if s.Duration.Kind == DurationAdaptive {
		spec := s.Duration.Adaptive
		if err := tx.UpsertAdaptiveDuration(ctx, persistence.AdaptiveDuration{
			SeriesID:        s.ID,
			FallbackMinutes: spec.FallbackMinutes,
			BufferPercent:   spec.BufferPercent,
			LastN:           spec.LastN,
			WindowDays:      spec.WindowDays,
			MinMinutes:      spec.MinMinutes,
			MaxMinutes:      spec.MaxMinutes,
		}); err != nil {
			return err
		}
	}
	for _, r := range s.Reminders {
		id := r.ID
		if id == "" {
			id = nextID()
		}
		if err := tx.CreateReminder(ctx, persistence.Reminder{
			ID:            id,
			SeriesID:      s.ID,
			MinutesBefore: r.MinutesBefore,
			Label:         r.Label,
		}); err != nil {
			return err
		}
	}
	if s.Cycling != nil {
		if err := tx.UpsertCyclingConfig(ctx, persistence.CyclingConfig{
			SeriesID:     s.ID,
			Mode:         string(s.Cycling.Mode),
			GapLeap:      s.Cycling.GapLeap,
			CurrentIndex: s.Cycling.CurrentIndex,
		}); err != nil {
			return err
		}
		items := make([]persistence.CyclingItem, len(s.Cycling.Items))
		for i, title := range s.Cycling.Items {
			items[i] = persistence.CyclingItem{SeriesID: s.ID, Position: i, Title: title}
		}
		if err := tx.ReplaceCyclingItems(ctx, s.ID, items); err != nil {
			return err
		}
	}
	for _, name := range s.Tags {
		if err := tagSeries(ctx, tx, s.ID, name, nextID); err != nil {
			return err
		}
	}
	return nil
}

// tagSeries associates the series with the named tag, creating the tag on
// first use.
func tagSeries(ctx context.Context, tx persistence.Store, seriesID, name string, nextID func() string) error {
	tag, err := tx.GetTagByName(ctx, name)
	if errors.Is(err, persistence.ErrNotFound) {
		tag = persistence.Tag{ID: nextID(), Name: name}
		err = tx.CreateTag(ctx, tag)
	}
	if err != nil {
		return err
	}
	return tx.AddSeriesTag(ctx, persistence.SeriesTag{SeriesID: seriesID, TagID: tag.ID})
}

// persistPattern writes one pattern tree, marshalling its guarding
// condition first so the root row can reference it.
func persistPattern(ctx context.Context, tx persistence.Store, seriesID string, sp SeriesPattern, nextID func() string) error {
	var conditionID *string
	if sp.Condition != nil {
		if err := sp.Condition.Validate(); err != nil {
			return err
		}
		rootID, err := marshalCondition(ctx, tx, seriesID, sp.Condition, nextID)
		if err != nil {
			return err
		}
		conditionID = &rootID
	}
	_, err := writePatternNode(ctx, tx, seriesID, sp.Pattern, nil, nil, conditionID, nextID)
	return err
}

func writePatternNode(ctx context.Context, tx persistence.Store, seriesID string, p recurrence.Pattern, parentID *string, role *persistence.PatternRole, conditionID *string, nextID func() string) (string, error) {
	id := nextID()
	row := persistence.Pattern{
		ID:          id,
		SeriesID:    seriesID,
		Kind:        p.Kind.String(),
		ParentID:    parentID,
		Role:        role,
		ConditionID: conditionID,
	}
	switch p.Kind {
	case recurrence.KindEveryNDays, recurrence.KindEveryNWeeks:
		n := p.N
		row.N = &n
	case recurrence.KindMonthly:
		day := p.Day
		row.Day = &day
	case recurrence.KindYearly:
		day, month := p.Day, p.Month
		row.Day = &day
		row.Month = &month
	case recurrence.KindNthWeekdayOfMonth, recurrence.KindNthToLastWeekdayOfMonth:
		n, weekday := p.N, int(p.Weekday)
		row.N = &n
		row.Weekday = &weekday
	case recurrence.KindLastWeekdayOfMonth:
		weekday := int(p.Weekday)
		row.Weekday = &weekday
	}
	if err := tx.CreatePattern(ctx, row); err != nil {
		return "", err
	}
	for _, wd := range p.Weekdays {
		if err := tx.CreatePatternWeekday(ctx, persistence.PatternWeekday{PatternID: id, Weekday: int(wd)}); err != nil {
			return "", err
		}
	}

	switch p.Kind {
	case recurrence.KindUnion:
		member := persistence.PatternRoleMember
		for _, child := range p.Children {
			if _, err := writePatternNode(ctx, tx, seriesID, child, &id, &member, nil, nextID); err != nil {
				return "", err
			}
		}
	case recurrence.KindExcept:
		base, exclude := persistence.PatternRoleBase, persistence.PatternRoleExclude
		if _, err := writePatternNode(ctx, tx, seriesID, *p.Base, &id, &base, nil, nextID); err != nil {
			return "", err
		}
		if _, err := writePatternNode(ctx, tx, seriesID, *p.Exclude, &id, &exclude, nil, nextID); err != nil {
			return "", err
		}
	}
	return id, nil
}

// loadSeriesDetail assembles the full nested domain shape from flat rows.
func loadSeriesDetail(ctx context.Context, store persistence.Store, row persistence.Series) (Series, error) {
	s := Series{
		ID:          row.ID,
		Title:       row.Title,
		Description: row.Description,
		StartDate:   row.StartDate,
		EndDate:     row.EndDate,
		Count:       row.Count,
		Locked:      row.Locked,
		Fixed:       row.Fixed,
		CreatedAt:   row.CreatedAt,
		UpdatedAt:   row.UpdatedAt,
	}
	if !row.AllDay && row.TimeOfDay != nil {
		tod := *row.TimeOfDay
		s.TimeOfDay = &tod
	}
	if row.WiggleDaysBefore != nil || row.WiggleDaysAfter != nil {
		w := &Wiggle{Earliest: row.WiggleEarliest, Latest: row.WiggleLatest}
		if row.WiggleDaysBefore != nil {
			w.DaysBefore = *row.WiggleDaysBefore
		}
		if row.WiggleDaysAfter != nil {
			w.DaysAfter = *row.WiggleDaysAfter
		}
		s.Wiggle = w
	}

	switch {
	case row.AllDay:
		s.Duration = Duration{Kind: DurationAllDay}
	case row.DurationMinutes != nil:
		s.Duration = Duration{Kind: DurationFixed, Minutes: *row.DurationMinutes}
	default:
		adaptive, err := store.GetAdaptiveDuration(ctx, row.ID)
		if errors.Is(err, persistence.ErrNotFound) {
			return Series{}, fmt.Errorf("%w: series %s has no duration", persistence.ErrInvalidData, row.ID)
		}
		if err != nil {
			return Series{}, err
		}
		s.Duration = Duration{Kind: DurationAdaptive, Adaptive: &AdaptiveSpec{
			FallbackMinutes: adaptive.FallbackMinutes,
			BufferPercent:   adaptive.BufferPercent,
			LastN:           adaptive.LastN,
			WindowDays:      adaptive.WindowDays,
			MinMinutes:      adaptive.MinMinutes,
			MaxMinutes:      adaptive.MaxMinutes,
		}}
	}

	patterns, err := loadPatterns(ctx, store, row.ID)
	if err != nil {
		return Series{}, err
	}
	s.Patterns = patterns

	reminderRows, err := store.ListRemindersForSeries(ctx, row.ID)
	if err != nil {
		return Series{}, err
	}
	for _, r := range reminderRows {
		s.Reminders = append(s.Reminders, Reminder{ID: r.ID, MinutesBefore: r.MinutesBefore, Label: r.Label})
	}

	if cycling, err := store.GetCyclingConfig(ctx, row.ID); err == nil {
		items, err := store.ListCyclingItems(ctx, row.ID)
		if err != nil {
			return Series{}, err
		}
		c := &Cycling{Mode: CyclingMode(cycling.Mode), GapLeap: cycling.GapLeap, CurrentIndex: cycling.CurrentIndex}
		for _, item := range items {
			c.Items = append(c.Items, item.Title)
		}
		s.Cycling = c
	} else if !errors.Is(err, persistence.ErrNotFound) {
		return Series{}, err
	}

	tags, err := store.ListTagsForSeries(ctx, row.ID)
	if err != nil {
		return Series{}, err
	}
	for _, tag := range tags {
		s.Tags = append(s.Tags, tag.Name)
	}
	return s, nil
}

// loadPatterns reconstructs the series' pattern trees and their condition
// trees from flat rows.
func loadPatterns(ctx context.Context, store persistence.Store, seriesID string) ([]SeriesPattern, error) {
	rows, err := store.ListPatternsForSeries(ctx, seriesID)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	conditionRows, err := store.ListConditionsForSeries(ctx, seriesID)
	if err != nil {
		return nil, err
	}

	children := make(map[string][]persistence.Pattern)
	var roots []persistence.Pattern
	for _, row := range rows {
		if row.ParentID == nil {
			roots = append(roots, row)
			continue
		}
		children[*row.ParentID] = append(children[*row.ParentID], row)
	}

	var patterns []SeriesPattern
	for _, root := range roots {
		p, err := rebuildPattern(ctx, store, root, children)
		if err != nil {
			return nil, err
		}
		sp := SeriesPattern{Pattern: p}
		if root.ConditionID != nil {
			cond, err := conditionFromRows(conditionRows, *root.ConditionID)
			if err != nil {
				return nil, err
			}
			sp.Condition = cond
			sp.Pattern.ConditionID = *root.ConditionID
		}
		patterns = append(patterns, sp)
	}
	return patterns, nil
}

func rebuildPattern(ctx context.Context, store persistence.Store, row persistence.Pattern, children map[string][]persistence.Pattern) (recurrence.Pattern, error) {
	kind, ok := recurrence.KindFromString(row.Kind)
	if !ok {
		return recurrence.Pattern{}, fmt.Errorf("%w: unknown pattern kind %q", persistence.ErrInvalidData, row.Kind)
	}
	p := recurrence.Pattern{Kind: kind}
	if row.N != nil {
		p.N = *row.N
	}
	if row.Day != nil {
		p.Day = *row.Day
	}
	if row.Month != nil {
		p.Month = *row.Month
	}
	if row.Weekday != nil {
		p.Weekday = timeutil.Weekday(*row.Weekday)
	}

	weekdayRows, err := store.ListPatternWeekdays(ctx, row.ID)
	if err != nil {
		return recurrence.Pattern{}, err
	}
	for _, w := range weekdayRows {
		p.Weekdays = append(p.Weekdays, timeutil.Weekday(w.Weekday))
	}

	for _, childRow := range children[row.ID] {
		child, err := rebuildPattern(ctx, store, childRow, children)
		if err != nil {
			return recurrence.Pattern{}, err
		}
		role := persistence.PatternRoleMember
		if childRow.Role != nil {
			role = *childRow.Role
		}
		switch role {
		case persistence.PatternRoleBase:
			p.Base = &child
		case persistence.PatternRoleExclude:
			p.Exclude = &child
		default:
			p.Children = append(p.Children, child)
		}
	}
	return p, nil
}
