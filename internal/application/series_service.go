package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/example/autoplanner/internal/persistence"
	"github.com/example/autoplanner/internal/timeutil"
)

// SeriesInput is the creation request for a series. Zero values mean
// "absent"; normalization fills the defaults described on CreateSeries.
type SeriesInput struct {
	Title       string
	Description *string
	StartDate   timeutil.Date
	// EndDate is exclusive and mutually exclusive with Count.
	EndDate *timeutil.Date
	Count   *int

	// TimeOfDay schedules the series at a wall-clock time; leaving both it
	// and Time unset makes the series all-day.
	TimeOfDay *timeutil.TimeOfDay
	// Time is a convenience alternative to TimeOfDay: only its time portion
	// is kept.
	Time *timeutil.DateTime

	// DurationMinutes and Adaptive select the duration mode; with neither,
	// the series is all-day.
	DurationMinutes *int
	Adaptive        *AdaptiveSpec

	Fixed  bool
	Wiggle *Wiggle

	// Pattern is the singular convenience form of Patterns.
	Pattern  *SeriesPattern
	Patterns []SeriesPattern

	Reminders []Reminder
	Cycling   *Cycling
	Tags      []string
}

// SeriesUpdate is a partial update; nil fields are left unchanged. The id
// and creation timestamp are not updatable by construction. Collections
// (Patterns, Reminders, Cycling, Tags) are replaced wholesale when set.
type SeriesUpdate struct {
	Title       *string
	Description *string
	StartDate   *timeutil.Date
	EndDate     *timeutil.Date
	ClearEnd    bool
	Count       *int
	ClearCount  bool

	TimeOfDay       *timeutil.TimeOfDay
	AllDay          *bool
	DurationMinutes *int
	Adaptive        *AdaptiveSpec

	Locked *bool
	Fixed  *bool
	Wiggle *Wiggle

	Patterns  []SeriesPattern
	Reminders []Reminder
	Cycling   *Cycling
	Tags      []string
}

// SplitOverrides adjusts the cloned series produced by SplitSeries.
type SplitOverrides struct {
	Title           *string
	Description     *string
	TimeOfDay       *timeutil.TimeOfDay
	DurationMinutes *int
	Fixed           *bool
	Wiggle          *Wiggle
}

// SeriesService orchestrates validation and persistence for series
// operations.
type SeriesService struct {
	store       persistence.Store
	idGenerator func() string
	now         func() time.Time
	logger      *slog.Logger
}

// NewSeriesService wires dependencies for series operations.
func NewSeriesService(store persistence.Store, idGenerator func() string, now func() time.Time, logger *slog.Logger) *SeriesService {
	if idGenerator == nil {
		idGenerator = func() string { return "" }
	}
	if now == nil {
		now = time.Now
	}
	return &SeriesService{store: store, idGenerator: idGenerator, now: now, logger: defaultLogger(logger)}
}

func (s *SeriesService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "SeriesService", operation, attrs...)
}

// CreateSeries normalizes and validates the input, then writes the series
// and all of its children inside one transaction.
//
// Normalization: a singular Pattern becomes the patterns list; Time's
// wall-clock portion becomes TimeOfDay; with no time the series defaults to
// all-day; with no patterns, no count, and no end date, count defaults to 1.
func (s *SeriesService) CreateSeries(ctx context.Context, input SeriesInput) (string, error) {
	logger := s.loggerWith(ctx, "CreateSeries", "title", input.Title)

	series, err := s.normalize(input)
	if err != nil {
		logger.Warn("series validation failed", "error", err, "error_kind", ErrorKind(err))
		return "", err
	}
	series.ID = s.idGenerator()
	now := s.now()
	series.CreatedAt = now
	series.UpdatedAt = now

	err = s.store.Transaction(ctx, func(tx persistence.Store) error {
		return persistSeries(ctx, tx, series, s.idGenerator)
	})
	if err != nil {
		logger.Error("failed to persist series", "error", err, "error_kind", ErrorKind(err))
		return "", err
	}
	logger.Info("series created", "series_id", series.ID)
	return series.ID, nil
}

// GetSeries loads the fully assembled series.
func (s *SeriesService) GetSeries(ctx context.Context, id string) (Series, error) {
	row, err := s.store.GetSeries(ctx, id)
	if errors.Is(err, persistence.ErrNotFound) {
		return Series{}, ErrNotFound
	}
	if err != nil {
		return Series{}, err
	}
	return loadSeriesDetail(ctx, s.store, row)
}

// ListSeries loads every series in full.
func (s *SeriesService) ListSeries(ctx context.Context) ([]Series, error) {
	rows, err := s.store.ListSeries(ctx)
	if err != nil {
		return nil, err
	}
	series := make([]Series, 0, len(rows))
	for _, row := range rows {
		detail, err := loadSeriesDetail(ctx, s.store, row)
		if err != nil {
			return nil, err
		}
		series = append(series, detail)
	}
	return series, nil
}

// UpdateSeries applies a partial update. A locked series accepts only the
// unlock request; every other change is rejected with ErrLockedSeries.
func (s *SeriesService) UpdateSeries(ctx context.Context, id string, update SeriesUpdate) error {
	logger := s.loggerWith(ctx, "UpdateSeries", "series_id", id)

	err := s.store.Transaction(ctx, func(tx persistence.Store) error {
		row, err := tx.GetSeries(ctx, id)
		if errors.Is(err, persistence.ErrNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		current, err := loadSeriesDetail(ctx, tx, row)
		if err != nil {
			return err
		}

		if current.Locked {
			if update.Locked == nil || *update.Locked || !onlyLockChange(update) {
				return ErrLockedSeries
			}
		}

		next := applyUpdate(current, update)
		next.UpdatedAt = s.now()
		if err := validateSeries(&next); err != nil {
			return err
		}
		return s.rewriteSeries(ctx, tx, current, next)
	})
	if err != nil {
		logger.Warn("series update rejected", "error", err, "error_kind", ErrorKind(err))
		return err
	}
	logger.Info("series updated")
	return nil
}

// LockSeries marks the series locked.
func (s *SeriesService) LockSeries(ctx context.Context, id string) error {
	return s.setLocked(ctx, id, true)
}

// UnlockSeries clears the locked flag.
func (s *SeriesService) UnlockSeries(ctx context.Context, id string) error {
	return s.setLocked(ctx, id, false)
}

func (s *SeriesService) setLocked(ctx context.Context, id string, locked bool) error {
	return s.store.Transaction(ctx, func(tx persistence.Store) error {
		row, err := tx.GetSeries(ctx, id)
		if errors.Is(err, persistence.ErrNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		if row.Locked == locked {
			return nil
		}
		row.Locked = locked
		row.UpdatedAt = s.now()
		return tx.UpdateSeries(ctx, row)
	})
}

// DeleteSeries removes a series and everything owned by it. Logged
// completions and parent-side links block the delete.
func (s *SeriesService) DeleteSeries(ctx context.Context, id string) error {
	logger := s.loggerWith(ctx, "DeleteSeries", "series_id", id)

	err := s.store.Transaction(ctx, func(tx persistence.Store) error {
		row, err := tx.GetSeries(ctx, id)
		if errors.Is(err, persistence.ErrNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		if row.Locked {
			return ErrLockedSeries
		}
		completions, err := tx.ListCompletionsForSeries(ctx, id)
		if err != nil {
			return err
		}
		if len(completions) > 0 {
			return ErrCompletionsExist
		}
		children, err := tx.ListLinksByParent(ctx, id)
		if err != nil {
			return err
		}
		if len(children) > 0 {
			return ErrLinkedChildrenExist
		}
		return tx.DeleteSeries(ctx, id)
	})
	if err != nil {
		logger.Warn("series delete rejected", "error", err, "error_kind", ErrorKind(err))
		return err
	}
	logger.Info("series deleted")
	return nil
}

// SplitSeries clones the series at splitDate: the original ends (exclusive)
// at splitDate and the clone starts there, inheriting patterns, reminders,
// cycling state, adaptive config, and tags, with overrides applied. Returns
// the clone's id.
func (s *SeriesService) SplitSeries(ctx context.Context, id string, splitDate timeutil.Date, overrides SplitOverrides) (string, error) {
	logger := s.loggerWith(ctx, "SplitSeries", "series_id", id, "split_date", splitDate.String())

	var newID string
	err := s.store.Transaction(ctx, func(tx persistence.Store) error {
		row, err := tx.GetSeries(ctx, id)
		if errors.Is(err, persistence.ErrNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		if row.Locked {
			return ErrLockedSeries
		}
		original, err := loadSeriesDetail(ctx, tx, row)
		if err != nil {
			return err
		}

		validation := &ValidationError{}
		if !splitDate.After(original.StartDate) {
			validation.add("splitDate", "must be after the series start date")
		}
		if original.EndDate != nil && !splitDate.Before(*original.EndDate) {
			validation.add("splitDate", "must be before the series end date")
		}
		if err := validation.errOrNil(); err != nil {
			return err
		}

		splitCopy := splitDate
		row.EndDate = &splitCopy
		row.Count = nil
		row.UpdatedAt = s.now()
		if err := tx.UpdateSeries(ctx, row); err != nil {
			return err
		}

		clone := original
		clone.ID = s.idGenerator()
		clone.StartDate = splitDate
		clone.EndDate = original.EndDate
		clone.Count = nil
		now := s.now()
		clone.CreatedAt = now
		clone.UpdatedAt = now
		applySplitOverrides(&clone, overrides)
		if err := validateSeries(&clone); err != nil {
			return err
		}
		if err := persistSeries(ctx, tx, clone, s.idGenerator); err != nil {
			return err
		}
		newID = clone.ID
		return nil
	})
	if err != nil {
		logger.Warn("series split rejected", "error", err, "error_kind", ErrorKind(err))
		return "", err
	}
	logger.Info("series split", "new_series_id", newID)
	return newID, nil
}

// rewriteSeries persists the updated series, replacing children wholesale.
func (s *SeriesService) rewriteSeries(ctx context.Context, tx persistence.Store, current, next Series) error {
	if err := tx.UpdateSeries(ctx, seriesRowFromDomain(next)); err != nil {
		return err
	}
	if err := tx.DeletePatternsForSeries(ctx, next.ID); err != nil {
		return err
	}
	if err := tx.DeleteConditionsForSeries(ctx, next.ID); err != nil {
		return err
	}
	for _, sp := range next.Patterns {
		if err := persistPattern(ctx, tx, next.ID, sp, s.idGenerator); err != nil {
			return err
		}
	}

	for _, r := range current.Reminders {
		if err := tx.DeleteReminder(ctx, r.ID); err != nil {
			return err
		}
	}
	for _, r := range next.Reminders {
		id := r.ID
		if id == "" {
			id = s.idGenerator()
		}
		if err := tx.CreateReminder(ctx, persistence.Reminder{
			ID: id, SeriesID: next.ID, MinutesBefore: r.MinutesBefore, Label: r.Label,
		}); err != nil {
			return err
		}
	}

	if next.Cycling != nil {
		if err := tx.UpsertCyclingConfig(ctx, persistence.CyclingConfig{
			SeriesID:     next.ID,
			Mode:         string(next.Cycling.Mode),
			GapLeap:      next.Cycling.GapLeap,
			CurrentIndex: next.Cycling.CurrentIndex,
		}); err != nil {
			return err
		}
		items := make([]persistence.CyclingItem, len(next.Cycling.Items))
		for i, title := range next.Cycling.Items {
			items[i] = persistence.CyclingItem{SeriesID: next.ID, Position: i, Title: title}
		}
		if err := tx.ReplaceCyclingItems(ctx, next.ID, items); err != nil {
			return err
		}
	}

	if next.Duration.Kind == DurationAdaptive {
		spec := next.Duration.Adaptive
		if err := tx.UpsertAdaptiveDuration(ctx, persistence.AdaptiveDuration{
			SeriesID:        next.ID,
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

	if next.Cycling == nil && current.Cycling != nil {
		if err := tx.DeleteCyclingConfig(ctx, next.ID); err != nil {
			return err
		}
	}
	if next.Duration.Kind != DurationAdaptive && current.Duration.Kind == DurationAdaptive {
		if err := tx.DeleteAdaptiveDuration(ctx, next.ID); err != nil {
			return err
		}
	}

	currentTags, err := tx.ListTagsForSeries(ctx, next.ID)
	if err != nil {
		return err
	}
	nextTags := make(map[string]bool, len(next.Tags))
	for _, name := range next.Tags {
		nextTags[name] = true
	}
	for _, tag := range currentTags {
		if !nextTags[tag.Name] {
			if err := tx.RemoveSeriesTag(ctx, next.ID, tag.ID); err != nil {
				return err
			}
		}
		delete(nextTags, tag.Name)
	}
	for name := range nextTags {
		if err := tagSeries(ctx, tx, next.ID, name, s.idGenerator); err != nil {
			return err
		}
	}
	return nil
}

// normalize turns the raw input into a validated domain series.
func (s *SeriesService) normalize(input SeriesInput) (Series, error) {
	series := Series{
		Title:       strings.TrimSpace(input.Title),
		Description: input.Description,
		StartDate:   input.StartDate,
		EndDate:     input.EndDate,
		Count:       input.Count,
		Fixed:       input.Fixed,
		Wiggle:      input.Wiggle,
		Reminders:   input.Reminders,
		Cycling:     input.Cycling,
		Tags:        input.Tags,
	}

	series.Patterns = input.Patterns
	if input.Pattern != nil {
		series.Patterns = append([]SeriesPattern{*input.Pattern}, series.Patterns...)
	}

	switch {
	case input.TimeOfDay != nil:
		tod := *input.TimeOfDay
		series.TimeOfDay = &tod
	case input.Time != nil:
		tod := input.Time.Time
		series.TimeOfDay = &tod
	}

	switch {
	case input.Adaptive != nil:
		spec := *input.Adaptive
		if spec.LastN == 0 {
			spec.LastN = defaultAdaptiveLastN
		}
		if spec.WindowDays == 0 {
			spec.WindowDays = defaultAdaptiveWindowDays
		}
		series.Duration = Duration{Kind: DurationAdaptive, Adaptive: &spec}
	case input.DurationMinutes != nil:
		series.Duration = Duration{Kind: DurationFixed, Minutes: *input.DurationMinutes}
	default:
		series.Duration = Duration{Kind: DurationAllDay}
	}

	// A one-off: no patterns and no bound means a single occurrence.
	if len(series.Patterns) == 0 && series.Count == nil && series.EndDate == nil {
		one := 1
		series.Count = &one
	}

	if err := validateSeries(&series); err != nil {
		return Series{}, err
	}
	return series, nil
}

// validateSeries checks every invariant of the domain shape.
func validateSeries(s *Series) error {
	v := &ValidationError{}

	if s.Title == "" {
		v.add("title", "must not be empty")
	}
	if s.StartDate.IsZero() {
		v.add("startDate", "is required")
	}
	if s.EndDate != nil && !s.EndDate.After(s.StartDate) {
		v.add("endDate", "must be after startDate")
	}
	if s.Count != nil && s.EndDate != nil {
		v.add("count", "is mutually exclusive with endDate")
	}
	if s.Count != nil && *s.Count < 1 {
		v.add("count", "must be at least 1")
	}

	allDayTime := s.TimeOfDay == nil
	allDayDuration := s.Duration.Kind == DurationAllDay
	if allDayTime != allDayDuration {
		v.add("duration", "all-day time and all-day duration must be set together")
	}
	if s.Duration.Kind == DurationFixed && s.Duration.Minutes < 1 {
		v.add("duration", "must be positive minutes")
	}
	if s.Duration.Kind == DurationAdaptive {
		spec := s.Duration.Adaptive
		if spec == nil {
			v.add("adaptive", "spec is required")
		} else {
			if spec.FallbackMinutes < 1 {
				v.add("adaptive.fallback", "must be at least 1 minute")
			}
			if spec.MinMinutes != nil && spec.MaxMinutes != nil && *spec.MinMinutes >= *spec.MaxMinutes {
				v.add("adaptive.min", "must be less than max")
			}
		}
	}

	if s.Wiggle != nil {
		if s.Wiggle.DaysBefore < 0 {
			v.add("wiggle.daysBefore", "must not be negative")
		}
		if s.Wiggle.DaysAfter < 0 {
			v.add("wiggle.daysAfter", "must not be negative")
		}
		if s.Wiggle.Earliest != nil && s.Wiggle.Latest != nil && !s.Wiggle.Earliest.Before(*s.Wiggle.Latest) {
			v.add("wiggle.earliest", "must be before latest")
		}
		if s.Fixed && (s.Wiggle.DaysBefore != 0 || s.Wiggle.DaysAfter != 0) {
			v.add("wiggle", "fixed series cannot move across days")
		}
	}

	for i, sp := range s.Patterns {
		if err := sp.Pattern.Validate(); err != nil {
			v.add(fmt.Sprintf("patterns[%d]", i), err.Error())
		}
		if sp.Condition != nil {
			if err := sp.Condition.Validate(); err != nil {
				v.add(fmt.Sprintf("patterns[%d].condition", i), err.Error())
			}
		}
	}

	for i, r := range s.Reminders {
		if r.MinutesBefore < 0 {
			v.add(fmt.Sprintf("reminders[%d]", i), "minutesBefore must not be negative")
		}
	}

	if s.Cycling != nil {
		if len(s.Cycling.Items) == 0 {
			v.add("cycling.items", "must not be empty")
		}
		switch s.Cycling.Mode {
		case CyclingSequential, CyclingRandom:
		default:
			v.add("cycling.mode", "must be sequential or random")
		}
		if len(s.Cycling.Items) > 0 && (s.Cycling.CurrentIndex < 0 || s.Cycling.CurrentIndex >= len(s.Cycling.Items)) {
			v.add("cycling.currentIndex", "out of range")
		}
	}

	return v.errOrNil()
}

// onlyLockChange reports whether the update carries nothing but the locked
// flag.
func onlyLockChange(u SeriesUpdate) bool {
	u.Locked = nil
	return u.Title == nil && u.Description == nil && u.StartDate == nil &&
		u.EndDate == nil && !u.ClearEnd && u.Count == nil && !u.ClearCount &&
		u.TimeOfDay == nil && u.AllDay == nil && u.DurationMinutes == nil &&
		u.Adaptive == nil && u.Fixed == nil && u.Wiggle == nil &&
		u.Patterns == nil && u.Reminders == nil && u.Cycling == nil && u.Tags == nil
}

func applyUpdate(current Series, u SeriesUpdate) Series {
	next := current
	if u.Title != nil {
		next.Title = strings.TrimSpace(*u.Title)
	}
	if u.Description != nil {
		next.Description = u.Description
	}
	if u.StartDate != nil {
		next.StartDate = *u.StartDate
	}
	if u.ClearEnd {
		next.EndDate = nil
	}
	if u.EndDate != nil {
		end := *u.EndDate
		next.EndDate = &end
	}
	if u.ClearCount {
		next.Count = nil
	}
	if u.Count != nil {
		count := *u.Count
		next.Count = &count
	}
	if u.AllDay != nil && *u.AllDay {
		next.TimeOfDay = nil
		next.Duration = Duration{Kind: DurationAllDay}
	}
	if u.TimeOfDay != nil {
		tod := *u.TimeOfDay
		next.TimeOfDay = &tod
	}
	if u.DurationMinutes != nil {
		next.Duration = Duration{Kind: DurationFixed, Minutes: *u.DurationMinutes}
	}
	if u.Adaptive != nil {
		spec := *u.Adaptive
		if spec.LastN == 0 {
			spec.LastN = defaultAdaptiveLastN
		}
		if spec.WindowDays == 0 {
			spec.WindowDays = defaultAdaptiveWindowDays
		}
		next.Duration = Duration{Kind: DurationAdaptive, Adaptive: &spec}
	}
	if u.Locked != nil {
		next.Locked = *u.Locked
	}
	if u.Fixed != nil {
		next.Fixed = *u.Fixed
	}
	if u.Wiggle != nil {
		w := *u.Wiggle
		next.Wiggle = &w
	}
	if u.Patterns != nil {
		next.Patterns = u.Patterns
	}
	if u.Reminders != nil {
		next.Reminders = u.Reminders
	}
	if u.Cycling != nil {
		c := *u.Cycling
		next.Cycling = &c
	}
	if u.Tags != nil {
		next.Tags = u.Tags
	}
	return next
}

func applySplitOverrides(s *Series, o SplitOverrides) {
	if o.Title != nil {
		s.Title = *o.Title
	}
	if o.Description != nil {
		s.Description = o.Description
	}
	if o.TimeOfDay != nil {
		tod := *o.TimeOfDay
		s.TimeOfDay = &tod
	}
	if o.DurationMinutes != nil {
		s.Duration = Duration{Kind: DurationFixed, Minutes: *o.DurationMinutes}
	}
	if o.Fixed != nil {
		s.Fixed = *o.Fixed
	}
	if o.Wiggle != nil {
		w := *o.Wiggle
		s.Wiggle = &w
	}
}
