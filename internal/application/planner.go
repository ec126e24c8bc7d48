package application

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/example/autoplanner/internal/persistence"
	"github.com/example/autoplanner/internal/reflow"
	"github.com/example/autoplanner/internal/timeutil"
)

// Planner is the public facade of the autoplanner: one object owning the
// storage handle and delegating to the domain services. All mutation flows
// through it; the underlying store is never shared.
type Planner struct {
	store       persistence.Store
	series      *SeriesService
	links       *LinkService
	constraints *ConstraintService
	completions *CompletionService
	schedules   *ScheduleService
	idGenerator func() string
	now         func() time.Time
	logger      *slog.Logger
	engine      *reflow.Engine
}

// PlannerOption customizes planner construction.
type PlannerOption func(*Planner)

// WithIDGenerator overrides the UUID-based id source; tests inject a
// deterministic generator.
func WithIDGenerator(generator func() string) PlannerOption {
	return func(p *Planner) { p.idGenerator = generator }
}

// WithClock overrides the wall clock.
func WithClock(now func() time.Time) PlannerOption {
	return func(p *Planner) { p.now = now }
}

// WithLogger sets the structured logger shared by every service.
func WithLogger(logger *slog.Logger) PlannerOption {
	return func(p *Planner) { p.logger = logger }
}

// WithEngine overrides the reflow engine, typically to tune the domain step
// or the search node budget.
func WithEngine(engine *reflow.Engine) PlannerOption {
	return func(p *Planner) { p.engine = engine }
}

// NewPlanner wires the full domain layer over one store.
func NewPlanner(store persistence.Store, opts ...PlannerOption) *Planner {
	p := &Planner{
		store:       store,
		idGenerator: uuid.NewString,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	p.logger = defaultLogger(p.logger)
	p.series = NewSeriesService(store, p.idGenerator, p.now, p.logger)
	p.links = NewLinkService(store, p.idGenerator, p.now, p.logger)
	p.constraints = NewConstraintService(store, p.idGenerator, p.now, p.logger)
	p.completions = NewCompletionService(store, p.idGenerator, p.now, p.logger)
	p.schedules = NewScheduleService(store, p.engine, p.now, p.logger)
	return p
}

// GetSchedule materializes the plan for the range.
func (p *Planner) GetSchedule(ctx context.Context, r DateRange) (Schedule, error) {
	return p.schedules.GetSchedule(ctx, r)
}

// CreateSeries creates a series and returns its id.
func (p *Planner) CreateSeries(ctx context.Context, input SeriesInput) (string, error) {
	return p.series.CreateSeries(ctx, input)
}

// GetSeries loads one series in full.
func (p *Planner) GetSeries(ctx context.Context, id string) (Series, error) {
	return p.series.GetSeries(ctx, id)
}

// UpdateSeries applies a partial update.
func (p *Planner) UpdateSeries(ctx context.Context, id string, update SeriesUpdate) error {
	return p.series.UpdateSeries(ctx, id, update)
}

// DeleteSeries removes a series.
func (p *Planner) DeleteSeries(ctx context.Context, id string) error {
	return p.series.DeleteSeries(ctx, id)
}

// LockSeries blocks mutations on the series until unlocked.
func (p *Planner) LockSeries(ctx context.Context, id string) error {
	return p.series.LockSeries(ctx, id)
}

// UnlockSeries lifts the lock.
func (p *Planner) UnlockSeries(ctx context.Context, id string) error {
	return p.series.UnlockSeries(ctx, id)
}

// SplitSeries splits a series at a date and returns the new series id.
func (p *Planner) SplitSeries(ctx context.Context, id string, splitDate timeutil.Date, overrides SplitOverrides) (string, error) {
	return p.series.SplitSeries(ctx, id, splitDate, overrides)
}

// LogCompletion records an executed instance.
func (p *Planner) LogCompletion(ctx context.Context, seriesID string, instanceDate timeutil.Date, times CompletionTimes) error {
	return p.completions.LogCompletion(ctx, seriesID, instanceDate, times)
}

// CancelInstance cancels one occurrence.
func (p *Planner) CancelInstance(ctx context.Context, seriesID string, originalDate timeutil.Date) error {
	return p.completions.CancelInstance(ctx, seriesID, originalDate)
}

// RescheduleInstance moves one occurrence.
func (p *Planner) RescheduleInstance(ctx context.Context, seriesID string, originalDate timeutil.Date, newDateTime timeutil.DateTime) error {
	return p.completions.RescheduleInstance(ctx, seriesID, originalDate, newDateTime)
}

// LinkSeries chains a child series after a parent.
func (p *Planner) LinkSeries(ctx context.Context, input LinkInput) (string, error) {
	return p.links.LinkSeries(ctx, input)
}

// UnlinkSeries removes the child's parent link.
func (p *Planner) UnlinkSeries(ctx context.Context, childSeriesID string) error {
	return p.links.UnlinkSeries(ctx, childSeriesID)
}

// UpdateLink adjusts an existing link's distance and wobble.
func (p *Planner) UpdateLink(ctx context.Context, linkID string, targetDistance, earlyWobble, lateWobble int) error {
	return p.links.UpdateLink(ctx, linkID, targetDistance, earlyWobble, lateWobble)
}

// CalculateChildTarget derives a linked child's target window on a date.
func (p *Planner) CalculateChildTarget(ctx context.Context, childSeriesID string, date timeutil.Date) (ChildTarget, error) {
	return p.links.CalculateChildTarget(ctx, childSeriesID, date)
}

// AddConstraint persists a relational constraint and returns its id.
func (p *Planner) AddConstraint(ctx context.Context, c Constraint) (string, error) {
	return p.constraints.AddConstraint(ctx, c)
}

// DeleteConstraint removes a relational constraint.
func (p *Planner) DeleteConstraint(ctx context.Context, id string) error {
	return p.constraints.DeleteConstraint(ctx, id)
}

// CheckConstraint evaluates a constraint against one day's schedule.
func (p *Planner) CheckConstraint(ctx context.Context, c Constraint, date timeutil.Date) (bool, error) {
	return p.constraints.CheckConstraint(ctx, c, date)
}

// AckReminder acknowledges one reminder occurrence.
func (p *Planner) AckReminder(ctx context.Context, reminderID string, instanceDate timeutil.Date) error {
	return p.schedules.AckReminder(ctx, reminderID, instanceDate)
}

// AdvanceCycling advances a gap-leap cycling rotation by one item.
func (p *Planner) AdvanceCycling(ctx context.Context, seriesID string) error {
	return p.store.Transaction(ctx, func(tx persistence.Store) error {
		config, err := tx.GetCyclingConfig(ctx, seriesID)
		if errors.Is(err, persistence.ErrNotFound) {
			return ErrNoCycling
		}
		if err != nil {
			return err
		}
		if !config.GapLeap {
			return ErrGapLeapDisabled
		}
		items, err := tx.ListCyclingItems(ctx, seriesID)
		if err != nil {
			return err
		}
		if len(items) == 0 {
			return ErrNoCycling
		}
		config.CurrentIndex = (config.CurrentIndex + 1) % len(items)
		return tx.UpsertCyclingConfig(ctx, config)
	})
}

// ResetCycling rewinds a cycling rotation to the first item.
func (p *Planner) ResetCycling(ctx context.Context, seriesID string) error {
	return p.store.Transaction(ctx, func(tx persistence.Store) error {
		config, err := tx.GetCyclingConfig(ctx, seriesID)
		if errors.Is(err, persistence.ErrNotFound) {
			return ErrNoCycling
		}
		if err != nil {
			return err
		}
		config.CurrentIndex = 0
		return tx.UpsertCyclingConfig(ctx, config)
	})
}

// CreateTag creates a named tag and returns its id.
func (p *Planner) CreateTag(ctx context.Context, name string) (string, error) {
	tag := persistence.Tag{ID: p.idGenerator(), Name: name}
	if err := p.store.CreateTag(ctx, tag); err != nil {
		return "", err
	}
	return tag.ID, nil
}

// DeleteTag removes a tag and its associations; tagged series survive.
func (p *Planner) DeleteTag(ctx context.Context, id string) error {
	err := p.store.DeleteTag(ctx, id)
	if errors.Is(err, persistence.ErrNotFound) {
		return ErrNotFound
	}
	return err
}

// TagSeries associates a series with a tag by name, creating the tag on
// first use.
func (p *Planner) TagSeries(ctx context.Context, seriesID, tagName string) error {
	return p.store.Transaction(ctx, func(tx persistence.Store) error {
		return tagSeries(ctx, tx, seriesID, tagName, p.idGenerator)
	})
}

// UntagSeries drops the association between a series and a tag name.
func (p *Planner) UntagSeries(ctx context.Context, seriesID, tagName string) error {
	tag, err := p.store.GetTagByName(ctx, tagName)
	if errors.Is(err, persistence.ErrNotFound) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	err = p.store.RemoveSeriesTag(ctx, seriesID, tag.ID)
	if errors.Is(err, persistence.ErrNotFound) {
		return ErrNotFound
	}
	return err
}
