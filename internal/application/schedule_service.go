package application

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"time"

	"github.com/example/autoplanner/internal/persistence"
	"github.com/example/autoplanner/internal/reflow"
	"github.com/example/autoplanner/internal/timeutil"
)

// Schedule is the materialized plan for a date range.
type Schedule struct {
	Instances        []Instance
	PendingReminders []PendingReminder
	Conflicts        []reflow.Conflict
}

// ScheduleService materializes schedules: it expands every series over the
// window, applies exceptions, derives candidate domains, and hands the
// result to the reflow engine.
type ScheduleService struct {
	store  persistence.Store
	engine *reflow.Engine
	now    func() time.Time
	logger *slog.Logger
}

// NewScheduleService wires dependencies for schedule materialization. A nil
// engine gets the default reflow engine.
func NewScheduleService(store persistence.Store, engine *reflow.Engine, now func() time.Time, logger *slog.Logger) *ScheduleService {
	if engine == nil {
		engine = reflow.NewEngine()
	}
	if now == nil {
		now = time.Now
	}
	return &ScheduleService{store: store, engine: engine, now: now, logger: defaultLogger(logger)}
}

func (s *ScheduleService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "ScheduleService", operation, attrs...)
}

// GetSchedule materializes the plan for [r.From, r.To): expanded instances
// with reflowed start times, reminders currently due, and any conflicts the
// reflow engine could not reconcile.
func (s *ScheduleService) GetSchedule(ctx context.Context, r DateRange) (Schedule, error) {
	logger := s.loggerWith(ctx, "GetSchedule", "from", r.From.String(), "to", r.To.String())

	if r.From.After(r.To) {
		v := &ValidationError{}
		v.add("range", "from must not be after to")
		return Schedule{}, v
	}

	rows, err := s.store.ListSeries(ctx)
	if err != nil {
		return Schedule{}, err
	}

	var (
		instances []Instance
		bySeries  = make(map[string]Series, len(rows))
	)
	for _, row := range rows {
		series, err := loadSeriesDetail(ctx, s.store, row)
		if err != nil {
			return Schedule{}, err
		}
		bySeries[series.ID] = series
		built, err := buildInstances(ctx, s.store, series, r)
		if err != nil {
			return Schedule{}, err
		}
		instances = append(instances, built...)
	}

	chains, err := s.buildChains(ctx, instances)
	if err != nil {
		return Schedule{}, err
	}
	relations, err := s.buildRelations(ctx)
	if err != nil {
		return Schedule{}, err
	}

	result := s.engine.Solve(reflow.Input{
		Instances: reflowInstances(instances, bySeries),
		Chains:    chains,
		Relations: relations,
	})

	if result.Solved {
		applyAssignments(instances, result.Assignments)
	} else {
		logger.Warn("reflow found conflicts", "conflict_count", len(result.Conflicts), "budget_exhausted", result.BudgetExhausted)
	}
	sortInstances(instances)

	reminders, err := s.pendingReminders(ctx, instances)
	if err != nil {
		return Schedule{}, err
	}

	logger.Info("schedule materialized", "instance_count", len(instances), "pending_reminders", len(reminders))
	return Schedule{Instances: instances, PendingReminders: reminders, Conflicts: result.Conflicts}, nil
}

// buildChains instantiates links against the expanded instances and pins
// parent ends for dates with logged completions.
func (s *ScheduleService) buildChains(ctx context.Context, instances []Instance) ([]reflow.Chain, error) {
	links, err := s.store.ListLinks(ctx)
	if err != nil {
		return nil, err
	}
	var chains []reflow.Chain
	for _, link := range links {
		chain := reflow.Chain{
			ParentSeriesID:        link.ParentSeriesID,
			ChildSeriesID:         link.ChildSeriesID,
			TargetDistanceMinutes: link.TargetDistanceMinutes,
			EarlyWobbleMinutes:    link.EarlyWobbleMinutes,
			LateWobbleMinutes:     link.LateWobbleMinutes,
			CompletedEnds:         make(map[timeutil.Date]timeutil.DateTime),
		}
		for _, inst := range instances {
			if inst.SeriesID != link.ParentSeriesID {
				continue
			}
			completion, err := s.store.GetCompletion(ctx, link.ParentSeriesID, inst.OriginalDate)
			if errors.Is(err, persistence.ErrNotFound) {
				continue
			}
			if err != nil {
				return nil, err
			}
			if completion.EndTime != nil {
				chain.CompletedEnds[inst.OriginalDate] = *completion.EndTime
			}
		}
		chains = append(chains, chain)
	}
	return chains, nil
}

// buildRelations resolves every stored constraint's targets to concrete
// series id sets.
func (s *ScheduleService) buildRelations(ctx context.Context) ([]reflow.Relation, error) {
	rows, err := s.store.ListConstraints(ctx)
	if err != nil {
		return nil, err
	}
	var relations []reflow.Relation
	for _, row := range rows {
		c := constraintFromRow(row)
		source, err := resolveTarget(ctx, s.store, c.Source)
		if err != nil {
			return nil, err
		}
		dest, err := resolveTarget(ctx, s.store, c.Dest)
		if err != nil {
			return nil, err
		}
		relations = append(relations, reflow.Relation{
			ID:            c.ID,
			Type:          reflow.RelationType(c.Type),
			SourceSeries:  source,
			DestSeries:    dest,
			WithinMinutes: c.WithinMinutes,
		})
	}
	return relations, nil
}

// pendingReminders reports reminders whose fire time has passed with no ack
// for the instance, skipping completed instances.
func (s *ScheduleService) pendingReminders(ctx context.Context, instances []Instance) ([]PendingReminder, error) {
	now := s.now()
	nowDT := timeutil.NewDate(now.Year(), int(now.Month()), now.Day()).
		At(timeutil.NewTimeOfDay(now.Hour(), now.Minute(), now.Second()))

	var pending []PendingReminder
	for _, inst := range instances {
		reminders, err := s.store.ListRemindersForSeries(ctx, inst.SeriesID)
		if err != nil {
			return nil, err
		}
		if len(reminders) == 0 {
			continue
		}
		if _, err := s.store.GetCompletion(ctx, inst.SeriesID, inst.OriginalDate); err == nil {
			continue
		} else if !errors.Is(err, persistence.ErrNotFound) {
			return nil, err
		}

		start := inst.Date.At(timeutil.TimeOfDay{})
		if inst.Start != nil {
			start = *inst.Start
		}
		for _, r := range reminders {
			fireAt := start.AddMinutes(-r.MinutesBefore)
			if fireAt.After(nowDT) {
				continue
			}
			acked, err := s.store.HasReminderAck(ctx, r.ID, inst.OriginalDate)
			if err != nil {
				return nil, err
			}
			if acked {
				continue
			}
			pending = append(pending, PendingReminder{
				ReminderID:   r.ID,
				SeriesID:     inst.SeriesID,
				InstanceDate: inst.OriginalDate,
				Label:        r.Label,
				FireAt:       fireAt,
			})
		}
	}
	return pending, nil
}

// AckReminder marks one reminder acknowledged for one instance date.
func (s *ScheduleService) AckReminder(ctx context.Context, reminderID string, instanceDate timeutil.Date) error {
	err := s.store.CreateReminderAck(ctx, persistence.ReminderAck{ReminderID: reminderID, InstanceDate: instanceDate})
	if errors.Is(err, persistence.ErrForeignKeyViolation) {
		return ErrNotFound
	}
	if errors.Is(err, persistence.ErrDuplicate) {
		return nil
	}
	return err
}

func reflowInstances(instances []Instance, bySeries map[string]Series) []reflow.Instance {
	out := make([]reflow.Instance, 0, len(instances))
	for _, inst := range instances {
		ri := reflow.Instance{
			Ref:             reflow.InstanceRef{SeriesID: inst.SeriesID, Date: inst.OriginalDate},
			DurationMinutes: inst.DurationMinutes,
			AllDay:          inst.AllDay,
			Fixed:           inst.Fixed,
		}
		if inst.Start != nil {
			ri.Start = *inst.Start
		} else {
			ri.Start = inst.Date.At(timeutil.TimeOfDay{})
		}
		if series, ok := bySeries[inst.SeriesID]; ok && series.Wiggle != nil && !inst.Fixed {
			ri.Wiggle = &reflow.Wiggle{
				DaysBefore: series.Wiggle.DaysBefore,
				DaysAfter:  series.Wiggle.DaysAfter,
				Earliest:   series.Wiggle.Earliest,
				Latest:     series.Wiggle.Latest,
			}
		}
		out = append(out, ri)
	}
	return out
}

// applyAssignments writes the reflowed starts back onto the timed
// instances.
func applyAssignments(instances []Instance, assignments []reflow.Assignment) {
	chosen := make(map[reflow.InstanceRef]reflow.Assignment, len(assignments))
	for _, a := range assignments {
		chosen[a.Ref] = a
	}
	for i := range instances {
		inst := &instances[i]
		if inst.AllDay {
			continue
		}
		a, ok := chosen[reflow.InstanceRef{SeriesID: inst.SeriesID, Date: inst.OriginalDate}]
		if !ok {
			continue
		}
		start, end := a.Start, a.End
		inst.Date = start.Date
		inst.Start = &start
		inst.End = &end
	}
}

func sortInstances(instances []Instance) {
	sort.Slice(instances, func(i, j int) bool {
		a, b := instances[i], instances[j]
		if c := a.Date.Compare(b.Date); c != 0 {
			return c < 0
		}
		switch {
		case a.AllDay != b.AllDay:
			return a.AllDay
		case !a.AllDay && !b.AllDay:
			if c := a.Start.Compare(*b.Start); c != 0 {
				return c < 0
			}
		}
		return a.SeriesID < b.SeriesID
	})
}
