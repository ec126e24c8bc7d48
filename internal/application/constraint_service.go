package application

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/example/autoplanner/internal/persistence"
	"github.com/example/autoplanner/internal/timeutil"
)

// ConstraintService manages relational constraints and evaluates them
// against the currently scheduled instances of a single day. Contradictory
// constraints are accepted at creation; they surface as conflicts when the
// reflow engine runs.
type ConstraintService struct {
	store       persistence.Store
	idGenerator func() string
	now         func() time.Time
	logger      *slog.Logger
}

// NewConstraintService wires dependencies for constraint operations.
func NewConstraintService(store persistence.Store, idGenerator func() string, now func() time.Time, logger *slog.Logger) *ConstraintService {
	if idGenerator == nil {
		idGenerator = func() string { return "" }
	}
	if now == nil {
		now = time.Now
	}
	return &ConstraintService{store: store, idGenerator: idGenerator, now: now, logger: defaultLogger(logger)}
}

func (s *ConstraintService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "ConstraintService", operation, attrs...)
}

// AddConstraint validates the shape and persists the rule. Referenced
// series or tags are not required to exist: constraints outlive their
// targets.
func (s *ConstraintService) AddConstraint(ctx context.Context, c Constraint) (string, error) {
	logger := s.loggerWith(ctx, "AddConstraint", "type", string(c.Type))

	v := &ValidationError{}
	switch c.Type {
	case MustBeOnSameDay, CantBeOnSameDay, MustBeNextTo, CantBeNextTo, MustBeBefore, MustBeAfter:
	case MustBeWithin:
		if c.WithinMinutes <= 0 {
			v.add("withinMinutes", "must be positive")
		}
	default:
		v.add("type", "unknown constraint type")
	}
	for field, target := range map[string]Target{"source": c.Source, "dest": c.Dest} {
		switch target.Kind {
		case TargetByTag, TargetBySeries:
		default:
			v.add(field, "target kind must be tag or series")
		}
		if target.Value == "" {
			v.add(field, "target value must not be empty")
		}
	}
	if err := v.errOrNil(); err != nil {
		logger.Warn("constraint rejected", "error", err, "error_kind", ErrorKind(err))
		return "", err
	}

	row := persistence.RelationalConstraint{
		ID:          s.idGenerator(),
		Type:        string(c.Type),
		SourceType:  persistence.TargetType(c.Source.Kind),
		SourceValue: c.Source.Value,
		DestType:    persistence.TargetType(c.Dest.Kind),
		DestValue:   c.Dest.Value,
	}
	if c.Type == MustBeWithin {
		within := c.WithinMinutes
		row.WithinMinutes = &within
	}
	if err := s.store.CreateConstraint(ctx, row); err != nil {
		logger.Error("failed to persist constraint", "error", err, "error_kind", ErrorKind(err))
		return "", err
	}
	logger.Info("constraint added", "constraint_id", row.ID)
	return row.ID, nil
}

// DeleteConstraint removes a constraint.
func (s *ConstraintService) DeleteConstraint(ctx context.Context, id string) error {
	err := s.store.DeleteConstraint(ctx, id)
	if errors.Is(err, persistence.ErrNotFound) {
		return ErrNotFound
	}
	return err
}

// ListConstraints returns every constraint in domain shape.
func (s *ConstraintService) ListConstraints(ctx context.Context) ([]Constraint, error) {
	rows, err := s.store.ListConstraints(ctx)
	if err != nil {
		return nil, err
	}
	constraints := make([]Constraint, 0, len(rows))
	for _, row := range rows {
		constraints = append(constraints, constraintFromRow(row))
	}
	return constraints, nil
}

func constraintFromRow(row persistence.RelationalConstraint) Constraint {
	c := Constraint{
		ID:     row.ID,
		Type:   ConstraintType(row.Type),
		Source: Target{Kind: TargetKind(row.SourceType), Value: row.SourceValue},
		Dest:   Target{Kind: TargetKind(row.DestType), Value: row.DestValue},
	}
	if row.WithinMinutes != nil {
		c.WithinMinutes = *row.WithinMinutes
	}
	return c
}

// ResolveTarget enumerates the series ids a target currently matches. A
// tag names every series bearing it; a series id matches itself while the
// series still exists. A vanished target resolves to the empty set.
func (s *ConstraintService) ResolveTarget(ctx context.Context, target Target) ([]string, error) {
	return resolveTarget(ctx, s.store, target)
}

func resolveTarget(ctx context.Context, store persistence.Store, target Target) ([]string, error) {
	switch target.Kind {
	case TargetBySeries:
		if _, err := store.GetSeries(ctx, target.Value); err != nil {
			if errors.Is(err, persistence.ErrNotFound) {
				return nil, nil
			}
			return nil, err
		}
		return []string{target.Value}, nil
	case TargetByTag:
		tag, err := store.GetTagByName(ctx, target.Value)
		if errors.Is(err, persistence.ErrNotFound) {
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
		return store.ListSeriesIDsForTag(ctx, tag.ID)
	}
	return nil, nil
}

// CheckConstraint evaluates one constraint against the instances scheduled
// on a single day. Day-level types compare occurrence presence; intra-day
// types compare scheduled [start, end] ranges, skipping all-day instances.
// An empty source or dest set satisfies the constraint trivially.
func (s *ConstraintService) CheckConstraint(ctx context.Context, c Constraint, date timeutil.Date) (bool, error) {
	source, err := s.dayInstances(ctx, c.Source, date)
	if err != nil {
		return false, err
	}
	dest, err := s.dayInstances(ctx, c.Dest, date)
	if err != nil {
		return false, err
	}
	all, err := s.allDayInstances(ctx, date)
	if err != nil {
		return false, err
	}
	return constraintHolds(c, source, dest, all), nil
}

// dayInstances expands the target's series over one day.
func (s *ConstraintService) dayInstances(ctx context.Context, target Target, date timeutil.Date) ([]Instance, error) {
	ids, err := resolveTarget(ctx, s.store, target)
	if err != nil {
		return nil, err
	}
	var instances []Instance
	for _, id := range ids {
		row, err := s.store.GetSeries(ctx, id)
		if err != nil {
			return nil, err
		}
		series, err := loadSeriesDetail(ctx, s.store, row)
		if err != nil {
			return nil, err
		}
		built, err := buildInstances(ctx, s.store, series, DateRange{From: date, To: date.AddDays(1)})
		if err != nil {
			return nil, err
		}
		instances = append(instances, built...)
	}
	return instances, nil
}

// allDayInstances expands every series over one day; mustBeNextTo and
// cantBeNextTo need the full picture to detect interveners.
func (s *ConstraintService) allDayInstances(ctx context.Context, date timeutil.Date) ([]Instance, error) {
	rows, err := s.store.ListSeries(ctx)
	if err != nil {
		return nil, err
	}
	var instances []Instance
	for _, row := range rows {
		series, err := loadSeriesDetail(ctx, s.store, row)
		if err != nil {
			return nil, err
		}
		built, err := buildInstances(ctx, s.store, series, DateRange{From: date, To: date.AddDays(1)})
		if err != nil {
			return nil, err
		}
		instances = append(instances, built...)
	}
	return instances, nil
}

// constraintHolds applies the per-day satisfaction rules to concrete
// instance sets. The all slice carries every instance of the day and is
// only consulted by the adjacency types.
func constraintHolds(c Constraint, source, dest, all []Instance) bool {
	if len(source) == 0 || len(dest) == 0 {
		return true
	}

	switch c.Type {
	case MustBeOnSameDay:
		// Both sets are already restricted to the day: non-empty means
		// co-occurrence.
		return true
	case CantBeOnSameDay:
		return false
	}

	source = timed(source)
	dest = timed(dest)
	if len(source) == 0 || len(dest) == 0 {
		return true
	}

	switch c.Type {
	case MustBeBefore:
		for _, src := range source {
			for _, dst := range dest {
				if src.End.After(*dst.Start) {
					return false
				}
			}
		}
		return true
	case MustBeAfter:
		for _, src := range source {
			for _, dst := range dest {
				if dst.End.After(*src.Start) {
					return false
				}
			}
		}
		return true
	case MustBeWithin:
		for _, src := range source {
			for _, dst := range dest {
				if src.End.MinutesBetween(*dst.Start) > c.WithinMinutes {
					return false
				}
			}
		}
		return true
	case MustBeNextTo:
		for _, src := range source {
			for _, dst := range dest {
				if !adjacent(src, dst, all) {
					return false
				}
			}
		}
		return true
	case CantBeNextTo:
		for _, src := range source {
			for _, dst := range dest {
				if adjacent(src, dst, all) {
					return false
				}
			}
		}
		return true
	}
	return true
}

// timed filters out all-day instances, which intra-day constraints ignore.
func timed(instances []Instance) []Instance {
	var out []Instance
	for _, inst := range instances {
		if !inst.AllDay && inst.Start != nil && inst.End != nil {
			out = append(out, inst)
		}
	}
	return out
}

// adjacent reports whether no third instance occupies the gap between the
// earlier instance's end and the later one's start.
func adjacent(a, b Instance, all []Instance) bool {
	first, second := a, b
	if second.Start.Before(*first.Start) {
		first, second = second, first
	}
	gapStart := *first.End
	gapEnd := *second.Start
	if gapEnd.Before(gapStart) {
		// Overlapping instances are not adjacent.
		return false
	}
	for _, other := range timed(all) {
		if other.SeriesID == a.SeriesID || other.SeriesID == b.SeriesID {
			continue
		}
		if other.Start.Before(gapEnd) && other.End.After(gapStart) {
			return false
		}
	}
	return true
}
