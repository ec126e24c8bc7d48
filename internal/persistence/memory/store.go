// Package memory provides the in-memory reference implementation of
// persistence.Store. It is the store tests run against and is faithful to
// the cascade/restrict matrix and the snapshot-rollback transaction
// semantics of the abstract contract.
package memory

import (
	"context"
	"sort"
	"strconv"
	"sync"

	"github.com/example/autoplanner/internal/persistence"
	"github.com/example/autoplanner/internal/timeutil"
)

// Store is a snapshot-copy in-memory store. A single mutex serializes all
// access; transactions snapshot every table and restore on failure. Rows are
// stored and returned by value and must be treated as immutable by callers.
type Store struct {
	mu sync.Mutex
	st *state
	// tx marks a transaction-scoped view; nested Transaction calls flatten.
	tx bool
}

type state struct {
	series          *table[persistence.Series]
	patterns        *table[persistence.Pattern]
	patternWeekdays *table[persistence.PatternWeekday]
	conditions      *table[persistence.Condition]
	completions     *table[persistence.Completion]
	exceptions      *table[persistence.InstanceException]
	adaptive        *table[persistence.AdaptiveDuration]
	cycling         *table[persistence.CyclingConfig]
	cyclingItems    *table[persistence.CyclingItem]
	reminders       *table[persistence.Reminder]
	reminderAcks    *table[persistence.ReminderAck]
	links           *table[persistence.Link]
	constraints     *table[persistence.RelationalConstraint]
	tags            *table[persistence.Tag]
	seriesTags      *table[persistence.SeriesTag]
}

// NewStore returns an empty in-memory store.
func NewStore() *Store {
	return &Store{st: &state{
		series:          newTable[persistence.Series](),
		patterns:        newTable[persistence.Pattern](),
		patternWeekdays: newTable[persistence.PatternWeekday](),
		conditions:      newTable[persistence.Condition](),
		completions:     newTable[persistence.Completion](),
		exceptions:      newTable[persistence.InstanceException](),
		adaptive:        newTable[persistence.AdaptiveDuration](),
		cycling:         newTable[persistence.CyclingConfig](),
		cyclingItems:    newTable[persistence.CyclingItem](),
		reminders:       newTable[persistence.Reminder](),
		reminderAcks:    newTable[persistence.ReminderAck](),
		links:           newTable[persistence.Link](),
		constraints:     newTable[persistence.RelationalConstraint](),
		tags:            newTable[persistence.Tag](),
		seriesTags:      newTable[persistence.SeriesTag](),
	}}
}

func (s *state) snapshot() *state {
	return &state{
		series:          s.series.snapshot(),
		patterns:        s.patterns.snapshot(),
		patternWeekdays: s.patternWeekdays.snapshot(),
		conditions:      s.conditions.snapshot(),
		completions:     s.completions.snapshot(),
		exceptions:      s.exceptions.snapshot(),
		adaptive:        s.adaptive.snapshot(),
		cycling:         s.cycling.snapshot(),
		cyclingItems:    s.cyclingItems.snapshot(),
		reminders:       s.reminders.snapshot(),
		reminderAcks:    s.reminderAcks.snapshot(),
		links:           s.links.snapshot(),
		constraints:     s.constraints.snapshot(),
		tags:            s.tags.snapshot(),
		seriesTags:      s.seriesTags.snapshot(),
	}
}

// Transaction runs fn against a view sharing this store's state. On error
// every table is restored to its pre-transaction snapshot. Calls made on an
// already transactional view flatten into the outer transaction and share
// its fate.
func (s *Store) Transaction(ctx context.Context, fn func(tx persistence.Store) error) error {
	if s.tx {
		return fn(s)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.st.snapshot()
	view := &Store{st: s.st, tx: true}
	if err := fn(view); err != nil {
		s.st = snapshot
		return err
	}
	return nil
}

func (s *Store) lock() func() {
	if s.tx {
		return func() {}
	}
	s.mu.Lock()
	return s.mu.Unlock
}

func dateKey(seriesID string, d timeutil.Date) string {
	return seriesID + "|" + d.String()
}

var _ persistence.Store = (*Store)(nil)

// CreateSeries inserts a new series row.
func (s *Store) CreateSeries(ctx context.Context, row persistence.Series) error {
	defer s.lock()()
	return s.st.series.insert(row.ID, row)
}

// GetSeries retrieves a series by id.
func (s *Store) GetSeries(ctx context.Context, id string) (persistence.Series, error) {
	defer s.lock()()
	row, ok := s.st.series.get(id)
	if !ok {
		return persistence.Series{}, persistence.ErrNotFound
	}
	return row, nil
}

// ListSeries returns every series in creation order.
func (s *Store) ListSeries(ctx context.Context) ([]persistence.Series, error) {
	defer s.lock()()
	return s.st.series.list(), nil
}

// UpdateSeries replaces an existing series row.
func (s *Store) UpdateSeries(ctx context.Context, row persistence.Series) error {
	defer s.lock()()
	return s.st.series.update(row.ID, row)
}

// DeleteSeries removes a series and everything that cascades with it. A
// completion or a parent-side link blocks the delete.
func (s *Store) DeleteSeries(ctx context.Context, id string) error {
	defer s.lock()()
	if _, ok := s.st.series.get(id); !ok {
		return persistence.ErrNotFound
	}
	blocked := s.st.completions.where(func(c persistence.Completion) bool { return c.SeriesID == id })
	if len(blocked) > 0 {
		return persistence.ErrForeignKeyViolation
	}
	parentLinks := s.st.links.where(func(l persistence.Link) bool { return l.ParentSeriesID == id })
	if len(parentLinks) > 0 {
		return persistence.ErrForeignKeyViolation
	}

	for _, p := range s.st.patterns.where(func(p persistence.Pattern) bool { return p.SeriesID == id }) {
		patternID := p.ID
		s.st.patternWeekdays.deleteWhere(func(w persistence.PatternWeekday) bool { return w.PatternID == patternID })
	}
	s.st.patterns.deleteWhere(func(p persistence.Pattern) bool { return p.SeriesID == id })
	s.st.conditions.deleteWhere(func(c persistence.Condition) bool { return c.SeriesID == id })
	s.st.adaptive.delete(id)
	s.st.cycling.delete(id)
	s.st.cyclingItems.deleteWhere(func(i persistence.CyclingItem) bool { return i.SeriesID == id })
	s.st.exceptions.deleteWhere(func(e persistence.InstanceException) bool { return e.SeriesID == id })
	for _, r := range s.st.reminders.where(func(r persistence.Reminder) bool { return r.SeriesID == id }) {
		reminderID := r.ID
		s.st.reminderAcks.deleteWhere(func(a persistence.ReminderAck) bool { return a.ReminderID == reminderID })
	}
	s.st.reminders.deleteWhere(func(r persistence.Reminder) bool { return r.SeriesID == id })
	s.st.seriesTags.deleteWhere(func(st persistence.SeriesTag) bool { return st.SeriesID == id })
	s.st.links.deleteWhere(func(l persistence.Link) bool { return l.ChildSeriesID == id })
	s.st.series.delete(id)
	return nil
}

// CreatePattern inserts a pattern row for an existing series.
func (s *Store) CreatePattern(ctx context.Context, row persistence.Pattern) error {
	defer s.lock()()
	if _, ok := s.st.series.get(row.SeriesID); !ok {
		return persistence.ErrForeignKeyViolation
	}
	if row.ParentID != nil {
		if _, ok := s.st.patterns.get(*row.ParentID); !ok {
			return persistence.ErrForeignKeyViolation
		}
	}
	return s.st.patterns.insert(row.ID, row)
}

// ListPatternsForSeries returns the series' pattern rows in insertion order.
func (s *Store) ListPatternsForSeries(ctx context.Context, seriesID string) ([]persistence.Pattern, error) {
	defer s.lock()()
	return s.st.patterns.where(func(p persistence.Pattern) bool { return p.SeriesID == seriesID }), nil
}

// DeletePatternsForSeries removes the series' patterns and their weekday
// masks.
func (s *Store) DeletePatternsForSeries(ctx context.Context, seriesID string) error {
	defer s.lock()()
	for _, p := range s.st.patterns.where(func(p persistence.Pattern) bool { return p.SeriesID == seriesID }) {
		patternID := p.ID
		s.st.patternWeekdays.deleteWhere(func(w persistence.PatternWeekday) bool { return w.PatternID == patternID })
	}
	s.st.patterns.deleteWhere(func(p persistence.Pattern) bool { return p.SeriesID == seriesID })
	return nil
}

// CreatePatternWeekday adds one weekday mask member to a pattern.
func (s *Store) CreatePatternWeekday(ctx context.Context, row persistence.PatternWeekday) error {
	defer s.lock()()
	if _, ok := s.st.patterns.get(row.PatternID); !ok {
		return persistence.ErrForeignKeyViolation
	}
	key := row.PatternID + "|" + strconv.Itoa(row.Weekday)
	return s.st.patternWeekdays.insert(key, row)
}

// ListPatternWeekdays returns a pattern's weekday mask, ascending.
func (s *Store) ListPatternWeekdays(ctx context.Context, patternID string) ([]persistence.PatternWeekday, error) {
	defer s.lock()()
	rows := s.st.patternWeekdays.where(func(w persistence.PatternWeekday) bool { return w.PatternID == patternID })
	sort.Slice(rows, func(i, j int) bool { return rows[i].Weekday < rows[j].Weekday })
	return rows, nil
}

// CreateCondition inserts a condition node for an existing series.
func (s *Store) CreateCondition(ctx context.Context, row persistence.Condition) error {
	defer s.lock()()
	if _, ok := s.st.series.get(row.SeriesID); !ok {
		return persistence.ErrForeignKeyViolation
	}
	if row.ParentID != nil {
		if _, ok := s.st.conditions.get(*row.ParentID); !ok {
			return persistence.ErrForeignKeyViolation
		}
	}
	return s.st.conditions.insert(row.ID, row)
}

// GetCondition retrieves a condition node by id.
func (s *Store) GetCondition(ctx context.Context, id string) (persistence.Condition, error) {
	defer s.lock()()
	row, ok := s.st.conditions.get(id)
	if !ok {
		return persistence.Condition{}, persistence.ErrNotFound
	}
	return row, nil
}

// ListConditionsForSeries returns the series' condition rows.
func (s *Store) ListConditionsForSeries(ctx context.Context, seriesID string) ([]persistence.Condition, error) {
	defer s.lock()()
	return s.st.conditions.where(func(c persistence.Condition) bool { return c.SeriesID == seriesID }), nil
}

// DeleteConditionsForSeries removes every condition node of a series.
func (s *Store) DeleteConditionsForSeries(ctx context.Context, seriesID string) error {
	defer s.lock()()
	s.st.conditions.deleteWhere(func(c persistence.Condition) bool { return c.SeriesID == seriesID })
	return nil
}

// CreateCompletion logs an execution; duplicate (series, instanceDate) pairs
// are rejected.
func (s *Store) CreateCompletion(ctx context.Context, row persistence.Completion) error {
	defer s.lock()()
	if _, ok := s.st.series.get(row.SeriesID); !ok {
		return persistence.ErrForeignKeyViolation
	}
	return s.st.completions.insert(dateKey(row.SeriesID, row.InstanceDate), row)
}

// GetCompletion retrieves a completion by its (series, instanceDate) key.
func (s *Store) GetCompletion(ctx context.Context, seriesID string, instanceDate timeutil.Date) (persistence.Completion, error) {
	defer s.lock()()
	row, ok := s.st.completions.get(dateKey(seriesID, instanceDate))
	if !ok {
		return persistence.Completion{}, persistence.ErrNotFound
	}
	return row, nil
}

// ListCompletionsForSeries returns completions ordered by actual date, most
// recent last.
func (s *Store) ListCompletionsForSeries(ctx context.Context, seriesID string) ([]persistence.Completion, error) {
	defer s.lock()()
	rows := s.st.completions.where(func(c persistence.Completion) bool { return c.SeriesID == seriesID })
	sort.Slice(rows, func(i, j int) bool { return rows[i].ActualDate.Before(rows[j].ActualDate) })
	return rows, nil
}

// DeleteCompletion removes one completion.
func (s *Store) DeleteCompletion(ctx context.Context, seriesID string, instanceDate timeutil.Date) error {
	defer s.lock()()
	if !s.st.completions.delete(dateKey(seriesID, instanceDate)) {
		return persistence.ErrNotFound
	}
	return nil
}

// CountCompletionsInWindow counts completions with actual date in [from, to).
func (s *Store) CountCompletionsInWindow(ctx context.Context, seriesID string, from, to timeutil.Date) (int, error) {
	defer s.lock()()
	rows := s.st.completions.where(func(c persistence.Completion) bool {
		return c.SeriesID == seriesID && !c.ActualDate.Before(from) && c.ActualDate.Before(to)
	})
	return len(rows), nil
}

// DaysSinceLastCompletion reports the day distance from the latest actual
// completion to asOf.
func (s *Store) DaysSinceLastCompletion(ctx context.Context, seriesID string, asOf timeutil.Date) (int, bool, error) {
	defer s.lock()()
	rows := s.st.completions.where(func(c persistence.Completion) bool { return c.SeriesID == seriesID })
	if len(rows) == 0 {
		return 0, false, nil
	}
	latest := rows[0].ActualDate
	for _, c := range rows[1:] {
		if c.ActualDate.After(latest) {
			latest = c.ActualDate
		}
	}
	return latest.DaysBetween(asOf), true, nil
}

// RecentDurations returns completion durations in minutes, most recent
// first, restricted per the query.
func (s *Store) RecentDurations(ctx context.Context, seriesID string, q persistence.DurationQuery) ([]int, error) {
	defer s.lock()()
	rows := s.st.completions.where(func(c persistence.Completion) bool {
		return c.SeriesID == seriesID && c.StartTime != nil && c.EndTime != nil
	})
	if q.WindowDays > 0 {
		from := q.AsOf.AddDays(-q.WindowDays)
		kept := rows[:0]
		for _, c := range rows {
			if !c.ActualDate.Before(from) && !c.ActualDate.After(q.AsOf) {
				kept = append(kept, c)
			}
		}
		rows = kept
	}
	sort.Slice(rows, func(i, j int) bool { return rows[j].ActualDate.Before(rows[i].ActualDate) })
	if q.LastN > 0 && len(rows) > q.LastN {
		rows = rows[:q.LastN]
	}
	durations := make([]int, 0, len(rows))
	for _, c := range rows {
		minutes := c.StartTime.MinutesBetween(*c.EndTime)
		if minutes > 0 {
			durations = append(durations, minutes)
		}
	}
	return durations, nil
}

// UpsertInstanceException writes an exception, replacing any prior row for
// the same (series, originalDate).
func (s *Store) UpsertInstanceException(ctx context.Context, row persistence.InstanceException) error {
	defer s.lock()()
	if _, ok := s.st.series.get(row.SeriesID); !ok {
		return persistence.ErrForeignKeyViolation
	}
	s.st.exceptions.put(dateKey(row.SeriesID, row.OriginalDate), row)
	return nil
}

// GetInstanceException retrieves the exception for one occurrence.
func (s *Store) GetInstanceException(ctx context.Context, seriesID string, originalDate timeutil.Date) (persistence.InstanceException, error) {
	defer s.lock()()
	row, ok := s.st.exceptions.get(dateKey(seriesID, originalDate))
	if !ok {
		return persistence.InstanceException{}, persistence.ErrNotFound
	}
	return row, nil
}

// ListInstanceExceptionsForSeries returns the series' exceptions.
func (s *Store) ListInstanceExceptionsForSeries(ctx context.Context, seriesID string) ([]persistence.InstanceException, error) {
	defer s.lock()()
	return s.st.exceptions.where(func(e persistence.InstanceException) bool { return e.SeriesID == seriesID }), nil
}

// DeleteInstanceException removes one exception.
func (s *Store) DeleteInstanceException(ctx context.Context, seriesID string, originalDate timeutil.Date) error {
	defer s.lock()()
	if !s.st.exceptions.delete(dateKey(seriesID, originalDate)) {
		return persistence.ErrNotFound
	}
	return nil
}

// UpsertAdaptiveDuration writes the adaptive config for a series.
func (s *Store) UpsertAdaptiveDuration(ctx context.Context, row persistence.AdaptiveDuration) error {
	defer s.lock()()
	if _, ok := s.st.series.get(row.SeriesID); !ok {
		return persistence.ErrForeignKeyViolation
	}
	s.st.adaptive.put(row.SeriesID, row)
	return nil
}

// GetAdaptiveDuration retrieves the adaptive config for a series.
func (s *Store) GetAdaptiveDuration(ctx context.Context, seriesID string) (persistence.AdaptiveDuration, error) {
	defer s.lock()()
	row, ok := s.st.adaptive.get(seriesID)
	if !ok {
		return persistence.AdaptiveDuration{}, persistence.ErrNotFound
	}
	return row, nil
}

// DeleteAdaptiveDuration removes the adaptive config; absent rows are a
// no-op.
func (s *Store) DeleteAdaptiveDuration(ctx context.Context, seriesID string) error {
	defer s.lock()()
	s.st.adaptive.delete(seriesID)
	return nil
}

// UpsertCyclingConfig writes the cycling config for a series.
func (s *Store) UpsertCyclingConfig(ctx context.Context, row persistence.CyclingConfig) error {
	defer s.lock()()
	if _, ok := s.st.series.get(row.SeriesID); !ok {
		return persistence.ErrForeignKeyViolation
	}
	s.st.cycling.put(row.SeriesID, row)
	return nil
}

// GetCyclingConfig retrieves the cycling config for a series.
func (s *Store) GetCyclingConfig(ctx context.Context, seriesID string) (persistence.CyclingConfig, error) {
	defer s.lock()()
	row, ok := s.st.cycling.get(seriesID)
	if !ok {
		return persistence.CyclingConfig{}, persistence.ErrNotFound
	}
	return row, nil
}

// ReplaceCyclingItems swaps the ordered item list for a series.
func (s *Store) ReplaceCyclingItems(ctx context.Context, seriesID string, items []persistence.CyclingItem) error {
	defer s.lock()()
	if _, ok := s.st.cycling.get(seriesID); !ok {
		return persistence.ErrForeignKeyViolation
	}
	s.st.cyclingItems.deleteWhere(func(i persistence.CyclingItem) bool { return i.SeriesID == seriesID })
	for _, item := range items {
		if err := s.st.cyclingItems.insert(seriesID+"|"+strconv.Itoa(item.Position), item); err != nil {
			return err
		}
	}
	return nil
}

// ListCyclingItems returns the series' items ordered by position.
func (s *Store) ListCyclingItems(ctx context.Context, seriesID string) ([]persistence.CyclingItem, error) {
	defer s.lock()()
	rows := s.st.cyclingItems.where(func(i persistence.CyclingItem) bool { return i.SeriesID == seriesID })
	sort.Slice(rows, func(i, j int) bool { return rows[i].Position < rows[j].Position })
	return rows, nil
}

// DeleteCyclingConfig removes the config and its items; absent rows are a
// no-op.
func (s *Store) DeleteCyclingConfig(ctx context.Context, seriesID string) error {
	defer s.lock()()
	s.st.cycling.delete(seriesID)
	s.st.cyclingItems.deleteWhere(func(i persistence.CyclingItem) bool { return i.SeriesID == seriesID })
	return nil
}

// CreateReminder inserts a reminder for an existing series.
func (s *Store) CreateReminder(ctx context.Context, row persistence.Reminder) error {
	defer s.lock()()
	if _, ok := s.st.series.get(row.SeriesID); !ok {
		return persistence.ErrForeignKeyViolation
	}
	return s.st.reminders.insert(row.ID, row)
}

// ListRemindersForSeries returns the series' reminders.
func (s *Store) ListRemindersForSeries(ctx context.Context, seriesID string) ([]persistence.Reminder, error) {
	defer s.lock()()
	return s.st.reminders.where(func(r persistence.Reminder) bool { return r.SeriesID == seriesID }), nil
}

// DeleteReminder removes a reminder and its acks.
func (s *Store) DeleteReminder(ctx context.Context, id string) error {
	defer s.lock()()
	if !s.st.reminders.delete(id) {
		return persistence.ErrNotFound
	}
	s.st.reminderAcks.deleteWhere(func(a persistence.ReminderAck) bool { return a.ReminderID == id })
	return nil
}

// CreateReminderAck marks a reminder acknowledged for one instance date.
func (s *Store) CreateReminderAck(ctx context.Context, row persistence.ReminderAck) error {
	defer s.lock()()
	if _, ok := s.st.reminders.get(row.ReminderID); !ok {
		return persistence.ErrForeignKeyViolation
	}
	return s.st.reminderAcks.insert(dateKey(row.ReminderID, row.InstanceDate), row)
}

// HasReminderAck reports whether an ack exists for the key.
func (s *Store) HasReminderAck(ctx context.Context, reminderID string, instanceDate timeutil.Date) (bool, error) {
	defer s.lock()()
	_, ok := s.st.reminderAcks.get(dateKey(reminderID, instanceDate))
	return ok, nil
}

// CreateLink inserts a link; a child may carry at most one parent link.
func (s *Store) CreateLink(ctx context.Context, row persistence.Link) error {
	defer s.lock()()
	if _, ok := s.st.series.get(row.ParentSeriesID); !ok {
		return persistence.ErrForeignKeyViolation
	}
	if _, ok := s.st.series.get(row.ChildSeriesID); !ok {
		return persistence.ErrForeignKeyViolation
	}
	existing := s.st.links.where(func(l persistence.Link) bool { return l.ChildSeriesID == row.ChildSeriesID })
	if len(existing) > 0 {
		return persistence.ErrDuplicate
	}
	return s.st.links.insert(row.ID, row)
}

// GetLink retrieves a link by id.
func (s *Store) GetLink(ctx context.Context, id string) (persistence.Link, error) {
	defer s.lock()()
	row, ok := s.st.links.get(id)
	if !ok {
		return persistence.Link{}, persistence.ErrNotFound
	}
	return row, nil
}

// GetLinkByChild retrieves the link whose child is the given series.
func (s *Store) GetLinkByChild(ctx context.Context, childSeriesID string) (persistence.Link, error) {
	defer s.lock()()
	rows := s.st.links.where(func(l persistence.Link) bool { return l.ChildSeriesID == childSeriesID })
	if len(rows) == 0 {
		return persistence.Link{}, persistence.ErrNotFound
	}
	return rows[0], nil
}

// ListLinks returns every link.
func (s *Store) ListLinks(ctx context.Context) ([]persistence.Link, error) {
	defer s.lock()()
	return s.st.links.list(), nil
}

// ListLinksByParent returns the links whose parent is the given series.
func (s *Store) ListLinksByParent(ctx context.Context, parentSeriesID string) ([]persistence.Link, error) {
	defer s.lock()()
	return s.st.links.where(func(l persistence.Link) bool { return l.ParentSeriesID == parentSeriesID }), nil
}

// UpdateLink replaces an existing link row.
func (s *Store) UpdateLink(ctx context.Context, row persistence.Link) error {
	defer s.lock()()
	return s.st.links.update(row.ID, row)
}

// DeleteLink removes a link.
func (s *Store) DeleteLink(ctx context.Context, id string) error {
	defer s.lock()()
	if !s.st.links.delete(id) {
		return persistence.ErrNotFound
	}
	return nil
}

// CreateConstraint inserts a relational constraint.
func (s *Store) CreateConstraint(ctx context.Context, row persistence.RelationalConstraint) error {
	defer s.lock()()
	return s.st.constraints.insert(row.ID, row)
}

// ListConstraints returns every relational constraint.
func (s *Store) ListConstraints(ctx context.Context) ([]persistence.RelationalConstraint, error) {
	defer s.lock()()
	return s.st.constraints.list(), nil
}

// DeleteConstraint removes a relational constraint.
func (s *Store) DeleteConstraint(ctx context.Context, id string) error {
	defer s.lock()()
	if !s.st.constraints.delete(id) {
		return persistence.ErrNotFound
	}
	return nil
}

// CreateTag inserts a tag; names are unique.
func (s *Store) CreateTag(ctx context.Context, row persistence.Tag) error {
	defer s.lock()()
	existing := s.st.tags.where(func(t persistence.Tag) bool { return t.Name == row.Name })
	if len(existing) > 0 {
		return persistence.ErrDuplicate
	}
	return s.st.tags.insert(row.ID, row)
}

// GetTag retrieves a tag by id.
func (s *Store) GetTag(ctx context.Context, id string) (persistence.Tag, error) {
	defer s.lock()()
	row, ok := s.st.tags.get(id)
	if !ok {
		return persistence.Tag{}, persistence.ErrNotFound
	}
	return row, nil
}

// GetTagByName retrieves a tag by its unique name.
func (s *Store) GetTagByName(ctx context.Context, name string) (persistence.Tag, error) {
	defer s.lock()()
	rows := s.st.tags.where(func(t persistence.Tag) bool { return t.Name == name })
	if len(rows) == 0 {
		return persistence.Tag{}, persistence.ErrNotFound
	}
	return rows[0], nil
}

// ListTags returns every tag.
func (s *Store) ListTags(ctx context.Context) ([]persistence.Tag, error) {
	defer s.lock()()
	return s.st.tags.list(), nil
}

// DeleteTag removes a tag and its series associations, never the series.
func (s *Store) DeleteTag(ctx context.Context, id string) error {
	defer s.lock()()
	if !s.st.tags.delete(id) {
		return persistence.ErrNotFound
	}
	s.st.seriesTags.deleteWhere(func(st persistence.SeriesTag) bool { return st.TagID == id })
	return nil
}

// AddSeriesTag associates a series with a tag.
func (s *Store) AddSeriesTag(ctx context.Context, row persistence.SeriesTag) error {
	defer s.lock()()
	if _, ok := s.st.series.get(row.SeriesID); !ok {
		return persistence.ErrForeignKeyViolation
	}
	if _, ok := s.st.tags.get(row.TagID); !ok {
		return persistence.ErrForeignKeyViolation
	}
	return s.st.seriesTags.insert(row.SeriesID+"|"+row.TagID, row)
}

// RemoveSeriesTag drops one association.
func (s *Store) RemoveSeriesTag(ctx context.Context, seriesID, tagID string) error {
	defer s.lock()()
	if !s.st.seriesTags.delete(seriesID + "|" + tagID) {
		return persistence.ErrNotFound
	}
	return nil
}

// ListTagsForSeries returns the tags associated with a series.
func (s *Store) ListTagsForSeries(ctx context.Context, seriesID string) ([]persistence.Tag, error) {
	defer s.lock()()
	assocs := s.st.seriesTags.where(func(st persistence.SeriesTag) bool { return st.SeriesID == seriesID })
	tags := make([]persistence.Tag, 0, len(assocs))
	for _, a := range assocs {
		if tag, ok := s.st.tags.get(a.TagID); ok {
			tags = append(tags, tag)
		}
	}
	return tags, nil
}

// ListSeriesIDsForTag returns ids of series bearing the tag.
func (s *Store) ListSeriesIDsForTag(ctx context.Context, tagID string) ([]string, error) {
	defer s.lock()()
	assocs := s.st.seriesTags.where(func(st persistence.SeriesTag) bool { return st.TagID == tagID })
	ids := make([]string, 0, len(assocs))
	for _, a := range assocs {
		ids = append(ids, a.SeriesID)
	}
	return ids, nil
}

