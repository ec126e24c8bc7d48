package sqlite

import (
	"context"
	"database/sql"
	"errors"

	"github.com/example/autoplanner/internal/persistence"
)

// CreatePattern inserts one flat pattern row.
func (s *Store) CreatePattern(ctx context.Context, row persistence.Pattern) error {
	var role sql.NullString
	if row.Role != nil {
		role = sql.NullString{String: string(*row.Role), Valid: true}
	}
	_, err := s.q().ExecContext(ctx, `INSERT INTO pattern
		(id, series_id, kind, n, day, month, weekday, parent_id, role, condition_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		row.ID, row.SeriesID, row.Kind,
		nullInt(row.N), nullInt(row.Day), nullInt(row.Month), nullInt(row.Weekday),
		nullString(row.ParentID), role, nullString(row.ConditionID),
	)
	return mapError(err)
}

// ListPatternsForSeries returns the series' pattern rows, parents before
// children.
func (s *Store) ListPatternsForSeries(ctx context.Context, seriesID string) ([]persistence.Pattern, error) {
	rows, err := s.q().QueryContext(ctx, `SELECT
		id, series_id, kind, n, day, month, weekday, parent_id, role, condition_id
		FROM pattern WHERE series_id = ? ORDER BY rowid ASC`, seriesID)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	out := make([]persistence.Pattern, 0)
	for rows.Next() {
		var (
			row                     persistence.Pattern
			n, day, month, weekday  sql.NullInt64
			parentID, role, condID  sql.NullString
		)
		if err := rows.Scan(&row.ID, &row.SeriesID, &row.Kind, &n, &day, &month, &weekday,
			&parentID, &role, &condID); err != nil {
			return nil, err
		}
		row.N = scanNullInt(n)
		row.Day = scanNullInt(day)
		row.Month = scanNullInt(month)
		row.Weekday = scanNullInt(weekday)
		row.ParentID = scanNullString(parentID)
		if role.Valid {
			r := persistence.PatternRole(role.String)
			row.Role = &r
		}
		row.ConditionID = scanNullString(condID)
		out = append(out, row)
	}
	return out, mapError(rows.Err())
}

// DeletePatternsForSeries removes the series' patterns; weekday masks and
// nested rows cascade.
func (s *Store) DeletePatternsForSeries(ctx context.Context, seriesID string) error {
	_, err := s.q().ExecContext(ctx, `DELETE FROM pattern WHERE series_id = ?`, seriesID)
	return mapError(err)
}

// CreatePatternWeekday adds one weekday mask member.
func (s *Store) CreatePatternWeekday(ctx context.Context, row persistence.PatternWeekday) error {
	_, err := s.q().ExecContext(ctx,
		`INSERT INTO pattern_weekday (pattern_id, weekday) VALUES (?, ?)`,
		row.PatternID, row.Weekday)
	return mapError(err)
}

// ListPatternWeekdays returns a pattern's weekday mask, ascending.
func (s *Store) ListPatternWeekdays(ctx context.Context, patternID string) ([]persistence.PatternWeekday, error) {
	rows, err := s.q().QueryContext(ctx,
		`SELECT pattern_id, weekday FROM pattern_weekday WHERE pattern_id = ? ORDER BY weekday ASC`, patternID)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	out := make([]persistence.PatternWeekday, 0)
	for rows.Next() {
		var row persistence.PatternWeekday
		if err := rows.Scan(&row.PatternID, &row.Weekday); err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, mapError(rows.Err())
}

// CreateCondition inserts one flat condition node.
func (s *Store) CreateCondition(ctx context.Context, row persistence.Condition) error {
	_, err := s.q().ExecContext(ctx, `INSERT INTO condition
		(id, series_id, parent_id, kind, series_ref, window_days, comparison, value, days)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		row.ID, row.SeriesID, nullString(row.ParentID), row.Kind,
		nullString(row.SeriesRef), nullInt(row.WindowDays), nullString(row.Comparison),
		nullInt(row.Value), nullString(row.Days),
	)
	return mapError(err)
}

// GetCondition retrieves one condition node.
func (s *Store) GetCondition(ctx context.Context, id string) (persistence.Condition, error) {
	row, err := scanCondition(s.q().QueryRowContext(ctx, `SELECT
		id, series_id, parent_id, kind, series_ref, window_days, comparison, value, days
		FROM condition WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return persistence.Condition{}, persistence.ErrNotFound
	}
	return row, err
}

// ListConditionsForSeries returns the series' condition rows, parents
// before children.
func (s *Store) ListConditionsForSeries(ctx context.Context, seriesID string) ([]persistence.Condition, error) {
	rows, err := s.q().QueryContext(ctx, `SELECT
		id, series_id, parent_id, kind, series_ref, window_days, comparison, value, days
		FROM condition WHERE series_id = ? ORDER BY rowid ASC`, seriesID)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	out := make([]persistence.Condition, 0)
	for rows.Next() {
		row, err := scanCondition(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, mapError(rows.Err())
}

// DeleteConditionsForSeries removes every condition node of a series.
func (s *Store) DeleteConditionsForSeries(ctx context.Context, seriesID string) error {
	_, err := s.q().ExecContext(ctx, `DELETE FROM condition WHERE series_id = ?`, seriesID)
	return mapError(err)
}

func scanCondition(r rowScanner) (persistence.Condition, error) {
	var (
		row                             persistence.Condition
		parentID, seriesRef, comparison sql.NullString
		windowDays, value               sql.NullInt64
		days                            sql.NullString
	)
	if err := r.Scan(&row.ID, &row.SeriesID, &parentID, &row.Kind,
		&seriesRef, &windowDays, &comparison, &value, &days); err != nil {
		return persistence.Condition{}, err
	}
	row.ParentID = scanNullString(parentID)
	row.SeriesRef = scanNullString(seriesRef)
	row.WindowDays = scanNullInt(windowDays)
	row.Comparison = scanNullString(comparison)
	row.Value = scanNullInt(value)
	row.Days = scanNullString(days)
	return row, nil
}
