package sqlite

import (
	"context"
	"database/sql"
	"errors"

	"github.com/example/autoplanner/internal/persistence"
	"github.com/example/autoplanner/internal/timeutil"
)

// CreateCompletion logs an execution; the unique (series_id, instance_date)
// index rejects duplicates.
func (s *Store) CreateCompletion(ctx context.Context, row persistence.Completion) error {
	_, err := s.q().ExecContext(ctx, `INSERT INTO completion
		(id, series_id, instance_date, actual_date, start_time, end_time)
		VALUES (?, ?, ?, ?, ?, ?)`,
		row.ID, row.SeriesID, row.InstanceDate.String(), row.ActualDate.String(),
		nullDateTime(row.StartTime), nullDateTime(row.EndTime),
	)
	return mapError(err)
}

// GetCompletion retrieves the completion for one occurrence.
func (s *Store) GetCompletion(ctx context.Context, seriesID string, instanceDate timeutil.Date) (persistence.Completion, error) {
	row, err := scanCompletion(s.q().QueryRowContext(ctx, `SELECT
		id, series_id, instance_date, actual_date, start_time, end_time
		FROM completion WHERE series_id = ? AND instance_date = ?`,
		seriesID, instanceDate.String()))
	if errors.Is(err, sql.ErrNoRows) {
		return persistence.Completion{}, persistence.ErrNotFound
	}
	return row, err
}

// ListCompletionsForSeries returns completions ordered by actual date.
func (s *Store) ListCompletionsForSeries(ctx context.Context, seriesID string) ([]persistence.Completion, error) {
	rows, err := s.q().QueryContext(ctx, `SELECT
		id, series_id, instance_date, actual_date, start_time, end_time
		FROM completion WHERE series_id = ? ORDER BY actual_date ASC, id ASC`, seriesID)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	out := make([]persistence.Completion, 0)
	for rows.Next() {
		row, err := scanCompletion(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, mapError(rows.Err())
}

// DeleteCompletion removes one completion.
func (s *Store) DeleteCompletion(ctx context.Context, seriesID string, instanceDate timeutil.Date) error {
	result, err := s.q().ExecContext(ctx,
		`DELETE FROM completion WHERE series_id = ? AND instance_date = ?`,
		seriesID, instanceDate.String())
	if err != nil {
		return mapError(err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return mapError(err)
	}
	if affected == 0 {
		return persistence.ErrNotFound
	}
	return nil
}

// CountCompletionsInWindow counts completions with actual date in [from, to).
func (s *Store) CountCompletionsInWindow(ctx context.Context, seriesID string, from, to timeutil.Date) (int, error) {
	var count int
	err := s.q().QueryRowContext(ctx,
		`SELECT COUNT(*) FROM completion WHERE series_id = ? AND actual_date >= ? AND actual_date < ?`,
		seriesID, from.String(), to.String()).Scan(&count)
	return count, mapError(err)
}

// DaysSinceLastCompletion reports the day distance from the latest actual
// completion to asOf.
func (s *Store) DaysSinceLastCompletion(ctx context.Context, seriesID string, asOf timeutil.Date) (int, bool, error) {
	var latest sql.NullString
	err := s.q().QueryRowContext(ctx,
		`SELECT MAX(actual_date) FROM completion WHERE series_id = ?`, seriesID).Scan(&latest)
	if err != nil {
		return 0, false, mapError(err)
	}
	if !latest.Valid {
		return 0, false, nil
	}
	latestDate, err := scanDate(latest.String)
	if err != nil {
		return 0, false, err
	}
	return latestDate.DaysBetween(asOf), true, nil
}

// RecentDurations returns completion durations in minutes, most recent
// first, for completions carrying both timestamps.
func (s *Store) RecentDurations(ctx context.Context, seriesID string, q persistence.DurationQuery) ([]int, error) {
	query := `SELECT start_time, end_time FROM completion
		WHERE series_id = ? AND start_time IS NOT NULL AND end_time IS NOT NULL`
	args := []any{seriesID}
	if q.WindowDays > 0 {
		query += ` AND actual_date >= ? AND actual_date <= ?`
		args = append(args, q.AsOf.AddDays(-q.WindowDays).String(), q.AsOf.String())
	}
	query += ` ORDER BY actual_date DESC, id ASC`
	if q.LastN > 0 {
		query += ` LIMIT ?`
		args = append(args, q.LastN)
	}

	rows, err := s.q().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	durations := make([]int, 0)
	for rows.Next() {
		var startRaw, endRaw string
		if err := rows.Scan(&startRaw, &endRaw); err != nil {
			return nil, err
		}
		start, err := timeutil.ParseDateTime(startRaw)
		if err != nil {
			return nil, err
		}
		end, err := timeutil.ParseDateTime(endRaw)
		if err != nil {
			return nil, err
		}
		if minutes := start.MinutesBetween(end); minutes > 0 {
			durations = append(durations, minutes)
		}
	}
	return durations, mapError(rows.Err())
}

// UpsertInstanceException writes an exception, replacing the prior row for
// the same (series, originalDate).
func (s *Store) UpsertInstanceException(ctx context.Context, row persistence.InstanceException) error {
	_, err := s.q().ExecContext(ctx, `INSERT INTO instance_exception
		(id, series_id, original_date, type, new_date, new_time)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (series_id, original_date) DO UPDATE SET
			id = excluded.id, type = excluded.type,
			new_date = excluded.new_date, new_time = excluded.new_time`,
		row.ID, row.SeriesID, row.OriginalDate.String(), row.Type,
		nullDate(row.NewDate), nullTimeOfDay(row.NewTime),
	)
	return mapError(err)
}

// GetInstanceException retrieves the exception for one occurrence.
func (s *Store) GetInstanceException(ctx context.Context, seriesID string, originalDate timeutil.Date) (persistence.InstanceException, error) {
	row, err := scanException(s.q().QueryRowContext(ctx, `SELECT
		id, series_id, original_date, type, new_date, new_time
		FROM instance_exception WHERE series_id = ? AND original_date = ?`,
		seriesID, originalDate.String()))
	if errors.Is(err, sql.ErrNoRows) {
		return persistence.InstanceException{}, persistence.ErrNotFound
	}
	return row, err
}

// ListInstanceExceptionsForSeries returns the series' exceptions.
func (s *Store) ListInstanceExceptionsForSeries(ctx context.Context, seriesID string) ([]persistence.InstanceException, error) {
	rows, err := s.q().QueryContext(ctx, `SELECT
		id, series_id, original_date, type, new_date, new_time
		FROM instance_exception WHERE series_id = ? ORDER BY original_date ASC`, seriesID)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	out := make([]persistence.InstanceException, 0)
	for rows.Next() {
		row, err := scanException(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, mapError(rows.Err())
}

// DeleteInstanceException removes one exception.
func (s *Store) DeleteInstanceException(ctx context.Context, seriesID string, originalDate timeutil.Date) error {
	result, err := s.q().ExecContext(ctx,
		`DELETE FROM instance_exception WHERE series_id = ? AND original_date = ?`,
		seriesID, originalDate.String())
	if err != nil {
		return mapError(err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return mapError(err)
	}
	if affected == 0 {
		return persistence.ErrNotFound
	}
	return nil
}

func scanCompletion(r rowScanner) (persistence.Completion, error) {
	var (
		row                     persistence.Completion
		instanceRaw, actualRaw  string
		startRaw, endRaw        sql.NullString
	)
	if err := r.Scan(&row.ID, &row.SeriesID, &instanceRaw, &actualRaw, &startRaw, &endRaw); err != nil {
		return persistence.Completion{}, err
	}
	var err error
	if row.InstanceDate, err = scanDate(instanceRaw); err != nil {
		return persistence.Completion{}, err
	}
	if row.ActualDate, err = scanDate(actualRaw); err != nil {
		return persistence.Completion{}, err
	}
	if row.StartTime, err = scanNullDateTime(startRaw); err != nil {
		return persistence.Completion{}, err
	}
	if row.EndTime, err = scanNullDateTime(endRaw); err != nil {
		return persistence.Completion{}, err
	}
	return row, nil
}

func scanException(r rowScanner) (persistence.InstanceException, error) {
	var (
		row         persistence.InstanceException
		originalRaw string
		newDateRaw  sql.NullString
		newTimeRaw  sql.NullString
	)
	if err := r.Scan(&row.ID, &row.SeriesID, &originalRaw, &row.Type, &newDateRaw, &newTimeRaw); err != nil {
		return persistence.InstanceException{}, err
	}
	var err error
	if row.OriginalDate, err = scanDate(originalRaw); err != nil {
		return persistence.InstanceException{}, err
	}
	if row.NewDate, err = scanNullDate(newDateRaw); err != nil {
		return persistence.InstanceException{}, err
	}
	if row.NewTime, err = scanNullTimeOfDay(newTimeRaw); err != nil {
		return persistence.InstanceException{}, err
	}
	return row, nil
}
