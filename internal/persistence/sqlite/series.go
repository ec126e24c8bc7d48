package sqlite

import (
	"context"
	"database/sql"
	"errors"

	"github.com/example/autoplanner/internal/persistence"
)

const seriesColumns = `id, title, description, start_date, end_date, count, all_day, time_of_day,
	duration_minutes, locked, fixed, wiggle_days_before, wiggle_days_after,
	wiggle_earliest, wiggle_latest, created_at, updated_at`

// CreateSeries inserts a new series row.
func (s *Store) CreateSeries(ctx context.Context, row persistence.Series) error {
	_, err := s.q().ExecContext(ctx, `INSERT INTO series (`+seriesColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		row.ID,
		row.Title,
		nullString(row.Description),
		row.StartDate.String(),
		nullDate(row.EndDate),
		nullInt(row.Count),
		boolToInt(row.AllDay),
		nullTimeOfDay(row.TimeOfDay),
		nullInt(row.DurationMinutes),
		boolToInt(row.Locked),
		boolToInt(row.Fixed),
		nullInt(row.WiggleDaysBefore),
		nullInt(row.WiggleDaysAfter),
		nullTimeOfDay(row.WiggleEarliest),
		nullTimeOfDay(row.WiggleLatest),
		encodeTimestamp(row.CreatedAt),
		encodeTimestamp(row.UpdatedAt),
	)
	return mapError(err)
}

// GetSeries retrieves a series by id.
func (s *Store) GetSeries(ctx context.Context, id string) (persistence.Series, error) {
	row := s.q().QueryRowContext(ctx, `SELECT `+seriesColumns+` FROM series WHERE id = ?`, id)
	series, err := scanSeries(row)
	if errors.Is(err, sql.ErrNoRows) {
		return persistence.Series{}, persistence.ErrNotFound
	}
	return series, err
}

// ListSeries returns every series ordered by creation time.
func (s *Store) ListSeries(ctx context.Context) ([]persistence.Series, error) {
	rows, err := s.q().QueryContext(ctx, `SELECT `+seriesColumns+` FROM series ORDER BY created_at ASC, id ASC`)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	out := make([]persistence.Series, 0)
	for rows.Next() {
		series, err := scanSeries(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, series)
	}
	return out, mapError(rows.Err())
}

// UpdateSeries replaces an existing series row.
func (s *Store) UpdateSeries(ctx context.Context, row persistence.Series) error {
	result, err := s.q().ExecContext(ctx, `UPDATE series SET
		title = ?, description = ?, start_date = ?, end_date = ?, count = ?, all_day = ?,
		time_of_day = ?, duration_minutes = ?, locked = ?, fixed = ?,
		wiggle_days_before = ?, wiggle_days_after = ?, wiggle_earliest = ?, wiggle_latest = ?,
		updated_at = ?
		WHERE id = ?`,
		row.Title,
		nullString(row.Description),
		row.StartDate.String(),
		nullDate(row.EndDate),
		nullInt(row.Count),
		boolToInt(row.AllDay),
		nullTimeOfDay(row.TimeOfDay),
		nullInt(row.DurationMinutes),
		boolToInt(row.Locked),
		boolToInt(row.Fixed),
		nullInt(row.WiggleDaysBefore),
		nullInt(row.WiggleDaysAfter),
		nullTimeOfDay(row.WiggleEarliest),
		nullTimeOfDay(row.WiggleLatest),
		encodeTimestamp(row.UpdatedAt),
		row.ID,
	)
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

// DeleteSeries removes a series; the schema's cascade and restrict rules
// take care of every owned row. The stray condition_id backreference on
// pattern rows is not a foreign key, so conditions cascade with the series
// directly.
func (s *Store) DeleteSeries(ctx context.Context, id string) error {
	result, err := s.q().ExecContext(ctx, `DELETE FROM series WHERE id = ?`, id)
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

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSeries(r rowScanner) (persistence.Series, error) {
	var (
		row                        persistence.Series
		description                sql.NullString
		startDate                  string
		endDate                    sql.NullString
		count                      sql.NullInt64
		allDay, locked, fixed      int
		timeOfDay                  sql.NullString
		durationMinutes            sql.NullInt64
		daysBefore, daysAfter      sql.NullInt64
		earliest, latest           sql.NullString
		createdAtRaw, updatedAtRaw string
	)
	if err := r.Scan(&row.ID, &row.Title, &description, &startDate, &endDate, &count,
		&allDay, &timeOfDay, &durationMinutes, &locked, &fixed,
		&daysBefore, &daysAfter, &earliest, &latest, &createdAtRaw, &updatedAtRaw); err != nil {
		return persistence.Series{}, err
	}

	var err error
	row.Description = scanNullString(description)
	if row.StartDate, err = scanDate(startDate); err != nil {
		return persistence.Series{}, err
	}
	if row.EndDate, err = scanNullDate(endDate); err != nil {
		return persistence.Series{}, err
	}
	row.Count = scanNullInt(count)
	row.AllDay = allDay != 0
	if row.TimeOfDay, err = scanNullTimeOfDay(timeOfDay); err != nil {
		return persistence.Series{}, err
	}
	row.DurationMinutes = scanNullInt(durationMinutes)
	row.Locked = locked != 0
	row.Fixed = fixed != 0
	row.WiggleDaysBefore = scanNullInt(daysBefore)
	row.WiggleDaysAfter = scanNullInt(daysAfter)
	if row.WiggleEarliest, err = scanNullTimeOfDay(earliest); err != nil {
		return persistence.Series{}, err
	}
	if row.WiggleLatest, err = scanNullTimeOfDay(latest); err != nil {
		return persistence.Series{}, err
	}
	if row.CreatedAt, err = decodeTimestamp(createdAtRaw); err != nil {
		return persistence.Series{}, err
	}
	if row.UpdatedAt, err = decodeTimestamp(updatedAtRaw); err != nil {
		return persistence.Series{}, err
	}
	return row, nil
}
