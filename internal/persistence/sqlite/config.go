package sqlite

import (
	"context"
	"database/sql"
	"errors"

	"github.com/example/autoplanner/internal/persistence"
	"github.com/example/autoplanner/internal/timeutil"
)

// UpsertAdaptiveDuration writes the per-series adaptive config.
func (s *Store) UpsertAdaptiveDuration(ctx context.Context, row persistence.AdaptiveDuration) error {
	_, err := s.q().ExecContext(ctx, `INSERT INTO adaptive_duration
		(series_id, fallback_minutes, buffer_percent, last_n, window_days, min_minutes, max_minutes)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (series_id) DO UPDATE SET
			fallback_minutes = excluded.fallback_minutes,
			buffer_percent = excluded.buffer_percent,
			last_n = excluded.last_n,
			window_days = excluded.window_days,
			min_minutes = excluded.min_minutes,
			max_minutes = excluded.max_minutes`,
		row.SeriesID, row.FallbackMinutes, row.BufferPercent, row.LastN, row.WindowDays,
		nullInt(row.MinMinutes), nullInt(row.MaxMinutes),
	)
	return mapError(err)
}

// GetAdaptiveDuration retrieves the per-series adaptive config.
func (s *Store) GetAdaptiveDuration(ctx context.Context, seriesID string) (persistence.AdaptiveDuration, error) {
	var (
		row      persistence.AdaptiveDuration
		min, max sql.NullInt64
	)
	err := s.q().QueryRowContext(ctx, `SELECT
		series_id, fallback_minutes, buffer_percent, last_n, window_days, min_minutes, max_minutes
		FROM adaptive_duration WHERE series_id = ?`, seriesID).
		Scan(&row.SeriesID, &row.FallbackMinutes, &row.BufferPercent, &row.LastN, &row.WindowDays, &min, &max)
	if errors.Is(err, sql.ErrNoRows) {
		return persistence.AdaptiveDuration{}, persistence.ErrNotFound
	}
	if err != nil {
		return persistence.AdaptiveDuration{}, mapError(err)
	}
	row.MinMinutes = scanNullInt(min)
	row.MaxMinutes = scanNullInt(max)
	return row, nil
}

// DeleteAdaptiveDuration removes the adaptive config; absent rows are a
// no-op.
func (s *Store) DeleteAdaptiveDuration(ctx context.Context, seriesID string) error {
	_, err := s.q().ExecContext(ctx, `DELETE FROM adaptive_duration WHERE series_id = ?`, seriesID)
	return mapError(err)
}

// UpsertCyclingConfig writes the per-series cycling state.
func (s *Store) UpsertCyclingConfig(ctx context.Context, row persistence.CyclingConfig) error {
	_, err := s.q().ExecContext(ctx, `INSERT INTO cycling_config
		(series_id, mode, gap_leap, current_index)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (series_id) DO UPDATE SET
			mode = excluded.mode,
			gap_leap = excluded.gap_leap,
			current_index = excluded.current_index`,
		row.SeriesID, row.Mode, boolToInt(row.GapLeap), row.CurrentIndex,
	)
	return mapError(err)
}

// GetCyclingConfig retrieves the per-series cycling state.
func (s *Store) GetCyclingConfig(ctx context.Context, seriesID string) (persistence.CyclingConfig, error) {
	var (
		row     persistence.CyclingConfig
		gapLeap int
	)
	err := s.q().QueryRowContext(ctx,
		`SELECT series_id, mode, gap_leap, current_index FROM cycling_config WHERE series_id = ?`, seriesID).
		Scan(&row.SeriesID, &row.Mode, &gapLeap, &row.CurrentIndex)
	if errors.Is(err, sql.ErrNoRows) {
		return persistence.CyclingConfig{}, persistence.ErrNotFound
	}
	if err != nil {
		return persistence.CyclingConfig{}, mapError(err)
	}
	row.GapLeap = gapLeap != 0
	return row, nil
}

// ReplaceCyclingItems swaps the full ordered item list for a series.
func (s *Store) ReplaceCyclingItems(ctx context.Context, seriesID string, items []persistence.CyclingItem) error {
	if _, err := s.q().ExecContext(ctx, `DELETE FROM cycling_item WHERE series_id = ?`, seriesID); err != nil {
		return mapError(err)
	}
	for _, item := range items {
		if _, err := s.q().ExecContext(ctx,
			`INSERT INTO cycling_item (series_id, position, title) VALUES (?, ?, ?)`,
			item.SeriesID, item.Position, item.Title); err != nil {
			return mapError(err)
		}
	}
	return nil
}

// ListCyclingItems returns the series' items ordered by position.
func (s *Store) ListCyclingItems(ctx context.Context, seriesID string) ([]persistence.CyclingItem, error) {
	rows, err := s.q().QueryContext(ctx,
		`SELECT series_id, position, title FROM cycling_item WHERE series_id = ? ORDER BY position ASC`, seriesID)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	out := make([]persistence.CyclingItem, 0)
	for rows.Next() {
		var row persistence.CyclingItem
		if err := rows.Scan(&row.SeriesID, &row.Position, &row.Title); err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, mapError(rows.Err())
}

// DeleteCyclingConfig removes the config; items cascade.
func (s *Store) DeleteCyclingConfig(ctx context.Context, seriesID string) error {
	_, err := s.q().ExecContext(ctx, `DELETE FROM cycling_config WHERE series_id = ?`, seriesID)
	return mapError(err)
}

// CreateReminder inserts a reminder.
func (s *Store) CreateReminder(ctx context.Context, row persistence.Reminder) error {
	_, err := s.q().ExecContext(ctx,
		`INSERT INTO reminder (id, series_id, minutes_before, label) VALUES (?, ?, ?, ?)`,
		row.ID, row.SeriesID, row.MinutesBefore, row.Label)
	return mapError(err)
}

// ListRemindersForSeries returns the series' reminders.
func (s *Store) ListRemindersForSeries(ctx context.Context, seriesID string) ([]persistence.Reminder, error) {
	rows, err := s.q().QueryContext(ctx,
		`SELECT id, series_id, minutes_before, label FROM reminder WHERE series_id = ? ORDER BY rowid ASC`, seriesID)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	out := make([]persistence.Reminder, 0)
	for rows.Next() {
		var row persistence.Reminder
		if err := rows.Scan(&row.ID, &row.SeriesID, &row.MinutesBefore, &row.Label); err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, mapError(rows.Err())
}

// DeleteReminder removes a reminder; acks cascade.
func (s *Store) DeleteReminder(ctx context.Context, id string) error {
	result, err := s.q().ExecContext(ctx, `DELETE FROM reminder WHERE id = ?`, id)
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

// CreateReminderAck marks one reminder occurrence acknowledged.
func (s *Store) CreateReminderAck(ctx context.Context, row persistence.ReminderAck) error {
	_, err := s.q().ExecContext(ctx,
		`INSERT INTO reminder_ack (reminder_id, instance_date) VALUES (?, ?)`,
		row.ReminderID, row.InstanceDate.String())
	return mapError(err)
}

// HasReminderAck reports whether an ack exists for the key.
func (s *Store) HasReminderAck(ctx context.Context, reminderID string, instanceDate timeutil.Date) (bool, error) {
	var count int
	err := s.q().QueryRowContext(ctx,
		`SELECT COUNT(*) FROM reminder_ack WHERE reminder_id = ? AND instance_date = ?`,
		reminderID, instanceDate.String()).Scan(&count)
	return count > 0, mapError(err)
}
