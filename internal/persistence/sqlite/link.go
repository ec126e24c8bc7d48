package sqlite

import (
	"context"
	"database/sql"
	"errors"

	"github.com/example/autoplanner/internal/persistence"
)

// CreateLink inserts a link; the unique child column enforces the
// one-parent rule at the engine level.
func (s *Store) CreateLink(ctx context.Context, row persistence.Link) error {
	_, err := s.q().ExecContext(ctx, `INSERT INTO link
		(id, parent_series_id, child_series_id, target_distance, early_wobble, late_wobble)
		VALUES (?, ?, ?, ?, ?, ?)`,
		row.ID, row.ParentSeriesID, row.ChildSeriesID,
		row.TargetDistanceMinutes, row.EarlyWobbleMinutes, row.LateWobbleMinutes)
	return mapError(err)
}

// GetLink retrieves a link by id.
func (s *Store) GetLink(ctx context.Context, id string) (persistence.Link, error) {
	row, err := scanLink(s.q().QueryRowContext(ctx, `SELECT
		id, parent_series_id, child_series_id, target_distance, early_wobble, late_wobble
		FROM link WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return persistence.Link{}, persistence.ErrNotFound
	}
	return row, err
}

// GetLinkByChild retrieves the link whose child is the given series.
func (s *Store) GetLinkByChild(ctx context.Context, childSeriesID string) (persistence.Link, error) {
	row, err := scanLink(s.q().QueryRowContext(ctx, `SELECT
		id, parent_series_id, child_series_id, target_distance, early_wobble, late_wobble
		FROM link WHERE child_series_id = ?`, childSeriesID))
	if errors.Is(err, sql.ErrNoRows) {
		return persistence.Link{}, persistence.ErrNotFound
	}
	return row, err
}

// ListLinks returns every link.
func (s *Store) ListLinks(ctx context.Context) ([]persistence.Link, error) {
	return s.queryLinks(ctx, `SELECT
		id, parent_series_id, child_series_id, target_distance, early_wobble, late_wobble
		FROM link ORDER BY rowid ASC`)
}

// ListLinksByParent returns the links whose parent is the given series.
func (s *Store) ListLinksByParent(ctx context.Context, parentSeriesID string) ([]persistence.Link, error) {
	return s.queryLinks(ctx, `SELECT
		id, parent_series_id, child_series_id, target_distance, early_wobble, late_wobble
		FROM link WHERE parent_series_id = ? ORDER BY rowid ASC`, parentSeriesID)
}

func (s *Store) queryLinks(ctx context.Context, query string, args ...any) ([]persistence.Link, error) {
	rows, err := s.q().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	out := make([]persistence.Link, 0)
	for rows.Next() {
		row, err := scanLink(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, mapError(rows.Err())
}

// UpdateLink replaces an existing link row.
func (s *Store) UpdateLink(ctx context.Context, row persistence.Link) error {
	result, err := s.q().ExecContext(ctx, `UPDATE link SET
		parent_series_id = ?, child_series_id = ?, target_distance = ?, early_wobble = ?, late_wobble = ?
		WHERE id = ?`,
		row.ParentSeriesID, row.ChildSeriesID,
		row.TargetDistanceMinutes, row.EarlyWobbleMinutes, row.LateWobbleMinutes, row.ID)
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

// DeleteLink removes a link.
func (s *Store) DeleteLink(ctx context.Context, id string) error {
	result, err := s.q().ExecContext(ctx, `DELETE FROM link WHERE id = ?`, id)
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

func scanLink(r rowScanner) (persistence.Link, error) {
	var row persistence.Link
	err := r.Scan(&row.ID, &row.ParentSeriesID, &row.ChildSeriesID,
		&row.TargetDistanceMinutes, &row.EarlyWobbleMinutes, &row.LateWobbleMinutes)
	return row, err
}

// CreateConstraint inserts a relational constraint.
func (s *Store) CreateConstraint(ctx context.Context, row persistence.RelationalConstraint) error {
	_, err := s.q().ExecContext(ctx, `INSERT INTO relational_constraint
		(id, type, source_type, source_value, dest_type, dest_value, within_minutes)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		row.ID, row.Type, string(row.SourceType), row.SourceValue,
		string(row.DestType), row.DestValue, nullInt(row.WithinMinutes))
	return mapError(err)
}

// ListConstraints returns every relational constraint.
func (s *Store) ListConstraints(ctx context.Context) ([]persistence.RelationalConstraint, error) {
	rows, err := s.q().QueryContext(ctx, `SELECT
		id, type, source_type, source_value, dest_type, dest_value, within_minutes
		FROM relational_constraint ORDER BY rowid ASC`)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	out := make([]persistence.RelationalConstraint, 0)
	for rows.Next() {
		var (
			row                    persistence.RelationalConstraint
			sourceType, destType   string
			withinMinutes          sql.NullInt64
		)
		if err := rows.Scan(&row.ID, &row.Type, &sourceType, &row.SourceValue,
			&destType, &row.DestValue, &withinMinutes); err != nil {
			return nil, err
		}
		row.SourceType = persistence.TargetType(sourceType)
		row.DestType = persistence.TargetType(destType)
		row.WithinMinutes = scanNullInt(withinMinutes)
		out = append(out, row)
	}
	return out, mapError(rows.Err())
}

// DeleteConstraint removes a relational constraint.
func (s *Store) DeleteConstraint(ctx context.Context, id string) error {
	result, err := s.q().ExecContext(ctx, `DELETE FROM relational_constraint WHERE id = ?`, id)
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
