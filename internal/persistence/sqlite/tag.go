package sqlite

import (
	"context"
	"database/sql"
	"errors"

	"github.com/example/autoplanner/internal/persistence"
)

// CreateTag inserts a tag; names are unique.
func (s *Store) CreateTag(ctx context.Context, row persistence.Tag) error {
	_, err := s.q().ExecContext(ctx, `INSERT INTO tag (id, name) VALUES (?, ?)`, row.ID, row.Name)
	return mapError(err)
}

// GetTag retrieves a tag by id.
func (s *Store) GetTag(ctx context.Context, id string) (persistence.Tag, error) {
	var row persistence.Tag
	err := s.q().QueryRowContext(ctx, `SELECT id, name FROM tag WHERE id = ?`, id).Scan(&row.ID, &row.Name)
	if errors.Is(err, sql.ErrNoRows) {
		return persistence.Tag{}, persistence.ErrNotFound
	}
	return row, mapError(err)
}

// GetTagByName retrieves a tag by its unique name.
func (s *Store) GetTagByName(ctx context.Context, name string) (persistence.Tag, error) {
	var row persistence.Tag
	err := s.q().QueryRowContext(ctx, `SELECT id, name FROM tag WHERE name = ?`, name).Scan(&row.ID, &row.Name)
	if errors.Is(err, sql.ErrNoRows) {
		return persistence.Tag{}, persistence.ErrNotFound
	}
	return row, mapError(err)
}

// ListTags returns every tag.
func (s *Store) ListTags(ctx context.Context) ([]persistence.Tag, error) {
	rows, err := s.q().QueryContext(ctx, `SELECT id, name FROM tag ORDER BY rowid ASC`)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	out := make([]persistence.Tag, 0)
	for rows.Next() {
		var row persistence.Tag
		if err := rows.Scan(&row.ID, &row.Name); err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, mapError(rows.Err())
}

// DeleteTag removes a tag; associations cascade, series survive.
func (s *Store) DeleteTag(ctx context.Context, id string) error {
	result, err := s.q().ExecContext(ctx, `DELETE FROM tag WHERE id = ?`, id)
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

// AddSeriesTag associates a series with a tag.
func (s *Store) AddSeriesTag(ctx context.Context, row persistence.SeriesTag) error {
	_, err := s.q().ExecContext(ctx,
		`INSERT INTO series_tag (series_id, tag_id) VALUES (?, ?)`, row.SeriesID, row.TagID)
	return mapError(err)
}

// RemoveSeriesTag drops one association.
func (s *Store) RemoveSeriesTag(ctx context.Context, seriesID, tagID string) error {
	result, err := s.q().ExecContext(ctx,
		`DELETE FROM series_tag WHERE series_id = ? AND tag_id = ?`, seriesID, tagID)
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

// ListTagsForSeries returns the tags associated with a series.
func (s *Store) ListTagsForSeries(ctx context.Context, seriesID string) ([]persistence.Tag, error) {
	rows, err := s.q().QueryContext(ctx, `SELECT t.id, t.name FROM tag t
		JOIN series_tag st ON st.tag_id = t.id
		WHERE st.series_id = ? ORDER BY st.rowid ASC`, seriesID)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	out := make([]persistence.Tag, 0)
	for rows.Next() {
		var row persistence.Tag
		if err := rows.Scan(&row.ID, &row.Name); err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, mapError(rows.Err())
}

// ListSeriesIDsForTag returns ids of series bearing the tag.
func (s *Store) ListSeriesIDsForTag(ctx context.Context, tagID string) ([]string, error) {
	rows, err := s.q().QueryContext(ctx,
		`SELECT series_id FROM series_tag WHERE tag_id = ? ORDER BY rowid ASC`, tagID)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	out := make([]string, 0)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, mapError(rows.Err())
}
