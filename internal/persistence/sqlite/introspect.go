package sqlite

import (
	"context"
	"fmt"
)

// The introspection surface exists strictly for tests and diagnostics;
// nothing in the domain layer depends on it.

// Tables lists the user tables of the database.
func (s *Store) Tables(ctx context.Context) ([]string, error) {
	return s.stringColumn(ctx,
		`SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%' ORDER BY name`)
}

// Indices lists the named indices of the database.
func (s *Store) Indices(ctx context.Context) ([]string, error) {
	return s.stringColumn(ctx,
		`SELECT name FROM sqlite_master WHERE type = 'index' AND name NOT LIKE 'sqlite_%' ORDER BY name`)
}

// ExplainPlan returns the query plan lines for a statement.
func (s *Store) ExplainPlan(ctx context.Context, query string, args ...any) ([]string, error) {
	rows, err := s.q().QueryContext(ctx, "EXPLAIN QUERY PLAN "+query, args...)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	var plan []string
	for rows.Next() {
		var id, parent, notUsed int
		var detail string
		if err := rows.Scan(&id, &parent, &notUsed, &detail); err != nil {
			return nil, err
		}
		plan = append(plan, detail)
	}
	return plan, mapError(rows.Err())
}

// RawQuery runs an arbitrary statement and returns the rows as string
// maps.
func (s *Store) RawQuery(ctx context.Context, query string, args ...any) ([]map[string]any, error) {
	rows, err := s.q().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	var out []map[string]any
	for rows.Next() {
		values := make([]any, len(columns))
		pointers := make([]any, len(columns))
		for i := range values {
			pointers[i] = &values[i]
		}
		if err := rows.Scan(pointers...); err != nil {
			return nil, err
		}
		record := make(map[string]any, len(columns))
		for i, col := range columns {
			record[col] = values[i]
		}
		out = append(out, record)
	}
	return out, mapError(rows.Err())
}

func (s *Store) stringColumn(ctx context.Context, query string) ([]string, error) {
	rows, err := s.q().QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("sqlite: introspect: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		out = append(out, name)
	}
	return out, rows.Err()
}
