package sqlite

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/example/autoplanner/internal/timeutil"
)

// Temporal columns are ISO-8601 TEXT; booleans are 0/1 integers. These
// helpers convert between the row pointer shapes and database/sql null
// types.

const timestampLayout = time.RFC3339Nano

func encodeTimestamp(t time.Time) string {
	return t.Format(timestampLayout)
}

func decodeTimestamp(s string) (time.Time, error) {
	t, err := time.Parse(timestampLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("sqlite: malformed timestamp %q: %w", s, err)
	}
	return t, nil
}

func nullDate(d *timeutil.Date) sql.NullString {
	if d == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: d.String(), Valid: true}
}

func nullTimeOfDay(t *timeutil.TimeOfDay) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: t.String(), Valid: true}
}

func nullDateTime(dt *timeutil.DateTime) sql.NullString {
	if dt == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: dt.String(), Valid: true}
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func nullInt(n *int) sql.NullInt64 {
	if n == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*n), Valid: true}
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func scanDate(s string) (timeutil.Date, error) {
	d, err := timeutil.ParseDate(s)
	if err != nil {
		return timeutil.Date{}, fmt.Errorf("sqlite: malformed date %q: %w", s, err)
	}
	return d, nil
}

func scanNullDate(ns sql.NullString) (*timeutil.Date, error) {
	if !ns.Valid {
		return nil, nil
	}
	d, err := scanDate(ns.String)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func scanNullTimeOfDay(ns sql.NullString) (*timeutil.TimeOfDay, error) {
	if !ns.Valid {
		return nil, nil
	}
	t, err := timeutil.ParseTimeOfDay(ns.String)
	if err != nil {
		return nil, fmt.Errorf("sqlite: malformed time %q: %w", ns.String, err)
	}
	return &t, nil
}

func scanNullDateTime(ns sql.NullString) (*timeutil.DateTime, error) {
	if !ns.Valid {
		return nil, nil
	}
	dt, err := timeutil.ParseDateTime(ns.String)
	if err != nil {
		return nil, fmt.Errorf("sqlite: malformed datetime %q: %w", ns.String, err)
	}
	return &dt, nil
}

func scanNullString(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}

func scanNullInt(ni sql.NullInt64) *int {
	if !ni.Valid {
		return nil
	}
	n := int(ni.Int64)
	return &n
}
