package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// migration is one schema version: the statements that bring the database
// from the previous version to this one.
type migration struct {
	version    int
	statements []string
}

// migrations is the ordered schema history. Version 1 is the initial
// sixteen-table schema; version 2 adds instance_exception.new_time for
// reschedules that change the time of day.
var migrations = []migration{
	{version: 1, statements: schemaV1},
	{version: 2, statements: []string{
		`ALTER TABLE instance_exception ADD COLUMN new_time TEXT`,
	}},
}

var schemaV1 = []string{
	`CREATE TABLE series (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL CHECK (title <> ''),
		description TEXT,
		start_date TEXT NOT NULL,
		end_date TEXT,
		count INTEGER CHECK (count IS NULL OR count >= 1),
		all_day INTEGER NOT NULL DEFAULT 0,
		time_of_day TEXT,
		duration_minutes INTEGER CHECK (duration_minutes IS NULL OR duration_minutes >= 1),
		locked INTEGER NOT NULL DEFAULT 0,
		fixed INTEGER NOT NULL DEFAULT 0,
		wiggle_days_before INTEGER CHECK (wiggle_days_before IS NULL OR wiggle_days_before >= 0),
		wiggle_days_after INTEGER CHECK (wiggle_days_after IS NULL OR wiggle_days_after >= 0),
		wiggle_earliest TEXT,
		wiggle_latest TEXT,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	)`,
	`CREATE TABLE pattern (
		id TEXT PRIMARY KEY,
		series_id TEXT NOT NULL REFERENCES series(id) ON DELETE CASCADE,
		kind TEXT NOT NULL,
		n INTEGER,
		day INTEGER,
		month INTEGER,
		weekday INTEGER,
		parent_id TEXT REFERENCES pattern(id) ON DELETE CASCADE,
		role TEXT,
		condition_id TEXT
	)`,
	`CREATE TABLE pattern_weekday (
		pattern_id TEXT NOT NULL REFERENCES pattern(id) ON DELETE CASCADE,
		weekday INTEGER NOT NULL CHECK (weekday BETWEEN 1 AND 7),
		PRIMARY KEY (pattern_id, weekday)
	)`,
	`CREATE TABLE condition (
		id TEXT PRIMARY KEY,
		series_id TEXT NOT NULL REFERENCES series(id) ON DELETE CASCADE,
		parent_id TEXT REFERENCES condition(id) ON DELETE CASCADE,
		kind TEXT NOT NULL,
		series_ref TEXT,
		window_days INTEGER,
		comparison TEXT,
		value INTEGER,
		days TEXT
	)`,
	`CREATE TABLE completion (
		id TEXT PRIMARY KEY,
		series_id TEXT NOT NULL REFERENCES series(id) ON DELETE RESTRICT,
		instance_date TEXT NOT NULL,
		actual_date TEXT NOT NULL,
		start_time TEXT,
		end_time TEXT,
		UNIQUE (series_id, instance_date)
	)`,
	`CREATE TABLE reminder (
		id TEXT PRIMARY KEY,
		series_id TEXT NOT NULL REFERENCES series(id) ON DELETE CASCADE,
		minutes_before INTEGER NOT NULL CHECK (minutes_before >= 0),
		label TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE TABLE reminder_ack (
		reminder_id TEXT NOT NULL REFERENCES reminder(id) ON DELETE CASCADE,
		instance_date TEXT NOT NULL,
		PRIMARY KEY (reminder_id, instance_date)
	)`,
	`CREATE TABLE link (
		id TEXT PRIMARY KEY,
		parent_series_id TEXT NOT NULL REFERENCES series(id) ON DELETE RESTRICT,
		child_series_id TEXT NOT NULL UNIQUE REFERENCES series(id) ON DELETE CASCADE,
		target_distance INTEGER NOT NULL,
		early_wobble INTEGER NOT NULL CHECK (early_wobble >= 0),
		late_wobble INTEGER NOT NULL CHECK (late_wobble >= 0),
		CHECK (parent_series_id <> child_series_id)
	)`,
	`CREATE TABLE relational_constraint (
		id TEXT PRIMARY KEY,
		type TEXT NOT NULL,
		source_type TEXT NOT NULL CHECK (source_type IN ('tag', 'series')),
		source_value TEXT NOT NULL,
		dest_type TEXT NOT NULL CHECK (dest_type IN ('tag', 'series')),
		dest_value TEXT NOT NULL,
		within_minutes INTEGER CHECK (within_minutes IS NULL OR within_minutes > 0)
	)`,
	`CREATE TABLE instance_exception (
		id TEXT NOT NULL,
		series_id TEXT NOT NULL REFERENCES series(id) ON DELETE CASCADE,
		original_date TEXT NOT NULL,
		type TEXT NOT NULL CHECK (type IN ('cancelled', 'rescheduled')),
		new_date TEXT,
		PRIMARY KEY (series_id, original_date)
	)`,
	`CREATE TABLE adaptive_duration (
		series_id TEXT PRIMARY KEY REFERENCES series(id) ON DELETE CASCADE,
		fallback_minutes INTEGER NOT NULL CHECK (fallback_minutes >= 1),
		buffer_percent REAL NOT NULL DEFAULT 0,
		last_n INTEGER NOT NULL DEFAULT 5,
		window_days INTEGER NOT NULL DEFAULT 30,
		min_minutes INTEGER,
		max_minutes INTEGER,
		CHECK (min_minutes IS NULL OR max_minutes IS NULL OR min_minutes < max_minutes)
	)`,
	`CREATE TABLE cycling_config (
		series_id TEXT PRIMARY KEY REFERENCES series(id) ON DELETE CASCADE,
		mode TEXT NOT NULL CHECK (mode IN ('sequential', 'random')),
		gap_leap INTEGER NOT NULL DEFAULT 0,
		current_index INTEGER NOT NULL DEFAULT 0
	)`,
	`CREATE TABLE cycling_item (
		series_id TEXT NOT NULL REFERENCES cycling_config(series_id) ON DELETE CASCADE,
		position INTEGER NOT NULL,
		title TEXT NOT NULL,
		PRIMARY KEY (series_id, position)
	)`,
	`CREATE TABLE tag (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL UNIQUE
	)`,
	`CREATE TABLE series_tag (
		series_id TEXT NOT NULL REFERENCES series(id) ON DELETE CASCADE,
		tag_id TEXT NOT NULL REFERENCES tag(id) ON DELETE CASCADE,
		PRIMARY KEY (series_id, tag_id)
	)`,
	`CREATE INDEX idx_pattern_series ON pattern(series_id)`,
	`CREATE INDEX idx_condition_series ON condition(series_id)`,
	`CREATE INDEX idx_condition_parent ON condition(parent_id)`,
	`CREATE INDEX idx_completion_series ON completion(series_id)`,
	`CREATE INDEX idx_completion_date ON completion(actual_date)`,
	`CREATE INDEX idx_reminder_series ON reminder(series_id)`,
	`CREATE INDEX idx_link_parent ON link(parent_series_id)`,
}

// Migrate applies every pending migration, each inside its own transaction.
// The version is recorded only when its statements all succeed; a failing
// migration rolls back atomically and leaves the log untouched.
func (s *Store) Migrate(ctx context.Context) error {
	return s.MigrateTo(ctx, migrations[len(migrations)-1].version)
}

func applyMigration(ctx context.Context, tx *sql.Tx, m migration) error {
	for i, stmt := range m.statements {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("sqlite: migration %d statement %d: %w", m.version, i+1, err)
		}
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO schema_version (version, applied_at) VALUES (?, ?)`,
		m.version, encodeTimestamp(time.Now().UTC()),
	); err != nil {
		return fmt.Errorf("sqlite: record migration %d: %w", m.version, err)
	}
	return nil
}

// SchemaVersion reports the highest applied migration version, zero for a
// fresh database.
func (s *Store) SchemaVersion(ctx context.Context) (int, error) {
	var version sql.NullInt64
	err := s.q().QueryRowContext(ctx, `SELECT MAX(version) FROM schema_version`).Scan(&version)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		if containsAny(err.Error(), "no such table") {
			return 0, nil
		}
		return 0, fmt.Errorf("sqlite: read schema version: %w", err)
	}
	if !version.Valid {
		return 0, nil
	}
	return int(version.Int64), nil
}

// MigrateTo applies migrations up to and including the target version;
// tests use it to stage version upgrades.
func (s *Store) MigrateTo(ctx context.Context, target int) error {
	if s.tx != nil {
		return fmt.Errorf("sqlite: migrate inside a transaction")
	}
	if _, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY,
		applied_at TEXT NOT NULL
	)`); err != nil {
		return fmt.Errorf("sqlite: create schema_version: %w", err)
	}
	current, err := s.SchemaVersion(ctx)
	if err != nil {
		return err
	}
	for _, m := range migrations {
		if m.version <= current || m.version > target {
			continue
		}
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("sqlite: begin migration %d: %w", m.version, err)
		}
		if err := applyMigration(ctx, tx, m); err != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				return fmt.Errorf("sqlite: migration %d failed (rollback error: %v): %w", m.version, rbErr, err)
			}
			return err
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("sqlite: commit migration %d: %w", m.version, err)
		}
	}
	return nil
}
