package database

import (
	"context"
	"fmt"
)

// migration defines a single idempotent schema migration.
type migration struct {
	name  string
	sql   string
	check string // query that returns true if the migration is already applied
}

// migrations is the ordered list of schema migrations to apply.
// Each must be idempotent (use IF NOT EXISTS, IF EXISTS, etc.).
var migrations = []migration{
	{
		name:  "add transcription_jobs.original_name",
		sql:   `ALTER TABLE transcription_jobs ADD COLUMN IF NOT EXISTS original_name text NOT NULL DEFAULT ''`,
		check: `SELECT EXISTS (SELECT 1 FROM information_schema.columns WHERE table_name = 'transcription_jobs' AND column_name = 'original_name')`,
	},
	{
		name:  "add transcript_segments job/start index",
		sql:   `CREATE INDEX IF NOT EXISTS idx_segments_job_start ON transcript_segments (job_id, start_time)`,
		check: `SELECT EXISTS (SELECT 1 FROM pg_indexes WHERE indexname = 'idx_segments_job_start')`,
	},
}

// Migrate applies any pending migrations. Safe to run on every startup.
func (db *DB) Migrate(ctx context.Context) error {
	for _, m := range migrations {
		var applied bool
		if err := db.Pool.QueryRow(ctx, m.check).Scan(&applied); err != nil {
			return fmt.Errorf("migration check %q: %w", m.name, err)
		}
		if applied {
			continue
		}

		db.log.Info().Str("migration", m.name).Msg("applying migration")
		if _, err := db.Pool.Exec(ctx, m.sql); err != nil {
			return fmt.Errorf("migration %q: %w", m.name, err)
		}
	}
	return nil
}
