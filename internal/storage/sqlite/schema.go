package sqlite

import "github.com/steveyegge/cluedup/internal/storage/migrations"

// schemaMigrations is the full history of the checkpoint schema. Append new
// versions; never edit an applied one.
var schemaMigrations = []migrations.Migration{
	{
		Version:     1,
		Description: "Create dedup_runs and dedup_deletions",
		Up: `
			CREATE TABLE IF NOT EXISTS dedup_runs (
				run_id        TEXT PRIMARY KEY,
				fingerprint   TEXT NOT NULL,
				total_records INTEGER NOT NULL,
				total_blocks  INTEGER NOT NULL,
				next_block    INTEGER NOT NULL DEFAULT 0,
				complete      INTEGER NOT NULL DEFAULT 0,
				created_at    INTEGER NOT NULL,
				updated_at    INTEGER NOT NULL
			);

			CREATE TABLE IF NOT EXISTS dedup_deletions (
				run_id        TEXT NOT NULL REFERENCES dedup_runs(run_id) ON DELETE CASCADE,
				seq           INTEGER NOT NULL,
				record_id     INTEGER NOT NULL,
				superseded_by INTEGER NOT NULL,
				reason        TEXT NOT NULL,
				PRIMARY KEY (run_id, record_id)
			);

			CREATE INDEX IF NOT EXISTS idx_dedup_deletions_seq ON dedup_deletions(run_id, seq);
			CREATE INDEX IF NOT EXISTS idx_dedup_runs_updated ON dedup_runs(complete, updated_at);
		`,
		Down: `
			DROP TABLE IF EXISTS dedup_deletions;
			DROP TABLE IF EXISTS dedup_runs;
		`,
	},
}
