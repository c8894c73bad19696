// Package sqlite implements storage.CheckpointStore on an embedded SQLite
// database.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"github.com/steveyegge/cluedup/internal/storage"
	"github.com/steveyegge/cluedup/internal/storage/migrations"
	"github.com/steveyegge/cluedup/internal/types"
)

// SQLiteStorage implements the CheckpointStore interface using SQLite
type SQLiteStorage struct {
	db   *sqlx.DB
	path string
}

var _ storage.CheckpointStore = (*SQLiteStorage)(nil)

// New opens (creating if needed) the checkpoint database at path and brings
// its schema up to date.
func New(ctx context.Context, path string) (*SQLiteStorage, error) {
	// Ensure directory exists
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
	}

	dsn := "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)&_pragma=journal_mode(wal)"
	db, err := sqlx.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// one writer; SQLite serializes anyway and this avoids SQLITE_BUSY churn
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if _, err := migrations.NewManager(schemaMigrations...).Apply(ctx, db.DB); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteStorage{db: db, path: path}, nil
}

// Path returns the database file path.
func (s *SQLiteStorage) Path() string { return s.path }

// Close closes the database.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

type runRow struct {
	ID           string `db:"run_id"`
	Fingerprint  string `db:"fingerprint"`
	TotalRecords int    `db:"total_records"`
	TotalBlocks  int    `db:"total_blocks"`
	NextBlock    int    `db:"next_block"`
	Complete     bool   `db:"complete"`
	Deleted      int    `db:"deleted"`
	CreatedAt    int64  `db:"created_at"`
	UpdatedAt    int64  `db:"updated_at"`
}

func (r runRow) toRun() *storage.Run {
	return &storage.Run{
		ID:           r.ID,
		Fingerprint:  r.Fingerprint,
		TotalRecords: r.TotalRecords,
		TotalBlocks:  r.TotalBlocks,
		NextBlock:    r.NextBlock,
		Complete:     r.Complete,
		Deleted:      r.Deleted,
		CreatedAt:    time.UnixMilli(r.CreatedAt),
		UpdatedAt:    time.UnixMilli(r.UpdatedAt),
	}
}

const selectRuns = `
	SELECT r.run_id, r.fingerprint, r.total_records, r.total_blocks, r.next_block,
	       r.complete, r.created_at, r.updated_at,
	       (SELECT COUNT(*) FROM dedup_deletions d WHERE d.run_id = r.run_id) AS deleted
	FROM dedup_runs r`

// CreateRun inserts a new run header.
func (s *SQLiteStorage) CreateRun(ctx context.Context, run *storage.Run) error {
	if err := run.Validate(); err != nil {
		return fmt.Errorf("invalid run: %w", err)
	}
	now := time.Now()
	if run.CreatedAt.IsZero() {
		run.CreatedAt = now
	}
	run.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO dedup_runs (run_id, fingerprint, total_records, total_blocks, next_block, complete, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.Fingerprint, run.TotalRecords, run.TotalBlocks, run.NextBlock, run.Complete,
		run.CreatedAt.UnixMilli(), run.UpdatedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("failed to create run %s: %w", run.ID, err)
	}
	return nil
}

// GetRun loads one run header.
func (s *SQLiteStorage) GetRun(ctx context.Context, id string) (*storage.Run, error) {
	var row runRow
	err := s.db.GetContext(ctx, &row, selectRuns+" WHERE r.run_id = ?", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", storage.ErrRunNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run %s: %w", id, err)
	}
	return row.toRun(), nil
}

// ListRuns returns all runs, most recently updated first.
func (s *SQLiteStorage) ListRuns(ctx context.Context) ([]*storage.Run, error) {
	var rows []runRow
	if err := s.db.SelectContext(ctx, &rows, selectRuns+" ORDER BY r.updated_at DESC, r.run_id"); err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	runs := make([]*storage.Run, len(rows))
	for i, row := range rows {
		runs[i] = row.toRun()
	}
	return runs, nil
}

// SaveProgress appends deletions and advances the run in one transaction.
func (s *SQLiteStorage) SaveProgress(ctx context.Context, id string, nextBlock int, complete bool, deletions []types.Deletion) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx,
		`UPDATE dedup_runs SET next_block = ?, complete = ?, updated_at = ? WHERE run_id = ?`,
		nextBlock, complete, time.Now().UnixMilli(), id,
	)
	if err != nil {
		return fmt.Errorf("failed to update run %s: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %s", storage.ErrRunNotFound, id)
	}

	if len(deletions) > 0 {
		var seq int
		if err := tx.GetContext(ctx, &seq, `SELECT COALESCE(MAX(seq), 0) FROM dedup_deletions WHERE run_id = ?`, id); err != nil {
			return fmt.Errorf("failed to read deletion sequence: %w", err)
		}

		stmt, err := tx.PreparexContext(ctx, `
			INSERT OR IGNORE INTO dedup_deletions (run_id, seq, record_id, superseded_by, reason)
			VALUES (?, ?, ?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("failed to prepare deletion insert: %w", err)
		}
		defer stmt.Close()

		for _, d := range deletions {
			seq++
			if _, err := stmt.ExecContext(ctx, id, seq, d.RecordID, d.SupersededBy, string(d.Reason)); err != nil {
				return fmt.Errorf("failed to save deletion of record %d: %w", d.RecordID, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit progress for run %s: %w", id, err)
	}
	return nil
}

type deletionRow struct {
	RecordID     int    `db:"record_id"`
	SupersededBy int    `db:"superseded_by"`
	Reason       string `db:"reason"`
}

// LoadDeletions returns the run's deletions in save order.
func (s *SQLiteStorage) LoadDeletions(ctx context.Context, id string) ([]types.Deletion, error) {
	if _, err := s.GetRun(ctx, id); err != nil {
		return nil, err
	}

	var rows []deletionRow
	err := s.db.SelectContext(ctx, &rows,
		`SELECT record_id, superseded_by, reason FROM dedup_deletions WHERE run_id = ? ORDER BY seq`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load deletions for run %s: %w", id, err)
	}

	deletions := make([]types.Deletion, len(rows))
	for i, row := range rows {
		reason, err := types.ParseDeletionReason(row.Reason)
		if err != nil {
			return nil, fmt.Errorf("run %s record %d: %w", id, row.RecordID, err)
		}
		deletions[i] = types.Deletion{RecordID: row.RecordID, SupersededBy: row.SupersededBy, Reason: reason}
	}
	return deletions, nil
}

// DeleteRun removes a run and its deletions.
func (s *SQLiteStorage) DeleteRun(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM dedup_runs WHERE run_id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete run %s: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %s", storage.ErrRunNotFound, id)
	}
	return nil
}

// PruneCompleted removes complete runs last updated before olderThan.
func (s *SQLiteStorage) PruneCompleted(ctx context.Context, olderThan time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM dedup_runs WHERE complete = 1 AND updated_at < ?`, olderThan.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("failed to prune runs: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count pruned runs: %w", err)
	}
	return int(n), nil
}
