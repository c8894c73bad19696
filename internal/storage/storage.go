// Package storage defines the checkpoint store that lets a long
// deduplication run resume after an interruption.
package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/steveyegge/cluedup/internal/types"
)

// ErrRunNotFound is returned when a run id has no checkpoint.
var ErrRunNotFound = errors.New("run not found")

// Run is the checkpoint header of one deduplication run.
type Run struct {
	ID string `json:"run_id"`

	// Fingerprint identifies the input records and the semantic
	// configuration. A run may only be resumed with a matching fingerprint.
	Fingerprint string `json:"fingerprint"`

	TotalRecords int `json:"total_records"`
	TotalBlocks  int `json:"total_blocks"`

	// NextBlock is the first key block not yet scanned.
	NextBlock int  `json:"next_block"`
	Complete  bool `json:"complete"`

	// Deleted is the number of stored deletions (filled in by GetRun/ListRuns).
	Deleted int `json:"deleted"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Validate checks if the run has valid field values
func (r *Run) Validate() error {
	if r.ID == "" {
		return fmt.Errorf("run_id is required")
	}
	if r.Fingerprint == "" {
		return fmt.Errorf("fingerprint is required")
	}
	if r.TotalRecords < 0 {
		return fmt.Errorf("total_records cannot be negative (got %d)", r.TotalRecords)
	}
	if r.TotalBlocks < 0 {
		return fmt.Errorf("total_blocks cannot be negative (got %d)", r.TotalBlocks)
	}
	if r.NextBlock < 0 || r.NextBlock > r.TotalBlocks {
		return fmt.Errorf("next_block must be between 0 and %d (got %d)", r.TotalBlocks, r.NextBlock)
	}
	return nil
}

// Progress returns the fraction of blocks scanned.
func (r *Run) Progress() float64 {
	if r.Complete || r.TotalBlocks == 0 {
		return 1
	}
	return float64(r.NextBlock) / float64(r.TotalBlocks)
}

// CheckpointStore persists run headers and their deletion sets.
type CheckpointStore interface {
	// CreateRun stores a new run header. The run's deletion set starts empty.
	CreateRun(ctx context.Context, run *Run) error
	// GetRun returns ErrRunNotFound (wrapped) for unknown ids.
	GetRun(ctx context.Context, id string) (*Run, error)
	// ListRuns returns every run, most recently updated first.
	ListRuns(ctx context.Context) ([]*Run, error)

	// SaveProgress atomically appends deletions and advances the run to
	// nextBlock. Re-saving a deletion that is already stored is a no-op.
	SaveProgress(ctx context.Context, id string, nextBlock int, complete bool, deletions []types.Deletion) error
	// LoadDeletions returns the run's deletions in the order they were saved.
	LoadDeletions(ctx context.Context, id string) ([]types.Deletion, error)

	DeleteRun(ctx context.Context, id string) error
	// PruneCompleted deletes complete runs last updated before olderThan and
	// returns how many were removed.
	PruneCompleted(ctx context.Context, olderThan time.Time) (int, error)

	// Lifecycle
	Close() error
}
