package deduplication

import (
	"context"
	"fmt"

	"github.com/steveyegge/cluedup/internal/types"
)

// Deduplicator collapses near-duplicate records.
//
// Example usage:
//
//	engine, err := NewEngine(DefaultConfig(), nil, logger)
//	if err != nil {
//	    return err
//	}
//	result, err := engine.Deduplicate(ctx, records)
//	if err != nil {
//	    return err
//	}
//	fmt.Printf("kept %d of %d\n", result.Stats.SurvivorCount, result.Stats.TotalRecords)
type Deduplicator interface {
	// Deduplicate scans records and returns the survivors in input order.
	//
	// Records must carry ids 0..n-1 in order; anything else is an
	// InputShapeError and nothing is processed.
	Deduplicate(ctx context.Context, records []types.Record) (*Result, error)

	// Resume continues an interrupted checkpointed run over the same records.
	Resume(ctx context.Context, runID string, records []types.Record) (*Result, error)
}

// Result is the outcome of one run.
type Result struct {
	// RunID identifies the checkpoint; empty when the engine has no store
	RunID string `json:"run_id,omitempty"`

	// Survivors are the records not deleted, in original input order, untouched
	Survivors []types.Record `json:"survivors"`

	// Deletions is the audit trail, ordered by record id
	Deletions []types.Deletion `json:"deletions"`

	Stats Stats `json:"stats"`
}

// Stats provides metrics about a run
type Stats struct {
	// TotalRecords is the number of input records
	TotalRecords int `json:"total_records"`

	// ComparedRecords is the number of records that passed the restrict filters
	ComparedRecords int `json:"compared_records"`

	SurvivorCount int `json:"survivor_count"`
	DeletedCount  int `json:"deleted_count"`

	// Blocks is the number of distinct normalized keys among compared records
	Blocks int `json:"blocks"`

	// RareBlocks is the number of blocks below MinBlockFrequency
	RareBlocks int `json:"rare_blocks"`

	// KeyComparisons counts key pairs handed to the matcher
	KeyComparisons int64 `json:"key_comparisons"`

	// BodyComparisons counts body overlaps scored
	BodyComparisons int64 `json:"body_comparisons"`

	// DegenerateKeys and DegenerateBodies count records that normalized to an
	// empty key or an empty bag. They are kept and compared like any other.
	DegenerateKeys   int `json:"degenerate_keys"`
	DegenerateBodies int `json:"degenerate_bodies"`

	// Resumed is true when the run continued from a checkpoint
	Resumed bool `json:"resumed"`

	// ProcessingTimeMs is the wall time of this invocation in milliseconds
	ProcessingTimeMs int64 `json:"processing_time_ms"`
}

// Validate checks if the result is internally consistent
func (r *Result) Validate() error {
	total := r.Stats.TotalRecords

	if r.Stats.SurvivorCount != len(r.Survivors) {
		return fmt.Errorf("stats.survivor_count (%d) does not match survivors length (%d)",
			r.Stats.SurvivorCount, len(r.Survivors))
	}
	if r.Stats.DeletedCount != len(r.Deletions) {
		return fmt.Errorf("stats.deleted_count (%d) does not match deletions length (%d)",
			r.Stats.DeletedCount, len(r.Deletions))
	}
	if len(r.Survivors)+len(r.Deletions) != total {
		return fmt.Errorf("survivors (%d) + deletions (%d) does not match total_records (%d)",
			len(r.Survivors), len(r.Deletions), total)
	}
	if r.Stats.ComparedRecords > total {
		return fmt.Errorf("stats.compared_records (%d) exceeds total_records (%d)", r.Stats.ComparedRecords, total)
	}

	survivors := make(map[int]struct{}, len(r.Survivors))
	prev := -1
	for _, rec := range r.Survivors {
		if rec.ID <= prev {
			return fmt.Errorf("survivors out of input order at id %d (after %d)", rec.ID, prev)
		}
		if rec.ID >= total {
			return fmt.Errorf("survivor id %d out of range (total: %d)", rec.ID, total)
		}
		survivors[rec.ID] = struct{}{}
		prev = rec.ID
	}

	deleted := make(map[int]struct{}, len(r.Deletions))
	for _, d := range r.Deletions {
		if err := d.Validate(); err != nil {
			return fmt.Errorf("invalid deletion: %w", err)
		}
		if d.RecordID >= total || d.SupersededBy >= total {
			return fmt.Errorf("deletion %d -> %d out of range (total: %d)", d.RecordID, d.SupersededBy, total)
		}
		if _, dup := deleted[d.RecordID]; dup {
			return fmt.Errorf("record %d deleted more than once", d.RecordID)
		}
		if _, kept := survivors[d.RecordID]; kept {
			return fmt.Errorf("record %d is both a survivor and deleted", d.RecordID)
		}
		deleted[d.RecordID] = struct{}{}
	}

	return nil
}
