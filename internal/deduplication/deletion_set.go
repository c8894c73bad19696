package deduplication

import (
	"fmt"

	"github.com/steveyegge/cluedup/internal/types"
)

// DeletionSet records which record ids have been deleted during one run.
// Membership is monotonic: an id is marked at most once and never cleared.
//
// It is not safe for concurrent use; the engine applies deletions from a
// single goroutine.
type DeletionSet struct {
	deleted []bool
	log     []types.Deletion
	drained int
}

// NewDeletionSet creates an empty set for record ids 0..n-1.
func NewDeletionSet(n int) *DeletionSet {
	return &DeletionSet{deleted: make([]bool, n)}
}

// Mark deletes id in favor of by. It returns false if id was already deleted.
func (s *DeletionSet) Mark(id, by int, reason types.DeletionReason) bool {
	if s.deleted[id] {
		return false
	}
	s.deleted[id] = true
	s.log = append(s.log, types.Deletion{RecordID: id, SupersededBy: by, Reason: reason})
	return true
}

// Has reports whether id is deleted.
func (s *DeletionSet) Has(id int) bool { return s.deleted[id] }

// Len is the number of deleted ids.
func (s *DeletionSet) Len() int { return len(s.log) }

// Deletions returns every deletion in the order it was made.
func (s *DeletionSet) Deletions() []types.Deletion { return s.log }

// Drain returns the deletions made since the previous Drain.
func (s *DeletionSet) Drain() []types.Deletion {
	out := s.log[s.drained:]
	s.drained = len(s.log)
	return out
}

// Undrain rewinds Drain by n deletions, for when a checkpoint write fails.
func (s *DeletionSet) Undrain(n int) {
	s.drained = max(0, s.drained-n)
}

// Restore replays deletions loaded from a checkpoint. Restored deletions are
// considered drained.
func (s *DeletionSet) Restore(deletions []types.Deletion) error {
	for _, d := range deletions {
		if d.RecordID < 0 || d.RecordID >= len(s.deleted) {
			return fmt.Errorf("checkpoint deletion for record %d outside 0..%d", d.RecordID, len(s.deleted)-1)
		}
		if err := d.Validate(); err != nil {
			return fmt.Errorf("checkpoint deletion for record %d: %w", d.RecordID, err)
		}
		if !s.Mark(d.RecordID, d.SupersededBy, d.Reason) {
			return fmt.Errorf("checkpoint deletes record %d twice", d.RecordID)
		}
	}
	s.drained = len(s.log)
	return nil
}
