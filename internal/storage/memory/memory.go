// Package memory is an in-process CheckpointStore, used by tests and by runs
// that want resumability only within one process.
package memory

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/steveyegge/cluedup/internal/storage"
	"github.com/steveyegge/cluedup/internal/types"
)

type runState struct {
	run       storage.Run
	deletions []types.Deletion
	seen      map[int]struct{}
}

// Store keeps checkpoints in memory. It is safe for concurrent use.
type Store struct {
	mu   sync.Mutex
	runs map[string]*runState

	// SaveHook, when set, is called at the start of every SaveProgress with
	// the arguments it received; a non-nil error aborts the save.
	SaveHook func(id string, nextBlock int, complete bool) error
}

var _ storage.CheckpointStore = (*Store)(nil)

// New creates an empty store.
func New() *Store {
	return &Store{runs: make(map[string]*runState)}
}

func (s *Store) CreateRun(ctx context.Context, run *storage.Run) error {
	if err := run.Validate(); err != nil {
		return fmt.Errorf("invalid run: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.runs[run.ID]; exists {
		return fmt.Errorf("run %s already exists", run.ID)
	}
	now := time.Now()
	if run.CreatedAt.IsZero() {
		run.CreatedAt = now
	}
	run.UpdatedAt = now
	s.runs[run.ID] = &runState{run: *run, seen: make(map[int]struct{})}
	return nil
}

func (s *Store) get(id string) (*runState, error) {
	st, ok := s.runs[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", storage.ErrRunNotFound, id)
	}
	return st, nil
}

func (s *Store) snapshot(st *runState) *storage.Run {
	run := st.run
	run.Deleted = len(st.deletions)
	return &run
}

func (s *Store) GetRun(ctx context.Context, id string) (*storage.Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, err := s.get(id)
	if err != nil {
		return nil, err
	}
	return s.snapshot(st), nil
}

func (s *Store) ListRuns(ctx context.Context) ([]*storage.Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	runs := make([]*storage.Run, 0, len(s.runs))
	for _, st := range s.runs {
		runs = append(runs, s.snapshot(st))
	}
	slices.SortFunc(runs, func(a, b *storage.Run) int {
		if c := b.UpdatedAt.Compare(a.UpdatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return runs, nil
}

func (s *Store) SaveProgress(ctx context.Context, id string, nextBlock int, complete bool, deletions []types.Deletion) error {
	if s.SaveHook != nil {
		if err := s.SaveHook(id, nextBlock, complete); err != nil {
			return err
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	st, err := s.get(id)
	if err != nil {
		return err
	}
	for _, d := range deletions {
		if _, dup := st.seen[d.RecordID]; dup {
			continue
		}
		st.seen[d.RecordID] = struct{}{}
		st.deletions = append(st.deletions, d)
	}
	st.run.NextBlock = nextBlock
	st.run.Complete = complete
	st.run.UpdatedAt = time.Now()
	return nil
}

func (s *Store) LoadDeletions(ctx context.Context, id string) ([]types.Deletion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, err := s.get(id)
	if err != nil {
		return nil, err
	}
	return slices.Clone(st.deletions), nil
}

func (s *Store) DeleteRun(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.get(id); err != nil {
		return err
	}
	delete(s.runs, id)
	return nil
}

func (s *Store) PruneCompleted(ctx context.Context, olderThan time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for id, st := range s.runs {
		if st.run.Complete && st.run.UpdatedAt.Before(olderThan) {
			delete(s.runs, id)
			n++
		}
	}
	return n, nil
}

func (s *Store) Close() error { return nil }
