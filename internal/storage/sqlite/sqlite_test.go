package sqlite

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/steveyegge/cluedup/internal/storage"
	"github.com/steveyegge/cluedup/internal/types"
)

func newTestStorage(t *testing.T) *SQLiteStorage {
	t.Helper()
	s, err := New(context.Background(), filepath.Join(t.TempDir(), "checkpoints.db"))
	if err != nil {
		t.Fatalf("Failed to create storage: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func createTestRun(t *testing.T, s *SQLiteStorage, id string) {
	t.Helper()
	run := &storage.Run{ID: id, Fingerprint: "fp", TotalRecords: 10, TotalBlocks: 5}
	if err := s.CreateRun(context.Background(), run); err != nil {
		t.Fatalf("Failed to create run: %v", err)
	}
}

// TestNewWithCorruptDatabase verifies New() rejects a file that is not a database
func TestNewWithCorruptDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "corrupt.db")
	if err := os.WriteFile(path, []byte(strings.Repeat("not a database ", 512)), 0644); err != nil {
		t.Fatalf("Failed to write file: %v", err)
	}

	s, err := New(context.Background(), path)
	if err == nil {
		s.Close()
		t.Fatal("Expected New() to fail on a corrupt database file")
	}
}

// TestForeignKeysEnabled verifies that foreign keys are enabled
func TestForeignKeysEnabled(t *testing.T) {
	s := newTestStorage(t)

	var fkEnabled int
	if err := s.db.QueryRow("PRAGMA foreign_keys").Scan(&fkEnabled); err != nil {
		t.Fatalf("Failed to check foreign keys: %v", err)
	}
	if fkEnabled != 1 {
		t.Errorf("Expected foreign keys to be enabled (1), got %d", fkEnabled)
	}
}

// TestCascadeDeleteWorks verifies deleting a run removes its deletions
func TestCascadeDeleteWorks(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage(t)
	createTestRun(t, s, "run-1")
	createTestRun(t, s, "run-2")

	deletions := []types.Deletion{
		{RecordID: 3, SupersededBy: 1, Reason: types.ReasonSmallerBody},
		{RecordID: 4, SupersededBy: 1, Reason: types.ReasonTieBreak},
	}
	for _, id := range []string{"run-1", "run-2"} {
		if err := s.SaveProgress(ctx, id, 2, false, deletions); err != nil {
			t.Fatalf("Failed to save progress: %v", err)
		}
	}

	if err := s.DeleteRun(ctx, "run-1"); err != nil {
		t.Fatalf("Failed to delete run: %v", err)
	}

	var count int
	if err := s.db.QueryRow("SELECT COUNT(*) FROM dedup_deletions WHERE run_id = 'run-1'").Scan(&count); err != nil {
		t.Fatalf("Failed to count deletions: %v", err)
	}
	if count != 0 {
		t.Errorf("Expected deletions to be cascade deleted, but found %d", count)
	}
	if err := s.db.QueryRow("SELECT COUNT(*) FROM dedup_deletions WHERE run_id = 'run-2'").Scan(&count); err != nil {
		t.Fatalf("Failed to count deletions: %v", err)
	}
	if count != 2 {
		t.Errorf("Expected the other run to keep 2 deletions, got %d", count)
	}
}

// TestLoadDeletionsRejectsUnknownReason verifies a corrupted reason is not
// silently turned into a valid deletion
func TestLoadDeletionsRejectsUnknownReason(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage(t)
	createTestRun(t, s, "run-1")

	_, err := s.db.Exec(`
		INSERT INTO dedup_deletions (run_id, seq, record_id, superseded_by, reason)
		VALUES ('run-1', 1, 2, 0, 'coin_flip')
	`)
	if err != nil {
		t.Fatalf("Failed to insert deletion: %v", err)
	}

	if _, err := s.LoadDeletions(ctx, "run-1"); err == nil {
		t.Error("Expected LoadDeletions to fail on an unknown reason")
	}
}

// TestReopenKeepsSchema verifies migrations are not reapplied on reopen
func TestReopenKeepsSchema(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "checkpoints.db")

	s, err := New(ctx, path)
	if err != nil {
		t.Fatalf("Failed to create storage: %v", err)
	}
	if err := s.CreateRun(ctx, &storage.Run{ID: "run-1", Fingerprint: "fp", TotalBlocks: 1}); err != nil {
		t.Fatalf("Failed to create run: %v", err)
	}
	s.Close()

	s, err = New(ctx, path)
	if err != nil {
		t.Fatalf("Failed to reopen storage: %v", err)
	}
	defer s.Close()

	if _, err := s.GetRun(ctx, "run-1"); err != nil {
		t.Errorf("Expected run to survive reopen: %v", err)
	}
	if s.Path() != path {
		t.Errorf("Path() = %q, want %q", s.Path(), path)
	}
}
