package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"syscall"
	"time"
)

// ErrLocked is returned when another live process holds the checkpoint lock.
var ErrLocked = errors.New("checkpoint database is locked")

// RunLock is the lock file format that claims exclusive use of a checkpoint
// database. Two processes writing progress for the same run would interleave
// deletions from different scans.
type RunLock struct {
	Holder    string    `json:"holder"`
	PID       int       `json:"pid"`
	Hostname  string    `json:"hostname"`
	StartedAt time.Time `json:"started_at"`
	Version   string    `json:"version"`
}

// LockPath returns the lock file path for a checkpoint database.
func LockPath(dbPath string) string {
	return dbPath + ".lock"
}

// AcquireRunLock creates the lock file next to the checkpoint database.
// A lock left behind by a process that no longer exists is taken over.
// Returns the lock file path for cleanup on shutdown.
func AcquireRunLock(dbPath, version string) (lockPath string, err error) {
	lockPath = LockPath(dbPath)

	// Check for existing lock
	if data, err := os.ReadFile(lockPath); err == nil {
		var existing RunLock
		if json.Unmarshal(data, &existing) == nil {
			// Check if stale (process no longer exists)
			if isProcessAlive(existing.PID, existing.Hostname) {
				return "", fmt.Errorf("%w: held by PID %d on %s since %s", ErrLocked,
					existing.PID, existing.Hostname, existing.StartedAt.Format(time.RFC3339))
			}
			// Stale lock - will overwrite
		}
	}

	hostname, err := os.Hostname()
	if err != nil {
		return "", fmt.Errorf("failed to get hostname: %w", err)
	}

	lock := RunLock{
		Holder:    "cluedup",
		PID:       os.Getpid(),
		Hostname:  hostname,
		StartedAt: time.Now(),
		Version:   version,
	}

	data, err := json.MarshalIndent(lock, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal lock: %w", err)
	}

	if err := os.WriteFile(lockPath, data, 0644); err != nil {
		return "", fmt.Errorf("failed to create lock: %w", err)
	}

	return lockPath, nil
}

// ReleaseRunLock removes the lock file.
// Should be called on shutdown (use defer).
func ReleaseRunLock(lockPath string) error {
	if lockPath == "" {
		return nil
	}

	if err := os.Remove(lockPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove lock: %w", err)
	}

	return nil
}

// isProcessAlive checks if a process with the given PID exists on the given hostname.
// Locks from other hosts cannot be checked and count as alive.
func isProcessAlive(pid int, hostname string) bool {
	currentHost, err := os.Hostname()
	if err != nil {
		return true
	}

	if !strings.EqualFold(hostname, currentHost) {
		return true
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}

	// Signal 0 checks for existence without delivering anything
	err = process.Signal(syscall.Signal(0))
	if err == nil {
		return true
	}

	// EPERM: the process exists but belongs to someone else
	return errors.Is(err, syscall.EPERM)
}
