package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const (
	// DataDir holds checkpoint databases, relative to the working directory.
	DataDir = ".cluedup"
	// DefaultDatabaseName is the database file created when none exists.
	DefaultDatabaseName = "checkpoints.db"
)

// DefaultDatabasePath is where a new checkpoint database is created.
func DefaultDatabasePath() string {
	return filepath.Join(DataDir, DefaultDatabaseName)
}

// DiscoverDatabase looks for .cluedup/*.db in the current directory only.
// Returns the absolute path to the database file, or an error if not found.
//
// CLUEDUP_DB_PATH is checked first; when set it is returned as is.
func DiscoverDatabase() (string, error) {
	if dbPath := os.Getenv("CLUEDUP_DB_PATH"); dbPath != "" {
		return dbPath, nil
	}

	dir, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("failed to get current directory: %w", err)
	}

	return discoverDatabaseInDir(dir)
}

// ResolveDatabase picks the checkpoint database for a command: an explicit
// path wins, then discovery. When create is set and nothing is found, the
// default path is returned so the caller can create it.
func ResolveDatabase(explicit string, create bool) (string, error) {
	if explicit != "" {
		return explicit, nil
	}
	dbPath, err := DiscoverDatabase()
	if err == nil {
		return dbPath, nil
	}
	if create {
		return DefaultDatabasePath(), nil
	}
	return "", err
}

// discoverDatabaseInDir checks for .cluedup/*.db in the specified directory
// only. Parent directories are not searched, so a nested project never picks
// up an enclosing project's checkpoints.
func discoverDatabaseInDir(dir string) (string, error) {
	dataDir := filepath.Join(dir, DataDir)

	if info, err := os.Stat(dataDir); err == nil && info.IsDir() {
		entries, err := os.ReadDir(dataDir)
		if err == nil {
			for _, entry := range entries {
				if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".db") {
					absPath, err := filepath.Abs(filepath.Join(dataDir, entry.Name()))
					if err != nil {
						return "", fmt.Errorf("failed to get absolute path: %w", err)
					}
					return absPath, nil
				}
			}
		}
	}

	return "", fmt.Errorf(
		"no %s/*.db found in %s\n"+
			"  Run 'cluedup run' to create one\n"+
			"  Or use --db flag to specify database path explicitly",
		DataDir, dir)
}
