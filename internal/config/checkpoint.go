package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// CheckpointConfig holds configuration for run checkpoints and their cleanup
type CheckpointConfig struct {
	// Enabled controls whether runs are checkpointed at all
	// Without checkpoints an interrupted run cannot be resumed
	// Default: true
	Enabled bool

	// DBPath is the checkpoint database. Empty means discover it
	// (CLUEDUP_DB_PATH, then .cluedup/*.db) or create the default
	DBPath string

	// RetentionDays is how long completed runs are kept (in days)
	// Incomplete runs are never pruned
	// Default: 30, Range: 0-3650
	// 0 = keep forever
	RetentionDays int

	// PruneOnStart prunes expired completed runs before each new run
	// Default: true
	PruneOnStart bool
}

// DefaultCheckpointConfig returns the default checkpoint configuration
//
// These defaults are chosen to:
// - Make every long run resumable without extra flags
// - Keep a month of completed runs for auditing deletions
// - Clean up opportunistically instead of running a separate job
func DefaultCheckpointConfig() CheckpointConfig {
	return CheckpointConfig{
		Enabled:       true,
		RetentionDays: 30,
		PruneOnStart:  true,
	}
}

// Validate checks if the configuration has valid values
func (c CheckpointConfig) Validate() error {
	if c.RetentionDays < 0 || c.RetentionDays > 3650 {
		return fmt.Errorf("retention_days must be between 0 and 3650 (got %d)", c.RetentionDays)
	}
	return nil
}

// String returns a human-readable representation of the config
func (c CheckpointConfig) String() string {
	return fmt.Sprintf(
		"CheckpointConfig{Enabled: %t, DBPath: %q, RetentionDays: %d, PruneOnStart: %t}",
		c.Enabled, c.DBPath, c.RetentionDays, c.PruneOnStart,
	)
}

// Retention returns the retention period as a time.Duration (0 = forever)
func (c CheckpointConfig) Retention() time.Duration {
	return time.Duration(c.RetentionDays) * 24 * time.Hour
}

// PruneCutoff returns the time before which completed runs expire, and false
// when retention is unlimited.
func (c CheckpointConfig) PruneCutoff(now time.Time) (time.Time, bool) {
	if c.RetentionDays == 0 {
		return time.Time{}, false
	}
	return now.Add(-c.Retention()), true
}

// CheckpointConfigFromEnv creates a CheckpointConfig from environment variables,
// falling back to defaults
//
// See ApplyCheckpointEnv for the variables read.
func CheckpointConfigFromEnv() (CheckpointConfig, error) {
	return ApplyCheckpointEnv(DefaultCheckpointConfig())
}

// ApplyCheckpointEnv overrides cfg with any checkpoint environment variables that are set
//
// Environment variables:
//   - CLUEDUP_CHECKPOINT_ENABLED: Checkpoint runs (default: true)
//   - CLUEDUP_DB_PATH: Checkpoint database path (default: discovered)
//   - CLUEDUP_CHECKPOINT_RETENTION_DAYS: Days to keep completed runs, 0 for forever (default: 30)
//   - CLUEDUP_CHECKPOINT_PRUNE_ON_START: Prune expired runs before each run (default: true)
//
// Returns an error if any environment variable has an invalid value.
func ApplyCheckpointEnv(cfg CheckpointConfig) (CheckpointConfig, error) {
	if err := parseEnvBool("CLUEDUP_CHECKPOINT_ENABLED", &cfg.Enabled); err != nil {
		return cfg, err
	}
	if err := parseEnvString("CLUEDUP_DB_PATH", &cfg.DBPath); err != nil {
		return cfg, err
	}
	if err := parseEnvInt("CLUEDUP_CHECKPOINT_RETENTION_DAYS", &cfg.RetentionDays); err != nil {
		return cfg, err
	}
	if err := parseEnvBool("CLUEDUP_CHECKPOINT_PRUNE_ON_START", &cfg.PruneOnStart); err != nil {
		return cfg, err
	}

	// Validate the final configuration
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid checkpoint configuration from environment: %w", err)
	}

	return cfg, nil
}

// parseEnvInt parses an int from an environment variable
func parseEnvInt(key string, dest *int) error {
	value := os.Getenv(key)
	if value == "" {
		return nil // Use default
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("invalid value for %s: %w", key, err)
	}
	*dest = parsed
	return nil
}

// parseEnvBool parses a bool from an environment variable
func parseEnvBool(key string, dest *bool) error {
	value := os.Getenv(key)
	if value == "" {
		return nil // Use default
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fmt.Errorf("invalid value for %s: %w", key, err)
	}
	*dest = parsed
	return nil
}

// parseEnvString parses a string from an environment variable
func parseEnvString(key string, dest *string) error {
	value := os.Getenv(key)
	if value == "" {
		return nil // Use default
	}
	*dest = value
	return nil
}
