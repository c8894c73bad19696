package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/spf13/cobra"
	"github.com/steveyegge/cluedup/internal/config"
	"github.com/steveyegge/cluedup/internal/deduplication"
	"github.com/steveyegge/cluedup/internal/similarity"
	"github.com/steveyegge/cluedup/internal/storage"
	"github.com/steveyegge/cluedup/internal/storage/sqlite"
	"github.com/steveyegge/cluedup/internal/threshold"
)

// addConfigFlags registers one flag per deduplication setting. A flag only
// overrides the file and environment when it is given explicitly.
func addConfigFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.String("key-thresholds", "", "Key threshold preset: step or decay")
	f.String("body-threshold", "", "Body threshold: majority, or a fixed overlap in (0,1]")
	f.Int("max-key-length", 0, "Truncate normalized answers to this many characters")
	f.Bool("descending", false, "Scan answers in descending order")
	f.Int("min-block-frequency", 0, "Skip answers occurring fewer times than this as pivots and candidates")
	f.String("restrict-key", "", "Only compare records whose answer contains this text")
	f.String("restrict-body", "", "Only compare records whose clue contains this text")
	f.String("key-metric", "", "Answer similarity: jaro_winkler or jaro")
	f.String("body-metric", "", "Clue similarity: overlap or jaccard")
	f.String("tie-break", "", "Equal clues: keep_both or keep_pivot")
	f.String("stemming", "", "Clue word stemming: none or plural")
	f.Int("workers", 0, "Parallel workers (default: number of CPUs)")
	f.Int("batch-size", 0, "Answer blocks per batch")
	f.Duration("checkpoint-interval", 0, "Minimum time between checkpoints")
}

// loadDedupConfig layers defaults, the config file, the environment and
// explicitly set flags, in that order.
func loadDedupConfig(cmd *cobra.Command) (deduplication.Config, error) {
	cfg, err := fileCfg.Apply(deduplication.DefaultConfig())
	if err != nil {
		return cfg, err
	}
	cfg, err = deduplication.ApplyEnv(cfg)
	if err != nil {
		return cfg, err
	}

	f := cmd.Flags()
	if f.Changed("key-thresholds") {
		name, _ := f.GetString("key-thresholds")
		table, err := threshold.TableByName(name)
		if err != nil {
			return cfg, fmt.Errorf("--key-thresholds: %w", err)
		}
		cfg.KeyThresholds = table
	}
	if f.Changed("body-threshold") {
		v, _ := f.GetString("body-threshold")
		rule, err := parseBodyRule(v)
		if err != nil {
			return cfg, fmt.Errorf("--body-threshold: %w", err)
		}
		cfg.BodyThreshold = rule
	}
	if f.Changed("max-key-length") {
		cfg.MaxKeyLength, _ = f.GetInt("max-key-length")
	}
	if f.Changed("descending") {
		desc, _ := f.GetBool("descending")
		cfg.SortAscending = !desc
	}
	if f.Changed("min-block-frequency") {
		cfg.MinBlockFrequency, _ = f.GetInt("min-block-frequency")
	}
	if f.Changed("restrict-key") {
		cfg.RestrictKeySubstring, _ = f.GetString("restrict-key")
	}
	if f.Changed("restrict-body") {
		cfg.RestrictBodySubstring, _ = f.GetString("restrict-body")
	}
	if f.Changed("key-metric") {
		v, _ := f.GetString("key-metric")
		cfg.KeyMetric = similarity.KeyMetric(v)
	}
	if f.Changed("body-metric") {
		v, _ := f.GetString("body-metric")
		cfg.BodyMetric = similarity.BodyMetric(v)
	}
	if f.Changed("tie-break") {
		v, _ := f.GetString("tie-break")
		cfg.TieBreak = deduplication.TieBreak(v)
	}
	if f.Changed("stemming") {
		cfg.Stemming, _ = f.GetString("stemming")
	}
	if f.Changed("workers") {
		cfg.Workers, _ = f.GetInt("workers")
	}
	if f.Changed("batch-size") {
		cfg.BlockBatchSize, _ = f.GetInt("batch-size")
	}
	if f.Changed("checkpoint-interval") {
		cfg.CheckpointInterval, _ = f.GetDuration("checkpoint-interval")
	}

	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func parseBodyRule(s string) (threshold.BodyRule, error) {
	if s == threshold.BodyMajority {
		return threshold.MajorityRule(), nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return threshold.BodyRule{}, fmt.Errorf("want majority or a number, got %q", s)
	}
	rule := threshold.FixedRule(v)
	return rule, rule.Validate()
}

// loadCheckpointConfig layers checkpoint settings the same way. --db wins
// over everything.
func loadCheckpointConfig() (config.CheckpointConfig, error) {
	cp, err := fileCfg.ApplyCheckpoint(config.DefaultCheckpointConfig())
	if err != nil {
		return cp, err
	}
	cp, err = config.ApplyCheckpointEnv(cp)
	if err != nil {
		return cp, err
	}
	if dbPath != "" {
		cp.DBPath = dbPath
	}
	return cp, nil
}

// openStore opens the checkpoint database. With create set, a missing
// database is created at the default location. With lock set, the run lock
// is held until the returned release func is called.
func openStore(ctx context.Context, cp config.CheckpointConfig, create, lock bool) (*sqlite.SQLiteStorage, func(), error) {
	path, err := storage.ResolveDatabase(cp.DBPath, create)
	if err != nil {
		return nil, nil, err
	}
	if create {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	var lockPath string
	if lock {
		lockPath, err = storage.AcquireRunLock(path, version)
		if err != nil {
			return nil, nil, err
		}
	}

	store, err := sqlite.New(ctx, path)
	if err != nil {
		if lockPath != "" {
			_ = storage.ReleaseRunLock(lockPath)
		}
		return nil, nil, err
	}

	release := func() {
		if err := store.Close(); err != nil {
			logger.Warn().Err(err).Msg("Failed to close checkpoint database")
		}
		if lockPath != "" {
			if err := storage.ReleaseRunLock(lockPath); err != nil {
				logger.Warn().Err(err).Str("lock", lockPath).Msg("Failed to release run lock")
			}
		}
	}
	return store, release, nil
}
