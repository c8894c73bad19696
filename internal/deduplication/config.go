package deduplication

import (
	"fmt"
	"os"
	"runtime"
	"strconv"
	"time"

	"github.com/steveyegge/cluedup/internal/normalize"
	"github.com/steveyegge/cluedup/internal/similarity"
	"github.com/steveyegge/cluedup/internal/threshold"
)

// TieBreak decides what happens to a matching candidate whose body bag is
// exactly as large as the pivot's.
type TieBreak string

const (
	// TieKeepBoth leaves equal-sized matches alone.
	TieKeepBoth TieBreak = "keep_both"
	// TieKeepPivot deletes equal-sized matches in favor of the pivot, unless
	// the pivot is itself superseded by a bigger match.
	TieKeepPivot TieBreak = "keep_pivot"
)

// Config holds configuration for the deduplication engine
type Config struct {
	// KeyThresholds maps normalized key length to the minimum key similarity
	// Default: the step table (1.0 for one rune down to 0.70 past twenty)
	KeyThresholds threshold.KeyTable `yaml:"key_thresholds"`

	// BodyThreshold maps the pivot's bag size to the minimum body overlap
	// Default: majority (all words for bags of three or fewer, otherwise more than half)
	BodyThreshold threshold.BodyRule `yaml:"body_threshold"`

	// MaxKeyLength caps normalized keys, in runes
	// Default: 50
	MaxKeyLength int `yaml:"max_key_length"`

	// SortAscending orders blocks by ascending key; false reverses the key order only
	// Default: true
	SortAscending bool `yaml:"sort_ascending"`

	// MinBlockFrequency excludes keys seen fewer times than this from fuzzy
	// comparison; their records are still compared within their own key
	// Default: 0 (off)
	MinBlockFrequency int `yaml:"min_block_frequency"`

	// RestrictKeySubstring and RestrictBodySubstring limit comparison to records
	// whose raw key/body contain them (case-insensitive). Other records survive untouched.
	RestrictKeySubstring  string `yaml:"restrict_key_substring"`
	RestrictBodySubstring string `yaml:"restrict_body_substring"`

	// KeyMetric is jaro_winkler (default) or jaro
	KeyMetric similarity.KeyMetric `yaml:"key_metric"`

	// BodyMetric is overlap (default) or jaccard
	BodyMetric similarity.BodyMetric `yaml:"body_metric"`

	// TieBreak is keep_both (default) or keep_pivot
	TieBreak TieBreak `yaml:"tie_break"`

	// Stemming is none (default) or plural
	Stemming string `yaml:"stemming"`

	// Workers bounds parallel normalization and candidate generation
	// Default: runtime.NumCPU()
	Workers int `yaml:"workers"`

	// BlockBatchSize is the number of key blocks whose candidates are generated
	// together; checkpoints are taken only at batch boundaries
	// Default: 1024
	BlockBatchSize int `yaml:"block_batch_size"`

	// CheckpointInterval is the minimum time between checkpoint saves
	// Default: 30 seconds
	CheckpointInterval time.Duration `yaml:"checkpoint_interval"`

	// KeyCacheSize bounds the raw answer -> normalized key cache (0 disables it)
	// Default: 65536
	KeyCacheSize int `yaml:"key_cache_size"`
}

// DefaultConfig returns the default deduplication configuration
func DefaultConfig() Config {
	return Config{
		KeyThresholds:      threshold.StepTable(),
		BodyThreshold:      threshold.MajorityRule(),
		MaxKeyLength:       normalize.DefaultMaxKeyLength,
		SortAscending:      true,
		MinBlockFrequency:  0,
		KeyMetric:          similarity.JaroWinkler,
		BodyMetric:         similarity.Overlap,
		TieBreak:           TieKeepBoth,
		Stemming:           "none",
		Workers:            runtime.NumCPU(),
		BlockBatchSize:     1024,
		CheckpointInterval: 30 * time.Second,
		KeyCacheSize:       1 << 16,
	}
}

// Validate checks if the configuration has valid values
func (c Config) Validate() error {
	if err := c.KeyThresholds.Validate(); err != nil {
		return fmt.Errorf("key_thresholds: %w", err)
	}
	if err := c.BodyThreshold.Validate(); err != nil {
		return fmt.Errorf("body_threshold: %w", err)
	}
	if c.MaxKeyLength <= 0 {
		return fmt.Errorf("max_key_length must be positive (got %d)", c.MaxKeyLength)
	}
	if c.MaxKeyLength > 1000 {
		return fmt.Errorf("max_key_length too large (got %d, max 1000)", c.MaxKeyLength)
	}
	if c.MinBlockFrequency < 0 {
		return fmt.Errorf("min_block_frequency cannot be negative (got %d)", c.MinBlockFrequency)
	}
	if _, err := similarity.ParseKeyMetric(string(c.KeyMetric)); err != nil {
		return err
	}
	if _, err := similarity.ParseBodyMetric(string(c.BodyMetric)); err != nil {
		return err
	}
	switch c.TieBreak {
	case TieKeepBoth, TieKeepPivot:
	default:
		return fmt.Errorf("unknown tie_break %q (want keep_both or keep_pivot)", c.TieBreak)
	}
	if _, err := normalize.StemmerByName(c.Stemming); err != nil {
		return err
	}
	if c.Workers <= 0 {
		return fmt.Errorf("workers must be positive (got %d)", c.Workers)
	}
	if c.Workers > 1024 {
		return fmt.Errorf("workers too large (got %d, max 1024)", c.Workers)
	}
	if c.BlockBatchSize <= 0 {
		return fmt.Errorf("block_batch_size must be positive (got %d)", c.BlockBatchSize)
	}
	if c.CheckpointInterval < 0 {
		return fmt.Errorf("checkpoint_interval cannot be negative (got %v)", c.CheckpointInterval)
	}
	if c.KeyCacheSize < 0 {
		return fmt.Errorf("key_cache_size cannot be negative (got %d)", c.KeyCacheSize)
	}
	return nil
}

// String returns a human-readable representation of the config
func (c Config) String() string {
	return fmt.Sprintf(
		"Config{KeySteps: %d, KeyFloor: %.2f, Body: %s, MaxKeyLen: %d, Ascending: %t, "+
			"MinBlockFreq: %d, RestrictKey: %q, RestrictBody: %q, KeyMetric: %s, BodyMetric: %s, "+
			"TieBreak: %s, Stemming: %s, Workers: %d, BatchSize: %d, CheckpointEvery: %v}",
		len(c.KeyThresholds.Steps), c.KeyThresholds.Floor, c.bodyRuleString(), c.MaxKeyLength, c.SortAscending,
		c.MinBlockFrequency, c.RestrictKeySubstring, c.RestrictBodySubstring, c.KeyMetric, c.BodyMetric,
		c.TieBreak, c.Stemming, c.Workers, c.BlockBatchSize, c.CheckpointInterval,
	)
}

func (c Config) bodyRuleString() string {
	if c.BodyThreshold.Kind == threshold.BodyFixed {
		return fmt.Sprintf("fixed(%.2f)", c.BodyThreshold.Fixed)
	}
	return c.BodyThreshold.Kind
}

// ConfigFromEnv creates a Config from environment variables, falling back to defaults
//
// See ApplyEnv for the variables read.
func ConfigFromEnv() (Config, error) {
	return ApplyEnv(DefaultConfig())
}

// ApplyEnv overrides cfg with any CLUEDUP_* environment variables that are set
//
// Environment variables:
//   - CLUEDUP_KEY_THRESHOLD_PRESET: Key threshold table, step or decay (default: step)
//   - CLUEDUP_BODY_THRESHOLD: Body rule, majority or fixed (default: majority)
//   - CLUEDUP_BODY_THRESHOLD_FIXED: Overlap required by the fixed body rule (sets the rule to fixed)
//   - CLUEDUP_MAX_KEY_LENGTH: Normalized key cap in runes (default: 50)
//   - CLUEDUP_SORT_ASCENDING: Sort keys ascending (default: true)
//   - CLUEDUP_MIN_BLOCK_FREQUENCY: Minimum key frequency for fuzzy comparison (default: 0)
//   - CLUEDUP_RESTRICT_KEY: Only compare records whose key contains this
//   - CLUEDUP_RESTRICT_BODY: Only compare records whose body contains this
//   - CLUEDUP_KEY_METRIC: jaro_winkler or jaro (default: jaro_winkler)
//   - CLUEDUP_BODY_METRIC: overlap or jaccard (default: overlap)
//   - CLUEDUP_TIE_BREAK: keep_both or keep_pivot (default: keep_both)
//   - CLUEDUP_STEMMING: none or plural (default: none)
//   - CLUEDUP_WORKERS: Parallel workers (default: number of CPUs)
//   - CLUEDUP_BLOCK_BATCH_SIZE: Blocks per batch (default: 1024)
//   - CLUEDUP_CHECKPOINT_INTERVAL_SECS: Seconds between checkpoints (default: 30)
//   - CLUEDUP_KEY_CACHE_SIZE: Normalized key cache entries (default: 65536)
//
// Returns an error if any environment variable has an invalid value.
func ApplyEnv(cfg Config) (Config, error) {
	if preset := os.Getenv("CLUEDUP_KEY_THRESHOLD_PRESET"); preset != "" {
		table, err := threshold.TableByName(preset)
		if err != nil {
			return cfg, fmt.Errorf("invalid value for CLUEDUP_KEY_THRESHOLD_PRESET: %w", err)
		}
		cfg.KeyThresholds = table
	}
	parseEnvString("CLUEDUP_BODY_THRESHOLD", &cfg.BodyThreshold.Kind)
	if os.Getenv("CLUEDUP_BODY_THRESHOLD_FIXED") != "" {
		if err := parseEnvFloat("CLUEDUP_BODY_THRESHOLD_FIXED", &cfg.BodyThreshold.Fixed); err != nil {
			return cfg, err
		}
		cfg.BodyThreshold.Kind = threshold.BodyFixed
	}
	if err := parseEnvInt("CLUEDUP_MAX_KEY_LENGTH", &cfg.MaxKeyLength); err != nil {
		return cfg, err
	}
	if err := parseEnvBool("CLUEDUP_SORT_ASCENDING", &cfg.SortAscending); err != nil {
		return cfg, err
	}
	if err := parseEnvInt("CLUEDUP_MIN_BLOCK_FREQUENCY", &cfg.MinBlockFrequency); err != nil {
		return cfg, err
	}
	parseEnvString("CLUEDUP_RESTRICT_KEY", &cfg.RestrictKeySubstring)
	parseEnvString("CLUEDUP_RESTRICT_BODY", &cfg.RestrictBodySubstring)

	var keyMetric, bodyMetric, tieBreak string
	parseEnvString("CLUEDUP_KEY_METRIC", &keyMetric)
	parseEnvString("CLUEDUP_BODY_METRIC", &bodyMetric)
	parseEnvString("CLUEDUP_TIE_BREAK", &tieBreak)
	if keyMetric != "" {
		cfg.KeyMetric = similarity.KeyMetric(keyMetric)
	}
	if bodyMetric != "" {
		cfg.BodyMetric = similarity.BodyMetric(bodyMetric)
	}
	if tieBreak != "" {
		cfg.TieBreak = TieBreak(tieBreak)
	}
	parseEnvString("CLUEDUP_STEMMING", &cfg.Stemming)

	if err := parseEnvInt("CLUEDUP_WORKERS", &cfg.Workers); err != nil {
		return cfg, err
	}
	if err := parseEnvInt("CLUEDUP_BLOCK_BATCH_SIZE", &cfg.BlockBatchSize); err != nil {
		return cfg, err
	}
	if err := parseEnvDuration("CLUEDUP_CHECKPOINT_INTERVAL_SECS", &cfg.CheckpointInterval, time.Second); err != nil {
		return cfg, err
	}
	if err := parseEnvInt("CLUEDUP_KEY_CACHE_SIZE", &cfg.KeyCacheSize); err != nil {
		return cfg, err
	}

	// Validate the final configuration
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid configuration from environment: %w", err)
	}

	return cfg, nil
}

// parseEnvString copies a non-empty environment variable into dest
func parseEnvString(key string, dest *string) {
	if value := os.Getenv(key); value != "" {
		*dest = value
	}
}

// parseEnvFloat parses a float64 from an environment variable
func parseEnvFloat(key string, dest *float64) error {
	value := os.Getenv(key)
	if value == "" {
		return nil // Use default
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fmt.Errorf("invalid value for %s: %w", key, err)
	}
	*dest = parsed
	return nil
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

// parseEnvDuration parses a duration from an environment variable
// The multiplier is used to convert the numeric value to a duration
// (e.g., for seconds: multiplier = time.Second)
func parseEnvDuration(key string, dest *time.Duration, multiplier time.Duration) error {
	value := os.Getenv(key)
	if value == "" {
		return nil // Use default
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("invalid value for %s: %w", key, err)
	}
	*dest = time.Duration(parsed) * multiplier
	return nil
}
