package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/steveyegge/cluedup/internal/deduplication"
	"github.com/steveyegge/cluedup/internal/similarity"
	"github.com/steveyegge/cluedup/internal/threshold"
)

// DefaultConfigPath is where cluedup looks for a config file when none is given.
const DefaultConfigPath = ".cluedup/config.yaml"

// ConfigFile represents the structure of a cluedup YAML config file.
// Unset fields leave the underlying value alone.
type ConfigFile struct {
	// Key thresholds: a named preset (step/decay) or an explicit table.
	// An explicit table wins over the preset.
	KeyThresholdPreset string              `yaml:"key_threshold_preset"`
	KeyThresholds      *threshold.KeyTable `yaml:"key_thresholds"`

	BodyThreshold *threshold.BodyRule `yaml:"body_threshold"`

	MaxKeyLength          *int    `yaml:"max_key_length"`
	SortAscending         *bool   `yaml:"sort_ascending"`
	MinBlockFrequency     *int    `yaml:"min_block_frequency"`
	RestrictKeySubstring  *string `yaml:"restrict_key_substring"`
	RestrictBodySubstring *string `yaml:"restrict_body_substring"`

	KeyMetric  string `yaml:"key_metric"`
	BodyMetric string `yaml:"body_metric"`
	TieBreak   string `yaml:"tie_break"`
	Stemming   string `yaml:"stemming"`

	Workers            *int   `yaml:"workers"`
	BlockBatchSize     *int   `yaml:"block_batch_size"`
	CheckpointInterval string `yaml:"checkpoint_interval"` // Duration string like "30s", "5m"
	KeyCacheSize       *int   `yaml:"key_cache_size"`

	Checkpoint CheckpointFileConfig `yaml:"checkpoint"`
}

// CheckpointFileConfig is the checkpoint section of the config file.
type CheckpointFileConfig struct {
	Enabled       *bool  `yaml:"enabled"`
	DBPath        string `yaml:"db_path"`
	RetentionDays *int   `yaml:"retention_days"`
	PruneOnStart  *bool  `yaml:"prune_on_start"`
}

// LoadConfigFile reads and parses a config file. Unknown keys are an error.
func LoadConfigFile(path string) (*ConfigFile, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	defer f.Close()

	var cf ConfigFile
	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(&cf); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parsing config file %s: %w", path, err)
	}
	return &cf, nil
}

// LoadOptional loads path if it exists. A missing file yields an empty
// ConfigFile, which changes nothing when applied.
func LoadOptional(path string) (*ConfigFile, error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return &ConfigFile{}, nil
	}
	return LoadConfigFile(path)
}

// Apply overlays the file's settings onto cfg and validates the result.
func (cf *ConfigFile) Apply(cfg deduplication.Config) (deduplication.Config, error) {
	if cf.KeyThresholdPreset != "" {
		table, err := threshold.TableByName(cf.KeyThresholdPreset)
		if err != nil {
			return cfg, err
		}
		cfg.KeyThresholds = table
	}
	if cf.KeyThresholds != nil {
		cfg.KeyThresholds = *cf.KeyThresholds
	}
	if cf.BodyThreshold != nil {
		cfg.BodyThreshold = *cf.BodyThreshold
	}

	setInt(&cfg.MaxKeyLength, cf.MaxKeyLength)
	if cf.SortAscending != nil {
		cfg.SortAscending = *cf.SortAscending
	}
	setInt(&cfg.MinBlockFrequency, cf.MinBlockFrequency)
	if cf.RestrictKeySubstring != nil {
		cfg.RestrictKeySubstring = *cf.RestrictKeySubstring
	}
	if cf.RestrictBodySubstring != nil {
		cfg.RestrictBodySubstring = *cf.RestrictBodySubstring
	}

	if cf.KeyMetric != "" {
		cfg.KeyMetric = similarity.KeyMetric(cf.KeyMetric)
	}
	if cf.BodyMetric != "" {
		cfg.BodyMetric = similarity.BodyMetric(cf.BodyMetric)
	}
	if cf.TieBreak != "" {
		cfg.TieBreak = deduplication.TieBreak(cf.TieBreak)
	}
	if cf.Stemming != "" {
		cfg.Stemming = cf.Stemming
	}

	setInt(&cfg.Workers, cf.Workers)
	setInt(&cfg.BlockBatchSize, cf.BlockBatchSize)
	if cf.CheckpointInterval != "" {
		d, err := time.ParseDuration(cf.CheckpointInterval)
		if err != nil {
			return cfg, fmt.Errorf("invalid checkpoint_interval: %w", err)
		}
		cfg.CheckpointInterval = d
	}
	setInt(&cfg.KeyCacheSize, cf.KeyCacheSize)

	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid configuration from file: %w", err)
	}
	return cfg, nil
}

// ApplyCheckpoint overlays the file's checkpoint section onto cfg.
func (cf *ConfigFile) ApplyCheckpoint(cfg CheckpointConfig) (CheckpointConfig, error) {
	c := cf.Checkpoint
	if c.Enabled != nil {
		cfg.Enabled = *c.Enabled
	}
	if c.DBPath != "" {
		cfg.DBPath = c.DBPath
	}
	setInt(&cfg.RetentionDays, c.RetentionDays)
	if c.PruneOnStart != nil {
		cfg.PruneOnStart = *c.PruneOnStart
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid checkpoint configuration from file: %w", err)
	}
	return cfg, nil
}

func setInt(dest *int, v *int) {
	if v != nil {
		*dest = *v
	}
}
