package config

import (
	"strings"
	"testing"
	"time"
)

func TestCheckpointConfigFromEnv(t *testing.T) {
	tests := []struct {
		name    string
		envVars map[string]string
		wantErr bool
		check   func(t *testing.T, cfg CheckpointConfig)
	}{
		{
			name:    "no environment variables uses defaults",
			envVars: map[string]string{},
			wantErr: false,
			check: func(t *testing.T, cfg CheckpointConfig) {
				defaults := DefaultCheckpointConfig()
				if cfg != defaults {
					t.Errorf("cfg = %v, want %v", cfg, defaults)
				}
			},
		},
		{
			name: "valid custom configuration",
			envVars: map[string]string{
				"CLUEDUP_CHECKPOINT_ENABLED":        "false",
				"CLUEDUP_DB_PATH":                   "/tmp/runs.db",
				"CLUEDUP_CHECKPOINT_RETENTION_DAYS": "0",
				"CLUEDUP_CHECKPOINT_PRUNE_ON_START": "false",
			},
			wantErr: false,
			check: func(t *testing.T, cfg CheckpointConfig) {
				if cfg.Enabled {
					t.Error("Enabled = true, want false")
				}
				if cfg.DBPath != "/tmp/runs.db" {
					t.Errorf("DBPath = %q, want /tmp/runs.db", cfg.DBPath)
				}
				if cfg.RetentionDays != 0 {
					t.Errorf("RetentionDays = %v, want 0", cfg.RetentionDays)
				}
				if cfg.PruneOnStart {
					t.Error("PruneOnStart = true, want false")
				}
			},
		},
		{
			name:    "invalid retention format",
			envVars: map[string]string{"CLUEDUP_CHECKPOINT_RETENTION_DAYS": "a month"},
			wantErr: true,
		},
		{
			name:    "retention out of range",
			envVars: map[string]string{"CLUEDUP_CHECKPOINT_RETENTION_DAYS": "-1"},
			wantErr: true,
		},
		{
			name:    "invalid bool",
			envVars: map[string]string{"CLUEDUP_CHECKPOINT_ENABLED": "maybe"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("CLUEDUP_DB_PATH", "")
			for key, value := range tt.envVars {
				t.Setenv(key, value)
			}

			cfg, err := CheckpointConfigFromEnv()
			if (err != nil) != tt.wantErr {
				t.Errorf("CheckpointConfigFromEnv() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if !tt.wantErr && tt.check != nil {
				tt.check(t, cfg)
			}
		})
	}
}

func TestCheckpointConfigPruneCutoff(t *testing.T) {
	now := time.Date(2024, 3, 31, 12, 0, 0, 0, time.UTC)

	cfg := DefaultCheckpointConfig()
	cutoff, ok := cfg.PruneCutoff(now)
	if !ok {
		t.Fatal("expected a cutoff with 30 day retention")
	}
	if want := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC); !cutoff.Equal(want) {
		t.Errorf("cutoff = %v, want %v", cutoff, want)
	}

	cfg.RetentionDays = 0
	if _, ok := cfg.PruneCutoff(now); ok {
		t.Error("expected no cutoff with unlimited retention")
	}
}

func TestCheckpointConfigString(t *testing.T) {
	s := DefaultCheckpointConfig().String()
	for _, want := range []string{"Enabled: true", "RetentionDays: 30", "PruneOnStart: true"} {
		if !strings.Contains(s, want) {
			t.Errorf("String() = %s, missing %q", s, want)
		}
	}
}
