package config

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(nil)
	require.NoError(t, err)

	assert.Equal(t, "./data", cfg.Engine.DataDir)
	assert.Equal(t, "60s", cfg.Engine.Compaction.CheckInterval)
	assert.Equal(t, 1, cfg.Engine.Compaction.MaxConcurrentCompactions)
	assert.Equal(t, int64(0), cfg.Engine.Compaction.ThroughputBytesPerSecond)

	tiered := cfg.Engine.Compaction.Tiered
	assert.Equal(t, int64(6*60*60*1000), tiered.BaseWindowMillis)
	assert.Equal(t, 4, tiered.WindowsPerTier)
	assert.Equal(t, 6, tiered.IncomingWindowMin)
	assert.Equal(t, 1.2, tiered.CompactionRatio)
	assert.Equal(t, 5.0, tiered.CompactionRatioOffPeak)
	assert.False(t, tiered.SingleOutputForMinor)

	assert.Equal(t, "info", cfg.Logging.Level)

	// Empty input also yields defaults.
	cfg2, err := Load(strings.NewReader(""))
	require.NoError(t, err)
	assert.Equal(t, cfg, cfg2)
}

func TestLoadOverridesDefaults(t *testing.T) {
	yaml := `
engine:
  data_dir: /var/lib/tier
  compaction:
    check_interval: 30s
    max_concurrent_compactions: 2
    throughput_bytes_per_second: 1048576
    tiered:
      base_window_millis: 3600000
      windows_per_tier: 6
      incoming_window_min: 4
      min_files_to_compact: 2
      max_files_to_compact: 8
      compaction_ratio: 1.5
      blocking_file_count: 30
      single_output_for_minor: true
logging:
  level: warn
`
	cfg, err := Load(strings.NewReader(yaml))
	require.NoError(t, err)

	assert.Equal(t, "/var/lib/tier", cfg.Engine.DataDir)
	assert.Equal(t, "30s", cfg.Engine.Compaction.CheckInterval)
	assert.Equal(t, 2, cfg.Engine.Compaction.MaxConcurrentCompactions)
	assert.Equal(t, int64(1<<20), cfg.Engine.Compaction.ThroughputBytesPerSecond)

	tiered := cfg.Engine.Compaction.Tiered
	assert.Equal(t, int64(3600000), tiered.BaseWindowMillis)
	assert.Equal(t, 6, tiered.WindowsPerTier)
	assert.Equal(t, 4, tiered.IncomingWindowMin)
	assert.Equal(t, 8, tiered.MaxFilesToCompact)
	assert.Equal(t, 1.5, tiered.CompactionRatio)
	assert.True(t, tiered.SingleOutputForMinor)
	// Untouched keys keep their defaults.
	assert.Equal(t, int64(90*24*60*60*1000), tiered.MaxAgeMillis)

	assert.Equal(t, "warn", cfg.Logging.Level)
}

func TestLoadRejectsMalformedYAML(t *testing.T) {
	_, err := Load(strings.NewReader("engine: [unbalanced"))
	assert.Error(t, err)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	cases := []struct {
		name string
		yaml string
	}{
		{"zero base window", "engine:\n  compaction:\n    tiered:\n      base_window_millis: 0\n"},
		{"one window per tier", "engine:\n  compaction:\n    tiered:\n      windows_per_tier: 1\n"},
		{"negative max age", "engine:\n  compaction:\n    tiered:\n      max_age_millis: -5\n"},
		{"min below two", "engine:\n  compaction:\n    tiered:\n      min_files_to_compact: 1\n"},
		{"max below min", "engine:\n  compaction:\n    tiered:\n      max_files_to_compact: 2\n"},
		{"incoming below min", "engine:\n  compaction:\n    tiered:\n      incoming_window_min: 2\n"},
		{"zero ratio", "engine:\n  compaction:\n    tiered:\n      compaction_ratio: 0\n"},
		{"negative concurrency", "engine:\n  compaction:\n    max_concurrent_compactions: -1\n"},
		{"negative throughput", "engine:\n  compaction:\n    throughput_bytes_per_second: -1\n"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Load(strings.NewReader(tc.yaml))
			assert.Error(t, err)
		})
	}
}

func TestLoadConfigMissingFileYieldsDefaults(t *testing.T) {
	cfg, err := LoadConfig("/nonexistent/nexustier.yaml")
	require.NoError(t, err)
	assert.Equal(t, "./data", cfg.Engine.DataDir)
}

func TestParseDuration(t *testing.T) {
	assert.Equal(t, 30*time.Second, ParseDuration("30s", time.Minute, nil))
	assert.Equal(t, time.Minute, ParseDuration("", time.Minute, nil))
	assert.Equal(t, time.Minute, ParseDuration("0", time.Minute, nil))
	assert.Equal(t, time.Minute, ParseDuration("not-a-duration", time.Minute, nil))
}
