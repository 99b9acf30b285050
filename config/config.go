package config

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// TieredConfig holds the date-tiered selection parameters.
type TieredConfig struct {
	MaxAgeMillis           int64   `yaml:"max_age_millis"`
	BaseWindowMillis       int64   `yaml:"base_window_millis"`
	WindowsPerTier         int     `yaml:"windows_per_tier"`
	IncomingWindowMin      int     `yaml:"incoming_window_min"`
	MinFilesToCompact      int     `yaml:"min_files_to_compact"`
	MaxFilesToCompact      int     `yaml:"max_files_to_compact"`
	CompactionRatio        float64 `yaml:"compaction_ratio"`
	CompactionRatioOffPeak float64 `yaml:"compaction_ratio_offpeak"`
	OffPeakStartHour       int     `yaml:"offpeak_start_hour"`
	OffPeakEndHour         int     `yaml:"offpeak_end_hour"`
	BlockingFileCount      int     `yaml:"blocking_file_count"`
	MajorCompactionPeriod  string  `yaml:"major_compaction_period"`
	SingleOutputForMinor   bool    `yaml:"single_output_for_minor"`
}

// CompactionConfig holds execution-side compaction configurations.
type CompactionConfig struct {
	CheckInterval            string       `yaml:"check_interval"`
	MaxConcurrentCompactions int          `yaml:"max_concurrent_compactions"`
	ThroughputBytesPerSecond int64        `yaml:"throughput_bytes_per_second"`
	CloseCheckIntervalBytes  int64        `yaml:"close_check_interval_bytes"`
	KeepSeqIDPeriod          string       `yaml:"keep_seq_id_period"`
	Tiered                   TieredConfig `yaml:"tiered"`
}

// EngineConfig holds all engine-related configurations.
type EngineConfig struct {
	DataDir    string           `yaml:"data_dir"`
	Compaction CompactionConfig `yaml:"compaction"`
}

// LoggingConfig holds logging-specific configurations.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // e.g., "debug", "info", "warn", "error"
	Output string `yaml:"output"` // e.g., "stdout", "file", "none"
	File   string `yaml:"file"`   // Path to the log file, used if output is "file"
}

// Config is the top-level configuration struct.
type Config struct {
	Engine  EngineConfig  `yaml:"engine"`
	Logging LoggingConfig `yaml:"logging"`
}

// ParseDuration parses a duration string. Returns the default duration if the string is empty or invalid.
// Logs a warning if the string is invalid but not empty.
func ParseDuration(durationStr string, defaultDuration time.Duration, logger *slog.Logger) time.Duration {
	if durationStr == "" || durationStr == "0" {
		return defaultDuration
	}
	d, err := time.ParseDuration(durationStr)
	if err != nil {
		if logger != nil {
			logger.Warn("Invalid duration format, using default", "input", durationStr, "default", defaultDuration.String(), "error", err)
		}
		return defaultDuration
	}
	return d
}

// Load reads configuration from an io.Reader.
// This is the core logic, separated for testability.
func Load(r io.Reader) (*Config, error) {
	// Set default values
	cfg := &Config{
		Engine: EngineConfig{
			DataDir: "./data",
			Compaction: CompactionConfig{
				CheckInterval:            "60s",
				MaxConcurrentCompactions: 1,
				ThroughputBytesPerSecond: 0, // unlimited
				CloseCheckIntervalBytes:  10 * 1024 * 1024,
				KeepSeqIDPeriod:          "120h", // 5 days
				Tiered: TieredConfig{
					MaxAgeMillis:           90 * 24 * 60 * 60 * 1000, // 90 days
					BaseWindowMillis:       6 * 60 * 60 * 1000,       // 6 hours
					WindowsPerTier:         4,
					IncomingWindowMin:      6,
					MinFilesToCompact:      3,
					MaxFilesToCompact:      10,
					CompactionRatio:        1.2,
					CompactionRatioOffPeak: 5.0,
					OffPeakStartHour:       0,
					OffPeakEndHour:         0, // disabled
					BlockingFileCount:      60,
					MajorCompactionPeriod:  "168h", // 7 days
					SingleOutputForMinor:   false,
				},
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Output: "stdout",
			File:   "nexustier.log",
		},
	}

	// If the reader is nil, it's like an empty file, return defaults.
	if r == nil {
		return cfg, nil
	}

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read config data: %w", err)
	}
	if len(data) == 0 {
		return cfg, nil
	}

	// Unmarshal YAML into the config struct, overwriting defaults
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config yaml: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadConfig reads configuration from a YAML file by path.
func LoadConfig(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			// If file doesn't exist, return default config by calling Load with a nil reader.
			return Load(nil)
		}
		return nil, fmt.Errorf("failed to open config file %s: %w", path, err)
	}
	defer file.Close()

	return Load(file)
}

// Validate rejects configurations the selection policy would refuse anyway,
// so mistakes surface at load time rather than at the first compaction check.
func (c *Config) Validate() error {
	t := c.Engine.Compaction.Tiered
	if t.BaseWindowMillis <= 0 {
		return fmt.Errorf("config: base_window_millis must be positive, got %d", t.BaseWindowMillis)
	}
	if t.WindowsPerTier < 2 {
		return fmt.Errorf("config: windows_per_tier must be at least 2, got %d", t.WindowsPerTier)
	}
	if t.MaxAgeMillis < 0 {
		return fmt.Errorf("config: max_age_millis must not be negative, got %d", t.MaxAgeMillis)
	}
	if t.MinFilesToCompact < 2 {
		return fmt.Errorf("config: min_files_to_compact must be at least 2, got %d", t.MinFilesToCompact)
	}
	if t.MaxFilesToCompact < t.MinFilesToCompact {
		return fmt.Errorf("config: max_files_to_compact (%d) must not be below min_files_to_compact (%d)", t.MaxFilesToCompact, t.MinFilesToCompact)
	}
	if t.IncomingWindowMin < t.MinFilesToCompact {
		return fmt.Errorf("config: incoming_window_min (%d) must not be below min_files_to_compact (%d)", t.IncomingWindowMin, t.MinFilesToCompact)
	}
	if t.CompactionRatio <= 0 {
		return fmt.Errorf("config: compaction_ratio must be positive, got %f", t.CompactionRatio)
	}
	if c.Engine.Compaction.MaxConcurrentCompactions < 0 {
		return fmt.Errorf("config: max_concurrent_compactions must not be negative, got %d", c.Engine.Compaction.MaxConcurrentCompactions)
	}
	if c.Engine.Compaction.ThroughputBytesPerSecond < 0 {
		return fmt.Errorf("config: throughput_bytes_per_second must not be negative, got %d", c.Engine.Compaction.ThroughputBytesPerSecond)
	}
	return nil
}
