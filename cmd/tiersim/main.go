// Command tiersim dry-runs the tiered selection policy against a file census
// described in YAML, printing what the policy would compact and where the
// output boundaries would fall. It never touches data; it exists to answer
// "what would a compaction check do right now" for a given configuration.
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/INLOpen/nexustier/config"
	"github.com/INLOpen/nexustier/core"
	"github.com/INLOpen/nexustier/internal/clock"
	"github.com/INLOpen/nexustier/internal/testutil"
	"github.com/INLOpen/nexustier/tiering"
)

// censusFile is one store file row of the input census.
type censusFile struct {
	ID           uint64 `yaml:"id"`
	SizeBytes    int64  `yaml:"size_bytes"`
	MinTimestamp int64  `yaml:"min_timestamp"`
	MaxTimestamp int64  `yaml:"max_timestamp"`
	SeqID        uint64 `yaml:"seq_id"`
}

type census struct {
	NowMillis int64        `yaml:"now_millis"`
	Files     []censusFile `yaml:"files"`
}

func main() {
	configPath := flag.String("config", "", "path to the engine config yaml (defaults apply when absent)")
	censusPath := flag.String("census", "", "path to the file census yaml (required)")
	major := flag.Bool("major", false, "simulate a major selection instead of a minor one")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))

	if *censusPath == "" {
		fmt.Fprintln(os.Stderr, "tiersim: -census is required")
		os.Exit(2)
	}
	if err := run(*configPath, *censusPath, *major, logger); err != nil {
		fmt.Fprintf(os.Stderr, "tiersim: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath, censusPath string, major bool, logger *slog.Logger) error {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	data, err := os.ReadFile(censusPath)
	if err != nil {
		return fmt.Errorf("reading census: %w", err)
	}
	var c census
	if err := yaml.Unmarshal(data, &c); err != nil {
		return fmt.Errorf("parsing census: %w", err)
	}
	if c.NowMillis == 0 {
		c.NowMillis = time.Now().UnixMilli()
	}

	files := make([]core.StoreFile, 0, len(c.Files))
	for _, row := range c.Files {
		files = append(files, testutil.NewMemFile(row.ID, row.SizeBytes, row.MinTimestamp, row.MaxTimestamp, row.SeqID))
	}

	t := cfg.Engine.Compaction.Tiered
	clk := clock.NewMockClock(time.UnixMilli(c.NowMillis))
	policy, err := tiering.NewPolicy(tiering.PolicyOptions{
		MaxAgeMillis:           t.MaxAgeMillis,
		BaseWindowMillis:       t.BaseWindowMillis,
		WindowsPerTier:         t.WindowsPerTier,
		IncomingWindowMin:      t.IncomingWindowMin,
		MinFilesToCompact:      t.MinFilesToCompact,
		MaxFilesToCompact:      t.MaxFilesToCompact,
		CompactionRatio:        t.CompactionRatio,
		CompactionRatioOffPeak: t.CompactionRatioOffPeak,
		BlockingFileCount:      t.BlockingFileCount,
		MajorCompactionPeriod:  config.ParseDuration(t.MajorCompactionPeriod, 0, logger),
		SingleOutputForMinor:   t.SingleOutputForMinor,
		Clock:                  clk,
		Logger:                 logger,
	})
	if err != nil {
		return fmt.Errorf("building policy: %w", err)
	}

	fmt.Printf("now: %d, files: %d, needs compaction: %v\n", c.NowMillis, len(files), policy.NeedsCompaction(files, nil))

	var req *tiering.Request
	if major {
		req = policy.SelectMajorCompaction(files)
	} else {
		req = policy.SelectMinorCompaction(files, false)
	}
	if req == nil || req.Empty() {
		fmt.Println("selection: none")
		return nil
	}

	kind := "minor"
	if req.Major {
		kind = "major"
	}
	fmt.Printf("selection: %s, %d files, %d bytes\n", kind, len(req.Files), req.TotalSize())
	for _, f := range req.Files {
		fmt.Printf("  file %d: size=%d ts=[%d, %d] seq=%d\n", f.ID(), f.Size(), f.MinTimestamp(), f.MaxTimestamp(), f.SeqID())
	}
	fmt.Printf("boundaries: %v\n", req.Boundaries)
	return nil
}
