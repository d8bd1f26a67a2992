// Package config provides unified configuration for the iohammer load generator.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// SectorSize is the alignment unit for direct I/O offsets.
const SectorSize = 4096

// Config holds the configuration for a single load-generation run.
type Config struct {
	// Target is the file or block device to write to
	Target string `json:"target" yaml:"target"`

	// SizeGB is the arena size in gigabytes; random offsets stay below SizeGB << 30
	SizeGB int64 `json:"size_gb" yaml:"size_gb"`

	// RateHz is the target write rate in Hz; 0 means unthrottled
	RateHz float64 `json:"rate_hz" yaml:"rate_hz"`

	// BlockKB is the write block size in kilobytes
	BlockKB int64 `json:"block_kb" yaml:"block_kb"`

	// Workers is the size of the worker pool
	Workers int `json:"workers" yaml:"workers"`

	// TicketQueue is the capacity of the ticket channel (pacer backpressure point)
	TicketQueue int `json:"ticket_queue" yaml:"ticket_queue"`

	// SampleQueue is the capacity of the latency sample channel
	SampleQueue int `json:"sample_queue" yaml:"sample_queue"`

	// Direct requests O_DIRECT on the target; disable only for tests,
	// since buffered writes measure the page cache rather than the media
	Direct bool `json:"direct" yaml:"direct"`

	// Fsync issues an fsync after each write and includes it in the latency
	Fsync bool `json:"fsync" yaml:"fsync"`

	// Drain enables graceful shutdown: stop the pacer, let in-flight
	// writes finish, report finals. Default is the abrupt exit.
	Drain bool `json:"drain" yaml:"drain"`

	// PatternSeed seeds the deterministic block fill; 0 picks a random seed
	PatternSeed uint64 `json:"pattern_seed" yaml:"pattern_seed"`

	// Report configuration
	Report ReportConfig `json:"report" yaml:"report"`

	// Artifacts configuration
	Artifacts ArtifactsConfig `json:"artifacts" yaml:"artifacts"`
}

// ReportConfig holds reporter configuration.
type ReportConfig struct {
	// Interval is the reporting period
	Interval time.Duration `json:"interval" yaml:"interval"`

	// LatencyThreshold gates emission: a line is printed when the window
	// max latency exceeds this value
	LatencyThreshold time.Duration `json:"latency_threshold" yaml:"latency_threshold"`

	// PendingThreshold gates emission: a line is printed when peak
	// in-flight concurrency exceeds this value
	PendingThreshold int32 `json:"pending_threshold" yaml:"pending_threshold"`

	// SinkPath is an optional SQLite database recording every interval;
	// empty disables the sink
	SinkPath string `json:"sink_path" yaml:"sink_path"`

	// TracePath is an optional snappy-compressed latency trace file;
	// empty disables tracing
	TracePath string `json:"trace_path" yaml:"trace_path"`
}

// ArtifactsConfig holds run-artifact store configuration.
type ArtifactsConfig struct {
	// Enabled controls whether run artifacts are written at the end of a
	// drained run
	Enabled bool `json:"enabled" yaml:"enabled"`

	// Type is the artifact store type: local, s3
	Type string `json:"type" yaml:"type"`

	// Path is the local store directory (for local type)
	Path string `json:"path" yaml:"path"`

	// S3 configuration (for s3 type)
	S3 S3Config `json:"s3" yaml:"s3"`
}

// S3Config holds S3 artifact store configuration.
type S3Config struct {
	// Bucket is the S3 bucket name
	Bucket string `json:"bucket" yaml:"bucket"`

	// Region is the AWS region
	Region string `json:"region" yaml:"region"`

	// Endpoint is the S3 endpoint (for S3-compatible storage)
	Endpoint string `json:"endpoint" yaml:"endpoint"`
}

// DefaultConfig returns the default configuration. The defaults match the
// tool's historical behavior: 1 GiB arena, 384 Hz, 64 KiB blocks, 1000
// workers, 1 s reports gated at 10 ms / 10 pending.
func DefaultConfig() *Config {
	return &Config{
		SizeGB:      1,
		RateHz:      384,
		BlockKB:     64,
		Workers:     1000,
		TicketQueue: 10000,
		SampleQueue: 100,
		Direct:      true,
		Report: ReportConfig{
			Interval:         time.Second,
			LatencyThreshold: 10 * time.Millisecond,
			PendingThreshold: 10,
		},
		Artifacts: ArtifactsConfig{
			Enabled: false,
			Type:    "local",
			Path:    "./data/iohammer/runs",
		},
	}
}

// ArenaBytes returns the arena size in bytes.
func (c *Config) ArenaBytes() int64 {
	return c.SizeGB << 30
}

// BlockBytes returns the write block size in bytes.
func (c *Config) BlockBytes() int64 {
	return c.BlockKB * 1024
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Target == "" {
		return fmt.Errorf("target is required")
	}

	if c.SizeGB <= 0 {
		return fmt.Errorf("size_gb must be positive, got %d", c.SizeGB)
	}

	if c.RateHz < 0 {
		return fmt.Errorf("rate_hz must be >= 0, got %g", c.RateHz)
	}

	if c.BlockKB <= 0 {
		return fmt.Errorf("block_kb must be positive, got %d", c.BlockKB)
	}

	if c.BlockBytes()%SectorSize != 0 {
		return fmt.Errorf("block_kb*1024 must be a multiple of %d for direct I/O, got %d", SectorSize, c.BlockBytes())
	}

	if c.Workers <= 0 {
		return fmt.Errorf("workers must be positive, got %d", c.Workers)
	}

	if c.TicketQueue <= 0 {
		return fmt.Errorf("ticket_queue must be positive, got %d", c.TicketQueue)
	}

	if c.SampleQueue <= 0 {
		return fmt.Errorf("sample_queue must be positive, got %d", c.SampleQueue)
	}

	if c.Report.Interval <= 0 {
		return fmt.Errorf("report.interval must be positive, got %v", c.Report.Interval)
	}

	if c.Artifacts.Enabled {
		if c.Artifacts.Type != "local" && c.Artifacts.Type != "s3" {
			return fmt.Errorf("invalid artifacts type: %s (must be local or s3)", c.Artifacts.Type)
		}
		if c.Artifacts.Type == "s3" && c.Artifacts.S3.Bucket == "" {
			return fmt.Errorf("artifacts.s3.bucket is required when artifacts type is s3")
		}
	}

	return nil
}

// LoadFromFile loads configuration from a YAML or JSON file.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultConfig()

	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse YAML config: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse JSON config: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported config file format: %s", ext)
	}

	return cfg, nil
}

// LoadFromEnv loads configuration from environment variables.
// Environment variables use the IOHAMMER_ prefix.
func LoadFromEnv(cfg *Config) {
	if v := os.Getenv("IOHAMMER_TARGET"); v != "" {
		cfg.Target = v
	}
	if v := os.Getenv("IOHAMMER_SIZE_GB"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.SizeGB = n
		}
	}
	if v := os.Getenv("IOHAMMER_RATE_HZ"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.RateHz = f
		}
	}
	if v := os.Getenv("IOHAMMER_BLOCK_KB"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.BlockKB = n
		}
	}
	if v := os.Getenv("IOHAMMER_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Workers = n
		}
	}
	if v := os.Getenv("IOHAMMER_DIRECT"); v != "" {
		cfg.Direct = v == "true" || v == "1"
	}
	if v := os.Getenv("IOHAMMER_FSYNC"); v != "" {
		cfg.Fsync = v == "true" || v == "1"
	}
	if v := os.Getenv("IOHAMMER_DRAIN"); v != "" {
		cfg.Drain = v == "true" || v == "1"
	}

	// Report configuration
	if v := os.Getenv("IOHAMMER_REPORT_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Report.Interval = d
		}
	}
	if v := os.Getenv("IOHAMMER_REPORT_LATENCY_THRESHOLD"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Report.LatencyThreshold = d
		}
	}
	if v := os.Getenv("IOHAMMER_REPORT_SINK_PATH"); v != "" {
		cfg.Report.SinkPath = v
	}
	if v := os.Getenv("IOHAMMER_REPORT_TRACE_PATH"); v != "" {
		cfg.Report.TracePath = v
	}

	// Artifact configuration
	if v := os.Getenv("IOHAMMER_ARTIFACTS_ENABLED"); v != "" {
		cfg.Artifacts.Enabled = v == "true" || v == "1"
	}
	if v := os.Getenv("IOHAMMER_ARTIFACTS_TYPE"); v != "" {
		cfg.Artifacts.Type = v
	}
	if v := os.Getenv("IOHAMMER_ARTIFACTS_PATH"); v != "" {
		cfg.Artifacts.Path = v
	}
	if v := os.Getenv("IOHAMMER_S3_BUCKET"); v != "" {
		cfg.Artifacts.S3.Bucket = v
	}
	if v := os.Getenv("IOHAMMER_S3_REGION"); v != "" {
		cfg.Artifacts.S3.Region = v
	}
	if v := os.Getenv("IOHAMMER_S3_ENDPOINT"); v != "" {
		cfg.Artifacts.S3.Endpoint = v
	}
}
