// Package main implements the iohammer binary: a rate-controlled direct-I/O
// random-write load generator for drive qualification. It hammers a block
// device (or file) with sector-aligned writes and prints a line whenever an
// interval's tail latency or queue depth crosses a threshold.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/arkilian/iohammer/internal/app"
	"github.com/arkilian/iohammer/internal/config"
)

var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	var (
		configFile  string
		target      string
		sizeGB      int64
		rateHz      float64
		blockKB     int64
		workers     int
		fsync       bool
		noDirect    bool
		drain       bool
		sinkPath    string
		tracePath   string
		showVersion bool
	)

	flag.StringVar(&configFile, "config", "", "Path to configuration file (YAML or JSON)")
	flag.StringVar(&target, "target", "", "File or block device to write to (or first positional argument)")
	flag.Int64Var(&sizeGB, "size", 0, "Arena size in gigabytes (default 1)")
	flag.Float64Var(&rateHz, "rate", -1, "Target write rate in Hz, 0 for unthrottled (default 384)")
	flag.Int64Var(&blockKB, "block", 0, "Write block size in kilobytes (default 64)")
	flag.IntVar(&workers, "workers", 0, "Worker pool size (default 1000)")
	flag.BoolVar(&fsync, "fsync", false, "Fsync after each write and include it in the latency")
	flag.BoolVar(&noDirect, "no-direct", false, "Open the target without O_DIRECT (testing only)")
	flag.BoolVar(&drain, "drain", false, "Drain in-flight writes on shutdown and report finals")
	flag.StringVar(&sinkPath, "sink", "", "SQLite database recording every reporting interval")
	flag.StringVar(&tracePath, "trace", "", "Snappy-compressed latency trace file")
	flag.BoolVar(&showVersion, "version", false, "Show version information")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "iohammer - direct-I/O random-write load generator\n\n")
		fmt.Fprintf(os.Stderr, "Usage: iohammer [options] <target>\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  iohammer /dev/nvme0n1\n")
		fmt.Fprintf(os.Stderr, "  iohammer --rate 0 --block 4 --drain /dev/nvme0n1\n")
		fmt.Fprintf(os.Stderr, "  iohammer --config /etc/iohammer/config.yaml\n")
		fmt.Fprintf(os.Stderr, "\nEnvironment Variables:\n")
		fmt.Fprintf(os.Stderr, "  IOHAMMER_TARGET          Target path\n")
		fmt.Fprintf(os.Stderr, "  IOHAMMER_RATE_HZ         Target write rate\n")
		fmt.Fprintf(os.Stderr, "  IOHAMMER_ARTIFACTS_TYPE  Artifact store type (local, s3)\n")
		fmt.Fprintf(os.Stderr, "  IOHAMMER_S3_BUCKET       Artifact bucket\n")
	}

	flag.Parse()

	if showVersion {
		fmt.Printf("iohammer version %s (commit: %s)\n", version, commit)
		os.Exit(0)
	}

	cfg, err := loadConfig(configFile)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Command line flags have the highest priority.
	if target != "" {
		cfg.Target = target
	} else if cfg.Target == "" && flag.NArg() > 0 {
		cfg.Target = flag.Arg(0)
	}
	if sizeGB > 0 {
		cfg.SizeGB = sizeGB
	}
	if rateHz >= 0 {
		cfg.RateHz = rateHz
	}
	if blockKB > 0 {
		cfg.BlockKB = blockKB
	}
	if workers > 0 {
		cfg.Workers = workers
	}
	if fsync {
		cfg.Fsync = true
	}
	if noDirect {
		cfg.Direct = false
	}
	if drain {
		cfg.Drain = true
	}
	if sinkPath != "" {
		cfg.Report.SinkPath = sinkPath
	}
	if tracePath != "" {
		cfg.Report.TracePath = tracePath
	}

	printBanner(cfg)

	application, err := app.New(cfg)
	if err != nil {
		log.Fatalf("Failed to create application: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := application.Start(ctx); err != nil {
		log.Fatalf("Failed to start: %v", err)
	}

	reason := application.WaitForSignal(ctx)
	log.Printf("shutting down (%s)", reason)

	if !cfg.Drain {
		// Historical behavior: writes are idempotent and stateless, so
		// there is nothing to recover; exit without draining.
		os.Exit(0)
	}

	stopCtx, stopCancel := context.WithTimeout(context.Background(), time.Minute)
	defer stopCancel()
	if err := application.Stop(stopCtx); err != nil {
		log.Printf("Shutdown error: %v", err)
		os.Exit(1)
	}
}

// loadConfig loads configuration from file and environment.
func loadConfig(configFile string) (*config.Config, error) {
	var cfg *config.Config
	var err error

	if configFile != "" {
		cfg, err = config.LoadFromFile(configFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	} else {
		cfg = config.DefaultConfig()
	}

	config.LoadFromEnv(cfg)
	return cfg, nil
}

// printBanner prints the startup configuration summary.
func printBanner(cfg *config.Config) {
	log.Printf("iohammer starting")
	log.Printf("  Target:  %s", cfg.Target)
	log.Printf("  Arena:   %d GiB", cfg.SizeGB)
	log.Printf("  Rate:    %g Hz", cfg.RateHz)
	log.Printf("  Block:   %d KiB", cfg.BlockKB)
	log.Printf("  Workers: %d", cfg.Workers)
	if cfg.Fsync {
		log.Printf("  Fsync:   enabled")
	}
	if !cfg.Direct {
		log.Printf("  Direct:  DISABLED (latency includes the page cache)")
	}
}
