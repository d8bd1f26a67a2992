// Package app wires the load generator together: device, pacer, worker
// pool, aggregator, reporter, and the optional sinks and artifact store.
package app

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"math/rand"
	"os"
	"path"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/arkilian/iohammer/internal/config"
	"github.com/arkilian/iohammer/internal/device"
	"github.com/arkilian/iohammer/internal/hammer"
	"github.com/arkilian/iohammer/internal/pacer"
	"github.com/arkilian/iohammer/internal/report"
	"github.com/arkilian/iohammer/internal/server"
	"github.com/arkilian/iohammer/internal/stats"
	"github.com/arkilian/iohammer/internal/storage"
	"github.com/arkilian/iohammer/internal/trace"
)

// App manages one load-generation run.
type App struct {
	cfg   *config.Config
	runID string

	// Shared resources
	dev      *device.Device
	counters *stats.Counters
	store    storage.ArtifactStore
	shutdown *server.ShutdownManager

	// Pipeline
	tickets    chan struct{}
	samples    chan time.Duration
	pace       *pacer.Pacer
	pool       *hammer.Pool
	aggregator *stats.Aggregator
	reporter   *report.Reporter
	sink       report.IntervalSink
	tracer     *trace.Writer

	// Lifecycle
	mu        sync.Mutex
	running   bool
	cancel    context.CancelFunc
	pacerDone chan struct{}
	repDone   chan struct{}
	startedAt time.Time
}

// New creates an App with the given configuration.
func New(cfg *config.Config) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &App{
		cfg:      cfg,
		runID:    uuid.New().String(),
		counters: &stats.Counters{},
		shutdown: server.NewShutdownManager(server.DefaultShutdownConfig()),
	}, nil
}

// RunID returns this run's identifier, used to tag artifacts.
func (a *App) RunID() string {
	return a.runID
}

// Counters exposes the statistics state, mainly for tests and the final
// summary.
func (a *App) Counters() *stats.Counters {
	return a.counters
}

// Start opens the target and launches the pipeline. Startup failures are
// fatal to the caller: a target that cannot be opened for direct I/O is a
// misconfiguration that will not self-resolve.
func (a *App) Start(ctx context.Context) error {
	a.mu.Lock()
	if a.running {
		a.mu.Unlock()
		return fmt.Errorf("app is already running")
	}
	a.running = true
	a.mu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	a.cancel = cancel
	a.startedAt = time.Now()

	seed := a.cfg.PatternSeed
	if seed == 0 {
		seed = rand.Uint64()
	}

	dev, err := device.Open(a.cfg.Target, a.cfg.Direct)
	if err != nil {
		return err
	}
	a.dev = dev
	log.Printf("target opened: %s (direct=%v, arena=%d GiB, block=%d KiB)",
		a.cfg.Target, a.cfg.Direct, a.cfg.SizeGB, a.cfg.BlockKB)

	if err := a.initSinks(); err != nil {
		dev.Close()
		return err
	}

	// LIFO: the tracer and sink close before the device.
	a.shutdown.RegisterCloser(dev)
	if a.sink != nil {
		a.shutdown.RegisterCloser(a.sink)
	}
	if a.tracer != nil {
		a.shutdown.RegisterCloser(a.tracer)
	}

	if a.cfg.Artifacts.Enabled {
		if err := a.initArtifactStore(ctx); err != nil {
			dev.Close()
			return err
		}
	}

	a.tickets = make(chan struct{}, a.cfg.TicketQueue)
	a.samples = make(chan time.Duration, a.cfg.SampleQueue)

	a.pace = pacer.New(a.cfg.RateHz, a.tickets)
	a.pool = hammer.NewPool(hammer.Config{
		Workers:   a.cfg.Workers,
		BlockSize: a.cfg.BlockBytes(),
		Fsync:     a.cfg.Fsync,
		Seed:      seed,
	}, dev, device.NewArena(a.cfg.ArenaBytes()), a.counters, a.tickets, a.samples)

	var sampleSink stats.SampleSink
	if a.tracer != nil {
		sampleSink = a.tracer
	}
	a.aggregator = stats.NewAggregator(a.counters, a.samples, sampleSink)
	a.reporter = report.New(report.Config{
		Interval:         a.cfg.Report.Interval,
		LatencyThreshold: a.cfg.Report.LatencyThreshold,
		PendingThreshold: a.cfg.Report.PendingThreshold,
	}, a.counters, os.Stdout, a.sink)

	a.pool.Start()
	go a.aggregator.Run()

	a.pacerDone = make(chan struct{})
	go func() {
		defer close(a.pacerDone)
		a.pace.Run(ctx)
	}()

	a.repDone = make(chan struct{})
	go func() {
		defer close(a.repDone)
		a.reporter.Run(ctx)
	}()

	log.Printf("run %s started: rate=%gHz workers=%d fsync=%v drain=%v",
		a.runID, a.cfg.RateHz, a.cfg.Workers, a.cfg.Fsync, a.cfg.Drain)
	return nil
}

// initSinks opens the optional interval sink and latency tracer.
func (a *App) initSinks() error {
	if p := a.cfg.Report.SinkPath; p != "" {
		sink, err := report.NewSQLiteSink(p, a.runID)
		if err != nil {
			return err
		}
		a.sink = sink
		log.Printf("interval sink: %s", p)
	}

	if p := a.cfg.Report.TracePath; p != "" {
		tracer, err := trace.NewWriter(p)
		if err != nil {
			if a.sink != nil {
				a.sink.Close()
			}
			return err
		}
		a.tracer = tracer
		log.Printf("latency trace: %s", p)
	}

	return nil
}

// initArtifactStore builds the configured artifact backend.
func (a *App) initArtifactStore(ctx context.Context) error {
	var err error
	switch a.cfg.Artifacts.Type {
	case "local":
		a.store, err = storage.NewLocalStore(a.cfg.Artifacts.Path)
	case "s3":
		a.store, err = storage.NewS3Store(ctx, a.cfg.Artifacts.S3.Bucket, storage.S3Config{
			Region:   a.cfg.Artifacts.S3.Region,
			Endpoint: a.cfg.Artifacts.S3.Endpoint,
		})
	default:
		return fmt.Errorf("unsupported artifacts type: %s", a.cfg.Artifacts.Type)
	}
	if err != nil {
		return fmt.Errorf("failed to initialize artifact store: %w", err)
	}
	log.Printf("artifact store: type=%s", a.cfg.Artifacts.Type)
	return nil
}

// WaitForSignal blocks until SIGINT/SIGTERM or context cancellation.
func (a *App) WaitForSignal(ctx context.Context) string {
	return a.shutdown.WaitForSignal(ctx)
}

// Stop drains the pipeline: pacer stops, the ticket channel closes, workers
// finish their in-flight writes, the aggregator drains, and the final
// summary and artifacts are written. Callers preserving the historical
// abrupt exit simply never call Stop.
func (a *App) Stop(ctx context.Context) error {
	a.mu.Lock()
	if !a.running {
		a.mu.Unlock()
		return nil
	}
	a.running = false
	a.mu.Unlock()

	log.Printf("draining run %s...", a.runID)
	a.cancel()

	// The pacer may be blocked sending a ticket; it unblocks via its
	// context. Closing the channel before it returns would panic the send.
	<-a.pacerDone
	close(a.tickets)

	a.pool.Wait()
	<-a.aggregator.Done()
	<-a.repDone

	// Final window, then the run summary.
	a.reporter.Tick(time.Now())
	snap := a.counters.Snapshot()
	elapsed := time.Since(a.startedAt)
	mean := time.Duration(0)
	if snap.Completed > 0 {
		mean = snap.CumLatency / time.Duration(snap.Completed)
	}
	log.Printf("run %s finished: writes=%d errs=%d mean=%v max=%v elapsed=%v",
		a.runID, snap.Completed, snap.Failed, mean, snap.OverallMax, elapsed)

	// Closers registered during Start: tracer, sink, device (LIFO).
	firstErr := a.shutdown.Shutdown(ctx)

	if a.store != nil {
		if err := a.uploadArtifacts(ctx, snap, elapsed, mean); err != nil {
			// Artifact failures degrade the run report, not the run itself.
			log.Printf("artifact upload: %v", err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}

	return firstErr
}

// Summary is the machine-readable end-of-run record.
type Summary struct {
	RunID     string    `json:"run_id"`
	Target    string    `json:"target"`
	SizeGB    int64     `json:"size_gb"`
	RateHz    float64   `json:"rate_hz"`
	BlockKB   int64     `json:"block_kb"`
	Workers   int       `json:"workers"`
	Fsync     bool      `json:"fsync"`
	StartedAt time.Time `json:"started_at"`
	ElapsedNs int64     `json:"elapsed_ns"`
	Writes    int64     `json:"writes"`
	Errors    int64     `json:"errors"`
	MeanNs    int64     `json:"mean_ns"`
	MaxNs     int64     `json:"max_ns"`
	Emitted   int64     `json:"tickets_emitted"`
}

// uploadArtifacts writes summary.json and pushes it plus the interval DB
// and trace (when present) under runs/<run-id>/.
func (a *App) uploadArtifacts(ctx context.Context, snap stats.Snapshot, elapsed time.Duration, mean time.Duration) error {
	summary := Summary{
		RunID:     a.runID,
		Target:    a.cfg.Target,
		SizeGB:    a.cfg.SizeGB,
		RateHz:    a.cfg.RateHz,
		BlockKB:   a.cfg.BlockKB,
		Workers:   a.cfg.Workers,
		Fsync:     a.cfg.Fsync,
		StartedAt: a.startedAt,
		ElapsedNs: int64(elapsed),
		Writes:    snap.Completed,
		Errors:    snap.Failed,
		MeanNs:    int64(mean),
		MaxNs:     int64(snap.OverallMax),
		Emitted:   a.pace.Emitted(),
	}

	data, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal summary: %w", err)
	}

	tmp := filepath.Join(os.TempDir(), fmt.Sprintf("iohammer-summary-%s.json", a.runID))
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write summary: %w", err)
	}
	defer os.Remove(tmp)

	prefix := path.Join("runs", a.runID)
	if err := a.store.Put(ctx, tmp, path.Join(prefix, "summary.json")); err != nil {
		return err
	}

	if p := a.cfg.Report.SinkPath; p != "" {
		if err := a.store.Put(ctx, p, path.Join(prefix, "intervals.db")); err != nil {
			return err
		}
	}
	if p := a.cfg.Report.TracePath; p != "" {
		if err := a.store.Put(ctx, p, path.Join(prefix, "latency.trace")); err != nil {
			return err
		}
	}

	log.Printf("artifacts uploaded under %s", prefix)
	return nil
}
