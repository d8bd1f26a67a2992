// Package report turns the aggregator's counters into human-readable
// overload lines and, optionally, structured interval rows. The reporter
// is a tail-latency detector, not a telemetry stream: an interval prints
// only when its max latency or peak concurrency crossed a threshold.
package report

import (
	"context"
	"fmt"
	"io"
	"log"
	"time"

	"github.com/arkilian/iohammer/internal/stats"
)

// Config holds reporter configuration.
type Config struct {
	// Interval is the reporting period (default 1s).
	Interval time.Duration

	// LatencyThreshold gates emission on the interval's max latency
	// (default 10ms).
	LatencyThreshold time.Duration

	// PendingThreshold gates emission on the interval's peak in-flight
	// count (default 10).
	PendingThreshold int32
}

// DefaultConfig returns the reporter defaults.
func DefaultConfig() Config {
	return Config{
		Interval:         time.Second,
		LatencyThreshold: 10 * time.Millisecond,
		PendingThreshold: 10,
	}
}

// Interval is one reporting window's statistics. Recorded for every
// window, including suppressed ones, when a sink is attached.
type Interval struct {
	Timestamp   time.Time
	Samples     int64
	Errors      int64
	Mean        time.Duration // zero when Samples == 0
	Max         time.Duration
	PeakPending int32
	Emitted     bool
}

// IntervalSink receives every interval. Implemented by the SQLite sink.
type IntervalSink interface {
	Record(iv Interval) error
	Close() error
}

// Reporter periodically snapshots the counters, derives the interval's
// incremental mean, and resets the windowed high-water marks.
type Reporter struct {
	cfg      Config
	counters *stats.Counters
	out      io.Writer
	sink     IntervalSink

	// previous snapshot of the monotonic totals
	lastCompleted  int64
	lastFailed     int64
	lastCumLatency time.Duration
}

// New creates a reporter writing emitted lines to out. sink may be nil.
func New(cfg Config, counters *stats.Counters, out io.Writer, sink IntervalSink) *Reporter {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Second
	}
	return &Reporter{
		cfg:      cfg,
		counters: counters,
		out:      out,
		sink:     sink,
	}
}

// Run ticks until ctx is cancelled.
func (r *Reporter) Run(ctx context.Context) {
	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			r.Tick(now)
		}
	}
}

// Tick processes one reporting window: compute incremental stats, emit the
// line if a threshold tripped, record the interval, reset the window.
func (r *Reporter) Tick(now time.Time) Interval {
	snap := r.counters.Snapshot()

	iv := Interval{
		Timestamp:   now,
		Samples:     snap.Completed - r.lastCompleted,
		Errors:      snap.Failed - r.lastFailed,
		Max:         snap.WindowMax,
		PeakPending: snap.PeakPending,
	}
	if iv.Samples > 0 {
		iv.Mean = (snap.CumLatency - r.lastCumLatency) / time.Duration(iv.Samples)
	}
	iv.Emitted = iv.Max > r.cfg.LatencyThreshold || iv.PeakPending > r.cfg.PendingThreshold

	if iv.Emitted {
		// Mean is undefined for a window with no samples; print "-" rather
		// than dividing by zero.
		mean := "-"
		if iv.Samples > 0 {
			mean = iv.Mean.String()
		}
		fmt.Fprintf(r.out, "%s max=%v mean=%s pending=%d errs=%d\n",
			now.Format(time.RFC3339Nano), iv.Max, mean, iv.PeakPending, iv.Errors)
	}

	if r.sink != nil {
		if err := r.sink.Record(iv); err != nil {
			log.Printf("interval sink: %v", err)
		}
	}

	r.lastCompleted = snap.Completed
	r.lastFailed = snap.Failed
	r.lastCumLatency = snap.CumLatency
	r.counters.ResetWindow()

	return iv
}
