// Package stats accumulates per-write latency samples into the counters the
// reporter reads. The counter set is the only state shared across the
// pacer/worker/reporter goroutines, so every field is atomic: workers bump
// the in-flight counters from a thousand goroutines, the aggregator is the
// single writer of the totals, and the reporter reads and resets the
// windowed values from its own goroutine.
package stats

import (
	"sync/atomic"
	"time"
)

// Counters is the process-wide statistics state. Completed, Failed, and
// CumLatency grow monotonically; WindowMax and PeakPending are high-water
// marks reset by the reporter each interval.
type Counters struct {
	completed  atomic.Int64
	failed     atomic.Int64
	cumLatency atomic.Int64 // nanoseconds
	windowMax  atomic.Int64 // nanoseconds
	overallMax atomic.Int64 // nanoseconds, never reset

	pending     atomic.Int32
	peakPending atomic.Int32
}

// BeginWrite marks one write as in flight. The increment happens before the
// write syscall so the instantaneous pending value never undercounts
// outstanding I/O. The peak is maintained with a CAS loop so concurrent
// workers cannot lose a high-water mark.
func (c *Counters) BeginWrite() {
	p := c.pending.Add(1)
	for {
		peak := c.peakPending.Load()
		if p <= peak || c.peakPending.CompareAndSwap(peak, p) {
			return
		}
	}
}

// EndWrite marks one write as no longer in flight. Called after the write
// syscall returns, success or not.
func (c *Counters) EndWrite() {
	c.pending.Add(-1)
}

// RecordSample accumulates one completed-write latency. Single caller (the
// aggregator), but stored atomically because the reporter loads from
// another goroutine.
func (c *Counters) RecordSample(d time.Duration) {
	c.completed.Add(1)
	c.cumLatency.Add(int64(d))
	storeMax(&c.windowMax, int64(d))
	storeMax(&c.overallMax, int64(d))
}

// storeMax raises v to at least d without losing concurrent updates.
func storeMax(v *atomic.Int64, d int64) {
	for {
		cur := v.Load()
		if d <= cur || v.CompareAndSwap(cur, d) {
			return
		}
	}
}

// RecordFailure counts one failed write. Failures produce no latency sample
// and are excluded from the mean.
func (c *Counters) RecordFailure() {
	c.failed.Add(1)
}

// Pending returns the current in-flight write count.
func (c *Counters) Pending() int32 {
	return c.pending.Load()
}

// Snapshot is a point-in-time copy of the counters.
type Snapshot struct {
	Completed   int64
	Failed      int64
	CumLatency  time.Duration
	WindowMax   time.Duration
	OverallMax  time.Duration
	PeakPending int32
}

// Snapshot reads all counters.
func (c *Counters) Snapshot() Snapshot {
	return Snapshot{
		Completed:   c.completed.Load(),
		Failed:      c.failed.Load(),
		CumLatency:  time.Duration(c.cumLatency.Load()),
		WindowMax:   time.Duration(c.windowMax.Load()),
		OverallMax:  time.Duration(c.overallMax.Load()),
		PeakPending: c.peakPending.Load(),
	}
}

// ResetWindow clears the windowed high-water marks for the next reporting
// interval. The cumulative totals are never reset.
func (c *Counters) ResetWindow() {
	c.windowMax.Store(0)
	c.peakPending.Store(0)
}

// SampleSink receives each latency sample after it is accumulated.
// Implemented by the trace writer.
type SampleSink interface {
	Record(d time.Duration) error
}

// Aggregator drains the sample channel into the counters. It is the single
// consumer, so accumulation stays trivially cheap and can never bottleneck
// the I/O-bound workers.
type Aggregator struct {
	counters *Counters
	samples  <-chan time.Duration
	sink     SampleSink
	done     chan struct{}
}

// NewAggregator creates an aggregator over the given sample channel.
// sink may be nil.
func NewAggregator(counters *Counters, samples <-chan time.Duration, sink SampleSink) *Aggregator {
	return &Aggregator{
		counters: counters,
		samples:  samples,
		sink:     sink,
		done:     make(chan struct{}),
	}
}

// Run consumes samples until the channel is closed. Run returns only after
// the channel drains, so closing the workers' side and waiting on Done
// guarantees every published sample is counted.
func (a *Aggregator) Run() {
	defer close(a.done)
	for d := range a.samples {
		a.counters.RecordSample(d)
		if a.sink != nil {
			// Trace write failures are not worth stalling accumulation over.
			_ = a.sink.Record(d)
		}
	}
}

// Done is closed when the aggregator has drained its channel.
func (a *Aggregator) Done() <-chan struct{} {
	return a.done
}
