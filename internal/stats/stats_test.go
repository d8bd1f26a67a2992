package stats

import (
	"sync"
	"testing"
	"time"
)

func TestCounters_RecordSample(t *testing.T) {
	c := &Counters{}
	c.RecordSample(5 * time.Millisecond)
	c.RecordSample(2 * time.Millisecond)
	c.RecordSample(9 * time.Millisecond)

	snap := c.Snapshot()
	if snap.Completed != 3 {
		t.Errorf("Completed = %d, want 3", snap.Completed)
	}
	if snap.CumLatency != 16*time.Millisecond {
		t.Errorf("CumLatency = %v, want 16ms", snap.CumLatency)
	}
	if snap.WindowMax != 9*time.Millisecond {
		t.Errorf("WindowMax = %v, want 9ms", snap.WindowMax)
	}
	if snap.OverallMax != 9*time.Millisecond {
		t.Errorf("OverallMax = %v, want 9ms", snap.OverallMax)
	}
}

func TestCounters_ResetWindowKeepsCumulative(t *testing.T) {
	c := &Counters{}
	c.RecordSample(20 * time.Millisecond)
	c.BeginWrite()
	c.EndWrite()
	c.ResetWindow()

	snap := c.Snapshot()
	if snap.WindowMax != 0 {
		t.Errorf("WindowMax = %v after reset, want 0", snap.WindowMax)
	}
	if snap.PeakPending != 0 {
		t.Errorf("PeakPending = %d after reset, want 0", snap.PeakPending)
	}
	if snap.Completed != 1 || snap.CumLatency != 20*time.Millisecond {
		t.Error("reset must not touch the cumulative totals")
	}
	if snap.OverallMax != 20*time.Millisecond {
		t.Errorf("OverallMax = %v after reset, want 20ms", snap.OverallMax)
	}

	// The next window's max starts fresh.
	c.RecordSample(3 * time.Millisecond)
	if got := c.Snapshot().WindowMax; got != 3*time.Millisecond {
		t.Errorf("WindowMax = %v in new window, want 3ms", got)
	}
}

func TestCounters_PendingAndPeak(t *testing.T) {
	c := &Counters{}
	c.BeginWrite()
	c.BeginWrite()
	c.BeginWrite()
	if got := c.Pending(); got != 3 {
		t.Errorf("Pending = %d, want 3", got)
	}
	c.EndWrite()
	c.EndWrite()
	if got := c.Pending(); got != 1 {
		t.Errorf("Pending = %d, want 1", got)
	}
	if got := c.Snapshot().PeakPending; got != 3 {
		t.Errorf("PeakPending = %d, want 3", got)
	}
}

func TestCounters_PeakPendingConcurrent(t *testing.T) {
	c := &Counters{}
	const goroutines = 64
	const iterations = 1000

	var wg sync.WaitGroup
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < iterations; j++ {
				c.BeginWrite()
				c.EndWrite()
			}
		}()
	}
	wg.Wait()

	if got := c.Pending(); got != 0 {
		t.Errorf("Pending = %d after all writes finished, want 0", got)
	}
	peak := c.Snapshot().PeakPending
	if peak < 1 || peak > goroutines {
		t.Errorf("PeakPending = %d, want in [1, %d]", peak, goroutines)
	}
}

func TestCounters_Failures(t *testing.T) {
	c := &Counters{}
	c.RecordFailure()
	c.RecordFailure()

	snap := c.Snapshot()
	if snap.Failed != 2 {
		t.Errorf("Failed = %d, want 2", snap.Failed)
	}
	if snap.Completed != 0 {
		t.Error("failures must not count as completions")
	}
}

type captureSink struct {
	got []time.Duration
}

func (s *captureSink) Record(d time.Duration) error {
	s.got = append(s.got, d)
	return nil
}

func TestAggregator_DrainsUntilClose(t *testing.T) {
	c := &Counters{}
	samples := make(chan time.Duration, 10)
	sink := &captureSink{}
	agg := NewAggregator(c, samples, sink)
	go agg.Run()

	for i := 1; i <= 5; i++ {
		samples <- time.Duration(i) * time.Millisecond
	}
	close(samples)

	select {
	case <-agg.Done():
	case <-time.After(time.Second):
		t.Fatal("aggregator did not finish after channel close")
	}

	snap := c.Snapshot()
	if snap.Completed != 5 {
		t.Errorf("Completed = %d, want 5", snap.Completed)
	}
	if snap.WindowMax != 5*time.Millisecond {
		t.Errorf("WindowMax = %v, want 5ms", snap.WindowMax)
	}
	if len(sink.got) != 5 {
		t.Errorf("sink received %d samples, want 5", len(sink.got))
	}
}

func TestAggregator_NilSink(t *testing.T) {
	c := &Counters{}
	samples := make(chan time.Duration, 1)
	agg := NewAggregator(c, samples, nil)
	go agg.Run()

	samples <- time.Millisecond
	close(samples)
	<-agg.Done()

	if got := c.Snapshot().Completed; got != 1 {
		t.Errorf("Completed = %d, want 1", got)
	}
}
