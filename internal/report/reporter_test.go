package report

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/arkilian/iohammer/internal/stats"
)

func testConfig() Config {
	return Config{
		Interval:         time.Second,
		LatencyThreshold: 10 * time.Millisecond,
		PendingThreshold: 10,
	}
}

func TestTick_QuietIntervalSuppressed(t *testing.T) {
	c := &stats.Counters{}
	c.RecordSample(2 * time.Millisecond)
	c.RecordSample(5 * time.Millisecond)

	var out bytes.Buffer
	r := New(testConfig(), c, &out, nil)
	iv := r.Tick(time.Now())

	if iv.Emitted {
		t.Error("interval below both thresholds must be suppressed")
	}
	if out.Len() != 0 {
		t.Errorf("suppressed interval printed: %q", out.String())
	}
	if iv.Samples != 2 || iv.Max != 5*time.Millisecond {
		t.Errorf("iv = %+v", iv)
	}
}

func TestTick_EmitsOnLatency(t *testing.T) {
	c := &stats.Counters{}
	c.RecordSample(15 * time.Millisecond)

	var out bytes.Buffer
	r := New(testConfig(), c, &out, nil)
	iv := r.Tick(time.Now())

	if !iv.Emitted {
		t.Fatal("max above the latency threshold must emit")
	}
	line := out.String()
	if !strings.Contains(line, "max=15ms") {
		t.Errorf("line = %q, want max=15ms", line)
	}
	if !strings.Contains(line, "mean=15ms") {
		t.Errorf("line = %q, want mean=15ms", line)
	}
}

func TestTick_EmitsOnPending(t *testing.T) {
	c := &stats.Counters{}
	for i := 0; i < 11; i++ {
		c.BeginWrite()
	}
	for i := 0; i < 11; i++ {
		c.EndWrite()
	}

	var out bytes.Buffer
	r := New(testConfig(), c, &out, nil)
	iv := r.Tick(time.Now())

	if !iv.Emitted {
		t.Fatal("peak pending above the threshold must emit")
	}
	if !strings.Contains(out.String(), "pending=11") {
		t.Errorf("line = %q, want pending=11", out.String())
	}
}

func TestTick_ThresholdsAreStrict(t *testing.T) {
	// Exactly at the thresholds: no emission.
	c := &stats.Counters{}
	c.RecordSample(10 * time.Millisecond)
	for i := 0; i < 10; i++ {
		c.BeginWrite()
	}
	for i := 0; i < 10; i++ {
		c.EndWrite()
	}

	var out bytes.Buffer
	r := New(testConfig(), c, &out, nil)
	if iv := r.Tick(time.Now()); iv.Emitted {
		t.Error("values equal to the thresholds must not emit")
	}
}

func TestTick_ZeroSampleMean(t *testing.T) {
	// Pending spike with no completion in the window: the line prints but
	// the mean is undefined.
	c := &stats.Counters{}
	for i := 0; i < 20; i++ {
		c.BeginWrite()
	}

	var out bytes.Buffer
	r := New(testConfig(), c, &out, nil)
	iv := r.Tick(time.Now())

	if !iv.Emitted {
		t.Fatal("expected emission on pending spike")
	}
	if iv.Mean != 0 {
		t.Errorf("Mean = %v for empty window, want 0", iv.Mean)
	}
	if !strings.Contains(out.String(), "mean=-") {
		t.Errorf("line = %q, want mean=-", out.String())
	}

	for i := 0; i < 20; i++ {
		c.EndWrite()
	}
}

func TestTick_IncrementalMean(t *testing.T) {
	c := &stats.Counters{}
	var out bytes.Buffer
	r := New(testConfig(), c, &out, nil)

	// Window 1: two samples, mean 20ms.
	c.RecordSample(15 * time.Millisecond)
	c.RecordSample(25 * time.Millisecond)
	iv := r.Tick(time.Now())
	if iv.Mean != 20*time.Millisecond {
		t.Errorf("window 1 Mean = %v, want 20ms", iv.Mean)
	}

	// Window 2: one sample. The mean must cover only this window even
	// though the counters are cumulative.
	c.RecordSample(30 * time.Millisecond)
	iv = r.Tick(time.Now())
	if iv.Samples != 1 {
		t.Errorf("window 2 Samples = %d, want 1", iv.Samples)
	}
	if iv.Mean != 30*time.Millisecond {
		t.Errorf("window 2 Mean = %v, want 30ms", iv.Mean)
	}
}

func TestTick_WindowReset(t *testing.T) {
	c := &stats.Counters{}
	var out bytes.Buffer
	r := New(testConfig(), c, &out, nil)

	c.RecordSample(50 * time.Millisecond)
	r.Tick(time.Now())

	// Nothing happened in window 2: max and peak must not carry over.
	iv := r.Tick(time.Now())
	if iv.Max != 0 || iv.PeakPending != 0 {
		t.Errorf("window 2 carried over: max=%v peak=%d", iv.Max, iv.PeakPending)
	}
	if iv.Emitted {
		t.Error("empty window must not emit")
	}
}

type memorySink struct {
	rows   []Interval
	closed bool
}

func (m *memorySink) Record(iv Interval) error { m.rows = append(m.rows, iv); return nil }
func (m *memorySink) Close() error             { m.closed = true; return nil }

func TestTick_SinkGetsSuppressedIntervals(t *testing.T) {
	c := &stats.Counters{}
	sink := &memorySink{}
	var out bytes.Buffer
	r := New(testConfig(), c, &out, sink)

	c.RecordSample(time.Millisecond) // quiet
	r.Tick(time.Now())
	c.RecordSample(time.Second) // loud
	r.Tick(time.Now())

	if len(sink.rows) != 2 {
		t.Fatalf("sink rows = %d, want 2", len(sink.rows))
	}
	if sink.rows[0].Emitted {
		t.Error("quiet interval recorded as emitted")
	}
	if !sink.rows[1].Emitted {
		t.Error("loud interval recorded as suppressed")
	}
}
