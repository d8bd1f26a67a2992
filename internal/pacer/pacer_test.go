package pacer

import (
	"context"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func TestNextCredit_SteadyState(t *testing.T) {
	interval := 10 * time.Millisecond

	// Emission exactly on time: credit unchanged, sleep taken.
	credit, sleep := NextCredit(0, interval, interval)
	if credit != 0 {
		t.Errorf("credit = %v, want 0", credit)
	}
	if !sleep {
		t.Error("expected sleep in steady state")
	}
}

func TestNextCredit_SlowEmissionAccumulates(t *testing.T) {
	interval := 10 * time.Millisecond

	// An emission 4ms late banks 4ms of credit but still sleeps.
	credit, sleep := NextCredit(0, interval+4*time.Millisecond, interval)
	if credit != 4*time.Millisecond {
		t.Errorf("credit = %v, want 4ms", credit)
	}
	if !sleep {
		t.Error("expected sleep while credit below one interval")
	}
}

func TestNextCredit_SpendsCreditBySkipping(t *testing.T) {
	interval := 10 * time.Millisecond

	// Credit above one interval: skip the sleep and deduct one interval.
	credit, sleep := NextCredit(8*time.Millisecond, interval+5*time.Millisecond, interval)
	if sleep {
		t.Error("expected skipped sleep when credit exceeds interval")
	}
	if credit != 3*time.Millisecond {
		t.Errorf("credit = %v, want 3ms", credit)
	}
}

func TestNextCredit_Unthrottled(t *testing.T) {
	credit, sleep := NextCredit(time.Hour, time.Hour, 0)
	if sleep {
		t.Error("unthrottled pacer must never sleep")
	}
	if credit != 0 {
		t.Errorf("credit = %v, want 0", credit)
	}
}

// TestProperty_CreditBounded validates that the credit never grows without
// bound when emissions keep pace: for any run of emissions each at most one
// interval late, the credit stays below two intervals.
func TestProperty_CreditBounded(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	const interval = 10 * time.Millisecond

	properties.Property("credit stays below two intervals under bounded lateness", prop.ForAll(
		func(latenessUs []int64) bool {
			credit := time.Duration(0)
			for _, us := range latenessUs {
				elapsed := interval + time.Duration(us)*time.Microsecond
				credit, _ = NextCredit(credit, elapsed, interval)
				if credit >= 2*interval {
					return false
				}
			}
			return true
		},
		gen.SliceOf(gen.Int64Range(0, 10000)), // 0–10ms late, never more than one interval
	))

	properties.Property("skipped sleeps repay accumulated debt", prop.ForAll(
		func(stallMs int64) bool {
			// One long stall, then on-time emissions with skipped sleeps
			// counted as instantaneous. The debt must drain to below one
			// interval within a bounded number of emissions.
			credit, _ := NextCredit(0, time.Duration(stallMs)*time.Millisecond, interval)
			for i := 0; i < int(stallMs); i++ {
				if credit <= interval {
					return true
				}
				credit, _ = NextCredit(credit, 0, interval)
			}
			return credit <= interval
		},
		gen.Int64Range(20, 2000),
	))

	properties.TestingRun(t)
}

func TestPacer_EmitsAtConfiguredRate(t *testing.T) {
	if testing.Short() {
		t.Skip("timing test")
	}

	tickets := make(chan struct{}, 10000)
	p := New(500, tickets)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		p.Run(ctx)
	}()

	// Consume freely so the channel never backpressures.
	var consumed int64
	consumeDone := make(chan struct{})
	go func() {
		defer close(consumeDone)
		for range tickets {
			consumed++
		}
	}()

	time.Sleep(2 * time.Second)
	cancel()
	<-done
	close(tickets)
	<-consumeDone

	// 500 Hz over 2s is 1000 tickets; allow generous scheduler slack.
	if consumed < 700 || consumed > 1300 {
		t.Errorf("consumed %d tickets in 2s at 500Hz, want ~1000", consumed)
	}
	if p.Emitted() < consumed {
		t.Errorf("Emitted() = %d, below consumed %d", p.Emitted(), consumed)
	}
}

func TestPacer_BackpressuresOnFullChannel(t *testing.T) {
	tickets := make(chan struct{}, 1)
	p := New(0, tickets) // unthrottled: only the channel limits emission

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		p.Run(ctx)
	}()

	// Nobody consumes: the pacer fills the one slot and blocks.
	time.Sleep(50 * time.Millisecond)
	if got := p.Emitted(); got != 1 {
		t.Errorf("Emitted() = %d, want 1 while blocked on a full channel", got)
	}

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("pacer did not unblock on cancellation")
	}
}

func TestPacer_UnthrottledInterval(t *testing.T) {
	p := New(0, make(chan struct{}, 1))
	if p.Interval() != 0 {
		t.Errorf("Interval() = %v, want 0 for unthrottled", p.Interval())
	}

	p = New(384, make(chan struct{}, 1))
	hz := float64(384)
	want := time.Duration(float64(time.Second) / hz)
	if p.Interval() != want {
		t.Errorf("Interval() = %v, want %v", p.Interval(), want)
	}
}
