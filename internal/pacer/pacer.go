// Package pacer emits write tickets at a configured mean rate. Individual
// sleeps drift under scheduler jitter, so the pacer runs closed-loop:
// whenever an emission took longer than the nominal interval, the excess is
// banked as credit, and once a full interval of credit exists the next
// sleep is skipped. Long-run rate error stays bounded without ever
// bursting more than one skipped sleep at a time.
package pacer

import (
	"context"
	"sync/atomic"
	"time"
)

// Pacer produces tickets on a bounded channel. A full channel blocks
// emission, which is the system's only backpressure: stalled workers stall
// the pacer instead of growing memory.
type Pacer struct {
	interval time.Duration
	tickets  chan<- struct{}
	emitted  atomic.Int64
}

// New creates a pacer targeting hz tickets per second. hz == 0 disables
// throttling: tickets are emitted back-to-back as the channel accepts them.
func New(hz float64, tickets chan<- struct{}) *Pacer {
	interval := time.Duration(0)
	if hz != 0 {
		interval = time.Duration(float64(time.Second) / hz)
	}
	return &Pacer{
		interval: interval,
		tickets:  tickets,
	}
}

// Interval returns the nominal per-ticket interval (0 when unthrottled).
func (p *Pacer) Interval() time.Duration {
	return p.interval
}

// Emitted returns the number of tickets emitted so far.
func (p *Pacer) Emitted() int64 {
	return p.emitted.Load()
}

// Run emits tickets until ctx is cancelled. It never closes the ticket
// channel; ownership of the close stays with the caller so the same
// channel can feed multiple runs in tests.
func (p *Pacer) Run(ctx context.Context) {
	credit := time.Duration(0)
	previous := time.Now()

	timer := time.NewTimer(0)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case p.tickets <- struct{}{}:
		}
		p.emitted.Add(1)

		now := time.Now()
		elapsed := now.Sub(previous)
		previous = now

		var sleep bool
		credit, sleep = NextCredit(credit, elapsed, p.interval)
		if !sleep {
			continue
		}

		timer.Reset(p.interval)
		select {
		case <-ctx.Done():
			if !timer.Stop() {
				<-timer.C
			}
			return
		case <-timer.C:
		}
	}
}

// NextCredit advances the pacing credit after one emission that took
// elapsed wall time against the nominal interval. It returns the updated
// credit and whether the pacer should sleep a full interval. Credit above
// one interval is spent by skipping the sleep and deducting an interval,
// so a burst of slow emissions is repaid gradually rather than all at once.
func NextCredit(credit, elapsed, interval time.Duration) (time.Duration, bool) {
	if interval == 0 {
		return 0, false
	}

	credit += elapsed - interval
	if credit > interval {
		return credit - interval, false
	}
	return credit, true
}
