// Package hammer implements the worker pool that performs the actual I/O.
// The pool is sized far above the pacer rate on purpose: queueing happens
// in the ticket channel, not as goroutine contention, and the peak
// in-flight count becomes a usable proxy for device queue depth.
package hammer

import (
	"log"
	"math/rand"
	"sync"
	"time"

	"github.com/arkilian/iohammer/internal/device"
	"github.com/arkilian/iohammer/internal/pattern"
	"github.com/arkilian/iohammer/internal/stats"
)

// Target is the write surface a worker drives. *device.Device satisfies it;
// tests substitute failing doubles.
type Target interface {
	WriteAt(buf []byte, off int64) error
	Sync() error
}

// Config holds worker pool configuration.
type Config struct {
	// Workers is the number of concurrent writers (default 1000).
	Workers int

	// BlockSize is the per-write buffer size in bytes.
	BlockSize int64

	// Fsync issues a sync after each write and includes it in the
	// measured latency.
	Fsync bool

	// Seed drives the deterministic block fill and the per-worker RNGs.
	Seed uint64
}

// Pool runs a fixed set of workers, each consuming tickets and performing
// one positioned write per ticket.
type Pool struct {
	cfg      Config
	target   Target
	arena    device.Arena
	counters *stats.Counters
	tickets  <-chan struct{}
	samples  chan<- time.Duration
	wg       sync.WaitGroup
}

// NewPool creates a pool. Workers start on Start and exit when the ticket
// channel closes.
func NewPool(cfg Config, target Target, arena device.Arena, counters *stats.Counters, tickets <-chan struct{}, samples chan<- time.Duration) *Pool {
	if cfg.Workers <= 0 {
		cfg.Workers = 1000
	}
	return &Pool{
		cfg:      cfg,
		target:   target,
		arena:    arena,
		counters: counters,
		tickets:  tickets,
		samples:  samples,
	}
}

// Start launches all workers.
func (p *Pool) Start() {
	for i := 0; i < p.cfg.Workers; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}
}

// Wait blocks until every worker has exited, then closes the sample
// channel so the aggregator can drain and stop. Call only after the ticket
// channel is closed.
func (p *Pool) Wait() {
	p.wg.Wait()
	close(p.samples)
}

// worker is the per-goroutine write loop. Each worker owns its buffer and
// RNG exclusively; the target handle is the only shared resource and the
// OS serializes access to it.
func (p *Pool) worker(id int) {
	defer p.wg.Done()

	buf := device.AlignedBlock(p.cfg.BlockSize)
	pattern.Fill(buf, p.cfg.Seed)
	rng := rand.New(rand.NewSource(int64(p.cfg.Seed) + int64(id)))

	for range p.tickets {
		pos := p.arena.RandomOffset(rng, p.cfg.BlockSize)

		p.counters.BeginWrite()
		start := time.Now()
		err := p.target.WriteAt(buf, pos)
		if err == nil && p.cfg.Fsync {
			err = p.target.Sync()
		}
		elapsed := time.Since(start)
		p.counters.EndWrite()

		if err != nil {
			// Recoverable: one bad write degrades throughput, never the run.
			log.Printf("write at offset %d failed: %v", pos, err)
			p.counters.RecordFailure()
			continue
		}

		p.samples <- elapsed
	}
}
