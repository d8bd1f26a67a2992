// Package server provides process lifecycle management: signal handling
// and ordered resource teardown.
package server

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"
)

// ShutdownManager coordinates shutdown of the run. The default behavior is
// the historical one: exit on the first signal without draining — random
// idempotent writes need no recovery. The drain path exists for callers
// that want final statistics and artifacts.
type ShutdownManager struct {
	shutdownTimeout time.Duration

	shutdownCh   chan struct{}
	shutdownOnce sync.Once

	// Closers to clean up on shutdown
	closers   []io.Closer
	closersMu sync.Mutex
}

// ShutdownConfig holds configuration for the shutdown manager.
type ShutdownConfig struct {
	// ShutdownTimeout is the maximum time to wait for the drain path.
	// Default: 30 seconds
	ShutdownTimeout time.Duration
}

// DefaultShutdownConfig returns the default shutdown configuration.
func DefaultShutdownConfig() ShutdownConfig {
	return ShutdownConfig{
		ShutdownTimeout: 30 * time.Second,
	}
}

// NewShutdownManager creates a new shutdown manager.
func NewShutdownManager(config ShutdownConfig) *ShutdownManager {
	if config.ShutdownTimeout == 0 {
		config.ShutdownTimeout = 30 * time.Second
	}

	return &ShutdownManager{
		shutdownTimeout: config.ShutdownTimeout,
		shutdownCh:      make(chan struct{}),
	}
}

// RegisterCloser adds a closer to be called during shutdown.
// Closers are called in reverse order of registration (LIFO).
func (sm *ShutdownManager) RegisterCloser(closer io.Closer) {
	sm.closersMu.Lock()
	defer sm.closersMu.Unlock()
	sm.closers = append(sm.closers, closer)
}

// WaitForSignal blocks until SIGTERM/SIGINT arrives or ctx is cancelled,
// and returns which happened.
func (sm *ShutdownManager) WaitForSignal(ctx context.Context) string {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	defer signal.Stop(sigCh)

	select {
	case sig := <-sigCh:
		return fmt.Sprintf("signal: %v", sig)
	case <-ctx.Done():
		return "context cancelled"
	case <-sm.shutdownCh:
		return "shutdown requested"
	}
}

// Shutdown runs all registered closers once, in reverse registration
// order, bounded by the shutdown timeout.
func (sm *ShutdownManager) Shutdown(ctx context.Context) error {
	var shutdownErr error

	sm.shutdownOnce.Do(func() {
		close(sm.shutdownCh)

		shutdownCtx, cancel := context.WithTimeout(ctx, sm.shutdownTimeout)
		defer cancel()

		sm.closersMu.Lock()
		closers := sm.closers
		sm.closersMu.Unlock()

		done := make(chan error, 1)
		go func() {
			var firstErr error
			for i := len(closers) - 1; i >= 0; i-- {
				if err := closers[i].Close(); err != nil && firstErr == nil {
					firstErr = fmt.Errorf("close failed: %w", err)
				}
			}
			done <- firstErr
		}()

		select {
		case shutdownErr = <-done:
		case <-shutdownCtx.Done():
			shutdownErr = fmt.Errorf("shutdown timed out after %v", sm.shutdownTimeout)
		}
	})

	return shutdownErr
}

// ShutdownCh returns a channel that is closed when shutdown begins.
func (sm *ShutdownManager) ShutdownCh() <-chan struct{} {
	return sm.shutdownCh
}

// CloserFunc is an adapter to allow ordinary functions to be used as io.Closer.
type CloserFunc func() error

// Close calls the underlying function.
func (f CloserFunc) Close() error {
	return f()
}
