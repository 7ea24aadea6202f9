// Package worker holds the background processors: the snapshot
// Persister and the EventRelay used by the stores, and the
// LedgerExporter used by the event consumer.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"kidcash/internal/kv"
)

// PersisterConfig holds configuration for the persister
type PersisterConfig struct {
	// FlushInterval is how often pending snapshots are written even without a signal (default: 2s)
	FlushInterval time.Duration

	// MaxRetries is how many times a failed write is retried before the snapshot is dropped (default: 3)
	MaxRetries int

	// WriteTimeout bounds a single KV write (default: 5s)
	WriteTimeout time.Duration
}

// DefaultPersisterConfig returns sensible defaults
func DefaultPersisterConfig() PersisterConfig {
	return PersisterConfig{
		FlushInterval: 2 * time.Second,
		MaxRetries:    3,
		WriteTimeout:  5 * time.Second,
	}
}

// PersisterStats counts write outcomes since start.
type PersisterStats struct {
	Written int64
	Failed  int64
	Dropped int64
	Pending int
}

// Persister writes store snapshots to a kv.Writer in the background.
// Only the latest snapshot per key is kept; older ones are superseded
// before they are written.
type Persister struct {
	store  kv.Writer
	config PersisterConfig

	pendingMu sync.Mutex
	pending   map[string][]byte
	attempts  map[string]int
	signal    chan struct{}

	flushMu sync.Mutex

	written atomic.Int64
	failed  atomic.Int64
	dropped atomic.Int64

	// Lifecycle management
	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// NewPersister creates a new persister
func NewPersister(store kv.Writer, config PersisterConfig) *Persister {
	if config.FlushInterval <= 0 {
		config.FlushInterval = DefaultPersisterConfig().FlushInterval
	}
	if config.WriteTimeout <= 0 {
		config.WriteTimeout = DefaultPersisterConfig().WriteTimeout
	}
	if config.MaxRetries < 0 {
		config.MaxRetries = 0
	}
	return &Persister{
		store:    store,
		config:   config,
		pending:  make(map[string][]byte),
		attempts: make(map[string]int),
		signal:   make(chan struct{}, 1),
	}
}

// Enqueue schedules data to be written under key. It never blocks.
func (p *Persister) Enqueue(key string, data []byte) {
	buf := append([]byte(nil), data...)

	p.pendingMu.Lock()
	p.pending[key] = buf
	delete(p.attempts, key)
	p.pendingMu.Unlock()

	select {
	case p.signal <- struct{}{}:
	default:
	}
}

// Pending returns how many keys wait to be written.
func (p *Persister) Pending() int {
	p.pendingMu.Lock()
	defer p.pendingMu.Unlock()
	return len(p.pending)
}

// Stats returns write counters.
func (p *Persister) Stats() PersisterStats {
	return PersisterStats{
		Written: p.written.Load(),
		Failed:  p.failed.Load(),
		Dropped: p.dropped.Load(),
		Pending: p.Pending(),
	}
}

// Flush writes every pending snapshot once. Failed writes stay queued
// until they exceed MaxRetries; the returned error joins all failures.
func (p *Persister) Flush(ctx context.Context) error {
	p.flushMu.Lock()
	defer p.flushMu.Unlock()

	p.pendingMu.Lock()
	batch := p.pending
	p.pending = make(map[string][]byte, len(batch))
	p.pendingMu.Unlock()

	var errs []error
	for key, data := range batch {
		if err := ctx.Err(); err != nil {
			p.requeue(key, data)
			errs = append(errs, err)
			continue
		}

		writeCtx, cancel := context.WithTimeout(ctx, p.config.WriteTimeout)
		err := p.store.Set(writeCtx, key, data)
		cancel()

		if err != nil {
			p.failed.Add(1)
			errs = append(errs, fmt.Errorf("persist %s: %w", key, err))
			p.handleFailure(ctx, key, data, err)
			continue
		}

		p.written.Add(1)
		p.pendingMu.Lock()
		delete(p.attempts, key)
		p.pendingMu.Unlock()
		slog.DebugContext(ctx, "Snapshot persisted", "key", key, "bytes", len(data))
	}

	return errors.Join(errs...)
}

// requeue puts data back unless a newer snapshot arrived meanwhile.
func (p *Persister) requeue(key string, data []byte) {
	p.pendingMu.Lock()
	defer p.pendingMu.Unlock()
	if _, newer := p.pending[key]; !newer {
		p.pending[key] = data
	}
}

func (p *Persister) handleFailure(ctx context.Context, key string, data []byte, writeErr error) {
	p.pendingMu.Lock()
	defer p.pendingMu.Unlock()

	if _, newer := p.pending[key]; newer {
		// A fresher snapshot replaces the failed one with a clean slate.
		return
	}

	p.attempts[key]++
	attempt := p.attempts[key]
	if attempt > p.config.MaxRetries {
		delete(p.attempts, key)
		p.dropped.Add(1)
		slog.ErrorContext(ctx, "Snapshot dropped after max retries",
			"key", key,
			"attempts", attempt,
			"error", writeErr)
		return
	}

	p.pending[key] = data
	slog.WarnContext(ctx, "Snapshot write failed, will retry",
		"key", key,
		"attempt", attempt,
		"error", writeErr)
}

// Start begins the flush loop. Returns an error if already running.
func (p *Persister) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return fmt.Errorf("persister is already running")
	}
	p.running = true
	p.stopCh = make(chan struct{})
	p.doneCh = make(chan struct{})
	p.mu.Unlock()

	go p.runLoop(ctx)

	slog.InfoContext(ctx, "Persister started",
		"flush_interval", p.config.FlushInterval,
		"max_retries", p.config.MaxRetries)

	return nil
}

// Stop ends the loop and flushes whatever is still pending.
func (p *Persister) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return p.Flush(ctx)
	}
	p.running = false
	stopCh, doneCh := p.stopCh, p.doneCh
	p.mu.Unlock()

	close(stopCh)

	select {
	case <-doneCh:
	case <-ctx.Done():
		slog.WarnContext(ctx, "Persister stop timed out")
		return ctx.Err()
	}

	if err := p.Flush(ctx); err != nil {
		slog.ErrorContext(ctx, "Final flush failed", "error", err, "pending", p.Pending())
		return err
	}
	slog.InfoContext(ctx, "Persister stopped gracefully")
	return nil
}

// IsRunning returns whether the flush loop is active
func (p *Persister) IsRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

func (p *Persister) runLoop(ctx context.Context) {
	defer close(p.doneCh)

	ticker := time.NewTicker(p.config.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-p.stopCh:
			return
		case <-ctx.Done():
			return
		case <-p.signal:
			p.flushInLoop(ctx)
		case <-ticker.C:
			if p.Pending() > 0 {
				p.flushInLoop(ctx)
			}
		}
	}
}

func (p *Persister) flushInLoop(ctx context.Context) {
	if err := p.Flush(ctx); err != nil && ctx.Err() == nil {
		slog.DebugContext(ctx, "Flush finished with errors", "error", err)
	}
}
