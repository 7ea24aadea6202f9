package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"kidcash/internal/amqp"
)

// ErrRelayFull is returned by EventRelay.Publish when the queue has no room.
var ErrRelayFull = errors.New("event relay queue is full")

// EventPublisher is the downstream the relay forwards to. *amqp.Client satisfies it.
type EventPublisher interface {
	Publish(ctx context.Context, e *amqp.Event) error
}

// EventRelayConfig holds configuration for the relay
type EventRelayConfig struct {
	// QueueSize bounds the events waiting to be published (default: 256)
	QueueSize int

	// PublishTimeout bounds a single downstream publish (default: 5s)
	PublishTimeout time.Duration
}

// DefaultEventRelayConfig returns sensible defaults
func DefaultEventRelayConfig() EventRelayConfig {
	return EventRelayConfig{
		QueueSize:      256,
		PublishTimeout: 5 * time.Second,
	}
}

// EventRelayStats counts publish outcomes since start.
type EventRelayStats struct {
	Published int64
	Failed    int64
	Dropped   int64
	Queued    int
}

// EventRelay publishes events on a background goroutine. Publish only
// queues, so a slow broker never holds up the caller.
type EventRelay struct {
	next   EventPublisher
	config EventRelayConfig
	queue  chan *amqp.Event

	published atomic.Int64
	failed    atomic.Int64
	dropped   atomic.Int64

	// Lifecycle management
	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// NewEventRelay creates a relay in front of next.
func NewEventRelay(next EventPublisher, config EventRelayConfig) *EventRelay {
	defaults := DefaultEventRelayConfig()
	if config.QueueSize <= 0 {
		config.QueueSize = defaults.QueueSize
	}
	if config.PublishTimeout <= 0 {
		config.PublishTimeout = defaults.PublishTimeout
	}
	return &EventRelay{
		next:   next,
		config: config,
		queue:  make(chan *amqp.Event, config.QueueSize),
	}
}

// Publish queues e without blocking. A full queue drops the event.
func (r *EventRelay) Publish(_ context.Context, e *amqp.Event) error {
	select {
	case r.queue <- e:
		return nil
	default:
		r.dropped.Add(1)
		return fmt.Errorf("queue event %s: %w", e.ID, ErrRelayFull)
	}
}

// Stats returns publish counters.
func (r *EventRelay) Stats() EventRelayStats {
	return EventRelayStats{
		Published: r.published.Load(),
		Failed:    r.failed.Load(),
		Dropped:   r.dropped.Load(),
		Queued:    len(r.queue),
	}
}

// Start begins the publish loop. Returns an error if already running.
func (r *EventRelay) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running {
		return fmt.Errorf("event relay is already running")
	}
	r.running = true
	r.stopCh = make(chan struct{})
	r.doneCh = make(chan struct{})

	go r.runLoop(ctx, r.stopCh, r.doneCh)

	slog.InfoContext(ctx, "Event relay started", "queue_size", r.config.QueueSize)
	return nil
}

// Stop ends the loop and publishes whatever is still queued.
func (r *EventRelay) Stop(ctx context.Context) error {
	r.mu.Lock()
	if r.running {
		r.running = false
		close(r.stopCh)
		doneCh := r.doneCh
		r.mu.Unlock()

		select {
		case <-doneCh:
		case <-ctx.Done():
			slog.WarnContext(ctx, "Event relay stop timed out")
			return ctx.Err()
		}
	} else {
		r.mu.Unlock()
	}

	for {
		select {
		case e := <-r.queue:
			if err := ctx.Err(); err != nil {
				return err
			}
			r.send(ctx, e)
		default:
			return nil
		}
	}
}

// IsRunning returns whether the publish loop is active
func (r *EventRelay) IsRunning() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running
}

func (r *EventRelay) runLoop(ctx context.Context, stopCh, doneCh chan struct{}) {
	defer close(doneCh)
	for {
		select {
		case <-stopCh:
			return
		case <-ctx.Done():
			return
		case e := <-r.queue:
			r.send(ctx, e)
		}
	}
}

func (r *EventRelay) send(ctx context.Context, e *amqp.Event) {
	ctx, cancel := context.WithTimeout(ctx, r.config.PublishTimeout)
	defer cancel()

	if err := r.next.Publish(ctx, e); err != nil {
		r.failed.Add(1)
		slog.WarnContext(ctx, "Failed to publish event",
			"event_type", e.Type,
			"event_id", e.ID,
			"error", err)
		return
	}
	r.published.Add(1)
}
