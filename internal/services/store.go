// Package services holds the KidCash stores: finance, user/family and
// settings. Each store owns its state behind a mutex, validates input in
// its mutators and hands a JSON snapshot to a SnapshotWriter after every
// change. Stores are built explicitly and shared by reference.
package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	jsoniter "github.com/json-iterator/go"

	"kidcash/internal/amqp"
	"kidcash/internal/core"
	"kidcash/internal/kv"
)

var codec = jsoniter.ConfigCompatibleWithStandardLibrary

// EventPublisher announces store changes. Publish runs on the caller's
// goroutine after the store lock is released, so it should return quickly;
// the server hands events to a *worker.EventRelay, which only queues them.
type EventPublisher interface {
	Publish(ctx context.Context, e *amqp.Event) error
}

// SnapshotWriter receives serialized store state. It must not block;
// *worker.Persister satisfies it.
type SnapshotWriter interface {
	Enqueue(key string, data []byte)
}

// Deps are the collaborators shared by every store. Only Now and NewID
// get defaults; a nil Reader, Writer or Publisher disables that concern.
type Deps struct {
	Reader    kv.Reader
	Writer    SnapshotWriter
	Publisher EventPublisher
	Now       func() time.Time
	NewID     core.IDGenerator
}

func (d Deps) withDefaults() Deps {
	if d.Now == nil {
		d.Now = func() time.Time { return time.Now().UTC() }
	}
	if d.NewID == nil {
		d.NewID = core.NewID
	}
	return d
}

func (d Deps) now() time.Time {
	return d.Now().UTC()
}

// load decodes the snapshot under key into v. A missing key reports
// found=false and leaves v untouched.
func (d Deps) load(ctx context.Context, key string, v any) (bool, error) {
	if d.Reader == nil {
		return false, nil
	}
	data, err := d.Reader.Get(ctx, key)
	if errors.Is(err, kv.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("read %s: %w", key, err)
	}
	if err := codec.Unmarshal(data, v); err != nil {
		return false, fmt.Errorf("decode %s: %w", key, err)
	}
	return true, nil
}

// save serializes v and queues it for writing. Callers hold the store
// lock so snapshots reach the writer in mutation order.
func (d Deps) save(ctx context.Context, key string, v any) {
	if d.Writer == nil {
		return
	}
	data, err := codec.Marshal(v)
	if err != nil {
		slog.ErrorContext(ctx, "Failed to encode snapshot", "key", key, "error", err)
		return
	}
	d.Writer.Enqueue(key, data)
}

// event is a change waiting to be published once the store lock is released.
type event struct {
	typ     amqp.EventType
	payload any
}

func (d Deps) publish(ctx context.Context, events ...event) {
	if d.Publisher == nil {
		return
	}
	for _, ev := range events {
		e, err := amqp.NewEvent(ev.typ, ev.payload, d.now())
		if err != nil {
			slog.ErrorContext(ctx, "Failed to build event", "event_type", ev.typ, "error", err)
			continue
		}
		if err := d.Publisher.Publish(ctx, e); err != nil {
			// The mutation already happened; the event is best effort.
			slog.WarnContext(ctx, "Failed to publish event",
				"event_type", ev.typ,
				"event_id", e.ID,
				"error", err)
		}
	}
}
