package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"kidcash/internal/kv"
	"kidcash/internal/kv/memory"
)

// flakyWriter fails the first n writes, then delegates to a memory store.
type flakyWriter struct {
	mu       sync.Mutex
	failures int
	calls    int
	store    *memory.Store
}

func (w *flakyWriter) Set(ctx context.Context, key string, value []byte) error {
	w.mu.Lock()
	w.calls++
	fail := w.failures > 0
	if fail {
		w.failures--
	}
	w.mu.Unlock()
	if fail {
		return errors.New("backend unavailable")
	}
	return w.store.Set(ctx, key, value)
}

func (w *flakyWriter) Remove(ctx context.Context, key string) error {
	return w.store.Remove(ctx, key)
}

func (w *flakyWriter) Calls() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.calls
}

func TestDefaultPersisterConfig(t *testing.T) {
	config := DefaultPersisterConfig()

	if config.FlushInterval != 2*time.Second {
		t.Errorf("expected FlushInterval 2s, got %v", config.FlushInterval)
	}
	if config.MaxRetries != 3 {
		t.Errorf("expected MaxRetries 3, got %d", config.MaxRetries)
	}
	if config.WriteTimeout != 5*time.Second {
		t.Errorf("expected WriteTimeout 5s, got %v", config.WriteTimeout)
	}
}

func TestPersister_LatestSnapshotWins(t *testing.T) {
	store := memory.New()
	p := NewPersister(store, DefaultPersisterConfig())

	p.Enqueue(kv.FinanceKey, []byte(`{"v":1}`))
	p.Enqueue(kv.FinanceKey, []byte(`{"v":2}`))
	p.Enqueue(kv.SettingsKey, []byte(`{"currency":"EUR"}`))

	if got := p.Pending(); got != 2 {
		t.Fatalf("Pending() = %d, want 2", got)
	}
	if err := p.Flush(context.Background()); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	got, err := store.Get(context.Background(), kv.FinanceKey)
	if err != nil || string(got) != `{"v":2}` {
		t.Fatalf("finance snapshot = %q, err %v", got, err)
	}
	if stats := p.Stats(); stats.Written != 2 || stats.Pending != 0 {
		t.Errorf("unexpected stats: %+v", stats)
	}
}

func TestPersister_EnqueueCopiesData(t *testing.T) {
	store := memory.New()
	p := NewPersister(store, DefaultPersisterConfig())

	data := []byte(`{"v":1}`)
	p.Enqueue(kv.UserKey, data)
	data[5] = '9'

	if err := p.Flush(context.Background()); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	got, _ := store.Get(context.Background(), kv.UserKey)
	if string(got) != `{"v":1}` {
		t.Errorf("snapshot = %q, caller mutation leaked", got)
	}
}

func TestPersister_RetriesThenSucceeds(t *testing.T) {
	w := &flakyWriter{failures: 2, store: memory.New()}
	p := NewPersister(w, PersisterConfig{FlushInterval: time.Second, MaxRetries: 3})

	p.Enqueue(kv.FinanceKey, []byte(`{}`))

	for i := 0; i < 2; i++ {
		if err := p.Flush(context.Background()); err == nil {
			t.Fatalf("flush #%d should report the write failure", i)
		}
		if p.Pending() != 1 {
			t.Fatalf("snapshot should stay queued after failure #%d", i)
		}
	}
	if err := p.Flush(context.Background()); err != nil {
		t.Fatalf("third flush: %v", err)
	}
	if _, err := w.store.Get(context.Background(), kv.FinanceKey); err != nil {
		t.Fatalf("snapshot not written: %v", err)
	}
	if stats := p.Stats(); stats.Failed != 2 || stats.Written != 1 || stats.Dropped != 0 {
		t.Errorf("unexpected stats: %+v", stats)
	}
}

func TestPersister_DropsAfterMaxRetries(t *testing.T) {
	w := &flakyWriter{failures: 100, store: memory.New()}
	p := NewPersister(w, PersisterConfig{MaxRetries: 1})

	p.Enqueue(kv.FinanceKey, []byte(`{}`))
	_ = p.Flush(context.Background()) // attempt 1, retried
	_ = p.Flush(context.Background()) // attempt 2, dropped
	_ = p.Flush(context.Background()) // nothing left

	if w.Calls() != 2 {
		t.Errorf("writer called %d times, want 2", w.Calls())
	}
	if stats := p.Stats(); stats.Dropped != 1 || stats.Pending != 0 {
		t.Errorf("unexpected stats: %+v", stats)
	}
}

func TestPersister_NewerSnapshotResetsRetries(t *testing.T) {
	w := &flakyWriter{failures: 1, store: memory.New()}
	p := NewPersister(w, PersisterConfig{MaxRetries: 0})

	p.Enqueue(kv.FinanceKey, []byte(`{"v":1}`))
	_ = p.Flush(context.Background()) // dropped, MaxRetries is 0

	p.Enqueue(kv.FinanceKey, []byte(`{"v":2}`))
	if err := p.Flush(context.Background()); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	got, _ := w.store.Get(context.Background(), kv.FinanceKey)
	if string(got) != `{"v":2}` {
		t.Errorf("snapshot = %q", got)
	}
}

func TestPersister_StartTwice(t *testing.T) {
	p := NewPersister(memory.New(), DefaultPersisterConfig())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := p.Start(ctx); err != nil {
		t.Fatalf("first Start: %v", err)
	}
	defer p.Stop(context.Background())

	if err := p.Start(ctx); err == nil {
		t.Error("expected error when starting already running persister")
	}
	if !p.IsRunning() {
		t.Error("persister should be running")
	}
}

func TestPersister_BackgroundFlushOnSignal(t *testing.T) {
	store := memory.New()
	p := NewPersister(store, PersisterConfig{FlushInterval: time.Hour})

	if err := p.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer p.Stop(context.Background())

	p.Enqueue(kv.SettingsKey, []byte(`{"language":"ru"}`))

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if _, err := store.Get(context.Background(), kv.SettingsKey); err == nil {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("snapshot was not flushed in the background")
}

func TestPersister_StopFlushesPending(t *testing.T) {
	store := memory.New()
	p := NewPersister(store, PersisterConfig{FlushInterval: time.Hour})

	// Not started: Stop still drains the queue.
	p.Enqueue(kv.UserKey, []byte(`{}`))
	if err := p.Stop(context.Background()); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if _, err := store.Get(context.Background(), kv.UserKey); err != nil {
		t.Fatalf("pending snapshot not flushed on stop: %v", err)
	}
	if p.IsRunning() {
		t.Error("persister should not be running after Stop")
	}
}

func TestPersister_FlushWithCancelledContextKeepsQueue(t *testing.T) {
	p := NewPersister(memory.New(), DefaultPersisterConfig())
	p.Enqueue(kv.FinanceKey, []byte(`{}`))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := p.Flush(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("Flush error = %v, want context.Canceled", err)
	}
	if p.Pending() != 1 {
		t.Error("snapshot should remain queued")
	}
}
