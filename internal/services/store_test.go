package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"kidcash/internal/amqp"
	"kidcash/internal/core"
	"kidcash/internal/kv"
	"kidcash/internal/kv/memory"
	"kidcash/internal/worker"
)

var testNow = time.Date(2024, 5, 10, 9, 30, 0, 0, time.UTC)

// recordingWriter keeps every snapshot handed to it.
type recordingWriter struct {
	mu        sync.Mutex
	snapshots map[string][][]byte
}

func newRecordingWriter() *recordingWriter {
	return &recordingWriter{snapshots: make(map[string][][]byte)}
}

func (w *recordingWriter) Enqueue(key string, data []byte) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.snapshots[key] = append(w.snapshots[key], append([]byte(nil), data...))
}

func (w *recordingWriter) count(key string) int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.snapshots[key])
}

func (w *recordingWriter) last(key string) []byte {
	w.mu.Lock()
	defer w.mu.Unlock()
	s := w.snapshots[key]
	if len(s) == 0 {
		return nil
	}
	return s[len(s)-1]
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []*amqp.Event
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, e *amqp.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, e)
	return nil
}

func (p *recordingPublisher) types() []amqp.EventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]amqp.EventType, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}

// sequentialIDs returns prefix_1, prefix_2, ... per prefix.
func sequentialIDs() core.IDGenerator {
	var mu sync.Mutex
	counters := make(map[string]int)
	return func(prefix string) string {
		mu.Lock()
		defer mu.Unlock()
		counters[prefix]++
		return fmt.Sprintf("%s_%d", prefix, counters[prefix])
	}
}

type testEnv struct {
	deps      Deps
	writer    *recordingWriter
	publisher *recordingPublisher
}

func newTestEnv() *testEnv {
	w := newRecordingWriter()
	p := &recordingPublisher{}
	return &testEnv{
		deps: Deps{
			Writer:    w,
			Publisher: p,
			Now:       func() time.Time { return testNow },
			NewID:     sequentialIDs(),
		},
		writer:    w,
		publisher: p,
	}
}

func TestDeps_Defaults(t *testing.T) {
	d := Deps{}.withDefaults()
	if d.Now == nil || d.NewID == nil {
		t.Fatal("withDefaults should set Now and NewID")
	}
	if d.now().Location() != time.UTC {
		t.Errorf("now() location = %v, want UTC", d.now().Location())
	}

	// Nil collaborators are skipped.
	ctx := context.Background()
	found, err := d.load(ctx, kv.FinanceKey, &financeState{})
	if found || err != nil {
		t.Errorf("load without reader = (%v, %v), want (false, nil)", found, err)
	}
	d.save(ctx, kv.FinanceKey, financeState{})
	d.publish(ctx, event{amqp.EventSettingsChanged, core.DefaultSettings()})
}

func TestDeps_LoadDecodeError(t *testing.T) {
	store := memory.New()
	ctx := context.Background()
	if err := store.Set(ctx, kv.FinanceKey, []byte(`{"transactions": "nope"`)); err != nil {
		t.Fatal(err)
	}

	s := NewFinanceStore(Deps{Reader: store})
	if err := s.Load(ctx); err == nil {
		t.Fatal("Load should fail on a corrupt snapshot")
	}
}

func TestDeps_PublishFailureDoesNotFailMutation(t *testing.T) {
	env := newTestEnv()
	env.publisher.err = errors.New("broker down")
	s := NewSettingsStore(env.deps)

	if err := s.SetCurrency(context.Background(), core.EUR); err != nil {
		t.Fatalf("SetCurrency() error = %v", err)
	}
	if got := s.Settings().Currency; got != core.EUR {
		t.Errorf("currency = %v, want EUR", got)
	}
}

// stalledPublisher never answers until ctx ends.
type stalledPublisher struct{}

func (stalledPublisher) Publish(ctx context.Context, _ *amqp.Event) error {
	<-ctx.Done()
	return ctx.Err()
}

func TestDeps_SlowBrokerDoesNotDelayMutation(t *testing.T) {
	env := newTestEnv()
	relay := worker.NewEventRelay(stalledPublisher{}, worker.EventRelayConfig{PublishTimeout: time.Minute})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := relay.Start(ctx); err != nil {
		t.Fatal(err)
	}
	env.deps.Publisher = relay
	s := NewFinanceStore(env.deps)

	start := time.Now()
	for i := 0; i < 3; i++ {
		if _, err := s.AddTransaction(ctx, core.NewTransaction{
			UserID: "2", Amount: core.Cents(100), Type: core.Income,
			Category: core.CategoryOther, Description: "Allowance",
		}); err != nil {
			t.Fatalf("AddTransaction() error = %v", err)
		}
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("mutations took %v behind a stalled broker", elapsed)
	}
	if len(s.Transactions()) != 3 {
		t.Errorf("transactions = %d, want 3", len(s.Transactions()))
	}
}

// Stores write through a real Persister into a memory KV store, and fresh
// stores rehydrate the same state from it.
func TestStores_PersistAndRehydrate(t *testing.T) {
	ctx := context.Background()
	backend := memory.New()
	persister := worker.NewPersister(backend, worker.DefaultPersisterConfig())
	deps := Deps{Reader: backend, Writer: persister, Now: func() time.Time { return testNow }, NewID: sequentialIDs()}

	finance := NewFinanceStore(deps)
	family := NewFamilyStore(deps, core.SeedDirectory())
	settings := NewSettingsStore(deps)

	req, err := finance.CreateRequest(ctx, core.NewMoneyRequest{ChildID: "2", Amount: core.Cents(1500), Reason: "Book", Category: core.CategoryEducation})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := finance.UpdateRequestStatus(ctx, req.ID, core.StatusApproved, nil); err != nil {
		t.Fatal(err)
	}
	if _, err := finance.CreateSavingsGoal(ctx, core.NewSavingsGoal{UserID: "2", Title: "Bike", TargetAmount: core.Cents(10000)}); err != nil {
		t.Fatal(err)
	}
	if _, err := family.Login(ctx, "1"); err != nil {
		t.Fatal(err)
	}
	if _, err := family.AddFamilyRule(ctx, core.NewFamilyRule{Title: "Chores", Description: "Weekly chores"}); err != nil {
		t.Fatal(err)
	}
	if _, err := family.SwitchUser(ctx, "2"); err != nil {
		t.Fatal(err)
	}
	if err := settings.SetLanguage(ctx, core.Russian); err != nil {
		t.Fatal(err)
	}

	if err := persister.Flush(ctx); err != nil {
		t.Fatalf("Flush() error = %v", err)
	}

	finance2 := NewFinanceStore(deps)
	family2 := NewFamilyStore(deps, core.SeedDirectory())
	settings2 := NewSettingsStore(deps)
	for _, l := range []interface{ Load(context.Context) error }{finance2, family2, settings2} {
		if err := l.Load(ctx); err != nil {
			t.Fatalf("Load() error = %v", err)
		}
	}

	if got := len(finance2.Transactions()); got != 1 {
		t.Errorf("rehydrated transactions = %d, want 1", got)
	}
	got, err := finance2.Request(req.ID)
	if err != nil || got.Status != core.StatusApproved {
		t.Errorf("rehydrated request = %+v, %v", got, err)
	}
	if !got.CreatedAt.Equal(testNow) {
		t.Errorf("rehydrated createdAt = %v, want %v", got.CreatedAt, testNow)
	}
	if got := len(finance2.SavingsGoalsByUser("2")); got != 1 {
		t.Errorf("rehydrated goals = %d, want 1", got)
	}

	user, ok := family2.CurrentUser()
	if !ok || user.ID != "2" {
		t.Errorf("rehydrated current user = %+v, %v", user, ok)
	}
	fam, _ := family2.Family()
	if len(fam.Rules) != 4 {
		t.Errorf("rehydrated rules = %d, want 4", len(fam.Rules))
	}

	if got := settings2.Settings(); got.Language != core.Russian || got.Currency != core.USD {
		t.Errorf("rehydrated settings = %+v", got)
	}
}

func TestStores_LoadEmptyBackend(t *testing.T) {
	ctx := context.Background()
	deps := Deps{Reader: memory.New()}

	finance := NewFinanceStore(deps)
	if err := finance.Load(ctx); err != nil {
		t.Fatal(err)
	}
	if txs := finance.Transactions(); txs == nil || len(txs) != 0 {
		t.Errorf("Transactions() = %#v, want empty non-nil", txs)
	}

	family := NewFamilyStore(deps, core.SeedDirectory())
	if err := family.Load(ctx); err != nil {
		t.Fatal(err)
	}
	if _, ok := family.CurrentUser(); ok {
		t.Error("fresh family store should have no session")
	}

	settings := NewSettingsStore(deps)
	if err := settings.Load(ctx); err != nil {
		t.Fatal(err)
	}
	if got := settings.Settings(); got != core.DefaultSettings() {
		t.Errorf("Settings() = %+v, want defaults", got)
	}
}
