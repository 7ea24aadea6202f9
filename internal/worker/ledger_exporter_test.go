package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"kidcash/internal/amqp"
	"kidcash/internal/core"
	"kidcash/internal/sheets"
	"kidcash/internal/sheets/memory"
)

type failingLedger struct {
	sheets.Ledger
	err error
}

func (f failingLedger) ListLedger(context.Context, int) ([]sheets.LedgerRow, error) {
	return nil, f.err
}

func txEvent(t *testing.T, tx core.Transaction) *amqp.Event {
	t.Helper()
	e, err := amqp.NewEvent(amqp.EventTransactionCreated, tx, tx.Date)
	if err != nil {
		t.Fatalf("NewEvent: %v", err)
	}
	return e
}

func TestLedgerExporter_ExportsOnce(t *testing.T) {
	ledger := memory.New()
	w := NewLedgerExporter(ledger, core.SeedDirectory())
	ctx := context.Background()

	tx := core.Transaction{
		ID:          "trans_1",
		UserID:      "2",
		Amount:      core.Money{Cents: 500},
		Type:        core.Income,
		Category:    core.CategoryOther,
		Description: "Allowance",
		Date:        time.Date(2025, 1, 10, 8, 0, 0, 0, time.UTC),
	}
	e := txEvent(t, tx)

	if err := w.HandleEvent(ctx, e); err != nil {
		t.Fatalf("HandleEvent: %v", err)
	}
	// Redelivery of the same event must not duplicate the row.
	if err := w.HandleEvent(ctx, e); err != nil {
		t.Fatalf("HandleEvent redelivery: %v", err)
	}

	rows, _ := ledger.ListLedger(ctx, 2025)
	if len(rows) != 1 {
		t.Fatalf("expected 1 row, got %d", len(rows))
	}
	if rows[0].UserName != "Emma Johnson" {
		t.Errorf("user name = %q, want Emma Johnson", rows[0].UserName)
	}
}

func TestLedgerExporter_IgnoresOtherEvents(t *testing.T) {
	ledger := memory.New()
	w := NewLedgerExporter(ledger, core.SeedDirectory())

	e, _ := amqp.NewEvent(amqp.EventSettingsChanged, core.DefaultSettings(), time.Now())
	if err := w.HandleEvent(context.Background(), e); err != nil {
		t.Fatalf("HandleEvent: %v", err)
	}
	if rows, _ := ledger.ListLedger(context.Background(), time.Now().Year()); len(rows) != 0 {
		t.Errorf("unexpected rows: %v", rows)
	}
}

func TestLedgerExporter_DropsMalformedPayload(t *testing.T) {
	w := NewLedgerExporter(memory.New(), core.SeedDirectory())
	e := &amqp.Event{ID: "e1", Type: amqp.EventTransactionCreated, Payload: []byte(`"nope"`)}

	if err := w.HandleEvent(context.Background(), e); err != nil {
		t.Fatalf("malformed payload should be acknowledged, got %v", err)
	}
}

func TestLedgerExporter_LedgerErrorRequeues(t *testing.T) {
	boom := errors.New("quota exceeded")
	w := NewLedgerExporter(failingLedger{Ledger: memory.New(), err: boom}, core.SeedDirectory())

	e := txEvent(t, core.Transaction{ID: "trans_1", UserID: "9", Date: time.Now()})
	if err := w.HandleEvent(context.Background(), e); !errors.Is(err, boom) {
		t.Fatalf("HandleEvent error = %v, want %v", err, boom)
	}
}
