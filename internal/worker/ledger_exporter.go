package worker

import (
	"context"
	"fmt"
	"log/slog"

	"kidcash/internal/amqp"
	"kidcash/internal/core"
	"kidcash/internal/sheets"
)

// LedgerExporter copies every created transaction to the external ledger.
type LedgerExporter struct {
	ledger    sheets.Ledger
	directory core.Directory
}

func NewLedgerExporter(ledger sheets.Ledger, directory core.Directory) *LedgerExporter {
	return &LedgerExporter{ledger: ledger, directory: directory}
}

// HandleEvent exports transaction.created events and ignores the rest.
// Redelivered events whose transaction is already in the ledger are
// acknowledged without writing again. A returned error requeues the event.
func (w *LedgerExporter) HandleEvent(ctx context.Context, e *amqp.Event) error {
	if e.Type != amqp.EventTransactionCreated {
		slog.DebugContext(ctx, "Ignoring event", "event_type", e.Type, "event_id", e.ID)
		return nil
	}

	var tx core.Transaction
	if err := e.Decode(&tx); err != nil || tx.ID == "" {
		// Requeueing a payload that never decodes would loop forever.
		slog.ErrorContext(ctx, "Dropping malformed transaction event",
			"event_id", e.ID,
			"error", err)
		return nil
	}

	year := tx.Date.UTC().Year()
	rows, err := w.ledger.ListLedger(ctx, year)
	if err != nil {
		return fmt.Errorf("read ledger %d: %w", year, err)
	}
	if sheets.Contains(rows, tx.ID) {
		slog.InfoContext(ctx, "Transaction already exported",
			"transaction_id", tx.ID,
			"event_id", e.ID)
		return nil
	}

	userName := tx.UserID
	if u, ok := w.directory.User(tx.UserID); ok {
		userName = u.Name
	}

	ref, err := w.ledger.Append(ctx, sheets.LedgerEntry{Transaction: tx, UserName: userName})
	if err != nil {
		return fmt.Errorf("append transaction %s: %w", tx.ID, err)
	}

	slog.InfoContext(ctx, "Exported transaction to ledger",
		"transaction_id", tx.ID,
		"user_id", tx.UserID,
		"amount_cents", tx.Amount.Cents,
		"ref", ref)
	return nil
}
