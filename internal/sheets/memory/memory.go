// Package memory keeps the exported ledger in process, for local runs and tests.
package memory

import (
	"context"
	"fmt"
	"sync"

	"kidcash/internal/sheets"
)

type Ledger struct {
	mu   sync.Mutex
	rows map[int][]sheets.LedgerRow
}

var _ sheets.Ledger = (*Ledger)(nil)

func New() *Ledger {
	return &Ledger{rows: make(map[int][]sheets.LedgerRow)}
}

// Append stores the entry and returns a synthetic row reference.
func (l *Ledger) Append(_ context.Context, e sheets.LedgerEntry) (string, error) {
	tx := e.Transaction
	if tx.ID == "" {
		return "", fmt.Errorf("ledger entry without transaction id")
	}
	year := tx.Date.UTC().Year()

	l.mu.Lock()
	defer l.mu.Unlock()
	l.rows[year] = append(l.rows[year], sheets.LedgerRow{
		Date:          tx.Date.UTC(),
		TransactionID: tx.ID,
		UserName:      e.UserName,
		Type:          tx.Type,
		Category:      tx.Category,
		Description:   tx.Description,
		Amount:        tx.SignedAmount(),
	})
	return fmt.Sprintf("mem:%d:%d", year, len(l.rows[year])), nil
}

func (l *Ledger) ListLedger(_ context.Context, year int) ([]sheets.LedgerRow, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]sheets.LedgerRow(nil), l.rows[year]...), nil
}
