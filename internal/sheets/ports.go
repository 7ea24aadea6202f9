// Package sheets defines the ledger export ports; adapters live in the
// google and memory subpackages.
package sheets

import (
	"context"
	"time"

	"kidcash/internal/core"
)

// LedgerEntry is one transaction as it appears in the exported ledger.
type LedgerEntry struct {
	Transaction core.Transaction
	UserName    string
}

// LedgerRow is a row read back from the ledger.
type LedgerRow struct {
	Date          time.Time
	TransactionID string
	UserName      string
	Type          core.TransactionType
	Category      core.Category
	Description   string
	// Amount is signed: negative for expenses.
	Amount core.Money
}

// Ports for outbound adapters.
type (
	LedgerWriter interface {
		Append(ctx context.Context, e LedgerEntry) (rowRef string, err error)
	}

	LedgerReader interface {
		// ListLedger returns every row of the given year's ledger.
		ListLedger(ctx context.Context, year int) ([]LedgerRow, error)
	}

	Ledger interface {
		LedgerWriter
		LedgerReader
	}
)

// Contains reports whether rows hold transaction id.
func Contains(rows []LedgerRow, id string) bool {
	for _, r := range rows {
		if r.TransactionID == id {
			return true
		}
	}
	return false
}
