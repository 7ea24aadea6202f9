package google

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"kidcash/internal/core"
	"kidcash/internal/sheets"
)

const dateLayout = "2006-01-02"

// parseLedgerRows converts a values matrix (as returned by Sheets API)
// into ledger rows. The header and rows without a transaction id or a
// parsable date and amount are skipped.
func parseLedgerRows(values [][]any) []sheets.LedgerRow {
	out := make([]sheets.LedgerRow, 0, len(values))
	for _, raw := range values {
		cols := toStrings(raw)
		if len(cols) < 7 {
			continue
		}
		date, err := time.Parse(dateLayout, cols[0])
		if err != nil {
			continue
		}
		id := cols[1]
		if id == "" {
			continue
		}
		cents, ok := parseSignedCents(cols[6])
		if !ok {
			continue
		}
		out = append(out, sheets.LedgerRow{
			Date:          date,
			TransactionID: id,
			UserName:      cols[2],
			Type:          core.TransactionType(cols[3]),
			Category:      core.Category(cols[4]),
			Description:   cols[5],
			Amount:        core.Money{Cents: cents},
		})
	}
	return out
}

// parseSignedCents accepts "12.5", "-3,20" or a plain number.
func parseSignedCents(s string) (int64, bool) {
	s = strings.TrimSpace(s)
	neg := strings.HasPrefix(s, "-")
	s = strings.TrimPrefix(s, "-")
	if s == "" {
		return 0, false
	}
	if s == "0" || s == "0.0" || s == "0.00" {
		return 0, true
	}
	cents, err := core.ParseDecimalToCents(s)
	if err != nil {
		// Sheets may render large numbers in exponent form.
		f, ferr := strconv.ParseFloat(s, 64)
		if ferr != nil || f < 0 {
			return 0, false
		}
		cents = int64(f*100 + 0.5)
	}
	if neg {
		cents = -cents
	}
	return cents, true
}

func toStrings(in []any) []string {
	out := make([]string, len(in))
	for i, v := range in {
		out[i] = strings.TrimSpace(fmt.Sprint(v))
	}
	return out
}
