package core

import "math"

// SpendingStats summarises one user's ledger.
type SpendingStats struct {
	TotalSpent         Money              `json:"totalSpent"`
	TotalReceived      Money              `json:"totalReceived"`
	ByCategorySpending map[Category]Money `json:"byCategorySpending"`
	// SavingsPercentage is savings-category spending over everything
	// received, as a whole percent.
	SavingsPercentage int   `json:"savingsPercentage"`
	Balance           Money `json:"balance"`
}

// ComputeSpendingStats folds the given transactions into SpendingStats.
// Every category is present in ByCategorySpending, zero when unused.
func ComputeSpendingStats(txs []Transaction) SpendingStats {
	stats := SpendingStats{ByCategorySpending: make(map[Category]Money, len(Categories()))}
	for _, c := range Categories() {
		stats.ByCategorySpending[c] = Money{}
	}

	for _, t := range txs {
		switch t.Type {
		case Income:
			stats.TotalReceived = stats.TotalReceived.Add(t.Amount)
		case Expense:
			stats.TotalSpent = stats.TotalSpent.Add(t.Amount)
			stats.ByCategorySpending[t.Category] = stats.ByCategorySpending[t.Category].Add(t.Amount)
		}
	}

	stats.Balance = stats.TotalReceived.Sub(stats.TotalSpent)
	if stats.TotalReceived.Cents > 0 {
		saved := float64(stats.ByCategorySpending[CategorySavings].Cents)
		stats.SavingsPercentage = int(math.Round(saved * 100 / float64(stats.TotalReceived.Cents)))
	}
	return stats
}
