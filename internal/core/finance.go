package core

import (
	"strings"
	"time"
)

const maxDescriptionLen = 200

type (
	TransactionType string
	Category        string
	RequestStatus   string
)

const (
	Income  TransactionType = "income"
	Expense TransactionType = "expense"
)

const (
	CategoryFood          Category = "food"
	CategoryEntertainment Category = "entertainment"
	CategoryEducation     Category = "education"
	CategoryClothing      Category = "clothing"
	CategorySavings       Category = "savings"
	CategoryOther         Category = "other"
)

const (
	StatusPending  RequestStatus = "pending"
	StatusApproved RequestStatus = "approved"
	StatusRejected RequestStatus = "rejected"
)

// Categories lists every category in display order.
func Categories() []Category {
	return []Category{
		CategoryFood,
		CategoryEntertainment,
		CategoryEducation,
		CategoryClothing,
		CategorySavings,
		CategoryOther,
	}
}

func (c Category) String() string { return string(c) }

func (c Category) IsValid() bool {
	for _, known := range Categories() {
		if c == known {
			return true
		}
	}
	return false
}

func (t TransactionType) String() string { return string(t) }

func (t TransactionType) IsValid() bool {
	return t == Income || t == Expense
}

func (s RequestStatus) String() string { return string(s) }

func (s RequestStatus) IsValid() bool {
	switch s {
	case StatusPending, StatusApproved, StatusRejected:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether no further transition leaves s.
func (s RequestStatus) IsTerminal() bool {
	return s == StatusApproved || s == StatusRejected
}

// allowedTransitions is the full request status table.
var allowedTransitions = map[RequestStatus][]RequestStatus{
	StatusPending: {StatusApproved, StatusRejected},
}

// CanTransitionTo reports whether s -> next is in the status table.
func (s RequestStatus) CanTransitionTo(next RequestStatus) bool {
	for _, to := range allowedTransitions[s] {
		if to == next {
			return true
		}
	}
	return false
}

type (
	// Transaction is an immutable ledger entry. The sign lives in Type;
	// Amount is always positive.
	Transaction struct {
		ID          string          `json:"id"`
		UserID      string          `json:"userId"`
		Amount      Money           `json:"amount"`
		Type        TransactionType `json:"type"`
		Category    Category        `json:"category"`
		Description string          `json:"description"`
		Date        time.Time       `json:"date"`
		RequestID   string          `json:"requestId,omitempty"`
	}

	NewTransaction struct {
		UserID      string
		Amount      Money
		Type        TransactionType
		Category    Category
		Description string
		RequestID   string
	}

	MoneyRequest struct {
		ID         string        `json:"id"`
		ChildID    string        `json:"childId"`
		Amount     Money         `json:"amount"`
		Reason     string        `json:"reason"`
		Category   Category      `json:"category"`
		Status     RequestStatus `json:"status"`
		CreatedAt  time.Time     `json:"createdAt"`
		UpdatedAt  time.Time     `json:"updatedAt"`
		ParentNote string        `json:"parentNote,omitempty"`
	}

	NewMoneyRequest struct {
		ChildID  string
		Amount   Money
		Reason   string
		Category Category
	}

	SavingsGoal struct {
		ID            string     `json:"id"`
		UserID        string     `json:"userId"`
		Title         string     `json:"title"`
		TargetAmount  Money      `json:"targetAmount"`
		CurrentAmount Money      `json:"currentAmount"`
		Deadline      *time.Time `json:"deadline,omitempty"`
		CreatedAt     time.Time  `json:"createdAt"`
		IsCompleted   bool       `json:"isCompleted"`
	}

	NewSavingsGoal struct {
		UserID        string
		Title         string
		TargetAmount  Money
		CurrentAmount Money
		Deadline      *time.Time
	}
)

// SignedAmount is Amount for income and -Amount for expenses.
func (t Transaction) SignedAmount() Money {
	if t.Type == Expense {
		return Money{Cents: -t.Amount.Cents}
	}
	return t.Amount
}

func (n NewTransaction) Validate() error {
	var v validator
	v.check(strings.TrimSpace(n.UserID) != "", "userId", "must not be empty")
	if err := n.Amount.Validate(); err != nil {
		v.addErr("amount", err)
	}
	v.check(n.Type.IsValid(), "type", "must be income or expense")
	v.check(n.Category.IsValid(), "category", "unknown category")
	checkText(&v, "description", n.Description)
	return v.err()
}

func (n NewMoneyRequest) Validate() error {
	var v validator
	v.check(strings.TrimSpace(n.ChildID) != "", "childId", "must not be empty")
	if err := n.Amount.Validate(); err != nil {
		v.addErr("amount", err)
	}
	v.check(n.Category.IsValid(), "category", "unknown category")
	checkText(&v, "reason", n.Reason)
	return v.err()
}

func (n NewSavingsGoal) Validate(now time.Time) error {
	var v validator
	v.check(strings.TrimSpace(n.UserID) != "", "userId", "must not be empty")
	checkText(&v, "title", n.Title)
	if err := n.TargetAmount.Validate(); err != nil {
		v.addErr("targetAmount", err)
	}
	v.check(n.CurrentAmount.Cents >= 0, "currentAmount", "must not be negative")
	if n.Deadline != nil {
		y, m, d := now.UTC().Date()
		today := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
		v.check(!n.Deadline.UTC().Before(today), "deadline", "must not be in the past")
	}
	return v.err()
}

// Remaining is what is still missing to reach the target, never negative.
func (g SavingsGoal) Remaining() Money {
	if g.CurrentAmount.Cents >= g.TargetAmount.Cents {
		return Money{}
	}
	return g.TargetAmount.Sub(g.CurrentAmount)
}

// Progress is the integer percentage of the target reached, capped at 100.
func (g SavingsGoal) Progress() int {
	if g.TargetAmount.Cents <= 0 {
		return 0
	}
	p := g.CurrentAmount.Cents * 100 / g.TargetAmount.Cents
	if p > 100 {
		p = 100
	}
	return int(p)
}

func checkText(v *validator, field, s string) {
	s = strings.TrimSpace(s)
	switch {
	case s == "":
		v.add(field, "must not be empty")
	case len(s) > maxDescriptionLen:
		v.add(field, "too long (max 200 characters)")
	}
}
