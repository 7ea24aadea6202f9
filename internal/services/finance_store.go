package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"kidcash/internal/amqp"
	"kidcash/internal/core"
	"kidcash/internal/kv"
)

type financeState struct {
	Transactions []core.Transaction  `json:"transactions"`
	Requests     []core.MoneyRequest `json:"requests"`
	SavingsGoals []core.SavingsGoal  `json:"savingsGoals"`
}

func (s *financeState) normalize() {
	if s.Transactions == nil {
		s.Transactions = []core.Transaction{}
	}
	if s.Requests == nil {
		s.Requests = []core.MoneyRequest{}
	}
	if s.SavingsGoals == nil {
		s.SavingsGoals = []core.SavingsGoal{}
	}
}

// FinanceStore owns transactions, money requests and savings goals.
type FinanceStore struct {
	deps Deps

	mu    sync.RWMutex
	state financeState
}

// NewFinanceStore builds an empty store. Call Load to restore persisted state.
func NewFinanceStore(deps Deps) *FinanceStore {
	s := &FinanceStore{deps: deps.withDefaults()}
	s.state.normalize()
	return s
}

// Load replaces the in-memory state with the persisted snapshot, if any.
func (s *FinanceStore) Load(ctx context.Context) error {
	var st financeState
	found, err := s.deps.load(ctx, kv.FinanceKey, &st)
	if err != nil {
		return fmt.Errorf("load finance state: %w", err)
	}
	st.normalize()

	s.mu.Lock()
	s.state = st
	s.mu.Unlock()

	slog.InfoContext(ctx, "Finance state loaded",
		"found", found,
		"transactions", len(st.Transactions),
		"requests", len(st.Requests),
		"goals", len(st.SavingsGoals))
	return nil
}

func (s *FinanceStore) saveLocked(ctx context.Context) {
	s.deps.save(ctx, kv.FinanceKey, s.state)
}

// AddTransaction validates and records a new ledger entry.
func (s *FinanceStore) AddTransaction(ctx context.Context, in core.NewTransaction) (core.Transaction, error) {
	if err := in.Validate(); err != nil {
		return core.Transaction{}, fmt.Errorf("add transaction: %w", err)
	}

	s.mu.Lock()
	tx := s.appendTransactionLocked(in)
	s.saveLocked(ctx)
	s.mu.Unlock()

	slog.InfoContext(ctx, "Transaction added",
		"transaction_id", tx.ID,
		"user_id", tx.UserID,
		"type", tx.Type,
		"amount_cents", tx.Amount.Cents)
	s.deps.publish(ctx, event{amqp.EventTransactionCreated, tx})
	return tx, nil
}

func (s *FinanceStore) appendTransactionLocked(in core.NewTransaction) core.Transaction {
	tx := core.Transaction{
		ID:          s.deps.NewID(core.PrefixTransaction),
		UserID:      strings.TrimSpace(in.UserID),
		Amount:      in.Amount,
		Type:        in.Type,
		Category:    in.Category,
		Description: strings.TrimSpace(in.Description),
		Date:        s.deps.now(),
		RequestID:   in.RequestID,
	}
	s.state.Transactions = append(s.state.Transactions, tx)
	return tx
}

// Transactions returns every transaction in insertion order.
func (s *FinanceStore) Transactions() []core.Transaction {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]core.Transaction(nil), s.state.Transactions...)
}

// TransactionsByUser returns the user's transactions in insertion order.
func (s *FinanceStore) TransactionsByUser(userID string) []core.Transaction {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []core.Transaction{}
	for _, t := range s.state.Transactions {
		if t.UserID == userID {
			out = append(out, t)
		}
	}
	return out
}

// CreateRequest records a pending money request.
func (s *FinanceStore) CreateRequest(ctx context.Context, in core.NewMoneyRequest) (core.MoneyRequest, error) {
	if err := in.Validate(); err != nil {
		return core.MoneyRequest{}, fmt.Errorf("create request: %w", err)
	}

	s.mu.Lock()
	now := s.deps.now()
	req := core.MoneyRequest{
		ID:        s.deps.NewID(core.PrefixRequest),
		ChildID:   strings.TrimSpace(in.ChildID),
		Amount:    in.Amount,
		Reason:    strings.TrimSpace(in.Reason),
		Category:  in.Category,
		Status:    core.StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.state.Requests = append(s.state.Requests, req)
	s.saveLocked(ctx)
	s.mu.Unlock()

	slog.InfoContext(ctx, "Money request created",
		"money_request_id", req.ID,
		"user_id", req.ChildID,
		"amount_cents", req.Amount.Cents)
	s.deps.publish(ctx, event{amqp.EventRequestCreated, req})
	return req, nil
}

// UpdateRequestStatus moves a pending request to approved or rejected.
// Approval records exactly one income transaction for the child. Any
// other transition fails with *core.TransitionError and changes nothing.
// A nil or blank note keeps the existing parent note.
func (s *FinanceStore) UpdateRequestStatus(ctx context.Context, id string, status core.RequestStatus, note *string) (core.MoneyRequest, error) {
	if !status.IsValid() {
		return core.MoneyRequest{}, fmt.Errorf("update request %s: %w", id,
			core.NewValidationError("status", "must be pending, approved or rejected"))
	}

	s.mu.Lock()
	idx := s.requestIndexLocked(id)
	if idx < 0 {
		s.mu.Unlock()
		return core.MoneyRequest{}, fmt.Errorf("request %s: %w", id, core.ErrNotFound)
	}

	req := s.state.Requests[idx]
	if !req.Status.CanTransitionTo(status) {
		s.mu.Unlock()
		return core.MoneyRequest{}, fmt.Errorf("update request %s: %w", id,
			&core.TransitionError{From: req.Status, To: status})
	}

	req.Status = status
	if note != nil && strings.TrimSpace(*note) != "" {
		req.ParentNote = strings.TrimSpace(*note)
	}
	req.UpdatedAt = s.deps.now()
	s.state.Requests[idx] = req

	events := []event{{amqp.EventRequestStatusChanged, req}}
	if status == core.StatusApproved {
		tx := s.appendTransactionLocked(core.NewTransaction{
			UserID:      req.ChildID,
			Amount:      req.Amount,
			Type:        core.Income,
			Category:    req.Category,
			Description: req.Reason,
			RequestID:   req.ID,
		})
		events = append(events, event{amqp.EventTransactionCreated, tx})
	}
	s.saveLocked(ctx)
	s.mu.Unlock()

	slog.InfoContext(ctx, "Money request reviewed",
		"money_request_id", req.ID,
		"status", req.Status)
	s.deps.publish(ctx, events...)
	return req, nil
}

func (s *FinanceStore) requestIndexLocked(id string) int {
	for i := range s.state.Requests {
		if s.state.Requests[i].ID == id {
			return i
		}
	}
	return -1
}

// Request looks a money request up by id.
func (s *FinanceStore) Request(id string) (core.MoneyRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if idx := s.requestIndexLocked(id); idx >= 0 {
		return s.state.Requests[idx], nil
	}
	return core.MoneyRequest{}, fmt.Errorf("request %s: %w", id, core.ErrNotFound)
}

// Requests returns every money request in creation order.
func (s *FinanceStore) Requests() []core.MoneyRequest {
	return s.filterRequests(func(core.MoneyRequest) bool { return true })
}

// RequestsByChild returns every request the child made, whatever its status.
func (s *FinanceStore) RequestsByChild(childID string) []core.MoneyRequest {
	return s.filterRequests(func(r core.MoneyRequest) bool { return r.ChildID == childID })
}

// PendingRequests returns the requests still waiting for a parent.
func (s *FinanceStore) PendingRequests() []core.MoneyRequest {
	return s.filterRequests(func(r core.MoneyRequest) bool { return r.Status == core.StatusPending })
}

func (s *FinanceStore) filterRequests(keep func(core.MoneyRequest) bool) []core.MoneyRequest {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []core.MoneyRequest{}
	for _, r := range s.state.Requests {
		if keep(r) {
			out = append(out, r)
		}
	}
	return out
}

// CreateSavingsGoal records a new, not yet completed goal.
func (s *FinanceStore) CreateSavingsGoal(ctx context.Context, in core.NewSavingsGoal) (core.SavingsGoal, error) {
	now := s.deps.now()
	if err := in.Validate(now); err != nil {
		return core.SavingsGoal{}, fmt.Errorf("create savings goal: %w", err)
	}

	goal := core.SavingsGoal{
		ID:            s.deps.NewID(core.PrefixGoal),
		UserID:        strings.TrimSpace(in.UserID),
		Title:         strings.TrimSpace(in.Title),
		TargetAmount:  in.TargetAmount,
		CurrentAmount: in.CurrentAmount,
		CreatedAt:     now,
	}
	if in.Deadline != nil {
		d := in.Deadline.UTC()
		goal.Deadline = &d
	}

	s.mu.Lock()
	s.state.SavingsGoals = append(s.state.SavingsGoals, goal)
	s.saveLocked(ctx)
	s.mu.Unlock()

	slog.InfoContext(ctx, "Savings goal created",
		"goal_id", goal.ID,
		"user_id", goal.UserID,
		"amount_cents", goal.TargetAmount.Cents)
	s.deps.publish(ctx, event{amqp.EventGoalCreated, goal})
	return goal, nil
}

// UpdateSavingsGoal adds amount to the goal and recomputes completion.
// The current amount may pass the target; a sum that does not fit in
// int64 cents is rejected with ErrInvalidAmount.
func (s *FinanceStore) UpdateSavingsGoal(ctx context.Context, id string, amount core.Money) (core.SavingsGoal, error) {
	if err := amount.Validate(); err != nil {
		return core.SavingsGoal{}, fmt.Errorf("update savings goal %s: %w", id, core.WrapFieldError("amount", err))
	}

	s.mu.Lock()
	goal, events, err := s.contributeLocked(id, amount)
	if err != nil {
		s.mu.Unlock()
		return core.SavingsGoal{}, err
	}
	s.saveLocked(ctx)
	s.mu.Unlock()

	slog.InfoContext(ctx, "Savings goal updated",
		"goal_id", goal.ID,
		"amount_cents", amount.Cents,
		"completed", goal.IsCompleted)
	s.deps.publish(ctx, events...)
	return goal, nil
}

// AddFundsToGoal contributes amount to the goal and records the matching
// savings expense for the goal owner, as one change.
func (s *FinanceStore) AddFundsToGoal(ctx context.Context, id string, amount core.Money) (core.SavingsGoal, core.Transaction, error) {
	if err := amount.Validate(); err != nil {
		return core.SavingsGoal{}, core.Transaction{}, fmt.Errorf("add funds to goal %s: %w", id, core.WrapFieldError("amount", err))
	}

	s.mu.Lock()
	goal, events, err := s.contributeLocked(id, amount)
	if err != nil {
		s.mu.Unlock()
		return core.SavingsGoal{}, core.Transaction{}, err
	}
	tx := s.appendTransactionLocked(core.NewTransaction{
		UserID:      goal.UserID,
		Amount:      amount,
		Type:        core.Expense,
		Category:    core.CategorySavings,
		Description: fmt.Sprintf("Added to %s savings goal", goal.Title),
	})
	events = append(events, event{amqp.EventTransactionCreated, tx})
	s.saveLocked(ctx)
	s.mu.Unlock()

	slog.InfoContext(ctx, "Funds added to savings goal",
		"goal_id", goal.ID,
		"transaction_id", tx.ID,
		"amount_cents", amount.Cents)
	s.deps.publish(ctx, events...)
	return goal, tx, nil
}

func (s *FinanceStore) contributeLocked(id string, amount core.Money) (core.SavingsGoal, []event, error) {
	idx := s.goalIndexLocked(id)
	if idx < 0 {
		return core.SavingsGoal{}, nil, fmt.Errorf("savings goal %s: %w", id, core.ErrNotFound)
	}

	goal := s.state.SavingsGoals[idx]
	wasCompleted := goal.IsCompleted
	current, err := goal.CurrentAmount.CheckedAdd(amount)
	if err != nil {
		return core.SavingsGoal{}, nil, fmt.Errorf("savings goal %s: %w", id, core.WrapFieldError("amount", err))
	}
	goal.CurrentAmount = current
	goal.IsCompleted = goal.CurrentAmount.Cents >= goal.TargetAmount.Cents
	s.state.SavingsGoals[idx] = goal

	events := []event{{amqp.EventGoalContributed, amqp.GoalContribution{Goal: goal, Amount: amount}}}
	if goal.IsCompleted && !wasCompleted {
		events = append(events, event{amqp.EventGoalCompleted, goal})
	}
	return goal, events, nil
}

// CompleteSavingsGoal marks the goal completed whatever its amount.
func (s *FinanceStore) CompleteSavingsGoal(ctx context.Context, id string) (core.SavingsGoal, error) {
	s.mu.Lock()
	idx := s.goalIndexLocked(id)
	if idx < 0 {
		s.mu.Unlock()
		return core.SavingsGoal{}, fmt.Errorf("savings goal %s: %w", id, core.ErrNotFound)
	}
	goal := s.state.SavingsGoals[idx]
	wasCompleted := goal.IsCompleted
	goal.IsCompleted = true
	s.state.SavingsGoals[idx] = goal
	s.saveLocked(ctx)
	s.mu.Unlock()

	slog.InfoContext(ctx, "Savings goal completed", "goal_id", goal.ID)
	if !wasCompleted {
		s.deps.publish(ctx, event{amqp.EventGoalCompleted, goal})
	}
	return goal, nil
}

func (s *FinanceStore) goalIndexLocked(id string) int {
	for i := range s.state.SavingsGoals {
		if s.state.SavingsGoals[i].ID == id {
			return i
		}
	}
	return -1
}

// SavingsGoal looks a goal up by id.
func (s *FinanceStore) SavingsGoal(id string) (core.SavingsGoal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if idx := s.goalIndexLocked(id); idx >= 0 {
		return s.state.SavingsGoals[idx], nil
	}
	return core.SavingsGoal{}, fmt.Errorf("savings goal %s: %w", id, core.ErrNotFound)
}

// SavingsGoalsByUser returns the user's goals, completed ones included.
func (s *FinanceStore) SavingsGoalsByUser(userID string) []core.SavingsGoal {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []core.SavingsGoal{}
	for _, g := range s.state.SavingsGoals {
		if g.UserID == userID {
			out = append(out, g)
		}
	}
	return out
}

// SpendingStats summarises the user's transactions.
func (s *FinanceStore) SpendingStats(userID string) core.SpendingStats {
	return core.ComputeSpendingStats(s.TransactionsByUser(userID))
}
