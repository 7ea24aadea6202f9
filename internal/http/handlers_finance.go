package http

import (
	"net/http"
	"sync/atomic"

	"kidcash/internal/core"
	klog "kidcash/internal/log"
)

type (
	createTransactionRequest struct {
		UserID      string `json:"userId" validate:"omitempty,max=64"`
		Amount      Amount `json:"amount"`
		Type        string `json:"type" validate:"required,oneof=income expense"`
		Category    string `json:"category" validate:"required"`
		Description string `json:"description" validate:"required,max=200"`
	}

	createMoneyRequestRequest struct {
		ChildID  string `json:"childId" validate:"omitempty,max=64"`
		Amount   Amount `json:"amount"`
		Reason   string `json:"reason" validate:"required,max=200"`
		Category string `json:"category" validate:"required"`
	}

	updateStatusRequest struct {
		Status string  `json:"status" validate:"required,oneof=pending approved rejected"`
		Note   *string `json:"note" validate:"omitempty,max=500"`
	}

	createGoalRequest struct {
		UserID        string  `json:"userId" validate:"omitempty,max=64"`
		Title         string  `json:"title" validate:"required,max=200"`
		TargetAmount  Amount  `json:"targetAmount"`
		CurrentAmount Amount  `json:"currentAmount"`
		Deadline      *string `json:"deadline"`
	}

	amountRequest struct {
		Amount Amount `json:"amount"`
	}
)

// goalView adds the derived progress figures a client shows next to a goal.
type goalView struct {
	core.SavingsGoal
	Progress  int        `json:"progress"`
	Remaining core.Money `json:"remaining"`
}

func newGoalView(g core.SavingsGoal) goalView {
	return goalView{SavingsGoal: g, Progress: g.Progress(), Remaining: g.Remaining()}
}

func newGoalViews(goals []core.SavingsGoal) []goalView {
	out := make([]goalView, 0, len(goals))
	for _, g := range goals {
		out = append(out, newGoalView(g))
	}
	return out
}

// resolveUserID picks the explicit id when given and the session user otherwise.
func (s *Server) resolveUserID(explicit string) (string, error) {
	if id := sanitizeInput(explicit); id != "" {
		return id, nil
	}
	user, ok := s.family.CurrentUser()
	if !ok {
		return "", core.ErrNoSession
	}
	return user.ID, nil
}

// requireParent checks that a parent is in session.
func (s *Server) requireParent() (core.User, error) {
	user, ok := s.family.CurrentUser()
	if !ok {
		return core.User{}, core.ErrNoSession
	}
	if !user.IsParent() {
		return core.User{}, core.ErrForbidden
	}
	return user, nil
}

func (s *Server) handleListTransactions(w http.ResponseWriter, r *http.Request) {
	if userID := queryValue(r, "userId"); userID != "" {
		OK(w, s.finance.TransactionsByUser(userID))
		return
	}
	OK(w, s.finance.Transactions())
}

func (s *Server) handleCreateTransaction(w http.ResponseWriter, r *http.Request) {
	var req createTransactionRequest
	if err := decodeJSON(w, r, s.validate, &req); err != nil {
		writeError(w, r, err, klog.OpCreate)
		return
	}
	userID, err := s.resolveUserID(req.UserID)
	if err != nil {
		writeError(w, r, err, klog.OpCreate)
		return
	}
	amount, err := req.Amount.Money("amount")
	if err != nil {
		writeError(w, r, err, klog.OpCreate)
		return
	}

	tx, err := s.finance.AddTransaction(r.Context(), core.NewTransaction{
		UserID:      userID,
		Amount:      amount,
		Type:        core.TransactionType(req.Type),
		Category:    core.Category(sanitizeInput(req.Category)),
		Description: sanitizeInput(req.Description),
	})
	if err != nil {
		writeError(w, r, err, klog.OpCreate)
		return
	}
	atomic.AddInt64(&s.appMetrics.transactionsCreated, 1)
	Created(w, tx)
}

func (s *Server) handleListRequests(w http.ResponseWriter, r *http.Request) {
	childID := queryValue(r, "childId")
	status := core.RequestStatus(queryValue(r, "status"))
	if status != "" && !status.IsValid() {
		writeError(w, r, core.NewValidationError("status", "must be pending, approved or rejected"), klog.OpRead)
		return
	}

	var requests []core.MoneyRequest
	switch {
	case childID != "":
		requests = s.finance.RequestsByChild(childID)
	case status == core.StatusPending:
		requests = s.finance.PendingRequests()
	default:
		requests = s.finance.Requests()
	}

	if status != "" {
		filtered := make([]core.MoneyRequest, 0, len(requests))
		for _, req := range requests {
			if req.Status == status {
				filtered = append(filtered, req)
			}
		}
		requests = filtered
	}
	OK(w, requests)
}

func (s *Server) handleCreateRequest(w http.ResponseWriter, r *http.Request) {
	var req createMoneyRequestRequest
	if err := decodeJSON(w, r, s.validate, &req); err != nil {
		writeError(w, r, err, klog.OpCreate)
		return
	}

	user, ok := s.family.CurrentUser()
	if !ok {
		writeError(w, r, core.ErrNoSession, klog.OpCreate)
		return
	}
	childID := sanitizeInput(req.ChildID)
	if childID == "" {
		childID = user.ID
	}
	// A child can only ask on their own behalf.
	if !user.IsParent() && childID != user.ID {
		writeError(w, r, core.ErrForbidden, klog.OpCreate)
		return
	}

	amount, err := req.Amount.Money("amount")
	if err != nil {
		writeError(w, r, err, klog.OpCreate)
		return
	}
	created, err := s.finance.CreateRequest(r.Context(), core.NewMoneyRequest{
		ChildID:  childID,
		Amount:   amount,
		Reason:   sanitizeInput(req.Reason),
		Category: core.Category(sanitizeInput(req.Category)),
	})
	if err != nil {
		writeError(w, r, err, klog.OpCreate)
		return
	}
	Created(w, created)
}

func (s *Server) handleGetRequest(w http.ResponseWriter, r *http.Request) {
	req, err := s.finance.Request(r.PathValue("id"))
	if err != nil {
		writeError(w, r, err, klog.OpRead)
		return
	}
	OK(w, req)
}

func (s *Server) handleUpdateRequestStatus(w http.ResponseWriter, r *http.Request) {
	var req updateStatusRequest
	if err := decodeJSON(w, r, s.validate, &req); err != nil {
		writeError(w, r, err, klog.OpUpdate)
		return
	}
	parent, err := s.requireParent()
	if err != nil {
		writeError(w, r, err, klog.OpUpdate)
		return
	}

	updated, err := s.finance.UpdateRequestStatus(r.Context(), r.PathValue("id"), core.RequestStatus(req.Status), sanitizePtr(req.Note))
	if err != nil {
		writeError(w, r, err, klog.OpUpdate)
		return
	}

	atomic.AddInt64(&s.appMetrics.requestsReviewed, 1)
	if updated.Status == core.StatusApproved {
		atomic.AddInt64(&s.appMetrics.transactionsCreated, 1)
	}
	klog.FromContext(r.Context()).InfoContext(r.Context(), "Money request reviewed",
		klog.FieldMoneyRequest, updated.ID,
		klog.FieldStatus, updated.Status,
		klog.FieldUserID, parent.ID)
	OK(w, updated)
}

func (s *Server) handleListGoals(w http.ResponseWriter, r *http.Request) {
	userID, err := s.resolveUserID(queryValue(r, "userId"))
	if err != nil {
		writeError(w, r, err, klog.OpRead)
		return
	}
	OK(w, newGoalViews(s.finance.SavingsGoalsByUser(userID)))
}

func (s *Server) handleCreateGoal(w http.ResponseWriter, r *http.Request) {
	var req createGoalRequest
	if err := decodeJSON(w, r, s.validate, &req); err != nil {
		writeError(w, r, err, klog.OpCreate)
		return
	}
	userID, err := s.resolveUserID(req.UserID)
	if err != nil {
		writeError(w, r, err, klog.OpCreate)
		return
	}
	target, err := req.TargetAmount.Money("targetAmount")
	if err != nil {
		writeError(w, r, err, klog.OpCreate)
		return
	}
	var current core.Money
	if req.CurrentAmount.IsSet() {
		if current, err = req.CurrentAmount.Money("currentAmount"); err != nil {
			writeError(w, r, err, klog.OpCreate)
			return
		}
	}
	deadline, err := parseDeadline(req.Deadline)
	if err != nil {
		writeError(w, r, err, klog.OpCreate)
		return
	}

	goal, err := s.finance.CreateSavingsGoal(r.Context(), core.NewSavingsGoal{
		UserID:        userID,
		Title:         sanitizeInput(req.Title),
		TargetAmount:  target,
		CurrentAmount: current,
		Deadline:      deadline,
	})
	if err != nil {
		writeError(w, r, err, klog.OpCreate)
		return
	}
	Created(w, newGoalView(goal))
}

func (s *Server) handleGetGoal(w http.ResponseWriter, r *http.Request) {
	goal, err := s.finance.SavingsGoal(r.PathValue("id"))
	if err != nil {
		writeError(w, r, err, klog.OpRead)
		return
	}
	OK(w, newGoalView(goal))
}

// handleContributeToGoal adds to a goal without touching the ledger.
func (s *Server) handleContributeToGoal(w http.ResponseWriter, r *http.Request) {
	amount, ok := s.decodeAmount(w, r)
	if !ok {
		return
	}
	goal, err := s.finance.UpdateSavingsGoal(r.Context(), r.PathValue("id"), amount)
	if err != nil {
		writeError(w, r, err, klog.OpUpdate)
		return
	}
	atomic.AddInt64(&s.appMetrics.goalContributions, 1)
	OK(w, newGoalView(goal))
}

// handleAddFundsToGoal moves money into a goal and records the matching expense.
func (s *Server) handleAddFundsToGoal(w http.ResponseWriter, r *http.Request) {
	amount, ok := s.decodeAmount(w, r)
	if !ok {
		return
	}
	goal, tx, err := s.finance.AddFundsToGoal(r.Context(), r.PathValue("id"), amount)
	if err != nil {
		writeError(w, r, err, klog.OpUpdate)
		return
	}
	atomic.AddInt64(&s.appMetrics.goalContributions, 1)
	atomic.AddInt64(&s.appMetrics.transactionsCreated, 1)
	OK(w, map[string]any{
		"goal":        newGoalView(goal),
		"transaction": tx,
	})
}

func (s *Server) decodeAmount(w http.ResponseWriter, r *http.Request) (core.Money, bool) {
	var req amountRequest
	if err := decodeJSON(w, r, s.validate, &req); err != nil {
		writeError(w, r, err, klog.OpUpdate)
		return core.Money{}, false
	}
	amount, err := req.Amount.Money("amount")
	if err != nil {
		writeError(w, r, err, klog.OpUpdate)
		return core.Money{}, false
	}
	return amount, true
}

func (s *Server) handleCompleteGoal(w http.ResponseWriter, r *http.Request) {
	goal, err := s.finance.CompleteSavingsGoal(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err, klog.OpUpdate)
		return
	}
	OK(w, newGoalView(goal))
}

// statsView pairs the raw figures with their display strings in the
// selected currency.
type statsView struct {
	core.SpendingStats
	Formatted map[string]string `json:"formatted"`
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	userID, err := s.resolveUserID(queryValue(r, "userId"))
	if err != nil {
		writeError(w, r, err, klog.OpRead)
		return
	}
	stats := s.finance.SpendingStats(userID)
	OK(w, statsView{
		SpendingStats: stats,
		Formatted: map[string]string{
			"totalSpent":    s.settings.FormatAmount(stats.TotalSpent),
			"totalReceived": s.settings.FormatAmount(stats.TotalReceived),
			"balance":       s.settings.FormatAmount(stats.Balance),
		},
	})
}
