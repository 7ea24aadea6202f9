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

const loginFailedMessage = "User not found"

type familyState struct {
	// CurrentUserID points into Family.Members.
	CurrentUserID string       `json:"currentUserId,omitempty"`
	Family        *core.Family `json:"family"`
	Error         string       `json:"error,omitempty"`
}

// FamilyStore owns the session user and the family roster and rules.
type FamilyStore struct {
	deps      Deps
	directory core.Directory

	mu    sync.RWMutex
	state familyState
}

// NewFamilyStore builds an empty store; users and families come from directory.
func NewFamilyStore(deps Deps, directory core.Directory) *FamilyStore {
	return &FamilyStore{deps: deps.withDefaults(), directory: directory}
}

// Load restores the persisted session and family. A session whose user
// is no longer in the family is dropped.
func (s *FamilyStore) Load(ctx context.Context) error {
	var st familyState
	found, err := s.deps.load(ctx, kv.UserKey, &st)
	if err != nil {
		return fmt.Errorf("load family state: %w", err)
	}
	// A session pointing outside its family cannot be resumed.
	if st.CurrentUserID != "" && (st.Family == nil || st.Family.MemberIndex(st.CurrentUserID) < 0) {
		slog.WarnContext(ctx, "Dropping dangling session", "user_id", st.CurrentUserID)
		st.CurrentUserID = ""
	}

	s.mu.Lock()
	s.state = st
	s.mu.Unlock()

	slog.InfoContext(ctx, "Family state loaded", "found", found, "user_id", st.CurrentUserID)
	return nil
}

func (s *FamilyStore) saveLocked(ctx context.Context) {
	s.deps.save(ctx, kv.UserKey, s.state)
}

// Login starts a session for a directory user and loads their family.
// An unknown id records a readable error in state and returns ErrNotFound.
func (s *FamilyStore) Login(ctx context.Context, userID string) (core.User, error) {
	userID = strings.TrimSpace(userID)

	s.mu.Lock()
	defer s.mu.Unlock()

	s.state.Error = ""
	user, ok := s.directory.User(userID)
	if !ok {
		s.state.Error = loginFailedMessage
		s.saveLocked(ctx)
		slog.WarnContext(ctx, "Login failed", "user_id", userID)
		return core.User{}, fmt.Errorf("user %s: %w", userID, core.ErrNotFound)
	}

	// Keep the persisted family so rule and profile edits survive a re-login.
	if s.state.Family == nil || s.state.Family.ID != user.FamilyID || s.state.Family.MemberIndex(user.ID) < 0 {
		family, ok := s.directory.Family(user.FamilyID)
		if !ok {
			s.state.Error = loginFailedMessage
			s.saveLocked(ctx)
			return core.User{}, fmt.Errorf("family %s: %w", user.FamilyID, core.ErrNotFound)
		}
		s.state.Family = &family
	}
	s.state.CurrentUserID = user.ID
	s.saveLocked(ctx)

	current := s.currentLocked()
	slog.InfoContext(ctx, "User logged in",
		"user_id", current.ID,
		"family_id", current.FamilyID,
		"role", current.Role)
	return current, nil
}

// Logout ends the session. A login error stays visible.
func (s *FamilyStore) Logout(ctx context.Context) {
	s.mu.Lock()
	userID := s.state.CurrentUserID
	s.state.CurrentUserID = ""
	s.state.Family = nil
	s.saveLocked(ctx)
	s.mu.Unlock()

	slog.InfoContext(ctx, "User logged out", "user_id", userID)
}

// SwitchUser moves the session to another member of the current family.
func (s *FamilyStore) SwitchUser(ctx context.Context, userID string) (core.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state.Family == nil {
		return core.User{}, fmt.Errorf("switch user: %w", core.ErrNoSession)
	}
	if s.state.Family.MemberIndex(userID) < 0 {
		return core.User{}, fmt.Errorf("member %s: %w", userID, core.ErrNotFound)
	}
	s.state.CurrentUserID = userID
	s.saveLocked(ctx)

	current := s.currentLocked()
	slog.InfoContext(ctx, "Switched user", "user_id", current.ID, "role", current.Role)
	return current, nil
}

// UpdateUser patches the current user's profile in the family roster.
func (s *FamilyStore) UpdateUser(ctx context.Context, patch core.UserPatch) (core.User, error) {
	if err := patch.Validate(); err != nil {
		return core.User{}, fmt.Errorf("update user: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	idx, err := s.sessionIndexLocked()
	if err != nil {
		return core.User{}, fmt.Errorf("update user: %w", err)
	}
	updated := patch.Apply(s.state.Family.Members[idx])
	s.state.Family.Members[idx] = updated
	s.saveLocked(ctx)

	slog.InfoContext(ctx, "User updated", "user_id", updated.ID)
	return updated, nil
}

func (s *FamilyStore) sessionIndexLocked() (int, error) {
	if s.state.Family == nil || s.state.CurrentUserID == "" {
		return -1, core.ErrNoSession
	}
	idx := s.state.Family.MemberIndex(s.state.CurrentUserID)
	if idx < 0 {
		return -1, core.ErrNoSession
	}
	return idx, nil
}

func (s *FamilyStore) currentLocked() core.User {
	idx, err := s.sessionIndexLocked()
	if err != nil {
		return core.User{}
	}
	return s.state.Family.Members[idx]
}

// CurrentUser is the session user as stored in the family roster.
func (s *FamilyStore) CurrentUser() (core.User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, err := s.sessionIndexLocked(); err != nil {
		return core.User{}, false
	}
	return s.currentLocked(), true
}

// Family returns a copy of the loaded family.
func (s *FamilyStore) Family() (core.Family, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.state.Family == nil {
		return core.Family{}, false
	}
	return s.state.Family.Clone(), true
}

// Error is the message of the last failed login, if any.
func (s *FamilyStore) Error() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Error
}

// requireParentLocked checks that a parent of a loaded family is in session.
func (s *FamilyStore) requireParentLocked() (core.User, error) {
	idx, err := s.sessionIndexLocked()
	if err != nil {
		return core.User{}, err
	}
	user := s.state.Family.Members[idx]
	if !user.IsParent() {
		return core.User{}, core.ErrForbidden
	}
	return user, nil
}

// AddFamilyRule appends a rule to the family. Only a parent may add rules;
// a new rule is active unless the input says otherwise.
func (s *FamilyStore) AddFamilyRule(ctx context.Context, in core.NewFamilyRule) (core.FamilyRule, error) {
	if err := in.Validate(); err != nil {
		return core.FamilyRule{}, fmt.Errorf("add family rule: %w", err)
	}

	s.mu.Lock()
	parent, err := s.requireParentLocked()
	if err != nil {
		s.mu.Unlock()
		return core.FamilyRule{}, fmt.Errorf("add family rule: %w", err)
	}
	rule := core.FamilyRule{
		ID:          s.deps.NewID(core.PrefixRule),
		Title:       strings.TrimSpace(in.Title),
		Description: strings.TrimSpace(in.Description),
		IsActive:    in.IsActive == nil || *in.IsActive,
	}
	s.state.Family.Rules = append(s.state.Family.Rules, rule)
	familyID := s.state.Family.ID
	s.saveLocked(ctx)
	s.mu.Unlock()

	slog.InfoContext(ctx, "Family rule added", "rule_id", rule.ID, "user_id", parent.ID)
	s.publishRule(ctx, amqp.RuleAdded, familyID, rule)
	return rule, nil
}

// UpdateFamilyRule applies the non-nil fields of patch.
func (s *FamilyStore) UpdateFamilyRule(ctx context.Context, id string, patch core.FamilyRulePatch) (core.FamilyRule, error) {
	if err := patch.Validate(); err != nil {
		return core.FamilyRule{}, fmt.Errorf("update family rule %s: %w", id, err)
	}
	return s.mutateRule(ctx, id, amqp.RuleUpdated, patch.Apply)
}

// ToggleFamilyRule sets the rule's active flag.
func (s *FamilyStore) ToggleFamilyRule(ctx context.Context, id string, isActive bool) (core.FamilyRule, error) {
	return s.mutateRule(ctx, id, amqp.RuleToggled, func(r core.FamilyRule) core.FamilyRule {
		r.IsActive = isActive
		return r
	})
}

// DeleteFamilyRule removes the rule. Unknown ids return ErrNotFound.
func (s *FamilyStore) DeleteFamilyRule(ctx context.Context, id string) error {
	s.mu.Lock()
	if _, err := s.requireParentLocked(); err != nil {
		s.mu.Unlock()
		return fmt.Errorf("delete family rule %s: %w", id, err)
	}
	idx := s.state.Family.RuleIndex(id)
	if idx < 0 {
		s.mu.Unlock()
		return fmt.Errorf("rule %s: %w", id, core.ErrNotFound)
	}
	rule := s.state.Family.Rules[idx]
	rules := s.state.Family.Rules
	s.state.Family.Rules = append(rules[:idx:idx], rules[idx+1:]...)
	familyID := s.state.Family.ID
	s.saveLocked(ctx)
	s.mu.Unlock()

	slog.InfoContext(ctx, "Family rule deleted", "rule_id", id)
	s.publishRule(ctx, amqp.RuleDeleted, familyID, rule)
	return nil
}

func (s *FamilyStore) mutateRule(ctx context.Context, id, action string, fn func(core.FamilyRule) core.FamilyRule) (core.FamilyRule, error) {
	s.mu.Lock()
	if _, err := s.requireParentLocked(); err != nil {
		s.mu.Unlock()
		return core.FamilyRule{}, fmt.Errorf("change family rule %s: %w", id, err)
	}
	idx := s.state.Family.RuleIndex(id)
	if idx < 0 {
		s.mu.Unlock()
		return core.FamilyRule{}, fmt.Errorf("rule %s: %w", id, core.ErrNotFound)
	}
	rule := fn(s.state.Family.Rules[idx])
	s.state.Family.Rules[idx] = rule
	familyID := s.state.Family.ID
	s.saveLocked(ctx)
	s.mu.Unlock()

	slog.InfoContext(ctx, "Family rule changed", "rule_id", id, "action", action, "active", rule.IsActive)
	s.publishRule(ctx, action, familyID, rule)
	return rule, nil
}

func (s *FamilyStore) publishRule(ctx context.Context, action, familyID string, rule core.FamilyRule) {
	s.deps.publish(ctx, event{amqp.EventRuleChanged, amqp.RuleChange{
		Action:   action,
		FamilyID: familyID,
		Rule:     rule,
	}})
}
