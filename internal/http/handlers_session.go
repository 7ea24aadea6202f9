package http

import (
	"net/http"

	"kidcash/internal/core"
	klog "kidcash/internal/log"
)

type (
	loginRequest struct {
		UserID string `json:"userId" validate:"required,max=64"`
	}

	updateUserRequest struct {
		Name   *string `json:"name" validate:"omitempty,max=100"`
		Email  *string `json:"email" validate:"omitempty,max=254"`
		Avatar *string `json:"avatar" validate:"omitempty,max=2048"`
	}

	addRuleRequest struct {
		Title       string `json:"title" validate:"required,max=200"`
		Description string `json:"description" validate:"required,max=200"`
		IsActive    *bool  `json:"isActive"`
	}

	updateRuleRequest struct {
		Title       *string `json:"title" validate:"omitempty,max=200"`
		Description *string `json:"description" validate:"omitempty,max=200"`
		IsActive    *bool   `json:"isActive"`
	}

	toggleRuleRequest struct {
		IsActive *bool `json:"isActive"`
	}
)

// sessionView is the user/family slice of state a client renders.
type sessionView struct {
	IsAuthenticated bool         `json:"isAuthenticated"`
	User            *core.User   `json:"user"`
	Family          *core.Family `json:"family"`
	Error           string       `json:"error,omitempty"`
}

func (s *Server) currentSession() sessionView {
	view := sessionView{Error: s.family.Error()}
	if user, ok := s.family.CurrentUser(); ok {
		view.IsAuthenticated = true
		view.User = &user
	}
	if family, ok := s.family.Family(); ok {
		view.Family = &family
	}
	return view
}

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	OK(w, s.currentSession())
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(w, r, s.validate, &req); err != nil {
		writeError(w, r, err, "login")
		return
	}
	if _, err := s.family.Login(r.Context(), sanitizeInput(req.UserID)); err != nil {
		writeError(w, r, err, "login")
		return
	}
	OK(w, s.currentSession())
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	s.family.Logout(r.Context())
	OK(w, s.currentSession())
}

func (s *Server) handleSwitchUser(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(w, r, s.validate, &req); err != nil {
		writeError(w, r, err, "switch_user")
		return
	}
	if _, err := s.family.SwitchUser(r.Context(), sanitizeInput(req.UserID)); err != nil {
		writeError(w, r, err, "switch_user")
		return
	}
	OK(w, s.currentSession())
}

func (s *Server) handleUpdateUser(w http.ResponseWriter, r *http.Request) {
	var req updateUserRequest
	if err := decodeJSON(w, r, s.validate, &req); err != nil {
		writeError(w, r, err, klog.OpUpdate)
		return
	}
	user, err := s.family.UpdateUser(r.Context(), core.UserPatch{
		Name:   sanitizePtr(req.Name),
		Email:  sanitizePtr(req.Email),
		Avatar: sanitizePtr(req.Avatar),
	})
	if err != nil {
		writeError(w, r, err, klog.OpUpdate)
		return
	}
	OK(w, user)
}

func (s *Server) handleFamily(w http.ResponseWriter, r *http.Request) {
	family, ok := s.family.Family()
	if !ok {
		writeError(w, r, core.ErrNoSession, klog.OpRead)
		return
	}
	OK(w, family)
}

func (s *Server) handleAddRule(w http.ResponseWriter, r *http.Request) {
	var req addRuleRequest
	if err := decodeJSON(w, r, s.validate, &req); err != nil {
		writeError(w, r, err, klog.OpCreate)
		return
	}
	rule, err := s.family.AddFamilyRule(r.Context(), core.NewFamilyRule{
		Title:       sanitizeInput(req.Title),
		Description: sanitizeInput(req.Description),
		IsActive:    req.IsActive,
	})
	if err != nil {
		writeError(w, r, err, klog.OpCreate)
		return
	}
	Created(w, rule)
}

func (s *Server) handleUpdateRule(w http.ResponseWriter, r *http.Request) {
	var req updateRuleRequest
	if err := decodeJSON(w, r, s.validate, &req); err != nil {
		writeError(w, r, err, klog.OpUpdate)
		return
	}
	rule, err := s.family.UpdateFamilyRule(r.Context(), r.PathValue("id"), core.FamilyRulePatch{
		Title:       sanitizePtr(req.Title),
		Description: sanitizePtr(req.Description),
		IsActive:    req.IsActive,
	})
	if err != nil {
		writeError(w, r, err, klog.OpUpdate)
		return
	}
	OK(w, rule)
}

// handleToggleRule sets isActive when the body carries it and flips the
// current flag when the body is empty.
func (s *Server) handleToggleRule(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	var req toggleRuleRequest
	if err := decodeJSON(w, r, s.validate, &req); err != nil && err != errEmptyBody {
		writeError(w, r, err, "toggle")
		return
	}

	next := false
	if req.IsActive != nil {
		next = *req.IsActive
	} else {
		family, ok := s.family.Family()
		if !ok {
			writeError(w, r, core.ErrNoSession, "toggle")
			return
		}
		idx := family.RuleIndex(id)
		if idx < 0 {
			writeError(w, r, core.ErrNotFound, "toggle")
			return
		}
		next = !family.Rules[idx].IsActive
	}

	rule, err := s.family.ToggleFamilyRule(r.Context(), id, next)
	if err != nil {
		writeError(w, r, err, "toggle")
		return
	}
	OK(w, rule)
}

func (s *Server) handleDeleteRule(w http.ResponseWriter, r *http.Request) {
	if err := s.family.DeleteFamilyRule(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, r, err, klog.OpDelete)
		return
	}
	NoContent(w)
}
