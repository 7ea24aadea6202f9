package http

import (
	"net/http"
	"strings"

	"kidcash/internal/core"
	klog "kidcash/internal/log"
)

type updateSettingsRequest struct {
	Currency *string `json:"currency" validate:"omitempty,max=8"`
	Language *string `json:"language" validate:"omitempty,max=8"`
}

func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	OK(w, s.settings.Settings())
}

// handleUpdateSettings applies currency and language together: when either
// is invalid neither is changed.
func (s *Server) handleUpdateSettings(w http.ResponseWriter, r *http.Request) {
	var req updateSettingsRequest
	if err := decodeJSON(w, r, s.validate, &req); err != nil {
		writeError(w, r, err, klog.OpUpdate)
		return
	}

	next := s.settings.Settings()
	if req.Currency != nil {
		next.Currency = core.Currency(strings.ToUpper(sanitizeInput(*req.Currency)))
	}
	if req.Language != nil {
		next.Language = core.Language(strings.ToLower(sanitizeInput(*req.Language)))
	}
	if err := next.Validate(); err != nil {
		writeError(w, r, err, klog.OpUpdate)
		return
	}

	if req.Currency != nil {
		if err := s.settings.SetCurrency(r.Context(), next.Currency); err != nil {
			writeError(w, r, err, klog.OpUpdate)
			return
		}
	}
	if req.Language != nil {
		if err := s.settings.SetLanguage(r.Context(), next.Language); err != nil {
			writeError(w, r, err, klog.OpUpdate)
			return
		}
	}
	OK(w, s.settings.Settings())
}

func (s *Server) handleSettingsOptions(w http.ResponseWriter, r *http.Request) {
	OK(w, map[string]any{
		"currencies": core.Currencies(),
		"languages":  core.Languages(),
		"categories": core.Categories(),
	})
}
