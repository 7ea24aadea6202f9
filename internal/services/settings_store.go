package services

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"kidcash/internal/amqp"
	"kidcash/internal/core"
	"kidcash/internal/kv"
)

// SettingsStore holds the display currency and language.
type SettingsStore struct {
	deps Deps

	mu       sync.RWMutex
	settings core.Settings
}

func NewSettingsStore(deps Deps) *SettingsStore {
	return &SettingsStore{deps: deps.withDefaults(), settings: core.DefaultSettings()}
}

// Load restores persisted settings. Each field falls back to its default
// on its own when the stored value is not valid.
func (s *SettingsStore) Load(ctx context.Context) error {
	st := core.DefaultSettings()
	if _, err := s.deps.load(ctx, kv.SettingsKey, &st); err != nil {
		return fmt.Errorf("load settings: %w", err)
	}
	// Unknown values from an older blob fall back to defaults field by field.
	if !st.Currency.IsValid() {
		st.Currency = core.DefaultCurrency
	}
	if !st.Language.IsValid() {
		st.Language = core.DefaultLanguage
	}

	s.mu.Lock()
	s.settings = st
	s.mu.Unlock()

	slog.InfoContext(ctx, "Settings loaded", "currency", st.Currency, "language", st.Language)
	return nil
}

// Settings returns the current selection.
func (s *SettingsStore) Settings() core.Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.settings
}

// SetCurrency selects the display currency.
func (s *SettingsStore) SetCurrency(ctx context.Context, c core.Currency) error {
	if !c.IsValid() {
		return fmt.Errorf("set currency: %w", core.NewValidationError("currency", "must be one of USD, EUR, RUB, GBP"))
	}
	return s.update(ctx, func(st *core.Settings) { st.Currency = c })
}

// SetLanguage selects the display language.
func (s *SettingsStore) SetLanguage(ctx context.Context, l core.Language) error {
	if !l.IsValid() {
		return fmt.Errorf("set language: %w", core.NewValidationError("language", "must be one of en, ru"))
	}
	return s.update(ctx, func(st *core.Settings) { st.Language = l })
}

func (s *SettingsStore) update(ctx context.Context, fn func(*core.Settings)) error {
	s.mu.Lock()
	fn(&s.settings)
	st := s.settings
	s.deps.save(ctx, kv.SettingsKey, st)
	s.mu.Unlock()

	slog.InfoContext(ctx, "Settings changed", "currency", st.Currency, "language", st.Language)
	s.deps.publish(ctx, event{amqp.EventSettingsChanged, st})
	return nil
}

// FormatAmount renders m in the selected currency.
func (s *SettingsStore) FormatAmount(m core.Money) string {
	return core.FormatCurrency(m, s.Settings().Currency)
}
