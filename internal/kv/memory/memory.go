// Package memory is an in-process kv.Store, optionally seeded from disk.
package memory

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"kidcash/internal/kv"
)

type Store struct {
	mu    sync.RWMutex
	items map[string][]byte
}

var _ kv.Store = (*Store)(nil)

func New() *Store {
	return &Store{items: make(map[string][]byte)}
}

// NewFromDir seeds the store with every "<key>.json" file found in base.
// A missing or unreadable directory yields an empty store.
func NewFromDir(base string) *Store {
	s := New()
	entries, err := os.ReadDir(base)
	if err != nil {
		return s
	}
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(base, e.Name()))
		if err != nil {
			slog.Warn("Skipping unreadable seed file", "file", e.Name(), "error", err)
			continue
		}
		s.items[strings.TrimSuffix(e.Name(), ".json")] = data
	}
	return s
}

func (s *Store) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.items[key]
	if !ok {
		return nil, kv.ErrNotFound
	}
	return append([]byte(nil), v...), nil
}

func (s *Store) Set(_ context.Context, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[key] = append([]byte(nil), value...)
	return nil
}

func (s *Store) Remove(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.items, key)
	return nil
}

// Keys returns the stored keys, in no particular order.
func (s *Store) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.items))
	for k := range s.items {
		out = append(out, k)
	}
	return out
}
