package kv

import (
	"context"
	"errors"

	"kidcash/internal/cache"
)

// CachedStore serves reads from an LRU cache in front of a slower Store.
// Writes go to the backing store first and update the cache on success.
type CachedStore struct {
	next  Store
	cache cache.Cache[[]byte]
}

var _ Store = (*CachedStore)(nil)

func NewCachedStore(next Store, c cache.Cache[[]byte]) *CachedStore {
	return &CachedStore{next: next, cache: c}
}

func (s *CachedStore) Get(ctx context.Context, key string) ([]byte, error) {
	if v, ok := s.cache.Get(key); ok {
		return clone(v), nil
	}
	v, err := s.next.Get(ctx, key)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			s.cache.Delete(key)
		}
		return nil, err
	}
	s.cache.Set(key, clone(v))
	return v, nil
}

func (s *CachedStore) Set(ctx context.Context, key string, value []byte) error {
	if err := s.next.Set(ctx, key, value); err != nil {
		s.cache.Delete(key)
		return err
	}
	s.cache.Set(key, clone(value))
	return nil
}

func (s *CachedStore) Remove(ctx context.Context, key string) error {
	s.cache.Delete(key)
	return s.next.Remove(ctx, key)
}

func clone(b []byte) []byte {
	return append([]byte(nil), b...)
}
