package kv_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"kidcash/internal/cache"
	"kidcash/internal/kv"
	"kidcash/internal/kv/memory"
)

type countingStore struct {
	kv.Store
	gets int
	fail error
}

func (c *countingStore) Get(ctx context.Context, key string) ([]byte, error) {
	c.gets++
	return c.Store.Get(ctx, key)
}

func (c *countingStore) Set(ctx context.Context, key string, value []byte) error {
	if c.fail != nil {
		return c.fail
	}
	return c.Store.Set(ctx, key, value)
}

func TestCachedStoreServesRepeatedReadsFromCache(t *testing.T) {
	ctx := context.Background()
	backing := &countingStore{Store: memory.New()}
	s := kv.NewCachedStore(backing, cache.NewLRUCache[[]byte](8, time.Minute))

	if err := s.Set(ctx, kv.FinanceKey, []byte(`{}`)); err != nil {
		t.Fatalf("set: %v", err)
	}
	for i := 0; i < 3; i++ {
		if v, err := s.Get(ctx, kv.FinanceKey); err != nil || string(v) != `{}` {
			t.Fatalf("get: %q err=%v", v, err)
		}
	}
	if backing.gets != 0 {
		t.Fatalf("expected reads served from cache, backing gets=%d", backing.gets)
	}

	if err := s.Remove(ctx, kv.FinanceKey); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if _, err := s.Get(ctx, kv.FinanceKey); !errors.Is(err, kv.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if backing.gets != 1 {
		t.Fatalf("expected one backing read after remove, got %d", backing.gets)
	}
}

func TestCachedStoreFailedWriteInvalidates(t *testing.T) {
	ctx := context.Background()
	backing := &countingStore{Store: memory.New()}
	s := kv.NewCachedStore(backing, cache.NewLRUCache[[]byte](8, time.Minute))

	_ = s.Set(ctx, kv.UserKey, []byte(`"old"`))
	backing.fail = errors.New("boom")
	if err := s.Set(ctx, kv.UserKey, []byte(`"new"`)); err == nil {
		t.Fatalf("expected write error")
	}

	v, err := s.Get(ctx, kv.UserKey)
	if err != nil || string(v) != `"old"` {
		t.Fatalf("expected backing value after failed write, got %q err=%v", v, err)
	}
	if backing.gets != 1 {
		t.Fatalf("expected cache miss after failed write, gets=%d", backing.gets)
	}
}
