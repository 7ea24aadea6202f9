package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"kidcash/internal/kv"
)

func newTestRepo(t *testing.T) *SQLiteRepository {
	t.Helper()
	repo, err := NewSQLiteRepository(filepath.Join(t.TempDir(), "nested", "kidcash.db"))
	if err != nil {
		t.Fatalf("new repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo
}

func TestSQLiteRepositorySetGetRemove(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)

	if _, err := repo.Get(ctx, kv.FinanceKey); !errors.Is(err, kv.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	if err := repo.Set(ctx, kv.FinanceKey, []byte(`{"transactions":[]}`)); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := repo.Set(ctx, kv.FinanceKey, []byte(`{"transactions":[1]}`)); err != nil {
		t.Fatalf("overwrite: %v", err)
	}

	got, err := repo.Get(ctx, kv.FinanceKey)
	if err != nil || string(got) != `{"transactions":[1]}` {
		t.Fatalf("get: %q err=%v", got, err)
	}

	entries, err := repo.ListEntries(ctx)
	if err != nil || len(entries) != 1 || entries[0].Key != kv.FinanceKey {
		t.Fatalf("entries: %+v err=%v", entries, err)
	}

	if err := repo.Remove(ctx, kv.FinanceKey); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if _, err := repo.Get(ctx, kv.FinanceKey); !errors.Is(err, kv.ErrNotFound) {
		t.Fatalf("expected ErrNotFound after remove, got %v", err)
	}
}

func TestMigrationsAreIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kidcash.db")
	for i := 0; i < 2; i++ {
		repo, err := NewSQLiteRepository(path)
		if err != nil {
			t.Fatalf("open #%d: %v", i, err)
		}
		repo.Close()
	}
}
