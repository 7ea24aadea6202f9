package backend

import (
	"context"
	"time"

	"kidcash/internal/kv"
)

// CleanupFunc releases the resources of a backend.
type CleanupFunc func() error

// BackendResult contains the KV store and its lifecycle hooks.
type BackendResult struct {
	Store kv.Store
	// Ping reports whether the store is reachable; nil for in-process stores.
	Ping    func(ctx context.Context) error
	Cleanup CleanupFunc
}

// Factory creates backends based on configuration
type Factory interface {
	CreateBackend(ctx context.Context, config Config) (*BackendResult, error)
}

// Config holds configuration for backend creation
type Config struct {
	Type BackendType

	// Memory backend: optional directory of "<key>.json" seed files
	DataDirectory string

	SQLiteDBPath string

	RedisAddr      string
	RedisPassword  string
	RedisDB        int
	RedisKeyPrefix string

	PostgresDSN      string
	PostgresMaxConns int

	// Read cache for the remote backends; 0 disables it
	CacheSize int
	CacheTTL  time.Duration
}

// BackendType represents the type of backend
type BackendType string

const (
	MemoryBackend   BackendType = "memory"
	SQLiteBackend   BackendType = "sqlite"
	RedisBackend    BackendType = "redis"
	PostgresBackend BackendType = "postgres"
)

func (bt BackendType) String() string {
	return string(bt)
}

// IsValid returns true if the backend type is valid
func (bt BackendType) IsValid() bool {
	switch bt {
	case MemoryBackend, SQLiteBackend, RedisBackend, PostgresBackend:
		return true
	default:
		return false
	}
}

// IsRemote reports whether the backend lives in another process.
func (bt BackendType) IsRemote() bool {
	return bt == RedisBackend || bt == PostgresBackend
}
