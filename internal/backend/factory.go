package backend

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"kidcash/internal/adapters"
	"kidcash/internal/cache"
	"kidcash/internal/kv"
	"kidcash/internal/kv/memory"
	"kidcash/internal/storage"
)

// DefaultFactory implements the Factory interface
type DefaultFactory struct {
	logger *slog.Logger
}

// NewFactory creates a new backend factory
func NewFactory(logger *slog.Logger) Factory {
	if logger == nil {
		logger = slog.Default()
	}
	return &DefaultFactory{
		logger: logger,
	}
}

// CreateBackend implements Factory.CreateBackend
func (f *DefaultFactory) CreateBackend(ctx context.Context, config Config) (*BackendResult, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	var (
		result *BackendResult
		err    error
	)
	switch config.Type {
	case MemoryBackend:
		result = f.createMemoryBackend(config)
	case SQLiteBackend:
		result, err = f.createSQLiteBackend(config)
	case RedisBackend:
		result, err = f.createRedisBackend(ctx, config)
	case PostgresBackend:
		result, err = f.createPostgresBackend(ctx, config)
	default:
		return nil, fmt.Errorf("unsupported backend type: %s", config.Type)
	}
	if err != nil {
		return nil, err
	}

	if config.Type.IsRemote() && config.CacheSize > 0 {
		f.wrapWithCache(result, config)
	}
	return result, nil
}

func (f *DefaultFactory) createMemoryBackend(config Config) *BackendResult {
	var store *memory.Store
	if config.DataDirectory != "" {
		store = memory.NewFromDir(config.DataDirectory)
	} else {
		store = memory.New()
	}

	f.logger.Info("Initialized memory backend",
		"data_directory", config.DataDirectory,
		"seeded_keys", len(store.Keys()))

	return &BackendResult{Store: store}
}

func (f *DefaultFactory) createSQLiteBackend(config Config) (*BackendResult, error) {
	repo, err := storage.NewSQLiteRepository(config.SQLiteDBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize SQLite repository: %w", err)
	}

	f.logger.Info("Initialized SQLite backend", "db_path", config.SQLiteDBPath)

	return &BackendResult{
		Store:   repo,
		Ping:    repo.Ping,
		Cleanup: repo.Close,
	}, nil
}

func (f *DefaultFactory) createRedisBackend(ctx context.Context, config Config) (*BackendResult, error) {
	store, err := adapters.NewRedisStore(ctx, adapters.RedisConfig{
		Addr:      config.RedisAddr,
		Password:  config.RedisPassword,
		DB:        config.RedisDB,
		KeyPrefix: config.RedisKeyPrefix,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Redis store: %w", err)
	}

	f.logger.Info("Initialized Redis backend", "addr", config.RedisAddr, "key_prefix", config.RedisKeyPrefix)

	return &BackendResult{
		Store:   store,
		Ping:    store.Ping,
		Cleanup: store.Close,
	}, nil
}

func (f *DefaultFactory) createPostgresBackend(ctx context.Context, config Config) (*BackendResult, error) {
	store, err := adapters.NewPostgresStore(ctx, adapters.PostgresConfig{
		DSN:      config.PostgresDSN,
		MaxConns: int32(config.PostgresMaxConns),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Postgres store: %w", err)
	}

	f.logger.Info("Initialized Postgres backend", "max_conns", config.PostgresMaxConns)

	return &BackendResult{
		Store:   store,
		Ping:    store.Ping,
		Cleanup: store.Close,
	}, nil
}

// wrapWithCache puts an LRU read cache in front of the store and stops its
// cleanup loop on Cleanup.
func (f *DefaultFactory) wrapWithCache(result *BackendResult, config Config) {
	lru := cache.NewLRUCache[[]byte](config.CacheSize, config.CacheTTL)
	manager := cache.NewManager()
	manager.Register(lru)
	manager.StartCleanup(config.CacheTTL)

	result.Store = kv.NewCachedStore(result.Store, lru)
	next := result.Cleanup
	result.Cleanup = func() error {
		manager.Stop()
		if next != nil {
			return next()
		}
		return nil
	}

	f.logger.Info("Enabled KV read cache", "size", config.CacheSize, "ttl", config.CacheTTL)
}

// Close runs the cleanup hook, if any.
func (r *BackendResult) Close() error {
	if r == nil || r.Cleanup == nil {
		return nil
	}
	if err := r.Cleanup(); err != nil {
		return errors.Join(errors.New("backend cleanup failed"), err)
	}
	return nil
}
