// Package kv defines the key-value port the stores persist their snapshots to.
package kv

import (
	"context"
	"errors"
)

// Well-known keys, one JSON blob per store.
const (
	FinanceKey  = "kidcash-finance-storage"
	UserKey     = "kidcash-user-storage"
	SettingsKey = "kidcash-settings-storage"
)

// ErrNotFound is returned by Get for a key that was never set or was removed.
var ErrNotFound = errors.New("kv: key not found")

// Ports for outbound adapters.
type (
	Reader interface {
		Get(ctx context.Context, key string) ([]byte, error)
	}

	Writer interface {
		Set(ctx context.Context, key string, value []byte) error
		Remove(ctx context.Context, key string) error
	}

	Store interface {
		Reader
		Writer
	}
)
