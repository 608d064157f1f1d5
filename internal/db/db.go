package db

import (
	"context"
	"time"
)

// Store is the main database facade combining all sub-interfaces.
type Store interface {
	Pinger
	KVStore
	Close()
	WaitForReady(ctx context.Context, timeout time.Duration) error
}

// Pinger checks database connectivity.
type Pinger interface {
	Ping(ctx context.Context) error
}

// KVStore provides simple key-value operations.
// A single Set is atomic: readers observe either the old or the new value.
type KVStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	// SetNX stores value only if key is absent; returns ErrKeyExists otherwise.
	SetNX(ctx context.Context, key string, value []byte) error
	// Scan returns every key matching a glob pattern (e.g. "credits:credit:*").
	Scan(ctx context.Context, pattern string) ([]string, error)
}
