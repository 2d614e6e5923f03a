package storage

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Get when a key does not exist.
var ErrNotFound = errors.New("storage: key not found")

// KV defines the durable key-value backend archives are persisted to.
// Implementations: memory (testing), badger (production)
type KV interface {
	// Get returns the value stored under key, or ErrNotFound
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores a single value
	Set(ctx context.Context, key string, value []byte) error

	// SetBatch stores all entries atomically
	SetBatch(ctx context.Context, entries []Entry) error

	// Remove deletes keys. Missing keys are ignored.
	Remove(ctx context.Context, keys ...string) error

	// Scan calls fn for every key with the given prefix, in key order.
	// Returning an error from fn stops the scan.
	Scan(ctx context.Context, prefix string, fn func(key string, value []byte) error) error

	// Close cleanly shuts down the storage
	Close() error

	// Stats returns storage statistics
	Stats(ctx context.Context) (*Stats, error)
}

// Entry is one key/value pair of a batch write.
type Entry struct {
	Key   string
	Value []byte
}

// Stats provides storage health and usage info
type Stats struct {
	// Number of live keys
	Keys uint64

	// Storage size in bytes
	SizeBytes uint64
}
