/*
Package storage provides the durable key-value abstraction statvault persists
archives to.

# Backends

  - memory: map-backed storage for tests and ephemeral runs
  - badger: BadgerDB (LSM tree + Snappy compression) for persistent storage

Both implement KV:

	type KV interface {
	    Get(ctx context.Context, key string) ([]byte, error)
	    Set(ctx context.Context, key string, value []byte) error
	    SetBatch(ctx context.Context, entries []Entry) error
	    Remove(ctx context.Context, keys ...string) error
	    Scan(ctx context.Context, prefix string, fn func(key string, value []byte) error) error
	    Stats(ctx context.Context) (*Stats, error)
	    Close() error
	}

# Key Layout

The archive store owns three key families per archive:

	archive_<id>         compressed payload (JSON)
	archive_meta_<id>    archive record (JSON)
	archive_backup_<id>  redundant copy of both (JSON, optionally zstd or lz4)

Scan is prefix based, so "archive_meta_" enumerates every record on startup.

# Usage Example

	store, err := badger.New(badger.Config{Path: "./data"})
	if err != nil {
	    log.Fatal(err)
	}
	defer store.Close()

	err = store.Set(ctx, "archive_meta_sessions_1718000000000_3f2a", raw)

	value, err := store.Get(ctx, "archive_meta_sessions_1718000000000_3f2a")
	if errors.Is(err, storage.ErrNotFound) {
	    // handle missing key
	}

# Best Practices

1. Always call Close() when done to flush pending writes
2. Use context.WithTimeout() to prevent hung scans
3. Use SetBatch when several keys must appear together
*/
package storage
