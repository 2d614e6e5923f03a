package badger

import (
	"context"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"

	"github.com/nicktill/statvault/pkg/storage"
)

// Storage implements storage.KV using BadgerDB (LSM tree)
type Storage struct {
	db *badger.DB
}

// Config holds BadgerDB configuration
type Config struct {
	// Path to store database files
	Path string

	// InMemory mode (for testing)
	InMemory bool

	// MaxMemoryMB limits BadgerDB memory usage in MB (0 = laptop-friendly defaults)
	MaxMemoryMB int64
}

// New creates a BadgerDB storage backend
func New(cfg Config) (*Storage, error) {
	opts := badger.DefaultOptions(cfg.Path).WithLogger(nil)

	if cfg.InMemory {
		opts = opts.WithInMemory(true).WithDir("").WithValueDir("")
	}

	// BadgerDB defaults to 64 MB memtables x 5. Archives are written rarely,
	// so a small memtable is plenty.
	memTableSize := int64(16 * 1024 * 1024)
	if cfg.MaxMemoryMB > 0 {
		memTableSize = cfg.MaxMemoryMB * 1024 * 1024 / 3
	}

	// Without explicit cache limits badger can grow to 1-2 GB.
	blockCacheSize := memTableSize / 2
	indexCacheSize := memTableSize / 4

	opts = opts.
		WithCompression(options.Snappy).
		WithNumVersionsToKeep(1).
		WithMemTableSize(memTableSize).
		WithNumMemtables(3).
		WithBlockCacheSize(blockCacheSize).
		WithIndexCacheSize(indexCacheSize).
		WithMaxLevels(4).
		WithNumLevelZeroTables(2).
		WithNumLevelZeroTablesStall(4).
		// Archive payloads are large; keep only metadata-sized values in the LSM
		WithValueThreshold(1024).
		WithNumCompactors(2).
		WithValueLogFileSize(64 << 20)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger: %w", err)
	}

	return &Storage{db: db}, nil
}

// run executes op on its own goroutine and gives up waiting when ctx ends.
// Badger transactions cannot be interrupted, so op may still complete.
func run[T any](ctx context.Context, name string, op func() (T, error)) (T, error) {
	var zero T
	if err := ctx.Err(); err != nil {
		return zero, err
	}

	type result struct {
		value T
		err   error
	}
	done := make(chan result, 1)
	go func() {
		v, err := op()
		done <- result{value: v, err: err}
	}()

	select {
	case res := <-done:
		return res.value, res.err
	case <-ctx.Done():
		return zero, fmt.Errorf("%s operation cancelled: %w", name, ctx.Err())
	}
}

// Get returns the value stored under key
func (s *Storage) Get(ctx context.Context, key string) ([]byte, error) {
	return run(ctx, "get", func() ([]byte, error) {
		var value []byte
		err := s.db.View(func(txn *badger.Txn) error {
			item, err := txn.Get([]byte(key))
			if errors.Is(err, badger.ErrKeyNotFound) {
				return storage.ErrNotFound
			}
			if err != nil {
				return err
			}
			value, err = item.ValueCopy(nil)
			return err
		})
		return value, err
	})
}

// Set stores a single value
func (s *Storage) Set(ctx context.Context, key string, value []byte) error {
	return s.SetBatch(ctx, []storage.Entry{{Key: key, Value: value}})
}

// SetBatch writes all entries in one transaction
func (s *Storage) SetBatch(ctx context.Context, entries []storage.Entry) error {
	_, err := run(ctx, "write", func() (struct{}, error) {
		return struct{}{}, s.db.Update(func(txn *badger.Txn) error {
			for _, e := range entries {
				if err := txn.Set([]byte(e.Key), e.Value); err != nil {
					return fmt.Errorf("failed to write %s: %w", e.Key, err)
				}
			}
			return nil
		})
	})
	return err
}

// Remove deletes keys; missing keys are ignored
func (s *Storage) Remove(ctx context.Context, keys ...string) error {
	_, err := run(ctx, "delete", func() (struct{}, error) {
		return struct{}{}, s.db.Update(func(txn *badger.Txn) error {
			for _, key := range keys {
				if err := txn.Delete([]byte(key)); err != nil {
					return err
				}
			}
			return nil
		})
	})
	return err
}

// Scan iterates keys with the given prefix
func (s *Storage) Scan(ctx context.Context, prefix string, fn func(key string, value []byte) error) error {
	_, err := run(ctx, "scan", func() (struct{}, error) {
		return struct{}{}, s.db.View(func(txn *badger.Txn) error {
			opts := badger.DefaultIteratorOptions
			opts.PrefetchSize = 100
			opts.Prefix = []byte(prefix)

			it := txn.NewIterator(opts)
			defer it.Close()

			var iterCount int
			for it.Rewind(); it.ValidForPrefix(opts.Prefix); it.Next() {
				iterCount++
				// Check context periodically (every 1000 iterations)
				if iterCount%1000 == 0 {
					select {
					case <-ctx.Done():
						return ctx.Err()
					default:
					}
				}

				item := it.Item()
				value, err := item.ValueCopy(nil)
				if err != nil {
					return err
				}
				if err := fn(string(item.Key()), value); err != nil {
					return err
				}
			}
			return nil
		})
	})
	return err
}

// Close shuts down BadgerDB cleanly
func (s *Storage) Close() error {
	return s.db.Close()
}

// RunGC runs BadgerDB's value log garbage collection
// This reclaims disk space from deleted archive payloads
// discardRatio: run GC if this fraction of file can be discarded (0.5 = 50%)
// Returns nil if GC was not needed or succeeded
func (s *Storage) RunGC(discardRatio float64) error {
	err := s.db.RunValueLogGC(discardRatio)
	if errors.Is(err, badger.ErrNoRewrite) || errors.Is(err, badger.ErrGCInMemoryMode) {
		return nil
	}
	return err
}

// Stats returns storage statistics
func (s *Storage) Stats(ctx context.Context) (*storage.Stats, error) {
	return run(ctx, "stats", func() (*storage.Stats, error) {
		stats := &storage.Stats{}
		err := s.db.View(func(txn *badger.Txn) error {
			opts := badger.DefaultIteratorOptions
			opts.PrefetchValues = false

			it := txn.NewIterator(opts)
			defer it.Close()

			for it.Rewind(); it.Valid(); it.Next() {
				stats.Keys++
			}
			return nil
		})
		if err != nil {
			return nil, err
		}

		lsmSize, vlogSize := s.db.Size()
		stats.SizeBytes = uint64(lsmSize + vlogSize)
		return stats, nil
	})
}
