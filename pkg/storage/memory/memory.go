package memory

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/nicktill/statvault/pkg/storage"
)

// Storage keeps values in memory. Data is lost on restart.
// Useful for testing and development.
type Storage struct {
	values map[string][]byte
	mu     sync.RWMutex

	// failWrites makes every write fail; used to exercise error paths.
	failWrites error
}

// New creates an in-memory storage backend
func New() *Storage {
	return &Storage{
		values: make(map[string][]byte),
	}
}

// FailWrites makes subsequent writes return err. Pass nil to recover.
func (s *Storage) FailWrites(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failWrites = err
}

// Get returns a copy of the value stored under key
func (s *Storage) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, ok := s.values[key]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return append([]byte(nil), v...), nil
}

// Set stores a single value
func (s *Storage) Set(ctx context.Context, key string, value []byte) error {
	return s.SetBatch(ctx, []storage.Entry{{Key: key, Value: value}})
}

// SetBatch stores all entries under one lock
func (s *Storage) SetBatch(ctx context.Context, entries []storage.Entry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failWrites != nil {
		return s.failWrites
	}
	for _, e := range entries {
		s.values[e.Key] = append([]byte(nil), e.Value...)
	}
	return nil
}

// Remove deletes keys
func (s *Storage) Remove(ctx context.Context, keys ...string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failWrites != nil {
		return s.failWrites
	}
	for _, key := range keys {
		delete(s.values, key)
	}
	return nil
}

// Scan visits keys with the given prefix in sorted order
func (s *Storage) Scan(ctx context.Context, prefix string, fn func(key string, value []byte) error) error {
	s.mu.RLock()
	keys := make([]string, 0)
	for k := range s.values {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	snapshot := make([][]byte, len(keys))
	for i, k := range keys {
		snapshot[i] = append([]byte(nil), s.values[k]...)
	}
	s.mu.RUnlock()

	for i, k := range keys {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(k, snapshot[i]); err != nil {
			return err
		}
	}
	return nil
}

// Close is a no-op for memory storage
func (s *Storage) Close() error {
	return nil
}

// Stats returns storage statistics
func (s *Storage) Stats(ctx context.Context) (*storage.Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := &storage.Stats{Keys: uint64(len(s.values))}
	for k, v := range s.values {
		stats.SizeBytes += uint64(len(k) + len(v))
	}
	return stats, nil
}
