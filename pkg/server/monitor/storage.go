// Package monitor reports on the data directory backing the archive store.
package monitor

import (
	"io/fs"
	"path/filepath"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// DefaultCacheDuration bounds how often the data directory is walked.
const DefaultCacheDuration = 10 * time.Second

// StorageMonitor tracks storage usage with caching to avoid expensive filesystem calls.
type StorageMonitor struct {
	dataDir       string
	maxBytes      int64
	clock         clockwork.Clock
	cachedUsage   int64
	lastCheck     time.Time
	cacheDuration time.Duration
	mu            sync.Mutex
}

// NewStorageMonitor creates a new storage monitor.
func NewStorageMonitor(dataDir string, maxBytes int64, clock clockwork.Clock) *StorageMonitor {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &StorageMonitor{
		dataDir:       dataDir,
		maxBytes:      maxBytes,
		clock:         clock,
		cacheDuration: DefaultCacheDuration,
	}
}

// GetUsage returns current storage usage in bytes (cached).
func (sm *StorageMonitor) GetUsage() (int64, error) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	now := sm.clock.Now()
	if !sm.lastCheck.IsZero() && now.Sub(sm.lastCheck) < sm.cacheDuration {
		return sm.cachedUsage, nil
	}

	usage, err := calculateDirSize(sm.dataDir)
	if err != nil {
		return 0, err
	}

	sm.cachedUsage = usage
	sm.lastCheck = now
	return usage, nil
}

// GetLimit returns the configured storage limit in bytes.
func (sm *StorageMonitor) GetLimit() int64 {
	return sm.maxBytes
}

// Usage is the storage report served by the API.
type Usage struct {
	DataDir     string  `json:"data_dir"`
	UsedBytes   int64   `json:"used_bytes"`
	MaxBytes    int64   `json:"max_bytes"`
	UsedPercent float64 `json:"used_percent"`
	OverLimit   bool    `json:"over_limit"`
}

// Usage returns the current usage against the limit.
func (sm *StorageMonitor) Usage() (Usage, error) {
	used, err := sm.GetUsage()
	if err != nil {
		return Usage{}, err
	}
	u := Usage{DataDir: sm.dataDir, UsedBytes: used, MaxBytes: sm.maxBytes}
	if sm.maxBytes > 0 {
		u.UsedPercent = float64(used) / float64(sm.maxBytes) * 100
		u.OverLimit = used > sm.maxBytes
	}
	return u, nil
}

// calculateDirSize sums the on-disk size of every file under path. Badger
// value logs are sparse, so block usage is used where the platform reports it.
func calculateDirSize(path string) (int64, error) {
	var size int64
	err := filepath.WalkDir(path, func(_ string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		size += getActualFileSize(info)
		return nil
	})
	return size, err
}
