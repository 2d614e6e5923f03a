package archive

import (
	"context"
	"runtime"
	"sort"
	"time"

	"go.uber.org/zap"

	archerr "github.com/nicktill/statvault/pkg/errors"
	"github.com/nicktill/statvault/pkg/jobqueue"
)

// EventType names a store event.
type EventType string

const (
	EventArchived         EventType = "archive.created"
	EventRestored         EventType = "archive.restored"
	EventDeleted          EventType = "archive.deleted"
	EventRetention        EventType = "archive.retention"
	EventChecksumMismatch EventType = "archive.checksum_mismatch"
)

// Event is published to the listener after an operation completes.
type Event struct {
	Type      EventType `json:"type"`
	ArchiveID string    `json:"archiveId,omitempty"`
	DataType  string    `json:"dataType,omitempty"`
	Count     int       `json:"count,omitempty"`
	At        time.Time `json:"at"`
}

// MaintenanceReport summarizes one maintenance run.
type MaintenanceReport struct {
	Deleted int        `json:"deleted"`
	Index   IndexStats `json:"index"`
}

// Stats is a snapshot of store activity.
type Stats struct {
	TotalArchived      int        `json:"totalArchived"`
	TotalRestored      int        `json:"totalRestored"`
	TotalSize          int64      `json:"totalSize"`
	LastArchive        *time.Time `json:"lastArchive,omitempty"`
	LastRestore        *time.Time `json:"lastRestore,omitempty"`
	ArchiveCount       int        `json:"archiveCount"`
	QueueLength        int        `json:"queueLength"`
	State              string     `json:"state"`
	ChecksumMismatches int        `json:"checksumMismatches"`
	Index              IndexStats `json:"index"`
	CompressionEnabled bool       `json:"compressionEnabled"`
	BackupEnabled      bool       `json:"backupEnabled"`
}

// SweepRetention deletes archives older than MaxRetentionDays and returns how
// many were removed.
func (s *Store) SweepRetention(ctx context.Context) (int, error) {
	return jobqueue.Do(ctx, s.queue, func(runCtx context.Context) (int, error) {
		return s.sweep(runCtx)
	})
}

// RebuildIndex recomputes the search indices from archive metadata.
func (s *Store) RebuildIndex(ctx context.Context) (IndexStats, error) {
	return jobqueue.Do(ctx, s.queue, func(context.Context) (IndexStats, error) {
		return s.rebuild(), nil
	})
}

// Maintenance runs the retention sweep and then rebuilds the indices.
func (s *Store) Maintenance(ctx context.Context) (MaintenanceReport, error) {
	return jobqueue.Do(ctx, s.queue, func(runCtx context.Context) (MaintenanceReport, error) {
		deleted, err := s.sweep(runCtx)
		if err != nil {
			return MaintenanceReport{Deleted: deleted}, err
		}
		return MaintenanceReport{Deleted: deleted, Index: s.rebuild()}, nil
	})
}

func (s *Store) sweep(ctx context.Context) (int, error) {
	start := s.clock.Now()

	s.mu.RLock()
	cutoff := start.Add(-time.Duration(s.cfg.MaxRetentionDays) * 24 * time.Hour)
	batchSize := s.cfg.BatchSize
	var expired []*Record
	for _, r := range s.records {
		if r.CreatedAt.Before(cutoff) {
			expired = append(expired, r)
		}
	}
	s.mu.RUnlock()

	sort.Slice(expired, func(i, j int) bool { return expired[i].CreatedAt.Before(expired[j].CreatedAt) })

	deleted := 0
	var err error
	for lo := 0; lo < len(expired); lo += batchSize {
		hi := min(lo+batchSize, len(expired))
		batch := expired[lo:hi]

		keys := make([]string, 0, 3*len(batch))
		for _, r := range batch {
			keys = append(keys, payloadKey(r.ID), metaKey(r.ID), backupKey(r.ID))
		}
		if rmErr := s.kv.Remove(ctx, keys...); rmErr != nil {
			err = archerr.Wrap(rmErr, archerr.CodeStorageWriteFailure, "retention sweep",
				archerr.Field("deleted", deleted))
			break
		}
		s.forget(batch...)
		deleted += len(batch)

		// Let other goroutines run between batches.
		runtime.Gosched()
	}

	s.metrics.RetentionDeleted(deleted)
	s.metrics.ObserveOperation("retention", err, s.clock.Since(start))
	if deleted > 0 {
		s.logger.Info("retention sweep removed archives",
			zap.Int("deleted", deleted),
			zap.Time("cutoff", cutoff),
		)
		s.emit(Event{Type: EventRetention, Count: deleted, At: start})
	}
	return deleted, err
}

func (s *Store) rebuild() IndexStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.index = rebuildIndex(s.records)
	return s.index.stats()
}

// UpdateConfig applies a partial configuration after all queued operations.
func (s *Store) UpdateConfig(ctx context.Context, p Patch) (Config, error) {
	return jobqueue.Do(ctx, s.queue, func(context.Context) (Config, error) {
		s.mu.Lock()
		defer s.mu.Unlock()

		next := p.Apply(s.cfg)
		if errs := next.Validate(); len(errs) > 0 {
			return s.cfg, validationError(errs)
		}
		s.cfg = next
		s.logger.Info("archive config updated",
			zap.Int("max_retention_days", next.MaxRetentionDays),
			zap.Bool("compression_enabled", next.CompressionEnabled),
		)
		return next, nil
	})
}

// Config returns the active configuration.
func (s *Store) Config() Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg
}

// Get returns a copy of an archive's metadata.
func (s *Store) Get(id string) (*Record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.records[id]
	if !ok {
		return nil, false
	}
	return r.clone(), true
}

// List returns copies of all archive metadata, oldest first.
func (s *Store) List() []*Record {
	s.mu.RLock()
	out := make([]*Record, 0, len(s.records))
	for _, r := range s.records {
		out = append(out, r.clone())
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Statistics returns current store statistics.
func (s *Store) Statistics() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	state := "idle"
	if s.queue.Busy() {
		state = "busy"
	}
	return Stats{
		TotalArchived:      s.stats.archived,
		TotalRestored:      s.stats.restored,
		TotalSize:          s.stats.size,
		LastArchive:        timePtr(s.stats.lastArchive),
		LastRestore:        timePtr(s.stats.lastRestore),
		ArchiveCount:       len(s.records),
		QueueLength:        s.queue.Len(),
		State:              state,
		ChecksumMismatches: s.stats.mismatches,
		Index:              s.index.stats(),
		CompressionEnabled: s.cfg.CompressionEnabled,
		BackupEnabled:      s.cfg.BackupEnabled,
	}
}

func timePtr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
