// Package archive persists compressed dataset snapshots with searchable
// metadata, redundant backups and retention.
//
// All mutating operations (archive, restore, delete, retention, index
// rebuilds and config updates) share one FIFO queue drained by a single
// worker. Search, Get and Statistics read a lock-protected snapshot.
package archive

import (
	"context"
	"errors"
	"sync"
	"time"

	json "github.com/goccy/go-json"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/nicktill/statvault/pkg/checksum"
	"github.com/nicktill/statvault/pkg/codec"
	"github.com/nicktill/statvault/pkg/compression"
	archerr "github.com/nicktill/statvault/pkg/errors"
	"github.com/nicktill/statvault/pkg/jobqueue"
	"github.com/nicktill/statvault/pkg/logging"
	"github.com/nicktill/statvault/pkg/metrics"
	"github.com/nicktill/statvault/pkg/storage"
)

// Compressor runs a compression pipeline. *compression.Engine implements it.
type Compressor interface {
	Compress(ctx context.Context, data any, dataType string, opts compression.Options) (*compression.Result, error)
}

// Store is the archive store.
type Store struct {
	logger     *zap.Logger
	clock      clockwork.Clock
	kv         storage.KV
	compressor Compressor
	hasher     checksum.Hasher
	metrics    *metrics.Collectors
	listener   func(Event)
	queue      *jobqueue.Queue

	mu      sync.RWMutex
	cfg     Config
	records map[string]*Record
	index   *index
	stats   totals
}

type totals struct {
	archived    int
	restored    int
	size        int64
	lastArchive time.Time
	lastRestore time.Time
	mismatches  int
}

// Option configures a Store.
type Option func(*Store)

func WithLogger(l *zap.Logger) Option {
	return func(s *Store) { s.logger = logging.OrNop(l) }
}

func WithClock(c clockwork.Clock) Option {
	return func(s *Store) { s.clock = c }
}

func WithHasher(h checksum.Hasher) Option {
	return func(s *Store) { s.hasher = h }
}

func WithMetrics(m *metrics.Collectors) Option {
	return func(s *Store) { s.metrics = m }
}

// WithListener registers fn to receive store events. fn runs on the worker
// and must not block.
func WithListener(fn func(Event)) Option {
	return func(s *Store) { s.listener = fn }
}

// Open loads existing archive metadata from kv and starts the worker.
// compressor may be nil, in which case archives are stored uncompressed.
func Open(ctx context.Context, kv storage.KV, compressor Compressor, cfg Config, opts ...Option) (*Store, error) {
	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, validationError(errs)
	}

	s := &Store{
		logger:     zap.NewNop(),
		clock:      clockwork.NewRealClock(),
		kv:         kv,
		compressor: compressor,
		hasher:     checksum.Default(),
		cfg:        cfg,
		records:    make(map[string]*Record),
		index:      newIndex(),
	}
	for _, opt := range opts {
		opt(s)
	}

	if err := s.load(ctx); err != nil {
		return nil, err
	}
	s.queue = jobqueue.New("archive", cfg.QueueSize, func(n int) {
		s.metrics.QueueDepth(metrics.QueueArchive, n)
	})
	return s, nil
}

// load rebuilds records and indices from persisted metadata. Unreadable
// entries are skipped.
func (s *Store) load(ctx context.Context) error {
	skipped := 0
	err := s.kv.Scan(ctx, metaPrefix, func(key string, value []byte) error {
		var r Record
		if err := json.Unmarshal(value, &r); err != nil || r.ID == "" {
			skipped++
			s.logger.Warn("skipping unreadable archive metadata", zap.String("key", key), zap.Error(err))
			return nil
		}
		s.records[r.ID] = &r
		return nil
	})
	if err != nil {
		return archerr.Wrap(err, archerr.CodeStorageReadFailure, "load archive metadata")
	}

	s.index = rebuildIndex(s.records)
	for _, r := range s.records {
		s.stats.size += int64(r.ArchivedSize)
	}
	s.metrics.SetArchives(len(s.records), s.stats.size)
	s.logger.Info("archive store loaded",
		zap.Int("archives", len(s.records)),
		zap.Int("skipped", skipped),
	)
	return nil
}

// Close waits for queued operations and stops the worker. The KV store is
// owned by the caller and stays open.
func (s *Store) Close() {
	s.queue.Close()
}

// Archive preprocesses, compresses and persists data. ctx bounds only the
// wait for the worker.
func (s *Store) Archive(ctx context.Context, data any, dataType string, opts Options) (*Result, error) {
	return jobqueue.Do(ctx, s.queue, func(runCtx context.Context) (*Result, error) {
		return s.archive(runCtx, data, dataType, opts)
	})
}

// ArchiveAsync enqueues an archive operation and returns immediately.
func (s *Store) ArchiveAsync(ctx context.Context, data any, dataType string, opts Options) *jobqueue.Pending[*Result] {
	return jobqueue.Submit(ctx, s.queue, func(runCtx context.Context) (*Result, error) {
		return s.archive(runCtx, data, dataType, opts)
	})
}

// Restore loads and decodes an archive.
func (s *Store) Restore(ctx context.Context, id string, opts RestoreOptions) (*RestoreResult, error) {
	return jobqueue.Do(ctx, s.queue, func(runCtx context.Context) (*RestoreResult, error) {
		return s.restore(runCtx, id, opts)
	})
}

// RestoreAsync enqueues a restore and returns immediately.
func (s *Store) RestoreAsync(ctx context.Context, id string, opts RestoreOptions) *jobqueue.Pending[*RestoreResult] {
	return jobqueue.Submit(ctx, s.queue, func(runCtx context.Context) (*RestoreResult, error) {
		return s.restore(runCtx, id, opts)
	})
}

// Delete removes an archive, its backup and its index entries.
func (s *Store) Delete(ctx context.Context, id string) error {
	_, err := jobqueue.Do(ctx, s.queue, func(runCtx context.Context) (struct{}, error) {
		start := s.clock.Now()
		err := s.delete(runCtx, id)
		s.metrics.ObserveOperation("delete", err, s.clock.Since(start))
		return struct{}{}, err
	})
	return err
}

func (s *Store) archive(ctx context.Context, data any, dataType string, opts Options) (*Result, error) {
	start := s.clock.Now()
	res, err := s.doArchive(ctx, data, dataType, opts, start)
	s.metrics.ObserveOperation("archive", err, s.clock.Since(start))
	if err != nil {
		s.logger.Error("archive failed", zap.String("data_type", dataType), zap.Error(err))
		return nil, err
	}
	return res, nil
}

func (s *Store) doArchive(ctx context.Context, data any, dataType string, opts Options, start time.Time) (*Result, error) {
	if err := validateDataType(dataType); err != nil {
		return nil, err
	}
	cfg := s.Config()

	redact := cfg.RemoveSensitiveData
	if opts.RemoveSensitiveData != nil {
		redact = *opts.RemoveSensitiveData
	}
	cleaned, err := Preprocess(data, redact)
	if err != nil {
		return nil, err
	}
	originalSize := codec.SizeOf(cleaned)

	compress := cfg.CompressionEnabled && s.compressor != nil
	if opts.Compress != nil {
		compress = *opts.Compress && s.compressor != nil
	}

	var (
		payload    any = &codec.Passthrough{Type: codec.TypePassthrough, Data: cleaned}
		strategy       = []codec.Kind{}
		compressed bool
		info       = compression.Info{OriginalSize: originalSize}
	)
	if compress {
		res, err := s.compressor.Compress(ctx, cleaned, dataType, compression.Options{Strategy: opts.Strategy})
		if err != nil {
			return nil, err
		}
		info = res.Info
		if res.Compressed {
			payload = res.Data
			strategy = res.Metadata.Strategies
			compressed = true
		}
	}

	payloadBytes, err := codec.Marshal(payload)
	if err != nil {
		return nil, archerr.Wrap(err, archerr.CodeArchiveDataInvalid, "serialize payload", archerr.FieldDataType(dataType))
	}
	if !compressed {
		info.FinalSize = len(payloadBytes)
		info.CompressionRatio = sizeRatio(len(payloadBytes), originalSize)
	}

	originalSum, err := s.originalChecksum(cleaned, payloadBytes, compressed, info)
	if err != nil {
		return nil, archerr.Wrap(err, archerr.CodeArchiveDataInvalid, "checksum data", archerr.FieldDataType(dataType))
	}

	id := s.uniqueID(dataType, start)
	dates := ExtractDateRange(cleaned)
	rec := &Record{
		ID:               id,
		DataType:         dataType,
		Strategy:         strategy,
		Compressed:       compressed,
		CompressionInfo:  info,
		OriginalSize:     originalSize,
		ArchivedSize:     len(payloadBytes),
		CompressionRatio: sizeRatio(len(payloadBytes), originalSize),
		RecordCount:      RecordCount(cleaned),
		Checksums: Checksums{
			Algorithm: s.hasher.Name(),
			Original:  originalSum,
			Archived:  s.hasher.Sum(payloadBytes),
		},
		DateRange: dates,
		Tags:      mergeTags(Tags(cleaned, dataType, dates, start), opts.Tags),
		CreatedAt: start,
		Version:   RecordVersion,
	}

	if err := s.persist(ctx, rec, payloadBytes, cfg); err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.records[id] = rec
	s.index.add(rec)
	s.stats.archived++
	s.stats.size += int64(rec.ArchivedSize)
	s.stats.lastArchive = start
	count, size := len(s.records), s.stats.size
	s.mu.Unlock()

	s.metrics.SetArchives(count, size)
	s.logger.Info("archived dataset",
		zap.String("archive_id", id),
		zap.String("data_type", dataType),
		zap.Int("original_size", originalSize),
		zap.Int("archived_size", rec.ArchivedSize),
		zap.Bool("compressed", compressed),
	)
	s.emit(Event{Type: EventArchived, ArchiveID: id, DataType: dataType, Count: rec.RecordCount, At: start})

	return &Result{
		ArchiveID:        id,
		Success:          true,
		Metadata:         rec.clone(),
		OriginalSize:     originalSize,
		ArchivedSize:     rec.ArchivedSize,
		CompressionRatio: rec.CompressionRatio,
		ProcessingTime:   s.clock.Since(start),
	}, nil
}

// originalChecksum hashes the data a restore will reproduce. For lossless
// pipelines that is the decoded payload: delta decoding of fractional values
// is exact only up to float rounding.
func (s *Store) originalChecksum(cleaned any, payload []byte, compressed bool, info compression.Info) (string, error) {
	if !compressed || !info.Lossless() {
		return checksum.Of(s.hasher, cleaned)
	}
	var stored any
	if err := json.Unmarshal(payload, &stored); err != nil {
		return "", err
	}
	restored, err := codec.Unwrap(stored, info.Layers())
	if err != nil {
		return "", err
	}
	return checksum.Of(s.hasher, restored)
}

func (s *Store) uniqueID(dataType string, at time.Time) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for {
		id := newArchiveID(dataType, at)
		if _, taken := s.records[id]; !taken {
			return id
		}
	}
}

// persist writes payload, metadata and the optional backup in one batch.
func (s *Store) persist(ctx context.Context, rec *Record, payload []byte, cfg Config) error {
	metaBytes, err := json.Marshal(rec)
	if err != nil {
		return archerr.Wrap(err, archerr.CodeStorageWriteFailure, "marshal metadata", archerr.FieldArchiveID(rec.ID))
	}
	entries := []storage.Entry{
		{Key: payloadKey(rec.ID), Value: payload},
		{Key: metaKey(rec.ID), Value: metaBytes},
	}
	if cfg.BackupEnabled {
		backup, err := encodeBackup(&Backup{
			ArchiveID:     rec.ID,
			Data:          payload,
			Metadata:      rec,
			BackupCreated: s.clock.Now(),
		}, cfg.BackupEncoding)
		if err != nil {
			return archerr.Wrap(err, archerr.CodeStorageWriteFailure, "encode backup", archerr.FieldArchiveID(rec.ID))
		}
		entries = append(entries, storage.Entry{Key: backupKey(rec.ID), Value: backup})
	}
	if err := s.kv.SetBatch(ctx, entries); err != nil {
		return archerr.Wrap(err, archerr.CodeStorageWriteFailure, "persist archive", archerr.FieldArchiveID(rec.ID))
	}
	return nil
}

func (s *Store) restore(ctx context.Context, id string, opts RestoreOptions) (*RestoreResult, error) {
	start := s.clock.Now()
	res, err := s.doRestore(ctx, id, opts, start)
	s.metrics.ObserveOperation("restore", err, s.clock.Since(start))
	if err != nil {
		s.logger.Error("restore failed", zap.String("archive_id", id), zap.Error(err))
		return nil, err
	}
	return res, nil
}

func (s *Store) doRestore(ctx context.Context, id string, opts RestoreOptions, start time.Time) (*RestoreResult, error) {
	rec, payload, recovered, err := s.fetch(ctx, id)
	if err != nil {
		return nil, err
	}

	data, err := codec.Unwrap(payload, rec.payloadLayers())
	if err != nil {
		return nil, archerr.Wrap(err, archerr.CodeCodecPayloadInvalid, "decode archive", archerr.FieldArchiveID(id))
	}

	out := &RestoreResult{
		ArchiveID:           id,
		Success:             true,
		Data:                data,
		Metadata:            rec.clone(),
		RecoveredFromBackup: recovered,
	}
	if !opts.SkipChecksum && rec.Reversible() {
		out.ChecksumVerified, out.ChecksumMatch = s.verify(rec, data)
	}

	s.mu.Lock()
	s.stats.restored++
	s.stats.lastRestore = start
	if out.ChecksumVerified && !out.ChecksumMatch {
		s.stats.mismatches++
	}
	s.mu.Unlock()

	if out.ChecksumVerified && !out.ChecksumMatch {
		s.metrics.ChecksumMismatch()
		s.logger.Warn("checksum mismatch on restore",
			zap.Error(archerr.New(archerr.CodeArchiveChecksumDrift, "restored data differs from archived data",
				archerr.FieldArchiveID(id))),
		)
		s.emit(Event{Type: EventChecksumMismatch, ArchiveID: id, DataType: rec.DataType, At: start})
	}
	s.emit(Event{Type: EventRestored, ArchiveID: id, DataType: rec.DataType, Count: rec.RecordCount, At: start})

	out.ProcessingTime = s.clock.Since(start)
	return out, nil
}

// verify recomputes the checksum of restored data with the algorithm the
// archive was written with.
func (s *Store) verify(rec *Record, data any) (verified, match bool) {
	h := s.hasher
	if rec.Checksums.Algorithm != "" && rec.Checksums.Algorithm != h.Name() {
		byName, err := checksum.ByName(rec.Checksums.Algorithm)
		if err != nil {
			s.logger.Warn("cannot verify checksum", zap.String("archive_id", rec.ID), zap.Error(err))
			return false, false
		}
		h = byName
	}
	sum, err := checksum.Of(h, data)
	if err != nil {
		return false, false
	}
	return true, sum == rec.Checksums.Original
}

// fetch loads metadata and payload, falling back to the backup copy when
// either primary entry is missing.
func (s *Store) fetch(ctx context.Context, id string) (*Record, any, bool, error) {
	s.mu.RLock()
	rec, known := s.records[id]
	s.mu.RUnlock()

	if known {
		raw, err := s.kv.Get(ctx, payloadKey(id))
		switch {
		case err == nil:
			var payload any
			if err := json.Unmarshal(raw, &payload); err != nil {
				return nil, nil, false, archerr.Wrap(err, archerr.CodeStorageReadFailure, "decode stored payload",
					archerr.FieldArchiveID(id))
			}
			return rec, payload, false, nil
		case !errors.Is(err, storage.ErrNotFound):
			return nil, nil, false, archerr.Wrap(err, archerr.CodeStorageReadFailure, "read payload",
				archerr.FieldArchiveID(id))
		}
	}
	return s.recover(ctx, id, known)
}

func (s *Store) recover(ctx context.Context, id string, known bool) (*Record, any, bool, error) {
	raw, err := s.kv.Get(ctx, backupKey(id))
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil, false, archerr.New(archerr.CodeArchiveNotFound, "archive not found", archerr.FieldArchiveID(id))
	}
	if err != nil {
		return nil, nil, false, archerr.Wrap(err, archerr.CodeStorageReadFailure, "read backup", archerr.FieldArchiveID(id))
	}
	b, err := decodeBackup(raw)
	if err != nil {
		return nil, nil, false, archerr.Wrap(err, archerr.CodeStorageReadFailure, "decode backup", archerr.FieldArchiveID(id))
	}
	var payload any
	if err := json.Unmarshal(b.Data, &payload); err != nil {
		return nil, nil, false, archerr.Wrap(err, archerr.CodeStorageReadFailure, "decode backup payload",
			archerr.FieldArchiveID(id))
	}

	rec := b.Metadata
	if metaBytes, err := json.Marshal(rec); err == nil {
		err = s.kv.SetBatch(ctx, []storage.Entry{
			{Key: payloadKey(id), Value: b.Data},
			{Key: metaKey(id), Value: metaBytes},
		})
		if err != nil {
			s.logger.Warn("failed to rewrite archive from backup", zap.String("archive_id", id), zap.Error(err))
		}
	}

	if !known {
		s.mu.Lock()
		s.records[id] = rec
		s.index.add(rec)
		s.stats.size += int64(rec.ArchivedSize)
		s.mu.Unlock()
	}
	s.logger.Warn("archive recovered from backup", zap.String("archive_id", id))
	return rec, payload, true, nil
}

func (s *Store) delete(ctx context.Context, id string) error {
	s.mu.RLock()
	rec, ok := s.records[id]
	s.mu.RUnlock()
	if !ok {
		return archerr.New(archerr.CodeArchiveNotFound, "archive not found", archerr.FieldArchiveID(id))
	}

	if err := s.kv.Remove(ctx, payloadKey(id), metaKey(id), backupKey(id)); err != nil {
		return archerr.Wrap(err, archerr.CodeStorageWriteFailure, "delete archive", archerr.FieldArchiveID(id))
	}
	s.forget(rec)
	s.logger.Info("archive deleted", zap.String("archive_id", id))
	s.emit(Event{Type: EventDeleted, ArchiveID: id, DataType: rec.DataType, At: s.clock.Now()})
	return nil
}

// forget drops rec from memory and indices.
func (s *Store) forget(recs ...*Record) {
	s.mu.Lock()
	for _, rec := range recs {
		if _, ok := s.records[rec.ID]; !ok {
			continue
		}
		delete(s.records, rec.ID)
		s.index.remove(rec)
		s.stats.size -= int64(rec.ArchivedSize)
	}
	count, size := len(s.records), s.stats.size
	s.mu.Unlock()
	s.metrics.SetArchives(count, size)
}

func (s *Store) emit(e Event) {
	if s.listener != nil {
		s.listener(e)
	}
}

func sizeRatio(archived, original int) float64 {
	if original == 0 {
		return 1
	}
	return float64(archived) / float64(original)
}

func (r *Record) clone() *Record {
	c := *r
	c.Strategy = append([]codec.Kind(nil), r.Strategy...)
	c.Tags = append([]string(nil), r.Tags...)
	c.CompressionInfo.Stages = append([]compression.StageInfo(nil), r.CompressionInfo.Stages...)
	if r.DateRange != nil {
		d := *r.DateRange
		c.DateRange = &d
	}
	return &c
}
