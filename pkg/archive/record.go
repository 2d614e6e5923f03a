package archive

import (
	"errors"
	"time"

	"github.com/nicktill/statvault/pkg/codec"
	"github.com/nicktill/statvault/pkg/compression"
	archerr "github.com/nicktill/statvault/pkg/errors"
)

// RecordVersion is written into every archive record.
const RecordVersion = "1.0"

// Key prefixes of the persisted layout.
const (
	payloadPrefix = "archive_"
	metaPrefix    = "archive_meta_"
	backupPrefix  = "archive_backup_"
)

func payloadKey(id string) string { return payloadPrefix + id }
func metaKey(id string) string    { return metaPrefix + id }
func backupKey(id string) string  { return backupPrefix + id }

// DateRange is the span of timestamps found in an archived dataset.
type DateRange struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
	Count int       `json:"count"`
}

// Checksums of the preprocessed input and of the stored payload.
type Checksums struct {
	Algorithm string `json:"algorithm"`
	Original  string `json:"original"`
	Archived  string `json:"archived"`
}

// Record is the persisted metadata of one archive.
type Record struct {
	ID               string           `json:"id"`
	DataType         string           `json:"dataType"`
	Strategy         []codec.Kind     `json:"strategy"`
	Compressed       bool             `json:"compressed"`
	CompressionInfo  compression.Info `json:"compressionInfo"`
	OriginalSize     int              `json:"originalSize"`
	ArchivedSize     int              `json:"archivedSize"`
	CompressionRatio float64          `json:"compressionRatio"`
	RecordCount      int              `json:"recordCount"`
	Checksums        Checksums        `json:"checksums"`
	DateRange        *DateRange       `json:"dateRange,omitempty"`
	Tags             []string         `json:"tags"`
	CreatedAt        time.Time        `json:"createdAt"`
	Version          string           `json:"version"`
}

// Reversible reports whether restoring the archive reproduces the
// preprocessed input exactly.
func (r *Record) Reversible() bool {
	return !r.Compressed || r.CompressionInfo.Lossless()
}

// payloadLayers is the number of payloads wrapped around the stored data.
// Uncompressed data sits in a single passthrough payload.
func (r *Record) payloadLayers() int {
	if !r.Compressed {
		return 1
	}
	return r.CompressionInfo.Layers()
}

// SizeCategory buckets an archive by its stored size.
func SizeCategory(bytes int) string {
	switch {
	case bytes < 1024:
		return "tiny"
	case bytes < 1024*1024:
		return "small"
	case bytes < 10*1024*1024:
		return "medium"
	case bytes < 100*1024*1024:
		return "large"
	default:
		return "huge"
	}
}

// Options tunes a single archive call.
type Options struct {
	// Strategy overrides the selected codec pipeline.
	Strategy []codec.Kind `json:"strategy,omitempty"`
	// Compress overrides Config.CompressionEnabled.
	Compress *bool `json:"compress,omitempty"`
	// RemoveSensitiveData overrides Config.RemoveSensitiveData.
	RemoveSensitiveData *bool `json:"removeSensitiveData,omitempty"`
	// Tags are added to the heuristic tags.
	Tags []string `json:"tags,omitempty"`
}

// Result is returned by Archive.
type Result struct {
	ArchiveID        string        `json:"archiveId"`
	Success          bool          `json:"success"`
	Metadata         *Record       `json:"metadata"`
	OriginalSize     int           `json:"originalSize"`
	ArchivedSize     int           `json:"archivedSize"`
	CompressionRatio float64       `json:"compressionRatio"`
	ProcessingTime   time.Duration `json:"processingTime"`
}

// RestoreOptions tunes a single restore call.
type RestoreOptions struct {
	// SkipChecksum disables drift detection.
	SkipChecksum bool `json:"skipChecksum,omitempty"`
}

// RestoreResult is returned by Restore.
type RestoreResult struct {
	ArchiveID string  `json:"archiveId"`
	Success   bool    `json:"success"`
	Data      any     `json:"data"`
	Metadata  *Record `json:"metadata"`
	// ChecksumVerified is false when the archive is lossy or checks were skipped.
	ChecksumVerified    bool          `json:"checksumVerified"`
	ChecksumMatch       bool          `json:"checksumMatch"`
	RecoveredFromBackup bool          `json:"recoveredFromBackup"`
	ProcessingTime      time.Duration `json:"processingTime"`
}

// BackupEncoding selects how backup copies are written.
type BackupEncoding string

const (
	BackupJSON BackupEncoding = "json"
	BackupZstd BackupEncoding = "zstd"
	BackupLZ4  BackupEncoding = "lz4"
)

// Config tunes the archive store.
type Config struct {
	CompressionEnabled  bool
	BackupEnabled       bool
	BackupEncoding      BackupEncoding
	RemoveSensitiveData bool
	MaxRetentionDays    int
	ActiveDays          int
	ArchiveThreshold    int
	MaxActiveSize       int
	BatchSize           int
	QueueSize           int
}

func DefaultConfig() Config {
	return Config{
		CompressionEnabled: true,
		BackupEnabled:      true,
		BackupEncoding:     BackupJSON,
		MaxRetentionDays:   1095,
		ActiveDays:         90,
		ArchiveThreshold:   30000,
		MaxActiveSize:      10 * 1024 * 1024,
		BatchSize:          500,
		QueueSize:          256,
	}
}

func (c Config) Validate() []error {
	var errs []error
	invalid := func(format string, args ...any) {
		errs = append(errs, archerr.Errorf(archerr.CodeConfigValidateInvalid, format, args...))
	}
	switch c.BackupEncoding {
	case BackupJSON, BackupZstd, BackupLZ4:
	default:
		invalid("archive: backup encoding must be one of [json, zstd, lz4], got %q", c.BackupEncoding)
	}
	if c.MaxRetentionDays <= 0 {
		invalid("archive: max retention days must be positive, got %d", c.MaxRetentionDays)
	}
	if c.ActiveDays < 0 {
		invalid("archive: active days must not be negative, got %d", c.ActiveDays)
	}
	if c.ArchiveThreshold < 0 {
		invalid("archive: archive threshold must not be negative, got %d", c.ArchiveThreshold)
	}
	if c.MaxActiveSize < 0 {
		invalid("archive: max active size must not be negative, got %d", c.MaxActiveSize)
	}
	if c.BatchSize <= 0 {
		invalid("archive: batch size must be positive, got %d", c.BatchSize)
	}
	return errs
}

func validationError(errs []error) error {
	return archerr.Wrap(errors.Join(errs...), archerr.CodeConfigValidateInvalid, "invalid archive config")
}

// Patch is a partial update applied by UpdateConfig.
type Patch struct {
	CompressionEnabled  *bool           `json:"compressionEnabled,omitempty"`
	BackupEnabled       *bool           `json:"backupEnabled,omitempty"`
	BackupEncoding      *BackupEncoding `json:"backupEncoding,omitempty"`
	RemoveSensitiveData *bool           `json:"removeSensitiveData,omitempty"`
	MaxRetentionDays    *int            `json:"maxRetentionDays,omitempty"`
	ActiveDays          *int            `json:"activeDays,omitempty"`
	ArchiveThreshold    *int            `json:"archiveThreshold,omitempty"`
	BatchSize           *int            `json:"batchSize,omitempty"`
}

func (p Patch) Apply(c Config) Config {
	if p.CompressionEnabled != nil {
		c.CompressionEnabled = *p.CompressionEnabled
	}
	if p.BackupEnabled != nil {
		c.BackupEnabled = *p.BackupEnabled
	}
	if p.BackupEncoding != nil {
		c.BackupEncoding = *p.BackupEncoding
	}
	if p.RemoveSensitiveData != nil {
		c.RemoveSensitiveData = *p.RemoveSensitiveData
	}
	if p.MaxRetentionDays != nil {
		c.MaxRetentionDays = *p.MaxRetentionDays
	}
	if p.ActiveDays != nil {
		c.ActiveDays = *p.ActiveDays
	}
	if p.ArchiveThreshold != nil {
		c.ArchiveThreshold = *p.ArchiveThreshold
	}
	if p.BatchSize != nil {
		c.BatchSize = *p.BatchSize
	}
	return c
}
