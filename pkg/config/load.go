package config

import (
	"errors"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/zap/zapcore"

	"github.com/nicktill/statvault/pkg/archive"
	"github.com/nicktill/statvault/pkg/checksum"
	"github.com/nicktill/statvault/pkg/codec"
	"github.com/nicktill/statvault/pkg/compression"
	archerr "github.com/nicktill/statvault/pkg/errors"
	"github.com/nicktill/statvault/pkg/logging"
	"github.com/nicktill/statvault/pkg/scheduler"
)

// EnvPrefix prefixes environment overrides, e.g. STATVAULT_SERVER_LISTEN.
const EnvPrefix = "STATVAULT"

// Config is the top-level statvault configuration.
type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Storage     StorageConfig     `mapstructure:"storage"`
	Logging     LoggingConfig     `mapstructure:"logging"`
	Compression CompressionConfig `mapstructure:"compression"`
	Archive     ArchiveConfig     `mapstructure:"archive"`
	Scheduler   SchedulerConfig   `mapstructure:"scheduler"`
}

type ServerConfig struct {
	Listen       string `mapstructure:"listen"`
	MaxStorageGB int    `mapstructure:"max_storage_gb"`
}

// StorageConfig selects the KV backend. Memory storage is lost on restart.
type StorageConfig struct {
	Backend        string        `mapstructure:"backend"`
	DataDir        string        `mapstructure:"data_dir"`
	MaxMemoryMB    int           `mapstructure:"max_memory_mb"`
	GCInterval     time.Duration `mapstructure:"gc_interval"`
	GCDiscardRatio float64       `mapstructure:"gc_discard_ratio"`
}

type LoggingConfig struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
	Encoding    string `mapstructure:"encoding"`
}

// StrategyConfig overrides the codec pipeline of one data type.
type StrategyConfig struct {
	DataType string   `mapstructure:"data_type"`
	Codecs   []string `mapstructure:"codecs"`
}

type CompressionConfig struct {
	EffectivenessThreshold float64          `mapstructure:"effectiveness_threshold"`
	HistoryLimit           int              `mapstructure:"history_limit"`
	QueueSize              int              `mapstructure:"queue_size"`
	SampleRate             float64          `mapstructure:"sample_rate"`
	MaxSamples             int              `mapstructure:"max_samples"`
	AggregationPeriod      string           `mapstructure:"aggregation_period"`
	AggregationFields      []string         `mapstructure:"aggregation_fields"`
	DeltaFields            []string         `mapstructure:"delta_fields"`
	Strategies             []StrategyConfig `mapstructure:"strategies"`
}

type ArchiveConfig struct {
	CompressionEnabled  bool   `mapstructure:"compression_enabled"`
	BackupEnabled       bool   `mapstructure:"backup_enabled"`
	BackupEncoding      string `mapstructure:"backup_encoding"`
	RemoveSensitiveData bool   `mapstructure:"remove_sensitive_data"`
	MaxRetentionDays    int    `mapstructure:"max_retention_days"`
	ActiveDays          int    `mapstructure:"active_days"`
	ArchiveThreshold    int    `mapstructure:"archive_threshold"`
	MaxActiveSize       int    `mapstructure:"max_active_size"`
	BatchSize           int    `mapstructure:"batch_size"`
	QueueSize           int    `mapstructure:"queue_size"`
	Checksum            string `mapstructure:"checksum"`
}

type SchedulerConfig struct {
	Enabled             bool          `mapstructure:"enabled"`
	SourceDir           string        `mapstructure:"source_dir"`
	ArchiveInterval     time.Duration `mapstructure:"archive_interval"`
	MaintenanceInterval time.Duration `mapstructure:"maintenance_interval"`
	MaxRetries          int           `mapstructure:"max_retries"`
	RetryBaseDelay      time.Duration `mapstructure:"retry_base_delay"`
}

// SetDefaults registers every default on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("server.listen", DefaultListen)
	v.SetDefault("server.max_storage_gb", DefaultMaxStorageGB)

	v.SetDefault("storage.backend", "badger")
	v.SetDefault("storage.data_dir", DefaultDataDir)
	v.SetDefault("storage.max_memory_mb", DefaultMaxMemoryMB)
	v.SetDefault("storage.gc_interval", BadgerGCInterval)
	v.SetDefault("storage.gc_discard_ratio", BadgerGCDiscardRatio)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.encoding", "json")

	opts := codec.DefaultOptions()
	v.SetDefault("compression.effectiveness_threshold", DefaultEffectivenessThreshold)
	v.SetDefault("compression.history_limit", DefaultHistoryLimit)
	v.SetDefault("compression.queue_size", DefaultQueueSize)
	v.SetDefault("compression.sample_rate", opts.SampleRate)
	v.SetDefault("compression.max_samples", opts.MaxSamples)
	v.SetDefault("compression.aggregation_period", string(opts.Period))
	v.SetDefault("compression.aggregation_fields", opts.AggregationFields)
	v.SetDefault("compression.delta_fields", opts.DeltaFields)

	v.SetDefault("archive.compression_enabled", true)
	v.SetDefault("archive.backup_enabled", true)
	v.SetDefault("archive.backup_encoding", string(archive.BackupZstd))
	v.SetDefault("archive.max_retention_days", DefaultMaxRetentionDays)
	v.SetDefault("archive.active_days", DefaultActiveDays)
	v.SetDefault("archive.archive_threshold", DefaultArchiveThreshold)
	v.SetDefault("archive.max_active_size", DefaultMaxActiveSize)
	v.SetDefault("archive.batch_size", DefaultBatchSize)
	v.SetDefault("archive.queue_size", DefaultQueueSize)
	v.SetDefault("archive.checksum", checksum.Default().Name())

	v.SetDefault("scheduler.enabled", true)
	v.SetDefault("scheduler.archive_interval", DefaultArchiveInterval)
	v.SetDefault("scheduler.maintenance_interval", DefaultMaintenanceInterval)
	v.SetDefault("scheduler.max_retries", DefaultMaxRetries)
	v.SetDefault("scheduler.retry_base_delay", DefaultRetryBaseDelay)
}

// SetupEnv enables STATVAULT_* environment overrides.
func SetupEnv(v *viper.Viper) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
}

// Load reads configuration from path (optional) with environment overrides
// and validates it.
func Load(path string) (*Config, error) {
	v := viper.New()
	SetDefaults(v)
	SetupEnv(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, archerr.Wrapf(err, archerr.CodeConfigLoadReadFailure, "reading config %s", path)
		}
	}
	return FromViper(v)
}

// FromViper decodes and validates the configuration held by v.
func FromViper(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, archerr.Errorf(archerr.CodeConfigValidateInvalid, "unmarshalling config: %w", err)
	}
	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, archerr.Errorf(archerr.CodeConfigValidateInvalid, "validating config: %w", errors.Join(errs...))
	}
	return &cfg, nil
}

// Validate collects every configuration problem.
func (c *Config) Validate() []error {
	var errs []error
	errs = append(errs, c.validateServer()...)
	errs = append(errs, c.validateStorage()...)
	errs = append(errs, c.validateScheduler()...)

	if _, err := zapcore.ParseLevel(c.Logging.Level); err != nil {
		errs = append(errs, archerr.Errorf(archerr.CodeConfigValidateInvalid, "config: logging.level: %w", err))
	}
	if c.Logging.Encoding != "json" && c.Logging.Encoding != "console" {
		errs = append(errs, archerr.Errorf(archerr.CodeConfigValidateInvalid,
			"config: logging.encoding must be one of [json, console], got %q", c.Logging.Encoding))
	}
	comp, err := c.CompressionConfig()
	if err != nil {
		errs = append(errs, err)
	} else {
		errs = append(errs, comp.Validate()...)
	}
	errs = append(errs, c.ArchiveConfig().Validate()...)
	if _, err := checksum.ByName(c.Archive.Checksum); err != nil {
		errs = append(errs, archerr.Errorf(archerr.CodeConfigValidateInvalid, "config: archive.checksum: %w", err))
	}
	return errs
}

func (c *Config) validateServer() []error {
	var errs []error
	_, portStr, err := net.SplitHostPort(c.Server.Listen)
	if err != nil {
		return append(errs, archerr.Errorf(archerr.CodeConfigValidateInvalid,
			"config: server.listen must be a valid host:port address, got %q: %w", c.Server.Listen, err))
	}
	port, err := strconv.Atoi(portStr)
	if err != nil || port < 1 || port > 65535 {
		errs = append(errs, archerr.Errorf(archerr.CodeConfigValidateInvalid,
			"config: server.listen port must be between 1 and 65535, got %q", portStr))
	}
	if c.Server.MaxStorageGB <= 0 {
		errs = append(errs, archerr.Errorf(archerr.CodeConfigValidateInvalid,
			"config: server.max_storage_gb must be greater than 0, got %d", c.Server.MaxStorageGB))
	}
	return errs
}

func (c *Config) validateStorage() []error {
	var errs []error
	switch c.Storage.Backend {
	case "badger":
		if c.Storage.DataDir == "" {
			errs = append(errs, archerr.Errorf(archerr.CodeConfigValidateInvalid,
				"config: storage.data_dir must not be empty for the badger backend"))
		}
	case "memory":
	default:
		errs = append(errs, archerr.Errorf(archerr.CodeConfigValidateInvalid,
			"config: storage.backend must be one of [badger, memory], got %q", c.Storage.Backend))
	}
	if c.Storage.GCDiscardRatio <= 0 || c.Storage.GCDiscardRatio >= 1 {
		errs = append(errs, archerr.Errorf(archerr.CodeConfigValidateInvalid,
			"config: storage.gc_discard_ratio must be in (0, 1), got %g", c.Storage.GCDiscardRatio))
	}
	return errs
}

func (c *Config) validateScheduler() []error {
	var errs []error
	for name, d := range map[string]time.Duration{
		"archive_interval":     c.Scheduler.ArchiveInterval,
		"maintenance_interval": c.Scheduler.MaintenanceInterval,
		"storage.gc_interval":  c.Storage.GCInterval,
	} {
		if d <= 0 {
			errs = append(errs, archerr.Errorf(archerr.CodeConfigValidateInvalid,
				"config: %s must be positive, got %s", name, d))
		}
	}
	if c.Scheduler.MaxRetries < 0 {
		errs = append(errs, archerr.Errorf(archerr.CodeConfigValidateInvalid,
			"config: scheduler.max_retries must not be negative, got %d", c.Scheduler.MaxRetries))
	}
	return errs
}

// LoggingConfig converts to the logger configuration.
func (c *Config) LoggingConfig() logging.Config {
	return logging.Config{
		Level:       c.Logging.Level,
		Development: c.Logging.Development,
		Encoding:    c.Logging.Encoding,
	}
}

// CompressionConfig converts to the engine configuration. Configured
// strategies are layered over the built-in table.
func (c *Config) CompressionConfig() (compression.Config, error) {
	out := compression.DefaultConfig()
	out.EffectivenessThreshold = c.Compression.EffectivenessThreshold
	out.HistoryLimit = c.Compression.HistoryLimit
	out.QueueSize = c.Compression.QueueSize
	out.MetadataRetentionDays = c.Archive.MaxRetentionDays
	out.Codec = codec.Options{
		SampleRate:        c.Compression.SampleRate,
		MaxSamples:        c.Compression.MaxSamples,
		Period:            codec.Period(c.Compression.AggregationPeriod),
		AggregationFields: c.Compression.AggregationFields,
		DeltaFields:       c.Compression.DeltaFields,
	}

	for _, s := range c.Compression.Strategies {
		if s.DataType == "" {
			return out, archerr.Errorf(archerr.CodeConfigValidateInvalid, "config: compression.strategies entry has no data_type")
		}
		kinds := make([]codec.Kind, 0, len(s.Codecs))
		for _, name := range s.Codecs {
			k, err := codec.ParseKind(name)
			if err != nil {
				return out, archerr.Errorf(archerr.CodeConfigValidateInvalid,
					"config: compression.strategies[%s]: %w", s.DataType, err)
			}
			kinds = append(kinds, k)
		}
		out.Strategies[s.DataType] = kinds
	}
	return out, nil
}

// ArchiveConfig converts to the archive store configuration.
func (c *Config) ArchiveConfig() archive.Config {
	return archive.Config{
		CompressionEnabled:  c.Archive.CompressionEnabled,
		BackupEnabled:       c.Archive.BackupEnabled,
		BackupEncoding:      archive.BackupEncoding(c.Archive.BackupEncoding),
		RemoveSensitiveData: c.Archive.RemoveSensitiveData,
		MaxRetentionDays:    c.Archive.MaxRetentionDays,
		ActiveDays:          c.Archive.ActiveDays,
		ArchiveThreshold:    c.Archive.ArchiveThreshold,
		MaxActiveSize:       c.Archive.MaxActiveSize,
		BatchSize:           c.Archive.BatchSize,
		QueueSize:           c.Archive.QueueSize,
	}
}

// SchedulerConfig converts to the scheduler retry configuration.
func (c *Config) SchedulerConfig() scheduler.Config {
	return scheduler.Config{
		MaxRetries:     c.Scheduler.MaxRetries,
		RetryBaseDelay: c.Scheduler.RetryBaseDelay,
	}
}
