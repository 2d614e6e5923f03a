package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nicktill/statvault/pkg/archive"
	"github.com/nicktill/statvault/pkg/codec"
	"github.com/nicktill/statvault/pkg/config"
	archerr "github.com/nicktill/statvault/pkg/errors"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "statvault.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_DefaultValues(t *testing.T) {
	cfg, err := config.Load("")
	require.NoError(t, err)
	assert.Equal(t, config.DefaultListen, cfg.Server.Listen)
	assert.Equal(t, "badger", cfg.Storage.Backend)
	assert.Equal(t, 10*time.Minute, cfg.Storage.GCInterval)
	assert.Equal(t, 24*time.Hour, cfg.Scheduler.ArchiveInterval)
	assert.Equal(t, 1095, cfg.Archive.MaxRetentionDays)
	assert.Equal(t, "zstd", cfg.Archive.BackupEncoding)

	comp, err := cfg.CompressionConfig()
	require.NoError(t, err)
	assert.Equal(t, 0.7, comp.EffectivenessThreshold)
	assert.Equal(t, codec.PeriodHour, comp.Codec.Period)
	assert.Equal(t, []codec.Kind{codec.KindSummary, codec.KindSampling}, comp.Strategies["sessions"])
}

func TestLoad_FromFile(t *testing.T) {
	path := writeConfig(t, `
server:
  listen: "127.0.0.1:9090"
storage:
  backend: memory
archive:
  backup_encoding: lz4
  max_retention_days: 30
scheduler:
  maintenance_interval: 12h
compression:
  aggregation_period: day
  strategies:
    - data_type: timeSeriesData
      codecs: [delta, dictionary]
`)
	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:9090", cfg.Server.Listen)
	assert.Equal(t, "memory", cfg.Storage.Backend)
	assert.Equal(t, 12*time.Hour, cfg.Scheduler.MaintenanceInterval)

	ac := cfg.ArchiveConfig()
	assert.Equal(t, archive.BackupLZ4, ac.BackupEncoding)
	assert.Equal(t, 30, ac.MaxRetentionDays)

	comp, err := cfg.CompressionConfig()
	require.NoError(t, err)
	assert.Equal(t, codec.PeriodDay, comp.Codec.Period)
	assert.Equal(t, []codec.Kind{codec.KindDelta, codec.KindDictionary}, comp.Strategies["timeSeriesData"])
	assert.Equal(t, 30, comp.MetadataRetentionDays)
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("STATVAULT_SERVER_LISTEN", "10.0.0.1:8081")
	t.Setenv("STATVAULT_ARCHIVE_BATCH_SIZE", "50")

	cfg, err := config.Load("")
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.1:8081", cfg.Server.Listen)
	assert.Equal(t, 50, cfg.Archive.BatchSize)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := config.Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.True(t, archerr.HasCode(err, archerr.CodeConfigLoadReadFailure))
}

func TestLoad_ValidationCollectsEveryProblem(t *testing.T) {
	path := writeConfig(t, `
server:
  listen: "localhost"
storage:
  backend: sqlite
logging:
  level: chatty
archive:
  backup_encoding: gzip
  checksum: md5
compression:
  effectiveness_threshold: 3
  strategies:
    - data_type: sessions
      codecs: [zip]
`)
	_, err := config.Load(path)
	require.Error(t, err)
	require.True(t, archerr.IsInvalidInput(err))
	for _, want := range []string{"server.listen", "storage.backend", "logging", "backup encoding", "archive.checksum", "zip"} {
		assert.Contains(t, err.Error(), want)
	}
}
