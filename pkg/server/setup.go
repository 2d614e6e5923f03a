package server

import (
	"context"
	"fmt"
	"os"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/nicktill/statvault/pkg/archive"
	"github.com/nicktill/statvault/pkg/checksum"
	"github.com/nicktill/statvault/pkg/compression"
	"github.com/nicktill/statvault/pkg/config"
	"github.com/nicktill/statvault/pkg/logging"
	"github.com/nicktill/statvault/pkg/metrics"
	"github.com/nicktill/statvault/pkg/scheduler"
	"github.com/nicktill/statvault/pkg/server/monitor"
	"github.com/nicktill/statvault/pkg/storage"
	"github.com/nicktill/statvault/pkg/storage/badger"
	"github.com/nicktill/statvault/pkg/storage/memory"
)

// Components is the wired statvault runtime.
type Components struct {
	KV        storage.KV
	Engine    *compression.Engine
	Store     *archive.Store
	Scheduler *scheduler.Scheduler
	Monitor   *monitor.StorageMonitor
	Hub       *EventHub
	Metrics   *metrics.Collectors
}

// InitializeStorage opens the configured KV backend.
func InitializeStorage(cfg *config.Config, logger *zap.Logger) (storage.KV, error) {
	logger = logging.OrNop(logger)
	if cfg.Storage.Backend == "memory" {
		logger.Warn("using in-memory storage, archives are lost on restart")
		return memory.New(), nil
	}

	if err := os.MkdirAll(cfg.Storage.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	kv, err := badger.New(badger.Config{
		Path:        cfg.Storage.DataDir,
		MaxMemoryMB: int64(cfg.Storage.MaxMemoryMB),
	})
	if err != nil {
		return nil, err
	}
	logger.Info("badger storage opened", zap.String("path", cfg.Storage.DataDir))
	return kv, nil
}

// Initialize wires storage, engine, store and scheduler. Collectors are
// registered on reg when it is non-nil.
func Initialize(ctx context.Context, cfg *config.Config, clock clockwork.Clock, logger *zap.Logger, reg prometheus.Registerer) (*Components, error) {
	logger = logging.OrNop(logger)
	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	c := &Components{Hub: NewEventHub(logger)}
	if reg != nil {
		c.Metrics = metrics.New(reg)
	}

	kv, err := InitializeStorage(cfg, logger)
	if err != nil {
		return nil, err
	}
	c.KV = kv

	compCfg, err := cfg.CompressionConfig()
	if err != nil {
		c.Close()
		return nil, err
	}
	c.Engine, err = compression.New(compCfg,
		compression.WithLogger(logger.Named("compression")),
		compression.WithClock(clock),
		compression.WithMetrics(c.Metrics),
	)
	if err != nil {
		c.Close()
		return nil, err
	}

	hasher, err := checksum.ByName(cfg.Archive.Checksum)
	if err != nil {
		c.Close()
		return nil, err
	}
	c.Store, err = archive.Open(ctx, kv, c.Engine, cfg.ArchiveConfig(),
		archive.WithLogger(logger.Named("archive")),
		archive.WithClock(clock),
		archive.WithHasher(hasher),
		archive.WithMetrics(c.Metrics),
		archive.WithListener(c.Hub.Publish),
	)
	if err != nil {
		c.Close()
		return nil, err
	}

	if cfg.Storage.Backend == "badger" {
		c.Monitor = monitor.NewStorageMonitor(cfg.Storage.DataDir, int64(cfg.Server.MaxStorageGB)<<30, clock)
	}

	c.Scheduler = scheduler.New(cfg.SchedulerConfig(),
		scheduler.WithClock(clock),
		scheduler.WithLogger(logger.Named("scheduler")),
		scheduler.WithMetrics(c.Metrics),
	)
	for _, job := range Jobs(cfg, c, clock, logger) {
		c.Scheduler.Add(job)
	}
	return c, nil
}

// Close stops the scheduler, drains the queues and closes storage.
func (c *Components) Close() error {
	if c.Scheduler != nil {
		c.Scheduler.Stop()
	}
	if c.Store != nil {
		c.Store.Close()
	}
	if c.Engine != nil {
		c.Engine.Close()
	}
	if c.KV != nil {
		return c.KV.Close()
	}
	return nil
}
