package server

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/nicktill/statvault/pkg/archive"
	"github.com/nicktill/statvault/pkg/compression"
	"github.com/nicktill/statvault/pkg/config"
	"github.com/nicktill/statvault/pkg/scheduler"
)

// StatsInterval is how often live statistics are pushed to websocket clients.
const StatsInterval = 5 * time.Second

// Jobs returns the scheduled jobs for the configuration. The archive sweep
// needs a source directory; value log GC only applies to badger.
func Jobs(cfg *config.Config, c *Components, clock clockwork.Clock, logger *zap.Logger) []scheduler.Job {
	if !cfg.Scheduler.Enabled {
		return nil
	}

	var pruner scheduler.MetadataPruner
	if c.Engine != nil {
		pruner = c.Engine
	}
	jobs := []scheduler.Job{
		scheduler.MaintenanceJob(c.Store, pruner, logger, cfg.Scheduler.MaintenanceInterval),
	}
	if cfg.Scheduler.SourceDir != "" {
		src := scheduler.DirSource{Root: cfg.Scheduler.SourceDir}
		jobs = append(jobs, scheduler.ArchiveSweepJob(src, c.Store, clock, logger, cfg.Scheduler.ArchiveInterval))
	}
	if gc, ok := c.KV.(scheduler.GarbageCollector); ok {
		jobs = append(jobs, scheduler.GCJob(gc, cfg.Storage.GCDiscardRatio, cfg.Storage.GCInterval))
	}
	return jobs
}

// StatsUpdate is the periodic websocket message.
type StatsUpdate struct {
	Type        string             `json:"type"`
	Timestamp   int64              `json:"timestamp"`
	Archive     archive.Stats      `json:"archive"`
	Compression *compression.Stats `json:"compression,omitempty"`
}

// BroadcastStats pushes store and engine statistics to websocket clients
// until ctx is cancelled. Ticks with no connected clients are skipped.
func BroadcastStats(ctx context.Context, clock clockwork.Clock, store *archive.Store, engine *compression.Engine, hub *EventHub) {
	ticker := clock.NewTicker(StatsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			if !hub.HasClients() {
				continue
			}
			update := StatsUpdate{
				Type:      "stats_update",
				Timestamp: clock.Now().Unix(),
				Archive:   store.Statistics(),
			}
			if engine != nil {
				st := engine.Statistics()
				update.Compression = &st
			}
			if err := hub.Broadcast(update); err != nil {
				hub.logger.Warn("failed to broadcast stats", zap.Error(err))
			}
		}
	}
}
