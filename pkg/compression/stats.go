package compression

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/nicktill/statvault/pkg/codec"
	archerr "github.com/nicktill/statvault/pkg/errors"
	"github.com/nicktill/statvault/pkg/jobqueue"
)

// Stats is a snapshot of engine activity.
type Stats struct {
	TotalCompressed int                     `json:"totalCompressed"`
	TotalSaved      int64                   `json:"totalSaved"`
	AverageRatio    float64                 `json:"averageRatio"`
	QueueLength     int                     `json:"queueLength"`
	Compressing     bool                    `json:"isCompressing"`
	HistoryCount    int                     `json:"historyCount"`
	MetadataCount   int                     `json:"metadataCount"`
	Algorithms      []codec.Kind            `json:"algorithms"`
	Strategies      map[string][]codec.Kind `json:"strategies"`
}

// record must run on the worker.
func (e *Engine) record(res *Result, cfg Config) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if cfg.HistoryLimit > 0 {
		e.history = append(e.history, *res)
		if over := len(e.history) - cfg.HistoryLimit; over > 0 {
			e.history = append([]Result(nil), e.history[over:]...)
		}
	}

	if !res.Compressed {
		return
	}
	e.metadata[res.Metadata.ID] = res.Metadata

	// Running mean over effective compressions.
	e.stats.compressed++
	e.stats.totalSaved += int64(res.Info.OriginalSize - res.Info.FinalSize)
	n := float64(e.stats.compressed)
	e.stats.averageRatio += (res.Info.CompressionRatio - e.stats.averageRatio) / n
}

// Statistics returns the current engine statistics.
func (e *Engine) Statistics() Stats {
	e.mu.RLock()
	defer e.mu.RUnlock()

	strategies := make(map[string][]codec.Kind, len(e.cfg.Strategies))
	for k, v := range e.cfg.Strategies {
		strategies[k] = append([]codec.Kind(nil), v...)
	}
	return Stats{
		TotalCompressed: e.stats.compressed,
		TotalSaved:      e.stats.totalSaved,
		AverageRatio:    e.stats.averageRatio,
		QueueLength:     e.queue.Len(),
		Compressing:     e.queue.Busy(),
		HistoryCount:    len(e.history),
		MetadataCount:   len(e.metadata),
		Algorithms:      e.registry.Kinds(),
		Strategies:      strategies,
	}
}

// History returns the most recent results, oldest first.
func (e *Engine) History() []Result {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return append([]Result(nil), e.history...)
}

// Metadata returns the metadata of a compression still held by the engine.
func (e *Engine) Metadata(id string) (*Metadata, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	m, ok := e.metadata[id]
	return m, ok
}

// Config returns a copy of the active configuration.
func (e *Engine) Config() Config {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return Patch{}.Apply(e.cfg)
}

// UpdateConfig applies a partial configuration on the worker, after any
// compressions queued before it.
func (e *Engine) UpdateConfig(ctx context.Context, p Patch) (Config, error) {
	return jobqueue.Do(ctx, e.queue, func(context.Context) (Config, error) {
		e.mu.Lock()
		defer e.mu.Unlock()

		next := p.Apply(e.cfg)
		if errs := next.Validate(); len(errs) > 0 {
			return e.cfg, archerr.Wrap(errors.Join(errs...), archerr.CodeConfigValidateInvalid, "invalid compression config")
		}
		e.cfg = next
		if next.HistoryLimit > 0 && len(e.history) > next.HistoryLimit {
			e.history = append([]Result(nil), e.history[len(e.history)-next.HistoryLimit:]...)
		}
		e.logger.Info("compression config updated",
			zap.Float64("effectiveness_threshold", next.EffectivenessThreshold),
		)
		return Patch{}.Apply(next), nil
	})
}

// Maintenance drops compression metadata older than the configured retention
// and returns how many entries were removed.
func (e *Engine) Maintenance(ctx context.Context) (int, error) {
	return jobqueue.Do(ctx, e.queue, func(context.Context) (int, error) {
		e.mu.Lock()
		defer e.mu.Unlock()

		if e.cfg.MetadataRetentionDays <= 0 {
			return 0, nil
		}
		cutoff := e.clock.Now().Add(-time.Duration(e.cfg.MetadataRetentionDays) * 24 * time.Hour)
		removed := 0
		for id, m := range e.metadata {
			if m.CreatedAt.Before(cutoff) {
				delete(e.metadata, id)
				removed++
			}
		}
		if removed > 0 {
			e.logger.Info("pruned compression metadata", zap.Int("removed", removed))
		}
		return removed, nil
	})
}
