package scheduler

import (
	"context"
	"errors"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/nicktill/statvault/pkg/archive"
	"github.com/nicktill/statvault/pkg/codec"
	archerr "github.com/nicktill/statvault/pkg/errors"
	"github.com/nicktill/statvault/pkg/logging"
)

// Job names.
const (
	JobArchiveSweep = "archive_sweep"
	JobMaintenance  = "maintenance"
	JobStorageGC    = "storage_gc"
)

// ScheduledTag marks archives created by the sweep.
const ScheduledTag = "scheduled"

// Candidate is a dataset a Source offers for archiving.
type Candidate struct {
	Name     string
	DataType string
	Data     any
}

// Source decides what may be archived. After a candidate is archived the
// source is told which part must stay active.
type Source interface {
	Candidates(ctx context.Context) ([]Candidate, error)
	// Archived is called with the records that were not archived, or nil.
	Archived(ctx context.Context, c Candidate, keep any, archiveID string) error
}

// Archiver is the part of the archive store the jobs drive.
type Archiver interface {
	Archive(ctx context.Context, data any, dataType string, opts archive.Options) (*archive.Result, error)
	Maintenance(ctx context.Context) (archive.MaintenanceReport, error)
	Config() archive.Config
}

// MetadataPruner drops stale compression metadata.
type MetadataPruner interface {
	Maintenance(ctx context.Context) (int, error)
}

// GarbageCollector reclaims storage space.
type GarbageCollector interface {
	RunGC(discardRatio float64) error
}

// SweepReport summarizes one archive sweep.
type SweepReport struct {
	Candidates int      `json:"candidates"`
	Archived   []string `json:"archived"`
	Skipped    int      `json:"skipped"`
}

// Sweep archives the aged part of every candidate above the record-count
// threshold. A failing candidate does not stop the others.
func Sweep(ctx context.Context, src Source, store Archiver, now time.Time) (SweepReport, error) {
	var report SweepReport

	candidates, err := src.Candidates(ctx)
	if err != nil {
		return report, archerr.Wrap(err, archerr.CodeSchedulerSourceFailure, "list archive candidates")
	}
	report.Candidates = len(candidates)

	cfg := store.Config()
	var errs []error
	for _, c := range candidates {
		data, err := codec.ToGeneric(c.Data)
		if err != nil {
			errs = append(errs, archerr.Wrap(err, archerr.CodeArchiveDataInvalid, "candidate is not serializable",
				archerr.Field("candidate", c.Name)))
			continue
		}
		if archive.RecordCount(data) <= cfg.ArchiveThreshold {
			report.Skipped++
			continue
		}

		split := archive.Partition(data, archive.PartitionAge, cfg, now)
		if split.Archive == nil {
			report.Skipped++
			continue
		}

		res, err := store.Archive(ctx, split.Archive, c.DataType, archive.Options{Tags: []string{ScheduledTag}})
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if err := src.Archived(ctx, c, split.Keep, res.ArchiveID); err != nil {
			errs = append(errs, archerr.Wrap(err, archerr.CodeSchedulerSourceFailure, "release archived records",
				archerr.Field("candidate", c.Name), archerr.FieldArchiveID(res.ArchiveID)))
			continue
		}
		report.Archived = append(report.Archived, res.ArchiveID)
	}
	return report, errors.Join(errs...)
}

// ArchiveSweepJob runs Sweep every interval.
func ArchiveSweepJob(src Source, store Archiver, clock clockwork.Clock, logger *zap.Logger, interval time.Duration) Job {
	logger = logging.OrNop(logger)
	return Job{
		Name:     JobArchiveSweep,
		Interval: interval,
		Run: func(ctx context.Context) error {
			report, err := Sweep(ctx, src, store, clock.Now())
			logger.Info("archive sweep finished",
				zap.Int("candidates", report.Candidates),
				zap.Int("archived", len(report.Archived)),
				zap.Int("skipped", report.Skipped),
			)
			return err
		},
	}
}

// MaintenanceJob runs retention, rebuilds the search indices and prunes
// compression metadata. pruner may be nil.
func MaintenanceJob(store Archiver, pruner MetadataPruner, logger *zap.Logger, interval time.Duration) Job {
	logger = logging.OrNop(logger)
	return Job{
		Name:       JobMaintenance,
		Interval:   interval,
		RunOnStart: true,
		Run: func(ctx context.Context) error {
			report, err := store.Maintenance(ctx)
			if err != nil {
				return err
			}
			pruned := 0
			if pruner != nil {
				if pruned, err = pruner.Maintenance(ctx); err != nil {
					return err
				}
			}
			logger.Info("maintenance finished",
				zap.Int("deleted", report.Deleted),
				zap.Int("index_dates", report.Index.ByDate),
				zap.Int("pruned_metadata", pruned),
			)
			return nil
		},
	}
}

// GCJob runs storage garbage collection.
func GCJob(gc GarbageCollector, discardRatio float64, interval time.Duration) Job {
	return Job{
		Name:     JobStorageGC,
		Interval: interval,
		Run: func(context.Context) error {
			return gc.RunGC(discardRatio)
		},
	}
}
