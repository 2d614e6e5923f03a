package main

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/jonboulle/clockwork"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/nicktill/statvault/pkg/config"
	"github.com/nicktill/statvault/pkg/logging"
	"github.com/nicktill/statvault/pkg/scheduler"
	"github.com/nicktill/statvault/pkg/server"
)

func newSweepCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Run the archive sweep, retention and maintenance once",
		Long: "Archive eligible datasets from the source directory, delete archives past " +
			"retention, rebuild the search indices and prune compression metadata.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := v.BindPFlag("scheduler.source_dir", cmd.Flags().Lookup("source-dir")); err != nil {
				return err
			}
			cfg, err := config.FromViper(v)
			if err != nil {
				return err
			}
			return runSweep(cmd.Context(), cfg, cmd.OutOrStdout())
		},
	}
	cmd.Flags().String("source-dir", "", "directory of <dataType>/*.json datasets to archive")
	return cmd
}

func runSweep(ctx context.Context, cfg *config.Config, out io.Writer) (err error) {
	logger, err := logging.New(cfg.LoggingConfig())
	if err != nil {
		return err
	}
	defer logger.Sync()

	clock := clockwork.NewRealClock()
	comps, err := server.Initialize(ctx, cfg, clock, logger, nil)
	if err != nil {
		return err
	}
	defer func() {
		err = errors.Join(err, comps.Close())
	}()

	if cfg.Scheduler.SourceDir != "" {
		report, sweepErr := scheduler.Sweep(ctx, scheduler.DirSource{Root: cfg.Scheduler.SourceDir}, comps.Store, clock.Now())
		fmt.Fprintf(out, "sweep: %d candidates, %d archived, %d skipped\n",
			report.Candidates, len(report.Archived), report.Skipped)
		if sweepErr != nil {
			return sweepErr
		}
	}

	report, err := comps.Store.Maintenance(ctx)
	if err != nil {
		return err
	}
	pruned, err := comps.Engine.Maintenance(ctx)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(out, "maintenance: %d archives past retention deleted, %d compression records pruned, %d archives indexed\n",
		report.Deleted, pruned, comps.Store.Statistics().ArchiveCount)
	return err
}
