package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/nicktill/statvault/pkg/config"
	"github.com/nicktill/statvault/pkg/logging"
	"github.com/nicktill/statvault/pkg/server"
)

func newServeCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the archive HTTP API and scheduled jobs",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := v.BindPFlag("server.listen", cmd.Flags().Lookup("listen")); err != nil {
				return err
			}
			cfg, err := config.FromViper(v)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, cfg)
		},
	}
	cmd.Flags().String("listen", "", "override listen address (host:port)")
	return cmd
}

func runServe(ctx context.Context, cfg *config.Config) error {
	logger, err := logging.New(cfg.LoggingConfig())
	if err != nil {
		return err
	}
	defer logger.Sync()
	zap.ReplaceGlobals(logger)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	clock := clockwork.NewRealClock()
	comps, err := server.Initialize(ctx, cfg, clock, logger, reg)
	if err != nil {
		return err
	}
	defer func() {
		if err := comps.Close(); err != nil {
			logger.Warn("closing storage", zap.Error(err))
		}
	}()

	hubCtx, cancelHub := context.WithCancel(context.WithoutCancel(ctx))
	defer cancelHub()
	go comps.Hub.Run(hubCtx)
	go server.BroadcastStats(hubCtx, clock, comps.Store, comps.Engine, comps.Hub)

	comps.Scheduler.Start(context.WithoutCancel(ctx))

	srv := server.New(server.Deps{
		Store:     comps.Store,
		KV:        comps.KV,
		Engine:    comps.Engine,
		Scheduler: comps.Scheduler,
		Monitor:   comps.Monitor,
		Hub:       comps.Hub,
		Gatherer:  reg,
		Clock:     clock,
		Logger:    logger,
	})

	logger.Info("statvault starting",
		zap.String("listen", cfg.Server.Listen),
		zap.String("storage", cfg.Storage.Backend),
		zap.Strings("jobs", comps.Scheduler.Jobs()),
	)
	return srv.Run(ctx, cfg.Server.Listen)
}
