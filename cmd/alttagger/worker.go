package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/chriskillpack/alttagger/internal/processing"
	"github.com/chriskillpack/alttagger/internal/queue"
)

func newWorkerCmd() *cobra.Command {
	var (
		interval       time.Duration
		enqueue        bool
		maxFailedSteps int
	)

	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Run processing steps from a PostgreSQL job queue",
		Long: `Runs a river queue worker that executes one processing step per job and
schedules the next step until the session completes. Session state must live
in PostgreSQL (--state postgres://...).`,
		Example: `  # Start a worker and kick off a run
  alttagger worker --state postgres://localhost/alttagger --enqueue`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if !cfg.Postgres() {
				return fmt.Errorf("%w: worker needs a postgres state URL", processing.ErrConfiguration)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := openApp(ctx, cfg, true)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := queue.Migrate(ctx, a.pool); err != nil {
				return err
			}

			srv, err := queue.NewServer(ctx, queue.ServerConfig{
				Pool:   a.pool,
				Worker: queue.NewStepWorker(a.proc, queue.WithInterval(interval)),
			})
			if err != nil {
				return err
			}

			if enqueue {
				err := srv.Enqueue(ctx, queue.StepArgs{Config: cfg.Step(), MaxFailedSteps: maxFailedSteps})
				if err != nil {
					return err
				}
				log.Info().Msg("enqueued first step")
			}

			if err := srv.Start(ctx); err != nil {
				return err
			}
			log.Info().Str("queue", queue.QueueSteps).Msg("worker started")

			<-ctx.Done()
			log.Info().Msg("stopping worker")
			return srv.Stop(context.WithoutCancel(ctx))
		},
	}

	flags := cmd.Flags()
	flags.DurationVar(&interval, "interval", 0, "Wait between steps")
	flags.BoolVar(&enqueue, "enqueue", false, "Enqueue the first step of a run on start")
	flags.IntVar(&maxFailedSteps, "max-failed-steps", queue.DefaultMaxFailedSteps, "Stop a run after this many consecutive steps in which every image failed")

	return cmd
}
