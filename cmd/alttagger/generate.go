package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/chriskillpack/alttagger/internal/batch"
	"github.com/chriskillpack/alttagger/internal/processing"
)

// lameduck is set by the first interrupt. The running step finishes and no
// new step starts.
var lameduck atomic.Bool

func sighandler(ch chan os.Signal, cancel context.CancelFunc) {
	for {
		<-ch
		if lameduck.Load() {
			// Already in lame duck, hard stop
			fmt.Println("Exiting")
			cancel()
			return
		}
		fmt.Println("Interrupt received, finishing the current step...")
		lameduck.Store(true)
	}
}

type generateFlags struct {
	batchSize      int
	maxRetries     int
	limit          int
	dryRun         bool
	fresh          bool
	maxFailedSteps int
}

func newGenerateCmd() *cobra.Command {
	var f generateFlags

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate alt text for images that are missing it",
		Long: `Runs processing steps until every pending image has alt text, the limit is
reached or too many steps in a row fail every image.

An interrupted run resumes the same session, so progress is reported against
the number of images pending when the session began. Use --fresh to start
counting again.`,
		Example: `  # Describe everything with Gemini
  alttagger generate --provider gemini

  # See what would be processed
  alttagger generate --dry-run

  # Describe at most 20 images with a local model
  alttagger generate --provider ollama --limit 20`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("batch-size") {
				cfg.BatchSize = f.batchSize
			}
			if cmd.Flags().Changed("max-retries") {
				cfg.MaxRetries = f.maxRetries
			}

			sigch := make(chan os.Signal, 2)
			signal.Notify(sigch, os.Interrupt, syscall.SIGTERM)
			defer signal.Stop(sigch)

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()
			go sighandler(sigch, cancel)

			if f.dryRun {
				a, err := openApp(ctx, cfg, false)
				if err != nil {
					return err
				}
				defer a.Close()
				return dryRun(ctx, a, f)
			}

			a, err := openApp(ctx, cfg, true)
			if err != nil {
				return err
			}
			defer a.Close()
			return generate(ctx, a, f)
		},
	}

	flags := cmd.Flags()
	flags.IntVar(&f.batchSize, "batch-size", 0, "Images per step, capped by the provider's rate limits")
	flags.IntVar(&f.maxRetries, "max-retries", 0, "Retries per image after the first attempt")
	flags.IntVar(&f.limit, "limit", 0, "Stop after this many images have been attempted, 0 for no limit")
	flags.BoolVar(&f.dryRun, "dry-run", false, "Show what would be processed without calling the provider")
	flags.BoolVar(&f.fresh, "fresh", false, "Discard the current session before starting")
	flags.IntVar(&f.maxFailedSteps, "max-failed-steps", 3, "Stop after this many consecutive steps in which every image failed")

	return cmd
}

func dryRun(ctx context.Context, a *app, f generateFlags) error {
	const listed = 10

	step := a.cfg.Step().WithDefaults()
	pending, err := a.db.ListPending(ctx)
	if err != nil {
		return err
	}
	policy, err := a.cfg.Policy()
	if err != nil {
		return err
	}
	limit, ok := policy.LimitsFor(step.Provider, step.Model)
	size := batch.EffectiveSize(step.BatchSize, limit, ok)

	fmt.Printf("%d images need alt text\n", len(pending))
	fmt.Printf("Would use %s model %s, %d images per step", step.Provider, step.Model, size)
	if ok && limit.InterCallDelay > 0 {
		fmt.Printf(", %s between requests", limit.InterCallDelay)
	}
	fmt.Println()
	if f.limit > 0 {
		fmt.Printf("Stopping after %d images\n", f.limit)
	}

	images, err := a.db.PendingImages(ctx, listed)
	if err != nil {
		return err
	}
	for _, img := range images {
		fmt.Printf("  %d: %s\n", img.Id, img.Path)
	}
	if len(pending) > listed {
		fmt.Printf("  ... and %d more\n", len(pending)-listed)
	}
	return nil
}

func generate(ctx context.Context, a *app, f generateFlags) error {
	if f.fresh {
		if err := a.proc.StartFreshSession(ctx); err != nil {
			return err
		}
		log.Info().Msg("started a fresh session")
	}

	step := a.cfg.Step()
	fmt.Printf("Using describer %s model %s\n", step.Provider, step.Model)

	var (
		bar       *progressbar.ProgressBar
		attempted int
		errcnt    int
		res       *processing.BatchResult
		err       error
	)
	for !lameduck.Load() {
		if f.limit > 0 {
			if attempted >= f.limit {
				fmt.Printf("Reached the limit of %d images\n", f.limit)
				break
			}
			step.BatchSize = min(a.cfg.BatchSize, f.limit-attempted)
		}

		start := time.Now()
		res, err = a.proc.Run(ctx, step)
		if err != nil {
			return err
		}
		attempted += res.Attempted

		if bar == nil {
			bar = progressbar.NewOptions(
				res.SessionTotal,
				progressbar.OptionSetDescription("Describing images"),
				progressbar.OptionThrottle(100*time.Millisecond),
				progressbar.OptionShowCount(),
				progressbar.OptionOnCompletion(func() { fmt.Println() }),
			)
		}
		bar.Set(res.Processed)

		for _, ie := range res.Errors {
			log.Warn().Int64("id", ie.ID).Msg(ie.Message)
		}
		log.Debug().Dur("took", time.Since(start)).Msg(res.Summary())

		if res.Completed {
			bar.Finish()
			fmt.Printf("All images have alt text. %d described this session.\n", res.Succeeded)
			return nil
		}

		if res.Attempted > 0 && res.BatchSucceeded == 0 {
			errcnt++
			if errcnt >= f.maxFailedSteps {
				fmt.Println()
				return fmt.Errorf("too many failed steps, last error: %s", lastError(res))
			}
		} else {
			errcnt = 0
		}

		if errors.Is(ctx.Err(), context.Canceled) {
			break
		}
	}

	if res != nil {
		fmt.Printf("\nStopped at %.1f%%, %d images remain. Run generate again to resume.\n", res.ProgressPercent, res.Remaining)
	}
	return nil
}

func lastError(res *processing.BatchResult) string {
	if len(res.Errors) == 0 {
		return "none"
	}
	return res.Errors[len(res.Errors)-1].Error()
}
