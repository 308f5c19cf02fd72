// Package queue drives processing steps from a river job queue. Each job
// runs one step and enqueues the next until the session completes.
package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/riverqueue/river"
	"github.com/rs/zerolog/log"

	"github.com/chriskillpack/alttagger/internal/processing"
)

const (
	// Queue names use underscores, river rejects colons.
	QueueSteps = "alttagger_steps"

	maxRetryAttempts = 5

	DefaultMaxFailedSteps = 3
	busySnooze            = 30 * time.Second
)

type StepArgs struct {
	Config processing.Config `json:"config"`

	// Step counts jobs in this chain, FailedSteps counts consecutive steps
	// in which every attempted image failed.
	Step           int `json:"step"`
	FailedSteps    int `json:"failed_steps"`
	MaxFailedSteps int `json:"max_failed_steps,omitempty"`
}

func (StepArgs) Kind() string { return "alttagger:step" }

func (StepArgs) InsertOpts() river.InsertOpts {
	return river.InsertOpts{
		Queue:       QueueSteps,
		MaxAttempts: maxRetryAttempts,
	}
}

// Stepper runs a single processing step, satisfied by *processing.Processor.
type Stepper interface {
	Run(ctx context.Context, cfg processing.Config) (*processing.BatchResult, error)
}

// EnqueueFunc schedules the next step of a chain.
type EnqueueFunc func(ctx context.Context, args StepArgs, opts *river.InsertOpts) error

type StepWorker struct {
	river.WorkerDefaults[StepArgs]
	stepper  Stepper
	interval time.Duration
	enqueue  EnqueueFunc
}

type WorkerOption func(*StepWorker)

// WithInterval delays each follow-up step by d.
func WithInterval(d time.Duration) WorkerOption {
	return func(w *StepWorker) { w.interval = d }
}

// WithEnqueue replaces the river client taken from the job context.
func WithEnqueue(fn EnqueueFunc) WorkerOption {
	return func(w *StepWorker) { w.enqueue = fn }
}

func NewStepWorker(stepper Stepper, opts ...WorkerOption) *StepWorker {
	w := &StepWorker{
		stepper: stepper,
		enqueue: enqueueFromContext,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

func enqueueFromContext(ctx context.Context, args StepArgs, opts *river.InsertOpts) error {
	client, err := river.ClientFromContextSafely[pgx.Tx](ctx)
	if err != nil {
		return err
	}
	_, err = client.Insert(ctx, args, opts)
	return err
}

// A step is bounded by the batch ceiling times the slowest pacing delay plus
// provider timeouts.
func (w *StepWorker) Timeout(job *river.Job[StepArgs]) time.Duration {
	return 30 * time.Minute
}

// Exponential backoff: 1st retry +1s, 2nd +4s, 3rd +9s
func (w *StepWorker) NextRetry(job *river.Job[StepArgs]) time.Time {
	attempt := job.Attempt
	backoff := time.Duration(attempt*attempt) * time.Second
	return time.Now().Add(backoff)
}

func (w *StepWorker) Work(ctx context.Context, job *river.Job[StepArgs]) error {
	args := job.Args
	logger := log.With().Int64("job_id", job.ID).Int("step", args.Step).Logger()

	res, err := w.stepper.Run(ctx, args.Config)
	switch {
	case errors.Is(err, processing.ErrConfiguration):
		logger.Error().Err(err).Msg("step configuration is invalid, cancelling")
		return river.JobCancel(err)
	case errors.Is(err, processing.ErrStepInProgress):
		logger.Info().Msg("another step is running, snoozing")
		return river.JobSnooze(busySnooze)
	case err != nil:
		logger.Error().Err(err).Msg("step failed")
		return err
	}

	logger.Info().
		Int("attempted", res.Attempted).
		Int("succeeded", res.BatchSucceeded).
		Float64("progress", res.ProgressPercent).
		Msg(res.Summary())

	if res.Completed {
		logger.Info().Msg("session complete")
		return nil
	}

	next := args
	next.Step++
	if res.Attempted > 0 && res.BatchSucceeded == 0 {
		next.FailedSteps++
	} else {
		next.FailedSteps = 0
	}

	maxFailed := args.MaxFailedSteps
	if maxFailed <= 0 {
		maxFailed = DefaultMaxFailedSteps
	}
	if next.FailedSteps >= maxFailed {
		err := fmt.Errorf("%d consecutive steps failed every image", next.FailedSteps)
		logger.Error().Err(err).Msg("stopping step chain")
		return river.JobCancel(err)
	}

	opts := next.InsertOpts()
	if w.interval > 0 {
		opts.ScheduledAt = time.Now().Add(w.interval)
	}
	if err := w.enqueue(ctx, next, &opts); err != nil {
		// The step's work is saved, retrying would only run another step.
		logger.Error().Err(err).Msg("failed to enqueue next step")
		return river.JobCancel(fmt.Errorf("enqueue next step: %w", err))
	}
	return nil
}
