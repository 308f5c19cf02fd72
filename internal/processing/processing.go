// Package processing runs bounded, resumable alt text generation steps.
//
// A step reads the current pending set, works through at most one batch of
// it and returns a BatchResult. Failed images are never marked, they simply
// stay pending and come back at the front of the next step's pending set.
package processing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/chriskillpack/alttagger/describer"
	"github.com/chriskillpack/alttagger/internal/batch"
	"github.com/chriskillpack/alttagger/internal/ratelimit"
	"github.com/chriskillpack/alttagger/internal/retry"
	"github.com/chriskillpack/alttagger/internal/session"
)

// DefaultPreviewCount is the number of images Preview describes when asked
// for zero or fewer.
const DefaultPreviewCount = 5

// ImageRepository is the store of images and their alt text.
type ImageRepository interface {
	// ListPending returns the ids of images without alt text in ascending
	// order.
	ListPending(ctx context.Context) ([]int64, error)
	// IsPending reports whether id still lacks alt text.
	IsPending(ctx context.Context, id int64) (bool, error)
	// LoadImage reads the image for id, ready to send to a model.
	LoadImage(ctx context.Context, id int64) (describer.Image, error)
	// SetAltText stores text for id, which takes it out of the pending set.
	// describedBy names the provider and model that produced it.
	SetAltText(ctx context.Context, id int64, text, describedBy string) error
}

// BatchResult reports a single step.
type BatchResult struct {
	Attempted       int         `json:"attempted"`
	Succeeded       int         `json:"succeeded"` // cumulative for the session
	BatchSucceeded  int         `json:"batch_succeeded"`
	Skipped         int         `json:"skipped"` // gained alt text elsewhere mid-step
	Errors          []ItemError `json:"errors"`
	Completed       bool        `json:"completed"`
	ProgressPercent float64     `json:"progress_percent"`
	SessionTotal    int         `json:"session_total"`
	Processed       int         `json:"processed"`
	Remaining       int         `json:"remaining"`
}

// Summary renders the result the way the CLI and the HTTP API report it.
func (r *BatchResult) Summary() string {
	return fmt.Sprintf("Processed %d/%d images. %d successful.", r.Processed, r.SessionTotal, r.Succeeded)
}

// PreviewResult is one image described by Preview.
type PreviewResult struct {
	ID      int64  `json:"id"`
	Path    string `json:"path"`
	AltText string `json:"alt_text,omitempty"`
	Error   string `json:"error,omitempty"`
}

type Processor struct {
	repo    ImageRepository
	d       *retry.Describer
	tracker *session.Tracker
	policy  *ratelimit.Policy
	locker  Locker
	sleep   retry.SleepFunc
}

type Option func(*processorOptions)

type processorOptions struct {
	locker    Locker
	sleep     retry.SleepFunc
	retryOpts []retry.Option
}

// WithLocker replaces the in-process step lock, e.g. with a database lock
// shared between processes.
func WithLocker(l Locker) Option {
	return func(o *processorOptions) { o.locker = l }
}

// WithSleep replaces the pacing and retry backoff sleep, for tests.
func WithSleep(fn retry.SleepFunc) Option {
	return func(o *processorOptions) {
		o.sleep = fn
		o.retryOpts = append(o.retryOpts, retry.WithSleep(fn))
	}
}

// WithRetryOptions passes options through to the retrying describer.
func WithRetryOptions(opts ...retry.Option) Option {
	return func(o *processorOptions) { o.retryOpts = append(o.retryOpts, opts...) }
}

// New returns a Processor. d may be nil for a processor that only manages the
// session, Run and Preview then fail with ErrConfiguration.
func New(repo ImageRepository, d describer.Describer, tracker *session.Tracker, policy *ratelimit.Policy, opts ...Option) *Processor {
	o := processorOptions{
		locker: &MutexLocker{},
		sleep:  retry.Sleep,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if policy == nil {
		policy = ratelimit.Default()
	}

	var rd *retry.Describer
	if d != nil {
		rd = retry.New(d, o.retryOpts...)
	}

	return &Processor{
		repo:    repo,
		d:       rd,
		tracker: tracker,
		policy:  policy,
		locker:  o.locker,
		sleep:   o.sleep,
	}
}

func (p *Processor) prepare(cfg Config) (Config, error) {
	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	if p.d == nil {
		return cfg, configErr("no %s backend is configured", cfg.Provider)
	}
	if name := p.d.Name(); name != cfg.Provider {
		return cfg, configErr("provider %q requested but the %q backend is configured", cfg.Provider, name)
	}
	return cfg, nil
}

func (p *Processor) lock(ctx context.Context) (func(), error) {
	ok, err := p.locker.TryAcquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: acquire step lock: %w", ErrStore, err)
	}
	if !ok {
		return nil, ErrStepInProgress
	}
	return func() {
		if err := p.locker.Release(context.WithoutCancel(ctx)); err != nil {
			log.Error().Err(err).Msg("failed to release step lock")
		}
	}, nil
}

func (p *Processor) listPending(ctx context.Context) ([]int64, error) {
	pending, err := p.repo.ListPending(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: list pending images: %w", ErrStore, err)
	}
	return pending, nil
}

// Run executes one step. Item failures are reported in the result, only
// configuration, lock and store failures are returned as errors.
//
// Once a batch has started it runs to the end. Cancelling ctx makes the
// remaining provider calls fail fast, but results already produced are still
// saved and counted.
func (p *Processor) Run(ctx context.Context, cfg Config) (*BatchResult, error) {
	cfg, err := p.prepare(cfg)
	if err != nil {
		return nil, err
	}

	unlock, err := p.lock(ctx)
	if err != nil {
		return nil, err
	}
	defer unlock()

	pending, err := p.listPending(ctx)
	if err != nil {
		return nil, err
	}
	totalRemaining := len(pending)

	sessionTotal, err := p.tracker.StartOrResume(ctx, totalRemaining)
	if err != nil {
		return nil, err
	}

	if totalRemaining == 0 {
		cumulative, err := p.tracker.Cumulative(ctx)
		if err != nil {
			return nil, err
		}
		if err := p.tracker.End(ctx); err != nil {
			return nil, err
		}
		return &BatchResult{
			Succeeded:       cumulative,
			Errors:          []ItemError{},
			Completed:       true,
			ProgressPercent: 100,
			SessionTotal:    sessionTotal,
			Processed:       sessionTotal,
		}, nil
	}

	limit, ok := p.policy.LimitsFor(cfg.Provider, cfg.Model)
	plan := batch.New(pending, cfg.BatchSize, limit, ok)

	log.Info().
		Str("session", p.tracker.Name()).
		Str("provider", cfg.Provider).
		Str("model", cfg.Model).
		Int("batch", len(plan.IDs)).
		Int("pending", totalRemaining).
		Dur("delay", plan.Delay).
		Msg("processing step")

	// Bookkeeping after a describe call must not be lost to cancellation.
	saveCtx := context.WithoutCancel(ctx)
	describedBy := cfg.Provider + "/" + cfg.Model

	var batchSuccess, skipped int
	itemErrors := []ItemError{}
	called := false
	for _, id := range plan.IDs {
		pending, err := p.repo.IsPending(ctx, id)
		switch {
		case err != nil:
			log.Debug().Int64("id", id).Err(err).Msg("image failed")
			itemErrors = append(itemErrors, ItemError{ID: id, Message: fmt.Sprintf("check pending: %v", err)})
			continue
		case !pending:
			log.Debug().Int64("id", id).Msg("image already has alt text")
			skipped++
			continue
		}

		// Pacing applies between provider calls, never after the last one.
		if called && plan.Delay > 0 {
			p.sleep(ctx, plan.Delay)
		}
		called = true

		if err := p.processItem(ctx, saveCtx, cfg, id, describedBy); err != nil {
			log.Debug().Int64("id", id).Err(err).Msg("image failed")
			itemErrors = append(itemErrors, ItemError{ID: id, Message: err.Error()})
			continue
		}
		batchSuccess++
	}

	cumulative, err := p.tracker.RecordSuccess(saveCtx, batchSuccess)
	if err != nil {
		return nil, err
	}

	estimatedRemaining := totalRemaining - batchSuccess - skipped
	processed, percent := session.Progress(sessionTotal, estimatedRemaining)

	res := &BatchResult{
		Attempted:       len(plan.IDs),
		Succeeded:       cumulative,
		BatchSucceeded:  batchSuccess,
		Skipped:         skipped,
		Errors:          itemErrors,
		Completed:       estimatedRemaining == 0,
		ProgressPercent: percent,
		SessionTotal:    sessionTotal,
		Processed:       processed,
		Remaining:       estimatedRemaining,
	}

	log.Info().
		Str("session", p.tracker.Name()).
		Int("attempted", res.Attempted).
		Int("succeeded", batchSuccess).
		Int("failed", len(itemErrors)).
		Float64("progress", percent).
		Msg(res.Summary())

	return res, nil
}

func (p *Processor) describe(ctx context.Context, cfg Config, id int64) (describer.Image, string, error) {
	img, err := p.repo.LoadImage(ctx, id)
	if err != nil {
		return img, "", err
	}

	out := p.d.DescribeWithRetry(ctx, describer.Request{Image: img, Prompt: cfg.Prompt, Model: cfg.Model}, cfg.MaxRetries)
	if !out.OK() {
		return img, "", out.Err
	}

	text := CleanAltText(out.Text)
	if text == "" {
		return img, "", describer.ErrEmptyResponse
	}
	return img, text, nil
}

func (p *Processor) processItem(ctx, saveCtx context.Context, cfg Config, id int64, describedBy string) error {
	_, text, err := p.describe(ctx, cfg, id)
	if err != nil {
		return err
	}
	if err := p.repo.SetAltText(saveCtx, id, text, describedBy); err != nil {
		return fmt.Errorf("save alt text: %w", err)
	}
	return nil
}

// CheckSession reports whether a session can be resumed. A session whose
// pending set has drained is cleared.
func (p *Processor) CheckSession(ctx context.Context) (session.Resumable, error) {
	pending, err := p.listPending(ctx)
	if err != nil {
		return session.Resumable{}, err
	}
	return p.tracker.CheckResumable(ctx, len(pending))
}

// StartFreshSession clears the session counters so the next Run records a
// new session total. It fails with ErrStepInProgress while a step runs.
func (p *Processor) StartFreshSession(ctx context.Context) error {
	unlock, err := p.lock(ctx)
	if err != nil {
		return err
	}
	defer unlock()

	return p.tracker.End(ctx)
}

// Preview describes the first n pending images without saving anything or
// touching the session.
func (p *Processor) Preview(ctx context.Context, cfg Config, n int) ([]PreviewResult, error) {
	cfg, err := p.prepare(cfg)
	if err != nil {
		return nil, err
	}
	if n <= 0 {
		n = DefaultPreviewCount
	}

	pending, err := p.listPending(ctx)
	if err != nil {
		return nil, err
	}
	pending = pending[:min(n, len(pending))]

	var delay time.Duration
	if limit, ok := p.policy.LimitsFor(cfg.Provider, cfg.Model); ok {
		delay = limit.InterCallDelay
	}

	results := make([]PreviewResult, 0, len(pending))
	for i, id := range pending {
		img, text, err := p.describe(ctx, cfg, id)
		r := PreviewResult{ID: id, Path: img.Path, AltText: text}
		if err != nil {
			r.Error = err.Error()
		}
		results = append(results, r)

		if errors.Is(err, context.Canceled) {
			break
		}
		if i < len(pending)-1 && delay > 0 {
			p.sleep(ctx, delay)
		}
	}
	return results, nil
}
