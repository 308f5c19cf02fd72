// Package retry wraps a describer.Describer with a bounded, fixed-backoff
// retry loop.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/chriskillpack/alttagger/describer"
)

const (
	DefaultMaxRetries  = 2
	DefaultBackoff     = time.Second
	DefaultCallTimeout = 30 * time.Second
)

// Outcome is the result of describing one image, including every retry.
// Exactly one of Text and Err is set.
type Outcome struct {
	Text     string
	Err      error
	Attempts int
}

// OK reports whether the outcome carries alt text.
func (o Outcome) OK() bool { return o.Err == nil }

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Sleep is the SleepFunc used outside of tests.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

type Describer struct {
	d           describer.Describer
	backoff     time.Duration
	callTimeout time.Duration
	sleep       SleepFunc
}

type Option func(*Describer)

// WithBackoff sets the fixed wait between attempts.
func WithBackoff(d time.Duration) Option {
	return func(r *Describer) { r.backoff = d }
}

// WithCallTimeout bounds each individual provider call. A call that runs past
// it counts as a failed attempt.
func WithCallTimeout(d time.Duration) Option {
	return func(r *Describer) { r.callTimeout = d }
}

func WithSleep(fn SleepFunc) Option {
	return func(r *Describer) { r.sleep = fn }
}

func New(d describer.Describer, opts ...Option) *Describer {
	r := &Describer{
		d:           d,
		backoff:     DefaultBackoff,
		callTimeout: DefaultCallTimeout,
		sleep:       Sleep,
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Name returns the name of the wrapped describer.
func (r *Describer) Name() string { return r.d.Name() }

// DescribeWithRetry makes up to 1+maxRetries calls and returns the first
// success or the last failure. A negative maxRetries is treated as zero.
// Cancellation of ctx stops further attempts and is reported as the failure.
func (r *Describer) DescribeWithRetry(ctx context.Context, req describer.Request, maxRetries int) Outcome {
	maxRetries = max(maxRetries, 0)

	var lastErr error
	for attempt := 1; attempt <= maxRetries+1; attempt++ {
		if attempt > 1 {
			if err := r.sleep(ctx, r.backoff); err != nil {
				return Outcome{Err: err, Attempts: attempt - 1}
			}
		}

		text, err := r.call(ctx, req)
		if err == nil {
			return Outcome{Text: text, Attempts: attempt}
		}
		lastErr = err

		// The parent is gone, a retry cannot succeed.
		if ctx.Err() != nil {
			return Outcome{Err: ctx.Err(), Attempts: attempt}
		}

		log.Warn().
			Err(err).
			Str("provider", r.d.Name()).
			Str("image", req.Image.Path).
			Int("attempt", attempt).
			Int("max_attempts", maxRetries+1).
			Msg("describe attempt failed")
	}

	return Outcome{Err: lastErr, Attempts: maxRetries + 1}
}

func (r *Describer) call(ctx context.Context, req describer.Request) (string, error) {
	if r.callTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.callTimeout)
		defer cancel()
	}

	text, err := r.d.DescribeImage(ctx, req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return "", fmt.Errorf("provider call timed out after %s: %w", r.callTimeout, err)
		}
		return "", err
	}
	return text, nil
}
