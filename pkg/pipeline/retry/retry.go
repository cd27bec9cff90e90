// Package retry runs a single remote call with rate limiting and bounded,
// jittered exponential backoff on transient failures.
package retry

import (
	"context"
	"errors"
	"math/rand/v2"
	"time"

	"golang.org/x/time/rate"

	"github.com/shpitdev/appointment-contact-resolver/pkg/pipeline/core"
)

type Policy struct {
	// MaxRetries is the number of extra attempts after the first one.
	MaxRetries int

	// AttemptTimeout bounds each attempt. Zero leaves the caller's deadline in charge.
	AttemptTimeout time.Duration

	// Limiter, when set, is waited on before every attempt. It is usually shared
	// by every caller of the same upstream.
	Limiter *rate.Limiter

	// BackoffInitial is the initial sleep before retrying a transient failure.
	BackoffInitial time.Duration
	// BackoffMax caps exponential backoff.
	BackoffMax time.Duration
	// BackoffJitterFrac applies +/- jitter to backoff sleeps (0.2 = +/-20%).
	// Negative disables jitter.
	BackoffJitterFrac float64

	// OnRetry, if set, is called before sleeping ahead of the next attempt.
	OnRetry func(attempt int, err error, sleep time.Duration)
}

func (p Policy) withDefaults() Policy {
	if p.MaxRetries < 0 {
		p.MaxRetries = 0
	}
	if p.BackoffInitial <= 0 {
		p.BackoffInitial = 200 * time.Millisecond
	}
	if p.BackoffMax <= 0 {
		p.BackoffMax = 2 * time.Second
	}
	if p.BackoffJitterFrac == 0 {
		p.BackoffJitterFrac = 0.2
	}
	return p
}

// NewLimiter returns a limiter for rps requests per second, or nil when rps <= 0.
func NewLimiter(rps float64) *rate.Limiter {
	if rps <= 0 {
		return nil
	}
	return rate.NewLimiter(rate.Limit(rps), 1)
}

// Do calls fn until it succeeds, fails permanently, exhausts the policy's
// retry budget, or ctx is done.
func Do[T any](ctx context.Context, p Policy, fn func(ctx context.Context) (T, error)) (T, error) {
	p = p.withDefaults()

	var last T
	for attempt := 0; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return last, err
		}
		if p.Limiter != nil {
			if err := p.Limiter.Wait(ctx); err != nil {
				return last, err
			}
		}

		reqCtx := ctx
		var cancel context.CancelFunc
		if p.AttemptTimeout > 0 {
			reqCtx, cancel = context.WithTimeout(ctx, p.AttemptTimeout)
		}
		out, err := fn(reqCtx)
		last = out
		if cancel != nil {
			cancel()
		}
		if err == nil {
			return out, nil
		}
		if errors.Is(err, context.Canceled) && ctx.Err() != nil {
			return last, ctx.Err()
		}
		if ctx.Err() != nil {
			return last, err
		}
		if !core.IsTransient(err) || attempt >= core.MaxExtraRetries(p.MaxRetries, err) {
			return last, err
		}

		sleep := backoffSleep(p.BackoffInitial, p.BackoffMax, p.BackoffJitterFrac, attempt)
		if p.OnRetry != nil {
			p.OnRetry(attempt+1, err, sleep)
		}
		t := time.NewTimer(sleep)
		select {
		case <-t.C:
		case <-ctx.Done():
			t.Stop()
			return last, ctx.Err()
		}
	}
}

func backoffSleep(initial, max time.Duration, jitterFrac float64, attempt int) time.Duration {
	sleep := initial
	for i := 0; i < attempt && sleep < max; i++ {
		sleep *= 2
		if sleep > max {
			sleep = max
			break
		}
	}
	if jitterFrac <= 0 {
		return sleep
	}
	// Apply +/- jitterFrac.
	j := 1 + (rand.Float64()*2-1)*jitterFrac
	return time.Duration(float64(sleep) * j)
}
