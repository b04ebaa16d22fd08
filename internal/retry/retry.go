// Package retry runs calls to model services under a bounded exponential
// backoff policy.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/fyrsmithlabs/ragd/internal/config"
	"github.com/fyrsmithlabs/ragd/internal/logging"
	"go.uber.org/zap"
)

// ErrExhausted is returned once every attempt has failed.
var ErrExhausted = errors.New("retries exhausted")

// Policy is a reusable retry policy value.
type Policy struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	Multiplier     float64
}

// FromConfig converts a config section into a Policy.
func FromConfig(c config.RetryConfig) Policy {
	return Policy{
		MaxAttempts:    c.MaxAttempts,
		InitialBackoff: c.InitialBackoff.Duration(),
		MaxBackoff:     c.MaxBackoff.Duration(),
		Multiplier:     c.Multiplier,
	}
}

// exponential builds the backoff schedule without jitter so waits are
// reproducible.
func (p Policy) exponential() *backoff.ExponentialBackOff {
	mult := p.Multiplier
	if mult < 1 {
		mult = 1
	}
	maxWait := p.MaxBackoff
	if maxWait <= 0 {
		maxWait = time.Duration(math.MaxInt64)
	}
	b := &backoff.ExponentialBackOff{
		InitialInterval:     p.InitialBackoff,
		RandomizationFactor: 0,
		Multiplier:          mult,
		MaxInterval:         maxWait,
	}
	b.Reset()
	return b
}

// Backoff returns the wait before attempt n+1, where n counts from 1.
func (p Policy) Backoff(n int) time.Duration {
	b := p.exponential()
	var wait time.Duration
	for i := 0; i < n; i++ {
		wait = b.NextBackOff()
	}
	return wait
}

// Permanent wraps err so Do returns it immediately.
func Permanent(err error) error {
	return backoff.Permanent(err)
}

// IsPermanent reports whether err was marked with Permanent.
func IsPermanent(err error) bool {
	var p *backoff.PermanentError
	return errors.As(err, &p)
}

// Do calls op until it succeeds, returns a Permanent error, ctx is done, or
// MaxAttempts is reached. Exhaustion wraps ErrExhausted and the last error.
func (p Policy) Do(ctx context.Context, logger *logging.Logger, op func(context.Context) error) error {
	if logger == nil {
		logger = logging.NewNop()
	}
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	start := time.Now()
	calls := 0
	var stop error
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		calls++
		err := op(ctx)
		switch {
		case err == nil:
			return struct{}{}, nil
		case IsPermanent(err):
			var pe *backoff.PermanentError
			errors.As(err, &pe)
			stop = pe.Err
		case ctx.Err() != nil:
			stop = fmt.Errorf("operation canceled: %w", ctx.Err())
		default:
			return struct{}{}, err
		}
		return struct{}{}, backoff.Permanent(stop)
	},
		backoff.WithBackOff(p.exponential()),
		backoff.WithMaxTries(uint(attempts)),
		backoff.WithMaxElapsedTime(0),
		backoff.WithNotify(func(err error, wait time.Duration) {
			logger.Debug(ctx, "retrying operation after transient error",
				zap.Int("attempt", calls),
				zap.Int("max_attempts", attempts),
				zap.Duration("backoff", wait),
				zap.Error(err),
			)
		}),
	)

	switch {
	case err == nil:
		if calls > 1 {
			logger.Info(ctx, "operation recovered after retries",
				zap.Int("attempts", calls),
				zap.Duration("total_time", time.Since(start)),
			)
		}
		return nil
	case stop != nil:
		return stop
	case ctx.Err() != nil:
		// canceled while waiting between attempts
		return fmt.Errorf("operation canceled: %w", err)
	}

	logger.Warn(ctx, "operation failed after all retries exhausted",
		zap.Int("total_attempts", calls),
		zap.Duration("total_time", time.Since(start)),
		zap.Error(err),
	)
	return fmt.Errorf("%w after %d attempts: %w", ErrExhausted, calls, err)
}
