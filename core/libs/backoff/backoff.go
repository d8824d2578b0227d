// Package backoff builds exponential retry schedules from YAML policies.
package backoff

import (
	"context"
	"errors"
	"fmt"
	"time"

	cbackoff "github.com/cenkalti/backoff/v4"
)

type Policy struct {
	MaxAttempts int           `yaml:"max_attempts"`
	Initial     time.Duration `yaml:"initial_interval"`
	Max         time.Duration `yaml:"max_interval"`
}

func (p Policy) withDefaults() Policy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 1
	}
	if p.Initial <= 0 {
		p.Initial = 100 * time.Millisecond
	}
	if p.Max < p.Initial {
		p.Max = p.Initial
	}
	return p
}

// BackOff is the schedule the policy stands for: doubling pauses capped at
// Max, no jitter, MaxAttempts calls in total, stopped early by ctx.
func (p Policy) BackOff(ctx context.Context) cbackoff.BackOffContext {
	p = p.withDefaults()

	exp := cbackoff.NewExponentialBackOff()
	exp.InitialInterval = p.Initial
	exp.MaxInterval = p.Max
	exp.Multiplier = 2
	exp.RandomizationFactor = 0
	exp.MaxElapsedTime = 0
	exp.Reset()

	return cbackoff.WithContext(cbackoff.WithMaxRetries(exp, uint64(p.MaxAttempts-1)), ctx)
}

// Retry calls fn until it succeeds, returns an error retryable rejects, or
// the policy runs out of attempts. The last error of fn is returned so
// callers can still inspect it. A nil retryable retries every error.
func Retry(
	ctx context.Context,
	p Policy,
	retryable func(error) bool,
	fn func(ctx context.Context, attempt int) error,
) error {
	var (
		attempt int
		last    error
	)
	op := func() error {
		if err := ctx.Err(); err != nil {
			return cbackoff.Permanent(err)
		}

		err := fn(ctx, attempt)
		attempt++
		if err == nil {
			return nil
		}
		last = err
		if retryable != nil && !retryable(err) {
			return cbackoff.Permanent(err)
		}
		return err
	}

	err := cbackoff.Retry(op, p.BackOff(ctx))
	if err == nil {
		return nil
	}
	if last != nil && ctx.Err() != nil && errors.Is(err, ctx.Err()) {
		// cut short by ctx while waiting for the next attempt
		return fmt.Errorf("retry interrupted: %w", last)
	}
	return err
}
