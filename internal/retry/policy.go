// Package retry implements the backoff policy applied to failed processing
// batches.
package retry

import (
	"context"
	"fmt"
	"time"
)

// Mode selects how the delay grows between attempts.
type Mode string

const (
	ModeFixed       Mode = "fixed"
	ModeLinear      Mode = "linear"
	ModeExponential Mode = "exponential"
)

// Policy encapsulates retry/backoff settings for transient failures.
// It is immutable after construction.
type Policy struct {
	Mode       Mode          // fixed|linear|exponential
	Initial    time.Duration // base delay
	Max        time.Duration // cap for growth
	MaxRetries int           // maximum retry attempts after the first failure
}

// DefaultPolicy retries a failed batch exactly once after a short fixed pause.
func DefaultPolicy() Policy {
	return Policy{Mode: ModeFixed, Initial: 500 * time.Millisecond, Max: 5 * time.Second, MaxRetries: 1}
}

// NewPolicy builds a policy from raw config fields; zero/invalid values fall back to defaults.
// A negative maxRetries keeps the default, zero disables retries.
func NewPolicy(mode Mode, initial, maxDuration time.Duration, maxRetries int) Policy {
	p := DefaultPolicy()
	if maxRetries >= 0 {
		p.MaxRetries = maxRetries
	}
	if initial > 0 {
		p.Initial = initial
	}
	if maxDuration > 0 {
		p.Max = maxDuration
	}
	switch mode {
	case ModeFixed, ModeLinear, ModeExponential:
		p.Mode = mode
	default:
		// unknown or empty -> keep default
	}
	if p.Initial > p.Max {
		p.Initial = p.Max
	}
	return p
}

// Delay returns the backoff delay for the given retry attempt number (1-based: first retry => 1).
func (p Policy) Delay(retryCount int) time.Duration {
	if retryCount <= 0 {
		return 0
	}
	switch p.Mode {
	case ModeFixed:
		return p.Initial
	case ModeExponential:
		d := p.Initial * (1 << (retryCount - 1))
		if d > p.Max || d <= 0 {
			return p.Max
		}
		return d
	default: // linear
		d := time.Duration(retryCount) * p.Initial
		if d > p.Max {
			return p.Max
		}
		return d
	}
}

// Validate ensures invariants; returns error if policy impossible to apply.
func (p Policy) Validate() error {
	if p.Initial < 0 {
		return fmt.Errorf("initial must be >=0")
	}
	if p.Max < 0 {
		return fmt.Errorf("max must be >=0")
	}
	if p.MaxRetries < 0 {
		return fmt.Errorf("max retries cannot be negative")
	}
	return nil
}

// Do calls fn until it succeeds, the attempts are exhausted, or ctx is done.
// The context is only consulted between attempts: an attempt that has started
// always runs to completion. onRetry, if non-nil, is called before each retry
// with the 1-based retry number and the error that triggered it.
// Do returns the last error and the number of attempts made.
func (p Policy) Do(ctx context.Context, fn func(attempt int) error, onRetry func(retry int, err error)) (int, error) {
	var err error
	attempts := 0
	for attempt := 0; attempt <= p.MaxRetries; attempt++ {
		if attempt > 0 {
			if onRetry != nil {
				onRetry(attempt, err)
			}
			if werr := sleep(ctx, p.Delay(attempt)); werr != nil {
				return attempts, fmt.Errorf("%w (retry abandoned: %v)", err, werr)
			}
		}
		attempts++
		if err = fn(attempt + 1); err == nil {
			return attempts, nil
		}
	}
	return attempts, err
}

func sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if d <= 0 {
		return nil
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
