// Package retry wraps pipeline stages with bounded attempts, a fixed
// inter-attempt delay and a per-message wall-clock ceiling. Failures are
// split into transient (retried) and permanent (propagated immediately).
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
)

// classification marks an error as transient or permanent while keeping
// the underlying error reachable through errors.Unwrap.
type classification struct {
	err       error
	transient bool
}

func (c *classification) Error() string { return c.err.Error() }
func (c *classification) Unwrap() error { return c.err }

// Transient marks err as infrastructure-related: expected to succeed on
// retry (network, timeout, rate limit).
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &classification{err: err, transient: true}
}

// Permanent marks err as content-related: retrying without external
// intervention will not help (corrupt attachment, validation failure).
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &classification{err: err, transient: false}
}

// Transientf is shorthand for Transient(fmt.Errorf(...)).
func Transientf(format string, args ...interface{}) error {
	return Transient(fmt.Errorf(format, args...))
}

// Permanentf is shorthand for Permanent(fmt.Errorf(...)).
func Permanentf(format string, args ...interface{}) error {
	return Permanent(fmt.Errorf(format, args...))
}

// ExhaustedError reports that a transient failure used up its attempt
// bound or hit the per-message deadline. It is terminal for the message
// but records that the underlying cause was transient.
type ExhaustedError struct {
	Stage string
	Err   error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *ExhaustedError) Unwrap() error { return e.Err }

// IsExhausted reports whether err is a retries-exhausted or deadline
// failure derived from a transient cause.
func IsExhausted(err error) bool {
	var ex *ExhaustedError
	return errors.As(err, &ex)
}

// IsPermanent reports whether err is terminal: explicitly marked
// permanent, or a transient failure whose retry budget is exhausted.
func IsPermanent(err error) bool {
	if IsExhausted(err) {
		return true
	}
	var c *classification
	if errors.As(err, &c) {
		return !c.transient
	}
	return false
}

// IsTransient reports whether err should be retried. Unclassified errors
// default to transient: they are usually infrastructure failures, and
// the attempt bound and timeout cap the damage if they are not.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	return !IsPermanent(err)
}

// Coordinator retries a stage function under a bounded policy.
type Coordinator struct {
	MaxAttempts int
	Delay       time.Duration
	Timeout     time.Duration
}

// NewCoordinator creates a retry coordinator. Zero or negative values
// fall back to the documented defaults (3 attempts, 60s delay, 300s
// per-message ceiling).
func NewCoordinator(maxAttempts int, delay, timeout time.Duration) *Coordinator {
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	if delay <= 0 {
		delay = 60 * time.Second
	}
	if timeout <= 0 {
		timeout = 300 * time.Second
	}
	return &Coordinator{MaxAttempts: maxAttempts, Delay: delay, Timeout: timeout}
}

// WithTimeout derives the per-message context carrying the wall-clock
// ceiling that spans all attempts of all stages for one message.
func (c *Coordinator) WithTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, c.Timeout)
}

// Do runs fn under the retry policy. It returns the number of attempts
// made and the final error. Permanent errors stop retrying immediately.
// Exhausting the attempt bound on a transient error, or hitting the
// context deadline, yields a permanent error preserving the last detail.
func (c *Coordinator) Do(ctx context.Context, stage string, fn func(context.Context) error) (int, error) {
	var lastErr error

	for attempt := 1; attempt <= c.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return attempt - 1, &ExhaustedError{Stage: stage, Err: c.lastOrCtx(lastErr, err)}
		}

		lastErr = fn(ctx)
		if lastErr == nil {
			return attempt, nil
		}

		if IsPermanent(lastErr) {
			return attempt, lastErr
		}

		if attempt < c.MaxAttempts {
			logrus.Warnf("Stage %s attempt %d/%d failed, retrying in %v: %v", stage, attempt, c.MaxAttempts, c.Delay, lastErr)
			if err := sleep(ctx, c.Delay); err != nil {
				return attempt, &ExhaustedError{Stage: stage, Err: lastErr}
			}
		}
	}

	return c.MaxAttempts, &ExhaustedError{Stage: stage, Err: fmt.Errorf("retries exhausted after %d attempts: %w", c.MaxAttempts, lastErr)}
}

func (c *Coordinator) lastOrCtx(lastErr, ctxErr error) error {
	if lastErr != nil {
		return lastErr
	}
	return ctxErr
}

// sleep waits for d honoring context cancellation.
func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
