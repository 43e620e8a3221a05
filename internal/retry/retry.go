// Package retry runs external service operations under a per-attempt timeout with
// exponential backoff between attempts. Every call into the generative and translation
// services goes through Do.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"

	"lexplain/backend/internal/metrics"
)

const (
	defaultTimeout    = 30 * time.Second
	defaultMaxRetries = 2
	defaultBaseDelay  = time.Second
	defaultMaxDelay   = 5 * time.Second
)

var (
	// ErrServiceTimeout matches an ExternalServiceError whose last attempt timed out.
	ErrServiceTimeout = errors.New("external service timeout")
	// ErrServiceFailure matches an ExternalServiceError whose last attempt failed.
	ErrServiceFailure = errors.New("external service failure")

	errAttemptTimeout = errors.New("attempt timed out")
)

// Policy configures one call site.
type Policy struct {
	// Op names the call site in errors, logs and metrics.
	Op         string
	Timeout    time.Duration
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
}

// DefaultPolicy returns a policy with a 30s per-attempt timeout, two retries and a
// 1s..5s backoff.
func DefaultPolicy(op string) Policy {
	return Policy{
		Op:         op,
		Timeout:    defaultTimeout,
		MaxRetries: defaultMaxRetries,
		BaseDelay:  defaultBaseDelay,
		MaxDelay:   defaultMaxDelay,
	}
}

// Delay is the sleep before retry number attempt+1: min(MaxDelay, BaseDelay*2^attempt).
func (p Policy) Delay(attempt int) time.Duration {
	base, ceiling := p.BaseDelay, p.MaxDelay
	if base <= 0 {
		base = defaultBaseDelay
	}
	if ceiling <= 0 {
		ceiling = defaultMaxDelay
	}
	if attempt < 0 {
		attempt = 0
	}
	delay := base
	for i := 0; i < attempt; i++ {
		delay *= 2
		if delay >= ceiling {
			return ceiling
		}
	}
	return min(delay, ceiling)
}

// ExternalServiceError is returned once every attempt has failed.
type ExternalServiceError struct {
	Op       string
	Attempts int
	Timeout  bool
	Err      error
}

func (e *ExternalServiceError) Error() string {
	kind := "failed"
	if e.Timeout {
		kind = "timed out"
	}
	return fmt.Sprintf("%s: %s after %d attempt(s): %v", e.Op, kind, e.Attempts, e.Err)
}

func (e *ExternalServiceError) Unwrap() error { return e.Err }

// Is lets callers match the timeout and failure sentinels.
func (e *ExternalServiceError) Is(target error) bool {
	switch target {
	case ErrServiceTimeout:
		return e.Timeout
	case ErrServiceFailure:
		return !e.Timeout
	}
	return false
}

type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying; Do stops after the current attempt.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err was marked with Permanent.
func IsPermanent(err error) bool {
	var pe *permanentError
	return errors.As(err, &pe)
}

// Do runs op until it succeeds, the retries are exhausted, or ctx is done. Each
// attempt gets its own deadline derived from ctx. When ctx itself is cancelled the
// context error is returned unwrapped and no further attempts are made.
func Do[T any](ctx context.Context, policy Policy, op func(context.Context) (T, error)) (T, error) {
	var (
		zero     T
		attempts int
		timedOut bool
	)
	if policy.Op == "" {
		policy.Op = "external"
	}

	operation := func() (T, error) {
		attempts++
		value, err := attempt(ctx, policy.Timeout, op)
		if err == nil {
			timedOut = false
			return value, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return zero, backoff.Permanent(ctxErr)
		}
		timedOut = errors.Is(err, errAttemptTimeout)
		var pe *permanentError
		if errors.As(err, &pe) {
			return zero, backoff.Permanent(pe.err)
		}
		return zero, err
	}

	schedule := backoff.WithContext(
		backoff.WithMaxRetries(&exponential{policy: policy}, uint64(max(0, policy.MaxRetries))),
		ctx,
	)
	notify := func(err error, wait time.Duration) {
		metrics.ExternalRetries.WithLabelValues(policy.Op).Inc()
		logrus.WithFields(logrus.Fields{
			"op":      policy.Op,
			"attempt": attempts,
			"wait":    wait.String(),
		}).WithError(err).Debug("retrying external call")
	}

	value, err := backoff.RetryNotifyWithData(operation, schedule, notify)
	if err == nil {
		metrics.ExternalCalls.WithLabelValues(policy.Op, "success").Inc()
		return value, nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		metrics.ExternalCalls.WithLabelValues(policy.Op, "cancelled").Inc()
		return zero, ctxErr
	}

	outcome := "failure"
	if timedOut {
		outcome = "timeout"
	}
	metrics.ExternalCalls.WithLabelValues(policy.Op, outcome).Inc()
	return zero, &ExternalServiceError{Op: policy.Op, Attempts: attempts, Timeout: timedOut, Err: err}
}

// attempt races op against the per-attempt deadline. op receives the attempt context
// and is expected to return promptly once it is done.
func attempt[T any](ctx context.Context, timeout time.Duration, op func(context.Context) (T, error)) (T, error) {
	var zero T
	var (
		attemptCtx context.Context
		cancel     context.CancelFunc
	)
	if timeout > 0 {
		attemptCtx, cancel = context.WithTimeout(ctx, timeout)
	} else {
		attemptCtx, cancel = context.WithCancel(ctx)
	}
	defer cancel()

	type outcome struct {
		value T
		err   error
	}
	done := make(chan outcome, 1)
	go func() {
		value, err := op(attemptCtx)
		done <- outcome{value: value, err: err}
	}()

	select {
	case out := <-done:
		if out.err != nil && ctx.Err() == nil && errors.Is(attemptCtx.Err(), context.DeadlineExceeded) {
			return zero, fmt.Errorf("%w: %v", errAttemptTimeout, out.err)
		}
		return out.value, out.err
	case <-attemptCtx.Done():
		if err := ctx.Err(); err != nil {
			return zero, err
		}
		return zero, fmt.Errorf("%w after %s", errAttemptTimeout, timeout)
	}
}

// exponential adapts Policy.Delay to backoff.BackOff.
type exponential struct {
	policy Policy
	next   int
}

func (e *exponential) NextBackOff() time.Duration {
	delay := e.policy.Delay(e.next)
	e.next++
	return delay
}

func (e *exponential) Reset() { e.next = 0 }
