// Package retry implements the bounded-retry policy shared by the
// settlement phases: a fixed attempt count, a fixed delay between attempts
// and an optional overall wall-clock timeout. No step supports mid-flight
// cancellation beyond these explicit bounds.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Policy is a bounded-retry description consumed by Do.
type Policy struct {
	MaxAttempts  int
	Delay        time.Duration
	TotalTimeout time.Duration // 0 means no overall timeout
}

type abortError struct {
	err error
}

func (e *abortError) Error() string { return e.err.Error() }
func (e *abortError) Unwrap() error { return e.err }

// Abort wraps err so Do stops immediately instead of retrying. The wrapper
// is transparent to errors.Is/As on the inner error.
func Abort(err error) error {
	return &abortError{err: err}
}

// Do runs op under the policy. It returns nil on the first success, the
// inner error of an aborted attempt, or the last attempt's error once the
// attempt budget or the overall timeout is exhausted.
func Do(ctx context.Context, p Policy, op func(ctx context.Context) error) error {
	if p.MaxAttempts <= 0 {
		return fmt.Errorf("retry policy needs at least one attempt")
	}

	if p.TotalTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.TotalTimeout)
		defer cancel()
	}

	var lastErr error
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			if lastErr != nil {
				return fmt.Errorf("%w (gave up after %d attempts: %v)", lastErr, attempt-1, err)
			}
			return err
		}

		err := op(ctx)
		if err == nil {
			return nil
		}

		var abort *abortError
		if errors.As(err, &abort) {
			return abort.err
		}
		lastErr = err

		if attempt == p.MaxAttempts {
			break
		}

		select {
		case <-time.After(p.Delay):
		case <-ctx.Done():
			return fmt.Errorf("%w (gave up after %d attempts: %v)", lastErr, attempt, ctx.Err())
		}
	}

	return fmt.Errorf("%w (after %d attempts)", lastErr, p.MaxAttempts)
}
