package db

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
)

// Policy bounds every store operation: a per-attempt timeout plus a small
// retry budget with linear backoff for transient connectivity failures.
// Business errors (not found, duplicate key) are never retried.
type Policy struct {
	Timeout time.Duration
	Retries int
	Backoff time.Duration
}

// DefaultPolicy is used when no policy is configured.
var DefaultPolicy = Policy{Timeout: 5 * time.Second, Retries: 2, Backoff: 200 * time.Millisecond}

// Do runs fn under the policy. fn receives a context carrying the attempt
// timeout. The last error is returned after the retry budget is exhausted.
func (p Policy) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	if p.Timeout <= 0 {
		p.Timeout = DefaultPolicy.Timeout
	}
	if p.Retries < 0 {
		p.Retries = 0
	}

	var lastErr error
	for attempt := 0; attempt <= p.Retries; attempt++ {
		if attempt > 0 && p.Backoff > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Duration(attempt) * p.Backoff):
			}
		}

		attemptCtx, cancel := context.WithTimeout(ctx, p.Timeout)
		err := fn(attemptCtx)
		cancel()

		if err == nil {
			return nil
		}
		lastErr = err

		if !isTransient(err) {
			return err
		}
		if ctx.Err() != nil {
			return lastErr
		}
	}
	return lastErr
}

// Permanent marks err as a business outcome the policy must never retry.
// errors.Is/As still see through the wrapper.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return permanentError{err}
}

type permanentError struct{ err error }

func (e permanentError) Error() string { return e.err.Error() }
func (e permanentError) Unwrap() error { return e.err }

func isTransient(err error) bool {
	var pe permanentError
	if errors.As(err, &pe) {
		return false
	}
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound),
		errors.Is(err, gorm.ErrDuplicatedKey),
		errors.Is(err, context.Canceled):
		return false
	}
	if IsUniqueViolation(err, "") {
		return false
	}
	return true
}
