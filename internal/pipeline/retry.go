package pipeline

import (
	"errors"
	"math/rand"
	"time"
)

// permanentError marks a failure that must not be retried: bad input,
// missing document, or a persistence transaction failure.
type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

func permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

func isPermanent(err error) bool {
	var pe *permanentError
	return errors.As(err, &pe)
}

// Backoff returns the delay before retry attempt n (1-indexed, the attempt
// that just failed), doubling from base with jitter, capped at 5 minutes.
func Backoff(base time.Duration, attempt int) time.Duration {
	if base <= 0 {
		base = 5 * time.Second
	}
	if attempt < 1 {
		attempt = 1
	}
	d := base << uint(attempt-1)
	if d > 5*time.Minute {
		d = 5 * time.Minute
	}
	jitter := time.Duration(rand.Int63n(int64(d)/2 + 1))
	return d + jitter
}
