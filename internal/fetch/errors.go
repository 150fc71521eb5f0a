package fetch

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrCircuitOpen is returned without any network call when a source's
// breaker is open and the cooldown has not elapsed.
var ErrCircuitOpen = errors.New("circuit open")

// PermanentError marks failures that retrying cannot fix (bad request,
// auth failure, gone endpoint). The retry policy gives up immediately and
// the breaker counts it as a failure.
type PermanentError struct {
	Status int
	Msg    string
}

func (e *PermanentError) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("permanent fetch failure (status %d): %s", e.Status, e.Msg)
	}
	return "permanent fetch failure: " + e.Msg
}

// RateLimitedError signals provider throttling. It is neither retried within
// the cycle nor counted against the breaker; the source is skipped until
// ResetAt.
type RateLimitedError struct {
	ResetAt time.Time
}

func (e *RateLimitedError) Error() string {
	if e.ResetAt.IsZero() {
		return "rate limited"
	}
	return "rate limited until " + e.ResetAt.UTC().Format(time.RFC3339)
}

func IsPermanent(err error) bool {
	var pe *PermanentError
	return errors.As(err, &pe)
}

func IsRateLimited(err error) bool {
	var re *RateLimitedError
	return errors.As(err, &re)
}

// IsTransient reports whether a failure is worth retrying: anything that is
// not permanent, not throttling, and not a caller-side cancellation.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if IsPermanent(err) || IsRateLimited(err) || errors.Is(err, ErrCircuitOpen) {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	return true
}
