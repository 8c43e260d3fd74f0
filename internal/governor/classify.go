package governor

import (
	"context"
	"errors"
	"time"
)

// Class buckets an operation failure for retry purposes.
type Class int

const (
	// ClassPermanent is the default: do not retry, surface to the caller.
	ClassPermanent Class = iota
	// ClassTransient covers timeouts and 5xx-style failures; retried with
	// backoff.
	ClassTransient
	// ClassRateLimited covers platform-reported 429s; sets a cooldown.
	ClassRateLimited
	// ClassAuthFailure means the session is no longer valid; the caller
	// must re-authenticate.
	ClassAuthFailure
)

func (c Class) String() string {
	switch c {
	case ClassTransient:
		return "transient"
	case ClassRateLimited:
		return "rate_limited"
	case ClassAuthFailure:
		return "auth_failure"
	default:
		return "permanent"
	}
}

// Failure carries a classification alongside the underlying error so the
// governor can decide retry behavior without knowing call-site details.
type Failure struct {
	Class      Class
	RetryAfter time.Duration // rate-limited only; platform-reported reset
	Err        error
}

func (f *Failure) Error() string {
	if f.Err == nil {
		return f.Class.String()
	}
	return f.Class.String() + ": " + f.Err.Error()
}

func (f *Failure) Unwrap() error { return f.Err }

// Transient wraps err as retryable.
func Transient(err error) error {
	return &Failure{Class: ClassTransient, Err: err}
}

// RateLimited wraps err as a platform rate limit. retryAfter may be zero
// when the platform did not report a reset time.
func RateLimited(err error, retryAfter time.Duration) error {
	return &Failure{Class: ClassRateLimited, RetryAfter: retryAfter, Err: err}
}

// AuthFailure wraps err as an authentication failure.
func AuthFailure(err error) error {
	return &Failure{Class: ClassAuthFailure, Err: err}
}

// Permanent wraps err as non-retryable.
func Permanent(err error) error {
	return &Failure{Class: ClassPermanent, Err: err}
}

// Classify extracts the failure class and retry-after hint from err.
// Context cancellation counts as permanent (the caller gave up, retrying
// is pointless); everything unclassified defaults to permanent so unknown
// failures are never retried blindly.
func Classify(err error) (Class, time.Duration) {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return ClassPermanent, 0
	}
	var f *Failure
	if errors.As(err, &f) {
		return f.Class, f.RetryAfter
	}
	return ClassPermanent, 0
}
