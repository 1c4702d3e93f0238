package toolclient

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a dependency call failure.
type ErrorKind string

const (
	// KindUnavailable - circuit open or transport failure. Retryable.
	KindUnavailable ErrorKind = "unavailable"
	// KindTimeout - the call exceeded its deadline. Retryable.
	KindTimeout ErrorKind = "timeout"
	// KindRejected - the dependency answered but refused the request
	// (unknown symbol, bad input). Not retryable, and not evidence of
	// dependency unavailability.
	KindRejected ErrorKind = "rejected"
)

// DependencyError is the uniform error returned by Call. The worker boundary
// translates it into a RunOutcome classification; it never propagates further.
type DependencyError struct {
	Dependency Dependency
	Kind       ErrorKind
	Err        error
}

func (e *DependencyError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s %s: %v", e.Dependency, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s %s", e.Dependency, e.Kind)
}

func (e *DependencyError) Unwrap() error {
	return e.Err
}

// Retryable reports whether the failure is worth another attempt.
func (e *DependencyError) Retryable() bool {
	return e.Kind == KindUnavailable || e.Kind == KindTimeout
}

// IsRetryable reports whether err is a retryable dependency failure.
// Non-dependency errors are treated as not retryable.
func IsRetryable(err error) bool {
	var depErr *DependencyError
	if errors.As(err, &depErr) {
		return depErr.Retryable()
	}
	return false
}

// IsUnavailable reports whether err is a dependency-unavailable failure
// (circuit open or transport error).
func IsUnavailable(err error) bool {
	var depErr *DependencyError
	return errors.As(err, &depErr) && depErr.Kind == KindUnavailable
}

// IsTimeout reports whether err is a dependency call timeout.
func IsTimeout(err error) bool {
	var depErr *DependencyError
	return errors.As(err, &depErr) && depErr.Kind == KindTimeout
}

// Rejected wraps a semantic refusal (e.g. unknown ticker) so the breaker
// does not count it as a dependency failure.
func Rejected(dep Dependency, err error) error {
	return &DependencyError{Dependency: dep, Kind: KindRejected, Err: err}
}
