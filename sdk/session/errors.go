package session

import "errors"

// ErrSessionResolutionFailed is the single failure kind of session resolution. It covers
// a missing session, transport failures and malformed sessions alike, and is only logged:
// the gate downgrades it to KindUnauthenticated.
var ErrSessionResolutionFailed = errors.New("session resolution failed")

// errEmptyIdentity is reported when the provider answers without an identifier.
var errEmptyIdentity = errors.New("identity has no subject or username")

var errNoProvider = errors.New("no identity provider configured")

// ResolutionError wraps the provider error that caused a failed resolution.
type ResolutionError struct {
	Cause error
}

func (e *ResolutionError) Error() string {
	if e == nil || e.Cause == nil {
		return ErrSessionResolutionFailed.Error()
	}
	return ErrSessionResolutionFailed.Error() + ": " + e.Cause.Error()
}

// Unwrap returns the provider error.
func (e *ResolutionError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// Is matches ErrSessionResolutionFailed.
func (e *ResolutionError) Is(target error) bool {
	return target == ErrSessionResolutionFailed
}
