package pddikti

import (
	"errors"
	"fmt"
)

// ══════════════════════════════════════════════════════════════════════════════
// ERRORS
// ══════════════════════════════════════════════════════════════════════════════

var (
	// ErrLoginRejected indicates the login step returned a non-success status
	// or the response did not carry the expected session fields.
	ErrLoginRejected = errors.New("pddikti: login rejected")

	// ErrTokenMissing indicates the role-activation step succeeded but the
	// response carried no session token.
	ErrTokenMissing = errors.New("pddikti: session token missing from response")

	// ErrSessionExpired indicates a previously valid session was rejected by
	// the registry and a single re-authentication attempt also failed.
	ErrSessionExpired = errors.New("pddikti: session expired and re-authentication failed")
)

// NetworkError wraps a transport-level failure. Network errors are always
// retryable by the caller; the pipeline itself never retries.
type NetworkError struct {
	Step string
	Err  error
}

// Error implements the error interface.
func (e *NetworkError) Error() string {
	return fmt.Sprintf("pddikti: network failure during %s: %v", e.Step, e.Err)
}

// Unwrap returns the underlying transport error.
func (e *NetworkError) Unwrap() error {
	return e.Err
}

// StepError reports an unexpected HTTP status from one pipeline step.
type StepError struct {
	Step   string
	Status int
}

// Error implements the error interface.
func (e *StepError) Error() string {
	return fmt.Sprintf("pddikti: step %s returned status %d", e.Step, e.Status)
}

// isAuthRejection reports whether an HTTP status means the registry no longer
// accepts the supplied session token.
func isAuthRejection(status int) bool {
	return status == 401 || status == 403
}
