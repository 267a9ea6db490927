package agent

import (
	"errors"
	"fmt"
)

// ErrorKind categorizes the ways a scrape can stop. The string value is the
// errorType persisted on the job.
type ErrorKind string

const (
	KindTransientNavigation ErrorKind = "transient_navigation"
	KindAmbiguousTarget     ErrorKind = "ambiguous_target"
	KindSchemaValidation    ErrorKind = "schema_validation"
	KindBlocked             ErrorKind = "blocked"
	KindBudgetExceeded      ErrorKind = "budget_exceeded"
	KindUnrecoverable       ErrorKind = "agent_error"
	KindLLMUnavailable      ErrorKind = "llm_unavailable"
	KindSession             ErrorKind = "session"
	KindRetriesExhausted    ErrorKind = "retries_exhausted"
	KindInternal            ErrorKind = "internal"
)

var (
	// ErrJobCancelled is the cancel cause a caller attaches (through
	// context.WithCancelCause) to stop one job for good. Any other context
	// cancellation is treated as a worker shutdown.
	ErrJobCancelled = errors.New("job cancelled")
	// ErrInterrupted is returned when the worker stopped before the job
	// finished. The job keeps its status and is resumed later.
	ErrInterrupted = errors.New("job interrupted by shutdown")
)

// Error is the structured error used across the agent loop.
type Error struct {
	Kind    ErrorKind
	Message string
	Target  string // ambiguous target errors only
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// IsRetryable returns true if the same call may succeed when repeated.
func (e *Error) IsRetryable() bool {
	switch e.Kind {
	case KindTransientNavigation, KindSchemaValidation, KindLLMUnavailable:
		return true
	default:
		return false
	}
}

// IsFailure reports whether the error ends the job as failed. A budget stop
// completes the job instead.
func (e *Error) IsFailure() bool {
	return e.Kind != KindBudgetExceeded
}

func newError(kind ErrorKind, msg string, cause error) *Error {
	return &Error{Kind: kind, Message: msg, Cause: cause}
}

func transientNavigation(msg string, cause error) *Error {
	return newError(KindTransientNavigation, msg, cause)
}

func ambiguousTarget(target, msg string, cause error) *Error {
	return &Error{Kind: KindAmbiguousTarget, Message: msg, Target: target, Cause: cause}
}

func schemaValidation(msg string, cause error) *Error {
	return newError(KindSchemaValidation, msg, cause)
}

func blocked(msg string) *Error {
	return newError(KindBlocked, msg, nil)
}

func budgetExceeded(msg string) *Error {
	return newError(KindBudgetExceeded, msg, nil)
}

// AsError extracts an *Error from err. Anything else is reported as internal.
func AsError(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return newError(KindInternal, err.Error(), err)
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind ErrorKind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == kind
}
