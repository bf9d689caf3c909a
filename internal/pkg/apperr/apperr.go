package apperr

import "errors"

// Failure kinds for the learning loop engine. Callers classify with errors.Is
// and wrap with fmt.Errorf("...: %w", ...) so the kind survives propagation.
var (
	// ErrValidation marks input that fails a schema or business rule.
	// Surfaced to the caller, never retried.
	ErrValidation = errors.New("validation failed")
	// ErrInvalidTransition marks a session event disallowed from the
	// current state.
	ErrInvalidTransition = errors.New("invalid transition")
	// ErrTimeout marks a deadline elapsing on an external call. Retried
	// once by the generator client, fatal after the retry budget.
	ErrTimeout = errors.New("timeout")
	// ErrGenerationInvalid marks malformed generator output. Never
	// retried; the artifact is not persisted.
	ErrGenerationInvalid = errors.New("generation invalid")
	// ErrStoreConflict marks a unique-constraint or optimistic-lock
	// failure. Retried at most once for plan-version allocation.
	ErrStoreConflict = errors.New("store conflict")
	// ErrTransient marks other recoverable I/O failures.
	ErrTransient = errors.New("transient failure")
	// ErrNotFound marks a missing resource.
	ErrNotFound = errors.New("not found")
)

func IsRetryable(err error) bool {
	return errors.Is(err, ErrTimeout) || errors.Is(err, ErrTransient)
}
