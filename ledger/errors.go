/*
errors.go - Centralized error taxonomy for the quest ledger

PURPOSE:
  All failure kinds in one place for consistency and discoverability.
  Every operation that can fail for more than one reason returns one of
  these, never a bare boolean. Outer layers (gateway, api) map the
  taxonomy to transport concerns; they never invent new kinds.

ERROR CATEGORIES:
  1. Authorization  - Unauthorized (no/bad session), Forbidden (role)
  2. Lookup         - Child/quest not found
  3. Lifecycle      - Invalid transition, already processed
  4. Client input   - Validation (pre-flight, before any store write)
  5. Infrastructure - Timeout, duplicate idempotency key

USAGE:
  Domain packages wrap these with context:

    if errors.Is(err, ledger.ErrAlreadyProcessed) {
        // safe to ignore: the credit already happened
    }

SEE ALSO:
  - ledger.go: Uses idempotency errors
  - quest/service.go: Wraps transition errors with quest context
  - api/handlers.go: Maps the taxonomy to HTTP statuses
*/
package ledger

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrTimeout is returned when an operation does not complete within its
	// configured deadline. The operation is guaranteed not to have committed.
	ErrTimeout = errors.New("operation timed out")

	// ErrUnauthorized is returned when no valid session is presented.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrForbidden is returned when the session's role may not perform the
	// requested operation on the target child.
	ErrForbidden = errors.New("forbidden")

	// ErrChildNotFound is returned when a referenced child does not exist.
	ErrChildNotFound = errors.New("child not found")

	// ErrQuestNotFound is returned when a referenced quest does not exist.
	ErrQuestNotFound = errors.New("quest not found")

	// ErrInvalidTransition is returned when a quest status change is
	// attempted from a state that does not allow it.
	ErrInvalidTransition = errors.New("invalid quest transition")

	// ErrAlreadyProcessed is returned when a verification is retried after
	// the quest has already been verified. This is the idempotency
	// short-circuit: expected on retries, and never double-credits.
	ErrAlreadyProcessed = errors.New("quest already processed")

	// ErrValidation is returned for client input rejected before any
	// network or store call.
	ErrValidation = errors.New("validation failed")

	// ErrDuplicateIdempotencyKey is returned when a coin transaction with
	// the same idempotency key already exists.
	ErrDuplicateIdempotencyKey = errors.New("duplicate idempotency key")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// InvalidTransitionError reports the exact rejected edge.
type InvalidTransitionError struct {
	QuestID QuestID
	From    string
	To      string
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid transition %s -> %s for quest %s", e.From, e.To, e.QuestID)
}

func (e *InvalidTransitionError) Unwrap() error { return ErrInvalidTransition }

// ValidationError reports a single rejected input field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsNotFound returns true if the error indicates a missing record.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrChildNotFound) || errors.Is(err, ErrQuestNotFound)
}

// IsConflict returns true for lifecycle conflicts a caller may choose to
// treat as benign (retried verification, stale toggle).
func IsConflict(err error) bool {
	return errors.Is(err, ErrAlreadyProcessed) ||
		errors.Is(err, ErrInvalidTransition) ||
		errors.Is(err, ErrDuplicateIdempotencyKey)
}

// IsClientError returns true if the error is due to invalid client input
// or state, as opposed to an infrastructure failure.
func IsClientError(err error) bool {
	return errors.Is(err, ErrValidation) || IsNotFound(err) || IsConflict(err)
}
