/*
errors.go - Error kinds returned by the registry and the reservation workflow

PURPOSE:
  Every failure crossing the package boundary carries one of the kinds below.
  Callers match with errors.Is; Kind() turns an error into the tag used on
  the wire.

ERROR CATEGORIES:
  1. Lookup      - NotFound
  2. Validation  - InvalidPayload
  3. Ownership   - NotOwner
  4. State       - Booked, NotBooked, AlreadyClaimed
  5. Payment     - PaymentFailed (ledger cause kept in the chain)

  Anything else (store or ledger transport failures) is an internal fault.

SEE ALSO:
  - api/handlers.go: Maps kinds to HTTP status codes
*/
package insurance

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	ErrNotFound       = errors.New("not found")
	ErrNotOwner       = errors.New("not owner")
	ErrInvalidPayload = errors.New("invalid payload")

	// ErrBooked covers a policy that is currently reserved and reservation
	// time constraints (ending too early, ending someone else's reservation).
	ErrBooked = errors.New("booked")

	ErrNotBooked      = errors.New("not booked")
	ErrPaymentFailed  = errors.New("payment failed")
	ErrAlreadyClaimed = errors.New("claim already filed")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// ValidationError names the offending payload field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid payload: %s %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error {
	return ErrInvalidPayload
}

// BookedError explains why a reserved policy rejected an operation.
type BookedError struct {
	PolicyID string
	Reason   string
}

func (e *BookedError) Error() string {
	return fmt.Sprintf("policy %s booked: %s", e.PolicyID, e.Reason)
}

func (e *BookedError) Unwrap() error {
	return ErrBooked
}

// PaymentError wraps a failed payment check or transfer.
// It matches both ErrPaymentFailed and the underlying ledger error.
type PaymentError struct {
	PolicyID string
	Memo     string
	Err      error
}

func (e *PaymentError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("payment failed for policy %s", e.PolicyID)
	}
	return fmt.Sprintf("payment failed for policy %s: %v", e.PolicyID, e.Err)
}

func (e *PaymentError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrPaymentFailed}
	}
	return []error{ErrPaymentFailed, e.Err}
}

func notFound(what, id string) error {
	return fmt.Errorf("%s %q: %w", what, id, ErrNotFound)
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// Kind returns the wire tag of err, or "Internal" for unexpected faults.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNotFound):
		return "NotFound"
	case errors.Is(err, ErrNotOwner):
		return "NotOwner"
	case errors.Is(err, ErrInvalidPayload):
		return "InvalidPayload"
	case errors.Is(err, ErrBooked):
		return "Booked"
	case errors.Is(err, ErrNotBooked):
		return "NotBooked"
	case errors.Is(err, ErrPaymentFailed):
		return "PaymentFailed"
	case errors.Is(err, ErrAlreadyClaimed):
		return "AlreadyClaimed"
	default:
		return "Internal"
	}
}

// IsClientError returns true if the error is due to the caller's input or
// the current state, not an internal fault.
func IsClientError(err error) bool {
	k := Kind(err)
	return k != "" && k != "Internal"
}
