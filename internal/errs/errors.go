package errs

import "errors"

// Sentinel errors for cross-layer signaling. Services wrap these with
// context via fmt.Errorf("...: %w", err); the HTTP layer maps them to status
// codes and machine-readable codes.
var (
	ErrNotFound     = errors.New("not_found")
	ErrValidation   = errors.New("validation")
	ErrBusinessRule = errors.New("business_rule")
	// ErrInvalidState signals a state-machine violation (e.g. posting an
	// already-posted entry).
	ErrInvalidState         = errors.New("invalid_state")
	ErrPeriodClosed         = errors.New("period_closed")
	ErrUnbalancedEntry      = errors.New("unbalanced_entry")
	ErrAccountInactive      = errors.New("account_inactive")
	ErrDuplicateEntryNumber = errors.New("duplicate_entry_number")
	ErrAllocationMismatch   = errors.New("allocation_mismatch")
	// ErrConcurrentModification signals an optimistic-lock or serialization
	// failure; callers may retry.
	ErrConcurrentModification = errors.New("concurrent_modification")
	// ErrSystemAccount indicates a system account cannot be modified or deleted.
	ErrSystemAccount = errors.New("system_account")
	// ErrImmutable indicates an attempt to change protected fields.
	ErrImmutable = errors.New("immutable")
)

// Code returns the machine-readable code surfaced to callers for err, or
// empty when err carries no known sentinel.
func Code(err error) string {
	switch {
	case errors.Is(err, ErrNotFound):
		return "NOT_FOUND"
	case errors.Is(err, ErrPeriodClosed):
		return "PERIOD_CLOSED"
	case errors.Is(err, ErrUnbalancedEntry):
		return "UNBALANCED_ENTRY"
	case errors.Is(err, ErrAccountInactive):
		return "ACCOUNT_INACTIVE"
	case errors.Is(err, ErrDuplicateEntryNumber):
		return "DUPLICATE_ENTRY_NUMBER"
	case errors.Is(err, ErrAllocationMismatch):
		return "ALLOCATION_MISMATCH"
	case errors.Is(err, ErrConcurrentModification):
		return "CONCURRENT_MODIFICATION"
	case errors.Is(err, ErrSystemAccount), errors.Is(err, ErrImmutable), errors.Is(err, ErrBusinessRule):
		return "BUSINESS_RULE"
	case errors.Is(err, ErrInvalidState):
		return "INVALID_STATE"
	case errors.Is(err, ErrValidation):
		return "VALIDATION"
	}
	return ""
}
