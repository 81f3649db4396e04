package shared

import "errors"

var (
	// ErrNotFound indicates a referenced role, user, or binding does not exist.
	ErrNotFound = errors.New("not found")
	// ErrConflict indicates a natural-key uniqueness violation not absorbed by
	// idempotent upsert semantics.
	ErrConflict = errors.New("conflict")
	// ErrInvariantViolation indicates persisted state disagrees with itself and is
	// never silently repaired.
	ErrInvariantViolation = errors.New("invariant violation")
	// ErrLocked indicates the target account is locked.
	ErrLocked = errors.New("account locked")
	// ErrInvalidInput indicates a caller-supplied value failed validation.
	ErrInvalidInput = errors.New("invalid input")
)

// IsNotFound reports whether err wraps ErrNotFound.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

