package accounts

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/verdant-crm/verdant/internal/shared"
)

// User represents a user account. The authorization core owns only the three
// lock fields; everything else is profile data it carries but does not
// interpret.
type User struct {
	ID           uuid.UUID
	Email        string
	PasswordHash string
	FirstName    string
	LastName     string
	IsActive     bool
	IsLocked     bool
	LastLogin    *time.Time
	LockedAt     *time.Time
	LockedBy     *uuid.UUID
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// CheckLockInvariant verifies is_locked agrees with the nullity of locked_at
// and locked_by. Disagreement is a bug in persisted state and is reported,
// never repaired.
func (u User) CheckLockInvariant() error {
	if u.IsLocked != (u.LockedAt != nil) || u.IsLocked != (u.LockedBy != nil) {
		return fmt.Errorf("%w: user %s lock fields disagree (is_locked=%t, locked_at set=%t, locked_by set=%t)",
			shared.ErrInvariantViolation, u.ID, u.IsLocked, u.LockedAt != nil, u.LockedBy != nil)
	}
	return nil
}

// CreateUserInput declares a new account. The password hash is produced by an
// external credential layer; this package never sees plaintext.
type CreateUserInput struct {
	Email        string `validate:"required,email"`
	PasswordHash string `validate:"required"`
	FirstName    string `validate:"required,max=100"`
	LastName     string `validate:"required,max=100"`
}
