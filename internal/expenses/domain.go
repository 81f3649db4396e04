package expenses

import (
	"time"

	"github.com/google/uuid"
)

// Statuses an expense moves through. An expense is reviewed at most once:
// submitted moves to approved or rejected and stays there.
const (
	StatusSubmitted = "submitted"
	StatusApproved  = "approved"
	StatusRejected  = "rejected"
)

// Expense is a plain expense record.
type Expense struct {
	ID          uuid.UUID
	Description string
	Category    string
	AmountCents int64
	Currency    string
	IncurredOn  time.Time
	Status      string
	SubmittedBy *uuid.UUID
	ApprovedBy  *uuid.UUID
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
