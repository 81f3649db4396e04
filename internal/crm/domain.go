package crm

import (
	"time"

	"github.com/google/uuid"
)

// Customer is a plain business record; the authorization core protects it
// (customers:* permissions) but never interprets it.
type Customer struct {
	ID        uuid.UUID
	Name      string
	Email     string
	Phone     string
	Company   string
	Notes     string
	CreatedBy *uuid.UUID
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Contact is a person at a customer.
type Contact struct {
	ID         uuid.UUID
	CustomerID uuid.UUID
	FirstName  string
	LastName   string
	Email      string
	Phone      string
	Title      string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Stages a deal moves through. Won and lost are terminal.
const (
	StageLead      = "lead"
	StageQualified = "qualified"
	StageProposal  = "proposal"
	StageWon       = "won"
	StageLost      = "lost"
)

// ValidStage reports whether the stage name is known.
func ValidStage(stage string) bool {
	switch stage {
	case StageLead, StageQualified, StageProposal, StageWon, StageLost:
		return true
	}
	return false
}

// Deal tracks a sales opportunity through stages.
type Deal struct {
	ID            uuid.UUID
	CustomerID    uuid.UUID
	Title         string
	Stage         string
	ValueCents    int64
	Currency      string
	ExpectedClose *time.Time
	CreatedBy     *uuid.UUID
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Closed reports whether the deal reached a terminal stage.
func (d Deal) Closed() bool {
	return d.Stage == StageWon || d.Stage == StageLost
}

// CanMoveTo reports whether the deal may transition to the target stage.
// Closed deals never move; reopening is a new deal.
func (d Deal) CanMoveTo(stage string) bool {
	return ValidStage(stage) && !d.Closed() && stage != d.Stage
}

// Activity is a scheduled or completed touchpoint on a deal or customer.
type Activity struct {
	ID          uuid.UUID
	DealID      *uuid.UUID
	CustomerID  *uuid.UUID
	Kind        string
	Subject     string
	Notes       string
	DueAt       *time.Time
	CompletedAt *time.Time
	CreatedBy   *uuid.UUID
	CreatedAt   time.Time
}
