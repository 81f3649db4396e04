package expenses

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/verdant-crm/verdant/internal/audit"
	"github.com/verdant-crm/verdant/internal/shared"
)

// Audit labels reported for expense reviews. These extend the core's action
// vocabulary; audit_logs carries arbitrary host-app labels.
const (
	actionApprove = "approve"
	actionReject  = "reject"

	resourceExpense = "expense"
)

// RepositoryPort defines data access for expenses.
type RepositoryPort interface {
	Create(ctx context.Context, e Expense) (Expense, error)
	Get(ctx context.Context, id uuid.UUID) (Expense, error)
	List(ctx context.Context, status string) ([]Expense, error)
	SetStatus(ctx context.Context, id uuid.UUID, status string, approvedBy *uuid.UUID) (Expense, error)
}

// AuditRecorder is satisfied by *audit.PoolRecorder. Expense reviews are
// host-app mutations, so the entry is written in its own transaction rather
// than coupled to the status update.
type AuditRecorder interface {
	Record(ctx context.Context, entry audit.Entry) error
}

// SubmitInput declares a new expense.
type SubmitInput struct {
	Description string `validate:"required,max=500"`
	Category    string `validate:"required,max=100"`
	AmountCents int64  `validate:"gt=0"`
	Currency    string `validate:"omitempty,len=3"`
	IncurredOn  time.Time
	SubmittedBy *uuid.UUID
}

// Service runs the expense review flow: submitted expenses are approved or
// rejected exactly once, and never by their submitter.
type Service struct {
	repo     RepositoryPort
	recorder AuditRecorder
	validate *validator.Validate
	logger   *slog.Logger
}

// NewService builds a Service instance. recorder and logger may be nil.
func NewService(repo RepositoryPort, recorder AuditRecorder, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, recorder: recorder, validate: validator.New(), logger: logger}
}

// Submit records a new expense in submitted status.
func (s *Service) Submit(ctx context.Context, input SubmitInput) (Expense, error) {
	if err := s.validate.Struct(input); err != nil {
		return Expense{}, fmt.Errorf("%w: %v", shared.ErrInvalidInput, err)
	}
	incurred := input.IncurredOn
	if incurred.IsZero() {
		incurred = time.Now().UTC()
	}
	return s.repo.Create(ctx, Expense{
		Description: input.Description,
		Category:    input.Category,
		AmountCents: input.AmountCents,
		Currency:    input.Currency,
		IncurredOn:  incurred,
		SubmittedBy: input.SubmittedBy,
	})
}

// Approve moves a submitted expense to approved, stamping the reviewer.
func (s *Service) Approve(ctx context.Context, id, by uuid.UUID) (Expense, error) {
	return s.review(ctx, id, by, StatusApproved, actionApprove)
}

// Reject moves a submitted expense to rejected.
func (s *Service) Reject(ctx context.Context, id, by uuid.UUID) (Expense, error) {
	return s.review(ctx, id, by, StatusRejected, actionReject)
}

func (s *Service) review(ctx context.Context, id, by uuid.UUID, status, action string) (Expense, error) {
	prior, err := s.repo.Get(ctx, id)
	if err != nil {
		return Expense{}, err
	}
	if prior.SubmittedBy != nil && *prior.SubmittedBy == by {
		return Expense{}, fmt.Errorf("%w: cannot review own expense", shared.ErrInvalidInput)
	}
	if prior.Status == status {
		return prior, nil
	}
	if prior.Status != StatusSubmitted {
		return Expense{}, fmt.Errorf("%w: expense already %s", shared.ErrConflict, prior.Status)
	}

	stored, err := s.repo.SetStatus(ctx, id, status, &by)
	if err != nil {
		return Expense{}, err
	}
	s.record(ctx, action, stored, prior.Status)
	return stored, nil
}

// Get fetches one expense.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (Expense, error) {
	return s.repo.Get(ctx, id)
}

// List returns expenses, optionally filtered by status.
func (s *Service) List(ctx context.Context, status string) ([]Expense, error) {
	return s.repo.List(ctx, status)
}

// Pending returns expenses awaiting review.
func (s *Service) Pending(ctx context.Context) ([]Expense, error) {
	return s.repo.List(ctx, StatusSubmitted)
}

func (s *Service) record(ctx context.Context, action string, stored Expense, priorStatus string) {
	if s.recorder == nil {
		return
	}
	id := stored.ID
	entry := audit.Entry{
		Action:       action,
		ResourceType: resourceExpense,
		ResourceID:   &id,
		OldValues:    map[string]any{"status": priorStatus},
		NewValues:    map[string]any{"status": stored.Status, "amount_cents": stored.AmountCents},
	}
	if actor, ok := shared.ActorFromContext(ctx); ok {
		actorID := actor.UserID
		entry.ActorID = &actorID
		entry.IPAddress = actor.IPAddress
		entry.UserAgent = actor.UserAgent
	}
	if err := s.recorder.Record(ctx, entry); err != nil {
		s.logger.Warn("expenses: audit record failed",
			slog.String("action", action), slog.Any("error", err))
	}
}
