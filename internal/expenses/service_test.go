package expenses

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/verdant-crm/verdant/internal/audit"
	"github.com/verdant-crm/verdant/internal/shared"
)

type memoryRepo struct {
	expenses map[uuid.UUID]Expense
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{expenses: make(map[uuid.UUID]Expense)}
}

func (r *memoryRepo) Create(ctx context.Context, e Expense) (Expense, error) {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	e.Status = StatusSubmitted
	e.CreatedAt = time.Now().UTC()
	e.UpdatedAt = e.CreatedAt
	r.expenses[e.ID] = e
	return e, nil
}

func (r *memoryRepo) Get(ctx context.Context, id uuid.UUID) (Expense, error) {
	e, ok := r.expenses[id]
	if !ok {
		return Expense{}, shared.ErrNotFound
	}
	return e, nil
}

func (r *memoryRepo) List(ctx context.Context, status string) ([]Expense, error) {
	var result []Expense
	for _, e := range r.expenses {
		if status == "" || e.Status == status {
			result = append(result, e)
		}
	}
	return result, nil
}

func (r *memoryRepo) SetStatus(ctx context.Context, id uuid.UUID, status string, approvedBy *uuid.UUID) (Expense, error) {
	e, ok := r.expenses[id]
	if !ok {
		return Expense{}, shared.ErrNotFound
	}
	if e.Status != StatusSubmitted {
		return Expense{}, fmt.Errorf("%w: expense already reviewed", shared.ErrConflict)
	}
	e.Status = status
	e.ApprovedBy = approvedBy
	e.UpdatedAt = time.Now().UTC()
	r.expenses[id] = e
	return e, nil
}

type captureRecorder struct {
	entries []audit.Entry
}

func (c *captureRecorder) Record(ctx context.Context, entry audit.Entry) error {
	c.entries = append(c.entries, entry)
	return nil
}

func submitTestExpense(t *testing.T, svc *Service, submittedBy *uuid.UUID) Expense {
	t.Helper()
	e, err := svc.Submit(context.Background(), SubmitInput{
		Description: "Forklift maintenance",
		Category:    "equipment",
		AmountCents: 78000,
		SubmittedBy: submittedBy,
	})
	require.NoError(t, err)
	return e
}

func TestApproveStampsReviewer(t *testing.T) {
	repo := newMemoryRepo()
	rec := &captureRecorder{}
	svc := NewService(repo, rec, nil)
	submitter := uuid.New()
	reviewer := uuid.New()
	expense := submitTestExpense(t, svc, &submitter)

	approved, err := svc.Approve(context.Background(), expense.ID, reviewer)
	require.NoError(t, err)
	require.Equal(t, StatusApproved, approved.Status)
	require.NotNil(t, approved.ApprovedBy)
	require.Equal(t, reviewer, *approved.ApprovedBy)

	require.Len(t, rec.entries, 1)
	require.Equal(t, "approve", rec.entries[0].Action)
	require.Equal(t, "expense", rec.entries[0].ResourceType)
	require.Equal(t, map[string]any{"status": StatusSubmitted}, rec.entries[0].OldValues)
}

func TestReviewRejectsOwnExpense(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil)
	submitter := uuid.New()
	expense := submitTestExpense(t, svc, &submitter)

	_, err := svc.Approve(context.Background(), expense.ID, submitter)
	require.ErrorIs(t, err, shared.ErrInvalidInput)
}

func TestReviewIsSingleShot(t *testing.T) {
	repo := newMemoryRepo()
	rec := &captureRecorder{}
	svc := NewService(repo, rec, nil)
	ctx := context.Background()
	expense := submitTestExpense(t, svc, nil)
	reviewer := uuid.New()

	_, err := svc.Approve(ctx, expense.ID, reviewer)
	require.NoError(t, err)

	// Re-approving converges without a second audit entry.
	again, err := svc.Approve(ctx, expense.ID, reviewer)
	require.NoError(t, err)
	require.Equal(t, StatusApproved, again.Status)
	require.Len(t, rec.entries, 1)

	// Flipping an approved expense to rejected is refused.
	_, err = svc.Reject(ctx, expense.ID, reviewer)
	require.ErrorIs(t, err, shared.ErrConflict)
}

func TestRejectRecordsAudit(t *testing.T) {
	repo := newMemoryRepo()
	rec := &captureRecorder{}
	svc := NewService(repo, rec, nil)
	expense := submitTestExpense(t, svc, nil)
	reviewer := uuid.New()

	actor := shared.Actor{UserID: reviewer, IPAddress: "10.0.0.9"}
	ctx := shared.ContextWithActor(context.Background(), actor)

	rejected, err := svc.Reject(ctx, expense.ID, reviewer)
	require.NoError(t, err)
	require.Equal(t, StatusRejected, rejected.Status)

	require.Len(t, rec.entries, 1)
	require.Equal(t, "reject", rec.entries[0].Action)
	require.NotNil(t, rec.entries[0].ActorID)
	require.Equal(t, reviewer, *rec.entries[0].ActorID)
	require.Equal(t, "10.0.0.9", rec.entries[0].IPAddress)
}

// staleReadRepo serves reads from a snapshot while writes hit the live
// store, emulating a reviewer racing another whose write already landed.
type staleReadRepo struct {
	*memoryRepo
	snapshot map[uuid.UUID]Expense
}

func (r *staleReadRepo) Get(ctx context.Context, id uuid.UUID) (Expense, error) {
	if e, ok := r.snapshot[id]; ok {
		return e, nil
	}
	return r.memoryRepo.Get(ctx, id)
}

func TestConcurrentReviewLosesToFirstWriter(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil)
	ctx := context.Background()
	expense := submitTestExpense(t, svc, nil)
	first := uuid.New()
	second := uuid.New()

	stale := &staleReadRepo{
		memoryRepo: repo,
		snapshot:   map[uuid.UUID]Expense{expense.ID: expense},
	}
	racer := NewService(stale, nil, nil)

	approved, err := svc.Approve(ctx, expense.ID, first)
	require.NoError(t, err)
	require.Equal(t, first, *approved.ApprovedBy)

	// The racing reviewer still sees the expense as submitted, so the
	// service-level check passes and the write itself must refuse.
	_, err = racer.Reject(ctx, expense.ID, second)
	require.ErrorIs(t, err, shared.ErrConflict)

	stored, err := svc.Get(ctx, expense.ID)
	require.NoError(t, err)
	require.Equal(t, StatusApproved, stored.Status)
	require.Equal(t, first, *stored.ApprovedBy)
}

func TestReviewMissingExpense(t *testing.T) {
	svc := NewService(newMemoryRepo(), nil, nil)
	_, err := svc.Approve(context.Background(), uuid.New(), uuid.New())
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestSubmitValidatesInput(t *testing.T) {
	svc := NewService(newMemoryRepo(), nil, nil)
	_, err := svc.Submit(context.Background(), SubmitInput{Category: "equipment", AmountCents: -5})
	require.ErrorIs(t, err, shared.ErrInvalidInput)
}
