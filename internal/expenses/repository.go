package expenses

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/verdant-crm/verdant/internal/shared"
)

const expenseColumns = `id, description, category, amount_cents, currency, incurred_on, status, submitted_by, approved_by, created_at, updated_at`

// Repository provides PostgreSQL backed persistence for expenses.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Create inserts an expense in submitted status.
func (r *Repository) Create(ctx context.Context, e Expense) (Expense, error) {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if e.Currency == "" {
		e.Currency = "USD"
	}
	row := r.pool.QueryRow(ctx, `
		INSERT INTO expenses (id, description, category, amount_cents, currency, incurred_on, status, submitted_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW(), NOW())
		RETURNING `+expenseColumns,
		e.ID, e.Description, e.Category, e.AmountCents, e.Currency, e.IncurredOn, StatusSubmitted, e.SubmittedBy)
	return scanExpense(row)
}

// Get fetches an expense by id.
func (r *Repository) Get(ctx context.Context, id uuid.UUID) (Expense, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+expenseColumns+` FROM expenses WHERE id = $1`, id)
	return scanExpense(row)
}

// List returns expenses newest first, optionally filtered by status.
func (r *Repository) List(ctx context.Context, status string) ([]Expense, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+expenseColumns+`
		FROM expenses
		WHERE ($1 = '' OR status = $1)
		ORDER BY incurred_on DESC, created_at DESC`, status)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Expense
	for rows.Next() {
		e, err := scanExpense(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, e)
	}
	return result, rows.Err()
}

// SetStatus moves a submitted expense to a new status, stamping the reviewer.
// The status guard makes the row the arbiter under concurrent reviews: the
// losing writer matches nothing and gets ErrConflict instead of silently
// re-stamping the reviewer.
func (r *Repository) SetStatus(ctx context.Context, id uuid.UUID, status string, approvedBy *uuid.UUID) (Expense, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE expenses SET status = $2, approved_by = $3, updated_at = NOW()
		WHERE id = $1 AND status = $4
		RETURNING `+expenseColumns, id, status, approvedBy, StatusSubmitted)
	stored, err := scanExpense(row)
	if shared.IsNotFound(err) {
		if _, getErr := r.Get(ctx, id); getErr != nil {
			return Expense{}, getErr
		}
		return Expense{}, fmt.Errorf("%w: expense already reviewed", shared.ErrConflict)
	}
	return stored, err
}

func scanExpense(row pgx.Row) (Expense, error) {
	var e Expense
	err := row.Scan(&e.ID, &e.Description, &e.Category, &e.AmountCents, &e.Currency,
		&e.IncurredOn, &e.Status, &e.SubmittedBy, &e.ApprovedBy, &e.CreatedAt, &e.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Expense{}, shared.ErrNotFound
	}
	if err != nil {
		return Expense{}, err
	}
	return e, nil
}
