package crm

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/verdant-crm/verdant/internal/shared"
)

// Repository provides PostgreSQL backed persistence for CRM records.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// CreateCustomer inserts a customer.
func (r *Repository) CreateCustomer(ctx context.Context, c Customer) (Customer, error) {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	row := r.pool.QueryRow(ctx, `
		INSERT INTO customers (id, name, email, phone, company, notes, created_by, created_at, updated_at)
		VALUES ($1, $2, NULLIF($3, ''), NULLIF($4, ''), NULLIF($5, ''), NULLIF($6, ''), $7, NOW(), NOW())
		RETURNING id, name, COALESCE(email, ''), COALESCE(phone, ''), COALESCE(company, ''), COALESCE(notes, ''), created_by, created_at, updated_at`,
		c.ID, c.Name, c.Email, c.Phone, c.Company, c.Notes, c.CreatedBy)
	return scanCustomer(row)
}

// GetCustomer fetches a customer by id.
func (r *Repository) GetCustomer(ctx context.Context, id uuid.UUID) (Customer, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, name, COALESCE(email, ''), COALESCE(phone, ''), COALESCE(company, ''), COALESCE(notes, ''), created_by, created_at, updated_at
		FROM customers WHERE id = $1`, id)
	return scanCustomer(row)
}

// ListCustomers returns all customers ordered by name.
func (r *Repository) ListCustomers(ctx context.Context) ([]Customer, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, name, COALESCE(email, ''), COALESCE(phone, ''), COALESCE(company, ''), COALESCE(notes, ''), created_by, created_at, updated_at
		FROM customers ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var customers []Customer
	for rows.Next() {
		c, err := scanCustomer(rows)
		if err != nil {
			return nil, err
		}
		customers = append(customers, c)
	}
	return customers, rows.Err()
}

// DeleteCustomer removes a customer; contacts, deals, and activities cascade.
func (r *Repository) DeleteCustomer(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM customers WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// CreateDeal inserts a deal.
func (r *Repository) CreateDeal(ctx context.Context, d Deal) (Deal, error) {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	if d.Stage == "" {
		d.Stage = StageLead
	}
	if !ValidStage(d.Stage) {
		return Deal{}, fmt.Errorf("%w: unknown deal stage %q", shared.ErrInvalidInput, d.Stage)
	}
	if d.Currency == "" {
		d.Currency = "USD"
	}
	row := r.pool.QueryRow(ctx, `
		INSERT INTO deals (id, customer_id, title, stage, value_cents, currency, expected_close, created_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW(), NOW())
		RETURNING id, customer_id, title, stage, value_cents, currency, expected_close, created_by, created_at, updated_at`,
		d.ID, d.CustomerID, d.Title, d.Stage, d.ValueCents, d.Currency, d.ExpectedClose, d.CreatedBy)
	return scanDeal(row)
}

// UpdateDealStage moves a deal to a new stage. Closed deals stay closed.
func (r *Repository) UpdateDealStage(ctx context.Context, id uuid.UUID, stage string) (Deal, error) {
	prior, err := r.GetDeal(ctx, id)
	if err != nil {
		return Deal{}, err
	}
	if stage == prior.Stage {
		return prior, nil
	}
	if !prior.CanMoveTo(stage) {
		return Deal{}, fmt.Errorf("%w: deal in stage %q cannot move to %q", shared.ErrConflict, prior.Stage, stage)
	}
	row := r.pool.QueryRow(ctx, `
		UPDATE deals SET stage = $2, updated_at = NOW() WHERE id = $1
		RETURNING id, customer_id, title, stage, value_cents, currency, expected_close, created_by, created_at, updated_at`,
		id, stage)
	return scanDeal(row)
}

// GetDeal fetches a deal by id.
func (r *Repository) GetDeal(ctx context.Context, id uuid.UUID) (Deal, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, customer_id, title, stage, value_cents, currency, expected_close, created_by, created_at, updated_at
		FROM deals WHERE id = $1`, id)
	return scanDeal(row)
}

// ListDeals returns deals for a customer, newest first.
func (r *Repository) ListDeals(ctx context.Context, customerID uuid.UUID) ([]Deal, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, customer_id, title, stage, value_cents, currency, expected_close, created_by, created_at, updated_at
		FROM deals WHERE customer_id = $1 ORDER BY created_at DESC`, customerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var deals []Deal
	for rows.Next() {
		d, err := scanDeal(rows)
		if err != nil {
			return nil, err
		}
		deals = append(deals, d)
	}
	return deals, rows.Err()
}

// CreateActivity inserts an activity.
func (r *Repository) CreateActivity(ctx context.Context, a Activity) (Activity, error) {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	row := r.pool.QueryRow(ctx, `
		INSERT INTO activities (id, deal_id, customer_id, kind, subject, notes, due_at, created_by, created_at)
		VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), $7, $8, NOW())
		RETURNING id, deal_id, customer_id, kind, subject, COALESCE(notes, ''), due_at, completed_at, created_by, created_at`,
		a.ID, a.DealID, a.CustomerID, a.Kind, a.Subject, a.Notes, a.DueAt, a.CreatedBy)
	var stored Activity
	err := row.Scan(&stored.ID, &stored.DealID, &stored.CustomerID, &stored.Kind, &stored.Subject,
		&stored.Notes, &stored.DueAt, &stored.CompletedAt, &stored.CreatedBy, &stored.CreatedAt)
	if err != nil {
		return Activity{}, shared.MapPgError(err)
	}
	return stored, nil
}

func scanCustomer(row pgx.Row) (Customer, error) {
	var c Customer
	err := row.Scan(&c.ID, &c.Name, &c.Email, &c.Phone, &c.Company, &c.Notes, &c.CreatedBy, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Customer{}, shared.ErrNotFound
	}
	if err != nil {
		return Customer{}, err
	}
	return c, nil
}

func scanDeal(row pgx.Row) (Deal, error) {
	var d Deal
	err := row.Scan(&d.ID, &d.CustomerID, &d.Title, &d.Stage, &d.ValueCents, &d.Currency,
		&d.ExpectedClose, &d.CreatedBy, &d.CreatedAt, &d.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Deal{}, shared.ErrNotFound
	}
	if err != nil {
		return Deal{}, err
	}
	return d, nil
}
